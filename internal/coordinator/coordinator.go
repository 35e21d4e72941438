// Package coordinator implements the Session Coordinator (SC): the single
// long-running thread that owns the virtual clock and drives the six-phase
// session lifecycle (spec.md §4.5), wiring together SSS, the Data
// Processor's subscription handshake, the Scanner Manager, TimeAuthority,
// the TradingCalendar, HistoricalRepository, and (in live mode) LiveStream.
//
// Built on a config -> collaborators -> run loop -> signal-driven shutdown
// wiring order, generalized from a single-purpose worker into the full
// multi-phase session loop SPEC_FULL.md §4.5 calls for. The phase structure
// itself has no single precedent to generalize from (independent stream
// processors don't need a phased session driver), so it is built directly
// from spec.md, expressed with explicit goroutines and channels rather than
// an async runtime.
package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mohamedkhairy/session-orchestrator/internal/calendar"
	"github.com/mohamedkhairy/session-orchestrator/internal/config"
	"github.com/mohamedkhairy/session-orchestrator/internal/dataprocessor"
	"github.com/mohamedkhairy/session-orchestrator/internal/historicalrepo"
	"github.com/mohamedkhairy/session-orchestrator/internal/livestream"
	"github.com/mohamedkhairy/session-orchestrator/internal/metricsregistry"
	"github.com/mohamedkhairy/session-orchestrator/internal/models"
	"github.com/mohamedkhairy/session-orchestrator/internal/scanner"
	"github.com/mohamedkhairy/session-orchestrator/internal/sss"
	"github.com/mohamedkhairy/session-orchestrator/internal/timeauthority"
	"github.com/mohamedkhairy/session-orchestrator/pkg/indicator"
	"github.com/mohamedkhairy/session-orchestrator/pkg/logger"
)

// Phase identifies where the coordinator is in the six-phase lifecycle, for
// the status control surface (spec.md §6.5).
type Phase int

const (
	PhaseInit Phase = iota
	PhaseHistorical
	PhasePreSessionScan
	PhaseQueueLoading
	PhaseActivation
	PhaseStreaming
	PhaseEndOfSession
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseHistorical:
		return "historical"
	case PhasePreSessionScan:
		return "pre_session_scan"
	case PhaseQueueLoading:
		return "queue_loading"
	case PhaseActivation:
		return "activation"
	case PhaseStreaming:
		return "streaming"
	case PhaseEndOfSession:
		return "end_of_session"
	case PhaseTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// WarmupIndicator is a declared indicator that must be seeded from
// historical data during Phase 2 and kept attached to DP for recomputation
// on every closed bar.
type WarmupIndicator struct {
	Name     string // SSS indicator name, e.g. "rsi_14_1m"
	Interval models.Interval
	Factory  func() indicator.Calculator
}

// Config bundles the per-run parameters derived from a SessionConfig
// (spec.md §6.1) the coordinator needs, independent of YAML parsing.
type Config struct {
	SessionName   string
	Mode          Mode
	ConfigSymbols []string
	Intervals     []models.Interval // includes 1m implicitly for backtest
	TrailingDays  int
	StartDate     time.Time // backtest only, inclusive
	EndDate       time.Time // backtest only, inclusive
	Speed         float64   // 0 = DataDriven; >0 = ClockDriven
	HolidayHorizonDays int  // default 30, per spec.md §4.5.3

	// QualitySamplePeriod is how many appended bars elapse between
	// set_quality publications (default 10, spec.md §4.5.4).
	QualitySamplePeriod int

	LiveDataTimeout time.Duration // Live mode subscription wait timeout
}

// Mode selects backtest vs live, mirroring timeauthority.Mode.
type Mode int

const (
	ModeBacktest Mode = iota
	ModeLive
)

// FromSessionConfig converts a loaded SessionConfig into a Config. Callers
// still need to resolve Scanners into *scanner.Entry values themselves (the
// module string is opaque to this package), since wiring a scanner name to
// a concrete Scanner implementation is a cmd/sessiond concern.
func FromSessionConfig(sc *config.SessionConfig) (Config, error) {
	s := sc.Session

	mode := ModeBacktest
	if s.Mode == "live" {
		mode = ModeLive
	}

	cfg := Config{
		SessionName:   s.SessionName,
		Mode:          mode,
		ConfigSymbols: append([]string(nil), s.Symbols...),
		Intervals:     sc.IntervalValues(),
		TrailingDays:  s.TrailingDays,
	}

	if mode == ModeBacktest {
		start, err := time.Parse("2006-01-02", s.Backtest.StartDate)
		if err != nil {
			return Config{}, fmt.Errorf("coordinator: parse backtest.start_date: %w", err)
		}
		end, err := time.Parse("2006-01-02", s.Backtest.EndDate)
		if err != nil {
			return Config{}, fmt.Errorf("coordinator: parse backtest.end_date: %w", err)
		}
		cfg.StartDate = start
		cfg.EndDate = end
		cfg.Speed = s.Backtest.Speed
	}
	return cfg, nil
}

// Coordinator is the Session Coordinator.
type Coordinator struct {
	cfg   Config
	store *sss.Store
	cal   *calendar.Calendar
	clock *timeauthority.Authority
	repo  historicalrepo.Repository
	sm    *scanner.ScannerManager
	dp    *dataprocessor.DataProcessor
	dpReg *dataprocessor.IndicatorRegistry
	metrics *metricsregistry.Registry
	stream  livestream.Stream // required in ModeLive; nil in ModeBacktest

	warmups []WarmupIndicator

	phase    atomic.Int32
	paused   atomic.Bool
	pauseGate chan struct{}
	shutdown chan struct{}
	shutdownOnce sync.Once
	dpStarted    sync.Once
}

// New builds a Coordinator. repo, sm, dp, dpReg, metrics, store, cal, clock
// are all pre-wired by the caller (cmd/sessiond)'s main()-does-all-the-wiring
// convention.
func New(cfg Config, store *sss.Store, cal *calendar.Calendar, clock *timeauthority.Authority, repo historicalrepo.Repository, sm *scanner.ScannerManager, dp *dataprocessor.DataProcessor, dpReg *dataprocessor.IndicatorRegistry, metrics *metricsregistry.Registry, warmups []WarmupIndicator) *Coordinator {
	if cfg.QualitySamplePeriod <= 0 {
		cfg.QualitySamplePeriod = 10
	}
	if cfg.HolidayHorizonDays <= 0 {
		cfg.HolidayHorizonDays = 30
	}
	c := &Coordinator{
		cfg:       cfg,
		store:     store,
		cal:       cal,
		clock:     clock,
		repo:      repo,
		sm:        sm,
		dp:        dp,
		dpReg:     dpReg,
		metrics:   metrics,
		warmups:   warmups,
		pauseGate: make(chan struct{}),
		shutdown:  make(chan struct{}),
	}
	if dp != nil && metrics != nil {
		dp.BarReady.SetHooks(
			func() { metrics.Record("dp_bar_ready_overrun", 1) },
			func() { metrics.Record("dp_bar_ready_timeout", 1) },
		)
	}
	return c
}

// SetLiveStream installs the LiveStream collaborator. Required before Run in
// ModeLive; unused in ModeBacktest.
func (c *Coordinator) SetLiveStream(s livestream.Stream) { c.stream = s }

// Phase returns the coordinator's current lifecycle phase.
func (c *Coordinator) Phase() Phase { return Phase(c.phase.Load()) }

func (c *Coordinator) setPhase(p Phase) { c.phase.Store(int32(p)) }

// Pause sets the pause gate; the streaming loop blocks at the top of its
// next iteration until Resume is called.
func (c *Coordinator) Pause() { c.paused.Store(true) }

// Resume clears the pause gate.
func (c *Coordinator) Resume() {
	if c.paused.CompareAndSwap(true, false) {
		close(c.pauseGate)
		c.pauseGate = make(chan struct{})
	}
}

// Paused reports whether the coordinator is currently paused.
func (c *Coordinator) Paused() bool { return c.paused.Load() }

// Shutdown requests cooperative termination: cancels the DP subscription and
// unblocks the streaming loop. Idempotent.
func (c *Coordinator) Shutdown() {
	c.shutdownOnce.Do(func() {
		close(c.shutdown)
		if c.dp != nil {
			c.dp.BarReady.Cancel()
		}
	})
}

// ActiveSymbolCount reports the number of currently registered symbols, for
// the status control surface.
func (c *Coordinator) ActiveSymbolCount() int {
	return len(c.store.Symbols())
}

// Now reports virtual now (backtest) or wall-clock UTC (live), for the
// status control surface (spec.md §6.5).
func (c *Coordinator) Now() time.Time { return c.clock.Now() }

// SessionDate reports the date of the session currently in progress, for
// the status control surface.
func (c *Coordinator) SessionDate() time.Time { return c.store.CurrentDate() }

// Run drives sessions until the backtest date range is exhausted (backtest
// mode) or Shutdown is called (live mode). It returns the error that
// terminated the run, or nil on a clean Shutdown/date-range exhaustion.
func (c *Coordinator) Run(ctx context.Context) error {
	if c.dp != nil {
		c.dpStarted.Do(func() {
			go c.dp.Run(ctx)
		})
	}

	currentDate := c.clock.FirstTradingDateOnOrAfter(c.cfg.StartDate)

	for {
		select {
		case <-c.shutdown:
			c.setPhase(PhaseTerminated)
			return nil
		case <-ctx.Done():
			c.setPhase(PhaseTerminated)
			return ctx.Err()
		default:
		}

		if c.cfg.Mode == ModeBacktest && currentDate.After(c.cfg.EndDate) {
			c.setPhase(PhaseTerminated)
			return nil
		}

		nextDate, err := c.runSession(ctx, currentDate)
		if err != nil {
			c.setPhase(PhaseTerminated)
			return err
		}
		if c.cfg.Mode == ModeLive {
			// Live mode sessions loop on the calendar's natural next day;
			// termination is external (Shutdown), never date-range driven.
			currentDate = nextDate
			continue
		}
		currentDate = nextDate
	}
}

// runSession executes one full six-phase lifecycle for sessionDate, returning
// the next session's date (already holiday-resolved).
func (c *Coordinator) runSession(ctx context.Context, sessionDate time.Time) (time.Time, error) {
	if err := c.phaseInit(sessionDate); err != nil {
		return time.Time{}, err
	}

	if err := c.phaseHistorical(ctx, sessionDate); err != nil {
		return time.Time{}, err
	}

	c.setPhase(PhasePreSessionScan)
	if err := c.sm.SetupPreSessionScanners(ctx, c.clock.Now()); err != nil {
		logger.Warn("coordinator: pre-session scan setup failed", logger.ErrorField(err))
	}

	queues, err := c.phaseQueueLoading(ctx, sessionDate)
	if err != nil {
		return time.Time{}, err
	}

	c.phaseActivation(sessionDate)

	if err := c.phaseStreaming(ctx, sessionDate, queues); err != nil {
		return time.Time{}, err
	}

	return c.phaseEndOfSession(sessionDate)
}

// phaseInit implements Phase 1 (spec.md §4.5.2).
func (c *Coordinator) phaseInit(sessionDate time.Time) error {
	c.setPhase(PhaseInit)

	c.store.SetActive(false)
	c.store.SetCurrentDate(sessionDate)

	c.assignStreamGenerateContract()

	effective := c.effectiveSymbolSet()
	if len(effective) == 0 {
		return fmt.Errorf("coordinator: %w: no config or promoted symbols resolved for session", models.ErrConfigError)
	}
	for _, sym := range effective {
		c.store.RegisterSymbol(sym, sourceFor(sym, c.cfg.ConfigSymbols))
	}
	return nil
}

func sourceFor(symbol string, configSymbols []string) models.SymbolSource {
	for _, s := range configSymbols {
		if s == symbol {
			return models.SourceConfig
		}
	}
	return models.SourceAdhoc
}

// effectiveSymbolSet is config symbols plus any Adhoc symbol from a prior
// session still registered in SSS (spec.md §4.5.2 Phase 1).
func (c *Coordinator) effectiveSymbolSet() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range c.cfg.ConfigSymbols {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range c.store.Symbols() {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// assignStreamGenerateContract implements spec.md §4.5.1: in backtest the
// smallest configured interval (hard-ruled to 1 minute, §9 Open Question 1)
// is Streamed; every other intraday interval is Generated.
func (c *Coordinator) assignStreamGenerateContract() {
	c.store.SetStreamKind(models.OneMinute, sss.Streamed)
	for _, interval := range c.cfg.Intervals {
		if interval.Equal(models.OneMinute) {
			continue
		}
		c.store.SetStreamKind(interval, sss.Generated)
	}
}
