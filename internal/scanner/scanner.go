// Package scanner implements the Scanner trait and ScannerManager (SM) of
// SPEC_FULL.md §4.7: pre-session and scheduled-regular-session scans that
// promote symbols into full-data tracking via SSS.add_symbol. RuleScanner
// builds on internal/rules (compiled rule evaluation); ToplistScanner builds
// on a Redis ZSET ranking pattern — both generalized behind the single
// Scanner capability SPEC_FULL.md calls for.
package scanner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mohamedkhairy/session-orchestrator/internal/models"
	"github.com/mohamedkhairy/session-orchestrator/pkg/logger"
)

// Store is the subset of *sss.Store a Scanner needs: read access to
// registered symbols and their indicators, plus the promotion entry point.
// Kept narrow (mirrors internal/dataprocessor.Store) so scanners and tests
// don't need the whole sss package.
type Store interface {
	Symbols() []string
	ConfigSymbols() []string
	GetIndicator(symbol, name string) (models.IndicatorValue, bool)
	GetLatestBar(symbol string, interval models.Interval) (models.Bar, bool)
	AddSymbol(symbol string) // promotion; idempotency is SSS's concern (I3)
}

// ScanContext is the read-only view a Scanner's lifecycle methods receive.
type ScanContext struct {
	Store  Store
	Now    time.Time
	Config map[string]interface{} // opaque per-scanner config blob
}

// ScanResult is what a Scanner's Scan returns: symbols to promote plus
// free-form diagnostic metadata surfaced in logs/metrics.
type ScanResult struct {
	PromotedSymbols []string
	Metadata        map[string]interface{}
}

// Scanner is the capability every scanner implementation provides. A single
// interface replaces the deep scanner-base-class inheritance the source
// system uses (spec.md §9 REDESIGN FLAG): dispatch is through this trait,
// not a class hierarchy.
type Scanner interface {
	Name() string
	Setup(ctx context.Context, sctx *ScanContext) error
	Scan(ctx context.Context, sctx *ScanContext) (ScanResult, error)
	Teardown(ctx context.Context, sctx *ScanContext) error
}

// ScheduleWindow is one half-open [Start, End) regular-session scan window
// with a fixed scan interval, per spec.md §6.1's
// `regular_session: [{start, end, interval}]` schema.
type ScheduleWindow struct {
	Start    time.Duration // offset from session open
	End      time.Duration
	Interval time.Duration
}

// Status reports a scanner's last lifecycle outcome.
type Status int

const (
	StatusOK Status = iota
	StatusFailed
)

// Entry is one scanner's declared configuration plus SM's own scheduling
// bookkeeping.
type Entry struct {
	Scanner        Scanner
	PreSession     bool
	RegularSession []ScheduleWindow
	Config         map[string]interface{}

	status       Status
	sessionOpen  time.Time // anchor all RegularSession window offsets are relative to
	nextScanTime time.Time
	windowIdx    int
	done         bool
	tornDown     bool
}

// Status returns the scanner's last recorded lifecycle status.
func (e *Entry) Status() Status { return e.status }

// ScannerManager loads, schedules, and dispatches scanners against SSS,
// per spec.md §4.7.
type ScannerManager struct {
	store   Store
	entries []*Entry
}

// NewScannerManager constructs SM from the session's configured scanner
// entries. Fails startup (returns an error) if any entry lacks a Scanner
// implementation — "loads scanners declared in session config; fails
// startup if any is unloadable" (spec.md §4.7).
func NewScannerManager(store Store, entries []*Entry) (*ScannerManager, error) {
	for i, e := range entries {
		if e.Scanner == nil {
			return nil, fmt.Errorf("scanner manager: entry %d has no scanner implementation", i)
		}
	}
	return &ScannerManager{store: store, entries: entries}, nil
}

// SetupPreSessionScanners calls Setup on every scanner, then Scan on the
// pre-session ones, then Teardown on those same pre-session ones. A
// per-scanner failure is caught and recorded as StatusFailed without
// aborting the run, unless more than half of all configured scanners fail.
func (m *ScannerManager) SetupPreSessionScanners(ctx context.Context, now time.Time) error {
	failures := 0

	for _, e := range m.entries {
		sctx := &ScanContext{Store: m.store, Now: now, Config: e.Config}
		if err := m.safeSetup(ctx, e, sctx); err != nil {
			failures++
		}
	}

	for _, e := range m.entries {
		if !e.PreSession || e.status == StatusFailed {
			continue
		}
		sctx := &ScanContext{Store: m.store, Now: now, Config: e.Config}
		result, err := m.safeScan(ctx, e, sctx)
		if err != nil {
			failures++
			continue
		}
		m.applyPromotions(result)
	}

	for _, e := range m.entries {
		if !e.PreSession {
			continue
		}
		sctx := &ScanContext{Store: m.store, Now: now, Config: e.Config}
		_ = m.safeTeardown(ctx, e, sctx)
		e.tornDown = true
	}

	if len(m.entries) > 0 && failures*2 > len(m.entries) {
		return fmt.Errorf("scanner manager: %d/%d scanners failed during pre-session setup", failures, len(m.entries))
	}
	return nil
}

// OnSessionStart initializes next_scan_time for every scanner carrying a
// regular-session schedule, rounded up to the first window slot at or after
// sessionOpen.
func (m *ScannerManager) OnSessionStart(sessionOpen time.Time) {
	for _, e := range m.entries {
		if len(e.RegularSession) == 0 {
			continue
		}
		e.windowIdx = 0
		e.done = false
		e.sessionOpen = sessionOpen
		w := e.RegularSession[0]
		start := sessionOpen.Add(w.Start)
		if start.Before(sessionOpen) {
			start = sessionOpen
		}
		e.nextScanTime = start
	}
}

// CheckAndExecuteScans runs every scanner whose next_scan_time is at or
// before now, advances its schedule, and applies any promotions. Scan
// failures are isolated per spec.md §4.7 ("scan failure is isolated;
// session continues") — never propagated as an error from this call.
func (m *ScannerManager) CheckAndExecuteScans(ctx context.Context, now time.Time) {
	for _, e := range m.entries {
		if e.done || len(e.RegularSession) == 0 || e.status == StatusFailed {
			continue
		}
		if e.nextScanTime.After(now) {
			continue
		}

		sctx := &ScanContext{Store: m.store, Now: now, Config: e.Config}
		result, err := m.safeScan(ctx, e, sctx)
		if err == nil {
			m.applyPromotions(result)
		}

		w := e.RegularSession[e.windowIdx]
		e.nextScanTime = e.nextScanTime.Add(w.Interval)
		scheduleEnd := e.sessionOpen.Add(w.End)
		if !e.nextScanTime.Before(scheduleEnd) {
			e.windowIdx++
			if e.windowIdx >= len(e.RegularSession) {
				e.done = true
			} else {
				next := e.RegularSession[e.windowIdx]
				e.nextScanTime = e.sessionOpen.Add(next.Start)
			}
		}
	}
}

// OnSessionEnd tears down any scanner not already torn down.
func (m *ScannerManager) OnSessionEnd(ctx context.Context, now time.Time) {
	for _, e := range m.entries {
		if e.tornDown {
			continue
		}
		sctx := &ScanContext{Store: m.store, Now: now, Config: e.Config}
		_ = m.safeTeardown(ctx, e, sctx)
		e.tornDown = true
	}
}

func (m *ScannerManager) applyPromotions(result ScanResult) {
	symbols := append([]string(nil), result.PromotedSymbols...)
	sort.Strings(symbols) // deterministic application order
	for _, s := range symbols {
		m.store.AddSymbol(s)
	}
}

func (m *ScannerManager) safeSetup(ctx context.Context, e *Entry, sctx *ScanContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scanner %s: setup panicked: %v", e.Scanner.Name(), r)
		}
		if err != nil {
			e.status = StatusFailed
			logger.Warn("scanner setup failed", logger.String("scanner", e.Scanner.Name()), logger.ErrorField(err))
		}
	}()
	return e.Scanner.Setup(ctx, sctx)
}

func (m *ScannerManager) safeScan(ctx context.Context, e *Entry, sctx *ScanContext) (result ScanResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scanner %s: scan panicked: %v", e.Scanner.Name(), r)
		}
		if err != nil {
			e.status = StatusFailed
			logger.Warn("scanner scan failed", logger.String("scanner", e.Scanner.Name()), logger.ErrorField(err))
		}
	}()
	return e.Scanner.Scan(ctx, sctx)
}

func (m *ScannerManager) safeTeardown(ctx context.Context, e *Entry, sctx *ScanContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scanner %s: teardown panicked: %v", e.Scanner.Name(), r)
		}
		if err != nil {
			logger.Warn("scanner teardown failed", logger.String("scanner", e.Scanner.Name()), logger.ErrorField(err))
		}
	}()
	return e.Scanner.Teardown(ctx, sctx)
}
