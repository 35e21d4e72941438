package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohamedkhairy/session-orchestrator/internal/calendar"
	"github.com/mohamedkhairy/session-orchestrator/internal/models"
	"github.com/mohamedkhairy/session-orchestrator/internal/subscription"
	"github.com/mohamedkhairy/session-orchestrator/pkg/logger"
)

// phaseHistorical implements Phase 2 (spec.md §4.5.2): seed SSS's
// historical_bars with the trailing window for every effective symbol and
// warm every declared indicator against that history, so each symbol's
// indicators are ready on the first streamed bar of the new session.
func (c *Coordinator) phaseHistorical(ctx context.Context, sessionDate time.Time) error {
	c.setPhase(PhaseHistorical)

	trailingDates := c.trailingWindowDates(sessionDate)
	symbols := c.store.Symbols()

	for _, sym := range symbols {
		if err := c.seedSymbolHistory(ctx, sym, trailingDates); err != nil {
			return err
		}
	}

	c.warmIndicators(symbols, trailingDates)
	return nil
}

// seedSymbolHistory fetches and stores one symbol's trailing-window bars for
// every configured interval.
func (c *Coordinator) seedSymbolHistory(ctx context.Context, symbol string, trailingDates []time.Time) error {
	for _, date := range trailingDates {
		window := c.cal.SessionWindow(date)
		for _, interval := range c.cfg.Intervals {
			bars, err := c.repo.FetchBars(ctx, symbol, interval, window.OpenUTC, window.CloseUTC)
			if err != nil {
				return fmt.Errorf("coordinator: historical fetch %s/%s: %w", symbol, interval, err)
			}
			if err := c.store.SeedHistoricalBars(symbol, interval, date, bars); err != nil {
				return fmt.Errorf("coordinator: seed historical %s/%s: %w", symbol, interval, err)
			}
		}
	}
	return nil
}

// trailingWindowDates returns the TrailingDays prior trading days, oldest
// first, using the calendar's unbounded PreviousTradingDay walk — bounded
// here by the fixed TrailingDays count rather than a time horizon, so the
// §4.5.3 horizon-bound concern doesn't apply to this walk.
func (c *Coordinator) trailingWindowDates(sessionDate time.Time) []time.Time {
	dates := make([]time.Time, 0, c.cfg.TrailingDays)
	d := sessionDate
	for i := 0; i < c.cfg.TrailingDays; i++ {
		d = c.cal.PreviousTradingDay(d)
		dates = append(dates, d)
	}
	for i, j := 0, len(dates)-1; i < j; i, j = i+1, j-1 {
		dates[i], dates[j] = dates[j], dates[i]
	}
	return dates
}

// warmIndicators attaches every declared WarmupIndicator to the DP registry
// and primes it against each symbol's seeded historical bars, so a
// calculator that needs N bars of lookback (an EMA, an RSI) is already
// IsReady() before the session's first live bar arrives.
func (c *Coordinator) warmIndicators(symbols []string, trailingDates []time.Time) {
	if c.dpReg == nil || len(c.warmups) == 0 {
		return
	}
	for _, sym := range symbols {
		for _, w := range c.warmups {
			calc := w.Factory()
			if _, err := c.dpReg.Attach(sym, w.Interval, w.Name, calc); err != nil {
				logger.Warn("coordinator: attach warmup indicator failed",
					logger.String("symbol", sym), logger.String("indicator", w.Name), logger.ErrorField(err))
				continue
			}
			for _, date := range trailingDates {
				bars := c.store.GetHistoricalBars(sym, w.Interval, date)
				for i := range bars {
					value, err := calc.Update(&bars[i])
					if err != nil {
						continue
					}
					if calc.IsReady() {
						_ = c.store.SetIndicator(sym, w.Name, value)
					}
				}
			}
		}
	}
}

// phaseQueueLoading implements Phase 3: build the session's chronological
// bar-delivery queue. In backtest this merges each symbol's 1-minute bars
// for the session window; in live mode there is no pre-built queue — the
// streaming phase subscribes to LiveStream directly — so this returns nil.
func (c *Coordinator) phaseQueueLoading(ctx context.Context, sessionDate time.Time) (*sessionQueue, error) {
	c.setPhase(PhaseQueueLoading)
	if c.cfg.Mode == ModeLive {
		return nil, nil
	}

	window := c.cal.SessionWindow(sessionDate)
	return buildSessionQueue(ctx, c.repo, c.store.Symbols(), sessionWindow{Open: window.OpenUTC, Close: window.CloseUTC})
}

// phaseActivation implements Phase 4: flip the active flag,
// start the clock at session open, and prime the scanner schedule. The Data
// Processor's goroutine is launched once for the coordinator's whole
// lifetime (in Run), not per session.
func (c *Coordinator) phaseActivation(sessionDate time.Time) {
	c.setPhase(PhaseActivation)

	window := c.cal.SessionWindow(sessionDate)
	_ = c.clock.Advance(window.OpenUTC)
	c.store.SetActive(true)
	c.sm.OnSessionStart(window.OpenUTC)
}

// phaseStreaming implements Phase 5's drive loop and Phase 6's trigger
// (session close). It drains queue (backtest) or LiveStream (live),
// appending each bar as Streamed, signaling the DP subscription, advancing
// the clock per §4.5.3, running due scanners, and tracking per-(symbol,
// interval) quality.
func (c *Coordinator) phaseStreaming(ctx context.Context, sessionDate time.Time, queue *sessionQueue) error {
	c.setPhase(PhaseStreaming)

	window := c.cal.SessionWindow(sessionDate)
	quality := newQualityTracker(c.cfg.QualitySamplePeriod)

	if c.cfg.Mode == ModeLive {
		return c.streamLive(ctx, sessionDate, window, quality)
	}
	return c.streamBacktest(ctx, sessionDate, queue, window, quality)
}

func (c *Coordinator) streamBacktest(ctx context.Context, sessionDate time.Time, queue *sessionQueue, window calendar.SessionWindow, quality *qualityTracker) error {
	virtualStart := window.OpenUTC
	realStart := time.Now()

	for {
		select {
		case <-c.shutdown:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		c.waitIfPaused()

		qb, ok := queue.next()
		if !ok {
			if window.CloseUTC.After(c.clock.Now()) {
				if err := c.clock.Advance(window.CloseUTC); err != nil {
					return fmt.Errorf("coordinator: advance clock to close: %w", err)
				}
			}
			break
		}

		// A bar is complete at interval_end, not at its timestamp (interval
		// start) — a 1m bar stamped 09:30 is complete at 09:31 (spec.md §3).
		barEnd := qb.Bar.IntervalEnd()

		if c.cfg.Speed > 0 {
			c.paceClockDriven(ctx, realStart, virtualStart, barEnd)
		}

		if err := c.clock.Advance(barEnd); err != nil {
			return fmt.Errorf("coordinator: advance clock: %w", err)
		}
		if c.clock.Now().After(window.CloseUTC) {
			break
		}

		promoted, err := c.deliverBar(ctx, sessionDate, qb.Symbol, qb.Bar)
		if err != nil {
			if isFatal(err) {
				return err
			}
			logger.Warn("coordinator: deliver bar failed", logger.String("symbol", qb.Symbol), logger.ErrorField(err))
		}

		c.sm.CheckAndExecuteScans(ctx, c.clock.Now())
		// A scan's promotions land on the same SSS queue deliverBar drains;
		// apply any it added this tick through the same historical-load-then-
		// merge path so a scanner-promoted symbol is warmed identically to
		// one promoted by a direct management-plane add_symbol call.
		if scanPromoted := c.applyPendingPromotions(ctx, sessionDate); len(scanPromoted) > 0 {
			promoted = append(promoted, scanPromoted...)
		}
		if err := c.foldPromotedIntoQueue(ctx, queue, promoted, c.clock.Now(), window.CloseUTC); err != nil {
			logger.Warn("coordinator: fold promoted symbol into queue failed", logger.ErrorField(err))
		}
		c.reconcileQuality(quality, window.OpenUTC)
	}
	return nil
}

// paceClockDriven sleeps until wall-clock time catches up with the scaled
// schedule for virtualTarget, per spec.md §4.4/§4.5.2 step 3: in ClockDriven
// mode (backtest speed>0) virtual time may advance no faster than
// elapsed-wall-clock * speed. DataDriven (speed=0) callers never reach here.
func (c *Coordinator) paceClockDriven(ctx context.Context, realStart, virtualStart, virtualTarget time.Time) {
	scaled := time.Duration(float64(virtualTarget.Sub(virtualStart)) / c.cfg.Speed)
	wait := time.Until(realStart.Add(scaled))
	if wait <= 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-c.shutdown:
	}
}

// foldPromotedIntoQueue fetches the remaining-session 1-minute bars for each
// newly promoted symbol and merges them into the not-yet-drained queue
// (spec.md §8 scenario 3: a symbol promoted mid-session joins the
// chronological merge from its first bar after promotion).
func (c *Coordinator) foldPromotedIntoQueue(ctx context.Context, queue *sessionQueue, promoted []string, from, to time.Time) error {
	for _, sym := range promoted {
		bars, err := c.repo.FetchBars(ctx, sym, models.OneMinute, from, to)
		if err != nil {
			return fmt.Errorf("coordinator: fetch promoted symbol bars %s: %w", sym, err)
		}
		newBars := make([]queuedBar, 0, len(bars))
		for _, b := range bars {
			newBars = append(newBars, queuedBar{Symbol: sym, Bar: b})
		}
		queue.merge(newBars)
	}
	return nil
}

func (c *Coordinator) streamLive(ctx context.Context, sessionDate time.Time, window calendar.SessionWindow, quality *qualityTracker) error {
	if c.stream == nil {
		return fmt.Errorf("coordinator: live mode requires a configured LiveStream")
	}

	merged := make(chan queuedBar)
	subscribeSymbol := func(sym string) error {
		ch, err := c.stream.Subscribe(ctx, sym, models.OneMinute)
		if err != nil {
			return fmt.Errorf("coordinator: subscribe %s: %w", sym, err)
		}
		go func() {
			for bar := range ch {
				select {
				case merged <- queuedBar{Symbol: sym, Bar: bar}:
				case <-ctx.Done():
					return
				case <-c.shutdown:
					return
				}
			}
		}()
		return nil
	}

	for _, sym := range c.store.Symbols() {
		if err := subscribeSymbol(sym); err != nil {
			return err
		}
	}

	for {
		select {
		case <-c.shutdown:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case qb := <-merged:
			c.waitIfPaused()
			promoted, err := c.deliverBar(ctx, sessionDate, qb.Symbol, qb.Bar)
			if err != nil {
				if isFatal(err) {
					return err
				}
				logger.Warn("coordinator: deliver bar failed", logger.String("symbol", qb.Symbol), logger.ErrorField(err))
			}
			c.sm.CheckAndExecuteScans(ctx, c.clock.Now())
			promoted = append(promoted, c.applyPendingPromotions(ctx, sessionDate)...)
			for _, sym := range promoted {
				// Subscribe joins the feed from "now"; the live push stream
				// itself owns not replaying bars before subscription, same
				// as every other symbol's first Subscribe call.
				if err := subscribeSymbol(sym); err != nil {
					logger.Warn("coordinator: subscribe promoted symbol failed",
						logger.String("symbol", sym), logger.ErrorField(err))
				}
			}
			c.reconcileQuality(quality, window.OpenUTC)
			if c.clock.IsAfterClose() {
				return nil
			}
		}
	}
}

// reconcileQuality re-checks every (symbol, configured interval) pair
// against SSS's latest-bar view. Called once per delivered tick, this picks
// up both the just-appended 1-minute bar and any Generated bar the Data
// Processor rolled up synchronously in response to it.
func (c *Coordinator) reconcileQuality(quality *qualityTracker, sessionOpen time.Time) {
	for _, sym := range c.store.Symbols() {
		for _, interval := range c.cfg.Intervals {
			quality.observe(c.store, sym, interval, sessionOpen)
		}
	}
}

// deliverBar appends one streamed bar, applies any symbol promotions queued
// since the last tick, and drives the DP handshake. A promotion's historical
// load and indicator warmup run synchronously here — before the next bar
// advance — so the promoted symbol's indicators are ready by its first
// session bar (spec.md §8 scenario 3), rather than waiting for the next
// session's Phase 2. It returns the symbols newly promoted this tick so the
// caller can fold them into its own bar-delivery path (the backtest queue or
// the live subscription set).
func (c *Coordinator) deliverBar(ctx context.Context, sessionDate time.Time, symbol string, bar models.Bar) ([]string, error) {
	if err := c.store.AppendStreamedBar(symbol, models.OneMinute, bar); err != nil {
		return nil, err
	}

	promoted := c.applyPendingPromotions(ctx, sessionDate)

	if c.dp != nil {
		c.dp.SetCurrentSymbol(symbol)
		c.dp.BarReady.Signal()
		// Done's mode (DataDriven, ClockDriven, or Live) is fixed at
		// construction (cmd/sessiond wiring), so Wait already blocks
		// without a timeout in DataDriven and times out in ClockDriven/Live.
		// Only Reset on an actual completion — a ClockDriven timeout leaves
		// the gate armed for a later tick to pick up (spec.md §4.4: the
		// consumer skips the iteration, it never blocks the producer).
		if outcome := c.dp.Done.Wait(); outcome == subscription.Ready {
			c.dp.Done.Reset()
		}
	}
	return promoted, nil
}

// applyPendingPromotions drains every symbol promotion queued since the last
// call (from a direct add_symbol or a scanner's ScanResult) and, for each,
// registers it, loads its trailing-window history, and warms its declared
// indicators — all synchronously, before the next bar advance (spec.md §8
// scenario 3). Returns the symbols promoted this call.
func (c *Coordinator) applyPendingPromotions(ctx context.Context, sessionDate time.Time) []string {
	promotions := c.store.DrainPromotions()
	if len(promotions) == 0 {
		return nil
	}
	trailingDates := c.trailingWindowDates(sessionDate)
	var promoted []string
	for _, rec := range promotions {
		c.store.RegisterSymbol(rec.Symbol, models.SourceAdhoc)
		if err := c.seedSymbolHistory(ctx, rec.Symbol, trailingDates); err != nil {
			logger.Warn("coordinator: promoted symbol historical load failed",
				logger.String("symbol", rec.Symbol), logger.ErrorField(err))
			continue
		}
		c.warmIndicators([]string{rec.Symbol}, trailingDates)
		promoted = append(promoted, rec.Symbol)
	}
	return promoted
}

func isFatal(err error) bool {
	return errors.Is(err, models.ErrDataIntegrity) || errors.Is(err, models.ErrRepositoryUnavailable)
}

func (c *Coordinator) waitIfPaused() {
	for c.Paused() {
		select {
		case <-c.pauseGate:
		case <-c.shutdown:
			return
		}
	}
}

// phaseEndOfSession implements Phase 6: tear down scanners, log the
// MetricsRegistry report for the session and clear it, roll SSS into the
// next session (SSS itself clears active and session storage), and
// resolve the next trading day bounded by the configured holiday horizon
// (spec.md §4.5.3). The Data Processor is left running — it simply blocks
// on its next Wait() until the following session's Phase 5 signals it
// again.
func (c *Coordinator) phaseEndOfSession(sessionDate time.Time) (time.Time, error) {
	c.setPhase(PhaseEndOfSession)

	c.sm.OnSessionEnd(context.Background(), c.clock.Now())

	if c.metrics != nil {
		logger.Info("coordinator: session metrics report",
			logger.String("date", sessionDate.Format("2006-01-02")),
			logger.Any("metrics", c.metrics.Report()))
		c.metrics.Reset()
	}

	next, err := c.nextTradingDayBounded(sessionDate)
	if err != nil {
		return time.Time{}, err
	}

	c.store.RollSession(next)
	return next, nil
}

// nextTradingDayBounded walks forward day-by-day, bounded by
// HolidayHorizonDays, returning models.ErrNoNextTradingDay if no trading day
// is found within the horizon (spec.md §4.5.3). Neither Calendar nor
// TimeAuthority bound this search themselves, so the bound lives here.
func (c *Coordinator) nextTradingDayBounded(from time.Time) (time.Time, error) {
	d := from
	for i := 0; i < c.cfg.HolidayHorizonDays; i++ {
		d = d.AddDate(0, 0, 1)
		if c.cal.IsTradingDay(d) {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("coordinator: %w: no trading day within %d days of %s",
		models.ErrNoNextTradingDay, c.cfg.HolidayHorizonDays, from.Format("2006-01-02"))
}
