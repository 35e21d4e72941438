package dataprocessor

import (
	"context"
	"sync"
	"time"

	"github.com/mohamedkhairy/session-orchestrator/internal/models"
	"github.com/mohamedkhairy/session-orchestrator/internal/subscription"
	"github.com/mohamedkhairy/session-orchestrator/pkg/logger"
)

// Store is the subset of *sss.Store the Data Processor depends on — kept
// narrow so tests can substitute a fake without pulling in the whole store.
type Store interface {
	GetLatestBar(symbol string, interval models.Interval) (models.Bar, bool)
	GetBarsSince(symbol string, interval models.Interval, t time.Time) []models.Bar
	AppendGeneratedBar(symbol string, interval models.Interval, bar models.Bar) error
	SetIndicator(symbol, name string, value float64) error
}

// DataProcessor is the single long-running thread that rolls Streamed
// 1-minute bars into every Generated interval and recomputes attached
// indicators (SPEC_FULL.md §4.6). One instance serves every session of the
// run: the Session Coordinator starts it once, and it blocks on BarReady
// between sessions.
type DataProcessor struct {
	store     Store
	registry  *IndicatorRegistry
	generated []models.Interval

	// BarReady is signaled by the Session Coordinator once it has appended
	// the current symbol's 1-minute bar; Done is signaled by DP once it has
	// finished processing that bar, letting SC proceed in DataDriven mode.
	BarReady *subscription.Subscription
	Done     *subscription.Subscription
	// Analysis is signaled after every processed bar for the external
	// analysis-engine consumer (internal/analysisfeed); nil-safe.
	Analysis *subscription.Subscription

	mu      sync.Mutex
	current string // the symbol SC is currently advancing
}

// New creates a DataProcessor. generated lists every interval marked
// Generated for the session (SPEC_FULL.md §4.5.1); store.AppendGeneratedBar
// is this component's only legal write path into SSS for those intervals
// (invariant I5).
func New(store Store, registry *IndicatorRegistry, generated []models.Interval, barReady, done, analysis *subscription.Subscription) *DataProcessor {
	return &DataProcessor{
		store:     store,
		registry:  registry,
		generated: generated,
		BarReady:  barReady,
		Done:      done,
		Analysis:  analysis,
	}
}

// SetCurrentSymbol records which symbol SC is about to advance. Must be
// called before BarReady.Signal() for that cycle.
func (d *DataProcessor) SetCurrentSymbol(symbol string) {
	d.mu.Lock()
	d.current = symbol
	d.mu.Unlock()
}

func (d *DataProcessor) currentSymbol() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Run is DP's main loop: wait for SC's signal, process one bar, signal
// completion, reset the gate for the next cycle. Returns when ctx is
// cancelled or BarReady is Cancelled. DP does no I/O and never blocks on
// anything but the subscription primitive (SPEC_FULL.md §4.6), so in
// DataDriven mode SC's wait is bounded purely by DP's compute time on one
// bar.
func (d *DataProcessor) Run(ctx context.Context) {
	for {
		outcome := d.BarReady.Wait()
		if outcome == subscription.Cancelled {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		symbol := d.currentSymbol()
		if symbol != "" {
			d.ProcessSymbol(symbol)
		}

		if d.Analysis != nil {
			d.Analysis.Signal()
		}
		if d.Done != nil {
			d.Done.Signal()
		}
		d.BarReady.Reset()
	}
}

// ProcessSymbol performs one wake's worth of work for symbol: rolling any
// Generated interval whose bucket the latest 1-minute bar just closed, then
// recomputing every indicator attached to an interval that updated.
func (d *DataProcessor) ProcessSymbol(symbol string) {
	oneMin, ok := d.store.GetLatestBar(symbol, models.OneMinute)
	if !ok {
		return
	}

	updated := []models.Interval{models.OneMinute}

	for _, interval := range d.generated {
		if !closesBucket(oneMin, interval) {
			continue
		}
		bucketStart := oneMin.IntervalEnd()
		if interval.IsDaily {
			bucketStart = bucketStart.AddDate(0, 0, -1)
		} else {
			bucketStart = bucketStart.Add(-interval.Duration())
		}
		members := d.store.GetBarsSince(symbol, models.OneMinute, bucketStart)
		derived, ok := rollBucket(symbol, interval, members, oneMin)
		if !ok {
			continue
		}
		if err := d.store.AppendGeneratedBar(symbol, interval, derived); err != nil {
			logger.Warn("dataprocessor: failed to append generated bar",
				logger.String("symbol", symbol),
				logger.String("interval", interval.String()),
				logger.ErrorField(err))
			continue
		}
		updated = append(updated, interval)
	}

	for _, interval := range updated {
		for _, att := range d.registry.ForSymbolInterval(symbol, interval) {
			bar := oneMin
			if !interval.Equal(models.OneMinute) {
				b, ok := d.store.GetLatestBar(symbol, interval)
				if !ok {
					continue
				}
				bar = b
			}
			value, err := att.Calc.Update(&bar)
			if err != nil || !att.Calc.IsReady() {
				continue
			}
			if err := d.store.SetIndicator(symbol, att.Name, value); err != nil {
				logger.Warn("dataprocessor: failed to set indicator",
					logger.String("symbol", symbol),
					logger.String("indicator", att.Name),
					logger.ErrorField(err))
			}
		}
	}
}
