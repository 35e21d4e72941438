package sss

import (
	"fmt"
	"time"

	"github.com/mohamedkhairy/session-orchestrator/internal/models"
)

// appendBar is the shared validation+write path for AppendStreamedBar and
// AppendGeneratedBar. It enforces I1 (monotonic, aligned timestamps).
func (s *Store) appendBar(symbol string, interval models.Interval, bar models.Bar) error {
	if err := bar.Validate(); err != nil {
		return err
	}
	slot, ok := models.IntervalSlot(interval)
	if !ok {
		return fmt.Errorf("append bar %s %s: unsupported interval", symbol, interval)
	}
	e, ok := s.lookup(symbol)
	if !ok {
		return fmt.Errorf("append bar %s: %w", symbol, models.ErrInvalidSymbol)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if last, ok := e.sessionBars[slot].last(); ok {
		if !bar.Timestamp.After(last.Timestamp) {
			return fmt.Errorf("append bar %s %s: %w", symbol, interval, models.ErrOutOfOrder)
		}
	}
	if !bar.AlignedTo(interval) {
		return fmt.Errorf("append bar %s %s: %w", symbol, interval, models.ErrMisaligned)
	}

	e.sessionBars[slot].append(bar)
	e.latestBar[slot].Store(&bar)

	e.sessionVolume += bar.Volume
	if e.sessionHigh == 0 || bar.High > e.sessionHigh {
		e.sessionHigh = bar.High
	}
	if e.sessionLow == 0 || bar.Low < e.sessionLow {
		e.sessionLow = bar.Low
	}
	e.lastUpdate = bar.Timestamp
	return nil
}

// AppendStreamedBar appends a bar for an interval marked Streamed. The
// Session Coordinator is the only intended caller. Requires the session to
// be active (I6) and the interval to not be marked Generated (I5).
func (s *Store) AppendStreamedBar(symbol string, interval models.Interval, bar models.Bar) error {
	if !s.Active() {
		return fmt.Errorf("append streamed bar %s: session not active", symbol)
	}
	if kind, ok := s.GetStreamKind(interval); ok && kind == Generated {
		return fmt.Errorf("append streamed bar %s %s: %w", symbol, interval, models.ErrDataIntegrity)
	}
	return s.appendBar(symbol, interval, bar)
}

// AppendGeneratedBar appends a derived bar for an interval marked Generated.
// Only the Data Processor is the intended caller — this is the sole legal
// writer for Generated intervals (I5), enforced here by construction: there
// is no other append entry point that accepts a Generated interval's bars
// without this explicit call.
func (s *Store) AppendGeneratedBar(symbol string, interval models.Interval, bar models.Bar) error {
	return s.appendBar(symbol, interval, bar)
}

// GetLatestBar returns the most recently appended bar for (symbol, interval)
// via the lock-free atomic pointer cache.
func (s *Store) GetLatestBar(symbol string, interval models.Interval) (models.Bar, bool) {
	slot, ok := models.IntervalSlot(interval)
	if !ok {
		return models.Bar{}, false
	}
	e, ok := s.lookup(symbol)
	if !ok {
		return models.Bar{}, false
	}
	p := e.latestBar[slot].Load()
	if p == nil {
		return models.Bar{}, false
	}
	return *p, true
}

// GetLastNBars returns (a copy of) the last n session bars for (symbol, interval).
func (s *Store) GetLastNBars(symbol string, interval models.Interval, n int) []models.Bar {
	slot, ok := models.IntervalSlot(interval)
	if !ok {
		return nil
	}
	e, ok := s.lookup(symbol)
	if !ok {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessionBars[slot].lastN(n)
}

// GetBarsSince returns (a copy of) session bars for (symbol, interval) with
// timestamp >= t, via a reverse scan.
func (s *Store) GetBarsSince(symbol string, interval models.Interval, t time.Time) []models.Bar {
	slot, ok := models.IntervalSlot(interval)
	if !ok {
		return nil
	}
	e, ok := s.lookup(symbol)
	if !ok {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessionBars[slot].since(t)
}

// SetIndicator writes a computed indicator value for symbol. name should
// follow the "<kind>_<period>_<interval>" convention (spec.md §3).
func (s *Store) SetIndicator(symbol, name string, value float64) error {
	e, ok := s.lookup(symbol)
	if !ok {
		return fmt.Errorf("set indicator %s/%s: %w", symbol, name, models.ErrInvalidSymbol)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.indicators[name] = models.IndicatorValue{
		Value:      value,
		Valid:      true,
		LastUpdate: time.Now().UTC(),
	}
	return nil
}

// GetIndicator reads an indicator's weak-reference view. ok is false if the
// symbol or indicator name is unknown.
func (s *Store) GetIndicator(symbol, name string) (models.IndicatorValue, bool) {
	e, ok := s.lookup(symbol)
	if !ok {
		return models.IndicatorValue{}, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.indicators[name]
	return v, ok
}

// SetQuality writes the quality score for (symbol, interval), clamped to
// [0, 100] (I7).
func (s *Store) SetQuality(symbol string, interval models.Interval, pct float64) error {
	slot, ok := models.IntervalSlot(interval)
	if !ok {
		return fmt.Errorf("set quality %s %s: unsupported interval", symbol, interval)
	}
	e, ok := s.lookup(symbol)
	if !ok {
		return fmt.Errorf("set quality %s: %w", symbol, models.ErrInvalidSymbol)
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.quality[slot] = pct
	return nil
}

// GetQuality reads the quality score for (symbol, interval).
func (s *Store) GetQuality(symbol string, interval models.Interval) (float64, bool) {
	slot, ok := models.IntervalSlot(interval)
	if !ok {
		return 0, false
	}
	e, ok := s.lookup(symbol)
	if !ok {
		return 0, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.quality[slot], true
}
