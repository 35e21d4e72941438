package sss

import (
	"sort"
	"time"

	"github.com/mohamedkhairy/session-orchestrator/internal/models"
)

const dateLayout = "2006-01-02"

// RollSession moves the current session's bars into historical_bars keyed by
// the current_date, keeps only the trailingDays most recent historical dates
// per interval (never fewer than one, so the rolled day itself survives a
// trailing window of 0) and evicts the older ones,
// clears session_bars and per-session metrics, and advances current_date to
// nextDate. Indicators' stored values are preserved but marked invalid,
// since a fresh session invalidates real-time outputs until the first bar of
// the new session recomputes them (spec.md §4.3).
func (s *Store) RollSession(nextDate time.Time) {
	s.mu.RLock()
	currentDate := s.currentDate
	symbols := make([]*symbolEntry, 0, len(s.symbols))
	for _, e := range s.symbols {
		symbols = append(symbols, e)
	}
	trailing := s.trailingDays
	s.mu.RUnlock()

	key := currentDate.Format(dateLayout)
	keep := trailing
	if keep < 1 {
		keep = 1
	}

	for _, e := range symbols {
		e.mu.Lock()
		for slot := range e.sessionBars {
			if len(e.sessionBars[slot].bars) > 0 {
				cp := make([]models.Bar, len(e.sessionBars[slot].bars))
				copy(cp, e.sessionBars[slot].bars)
				e.historicalBars[slot][key] = cp
			}
			e.sessionBars[slot] = ringBuffer{}
			e.latestBar[slot].Store(nil)
			e.quality[slot] = 0

			days := make([]string, 0, len(e.historicalBars[slot]))
			for day := range e.historicalBars[slot] {
				days = append(days, day)
			}
			sort.Strings(days) // dateLayout keys sort chronologically
			for i := 0; i+keep < len(days); i++ {
				delete(e.historicalBars[slot], days[i])
			}
		}
		for name, v := range e.indicators {
			v.Valid = false
			e.indicators[name] = v
		}
		e.sessionVolume = 0
		e.sessionHigh = 0
		e.sessionLow = 0
		e.lastUpdate = time.Time{}
		e.mu.Unlock()
	}

	s.mu.Lock()
	s.currentDate = nextDate
	s.active = false
	s.mu.Unlock()
}

// GetHistoricalBars returns (a copy of) the stored historical bars for
// (symbol, interval, date).
func (s *Store) GetHistoricalBars(symbol string, interval models.Interval, date time.Time) []models.Bar {
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
	bars, ok := e.historicalBars[slot][date.Format(dateLayout)]
	if !ok {
		return nil
	}
	out := make([]models.Bar, len(bars))
	copy(out, bars)
	return out
}

// SeedHistoricalBars loads bars for (symbol, interval, date) into historical
// storage — used by the Session Coordinator's Phase 2 historical management
// to populate trailing-window data from the HistoricalRepository.
func (s *Store) SeedHistoricalBars(symbol string, interval models.Interval, date time.Time, bars []models.Bar) error {
	slot, ok := models.IntervalSlot(interval)
	if !ok {
		return nil
	}
	e, ok := s.lookup(symbol)
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]models.Bar, len(bars))
	copy(cp, bars)
	e.historicalBars[slot][date.Format(dateLayout)] = cp
	return nil
}
