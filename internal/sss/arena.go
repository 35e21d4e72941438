package sss

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mohamedkhairy/session-orchestrator/internal/models"
)

// symbolEntry is the SymbolArena's per-symbol slot: one instance per
// registered symbol, addressed by the Store's symbols map and guarded by its
// own reader-writer lock (taken only after, never before, the Store's global
// lock — see Store's doc comment). This replaces an unbounded
// map<symbol, map<interval, list<Bar>>> with a single allocation per symbol
// holding a small fixed-width slice per interval slot, per the
// "arena + index" redesign.
type symbolEntry struct {
	mu sync.RWMutex

	symbol string
	source models.SymbolSource

	lockReasons map[string]struct{}

	sessionBars    []ringBuffer        // indexed by models.IntervalSlot
	historicalBars []map[string][]models.Bar // indexed by slot, keyed by date "2006-01-02"

	indicators map[string]models.IndicatorValue
	quality    []float64 // indexed by slot

	latestBar []atomic.Pointer[models.Bar] // indexed by slot, lock-free read path

	sessionVolume int64
	sessionHigh   float64
	sessionLow    float64
	lastUpdate    time.Time
}

// ringBuffer is an append-only, timestamp-ordered run of bars for one
// (symbol, interval) within the current session. It is not a true circular
// buffer — bars are retained for the whole session and cleared wholesale at
// roll_session, in the spirit of a rolling-window bar container: bounded
// growth via periodic reset rather than unbounded accumulation across
// sessions.
type ringBuffer struct {
	bars []models.Bar
}

func (r *ringBuffer) append(b models.Bar) {
	r.bars = append(r.bars, b)
}

func (r *ringBuffer) last() (models.Bar, bool) {
	if len(r.bars) == 0 {
		return models.Bar{}, false
	}
	return r.bars[len(r.bars)-1], true
}

func (r *ringBuffer) lastN(n int) []models.Bar {
	if n <= 0 || len(r.bars) == 0 {
		return nil
	}
	start := len(r.bars) - n
	if start < 0 {
		start = 0
	}
	out := make([]models.Bar, len(r.bars)-start)
	copy(out, r.bars[start:])
	return out
}

func (r *ringBuffer) since(t time.Time) []models.Bar {
	// Reverse-scan, per spec.md §4.3, until bar.timestamp < t.
	idx := len(r.bars)
	for idx > 0 && !r.bars[idx-1].Timestamp.Before(t) {
		idx--
	}
	out := make([]models.Bar, len(r.bars)-idx)
	copy(out, r.bars[idx:])
	return out
}

func newSymbolEntry(symbol string, source models.SymbolSource) *symbolEntry {
	e := &symbolEntry{
		symbol:         symbol,
		source:         source,
		lockReasons:    make(map[string]struct{}),
		sessionBars:    make([]ringBuffer, models.NumSlots),
		historicalBars: make([]map[string][]models.Bar, models.NumSlots),
		indicators:     make(map[string]models.IndicatorValue),
		quality:        make([]float64, models.NumSlots),
		latestBar:      make([]atomic.Pointer[models.Bar], models.NumSlots),
	}
	for i := range e.historicalBars {
		e.historicalBars[i] = make(map[string][]models.Bar)
	}
	return e
}

// locked reports whether any lock reason is currently held (I2).
func (e *symbolEntry) locked() bool {
	return len(e.lockReasons) > 0
}
