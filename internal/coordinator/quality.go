package coordinator

import (
	"sync"
	"time"

	"github.com/mohamedkhairy/session-orchestrator/internal/models"
	"github.com/mohamedkhairy/session-orchestrator/internal/sss"
)

// qualityKey identifies one (symbol, interval) quality track.
type qualityKey struct {
	symbol   string
	interval models.Interval
}

type qualityState struct {
	received     int64
	sinceLastPub int
	lastBarEnd   time.Time
}

// qualityTracker implements spec.md §4.5.4: expected bar count is derived
// from elapsed trading seconds divided by the interval's duration, quality
// is 100 * received/expected clamped to [0, 100], and it's only written back
// to SSS every samplePeriod appended bars, so quality reads stay cheap for
// hot-path consumers during streaming. One instance covers every
// (symbol, interval) pair in the session, Streamed and Generated alike:
// observe is driven off SSS's latest-bar view rather than a per-write hook,
// so a single reconciliation pass after each clock tick catches 1-minute
// bars (appended directly) and rolled-up bars (appended by the Data
// Processor) uniformly.
type qualityTracker struct {
	mu           sync.Mutex
	states       map[qualityKey]*qualityState
	samplePeriod int
}

func newQualityTracker(samplePeriod int) *qualityTracker {
	if samplePeriod <= 0 {
		samplePeriod = 10
	}
	return &qualityTracker{states: make(map[qualityKey]*qualityState), samplePeriod: samplePeriod}
}

// observe checks whether a newer bar than last seen has landed in store for
// (symbol, interval) and, if so, counts it and — every samplePeriod bars —
// recomputes and publishes quality. sessionOpen anchors the elapsed-time
// calculation for the expected-bar count.
func (q *qualityTracker) observe(store *sss.Store, symbol string, interval models.Interval, sessionOpen time.Time) {
	latest, ok := store.GetLatestBar(symbol, interval)
	if !ok {
		return
	}
	barEnd := latest.IntervalEnd()
	key := qualityKey{symbol: symbol, interval: interval}

	q.mu.Lock()
	st, ok := q.states[key]
	if !ok {
		st = &qualityState{}
		q.states[key] = st
	}
	if !barEnd.After(st.lastBarEnd) {
		q.mu.Unlock()
		return
	}
	st.lastBarEnd = barEnd
	st.received++
	st.sinceLastPub++
	due := st.sinceLastPub >= q.samplePeriod
	if due {
		st.sinceLastPub = 0
	}
	received := st.received
	q.mu.Unlock()

	if !due {
		return
	}

	var intervalSeconds float64
	if interval.IsDaily {
		intervalSeconds = (24 * time.Hour).Seconds()
	} else {
		intervalSeconds = interval.Duration().Seconds()
	}
	elapsed := barEnd.Sub(sessionOpen).Seconds()
	if elapsed < 0 || intervalSeconds <= 0 {
		return
	}
	expected := int64(elapsed / intervalSeconds)
	if expected <= 0 {
		return
	}

	pct := 100 * float64(received) / float64(expected)
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	_ = store.SetQuality(symbol, interval, pct)
}

// reset clears all tracked state.
func (q *qualityTracker) reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.states = make(map[qualityKey]*qualityState)
}
