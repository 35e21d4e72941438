// Package metricsregistry implements the MetricsRegistry collaborator
// (spec.md §2): a running min/max/mean/count aggregator per event class
// (e.g. "bar_processing_latency_ms", "scan_duration_ms",
// "promotions_per_session"), drained into a session report at end-of-session
// (spec.md §4.5.2 phase 6).
//
// Builds on pkg/logger's promauto metrics idiom for the Prometheus-facing
// half (every recorded observation also lands in a Prometheus histogram so
// live dashboards see it immediately) plus a small hand-rolled in-memory
// aggregator for the exact running min/max/mean/count values the end-of-
// session report needs verbatim.
package metricsregistry

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var observationHistogram = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "session_orchestrator_event_value",
		Help:    "Recorded values by event class, for Prometheus-side dashboards.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"event_class"},
)

// Stats is a point-in-time snapshot of one event class's running statistics.
type Stats struct {
	Count int64
	Min   float64
	Max   float64
	Mean  float64
	Sum   float64
}

type classState struct {
	count int64
	min   float64
	max   float64
	sum   float64
}

// Registry accumulates running statistics per event class. Safe for
// concurrent use: observations arrive through the Data Processor
// subscription's overrun/timeout hooks, from both the coordinator's and the
// data processor's goroutines.
type Registry struct {
	mu      sync.Mutex
	classes map[string]*classState
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{classes: make(map[string]*classState)}
}

// Record folds value into event class's running min/max/mean/count and
// observes it on the Prometheus histogram for that class.
func (r *Registry) Record(eventClass string, value float64) {
	r.mu.Lock()
	st, ok := r.classes[eventClass]
	if !ok {
		st = &classState{min: value, max: value}
		r.classes[eventClass] = st
	}
	st.count++
	st.sum += value
	if value < st.min {
		st.min = value
	}
	if value > st.max {
		st.max = value
	}
	r.mu.Unlock()

	observationHistogram.WithLabelValues(eventClass).Observe(value)
}

// Get returns the current Stats for eventClass, or false if nothing has been
// recorded under it yet.
func (r *Registry) Get(eventClass string) (Stats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.classes[eventClass]
	if !ok {
		return Stats{}, false
	}
	return toStats(st), true
}

// Report returns a full snapshot of every event class recorded so far, keyed
// by event class name, suitable for inclusion verbatim in an end-of-session
// report (spec.md §4.5.2 phase 6).
func (r *Registry) Report() map[string]Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Stats, len(r.classes))
	for class, st := range r.classes {
		out[class] = toStats(st)
	}
	return out
}

// Classes returns the sorted list of event classes recorded so far.
func (r *Registry) Classes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.classes))
	for class := range r.classes {
		out = append(out, class)
	}
	sort.Strings(out)
	return out
}

// Reset clears all recorded statistics. The Session Coordinator calls it
// after logging each session's Phase 6 report.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes = make(map[string]*classState)
}

func toStats(st *classState) Stats {
	mean := 0.0
	if st.count > 0 {
		mean = st.sum / float64(st.count)
	}
	return Stats{Count: st.count, Min: st.min, Max: st.max, Mean: mean, Sum: st.sum}
}
