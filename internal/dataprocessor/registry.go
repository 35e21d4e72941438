// Package dataprocessor implements the Data Processor (DP): the single
// long-running thread that rolls Streamed 1-minute bars into Generated
// coarser-interval bars and recomputes attached indicators, per
// SPEC_FULL.md §4.6. Builds on a CalculatorFactory + per-symbol SymbolState
// pattern and pkg/indicator.
package dataprocessor

import (
	"fmt"
	"sync"

	"github.com/mohamedkhairy/session-orchestrator/internal/models"
	"github.com/mohamedkhairy/session-orchestrator/pkg/indicator"
)

// Attachment binds a single indicator calculator to the (symbol, interval)
// whose closed bars feed it.
type Attachment struct {
	Handle   int
	Symbol   string
	Interval models.Interval
	Name     string // SSS indicator name, e.g. "sma_20_1m"
	Calc     indicator.Calculator
}

// IndicatorRegistry interns indicator attachments to integer handles, the
// way a calculator-factory registry interns names by string — generalized
// here to key by handle rather than string on DP's hot per-bar dispatch path
// (SPEC_FULL.md §4 "4.6a DP indicator wiring").
type IndicatorRegistry struct {
	mu         sync.RWMutex
	nextHandle int
	bySymbol   map[string][]*Attachment
	byHandle   map[int]*Attachment
}

// NewIndicatorRegistry creates an empty registry.
func NewIndicatorRegistry() *IndicatorRegistry {
	return &IndicatorRegistry{
		bySymbol: make(map[string][]*Attachment),
		byHandle: make(map[int]*Attachment),
	}
}

// Attach registers calc against (symbol, interval) under SSS indicator name
// name, returning its handle. The same calculator instance must not be
// shared across symbols — one calculator per (symbol, interval, name).
func (r *IndicatorRegistry) Attach(symbol string, interval models.Interval, name string, calc indicator.Calculator) (int, error) {
	if calc == nil {
		return 0, fmt.Errorf("dataprocessor: attach %s/%s: calculator is nil", symbol, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	handle := r.nextHandle
	r.nextHandle++
	a := &Attachment{Handle: handle, Symbol: symbol, Interval: interval, Name: name, Calc: calc}
	r.bySymbol[symbol] = append(r.bySymbol[symbol], a)
	r.byHandle[handle] = a
	return handle, nil
}

// Detach removes the attachment for handle. A no-op if unknown.
func (r *IndicatorRegistry) Detach(handle int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byHandle[handle]
	if !ok {
		return
	}
	delete(r.byHandle, handle)
	list := r.bySymbol[a.Symbol]
	for i, cand := range list {
		if cand.Handle == handle {
			r.bySymbol[a.Symbol] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// ForSymbolInterval returns the attachments for symbol whose input interval
// equals interval — the set DP recomputes when a bar of that interval
// closes.
func (r *IndicatorRegistry) ForSymbolInterval(symbol string, interval models.Interval) []*Attachment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Attachment
	for _, a := range r.bySymbol[symbol] {
		if a.Interval.Equal(interval) {
			out = append(out, a)
		}
	}
	return out
}
