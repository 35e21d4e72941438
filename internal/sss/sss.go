// Package sss implements the Session State Store: the single in-memory
// source of truth for bars, indicators, quality scores, and symbol
// registration (spec.md §4.3). It generalizes a per-worker, map-of-maps
// symbol state (pkg/indicator.SymbolState, a single Bar1m type) into one
// arena-backed store shared by the whole orchestrator.
//
// Concurrency discipline: a global reader-writer lock guards the symbols
// map, config_symbols, active, current_date and stream_kind; a per-symbol
// reader-writer lock guards everything inside a symbolEntry. The global
// lock is always acquired before a per-symbol lock, never the reverse, so
// the two can never deadlock against each other. Per-symbol operations take
// the global lock only long enough to look up the entry pointer (a cheap
// RLock), then release it before taking the per-symbol lock — neither
// thread ever holds a guard across a suspension point, per spec.md §5.
package sss

import (
	"fmt"
	"sync"
	"time"

	"github.com/mohamedkhairy/session-orchestrator/internal/models"
)

// StreamKind classifies how an interval's bars reach SSS for the session.
type StreamKind int

const (
	Ignored StreamKind = iota
	Streamed
	Generated
)

// RegisterOutcome is returned by RegisterSymbol/AddSymbol to distinguish a
// fresh insert from a no-op on an already-registered symbol (I3).
type RegisterOutcome int

const (
	Inserted RegisterOutcome = iota
	AlreadyPresent
)

// Store is the Session State Store. Construct with New; the zero value is
// not usable.
type Store struct {
	mu            sync.RWMutex
	symbols       map[string]*symbolEntry
	configSymbols map[string]struct{}
	active        bool
	currentDate   time.Time
	streamKind    map[models.Interval]StreamKind

	trailingDays int

	promMu      sync.Mutex
	promotions  []models.PromotionRecord
	promCap     int
	promDropped int64
}

// New creates an empty Store. trailingDays bounds historical_bars retention
// (roll_session keeps the trailingDays most recent dates per interval, at
// least the rolled day, and evicts older ones).
// promotionQueueCap bounds the add_symbol promotion backlog; once full,
// further promotions for symbols not already queued are dropped and counted
// (visible via PromotionsDropped) rather than blocking the caller — add_symbol
// must be safe to call from inside a scan (spec.md §4.3).
func New(trailingDays, promotionQueueCap int) *Store {
	return &Store{
		symbols:       make(map[string]*symbolEntry),
		configSymbols: make(map[string]struct{}),
		streamKind:    make(map[models.Interval]StreamKind),
		trailingDays:  trailingDays,
		promCap:       promotionQueueCap,
	}
}

// lookup returns the symbol's entry under a brief global read lock.
func (s *Store) lookup(symbol string) (*symbolEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.symbols[symbol]
	return e, ok
}

// RegisterSymbol ensures a SymbolState exists for symbol. Idempotent.
func (s *Store) RegisterSymbol(symbol string, source models.SymbolSource) RegisterOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.symbols[symbol]; ok {
		return AlreadyPresent
	}
	s.symbols[symbol] = newSymbolEntry(symbol, source)
	return Inserted
}

// AddSymbol performs full-data registration (spec.md §4.3): it ensures
// registration, adds symbol to config_symbols, and enqueues a promotion
// record for the Session Coordinator to load historical bars and register
// indicators. Idempotent (I3): a symbol already in config_symbols with an
// existing entry is a no-op beyond returning AlreadyPresent — no duplicate
// promotion record is queued for it.
func (s *Store) AddSymbol(symbol string) RegisterOutcome {
	s.mu.Lock()
	_, existed := s.symbols[symbol]
	if !existed {
		s.symbols[symbol] = newSymbolEntry(symbol, models.SourceAdhoc)
	}
	_, alreadyConfig := s.configSymbols[symbol]
	s.configSymbols[symbol] = struct{}{}
	s.mu.Unlock()

	if existed && alreadyConfig {
		return AlreadyPresent
	}
	s.enqueuePromotion(symbol)
	return Inserted
}

func (s *Store) enqueuePromotion(symbol string) {
	s.promMu.Lock()
	defer s.promMu.Unlock()
	if s.promCap > 0 && len(s.promotions) >= s.promCap {
		s.promDropped++
		return
	}
	s.promotions = append(s.promotions, models.PromotionRecord{
		Symbol:    symbol,
		Requested: time.Now().UTC(),
	})
}

// DrainPromotions returns and clears all queued promotion records. Called by
// the Session Coordinator; safe for concurrent callers (a second drain racing
// the first simply sees an empty queue).
func (s *Store) DrainPromotions() []models.PromotionRecord {
	s.promMu.Lock()
	defer s.promMu.Unlock()
	out := s.promotions
	s.promotions = nil
	return out
}

// PromotionsDropped reports how many add_symbol calls were dropped because
// the promotion queue was full.
func (s *Store) PromotionsDropped() int64 {
	s.promMu.Lock()
	defer s.promMu.Unlock()
	return s.promDropped
}

// RemoveSymbol removes symbol and all its storage. Succeeds only when
// lock_reasons is empty and source is Adhoc (I2).
func (s *Store) RemoveSymbol(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.symbols[symbol]
	if !ok {
		return nil // nothing to remove; treated as success, matching idempotent semantics
	}

	e.mu.RLock()
	locked := e.locked()
	source := e.source
	e.mu.RUnlock()

	if locked {
		return fmt.Errorf("remove symbol %s: %w", symbol, models.ErrLocked)
	}
	if source != models.SourceAdhoc {
		return fmt.Errorf("remove symbol %s: %w", symbol, models.ErrConfigSymbol)
	}

	delete(s.symbols, symbol)
	delete(s.configSymbols, symbol)
	return nil
}

// LockSymbol adds reason to the symbol's lock-reason set. Multi-reason: the
// symbol stays locked while any reason remains.
func (s *Store) LockSymbol(symbol, reason string) error {
	e, ok := s.lookup(symbol)
	if !ok {
		return fmt.Errorf("lock symbol %s: %w", symbol, models.ErrInvalidSymbol)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lockReasons[reason] = struct{}{}
	return nil
}

// UnlockSymbol removes reason from the symbol's lock-reason set.
func (s *Store) UnlockSymbol(symbol, reason string) error {
	e, ok := s.lookup(symbol)
	if !ok {
		return fmt.Errorf("unlock symbol %s: %w", symbol, models.ErrInvalidSymbol)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.lockReasons, reason)
	return nil
}

// IsLocked reports whether symbol currently has any lock reason held.
func (s *Store) IsLocked(symbol string) bool {
	e, ok := s.lookup(symbol)
	if !ok {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.locked()
}

// SetActive flips the session-wide active flag (I6); only the Session
// Coordinator should call this, between Phase 4 and Phase 6.
func (s *Store) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

// Active reports the session-wide active flag.
func (s *Store) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SetCurrentDate records the session date in progress (Phase 1).
func (s *Store) SetCurrentDate(date time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentDate = date
}

// CurrentDate returns the session date in progress.
func (s *Store) CurrentDate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentDate
}

// SetStreamKind assigns the Stream/Generate marking for an interval
// (spec.md §4.5.1). Immutable for the session once Phase 1 has run; callers
// are expected to call this only during Phase 1.
func (s *Store) SetStreamKind(interval models.Interval, kind StreamKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamKind[interval] = kind
}

// GetStreamKind returns the interval's Stream/Generate marking.
func (s *Store) GetStreamKind(interval models.Interval) (StreamKind, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.streamKind[interval]
	return k, ok
}

// ConfigSymbols returns a snapshot of the config_symbols set.
func (s *Store) ConfigSymbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.configSymbols))
	for sym := range s.configSymbols {
		out = append(out, sym)
	}
	return out
}

// Symbols returns a snapshot of every registered symbol.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	return out
}
