package coordinator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mohamedkhairy/session-orchestrator/internal/models"
)

// queuedBar is one entry in the session's merged streaming queue.
type queuedBar struct {
	Symbol string
	Bar    models.Bar
}

// sessionQueue holds the chronologically merged 1-minute bars for every
// effective symbol in a backtest session, ready for the streaming phase to
// drain in order.
type sessionQueue struct {
	bars []queuedBar
	pos  int
}

func (q *sessionQueue) next() (queuedBar, bool) {
	if q.pos >= len(q.bars) {
		return queuedBar{}, false
	}
	b := q.bars[q.pos]
	q.pos++
	return b, true
}

// merge folds newly-fetched bars (from a mid-session symbol promotion) into
// the not-yet-drained remainder of the queue, re-sorting by the same
// chronological-then-lexicographic rule buildSessionQueue uses, so a
// promoted symbol's bars interleave correctly with the rest of the session.
func (q *sessionQueue) merge(newBars []queuedBar) {
	if len(newBars) == 0 {
		return
	}
	remainder := append([]queuedBar(nil), q.bars[q.pos:]...)
	remainder = append(remainder, newBars...)
	sort.SliceStable(remainder, func(i, j int) bool {
		if !remainder[i].Bar.Timestamp.Equal(remainder[j].Bar.Timestamp) {
			return remainder[i].Bar.Timestamp.Before(remainder[j].Bar.Timestamp)
		}
		return remainder[i].Symbol < remainder[j].Symbol
	})
	q.bars = remainder
	q.pos = 0
}

// buildSessionQueue fetches each symbol's 1-minute bars for the session
// window from the historical repository and merges them into a single
// chronological stream, breaking timestamp ties by symbol lexicographic
// order (spec.md §5 ordering guarantee).
func buildSessionQueue(ctx context.Context, repo repositoryFetcher, symbols []string, window sessionWindow) (*sessionQueue, error) {
	all := make([]queuedBar, 0, len(symbols)*390)
	for _, sym := range symbols {
		bars, err := repo.FetchBars(ctx, sym, models.OneMinute, window.Open, window.Close)
		if err != nil {
			return nil, fmt.Errorf("coordinator: queue loading %s: %w", sym, err)
		}
		for _, b := range bars {
			all = append(all, queuedBar{Symbol: sym, Bar: b})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].Bar.Timestamp.Equal(all[j].Bar.Timestamp) {
			return all[i].Bar.Timestamp.Before(all[j].Bar.Timestamp)
		}
		return all[i].Symbol < all[j].Symbol
	})
	return &sessionQueue{bars: all}, nil
}

// sessionWindow is the [Open, Close) instants a backtest session streams
// bars across.
type sessionWindow struct {
	Open  time.Time
	Close time.Time
}

// repositoryFetcher is the narrow historicalrepo.Repository surface queue
// loading needs.
type repositoryFetcher interface {
	FetchBars(ctx context.Context, symbol string, interval models.Interval, startUTC, endUTC time.Time) ([]models.Bar, error)
}
