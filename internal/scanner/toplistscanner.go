package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohamedkhairy/session-orchestrator/internal/models"
)

// ToplistScanner is a Scanner that ranks a candidate universe by a single
// SSS-resident metric (e.g. intraday percentage move) using a Redis ZSET,
// and promotes the top N movers. It builds on a ZRevRange ranking pattern,
// generalized from a persistent user-configurable toplist to a
// scanner-scoped ranking recomputed fresh on every scan.
type ToplistScanner struct {
	client    *redis.Client
	redisKey  string
	topN      int
	candidates []string
	interval  models.Interval
}

// NewToplistScanner builds a ToplistScanner ranking candidates by the
// percentage move of their latest bar on interval (close against that bar's
// open), keeping the topN highest movers in redisKey's ZSET.
func NewToplistScanner(client *redis.Client, redisKey string, topN int, candidates []string, interval models.Interval) *ToplistScanner {
	return &ToplistScanner{
		client:     client,
		redisKey:   redisKey,
		topN:       topN,
		candidates: candidates,
		interval:   interval,
	}
}

// Name implements Scanner.
func (s *ToplistScanner) Name() string { return "toplist_scanner" }

// Setup clears any stale ranking from a previous session.
func (s *ToplistScanner) Setup(ctx context.Context, sctx *ScanContext) error {
	if err := s.client.Del(ctx, s.redisKey).Err(); err != nil {
		return fmt.Errorf("toplist_scanner: clear %s: %w", s.redisKey, err)
	}
	return nil
}

// Scan recomputes each candidate's percentage move within its latest bar
// ((close-open)/open), writes the ranking into Redis as a ZSET, and
// promotes the top N symbols by score.
func (s *ToplistScanner) Scan(ctx context.Context, sctx *ScanContext) (ScanResult, error) {
	members := make([]redis.Z, 0, len(s.candidates))
	opens := make(map[string]float64, len(s.candidates))

	for _, symbol := range s.candidates {
		bar, ok := sctx.Store.GetLatestBar(symbol, s.interval)
		if !ok || bar.Open == 0 {
			continue
		}
		pctMove := (bar.Close - bar.Open) / bar.Open * 100
		members = append(members, redis.Z{Score: pctMove, Member: symbol})
		opens[symbol] = bar.Open
	}

	result := ScanResult{Metadata: map[string]interface{}{"ranked": len(members)}}
	if len(members) == 0 {
		return result, nil
	}

	if err := s.client.ZAdd(ctx, s.redisKey, members...).Err(); err != nil {
		return result, fmt.Errorf("toplist_scanner: zadd: %w", err)
	}
	s.client.Expire(ctx, s.redisKey, 24*time.Hour)

	top, err := s.client.ZRevRangeWithScores(ctx, s.redisKey, 0, int64(s.topN-1)).Result()
	if err != nil {
		return result, fmt.Errorf("toplist_scanner: zrevrange: %w", err)
	}

	for _, z := range top {
		symbol, ok := z.Member.(string)
		if !ok {
			continue
		}
		result.PromotedSymbols = append(result.PromotedSymbols, symbol)
	}
	result.Metadata["top_n"] = s.topN
	return result, nil
}

// Teardown leaves the ranking in Redis for post-session inspection; nothing
// to release here.
func (s *ToplistScanner) Teardown(ctx context.Context, sctx *ScanContext) error {
	return nil
}
