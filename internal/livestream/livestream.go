// Package livestream implements the LiveStream collaborator consumed by the
// Session Coordinator in live mode (spec.md §6.3): an asynchronous push of
// Bar events addressed by (symbol, interval), delivered in non-decreasing
// per-(symbol,interval) timestamp order — out-of-order events are dropped
// with a warning, never delivered.
//
// Builds on a Redis Streams consumer-group pattern (XReadGroup with a block
// timeout), generalized from a single tick stream into one Redis stream per
// symbol, with bars for every interval the upstream API pushes multiplexed
// onto it and demultiplexed here by the Interval field, per SPEC_FULL.md
// §2's go-redis/v9 wiring for live mode.
package livestream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohamedkhairy/session-orchestrator/internal/models"
	"github.com/mohamedkhairy/session-orchestrator/pkg/logger"
)

// Stream is the LiveStream contract: subscribe to push bars for a single
// (symbol, interval) pair.
type Stream interface {
	Subscribe(ctx context.Context, symbol string, interval models.Interval) (<-chan models.Bar, error)
	Close() error
}

// RedisConfig mirrors config.RedisConfig's shape.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// wireBar is the JSON envelope published to the Redis stream by the external
// ingestion collaborator (out of scope here, per spec.md §1) — one message
// per bar, tagged with its interval so one stream can multiplex every
// interval the upstream API supports pushing.
type wireBar struct {
	Symbol   string  `json:"symbol"`
	Interval string  `json:"interval"`
	Ts       int64   `json:"ts"` // unix seconds, UTC
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   int64   `json:"volume"`
}

// RedisStream subscribes to per-symbol Redis streams ("bars.live.<symbol>")
// and demultiplexes bars by interval to per-(symbol,interval) channels.
type RedisStream struct {
	client        *redis.Client
	consumerGroup string
	consumerName  string
	blockTime     time.Duration

	mu       sync.Mutex
	watchers map[string]map[string]chan models.Bar // symbol -> interval string -> chan
	lastSeen map[string]map[string]time.Time       // symbol -> interval string -> last delivered timestamp

	cancelFns []context.CancelFunc
}

// NewRedisStream creates a RedisStream. consumerGroup/consumerName identify
// this coordinator instance in Redis's consumer-group bookkeeping.
func NewRedisStream(cfg RedisConfig, consumerGroup, consumerName string) (*RedisStream, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("livestream: connect to redis: %w", err)
	}

	return &RedisStream{
		client:        client,
		consumerGroup: consumerGroup,
		consumerName:  consumerName,
		blockTime:     1 * time.Second,
		watchers:      make(map[string]map[string]chan models.Bar),
		lastSeen:      make(map[string]map[string]time.Time),
	}, nil
}

// Subscribe returns a channel of bars for (symbol, interval), starting a
// consumer goroutine against "bars.live.<symbol>" on first subscription to
// that symbol. Delivery is in non-decreasing timestamp order per
// (symbol,interval): an event whose timestamp does not exceed the last one
// delivered for that pair is dropped with a warning (spec.md §6.3), never
// forwarded.
func (s *RedisStream) Subscribe(ctx context.Context, symbol string, interval models.Interval) (<-chan models.Bar, error) {
	streamKey := "bars.live." + symbol
	if err := s.ensureGroup(ctx, streamKey); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.watchers[symbol] == nil {
		s.watchers[symbol] = make(map[string]chan models.Bar)
		s.lastSeen[symbol] = make(map[string]time.Time)
	}
	firstForSymbol := len(s.watchers[symbol]) == 0
	ch := make(chan models.Bar, 256)
	s.watchers[symbol][interval.String()] = ch
	s.mu.Unlock()

	if firstForSymbol {
		consumeCtx, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.cancelFns = append(s.cancelFns, cancel)
		s.mu.Unlock()
		go s.consume(consumeCtx, symbol, streamKey)
	}
	return ch, nil
}

func (s *RedisStream) ensureGroup(ctx context.Context, streamKey string) error {
	err := s.client.XGroupCreateMkStream(ctx, streamKey, s.consumerGroup, "$").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("livestream: create consumer group for %s: %w", streamKey, err)
	}
	return nil
}

func (s *RedisStream) consume(ctx context.Context, symbol, streamKey string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.consumerGroup,
			Consumer: s.consumerName,
			Streams:  []string{streamKey, ">"},
			Block:    s.blockTime,
			Count:    100,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			logger.Warn("livestream: read error", logger.String("stream", streamKey), logger.ErrorField(err))
			continue
		}

		for _, streamRes := range res {
			for _, msg := range streamRes.Messages {
				s.dispatch(symbol, msg)
				s.client.XAck(ctx, streamKey, s.consumerGroup, msg.ID)
			}
		}
	}
}

func (s *RedisStream) dispatch(symbol string, msg redis.XMessage) {
	raw, ok := msg.Values["bar"]
	if !ok {
		return
	}
	str, ok := raw.(string)
	if !ok {
		return
	}
	var wb wireBar
	if err := json.Unmarshal([]byte(str), &wb); err != nil {
		logger.Warn("livestream: malformed bar payload", logger.String("symbol", symbol), logger.ErrorField(err))
		return
	}

	interval, err := parseInterval(wb.Interval)
	if err != nil {
		logger.Warn("livestream: unknown interval, dropping", logger.String("symbol", symbol), logger.String("interval", wb.Interval))
		return
	}

	bar := models.Bar{
		Symbol:    symbol,
		Timestamp: time.Unix(wb.Ts, 0).UTC(),
		Interval:  interval,
		Open:      wb.Open,
		High:      wb.High,
		Low:       wb.Low,
		Close:     wb.Close,
		Volume:    wb.Volume,
	}

	s.mu.Lock()
	last, seen := s.lastSeen[symbol][interval.String()]
	ch, hasWatcher := s.watchers[symbol][interval.String()]
	if !seen || bar.Timestamp.After(last) {
		s.lastSeen[symbol][interval.String()] = bar.Timestamp
	} else {
		s.mu.Unlock()
		logger.Warn("livestream: out-of-order bar dropped",
			logger.String("symbol", symbol),
			logger.String("interval", interval.String()),
			logger.Time("bar_ts", bar.Timestamp),
			logger.Time("last_ts", last))
		return
	}
	s.mu.Unlock()

	if hasWatcher {
		select {
		case ch <- bar:
		default:
			logger.Warn("livestream: watcher channel full, dropping bar",
				logger.String("symbol", symbol), logger.String("interval", interval.String()))
		}
	}
}

func parseInterval(s string) (models.Interval, error) {
	if s == "1d" {
		return models.Daily, nil
	}
	if len(s) < 2 || s[len(s)-1] != 'm' {
		return models.Interval{}, fmt.Errorf("livestream: bad interval %q", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return models.Interval{}, fmt.Errorf("livestream: bad interval %q: %w", s, err)
	}
	return models.NewIntradayInterval(n), nil
}

// Close stops all consumer goroutines and closes the Redis client.
func (s *RedisStream) Close() error {
	s.mu.Lock()
	for _, cancel := range s.cancelFns {
		cancel()
	}
	s.mu.Unlock()
	return s.client.Close()
}
