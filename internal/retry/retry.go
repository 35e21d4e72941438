// Package retry provides bounded exponential backoff for the one place
// SPEC_FULL.md's error taxonomy calls for local recovery: repository calls
// during Phase 2/3 (spec.md §4.5.5 — "retryable up to 3 attempts with
// exponential backoff; exhausting retries raises RepositoryUnavailable").
// Grounded on eddiefleurent/scranton_strangler's internal/retry.Client — the
// teacher repo has no retry package of its own, so this is the one piece of
// the orchestrator grounded on the wider example pack instead of the
// teacher, per SPEC_FULL.md §7.
package retry

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/mohamedkhairy/session-orchestrator/internal/models"
	"github.com/mohamedkhairy/session-orchestrator/pkg/logger"
)

// Config controls the backoff schedule.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig matches spec.md §4.5.5: 3 attempts, doubling backoff.
var DefaultConfig = Config{
	MaxRetries:     2,
	InitialBackoff: 200 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
}

// Do runs fn, retrying on error up to cfg.MaxRetries additional times with
// jittered exponential backoff. Returns models.ErrRepositoryUnavailable
// (wrapping the last error) once retries are exhausted. ctx cancellation
// aborts immediately, also surfacing as ErrRepositoryUnavailable since the
// caller's contract (spec.md §7) treats both as session-terminating.
func Do(ctx context.Context, cfg Config, label string, fn func(ctx context.Context) error) error {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultConfig.MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultConfig.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultConfig.MaxBackoff
	}

	backoff := cfg.InitialBackoff
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return wrapUnavailable(label, err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		logger.Warn("retry: attempt failed",
			logger.String("operation", label),
			logger.Int("attempt", attempt+1),
			logger.ErrorField(lastErr))

		if attempt == cfg.MaxRetries {
			break
		}
		select {
		case <-time.After(jitter(backoff)):
			backoff = nextBackoff(backoff, cfg.MaxBackoff)
		case <-ctx.Done():
			return wrapUnavailable(label, ctx.Err())
		}
	}
	return wrapUnavailable(label, lastErr)
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		next = max
	}
	return next
}

// jitter adds up to 25% random jitter to avoid synchronized retry storms.
func jitter(d time.Duration) time.Duration {
	maxJitter := int64(d / 4)
	if maxJitter <= 0 {
		return d
	}
	n, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
	if err != nil {
		return d
	}
	return d + time.Duration(n.Int64())
}

func wrapUnavailable(label string, cause error) error {
	if cause == nil {
		return models.ErrRepositoryUnavailable
	}
	return &unavailableError{label: label, cause: cause}
}

type unavailableError struct {
	label string
	cause error
}

func (e *unavailableError) Error() string {
	return "retry: " + e.label + " exhausted retries: " + e.cause.Error()
}

func (e *unavailableError) Unwrap() error {
	return models.ErrRepositoryUnavailable
}

func (e *unavailableError) Cause() error {
	return e.cause
}
