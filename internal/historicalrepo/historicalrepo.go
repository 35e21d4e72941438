// Package historicalrepo implements the HistoricalRepository collaborator
// consumed by the Session Coordinator's Phase 2/3 (spec.md §6.2): querying
// persisted bars by (symbol, interval, [start,end)). The core only ever
// reads from it. Builds on a TimescaleDB-backed client pattern (lib/pq
// connection string, sql.DB, prometheus write/read metrics), generalized
// from a single hardcoded bars_1m table to one table per supported interval,
// selected by a closed switch (never formatted from untrusted input) per
// SPEC_FULL.md §2's domain-stack wiring for lib/pq.
package historicalrepo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohamedkhairy/session-orchestrator/internal/models"
	"github.com/mohamedkhairy/session-orchestrator/internal/retry"
)

// Repository is the HistoricalRepository contract from spec.md §6.2.
// fetch_bars must return bars in ascending timestamp order, aligned to the
// requested interval's boundaries. It may return fewer bars than expected —
// gap handling is the coordinator's concern, not the repository's.
type Repository interface {
	FetchBars(ctx context.Context, symbol string, interval models.Interval, startUTC, endUTC time.Time) ([]models.Bar, error)
}

var (
	fetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "historicalrepo_fetch_total",
			Help: "Total number of historical bar fetches, by status.",
		},
		[]string{"status"},
	)
	fetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "historicalrepo_fetch_latency_seconds",
			Help:    "Latency of historical bar fetches.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"interval"},
	)
)

// DatabaseConfig mirrors config.DatabaseConfig's shape for the subset this
// repository needs.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PostgresRepository implements Repository against TimescaleDB/Postgres.
type PostgresRepository struct {
	db         *sql.DB
	retryCfg   retry.Config
}

// NewPostgresRepository opens a connection pool against cfg. Each logical
// interval's bars are read from its own hypertable (bars_1m, bars_5m, ...,
// bars_1d), matching how TimescaleDB deployments in this stack typically
// partition by interval rather than filtering a single huge table.
func NewPostgresRepository(cfg DatabaseConfig) (*PostgresRepository, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("historicalrepo: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &PostgresRepository{db: db, retryCfg: retry.DefaultConfig}, nil
}

// Close closes the underlying connection pool.
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

func tableFor(interval models.Interval) (string, error) {
	switch {
	case interval.IsDaily:
		return "bars_1d", nil
	case interval.Minutes == 1:
		return "bars_1m", nil
	case interval.Minutes == 5:
		return "bars_5m", nil
	case interval.Minutes == 15:
		return "bars_15m", nil
	case interval.Minutes == 30:
		return "bars_30m", nil
	case interval.Minutes == 60:
		return "bars_60m", nil
	default:
		return "", fmt.Errorf("historicalrepo: unsupported interval %s", interval)
	}
}

// FetchBars implements Repository, wrapped in bounded retry with
// exponential backoff (spec.md §4.5.5): 3 attempts, doubling delay. Retry
// exhaustion surfaces as models.ErrRepositoryUnavailable via internal/retry.
func (r *PostgresRepository) FetchBars(ctx context.Context, symbol string, interval models.Interval, startUTC, endUTC time.Time) ([]models.Bar, error) {
	table, err := tableFor(interval)
	if err != nil {
		return nil, err
	}

	var out []models.Bar
	op := func(ctx context.Context) error {
		start := time.Now()
		bars, qerr := r.queryBars(ctx, table, symbol, startUTC, endUTC)
		fetchLatency.WithLabelValues(interval.String()).Observe(time.Since(start).Seconds())
		if qerr != nil {
			fetchTotal.WithLabelValues("error").Inc()
			return qerr
		}
		fetchTotal.WithLabelValues("success").Inc()
		out = bars
		return nil
	}

	if err := retry.Do(ctx, r.retryCfg, fmt.Sprintf("fetch_bars(%s,%s)", symbol, interval), op); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresRepository) queryBars(ctx context.Context, table, symbol string, start, end time.Time) ([]models.Bar, error) {
	query := fmt.Sprintf(`
		SELECT symbol, timestamp, open, high, low, close, volume
		FROM %s
		WHERE symbol = $1 AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp ASC
	`, table)

	rows, err := r.db.QueryContext(ctx, query, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("historicalrepo: query %s: %w", table, err)
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Symbol, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("historicalrepo: scan %s: %w", table, err)
		}
		b.Timestamp = b.Timestamp.UTC()
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("historicalrepo: rows %s: %w", table, err)
	}
	return bars, nil
}

// InMemoryRepository is a fake Repository for tests (SPEC_FULL.md §8's
// scenario suite) and for the pre-session scan test harness: bars are seeded
// directly rather than fetched from a real database.
type InMemoryRepository struct {
	// bars[symbol][interval] holds the full seeded history in ascending
	// timestamp order; FetchBars filters it down to the requested window.
	bars map[string]map[string][]models.Bar
	// Unavailable, if true, makes FetchBars always fail (for exercising the
	// RepositoryUnavailable retry/termination path).
	Unavailable bool
}

// NewInMemoryRepository creates an empty fake repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{bars: make(map[string]map[string][]models.Bar)}
}

// Seed installs bars for (symbol, interval). Bars must already be in
// ascending timestamp order, matching the real contract.
func (f *InMemoryRepository) Seed(symbol string, interval models.Interval, bars []models.Bar) {
	if f.bars[symbol] == nil {
		f.bars[symbol] = make(map[string][]models.Bar)
	}
	f.bars[symbol][interval.String()] = append([]models.Bar(nil), bars...)
}

// FetchBars implements Repository.
func (f *InMemoryRepository) FetchBars(ctx context.Context, symbol string, interval models.Interval, startUTC, endUTC time.Time) ([]models.Bar, error) {
	if f.Unavailable {
		return nil, fmt.Errorf("historicalrepo: simulated outage for %s", symbol)
	}
	all := f.bars[symbol][interval.String()]
	var out []models.Bar
	for _, b := range all {
		if !b.Timestamp.Before(startUTC) && b.Timestamp.Before(endUTC) {
			out = append(out, b)
		}
	}
	return out, nil
}
