// Command sessiond runs one Session Coordinator against a single session
// configuration, per SPEC_FULL.md §6.5a. It wires the process-level config
// (internal/config.Load), the session config (internal/config.LoadSessionConfig),
// every collaborator the Coordinator needs (SSS, Calendar, TimeAuthority,
// HistoricalRepository, LiveStream in live mode, ScannerManager, Data
// Processor, MetricsRegistry, AnalysisSubscription), and exposes the
// pause/resume/stop/status control surface over HTTP, following a
// config -> logger -> Redis/DB -> domain objects -> HTTP router ->
// signal-driven shutdown wiring order.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/mohamedkhairy/session-orchestrator/internal/analysisfeed"
	"github.com/mohamedkhairy/session-orchestrator/internal/calendar"
	"github.com/mohamedkhairy/session-orchestrator/internal/config"
	"github.com/mohamedkhairy/session-orchestrator/internal/coordinator"
	"github.com/mohamedkhairy/session-orchestrator/internal/dataprocessor"
	"github.com/mohamedkhairy/session-orchestrator/internal/historicalrepo"
	"github.com/mohamedkhairy/session-orchestrator/internal/livestream"
	"github.com/mohamedkhairy/session-orchestrator/internal/metricsregistry"
	"github.com/mohamedkhairy/session-orchestrator/internal/models"
	"github.com/mohamedkhairy/session-orchestrator/internal/rules"
	"github.com/mohamedkhairy/session-orchestrator/internal/scanner"
	"github.com/mohamedkhairy/session-orchestrator/internal/sss"
	"github.com/mohamedkhairy/session-orchestrator/internal/subscription"
	"github.com/mohamedkhairy/session-orchestrator/internal/timeauthority"
	"github.com/mohamedkhairy/session-orchestrator/pkg/indicator"
	"github.com/mohamedkhairy/session-orchestrator/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: sessiond <session-config-path>")
		os.Exit(1)
	}
	sessionConfigPath := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sessionCfg, err := config.LoadSessionConfig(sessionConfigPath)
	if err != nil {
		logger.Fatal("failed to load session config", logger.ErrorField(err))
	}

	logger.Info("starting session orchestrator",
		logger.String("session_name", sessionCfg.Session.SessionName),
		logger.String("mode", sessionCfg.Session.Mode),
	)

	coordCfg, err := coordinator.FromSessionConfig(sessionCfg)
	if err != nil {
		logger.Fatal("failed to derive coordinator config", logger.ErrorField(err))
	}

	coord, hub, err := wireSession(cfg, sessionCfg, coordCfg)
	if err != nil {
		logger.Fatal("failed to wire session", logger.ErrorField(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- coord.Run(ctx)
	}()

	router := controlRouter(coord, sessionCfg)
	controlServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Control.Port),
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("starting control surface", logger.Int("port", cfg.Control.Port))
		if err := controlServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("control surface failed", logger.ErrorField(err))
			logger.ErrorsTotal.WithLabelValues("sessiond", "control_surface").Inc()
		}
	}()

	if hub != nil {
		hub.Start()
		defer hub.Stop()
		go func() {
			logger.Info("starting analysis feed", logger.Int("port", cfg.Control.HealthCheckPort))
			feedMux := http.NewServeMux()
			feedMux.Handle("/feed", hub)
			feedMux.Handle("/metrics", promhttp.Handler())
			_ = http.ListenAndServe(fmt.Sprintf(":%d", cfg.Control.HealthCheckPort), feedMux)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("shutdown signal received")
		coord.Shutdown()
	case err := <-runErrCh:
		if err != nil {
			logger.Error("session run terminated with error", logger.ErrorField(err))
			logger.ErrorsTotal.WithLabelValues("sessiond", "coordinator_run").Inc()
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := controlServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("control surface shutdown failed", logger.ErrorField(err))
	}

	cancel()
	wg.Wait()
	logger.Info("session orchestrator stopped")
}

// wireSession builds every collaborator FromSessionConfig's Coordinator
// needs: SSS, the trading calendar, the virtual clock, the historical
// repository, the scanner manager (one Scanner per declared module), the
// data processor plus its indicator registry, the metrics registry, and, in
// live mode, the Redis-backed LiveStream.
func wireSession(cfg *config.Config, sessionCfg *config.SessionConfig, coordCfg coordinator.Config) (*coordinator.Coordinator, *analysisfeed.Hub, error) {
	store := sss.New(coordCfg.TrailingDays, 1000)
	cal := calendar.New("America/New_York", nil)
	mode := timeauthority.ModeBacktest
	initialNow := time.Now().UTC()
	if coordCfg.Mode == coordinator.ModeLive {
		mode = timeauthority.ModeLive
	} else {
		initialNow = coordCfg.StartDate
	}
	clock := timeauthority.New(mode, cal, initialNow)

	repo, err := historicalrepo.NewPostgresRepository(historicalrepo.DatabaseConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxConnections:  cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("sessiond: historical repository: %w", err)
	}

	metrics := metricsregistry.New()

	generated := generatedIntervals(coordCfg.Intervals)
	subMode := subscriptionMode(coordCfg)
	subTimeout := subscriptionTimeout(coordCfg, sessionCfg)
	barReady := subscription.New(subMode, subTimeout)
	done := subscription.New(subMode, subTimeout)

	var hub *analysisfeed.Hub
	var analysisSub *subscription.Subscription
	if cfg.Control.HealthCheckPort > 0 {
		hub = analysisfeed.NewHub(analysisfeed.HubConfig{})
		analysisSub = subscription.New(subscription.Live, 5*time.Second)
	}

	dpReg := dataprocessor.NewIndicatorRegistry()
	dp := dataprocessor.New(store, dpReg, generated, barReady, done, analysisSub)
	dp.BarReady.SetHooks(
		func() { metrics.Record("dp_bar_ready_overrun", 1) },
		func() { metrics.Record("dp_bar_ready_timeout", 1) },
	)

	entries, err := buildScannerEntries(sessionCfg, cfg)
	if err != nil {
		return nil, nil, err
	}
	sm, err := scanner.NewScannerManager(coordinator.NewScannerStore(store), entries)
	if err != nil {
		return nil, nil, fmt.Errorf("sessiond: scanner manager: %w", err)
	}

	warmups := defaultWarmups(coordCfg.Intervals)

	coord := coordinator.New(coordCfg, store, cal, clock, repo, sm, dp, dpReg, metrics, warmups)

	if coordCfg.Mode == coordinator.ModeLive {
		stream, err := livestream.NewRedisStream(livestream.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, "sessiond", sessionCfg.Session.SessionName)
		if err != nil {
			return nil, nil, fmt.Errorf("sessiond: live stream: %w", err)
		}
		coord.SetLiveStream(stream)
	}

	return coord, hub, nil
}

func subscriptionMode(cfg coordinator.Config) subscription.Mode {
	if cfg.Mode == coordinator.ModeLive {
		return subscription.Live
	}
	if cfg.Speed == 0 {
		return subscription.DataDriven
	}
	return subscription.ClockDriven
}

// subscriptionTimeout computes the BarReady/Done handshake timeout to match
// subscriptionMode's choice: none for DataDriven (speed=0, the producer
// blocks instead), a fixed live-data timeout for Live, and the scaled
// 1-minute bar interval for ClockDriven (speed>0) — a backtest run at 10x
// only ever streams 1-minute bars, so the wait per bar is 1m/speed.
func subscriptionTimeout(cfg coordinator.Config, sessionCfg *config.SessionConfig) time.Duration {
	if cfg.Mode == coordinator.ModeLive {
		if sessionCfg.Session.Mode == "live" {
			return 5 * time.Second
		}
		return 0
	}
	if cfg.Speed > 0 {
		return time.Duration(float64(models.OneMinute.Duration()) / cfg.Speed)
	}
	return 0
}

func generatedIntervals(intervals []models.Interval) []models.Interval {
	var out []models.Interval
	for _, i := range intervals {
		if !i.Equal(models.OneMinute) {
			out = append(out, i)
		}
	}
	return out
}

// buildScannerEntries resolves each session-config scanner's opaque
// "module" handle into a concrete Scanner implementation. Unknown modules
// fail startup, matching "loads scanners declared in session config; fails
// startup if any is unloadable" (spec.md §4.7).
func buildScannerEntries(sessionCfg *config.SessionConfig, cfg *config.Config) ([]*scanner.Entry, error) {
	var entries []*scanner.Entry
	for _, sc := range sessionCfg.Session.Scanners {
		var impl scanner.Scanner
		switch sc.Module {
		case "rule":
			store := rules.NewInMemoryRuleStore()
			resolver := rules.NewMetricResolver()
			impl = scanner.NewRuleScanner(store, resolver, sessionCfg.Session.Symbols)
		case "toplist":
			client := redis.NewClient(&redis.Options{
				Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			impl = scanner.NewToplistScanner(client, fmt.Sprintf("toplist:%s", sessionCfg.Session.SessionName), 10, sessionCfg.Session.Symbols, models.OneMinute)
		default:
			return nil, fmt.Errorf("sessiond: unknown scanner module %q", sc.Module)
		}

		windows, err := scheduleWindows(sc.RegularSession)
		if err != nil {
			return nil, err
		}
		entries = append(entries, &scanner.Entry{
			Scanner:        impl,
			PreSession:     sc.PreSession,
			RegularSession: windows,
			Config:         sc.Config,
		})
	}
	return entries, nil
}

func scheduleWindows(windows []config.ScheduleWindow) ([]scanner.ScheduleWindow, error) {
	const sessionOpen = "09:30"
	var out []scanner.ScheduleWindow
	for _, w := range windows {
		start, err := offsetFromOpen(sessionOpen, w.Start)
		if err != nil {
			return nil, err
		}
		end, err := offsetFromOpen(sessionOpen, w.End)
		if err != nil {
			return nil, err
		}
		interval, err := parseMinuteInterval(w.Interval)
		if err != nil {
			return nil, err
		}
		out = append(out, scanner.ScheduleWindow{Start: start, End: end, Interval: interval})
	}
	return out, nil
}

func offsetFromOpen(openHHMM, targetHHMM string) (time.Duration, error) {
	open, err := time.Parse("15:04", openHHMM)
	if err != nil {
		return 0, err
	}
	target, err := time.Parse("15:04", targetHHMM)
	if err != nil {
		return 0, fmt.Errorf("sessiond: bad schedule window time %q: %w", targetHHMM, err)
	}
	return target.Sub(open), nil
}

func parseMinuteInterval(s string) (time.Duration, error) {
	var minutes int
	if _, err := fmt.Sscanf(s, "%dm", &minutes); err != nil {
		return 0, fmt.Errorf("sessiond: bad scan interval %q: %w", s, err)
	}
	return time.Duration(minutes) * time.Minute, nil
}

// defaultWarmups declares the indicator set every symbol is warmed up with
// in Phase 2 and kept attached to for the life of the session: an RSI(14)
// and SMA(20) on every configured intraday interval, via the techan-backed
// factories in pkg/indicator.
func defaultWarmups(intervals []models.Interval) []coordinator.WarmupIndicator {
	var out []coordinator.WarmupIndicator
	for _, interval := range intervals {
		interval := interval
		out = append(out,
			coordinator.WarmupIndicator{
				Name:     fmt.Sprintf("rsi_14_%s", interval.String()),
				Interval: interval,
				Factory:  techanFactory(indicator.CreateTechanRSI(14)),
			},
			coordinator.WarmupIndicator{
				Name:     fmt.Sprintf("sma_20_%s", interval.String()),
				Interval: interval,
				Factory:  techanFactory(indicator.CreateTechanSMA(20)),
			},
		)
	}
	return out
}

// techanFactory adapts a pkg/indicator factory (which can fail to build) to
// coordinator.WarmupIndicator.Factory's no-error signature; a construction
// failure here indicates a programming error in the fixed warmup set above,
// not a runtime condition, so it panics rather than threading an error
// through every caller of WarmupIndicator.Factory.
func techanFactory(f func() (indicator.Calculator, error)) func() indicator.Calculator {
	return func() indicator.Calculator {
		calc, err := f()
		if err != nil {
			panic(fmt.Sprintf("sessiond: build warmup indicator: %v", err))
		}
		return calc
	}
}

// controlMetricsWriter wraps http.ResponseWriter to capture the status code
// for the request metrics middleware below, mirroring the teacher's
// LoggingMiddleware responseWriter shape.
type controlMetricsWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *controlMetricsWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// controlMetricsMiddleware records pkg/logger's RequestDuration/RequestTotal
// gauges for every control-surface call, the same request-metrics idiom the
// teacher's internal/api.LoggingMiddleware applies to its own router.
func controlMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &controlMetricsWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		status := fmt.Sprintf("%d", wrapped.statusCode)
		logger.RequestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
		logger.RequestTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
	})
}

// controlRouter implements the status/pause/resume/stop control surface
// (spec.md §6.5, SPEC_FULL.md §6.5a).
func controlRouter(coord *coordinator.Coordinator, sessionCfg *config.SessionConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(controlMetricsMiddleware)

	router.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"session_name":   sessionCfg.Session.SessionName,
			"phase":          coord.Phase().String(),
			"session_date":   coord.SessionDate().Format("2006-01-02"),
			"virtual_now":    coord.Now().Format(time.RFC3339),
			"paused":         coord.Paused(),
			"active_symbols": coord.ActiveSymbolCount(),
		})
	}).Methods("GET")

	router.HandleFunc("/pause", func(w http.ResponseWriter, r *http.Request) {
		coord.Pause()
		w.WriteHeader(http.StatusOK)
	}).Methods("POST")

	router.HandleFunc("/resume", func(w http.ResponseWriter, r *http.Request) {
		coord.Resume()
		w.WriteHeader(http.StatusOK)
	}).Methods("POST")

	router.HandleFunc("/stop", func(w http.ResponseWriter, r *http.Request) {
		coord.Shutdown()
		w.WriteHeader(http.StatusOK)
	}).Methods("POST")

	router.Handle("/metrics", promhttp.Handler())

	return router
}
