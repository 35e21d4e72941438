package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/session-orchestrator/internal/calendar"
	"github.com/mohamedkhairy/session-orchestrator/internal/dataprocessor"
	"github.com/mohamedkhairy/session-orchestrator/internal/historicalrepo"
	"github.com/mohamedkhairy/session-orchestrator/internal/metricsregistry"
	"github.com/mohamedkhairy/session-orchestrator/internal/models"
	"github.com/mohamedkhairy/session-orchestrator/internal/scanner"
	"github.com/mohamedkhairy/session-orchestrator/internal/sss"
	"github.com/mohamedkhairy/session-orchestrator/internal/subscription"
	"github.com/mohamedkhairy/session-orchestrator/internal/timeauthority"
)

// testHarness wires one Coordinator against an in-memory repository, with no
// timezone conversion (exchange calendar pinned to UTC) so session windows
// land on round 09:30-16:00 instants.
type testHarness struct {
	store *sss.Store
	cal   *calendar.Calendar
	clock *timeauthority.Authority
	repo  *historicalrepo.InMemoryRepository
	dp    *dataprocessor.DataProcessor
	dpReg *dataprocessor.IndicatorRegistry
	coord *Coordinator
}

func newHarness(t *testing.T, symbols []string, intervals []models.Interval, trailingDays int, scanEntries []*scanner.Entry, startDate, endDate time.Time) *testHarness {
	t.Helper()

	store := sss.New(trailingDays, 100)
	cal := calendar.New("UTC", nil)
	clock := timeauthority.New(timeauthority.ModeBacktest, cal, startDate)
	repo := historicalrepo.NewInMemoryRepository()
	dpReg := dataprocessor.NewIndicatorRegistry()

	barReady := subscription.New(subscription.DataDriven, 0)
	done := subscription.New(subscription.DataDriven, 0)
	dp := dataprocessor.New(store, dpReg, generatedOf(intervals), barReady, done, nil)

	sm, err := scanner.NewScannerManager(NewScannerStore(store), scanEntries)
	require.NoError(t, err)

	cfg := Config{
		SessionName:         "test",
		Mode:                ModeBacktest,
		ConfigSymbols:       symbols,
		Intervals:           intervals,
		TrailingDays:        trailingDays,
		StartDate:           startDate,
		EndDate:             endDate,
		Speed:               0,
		QualitySamplePeriod: 1,
	}
	coord := New(cfg, store, cal, clock, repo, sm, dp, dpReg, metricsregistry.New(), nil)

	return &testHarness{store: store, cal: cal, clock: clock, repo: repo, dp: dp, dpReg: dpReg, coord: coord}
}

// startDP launches the Data Processor's loop for the duration of one test,
// cancelling it on cleanup so the goroutine doesn't outlive the test.
func startDP(t *testing.T, h *testHarness) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.dp.Run(ctx)
}

// generatedOf returns every configured interval other than 1-minute — the
// Generated side of the stream/generate contract (spec.md §4.5.1).
func generatedOf(intervals []models.Interval) []models.Interval {
	var out []models.Interval
	for _, i := range intervals {
		if !i.Equal(models.OneMinute) {
			out = append(out, i)
		}
	}
	return out
}

// oneMinuteBars builds n consecutive 1-minute bars for symbol starting at
// open, skipping any timestamp in skip.
func oneMinuteBars(symbol string, open time.Time, n int, skip map[time.Time]bool) []models.Bar {
	var out []models.Bar
	ts := open
	for i := 0; i < n; i++ {
		if !skip[ts] {
			out = append(out, models.Bar{
				Symbol:    symbol,
				Timestamp: ts,
				Interval:  models.OneMinute,
				Open:      100,
				High:      101,
				Low:       99,
				Close:     100.5,
				Volume:    1000,
			})
		}
		ts = ts.Add(time.Minute)
	}
	return out
}

// runOneSession drives Phases 1-6 directly (bypassing Run's multi-day loop),
// so the test can inspect state at each step.
func runOneSession(t *testing.T, h *testHarness, sessionDate time.Time) time.Time {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, h.coord.phaseInit(sessionDate))
	require.NoError(t, h.coord.phaseHistorical(ctx, sessionDate))
	require.NoError(t, h.coord.sm.SetupPreSessionScanners(ctx, h.cal.SessionWindow(sessionDate).OpenUTC))
	queue, err := h.coord.phaseQueueLoading(ctx, sessionDate)
	require.NoError(t, err)
	h.coord.phaseActivation(sessionDate)
	require.NoError(t, h.coord.phaseStreaming(ctx, sessionDate, queue))
	next, err := h.coord.phaseEndOfSession(sessionDate)
	require.NoError(t, err)
	return next
}

// Scenario 1 (spec.md §8.1): single-symbol single-session backtest.
func TestScenario_SingleSymbolSingleSession(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC) // Tuesday
	intervals := []models.Interval{models.OneMinute, models.NewIntradayInterval(5)}

	h := newHarness(t, []string{"AAPL"}, intervals, 0, nil, day, day)
	startDP(t, h)

	open := h.cal.SessionWindow(day).OpenUTC
	h.repo.Seed("AAPL", models.OneMinute, oneMinuteBars("AAPL", open, 390, nil))

	runOneSession(t, h, day)

	q1, ok := h.store.GetQuality("AAPL", models.OneMinute)
	require.True(t, ok)
	assert.InDelta(t, 100.0, q1, 0.01)

	q5, ok := h.store.GetQuality("AAPL", models.NewIntradayInterval(5))
	require.True(t, ok)
	assert.InDelta(t, 100.0, q5, 0.01)

	bars := h.store.GetHistoricalBars("AAPL", models.OneMinute, day)
	assert.Len(t, bars, 390)
}

// Scenario 2 (spec.md §8.2): gap in the 1-minute feed.
func TestScenario_GapInFeed(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	intervals := []models.Interval{models.OneMinute, models.NewIntradayInterval(5)}

	h := newHarness(t, []string{"AAPL"}, intervals, 0, nil, day, day)
	startDP(t, h)

	open := h.cal.SessionWindow(day).OpenUTC
	skip := map[time.Time]bool{}
	gapStart := open.Add(30 * time.Minute) // 10:00
	for i := 0; i < 5; i++ {
		skip[gapStart.Add(time.Duration(i)*time.Minute)] = true
	}
	h.repo.Seed("AAPL", models.OneMinute, oneMinuteBars("AAPL", open, 390, skip))

	runOneSession(t, h, day)

	bars := h.store.GetHistoricalBars("AAPL", models.OneMinute, day)
	assert.Len(t, bars, 385)

	q1, ok := h.store.GetQuality("AAPL", models.OneMinute)
	require.True(t, ok)
	assert.InDelta(t, 100.0*385.0/390.0, q1, 0.05)

	q5, ok := h.store.GetQuality("AAPL", models.NewIntradayInterval(5))
	require.True(t, ok)
	assert.InDelta(t, 100.0*77.0/78.0, q5, 0.05)
}

// testPromotionScanner promotes a fixed symbol every time it scans,
// exercising the idempotent add_symbol path (I3) when scanned repeatedly.
type testPromotionScanner struct {
	symbol    string
	scanCount int
}

func (s *testPromotionScanner) Name() string { return "promote-" + s.symbol }
func (s *testPromotionScanner) Setup(ctx context.Context, sctx *scanner.ScanContext) error {
	return nil
}
func (s *testPromotionScanner) Scan(ctx context.Context, sctx *scanner.ScanContext) (scanner.ScanResult, error) {
	s.scanCount++
	return scanner.ScanResult{PromotedSymbols: []string{s.symbol}}, nil
}
func (s *testPromotionScanner) Teardown(ctx context.Context, sctx *scanner.ScanContext) error {
	return nil
}

// Scenario 3 (spec.md §8.3): symbol promotion mid-session, idempotent
// re-promotion on the scanner's next scheduled scan.
func TestScenario_MidSessionPromotion(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	intervals := []models.Interval{models.OneMinute}

	promoter := &testPromotionScanner{symbol: "MSFT"}
	entries := []*scanner.Entry{{
		Scanner: promoter,
		RegularSession: []scanner.ScheduleWindow{
			{Start: 5 * time.Minute, End: 15 * time.Minute, Interval: 5 * time.Minute},
		},
	}}

	h := newHarness(t, []string{"AAPL"}, intervals, 0, entries, day, day)
	startDP(t, h)

	open := h.cal.SessionWindow(day).OpenUTC
	h.repo.Seed("AAPL", models.OneMinute, oneMinuteBars("AAPL", open, 15, nil))

	runOneSession(t, h, day)

	assert.GreaterOrEqual(t, promoter.scanCount, 2, "scanner should have scanned at both 09:35 and 09:40")

	symbols := h.store.Symbols()
	count := 0
	for _, s := range symbols {
		if s == "MSFT" {
			count++
		}
	}
	assert.Equal(t, 1, count, "MSFT must appear exactly once despite repeated promotion")
}

// Scenario 4 (spec.md §8.4): locked-symbol removal rejection, then
// successful unlock and removal.
func TestScenario_LockedSymbolRemoval(t *testing.T) {
	store := sss.New(5, 100)
	store.RegisterSymbol("GME", models.SourceAdhoc)

	require.NoError(t, store.LockSymbol("GME", "halt-pending-news"))
	assert.True(t, store.IsLocked("GME"))

	err := store.RemoveSymbol("GME")
	assert.ErrorIs(t, err, models.ErrLocked)

	require.NoError(t, store.UnlockSymbol("GME", "halt-pending-news"))
	assert.False(t, store.IsLocked("GME"))

	require.NoError(t, store.RemoveSymbol("GME"))
	assert.NotContains(t, store.Symbols(), "GME")
}

// Scenario 5 (spec.md §8.5): cross-day roll with trailing_days=2 over 4
// trading days retains only the last 2.
func TestScenario_CrossDayRollTrailingWindow(t *testing.T) {
	days := []time.Time{
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), // Tue
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), // Wed
		time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), // Thu
		time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), // Fri
	}
	intervals := []models.Interval{models.OneMinute}
	h := newHarness(t, []string{"AAPL"}, intervals, 2, nil, days[0], days[len(days)-1])
	startDP(t, h)

	var seeded []models.Bar
	for _, d := range days {
		open := h.cal.SessionWindow(d).OpenUTC
		seeded = append(seeded, oneMinuteBars("AAPL", open, 5, nil)...)
		h.repo.Seed("AAPL", models.OneMinute, seeded)
		next := runOneSession(t, h, d)
		_ = next
	}

	assert.Nil(t, h.store.GetHistoricalBars("AAPL", models.OneMinute, days[0]))
	assert.Nil(t, h.store.GetHistoricalBars("AAPL", models.OneMinute, days[1]))
	assert.NotEmpty(t, h.store.GetHistoricalBars("AAPL", models.OneMinute, days[2]))
	assert.NotEmpty(t, h.store.GetHistoricalBars("AAPL", models.OneMinute, days[3]))
}

// Scenario 6 (spec.md §8.6): pause freezes virtual time; resume continues
// from the same instant.
func TestScenario_PauseResumePreservesVirtualTime(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	intervals := []models.Interval{models.OneMinute}
	h := newHarness(t, []string{"AAPL"}, intervals, 0, nil, day, day)
	startDP(t, h)

	open := h.cal.SessionWindow(day).OpenUTC
	h.repo.Seed("AAPL", models.OneMinute, oneMinuteBars("AAPL", open, 5, nil))

	require.NoError(t, h.coord.phaseInit(day))
	require.NoError(t, h.coord.phaseHistorical(context.Background(), day))
	queue, err := h.coord.phaseQueueLoading(context.Background(), day)
	require.NoError(t, err)
	h.coord.phaseActivation(day)

	h.coord.Pause()
	assert.True(t, h.coord.Paused())

	streamDone := make(chan error, 1)
	go func() {
		streamDone <- h.coord.phaseStreaming(context.Background(), day, queue)
	}()

	// While paused, the clock must stay pinned at session open.
	time.Sleep(30 * time.Millisecond)
	assert.True(t, h.clock.Now().Equal(open), "virtual clock must not advance while paused")

	h.coord.Resume()
	assert.False(t, h.coord.Paused())

	select {
	case err := <-streamDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("streaming phase did not complete after resume")
	}

	assert.True(t, h.clock.Now().After(open), "virtual clock must have advanced after resume")
}
