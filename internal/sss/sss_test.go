package sss

import (
	"testing"
	"time"

	"github.com/mohamedkhairy/session-orchestrator/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bar(symbol string, ts time.Time, interval models.Interval) models.Bar {
	return models.Bar{
		Symbol: symbol, Timestamp: ts, Interval: interval,
		Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 100,
	}
}

func TestRegisterSymbol_Idempotent(t *testing.T) {
	s := New(5, 100)
	assert.Equal(t, Inserted, s.RegisterSymbol("AAPL", models.SourceConfig))
	assert.Equal(t, AlreadyPresent, s.RegisterSymbol("AAPL", models.SourceConfig))
}

func TestAddSymbol_Idempotent(t *testing.T) {
	s := New(5, 100)
	assert.Equal(t, Inserted, s.AddSymbol("TSLA"))
	assert.Equal(t, AlreadyPresent, s.AddSymbol("TSLA"))
	assert.Contains(t, s.ConfigSymbols(), "TSLA")
	assert.Len(t, s.DrainPromotions(), 1) // only one promotion record queued
}

func TestAppendBar_OutOfOrderAndMisaligned(t *testing.T) {
	s := New(5, 100)
	s.RegisterSymbol("AAPL", models.SourceAdhoc)
	s.SetActive(true)
	s.SetStreamKind(models.OneMinute, Streamed)

	t0 := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	require.NoError(t, s.AppendStreamedBar("AAPL", models.OneMinute, bar("AAPL", t0, models.OneMinute)))

	err := s.AppendStreamedBar("AAPL", models.OneMinute, bar("AAPL", t0, models.OneMinute))
	assert.ErrorIs(t, err, models.ErrOutOfOrder)

	misaligned := t0.Add(90 * time.Second).Add(time.Minute)
	err = s.AppendStreamedBar("AAPL", models.OneMinute, bar("AAPL", misaligned, models.OneMinute))
	assert.ErrorIs(t, err, models.ErrMisaligned)
}

func TestAppendStreamedBar_RejectsGeneratedInterval(t *testing.T) {
	s := New(5, 100)
	s.RegisterSymbol("AAPL", models.SourceAdhoc)
	s.SetActive(true)
	five := models.NewIntradayInterval(5)
	s.SetStreamKind(five, Generated)

	err := s.AppendStreamedBar("AAPL", five, bar("AAPL", time.Unix(0, 0).UTC(), five))
	assert.ErrorIs(t, err, models.ErrDataIntegrity)
}

func TestAppendGeneratedBar_BypassesStreamKindCheck(t *testing.T) {
	s := New(5, 100)
	s.RegisterSymbol("AAPL", models.SourceAdhoc)
	s.SetActive(true)
	five := models.NewIntradayInterval(5)
	s.SetStreamKind(five, Generated)

	t0 := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	err := s.AppendGeneratedBar("AAPL", five, bar("AAPL", t0, five))
	require.NoError(t, err)

	got, ok := s.GetLatestBar("AAPL", five)
	require.True(t, ok)
	assert.Equal(t, t0, got.Timestamp)
}

func TestGetLastNBarsAndSince(t *testing.T) {
	s := New(5, 100)
	s.RegisterSymbol("AAPL", models.SourceAdhoc)
	s.SetActive(true)
	s.SetStreamKind(models.OneMinute, Streamed)

	base := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.AppendStreamedBar("AAPL", models.OneMinute, bar("AAPL", ts, models.OneMinute)))
	}

	last3 := s.GetLastNBars("AAPL", models.OneMinute, 3)
	require.Len(t, last3, 3)
	assert.Equal(t, base.Add(2*time.Minute), last3[0].Timestamp)

	since := s.GetBarsSince("AAPL", models.OneMinute, base.Add(3*time.Minute))
	require.Len(t, since, 2)
}

func TestLockedSymbolCannotBeRemoved(t *testing.T) {
	s := New(5, 100)
	s.AddSymbol("TSLA")
	require.NoError(t, s.LockSymbol("TSLA", "position"))

	err := s.RemoveSymbol("TSLA")
	assert.ErrorIs(t, err, models.ErrLocked)

	require.NoError(t, s.UnlockSymbol("TSLA", "position"))
	assert.NoError(t, s.RemoveSymbol("TSLA"))
}

func TestConfigSymbolCannotBeRemoved(t *testing.T) {
	s := New(5, 100)
	s.RegisterSymbol("SPY", models.SourceConfig)
	err := s.RemoveSymbol("SPY")
	assert.ErrorIs(t, err, models.ErrConfigSymbol)
}

func TestIndicatorRoundTrip(t *testing.T) {
	s := New(5, 100)
	s.RegisterSymbol("AAPL", models.SourceAdhoc)
	require.NoError(t, s.SetIndicator("AAPL", "sma_20_1m", 150.25))

	v, ok := s.GetIndicator("AAPL", "sma_20_1m")
	require.True(t, ok)
	assert.True(t, v.Valid)
	assert.Equal(t, 150.25, v.Value)
}

func TestQualityClamped(t *testing.T) {
	s := New(5, 100)
	s.RegisterSymbol("AAPL", models.SourceAdhoc)
	require.NoError(t, s.SetQuality("AAPL", models.OneMinute, 150))
	q, ok := s.GetQuality("AAPL", models.OneMinute)
	require.True(t, ok)
	assert.Equal(t, 100.0, q)

	require.NoError(t, s.SetQuality("AAPL", models.OneMinute, -10))
	q, _ = s.GetQuality("AAPL", models.OneMinute)
	assert.Equal(t, 0.0, q)
}

func TestRollSession_MovesSessionBarsToHistoricalAndInvalidatesIndicators(t *testing.T) {
	s := New(5, 100)
	s.RegisterSymbol("AAPL", models.SourceAdhoc)
	s.SetActive(true)
	s.SetStreamKind(models.OneMinute, Streamed)
	require.NoError(t, s.SetIndicator("AAPL", "sma_20_1m", 10))

	day1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	s.SetCurrentDate(day1)
	t0 := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	require.NoError(t, s.AppendStreamedBar("AAPL", models.OneMinute, bar("AAPL", t0, models.OneMinute)))

	day2 := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	s.RollSession(day2)

	assert.False(t, s.Active())
	assert.Equal(t, day2, s.CurrentDate())

	_, ok := s.GetLatestBar("AAPL", models.OneMinute)
	assert.False(t, ok, "session bars cleared after roll")

	hist := s.GetHistoricalBars("AAPL", models.OneMinute, day1)
	require.Len(t, hist, 1)
	assert.Equal(t, t0, hist[0].Timestamp)

	v, ok := s.GetIndicator("AAPL", "sma_20_1m")
	require.True(t, ok)
	assert.False(t, v.Valid, "indicator marked invalid after roll, value preserved")
	assert.Equal(t, 10.0, v.Value)
}

func TestRollSession_EvictsBeyondTrailingWindow(t *testing.T) {
	s := New(1, 100) // trailing window of 1 day
	s.RegisterSymbol("AAPL", models.SourceAdhoc)
	s.SetActive(true)
	s.SetStreamKind(models.OneMinute, Streamed)

	day1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.SetCurrentDate(day1)
	require.NoError(t, s.AppendStreamedBar("AAPL", models.OneMinute,
		bar("AAPL", day1.Add(9*time.Hour+30*time.Minute), models.OneMinute)))

	day2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	s.RollSession(day2)
	s.SetActive(true)
	require.NoError(t, s.AppendStreamedBar("AAPL", models.OneMinute,
		bar("AAPL", day2.Add(9*time.Hour+30*time.Minute), models.OneMinute)))

	day3 := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	s.RollSession(day3)

	assert.Empty(t, s.GetHistoricalBars("AAPL", models.OneMinute, day1), "evicted: older than trailing window")
	assert.NotEmpty(t, s.GetHistoricalBars("AAPL", models.OneMinute, day2))
}

func TestPromotionQueue_DropsWhenFull(t *testing.T) {
	s := New(5, 1)
	s.AddSymbol("A")
	s.AddSymbol("B") // queue cap 1: dropped
	assert.Len(t, s.DrainPromotions(), 1)
	assert.Equal(t, int64(1), s.PromotionsDropped())
}
