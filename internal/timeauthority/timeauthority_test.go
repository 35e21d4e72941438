package timeauthority

import (
	"testing"
	"time"

	"github.com/mohamedkhairy/session-orchestrator/internal/calendar"
	"github.com/mohamedkhairy/session-orchestrator/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvance_MonotonicNonDecreasing(t *testing.T) {
	cal := calendar.New("America/New_York", nil)
	start := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	auth := New(ModeBacktest, cal, start)

	require.NoError(t, auth.Advance(start.Add(time.Minute)))
	assert.Equal(t, start.Add(time.Minute), auth.Now())

	err := auth.Advance(start)
	assert.ErrorIs(t, err, models.ErrTimeRegression)
}

func TestAdvance_RejectedInLive(t *testing.T) {
	cal := calendar.New("America/New_York", nil)
	auth := New(ModeLive, cal, time.Now())
	err := auth.Advance(time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, models.ErrUnsupportedInLive)
}

func TestIsAfterClose(t *testing.T) {
	cal := calendar.New("America/New_York", nil)
	sessionDate := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	window := cal.SessionWindow(sessionDate)

	auth := New(ModeBacktest, cal, window.CloseUTC.Add(-time.Minute))
	assert.False(t, auth.IsAfterClose())

	require.NoError(t, auth.Advance(window.CloseUTC))
	assert.True(t, auth.IsAfterClose())
}

func TestFirstTradingDateOnOrAfter(t *testing.T) {
	cal := calendar.New("America/New_York", map[string]calendar.HolidaySpec{
		"2024-01-01": {FullClose: true},
	})
	auth := New(ModeBacktest, cal, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	got := auth.FirstTradingDateOnOrAfter(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "2024-01-02", got.Format("2006-01-02"))

	got2 := auth.FirstTradingDateOnOrAfter(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "2024-01-02", got2.Format("2006-01-02"))
}
