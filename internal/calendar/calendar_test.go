package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(dateLayout, s)
	require.NoError(t, err)
	return tm
}

func TestIsTradingDay_WeekendsAndHolidays(t *testing.T) {
	cal := New("America/New_York", map[string]HolidaySpec{
		"2024-01-01": {FullClose: true},
		"2024-11-29": {EarlyClose: 13 * time.Hour},
	})

	assert.False(t, cal.IsTradingDay(mustDate(t, "2024-01-06"))) // Saturday
	assert.False(t, cal.IsTradingDay(mustDate(t, "2024-01-07"))) // Sunday
	assert.False(t, cal.IsTradingDay(mustDate(t, "2024-01-01"))) // holiday
	assert.True(t, cal.IsTradingDay(mustDate(t, "2024-01-02")))
	assert.True(t, cal.IsTradingDay(mustDate(t, "2024-11-29"))) // early close, still trades
}

func TestSessionWindow_EarlyClose(t *testing.T) {
	cal := New("America/New_York", map[string]HolidaySpec{
		"2024-11-29": {EarlyClose: 13 * time.Hour},
	})

	w := cal.SessionWindow(mustDate(t, "2024-11-29"))
	assert.True(t, w.EarlyClose)
	assert.True(t, w.CloseUTC.Before(cal.SessionWindow(mustDate(t, "2024-11-27")).CloseUTC.AddDate(0, 0, 2).Add(-2*time.Hour)))
}

func TestNextTradingDay_SkipsWeekendAndHoliday(t *testing.T) {
	cal := New("America/New_York", map[string]HolidaySpec{
		"2024-01-01": {FullClose: true},
	})

	// Friday Dec 29, 2023 -> next trading day should skip weekend and Jan 1 holiday.
	next := cal.NextTradingDay(mustDate(t, "2023-12-29"))
	assert.Equal(t, "2024-01-02", next.Format(dateLayout))
}

func TestPreviousTradingDay(t *testing.T) {
	cal := New("America/New_York", nil)
	prev := cal.PreviousTradingDay(mustDate(t, "2024-01-08")) // Monday
	assert.Equal(t, "2024-01-05", prev.Format(dateLayout))    // Friday
}

func TestCountTradingDays(t *testing.T) {
	cal := New("America/New_York", map[string]HolidaySpec{
		"2024-01-01": {FullClose: true},
	})
	// Jan 1 (Mon, holiday) .. Jan 5 (Fri): trading days are 2,3,4,5 = 4
	n := cal.CountTradingDays(mustDate(t, "2024-01-01"), mustDate(t, "2024-01-05"))
	assert.Equal(t, 4, n)
}
