// Package calendar implements TradingCalendar: a pure-function module over an
// injected holiday list. It never hits a database during a session — holidays
// are supplied at construction time by whatever collaborator owns the
// holiday/exchange-calendar database (out of scope here, per spec.md §1).
//
// Session-window math builds on a GetMarketSession/GetMarketOpenTime
// pattern: load America/New_York, fall back to a fixed UTC offset when
// tzdata is unavailable.
package calendar

import (
	"sort"
	"time"
)

// HolidaySpec describes a single non-trading or early-close day.
type HolidaySpec struct {
	// EarlyClose, if non-zero, is the local exchange closing time on this
	// date (e.g. 13:00 the day after Thanksgiving). Zero means the standard
	// close applies; FullClose marks the market fully closed this date.
	EarlyClose time.Duration
	FullClose  bool
}

// SessionWindow is the UTC open/close instants for a trading day.
type SessionWindow struct {
	OpenUTC   time.Time
	CloseUTC  time.Time
	EarlyClose bool
}

const dateLayout = "2006-01-02"

// Calendar is a TradingCalendar backed by an injected holiday table and
// exchange timezone. Safe for concurrent use: all state is immutable after
// construction.
type Calendar struct {
	loc             *time.Location
	holidays        map[string]HolidaySpec
	standardOpen    time.Duration // offset from local midnight, e.g. 9h30m
	standardClose   time.Duration
	earlyCloseDefault time.Duration
}

// New builds a Calendar for the given exchange timezone name (e.g.
// "America/New_York") and holiday table keyed by "YYYY-MM-DD". Falls back to
// a fixed UTC-5 offset if the timezone database is unavailable, matching the
// teacher's getMarketSessionFallback behavior.
func New(tzName string, holidays map[string]HolidaySpec) *Calendar {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		loc = time.FixedZone("ET-fallback", -5*60*60)
	}
	h := make(map[string]HolidaySpec, len(holidays))
	for k, v := range holidays {
		h[k] = v
	}
	return &Calendar{
		loc:               loc,
		holidays:          h,
		standardOpen:      9*time.Hour + 30*time.Minute,
		standardClose:     16 * time.Hour,
		earlyCloseDefault: 13 * time.Hour,
	}
}

func dateKey(date time.Time) string {
	return date.Format(dateLayout)
}

// localMidnight reads date's calendar day (in date's own location) and
// returns exchange-local midnight of that day.
func (c *Calendar) localMidnight(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc)
}

// IsTradingDay reports false for weekends and listed holidays.
func (c *Calendar) IsTradingDay(date time.Time) bool {
	local := c.localMidnight(date)
	wd := local.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	spec, isHoliday := c.holidays[dateKey(local)]
	if isHoliday && spec.FullClose {
		return false
	}
	return true
}

// SessionWindow returns the standard 09:30-16:00 exchange-local window
// (or the early-close variant) converted to UTC for the given date.
func (c *Calendar) SessionWindow(date time.Time) SessionWindow {
	local := c.localMidnight(date)
	y, m, d := local.Date()
	open := time.Date(y, m, d, 0, 0, 0, 0, c.loc).Add(c.standardOpen)

	close := time.Date(y, m, d, 0, 0, 0, 0, c.loc).Add(c.standardClose)
	early := false
	if spec, ok := c.holidays[dateKey(local)]; ok && !spec.FullClose && spec.EarlyClose > 0 {
		close = time.Date(y, m, d, 0, 0, 0, 0, c.loc).Add(spec.EarlyClose)
		early = true
	}
	return SessionWindow{
		OpenUTC:    open.UTC(),
		CloseUTC:   close.UTC(),
		EarlyClose: early,
	}
}

// NextTradingDay returns the next date (local midnight) on or after date+1
// that is a trading day. Behavior beyond the injected holiday horizon is
// undefined per spec.md §4.1. This walk is unbounded; the horizon-limited
// search is the Session Coordinator's nextTradingDayBounded.
func (c *Calendar) NextTradingDay(date time.Time) time.Time {
	d := c.localMidnight(date)
	for {
		d = d.AddDate(0, 0, 1)
		if c.IsTradingDay(d) {
			return d
		}
	}
}

// PreviousTradingDay mirrors NextTradingDay, searching backward.
func (c *Calendar) PreviousTradingDay(date time.Time) time.Time {
	d := c.localMidnight(date)
	for {
		d = d.AddDate(0, 0, -1)
		if c.IsTradingDay(d) {
			return d
		}
	}
}

// CountTradingDays counts trading days in [start, end], inclusive of both
// endpoints when they are themselves trading days.
func (c *Calendar) CountTradingDays(start, end time.Time) int {
	s := c.localMidnight(start)
	e := c.localMidnight(end)
	if e.Before(s) {
		return 0
	}
	count := 0
	for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d) {
			count++
		}
	}
	return count
}

// SortedHolidays returns the configured holiday dates in ascending order,
// useful for diagnostics and tests.
func (c *Calendar) SortedHolidays() []string {
	keys := make([]string, 0, len(c.holidays))
	for k := range c.holidays {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
