package dataprocessor

import (
	"time"

	"github.com/mohamedkhairy/session-orchestrator/internal/models"
)

// closesBucket reports whether a 1-minute bar ending at barEnd closes a
// bucket of the Generated interval (SPEC_FULL.md §4.6, step 2):
// (timestamp + 1min) mod interval == 0.
func closesBucket(barEnd models.Bar, interval models.Interval) bool {
	end := barEnd.IntervalEnd()
	if interval.IsDaily {
		h, m, s := end.Clock()
		return h == 0 && m == 0 && s == 0 && end.Nanosecond() == 0
	}
	return end.Unix()%int64(interval.Duration().Seconds()) == 0
}

// rollBucket assembles the derived bar for (symbol, interval) whose bucket
// just closed at oneMinBar.IntervalEnd(), given the session's 1-minute bars.
// Returns ok=false if the bucket is partial (the session began mid-bucket) —
// per SPEC_FULL.md §4.6, a partial first bucket is discarded, never
// back-filled.
func rollBucket(symbol string, interval models.Interval, oneMinBars []models.Bar, bucketEnd models.Bar) (models.Bar, bool) {
	end := bucketEnd.IntervalEnd()
	var start time.Time
	if interval.IsDaily {
		start = end.AddDate(0, 0, -1)
	} else {
		start = end.Add(-interval.Duration())
	}

	var members []models.Bar
	for _, b := range oneMinBars {
		if !b.Timestamp.Before(start) && b.Timestamp.Before(end) {
			members = append(members, b)
		}
	}

	expected := 1
	if !interval.IsDaily {
		expected = interval.Minutes
	}
	if len(members) == 0 || (!interval.IsDaily && len(members) != expected) {
		return models.Bar{}, false
	}
	if !members[0].Timestamp.Equal(start) {
		return models.Bar{}, false
	}

	return models.RollUp(symbol, start, interval, members), true
}
