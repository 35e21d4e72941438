// Package models holds the data types shared across the session orchestrator:
// bars, symbol registration, indicator values, and scanner rules.
package models

import (
	"fmt"
	"time"
)

// Interval identifies a bar's periodicity. Minutes holds the interval length
// for intraday intervals (1, 5, 15, 30, 60); IsDaily is set instead for the
// "1d" sentinel, which has no fixed minute length.
type Interval struct {
	Minutes int
	IsDaily bool
}

// OneMinute is the privileged interval: the only one ever streamed from
// storage in backtest mode. All other intraday intervals are generated.
var OneMinute = Interval{Minutes: 1}

// Daily is the "1d" sentinel interval.
var Daily = Interval{IsDaily: true}

// NewIntradayInterval builds an Interval for an intraday minute count.
func NewIntradayInterval(minutes int) Interval {
	return Interval{Minutes: minutes}
}

// Duration returns the wall-clock length of the interval. Panics if called on
// the daily sentinel, which has no fixed duration.
func (i Interval) Duration() time.Duration {
	if i.IsDaily {
		panic("models: Duration() called on the daily sentinel interval")
	}
	return time.Duration(i.Minutes) * time.Minute
}

// String renders the interval the way session config and indicator names
// spell it: "1m", "5m", "60m", "1d".
func (i Interval) String() string {
	if i.IsDaily {
		return "1d"
	}
	return fmt.Sprintf("%dm", i.Minutes)
}

// Equal reports whether two intervals denote the same periodicity.
func (i Interval) Equal(o Interval) bool {
	return i.IsDaily == o.IsDaily && i.Minutes == o.Minutes
}

// SupportedIntraday is the fixed, small set of intraday intervals the
// session store carries a dedicated slot for, per the "arena + index"
// redesign over unbounded nested maps (see DESIGN.md).
var SupportedIntraday = []int{1, 5, 15, 30, 60}

// IntervalSlot returns the fixed-array index used by SymbolArena for this
// interval, and false if the interval isn't one of the supported slots.
func IntervalSlot(i Interval) (int, bool) {
	if i.IsDaily {
		return len(SupportedIntraday), true
	}
	for idx, m := range SupportedIntraday {
		if m == i.Minutes {
			return idx, true
		}
	}
	return 0, false
}

// NumSlots is the fixed width of the per-symbol interval array (one slot per
// SupportedIntraday entry, plus one for the daily sentinel).
var NumSlots = len(SupportedIntraday) + 1

// Bar is a single OHLCV record. Timestamp marks the start of the interval: a
// 1-minute bar timestamped 09:30:00 covers [09:30:00, 09:31:00) UTC and is
// considered complete at 09:31:00.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Interval  Interval
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Validate checks structural well-formedness (not ordering, which SSS
// enforces on append).
func (b *Bar) Validate() error {
	if b.Symbol == "" {
		return ErrInvalidSymbol
	}
	if b.Timestamp.IsZero() {
		return ErrInvalidTimestamp
	}
	if b.High < b.Low {
		return ErrInvalidBar
	}
	if b.Volume < 0 {
		return ErrInvalidVolume
	}
	return nil
}

// IntervalEnd returns the instant the bar's interval closes.
func (b *Bar) IntervalEnd() time.Time {
	if b.Interval.IsDaily {
		return b.Timestamp.AddDate(0, 0, 1)
	}
	return b.Timestamp.Add(b.Interval.Duration())
}

// AlignedTo reports whether the bar's timestamp is a multiple of the
// interval length since the Unix epoch (invariant I1).
func (b *Bar) AlignedTo(i Interval) bool {
	if i.IsDaily {
		h, m, s := b.Timestamp.Clock()
		return h == 0 && m == 0 && s == 0 && b.Timestamp.Nanosecond() == 0
	}
	return b.Timestamp.Unix()%int64(i.Duration().Seconds()) == 0
}

// RollUp folds a contiguous, gap-free run of bars of one interval into a
// single bar of a coarser interval: open of the first, close of the last,
// max high, min low, summed volume. The caller supplies bucketStart/interval;
// RollUp does not validate bucket alignment or completeness — that is the
// data processor's job (it only emits a derived bar once it has the full
// bucket).
func RollUp(symbol string, bucketStart time.Time, interval Interval, members []Bar) Bar {
	out := Bar{
		Symbol:    symbol,
		Timestamp: bucketStart,
		Interval:  interval,
	}
	if len(members) == 0 {
		return out
	}
	out.Open = members[0].Open
	out.Close = members[len(members)-1].Close
	out.High = members[0].High
	out.Low = members[0].Low
	for _, m := range members {
		if m.High > out.High {
			out.High = m.High
		}
		if m.Low < out.Low {
			out.Low = m.Low
		}
		out.Volume += m.Volume
	}
	return out
}
