package models

import "errors"

// Sentinel errors implementing the taxonomy in SPEC_FULL.md §7. Categorical,
// not exhaustive type hierarchies: callers compare with errors.Is and wrap
// with fmt.Errorf("...: %w", ...) for context. Panics are reserved for
// invariant violations (I1-I7), never these.
var (
	// Data validation (bar/rule/condition shape).
	ErrInvalidSymbol    = errors.New("invalid symbol")
	ErrInvalidPrice     = errors.New("invalid price")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrInvalidBar       = errors.New("invalid bar (high < low)")
	ErrInvalidVolume    = errors.New("invalid volume")
	ErrInvalidRuleID    = errors.New("invalid rule ID")
	ErrInvalidRuleName  = errors.New("invalid rule name")
	ErrNoConditions     = errors.New("rule must have at least one condition")
	ErrInvalidMetric    = errors.New("invalid metric")
	ErrInvalidOperator  = errors.New("invalid operator")
	ErrInvalidAlertID   = errors.New("invalid alert ID")

	// ConfigError: malformed or inconsistent session config. Fatal at startup.
	ErrConfigError = errors.New("config error")

	// RepositoryUnavailable: upstream data source failed after retries.
	ErrRepositoryUnavailable = errors.New("historical repository unavailable")

	// DataIntegrity: out-of-order, misaligned, or contradictory bar.
	ErrDataIntegrity = errors.New("data integrity violation")
	ErrOutOfOrder    = errors.New("bar out of order")
	ErrMisaligned    = errors.New("bar misaligned to interval boundary")

	// TimeRegression: attempt to move virtual time backward.
	ErrTimeRegression = errors.New("time regression")

	// Symbol removal outcomes.
	ErrLocked       = errors.New("symbol locked")
	ErrConfigSymbol = errors.New("symbol is a config symbol")

	// Overrun: subscription handshake missed (never fatal, always counted).
	ErrOverrun = errors.New("subscription overrun")

	// Timeout: live stream idle beyond threshold.
	ErrTimeout = errors.New("timeout")

	// NoNextTradingDay: calendar search exceeded its horizon.
	ErrNoNextTradingDay = errors.New("no next trading day within horizon")

	// UnsupportedInLive: TimeAuthority.advance_to called outside backtest.
	ErrUnsupportedInLive = errors.New("advance_to is unsupported in live mode")
)
