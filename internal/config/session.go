package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mohamedkhairy/session-orchestrator/internal/models"
)

// SessionConfig is the per-run configuration ingested at session start
// (spec.md §6.1), loaded from YAML.
type SessionConfig struct {
	Session SessionBlock `yaml:"session"`
}

// SessionBlock is the top-level "session:" object.
type SessionBlock struct {
	SessionName  string          `yaml:"session_name"`
	Mode         string          `yaml:"mode"` // "backtest" | "live"
	Symbols      []string        `yaml:"symbols"`
	Intervals    []int           `yaml:"intervals"`
	TrailingDays int             `yaml:"trailing_days"`
	DataAPI      string          `yaml:"data_api"` // "alpaca" | "schwab"; opaque to core
	Backtest     BacktestBlock   `yaml:"backtest"`
	Scanners     []ScannerConfig `yaml:"scanners"`
}

// BacktestBlock configures backtest-mode replay; ignored in live mode.
type BacktestBlock struct {
	StartDate string  `yaml:"start_date"` // inclusive, "YYYY-MM-DD"
	EndDate   string  `yaml:"end_date"`   // inclusive
	Speed     float64 `yaml:"speed"`      // 0 = data-driven; >0 = wall-scaled
}

// ScannerConfig is one entry under "scanners:".
type ScannerConfig struct {
	Module        string               `yaml:"module"` // opaque handle, e.g. "rule", "toplist"
	PreSession    bool                 `yaml:"pre_session"`
	RegularSession []ScheduleWindow    `yaml:"regular_session"`
	Config        map[string]interface{} `yaml:"config"` // opaque to core
}

// ScheduleWindow is one "{start, end, interval}" regular-session scan window.
type ScheduleWindow struct {
	Start    string `yaml:"start"`    // "HH:MM"
	End      string `yaml:"end"`      // "HH:MM"
	Interval string `yaml:"interval"` // "Nm"
}

// LoadSessionConfig reads and validates a SessionConfig from path.
func LoadSessionConfig(path string) (*SessionConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read session config: %w", err)
	}

	var cfg SessionConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse session config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces spec.md §6.1's validation rules: start_date ≤ end_date;
// intervals include 1 in backtest mode; all intervals are positive integer
// minutes; scanner schedule windows lie within standard session hours
// (09:30–16:00, checked against the "HH:MM" offsets as wall-clock strings).
func (c *SessionConfig) Validate() error {
	s := c.Session
	if s.SessionName == "" {
		return fmt.Errorf("%w: session_name is required", models.ErrConfigError)
	}
	if s.Mode != "backtest" && s.Mode != "live" {
		return fmt.Errorf("%w: mode must be \"backtest\" or \"live\", got %q", models.ErrConfigError, s.Mode)
	}
	if len(s.Symbols) == 0 {
		return fmt.Errorf("%w: symbols must be non-empty", models.ErrConfigError)
	}
	if len(s.Intervals) == 0 {
		return fmt.Errorf("%w: intervals must be non-empty", models.ErrConfigError)
	}

	hasOneMinute := false
	for _, m := range s.Intervals {
		if m <= 0 {
			return fmt.Errorf("%w: interval %d is not a positive integer minute count", models.ErrConfigError, m)
		}
		if m == 1 {
			hasOneMinute = true
		}
	}
	if s.Mode == "backtest" && !hasOneMinute {
		return fmt.Errorf("%w: backtest mode requires interval 1 to be present", models.ErrConfigError)
	}
	if s.TrailingDays < 0 {
		return fmt.Errorf("%w: trailing_days must be >= 0", models.ErrConfigError)
	}

	if s.Mode == "backtest" {
		start, err := time.Parse("2006-01-02", s.Backtest.StartDate)
		if err != nil {
			return fmt.Errorf("%w: bad backtest.start_date: %v", models.ErrConfigError, err)
		}
		end, err := time.Parse("2006-01-02", s.Backtest.EndDate)
		if err != nil {
			return fmt.Errorf("%w: bad backtest.end_date: %v", models.ErrConfigError, err)
		}
		if start.After(end) {
			return fmt.Errorf("%w: backtest.start_date %s is after end_date %s", models.ErrConfigError, s.Backtest.StartDate, s.Backtest.EndDate)
		}
		if s.Backtest.Speed < 0 {
			return fmt.Errorf("%w: backtest.speed must be >= 0", models.ErrConfigError)
		}
	}

	const sessionOpen = "09:30"
	const sessionClose = "16:00"
	for i, sc := range s.Scanners {
		if sc.Module == "" {
			return fmt.Errorf("%w: scanners[%d] missing module", models.ErrConfigError, i)
		}
		for j, w := range sc.RegularSession {
			if w.Start < sessionOpen || w.Start > sessionClose {
				return fmt.Errorf("%w: scanners[%d].regular_session[%d].start %q outside session hours", models.ErrConfigError, i, j, w.Start)
			}
			if w.End < sessionOpen || w.End > sessionClose {
				return fmt.Errorf("%w: scanners[%d].regular_session[%d].end %q outside session hours", models.ErrConfigError, i, j, w.End)
			}
			if w.Start >= w.End {
				return fmt.Errorf("%w: scanners[%d].regular_session[%d] start >= end", models.ErrConfigError, i, j)
			}
		}
	}

	return nil
}

// IntervalValues returns Session.Intervals converted to models.Interval.
func (c *SessionConfig) IntervalValues() []models.Interval {
	out := make([]models.Interval, 0, len(c.Session.Intervals))
	for _, m := range c.Session.Intervals {
		out = append(out, models.NewIntradayInterval(m))
	}
	return out
}
