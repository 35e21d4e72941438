package scanner

import (
	"context"
	"fmt"

	"github.com/mohamedkhairy/session-orchestrator/internal/models"
	"github.com/mohamedkhairy/session-orchestrator/internal/rules"
)

// RuleScanner is a Scanner that promotes symbols matching a compiled rule set
// from internal/rules, read against per-symbol metrics gathered from SSS
// indicators plus the latest close price. It retargets a compiled rule-based
// evaluation engine at symbol promotion instead of alert emission.
type RuleScanner struct {
	store    rules.RuleStore
	compiler *rules.Compiler

	// candidates is the pool of symbols considered for promotion, normally
	// a configured universe broader than the current config symbols.
	candidates []string

	compiled map[string]rules.CompiledRule
}

// NewRuleScanner builds a RuleScanner over store's rules, evaluated against
// candidates on every scan.
func NewRuleScanner(store rules.RuleStore, resolver rules.MetricResolver, candidates []string) *RuleScanner {
	return &RuleScanner{
		store:      store,
		compiler:   rules.NewCompiler(resolver),
		candidates: candidates,
	}
}

// Name implements Scanner.
func (s *RuleScanner) Name() string { return "rule_scanner" }

// Setup compiles every enabled rule once per scanner lifecycle.
func (s *RuleScanner) Setup(ctx context.Context, sctx *ScanContext) error {
	all, err := s.store.GetAllRules()
	if err != nil {
		return fmt.Errorf("rule_scanner: load rules: %w", err)
	}
	compiled, err := s.compiler.CompileEnabledRules(all)
	if err != nil {
		return fmt.Errorf("rule_scanner: compile rules: %w", err)
	}
	s.compiled = compiled
	return nil
}

// Scan evaluates every compiled rule against every candidate symbol's
// current SSS-resident metrics, promoting the symbol on the first match.
func (s *RuleScanner) Scan(ctx context.Context, sctx *ScanContext) (ScanResult, error) {
	result := ScanResult{Metadata: make(map[string]interface{})}
	matchedRules := make(map[string]string) // symbol -> matched rule ID

	for _, symbol := range s.candidates {
		metrics := s.gatherMetrics(sctx.Store, symbol)

		for ruleID, compiled := range s.compiled {
			matched, err := compiled(symbol, metrics)
			if err != nil {
				continue // a single rule's evaluation error never aborts the scan
			}
			if matched {
				matchedRules[symbol] = ruleID
				result.PromotedSymbols = append(result.PromotedSymbols, symbol)
				break
			}
		}
	}

	result.Metadata["matched_rules"] = matchedRules
	return result, nil
}

// Teardown is a no-op; RuleScanner holds no external resources.
func (s *RuleScanner) Teardown(ctx context.Context, sctx *ScanContext) error {
	return nil
}

// gatherMetrics builds the metrics map a compiled rule's conditions resolve
// against: the latest close on every intraday interval SSS tracks (keyed
// "price_<interval>", e.g. "price_1m"), plus each indicator in
// commonIndicatorNames that SSS holds a valid value for. RuleScanner doesn't
// know indicator names ahead of time, so it probes only that fixed list; an
// absent indicator is simply missing from the map, so a rule that references
// it fails to evaluate and Scan skips that rule for the symbol.
func (s *RuleScanner) gatherMetrics(store Store, symbol string) map[string]float64 {
	metrics := make(map[string]float64)

	for _, minutes := range models.SupportedIntraday {
		interval := models.NewIntradayInterval(minutes)
		if bar, ok := store.GetLatestBar(symbol, interval); ok {
			metrics[fmt.Sprintf("price_%s", interval.String())] = bar.Close
			metrics[fmt.Sprintf("volume_%s", interval.String())] = float64(bar.Volume)
		}
	}
	if bar, ok := store.GetLatestBar(symbol, models.Daily); ok {
		metrics["price_1d"] = bar.Close
		metrics["volume_1d"] = float64(bar.Volume)
	}

	for _, name := range commonIndicatorNames {
		if iv, ok := store.GetIndicator(symbol, name); ok && iv.Valid {
			metrics[name] = iv.Value
		}
	}

	return metrics
}

// commonIndicatorNames are the indicator keys RuleScanner looks up on every
// candidate, matching pkg/indicator's naming convention ("<name>_<period>_<interval>").
var commonIndicatorNames = []string{
	"rsi_14_1m", "sma_20_1m", "ema_9_1m",
	"rsi_14_5m", "sma_20_5m", "ema_9_5m",
	"price_change_5m_pct", "price_change_1d_pct",
}
