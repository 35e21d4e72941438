package coordinator

import (
	"github.com/mohamedkhairy/session-orchestrator/internal/models"
	"github.com/mohamedkhairy/session-orchestrator/internal/sss"
)

// scannerStoreAdapter narrows *sss.Store to scanner.Store. The only real
// difference is AddSymbol's signature: SSS's returns a RegisterOutcome (for
// the DP/SC idempotency path) while ScannerManager has no use for it —
// scanner.Store declares AddSymbol with no return value, so SSS cannot
// satisfy that interface directly.
type scannerStoreAdapter struct {
	store *sss.Store
}

// NewScannerStore adapts store to scanner.Store, for wiring
// scanner.NewScannerManager against the same Session State Store the
// coordinator itself drives.
func NewScannerStore(store *sss.Store) scannerStoreAdapter {
	return scannerStoreAdapter{store: store}
}

func (a scannerStoreAdapter) Symbols() []string       { return a.store.Symbols() }
func (a scannerStoreAdapter) ConfigSymbols() []string { return a.store.ConfigSymbols() }
func (a scannerStoreAdapter) GetIndicator(symbol, name string) (models.IndicatorValue, bool) {
	return a.store.GetIndicator(symbol, name)
}
func (a scannerStoreAdapter) GetLatestBar(symbol string, interval models.Interval) (models.Bar, bool) {
	return a.store.GetLatestBar(symbol, interval)
}
func (a scannerStoreAdapter) AddSymbol(symbol string) { a.store.AddSymbol(symbol) }
