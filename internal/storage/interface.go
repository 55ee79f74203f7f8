// Package storage persists the per-run execution ledger and closed positions
// to a JSON file.
package storage

import (
	"time"

	"github.com/pmansara/opendrive/internal/models"
)

// RunRecord is one scan cycle's persisted output.
type RunRecord struct {
	RunID     string                 `json:"run_id"`
	Timestamp time.Time              `json:"timestamp"`
	Ledger    models.ExecutionLedger `json:"ledger"`
	Summary   models.LedgerSummary   `json:"summary"`
}

// Interface defines the contract for run-ledger persistence.
//
// Implementations must be safe for concurrent use: the scan cycle appends
// runs while monitor goroutines record closes.
type Interface interface {
	AppendRun(ledger models.ExecutionLedger) error
	RecordClose(pos models.Position) error

	GetRuns() []RunRecord
	GetClosedPositions() []models.Position

	Save() error
	Load() error
}

// NewStorage creates a new storage implementation (currently JSON-based).
func NewStorage(filepath string) (Interface, error) {
	return NewJSONStorage(filepath)
}

// Ensure JSONStorage implements Interface.
var _ Interface = (*JSONStorage)(nil)
