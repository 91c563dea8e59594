package reconciler

import (
	"context"

	"credit-reconciliation-service/internal/dedup"
	"credit-reconciliation-service/internal/models"
)

// PendingRepository stores pending states keyed by run id. Implementations
// must save and load a state atomically and report a missing run with an
// errors.CodePendingNotFound error.
type PendingRepository interface {
	SavePending(ctx context.Context, runID string, state *PendingState) error
	LoadPending(ctx context.Context, runID string) (*PendingState, error)
	DeletePending(ctx context.Context, runID string) error
	ListPending(ctx context.Context) ([]PendingSummary, error)
}

// LedgerStore reads the existing outcome ledgers and appends new entries.
type LedgerStore interface {
	// LoadSnapshot returns the dedup keys and the highest id of each ledger.
	LoadSnapshot(ctx context.Context) (*dedup.Snapshot, models.Sequences, error)

	// Append writes entries after the last used row of kind's ledger.
	Append(ctx context.Context, kind models.LedgerKind, entries []models.LedgerEntry) error
}
