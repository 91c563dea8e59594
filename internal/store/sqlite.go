package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"credit-reconciliation-service/internal/reconciler"
	"credit-reconciliation-service/pkg/errors"
	"credit-reconciliation-service/pkg/logger"
)

const pendingSchema = `
CREATE TABLE IF NOT EXISTS pending_runs (
    run_id       TEXT PRIMARY KEY,
    created_at   TEXT NOT NULL,
    updated_at   TEXT NOT NULL,
    channel      TEXT NOT NULL,
    source       TEXT NOT NULL DEFAULT '',
    review_items INTEGER NOT NULL,
    entries      INTEGER NOT NULL,
    state        BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pending_runs_created ON pending_runs(created_at);
`

// SQLitePending stores pending states in a SQLite database, one row per run.
// The state blob is written in a single statement, so a save is atomic.
type SQLitePending struct {
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
}

// OpenSQLitePending opens (creating if needed) the database at path.
func OpenSQLitePending(ctx context.Context, path string, log logger.Logger) (*SQLitePending, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	log = log.WithComponent("pending_store")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "pending.path", path, err)
	}
	// one writer; sqlite serializes anyway
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, pendingSchema); err != nil {
		db.Close()
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "pending.path", path,
			fmt.Errorf("creating schema: %w", err))
	}

	log.WithField("path", path).Debug("Pending store opened")
	return &SQLitePending{db: db, logger: log, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLitePending) Close() error {
	return s.db.Close()
}

// SavePending inserts or replaces the state for runID.
func (s *SQLitePending) SavePending(ctx context.Context, runID string, state *reconciler.PendingState) error {
	data, err := state.Marshal()
	if err != nil {
		return errors.ReviewError(errors.CodeStateCorrupted, runID, err)
	}
	summary := state.Summary()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_runs (run_id, created_at, updated_at, channel, source, review_items, entries, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			updated_at = excluded.updated_at,
			review_items = excluded.review_items,
			entries = excluded.entries,
			state = excluded.state`,
		runID,
		summary.CreatedAt.UTC().Format(time.RFC3339Nano),
		s.now().UTC().Format(time.RFC3339Nano),
		summary.Channel,
		summary.Source,
		summary.ReviewItems,
		summary.Entries,
		data,
	)
	if err != nil {
		return errors.LedgerError(errors.CodePersistenceFailed, "pending store", err).WithContext("run_id", runID)
	}

	s.logger.WithFields(logger.Fields{
		"run_id":       runID,
		"review_items": summary.ReviewItems,
		"entries":      summary.Entries,
	}).Info("Pending state saved")
	return nil
}

// LoadPending returns the state saved for runID.
func (s *SQLitePending) LoadPending(ctx context.Context, runID string) (*reconciler.PendingState, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT state FROM pending_runs WHERE run_id = ?`, runID).Scan(&data)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ReviewError(errors.CodePendingNotFound, runID, nil)
	}
	if err != nil {
		return nil, errors.ReviewError(errors.CodeUnexpectedError, runID, err)
	}

	state, err := reconciler.UnmarshalPendingState(data)
	if err != nil {
		return nil, errors.ReviewError(errors.CodeStateCorrupted, runID, err)
	}
	return state, nil
}

// DeletePending removes the state for runID. Deleting a missing run is not an
// error.
func (s *SQLitePending) DeletePending(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_runs WHERE run_id = ?`, runID); err != nil {
		return errors.LedgerError(errors.CodePersistenceFailed, "pending store", err).WithContext("run_id", runID)
	}
	s.logger.WithField("run_id", runID).Debug("Pending state deleted")
	return nil
}

// ListPending lists saved runs, oldest first.
func (s *SQLitePending) ListPending(ctx context.Context) ([]reconciler.PendingSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, created_at, channel, source, review_items, entries
		FROM pending_runs
		ORDER BY created_at, run_id`)
	if err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "list pending runs", err)
	}
	defer rows.Close()

	var out []reconciler.PendingSummary
	for rows.Next() {
		var (
			summary   reconciler.PendingSummary
			createdAt string
		)
		if err := rows.Scan(&summary.RunID, &createdAt, &summary.Channel, &summary.Source, &summary.ReviewItems, &summary.Entries); err != nil {
			return nil, errors.InternalError(errors.CodeUnexpectedError, "list pending runs", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			summary.CreatedAt = t
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "list pending runs", err)
	}
	return out, nil
}
