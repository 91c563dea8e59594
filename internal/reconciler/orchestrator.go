package reconciler

import (
	"context"
	"time"

	"credit-reconciliation-service/internal/dedup"
	"credit-reconciliation-service/internal/models"
	"credit-reconciliation-service/pkg/errors"
	"credit-reconciliation-service/pkg/logger"
)

// Orchestrator wires the engine and the review workflow to the ledger store
// and the pending repository. Ledgers are only written once a run (or its
// review) is fully assembled in memory.
type Orchestrator struct {
	engine   *Engine
	reviewer *Reviewer
	ledgers  LedgerStore
	pending  PendingRepository
	logger   logger.Logger
	now      func() time.Time
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(engine *Engine, ledgers LedgerStore, pending PendingRepository, log logger.Logger) (*Orchestrator, error) {
	if engine == nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "orchestrator setup", nil).
			WithSuggestion("provide a classification engine")
	}
	if ledgers == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "ledger.workbook", nil, nil)
	}
	if pending == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "pending.path", nil, nil)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	log = log.WithComponent("orchestrator")

	return &Orchestrator{
		engine:   engine,
		reviewer: NewReviewer(log),
		ledgers:  ledgers,
		pending:  pending,
		logger:   log,
		now:      time.Now,
	}, nil
}

// RunRequest describes one statement run.
type RunRequest struct {
	RunID  string
	Source string
	Rows   []models.TransactionRow

	// DryRun classifies without writing ledgers or pending state.
	DryRun bool
}

// RunReport is the outcome of Reconcile.
type RunReport struct {
	RunID     string     `json:"run_id"`
	Source    string     `json:"source,omitempty"`
	Result    *RunResult `json:"result"`
	Pending   bool       `json:"pending"`
	Committed bool       `json:"committed"`
	DryRun    bool       `json:"dry_run"`
}

// Reconcile classifies req.Rows. When the review queue is empty the batches
// are appended to the ledgers; otherwise the whole state is saved under the
// run id and nothing is written until the review completes.
func (o *Orchestrator) Reconcile(ctx context.Context, req RunRequest) (*RunReport, error) {
	log := o.logger.WithFields(logger.Fields{"run_id": req.RunID, "source": req.Source})

	snapshot, sequences, err := o.loadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if err := o.mergePending(ctx, req.RunID, snapshot, &sequences); err != nil {
		return nil, err
	}
	for _, kind := range models.LedgerKinds {
		refs, narrations := snapshot.Counts(kind)
		log.WithFields(logger.Fields{
			"ledger":     kind,
			"references": refs,
			"narrations": narrations,
			"last_id":    sequences.Last(kind),
		}).Debug("Ledger snapshot loaded")
	}

	result, err := o.engine.Run(ctx, Batch{Rows: req.Rows, Snapshot: snapshot, Sequences: sequences})
	if err != nil {
		return nil, err
	}

	report := &RunReport{RunID: req.RunID, Source: req.Source, Result: result, DryRun: req.DryRun}
	if req.DryRun {
		log.Info("Dry run, nothing written")
		return report, nil
	}

	state := NewPendingState(req.RunID, o.engine.Channel(), req.Source, result, o.now())

	if !state.Complete() {
		if err := o.pending.SavePending(ctx, req.RunID, state); err != nil {
			return nil, err
		}
		report.Pending = true
		log.WithField("review_items", len(state.Review)).Info("Run saved for review")
		return report, nil
	}

	if err := o.commit(ctx, state); err != nil {
		// keep the assembled batches so the commit can be retried by run id
		if saveErr := o.pending.SavePending(ctx, req.RunID, state); saveErr != nil {
			log.WithError(saveErr).Error("Failed to save state after persistence failure")
		}
		return nil, err
	}
	report.Committed = true
	return report, nil
}

// ReviewReport is the outcome of Review.
type ReviewReport struct {
	RunID     string               `json:"run_id"`
	Resolved  []models.LedgerEntry `json:"resolved"`
	Remaining []models.ReviewItem  `json:"remaining"`
	Stats     Stats                `json:"stats"`
	Committed bool                 `json:"committed"`
}

// Review applies decisions to the pending run. Once no review items remain
// the batches are committed and the pending state is deleted; otherwise the
// updated state is saved.
func (o *Orchestrator) Review(ctx context.Context, runID string, decisions []Decision) (*ReviewReport, error) {
	state, err := o.pending.LoadPending(ctx, runID)
	if err != nil {
		return nil, err
	}

	resolved, err := o.reviewer.Apply(state, decisions)
	if err != nil {
		return nil, err
	}

	report := &ReviewReport{RunID: runID, Resolved: resolved}

	if state.Complete() {
		if err := o.commit(ctx, state); err != nil {
			if saveErr := o.pending.SavePending(ctx, runID, state); saveErr != nil {
				o.logger.WithError(saveErr).Error("Failed to save state after persistence failure")
			}
			return nil, err
		}
		if err := o.pending.DeletePending(ctx, runID); err != nil {
			return nil, err
		}
		report.Committed = true
	} else if err := o.pending.SavePending(ctx, runID, state); err != nil {
		return nil, err
	}

	report.Remaining = state.Review
	report.Stats = state.Stats
	return report, nil
}

// LoadPending returns the pending state for runID.
func (o *Orchestrator) LoadPending(ctx context.Context, runID string) (*PendingState, error) {
	return o.pending.LoadPending(ctx, runID)
}

// ListPending lists runs awaiting review.
func (o *Orchestrator) ListPending(ctx context.Context) ([]PendingSummary, error) {
	return o.pending.ListPending(ctx)
}

func (o *Orchestrator) loadSnapshot(ctx context.Context) (*dedup.Snapshot, models.Sequences, error) {
	snapshot, sequences, err := o.ledgers.LoadSnapshot(ctx)
	if err != nil {
		if _, ok := errors.AsReconcilerError(err); !ok {
			err = errors.LedgerError(errors.CodeSnapshotFailed, "ledger workbook", err)
		}
		return nil, sequences, err
	}
	return snapshot, sequences, nil
}

// mergePending adds every saved run other than runID to snapshot, so rows
// still awaiting review count as recorded, and raises each sequence to the
// highest id a saved run has assigned. A saved run that cannot be decoded is
// skipped with a warning.
func (o *Orchestrator) mergePending(ctx context.Context, runID string, snapshot *dedup.Snapshot, sequences *models.Sequences) error {
	summaries, err := o.pending.ListPending(ctx)
	if err != nil {
		return err
	}

	merged := 0
	for _, summary := range summaries {
		if summary.RunID == runID {
			continue
		}
		state, err := o.pending.LoadPending(ctx, summary.RunID)
		if err != nil {
			if errors.HasCode(err, errors.CodeStateCorrupted) {
				o.logger.WithError(err).WithField("pending_run", summary.RunID).
					Warn("Saved run unreadable, not used for duplicate detection")
				continue
			}
			return err
		}

		for _, kind := range models.LedgerKinds {
			for _, e := range state.Batches.For(kind) {
				snapshot.AddPending(e.Reference, e.Narration)
			}
			if last := state.Sequences.Last(kind); last > sequences.Last(kind) {
				sequences.Set(kind, last)
			}
		}
		for _, item := range state.Review {
			snapshot.AddPending(item.Reference, item.Narration)
		}
		merged++
	}

	if merged > 0 {
		refs, narrations := snapshot.PendingCount()
		o.logger.WithFields(logger.Fields{
			"run_id":       runID,
			"pending_runs": merged,
			"references":   refs,
			"narrations":   narrations,
		}).Info("Saved runs merged into duplicate snapshot")
	}
	return nil
}

// commit appends every non-empty batch not yet written. Ledgers written
// before a failure are marked so a retry skips them. Each ledger's last id is
// read again first; when another run has written since this one was
// classified, the batch is renumbered to follow the current last id.
func (o *Orchestrator) commit(ctx context.Context, state *PendingState) error {
	var current models.Sequences
	loaded := false

	for _, kind := range models.LedgerKinds {
		entries := state.Batches.For(kind)
		if len(entries) == 0 || state.IsCommitted(kind) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return errors.InternalError(errors.CodeCancelled, "ledger commit", err)
		}
		if !loaded {
			_, seq, err := o.loadSnapshot(ctx)
			if err != nil {
				return err
			}
			current, loaded = seq, true
		}

		if last := current.Last(kind); entries[0].ID != last+1 {
			o.logger.WithFields(logger.Fields{
				"run_id":      state.RunID,
				"ledger":      kind,
				"expected_id": entries[0].ID - 1,
				"last_id":     last,
			}).Warn("Ledger moved since the run was classified, renumbering batch")
			for i := range entries {
				entries[i].ID = last + int64(i) + 1
			}
			state.Sequences.Set(kind, entries[len(entries)-1].ID)
		}

		if err := o.ledgers.Append(ctx, kind, entries); err != nil {
			if _, ok := errors.AsReconcilerError(err); !ok {
				err = errors.LedgerError(errors.CodePersistenceFailed, kind.String(), err)
			}
			return err
		}
		state.MarkCommitted(kind)
		o.logger.WithFields(logger.Fields{
			"run_id":  state.RunID,
			"ledger":  kind,
			"entries": len(entries),
		}).Info("Ledger batch committed")
	}
	return nil
}
