package reconciler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"credit-reconciliation-service/internal/dedup"
	"credit-reconciliation-service/internal/models"
	"credit-reconciliation-service/pkg/errors"
	"credit-reconciliation-service/pkg/logger"
)

type fakeLedgers struct {
	entries     map[models.LedgerKind][]models.LedgerEntry
	appends     map[models.LedgerKind]int
	failOn      models.LedgerKind
	failures    int
	snapshotErr error
}

func newFakeLedgers() *fakeLedgers {
	return &fakeLedgers{
		entries: make(map[models.LedgerKind][]models.LedgerEntry),
		appends: make(map[models.LedgerKind]int),
	}
}

func (f *fakeLedgers) LoadSnapshot(ctx context.Context) (*dedup.Snapshot, models.Sequences, error) {
	if f.snapshotErr != nil {
		return nil, models.Sequences{}, f.snapshotErr
	}
	snapshot := dedup.NewSnapshot()
	var seq models.Sequences
	for kind, entries := range f.entries {
		for _, e := range entries {
			snapshot.AddRecord(kind, e.Reference, e.Narration)
			if e.ID > seq.Last(kind) {
				seq.Set(kind, e.ID)
			}
		}
	}
	return snapshot, seq, nil
}

func (f *fakeLedgers) Append(ctx context.Context, kind models.LedgerKind, entries []models.LedgerEntry) error {
	if kind == f.failOn && f.failures > 0 {
		f.failures--
		return fmt.Errorf("workbook locked")
	}
	f.entries[kind] = append(f.entries[kind], entries...)
	f.appends[kind]++
	return nil
}

type fakePending struct {
	states map[string][]byte
}

func newFakePending() *fakePending {
	return &fakePending{states: make(map[string][]byte)}
}

func (f *fakePending) SavePending(ctx context.Context, runID string, state *PendingState) error {
	data, err := state.Marshal()
	if err != nil {
		return err
	}
	f.states[runID] = data
	return nil
}

func (f *fakePending) LoadPending(ctx context.Context, runID string) (*PendingState, error) {
	data, ok := f.states[runID]
	if !ok {
		return nil, errors.ReviewError(errors.CodePendingNotFound, runID, nil)
	}
	return UnmarshalPendingState(data)
}

func (f *fakePending) DeletePending(ctx context.Context, runID string) error {
	delete(f.states, runID)
	return nil
}

func (f *fakePending) ListPending(ctx context.Context) ([]PendingSummary, error) {
	var out []PendingSummary
	for _, data := range f.states {
		s, err := UnmarshalPendingState(data)
		if err != nil {
			return nil, err
		}
		out = append(out, s.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunID < out[j].RunID })
	return out, nil
}

func newTestOrchestrator(t *testing.T, ledgers *fakeLedgers, pending *fakePending) *Orchestrator {
	t.Helper()
	engine := newTestEngine(t,
		[]models.CustomerRecord{phoneRecord("0752900450", "Asha")},
		[]models.CustomerRecord{plateRecord("MC456KDA", "Neema", "ID-9")},
	)
	o, err := NewOrchestrator(engine, ledgers, pending, logger.Nop())
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}
	return o
}

func TestReconcileCommitsWithoutReview(t *testing.T) {
	ledgers, pending := newFakeLedgers(), newFakePending()
	o := newTestOrchestrator(t, ledgers, pending)

	rows := []models.TransactionRow{
		row("PAYMENT FROM 0752900450 REF:AB100", 5000),
		row("CASH DEPOSIT BRANCH", 100),
	}

	report, err := o.Reconcile(context.Background(), RunRequest{RunID: "run-1", Rows: rows})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !report.Committed || report.Pending {
		t.Errorf("expected committed run, got %+v", report)
	}
	if len(ledgers.entries[models.LedgerPrimary]) != 1 || len(ledgers.entries[models.LedgerUnmatched]) != 1 {
		t.Errorf("unexpected ledgers: %+v", ledgers.entries)
	}
	if ledgers.appends[models.LedgerSecondary] != 0 {
		t.Error("empty batches must not be appended")
	}
	if len(pending.states) != 0 {
		t.Error("no pending state expected")
	}

	// a second run of the same statement writes nothing new
	report, err = o.Reconcile(context.Background(), RunRequest{RunID: "run-2", Rows: rows})
	if err != nil {
		t.Fatalf("second Reconcile() error = %v", err)
	}
	if report.Result.Stats.Duplicates != 2 {
		t.Errorf("Duplicates = %d, want 2", report.Result.Stats.Duplicates)
	}
	if len(ledgers.entries[models.LedgerPrimary]) != 1 || len(ledgers.entries[models.LedgerUnmatched]) != 1 {
		t.Errorf("rerun appended entries: %+v", ledgers.entries)
	}
}

func TestReconcileContinuesSequences(t *testing.T) {
	ledgers, pending := newFakeLedgers(), newFakePending()
	ledgers.entries[models.LedgerPrimary] = []models.LedgerEntry{{ID: 41, Narration: "OLD", Reference: "OLD1"}}
	o := newTestOrchestrator(t, ledgers, pending)

	_, err := o.Reconcile(context.Background(), RunRequest{
		RunID: "run-1",
		Rows:  []models.TransactionRow{row("PAYMENT FROM 0752900450 REF:AB100", 5000)},
	})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if got := ledgers.entries[models.LedgerPrimary][1].ID; got != 42 {
		t.Errorf("ID = %d, want 42", got)
	}
}

func TestReconcileDryRun(t *testing.T) {
	ledgers, pending := newFakeLedgers(), newFakePending()
	o := newTestOrchestrator(t, ledgers, pending)

	report, err := o.Reconcile(context.Background(), RunRequest{
		RunID:  "run-1",
		Rows:   []models.TransactionRow{row("FARE KDA456MC", 700), row("CASH DEPOSIT BRANCH", 100)},
		DryRun: true,
	})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if report.Committed || report.Pending || !report.DryRun {
		t.Errorf("unexpected report: %+v", report)
	}
	if len(ledgers.entries) != 0 || len(pending.states) != 0 {
		t.Error("dry run must not write")
	}
}

func TestReconcileWithReview(t *testing.T) {
	ledgers, pending := newFakeLedgers(), newFakePending()
	o := newTestOrchestrator(t, ledgers, pending)
	ctx := context.Background()

	report, err := o.Reconcile(ctx, RunRequest{
		RunID:  "run-1",
		Source: "march.xlsx",
		Rows: []models.TransactionRow{
			row("PAYMENT FROM 0752900450 REF:AB100", 5000),
			row("FARE KDA456MC", 700),
		},
	})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !report.Pending || report.Committed {
		t.Fatalf("expected pending run, got %+v", report)
	}
	if len(ledgers.entries) != 0 {
		t.Error("nothing may be written while review is pending")
	}

	summaries, err := o.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(summaries) != 1 || summaries[0].RunID != "run-1" || summaries[0].ReviewItems != 1 || summaries[0].Source != "march.xlsx" {
		t.Errorf("unexpected summaries: %+v", summaries)
	}

	// an empty decision set keeps the run pending
	rr, err := o.Review(ctx, "run-1", nil)
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if rr.Committed || len(rr.Remaining) != 1 {
		t.Errorf("expected run to stay pending, got %+v", rr)
	}

	rr, err = o.Review(ctx, "run-1", []Decision{{Index: 0, Accept: true}})
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if !rr.Committed || len(rr.Remaining) != 0 || len(rr.Resolved) != 1 {
		t.Errorf("expected committed review, got %+v", rr)
	}
	if len(ledgers.entries[models.LedgerPrimary]) != 1 || len(ledgers.entries[models.LedgerSecondary]) != 1 {
		t.Errorf("unexpected ledgers: %+v", ledgers.entries)
	}
	if got := ledgers.entries[models.LedgerSecondary][0]; got.Identity != "ID-9" || got.ID != 1 {
		t.Errorf("unexpected secondary entry: %+v", got)
	}
	if _, err := o.LoadPending(ctx, "run-1"); !errors.HasCode(err, errors.CodePendingNotFound) {
		t.Errorf("pending state must be deleted after commit, got %v", err)
	}
}

func TestReconcileSeesRunsAwaitingReview(t *testing.T) {
	ledgers, pending := newFakeLedgers(), newFakePending()
	o := newTestOrchestrator(t, ledgers, pending)
	ctx := context.Background()

	rows := []models.TransactionRow{
		row("PAYMENT FROM 0752900450 REF:AB100", 5000),
		row("FARE KDA456MC", 700),
	}

	first, err := o.Reconcile(ctx, RunRequest{RunID: "run-1", Rows: rows})
	if err != nil {
		t.Fatalf("Reconcile(run-1) error = %v", err)
	}
	if !first.Pending {
		t.Fatalf("run-1 should wait for review, got %+v", first)
	}

	second, err := o.Reconcile(ctx, RunRequest{RunID: "run-2", Rows: rows})
	if err != nil {
		t.Fatalf("Reconcile(run-2) error = %v", err)
	}
	s := second.Result.Stats
	if s.Duplicates != 2 || s.DuplicatesByOrigin[dedup.OriginPending] != 2 || s.MatchedPrimary != 0 || s.PendingReview != 0 {
		t.Errorf("run-2 stats = %s %v, want both rows duplicates of run-1", s, s.DuplicatesByOrigin)
	}

	if _, err := o.Review(ctx, "run-1", []Decision{{Index: 0, Accept: true}}); err != nil {
		t.Fatalf("Review(run-1) error = %v", err)
	}
	if got := len(ledgers.entries[models.LedgerPrimary]); got != 1 {
		t.Errorf("primary ledger has %d entries, want 1", got)
	}
	if got := len(ledgers.entries[models.LedgerSecondary]); got != 1 {
		t.Errorf("secondary ledger has %d entries, want 1", got)
	}
}

func TestCommitRenumbersWhenLedgerMoved(t *testing.T) {
	ledgers, pending := newFakeLedgers(), newFakePending()
	o := newTestOrchestrator(t, ledgers, pending)
	ctx := context.Background()

	_, err := o.Reconcile(ctx, RunRequest{RunID: "run-1", Rows: []models.TransactionRow{
		row("PAYMENT FROM 0752900450 REF:AB100", 5000),
		row("FARE KDA456MC", 700),
	}})
	if err != nil {
		t.Fatalf("Reconcile(run-1) error = %v", err)
	}

	second, err := o.Reconcile(ctx, RunRequest{RunID: "run-2", Rows: []models.TransactionRow{
		row("PAYMENT FROM 0752900450 REF:AB200", 3000),
	}})
	if err != nil {
		t.Fatalf("Reconcile(run-2) error = %v", err)
	}
	if !second.Committed {
		t.Fatalf("run-2 should commit, got %+v", second)
	}

	if _, err := o.Review(ctx, "run-1", []Decision{{Index: 0, Accept: true}}); err != nil {
		t.Fatalf("Review(run-1) error = %v", err)
	}

	primary := ledgers.entries[models.LedgerPrimary]
	if len(primary) != 2 {
		t.Fatalf("primary ledger = %+v, want 2 entries", primary)
	}
	wantOrder := []string{"REF:AB200", "REF:AB100"}
	for i, e := range primary {
		if e.ID != int64(i+1) {
			t.Errorf("primary[%d].ID = %d, want %d", i, e.ID, i+1)
		}
		if !strings.HasSuffix(e.Narration, wantOrder[i]) {
			t.Errorf("primary[%d] = %q, want suffix %q", i, e.Narration, wantOrder[i])
		}
	}
	if got := ledgers.entries[models.LedgerSecondary]; len(got) != 1 || got[0].ID != 1 {
		t.Errorf("secondary ledger = %+v, want one entry with id 1", got)
	}
}

func TestReviewUnknownRun(t *testing.T) {
	o := newTestOrchestrator(t, newFakeLedgers(), newFakePending())

	_, err := o.Review(context.Background(), "missing", nil)
	if !errors.HasCode(err, errors.CodePendingNotFound) {
		t.Errorf("Review() error = %v, want code %s", err, errors.CodePendingNotFound)
	}
}

func TestReviewInvalidDecisionKeepsState(t *testing.T) {
	ledgers, pending := newFakeLedgers(), newFakePending()
	o := newTestOrchestrator(t, ledgers, pending)
	ctx := context.Background()

	if _, err := o.Reconcile(ctx, RunRequest{RunID: "run-1", Rows: []models.TransactionRow{row("FARE KDA456MC", 700)}}); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	_, err := o.Review(ctx, "run-1", []Decision{{Index: 3, Accept: true}})
	if !errors.HasCode(err, errors.CodeInvalidDecision) {
		t.Errorf("Review() error = %v, want code %s", err, errors.CodeInvalidDecision)
	}
	state, err := o.LoadPending(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadPending() error = %v", err)
	}
	if len(state.Review) != 1 {
		t.Errorf("review queue changed: %+v", state.Review)
	}
}

func TestReconcilePersistenceFailureIsRetryable(t *testing.T) {
	ledgers, pending := newFakeLedgers(), newFakePending()
	ledgers.failOn = models.LedgerUnmatched
	ledgers.failures = 1
	o := newTestOrchestrator(t, ledgers, pending)
	ctx := context.Background()

	_, err := o.Reconcile(ctx, RunRequest{
		RunID: "run-1",
		Rows: []models.TransactionRow{
			row("PAYMENT FROM 0752900450 REF:AB100", 5000),
			row("CASH DEPOSIT BRANCH", 100),
		},
	})
	if !errors.HasCode(err, errors.CodePersistenceFailed) {
		t.Fatalf("Reconcile() error = %v, want code %s", err, errors.CodePersistenceFailed)
	}

	state, err := o.LoadPending(ctx, "run-1")
	if err != nil {
		t.Fatalf("state must be kept for retry: %v", err)
	}
	if !state.IsCommitted(models.LedgerPrimary) || state.IsCommitted(models.LedgerUnmatched) {
		t.Errorf("Committed = %v", state.Committed)
	}

	rr, err := o.Review(ctx, "run-1", nil)
	if err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if !rr.Committed {
		t.Error("expected retry to commit")
	}
	if ledgers.appends[models.LedgerPrimary] != 1 || ledgers.appends[models.LedgerUnmatched] != 1 {
		t.Errorf("each ledger must be appended once, got %v", ledgers.appends)
	}
	if len(pending.states) != 0 {
		t.Error("pending state must be deleted after retry")
	}
}

func TestReconcileSnapshotFailure(t *testing.T) {
	ledgers := newFakeLedgers()
	ledgers.snapshotErr = fmt.Errorf("permission denied")
	o := newTestOrchestrator(t, ledgers, newFakePending())

	_, err := o.Reconcile(context.Background(), RunRequest{
		RunID: "run-1",
		Rows:  []models.TransactionRow{row("CASH", 1)},
	})
	if !errors.HasCode(err, errors.CodeSnapshotFailed) {
		t.Errorf("Reconcile() error = %v, want code %s", err, errors.CodeSnapshotFailed)
	}
}

func TestNewOrchestratorValidation(t *testing.T) {
	engine := newTestEngine(t, nil, nil)

	if _, err := NewOrchestrator(nil, newFakeLedgers(), newFakePending(), nil); err == nil {
		t.Error("expected error for nil engine")
	}
	if _, err := NewOrchestrator(engine, nil, newFakePending(), nil); !errors.HasCode(err, errors.CodeMissingConfig) {
		t.Errorf("expected missing config for nil ledgers, got %v", err)
	}
	if _, err := NewOrchestrator(engine, newFakeLedgers(), nil, nil); !errors.HasCode(err, errors.CodeMissingConfig) {
		t.Errorf("expected missing config for nil pending, got %v", err)
	}
}
