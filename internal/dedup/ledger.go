// Package dedup detects transactions that were already recorded in a prior
// run or earlier in the current batch.
package dedup

import (
	"credit-reconciliation-service/internal/extractor"
	"credit-reconciliation-service/internal/models"
)

// Origin says where a duplicate was first recorded.
type Origin string

const (
	OriginPrimary   Origin = "primary"
	OriginSecondary Origin = "secondary"
	OriginUnmatched Origin = "unmatched"
	OriginPending   Origin = "pending"
	OriginBatch     Origin = "batch"
)

// Origins lists every origin in attribution order.
var Origins = []Origin{OriginPrimary, OriginSecondary, OriginUnmatched, OriginPending, OriginBatch}

// OriginOf maps an outcome ledger to its duplicate origin.
func OriginOf(kind models.LedgerKind) Origin {
	switch kind {
	case models.LedgerPrimary:
		return OriginPrimary
	case models.LedgerSecondary:
		return OriginSecondary
	default:
		return OriginUnmatched
	}
}

type keySet struct {
	references map[string]struct{}
	narrations map[string]struct{}
}

func newKeySet() *keySet {
	return &keySet{
		references: make(map[string]struct{}),
		narrations: make(map[string]struct{}),
	}
}

func (k *keySet) add(reference, narration string) {
	if reference != "" {
		k.references[reference] = struct{}{}
	}
	if narration != "" {
		k.narrations[narration] = struct{}{}
	}
}

func (k *keySet) contains(reference, narration string) bool {
	if reference != "" {
		if _, ok := k.references[reference]; ok {
			return true
		}
	}
	if narration != "" {
		if _, ok := k.narrations[narration]; ok {
			return true
		}
	}
	return false
}

// Snapshot holds the reference tokens and narrations already present in each
// outcome ledger, plus those held by runs still awaiting review.
type Snapshot struct {
	ledgers map[models.LedgerKind]*keySet
	pending *keySet
}

// NewSnapshot creates an empty snapshot.
func NewSnapshot() *Snapshot {
	s := &Snapshot{
		ledgers: make(map[models.LedgerKind]*keySet, len(models.LedgerKinds)),
		pending: newKeySet(),
	}
	for _, kind := range models.LedgerKinds {
		s.ledgers[kind] = newKeySet()
	}
	return s
}

// AddRecord records one existing ledger row. The reference is taken from the
// reference column and, additionally, re-extracted from the narration.
func (s *Snapshot) AddRecord(kind models.LedgerKind, reference, narration string) {
	set, ok := s.ledgers[kind]
	if !ok {
		return
	}
	set.add(reference, narration)
	if fromNarration := extractor.Reference(narration); fromNarration != "" {
		set.add(fromNarration, "")
	}
}

// AddPending records a row held by a saved run that has not been committed
// yet, either as a batch entry or as a review item.
func (s *Snapshot) AddPending(reference, narration string) {
	s.pending.add(reference, narration)
	if fromNarration := extractor.Reference(narration); fromNarration != "" {
		s.pending.add(fromNarration, "")
	}
}

// PendingCount returns the number of references and narrations held by
// saved runs.
func (s *Snapshot) PendingCount() (references, narrations int) {
	return len(s.pending.references), len(s.pending.narrations)
}

// Counts returns the number of references and narrations held for kind.
func (s *Snapshot) Counts(kind models.LedgerKind) (references, narrations int) {
	set, ok := s.ledgers[kind]
	if !ok {
		return 0, 0
	}
	return len(set.references), len(set.narrations)
}

// Ledger checks rows against a prior-run snapshot plus the keys recorded
// earlier in the same batch.
type Ledger struct {
	snapshot *Snapshot
	batch    *keySet
}

// NewLedger wraps snapshot. A nil snapshot means no prior runs.
func NewLedger(snapshot *Snapshot) *Ledger {
	if snapshot == nil {
		snapshot = NewSnapshot()
	}
	return &Ledger{snapshot: snapshot, batch: newKeySet()}
}

// Check reports whether the row is a duplicate and where it was first seen.
// Prior ledgers are consulted in attribution order, then saved runs, then the
// current batch.
func (l *Ledger) Check(reference, narration string) (Origin, bool) {
	for _, kind := range models.LedgerKinds {
		if l.snapshot.ledgers[kind].contains(reference, narration) {
			return OriginOf(kind), true
		}
	}
	if l.snapshot.pending.contains(reference, narration) {
		return OriginPending, true
	}
	if l.batch.contains(reference, narration) {
		return OriginBatch, true
	}
	return "", false
}

// Record adds a classified row's keys to the current batch.
func (l *Ledger) Record(reference, narration string) {
	l.batch.add(reference, narration)
}
