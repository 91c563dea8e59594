package reconciler

import (
	"fmt"

	"credit-reconciliation-service/internal/models"
	"credit-reconciliation-service/pkg/errors"
	"credit-reconciliation-service/pkg/logger"
)

// Decision is a reviewer's verdict on one review item, addressed by the
// item's Index.
type Decision struct {
	Index  int  `json:"index"`
	Accept bool `json:"accept"`
}

// Reviewer turns review items into ledger entries.
type Reviewer struct {
	logger logger.Logger
}

// NewReviewer creates a Reviewer.
func NewReviewer(log logger.Logger) *Reviewer {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Reviewer{logger: log.WithComponent("reviewer")}
}

// Resolve converts the review item with the given index into a ledger entry.
// Accepting records the suggested plate in the item's target ledger;
// rejecting records it as unmatched. The item leaves the queue and the
// ledger's sequence advances.
func (r *Reviewer) Resolve(state *PendingState, index int, accept bool) (models.LedgerEntry, error) {
	pos := findItem(state.Review, index)
	if pos < 0 {
		return models.LedgerEntry{}, errors.ReviewError(errors.CodeInvalidDecision, state.RunID,
			fmt.Errorf("no pending review item with index %d", index)).WithContext("index", index)
	}
	item := state.Review[pos]

	entry := models.LedgerEntry{
		Date:       item.Date,
		Channel:    state.Channel,
		Narration:  item.Narration,
		Amount:     item.Amount,
		Identifier: item.SuggestedPlate,
		Reference:  item.Reference,
	}
	if accept {
		entry.Ledger = item.Target
		entry.Detail = item.CustomerName
		if item.Target == models.LedgerSecondary {
			entry.Identity = item.Identity
		}
	} else {
		entry.Ledger = models.LedgerUnmatched
		entry.Detail = ReasonRejected
	}

	entry.ID = state.Sequences.Next(entry.Ledger)
	state.Batches.Add(entry)
	state.Review = append(state.Review[:pos], state.Review[pos+1:]...)
	state.Stats.PendingReview--
	state.Stats.addOutcome(entry.Ledger)

	r.logger.WithFields(logger.Fields{
		"run_id":     state.RunID,
		"index":      index,
		"accepted":   accept,
		"ledger":     entry.Ledger,
		"identifier": entry.Identifier,
		"id":         entry.ID,
	}).Info("Review item resolved")

	return entry, nil
}

// Apply resolves the items named by decisions in queue order. Items without a
// decision stay pending. Decisions are validated before anything changes, so
// an invalid set leaves the state untouched.
func (r *Reviewer) Apply(state *PendingState, decisions []Decision) ([]models.LedgerEntry, error) {
	byIndex := make(map[int]bool, len(decisions))
	for _, d := range decisions {
		if _, dup := byIndex[d.Index]; dup {
			return nil, errors.ReviewError(errors.CodeInvalidDecision, state.RunID,
				fmt.Errorf("more than one decision for index %d", d.Index)).WithContext("index", d.Index)
		}
		if findItem(state.Review, d.Index) < 0 {
			return nil, errors.ReviewError(errors.CodeInvalidDecision, state.RunID,
				fmt.Errorf("no pending review item with index %d", d.Index)).WithContext("index", d.Index)
		}
		byIndex[d.Index] = d.Accept
	}

	var order []int
	for _, item := range state.Review {
		if _, ok := byIndex[item.Index]; ok {
			order = append(order, item.Index)
		}
	}

	entries := make([]models.LedgerEntry, 0, len(order))
	for _, index := range order {
		entry, err := r.Resolve(state, index, byIndex[index])
		if err != nil {
			return entries, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func findItem(items []models.ReviewItem, index int) int {
	for i, item := range items {
		if item.Index == index {
			return i
		}
	}
	return -1
}
