package reconciler

import (
	"fmt"

	"credit-reconciliation-service/internal/dedup"
	"credit-reconciliation-service/internal/models"
)

// Stats counts outcomes for a run. Every row is counted exactly once.
type Stats struct {
	Total              int                  `json:"total"`
	MatchedPrimary     int                  `json:"matched_primary"`
	MatchedSecondary   int                  `json:"matched_secondary"`
	Unmatched          int                  `json:"unmatched"`
	PendingReview      int                  `json:"pending_review"`
	Duplicates         int                  `json:"duplicates"`
	DuplicatesByOrigin map[dedup.Origin]int `json:"duplicates_by_origin"`
	Malformed          int                  `json:"malformed"`
}

func newStats() Stats {
	byOrigin := make(map[dedup.Origin]int, len(dedup.Origins))
	for _, o := range dedup.Origins {
		byOrigin[o] = 0
	}
	return Stats{DuplicatesByOrigin: byOrigin}
}

func (s *Stats) addDuplicate(origin dedup.Origin) {
	if s.DuplicatesByOrigin == nil {
		s.DuplicatesByOrigin = make(map[dedup.Origin]int)
	}
	s.Duplicates++
	s.DuplicatesByOrigin[origin]++
}

func (s *Stats) addOutcome(kind models.LedgerKind) {
	switch kind {
	case models.LedgerPrimary:
		s.MatchedPrimary++
	case models.LedgerSecondary:
		s.MatchedSecondary++
	default:
		s.Unmatched++
	}
}

// Classified returns the number of rows that reached a ledger or the review
// queue.
func (s Stats) Classified() int {
	return s.MatchedPrimary + s.MatchedSecondary + s.Unmatched + s.PendingReview
}

// String returns a one-line summary.
func (s Stats) String() string {
	return fmt.Sprintf("total=%d primary=%d secondary=%d unmatched=%d review=%d duplicates=%d malformed=%d",
		s.Total, s.MatchedPrimary, s.MatchedSecondary, s.Unmatched, s.PendingReview, s.Duplicates, s.Malformed)
}
