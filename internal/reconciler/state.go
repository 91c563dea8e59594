package reconciler

import (
	"encoding/json"
	"fmt"
	"time"

	"credit-reconciliation-service/internal/models"
)

// PendingState is everything needed to finish a run in a later invocation:
// the ledger batches built so far, the review queue and the sequences. It is
// saved and loaded as one unit.
type PendingState struct {
	RunID     string              `json:"run_id"`
	CreatedAt time.Time           `json:"created_at"`
	Channel   string              `json:"channel"`
	Source    string              `json:"source,omitempty"`
	Batches   Batches             `json:"batches"`
	Review    []models.ReviewItem `json:"review"`
	Sequences models.Sequences    `json:"sequences"`
	Stats     Stats               `json:"stats"`

	// Committed lists ledgers whose batch has already been appended.
	Committed []models.LedgerKind `json:"committed,omitempty"`
}

// NewPendingState captures result for later resolution.
func NewPendingState(runID, channel, source string, result *RunResult, createdAt time.Time) *PendingState {
	return &PendingState{
		RunID:     runID,
		CreatedAt: createdAt.UTC(),
		Channel:   channel,
		Source:    source,
		Batches:   result.Batches,
		Review:    append([]models.ReviewItem(nil), result.Review...),
		Sequences: result.Sequences,
		Stats:     result.Stats,
	}
}

// Complete reports whether every review item has been resolved, so the
// batches can be committed.
func (s *PendingState) Complete() bool {
	return len(s.Review) == 0
}

// IsCommitted reports whether kind's batch has been appended already.
func (s *PendingState) IsCommitted(kind models.LedgerKind) bool {
	for _, k := range s.Committed {
		if k == kind {
			return true
		}
	}
	return false
}

// MarkCommitted records that kind's batch was appended.
func (s *PendingState) MarkCommitted(kind models.LedgerKind) {
	if !s.IsCommitted(kind) {
		s.Committed = append(s.Committed, kind)
	}
}

// Summary returns the listing view of the state.
func (s *PendingState) Summary() PendingSummary {
	return PendingSummary{
		RunID:       s.RunID,
		CreatedAt:   s.CreatedAt,
		Channel:     s.Channel,
		Source:      s.Source,
		ReviewItems: len(s.Review),
		Entries:     s.Batches.Len(),
	}
}

// Marshal serializes the state.
func (s *PendingState) Marshal() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pending state %s: %w", s.RunID, err)
	}
	return data, nil
}

// UnmarshalPendingState restores a state produced by Marshal.
func UnmarshalPendingState(data []byte) (*PendingState, error) {
	var s PendingState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode pending state: %w", err)
	}
	if s.RunID == "" {
		return nil, fmt.Errorf("failed to decode pending state: missing run id")
	}
	if s.Stats.DuplicatesByOrigin == nil {
		s.Stats.DuplicatesByOrigin = newStats().DuplicatesByOrigin
	}
	return &s, nil
}

// PendingSummary describes a saved pending state.
type PendingSummary struct {
	RunID       string    `json:"run_id"`
	CreatedAt   time.Time `json:"created_at"`
	Channel     string    `json:"channel"`
	Source      string    `json:"source,omitempty"`
	ReviewItems int       `json:"review_items"`
	Entries     int       `json:"entries"`
}
