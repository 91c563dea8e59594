package store

import (
	"context"
	"sort"
	"sync"

	"credit-reconciliation-service/internal/reconciler"
	"credit-reconciliation-service/pkg/errors"
)

// MemoryPending keeps pending states in process memory. States are stored
// serialized so callers never share a state value with the store.
type MemoryPending struct {
	mu     sync.RWMutex
	states map[string][]byte
}

// NewMemoryPending creates an empty MemoryPending.
func NewMemoryPending() *MemoryPending {
	return &MemoryPending{states: make(map[string][]byte)}
}

// SavePending stores state under runID.
func (m *MemoryPending) SavePending(ctx context.Context, runID string, state *reconciler.PendingState) error {
	data, err := state.Marshal()
	if err != nil {
		return errors.ReviewError(errors.CodeStateCorrupted, runID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[runID] = data
	return nil
}

// LoadPending returns a copy of the state saved under runID.
func (m *MemoryPending) LoadPending(ctx context.Context, runID string) (*reconciler.PendingState, error) {
	m.mu.RLock()
	data, ok := m.states[runID]
	m.mu.RUnlock()

	if !ok {
		return nil, errors.ReviewError(errors.CodePendingNotFound, runID, nil)
	}
	state, err := reconciler.UnmarshalPendingState(data)
	if err != nil {
		return nil, errors.ReviewError(errors.CodeStateCorrupted, runID, err)
	}
	return state, nil
}

// DeletePending removes runID.
func (m *MemoryPending) DeletePending(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, runID)
	return nil
}

// ListPending lists saved runs, oldest first.
func (m *MemoryPending) ListPending(ctx context.Context) ([]reconciler.PendingSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]reconciler.PendingSummary, 0, len(m.states))
	for runID, data := range m.states {
		state, err := reconciler.UnmarshalPendingState(data)
		if err != nil {
			return nil, errors.ReviewError(errors.CodeStateCorrupted, runID, err)
		}
		out = append(out, state.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].RunID < out[j].RunID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

var (
	_ reconciler.PendingRepository = (*MemoryPending)(nil)
	_ reconciler.PendingRepository = (*SQLitePending)(nil)
	_ reconciler.LedgerStore       = (*Workbook)(nil)
)
