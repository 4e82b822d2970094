package cache

import (
	"context"
	"slices"
	"sync"
)

// ExpiryStateStore remembers, per owner, which expiring product ids were
// last announced so repeated evaluations of the same set stay quiet.
type ExpiryStateStore interface {
	LastNotified(ctx context.Context, ownerID string) ([]string, bool, error)
	SetLastNotified(ctx context.Context, ownerID string, ids []string) error
	Reset(ctx context.Context, ownerID string) error
}

type MemoryExpiryState struct {
	mu    sync.Mutex
	state map[string][]string
}

func NewMemoryExpiryState() *MemoryExpiryState {
	return &MemoryExpiryState{state: make(map[string][]string)}
}

func (m *MemoryExpiryState) LastNotified(_ context.Context, ownerID string) ([]string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids, ok := m.state[ownerID]
	return slices.Clone(ids), ok, nil
}

func (m *MemoryExpiryState) SetLastNotified(_ context.Context, ownerID string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[ownerID] = slices.Clone(ids)
	return nil
}

func (m *MemoryExpiryState) Reset(_ context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state, ownerID)
	return nil
}
