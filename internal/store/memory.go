package store

import (
	"context"
	"sync"

	"github.com/TheSmartAz/zaoya-sub001/internal/build"
	"github.com/TheSmartAz/zaoya-sub001/internal/errors"
)

// MemoryStore keeps build state in process memory. It hands out deep copies
// so callers and the store never share mutable structures.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*build.State
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]*build.State),
	}
}

// Get returns a copy of the state for a build id
func (m *MemoryStore) Get(ctx context.Context, buildID string) (*build.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[buildID]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeStoreNotFound, "build %s not found", buildID)
	}
	return state.Clone(), nil
}

// Create persists a new state
func (m *MemoryStore) Create(ctx context.Context, state *build.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.states[state.BuildID]; exists {
		return errors.Newf(errors.ErrCodeStoreDuplicate, "build %s already exists", state.BuildID)
	}
	m.states[state.BuildID] = state.Clone()
	return nil
}

// Save replaces the persisted state
func (m *MemoryStore) Save(ctx context.Context, state *build.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.states[state.BuildID]; !exists {
		return errors.Newf(errors.ErrCodeStoreNotFound, "build %s not found", state.BuildID)
	}
	m.states[state.BuildID] = state.Clone()
	return nil
}

// List returns all known build ids
func (m *MemoryStore) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.states))
	for id := range m.states {
		ids = append(ids, id)
	}
	return ids
}
