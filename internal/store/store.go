// Package store persists build state between orchestrator steps. The store
// is the single source of truth while no step is executing; implementations
// must support atomic create/get/save per build id.
package store

import (
	"context"

	"github.com/TheSmartAz/zaoya-sub001/internal/build"
)

// Store is the abstract persistence collaborator for build state. The
// orchestrator never assumes a specific backing store.
type Store interface {
	// Get returns the state for a build id, or a STORE-001 error when no
	// such build exists.
	Get(ctx context.Context, buildID string) (*build.State, error)

	// Create persists a new state, failing with STORE-002 when the build id
	// already exists.
	Create(ctx context.Context, state *build.State) error

	// Save replaces the persisted state, failing with STORE-001 when the
	// build was never created.
	Save(ctx context.Context, state *build.State) error
}
