package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheSmartAz/zaoya-sub001/internal/build"
	"github.com/TheSmartAz/zaoya-sub001/internal/errors"
	"github.com/TheSmartAz/zaoya-sub001/internal/graph"
)

// storeUnderTest lets the same contract tests run against every Store
// implementation.
func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()

	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
	}
}

func TestStoreContract(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Get(ctx, "missing")
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeStoreNotFound, errors.CodeOf(err))

			state := build.NewState("build-1", "project-1", "user-1")
			require.NoError(t, s.Create(ctx, state))

			err = s.Create(ctx, state)
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeStoreDuplicate, errors.CodeOf(err))

			loaded, err := s.Get(ctx, "build-1")
			require.NoError(t, err)
			assert.Equal(t, build.PhasePlanning, loaded.Phase)

			loaded.SetPhase(build.PhaseImplementing)
			require.NoError(t, s.Save(ctx, loaded))

			reloaded, err := s.Get(ctx, "build-1")
			require.NoError(t, err)
			assert.Equal(t, build.PhaseImplementing, reloaded.Phase)

			orphan := build.NewState("never-created", "p", "u")
			err = s.Save(ctx, orphan)
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeStoreNotFound, errors.CodeOf(err))
		})
	}
}

func TestMemoryStoreIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	state := build.NewState("build-1", "project-1", "user-1")
	state.BuildGraph = &graph.BuildGraph{Tasks: []graph.Task{
		{ID: "task_001", Status: graph.StatusTodo},
	}}
	require.NoError(t, s.Create(ctx, state))

	// Mutating the caller's copy after Create must not leak into the store.
	state.BuildGraph.Tasks[0].Status = graph.StatusDone

	loaded, err := s.Get(ctx, "build-1")
	require.NoError(t, err)
	assert.Equal(t, graph.StatusTodo, loaded.BuildGraph.Tasks[0].Status)

	// Mutating a Get result must not leak either.
	loaded.BuildGraph.Tasks[0].Status = graph.StatusFailed
	again, err := s.Get(ctx, "build-1")
	require.NoError(t, err)
	assert.Equal(t, graph.StatusTodo, again.BuildGraph.Tasks[0].Status)
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewFileStore(dir)
	require.NoError(t, err)

	state := build.NewState("build-1", "project-1", "user-1")
	state.Brief = "marketing site for a bakery"
	require.NoError(t, first.Create(ctx, state))

	second, err := NewFileStore(dir)
	require.NoError(t, err)

	loaded, err := second.Get(ctx, "build-1")
	require.NoError(t, err)
	assert.Equal(t, "marketing site for a bakery", loaded.Brief)

	ids, err := second.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"build-1"}, ids)
}

func TestFileStoreRejectsUnknownPhaseOnLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewFileStore(dir)
	require.NoError(t, err)

	path := filepath.Join(dir, "build-bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"build_id":"build-bad","phase":"warming-up"}`), 0600))

	_, err = s.Get(ctx, "build-bad")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeBuildUnknownPhase, errors.CodeOf(err))
}

func TestMemoryStoreList(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Create(ctx, build.NewState("a", "p", "u")))
	require.NoError(t, s.Create(ctx, build.NewState("b", "p", "u")))

	assert.ElementsMatch(t, []string{"a", "b"}, s.List())
}
