package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/TheSmartAz/zaoya-sub001/internal/build"
	"github.com/TheSmartAz/zaoya-sub001/internal/errors"
)

// FileStore persists one JSON document per build under a directory. Writes
// go through a temp file and rename so a crashed save never leaves a
// truncated state on disk.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed store rooted at dir
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to create store directory", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(buildID string) string {
	return filepath.Join(f.dir, fmt.Sprintf("%s.json", buildID))
}

// Get loads and parses the state for a build id. Unknown phases are rejected
// on load rather than coerced.
func (f *FileStore) Get(ctx context.Context, buildID string) (*build.State, error) {
	data, err := os.ReadFile(f.path(buildID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrCodeStoreNotFound, "build %s not found", buildID)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read build state", err)
	}
	return build.FromJSON(data)
}

// Create persists a new state
func (f *FileStore) Create(ctx context.Context, state *build.State) error {
	if _, err := os.Stat(f.path(state.BuildID)); err == nil {
		return errors.Newf(errors.ErrCodeStoreDuplicate, "build %s already exists", state.BuildID)
	}
	return f.write(state)
}

// Save replaces the persisted state
func (f *FileStore) Save(ctx context.Context, state *build.State) error {
	if _, err := os.Stat(f.path(state.BuildID)); err != nil {
		if os.IsNotExist(err) {
			return errors.Newf(errors.ErrCodeStoreNotFound, "build %s not found", state.BuildID)
		}
		return errors.Wrap(errors.ErrCodeFileReadFailed, "failed to stat build state", err)
	}
	return f.write(state)
}

// write marshals the state and atomically replaces the target file
func (f *FileStore) write(state *build.State) error {
	data, err := state.ToJSON()
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileMarshal, "failed to marshal build state", err)
	}

	tmp, err := os.CreateTemp(f.dir, state.BuildID+".tmp-*")
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to create temp file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write build state", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to close temp file", err)
	}

	if err := os.Rename(tmpName, f.path(state.BuildID)); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to replace build state", err)
	}
	return nil
}

// List returns all build ids persisted in the directory
func (f *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read store directory", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}
