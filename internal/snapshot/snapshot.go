// Package snapshot captures and restores checkpoints of a build's file
// tree. A snapshot is taken before risky phases so a failed task can roll
// the tree back to its last good state.
package snapshot

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/TheSmartAz/zaoya-sub001/internal/errors"
	"github.com/TheSmartAz/zaoya-sub001/internal/log"
	"github.com/TheSmartAz/zaoya-sub001/internal/repotool"
)

// Info describes a stored snapshot without its file contents
type Info struct {
	ID          string    `json:"id"`
	Reason      string    `json:"reason,omitempty"`
	Fingerprint string    `json:"fingerprint"`
	FileCount   int       `json:"file_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// checkpoint is the on-disk snapshot format
type checkpoint struct {
	Info
	Files map[string]string `json:"files"`
}

// Manager creates and restores snapshots of one build's tree
type Manager struct {
	tree   *repotool.Tree
	dir    string
	logger *log.Logger
}

// NewManager creates a snapshot manager storing checkpoints under dir
func NewManager(tree *repotool.Tree, dir string, logger *log.Logger) (*Manager, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSnapshotCreate, "failed to create snapshot directory", err)
	}
	return &Manager{tree: tree, dir: dir, logger: logger.With("component", "snapshot")}, nil
}

// Create captures the current tree and returns the snapshot id
func (m *Manager) Create(reason string) (string, error) {
	files, err := m.tree.Snapshot()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeSnapshotCreate, "failed to capture tree", err)
	}

	cp := checkpoint{
		Info: Info{
			ID:          uuid.New().String(),
			Reason:      reason,
			Fingerprint: fingerprint(files),
			FileCount:   len(files),
			CreatedAt:   time.Now().UTC(),
		},
		Files: files,
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeSnapshotCreate, "failed to encode snapshot", err)
	}

	path := m.path(cp.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return "", errors.Wrap(errors.ErrCodeSnapshotCreate, "failed to write snapshot", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", errors.Wrap(errors.ErrCodeSnapshotCreate, "failed to finalize snapshot", err)
	}

	m.logger.Debug("snapshot created", "snapshot_id", cp.ID, "reason", reason, "files", len(files))
	return cp.ID, nil
}

// Restore rewrites the tree to match the snapshot, removing files created
// since it was taken. The boolean reports whether a restore happened.
func (m *Manager) Restore(id string) (bool, error) {
	cp, err := m.load(id)
	if err != nil {
		return false, err
	}
	if err := m.tree.Restore(cp.Files); err != nil {
		return false, errors.Wrap(errors.ErrCodeSnapshotRestore, "failed to restore tree from snapshot "+id, err)
	}
	m.logger.Info("snapshot restored", "snapshot_id", id, "files", len(cp.Files))
	return true, nil
}

// List returns stored snapshots, newest first
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to list snapshots", err)
	}

	var infos []Info
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		cp, err := m.load(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		infos = append(infos, cp.Info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.After(infos[j].CreatedAt) })
	return infos, nil
}

// Delete removes a snapshot; deleting a missing snapshot is not an error
func (m *Manager) Delete(id string) error {
	if err := os.Remove(m.path(id)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to delete snapshot "+id, err)
	}
	return nil
}

func (m *Manager) load(id string) (*checkpoint, error) {
	data, err := os.ReadFile(m.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrCodeSnapshotMissing, "snapshot not found: %s", id)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read snapshot "+id, err)
	}
	var cp checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileUnmarshal, "failed to decode snapshot "+id, err)
	}
	return &cp, nil
}

func (m *Manager) path(id string) string {
	return filepath.Join(m.dir, id+".json")
}

// fingerprint hashes the tree content so identical trees share a
// fingerprint regardless of capture order
func fingerprint(files map[string]string) string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := blake3.New()
	for _, p := range paths {
		h.Write([]byte(p))
		h.Write([]byte{0})
		h.Write([]byte(files[p]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
