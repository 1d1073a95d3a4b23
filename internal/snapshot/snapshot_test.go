package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheSmartAz/zaoya-sub001/internal/errors"
	"github.com/TheSmartAz/zaoya-sub001/internal/log"
	"github.com/TheSmartAz/zaoya-sub001/internal/repotool"
)

func newManager(t *testing.T) (*Manager, *repotool.Tree) {
	t.Helper()
	tree, err := repotool.NewTree(t.TempDir())
	require.NoError(t, err)
	m, err := NewManager(tree, t.TempDir(), log.Default())
	require.NoError(t, err)
	return m, tree
}

func TestCreateAndRestore(t *testing.T) {
	m, tree := newManager(t)
	require.NoError(t, tree.WriteFile("index.html", "v1"))
	require.NoError(t, tree.WriteFile("src/app.js", "v1"))

	id, err := m.Create("pre-task")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	// mutate the tree in every way a build might
	require.NoError(t, tree.WriteFile("index.html", "v2"))
	require.NoError(t, tree.WriteFile("src/new.js", "added"))
	require.NoError(t, tree.Remove("src/app.js"))

	restored, err := m.Restore(id)
	require.NoError(t, err)
	assert.True(t, restored)

	content, err := tree.ReadFile("index.html")
	require.NoError(t, err)
	assert.Equal(t, "v1", content)
	assert.True(t, tree.Exists("src/app.js"))
	assert.False(t, tree.Exists("src/new.js"))
}

func TestRestoreMissingSnapshot(t *testing.T) {
	m, _ := newManager(t)

	restored, err := m.Restore("does-not-exist")
	assert.False(t, restored)
	assert.True(t, errors.HasCode(err, errors.ErrCodeSnapshotMissing))
}

func TestFingerprintStableAcrossCapture(t *testing.T) {
	m, tree := newManager(t)
	require.NoError(t, tree.WriteFile("a.txt", "alpha"))
	require.NoError(t, tree.WriteFile("b.txt", "beta"))

	id1, err := m.Create("first")
	require.NoError(t, err)
	id2, err := m.Create("second")
	require.NoError(t, err)

	infos, err := m.List()
	require.NoError(t, err)
	require.Len(t, infos, 2)

	byID := map[string]Info{}
	for _, info := range infos {
		byID[info.ID] = info
	}
	// identical trees share a fingerprint, different ids
	assert.Equal(t, byID[id1].Fingerprint, byID[id2].Fingerprint)
	assert.NotEqual(t, id1, id2)

	require.NoError(t, tree.WriteFile("a.txt", "changed"))
	id3, err := m.Create("third")
	require.NoError(t, err)

	infos, err = m.List()
	require.NoError(t, err)
	for _, info := range infos {
		if info.ID == id3 {
			assert.NotEqual(t, byID[id1].Fingerprint, info.Fingerprint)
		}
	}
}

func TestListAndDelete(t *testing.T) {
	m, tree := newManager(t)
	require.NoError(t, tree.WriteFile("a.txt", "x"))

	id, err := m.Create("only")
	require.NoError(t, err)

	infos, err := m.List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "only", infos[0].Reason)
	assert.Equal(t, 1, infos[0].FileCount)

	require.NoError(t, m.Delete(id))
	infos, err = m.List()
	require.NoError(t, err)
	assert.Empty(t, infos)

	// deleting again is a no-op
	require.NoError(t, m.Delete(id))
}
