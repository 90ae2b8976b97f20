package rootmodule

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipperhq/clipper/internal/config"
	"github.com/clipperhq/clipper/internal/database"
)

// twoRootManager builds a manager over two real temp roots, leaving it
// inactive. Tests activate explicitly.
func twoRootManager(t *testing.T) (*Manager, string, string) {
	t.Helper()
	a, b := t.TempDir(), t.TempDir()
	m := &Manager{active: -1}
	m.roots = []config.RootEntry{
		{Name: "main", Path: a, Default: true},
		{Name: "backup", Path: b},
	}
	t.Cleanup(func() { _ = database.Close() })
	return m, a, b
}

func TestActivateOpensCatalog(t *testing.T) {
	m, a, _ := twoRootManager(t)

	require.NoError(t, m.activate(0, false))
	assert.Equal(t, a, m.CurrentPath())
	assert.True(t, m.Healthy())
	assert.NotNil(t, database.GetDB())

	// The root gets its working layout on activation.
	assert.DirExists(t, filepath.Join(a, ".clipper"))
	assert.FileExists(t, database.CatalogPath(a))

	current, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, "main", current.Name)
}

func TestSelectSwitchesRoots(t *testing.T) {
	m, a, b := twoRootManager(t)
	require.NoError(t, m.activate(0, false))

	require.NoError(t, m.Select("backup"))
	assert.Equal(t, b, m.CurrentPath())

	// Selecting the active root again is a no-op.
	require.NoError(t, m.Select("backup"))
	assert.Equal(t, b, m.CurrentPath())

	assert.Error(t, m.Select("nope"))
	assert.Equal(t, b, m.CurrentPath())

	roots := m.List()
	require.Len(t, roots, 2)
	assert.Equal(t, "main", roots[0].Name)
	assert.False(t, roots[0].Active)
	assert.True(t, roots[1].Active)
	assert.Equal(t, a, roots[0].Path)
}

func TestSelectRestoresPreviousOnFailure(t *testing.T) {
	m, a, b := twoRootManager(t)
	require.NoError(t, m.activate(0, false))

	// Make the target unusable before switching.
	require.NoError(t, os.RemoveAll(b))

	assert.Error(t, m.Select("backup"))
	assert.Equal(t, a, m.CurrentPath())
	assert.True(t, m.Healthy())
}

func TestCurrentWithoutActivation(t *testing.T) {
	m := &Manager{active: -1}
	_, ok := m.Current()
	assert.False(t, ok)
	assert.Empty(t, m.CurrentPath())
	assert.False(t, m.Healthy())
}
