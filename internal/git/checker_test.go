package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gitInit(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	cmd := exec.Command("git", "init")
	cmd.Dir = dir
	require.NoError(t, cmd.Run())

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	return resolved
}

func TestRoot(t *testing.T) {
	t.Run("repository root", func(t *testing.T) {
		dir := gitInit(t)
		root, err := Root(dir)
		require.NoError(t, err)
		assert.Equal(t, dir, root)
	})

	t.Run("subdirectory resolves to root", func(t *testing.T) {
		dir := gitInit(t)
		sub := filepath.Join(dir, "pkg", "api")
		require.NoError(t, os.MkdirAll(sub, 0755))

		root, err := Root(sub)
		require.NoError(t, err)
		assert.Equal(t, dir, root)
	})

	t.Run("not a repository", func(t *testing.T) {
		if _, err := exec.LookPath("git"); err != nil {
			t.Skip("git not installed")
		}
		_, err := Root(t.TempDir())
		assert.ErrorIs(t, err, ErrNotRepository)
	})
}

func TestWorkspaceDir(t *testing.T) {
	dir := gitInit(t)
	sub := filepath.Join(dir, "cmd")
	require.NoError(t, os.MkdirAll(sub, 0755))
	assert.Equal(t, dir, WorkspaceDir(sub))

	plain := t.TempDir()
	assert.Equal(t, filepath.Clean(plain), WorkspaceDir(plain))
}
