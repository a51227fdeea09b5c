package scaffold

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/dyluth/coordinator/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	t.Run("config only", func(t *testing.T) {
		dir := t.TempDir()
		paths, err := Initialize(Options{Dir: dir})
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, config.DefaultPath)}, paths)

		cfg, err := config.Load(paths[0])
		require.NoError(t, err)
		assert.Equal(t, "localhost:3030", cfg.Addr())
		assert.False(t, cfg.Server.LeaveOnDisconnect)

		_, err = os.Stat(filepath.Join(dir, MCPFile))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("with mcp registration", func(t *testing.T) {
		dir := t.TempDir()
		paths, err := Initialize(Options{Dir: dir, Host: "0.0.0.0", Port: 4040, MCP: true})
		require.NoError(t, err)
		require.Len(t, paths, 2)

		cfg, err := config.Load(filepath.Join(dir, config.DefaultPath))
		require.NoError(t, err)
		assert.Equal(t, 4040, cfg.Server.Port)

		data, err := os.ReadFile(filepath.Join(dir, MCPFile))
		require.NoError(t, err)

		var registration struct {
			MCPServers map[string]struct {
				Command string   `json:"command"`
				Args    []string `json:"args"`
			} `json:"mcpServers"`
		}
		require.NoError(t, json.Unmarshal(data, &registration))
		server := registration.MCPServers["coordinator"]
		assert.Equal(t, "coordinator", server.Command)
		assert.Equal(t, []string{"mcp", "--url", "ws://0.0.0.0:4040"}, server.Args)
	})

	t.Run("refuses to overwrite", func(t *testing.T) {
		dir := t.TempDir()
		existing := filepath.Join(dir, config.DefaultPath)
		require.NoError(t, os.WriteFile(existing, []byte("old content"), 0644))

		_, err := Initialize(Options{Dir: dir, MCP: true})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "found existing coordinator.yml")

		content, err := os.ReadFile(existing)
		require.NoError(t, err)
		assert.Equal(t, "old content", string(content))
	})

	t.Run("force overwrites", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, config.DefaultPath), []byte("old content"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, MCPFile), []byte("{}"), 0644))

		_, err := Initialize(Options{Dir: dir, MCP: true, Force: true})
		require.NoError(t, err)

		_, err = config.Load(filepath.Join(dir, config.DefaultPath))
		assert.NoError(t, err)
	})
}

func TestCheckExisting(t *testing.T) {
	dir := t.TempDir()
	files := []FileInfo{
		{Path: filepath.Join(dir, config.DefaultPath)},
		{Path: filepath.Join(dir, MCPFile)},
	}
	assert.NoError(t, CheckExisting(files))

	for _, f := range files {
		require.NoError(t, os.WriteFile(f.Path, []byte("x"), 0644))
	}
	err := CheckExisting(files)
	require.Error(t, err)
	assert.Equal(t, "workspace already initialized: found existing coordinator.yml, .mcp.json", err.Error())
}

func TestPrintSuccess(t *testing.T) {
	var buf bytes.Buffer
	PrintSuccess(&buf, []string{"/repo/coordinator.yml"})
	assert.Contains(t, buf.String(), "✓ /repo/coordinator.yml")
	assert.Contains(t, buf.String(), "coordinator serve")
}
