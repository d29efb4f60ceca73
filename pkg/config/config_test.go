package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg := LoadFromEnv()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 128, cfg.Index.Dimension)
	assert.Equal(t, "inprocess", cfg.Node.Transport)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("VRAFT_INDEX_DIMENSION", "256")
	t.Setenv("VRAFT_NODE_ID", "node-7")
	t.Setenv("VRAFT_NODE_PEERS", "a, b ,c")
	t.Setenv("VRAFT_NODE_TRANSPORT", "websocket")

	cfg := LoadFromEnv()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 256, cfg.Index.Dimension)
	assert.Equal(t, "node-7", cfg.Node.ID)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Node.Peers)
	assert.Equal(t, "websocket", cfg.Node.Transport)
}

func TestValidateRejectsBadDimension(t *testing.T) {
	cfg := LoadFromEnv()
	cfg.Index.Dimension = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadElectionWindow(t *testing.T) {
	cfg := LoadFromEnv()
	cfg.Raft.ElectionTimeoutMax = cfg.Raft.ElectionTimeoutMin
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownTransport(t *testing.T) {
	cfg := LoadFromEnv()
	cfg.Node.Transport = "carrier-pigeon"
	assert.Error(t, cfg.Validate())
}

func TestLoadClusterFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cluster.yaml")
	content := `
servers:
  - id: node-1
    address: ws://10.0.0.1:7690/raft
  - id: node-2
    address: ws://10.0.0.2:7690/raft
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cf, err := LoadClusterFile(path)
	require.NoError(t, err)
	require.Len(t, cf.Servers, 2)
	assert.Equal(t, "node-1", cf.Servers[0].ID)

	cfg := LoadFromEnv()
	cfg.ApplyClusterFile(cf, "node-1")
	assert.Equal(t, []string{"node-2"}, cfg.Node.Peers)
	assert.Equal(t, "ws://10.0.0.2:7690/raft", cfg.Node.PeerAddresses["node-2"])
}
