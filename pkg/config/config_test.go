package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"minidfs/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":50030", cfg.Namenode.HeartbeatAddress)
	assert.Equal(t, ByteSize(64*utils.MegaByte), cfg.Namenode.BlockSize)
	assert.Equal(t, 5*time.Second, cfg.Namenode.SafeModePollInterval.Std())
	assert.Zero(t, cfg.Namenode.RequestTimeout)
	assert.Equal(t, DefaultMaxBlocksPerFile, cfg.Namenode.MaxBlocksPerFile)
	assert.Equal(t, "localhost:50030", cfg.Datanode.NamenodeAddress)
}

func TestLoadConfigJSON(t *testing.T) {
	path := writeFile(t, "minidfs.json", `{
		"namenode": {
			"client_address": ":9000",
			"block_size": "1MiB",
			"max_files": 8,
			"max_blocks_per_file": 32,
			"safe_mode_poll_interval": "250ms"
		},
		"datanode": {"id": 3, "listen_port": 7003, "heartbeat_interval": 2}
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Namenode.ClientAddress)
	assert.Equal(t, ByteSize(utils.MegaByte), cfg.Namenode.BlockSize)
	assert.Equal(t, 8, cfg.Namenode.MaxFiles)
	assert.Equal(t, 32, cfg.Namenode.MaxBlocksPerFile)
	assert.Equal(t, DefaultMaxDatanodes, cfg.Namenode.MaxDatanodes, "unset fields keep defaults")
	assert.Equal(t, 250*time.Millisecond, cfg.Namenode.SafeModePollInterval.Std())
	assert.Equal(t, 3, cfg.Datanode.ID)
	assert.Equal(t, 2*time.Second, cfg.Datanode.HeartbeatInterval.Std())
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeFile(t, "minidfs.yaml", `
namenode:
  client_address: ":9100"
  block_size: 67108864
  metrics_address: ":9102"
client:
  namenode_address: "nn:9100"
  timeout: 5s
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Namenode.ClientAddress)
	assert.Equal(t, ByteSize(64*utils.MegaByte), cfg.Namenode.BlockSize)
	assert.Equal(t, ":9102", cfg.Namenode.MetricsAddress)
	assert.Equal(t, "nn:9100", cfg.Client.NamenodeAddress)
	assert.Equal(t, 5*time.Second, cfg.Client.Timeout.Std())
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, "bad.json", `{"namenode": {"block_size": "lots"}}`))
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, "bad.yml", "namenode:\n  safe_mode_poll_interval: soon\n"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("MINIDFS_CLIENT_ADDRESS", ":9200")
	t.Setenv("MINIDFS_BLOCK_SIZE", "128MiB")
	t.Setenv("MINIDFS_MAX_DATANODES", "4")
	t.Setenv("MINIDFS_MAX_BLOCKS_PER_FILE", "100")

	cfg := Default()
	require.NoError(t, ApplyEnv(cfg))
	assert.Equal(t, ":9200", cfg.Namenode.ClientAddress)
	assert.Equal(t, ByteSize(128*utils.MegaByte), cfg.Namenode.BlockSize)
	assert.Equal(t, 4, cfg.Namenode.MaxDatanodes)
	assert.Equal(t, 100, cfg.Namenode.MaxBlocksPerFile)

	t.Setenv("MINIDFS_MAX_FILES", "many")
	assert.Error(t, ApplyEnv(cfg))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Namenode.Validate(), "client address is required")

	cfg.Namenode.ClientAddress = ":9000"
	assert.NoError(t, cfg.Namenode.Validate())

	cfg.Namenode.MaxBlocksPerFile = 0
	assert.Error(t, cfg.Namenode.Validate())

	cfg.Namenode.MaxBlocksPerFile = DefaultMaxBlocksPerFile
	cfg.Namenode.BlockSize = 0
	assert.Error(t, cfg.Namenode.Validate())
}

func TestValueSetters(t *testing.T) {
	var size ByteSize
	require.NoError(t, size.Set("2MiB"))
	assert.Equal(t, ByteSize(2*utils.MegaByte), size)
	assert.Error(t, size.Set("-1"))

	var d Duration
	require.NoError(t, d.Set("1m30s"))
	assert.Equal(t, 90*time.Second, d.Std())
	assert.Equal(t, "1m30s", d.String())
	assert.Error(t, d.Set("later"))
}
