package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"minidfs/pkg/utils"

	"gopkg.in/yaml.v3"
)

const (
	DefaultHeartbeatPort     = 50030
	DefaultBlockSize         = 64 * utils.MegaByte
	DefaultMaxDatanodes      = 16
	DefaultMaxFiles          = 256
	DefaultMaxBlocksPerFile  = 4096
	DefaultSafeModePoll      = 5 * time.Second
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultClientTimeout     = 30 * time.Second
)

type Config struct {
	Namenode NamenodeConfig `json:"namenode" yaml:"namenode"`
	Datanode DatanodeConfig `json:"datanode" yaml:"datanode"`
	Client   ClientConfig   `json:"client" yaml:"client"`
}

type NamenodeConfig struct {
	ClientAddress    string `json:"client_address" yaml:"client_address"`
	HeartbeatAddress string `json:"heartbeat_address" yaml:"heartbeat_address"`
	// AdminAddress serves the gRPC health service; empty disables it.
	AdminAddress string `json:"admin_address" yaml:"admin_address"`
	// MetricsAddress serves /metrics and /health; empty disables it.
	MetricsAddress string `json:"metrics_address" yaml:"metrics_address"`

	BlockSize    ByteSize `json:"block_size" yaml:"block_size"`
	MaxDatanodes int      `json:"max_datanodes" yaml:"max_datanodes"`
	MaxFiles     int      `json:"max_files" yaml:"max_files"`
	// MaxBlocksPerFile bounds the block list of a single file.
	MaxBlocksPerFile int `json:"max_blocks_per_file" yaml:"max_blocks_per_file"`

	SafeModePollInterval Duration `json:"safe_mode_poll_interval" yaml:"safe_mode_poll_interval"`
	// RequestTimeout bounds reading a client request. Zero waits forever.
	RequestTimeout Duration `json:"request_timeout" yaml:"request_timeout"`
}

type DatanodeConfig struct {
	ID                int      `json:"id" yaml:"id"`
	ListenPort        int      `json:"listen_port" yaml:"listen_port"`
	NamenodeAddress   string   `json:"namenode_address" yaml:"namenode_address"`
	HeartbeatInterval Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
}

type ClientConfig struct {
	NamenodeAddress string   `json:"namenode_address" yaml:"namenode_address"`
	AdminAddress    string   `json:"admin_address" yaml:"admin_address"`
	Timeout         Duration `json:"timeout" yaml:"timeout"`
}

func Default() *Config {
	return &Config{
		Namenode: NamenodeConfig{
			HeartbeatAddress:     ":" + strconv.Itoa(DefaultHeartbeatPort),
			BlockSize:            ByteSize(DefaultBlockSize),
			MaxDatanodes:         DefaultMaxDatanodes,
			MaxFiles:             DefaultMaxFiles,
			MaxBlocksPerFile:     DefaultMaxBlocksPerFile,
			SafeModePollInterval: Duration(DefaultSafeModePoll),
		},
		Datanode: DatanodeConfig{
			NamenodeAddress:   "localhost:" + strconv.Itoa(DefaultHeartbeatPort),
			HeartbeatInterval: Duration(DefaultHeartbeatInterval),
		},
		Client: ClientConfig{
			Timeout: Duration(DefaultClientTimeout),
		},
	}
}

// LoadConfig reads a JSON or YAML file (by extension) over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides cfg with any MINIDFS_* variables that are set.
func ApplyEnv(cfg *Config) error {
	setString(&cfg.Namenode.ClientAddress, "MINIDFS_CLIENT_ADDRESS")
	setString(&cfg.Namenode.HeartbeatAddress, "MINIDFS_HEARTBEAT_ADDRESS")
	setString(&cfg.Namenode.AdminAddress, "MINIDFS_ADMIN_ADDRESS")
	setString(&cfg.Namenode.MetricsAddress, "MINIDFS_METRICS_ADDRESS")
	setString(&cfg.Datanode.NamenodeAddress, "MINIDFS_NAMENODE_HEARTBEAT_ADDRESS")
	setString(&cfg.Client.NamenodeAddress, "MINIDFS_NAMENODE_ADDRESS")

	if v := os.Getenv("MINIDFS_BLOCK_SIZE"); v != "" {
		size, err := utils.ParseDataSize(v)
		if err != nil {
			return fmt.Errorf("MINIDFS_BLOCK_SIZE: %w", err)
		}
		cfg.Namenode.BlockSize = ByteSize(size)
	}
	if err := setInt(&cfg.Namenode.MaxDatanodes, "MINIDFS_MAX_DATANODES"); err != nil {
		return err
	}
	if err := setInt(&cfg.Namenode.MaxFiles, "MINIDFS_MAX_FILES"); err != nil {
		return err
	}
	if err := setInt(&cfg.Namenode.MaxBlocksPerFile, "MINIDFS_MAX_BLOCKS_PER_FILE"); err != nil {
		return err
	}
	return setInt(&cfg.Datanode.ID, "MINIDFS_DATANODE_ID")
}

func (c *NamenodeConfig) Validate() error {
	if c.ClientAddress == "" {
		return fmt.Errorf("client address is required")
	}
	if c.HeartbeatAddress == "" {
		return fmt.Errorf("heartbeat address is required")
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("block size must be positive, got %d", c.BlockSize)
	}
	if c.MaxDatanodes <= 0 {
		return fmt.Errorf("max datanodes must be positive, got %d", c.MaxDatanodes)
	}
	if c.MaxFiles <= 0 {
		return fmt.Errorf("max files must be positive, got %d", c.MaxFiles)
	}
	if c.MaxBlocksPerFile <= 0 {
		return fmt.Errorf("max blocks per file must be positive, got %d", c.MaxBlocksPerFile)
	}
	if c.SafeModePollInterval <= 0 {
		return fmt.Errorf("safe mode poll interval must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}
