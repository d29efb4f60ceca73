// Package config loads vraft's runtime configuration from environment
// variables, following the teacher's LoadFromEnv/Validate pattern: sensible
// defaults for every field, environment variables prefixed VRAFT_, and an
// explicit Validate step the caller runs before using the result.
//
// Example:
//
//	cfg := config.LoadFromEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every environment-driven knob vraft needs at startup.
type Config struct {
	Index   IndexConfig
	Raft    RaftConfig
	Node    NodeConfig
	Logging LoggingConfig
}

// IndexConfig mirrors hnsw.Config's tunables.
type IndexConfig struct {
	Dimension      int
	M              int
	EfConstruction int
	EfSearch       int
	ML             float64
	MaxElements    int
}

// RaftConfig mirrors raft.Config's timing and batching knobs.
type RaftConfig struct {
	HeartbeatTimeout   time.Duration
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
	BatchSize          int
	SnapshotThreshold  int
}

// NodeConfig holds this replica's identity and storage/transport settings.
type NodeConfig struct {
	ID            string
	Peers         []string // other server ids, comma separated in the environment
	DataDir       string
	ListenAddress string            // host:port this replica's WebSocket server listens on
	PeerAddresses map[string]string // peer id -> ws:// address, for WebSocket transport
	Transport     string            // "inprocess" or "websocket"
	ClusterFile   string            // optional YAML file listing peer addresses
}

// LoggingConfig holds the VRAFT_LOG_LEVEL setting, matching the teacher's
// text-based (not structured) logging convention. Nothing in this module
// reads Level: log output is not filtered by it.
type LoggingConfig struct {
	Level string // DEBUG, INFO, WARN, ERROR
}

// LoadFromEnv builds a Config from the process environment. Every field has
// a usable default, so LoadFromEnv never fails; call Validate afterward to
// catch out-of-range values.
func LoadFromEnv() *Config {
	cfg := &Config{
		Index: IndexConfig{
			Dimension:      getEnvInt("VRAFT_INDEX_DIMENSION", 128),
			M:              getEnvInt("VRAFT_INDEX_M", 16),
			EfConstruction: getEnvInt("VRAFT_INDEX_EF_CONSTRUCTION", 200),
			EfSearch:       getEnvInt("VRAFT_INDEX_EF_SEARCH", 100),
			ML:             getEnvFloat("VRAFT_INDEX_ML", 1.0/lnOf16),
			MaxElements:    getEnvInt("VRAFT_INDEX_MAX_ELEMENTS", 1_000_000),
		},
		Raft: RaftConfig{
			HeartbeatTimeout:   getEnvDuration("VRAFT_RAFT_HEARTBEAT_TIMEOUT", 50*time.Millisecond),
			ElectionTimeoutMin: getEnvDuration("VRAFT_RAFT_ELECTION_TIMEOUT_MIN", 150*time.Millisecond),
			ElectionTimeoutMax: getEnvDuration("VRAFT_RAFT_ELECTION_TIMEOUT_MAX", 300*time.Millisecond),
			BatchSize:          getEnvInt("VRAFT_RAFT_BATCH_SIZE", 64),
			SnapshotThreshold:  getEnvInt("VRAFT_RAFT_SNAPSHOT_THRESHOLD", 10000),
		},
		Node: NodeConfig{
			ID:            getEnv("VRAFT_NODE_ID", "node-1"),
			Peers:         getEnvStringSlice("VRAFT_NODE_PEERS", nil),
			DataDir:       getEnv("VRAFT_NODE_DATA_DIR", "./data"),
			ListenAddress: getEnv("VRAFT_NODE_LISTEN_ADDRESS", ":7690"),
			Transport:     getEnv("VRAFT_NODE_TRANSPORT", "inprocess"),
			ClusterFile:   getEnv("VRAFT_NODE_CLUSTER_FILE", ""),
		},
		Logging: LoggingConfig{
			Level: getEnv("VRAFT_LOG_LEVEL", "INFO"),
		},
	}
	return cfg
}

// lnOf16 is ln(16), the base of the teacher-grounded default mL = 1/ln(M)
// with M = 16.
const lnOf16 = 2.772588722239781

// Validate checks the configuration for out-of-range or internally
// inconsistent values.
func (c *Config) Validate() error {
	if c.Index.Dimension <= 0 {
		return fmt.Errorf("config: index dimension must be positive, got %d", c.Index.Dimension)
	}
	if c.Index.M < 2 {
		return fmt.Errorf("config: index M must be >= 2, got %d", c.Index.M)
	}
	if c.Index.EfConstruction < c.Index.M {
		return fmt.Errorf("config: index efConstruction (%d) must be >= M (%d)", c.Index.EfConstruction, c.Index.M)
	}
	if c.Index.EfSearch < 1 {
		return fmt.Errorf("config: index efSearch must be >= 1, got %d", c.Index.EfSearch)
	}
	if c.Raft.ElectionTimeoutMax <= c.Raft.ElectionTimeoutMin {
		return fmt.Errorf("config: election timeout max (%s) must exceed min (%s)",
			c.Raft.ElectionTimeoutMax, c.Raft.ElectionTimeoutMin)
	}
	if c.Raft.HeartbeatTimeout >= c.Raft.ElectionTimeoutMin {
		return fmt.Errorf("config: heartbeat timeout (%s) must be less than election timeout min (%s)",
			c.Raft.HeartbeatTimeout, c.Raft.ElectionTimeoutMin)
	}
	if c.Node.ID == "" {
		return fmt.Errorf("config: node id must not be empty")
	}
	switch c.Node.Transport {
	case "inprocess", "websocket":
	default:
		return fmt.Errorf("config: unknown transport %q, want \"inprocess\" or \"websocket\"", c.Node.Transport)
	}
	return nil
}

// String returns a log-safe summary (no secrets to redact here, but kept
// for symmetry with the teacher's Config.String convention).
func (c *Config) String() string {
	return fmt.Sprintf("Config{Node: %s, Peers: %v, Transport: %s, Dimension: %d}",
		c.Node.ID, c.Node.Peers, c.Node.Transport, c.Index.Dimension)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultVal
}
