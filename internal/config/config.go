package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	DataDir string `json:"dataDir" yaml:"dataDir"`
	// Fsync is one of "always", "interval", "never".
	Fsync           string `json:"fsync" yaml:"fsync"`
	FsyncIntervalMs int    `json:"fsyncIntervalMs" yaml:"fsyncIntervalMs"`
	// Backend open is retried with fixed spacing before failing hard.
	ConnectAttempts  int `json:"connectAttempts" yaml:"connectAttempts"`
	ConnectBackoffMs int `json:"connectBackoffMs" yaml:"connectBackoffMs"`
	// RetryIntervalMs is the parked-write retry delay when a message arrives
	// before its bucket exists.
	RetryIntervalMs int `json:"retryIntervalMs" yaml:"retryIntervalMs"`

	Batch  BatchConfig  `json:"batch" yaml:"batch"`
	Bucket BucketConfig `json:"bucket" yaml:"bucket"`
	Query  QueryConfig  `json:"query" yaml:"query"`
}

// BatchConfig tunes the write batcher.
type BatchConfig struct {
	MaxLen          int `json:"maxLen" yaml:"maxLen"`
	FlushIntervalMs int `json:"flushIntervalMs" yaml:"flushIntervalMs"`
}

// BucketConfig carries bucket rotation thresholds.
type BucketConfig struct {
	MaxSizeBytes       int64 `json:"maxSizeBytes" yaml:"maxSizeBytes"`
	MaxRecords         int64 `json:"maxRecords" yaml:"maxRecords"`
	MaxAgeMs           int64 `json:"maxAgeMs" yaml:"maxAgeMs"`
	MaintainIntervalMs int   `json:"maintainIntervalMs" yaml:"maintainIntervalMs"`
}

// QueryConfig tunes the read path.
type QueryConfig struct {
	// BufferLen bounds the merged result channel.
	BufferLen int `json:"bufferLen" yaml:"bufferLen"`
	// YieldMs bounds continuous synchronous scan work before a scheduler yield.
	YieldMs int `json:"yieldMs" yaml:"yieldMs"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DataDir:          DefaultDataDir(),
		Fsync:            "interval",
		FsyncIntervalMs:  5,
		ConnectAttempts:  20,
		ConnectBackoffMs: 5000,
		RetryIntervalMs:  500,
		Batch: BatchConfig{
			MaxLen:          500,
			FlushIntervalMs: 20,
		},
		Bucket: BucketConfig{
			MaxSizeBytes:       64 << 20,
			MaxRecords:         100_000,
			MaxAgeMs:           int64(time.Hour / time.Millisecond),
			MaintainIntervalMs: 250,
		},
		Query: QueryConfig{
			BufferLen: 1024,
			YieldMs:   100,
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path
// is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}
