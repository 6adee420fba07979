package config

import (
	"os"
	"strconv"
)

// FromEnv overlays LOGSTORE_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("LOGSTORE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LOGSTORE_FSYNC"); v != "" {
		cfg.Fsync = v
	}
	setInt(&cfg.FsyncIntervalMs, "LOGSTORE_FSYNC_INTERVAL_MS")
	setInt(&cfg.ConnectAttempts, "LOGSTORE_CONNECT_ATTEMPTS")
	setInt(&cfg.ConnectBackoffMs, "LOGSTORE_CONNECT_BACKOFF_MS")
	setInt(&cfg.RetryIntervalMs, "LOGSTORE_RETRY_INTERVAL_MS")
	setInt(&cfg.Batch.MaxLen, "LOGSTORE_BATCH_MAX_LEN")
	setInt(&cfg.Batch.FlushIntervalMs, "LOGSTORE_BATCH_FLUSH_INTERVAL_MS")
	setInt64(&cfg.Bucket.MaxSizeBytes, "LOGSTORE_BUCKET_MAX_SIZE_BYTES")
	setInt64(&cfg.Bucket.MaxRecords, "LOGSTORE_BUCKET_MAX_RECORDS")
	setInt64(&cfg.Bucket.MaxAgeMs, "LOGSTORE_BUCKET_MAX_AGE_MS")
	setInt(&cfg.Bucket.MaintainIntervalMs, "LOGSTORE_BUCKET_MAINTAIN_INTERVAL_MS")
	setInt(&cfg.Query.BufferLen, "LOGSTORE_QUERY_BUFFER_LEN")
	setInt(&cfg.Query.YieldMs, "LOGSTORE_QUERY_YIELD_MS")
}

func setInt(dst *int, name string) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, name string) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}
