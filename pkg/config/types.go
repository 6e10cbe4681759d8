package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent engram configuration stored as config.toml
// in the .engram/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version    int             `toml:"version"`
	Storage    StorageConfig   `toml:"storage"`
	Ingest     IngestConfig    `toml:"ingest"`
	Cascade    CascadeConfig   `toml:"cascade"`
	RateLimits map[string]int  `toml:"rate_limits"`
	Embedding  EmbeddingConfig `toml:"embedding"`
	Stream     StreamConfig    `toml:"stream"`
	API        APIConfig       `toml:"api"`
}

// StorageConfig selects the event store backend.
type StorageConfig struct {
	Provider    string `toml:"provider,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresURL string `toml:"postgres_url,omitempty"`
}

// IngestConfig holds recording-path tuning knobs.
type IngestConfig struct {
	IdempotencyWindowSeconds int `toml:"idempotency_window_seconds,omitempty"`
	LRUCacheSize             int `toml:"lru_cache_size,omitempty"`
	BatchSizeHint            int `toml:"batch_size_hint,omitempty"`
}

// CascadeConfig holds the cascade monitor limits.
type CascadeConfig struct {
	MaxDepth   int `toml:"max_depth,omitempty"`
	MaxBreadth int `toml:"max_breadth,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider       string `toml:"provider,omitempty"`
	Target         string `toml:"target,omitempty"`
	Model          string `toml:"model,omitempty"`
	TimeoutSeconds int    `toml:"timeout_seconds,omitempty"`
}

// StreamConfig holds event stream publisher settings.
type StreamConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func intKey(name string, get func(c *Config) int, set func(c *Config, n int)) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if get(c) == 0 {
				return ""
			}
			return strconv.Itoa(get(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			set(c, n)
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported scalar config keys.
// Keys use dotted notation matching the TOML section structure. Per-hook rate
// limits live under the dynamic "rate_limits." prefix and are handled
// separately.
var configKeys = map[string]configKeyInfo{
	"storage.provider": {
		get: func(c *Config) string { return c.Storage.Provider },
		set: func(c *Config, v string) error { c.Storage.Provider = v; return nil },
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_url": {
		get: func(c *Config) string { return c.Storage.PostgresURL },
		set: func(c *Config, v string) error { c.Storage.PostgresURL = v; return nil },
	},
	"ingest.idempotency_window_seconds": intKey("ingest.idempotency_window_seconds",
		func(c *Config) int { return c.Ingest.IdempotencyWindowSeconds },
		func(c *Config, n int) { c.Ingest.IdempotencyWindowSeconds = n },
	),
	"ingest.lru_cache_size": intKey("ingest.lru_cache_size",
		func(c *Config) int { return c.Ingest.LRUCacheSize },
		func(c *Config, n int) { c.Ingest.LRUCacheSize = n },
	),
	"ingest.batch_size_hint": intKey("ingest.batch_size_hint",
		func(c *Config) int { return c.Ingest.BatchSizeHint },
		func(c *Config, n int) { c.Ingest.BatchSizeHint = n },
	),
	"cascade.max_depth": intKey("cascade.max_depth",
		func(c *Config) int { return c.Cascade.MaxDepth },
		func(c *Config, n int) { c.Cascade.MaxDepth = n },
	),
	"cascade.max_breadth": intKey("cascade.max_breadth",
		func(c *Config) int { return c.Cascade.MaxBreadth },
		func(c *Config, n int) { c.Cascade.MaxBreadth = n },
	),
	"embedding.provider": {
		get: func(c *Config) string { return c.Embedding.Provider },
		set: func(c *Config, v string) error { c.Embedding.Provider = v; return nil },
	},
	"embedding.target": {
		get: func(c *Config) string { return c.Embedding.Target },
		set: func(c *Config, v string) error { c.Embedding.Target = v; return nil },
	},
	"embedding.model": {
		get: func(c *Config) string { return c.Embedding.Model },
		set: func(c *Config, v string) error { c.Embedding.Model = v; return nil },
	},
	"embedding.timeout_seconds": intKey("embedding.timeout_seconds",
		func(c *Config) int { return c.Embedding.TimeoutSeconds },
		func(c *Config, n int) { c.Embedding.TimeoutSeconds = n },
	),
	"stream.provider": {
		get: func(c *Config) string { return c.Stream.Provider },
		set: func(c *Config, v string) error { c.Stream.Provider = v; return nil },
	},
	"stream.brokers": {
		get: func(c *Config) string { return strings.Join(c.Stream.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.Stream.Brokers = nil
			for _, b := range strings.Split(v, ",") {
				if b = strings.TrimSpace(b); b != "" {
					c.Stream.Brokers = append(c.Stream.Brokers, b)
				}
			}
			return nil
		},
	},
	"stream.topic": {
		get: func(c *Config) string { return c.Stream.Topic },
		set: func(c *Config, v string) error { c.Stream.Topic = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
}
