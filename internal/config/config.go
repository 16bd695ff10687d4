// Package config provides configuration loading and validation for the
// windowkv tools. Supports YAML files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for a windowkv store instance.
type Config struct {
	Store         StoreConfig         `yaml:"store"`
	Cache         CacheConfig         `yaml:"cache"`
	Changelog     ChangelogConfig     `yaml:"changelog"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type StoreConfig struct {
	Name             string `yaml:"name" env:"WINDOWKV_STORE_NAME"`
	Dir              string `yaml:"dir" env:"WINDOWKV_STORE_DIR"`
	RetentionMs      int64  `yaml:"retentionMs" env:"WINDOWKV_RETENTION_MS"`
	WindowSizeMs     int64  `yaml:"windowSizeMs" env:"WINDOWKV_WINDOW_SIZE_MS"`
	NumSegments      int    `yaml:"numSegments" env:"WINDOWKV_NUM_SEGMENTS"`
	RetainDuplicates bool   `yaml:"retainDuplicates" env:"WINDOWKV_RETAIN_DUPLICATES"`
}

type CacheConfig struct {
	Enabled             bool  `yaml:"enabled" env:"WINDOWKV_CACHE_ENABLED"`
	MaxBytes            int64 `yaml:"maxBytes" env:"WINDOWKV_CACHE_MAX_BYTES"`
	FlushThresholdBytes int64 `yaml:"flushThresholdBytes" env:"WINDOWKV_CACHE_FLUSH_THRESHOLD"`
}

type ChangelogConfig struct {
	Enabled           bool     `yaml:"enabled" env:"WINDOWKV_CHANGELOG_ENABLED"`
	Brokers           []string `yaml:"brokers" env:"WINDOWKV_CHANGELOG_BROKERS"`
	Topic             string   `yaml:"topic" env:"WINDOWKV_CHANGELOG_TOPIC"`
	Partitions        int32    `yaml:"partitions" env:"WINDOWKV_CHANGELOG_PARTITIONS"`
	ReplicationFactor int16    `yaml:"replicationFactor" env:"WINDOWKV_CHANGELOG_REPLICATION"`
}

type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metricsAddr" env:"WINDOWKV_METRICS_ADDR"`
	LogLevel    string `yaml:"logLevel" env:"WINDOWKV_LOG_LEVEL"`
	LogFormat   string `yaml:"logFormat" env:"WINDOWKV_LOG_FORMAT"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Name:         "windowkv",
			Dir:          "data",
			RetentionMs:  24 * 60 * 60 * 1000, // 1 day
			WindowSizeMs: 60 * 1000,           // 1 minute
			NumSegments:  3,
		},
		Cache: CacheConfig{
			Enabled:             true,
			MaxBytes:            16 * 1024 * 1024, // 16MB
			FlushThresholdBytes: 8 * 1024 * 1024,
		},
		Changelog: ChangelogConfig{
			Partitions:        1,
			ReplicationFactor: 1,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: ":9090",
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}

// Load returns the default configuration with environment overrides
// applied. Set WINDOWKV_CONFIG to load a YAML file first.
func Load() (*Config, error) {
	if path := os.Getenv("WINDOWKV_CONFIG"); path != "" {
		return LoadFromPath(path)
	}
	cfg := Default()
	cfg.applyEnv()
	return cfg, cfg.validate()
}

// LoadFromPath reads a YAML config file over the defaults, then applies
// environment overrides.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, cfg.validate()
}

func (c *Config) applyEnv() {
	setString(&c.Store.Name, "WINDOWKV_STORE_NAME")
	setString(&c.Store.Dir, "WINDOWKV_STORE_DIR")
	setInt64(&c.Store.RetentionMs, "WINDOWKV_RETENTION_MS")
	setInt64(&c.Store.WindowSizeMs, "WINDOWKV_WINDOW_SIZE_MS")
	setInt(&c.Store.NumSegments, "WINDOWKV_NUM_SEGMENTS")
	setBool(&c.Store.RetainDuplicates, "WINDOWKV_RETAIN_DUPLICATES")

	setBool(&c.Cache.Enabled, "WINDOWKV_CACHE_ENABLED")
	setInt64(&c.Cache.MaxBytes, "WINDOWKV_CACHE_MAX_BYTES")
	setInt64(&c.Cache.FlushThresholdBytes, "WINDOWKV_CACHE_FLUSH_THRESHOLD")

	setBool(&c.Changelog.Enabled, "WINDOWKV_CHANGELOG_ENABLED")
	if v := os.Getenv("WINDOWKV_CHANGELOG_BROKERS"); v != "" {
		c.Changelog.Brokers = splitList(v)
	}
	setString(&c.Changelog.Topic, "WINDOWKV_CHANGELOG_TOPIC")

	setString(&c.Observability.MetricsAddr, "WINDOWKV_METRICS_ADDR")
	setString(&c.Observability.LogLevel, "WINDOWKV_LOG_LEVEL")
	setString(&c.Observability.LogFormat, "WINDOWKV_LOG_FORMAT")
}

func (c *Config) validate() error {
	if c.Store.Name == "" {
		return fmt.Errorf("config: store.name is required")
	}
	if c.Store.RetentionMs <= 0 {
		return fmt.Errorf("config: store.retentionMs must be positive, got %d", c.Store.RetentionMs)
	}
	if c.Store.WindowSizeMs <= 0 {
		return fmt.Errorf("config: store.windowSizeMs must be positive, got %d", c.Store.WindowSizeMs)
	}
	if c.Store.NumSegments < 2 {
		return fmt.Errorf("config: store.numSegments must be at least 2, got %d", c.Store.NumSegments)
	}
	if c.Changelog.Enabled {
		if len(c.Changelog.Brokers) == 0 {
			return fmt.Errorf("config: changelog.brokers required when changelog is enabled")
		}
		if c.Changelog.Topic == "" {
			return fmt.Errorf("config: changelog.topic required when changelog is enabled")
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
