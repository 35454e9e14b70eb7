// Package config loads the ambient, defaults-then-override configuration
// for e57cv's diagnostics and batch tooling: packet cache sizing, the
// writer's packet budget, payload compression choice, logging, tracing, and
// the debug/diagnostics server. None of it changes Reader/Writer wire
// semantics; every value here only tunes how the engine is operated.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CacheConfig sizes the packet cache that each Reader creates for itself;
// Readers do not share a cache.
type CacheConfig struct {
	Capacity int `yaml:"capacity"`
}

// WriterConfig controls packet-emission policy for cvwriter.Writer.
type WriterConfig struct {
	PacketBudgetBytes    int    `yaml:"packet_budget_bytes"`
	EmitIndex            bool   `yaml:"emit_index"`
	IndexIntervalRecords uint64 `yaml:"index_interval_records"`
}

// PayloadConfig selects the compressor applied to packet payloads on write.
// A Reader does not use this setting: it takes the compressor from the
// section header's flags byte. Valid values: "none", "snappy", "lz4", "zstd".
type PayloadConfig struct {
	Compression string `yaml:"compression"`
}

// LoggingConfig mirrors the teacher's per-component logger convention:
// one level, one output sink, selected identically across cmd/ entry
// points.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Output string `yaml:"output"` // "stdout", "file", "none"
	File   string `yaml:"file"`
}

// TracingConfig configures the OpenTelemetry TracerProvider constructed in
// cmd/. This module exports to stdout/no-op by default; see DESIGN.md for
// why the OTLP network exporters are not wired.
type TracingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "none"
}

// DebugConfig configures the diagnostics server used by cmd/e57inspect.
type DebugConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
	PProfEnabled  bool   `yaml:"pprof_enabled"`
	StatsvizEnabled bool `yaml:"statsviz_enabled"`
}

// BatchConfig controls cmd/e57batch's concurrency.
type BatchConfig struct {
	MaxConcurrency int `yaml:"max_concurrency"`
}

// Config is the top-level configuration struct loaded by LoadConfig/Load.
type Config struct {
	Cache   CacheConfig   `yaml:"cache"`
	Writer  WriterConfig  `yaml:"writer"`
	Payload PayloadConfig `yaml:"payload"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
	Debug   DebugConfig   `yaml:"debug"`
	Batch   BatchConfig   `yaml:"batch"`
}

// ParseDuration parses a duration string, falling back to defaultDuration
// on an empty or invalid string. Logs a warning on invalid (non-empty)
// input.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

func defaults() *Config {
	return &Config{
		Cache: CacheConfig{
			Capacity: 32,
		},
		Writer: WriterConfig{
			PacketBudgetBytes:    64 * 1024,
			EmitIndex:            false,
			IndexIntervalRecords: 1024,
		},
		Payload: PayloadConfig{
			Compression: "none",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
			File:   "e57cv.log",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Exporter: "stdout",
		},
		Debug: DebugConfig{
			Enabled:         false,
			ListenAddress:   "127.0.0.1:6060",
			PProfEnabled:    true,
			StatsvizEnabled: true,
		},
		Batch: BatchConfig{
			MaxConcurrency: 4,
		},
	}
}

// Load reads configuration from an io.Reader, applying defaults first and
// letting present YAML keys override them. A nil reader or empty input
// returns the defaults.
func Load(r io.Reader) (*Config, error) {
	cfg := defaults()
	if r == nil {
		return cfg, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads configuration from a YAML file by path. A missing file
// is not an error: it yields the defaults, same as Load(nil).
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()
	return Load(file)
}
