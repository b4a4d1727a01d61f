// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/dustin/go-humanize"
	"go.yaml.in/yaml/v3"

	"github.com/eugener/gencache/internal/cache"
)

// Config is the top-level service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Cache     CacheConfig     `yaml:"cache"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Providers []ProviderEntry `yaml:"providers"`
	Templates []TemplateEntry `yaml:"templates"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

// ByteSize is a byte count that accepts plain integers or humanized strings
// such as "64MiB" or "1.5 GB" in YAML.
type ByteSize int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("byte size: expected scalar, got %v", node.Tag)
	}
	n, err := humanize.ParseBytes(node.Value)
	if err != nil {
		return fmt.Errorf("byte size %q: %w", node.Value, err)
	}
	*b = ByteSize(n)
	return nil
}

func (b ByteSize) String() string { return humanize.IBytes(uint64(b)) }

// CacheConfig holds response cache settings. Zero values defer to the cache
// package defaults.
type CacheConfig struct {
	MaxSize              ByteSize      `yaml:"max_size"`
	DefaultTTL           time.Duration `yaml:"default_ttl"`
	CleanupInterval      time.Duration `yaml:"cleanup_interval"`
	CompressionThreshold ByteSize      `yaml:"compression_threshold"`
	CompressionLevel     int           `yaml:"compression_level"`
	MinTTL               time.Duration `yaml:"min_ttl"`
	MaxTTL               time.Duration `yaml:"max_ttl"`
	ProtectionWindow     time.Duration `yaml:"protection_window"`
	EvictionMargin       float64       `yaml:"eviction_margin"`
	SweepInterval        time.Duration `yaml:"sweep_interval"` // 0 = lazy reaping only
	SensitiveFields      []string      `yaml:"sensitive_fields"`
	GenericTemplates     []string      `yaml:"generic_templates"`
}

// Options converts the config section to cache.Options. Hooks, Logger and Now
// are left for the caller to fill in. Load pre-fills defaults, so a zero
// threshold, protection window or margin here was set on purpose and is
// passed on as cache's "none".
func (c CacheConfig) Options() cache.Options {
	return cache.Options{
		MaxSizeBytes:         int64(c.MaxSize),
		DefaultTTL:           c.DefaultTTL,
		CleanupInterval:      c.CleanupInterval,
		CompressionThreshold: explicitZero(int(c.CompressionThreshold)),
		CompressionLevel:     c.CompressionLevel,
		MinTTL:               c.MinTTL,
		MaxTTL:               c.MaxTTL,
		ProtectionWindow:     explicitZero(c.ProtectionWindow),
		EvictionMargin:       explicitZero(c.EvictionMargin),
		SensitiveFields:      c.SensitiveFields,
		GenericTemplates:     c.GenericTemplates,
	}
}

func explicitZero[T ~int | ~int64 | ~float64](v T) T {
	if v == 0 {
		return -1
	}
	return v
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ProviderEntry is a generator backend definition in the config file.
type ProviderEntry struct {
	Name    string        `yaml:"name"`
	Type    string        `yaml:"type"`
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Enabled *bool         `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
}

// IsEnabled reports whether the provider is enabled (defaults to true when nil).
func (p ProviderEntry) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// ResolvedType returns Type if set, otherwise falls back to Name.
func (p ProviderEntry) ResolvedType() string {
	if p.Type != "" {
		return p.Type
	}
	return p.Name
}

// TemplateEntry is a prompt template in the config file.
type TemplateEntry struct {
	ID       string `yaml:"id"`
	Text     string `yaml:"text"`
	Provider string `yaml:"provider"` // empty = first enabled provider
	Model    string `yaml:"model"`    // empty = provider default
	Priority string `yaml:"priority"` // default cache priority for this template
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			MaxSize:              50 << 20,
			DefaultTTL:           time.Hour,
			CleanupInterval:      5 * time.Minute,
			CompressionThreshold: 1024,
			MinTTL:               5 * time.Minute,
			MaxTTL:               2 * time.Hour,
			ProtectionWindow:     5 * time.Minute,
			EvictionMargin:       0.10,
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: true},
			Tracing: TracingConfig{SampleRate: 1.0},
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Cache.MinTTL > c.Cache.MaxTTL {
		errs = append(errs, fmt.Errorf("cache.min_ttl %s exceeds cache.max_ttl %s", c.Cache.MinTTL, c.Cache.MaxTTL))
	}
	if c.Cache.EvictionMargin < 0 || c.Cache.EvictionMargin >= 1 {
		errs = append(errs, fmt.Errorf("cache.eviction_margin must be in [0,1), got %v", c.Cache.EvictionMargin))
	}
	if c.Cache.CompressionThreshold < 0 {
		errs = append(errs, fmt.Errorf("cache.compression_threshold must not be negative, got %d", c.Cache.CompressionThreshold))
	}
	if c.Cache.ProtectionWindow < 0 {
		errs = append(errs, fmt.Errorf("cache.protection_window must not be negative, got %s", c.Cache.ProtectionWindow))
	}

	providers := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("providers[%d]: name is required", i))
			continue
		}
		if providers[p.Name] {
			errs = append(errs, fmt.Errorf("providers[%d]: duplicate name %q", i, p.Name))
		}
		providers[p.Name] = true
	}

	ids := make(map[string]bool, len(c.Templates))
	for i, t := range c.Templates {
		switch {
		case t.ID == "":
			errs = append(errs, fmt.Errorf("templates[%d]: id is required", i))
		case ids[t.ID]:
			errs = append(errs, fmt.Errorf("templates[%d]: duplicate id %q", i, t.ID))
		case t.Provider != "" && !providers[t.Provider]:
			errs = append(errs, fmt.Errorf("templates[%d]: unknown provider %q", i, t.Provider))
		}
		ids[t.ID] = true
		if _, err := cache.ParsePriority(t.Priority); err != nil {
			errs = append(errs, fmt.Errorf("templates[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
