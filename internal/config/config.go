// Package config manages regorusd configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete regorusd configuration.
type Config struct {
	API     APIConfig     `koanf:"api"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Engine  EngineConfig  `koanf:"engine"`
	Probes  []ProbeConfig `koanf:"probes"`
}

// APIConfig holds the ConnectRPC server configuration.
type APIConfig struct {
	// Addr is the API listen address (e.g., ":50061").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9110").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// EngineConfig holds the discovery engine parameters.
type EngineConfig struct {
	// RetryBudget is the number of Pings a card sends before giving up.
	RetryBudget int `koanf:"retry_budget"`

	// RetryInterval is the delay between two Pings of one card.
	RetryInterval time.Duration `koanf:"retry_interval"`

	// EtherType is the Ethernet protocol identifier of regorus frames.
	EtherType uint16 `koanf:"ethertype"`

	// QueueCapacity bounds the number of pending work items.
	QueueCapacity int `koanf:"queue_capacity"`

	// Listen names interfaces opened at startup so peers' Pings are
	// answered without a local card.
	Listen []string `koanf:"listen"`
}

// ProbeConfig describes a declarative probe. Each entry ensures a card
// exists for the interface on startup and SIGHUP reload.
type ProbeConfig struct {
	// Interface is the network interface to probe.
	Interface string `koanf:"interface"`
}

// ProbeInterfaces returns the interface names of all declarative probes
// in configuration order.
func (c *Config) ProbeInterfaces() []string {
	names := make([]string, 0, len(c.Probes))
	for _, p := range c.Probes {
		names = append(names, p.Interface)
	}
	return names
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with defaults: three Pings one
// second apart on EtherType 0x88B5.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Addr: ":50061",
		},
		Metrics: MetricsConfig{
			Addr: ":9110",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Engine: EngineConfig{
			RetryBudget:   3,
			RetryInterval: 1 * time.Second,
			EtherType:     0x88B5,
			QueueCapacity: 4096,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for regorusd configuration.
// Variables are named REGORUS_<section>_<key>, e.g., REGORUS_API_ADDR.
const envPrefix = "REGORUS_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (REGORUS_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	REGORUS_API_ADDR              -> api.addr
//	REGORUS_METRICS_ADDR          -> metrics.addr
//	REGORUS_LOG_LEVEL             -> log.level
//	REGORUS_ENGINE_RETRY_BUDGET   -> engine.retry_budget
//	REGORUS_ENGINE_RETRY_INTERVAL -> engine.retry_interval
//	REGORUS_ENGINE_ETHERTYPE      -> engine.ethertype
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k, DefaultConfig()); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms REGORUS_ENGINE_RETRY_BUDGET -> engine.retry_budget.
// The first underscore separates the section; the rest belong to the key.
func envKeyMapper(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults sets the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"api.addr":              defaults.API.Addr,
		"metrics.addr":          defaults.Metrics.Addr,
		"metrics.path":          defaults.Metrics.Path,
		"log.level":             defaults.Log.Level,
		"log.format":            defaults.Log.Format,
		"engine.retry_budget":   defaults.Engine.RetryBudget,
		"engine.retry_interval": defaults.Engine.RetryInterval.String(),
		"engine.ethertype":      int(defaults.Engine.EtherType),
		"engine.queue_capacity": defaults.Engine.QueueCapacity,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// minEtherType is the smallest EtherType; lower values are 802.3 lengths.
const minEtherType = 0x0600

// maxInterfaceName is IFNAMSIZ minus the terminating NUL.
const maxInterfaceName = 15

// Validation errors.
var (
	// ErrEmptyAPIAddr indicates the API listen address is empty.
	ErrEmptyAPIAddr = errors.New("api.addr must not be empty")

	// ErrInvalidRetryBudget indicates a retry budget below one.
	ErrInvalidRetryBudget = errors.New("engine.retry_budget must be >= 1")

	// ErrInvalidRetryInterval indicates a non-positive retry interval.
	ErrInvalidRetryInterval = errors.New("engine.retry_interval must be > 0")

	// ErrInvalidEtherType indicates an EtherType in the 802.3 length range.
	ErrInvalidEtherType = errors.New("engine.ethertype must be >= 0x0600")

	// ErrInvalidQueueCapacity indicates a queue capacity below one.
	ErrInvalidQueueCapacity = errors.New("engine.queue_capacity must be >= 1")

	// ErrInvalidInterfaceName indicates an empty or over-long interface name.
	ErrInvalidInterfaceName = errors.New("interface name must be 1-15 characters")

	// ErrDuplicateProbe indicates two probes name the same interface.
	ErrDuplicateProbe = errors.New("duplicate probe interface")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.API.Addr == "" {
		return ErrEmptyAPIAddr
	}

	if cfg.Engine.RetryBudget < 1 {
		return ErrInvalidRetryBudget
	}

	if cfg.Engine.RetryInterval <= 0 {
		return ErrInvalidRetryInterval
	}

	if cfg.Engine.EtherType < minEtherType {
		return fmt.Errorf("0x%04x: %w", cfg.Engine.EtherType, ErrInvalidEtherType)
	}

	if cfg.Engine.QueueCapacity < 1 {
		return ErrInvalidQueueCapacity
	}

	for i, name := range cfg.Engine.Listen {
		if !validInterfaceName(name) {
			return fmt.Errorf("engine.listen[%d] %q: %w", i, name, ErrInvalidInterfaceName)
		}
	}

	return validateProbes(cfg.Probes)
}

// validateProbes checks each declarative probe entry.
func validateProbes(probes []ProbeConfig) error {
	seen := make(map[string]struct{}, len(probes))

	for i, p := range probes {
		if !validInterfaceName(p.Interface) {
			return fmt.Errorf("probes[%d] %q: %w", i, p.Interface, ErrInvalidInterfaceName)
		}

		if _, dup := seen[p.Interface]; dup {
			return fmt.Errorf("probes[%d] %q: %w", i, p.Interface, ErrDuplicateProbe)
		}
		seen[p.Interface] = struct{}{}
	}

	return nil
}

func validInterfaceName(name string) bool {
	return name != "" && len(name) <= maxInterfaceName
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
