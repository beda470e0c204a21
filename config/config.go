// Package config loads and validates ledger service configuration
// from YAML files with environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/semledger/errors"
	"github.com/c360/semledger/storage/objectstore"
)

// Storage mode constants
const (
	StorageModeMemory = "memory" // in-memory only, for tests and local replay
	StorageModeNATS   = "nats"   // JetStream ObjectStore bucket
)

// Config is the complete service configuration.
type Config struct {
	// Version is the config schema version, semver.
	Version string        `yaml:"version"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	NATS    NATSConfig    `yaml:"nats"`
	Storage StorageConfig `yaml:"storage"`
	Policy  PolicyConfig  `yaml:"policy"`
	Log     LogConfig     `yaml:"log"`
}

// LedgerConfig controls replay and merge behavior.
type LedgerConfig struct {
	// Alias names the ledger this instance serves.
	Alias string `yaml:"alias"`
	// PrefetchWorkers bounds concurrent commit-data reads during replay.
	PrefetchWorkers int `yaml:"prefetch_workers"`
	// MultiDBMerge permits transaction-value reuse for cross-ledger merges.
	MultiDBMerge bool `yaml:"multi_db_merge"`
	// Validate runs shape validation on every merged commit.
	Validate bool `yaml:"validate"`
}

// NATSConfig holds the NATS connection settings.
type NATSConfig struct {
	URL            string        `yaml:"url"`
	Name           string        `yaml:"name"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	// Mode is one of the storage mode constants.
	Mode        string             `yaml:"mode"`
	ObjectStore objectstore.Config `yaml:"object_store"`
}

// PolicyConfig controls permission evaluation.
type PolicyConfig struct {
	// SessionCacheSize bounds the per-session decision cache.
	SessionCacheSize int `yaml:"session_cache_size"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// Default returns a runnable configuration for a local ledger.
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		Ledger: LedgerConfig{
			Alias:           "ledger/main",
			PrefetchWorkers: 4,
			Validate:        true,
		},
		NATS: NATSConfig{
			URL:            "nats://localhost:4222",
			Name:           "semledger",
			ConnectTimeout: 5 * time.Second,
		},
		Storage: StorageConfig{
			Mode:        StorageModeMemory,
			ObjectStore: objectstore.DefaultConfig("semledger"),
		},
		Policy: PolicyConfig{SessionCacheSize: 4096},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a YAML config file over the defaults, then applies
// environment overrides, then validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "config", "Load", "reading "+path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "parsing "+path)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays SEMLEDGER_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("SEMLEDGER_ALIAS"); v != "" {
		c.Ledger.Alias = v
	}
	if v := os.Getenv("SEMLEDGER_NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv("SEMLEDGER_STORAGE_MODE"); v != "" {
		c.Storage.Mode = v
	}
	if v := os.Getenv("SEMLEDGER_STORAGE_BUCKET"); v != "" {
		c.Storage.ObjectStore.Bucket = v
	}
	if v := os.Getenv("SEMLEDGER_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SEMLEDGER_PREFETCH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Ledger.PrefetchWorkers = n
		}
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Ledger.Alias == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate", "ledger.alias")
	}
	if c.Ledger.PrefetchWorkers <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			fmt.Sprintf("ledger.prefetch_workers %d", c.Ledger.PrefetchWorkers))
	}
	switch c.Storage.Mode {
	case StorageModeMemory:
	case StorageModeNATS:
		if c.NATS.URL == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate", "nats.url")
		}
		if c.Storage.ObjectStore.Bucket == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate", "storage.object_store.bucket")
		}
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			"storage.mode "+c.Storage.Mode)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate", "log.level "+c.Log.Level)
	}
	if c.Policy.SessionCacheSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate", "policy.session_cache_size")
	}
	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// SafeConfig provides thread-safe access to a live configuration.
type SafeConfig struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewSafeConfig wraps a configuration for concurrent access.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{cfg: cfg}
}

// Get returns a copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.cfg.Clone()
}

// Update atomically replaces the configuration after validation.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Update", "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.cfg = cfg
	return nil
}
