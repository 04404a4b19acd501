// Package config provides configuration loading and management for the
// workbench server and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StoreKV     = "kv"
)

// Config represents the complete workbench configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	NATS      NATSConfig      `yaml:"nats"`
	Store     StoreConfig     `yaml:"store"`
	Validator ValidatorConfig `yaml:"validator"`
	Artefacts ArtefactsConfig `yaml:"artefacts"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// ModelHealth tunes the per-endpoint circuit breaker.
	ModelHealth ModelHealthConfig `yaml:"model_health"`

	// ModelRetry bounds retries against one endpoint before falling back.
	ModelRetry ModelRetryConfig `yaml:"model_retry"`

	// ModelRegistry is a YAML or JSON model registry file (empty = built-in
	// defaults).
	ModelRegistry string `yaml:"model_registry"`

	// OrgDefaults are organisation-wide axis selections, axis name to preset
	// id or name (e.g. TONE: "Brief").
	OrgDefaults map[string]string `yaml:"org_defaults"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	// Addr is the listen address (default: :8080)
	Addr string `yaml:"addr"`
	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL (empty = use embedded server)
	URL string `yaml:"url"`
	// Embedded indicates whether to use embedded NATS
	Embedded bool `yaml:"embedded"`
	// StoreDir holds JetStream data for the embedded server
	StoreDir string `yaml:"store_dir"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	// Kind is "kv" (JetStream key-value) or "memory"
	Kind string `yaml:"kind"`
}

// ValidatorConfig configures LLM field validation
type ValidatorConfig struct {
	// Timeout bounds each validation or draft call
	Timeout time.Duration `yaml:"timeout"`
	// FormatRetries is how many times a malformed verdict is re-requested
	FormatRetries int `yaml:"format_retries"`
	// Temperature controls randomness (0.0-1.0, default: 0.2)
	Temperature float64 `yaml:"temperature"`
}

// ArtefactsConfig configures the on-disk artefact mirror
type ArtefactsConfig struct {
	// BaseDir is the mirror root; every artefact path resolves inside it
	BaseDir string `yaml:"base_dir"`
	// AllowedRoots are glob patterns a project artefact root must match
	// (empty = any well-formed relative root)
	AllowedRoots []string `yaml:"allowed_roots"`
}

// CatalogConfig configures the axis preset catalog
type CatalogConfig struct {
	// Path is a YAML catalog file (empty = built-in catalog)
	Path string `yaml:"path"`
	// Watch reloads the catalog when the file changes
	Watch bool `yaml:"watch"`
}

// RateLimitConfig limits LLM-backed requests per actor
type RateLimitConfig struct {
	// RPS is the sustained request rate per actor (0 = unlimited)
	RPS float64 `yaml:"rps"`
	// Burst is the bucket size
	Burst int `yaml:"burst"`
}

// ModelHealthConfig configures when a failing model endpoint is taken out
// of the fallback chain and when it is probed again
type ModelHealthConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
}

// ModelRetryConfig bounds how often a failing model endpoint is called again
// before the next model in the chain is tried
type ModelRetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		NATS: NATSConfig{
			URL:      "",
			Embedded: true,
			StoreDir: filepath.Join("data", "jetstream"),
		},
		Store: StoreConfig{
			Kind: StoreKV,
		},
		Validator: ValidatorConfig{
			Timeout:       2 * time.Minute,
			FormatRetries: 2,
			Temperature:   0.2,
		},
		Artefacts: ArtefactsConfig{
			BaseDir: filepath.Join("data", "artefacts"),
		},
		RateLimit: RateLimitConfig{
			RPS:   2,
			Burst: 5,
		},
		ModelHealth: ModelHealthConfig{
			FailureThreshold: 3,
			RecoveryTimeout:  30 * time.Second,
		},
		ModelRetry: ModelRetryConfig{
			MaxAttempts: 2,
			BackoffBase: 500 * time.Millisecond,
			MaxBackoff:  4 * time.Second,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	switch c.Store.Kind {
	case StoreMemory, StoreKV:
	default:
		return fmt.Errorf("store.kind must be %q or %q, got %q", StoreKV, StoreMemory, c.Store.Kind)
	}
	if c.Store.Kind == StoreKV && c.NATS.URL == "" && !c.NATS.Embedded {
		return fmt.Errorf("nats.url is required when embedded NATS is disabled")
	}
	if c.Validator.Timeout <= 0 {
		return fmt.Errorf("validator.timeout must be positive")
	}
	if c.Validator.FormatRetries < 0 {
		return fmt.Errorf("validator.format_retries must not be negative")
	}
	if c.Validator.Temperature < 0 || c.Validator.Temperature > 1 {
		return fmt.Errorf("validator.temperature must be between 0 and 1")
	}
	if c.Artefacts.BaseDir == "" {
		return fmt.Errorf("artefacts.base_dir is required")
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst == 0 {
		return fmt.Errorf("rate_limit.burst must be at least 1 when rps is set")
	}
	if c.ModelHealth.FailureThreshold < 1 {
		return fmt.Errorf("model_health.failure_threshold must be at least 1")
	}
	if c.ModelRetry.MaxAttempts < 1 {
		return fmt.Errorf("model_retry.max_attempts must be at least 1")
	}
	if c.ModelRetry.BackoffBase <= 0 || c.ModelRetry.MaxBackoff < c.ModelRetry.BackoffBase {
		return fmt.Errorf("model_retry.max_backoff must be at least model_retry.backoff_base, which must be positive")
	}
	if c.ModelHealth.RecoveryTimeout <= 0 {
		return fmt.Errorf("model_health.recovery_timeout must be positive")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file over the defaults
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := readFile(path, config); err != nil {
		return nil, err
	}
	return config, nil
}

// readFile decodes a YAML file into config, leaving absent keys untouched.
func readFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Server
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.ShutdownTimeout != 0 {
		c.Server.ShutdownTimeout = other.Server.ShutdownTimeout
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
		c.NATS.Embedded = false
	}
	if other.NATS.StoreDir != "" {
		c.NATS.StoreDir = other.NATS.StoreDir
	}

	// Store
	if other.Store.Kind != "" {
		c.Store.Kind = other.Store.Kind
	}

	// Validator
	if other.Validator.Timeout != 0 {
		c.Validator.Timeout = other.Validator.Timeout
	}
	if other.Validator.FormatRetries != 0 {
		c.Validator.FormatRetries = other.Validator.FormatRetries
	}
	if other.Validator.Temperature != 0 {
		c.Validator.Temperature = other.Validator.Temperature
	}

	// Artefacts
	if other.Artefacts.BaseDir != "" {
		c.Artefacts.BaseDir = other.Artefacts.BaseDir
	}
	if len(other.Artefacts.AllowedRoots) > 0 {
		c.Artefacts.AllowedRoots = other.Artefacts.AllowedRoots
	}

	// Catalog
	if other.Catalog.Path != "" {
		c.Catalog.Path = other.Catalog.Path
	}
	if other.Catalog.Watch {
		c.Catalog.Watch = true
	}

	// Rate limit
	if other.RateLimit.RPS != 0 {
		c.RateLimit.RPS = other.RateLimit.RPS
	}
	if other.RateLimit.Burst != 0 {
		c.RateLimit.Burst = other.RateLimit.Burst
	}

	// Model health
	if other.ModelHealth.FailureThreshold != 0 {
		c.ModelHealth.FailureThreshold = other.ModelHealth.FailureThreshold
	}
	if other.ModelHealth.RecoveryTimeout != 0 {
		c.ModelHealth.RecoveryTimeout = other.ModelHealth.RecoveryTimeout
	}

	// Model retry
	if other.ModelRetry.MaxAttempts != 0 {
		c.ModelRetry.MaxAttempts = other.ModelRetry.MaxAttempts
	}
	if other.ModelRetry.BackoffBase != 0 {
		c.ModelRetry.BackoffBase = other.ModelRetry.BackoffBase
	}
	if other.ModelRetry.MaxBackoff != 0 {
		c.ModelRetry.MaxBackoff = other.ModelRetry.MaxBackoff
	}

	if other.ModelRegistry != "" {
		c.ModelRegistry = other.ModelRegistry
	}

	// Org defaults merge per axis
	if len(other.OrgDefaults) > 0 {
		if c.OrgDefaults == nil {
			c.OrgDefaults = make(map[string]string, len(other.OrgDefaults))
		}
		for k, v := range other.OrgDefaults {
			c.OrgDefaults[k] = v
		}
	}
}
