package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "workbench.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/workbench"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
	// EnvPrefix prefixes every environment override, e.g. WORKBENCH_SERVER_ADDR
	EnvPrefix = "WORKBENCH"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger   *slog.Logger
	explicit string
	workDir  string
	homeDir  string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithFile adds an explicit config file (the --config flag). Unlike the
// user and project files, it must exist.
func WithFile(path string) LoaderOption {
	return func(l *Loader) {
		l.explicit = path
	}
}

// WithWorkDir sets where the project config search starts.
func WithWorkDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.workDir = dir
	}
}

// WithHomeDir overrides the home directory holding the user config.
func WithHomeDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.homeDir = dir
	}
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/workbench/config.yaml)
// 3. Project config (workbench.yaml in current or parent directories)
// 4. Explicit config file
// 5. Environment variables (WORKBENCH_*)
func (l *Loader) Load() (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	// Load user config
	userConfigPath := l.userConfigPath()
	if userConfigPath != "" {
		var userConfig Config
		if err := readFile(userConfigPath, &userConfig); err == nil {
			l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
			config.Merge(&userConfig)
		} else if !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
		}
	}

	// Load project config
	projectConfigPath := l.findProjectConfig()
	if projectConfigPath != "" {
		var projectConfig Config
		if err := readFile(projectConfigPath, &projectConfig); err == nil {
			l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
			config.Merge(&projectConfig)
		} else {
			l.logger.Warn("Failed to load project config", slog.String("path", projectConfigPath), slog.String("error", err.Error()))
		}
	} else {
		l.logger.Debug("No project config found")
	}

	if l.explicit != "" {
		var explicit Config
		if err := readFile(l.explicit, &explicit); err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded config file", slog.String("path", l.explicit))
		config.Merge(&explicit)
	}

	if err := applyEnv(config); err != nil {
		return nil, err
	}

	// Validate final config
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// envKeys are the settings that can be overridden from the environment.
var envKeys = []string{
	"server.addr",
	"server.shutdown_timeout",
	"nats.url",
	"nats.embedded",
	"nats.store_dir",
	"store.kind",
	"model_registry",
	"validator.timeout",
	"validator.format_retries",
	"validator.temperature",
	"artefacts.base_dir",
	"artefacts.allowed_roots",
	"catalog.path",
	"catalog.watch",
	"rate_limit.rps",
	"rate_limit.burst",
	"model_health.failure_threshold",
	"model_health.recovery_timeout",
}

// applyEnv overlays WORKBENCH_* variables. Unlike file layers, an
// environment variable set to a zero value still wins.
func applyEnv(config *Config) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if v.IsSet("server.addr") {
		config.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.shutdown_timeout") {
		config.Server.ShutdownTimeout = v.GetDuration("server.shutdown_timeout")
	}
	if v.IsSet("nats.url") {
		config.NATS.URL = v.GetString("nats.url")
		config.NATS.Embedded = config.NATS.URL == ""
	}
	if v.IsSet("nats.embedded") {
		config.NATS.Embedded = v.GetBool("nats.embedded")
	}
	if v.IsSet("nats.store_dir") {
		config.NATS.StoreDir = v.GetString("nats.store_dir")
	}
	if v.IsSet("store.kind") {
		config.Store.Kind = v.GetString("store.kind")
	}
	if v.IsSet("model_registry") {
		config.ModelRegistry = v.GetString("model_registry")
	}
	if v.IsSet("validator.timeout") {
		config.Validator.Timeout = v.GetDuration("validator.timeout")
	}
	if v.IsSet("validator.format_retries") {
		config.Validator.FormatRetries = v.GetInt("validator.format_retries")
	}
	if v.IsSet("validator.temperature") {
		config.Validator.Temperature = v.GetFloat64("validator.temperature")
	}
	if v.IsSet("artefacts.base_dir") {
		config.Artefacts.BaseDir = v.GetString("artefacts.base_dir")
	}
	if v.IsSet("artefacts.allowed_roots") {
		config.Artefacts.AllowedRoots = splitList(v.GetString("artefacts.allowed_roots"))
	}
	if v.IsSet("catalog.path") {
		config.Catalog.Path = v.GetString("catalog.path")
	}
	if v.IsSet("catalog.watch") {
		config.Catalog.Watch = v.GetBool("catalog.watch")
	}
	if v.IsSet("rate_limit.rps") {
		config.RateLimit.RPS = v.GetFloat64("rate_limit.rps")
	}
	if v.IsSet("rate_limit.burst") {
		config.RateLimit.Burst = v.GetInt("rate_limit.burst")
	}
	if v.IsSet("model_health.failure_threshold") {
		config.ModelHealth.FailureThreshold = v.GetInt("model_health.failure_threshold")
	}
	if v.IsSet("model_health.recovery_timeout") {
		config.ModelHealth.RecoveryTimeout = v.GetDuration("model_health.recovery_timeout")
	}
	return nil
}

// splitList splits a comma separated value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() error {
	userConfigPath := l.userConfigPath()
	if userConfigPath == "" {
		return fmt.Errorf("no home directory for user config")
	}

	// Check if it already exists
	if _, err := os.Stat(userConfigPath); err == nil {
		return nil // Already exists
	}

	// Create default config
	config := DefaultConfig()
	if err := config.SaveToFile(userConfigPath); err != nil {
		return err
	}

	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return nil
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	home := l.homeDir
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return ""
		}
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for workbench.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	dir := l.workDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return ""
		}
		dir = cwd
	}

	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		// Move to parent directory
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			break
		}
		dir = parent
	}

	return ""
}
