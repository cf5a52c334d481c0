// Package config loads, validates and materializes the vnodefs
// configuration: a set of named backends plus the mount table wiring
// them into one namespace.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (VNODEFS_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// Backend Configuration Pattern:
// each backend type defines its own option set. The BackendConfig
// struct carries one type-specific section per supported type and
// only the section matching Type is decoded, by the factory in
// factories.go.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/vnodefs/vnodefs/internal/logger"
)

// Config is the complete vnodefs configuration.
type Config struct {
	// Logging controls log output behavior.
	Logging logger.Config `mapstructure:"logging"`

	// Backends maps a backend name to its definition. Names are
	// referenced by mounts and overlay layers.
	Backends map[string]BackendConfig `mapstructure:"backends" validate:"required,dive"`

	// Mounts defines the mount table, one entry per prefix.
	Mounts []MountConfig `mapstructure:"mounts" validate:"required,min=1,dive"`
}

// BackendConfig defines one named backend. Only the section matching
// Type is used.
type BackendConfig struct {
	// Type selects the backend implementation.
	Type string `mapstructure:"type" validate:"required,oneof=memory local embedded badger s3 overlay symlink"`

	// Memory holds memory backend options (root_read_only).
	Memory map[string]any `mapstructure:"memory"`

	// Local holds local backend options (path, read_only).
	Local map[string]any `mapstructure:"local"`

	// Embedded holds embedded backend options (files).
	Embedded map[string]any `mapstructure:"embedded"`

	// Badger holds BadgerDB backend options (path, in_memory).
	Badger map[string]any `mapstructure:"badger"`

	// S3 holds S3 backend options (region, bucket, key_prefix,
	// endpoint, credentials, use_path_style).
	S3 map[string]any `mapstructure:"s3"`

	// Overlay holds overlay backend options (layers).
	Overlay map[string]any `mapstructure:"overlay"`

	// Symlink holds symlink backend options (target, links).
	Symlink map[string]any `mapstructure:"symlink"`
}

// MountConfig binds a path prefix to a named backend.
type MountConfig struct {
	// Prefix is the mount point, e.g. "/" or "/data".
	Prefix string `mapstructure:"prefix" validate:"required,startswith=/"`

	// Backend names the entry in Backends serving this prefix.
	Backend string `mapstructure:"backend" validate:"required"`
}

// Load loads configuration from file, environment, and defaults, and
// validates it. An empty configPath uses the default location.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// applyDefaults fills missing values. A configuration with no
// backends gets a single memory backend mounted at the root, so the
// zero config is usable out of the box.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if len(cfg.Logging.OutputPaths) == 0 {
		cfg.Logging.OutputPaths = []string{"stdout"}
	}
	if len(cfg.Backends) == 0 && len(cfg.Mounts) == 0 {
		cfg.Backends = map[string]BackendConfig{
			"scratch": {Type: "memory"},
		}
		cfg.Mounts = []MountConfig{{Prefix: "/", Backend: "scratch"}}
	}
}

// setupViper configures environment variables and the config file
// location. VNODEFS_LOGGING_LEVEL=debug overrides logging.level.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("VNODEFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists; a missing
// file is fine, defaults apply.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory, preferring
// XDG_CONFIG_HOME over ~/.config.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "vnodefs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "vnodefs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
