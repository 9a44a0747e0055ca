// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigDir is the directory name for clanid configuration.
	DefaultConfigDir = ".clanid"
	// DefaultConfigFile is the default config file name.
	DefaultConfigFile = "config.yaml"
	// DefaultClansFile is the default clans file name.
	DefaultClansFile = "clans.yaml"
	// DefaultDatabaseFile is the per-clan SQLite file name.
	DefaultDatabaseFile = "clanid.db"
)

var (
	// reNonAlphanumeric matches characters that aren't alphanumeric or underscore.
	reNonAlphanumeric = regexp.MustCompile(`[^a-z0-9_]`)
	// reMultipleUnderscores matches consecutive underscores.
	reMultipleUnderscores = regexp.MustCompile(`_+`)
)

// Config holds static configuration (read-only after init).
type Config struct {
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty"`
	Matching MatchingConfig `yaml:"matching,omitempty"`
	Linker   LinkerConfig   `yaml:"linker,omitempty"`
	Store    StoreConfig    `yaml:"store,omitempty"`
	Log      LogConfig      `yaml:"log,omitempty"`
}

// SQLiteConfig holds configuration for the SQLite identity database.
type SQLiteConfig struct {
	// Path is the file path to the SQLite database.
	// For per-clan databases, this is computed dynamically using SQLitePathForClan.
	Path string `yaml:"path,omitempty"`
	// BusyTimeoutMS is how long a connection waits on a locked database.
	BusyTimeoutMS int `yaml:"busy_timeout_ms,omitempty"`
}

// MatchingConfig tunes fuzzy suggestion. Suggestions never link records.
type MatchingConfig struct {
	SuggestThreshold float64 `yaml:"suggest_threshold,omitempty"`
	AmbiguityMargin  float64 `yaml:"ambiguity_margin,omitempty"`
	SuggestLimit     int     `yaml:"suggest_limit,omitempty"`
}

// LinkerConfig tunes batch relink passes.
type LinkerConfig struct {
	BatchSize        int  `yaml:"batch_size,omitempty"`
	Workers          int  `yaml:"workers,omitempty"`
	CreateIdentities bool `yaml:"create_identities"`
}

// StoreConfig tunes retries of identity writes that lose a uniqueness or lock race.
type StoreConfig struct {
	RetryAttempts int `yaml:"retry_attempts,omitempty"`
	RetryDelayMS  int `yaml:"retry_delay_ms,omitempty"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
	Output string `yaml:"output,omitempty"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		SQLite: SQLiteConfig{
			BusyTimeoutMS: 5000,
		},
		Matching: MatchingConfig{
			SuggestThreshold: 0.75,
			AmbiguityMargin:  0.05,
			SuggestLimit:     5,
		},
		Linker: LinkerConfig{
			BatchSize:        500,
			Workers:          1,
			CreateIdentities: true,
		},
		Store: StoreConfig{
			RetryAttempts: 5,
			RetryDelayMS:  20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
			Output: "stderr",
		},
	}
}

// Load loads configuration from the .clanid directory in the given path.
func Load(basePath string) (*Config, error) {
	configFile := filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)

	data, err := os.ReadFile(configFile)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s (run 'clanid init' first)", configFile)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Start with defaults
	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if level := os.Getenv("CLANID_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("CLANID_LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}
	if path := os.Getenv("CLANID_DB"); path != "" {
		c.SQLite.Path = path
	}
	if workers := os.Getenv("CLANID_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil && n > 0 {
			c.Linker.Workers = n
		}
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Matching.SuggestThreshold <= 0 || c.Matching.SuggestThreshold > 1 {
		return fmt.Errorf("matching.suggest_threshold must be in (0, 1], got %v", c.Matching.SuggestThreshold)
	}
	if c.Matching.AmbiguityMargin < 0 || c.Matching.AmbiguityMargin >= 1 {
		return fmt.Errorf("matching.ambiguity_margin must be in [0, 1), got %v", c.Matching.AmbiguityMargin)
	}
	if c.Linker.BatchSize <= 0 {
		return fmt.Errorf("linker.batch_size must be positive, got %d", c.Linker.BatchSize)
	}
	if c.Linker.Workers <= 0 {
		return fmt.Errorf("linker.workers must be positive, got %d", c.Linker.Workers)
	}
	if c.Store.RetryAttempts <= 0 {
		return fmt.Errorf("store.retry_attempts must be positive, got %d", c.Store.RetryAttempts)
	}
	return nil
}

// ConfigDir returns the path to the .clanid config directory.
func ConfigDir(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir)
}

// ConfigFilePath returns the path to the config file.
func ConfigFilePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)
}

// ClansFilePath returns the path to the clans file.
func ClansFilePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultClansFile)
}

// Exists checks if a clanid config exists in the given path.
func Exists(basePath string) bool {
	configFile := filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)
	_, err := os.Stat(configFile)
	return err == nil
}

// SanitizeClanName converts a clan name to a safe directory name.
func SanitizeClanName(name string) string {
	name = strings.ToLower(name)

	// Replace spaces and hyphens with underscores
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")

	name = reNonAlphanumeric.ReplaceAllString(name, "")
	name = reMultipleUnderscores.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")

	if name == "" {
		return "default"
	}

	return name
}

// SQLitePathForClan returns the SQLite database path for a given clan.
func SQLitePathForClan(basePath, clanName string) string {
	return filepath.Join(ClanDir(basePath, clanName), DefaultDatabaseFile)
}

// ClanDir returns the directory path for a given clan.
func ClanDir(basePath, clanName string) string {
	return filepath.Join(basePath, DefaultConfigDir, "clans", SanitizeClanName(clanName))
}
