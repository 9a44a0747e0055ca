package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ClansConfig holds the registry of clans (read/write).
type ClansConfig struct {
	Clans map[string]ClanEntry `yaml:"clans,omitempty"`
}

// ClanEntry holds configuration for a specific clan.
type ClanEntry struct {
	Description string `yaml:"description,omitempty"`
	// Database overrides the per-clan SQLite path.
	Database string `yaml:"database,omitempty"`
}

// LoadClans loads the clan registry from the .clanid directory.
func LoadClans(basePath string) (*ClansConfig, error) {
	clansFile := ClansFilePath(basePath)

	data, err := os.ReadFile(clansFile)
	if os.IsNotExist(err) {
		return &ClansConfig{
			Clans: make(map[string]ClanEntry),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading clans file: %w", err)
	}

	var cfg ClansConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing clans file: %w", err)
	}

	if cfg.Clans == nil {
		cfg.Clans = make(map[string]ClanEntry)
	}

	return &cfg, nil
}

// Save writes the clan registry to the clans file.
func (c *ClansConfig) Save(basePath string) error {
	configDir := ConfigDir(basePath)

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling clans config: %w", err)
	}

	if err := os.WriteFile(ClansFilePath(basePath), data, 0600); err != nil {
		return fmt.Errorf("writing clans file: %w", err)
	}

	return nil
}

// Add adds a clan to the registry.
func (c *ClansConfig) Add(name string, entry ClanEntry) {
	if c.Clans == nil {
		c.Clans = make(map[string]ClanEntry)
	}
	c.Clans[name] = entry
}

// Remove removes a clan from the registry.
func (c *ClansConfig) Remove(name string) {
	if c.Clans != nil {
		delete(c.Clans, name)
	}
}

// Names returns the registered clan names, sorted.
func (c *ClansConfig) Names() []string {
	names := make([]string, 0, len(c.Clans))
	for name := range c.Clans {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the configuration for a specific clan.
func (c *ClansConfig) Get(name string) (*ClanEntry, error) {
	if len(c.Clans) == 0 {
		return nil, errors.New("no clans configured")
	}

	entry, ok := c.Clans[name]
	if !ok {
		names := c.Names()
		if len(names) > 5 {
			names = append(names[:5], "...")
		}
		return nil, fmt.Errorf("clan %q not found (available: %s)", name, strings.Join(names, ", "))
	}

	return &entry, nil
}

// DatabasePath returns the SQLite path for a clan, honoring an override.
func (c *ClansConfig) DatabasePath(basePath, name string) (string, error) {
	entry, err := c.Get(name)
	if err != nil {
		return "", err
	}
	if entry.Database != "" {
		if filepath.IsAbs(entry.Database) {
			return entry.Database, nil
		}
		return filepath.Join(basePath, entry.Database), nil
	}
	return SQLitePathForClan(basePath, name), nil
}

// Exists checks if a clan exists in the registry.
func (c *ClansConfig) Exists(name string) bool {
	if c.Clans == nil {
		return false
	}
	_, ok := c.Clans[name]
	return ok
}
