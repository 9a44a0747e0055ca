package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeClanName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple lowercase",
			input:    "wolfpack",
			expected: "wolfpack",
		},
		{
			name:     "uppercase converted",
			input:    "WolfPack",
			expected: "wolfpack",
		},
		{
			name:     "spaces to underscores",
			input:    "wolf pack",
			expected: "wolf_pack",
		},
		{
			name:     "hyphens to underscores",
			input:    "wolf-pack",
			expected: "wolf_pack",
		},
		{
			name:     "special characters removed",
			input:    "wolf@pack!",
			expected: "wolfpack",
		},
		{
			name:     "consecutive underscores collapsed",
			input:    "wolf--pack",
			expected: "wolf_pack",
		},
		{
			name:     "leading trailing underscores trimmed",
			input:    "-wolf-pack-",
			expected: "wolf_pack",
		},
		{
			name:     "empty string returns default",
			input:    "",
			expected: "default",
		},
		{
			name:     "only special chars returns default",
			input:    "!!!",
			expected: "default",
		},
		{
			name:     "complex mixed input",
			input:    "Iron Legion (EU 2)",
			expected: "iron_legion_eu_2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeClanName(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 0.75, cfg.Matching.SuggestThreshold)
	assert.Equal(t, 500, cfg.Linker.BatchSize)
	assert.Equal(t, 1, cfg.Linker.Workers)
	assert.True(t, cfg.Linker.CreateIdentities)
	assert.Equal(t, 5000, cfg.SQLite.BusyTimeoutMS)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("missing config", func(t *testing.T) {
		_, err := Load(t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config file not found")
	})

	t.Run("default file round-trips", func(t *testing.T) {
		tmpDir := t.TempDir()
		require.NoError(t, WriteDefault(tmpDir))

		cfg, err := Load(tmpDir)
		require.NoError(t, err)
		assert.Equal(t, Default().Matching, cfg.Matching)
		assert.Equal(t, Default().Linker, cfg.Linker)
	})

	t.Run("partial file keeps defaults", func(t *testing.T) {
		tmpDir := t.TempDir()
		require.NoError(t, os.MkdirAll(ConfigDir(tmpDir), 0755))
		content := "linker:\n  workers: 4\n  create_identities: false\n"
		require.NoError(t, os.WriteFile(ConfigFilePath(tmpDir), []byte(content), 0600))

		cfg, err := Load(tmpDir)
		require.NoError(t, err)
		assert.Equal(t, 4, cfg.Linker.Workers)
		assert.False(t, cfg.Linker.CreateIdentities)
		assert.Equal(t, 500, cfg.Linker.BatchSize)
		assert.Equal(t, 0.75, cfg.Matching.SuggestThreshold)
	})

	t.Run("invalid threshold rejected", func(t *testing.T) {
		tmpDir := t.TempDir()
		require.NoError(t, os.MkdirAll(ConfigDir(tmpDir), 0755))
		content := "matching:\n  suggest_threshold: 1.5\n"
		require.NoError(t, os.WriteFile(ConfigFilePath(tmpDir), []byte(content), 0600))

		_, err := Load(tmpDir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "suggest_threshold")
	})

	t.Run("env overrides", func(t *testing.T) {
		tmpDir := t.TempDir()
		require.NoError(t, WriteDefault(tmpDir))
		t.Setenv("CLANID_LOG_LEVEL", "debug")
		t.Setenv("CLANID_WORKERS", "3")

		cfg, err := Load(tmpDir)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, 3, cfg.Linker.Workers)
	})
}

func TestWriteDefault_RefusesOverwrite(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, WriteDefault(tmpDir))

	err := WriteDefault(tmpDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestConfigDir(t *testing.T) {
	assert.Equal(t, filepath.Join("/tmp", ".clanid"), ConfigDir("/tmp"))
}

func TestConfigFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("/tmp", ".clanid", "config.yaml"), ConfigFilePath("/tmp"))
}

func TestSQLitePathForClan(t *testing.T) {
	assert.Equal(t,
		filepath.Join("/tmp", ".clanid", "clans", "wolf_pack", "clanid.db"),
		SQLitePathForClan("/tmp", "Wolf Pack"),
	)
}
