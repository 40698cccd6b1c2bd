package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderLoad(t *testing.T) {
	t.Run("should return defaults for a missing file", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))

		require.NoError(t, err)
		assert.Equal(t, "local_first", cfg.Routing.Strategy)
		assert.NotEmpty(t, cfg.DataDir)
		assert.NotEmpty(t, cfg.Logging.File)
		assert.NotEmpty(t, cfg.VaultPath)
	})

	t.Run("should merge file values over defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "kestrel.json")
		content := `{
			"routing": {"strategy": "cloud_first", "max_retries": 5},
			"providers": [
				{"name": "local", "endpoint": "http://localhost:11434", "model": "llama3", "priority": 1, "enabled": true}
			],
			"gateway": {"enabled": true, "port": 9001, "shared_secret": "s3cret"}
		}`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		cfg, err := Load(path)

		require.NoError(t, err)
		assert.Equal(t, "cloud_first", cfg.Routing.Strategy)
		assert.Equal(t, 5, cfg.Routing.MaxRetries)
		assert.Equal(t, 60, cfg.Routing.HealthCheckInterval) // default survives
		require.Len(t, cfg.Providers, 1)
		assert.Equal(t, "local", cfg.Providers[0].Name)
		assert.True(t, cfg.Gateway.Enabled)
		assert.Equal(t, 9001, cfg.Gateway.Port)
	})

	t.Run("should fail on malformed json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "kestrel.json")
		require.NoError(t, os.WriteFile(path, []byte("{"), 0644))

		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	t.Run("should round-trip through save and load", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sub", "kestrel.json")
		loader := NewLoader(path)

		cfg := DefaultConfig()
		cfg.Providers = validProviders()
		cfg.Routing.Strategy = "cloud_only"
		require.NoError(t, loader.Save(cfg))

		loaded, err := loader.Load()
		require.NoError(t, err)
		assert.Equal(t, "cloud_only", loaded.Routing.Strategy)
		require.Len(t, loaded.Providers, 2)
		assert.Equal(t, "claude", loaded.Providers[1].Name)
	})
}
