package config

import (
	"testing"

	"github.com/idris/kestrel/pkg/provider"
	"github.com/stretchr/testify/assert"
)

func validProviders() []provider.Config {
	return []provider.Config{
		{
			Name:     "local",
			Endpoint: "http://localhost:11434",
			Model:    "llama3",
			Priority: 1,
			Enabled:  true,
		},
		{
			Name:     "claude",
			APIKey:   "sk-ant-test123",
			Model:    "claude-sonnet-4",
			Priority: 2,
			Enabled:  true,
		},
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "local_first", cfg.Routing.Strategy)
	assert.Equal(t, 2, cfg.Routing.MaxRetries)
	assert.Equal(t, 60, cfg.Routing.HealthCheckInterval)
	assert.Equal(t, 5, cfg.Agent.MaxConcurrentRuns)
	assert.Equal(t, 8, cfg.Agent.MaxSteps)
	assert.True(t, cfg.Agent.ConfirmDestructive)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.False(t, cfg.Gateway.Enabled)
	assert.Equal(t, 8080, cfg.Gateway.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redaction)
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Providers = validProviders()

		assert.NoError(t, cfg.Validate())
	})

	t.Run("missing providers", func(t *testing.T) {
		cfg := DefaultConfig()

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no providers")
	})

	t.Run("provider missing name", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Providers = validProviders()
		cfg.Providers[0].Name = ""

		assert.Error(t, cfg.Validate())
	})

	t.Run("duplicate provider name", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Providers = validProviders()
		cfg.Providers[1].Name = cfg.Providers[0].Name

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate")
	})

	t.Run("provider missing model", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Providers = validProviders()
		cfg.Providers[0].Model = ""

		assert.Error(t, cfg.Validate())
	})

	t.Run("invalid provider type", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Providers = validProviders()
		cfg.Providers[0].Type = "gemini"

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid type")
	})

	t.Run("cloud provider without api key", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Providers = validProviders()
		cfg.Providers[1].APIKey = ""
		cfg.Providers[1].Type = provider.TypeAnthropic

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "api_key")
	})

	t.Run("local provider without api key is fine", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Providers = validProviders()[:1]

		assert.NoError(t, cfg.Validate())
	})

	t.Run("invalid routing strategy", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Providers = validProviders()
		cfg.Routing.Strategy = "fastest"

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "strategy")
	})

	t.Run("scheduler job missing schedule", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Providers = validProviders()
		cfg.Scheduler.Enabled = true
		cfg.Scheduler.Jobs = []JobConfig{{Name: "daily", Goal: "summarize inbox"}}

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "schedule")
	})

	t.Run("invalid gateway port", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Providers = validProviders()
		cfg.Gateway.Enabled = true
		cfg.Gateway.Port = 99999

		assert.Error(t, cfg.Validate())
	})
}
