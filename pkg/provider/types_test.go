package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectType(t *testing.T) {
	t.Run("should honor an explicit type tag", func(t *testing.T) {
		cfg := Config{Type: TypeAnthropic, Endpoint: "http://localhost:11434"}
		assert.Equal(t, TypeAnthropic, DetectType(cfg))
	})

	t.Run("should detect ollama from localhost endpoints", func(t *testing.T) {
		for _, endpoint := range []string{
			"http://localhost:11434",
			"http://127.0.0.1:8080",
			"http://gpu-box:11434",
			"https://my-ollama.internal",
		} {
			assert.Equal(t, TypeOllama, DetectType(Config{Endpoint: endpoint}), endpoint)
		}
	})

	t.Run("should detect anthropic from the endpoint", func(t *testing.T) {
		cfg := Config{Endpoint: "https://api.anthropic.com"}
		assert.Equal(t, TypeAnthropic, DetectType(cfg))
	})

	t.Run("should detect anthropic keys before generic sk keys", func(t *testing.T) {
		cfg := Config{APIKey: "sk-ant-api03-xyz"}
		assert.Equal(t, TypeAnthropic, DetectType(cfg))
	})

	t.Run("should detect openai from sk keys", func(t *testing.T) {
		cfg := Config{APIKey: "sk-proj-xyz"}
		assert.Equal(t, TypeOpenAI, DetectType(cfg))
	})

	t.Run("should default to openai compatible", func(t *testing.T) {
		cfg := Config{Endpoint: "https://api.example.com/v1"}
		assert.Equal(t, TypeOpenAI, DetectType(cfg))
	})
}

func TestConfigLocal(t *testing.T) {
	assert.True(t, Config{Endpoint: "http://localhost:11434"}.Local())
	assert.False(t, Config{APIKey: "sk-ant-api03-xyz"}.Local())
	assert.False(t, Config{Endpoint: "https://api.example.com/v1"}.Local())
}

func TestNew(t *testing.T) {
	t.Run("should build the adapter matching the detected family", func(t *testing.T) {
		p, err := New(Config{Name: "local", Endpoint: "http://localhost:11434"})
		assert.NoError(t, err)
		assert.Equal(t, TypeOllama, p.Type())

		p, err = New(Config{Name: "claude", APIKey: "sk-ant-api03-xyz"})
		assert.NoError(t, err)
		assert.Equal(t, TypeAnthropic, p.Type())

		p, err = New(Config{Name: "gpt", APIKey: "sk-proj-xyz"})
		assert.NoError(t, err)
		assert.Equal(t, TypeOpenAI, p.Type())
	})
}
