package provider

import (
	"strings"
	"time"
)

// Type identifies a provider backend family.
type Type string

const (
	TypeOllama    Type = "ollama"
	TypeOpenAI    Type = "openai"
	TypeAnthropic Type = "anthropic"
)

// FinishReason describes why a completion ended.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
	FinishError     FinishReason = "error"
)

// Config is a provider's static configuration.
type Config struct {
	Name         string   `json:"name" mapstructure:"name"`
	Type         Type     `json:"type" mapstructure:"type"`
	Endpoint     string   `json:"endpoint" mapstructure:"endpoint"`
	Model        string   `json:"model" mapstructure:"model"`
	APIKey       string   `json:"api_key" mapstructure:"api_key"`
	Priority     int      `json:"priority" mapstructure:"priority"`
	Capabilities []string `json:"capabilities" mapstructure:"capabilities"`
	ContextLimit int      `json:"context_limit" mapstructure:"context_limit"`
	Enabled      bool     `json:"enabled" mapstructure:"enabled"`
}

// Local reports whether the provider is a local-class backend (zero
// marginal cost per request).
func (c Config) Local() bool {
	return DetectType(c) == TypeOllama
}

// DetectType resolves the backend family for a config. An explicit type tag
// wins. Untagged legacy configs fall back to sniffing: endpoint substrings
// first, then credential prefix, defaulting to OpenAI-compatible. Existing
// deployments rely on this exact order.
func DetectType(cfg Config) Type {
	if cfg.Type != "" {
		return cfg.Type
	}

	endpoint := strings.ToLower(cfg.Endpoint)
	if strings.Contains(endpoint, "localhost") ||
		strings.Contains(endpoint, "127.0.0.1") ||
		strings.Contains(endpoint, "11434") ||
		strings.Contains(endpoint, "ollama") {
		return TypeOllama
	}
	if strings.Contains(endpoint, "anthropic") {
		return TypeAnthropic
	}

	if strings.HasPrefix(cfg.APIKey, "sk-ant-") {
		return TypeAnthropic
	}
	if strings.HasPrefix(cfg.APIKey, "sk-") {
		return TypeOpenAI
	}

	return TypeOpenAI
}

// Health is a provider's mutable observed state, refreshed by periodic
// out-of-band checks.
type Health struct {
	Available bool      `json:"available"`
	LastCheck time.Time `json:"last_check"`
	LatencyMs int64     `json:"latency_ms"`
	LastError string    `json:"last_error,omitempty"`
	Models    []string  `json:"models,omitempty"`
}

// Message is one turn of a normalized conversation.
type Message struct {
	Role    string `json:"role"` // system, user, assistant, tool
	Content string `json:"content"`
}

// CompletionRequest is the normalized request every adapter accepts.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// CompletionResponse is the normalized response every adapter produces.
type CompletionResponse struct {
	Content      string       `json:"content,omitempty"`
	FinishReason FinishReason `json:"finish_reason"`
	Provider     string       `json:"provider,omitempty"`
	Model        string       `json:"model,omitempty"`
	LatencyMs    int64        `json:"latency_ms"`
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// TokenUsage tracks token consumption for one completion.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// StreamChunk delivers one increment of streamed output.
type StreamChunk struct {
	Text string
	Done bool
	Err  error
}
