package provider

import (
	"context"
	"fmt"
	"time"
)

const (
	// requestTimeout bounds a single completion call. Every adapter
	// enforces this itself so a hung backend cannot stall a run past
	// the router's control.
	requestTimeout = 120 * time.Second

	// healthTimeout bounds a single health probe.
	healthTimeout = 5 * time.Second
)

// Provider is the capability interface every backend family implements.
type Provider interface {
	// Name returns the configured provider name.
	Name() string

	// Type returns the backend family.
	Type() Type

	// HealthCheck runs a minimal probe and returns the models the
	// backend advertises.
	HealthCheck(ctx context.Context) ([]string, error)

	// Complete executes a normalized completion request.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Stream executes a completion delivering output incrementally via
	// onChunk. Errors after the first chunk are returned, not retried.
	Stream(ctx context.Context, req CompletionRequest, onChunk func(StreamChunk)) (*CompletionResponse, error)
}

// New creates the adapter for a config, resolving untagged configs through
// the detection heuristic.
func New(cfg Config) (Provider, error) {
	switch DetectType(cfg) {
	case TypeOllama:
		return NewOllamaProvider(cfg), nil
	case TypeAnthropic:
		return NewAnthropicProvider(cfg), nil
	case TypeOpenAI:
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Type)
	}
}
