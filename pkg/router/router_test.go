package router

import (
	"context"
	"fmt"
	"testing"

	"github.com/idris/kestrel/pkg/provider"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a scriptable provider adapter.
type fakeProvider struct {
	cfg           provider.Config
	healthy       bool
	completeErr   error
	errorFinish   bool
	completeCalls int
	healthCalls   int
	streamFn      func(onChunk func(provider.StreamChunk)) (*provider.CompletionResponse, error)
}

func (f *fakeProvider) Name() string        { return f.cfg.Name }
func (f *fakeProvider) Type() provider.Type { return provider.DetectType(f.cfg) }

func (f *fakeProvider) HealthCheck(_ context.Context) ([]string, error) {
	f.healthCalls++
	if !f.healthy {
		return nil, fmt.Errorf("connection refused")
	}
	return []string{f.cfg.Model}, nil
}

func (f *fakeProvider) Complete(_ context.Context, _ provider.CompletionRequest) (*provider.CompletionResponse, error) {
	f.completeCalls++
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	if f.errorFinish {
		return &provider.CompletionResponse{
			Content:      "backend rejected request",
			FinishReason: provider.FinishError,
			Provider:     f.cfg.Name,
		}, nil
	}
	return &provider.CompletionResponse{
		Content:      "hello from " + f.cfg.Name,
		FinishReason: provider.FinishStop,
		Provider:     f.cfg.Name,
		Model:        f.cfg.Model,
	}, nil
}

func (f *fakeProvider) Stream(_ context.Context, _ provider.CompletionRequest, onChunk func(provider.StreamChunk)) (*provider.CompletionResponse, error) {
	if f.streamFn != nil {
		return f.streamFn(onChunk)
	}
	onChunk(provider.StreamChunk{Text: "hello from " + f.cfg.Name})
	onChunk(provider.StreamChunk{Done: true})
	return &provider.CompletionResponse{
		Content:      "hello from " + f.cfg.Name,
		FinishReason: provider.FinishStop,
		Provider:     f.cfg.Name,
	}, nil
}

func localConfig(name string, priority int) provider.Config {
	return provider.Config{
		Name:     name,
		Endpoint: "http://localhost:11434",
		Model:    "llama3",
		Priority: priority,
		Enabled:  true,
	}
}

func cloudConfig(name string, priority int) provider.Config {
	return provider.Config{
		Name:     name,
		Endpoint: "https://api.example.com/v1",
		APIKey:   "sk-test00000000000000000000",
		Model:    "gpt-test",
		Priority: priority,
		Enabled:  true,
	}
}

// newTestRouter builds a router over fakes and runs one health sweep.
func newTestRouter(t *testing.T, fakes map[string]*fakeProvider, configs []provider.Config, opts Options) *Router {
	t.Helper()

	opts.Logger = zerolog.Nop()
	opts.Factory = func(cfg provider.Config) (provider.Provider, error) {
		f, ok := fakes[cfg.Name]
		if !ok {
			return nil, fmt.Errorf("no fake for %s", cfg.Name)
		}
		f.cfg = cfg
		return f, nil
	}

	r, err := New(configs, opts)
	require.NoError(t, err)
	r.CheckAll(context.Background())
	return r
}

func TestNew(t *testing.T) {
	t.Run("should reject an invalid strategy", func(t *testing.T) {
		_, err := New(nil, Options{Strategy: "fastest", Logger: zerolog.Nop()})
		assert.Error(t, err)
	})

	t.Run("should skip disabled providers", func(t *testing.T) {
		disabled := localConfig("off", 1)
		disabled.Enabled = false
		r := newTestRouter(t, map[string]*fakeProvider{
			"on": {healthy: true},
		}, []provider.Config{disabled, localConfig("on", 2)}, Options{})

		assert.Equal(t, []string{"on"}, r.ProviderNames())
	})

	t.Run("should order providers by priority", func(t *testing.T) {
		r := newTestRouter(t, map[string]*fakeProvider{
			"second": {healthy: true},
			"first":  {healthy: true},
		}, []provider.Config{localConfig("second", 5), localConfig("first", 1)}, Options{})

		assert.Equal(t, []string{"first", "second"}, r.ProviderNames())
	})
}

func TestComplete(t *testing.T) {
	t.Run("should return a static error with no providers", func(t *testing.T) {
		r := newTestRouter(t, nil, nil, Options{})

		resp := r.Complete(context.Background(), provider.CompletionRequest{})

		assert.Equal(t, provider.FinishError, resp.FinishReason)
		assert.Equal(t, "no providers available", resp.Content)
		assert.Empty(t, r.StatsSnapshot())
	})

	t.Run("should serve from the top candidate", func(t *testing.T) {
		p := &fakeProvider{healthy: true}
		r := newTestRouter(t, map[string]*fakeProvider{"ollama": p},
			[]provider.Config{localConfig("ollama", 1)}, Options{})

		resp := r.Complete(context.Background(), provider.CompletionRequest{})

		assert.Equal(t, provider.FinishStop, resp.FinishReason)
		assert.Equal(t, "ollama", resp.Provider)
		assert.Equal(t, int64(1), r.StatsSnapshot()["ollama"].Requests)
		assert.Equal(t, int64(0), r.StatsSnapshot()["ollama"].Errors)
	})

	t.Run("should fall back to the next provider and notify", func(t *testing.T) {
		primary := &fakeProvider{healthy: true, completeErr: fmt.Errorf("boom")}
		backup := &fakeProvider{healthy: true}
		var events []FallbackEvent

		r := newTestRouter(t, map[string]*fakeProvider{"primary": primary, "backup": backup},
			[]provider.Config{localConfig("primary", 1), localConfig("backup", 2)},
			Options{MaxRetries: 1, OnFallback: func(e FallbackEvent) { events = append(events, e) }})

		resp := r.Complete(context.Background(), provider.CompletionRequest{})

		assert.Equal(t, "backup", resp.Provider)
		require.Len(t, events, 1)
		assert.Equal(t, "primary", events[0].From)
		assert.Equal(t, "backup", events[0].To)
		assert.Equal(t, "boom", events[0].Reason)
	})

	t.Run("should retry a provider before moving on", func(t *testing.T) {
		failing := &fakeProvider{healthy: true, completeErr: fmt.Errorf("flaky")}
		backup := &fakeProvider{healthy: true}

		r := newTestRouter(t, map[string]*fakeProvider{"failing": failing, "backup": backup},
			[]provider.Config{localConfig("failing", 1), localConfig("backup", 2)},
			Options{MaxRetries: 3})

		resp := r.Complete(context.Background(), provider.CompletionRequest{})

		assert.Equal(t, "backup", resp.Provider)
		assert.Equal(t, 3, failing.completeCalls)
		assert.Equal(t, int64(3), r.StatsSnapshot()["failing"].Errors)
	})

	t.Run("should treat an error finish reason as failure", func(t *testing.T) {
		broken := &fakeProvider{healthy: true, errorFinish: true}
		backup := &fakeProvider{healthy: true}

		r := newTestRouter(t, map[string]*fakeProvider{"broken": broken, "backup": backup},
			[]provider.Config{localConfig("broken", 1), localConfig("backup", 2)},
			Options{MaxRetries: 1})

		resp := r.Complete(context.Background(), provider.CompletionRequest{})
		assert.Equal(t, "backup", resp.Provider)
	})

	t.Run("should skip unavailable providers when an available one exists", func(t *testing.T) {
		down := &fakeProvider{healthy: false}
		up := &fakeProvider{healthy: true}

		r := newTestRouter(t, map[string]*fakeProvider{"down": down, "up": up},
			[]provider.Config{localConfig("down", 1), localConfig("up", 2)}, Options{})

		resp := r.Complete(context.Background(), provider.CompletionRequest{})

		assert.Equal(t, "up", resp.Provider)
		assert.Equal(t, 0, down.completeCalls)
	})

	t.Run("should still try a single unavailable provider as last resort", func(t *testing.T) {
		down := &fakeProvider{healthy: false}

		r := newTestRouter(t, map[string]*fakeProvider{"down": down},
			[]provider.Config{localConfig("down", 1)}, Options{MaxRetries: 1})

		resp := r.Complete(context.Background(), provider.CompletionRequest{})

		assert.Equal(t, "down", resp.Provider)
		assert.Equal(t, 1, down.completeCalls)
	})

	t.Run("should exhaust all candidates into an error response", func(t *testing.T) {
		failing := &fakeProvider{healthy: true, completeErr: fmt.Errorf("boom")}

		r := newTestRouter(t, map[string]*fakeProvider{"failing": failing},
			[]provider.Config{localConfig("failing", 1)}, Options{MaxRetries: 2})

		resp := r.Complete(context.Background(), provider.CompletionRequest{})

		assert.Equal(t, provider.FinishError, resp.FinishReason)
		assert.Contains(t, resp.Content, "all providers failed")
		assert.Contains(t, resp.Content, "boom")
	})
}

func TestStrategies(t *testing.T) {
	build := func(t *testing.T, strategy Strategy) (*Router, *fakeProvider, *fakeProvider) {
		local := &fakeProvider{healthy: true}
		cloud := &fakeProvider{healthy: true}
		r := newTestRouter(t, map[string]*fakeProvider{"local": local, "cloud": cloud},
			[]provider.Config{localConfig("local", 2), cloudConfig("cloud", 1)},
			Options{Strategy: strategy})
		return r, local, cloud
	}

	t.Run("should prefer local under local_first", func(t *testing.T) {
		r, _, _ := build(t, StrategyLocalFirst)
		resp := r.Complete(context.Background(), provider.CompletionRequest{})
		assert.Equal(t, "local", resp.Provider)
	})

	t.Run("should prefer cloud under cloud_first", func(t *testing.T) {
		r, _, _ := build(t, StrategyCloudFirst)
		resp := r.Complete(context.Background(), provider.CompletionRequest{})
		assert.Equal(t, "cloud", resp.Provider)
	})

	t.Run("should treat cost_optimized as local_first", func(t *testing.T) {
		r, _, _ := build(t, StrategyCostOptimized)
		resp := r.Complete(context.Background(), provider.CompletionRequest{})
		assert.Equal(t, "local", resp.Provider)
	})

	t.Run("should never use cloud under local_only", func(t *testing.T) {
		local := &fakeProvider{healthy: false}
		cloud := &fakeProvider{healthy: true}
		r := newTestRouter(t, map[string]*fakeProvider{"local": local, "cloud": cloud},
			[]provider.Config{localConfig("local", 1), cloudConfig("cloud", 2)},
			Options{Strategy: StrategyLocalOnly})

		resp := r.Complete(context.Background(), provider.CompletionRequest{})

		assert.Equal(t, provider.FinishError, resp.FinishReason)
		assert.Equal(t, 0, cloud.completeCalls)
	})

	t.Run("should reject switching to an invalid strategy", func(t *testing.T) {
		r, _, _ := build(t, StrategyLocalFirst)
		assert.Error(t, r.SetStrategy("fastest"))
		assert.NoError(t, r.SetStrategy(StrategyCloudOnly))
		assert.Equal(t, StrategyCloudOnly, r.Strategy())
	})
}

func TestStream(t *testing.T) {
	t.Run("should fall back before the first chunk", func(t *testing.T) {
		primary := &fakeProvider{healthy: true, streamFn: func(_ func(provider.StreamChunk)) (*provider.CompletionResponse, error) {
			return nil, fmt.Errorf("connect error")
		}}
		backup := &fakeProvider{healthy: true}

		r := newTestRouter(t, map[string]*fakeProvider{"primary": primary, "backup": backup},
			[]provider.Config{localConfig("primary", 1), localConfig("backup", 2)}, Options{})

		var chunks []provider.StreamChunk
		resp := r.Stream(context.Background(), provider.CompletionRequest{}, func(c provider.StreamChunk) {
			chunks = append(chunks, c)
		})

		assert.Equal(t, "backup", resp.Provider)
		require.NotEmpty(t, chunks)
		assert.Equal(t, "hello from backup", chunks[0].Text)
	})

	t.Run("should not fall back after partial output", func(t *testing.T) {
		primary := &fakeProvider{healthy: true, streamFn: func(onChunk func(provider.StreamChunk)) (*provider.CompletionResponse, error) {
			onChunk(provider.StreamChunk{Text: "partial "})
			return nil, fmt.Errorf("connection reset")
		}}
		backup := &fakeProvider{healthy: true}

		r := newTestRouter(t, map[string]*fakeProvider{"primary": primary, "backup": backup},
			[]provider.Config{localConfig("primary", 1), localConfig("backup", 2)}, Options{})

		var chunks []provider.StreamChunk
		resp := r.Stream(context.Background(), provider.CompletionRequest{}, func(c provider.StreamChunk) {
			chunks = append(chunks, c)
		})

		assert.Equal(t, provider.FinishError, resp.FinishReason)
		require.Len(t, chunks, 2)
		assert.True(t, chunks[1].Done)
		assert.Error(t, chunks[1].Err)
		assert.Equal(t, 0, backup.completeCalls)
	})

	t.Run("should deliver a terminal error chunk with no providers", func(t *testing.T) {
		r := newTestRouter(t, nil, nil, Options{})

		var chunks []provider.StreamChunk
		resp := r.Stream(context.Background(), provider.CompletionRequest{}, func(c provider.StreamChunk) {
			chunks = append(chunks, c)
		})

		assert.Equal(t, provider.FinishError, resp.FinishReason)
		require.Len(t, chunks, 1)
		assert.True(t, chunks[0].Done)
		assert.Error(t, chunks[0].Err)
	})
}

func TestHealth(t *testing.T) {
	t.Run("should record availability and models per provider", func(t *testing.T) {
		up := &fakeProvider{healthy: true}
		down := &fakeProvider{healthy: false}

		r := newTestRouter(t, map[string]*fakeProvider{"up": up, "down": down},
			[]provider.Config{localConfig("up", 1), localConfig("down", 2)}, Options{})

		health := r.HealthSnapshot()

		assert.True(t, health["up"].Available)
		assert.Equal(t, []string{"llama3"}, health["up"].Models)
		assert.False(t, health["down"].Available)
		assert.Contains(t, health["down"].LastError, "connection refused")
	})
}
