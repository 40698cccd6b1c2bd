package tools

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string, tier Tier) Definition {
	return Definition{
		Schema: Schema{
			Name:        name,
			Description: "echoes its input",
			Parameters: []Parameter{
				{Name: "text", Type: "string", Description: "text to echo", Required: true},
			},
			Tier: tier,
		},
		Handler: func(_ context.Context, params map[string]any) (any, error) {
			return params["text"], nil
		},
	}
}

func TestRegister(t *testing.T) {
	t.Run("should register a valid tool", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(echoTool("echo", TierReadOnly)))
		assert.Equal(t, 1, r.Count())
	})

	t.Run("should reject duplicate names", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(echoTool("echo", TierReadOnly)))
		assert.ErrorContains(t, r.Register(echoTool("echo", TierReadOnly)), "already registered")
	})

	t.Run("should reject a missing handler", func(t *testing.T) {
		r := NewRegistry()
		def := echoTool("echo", TierReadOnly)
		def.Handler = nil
		assert.Error(t, r.Register(def))
	})

	t.Run("should reject an invalid parameter type", func(t *testing.T) {
		r := NewRegistry()
		def := echoTool("echo", TierReadOnly)
		def.Parameters[0].Type = "text"
		assert.Error(t, r.Register(def))
	})

	t.Run("should default the tier to read_only", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(echoTool("echo", "")))
		assert.Equal(t, TierReadOnly, r.Schemas()[0].Tier)
	})
}

func TestExecuteByName(t *testing.T) {
	t.Run("should execute and return output", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(echoTool("echo", TierReadOnly)))

		res := r.ExecuteByName(context.Background(), "echo", map[string]any{"text": "hi"}, time.Second)

		assert.True(t, res.Success)
		assert.Equal(t, "hi", res.Output)
	})

	t.Run("should fail for an unknown tool", func(t *testing.T) {
		r := NewRegistry()
		res := r.ExecuteByName(context.Background(), "missing", nil, time.Second)

		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "not found")
	})

	t.Run("should never execute a blocked tool", func(t *testing.T) {
		r := NewRegistry()
		executed := false
		def := echoTool("forbidden", TierBlocked)
		def.Handler = func(_ context.Context, _ map[string]any) (any, error) {
			executed = true
			return nil, nil
		}
		require.NoError(t, r.Register(def))

		res := r.ExecuteByName(context.Background(), "forbidden", map[string]any{"text": "x"}, time.Second)

		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "blocked")
		assert.False(t, executed)
	})

	t.Run("should reject params failing schema validation", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(echoTool("echo", TierReadOnly)))

		res := r.ExecuteByName(context.Background(), "echo", map[string]any{}, time.Second)
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "validation")

		res = r.ExecuteByName(context.Background(), "echo", map[string]any{"text": "x", "extra": 1}, time.Second)
		assert.False(t, res.Success)
	})

	t.Run("should convert handler errors into failed results", func(t *testing.T) {
		r := NewRegistry()
		def := echoTool("flaky", TierReadOnly)
		def.Handler = func(_ context.Context, _ map[string]any) (any, error) {
			return nil, fmt.Errorf("backend unavailable")
		}
		require.NoError(t, r.Register(def))

		res := r.ExecuteByName(context.Background(), "flaky", map[string]any{"text": "x"}, time.Second)

		assert.False(t, res.Success)
		assert.Equal(t, "backend unavailable", res.Error)
	})

	t.Run("should contain handler panics", func(t *testing.T) {
		r := NewRegistry()
		def := echoTool("panicky", TierReadOnly)
		def.Handler = func(_ context.Context, _ map[string]any) (any, error) {
			panic("boom")
		}
		require.NoError(t, r.Register(def))

		res := r.ExecuteByName(context.Background(), "panicky", map[string]any{"text": "x"}, time.Second)

		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "panicked")
	})

	t.Run("should time out a hung handler", func(t *testing.T) {
		r := NewRegistry()
		release := make(chan struct{})
		t.Cleanup(func() { close(release) })

		def := echoTool("slow", TierReadOnly)
		def.Handler = func(_ context.Context, _ map[string]any) (any, error) {
			<-release
			return nil, nil
		}
		require.NoError(t, r.Register(def))

		start := time.Now()
		res := r.ExecuteByName(context.Background(), "slow", map[string]any{"text": "x"}, 50*time.Millisecond)

		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "timeout")
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("should expose map outputs as structured data", func(t *testing.T) {
		r := NewRegistry()
		def := echoTool("structured", TierReadOnly)
		def.Handler = func(_ context.Context, _ map[string]any) (any, error) {
			return map[string]any{"count": 3}, nil
		}
		require.NoError(t, r.Register(def))

		res := r.ExecuteByName(context.Background(), "structured", map[string]any{"text": "x"}, time.Second)

		assert.True(t, res.Success)
		assert.Equal(t, 3, res.Data["count"])
	})
}

func TestTiers(t *testing.T) {
	t.Run("should require confirmation for destructive and financial", func(t *testing.T) {
		assert.False(t, TierReadOnly.RequiresConfirmation())
		assert.True(t, TierDestructive.RequiresConfirmation())
		assert.True(t, TierFinancial.RequiresConfirmation())
		assert.False(t, TierBlocked.RequiresConfirmation())
	})

	t.Run("should validate tier names", func(t *testing.T) {
		assert.True(t, IsValidTier("read_only"))
		assert.True(t, IsValidTier("blocked"))
		assert.False(t, IsValidTier("dangerous"))
	})
}
