package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRegistry(t *testing.T) {
	t.Run("should add and get clients", func(t *testing.T) {
		r := NewClientRegistry()
		r.Add(&Client{ID: "a"})
		r.Add(&Client{ID: "b"})

		assert.Equal(t, 2, r.Count())

		client, ok := r.Get("a")
		require.True(t, ok)
		assert.Equal(t, "a", client.ID)

		_, ok = r.Get("missing")
		assert.False(t, ok)
	})

	t.Run("should remove clients", func(t *testing.T) {
		r := NewClientRegistry()
		r.Add(&Client{ID: "a"})
		r.Remove("a")

		assert.Equal(t, 0, r.Count())
		_, ok := r.Get("a")
		assert.False(t, ok)
	})

	t.Run("should filter authenticated clients", func(t *testing.T) {
		r := NewClientRegistry()
		r.Add(&Client{ID: "anon"})
		r.Add(&Client{ID: "trusted", Authenticated: true})

		authed := r.Authenticated()
		require.Len(t, authed, 1)
		assert.Equal(t, "trusted", authed[0].ID)
	})

	t.Run("should update activity timestamps", func(t *testing.T) {
		r := NewClientRegistry()
		past := time.Now().Add(-time.Hour)
		r.Add(&Client{ID: "a", LastActivity: past})

		r.Touch("a")

		client, ok := r.Get("a")
		require.True(t, ok)
		assert.True(t, client.LastActivity.After(past))
	})

	t.Run("should report client info with an idle flag", func(t *testing.T) {
		r := NewClientRegistry()
		now := time.Now()
		r.Add(&Client{ID: "active", Authenticated: true, IPAddress: "127.0.0.1:5000", LastActivity: now})
		r.Add(&Client{ID: "quiet", LastActivity: now.Add(-10 * time.Minute)})

		infos := r.Infos()
		require.Len(t, infos, 2)
		byID := map[string]ClientInfo{}
		for _, info := range infos {
			byID[info.ID] = info
		}
		assert.False(t, byID["active"].Idle)
		assert.True(t, byID["active"].Authenticated)
		assert.Equal(t, "127.0.0.1:5000", byID["active"].IPAddress)
		assert.True(t, byID["quiet"].Idle)
	})

	t.Run("should find stale unauthenticated clients", func(t *testing.T) {
		r := NewClientRegistry()
		now := time.Now()
		r.Add(&Client{ID: "fresh", ConnectedAt: now})
		r.Add(&Client{ID: "stuck", ConnectedAt: now.Add(-2 * time.Minute)})
		r.Add(&Client{ID: "authed", Authenticated: true, ConnectedAt: now.Add(-2 * time.Hour)})

		stale := r.StaleUnauthenticated(time.Minute)
		require.Len(t, stale, 1)
		assert.Equal(t, "stuck", stale[0].ID)
	})
}
