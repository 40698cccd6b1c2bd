package router

import (
	"context"
	"sync"
	"time"

	"github.com/idris/kestrel/internal/observability"
)

// StartHealthChecks runs periodic health sweeps until ctx is cancelled.
// The first sweep runs immediately so routing has fresh data at startup.
func (r *Router) StartHealthChecks(ctx context.Context) {
	go func() {
		r.CheckAll(ctx)

		ticker := time.NewTicker(r.healthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.CheckAll(ctx)
			}
		}
	}()
}

// CheckAll probes every provider concurrently. Each probe updates only its
// own provider's health record.
func (r *Router) CheckAll(ctx context.Context) {
	r.mu.RLock()
	providers := make([]*managed, len(r.providers))
	copy(providers, r.providers)
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, m := range providers {
		wg.Add(1)
		go func(m *managed) {
			defer wg.Done()
			r.checkOne(ctx, m)
		}(m)
	}
	wg.Wait()
}

func (r *Router) checkOne(ctx context.Context, m *managed) {
	start := time.Now()
	models, err := m.prov.HealthCheck(ctx)
	elapsed := time.Since(start)

	r.mu.Lock()
	m.health.LastCheck = time.Now()
	m.health.LatencyMs = elapsed.Milliseconds()
	if err != nil {
		m.health.Available = false
		m.health.LastError = err.Error()
	} else {
		m.health.Available = true
		m.health.LastError = ""
		m.health.Models = models
	}
	available := m.health.Available
	r.mu.Unlock()

	observability.SetProviderAvailable(m.prov.Name(), available)
	if err != nil {
		r.logger.Debug().
			Str("provider", m.prov.Name()).
			Err(err).
			Msg("Health check failed")
	} else {
		r.logger.Debug().
			Str("provider", m.prov.Name()).
			Int("models", len(models)).
			Dur("latency", elapsed).
			Msg("Health check passed")
	}
}
