package router

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/idris/kestrel/internal/observability"
	"github.com/idris/kestrel/pkg/provider"
	"github.com/rs/zerolog"
)

// managed pairs a provider adapter with its config and observed state.
type managed struct {
	prov   provider.Provider
	cfg    provider.Config
	health provider.Health
	stats  Stats
}

// Router dispatches completion requests across a set of providers with
// per-provider retry and provider-level fallback. Provider failure never
// surfaces as a Go error from Complete; callers see a response with
// FinishReason error only after every candidate has been exhausted.
type Router struct {
	mu         sync.RWMutex
	providers  []*managed // priority order
	strategy   Strategy
	maxRetries int

	healthInterval time.Duration
	logger         zerolog.Logger
	onFallback     func(FallbackEvent)
}

// New creates a Router from provider configs. Disabled configs are skipped;
// the rest are instantiated through the adapter factory and ordered by
// priority (lower value wins).
func New(configs []provider.Config, opts Options) (*Router, error) {
	observability.EnsureRegistered()

	strategy := opts.Strategy
	if strategy == "" {
		strategy = StrategyLocalFirst
	}
	if !ValidStrategy(strategy) {
		return nil, fmt.Errorf("invalid routing strategy: %s", strategy)
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	healthInterval := opts.HealthInterval
	if healthInterval <= 0 {
		healthInterval = defaultHealthInterval
	}

	factory := opts.Factory
	if factory == nil {
		factory = provider.New
	}

	providers := make([]*managed, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		prov, err := factory(cfg)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", cfg.Name, err)
		}
		providers = append(providers, &managed{prov: prov, cfg: cfg})
	}
	sort.SliceStable(providers, func(i, j int) bool {
		return providers[i].cfg.Priority < providers[j].cfg.Priority
	})

	return &Router{
		providers:      providers,
		strategy:       strategy,
		maxRetries:     maxRetries,
		healthInterval: healthInterval,
		logger:         opts.Logger,
		onFallback:     opts.OnFallback,
	}, nil
}

// Strategy returns the active routing strategy.
func (r *Router) Strategy() Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.strategy
}

// SetStrategy switches the active routing strategy.
func (r *Router) SetStrategy(s Strategy) error {
	if !ValidStrategy(s) {
		return fmt.Errorf("invalid routing strategy: %s", s)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategy = s
	return nil
}

// Complete executes a request against the ordered candidate list. The first
// success (any finish reason other than error) is returned immediately;
// exhaustion yields a response with FinishReason error and a diagnostic
// message in the content.
func (r *Router) Complete(ctx context.Context, req provider.CompletionRequest) *provider.CompletionResponse {
	candidates := r.candidates()
	if len(candidates) == 0 {
		return errorResponse("no providers available")
	}

	var lastErr error

	for i, cand := range candidates {
		// Stale or missing health data must not starve the request:
		// the last candidate is always attempted.
		if !r.isAvailable(cand) && i != len(candidates)-1 {
			continue
		}

		for attempt := 0; attempt < r.maxRetries; attempt++ {
			start := time.Now()
			resp, err := cand.prov.Complete(ctx, req)
			elapsed := time.Since(start)

			if err == nil && resp.FinishReason != provider.FinishError {
				r.recordSuccess(cand, elapsed)
				if i != 0 {
					r.notifyFallback(candidates[0], cand, lastErr)
				}
				return resp
			}

			if err == nil {
				err = fmt.Errorf("provider %s returned error finish reason", cand.prov.Name())
			}
			lastErr = err
			r.recordError(cand, elapsed)
			r.logger.Warn().
				Str("provider", cand.prov.Name()).
				Int("attempt", attempt+1).
				Err(err).
				Msg("Provider attempt failed")

			if ctx.Err() != nil {
				return errorResponse(fmt.Sprintf("request cancelled: %v", ctx.Err()))
			}
		}
	}

	msg := "all providers failed"
	if lastErr != nil {
		msg = fmt.Sprintf("all providers failed: %v", lastErr)
	}
	return errorResponse(msg)
}

// candidates selects and orders providers per the active strategy.
// Available providers of the preferred class come first, then the other
// class, then at most one unavailable provider as a last resort so a
// never-health-checked provider still gets one chance.
func (r *Router) candidates() []*managed {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var availLocal, availCloud, unavailable []*managed
	for _, m := range r.providers {
		switch {
		case !m.health.Available:
			unavailable = append(unavailable, m)
		case m.cfg.Local():
			availLocal = append(availLocal, m)
		default:
			availCloud = append(availCloud, m)
		}
	}

	switch r.strategy {
	case StrategyLocalOnly:
		return availLocal
	case StrategyCloudOnly:
		return availCloud
	case StrategyCloudFirst:
		out := append(append([]*managed{}, availCloud...), availLocal...)
		if len(unavailable) > 0 {
			out = append(out, unavailable[0])
		}
		return out
	default: // local_first, cost_optimized (local is zero marginal cost)
		out := append(append([]*managed{}, availLocal...), availCloud...)
		if len(unavailable) > 0 {
			out = append(out, unavailable[0])
		}
		return out
	}
}

func (r *Router) isAvailable(m *managed) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return m.health.Available
}

func (r *Router) recordSuccess(m *managed, elapsed time.Duration) {
	r.mu.Lock()
	m.stats.Requests++
	m.stats.LastLatencyMs = elapsed.Milliseconds()
	r.mu.Unlock()
	observability.RecordProviderRequest(m.prov.Name(), elapsed, true)
}

func (r *Router) recordError(m *managed, elapsed time.Duration) {
	r.mu.Lock()
	m.stats.Requests++
	m.stats.Errors++
	m.stats.LastLatencyMs = elapsed.Milliseconds()
	r.mu.Unlock()
	observability.RecordProviderRequest(m.prov.Name(), elapsed, false)
}

func (r *Router) notifyFallback(top, serving *managed, cause error) {
	reason := "preferred provider unavailable"
	if cause != nil {
		reason = cause.Error()
	}
	event := FallbackEvent{
		From:   top.prov.Name(),
		To:     serving.prov.Name(),
		Reason: reason,
	}
	observability.RecordFallback(event.From, event.To)
	r.logger.Info().
		Str("from", event.From).
		Str("to", event.To).
		Str("reason", event.Reason).
		Msg("Request served by fallback provider")
	if r.onFallback != nil {
		r.onFallback(event)
	}
}

// StatsSnapshot returns a copy of per-provider request counters.
func (r *Router) StatsSnapshot() map[string]Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Stats, len(r.providers))
	for _, m := range r.providers {
		out[m.prov.Name()] = m.stats
	}
	return out
}

// HealthSnapshot returns a copy of per-provider observed state.
func (r *Router) HealthSnapshot() map[string]provider.Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]provider.Health, len(r.providers))
	for _, m := range r.providers {
		out[m.prov.Name()] = m.health
	}
	return out
}

// ProviderNames returns configured provider names in priority order.
func (r *Router) ProviderNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.providers))
	for _, m := range r.providers {
		out = append(out, m.prov.Name())
	}
	return out
}

func errorResponse(msg string) *provider.CompletionResponse {
	return &provider.CompletionResponse{
		Content:      msg,
		FinishReason: provider.FinishError,
	}
}
