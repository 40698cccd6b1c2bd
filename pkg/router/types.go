package router

import (
	"time"

	"github.com/idris/kestrel/pkg/provider"
	"github.com/rs/zerolog"
)

// Strategy determines provider preference order.
type Strategy string

const (
	StrategyLocalOnly     Strategy = "local_only"
	StrategyCloudOnly     Strategy = "cloud_only"
	StrategyLocalFirst    Strategy = "local_first"
	StrategyCloudFirst    Strategy = "cloud_first"
	StrategyCostOptimized Strategy = "cost_optimized"
)

// ValidStrategy reports whether s is a known routing strategy.
func ValidStrategy(s Strategy) bool {
	switch s {
	case StrategyLocalOnly, StrategyCloudOnly, StrategyLocalFirst, StrategyCloudFirst, StrategyCostOptimized:
		return true
	}
	return false
}

// Stats holds per-provider request counters.
type Stats struct {
	Requests      int64 `json:"requests"`
	Errors        int64 `json:"errors"`
	LastLatencyMs int64 `json:"last_latency_ms"`
}

// FallbackEvent describes a request served by a provider other than the
// top-ranked candidate.
type FallbackEvent struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// Options configures a Router.
type Options struct {
	Strategy       Strategy
	MaxRetries     int           // attempts per provider before moving on
	HealthInterval time.Duration // interval between health check sweeps
	Logger         zerolog.Logger
	OnFallback     func(FallbackEvent) // best-effort fallback notification

	// Factory creates adapters from configs. Defaults to provider.New;
	// tests substitute scripted providers here.
	Factory func(provider.Config) (provider.Provider, error)
}

const (
	defaultMaxRetries     = 2
	defaultHealthInterval = 60 * time.Second
)
