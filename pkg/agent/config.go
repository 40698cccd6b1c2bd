package agent

import (
	"time"

	"github.com/idris/kestrel/pkg/safety"
)

// RunConfig holds per-run execution limits. Constructed once per run from
// defaults merged with a sanitized caller override; immutable thereafter.
type RunConfig struct {
	MaxSteps           int           `json:"max_steps"`
	MaxTokensPerStep   int           `json:"max_tokens_per_step"`
	ToolTimeout        time.Duration `json:"tool_timeout"`
	TotalTimeout       time.Duration `json:"total_timeout"`
	ConfirmDestructive bool          `json:"confirm_destructive"`
	AllowTools         []string      `json:"allow_tools,omitempty"`
	DenyTools          []string      `json:"deny_tools,omitempty"`
	Temperature        float64       `json:"temperature"`

	// History seeds the conversation with prior user/assistant turns.
	// Always the sanitized form of the caller's input.
	History []safety.HistoryMessage `json:"history,omitempty"`
}

// ConfigOverrides is the caller-facing partial config. It deliberately has
// no deny-list field: the deny-list is a server default a caller can never
// touch, and the allow-list may only narrow what the server permits.
type ConfigOverrides struct {
	MaxSteps           *int           `json:"max_steps,omitempty"`
	MaxTokensPerStep   *int           `json:"max_tokens_per_step,omitempty"`
	ToolTimeout        *time.Duration `json:"tool_timeout,omitempty"`
	TotalTimeout       *time.Duration `json:"total_timeout,omitempty"`
	ConfirmDestructive *bool          `json:"confirm_destructive,omitempty"`
	AllowTools         []string       `json:"allow_tools,omitempty"`
	Temperature        *float64       `json:"temperature,omitempty"`

	// History is prior conversation the caller wants the run to continue
	// from. It passes through safety.SanitizeHistory before use: roles are
	// restricted to user/assistant, credentials stripped, size capped.
	History []safety.HistoryMessage `json:"history,omitempty"`
}

// Server-side bounds. Every numeric field of a sanitized config lands
// inside its [min, max] range regardless of what a caller requests.
const (
	MinMaxSteps     = 1
	MaxMaxSteps     = 32
	DefaultMaxSteps = 8

	MinTokensPerStep     = 64
	MaxTokensPerStep     = 8192
	DefaultTokensPerStep = 1024

	MinToolTimeout     = 1 * time.Second
	MaxToolTimeout     = 2 * time.Minute
	DefaultToolTimeout = 30 * time.Second

	MinTotalTimeout     = 10 * time.Second
	MaxTotalTimeout     = 30 * time.Minute
	DefaultTotalTimeout = 5 * time.Minute

	MinTemperature     = 0.0
	MaxTemperature     = 1.0
	DefaultTemperature = 0.2
)

// defaultDenyTools is the immutable server deny-list, matched by prefix or
// exact name against advertised tools.
var defaultDenyTools = []string{"payments", "vault", "shell_exec"}

// DefaultDenyTools returns a copy of the server deny-list.
func DefaultDenyTools() []string {
	out := make([]string, len(defaultDenyTools))
	copy(out, defaultDenyTools)
	return out
}

// DefaultRunConfig returns the server defaults.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		MaxSteps:           DefaultMaxSteps,
		MaxTokensPerStep:   DefaultTokensPerStep,
		ToolTimeout:        DefaultToolTimeout,
		TotalTimeout:       DefaultTotalTimeout,
		ConfirmDestructive: true,
		DenyTools:          DefaultDenyTools(),
		Temperature:        DefaultTemperature,
	}
}

// SanitizeConfig merges caller overrides into the defaults, clamping every
// numeric field into its server range. This transform is part of the public
// contract: schedulers and gateways pass untrusted overrides through it and
// rely on the result being safe.
func SanitizeConfig(overrides *ConfigOverrides) RunConfig {
	cfg := DefaultRunConfig()
	if overrides == nil {
		return cfg
	}

	if overrides.MaxSteps != nil {
		cfg.MaxSteps = clampInt(*overrides.MaxSteps, MinMaxSteps, MaxMaxSteps)
	}
	if overrides.MaxTokensPerStep != nil {
		cfg.MaxTokensPerStep = clampInt(*overrides.MaxTokensPerStep, MinTokensPerStep, MaxTokensPerStep)
	}
	if overrides.ToolTimeout != nil {
		cfg.ToolTimeout = clampDuration(*overrides.ToolTimeout, MinToolTimeout, MaxToolTimeout)
	}
	if overrides.TotalTimeout != nil {
		cfg.TotalTimeout = clampDuration(*overrides.TotalTimeout, MinTotalTimeout, MaxTotalTimeout)
	}
	if overrides.ConfirmDestructive != nil {
		cfg.ConfirmDestructive = *overrides.ConfirmDestructive
	}
	if overrides.Temperature != nil {
		cfg.Temperature = clampFloat(*overrides.Temperature, MinTemperature, MaxTemperature)
	}
	if len(overrides.AllowTools) > 0 {
		allow := make([]string, 0, len(overrides.AllowTools))
		for _, name := range overrides.AllowTools {
			if name != "" {
				allow = append(allow, name)
			}
		}
		cfg.AllowTools = allow
	}
	if len(overrides.History) > 0 {
		cfg.History = safety.SanitizeHistory(overrides.History)
	}

	return cfg
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampDuration(v, min, max time.Duration) time.Duration {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
