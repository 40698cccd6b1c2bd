package config

import (
	"encoding/json"
	"fmt"

	"github.com/idris/kestrel/pkg/provider"
	"github.com/idris/kestrel/pkg/router"
)

// Config represents the main Kestrel configuration
type Config struct {
	// Providers
	Providers []provider.Config `json:"providers" mapstructure:"providers"`

	// Routing
	Routing RoutingConfig `json:"routing" mapstructure:"routing"`

	// Agent
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Scheduler
	Scheduler SchedulerConfig `json:"scheduler" mapstructure:"scheduler"`

	// Gateway configuration
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Metrics
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Vault file path (credential store)
	VaultPath string `json:"vault_path" mapstructure:"vault_path"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// RoutingConfig holds completion routing configuration
type RoutingConfig struct {
	Strategy            string `json:"strategy" mapstructure:"strategy"`
	MaxRetries          int    `json:"max_retries" mapstructure:"max_retries"`
	HealthCheckInterval int    `json:"health_check_interval" mapstructure:"health_check_interval"` // seconds
}

// AgentConfig holds agent loop defaults
type AgentConfig struct {
	MaxConcurrentRuns  int      `json:"max_concurrent_runs" mapstructure:"max_concurrent_runs"`
	MaxSteps           int      `json:"max_steps" mapstructure:"max_steps"`
	ConfirmDestructive bool     `json:"confirm_destructive" mapstructure:"confirm_destructive"`
	AllowTools         []string `json:"allow_tools" mapstructure:"allow_tools"`
}

// SchedulerConfig holds scheduled job configuration
type SchedulerConfig struct {
	Enabled bool        `json:"enabled" mapstructure:"enabled"`
	Jobs    []JobConfig `json:"jobs" mapstructure:"jobs"`
}

// JobConfig represents a single scheduled goal
type JobConfig struct {
	Name     string `json:"name" mapstructure:"name"`
	Schedule string `json:"schedule" mapstructure:"schedule"` // cron expression
	Goal     string `json:"goal" mapstructure:"goal"`
	MaxSteps int    `json:"max_steps" mapstructure:"max_steps"`
}

// GatewayConfig holds the WebSocket gateway configuration
type GatewayConfig struct {
	Enabled      bool   `json:"enabled" mapstructure:"enabled"`
	Port         int    `json:"port" mapstructure:"port"`
	Host         string `json:"host" mapstructure:"host"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
	Port    int  `json:"port" mapstructure:"port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Providers: []provider.Config{},
		Routing: RoutingConfig{
			Strategy:            string(router.StrategyLocalFirst),
			MaxRetries:          2,
			HealthCheckInterval: 60,
		},
		Agent: AgentConfig{
			MaxConcurrentRuns:  5,
			MaxSteps:           8,
			ConfirmDestructive: true,
		},
		Scheduler: SchedulerConfig{
			Enabled: false,
		},
		Gateway: GatewayConfig{
			Enabled:      false,
			Port:         8080,
			Host:         "0.0.0.0",
			SharedSecret: "",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("no providers configured: at least one provider is required")
	}

	seen := map[string]bool{}
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider %d: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("provider %s: duplicate name", p.Name)
		}
		seen[p.Name] = true
		if p.Model == "" {
			return fmt.Errorf("provider %s: model is required", p.Name)
		}
		if p.Type != "" {
			switch p.Type {
			case provider.TypeOllama, provider.TypeOpenAI, provider.TypeAnthropic:
			default:
				return fmt.Errorf("provider %s: invalid type %s (must be: ollama, openai, anthropic)", p.Name, p.Type)
			}
		}
		if !p.Local() && p.APIKey == "" {
			return fmt.Errorf("provider %s: api_key is required for cloud providers", p.Name)
		}
	}

	if c.Routing.Strategy != "" && !router.ValidStrategy(router.Strategy(c.Routing.Strategy)) {
		return fmt.Errorf("invalid routing strategy: %s", c.Routing.Strategy)
	}
	if c.Routing.MaxRetries < 0 {
		return fmt.Errorf("routing max_retries cannot be negative")
	}

	if c.Scheduler.Enabled {
		for i, job := range c.Scheduler.Jobs {
			if job.Name == "" {
				return fmt.Errorf("scheduler job %d: name is required", i)
			}
			if job.Schedule == "" {
				return fmt.Errorf("scheduler job %s: schedule is required", job.Name)
			}
			if job.Goal == "" {
				return fmt.Errorf("scheduler job %s: goal is required", job.Name)
			}
		}
	}

	if c.Gateway.Enabled {
		if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
			return fmt.Errorf("invalid gateway port: %d", c.Gateway.Port)
		}
	}
	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
		}
	}

	return nil
}
