package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/idris/kestrel/internal/config"
	"github.com/idris/kestrel/internal/logger"
	"github.com/idris/kestrel/pkg/agent"
	"github.com/idris/kestrel/pkg/gateway"
	"github.com/idris/kestrel/pkg/router"
	"github.com/idris/kestrel/pkg/runstore"
	"github.com/idris/kestrel/pkg/tools"
	"github.com/idris/kestrel/pkg/vault"
	"github.com/rs/zerolog"
)

// runtime holds the wired component graph for a command invocation.
type runtime struct {
	cfg          *config.Config
	log          *logger.Logger
	vault        *vault.Vault
	router       *router.Router
	registry     *tools.Registry
	orchestrator *agent.Orchestrator
	store        *runstore.Store
}

var _ gateway.AgentService = (*agent.Orchestrator)(nil)

// buildRuntime loads configuration and wires the component graph. Callers
// must Close the runtime when done.
func buildRuntime() (*runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logCfg := logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	}
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, err
	}
	zl := log.GetZerolog()

	rt := &runtime{cfg: cfg, log: log}

	v, err := vault.Open(vault.Options{
		Path:   cfg.VaultPath,
		Logger: zl.With().Str("component", "vault").Logger(),
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to open vault: %w", err)
	}
	rt.vault = v

	// Provider configs with empty keys pull credentials from the vault
	// under the provider name.
	providers := cfg.Providers
	for i := range providers {
		if providers[i].APIKey == "" {
			if secret, ok := v.Get(providers[i].Name); ok {
				providers[i].APIKey = secret
			}
		}
	}

	rtr, err := router.New(providers, router.Options{
		Strategy:       router.Strategy(cfg.Routing.Strategy),
		MaxRetries:     cfg.Routing.MaxRetries,
		HealthInterval: time.Duration(cfg.Routing.HealthCheckInterval) * time.Second,
		Logger:         zl.With().Str("component", "router").Logger(),
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build router: %w", err)
	}
	rt.router = rtr

	registry := tools.NewRegistry()
	rt.registry = registry

	orch, err := agent.NewOrchestrator(agent.Options{
		Router:            rtr,
		Registry:          registry,
		Logger:            zl.With().Str("component", "agent").Logger(),
		MaxConcurrentRuns: cfg.Agent.MaxConcurrentRuns,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.orchestrator = orch

	store, err := runstore.New(runstore.Config{
		DBPath: filepath.Join(cfg.DataDir, "runs.db"),
		Logger: zl.With().Str("component", "runstore").Logger(),
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	rt.store = store

	return rt, nil
}

func (rt *runtime) logger() zerolog.Logger {
	return rt.log.GetZerolog()
}

// Close releases runtime resources in reverse wiring order.
func (rt *runtime) Close() {
	if rt.store != nil {
		rt.store.Close()
	}
	if rt.vault != nil {
		rt.vault.Close()
	}
	if rt.log != nil {
		rt.log.Close()
	}
}
