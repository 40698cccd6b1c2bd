package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/idris/kestrel/internal/observability"
	"github.com/idris/kestrel/pkg/cron"
	"github.com/idris/kestrel/pkg/gateway"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent as a long-lived service",
	Long: `Serve starts the background service: periodic provider health checks,
the scheduler when jobs are configured, the WebSocket gateway when enabled,
and the Prometheus metrics endpoint.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	log := rt.logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt.router.StartHealthChecks(ctx)

	var scheduler *cron.Scheduler
	if rt.cfg.Scheduler.Enabled && len(rt.cfg.Scheduler.Jobs) > 0 {
		scheduler, err = cron.New(cron.Options{
			Runner: rt.orchestrator,
			Store:  rt.store,
			Logger: log.With().Str("component", "scheduler").Logger(),
			Jobs:   rt.cfg.Scheduler.Jobs,
		})
		if err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	var gw *gateway.Server
	if rt.cfg.Gateway.Enabled {
		gw, err = gateway.NewServer(gateway.Config{
			Host:         rt.cfg.Gateway.Host,
			Port:         rt.cfg.Gateway.Port,
			SharedSecret: rt.cfg.Gateway.SharedSecret,
			Agents:       rt.orchestrator,
			Store:        rt.store,
			Logger:       log.With().Str("component", "gateway").Logger(),
		})
		if err != nil {
			return err
		}
		if err := gw.Start(); err != nil {
			return err
		}
		defer func() {
			if err := gw.Stop(); err != nil {
				log.Error().Err(err).Msg("Gateway shutdown error")
			}
		}()
	}

	// Standalone metrics endpoint; the gateway also serves /metrics when
	// enabled.
	var metricsSrv *http.Server
	if rt.cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		metricsSrv = &http.Server{
			Addr:    fmt.Sprintf(":%d", rt.cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("Metrics server error")
			}
		}()
		defer metricsSrv.Close()
	}

	log.Info().
		Bool("scheduler", scheduler != nil).
		Bool("gateway", gw != nil).
		Bool("metrics", metricsSrv != nil).
		Msg("Kestrel service started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Info().Str("signal", sig.String()).Msg("Shutting down")
	return nil
}
