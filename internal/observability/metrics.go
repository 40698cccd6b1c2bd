package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	providerRequestTotal *prometheus.CounterVec
	providerLatency      *prometheus.HistogramVec
	providerAvailable    *prometheus.GaugeVec
	fallbackTotal        *prometheus.CounterVec

	runTotal    *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	activeRuns  prometheus.Gauge
	stepTotal   *prometheus.CounterVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			providerRequestTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "provider_request_total",
					Help: "Total completion requests by provider and status.",
				},
				[]string{"provider", "status"},
			),
			providerLatency: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "provider_request_duration_seconds",
					Help:    "Completion request duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			providerAvailable: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "provider_available",
					Help: "Provider availability from the last health check (1 available, 0 not).",
				},
				[]string{"provider"},
			),
			fallbackTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "provider_fallback_total",
					Help: "Total requests served by a provider other than the top-ranked one.",
				},
				[]string{"from", "to"},
			),
			runTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_run_total",
					Help: "Total agent runs by terminal status.",
				},
				[]string{"status"},
			),
			runDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agent_run_duration_seconds",
					Help:    "Agent run duration in seconds by terminal status.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"status"},
			),
			activeRuns: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "agent_active_runs",
					Help: "Current active agent run count.",
				},
			),
			stepTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_step_total",
					Help: "Total agent steps by kind (answer, tool, error).",
				},
				[]string{"kind"},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
		}

		prometheus.MustRegister(
			m.providerRequestTotal,
			m.providerLatency,
			m.providerAvailable,
			m.fallbackTotal,
			m.runTotal,
			m.runDuration,
			m.activeRuns,
			m.stepTotal,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordProviderRequest(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.providerRequestTotal.WithLabelValues(provider, status).Inc()
	m.providerLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

func SetProviderAvailable(provider string, available bool) {
	v := 0.0
	if available {
		v = 1.0
	}
	getMetrics().providerAvailable.WithLabelValues(provider).Set(v)
}

func RecordFallback(from, to string) {
	getMetrics().fallbackTotal.WithLabelValues(from, to).Inc()
}

func RecordRun(status string, duration time.Duration) {
	m := getMetrics()
	m.runTotal.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func SetActiveRuns(count int) {
	getMetrics().activeRuns.Set(float64(count))
}

func RecordStep(kind string) {
	getMetrics().stepTotal.WithLabelValues(kind).Inc()
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}
