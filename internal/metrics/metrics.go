package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application. Record methods are
// safe on a nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Workflow metrics
	WorkflowRunsTotal     *prometheus.CounterVec
	WorkflowRunDuration   *prometheus.HistogramVec
	NodeDuration          *prometheus.HistogramVec
	IntentOverridesTotal  prometheus.Counter
	ContextFallbacksTotal prometheus.Counter

	// Generation metrics
	GenerationsTotal      *prometheus.CounterVec
	GenerationErrorsTotal *prometheus.CounterVec
	GenerationTokensTotal *prometheus.CounterVec
	GenerationCostUSD     *prometheus.CounterVec

	// Tool metrics
	ToolExecutionsTotal *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		// Workflow metrics
		WorkflowRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_runs_total",
				Help: "Total number of workflow runs by resolved intent and status",
			},
			[]string{"intent", "status"},
		),
		WorkflowRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "workflow_run_duration_seconds",
				Help:    "Duration of workflow runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"intent"},
		),
		NodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "workflow_node_duration_seconds",
				Help:    "Duration of individual workflow nodes in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"node"},
		),
		IntentOverridesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "intent_overrides_total",
				Help: "Total number of classifier intents forced to general because history was empty",
			},
		),
		ContextFallbacksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "context_fallbacks_total",
				Help: "Total number of requests that continued with an empty context after a load failure",
			},
		),

		// Generation metrics
		GenerationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generations_total",
				Help: "Total number of successful language model generations",
			},
			[]string{"provider", "model"},
		),
		GenerationErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generation_errors_total",
				Help: "Total number of failed language model generations",
			},
			[]string{"provider", "kind"},
		),
		GenerationTokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generation_tokens_total",
				Help: "Total number of tokens reported by the language model",
			},
			[]string{"model", "type"},
		),
		GenerationCostUSD: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generation_cost_usd_total",
				Help: "Estimated language model spend in USD",
			},
			[]string{"model"},
		),

		// Tool metrics
		ToolExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_executions_total",
				Help: "Total number of tool executions",
			},
			[]string{"tool_name", "status"},
		),

		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(
		m.WorkflowRunsTotal,
		m.WorkflowRunDuration,
		m.NodeDuration,
		m.IntentOverridesTotal,
		m.ContextFallbacksTotal,
		m.GenerationsTotal,
		m.GenerationErrorsTotal,
		m.GenerationTokensTotal,
		m.GenerationCostUSD,
		m.ToolExecutionsTotal,
		m.HTTPRequestsTotal,
	)
}

func (m *Metrics) ObserveWorkflow(intent, status string, d time.Duration) {
	if m == nil {
		return
	}
	if intent == "" {
		intent = "none"
	}
	m.WorkflowRunsTotal.WithLabelValues(intent, status).Inc()
	m.WorkflowRunDuration.WithLabelValues(intent).Observe(d.Seconds())
}

func (m *Metrics) ObserveNode(node string, d time.Duration) {
	if m == nil {
		return
	}
	m.NodeDuration.WithLabelValues(node).Observe(d.Seconds())
}

func (m *Metrics) IncIntentOverride() {
	if m == nil {
		return
	}
	m.IntentOverridesTotal.Inc()
}

func (m *Metrics) IncContextFallback() {
	if m == nil {
		return
	}
	m.ContextFallbacksTotal.Inc()
}

func (m *Metrics) ObserveGeneration(provider, model string, promptTokens, completionTokens int, costUSD float64) {
	if m == nil {
		return
	}
	m.GenerationsTotal.WithLabelValues(provider, model).Inc()
	m.GenerationTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	m.GenerationTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	m.GenerationCostUSD.WithLabelValues(model).Add(costUSD)
}

func (m *Metrics) IncGenerationError(provider, kind string) {
	if m == nil {
		return
	}
	m.GenerationErrorsTotal.WithLabelValues(provider, kind).Inc()
}

func (m *Metrics) IncTool(name, status string) {
	if m == nil {
		return
	}
	m.ToolExecutionsTotal.WithLabelValues(name, status).Inc()
}

func (m *Metrics) IncHTTPRequest(route string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
