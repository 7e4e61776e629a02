// ABOUTME: Prometheus collectors for the message pipeline and agent pool
// ABOUTME: Registered on a private registry and served by Handler

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agentdesk"

// Metrics holds the collectors. It satisfies conversation.Recorder and
// agent.Gauge (through InFlight).
type Metrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	invocations *prometheus.HistogramVec
	failures    *prometheus.CounterVec
	inFlight    prometheus.Gauge
}

// New registers the collectors, plus Go runtime and process collectors, on
// a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_requests_total",
			Help:      "Messages handled by the pipeline, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		invocations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_invocation_seconds",
			Help:      "Time spent waiting for an agent reply, by agent type and outcome.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"agent_type", "outcome"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "History writes that failed, by pipeline stage.",
		}, []string{"stage"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_pool_in_flight",
			Help:      "Agent invocations currently running on the worker pool.",
		}),
	}
}

// PipelineRequest counts one handled message.
func (m *Metrics) PipelineRequest(kind, outcome string) {
	m.requests.WithLabelValues(kind, outcome).Inc()
}

// AgentInvocation observes one agent call.
func (m *Metrics) AgentInvocation(agentType, outcome string, elapsed time.Duration) {
	m.invocations.WithLabelValues(agentType, outcome).Observe(elapsed.Seconds())
}

// PersistenceFailure counts one failed history write.
func (m *Metrics) PersistenceFailure(stage string) {
	m.failures.WithLabelValues(stage).Inc()
}

// InFlight is the pool occupancy gauge.
func (m *Metrics) InFlight() prometheus.Gauge {
	return m.inFlight
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
