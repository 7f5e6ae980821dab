// Package metrics wires the service's Prometheus instrumentation. The HTTP
// trio (requests, duration, active) mirrors what middleware.Metrics expects;
// the domain counters below are updated by the Router (call outcomes,
// permit selection failures, cross-chain settlement outcomes).
// RouterCallDuration and AttestationWaitDuration are registered but nothing
// in this module observes them.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPActiveRequests  prometheus.Gauge

	RouterCallsTotal       *prometheus.CounterVec
	RouterCallDuration     *prometheus.HistogramVec
	CrossChainPaymentsTotal *prometheus.CounterVec
	AttestationWaitDuration prometheus.Histogram
	PermitSelectionFailures prometheus.Counter
}

// New builds every collector. Call MustRegister separately to expose them
// on a Prometheus registerer.
func New() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_mrkt_http_requests_total",
				Help: "Total HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_mrkt_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		HTTPActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agent_mrkt_http_active_requests",
			Help: "Number of HTTP requests currently being served.",
		}),
		RouterCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_mrkt_router_calls_total",
				Help: "Total metered calls routed, by agent and outcome.",
			},
			[]string{"agent_id", "outcome"},
		),
		RouterCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_mrkt_router_call_duration_seconds",
				Help:    "End-to-end router call duration in seconds, including publisher forwarding and settlement.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent_id"},
		),
		CrossChainPaymentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_mrkt_cross_chain_payments_total",
				Help: "Cross-chain settlements, by terminal status.",
			},
			[]string{"status"},
		),
		AttestationWaitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agent_mrkt_attestation_wait_duration_seconds",
			Help:    "Time spent waiting for a burn attestation to become available.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		PermitSelectionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agent_mrkt_permit_selection_failures_total",
			Help: "Paid calls that failed because no eligible permit was found.",
		}),
	}
}

// MustRegister registers every collector against reg, panicking on a
// duplicate registration (a programmer error, not a runtime condition).
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPActiveRequests,
		m.RouterCallsTotal,
		m.RouterCallDuration,
		m.CrossChainPaymentsTotal,
		m.AttestationWaitDuration,
		m.PermitSelectionFailures,
	)
}
