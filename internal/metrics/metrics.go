package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service counters on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Settlements      *prometheus.CounterVec // Settlements counts committed rolls by outcome
	Failures         *prometheus.CounterVec // Failures counts rejected rolls by error kind
	Escrowed         prometheus.Counter     // Escrowed sums stakes moved into vaults
	PaidOut          prometheus.Counter     // PaidOut sums payouts moved out of vaults
	PoolsInitialized prometheus.Counter     // PoolsInitialized counts successful initializations
	HTTPRequests     *prometheus.CounterVec // HTTPRequests counts API requests by method and route
}

// New creates the counters and registers them, along with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Settlements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dice_settlements_total",
				Help: "Committed settlements by outcome",
			},
			[]string{"outcome"},
		),
		Failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dice_settlement_failures_total",
				Help: "Rejected settlements by error kind",
			},
			[]string{"kind"},
		),
		Escrowed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dice_escrowed_total",
			Help: "Total stake escrowed into vaults",
		}),
		PaidOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dice_paid_out_total",
			Help: "Total amount paid out of vaults",
		}),
		PoolsInitialized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dice_pools_initialized_total",
			Help: "Pools initialized",
		}),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "route"},
		),
	}

	m.registry.MustRegister(
		m.Settlements,
		m.Failures,
		m.Escrowed,
		m.PaidOut,
		m.PoolsInitialized,
		m.HTTPRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveSettlement records a committed settlement.
func (m *Metrics) ObserveSettlement(outcome string, stake, payout uint64) {
	if m == nil {
		return
	}

	m.Settlements.WithLabelValues(outcome).Inc()
	m.Escrowed.Add(float64(stake))
	m.PaidOut.Add(float64(payout))
}

// ObserveFailure records a rejected settlement.
func (m *Metrics) ObserveFailure(kind string) {
	if m == nil {
		return
	}

	m.Failures.WithLabelValues(kind).Inc()
}

// ObserveInitialize records a pool initialization.
func (m *Metrics) ObserveInitialize() {
	if m == nil {
		return
	}

	m.PoolsInitialized.Inc()
}

// ObserveRequest records an API request.
func (m *Metrics) ObserveRequest(method, route string) {
	if m == nil {
		return
	}

	m.HTTPRequests.WithLabelValues(method, route).Inc()
}
