package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the session service
type Metrics struct {
	// Coordinator
	SessionEvents    *prometheus.CounterVec
	StaleDiscards    *prometheus.CounterVec
	ProfileFetches   *prometheus.CounterVec
	FetchRetries     *prometheus.CounterVec
	OperationLatency *prometheus.HistogramVec

	// Capability gate
	CapabilityChecks *prometheus.CounterVec

	// Billing
	Purchases *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		SessionEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loadboard_session_events_total",
				Help: "Identity provider session-change events applied, by event type",
			},
			[]string{"event"},
		),
		StaleDiscards: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loadboard_stale_results_discarded_total",
				Help: "Fetch results dropped because the session changed while in flight",
			},
			[]string{"operation"},
		),
		ProfileFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loadboard_profile_fetches_total",
				Help: "Profile fetches by outcome",
			},
			[]string{"operation", "outcome"},
		),
		FetchRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loadboard_fetch_retries_total",
				Help: "Retries of transient profile fetch failures",
			},
			[]string{"operation"},
		),
		OperationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loadboard_operation_duration_seconds",
				Help:    "Coordinator operation latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		CapabilityChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loadboard_capability_checks_total",
				Help: "Capability gate decisions",
			},
			[]string{"capability", "reason"},
		),
		Purchases: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loadboard_purchases_total",
				Help: "Purchase attempts by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// NewNop returns metrics registered against a throwaway registry.
func NewNop() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
