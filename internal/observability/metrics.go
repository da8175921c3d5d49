// README: Prometheus collectors for dispatch and the HTTP layer.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dispatch"

var (
	TripTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "trip_transitions_total", Help: "Trip state transitions"},
		[]string{"from", "to"},
	)
	AssignmentsTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "assignments_total", Help: "Trips assigned to a driver"})
	DriverClaimMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "driver_claim_misses_total",
		Help:      "Candidates skipped because another trip claimed the driver first",
	})
	RejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rejections_total", Help: "Assignment rejections by reason"},
		[]string{"reason"},
	)
	CancellationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "cancellations_total", Help: "Trip cancellations by actor"},
		[]string{"actor"},
	)
	SweepReassigned = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "sweep_reassigned_total", Help: "Expired assignments forced back through reject"})
	SweepRematched  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "sweep_rematched_total", Help: "Stale pending trips sent back through matching"})
	DriversReleased = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "drivers_released_total", Help: "Busy drivers with no active trip reset to active"})
	SweepDuration   = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "sweep_duration_seconds", Help: "Sweep latency seconds"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
