package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "campusride"

var (
	RideRequestsCreated = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "ride_requests_created_total", Help: "Ride requests created"})
	MatchesFormed       = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "matches_formed_total", Help: "Matches formed"})
	MatchesConfirmed    = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "matches_confirmed_total", Help: "Matches whose participants all confirmed"})
	OrphansHealed       = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "orphan_requests_healed_total", Help: "Matched requests reset because their match was gone"})

	MatchesCancelled = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "matches_cancelled_total", Help: "Matches cancelled, by reason"},
		[]string{"reason"},
	)

	FinderLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "match_finder_duration_seconds",
		Help:      "Time to search and rank candidates for one request",
		Buckets:   prometheus.DefBuckets,
	})
	FinderCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "match_finder_candidates",
		Help:      "Candidates returned per search",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
	})

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

// Cancellation reasons used as label values.
const (
	ReasonConfirmationTimeout = "confirmation_timeout"
	ReasonDeparturePassed     = "departure_passed"
	ReasonUnderQuorum         = "under_quorum"
	ReasonFormationConflict   = "formation_conflict"
)
