package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts backend calls by endpoint and outcome ("2xx", "404", "transport", ...).
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comptox_client_requests_total",
			Help: "Total number of backend requests issued by the API client",
		},
		[]string{"endpoint", "outcome"},
	)

	// RequestDuration measures backend round trips.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comptox_client_request_duration_seconds",
			Help:    "Duration of backend requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)

	// CacheLookups counts query cache reads by result ("hit", "miss", "stale", "hydrated").
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comptox_client_cache_lookups_total",
			Help: "Query cache lookups by result",
		},
		[]string{"result"},
	)

	// ChangesPublished counts change events handed to the publisher fan-out.
	ChangesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comptox_client_changes_published_total",
			Help: "Watched query changes published downstream",
		},
		[]string{"target"},
	)
)
