package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SearchRequests counts post searches by kind (tags, text, ai).
	SearchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restjam_search_requests_total",
		Help: "Total number of post searches by kind",
	}, []string{"kind"})

	// SearchShortCircuits counts searches answered empty without querying the database.
	SearchShortCircuits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restjam_search_short_circuits_total",
		Help: "Searches that returned empty without a database query",
	}, []string{"kind", "reason"})

	// SearchResults observes how many posts each search returned.
	SearchResults = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "restjam_search_results",
		Help:    "Number of posts returned per search",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
	}, []string{"kind"})

	// CircuitBreakerState exposes breaker state per upstream (0 closed, 1 half-open, 2 open).
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "restjam_circuit_breaker_state",
		Help: "Circuit breaker state per upstream provider",
	}, []string{"name"})

	// WebSocketConnectionsTotal is the gauge of active feed connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "restjam_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restjam_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"reason"})

	// ImageUploads counts processed uploads by backing store.
	ImageUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restjam_image_uploads_total",
		Help: "Total number of processed image uploads",
	}, []string{"store"})
)
