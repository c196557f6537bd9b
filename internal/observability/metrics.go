package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Enrollments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "enrollments_total",
		Help:      "Enrollments written, by mode and whether a face was found",
	}, []string{"mode", "face"})

	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "decisions_total",
		Help:      "Verification decisions by kind and outcome",
	}, []string{"kind", "decision"})

	MatchDistance = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "match_distance",
		Help:      "Distance between live and stored descriptors for determined results",
		Buckets:   prometheus.LinearBuckets(0.1, 0.1, 12),
	}, []string{"kind"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "inference_duration_seconds",
		Help:      "Duration of face model stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	OperationsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "operations_rejected_total",
		Help:      "Operations rejected because another one was in flight for the session",
	})

	CapturesTaken = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "captures_total",
		Help:      "Station captures by result",
	}, []string{"station", "result"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facegate",
		Name:      "queue_depth",
		Help:      "Number of pending capture tasks",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facegate",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)

// Records is refreshed whenever the full record set is listed.
var Records = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "facegate",
	Name:      "records",
	Help:      "Enrollment records seen in the last full listing",
})
