// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Monitor metrics
	EventsProcessed *prometheus.CounterVec
	EventErrors     *prometheus.CounterVec
	EventsInFlight  prometheus.Gauge
	EventLatency    *prometheus.HistogramVec
	DedupHits       *prometheus.CounterVec

	// Coordinator metrics
	SwapTransitions *prometheus.CounterVec
	SwapRejections  *prometheus.CounterVec

	// Watcher metrics
	ChainHeadHeight   *prometheus.GaugeVec
	ChainCursorHeight *prometheus.GaugeVec
	WatcherErrors     *prometheus.CounterVec
	RPCCallLatency    *prometheus.HistogramVec

	// Notification metrics
	NotificationsDropped *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Health metrics
	LastProcessedEvent *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "htlc_relayer"
	}

	return &Metrics{
		// Monitor metrics
		EventsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "events_total",
			Help:      "Chain events handled by the monitor, by chain, type and result",
		}, []string{"chain", "event_type", "result"}),
		EventErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "event_errors_total",
			Help:      "Chain events whose handler failed, by chain and type",
		}, []string{"chain", "event_type"}),
		EventsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "events_in_flight",
			Help:      "Chain events accepted but not yet processed",
		}),
		EventLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "event_processing_latency_seconds",
			Help:      "Event processing latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
		DedupHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "hits_total",
			Help:      "Events skipped because their dedup marker was present",
		}, []string{"chain"}),

		// Coordinator metrics
		SwapTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "transitions_total",
			Help:      "Applied swap transitions by target status",
		}, []string{"from", "to"}),
		SwapRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "rejections_total",
			Help:      "Rejected coordinator operations by operation and reason",
		}, []string{"operation", "reason"}),

		// Watcher metrics
		ChainHeadHeight: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "head_height",
			Help:      "Latest block or checkpoint reported by the chain",
		}, []string{"chain"}),
		ChainCursorHeight: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "cursor_height",
			Help:      "Last acknowledged block or checkpoint",
		}, []string{"chain"}),
		WatcherErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "errors_total",
			Help:      "Transient watcher errors by chain",
		}, []string{"chain"}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "Chain RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"chain", "method"}),

		// Notification metrics
		NotificationsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "dropped_total",
			Help:      "Notifications discarded because the queue was full",
		}, []string{"kind"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "REST requests by route and status code",
		}, []string{"route", "code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "REST request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		// Health metrics
		LastProcessedEvent: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_processed_event_timestamp",
			Help:      "Unix timestamp of the last applied event per chain",
		}, []string{"chain"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEvent records a processed event and its outcome.
func RecordEvent(chain, eventType, result string, seconds float64) {
	DefaultMetrics.EventsProcessed.WithLabelValues(chain, eventType, result).Inc()
	DefaultMetrics.EventLatency.WithLabelValues(eventType).Observe(seconds)
}

// RecordEventError records a failed event handler.
func RecordEventError(chain, eventType string) {
	DefaultMetrics.EventErrors.WithLabelValues(chain, eventType).Inc()
}

// RecordDedupHit records an event skipped by the dedup cache.
func RecordDedupHit(chain string) {
	DefaultMetrics.DedupHits.WithLabelValues(chain).Inc()
}

// SetInFlight updates the in-flight events gauge.
func SetInFlight(n int64) {
	DefaultMetrics.EventsInFlight.Set(float64(n))
}

// RecordTransition records an applied swap transition.
func RecordTransition(from, to string) {
	DefaultMetrics.SwapTransitions.WithLabelValues(from, to).Inc()
}

// RecordRejection records a rejected coordinator operation.
func RecordRejection(operation, reason string) {
	DefaultMetrics.SwapRejections.WithLabelValues(operation, reason).Inc()
}

// UpdateChainHead updates the chain head gauge.
func UpdateChainHead(chain string, height uint64) {
	DefaultMetrics.ChainHeadHeight.WithLabelValues(chain).Set(float64(height))
}

// UpdateCursor updates the acknowledged cursor gauge.
func UpdateCursor(chain string, height uint64) {
	DefaultMetrics.ChainCursorHeight.WithLabelValues(chain).Set(float64(height))
}

// RecordWatcherError records a transient watcher error.
func RecordWatcherError(chain string) {
	DefaultMetrics.WatcherErrors.WithLabelValues(chain).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(chain, method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(chain, method).Observe(seconds)
}

// RecordNotificationDropped records a dropped notification.
func RecordNotificationDropped(kind string) {
	DefaultMetrics.NotificationsDropped.WithLabelValues(kind).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordLastProcessed stamps the last applied event time for a chain.
func RecordLastProcessed(chain string, unixSeconds int64) {
	DefaultMetrics.LastProcessedEvent.WithLabelValues(chain).Set(float64(unixSeconds))
}

// RecordHTTPRequest records a served REST request.
func RecordHTTPRequest(route string, code int, seconds float64) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	DefaultMetrics.HTTPRequestDuration.WithLabelValues(route).Observe(seconds)
}
