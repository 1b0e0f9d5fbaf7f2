// Package metrics provides Prometheus metrics for the bowlsense client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the client.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	jobBuckets       []float64
	enabled          bool
	registry         prometheus.Registerer

	// Backend API traffic
	apiRequests        *prometheus.CounterVec
	apiRequestDuration *prometheus.HistogramVec
	apiRetries         *prometheus.CounterVec
	uploadBytes        prometheus.Counter

	// Job polling
	pollAttempts  *prometheus.CounterVec
	pollOutcomes  *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	activeJobs    prometheus.Gauge
	queueSize     prometheus.Gauge
	queueRejected prometheus.Counter

	// Result cache
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	cacheEntries prometheus.Gauge

	// Response normalization
	normalizeFallbacks *prometheus.CounterVec

	// Local status server
	statusRequests *prometheus.CounterVec
	streamClients  prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Seconds-scale buckets suited to job durations.
var defaultJobBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200} //nolint:gochecknoglobals // constant buckets

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "bowlsense",
		subsystem:        "client",
		histogramBuckets: prometheus.DefBuckets,
		jobBuckets:       defaultJobBuckets,
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	auto := promauto.With(m.registry)

	m.apiRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "api_requests_total",
		Help:      "Requests sent to the analysis backend by endpoint, method and status",
	}, []string{"endpoint", "method", "status_code"})

	m.apiRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "api_request_duration_seconds",
		Help:      "Analysis backend request latency in seconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method"})

	m.apiRetries = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "api_retries_total",
		Help:      "Retried backend requests by endpoint",
	}, []string{"endpoint"})

	m.uploadBytes = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "upload_bytes_total",
		Help:      "Video bytes streamed to the backend",
	})

	m.pollAttempts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "poll_attempts_total",
		Help:      "Progress polls issued by job kind",
	}, []string{"kind"})

	m.pollOutcomes = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "poll_outcomes_total",
		Help:      "Finished job watches by kind and outcome",
	}, []string{"kind", "outcome"})

	m.jobDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "job_duration_seconds",
		Help:      "Time from tracking a job to its terminal state",
		Buckets:   m.jobBuckets,
	}, []string{"kind", "outcome"})

	m.activeJobs = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "active_jobs",
		Help:      "Jobs currently being watched",
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "watch_queue_size",
		Help:      "Watch requests waiting for a worker",
	})

	m.queueRejected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "watch_queue_rejected_total",
		Help:      "Watch requests rejected because the queue was full or closed",
	})

	m.cacheHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "result_cache_hits_total",
		Help:      "Result lookups served from memory",
	})

	m.cacheMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "result_cache_misses_total",
		Help:      "Result lookups that went to the backend",
	})

	m.cacheEntries = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "result_cache_entries",
		Help:      "Results currently held in memory",
	})

	m.normalizeFallbacks = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "normalize_fallbacks_total",
		Help:      "Fields resolved through an alias or a derived default",
	}, []string{"field"})

	m.statusRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "status_http_requests_total",
		Help:      "Requests served by the local status server",
	}, []string{"route", "method", "status_code"})

	m.streamClients = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stream_clients",
		Help:      "Connected SSE and WebSocket subscribers",
	})
}

// RecordAPIRequest counts one backend request.
func RecordAPIRequest(endpoint, method, statusCode string) {
	if globalManager.enabled {
		globalManager.apiRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordAPIRequestDuration observes backend latency in seconds.
func RecordAPIRequestDuration(endpoint, method string, seconds float64) {
	if globalManager.enabled {
		globalManager.apiRequestDuration.WithLabelValues(endpoint, method).Observe(seconds)
	}
}

// RecordAPIRetry counts one retried backend request.
func RecordAPIRetry(endpoint string) {
	if globalManager.enabled {
		globalManager.apiRetries.WithLabelValues(endpoint).Inc()
	}
}

// RecordUploadBytes adds streamed upload bytes.
func RecordUploadBytes(n int64) {
	if globalManager.enabled && n > 0 {
		globalManager.uploadBytes.Add(float64(n))
	}
}

// RecordPollAttempt counts one progress poll.
func RecordPollAttempt(kind string) {
	if globalManager.enabled {
		globalManager.pollAttempts.WithLabelValues(kind).Inc()
	}
}

// RecordPollOutcome counts a finished watch and observes its duration.
func RecordPollOutcome(kind, outcome string, seconds float64) {
	if globalManager.enabled {
		globalManager.pollOutcomes.WithLabelValues(kind, outcome).Inc()
		globalManager.jobDuration.WithLabelValues(kind, outcome).Observe(seconds)
	}
}

// UpdateActiveJobs sets the number of watched jobs.
func UpdateActiveJobs(n int) {
	if globalManager.enabled {
		globalManager.activeJobs.Set(float64(n))
	}
}

// UpdateQueueSize sets the watch queue backlog.
func UpdateQueueSize(n int) {
	if globalManager.enabled {
		globalManager.queueSize.Set(float64(n))
	}
}

// RecordQueueRejected counts a rejected watch request.
func RecordQueueRejected() {
	if globalManager.enabled {
		globalManager.queueRejected.Inc()
	}
}

// RecordCacheHit counts a result served from memory.
func RecordCacheHit() {
	if globalManager.enabled {
		globalManager.cacheHits.Inc()
	}
}

// RecordCacheMiss counts a result fetched from the backend.
func RecordCacheMiss() {
	if globalManager.enabled {
		globalManager.cacheMisses.Inc()
	}
}

// UpdateCacheEntries sets the number of cached results.
func UpdateCacheEntries(n int) {
	if globalManager.enabled {
		globalManager.cacheEntries.Set(float64(n))
	}
}

// RecordNormalizeFallback counts a field that needed an alias or default.
func RecordNormalizeFallback(field string) {
	if globalManager.enabled {
		globalManager.normalizeFallbacks.WithLabelValues(field).Inc()
	}
}

// RecordStatusRequest counts one request to the local status server.
func RecordStatusRequest(route, method, statusCode string) {
	if globalManager.enabled {
		globalManager.statusRequests.WithLabelValues(route, method, statusCode).Inc()
	}
}

// UpdateStreamClients adjusts the connected subscriber gauge by delta.
func UpdateStreamClients(delta int) {
	if globalManager.enabled {
		globalManager.streamClients.Add(float64(delta))
	}
}

// GetRegistry returns the custom registry used for all client metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
