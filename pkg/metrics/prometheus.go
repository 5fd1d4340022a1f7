// Package metrics provides Prometheus metrics for the lead routing service.
package metrics

import (
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Routing pass outcomes.
const (
	OutcomeAssigned  = "assigned"
	OutcomeAccepted  = "accepted"
	OutcomeNoBroker  = "no_broker"
	OutcomeDuplicate = "duplicate"
	OutcomeError     = "error"
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	CacheHit         = "hit"
	CacheMiss        = "miss"
)

// Manager manages all Prometheus metrics for the router.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Routing
	routingPasses      *prometheus.CounterVec
	routingLatency     prometheus.Histogram
	assignmentsCreated *prometheus.CounterVec
	assignmentsClosed  *prometheus.CounterVec
	duplicateRequests  prometheus.Counter

	// Sweeper
	sweepRuns          *prometheus.CounterVec
	sweepDuration      prometheus.Histogram
	assignmentsExpired prometheus.Counter

	// Parameters
	configFallbacks *prometheus.CounterVec
	paramsCache     *prometheus.CounterVec

	// Notifications
	notifications *prometheus.CounterVec

	// Queue and worker pools, labelled by instance name
	queueSize          *prometheus.GaugeVec
	queueCapacity      *prometheus.GaugeVec
	queueEnqueued      *prometheus.CounterVec
	queueEnqueueErrors *prometheus.CounterVec
	workerCount        *prometheus.GaugeVec
	workerLatency      *prometheus.HistogramVec
	workerErrors       *prometheus.CounterVec

	// Repository
	repositoryLatency *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        DefaultNamespace,
		subsystem:        DefaultSubsystem,
		histogramBuckets: slices.Clone(DefaultLatencyBuckets),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   m.histogramBuckets,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	auto := promauto.With(m.registry)

	m.routingPasses = auto.NewCounterVec(
		m.counterOpts("passes_total", "Routing passes by outcome"),
		[]string{"outcome"},
	)
	m.routingLatency = auto.NewHistogram(
		m.histogramOpts("pass_latency_milliseconds", "Latency of a routing pass in milliseconds"),
	)
	m.assignmentsCreated = auto.NewCounterVec(
		m.counterOpts("assignments_created_total", "Assignments created by tier and initial status"),
		[]string{"tier", "status"},
	)
	m.assignmentsClosed = auto.NewCounterVec(
		m.counterOpts("assignments_closed_total", "Assignments moved out of assigned by final status"),
		[]string{"status"},
	)
	m.duplicateRequests = auto.NewCounter(
		m.counterOpts("duplicate_requests_total", "Routing requests dropped as duplicates"),
	)

	m.sweepRuns = auto.NewCounterVec(
		m.counterOpts("sweep_runs_total", "Expiry sweeps by result"),
		[]string{"result"},
	)
	m.sweepDuration = auto.NewHistogram(
		m.histogramOpts("sweep_duration_milliseconds", "Expiry sweep duration in milliseconds"),
	)
	m.assignmentsExpired = auto.NewCounter(
		m.counterOpts("assignments_expired_total", "Assignments expired by the sweeper"),
	)

	m.configFallbacks = auto.NewCounterVec(
		m.counterOpts("config_fallbacks_total", "Guardian parameters replaced by their defaults"),
		[]string{"field"},
	)
	m.paramsCache = auto.NewCounterVec(
		m.counterOpts("params_cache_total", "Guardian parameter cache lookups by result"),
		[]string{"result"},
	)

	m.notifications = auto.NewCounterVec(
		m.counterOpts("notifications_total", "Notifications by template and result"),
		[]string{"template", "result"},
	)

	m.queueSize = auto.NewGaugeVec(
		m.gaugeOpts("queue_size", "Current queue backlog"),
		[]string{"queue"},
	)
	m.queueCapacity = auto.NewGaugeVec(
		m.gaugeOpts("queue_capacity", "Maximum queue capacity"),
		[]string{"queue"},
	)
	m.queueEnqueued = auto.NewCounterVec(
		m.counterOpts("queue_enqueue_total", "Messages enqueued"),
		[]string{"queue"},
	)
	m.queueEnqueueErrors = auto.NewCounterVec(
		m.counterOpts("queue_enqueue_errors_total", "Enqueue failures"),
		[]string{"queue"},
	)
	m.workerCount = auto.NewGaugeVec(
		m.gaugeOpts("worker_count", "Running workers"),
		[]string{"pool"},
	)
	m.workerLatency = auto.NewHistogramVec(
		m.histogramOpts("worker_processing_latency_milliseconds", "Worker processing latency in milliseconds"),
		[]string{"pool"},
	)
	m.workerErrors = auto.NewCounterVec(
		m.counterOpts("worker_errors_total", "Worker handler errors"),
		[]string{"pool"},
	)

	m.repositoryLatency = auto.NewHistogramVec(
		m.histogramOpts("repository_latency_milliseconds", "Repository operation latency in milliseconds"),
		[]string{"op"},
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "HTTP requests by endpoint, method and status"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorsByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Errors by component and type"),
		[]string{"component", "error_type"},
	)
}

// RecordRoutingPass counts a routing pass outcome and its latency.
func RecordRoutingPass(outcome string, latencyMs float64) {
	globalManager.routingPasses.WithLabelValues(outcome).Inc()
	globalManager.routingLatency.Observe(latencyMs)
}

// RecordAssignmentCreated counts a new assignment row.
func RecordAssignmentCreated(tier, status string) {
	globalManager.assignmentsCreated.WithLabelValues(tier, status).Inc()
}

// RecordAssignmentClosed counts an assignment that left the assigned status.
func RecordAssignmentClosed(status string) {
	globalManager.assignmentsClosed.WithLabelValues(status).Inc()
}

// RecordDuplicateRequest counts a routing request dropped by dedupe.
func RecordDuplicateRequest() {
	globalManager.duplicateRequests.Inc()
}

// RecordSweep counts a sweep run and its duration.
func RecordSweep(result string, durationMs float64) {
	globalManager.sweepRuns.WithLabelValues(result).Inc()
	globalManager.sweepDuration.Observe(durationMs)
}

// RecordAssignmentExpired counts an assignment expired by the sweeper.
func RecordAssignmentExpired() {
	globalManager.assignmentsExpired.Inc()
}

// RecordConfigFallback counts a parameter that fell back to its default.
func RecordConfigFallback(field string) {
	globalManager.configFallbacks.WithLabelValues(field).Inc()
}

// RecordParamsCache counts a parameter cache hit or miss.
func RecordParamsCache(result string) {
	globalManager.paramsCache.WithLabelValues(result).Inc()
}

// RecordNotification counts a notification attempt.
func RecordNotification(template, result string) {
	globalManager.notifications.WithLabelValues(template, result).Inc()
}

// UpdateQueueSize sets the current backlog of a queue.
func UpdateQueueSize(queue string, size int) {
	globalManager.queueSize.WithLabelValues(queue).Set(float64(size))
}

// UpdateQueueCapacity sets the capacity of a queue.
func UpdateQueueCapacity(queue string, capacity int) {
	globalManager.queueCapacity.WithLabelValues(queue).Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue(queue string) {
	globalManager.queueEnqueued.WithLabelValues(queue).Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError(queue string) {
	globalManager.queueEnqueueErrors.WithLabelValues(queue).Inc()
}

// UpdateWorkerCount sets the number of running workers in a pool.
func UpdateWorkerCount(pool string, count int) {
	globalManager.workerCount.WithLabelValues(pool).Set(float64(count))
}

// RecordWorkerProcessingLatency records how long a handler took.
func RecordWorkerProcessingLatency(pool string, latencyMs float64) {
	globalManager.workerLatency.WithLabelValues(pool).Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError(pool string) {
	globalManager.workerErrors.WithLabelValues(pool).Inc()
}

// RecordRepositoryLatency records a repository operation latency.
func RecordRepositoryLatency(op string, latencyMs float64) {
	globalManager.repositoryLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
