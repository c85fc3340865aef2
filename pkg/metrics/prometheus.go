// Package metrics provides Prometheus metrics for the rankings service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every metric the service exports.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	constLabels    map[string]string
	registry       prometheus.Registerer

	// Search
	searches              prometheus.Counter
	searchLatency         prometheus.Histogram
	searchResults         prometheus.Histogram
	staleResultsDiscarded prometheus.Counter
	sessionSelections     prometheus.Counter

	// Index
	indexBuilds       *prometheus.CounterVec
	indexReuses       *prometheus.CounterVec
	indexBuildLatency prometheus.Histogram
	indexedEntities   *prometheus.GaugeVec

	// Sort and window
	sorts              *prometheus.CounterVec
	sortLatency        prometheus.Histogram
	windowComputations prometheus.Counter
	windowRows         prometheus.Histogram

	// Data source
	fetches       *prometheus.CounterVec
	fetchLatency  prometheus.Histogram
	fetchRetries  *prometheus.CounterVec
	cohortRecords *prometheus.GaugeVec
	sourceReloads prometheus.Counter

	// Snapshots
	snapshotPublishDuration prometheus.Histogram
	snapshotLastUnix        prometheus.Gauge
	snapshotCount           prometheus.Counter

	// Scheduler queue and workers
	queueCapacity      prometheus.Gauge
	queueSize          prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      *prometheus.CounterVec
	queueEnqueueErrors *prometheus.CounterVec
	queueDequeued      prometheus.Counter
	queueWaitLatency   prometheus.Histogram
	workerActive       prometheus.Gauge
	workerTaskLatency  prometheus.Histogram
	workerPanics       prometheus.Counter
	schedulerInline    prometheus.Counter

	// Flags
	flagOperations *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByType      *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec
	errorLatency      *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton used by the package-level recorders

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps default Go collectors out of /healthz

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a manager and registers its metrics.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "pitchrank",
		subsystem:      "rankings",
		latencyBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 1000},
		constLabels:    map[string]string{},
		registry:       prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric definition
	auto := promauto.With(m.registry)
	lat := m.latencyBuckets
	sizes := []float64{0, 1, 2, 5, 10, 20, 50, 100, 200, 500}

	m.searches = auto.NewCounter(m.counterOpts("searches_total", "Searches executed"))
	m.searchLatency = auto.NewHistogram(m.histogramOpts("search_latency_milliseconds", "Time to match a query against an index", lat))
	m.searchResults = auto.NewHistogram(m.histogramOpts("search_results", "Results returned per search after the cap", sizes))
	m.staleResultsDiscarded = auto.NewCounter(m.counterOpts("stale_results_discarded_total", "Search results dropped because a newer query superseded them"))
	m.sessionSelections = auto.NewCounter(m.counterOpts("session_selections_total", "Selections committed from search sessions"))

	m.indexBuilds = auto.NewCounterVec(m.counterOpts("index_builds_total", "Entity index builds"), []string{"cohort"})
	m.indexReuses = auto.NewCounterVec(m.counterOpts("index_reuses_total", "Refreshes that reused an unchanged index"), []string{"cohort"})
	m.indexBuildLatency = auto.NewHistogram(m.histogramOpts("index_build_latency_milliseconds", "Entity index build time", lat))
	m.indexedEntities = auto.NewGaugeVec(m.gaugeOpts("indexed_entities", "Entities in the current index"), []string{"cohort"})

	m.sorts = auto.NewCounterVec(m.counterOpts("sorts_total", "Ranking list sorts by field"), []string{"field"})
	m.sortLatency = auto.NewHistogram(m.histogramOpts("sort_latency_milliseconds", "Ranking list sort time", lat))
	m.windowComputations = auto.NewCounter(m.counterOpts("window_computations_total", "Visible range computations"))
	m.windowRows = auto.NewHistogram(m.histogramOpts("window_rows_materialized", "Rows materialized per visible range", sizes))

	m.fetches = auto.NewCounterVec(m.counterOpts("fetches_total", "Ranking list fetches by outcome"), []string{"cohort", "outcome"})
	m.fetchLatency = auto.NewHistogram(m.histogramOpts("fetch_latency_milliseconds", "Ranking list fetch time",
		[]float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}))
	m.fetchRetries = auto.NewCounterVec(m.counterOpts("fetch_retries_total", "Retries requested after a failed fetch"), []string{"cohort"})
	m.cohortRecords = auto.NewGaugeVec(m.gaugeOpts("cohort_records", "Records in the latest list per cohort"), []string{"cohort"})
	m.sourceReloads = auto.NewCounter(m.counterOpts("source_reloads_total", "Reloads triggered by data file changes"))

	m.snapshotPublishDuration = auto.NewHistogram(m.histogramOpts("snapshot_publish_duration_milliseconds", "Time to build and publish a cohort snapshot", lat))
	m.snapshotLastUnix = auto.NewGauge(m.gaugeOpts("snapshot_last_unix", "Unix time of the last snapshot publish"))
	m.snapshotCount = auto.NewCounter(m.counterOpts("snapshots_total", "Cohort snapshots published"))

	m.queueCapacity = auto.NewGauge(m.gaugeOpts("scheduler_queue_capacity", "Deferred task queue capacity"))
	m.queueSize = auto.NewGauge(m.gaugeOpts("scheduler_queue_size", "Deferred tasks waiting"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("scheduler_queue_utilization_ratio", "Waiting tasks over capacity"))
	m.queueEnqueued = auto.NewCounterVec(m.counterOpts("scheduler_enqueued_total", "Deferred tasks enqueued"), []string{"priority"})
	m.queueEnqueueErrors = auto.NewCounterVec(m.counterOpts("scheduler_enqueue_errors_total", "Deferred tasks rejected by the queue"), []string{"reason"})
	m.queueDequeued = auto.NewCounter(m.counterOpts("scheduler_dequeued_total", "Deferred tasks handed to workers"))
	m.queueWaitLatency = auto.NewHistogram(m.histogramOpts("scheduler_wait_latency_milliseconds", "Time tasks spend queued", lat))
	m.workerActive = auto.NewGauge(m.gaugeOpts("scheduler_workers", "Running scheduler workers"))
	m.workerTaskLatency = auto.NewHistogram(m.histogramOpts("scheduler_task_latency_milliseconds", "Deferred task run time", lat))
	m.workerPanics = auto.NewCounter(m.counterOpts("scheduler_task_panics_total", "Deferred tasks that panicked"))
	m.schedulerInline = auto.NewCounter(m.counterOpts("scheduler_inline_total", "Tasks run synchronously because the queue was unavailable"))

	m.flagOperations = auto.NewCounterVec(m.counterOpts("flag_operations_total", "Keyed flag store operations"), []string{"op", "store"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration", lat),
		[]string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total", "Errors by component"), []string{"component", "error_type"})
	m.errorsByType = auto.NewCounterVec(m.counterOpts("errors_by_type_total", "Errors by type"), []string{"error_type", "severity"})
	m.errorsByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total", "Errors by endpoint"), []string{"endpoint", "method", "error_type"})
	m.errorLatency = auto.NewHistogramVec(m.histogramOpts("error_latency_milliseconds", "Latency of operations that failed", lat),
		[]string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds", "Average GC pause time",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// Search.

// RecordSearch records one executed search.
func RecordSearch(latencyMs float64, results int) {
	globalManager.searches.Inc()
	globalManager.searchLatency.Observe(latencyMs)
	globalManager.searchResults.Observe(float64(results))
}

// RecordStaleResultDiscarded counts results dropped for a superseded query.
func RecordStaleResultDiscarded() {
	globalManager.staleResultsDiscarded.Inc()
}

// RecordSessionSelection counts a committed selection.
func RecordSessionSelection() {
	globalManager.sessionSelections.Inc()
}

// Index.

// RecordIndexBuild records an index build for cohort.
func RecordIndexBuild(cohort string, latencyMs float64, entities int) {
	globalManager.indexBuilds.WithLabelValues(cohort).Inc()
	globalManager.indexBuildLatency.Observe(latencyMs)
	globalManager.indexedEntities.WithLabelValues(cohort).Set(float64(entities))
}

// RecordIndexReuse counts a refresh that kept the existing index.
func RecordIndexReuse(cohort string) {
	globalManager.indexReuses.WithLabelValues(cohort).Inc()
}

// Sort and window.

// RecordSort records a sort by field.
func RecordSort(field string, latencyMs float64) {
	globalManager.sorts.WithLabelValues(field).Inc()
	globalManager.sortLatency.Observe(latencyMs)
}

// RecordWindow records a visible range computation.
func RecordWindow(rows int) {
	globalManager.windowComputations.Inc()
	globalManager.windowRows.Observe(float64(rows))
}

// Data source.

// RecordFetch records a fetch outcome ("ok", "error", "cancelled").
func RecordFetch(cohort, outcome string, latencyMs float64) {
	globalManager.fetches.WithLabelValues(cohort, outcome).Inc()
	globalManager.fetchLatency.Observe(latencyMs)
}

// RecordFetchRetry counts a retry for cohort.
func RecordFetchRetry(cohort string) {
	globalManager.fetchRetries.WithLabelValues(cohort).Inc()
}

// UpdateCohortRecords sets the record count of cohort.
func UpdateCohortRecords(cohort string, n int) {
	globalManager.cohortRecords.WithLabelValues(cohort).Set(float64(n))
}

// RecordSourceReload counts a reload triggered by the file watcher.
func RecordSourceReload() {
	globalManager.sourceReloads.Inc()
}

// Snapshots.

// RecordSnapshotPublish records a snapshot publish that took d.
func RecordSnapshotPublish(d time.Duration) {
	globalManager.snapshotPublishDuration.Observe(float64(d.Microseconds()) / 1000)
	globalManager.snapshotLastUnix.Set(float64(time.Now().Unix()))
	globalManager.snapshotCount.Inc()
}

// Scheduler.

// UpdateQueueCapacity sets the deferred task queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueSize sets the number of waiting tasks and the utilization.
func UpdateQueueSize(size, capacity int) {
	globalManager.queueSize.Set(float64(size))
	if capacity > 0 {
		globalManager.queueUtilization.Set(float64(size) / float64(capacity))
	}
}

// RecordQueueEnqueue counts an accepted task.
func RecordQueueEnqueue(priority string) {
	globalManager.queueEnqueued.WithLabelValues(priority).Inc()
}

// RecordQueueEnqueueError counts a rejected task.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
	globalManager.errorsByComponent.WithLabelValues("scheduler", reason).Inc()
}

// RecordQueueDequeue records a task handed to a worker after waiting.
func RecordQueueDequeue(waitMs float64) {
	globalManager.queueDequeued.Inc()
	globalManager.queueWaitLatency.Observe(waitMs)
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActive.Set(float64(count))
}

// RecordWorkerTaskLatency records a task's run time.
func RecordWorkerTaskLatency(latencyMs float64) {
	globalManager.workerTaskLatency.Observe(latencyMs)
}

// RecordWorkerPanic counts a recovered task panic.
func RecordWorkerPanic() {
	globalManager.workerPanics.Inc()
	globalManager.errorsByComponent.WithLabelValues("worker", "panic").Inc()
}

// RecordSchedulerInline counts a task run on the caller's goroutine.
func RecordSchedulerInline() {
	globalManager.schedulerInline.Inc()
}

// Flags.

// RecordFlagOperation counts a flag store operation.
func RecordFlagOperation(op, store string) {
	globalManager.flagOperations.WithLabelValues(op, store).Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorsByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System.

// UpdateSystemMemoryUsage sets the heap bytes allocated.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry the package-level recorders use.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
