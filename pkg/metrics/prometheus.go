// Package metrics provides Prometheus metrics for the scoreboard service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Statistics engine
	playersCreated      prometheus.Counter
	matchesRecorded     prometheus.Counter
	matchesDeleted      prometheus.Counter
	penaltiesApplied    prometheus.Counter
	playersTotal        prometheus.Gauge
	matchesTotal        prometheus.Gauge
	consistencyChecks   prometheus.Counter
	consistencyDrift    prometheus.Gauge
	sagaCompensations   *prometheus.CounterVec
	sagaCompensationErr *prometheus.CounterVec

	// Coordinator
	commands          *prometheus.CounterVec
	commandLatency    *prometheus.HistogramVec
	idempotentReplays prometheus.Counter
	queueSize         prometheus.Gauge
	queueCapacity     prometheus.Gauge
	queueRejected     *prometheus.CounterVec

	// Store
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec
	liveSubscribers     prometheus.Gauge
	logins              *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to keep default Go collectors out of /healthz.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "scoreboard",
		subsystem:        "engine",
		histogramBuckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		Buckets: m.histogramBuckets, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.playersCreated = m.counter("players_created_total", "Players added by an administrator")
	m.matchesRecorded = m.counter("matches_recorded_total", "Matches recorded with all participant deltas applied")
	m.matchesDeleted = m.counter("matches_deleted_total", "Matches deleted with all participant deltas reversed")
	m.penaltiesApplied = m.counter("penalties_applied_total", "Penalties applied to players")
	m.playersTotal = m.gauge("players", "Players currently stored")
	m.matchesTotal = m.gauge("matches", "Matches currently stored")
	m.consistencyChecks = m.counter("consistency_checks_total", "Consistency checks executed")
	m.consistencyDrift = m.gauge("consistency_discrepancies", "Discrepancies found by the last consistency check")
	m.sagaCompensations = m.counterVec("saga_compensations_total", "Sagas rolled back after a failed step", "saga")
	m.sagaCompensationErr = m.counterVec("saga_compensation_failures_total", "Sagas whose rollback failed and left drift behind", "saga")

	m.commands = m.counterVec("commands_total", "Admin commands executed by the writer", "kind", "status")
	m.commandLatency = m.histogramVec("command_latency_milliseconds", "Time from enqueue to reply for admin commands", "kind")
	m.idempotentReplays = m.counter("idempotent_replays_total", "Admin submissions answered from the idempotency cache")
	m.queueSize = m.gauge("queue_size", "Commands waiting for the writer")
	m.queueCapacity = m.gauge("queue_capacity", "Command queue capacity")
	m.queueRejected = m.counterVec("queue_rejected_total", "Commands rejected by the queue", "reason")

	m.storeLatency = m.histogramVec("store_operation_latency_milliseconds", "Store operation latency", "backend", "op")
	m.storeErrors = m.counterVec("store_errors_total", "Store operation failures", "backend", "op")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", "endpoint", "method", "status_code")
	m.errorsByEndpoint = m.counterVec("http_errors_total", "HTTP error responses by endpoint", "endpoint", "method", "error_type")
	m.liveSubscribers = m.gauge("live_subscribers", "Open websocket subscriptions")
	m.logins = m.counterVec("admin_logins_total", "Admin login attempts", "result")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "system_gc_pause_milliseconds",
		Help: "Average GC pause", Buckets: m.histogramBuckets, ConstLabels: m.constLabels,
	})
}

// Statistics engine

func RecordPlayerCreated() {
	globalManager.playersCreated.Inc()
}

func RecordMatchRecorded() {
	globalManager.matchesRecorded.Inc()
}

func RecordMatchDeleted() {
	globalManager.matchesDeleted.Inc()
}

func RecordPenaltyApplied() {
	globalManager.penaltiesApplied.Inc()
}

func UpdatePlayersTotal(n int) {
	globalManager.playersTotal.Set(float64(n))
}

func UpdateMatchesTotal(n int) {
	globalManager.matchesTotal.Set(float64(n))
}

// RecordConsistencyCheck counts a check and exposes its discrepancy count.
func RecordConsistencyCheck(discrepancies int) {
	globalManager.consistencyChecks.Inc()
	globalManager.consistencyDrift.Set(float64(discrepancies))
}

func RecordSagaCompensation(saga string) {
	globalManager.sagaCompensations.WithLabelValues(saga).Inc()
}

func RecordSagaCompensationFailure(saga string) {
	globalManager.sagaCompensationErr.WithLabelValues(saga).Inc()
}

// Coordinator

// RecordCommand counts an executed command and its enqueue-to-reply latency.
func RecordCommand(kind, status string, latencyMs float64) {
	globalManager.commands.WithLabelValues(kind, status).Inc()
	globalManager.commandLatency.WithLabelValues(kind).Observe(latencyMs)
}

func RecordIdempotentReplay() {
	globalManager.idempotentReplays.Inc()
}

func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// Store

func RecordStoreLatency(backend, op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

func RecordStoreError(backend, op string) {
	globalManager.storeErrors.WithLabelValues(backend, op).Inc()
}

// HTTP

func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

func AddLiveSubscribers(delta int) {
	globalManager.liveSubscribers.Add(float64(delta))
}

func RecordLogin(result string) {
	globalManager.logins.WithLabelValues(result).Inc()
}

// System

func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry served at /healthz.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
