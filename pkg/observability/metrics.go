package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Sync metrics
	SyncTriggersTotal    *prometheus.CounterVec
	SyncTasksQueuedTotal prometheus.Counter
	DispatchFailuresTotal prometheus.Counter

	// Deletion metrics
	DatastoreDeletionsTotal *prometheus.CounterVec
	DeletionDuration        prometheus.Histogram
	ObjectsDeletedTotal     prometheus.Counter

	// Usage metrics
	UsageRecomputeTotal  *prometheus.CounterVec
	UsageCacheHitsTotal  prometheus.Counter
	UsageCacheMissTotal  prometheus.Counter
	QuotaDenialsTotal    *prometheus.CounterVec

	// Reconciler metrics
	ReconcilerSweepsTotal     prometheus.Counter
	OrphanedPrefixesTotal     prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "corpus_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		SyncTriggersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_sync_triggers_total",
				Help: "Total number of datasource sync triggers by outcome",
			},
			[]string{"outcome"},
		),
		SyncTasksQueuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "corpus_sync_tasks_queued_total",
				Help: "Total number of sync tasks pushed to the ingestion queue",
			},
		),
		DispatchFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "corpus_dispatch_failures_total",
				Help: "Total number of failed queue dispatches",
			},
		),
		DatastoreDeletionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_datastore_deletions_total",
				Help: "Total number of datastore deletions by outcome",
			},
			[]string{"outcome"},
		),
		DeletionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "corpus_datastore_deletion_duration_seconds",
				Help:    "Datastore deletion duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		ObjectsDeletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "corpus_objects_deleted_total",
				Help: "Total number of objects removed from the object store",
			},
		),
		UsageRecomputeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_usage_recompute_total",
				Help: "Total number of organization usage recomputations by outcome",
			},
			[]string{"outcome"},
		),
		UsageCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "corpus_usage_cache_hits_total",
				Help: "Total number of usage snapshot cache hits",
			},
		),
		UsageCacheMissTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "corpus_usage_cache_misses_total",
				Help: "Total number of usage snapshot cache misses",
			},
		),
		QuotaDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_quota_denials_total",
				Help: "Total number of usage guard denials by dimension",
			},
			[]string{"dimension"},
		),
		ReconcilerSweepsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "corpus_reconciler_sweeps_total",
				Help: "Total number of reconciler sweeps",
			},
		),
		OrphanedPrefixesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "corpus_orphaned_prefixes_total",
				Help: "Total number of orphaned object prefixes removed",
			},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "corpus_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "corpus_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SyncTriggersTotal,
		m.SyncTasksQueuedTotal,
		m.DispatchFailuresTotal,
		m.DatastoreDeletionsTotal,
		m.DeletionDuration,
		m.ObjectsDeletedTotal,
		m.UsageRecomputeTotal,
		m.UsageCacheHitsTotal,
		m.UsageCacheMissTotal,
		m.QuotaDenialsTotal,
		m.ReconcilerSweepsTotal,
		m.OrphanedPrefixesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns the Prometheus scrape handler for this metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveDBStats copies connection pool stats into the gauges
func (m *Metrics) ObserveDBStats(stats sql.DBStats) {
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// CollectDBStats periodically samples database pool statistics until ctx is done
func (m *Metrics) CollectDBStats(done <-chan struct{}, interval time.Duration, stats func() sql.DBStats) {
	if interval == 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.ObserveDBStats(stats())
			case <-done:
				return
			}
		}
	}()
}

// InstrumentHandler wraps an HTTP handler with request metrics
func (m *Metrics) InstrumentHandler(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		duration := time.Since(start).Seconds()
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
