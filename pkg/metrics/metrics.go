package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics содержит все метрики приложения
type Metrics struct {
	// Match метрики
	MatchesTotal      *prometheus.CounterVec
	MatchDuration     *prometheus.HistogramVec
	MatchesInProgress prometheus.Gauge

	// Batch (scrimmage/tournament) метрики
	BatchesTotal      *prometheus.CounterVec
	BatchDuration     *prometheus.HistogramVec
	BatchesInProgress *prometheus.GaugeVec

	// Tournament pairing pool метрики
	PairingPoolActive prometheus.Gauge

	// HTTP метрики
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Database метрики
	DBQueryDuration *prometheus.HistogramVec
	DBConnections   *prometheus.GaugeVec

	// Cache метрики
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
}

// New создаёт новый экземпляр метрик
func New() *Metrics {
	return &Metrics{
		MatchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matchorch_matches_total",
				Help: "Total number of matches processed, by terminal status and kind",
			},
			[]string{"status", "kind"},
		),
		MatchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "matchorch_match_duration_seconds",
				Help:    "Time from job submission to terminal callback, in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"kind"},
		),
		MatchesInProgress: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "matchorch_matches_in_progress",
				Help: "Number of PENDING matches awaiting a runner callback",
			},
		),

		BatchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matchorch_batches_total",
				Help: "Total number of scrimmage/tournament batches completed",
			},
			[]string{"kind"},
		),
		BatchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "matchorch_batch_duration_seconds",
				Help:    "Batch orchestration wall-clock duration, in seconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"kind"},
		),
		BatchesInProgress: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "matchorch_batches_in_progress",
				Help: "Number of in-flight batches, by kind",
			},
			[]string{"kind"},
		),

		PairingPoolActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "matchorch_tournament_pairing_pool_active",
				Help: "Number of tournament pairings currently dispatched against the bounded pool",
			},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matchorch_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "matchorch_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		DBQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "matchorch_db_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
			},
			[]string{"query_type"},
		),
		DBConnections: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "matchorch_db_connections",
				Help: "Number of database connections",
			},
			[]string{"state"},
		),

		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matchorch_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matchorch_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),
	}
}

// RecordMatchStart записывает постановку матча в PENDING
func (m *Metrics) RecordMatchStart() {
	m.MatchesInProgress.Inc()
}

// RecordMatchComplete записывает терминальный переход матча
func (m *Metrics) RecordMatchComplete(kind string, status string, duration time.Duration) {
	m.MatchesInProgress.Dec()
	m.MatchesTotal.WithLabelValues(status, kind).Inc()
	m.MatchDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordBatchStart записывает запуск батча (scrimmage/tournament)
func (m *Metrics) RecordBatchStart(kind string) {
	m.BatchesInProgress.WithLabelValues(kind).Inc()
}

// RecordBatchComplete записывает завершение батча
func (m *Metrics) RecordBatchComplete(kind string, duration time.Duration) {
	m.BatchesInProgress.WithLabelValues(kind).Dec()
	m.BatchesTotal.WithLabelValues(kind).Inc()
	m.BatchDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordHTTPRequest записывает HTTP запрос
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDBQuery записывает запрос к БД
func (m *Metrics) RecordDBQuery(queryType string, duration time.Duration) {
	m.DBQueryDuration.WithLabelValues(queryType).Observe(duration.Seconds())
}

// RecordCacheHit записывает попадание в кэш
func (m *Metrics) RecordCacheHit(cacheType string) {
	m.CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss записывает промах кэша
func (m *Metrics) RecordCacheMiss(cacheType string) {
	m.CacheMisses.WithLabelValues(cacheType).Inc()
}

// SetPairingPoolActive устанавливает текущую занятость пула пар турнира
func (m *Metrics) SetPairingPoolActive(n int) {
	m.PairingPoolActive.Set(float64(n))
}

// SetDBConnections устанавливает количество соединений с БД
func (m *Metrics) SetDBConnections(inUse, idle, open int) {
	m.DBConnections.WithLabelValues("in_use").Set(float64(inUse))
	m.DBConnections.WithLabelValues("idle").Set(float64(idle))
	m.DBConnections.WithLabelValues("open").Set(float64(open))
}
