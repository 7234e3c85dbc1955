package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SystemMetrics is a lightweight JSON view over the collectors.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	BehaviorsLogged          uint64    `json:"behaviorsLogged"`
	BadgesAwarded            uint64    `json:"badgesAwarded"`
	Redemptions              uint64    `json:"redemptions"`
	NotificationFailures     uint64    `json:"notificationFailures"`
	SnapshotRebuilds         uint64    `json:"snapshotRebuilds"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	cacheEvictions  prometheus.Counter

	behaviorsLogged      *prometheus.CounterVec
	badgesAwarded        *prometheus.CounterVec
	redemptions          *prometheus.CounterVec
	notificationFailures prometheus.Counter
	snapshotRebuilds     *prometheus.CounterVec
	snapshotDuration     prometheus.Observer
	changeSignals        *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	behaviorCount        uint64
	badgeCount           uint64
	redemptionCount      uint64
	notifyFailureCount   uint64
	rebuildCount         uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	cacheEvictions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_evictions_total",
		Help: "Cache keys removed by invalidation",
	})

	behaviorsLogged := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "behavior_events_logged_total",
		Help: "Behaviour events appended to the ledger",
	}, []string{"type"})

	badgesAwarded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "badges_awarded_total",
		Help: "Badge award records created",
	}, []string{"source"})

	redemptions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reward_redemptions_total",
		Help: "Reward redemption attempts by outcome",
	}, []string{"outcome"})

	notificationFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_failures_total",
		Help: "Notifications that could not be stored",
	})

	snapshotRebuilds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "snapshot_rebuilds_total",
		Help: "Point snapshot rebuilds by result",
	}, []string{"result"})

	snapshotDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "snapshot_rebuild_seconds",
		Help:    "Duration of point snapshot rebuilds",
		Buckets: prometheus.DefBuckets,
	})

	changeSignals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "change_signals_total",
		Help: "Change feed signals by direction and reason",
	}, []string{"direction", "reason"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal,
		cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses, cacheEvictions,
		behaviorsLogged, badgesAwarded, redemptions, notificationFailures,
		snapshotRebuilds, snapshotDuration, changeSignals, goroutines,
	)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:             registry,
		handler:              handler,
		requestDuration:      requestDuration,
		requestTotal:         requestTotal,
		cacheLatency:         cacheLatency,
		cacheWrite:           cacheWrite,
		cacheHitRatio:        cacheHitRatio,
		cacheHits:            cacheHits,
		cacheMisses:          cacheMisses,
		cacheEvictions:       cacheEvictions,
		behaviorsLogged:      behaviorsLogged,
		badgesAwarded:        badgesAwarded,
		redemptions:          redemptions,
		notificationFailures: notificationFailures,
		snapshotRebuilds:     snapshotRebuilds,
		snapshotDuration:     snapshotDuration,
		changeSignals:        changeSignals,
	}
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordCacheEviction counts keys removed by invalidation.
func (m *MetricsService) RecordCacheEviction(keys int) {
	if m == nil || keys <= 0 {
		return
	}
	m.cacheEvictions.Add(float64(keys))
}

// RecordBehaviorLogged counts an appended event by its category type.
func (m *MetricsService) RecordBehaviorLogged(categoryType string) {
	if m == nil {
		return
	}
	m.behaviorsLogged.WithLabelValues(categoryType).Inc()
	atomic.AddUint64(&m.behaviorCount, 1)
}

// RecordBadgeAwarded counts a newly created award. source is "auto" or "manual".
func (m *MetricsService) RecordBadgeAwarded(source string) {
	if m == nil {
		return
	}
	m.badgesAwarded.WithLabelValues(source).Inc()
	atomic.AddUint64(&m.badgeCount, 1)
}

// RecordRedemption counts a redemption attempt by outcome.
func (m *MetricsService) RecordRedemption(outcome string) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(outcome).Inc()
	if outcome == "accepted" {
		atomic.AddUint64(&m.redemptionCount, 1)
	}
}

// RecordNotificationFailure counts a notification that could not be stored.
func (m *MetricsService) RecordNotificationFailure() {
	if m == nil {
		return
	}
	m.notificationFailures.Inc()
	atomic.AddUint64(&m.notifyFailureCount, 1)
}

// ObserveSnapshotRebuild records a snapshot rebuild and its duration.
func (m *MetricsService) ObserveSnapshotRebuild(err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.snapshotRebuilds.WithLabelValues(result).Inc()
	m.snapshotDuration.Observe(duration.Seconds())
	atomic.AddUint64(&m.rebuildCount, 1)
}

// RecordChangeSignal counts signals published or received on the change feed.
func (m *MetricsService) RecordChangeSignal(direction, reason string) {
	if m == nil {
		return
	}
	m.changeSignals.WithLabelValues(direction, reason).Inc()
}

// Snapshot returns aggregated metrics suitable for the metrics endpoint.
func (m *MetricsService) Snapshot() SystemMetrics {
	if m == nil {
		return SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	totalLookups := hits + misses
	if totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		BehaviorsLogged:          atomic.LoadUint64(&m.behaviorCount),
		BadgesAwarded:            atomic.LoadUint64(&m.badgeCount),
		Redemptions:              atomic.LoadUint64(&m.redemptionCount),
		NotificationFailures:     atomic.LoadUint64(&m.notifyFailureCount),
		SnapshotRebuilds:         atomic.LoadUint64(&m.rebuildCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
