package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Sync cycle metrics
	SyncsTotal     *prometheus.CounterVec
	SyncDuration   *prometheus.HistogramVec
	RecordsSynced  prometheus.Counter
	TokenFallbacks prometheus.Counter

	// Read path metrics
	CacheReads *prometheus.CounterVec

	// Enrichment metrics
	StatsRefreshes *prometheus.CounterVec
	StatsApplied   prometheus.Counter
	StatsSkipped   prometheus.Counter

	// Mirror population metrics
	UsersCached     prometheus.Gauge
	UsersTombstoned prometheus.Gauge
}

// NewMetrics creates metrics registered against the default registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates metrics registered against reg. Tests pass a fresh
// registry so repeated construction cannot collide.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SyncsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_syncs_total",
				Help: "Total number of sync cycles by type and outcome",
			},
			[]string{"type", "status"},
		),

		SyncDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mirror_sync_duration_seconds",
				Help:    "Duration of sync cycles",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type"},
		),

		RecordsSynced: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mirror_records_synced_total",
				Help: "Total number of directory records upserted by sync cycles",
			},
		),

		TokenFallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mirror_token_fallbacks_total",
				Help: "Total number of expired-token fallbacks to a full load",
			},
		),

		CacheReads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_cache_reads_total",
				Help: "Total number of read operations by path",
			},
			[]string{"path"},
		),

		StatsRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_stats_refreshes_total",
				Help: "Total number of usage-stats refresh attempts by feed status",
			},
			[]string{"status"},
		),

		StatsApplied: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mirror_stats_applied_total",
				Help: "Total number of usage records merged into cached users",
			},
		),

		StatsSkipped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mirror_stats_skipped_total",
				Help: "Total number of usage records with no matching cached user",
			},
		),

		UsersCached: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mirror_users_cached",
				Help: "Number of non-tombstoned users in the mirror",
			},
		),

		UsersTombstoned: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mirror_users_tombstoned",
				Help: "Number of tombstoned users in the mirror",
			},
		),
	}
}

// RecordSync records one sync cycle
func (m *Metrics) RecordSync(syncType, status string, duration float64, records int) {
	m.SyncsTotal.WithLabelValues(syncType, status).Inc()
	m.SyncDuration.WithLabelValues(syncType).Observe(duration)
	m.RecordsSynced.Add(float64(records))
}

// RecordTokenFallback records an expired-token fallback
func (m *Metrics) RecordTokenFallback() {
	m.TokenFallbacks.Inc()
}

// RecordRead records a read by path ("cached" or "synced")
func (m *Metrics) RecordRead(path string) {
	m.CacheReads.WithLabelValues(path).Inc()
}

// RecordStatsRefresh records a stats refresh attempt
func (m *Metrics) RecordStatsRefresh(status string, applied, skipped int) {
	m.StatsRefreshes.WithLabelValues(status).Inc()
	m.StatsApplied.Add(float64(applied))
	m.StatsSkipped.Add(float64(skipped))
}

// UpdatePopulation updates the mirror population gauges
func (m *Metrics) UpdatePopulation(cached, tombstoned int) {
	m.UsersCached.Set(float64(cached))
	m.UsersTombstoned.Set(float64(tombstoned))
}
