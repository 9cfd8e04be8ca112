package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sdlab1/n-ohlcv/internal/marketdata/syncer"
)

// Metrics holds all Prometheus metrics for ingestion and charting.
type Metrics struct {
	FetchRequests     *prometheus.CounterVec // labels: symbol
	FetchRetries      *prometheus.CounterVec // labels: symbol
	RateLimited       prometheus.Counter
	ConsistencyErrors *prometheus.CounterVec // labels: symbol
	BlocksPersisted   *prometheus.CounterVec // labels: symbol
	LastBlockTime     *prometheus.GaugeVec   // labels: symbol; open time of the newest persisted candle

	BlockStoredBytes prometheus.Histogram
	SQLiteCommitDur  prometheus.Histogram

	RebuildDur prometheus.Histogram
	BarsServed prometheus.Counter

	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	BlockEventsHeld          prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nohlcv_fetch_requests_total",
			Help: "Kline requests sent upstream",
		}, []string{"symbol"}),
		FetchRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nohlcv_fetch_retries_total",
			Help: "Failed polls scheduled for retry",
		}, []string{"symbol"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nohlcv_rate_limited_total",
			Help: "Upstream responses signalling rate limiting (429/418)",
		}),
		ConsistencyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nohlcv_consistency_errors_total",
			Help: "Batches rejected for non-contiguous open times",
		}, []string{"symbol"}),
		BlocksPersisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nohlcv_blocks_persisted_total",
			Help: "Full blocks committed to the store",
		}, []string{"symbol"}),
		LastBlockTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nohlcv_last_persisted_timestamp_seconds",
			Help: "Open time of the newest persisted candle",
		}, []string{"symbol"}),

		BlockStoredBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nohlcv_block_stored_bytes",
			Help:    "Encoded block size",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 8),
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nohlcv_sqlite_commit_duration_seconds",
			Help:    "Encode and commit latency per block",
			Buckets: prometheus.DefBuckets,
		}),

		RebuildDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nohlcv_rebuild_duration_seconds",
			Help:    "Chart rebuild latency (sync, load, resample)",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		BarsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nohlcv_bars_served_total",
			Help: "Bars returned by the chart API",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nohlcv_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nohlcv_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		BlockEventsHeld: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nohlcv_block_events_held_total",
			Help: "Block events held back while Redis publishing failed (the newest per symbol is sent later)",
		}),
	}

	reg.MustRegister(
		m.FetchRequests,
		m.FetchRetries,
		m.RateLimited,
		m.ConsistencyErrors,
		m.BlocksPersisted,
		m.LastBlockTime,
		m.BlockStoredBytes,
		m.SQLiteCommitDur,
		m.RebuildDur,
		m.BarsServed,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.BlockEventsHeld,
	)

	return m
}

// The Observe methods match the hook signatures of the sync engine, the
// store and the session so they can be assigned directly.

func (m *Metrics) ObserveRequest(symbol string) {
	m.FetchRequests.WithLabelValues(symbol).Inc()
}

func (m *Metrics) ObserveRetry(symbol string, _ int, err error) {
	m.FetchRetries.WithLabelValues(symbol).Inc()
	if errors.Is(err, syncer.ErrRateLimited) {
		m.RateLimited.Inc()
	}
}

func (m *Metrics) ObserveReject(symbol string, _ *syncer.ConsistencyError) {
	m.ConsistencyErrors.WithLabelValues(symbol).Inc()
}

func (m *Metrics) ObserveBlock(symbol string, _, lastTS int64) {
	m.BlocksPersisted.WithLabelValues(symbol).Inc()
	m.LastBlockTime.WithLabelValues(symbol).Set(float64(lastTS) / 1000)
}

func (m *Metrics) ObserveCommit(_ string, _, storedBytes int, dur time.Duration) {
	m.BlockStoredBytes.Observe(float64(storedBytes))
	m.SQLiteCommitDur.Observe(dur.Seconds())
}

func (m *Metrics) ObserveRebuild(_ string, _ int, dur time.Duration) {
	m.RebuildDur.Observe(dur.Seconds())
}

// SetBreakerState records a circuit breaker transition; opening counts as
// a trip.
func (m *Metrics) SetBreakerState(state int) {
	m.RedisCircuitBreakerState.Set(float64(state))
	if state == 1 {
		m.RedisCircuitBreakerTrips.Inc()
	}
}
