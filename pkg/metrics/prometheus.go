package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	updatesEmitted *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	fanoutDrops    *prometheus.CounterVec
	lastPrice      *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
	connected      prometheus.Gauge
	watchedSymbols prometheus.Gauge
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		updatesEmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpulse_updates_emitted_total",
				Help: "Total number of price updates routed to a backend",
			},
			[]string{"backend", "symbol"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		fanoutDrops: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpulse_fanout_drops_total",
				Help: "Updates dropped because a fan-out consumer was full",
			},
			[]string{"kind"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stockpulse_last_price",
				Help: "Last emitted price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		connected: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "stockpulse_feed_connected",
				Help: "1 when the simulated feed is connected",
			},
		),
		watchedSymbols: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "stockpulse_watched_symbols",
				Help: "Number of symbols currently tracked by the registry",
			},
		),
	}
}

// RecordUpdateEmitted records an update routed to a backend.
func (r *Recorder) RecordUpdateEmitted(backend, symbol string) {
	r.updatesEmitted.WithLabelValues(backend, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordFanoutDrop records an update dropped on backpressure.
func (r *Recorder) RecordFanoutDrop(kind string) {
	r.fanoutDrops.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last emitted price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// SetConnected reflects the feed connection gauge.
func (r *Recorder) SetConnected(connected bool) {
	if connected {
		r.connected.Set(1)
		return
	}
	r.connected.Set(0)
}

// SetWatchedSymbols reflects the registry size gauge.
func (r *Recorder) SetWatchedSymbols(n int) {
	r.watchedSymbols.Set(float64(n))
}
