package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process-wide Prometheus collectors named in spec.md's
// §6 metrics table. Counters are never throttled, unlike notifications.
type Metrics struct {
	CycleLatencySeconds *prometheus.HistogramVec
	OrdersTotal         *prometheus.CounterVec
	FillsTotal          *prometheus.CounterVec
	ProfitTotalUSDT     *prometheus.GaugeVec
	ErrorsTotal         *prometheus.CounterVec

	// HybridNetEdgePct is the cross-venue diagnostic estimator's last sample,
	// never fed by the live single-venue triangle path.
	HybridNetEdgePct *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CycleLatencySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cycle_latency_seconds",
			Help:    "Time from book update to attempt conclusion",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}, []string{"venue"}),

		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_total",
			Help: "Total orders submitted, by outcome",
		}, []string{"venue", "result"}),

		FillsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fills_total",
			Help: "Total order fills recorded",
		}, []string{"venue"}),

		ProfitTotalUSDT: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "profit_total_usdt",
			Help: "Cumulative realized PnL in USDT",
		}, []string{"venue"}),

		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total errors, by pipeline stage",
		}, []string{"venue", "stage"}),

		HybridNetEdgePct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hybrid_net_edge_pct",
			Help: "Read-only cross-venue net edge estimate, by leg triple",
		}, []string{"ab", "bc", "ac"}),
	}

	reg.MustRegister(
		m.CycleLatencySeconds,
		m.OrdersTotal,
		m.FillsTotal,
		m.ProfitTotalUSDT,
		m.ErrorsTotal,
		m.HybridNetEdgePct,
	)

	return m
}

// RecordAttempt updates cycle latency, fill counts, and cumulative profit
// for one concluded attempt. result is "filled", "skipped", or "failed".
func (m *Metrics) RecordAttempt(venue, result string, latency float64, fillCount int, realizedDelta float64) {
	m.CycleLatencySeconds.WithLabelValues(venue).Observe(latency)
	m.OrdersTotal.WithLabelValues(venue, result).Inc()
	if fillCount > 0 {
		m.FillsTotal.WithLabelValues(venue).Add(float64(fillCount))
	}
	if realizedDelta != 0 {
		m.ProfitTotalUSDT.WithLabelValues(venue).Add(realizedDelta)
	}
}

func (m *Metrics) RecordError(venue, stage string) {
	m.ErrorsTotal.WithLabelValues(venue, stage).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
