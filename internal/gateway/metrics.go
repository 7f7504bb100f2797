package gateway

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// unmatchedService は転送先が決まる前に失敗したリクエストのラベル値。
// 未登録のサービス名をラベルにしないことでカーディナリティを抑える。
const unmatchedService = "unmatched"

// outcomeResponded は転送に成功したリクエストのラベル値。
const outcomeResponded = "responded"

// Metrics はGatewayのPrometheusメトリクス。
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	registry        *prometheus.Registry
}

// NewMetrics は専用のレジストリを持つMetricsを生成する。
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "requests_total",
			Help:      "Total number of gateway requests by service and outcome",
		},
		[]string{"service", "outcome"},
	)
	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Gateway request duration in seconds",
			Buckets: []float64{
				.001, .005, .01, .025, .05,
				.1, .25, .5, 1, 2.5, 5, 10, 30,
			},
		},
		[]string{"service", "outcome"},
	)

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// observe はリクエスト1件の結果を記録する。
func (m *Metrics) observe(service, outcome string, elapsed time.Duration) {
	if service == "" {
		service = unmatchedService
	}
	m.requestsTotal.WithLabelValues(service, outcome).Inc()
	m.requestDuration.WithLabelValues(service, outcome).Observe(elapsed.Seconds())
}

// Handler は /metrics 用のHTTPハンドラを返す。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
