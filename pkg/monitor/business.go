package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics 定义业务监控指标
type BusinessMetrics struct {
	TxSubmittedTotal       *prometheus.CounterVec
	TxSendAttemptsTotal    *prometheus.CounterVec
	TxStatusTransitions    *prometheus.CounterVec
	WatcherTickDuration    prometheus.Histogram
	BusPublishFailureTotal *prometheus.CounterVec
}

// Global Metrics Instance
// 未调用 Init 时为 nil，各 Record* 方法对 nil 安全
var Business *BusinessMetrics

// InitBusinessMetrics 初始化业务指标
func InitBusinessMetrics() {
	Business = &BusinessMetrics{
		TxSubmittedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tx_submitted_total",
			Help: "Submission outcomes per chain (sent / failed)",
		}, []string{"chain", "result"}),
		TxSendAttemptsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tx_send_attempts_total",
			Help: "Number of send attempts including retries",
		}, []string{"chain"}),
		TxStatusTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tx_status_transitions_total",
			Help: "Transaction status transitions by target status",
		}, []string{"chain", "status"}),
		WatcherTickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tx_watcher_tick_duration_seconds",
			Help:    "Duration of a watcher scheduler tick",
			Buckets: prometheus.DefBuckets,
		}),
		BusPublishFailureTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tx_bus_publish_failures_total",
			Help: "Event bus publish failures per topic",
		}, []string{"topic"}),
	}
}

func (m *BusinessMetrics) RecordSubmitted(chain, result string) {
	if m == nil {
		return
	}
	m.TxSubmittedTotal.WithLabelValues(chain, result).Inc()
}

func (m *BusinessMetrics) RecordSendAttempt(chain string) {
	if m == nil {
		return
	}
	m.TxSendAttemptsTotal.WithLabelValues(chain).Inc()
}

func (m *BusinessMetrics) RecordTransition(chain, status string) {
	if m == nil {
		return
	}
	m.TxStatusTransitions.WithLabelValues(chain, status).Inc()
}

func (m *BusinessMetrics) ObserveTick(seconds float64) {
	if m == nil {
		return
	}
	m.WatcherTickDuration.Observe(seconds)
}

func (m *BusinessMetrics) RecordPublishFailure(topic string) {
	if m == nil {
		return
	}
	m.BusPublishFailureTotal.WithLabelValues(topic).Inc()
}
