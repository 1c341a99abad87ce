package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sos"

// Metrics SOS 服务的 Prometheus 指标（独立 Registry）
// 所有方法对 nil 接收者安全，组件在测试中可以不注入
type Metrics struct {
	registry *prometheus.Registry

	AlertAttempts       *prometheus.CounterVec
	AlertDuration       prometheus.Histogram
	Notifications       *prometheus.CounterVec
	LedgerSubmissions   *prometheus.CounterVec
	LocationFixes       *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New 创建指标集合
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		AlertAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_attempts_total",
			Help:      "Total number of emergency alert attempts by outcome",
		}, []string{"outcome"}),
		AlertDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "alert_duration_seconds",
			Help:      "Duration of emergency alert attempts in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 180},
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Total number of per-contact notification deliveries",
		}, []string{"status"}),
		LedgerSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_submissions_total",
			Help:      "Total number of ledger alert submissions",
		}, []string{"status"}),
		LocationFixes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_fixes_total",
			Help:      "Total number of one-shot location fixes",
		}, []string{"source", "status"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status_code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	reg.MustRegister(
		m.AlertAttempts,
		m.AlertDuration,
		m.Notifications,
		m.LedgerSubmissions,
		m.LocationFixes,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

// Registry 返回底层 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordAlertAttempt outcome: success / error / rejected
func (m *Metrics) RecordAlertAttempt(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.AlertAttempts.WithLabelValues(outcome).Inc()
	if duration > 0 {
		m.AlertDuration.Observe(duration.Seconds())
	}
}

// RecordNotification status: sent / failed
func (m *Metrics) RecordNotification(status string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(status).Inc()
}

// RecordLedgerSubmission status: success / failed / insufficient_funds
func (m *Metrics) RecordLedgerSubmission(status string) {
	if m == nil {
		return
	}
	m.LedgerSubmissions.WithLabelValues(status).Inc()
}

// RecordLocationFix source: cache / platform
func (m *Metrics) RecordLocationFix(source, status string) {
	if m == nil {
		return
	}
	m.LocationFixes.WithLabelValues(source, status).Inc()
}

// RecordHTTPRequest 记录一次 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
