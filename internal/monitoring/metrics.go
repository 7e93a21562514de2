package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	registry prometheus.Gatherer

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 验证指标
	ValidationsTotal   *prometheus.CounterVec
	ValidationDuration prometheus.Histogram
	ProbesTotal        *prometheus.CounterVec
	ProbeDuration      *prometheus.HistogramVec
	ProbesInFlight     *prometheus.GaugeVec

	// 缓存与黑名单
	CacheHits    *prometheus.CounterVec
	DNSBLLookups *prometheus.CounterVec

	// 批量任务
	BatchJobs       *prometheus.CounterVec
	GreylistRetries *prometheus.CounterVec
	DelayedQueue    prometheus.Gauge

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter
}

// NewMetrics 创建监控指标并注册到给定的注册表
//
// reg 为 nil 时使用 Prometheus 默认注册表。
func NewMetrics(reg *prometheus.Registry) *Metrics {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	factory := promauto.With(registerer)

	return &Metrics{
		registry: gatherer,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailverify_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailverify_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		ValidationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailverify_validations_total",
				Help: "Total number of address validations by final status",
			},
			[]string{"status", "sub_status", "source"},
		),

		ValidationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mailverify_validation_duration_seconds",
				Help:    "End to end validation duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
			},
		),

		ProbesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailverify_smtp_probes_total",
				Help: "Total number of SMTP probes by outcome",
			},
			[]string{"status", "sub_status"},
		),

		ProbeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailverify_smtp_probe_duration_seconds",
				Help:    "SMTP probe duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"provider_class"},
		),

		ProbesInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mailverify_smtp_probes_in_flight",
				Help: "Number of SMTP probes currently running",
			},
			[]string{"provider_class"},
		),

		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailverify_cache_hits_total",
				Help: "Total number of cache short-circuits by kind",
			},
			[]string{"kind"},
		),

		DNSBLLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailverify_dnsbl_lookups_total",
				Help: "Total number of DNSBL zone lookups by result",
			},
			[]string{"zone", "result"},
		),

		BatchJobs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailverify_batch_jobs_total",
				Help: "Total number of batch job status transitions",
			},
			[]string{"status"},
		),

		GreylistRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailverify_greylist_retries_total",
				Help: "Total number of greylist retries by final status",
			},
			[]string{"status"},
		),

		DelayedQueue: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailverify_delayed_queue_size",
				Help: "Number of addresses waiting for a greylist retry",
			},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailverify_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailverify_panics_total",
				Help: "Total number of recovered panics",
			},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordValidation 记录一次验证的最终结果
func (m *Metrics) RecordValidation(status, subStatus, source string, duration time.Duration) {
	m.ValidationsTotal.WithLabelValues(status, subStatus, source).Inc()
	m.ValidationDuration.Observe(duration.Seconds())
}

// RecordProbe 记录一次 SMTP 探测
func (m *Metrics) RecordProbe(status, subStatus, providerClass string, duration time.Duration) {
	m.ProbesTotal.WithLabelValues(status, subStatus).Inc()
	m.ProbeDuration.WithLabelValues(providerClass).Observe(duration.Seconds())
}

// RecordCacheHit 记录缓存命中
func (m *Metrics) RecordCacheHit(kind string) {
	m.CacheHits.WithLabelValues(kind).Inc()
}

// RecordBatchJob 记录批量任务状态变化
func (m *Metrics) RecordBatchJob(status string) {
	m.BatchJobs.WithLabelValues(status).Inc()
}

// RecordGreylistRetry 记录灰名单重试结果
func (m *Metrics) RecordGreylistRetry(status string) {
	m.GreylistRetries.WithLabelValues(status).Inc()
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
