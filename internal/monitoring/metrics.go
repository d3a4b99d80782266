package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 地址指标
	AddressesCreated prometheus.Counter
	AddressesDeleted prometheus.Counter
	TokensRotated    prometheus.Counter

	// 邮件指标
	MessagesReceived prometheus.Counter
	MessagesEvicted  prometheus.Counter
	MessagesExpired  prometheus.Counter

	// 提取指标
	OTPCodesExtracted prometheus.Counter
	OTPLinksExtracted prometheus.Counter
	OTPWaitResults    *prometheus.CounterVec

	// Webhook 投递指标
	WebhookDeliveries      *prometheus.CounterVec
	WebhookDeliverySeconds prometheus.Histogram

	// SMTP 指标
	SMTPMessagesAccepted prometheus.Counter
	SMTPRecipientsDenied prometheus.Counter

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec

	// 错误指标
	PanicsTotal prometheus.Counter
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "otpinbox_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "otpinbox_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		AddressesCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "otpinbox_addresses_created_total",
				Help: "Total number of inbox addresses created",
			},
		),

		AddressesDeleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "otpinbox_addresses_deleted_total",
				Help: "Total number of inbox addresses deleted",
			},
		),

		TokensRotated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "otpinbox_tokens_rotated_total",
				Help: "Total number of access token rotations",
			},
		),

		MessagesReceived: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "otpinbox_messages_received_total",
				Help: "Total number of messages ingested",
			},
		),

		MessagesEvicted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "otpinbox_messages_evicted_total",
				Help: "Total number of messages evicted by per-address cap",
			},
		),

		MessagesExpired: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "otpinbox_messages_expired_total",
				Help: "Total number of messages removed by retention sweep",
			},
		),

		OTPCodesExtracted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "otpinbox_otp_codes_extracted_total",
				Help: "Total number of verification codes extracted",
			},
		),

		OTPLinksExtracted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "otpinbox_otp_links_extracted_total",
				Help: "Total number of verification links extracted",
			},
		),

		OTPWaitResults: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "otpinbox_otp_wait_results_total",
				Help: "Long-poll wait outcomes",
			},
			[]string{"outcome"},
		),

		WebhookDeliveries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "otpinbox_webhook_deliveries_total",
				Help: "Webhook delivery outcomes",
			},
			[]string{"outcome"},
		),

		WebhookDeliverySeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "otpinbox_webhook_delivery_duration_seconds",
				Help:    "Webhook delivery request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		SMTPMessagesAccepted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "otpinbox_smtp_messages_accepted_total",
				Help: "Total number of SMTP messages accepted",
			},
		),

		SMTPRecipientsDenied: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "otpinbox_smtp_recipients_denied_total",
				Help: "Total number of SMTP recipients rejected",
			},
		),

		RateLimitBlocks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "otpinbox_rate_limit_blocks_total",
				Help: "Total number of rate limited requests",
			},
			[]string{"scope"},
		),

		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "otpinbox_panics_total",
				Help: "Total number of recovered panics",
			},
		),
	}
}

// Handler 返回 Prometheus 指标的 HTTP 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
