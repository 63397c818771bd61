package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Visibility metrics
	VisibilityLookupErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "issuemail_visibility_lookup_errors_total",
		Help: "Total number of group or role membership lookups that failed and were treated as not visible",
	}, []string{"kind"})
	RecipientsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "issuemail_recipients_dropped_total",
		Help: "Total number of recipients dropped by strict visibility grouping",
	})

	// Compiler metrics
	NotificationCells = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "issuemail_notification_cells_total",
		Help: "Total number of (bucket, format) cells turned into mail queue items",
	}, []string{"bucket", "format"})
	RenderFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "issuemail_render_fallbacks_total",
		Help: "Total number of renders that failed and degraded to fallback text",
	}, []string{"kind"})
	SendsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "issuemail_sends_skipped_total",
		Help: "Total number of queue item sends skipped because of configuration or data problems",
	}, []string{"reason"})

	// Style cache metrics
	StyleCacheLoads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "issuemail_stylecache_loads_total",
		Help: "Total number of stylesheet bundle computations",
	})
	StyleCacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "issuemail_stylecache_evictions_total",
		Help: "Total number of idle stylesheet evictions",
	})

	// Mail metrics
	MailQueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "issuemail_mail_queued_total",
		Help: "Total number of items added to the mail queue",
	}, []string{"host"})
	MailQueueDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "issuemail_mail_queue_dropped_total",
		Help: "Total number of items rejected by the mail queue",
	}, []string{"host"})
	MailSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "issuemail_mail_sent_total",
		Help: "Total number of mail queue items sent",
	}, []string{"host"})
	MailRetryScheduled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "issuemail_mail_retry_scheduled_total",
		Help: "Total number of mail queue item retries scheduled",
	}, []string{"host"})
	MailFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "issuemail_mail_failed_total",
		Help: "Total number of mail queue items moved to the error queue",
	}, []string{"host"})
	MailSendSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "issuemail_mail_send_success_total",
		Help: "Total number of successful SMTP sends",
	}, []string{"host"})
	MailSendFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "issuemail_mail_send_failure_total",
		Help: "Total number of failed SMTP sends",
	}, []string{"host"})
	MailCircuitState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "issuemail_mail_circuit_state",
		Help: "State of the SMTP circuit breaker (0=closed, 1=open, 2=half-open)",
	}, []string{"host"})
	MailCircuitRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "issuemail_mail_circuit_rejections_total",
		Help: "Total number of sends rejected while the SMTP circuit breaker was open",
	}, []string{"host"})

	// Event listener metrics
	EventsConsumed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "issuemail_events_consumed_total",
		Help: "Total number of inbound domain events consumed, by type and outcome",
	}, []string{"type", "outcome"})
)

func init() {
	prometheus.MustRegister(VisibilityLookupErrors)
	prometheus.MustRegister(RecipientsDropped)
	prometheus.MustRegister(NotificationCells)
	prometheus.MustRegister(RenderFallbacks)
	prometheus.MustRegister(SendsSkipped)
	prometheus.MustRegister(StyleCacheLoads)
	prometheus.MustRegister(StyleCacheEvictions)
	prometheus.MustRegister(MailQueued)
	prometheus.MustRegister(MailQueueDropped)
	prometheus.MustRegister(MailSent)
	prometheus.MustRegister(MailRetryScheduled)
	prometheus.MustRegister(MailFailed)
	prometheus.MustRegister(MailSendSuccess)
	prometheus.MustRegister(MailSendFailure)
	prometheus.MustRegister(MailCircuitState)
	prometheus.MustRegister(MailCircuitRejections)
	prometheus.MustRegister(EventsConsumed)
}

// MetricsHandler exposes the default registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
