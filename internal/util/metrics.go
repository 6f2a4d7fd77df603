package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentLinksCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_links_created_total",
		Help: "Total number of payment links created",
	})

	PaymentLinkFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_link_failures_total",
		Help: "Total number of rejected or failed payment link requests",
	}, []string{"reason"})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Total number of payment webhook events by kind and outcome",
	}, []string{"kind", "outcome"})

	PaymentsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_completed_total",
		Help: "Total number of payments transitioned to completed",
	})

	PaymentsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_failed_total",
		Help: "Total number of payments transitioned to failed",
	})

	ReconciliationOrphansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_reconciliation_orphans_total",
		Help: "Completion webhooks that matched no pending or completed payment",
	})

	ReconciliationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_reconciliation_latency_seconds",
		Help:    "Latency of the completed payment to enrollment transaction",
		Buckets: prometheus.DefBuckets,
	})

	VerifyEnrollmentWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verify_enrollment_waits_total",
		Help: "Bounded waits taken by verify-enrollment, by outcome",
	}, []string{"outcome"})

	EnrollmentsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollments_created_total",
		Help: "Total number of enrollments created",
	}, []string{"source"})

	EnrollmentsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollments_rejected_total",
		Help: "Total number of rejected enrollment attempts",
	}, []string{"reason"})

	InvoicesIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invoices_issued_total",
		Help: "Total number of invoices issued",
	})

	NotificationsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_created_total",
		Help: "Total number of notifications persisted",
	}, []string{"type"})

	NotificationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_failed_total",
		Help: "Total number of notifications that could not be persisted",
	}, []string{"type"})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "course_events_published_total",
		Help: "Domain events published, by type and outcome",
	}, []string{"event_type", "outcome"})

	ChatMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Chat messages handled, by outcome",
	}, []string{"outcome"})

	ChatConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connections",
		Help: "Currently connected chat websocket clients",
	})

	ChatDroppedClientsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_dropped_clients_total",
		Help: "Clients dropped because their send buffer was full",
	})

	TranscriptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcriptions_total",
		Help: "Transcription attempts by outcome",
	}, []string{"outcome"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})

	CircuitBreakerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_requests_total",
		Help: "Requests passing through a circuit breaker, by result",
	}, []string{"name", "result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
