package observability

import "github.com/prometheus/client_golang/prometheus"

// Business collectors. Label values are fixed sets chosen by the callers so
// cardinality stays bounded.
var (
	// PaymentCompletions counts guard outcomes by entry point
	// (redirect|webhook) and result (completed|already_processed|not_found|error).
	PaymentCompletions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_completions_total",
			Help: "Payment completion attempts by source and result.",
		},
		[]string{"source", "result"},
	)

	// WebhookSignatureFailures counts rejected webhook deliveries.
	WebhookSignatureFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_signature_failures_total",
			Help: "Webhook deliveries rejected for a missing or invalid signature.",
		},
		[]string{"provider"},
	)

	// BookingTokens counts token operations (issued|consumed|duplicate|rejected).
	BookingTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_tokens_total",
			Help: "Booking token operations.",
		},
		[]string{"op"},
	)

	// SweepItems counts per-item sweep outcomes (sent|failed).
	SweepItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_items_total",
			Help: "Reconciliation sweep items by sweep and outcome.",
		},
		[]string{"sweep", "outcome"},
	)

	// Notifications counts dispatch attempts by kind and outcome (sent|failed).
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification dispatch attempts.",
		},
		[]string{"kind", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(PaymentCompletions, WebhookSignatureFailures, BookingTokens, SweepItems, Notifications)
}
