package notify

import (
	"context"

	"github.com/tbourn/consult-booking/internal/observability"
)

// Instrumented counts outcomes of an inner Notifier.
type Instrumented struct {
	next Notifier
}

// Instrument wraps n with notifications_total accounting.
func Instrument(n Notifier) *Instrumented { return &Instrumented{next: n} }

func (i *Instrumented) Send(ctx context.Context, n Notification) error {
	err := i.next.Send(ctx, n)
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	observability.Notifications.WithLabelValues(string(n.Kind), outcome).Inc()
	return err
}
