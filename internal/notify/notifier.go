// Package notify dispatches customer and team notifications. The booking core
// only depends on the Notifier interface; concrete backends deliver through
// SMTP, publish to an AMQP exchange for an external mailer, or just log.
//
// A Send that returns nil means the message was accepted by the backend
// (SMTP server accepted it, or the broker confirmed it). Callers treat any
// error as "not delivered" and must not set their sent flags.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/text/language"

	"github.com/tbourn/consult-booking/internal/config"
)

// Kind names one notification template.
type Kind string

const (
	PaymentConfirmation       Kind = "payment_confirmation"
	PaymentTeamNotification   Kind = "payment_team_notification"
	CalendarConfirmation      Kind = "calendar_confirmation"
	PaymentRecovery           Kind = "payment_recovery"
	IncompleteBookingReminder Kind = "incomplete_booking_reminder"
	MeetingReminder           Kind = "meeting_reminder"
	BookingCanceledTeam       Kind = "booking_canceled_team"
)

// Kinds lists every known kind.
var Kinds = []Kind{
	PaymentConfirmation,
	PaymentTeamNotification,
	CalendarConfirmation,
	PaymentRecovery,
	IncompleteBookingReminder,
	MeetingReminder,
	BookingCanceledTeam,
}

var (
	// ErrUnknownKind is returned for a kind with no template.
	ErrUnknownKind = errors.New("notify: unknown kind")
	// ErrNoRecipient is returned when To is empty.
	ErrNoRecipient = errors.New("notify: no recipient")
)

// Data is the template payload. Fields irrelevant to a kind stay empty.
type Data struct {
	SessionID     string     `json:"session_id"`
	CustomerName  string     `json:"customer_name"`
	CustomerEmail string     `json:"customer_email"`
	CustomerPhone string     `json:"customer_phone,omitempty"`
	Reference     string     `json:"reference,omitempty"`
	Amount        string     `json:"amount,omitempty"` // major units, e.g. "150.00"
	Currency      string     `json:"currency,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	BookingLink   string     `json:"booking_link,omitempty"`
	PaymentLink   string     `json:"payment_link,omitempty"`
	ScheduledAt   *time.Time `json:"scheduled_at,omitempty"`
	MeetingURL    string     `json:"meeting_url,omitempty"`
	RescheduleURL string     `json:"reschedule_url,omitempty"`
	CancelURL     string     `json:"cancel_url,omitempty"`
}

// Notification is one message to one recipient.
type Notification struct {
	Kind Kind   `json:"kind"`
	To   string `json:"to"`
	Data Data   `json:"data"`
}

// Notifier delivers notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// Closer is implemented by backends holding connections.
type Closer interface {
	Close() error
}

func validate(n Notification) error {
	if n.To == "" {
		return ErrNoRecipient
	}
	if _, ok := templates[n.Kind]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, n.Kind)
	}
	return nil
}

// New builds the configured backend wrapped with metrics. The returned close
// function releases backend connections and is never nil.
func New(cfg config.NotifyConfig) (Notifier, func() error, error) {
	var (
		n       Notifier
		closeFn = func() error { return nil }
	)
	switch cfg.Backend {
	case "smtp":
		n = NewSMTP(cfg.SMTP, cfg.From, language.English)
	case "amqp":
		a, err := DialAMQP(cfg.AMQP)
		if err != nil {
			return nil, nil, err
		}
		n, closeFn = a, a.Close
	case "", "log":
		n = NewLog()
	default:
		return nil, nil, fmt.Errorf("notify: unknown backend %q", cfg.Backend)
	}
	return Instrument(n), closeFn, nil
}
