package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/gomail.v2"

	"github.com/tbourn/consult-booking/internal/config"
)

// ErrDeliveryUnknown marks a send abandoned at its deadline while the relay
// conversation was still running. The message may still be delivered.
var ErrDeliveryUnknown = errors.New("notify: smtp delivery outcome unknown")

// SMTP sends plain-text mail through one relay.
type SMTP struct {
	from    string
	locale  language.Tag
	timeout time.Duration

	// send delivers a composed message. Replaced in tests.
	send func(m *gomail.Message) error
}

// NewSMTP builds an SMTP notifier. Each Send opens its own connection.
func NewSMTP(cfg config.SMTPConfig, from string, locale language.Tag) *SMTP {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	return &SMTP{
		from:    from,
		locale:  locale,
		timeout: cfg.Timeout,
		send:    func(m *gomail.Message) error { return d.DialAndSend(m) },
	}
}

// Send renders n and hands it to the relay. gomail has no context support,
// so the call is bounded by ctx and the configured timeout. A delivery that
// outlives them is reported as ErrDeliveryUnknown and keeps running in the
// background, so it may still arrive. Callers that retry on error (the
// sweeps) therefore deliver at least once, never at most once.
func (s *SMTP) Send(ctx context.Context, n Notification) error {
	if err := validate(n); err != nil {
		return err
	}
	subject, body, err := Render(n, s.locale)
	if err != nil {
		return fmt.Errorf("notify: render %s: %w", n.Kind, err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", n.To)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- s.send(m) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("notify: smtp send %s: %w", n.Kind, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notify: smtp send %s: %w: %w", n.Kind, ErrDeliveryUnknown, ctx.Err())
	}
}
