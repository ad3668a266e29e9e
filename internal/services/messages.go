package services

import (
	"context"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tbourn/consult-booking/internal/domain"
	"github.com/tbourn/consult-booking/internal/notify"
)

// BookingLink is the emailed link that opens the scheduling page for one
// session/token pair.
func BookingLink(appBaseURL, sessionID, token string) string {
	q := url.Values{}
	q.Set("sessionId", sessionID)
	q.Set("token", token)
	return appBaseURL + "/schedule?" + q.Encode()
}

// FormatAmount renders minor units as a two-decimal major amount.
func FormatAmount(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// sessionData fills the notification payload shared by every kind.
func sessionData(s *domain.Session) notify.Data {
	return notify.Data{
		SessionID:     s.ID,
		CustomerName:  s.CustomerName,
		CustomerEmail: s.CustomerEmail,
		CustomerPhone: s.CustomerPhone,
		Reference:     s.PaymentReference,
		Amount:        FormatAmount(s.PaymentAmount),
		Currency:      s.PaymentCurrency,
		PaidAt:        s.PaidAt,
		ScheduledAt:   s.CalendlyScheduledAt,
		MeetingURL:    s.MeetingURL,
		RescheduleURL: s.RescheduleURL,
		CancelURL:     s.CancelURL,
	}
}

// dispatch sends n and logs a failure. Side-effect failures never change the
// outcome of the state transition that triggered them.
func dispatch(ctx context.Context, n Notifier, note notify.Notification) error {
	if n == nil {
		return nil
	}
	if note.To == "" {
		zerolog.Ctx(ctx).Warn().Str("kind", string(note.Kind)).Str("session_id", note.Data.SessionID).Msg("notification skipped: no recipient")
		return nil
	}
	if err := n.Send(ctx, note); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Str("kind", string(note.Kind)).
			Str("session_id", note.Data.SessionID).
			Msg("notification failed")
		return err
	}
	return nil
}
