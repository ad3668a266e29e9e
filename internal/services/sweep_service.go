// Package services – SweepService
//
// This file implements the three reconciliation sweeps. Each sweep selects a
// bounded batch of candidates, handles them one by one and sets the
// session's guard flag only after the notification was accepted. A failing
// item is logged and counted; it never aborts the batch and stays eligible
// for the next run.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/consult-booking/internal/domain"
	"github.com/tbourn/consult-booking/internal/integrations/paystack"
	"github.com/tbourn/consult-booking/internal/notify"
	"github.com/tbourn/consult-booking/internal/observability"
	"github.com/tbourn/consult-booking/internal/repo"
)

// Sweep names, used in logs, metrics and the CLI.
const (
	SweepAbandoned  = "abandoned"
	SweepIncomplete = "incomplete"
	SweepReminders  = "reminders"
)

// SweepResult summarizes one run.
type SweepResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

// SweepService runs the reconciliation sweeps.
type SweepService struct {
	DB       *gorm.DB
	Gateway  PaymentGateway
	Tokens   *TokenService
	Notifier Notifier

	AppBaseURL      string
	CallbackURL     string
	ReferencePrefix string

	BatchSize       int
	AbandonedAfter  time.Duration
	IncompleteAfter time.Duration
	ReminderLead    time.Duration
	ReminderWindow  time.Duration

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (s *SweepService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *SweepService) batch() int {
	if s.BatchSize <= 0 {
		return 100
	}
	return s.BatchSize
}

// Run dispatches by sweep name.
func (s *SweepService) Run(ctx context.Context, name string) (SweepResult, error) {
	switch name {
	case SweepAbandoned:
		return s.RecoverAbandonedPayments(ctx)
	case SweepIncomplete:
		return s.RemindIncompleteBookings(ctx)
	case SweepReminders:
		return s.SendMeetingReminders(ctx)
	}
	return SweepResult{}, validationf("unknown sweep %q", name)
}

// each applies fn to every candidate with per-item isolation.
func (s *SweepService) each(ctx context.Context, sweep string, items []domain.Session, fn func(context.Context, *domain.Session) (bool, error)) SweepResult {
	l := zerolog.Ctx(ctx)
	var res SweepResult
	for i := range items {
		if ctx.Err() != nil {
			break
		}
		sess := &items[i]
		res.Processed++
		sent, err := fn(ctx, sess)
		switch {
		case err != nil:
			res.Failed++
			observability.SweepItems.WithLabelValues(sweep, "failed").Inc()
			l.Error().Err(err).Str("sweep", sweep).Str("session_id", sess.ID).Msg("sweep item failed")
		case sent:
			res.Sent++
			observability.SweepItems.WithLabelValues(sweep, "sent").Inc()
		default:
			observability.SweepItems.WithLabelValues(sweep, "skipped").Inc()
		}
	}
	l.Info().Str("sweep", sweep).Int("processed", res.Processed).Int("sent", res.Sent).Int("failed", res.Failed).Msg("sweep finished")
	return res
}

// RecoverAbandonedPayments emails a fresh checkout link to customers whose
// payment stayed pending past AbandonedAfter. The session moves to abandoned
// only once the email was accepted.
func (s *SweepService) RecoverAbandonedPayments(ctx context.Context) (SweepResult, error) {
	ctx, span := otel.Tracer("services/SweepService").Start(ctx, "RecoverAbandonedPayments")
	defer span.End()

	cutoff := s.now().Add(-s.AbandonedAfter)
	items, err := repo.FindAbandonedCandidates(ctx, s.DB, cutoff, s.batch())
	if err != nil {
		return SweepResult{}, persistence("find abandoned candidates", err)
	}
	res := s.each(ctx, SweepAbandoned, items, s.recoverOne)
	span.SetAttributes(attribute.Int("sweep.processed", res.Processed), attribute.Int("sweep.failed", res.Failed))
	return res, nil
}

func (s *SweepService) recoverOne(ctx context.Context, sess *domain.Session) (bool, error) {
	// A recovery reference from an earlier failed run is reused: the gateway
	// rejects a second initialization of the same reference.
	authURL := sess.AuthorizationURL
	if sess.RecoveryReference == nil || authURL == "" {
		ref, err := NewReference(s.ReferencePrefix, s.now())
		if err != nil {
			return false, err
		}
		ref += "-R"
		initRes, err := s.Gateway.InitializeTransaction(ctx, paystack.InitializeRequest{
			Email:       sess.CustomerEmail,
			Amount:      sess.PaymentAmount,
			Currency:    sess.PaymentCurrency,
			Reference:   ref,
			CallbackURL: s.CallbackURL,
			Metadata:    map[string]any{"session_id": sess.ID, "recovery": true},
		})
		if err != nil {
			return false, &UpstreamError{Provider: "paystack", Err: err}
		}
		n, err := repo.SetRecoveryReference(ctx, s.DB, sess.ID, ref, initRes.AuthorizationURL)
		if err != nil {
			return false, persistence("set recovery reference", err)
		}
		if n == 0 {
			// Paid or handled by a concurrent run in the meantime.
			return false, nil
		}
		authURL = initRes.AuthorizationURL
	}

	data := sessionData(sess)
	data.PaymentLink = authURL
	if err := s.Notifier.Send(ctx, notify.Notification{Kind: notify.PaymentRecovery, To: sess.CustomerEmail, Data: data}); err != nil {
		return false, &UpstreamError{Provider: "notify", Err: err}
	}
	if _, err := repo.MarkAbandoned(ctx, s.DB, sess.ID); err != nil {
		return true, persistence("mark abandoned", err)
	}
	return true, nil
}

// RemindIncompleteBookings resends the booking link to customers who paid
// more than IncompleteAfter ago and have not booked. A missing or expired
// token is re-issued first so the emailed link works.
func (s *SweepService) RemindIncompleteBookings(ctx context.Context) (SweepResult, error) {
	ctx, span := otel.Tracer("services/SweepService").Start(ctx, "RemindIncompleteBookings")
	defer span.End()

	cutoff := s.now().Add(-s.IncompleteAfter)
	items, err := repo.FindIncompleteBookingCandidates(ctx, s.DB, cutoff, s.batch())
	if err != nil {
		return SweepResult{}, persistence("find incomplete booking candidates", err)
	}
	res := s.each(ctx, SweepIncomplete, items, s.remindIncompleteOne)
	span.SetAttributes(attribute.Int("sweep.processed", res.Processed), attribute.Int("sweep.failed", res.Failed))
	return res, nil
}

func (s *SweepService) remindIncompleteOne(ctx context.Context, sess *domain.Session) (bool, error) {
	var token string
	switch {
	case sess.BookingToken == nil,
		sess.BookingTokenUsed,
		sess.BookingTokenExpiresAt == nil,
		!s.now().Before(*sess.BookingTokenExpiresAt):
		t, _, err := s.Tokens.Issue(ctx, sess.ID)
		if err != nil {
			return false, err
		}
		token = t
	default:
		token = *sess.BookingToken
	}

	data := sessionData(sess)
	data.BookingLink = BookingLink(s.AppBaseURL, sess.ID, token)
	if err := s.Notifier.Send(ctx, notify.Notification{Kind: notify.IncompleteBookingReminder, To: sess.CustomerEmail, Data: data}); err != nil {
		return false, &UpstreamError{Provider: "notify", Err: err}
	}
	if _, err := repo.MarkIncompleteBookingEmailSent(ctx, s.DB, sess.ID); err != nil {
		return true, persistence("mark incomplete booking email sent", err)
	}
	return true, nil
}

// SendMeetingReminders emails customers whose meeting starts within the
// reminder window centred ReminderLead from now.
func (s *SweepService) SendMeetingReminders(ctx context.Context) (SweepResult, error) {
	ctx, span := otel.Tracer("services/SweepService").Start(ctx, "SendMeetingReminders")
	defer span.End()

	now := s.now()
	half := s.ReminderWindow / 2
	from, to := now.Add(s.ReminderLead-half), now.Add(s.ReminderLead+half)
	span.SetAttributes(attribute.String("sweep.from", from.Format(time.RFC3339)), attribute.String("sweep.to", to.Format(time.RFC3339)))

	items, err := repo.FindReminderCandidates(ctx, s.DB, from, to, s.batch())
	if err != nil {
		return SweepResult{}, persistence("find reminder candidates", err)
	}
	res := s.each(ctx, SweepReminders, items, func(ctx context.Context, sess *domain.Session) (bool, error) {
		trace.SpanFromContext(ctx).AddEvent("reminder", trace.WithAttributes(attribute.String("session.id", sess.ID)))
		if err := s.Notifier.Send(ctx, notify.Notification{Kind: notify.MeetingReminder, To: sess.CustomerEmail, Data: sessionData(sess)}); err != nil {
			return false, &UpstreamError{Provider: "notify", Err: err}
		}
		if _, err := repo.MarkReminderEmailSent(ctx, s.DB, sess.ID); err != nil {
			return true, persistence("mark reminder email sent", err)
		}
		return true, nil
	})
	return res, nil
}
