// Package services – CalendarService
//
// This file applies verified scheduling webhooks to sessions. A booking
// consumes the session's token in the same write that marks the event
// booked; only the delivery that performed that write fetches event details
// and emails the customer. Cancellations never re-enable the used token.
//
// A reschedule is a cancel of the old invitee flagged as rescheduled plus a
// create for the new invitee naming the old one. The flagged cancel is a
// no-op; the create moves the booking to the new event without touching the
// token. Either delivery order ends in the same state.
package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/consult-booking/internal/domain"
	"github.com/tbourn/consult-booking/internal/integrations/calendly"
	"github.com/tbourn/consult-booking/internal/notify"
	"github.com/tbourn/consult-booking/internal/repo"
)

// CalendarOutcome describes what HandleEvent did.
type CalendarOutcome string

const (
	CalendarIgnored     CalendarOutcome = "ignored"
	CalendarBooked      CalendarOutcome = "booked"
	CalendarDuplicate   CalendarOutcome = "duplicate"
	CalendarCanceled    CalendarOutcome = "canceled"
	CalendarRescheduled CalendarOutcome = "rescheduled"
)

// CalendarService handles invitee.created and invitee.canceled events.
type CalendarService struct {
	DB        *gorm.DB
	Tokens    *TokenService
	Events    EventFetcher
	Notifier  Notifier
	TeamEmail string
}

// HandleEvent applies ev. Unknown event types and events without a session
// are ignored with a log line.
func (s *CalendarService) HandleEvent(ctx context.Context, ev calendly.Event) (CalendarOutcome, error) {
	ctx, span := otel.Tracer("services/CalendarService").Start(ctx, "HandleEvent",
		trace.WithAttributes(attribute.String("webhook.event", ev.Event)))
	defer span.End()

	switch ev.Event {
	case calendly.EventInviteeCreated:
		return s.booked(ctx, ev.Payload)
	case calendly.EventInviteeCanceled:
		return s.canceled(ctx, ev.Payload)
	default:
		zerolog.Ctx(ctx).Debug().Str("event", ev.Event).Msg("calendar webhook ignored")
		return CalendarIgnored, nil
	}
}

func (s *CalendarService) booked(ctx context.Context, p calendly.Invitee) (CalendarOutcome, error) {
	l := zerolog.Ctx(ctx)
	sessionID := p.Tracking.SessionID()
	if sessionID == "" && p.OldInvitee == "" {
		l.Warn().Str("invitee", p.URI).Msg("invitee.created without session tracking")
		return CalendarIgnored, nil
	}

	var (
		sess *domain.Session
		err  error
	)
	if sessionID != "" {
		sess, err = repo.GetSession(ctx, s.DB, sessionID)
	} else {
		sess, err = repo.GetSessionByInviteeURI(ctx, s.DB, p.OldInvitee)
	}
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn().Str("session_id", sessionID).Str("old_invitee", p.OldInvitee).Msg("invitee.created for unknown session")
			return CalendarIgnored, ErrSessionNotFound
		}
		return CalendarIgnored, persistence("get session", err)
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("session.id", sess.ID))

	if p.OldInvitee != "" {
		return s.rescheduled(ctx, sess, p)
	}
	if sess.BookingToken == nil {
		l.Warn().Str("session_id", sess.ID).Str("payment_status", sess.PaymentStatus).Msg("invitee.created for session without a booking token")
		return CalendarIgnored, ErrInvalidToken
	}

	consumed, err := s.Tokens.Consume(ctx, sess.ID, *sess.BookingToken)
	if err != nil {
		return CalendarIgnored, err
	}
	if !consumed {
		l.Info().Str("session_id", sess.ID).Msg("duplicate invitee.created ignored")
		return CalendarDuplicate, nil
	}

	return CalendarBooked, s.confirm(ctx, sess.ID, p)
}

// rescheduled moves a booked session to the replacement invitee p. Only the
// delivery that performs the move fetches details and emails the customer.
func (s *CalendarService) rescheduled(ctx context.Context, sess *domain.Session, p calendly.Invitee) (CalendarOutcome, error) {
	l := zerolog.Ctx(ctx)
	n, err := repo.RescheduleBooking(ctx, s.DB, sess.ID, p.OldInvitee, eventDetails(p))
	if err != nil {
		return CalendarIgnored, persistence("reschedule booking", err)
	}
	if n == 0 {
		l.Info().Str("session_id", sess.ID).Str("old_invitee", p.OldInvitee).Msg("duplicate or stale reschedule ignored")
		return CalendarDuplicate, nil
	}
	l.Info().Str("session_id", sess.ID).Str("event_uri", p.Event).Msg("booking rescheduled")
	return CalendarRescheduled, s.confirm(ctx, sess.ID, p)
}

// confirm fetches the scheduled event, stores its details and sends the
// calendar confirmation. A failed fetch keeps the booking and withholds the
// email.
func (s *CalendarService) confirm(ctx context.Context, sessionID string, p calendly.Invitee) error {
	l := zerolog.Ctx(ctx)
	details := eventDetails(p)
	event, ferr := s.Events.GetScheduledEvent(ctx, p.Event)
	if ferr == nil {
		details.ScheduledAt = event.StartTime
		details.MeetingURL = event.MeetingURL()
	}
	if err := repo.SaveEventDetails(ctx, s.DB, sessionID, details); err != nil {
		return persistence("save event details", err)
	}
	if ferr != nil {
		l.Error().Err(&UpstreamError{Provider: "calendly", Err: ferr}).
			Str("session_id", sessionID).
			Str("event_uri", p.Event).
			Msg("event detail fetch failed; confirmation email not sent")
		return nil
	}

	fresh, err := repo.GetSession(ctx, s.DB, sessionID)
	if err != nil {
		return persistence("get session", err)
	}
	_ = dispatch(ctx, s.Notifier, notify.Notification{
		Kind: notify.CalendarConfirmation,
		To:   fresh.CustomerEmail,
		Data: sessionData(fresh),
	})
	return nil
}

func eventDetails(p calendly.Invitee) domain.EventDetails {
	return domain.EventDetails{
		EventURI:      p.Event,
		InviteeURI:    p.URI,
		RescheduleURL: p.RescheduleURL,
		CancelURL:     p.CancelURL,
	}
}

func (s *CalendarService) canceled(ctx context.Context, p calendly.Invitee) (CalendarOutcome, error) {
	l := zerolog.Ctx(ctx)
	if p.Rescheduled {
		l.Info().Str("event_uri", p.Event).Str("new_invitee", p.NewInvitee).Msg("invitee.canceled for a reschedule; booking kept")
		return CalendarRescheduled, nil
	}

	var (
		sess *domain.Session
		err  error
	)
	if id := p.Tracking.SessionID(); id != "" {
		sess, err = repo.GetSession(ctx, s.DB, id)
	} else {
		sess, err = repo.GetSessionByEventURI(ctx, s.DB, p.Event)
	}
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn().Str("event_uri", p.Event).Msg("invitee.canceled for unknown session")
			return CalendarIgnored, ErrSessionNotFound
		}
		return CalendarIgnored, persistence("get session", err)
	}

	n, err := repo.CancelBooking(ctx, s.DB, sess.ID)
	if err != nil {
		return CalendarIgnored, persistence("cancel booking", err)
	}
	if n == 0 {
		l.Info().Str("session_id", sess.ID).Msg("duplicate invitee.canceled ignored")
		return CalendarDuplicate, nil
	}

	data := sessionData(sess)
	_ = dispatch(ctx, s.Notifier, notify.Notification{Kind: notify.BookingCanceledTeam, To: s.TeamEmail, Data: data})
	l.Info().Str("session_id", sess.ID).Msg("booking canceled; token stays used")
	return CalendarCanceled, nil
}
