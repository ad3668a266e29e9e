// Package services – TokenService
//
// This file implements the single-use booking token. A token is issued once
// payment completes, checked read-only when the scheduling page opens, and
// consumed when the calendar provider reports the booking. Consumption and
// booking confirmation are the same conditional write, so duplicate webhook
// deliveries become no-ops.
package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/consult-booking/internal/domain"
	"github.com/tbourn/consult-booking/internal/notify"
	"github.com/tbourn/consult-booking/internal/observability"
	"github.com/tbourn/consult-booking/internal/repo"
)

// tokenBytes is the entropy of a booking token (hex-encoded to 64 chars).
const tokenBytes = 32

// TokenService issues, verifies and consumes booking tokens.
type TokenService struct {
	DB  *gorm.DB
	TTL time.Duration

	// Reissue resends the booking link through Notifier.
	Notifier   Notifier
	AppBaseURL string

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Issue stores a fresh token for a completed session, superseding any prior
// token and clearing the used flag.
func (s *TokenService) Issue(ctx context.Context, sessionID string) (string, time.Time, error) {
	ctx, span := otel.Tracer("services/TokenService").Start(ctx, "Issue",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	token, err := newToken()
	if err != nil {
		return "", time.Time{}, err
	}
	expiresAt := s.now().Add(s.TTL)

	n, err := repo.SetBookingToken(ctx, s.DB, sessionID, token, expiresAt)
	if err != nil {
		return "", time.Time{}, persistence("set booking token", err)
	}
	if n == 0 {
		if _, gerr := repo.GetSession(ctx, s.DB, sessionID); gerr != nil {
			if errors.Is(gerr, repo.ErrNotFound) {
				return "", time.Time{}, ErrSessionNotFound
			}
			return "", time.Time{}, persistence("get session", gerr)
		}
		return "", time.Time{}, ErrPaymentNotCompleted
	}
	observability.BookingTokens.WithLabelValues("issued").Inc()
	return token, expiresAt, nil
}

// Verify checks a session/token pair without consuming it. Checks run in a
// fixed order so the caller can show one precise reason: pair match,
// payment completed, token unused, event not booked, token not expired.
func (s *TokenService) Verify(ctx context.Context, sessionID, token string) (*domain.Session, error) {
	ctx, span := otel.Tracer("services/TokenService").Start(ctx, "Verify",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	if sessionID == "" || token == "" {
		return nil, ErrInvalidToken
	}
	sess, err := repo.GetSession(ctx, s.DB, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, persistence("get session", err)
	}
	if sess.BookingToken == nil || subtle.ConstantTimeCompare([]byte(*sess.BookingToken), []byte(token)) != 1 {
		return nil, ErrInvalidToken
	}
	switch {
	case sess.PaymentStatus != domain.PaymentCompleted:
		return nil, ErrPaymentNotCompleted
	case sess.BookingTokenUsed:
		return nil, ErrTokenUsed
	case sess.CalendlyEventBooked:
		return nil, ErrEventAlreadyBooked
	case sess.BookingTokenExpiresAt == nil || !s.now().Before(*sess.BookingTokenExpiresAt):
		return nil, ErrTokenExpired
	}
	return sess, nil
}

// Consume marks the token used and the event booked. It reports whether this
// call performed the transition; a repeated call for the same pair returns
// (false, nil). Expiry is not re-checked: the booking already exists upstream.
func (s *TokenService) Consume(ctx context.Context, sessionID, token string) (bool, error) {
	ctx, span := otel.Tracer("services/TokenService").Start(ctx, "Consume",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	if sessionID == "" || token == "" {
		return false, ErrInvalidToken
	}
	n, err := repo.ConsumeBookingToken(ctx, s.DB, sessionID, token)
	if err != nil {
		return false, persistence("consume booking token", err)
	}
	if n == 1 {
		observability.BookingTokens.WithLabelValues("consumed").Inc()
		return true, nil
	}

	sess, err := repo.GetSession(ctx, s.DB, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, ErrInvalidToken
		}
		return false, persistence("get session", err)
	}
	if sess.BookingToken == nil || subtle.ConstantTimeCompare([]byte(*sess.BookingToken), []byte(token)) != 1 {
		return false, ErrInvalidToken
	}
	observability.BookingTokens.WithLabelValues("duplicate").Inc()
	return false, nil
}

// Reissue is the staff path for sessions whose token expired or whose
// booking was canceled: it issues a new token and emails the new link.
func (s *TokenService) Reissue(ctx context.Context, sessionID string) (*domain.Session, string, error) {
	token, _, err := s.Issue(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	sess, err := repo.GetSession(ctx, s.DB, sessionID)
	if err != nil {
		return nil, "", persistence("get session", err)
	}
	link := BookingLink(s.AppBaseURL, sess.ID, token)
	data := sessionData(sess)
	data.BookingLink = link
	if err := dispatch(ctx, s.Notifier, notify.Notification{Kind: notify.PaymentConfirmation, To: sess.CustomerEmail, Data: data}); err != nil {
		return sess, link, &UpstreamError{Provider: "notify", Err: err}
	}
	return sess, link, nil
}
