// Package services – PaymentService
//
// This file implements checkout and the payment completion guard. The guard
// is the only place a session becomes completed. Both entry points (the
// browser redirect after checkout and the gateway webhook) route through
// CompletePayment, which performs one conditional write; the caller whose
// write changed the row runs the side effects, everybody else observes
// AlreadyProcessed. There is no lock: the storage engine's row-level
// atomicity is the only coordination.
package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/consult-booking/internal/domain"
	"github.com/tbourn/consult-booking/internal/integrations/paystack"
	"github.com/tbourn/consult-booking/internal/notify"
	"github.com/tbourn/consult-booking/internal/observability"
	"github.com/tbourn/consult-booking/internal/repo"
)

// CompletionResult is the outcome of CompletePayment.
type CompletionResult int

const (
	// CompletionNotFound means no session owns the reference.
	CompletionNotFound CompletionResult = iota
	// Completed means this call performed the transition and ran side effects.
	Completed
	// AlreadyProcessed means another caller completed the session first.
	AlreadyProcessed
)

func (r CompletionResult) String() string {
	switch r {
	case Completed:
		return "completed"
	case AlreadyProcessed:
		return "already_processed"
	default:
		return "not_found"
	}
}

// Completion sources, used as a metric label.
const (
	SourceRedirect = "redirect"
	SourceWebhook  = "webhook"
)

// CompletionInput carries the verified payment data.
type CompletionInput struct {
	Reference   string
	Amount      int64
	Currency    string
	PaidAt      time.Time
	CustomerRef string
	Source      string
}

// CheckoutInput is the booking form submission.
type CheckoutInput struct {
	Name  string
	Email string
	Phone string
	Notes string
}

// CheckoutResult is what the browser needs to continue to the gateway.
type CheckoutResult struct {
	SessionID        string `json:"session_id"`
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
}

// PaymentReceipt is returned by VerifyRedirect on success.
type PaymentReceipt struct {
	Result        CompletionResult `json:"-"`
	SessionID     string           `json:"session_id"`
	Reference     string           `json:"reference"`
	Amount        int64            `json:"amount"`
	Currency      string           `json:"currency"`
	PaidAt        *time.Time       `json:"paidAt,omitempty"`
	CustomerEmail string           `json:"customerEmail"`
}

// PaymentService coordinates checkout and payment completion.
type PaymentService struct {
	DB       *gorm.DB
	Gateway  PaymentGateway
	Tokens   *TokenService
	Notifier Notifier

	AppBaseURL      string
	CallbackURL     string
	TeamEmail       string
	ReferencePrefix string
	Price           int64 // minor units
	Currency        string

	// Optional guards
	MaxNameRunes  int
	MaxNotesRunes int

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (s *PaymentService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// NewReference returns "<prefix>-<yyyymmdd>-<8 hex>".
func NewReference(prefix string, now time.Time) (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s", prefix, now.UTC().Format("20060102"), hex.EncodeToString(b)), nil
}

// StartCheckout validates the form, creates a pending session with a fresh
// reference and initializes the gateway checkout for it.
func (s *PaymentService) StartCheckout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	ctx, span := otel.Tracer("services/PaymentService").Start(ctx, "StartCheckout")
	defer span.End()

	in.Name = strings.Join(strings.Fields(in.Name), " ")
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Notes = strings.TrimSpace(in.Notes)

	if in.Name == "" {
		return nil, validationf("name is required")
	}
	if s.MaxNameRunes > 0 && utf8.RuneCountInString(in.Name) > s.MaxNameRunes {
		return nil, validationf("name is too long")
	}
	if s.MaxNotesRunes > 0 && utf8.RuneCountInString(in.Notes) > s.MaxNotesRunes {
		return nil, validationf("notes are too long")
	}
	addr, err := mail.ParseAddress(in.Email)
	if err != nil || addr.Address != in.Email {
		return nil, validationf("email is invalid")
	}

	sess := &domain.Session{
		ID:              uuid.NewString(),
		CustomerName:    in.Name,
		CustomerEmail:   strings.ToLower(in.Email),
		CustomerPhone:   in.Phone,
		Notes:           in.Notes,
		PaymentAmount:   s.Price,
		PaymentCurrency: s.Currency,
	}

	// References carry 32 random bits per day; retry the rare collision.
	for attempt := 0; ; attempt++ {
		ref, err := NewReference(s.ReferencePrefix, s.now())
		if err != nil {
			return nil, err
		}
		sess.PaymentReference = ref
		err = repo.CreateSession(ctx, s.DB, sess)
		if err == nil {
			break
		}
		if !errors.Is(err, repo.ErrDuplicate) || attempt >= 2 {
			return nil, persistence("create session", err)
		}
	}
	span.SetAttributes(attribute.String("session.id", sess.ID), attribute.String("payment.reference", sess.PaymentReference))

	initRes, err := s.Gateway.InitializeTransaction(ctx, paystack.InitializeRequest{
		Email:       sess.CustomerEmail,
		Amount:      sess.PaymentAmount,
		Currency:    sess.PaymentCurrency,
		Reference:   sess.PaymentReference,
		CallbackURL: s.CallbackURL,
		Metadata:    map[string]any{"session_id": sess.ID, "customer_name": sess.CustomerName},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "initialize transaction")
		return nil, &UpstreamError{Provider: "paystack", Err: err}
	}
	if err := repo.SetAuthorizationURL(ctx, s.DB, sess.ID, initRes.AuthorizationURL); err != nil {
		return nil, persistence("set authorization url", err)
	}

	return &CheckoutResult{
		SessionID:        sess.ID,
		Reference:        sess.PaymentReference,
		AuthorizationURL: initRes.AuthorizationURL,
		AccessCode:       initRes.AccessCode,
	}, nil
}

// CompletePayment is the payment completion guard. Exactly one caller per
// session observes Completed and runs the side effects (booking token,
// confirmation email, team notification). Side-effect failures are logged and
// never undo the completion; the incomplete-booking sweep repairs them.
func (s *PaymentService) CompletePayment(ctx context.Context, in CompletionInput) (CompletionResult, error) {
	ctx, span := otel.Tracer("services/PaymentService").Start(ctx, "CompletePayment",
		trace.WithAttributes(
			attribute.String("payment.reference", in.Reference),
			attribute.String("payment.source", in.Source),
		),
	)
	defer span.End()

	res, err := s.complete(ctx, in)
	label := res.String()
	if err != nil {
		label = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "complete payment")
	}
	observability.PaymentCompletions.WithLabelValues(in.Source, label).Inc()
	span.SetAttributes(attribute.String("payment.result", label))
	return res, err
}

func (s *PaymentService) complete(ctx context.Context, in CompletionInput) (CompletionResult, error) {
	if in.Reference == "" {
		return CompletionNotFound, validationf("reference is required")
	}
	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now()
	}

	n, err := repo.MarkPaymentCompleted(ctx, s.DB, in.Reference, repo.CompletionFields{
		Amount:            in.Amount,
		Currency:          in.Currency,
		PaidAt:            paidAt,
		CustomerReference: in.CustomerRef,
	})
	if err != nil {
		return CompletionNotFound, persistence("mark payment completed", err)
	}
	if n == 0 {
		if _, err := repo.GetSessionByReference(ctx, s.DB, in.Reference); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return CompletionNotFound, nil
			}
			return CompletionNotFound, persistence("get session by reference", err)
		}
		return AlreadyProcessed, nil
	}

	// This caller owns the transition.
	sess, err := repo.GetSessionByReference(ctx, s.DB, in.Reference)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("reference", in.Reference).Msg("completed session could not be reloaded")
		return Completed, nil
	}
	s.afterCompletion(ctx, sess)
	return Completed, nil
}

func (s *PaymentService) afterCompletion(ctx context.Context, sess *domain.Session) {
	l := zerolog.Ctx(ctx)
	data := sessionData(sess)

	token, _, err := s.Tokens.Issue(ctx, sess.ID)
	if err != nil {
		l.Error().Err(err).Str("session_id", sess.ID).Msg("booking token issue failed after completion")
	} else {
		data.BookingLink = BookingLink(s.AppBaseURL, sess.ID, token)
		_ = dispatch(ctx, s.Notifier, notify.Notification{Kind: notify.PaymentConfirmation, To: sess.CustomerEmail, Data: data})
	}
	_ = dispatch(ctx, s.Notifier, notify.Notification{Kind: notify.PaymentTeamNotification, To: s.TeamEmail, Data: sessionData(sess)})
}

// checkAmount rejects payments below the session price or in another
// currency. Overpayment is accepted.
func checkAmount(sess *domain.Session, amount int64, currency string) error {
	if amount < sess.PaymentAmount {
		return fmt.Errorf("%w: paid %d, expected %d", ErrAmountMismatch, amount, sess.PaymentAmount)
	}
	if currency != "" && !strings.EqualFold(currency, sess.PaymentCurrency) {
		return fmt.Errorf("%w: paid in %s, expected %s", ErrAmountMismatch, currency, sess.PaymentCurrency)
	}
	return nil
}

// VerifyRedirect handles the browser returning from checkout. It asks the
// gateway for the authoritative status and, on success, runs the guard.
// Returning customers whose webhook already completed the session get the
// same receipt.
func (s *PaymentService) VerifyRedirect(ctx context.Context, reference string) (*PaymentReceipt, error) {
	ctx, span := otel.Tracer("services/PaymentService").Start(ctx, "VerifyRedirect",
		trace.WithAttributes(attribute.String("payment.reference", reference)))
	defer span.End()

	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, validationf("reference is required")
	}

	tx, err := s.Gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		span.RecordError(err)
		return nil, &UpstreamError{Provider: "paystack", Err: err}
	}
	if tx.Status != paystack.StatusSuccess {
		return nil, &PaymentNotSuccessfulError{Status: tx.Status}
	}

	sess, err := repo.GetSessionByReference(ctx, s.DB, reference)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, persistence("get session by reference", err)
	}
	if err := checkAmount(sess, tx.Amount, tx.Currency); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("reference", reference).Msg("redirect verification rejected")
		return nil, err
	}

	in := CompletionInput{
		Reference:   reference,
		Amount:      tx.Amount,
		Currency:    strings.ToUpper(tx.Currency),
		CustomerRef: tx.Customer.CustomerCode,
		Source:      SourceRedirect,
	}
	if tx.PaidAt != nil {
		in.PaidAt = *tx.PaidAt
	}
	res, err := s.CompletePayment(ctx, in)
	if err != nil {
		return nil, err
	}
	if res == CompletionNotFound {
		return nil, ErrSessionNotFound
	}

	if fresh, err := repo.GetSession(ctx, s.DB, sess.ID); err == nil {
		sess = fresh
	}
	return &PaymentReceipt{
		Result:        res,
		SessionID:     sess.ID,
		Reference:     reference,
		Amount:        sess.PaymentAmount,
		Currency:      sess.PaymentCurrency,
		PaidAt:        sess.PaidAt,
		CustomerEmail: sess.CustomerEmail,
	}, nil
}

// HandleChargeEvent applies a verified gateway webhook. charge.success runs
// the guard, charge.failed marks a still-pending session failed, anything
// else is ignored.
func (s *PaymentService) HandleChargeEvent(ctx context.Context, ev paystack.Event) error {
	ctx, span := otel.Tracer("services/PaymentService").Start(ctx, "HandleChargeEvent",
		trace.WithAttributes(attribute.String("webhook.event", ev.Event)))
	defer span.End()
	l := zerolog.Ctx(ctx)

	switch ev.Event {
	case paystack.EventChargeSuccess, paystack.EventChargeFailed:
	default:
		l.Debug().Str("event", ev.Event).Msg("payment webhook ignored")
		return nil
	}

	var data paystack.ChargeData
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		return validationf("charge data: %v", err)
	}
	if data.Reference == "" {
		return validationf("charge data: reference missing")
	}
	span.SetAttributes(attribute.String("payment.reference", data.Reference))

	if ev.Event == paystack.EventChargeFailed {
		n, err := repo.MarkPaymentFailed(ctx, s.DB, data.Reference)
		if err != nil {
			return persistence("mark payment failed", err)
		}
		l.Info().Str("reference", data.Reference).Int64("rows", n).Msg("charge failed")
		return nil
	}

	sess, err := repo.GetSessionByReference(ctx, s.DB, data.Reference)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			observability.PaymentCompletions.WithLabelValues(SourceWebhook, CompletionNotFound.String()).Inc()
			l.Warn().Str("reference", data.Reference).Msg("charge.success for unknown reference")
			return nil
		}
		return persistence("get session by reference", err)
	}
	if err := checkAmount(sess, data.Amount, data.Currency); err != nil {
		return err
	}

	in := CompletionInput{
		Reference:   data.Reference,
		Amount:      data.Amount,
		Currency:    strings.ToUpper(data.Currency),
		CustomerRef: data.Customer.CustomerCode,
		Source:      SourceWebhook,
	}
	if t, err := time.Parse(time.RFC3339, data.PaidAt); err == nil {
		in.PaidAt = t
	}
	res, err := s.CompletePayment(ctx, in)
	if err != nil {
		return err
	}
	l.Info().Str("reference", data.Reference).Str("result", res.String()).Msg("charge.success processed")
	return nil
}
