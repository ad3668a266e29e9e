// Package handlers exposes the booking REST endpoints.
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. Provider webhooks read the raw
// body once, verify the signature before any parsing, and always answer 200
// once the signature is good so the provider stops retrying.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/consult-booking/internal/domain"
	"github.com/tbourn/consult-booking/internal/integrations/calendly"
	"github.com/tbourn/consult-booking/internal/integrations/paystack"
	"github.com/tbourn/consult-booking/internal/services"
	"github.com/tbourn/consult-booking/internal/utils"
)

//
// Service contracts (context-aware)
//

// PaymentService covers checkout and both payment completion entry points.
type PaymentService interface {
	// StartCheckout creates a pending session and initializes the transaction.
	StartCheckout(ctx context.Context, in services.CheckoutInput) (*services.CheckoutResult, error)
	// VerifyRedirect confirms a payment when the customer returns from checkout.
	VerifyRedirect(ctx context.Context, reference string) (*services.PaymentReceipt, error)
	// HandleChargeEvent applies a verified payment webhook.
	HandleChargeEvent(ctx context.Context, ev paystack.Event) error
}

// TokenService verifies and re-issues booking tokens.
type TokenService interface {
	Verify(ctx context.Context, sessionID, token string) (*domain.Session, error)
	Reissue(ctx context.Context, sessionID string) (*domain.Session, string, error)
}

// CalendarService applies verified scheduling webhooks.
type CalendarService interface {
	HandleEvent(ctx context.Context, ev calendly.Event) (services.CalendarOutcome, error)
}

// SweepService runs one reconciliation sweep by name.
type SweepService interface {
	Run(ctx context.Context, name string) (services.SweepResult, error)
}

// SessionService is the read side used by the admin endpoints.
type SessionService interface {
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Session, int64, error)
	Get(ctx context.Context, id string) (*domain.Session, error)
	Stats(ctx context.Context) (count int64, lastUpdate *time.Time, err error)
}

// IdempotencyStore remembers which session a checkout Idempotency-Key
// produced.
type IdempotencyStore interface {
	Lookup(ctx context.Context, scope, key string) (sessionID string, found bool, err error)
	Save(ctx context.Context, scope, key, sessionID string, status int) error
}

//
// Handler wiring
//

// Services bundles the collaborators the handlers call.
type Services struct {
	Payments    PaymentService
	Tokens      TokenService
	Calendar    CalendarService
	Sweeps      SweepService
	Sessions    SessionService
	Idempotency IdempotencyStore
}

// Options carries the transport-level settings handlers need.
type Options struct {
	PaystackSecret     string
	CalendlySigningKey string
	CalendlyTolerance  time.Duration
	// SchedulingURL is the public scheduling page base used in booking links.
	SchedulingURL string
	// Ping checks storage for /health. Nil means always healthy.
	Ping func(ctx context.Context) error
	Now  func() time.Time
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	svc  Services
	opts Options
}

// New constructs Handlers bound to the given services.
func New(svc Services, opts Options) *Handlers {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handlers{svc: svc, opts: opts}
}

//
// Shared DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}
