// Checkout HTTP handler.
//
//   - POST /sessions (create a pending session and start the payment)
//
// A client may send Idempotency-Key. A retried submission with the same key
// gets the original session back instead of a second pending payment.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/consult-booking/internal/http/middleware"
	"github.com/tbourn/consult-booking/internal/services"
)

// CreateSessionRequest is the booking form payload.
type CreateSessionRequest struct {
	Name  string `json:"name"  binding:"required,max=255"   example:"Ada Obi"`
	Email string `json:"email" binding:"required,email"     example:"ada@example.com"`
	Phone string `json:"phone" binding:"omitempty,max=64"   example:"+2348012345678"`
	Notes string `json:"notes" binding:"omitempty,max=4000" example:"Pricing strategy for a seed-stage SaaS"`
}

// CreateSession godoc
// @ID          createSession
// @Summary     Start a paid consultation
// @Description Creates a pending session and initializes the payment. The customer is sent to authorization_url.
// @Tags        Checkout
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false  "Makes retries of the same submission return the same session"  example(9b2a7c1e-form)
// @Param       body             body    handlers.CreateSessionRequest  true  "Booking form"
//
// @Success     201  {object}  services.CheckoutResult
// @Header      201  {string}  Idempotency-Replayed  "true when served from a previous request"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     502  {object}  handlers.ErrorResponse  "Payment gateway unavailable"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions [post]
func (h *Handlers) CreateSession(c *gin.Context) {
	ctx := c.Request.Context()
	key, hasKey := middleware.GetIdempotencyKey(c)
	scope := middleware.GetIdempotencyScope(c)

	if hasKey && h.svc.Idempotency != nil {
		if h.replayCheckout(c, scope, key) {
			return
		}
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name and a valid email are required")
		return
	}

	res, err := h.svc.Payments.StartCheckout(ctx, services.CheckoutInput{
		Name:  strings.TrimSpace(req.Name),
		Email: strings.TrimSpace(req.Email),
		Phone: strings.TrimSpace(req.Phone),
		Notes: strings.TrimSpace(req.Notes),
	})
	if err != nil {
		failErr(c, err)
		return
	}

	if hasKey && h.svc.Idempotency != nil {
		if err := h.svc.Idempotency.Save(ctx, scope, key, res.SessionID, http.StatusCreated); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("session_id", res.SessionID).Msg("idempotency record not saved")
		}
	}
	ok(c, http.StatusCreated, res)
}

// replayCheckout serves the stored result for (scope, key), reporting
// whether a response was written.
func (h *Handlers) replayCheckout(c *gin.Context, scope, key string) bool {
	ctx := c.Request.Context()
	sessionID, found, err := h.svc.Idempotency.Lookup(ctx, scope, key)
	if err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
		return false
	}
	if !found {
		return false
	}
	sess, err := h.svc.Sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			return false
		}
		failErr(c, err)
		return true
	}
	c.Header(middleware.HeaderIdempotencyReplayed, "true")
	ok(c, http.StatusCreated, services.CheckoutResult{
		SessionID:        sess.ID,
		Reference:        sess.PaymentReference,
		AuthorizationURL: sess.AuthorizationURL,
	})
	return true
}
