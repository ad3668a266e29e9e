// Payment HTTP handlers.
//
//   - GET  /payments/verify?reference=  (customer returns from checkout)
//   - POST /webhooks/paystack           (gateway charge events)
//
// Both routes end in the same completion guard, so whichever arrives first
// completes the session and the other observes it as already processed.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/consult-booking/internal/http/middleware"
	"github.com/tbourn/consult-booking/internal/integrations/paystack"
	"github.com/tbourn/consult-booking/internal/observability"
	"github.com/tbourn/consult-booking/internal/services"
)

// PaymentData is the confirmation shown on the payment success page.
type PaymentData struct {
	Reference     string     `json:"reference"     example:"CONSULT-20250101-1a2b3c4d"`
	Amount        int64      `json:"amount"        example:"5000000"`
	Currency      string     `json:"currency"      example:"NGN"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
	CustomerEmail string     `json:"customerEmail" example:"ada@example.com"`
}

// VerifyPaymentResponse is the body of GET /payments/verify.
type VerifyPaymentResponse struct {
	Success bool         `json:"success"`
	Data    *PaymentData `json:"data,omitempty"`
	Error   string       `json:"error,omitempty"`
	Code    string       `json:"code,omitempty"`
	// Status is the gateway status when the payment did not succeed.
	Status    string `json:"status,omitempty" example:"abandoned"`
	RequestID string `json:"request_id,omitempty"`
}

// WebhookAck is returned for every signature-verified webhook delivery.
type WebhookAck struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome,omitempty" example:"booked"`
}

// VerifyPayment godoc
// @ID          verifyPayment
// @Summary     Verify a payment after checkout redirect
// @Description Asks the gateway for the authoritative status and completes the session on success.
// @Tags        Payments
// @Produce     json
//
// @Param       reference  query  string  true  "Payment reference"  example(CONSULT-20250101-1a2b3c4d)
//
// @Success     200  {object}  handlers.VerifyPaymentResponse
// @Failure     400  {object}  handlers.VerifyPaymentResponse  "Missing reference or amount mismatch"
// @Failure     402  {object}  handlers.VerifyPaymentResponse  "Payment not successful"
// @Failure     404  {object}  handlers.VerifyPaymentResponse  "Unknown reference"
// @Failure     502  {object}  handlers.VerifyPaymentResponse  "Gateway unavailable"
// @Router      /payments/verify [get]
func (h *Handlers) VerifyPayment(c *gin.Context) {
	receipt, err := h.svc.Payments.VerifyRedirect(c.Request.Context(), c.Query("reference"))
	if err != nil {
		status := statusFor(err)
		resp := VerifyPaymentResponse{
			Code:      codeFor(err),
			Error:     messageFor(err, status),
			RequestID: requestID(c),
		}
		var pns *services.PaymentNotSuccessfulError
		if errors.As(err, &pns) {
			resp.Status = pns.Status
		}
		if status >= http.StatusInternalServerError {
			middleware.LoggerFrom(c).Error().Err(err).Int("status", status).Msg("payment verification failed")
		}
		c.AbortWithStatusJSON(status, resp)
		return
	}
	ok(c, http.StatusOK, VerifyPaymentResponse{
		Success: true,
		Data: &PaymentData{
			Reference:     receipt.Reference,
			Amount:        receipt.Amount,
			Currency:      receipt.Currency,
			PaidAt:        receipt.PaidAt,
			CustomerEmail: receipt.CustomerEmail,
		},
	})
}

// PaystackWebhook godoc
// @ID          paystackWebhook
// @Summary     Payment gateway webhook
// @Description Verifies X-Paystack-Signature (HMAC-SHA512 of the raw body) before parsing. Always 200 once verified.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
//
// @Param       X-Paystack-Signature  header  string  true  "hex HMAC-SHA512 of the body"
//
// @Success     200  {object}  handlers.WebhookAck
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid signature"
// @Failure     413  {object}  handlers.ErrorResponse  "Body too large"
// @Router      /webhooks/paystack [post]
func (h *Handlers) PaystackWebhook(c *gin.Context) {
	body, good := h.readBody(c)
	if !good {
		return
	}
	if !paystack.VerifySignature(body, c.GetHeader(paystack.SignatureHeader), h.opts.PaystackSecret) {
		rejectSignature(c, "paystack")
		return
	}

	l := middleware.LoggerFrom(c)
	var ev paystack.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		l.Error().Err(err).Msg("paystack webhook: malformed payload")
		ok(c, http.StatusOK, WebhookAck{Received: true})
		return
	}
	if err := h.svc.Payments.HandleChargeEvent(c.Request.Context(), ev); err != nil {
		l.Error().Err(err).Str("event", ev.Event).Msg("paystack webhook: processing failed")
	}
	ok(c, http.StatusOK, WebhookAck{Received: true})
}

// readBody reads the raw request body once. Bodies over the router's size
// cap are rejected with 413.
func (h *Handlers) readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "request body too large")
			return nil, false
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable request body")
		return nil, false
	}
	return body, true
}

func rejectSignature(c *gin.Context, provider string) {
	observability.WebhookSignatureFailures.WithLabelValues(provider).Inc()
	middleware.LoggerFrom(c).Warn().Str("provider", provider).Msg("webhook signature rejected")
	fail(c, http.StatusUnauthorized, ErrCodeInvalidSignature, "invalid signature")
}
