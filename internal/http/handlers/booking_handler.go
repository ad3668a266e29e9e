// Booking HTTP handlers.
//
//   - GET  /booking/verify?sessionId=&token=  (scheduling page gate)
//   - POST /webhooks/calendly                 (invitee created/canceled)
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/consult-booking/internal/domain"
	"github.com/tbourn/consult-booking/internal/http/middleware"
	"github.com/tbourn/consult-booking/internal/integrations/calendly"
)

// BookingSession is the public view of a verified session. It never carries
// the booking token.
type BookingSession struct {
	ID             string     `json:"id"              example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	CustomerName   string     `json:"customer_name"   example:"Ada Obi"`
	CustomerEmail  string     `json:"customer_email"  example:"ada@example.com"`
	Reference      string     `json:"reference"       example:"CONSULT-20250101-1a2b3c4d"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	SchedulingURL  string     `json:"scheduling_url"  example:"https://calendly.com/acme/consultation?utm_content=141add05-4415-4938-b5a1-17e0d3171aff"`
}

// VerifyBookingResponse is the body of GET /booking/verify.
type VerifyBookingResponse struct {
	Valid   bool            `json:"valid"`
	Session *BookingSession `json:"session,omitempty"`
	Reason  string          `json:"reason,omitempty" example:"token expired"`
	Code    string          `json:"code,omitempty"   example:"token_expired"`
}

// VerifyBooking godoc
// @ID          verifyBooking
// @Summary     Check a booking link before showing the scheduler
// @Description Valid only when the session is paid, the token matches, is unused, unexpired and no meeting is booked yet.
// @Tags        Booking
// @Produce     json
//
// @Param       sessionId  query  string  true  "Session ID"     format(uuid)
// @Param       token      query  string  true  "Booking token"
//
// @Success     200  {object}  handlers.VerifyBookingResponse
// @Failure     400  {object}  handlers.VerifyBookingResponse  "Missing parameters"
// @Failure     403  {object}  handlers.VerifyBookingResponse  "Not paid, used, booked or expired"
// @Failure     404  {object}  handlers.VerifyBookingResponse  "Invalid token"
// @Router      /booking/verify [get]
func (h *Handlers) VerifyBooking(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Query("sessionId"))
	token := strings.TrimSpace(c.Query("token"))
	if sessionID == "" || token == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, VerifyBookingResponse{
			Reason: "sessionId and token are required",
			Code:   ErrCodeBadRequest,
		})
		return
	}

	sess, err := h.svc.Tokens.Verify(c.Request.Context(), sessionID, token)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			middleware.LoggerFrom(c).Error().Err(err).Msg("booking verification failed")
		}
		c.AbortWithStatusJSON(status, VerifyBookingResponse{
			Reason: messageFor(err, status),
			Code:   codeFor(err),
		})
		return
	}
	ok(c, http.StatusOK, VerifyBookingResponse{Valid: true, Session: h.bookingView(c, sess)})
}

func (h *Handlers) bookingView(c *gin.Context, s *domain.Session) *BookingSession {
	v := &BookingSession{
		ID:             s.ID,
		CustomerName:   s.CustomerName,
		CustomerEmail:  s.CustomerEmail,
		Reference:      s.PaymentReference,
		TokenExpiresAt: s.BookingTokenExpiresAt,
	}
	if h.opts.SchedulingURL != "" {
		link, err := calendly.SchedulingLink(h.opts.SchedulingURL, s.ID, s.CustomerName, s.CustomerEmail)
		if err != nil {
			middleware.LoggerFrom(c).Error().Err(err).Msg("scheduling link")
		}
		v.SchedulingURL = link
	}
	return v
}

// CalendlyWebhook godoc
// @ID          calendlyWebhook
// @Summary     Scheduling provider webhook
// @Description Verifies Calendly-Webhook-Signature before parsing. Always 200 once verified; outcome reports what changed.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
//
// @Param       Calendly-Webhook-Signature  header  string  true  "t=<unix>,v1=<hex> or plain hex HMAC-SHA256"
//
// @Success     200  {object}  handlers.WebhookAck
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid signature"
// @Failure     413  {object}  handlers.ErrorResponse  "Body too large"
// @Router      /webhooks/calendly [post]
func (h *Handlers) CalendlyWebhook(c *gin.Context) {
	body, good := h.readBody(c)
	if !good {
		return
	}
	header := c.GetHeader(calendly.SignatureHeader)
	if !calendly.VerifySignature(body, header, h.opts.CalendlySigningKey, h.opts.CalendlyTolerance, h.opts.Now()) {
		rejectSignature(c, "calendly")
		return
	}

	l := middleware.LoggerFrom(c)
	var ev calendly.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		l.Error().Err(err).Msg("calendly webhook: malformed payload")
		ok(c, http.StatusOK, WebhookAck{Received: true})
		return
	}
	outcome, err := h.svc.Calendar.HandleEvent(c.Request.Context(), ev)
	if err != nil {
		l.Error().Err(err).Str("event", ev.Event).Msg("calendly webhook: processing failed")
	}
	ok(c, http.StatusOK, WebhookAck{Received: true, Outcome: string(outcome)})
}
