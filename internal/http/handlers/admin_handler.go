// Admin HTTP handlers for staff.
//
//   - GET  /admin/sessions                     (list, paginated, ETag support)
//   - GET  /admin/sessions/{id}                (one session)
//   - POST /admin/sessions/{id}/booking-token  (re-issue the booking link)
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/consult-booking/internal/domain"
	"github.com/tbourn/consult-booking/internal/http/middleware"
	"github.com/tbourn/consult-booking/internal/utils"
)

// ListSessionsResponse wraps a page of sessions and pagination information.
type ListSessionsResponse struct {
	Sessions   []domain.Session `json:"sessions"`
	Pagination Pagination       `json:"pagination"`
}

// ReissueResponse is returned after a staff re-issue.
type ReissueResponse struct {
	Session     *domain.Session `json:"session"`
	BookingLink string          `json:"booking_link"`
	// EmailSent is false when the token was rotated but the email failed;
	// staff can pass booking_link on by hand.
	EmailSent bool `json:"email_sent"`
}

// ListSessions godoc
// @ID          listSessions
// @Summary     List sessions (paginated)
// @Description Newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListSessionsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/sessions [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.svc.Sessions.Stats(ctx); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"sessions:%d:%d:%d:%d"`, count, ts, page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.svc.Sessions.ListPage(ctx, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}

	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListSessionsResponse{
		Sessions: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetSession godoc
// @ID          getSession
// @Summary     Get one session
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Session ID (UUID)"  format(uuid)
// @Success     200  {object} domain.Session
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Router      /admin/sessions/{id} [get]
func (h *Handlers) GetSession(c *gin.Context) {
	id, good := sessionIDParam(c)
	if !good {
		return
	}
	sess, err := h.svc.Sessions.Get(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sess)
}

// ReissueBookingToken godoc
// @ID          reissueBookingToken
// @Summary     Re-issue a booking link
// @Description Mints a fresh token for a paid session and emails the new link. Used after cancellations or expiry.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Session ID (UUID)"  format(uuid)
// @Success     200  {object} handlers.ReissueResponse
// @Failure     403  {object} handlers.ErrorResponse "Payment not completed"
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Router      /admin/sessions/{id}/booking-token [post]
func (h *Handlers) ReissueBookingToken(c *gin.Context) {
	id, good := sessionIDParam(c)
	if !good {
		return
	}
	l := middleware.LoggerFrom(c)
	sess, link, err := h.svc.Tokens.Reissue(c.Request.Context(), id)
	if err != nil {
		if sess == nil || link == "" {
			failErr(c, err)
			return
		}
		l.Error().Err(err).Str("session_id", id).Msg("booking link email failed after re-issue")
		ok(c, http.StatusOK, ReissueResponse{Session: sess, BookingLink: link})
		return
	}
	l.Info().Str("session_id", id).Msg("booking token re-issued by staff")
	ok(c, http.StatusOK, ReissueResponse{Session: sess, BookingLink: link, EmailSent: true})
}

func sessionIDParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return "", false
	}
	return id, true
}
