package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthResponse is the /health body.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// Health godoc
// @ID          health
// @Summary     Liveness and storage check
// @Tags        Health
// @Produce     json
// @Success     200  {object} handlers.HealthResponse
// @Failure     503  {object} handlers.ErrorResponse "Storage unavailable"
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	if h.opts.Ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.opts.Ping(ctx); err != nil {
			_ = c.Error(err)
			fail(c, http.StatusServiceUnavailable, ErrCodeStorage, "storage unavailable")
			return
		}
	}
	ok(c, http.StatusOK, HealthResponse{Status: "ok"})
}
