// Cron HTTP handlers.
//
//   - POST /cron/abandoned-payments
//   - POST /cron/incomplete-bookings
//   - POST /cron/meeting-reminders
//
// Routes are guarded by the cron bearer secret in the router.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/consult-booking/internal/http/middleware"
	"github.com/tbourn/consult-booking/internal/services"
)

// RunSweep returns a handler that runs the named sweep and reports its
// counts. Per-item failures are counted, not surfaced as errors.
//
// @ID          runSweep
// @Summary     Trigger a reconciliation sweep
// @Tags        Cron
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.SweepResult
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid bearer secret"
// @Failure     500  {object}  handlers.ErrorResponse  "Sweep could not run"
// @Router      /cron/abandoned-payments [post]
// @Router      /cron/incomplete-bookings [post]
// @Router      /cron/meeting-reminders [post]
func (h *Handlers) RunSweep(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := h.svc.Sweeps.Run(c.Request.Context(), name)
		if err != nil {
			failErr(c, err)
			return
		}
		middleware.LoggerFrom(c).Info().
			Str("sweep", name).
			Int("processed", res.Processed).
			Int("sent", res.Sent).
			Int("failed", res.Failed).
			Msg("sweep triggered")
		ok(c, http.StatusOK, res)
	}
}

// Sweep route names mapped to service sweep names.
var SweepRoutes = map[string]string{
	"abandoned-payments":  services.SweepAbandoned,
	"incomplete-bookings": services.SweepIncomplete,
	"meeting-reminders":   services.SweepReminders,
}
