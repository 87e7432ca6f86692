package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/open-rails/subkit/adapters/ginutil"
	"github.com/open-rails/subkit/core"
)

// HandleEntitlementGET returns the per-source breakdown and the value
// reconciliation would resolve to, without persisting or notifying. Meant for
// support tooling and dashboards.
func HandleEntitlementGET(eng *core.Engine, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLInspect) {
			ginutil.TooMany(c)
			return
		}
		userID, err := uuid.Parse(c.Param("user_id"))
		if err != nil {
			ginutil.BadRequest(c, "invalid_user_id")
			return
		}

		report, err := eng.Inspect(c.Request.Context(), userID)
		if errors.Is(err, core.ErrProfileNotFound) {
			ginutil.NotFound(c, "profile_not_found")
			return
		}
		if err != nil {
			ginutil.ServerError(c, "inspect_failed")
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
