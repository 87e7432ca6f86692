package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/open-rails/subkit/adapters/ginutil"
	"github.com/open-rails/subkit/core"
)

// HandleReconcilePOST triggers a reconciliation for one user. Request
// handlers, webhook receivers and schedulers all funnel through this; retries
// are the caller's policy, not this endpoint's.
func HandleReconcilePOST(eng *core.Engine, rl ginutil.RateLimiter) gin.HandlerFunc {
	type reconcileReq struct {
		UserID string `json:"user_id"`
	}
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLReconcile) {
			ginutil.TooMany(c)
			return
		}
		var req reconcileReq
		if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
			ginutil.BadRequest(c, "invalid_request")
			return
		}
		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			ginutil.BadRequest(c, "invalid_user_id")
			return
		}

		ent, err := eng.Reconcile(c.Request.Context(), userID)
		if errors.Is(err, core.ErrProfileNotFound) {
			ginutil.NotFound(c, "profile_not_found")
			return
		}
		if err != nil {
			ginutil.ServerError(c, "reconcile_failed")
			return
		}
		c.JSON(http.StatusOK, ent)
	}
}
