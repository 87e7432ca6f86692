package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/open-rails/subkit/adapters/ginutil"
	"github.com/open-rails/subkit/core"
)

// Register mounts the entitlement endpoints on a router group. Callers apply
// their own middleware (auth gate, logging) to the group first.
func Register(r gin.IRouter, eng *core.Engine, rl ginutil.RateLimiter) {
	r.POST("/entitlements/reconcile", HandleReconcilePOST(eng, rl))
	r.GET("/entitlements/:user_id", HandleEntitlementGET(eng, rl))
}
