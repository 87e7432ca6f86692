// Package ginutil holds the small shared pieces the gin handlers lean on:
// rate-limit gating and uniform JSON error responses.
package ginutil

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RateLimiter is the limiter interface the handlers expect. Both the redis
// and memory limiters satisfy it.
type RateLimiter interface {
	AllowNamed(bucket, key string) (bool, error)
}

// Named rate-limit buckets.
const (
	RLReconcile = "entitlement_reconcile"
	RLInspect   = "entitlement_inspect"
)

// AllowNamed gates a request by client IP. Limiter errors fail open; a broken
// limiter must not take the endpoints down with it.
func AllowNamed(c *gin.Context, rl RateLimiter, bucket string) bool {
	if rl == nil {
		return true
	}
	ok, err := rl.AllowNamed(bucket, c.ClientIP())
	if err != nil {
		return true
	}
	return ok
}

func BadRequest(c *gin.Context, code string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": code})
}

func NotFound(c *gin.Context, code string) {
	c.JSON(http.StatusNotFound, gin.H{"error": code})
}

func TooMany(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
}

func ServerError(c *gin.Context, code string) {
	c.JSON(http.StatusInternalServerError, gin.H{"error": code})
}
