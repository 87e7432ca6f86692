// Package redislimiter rate-limits reconciliation triggers across nodes with
// a Redis sliding window.
package redislimiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limit caps how many calls a key may make per window.
type Limit struct {
	Max    int
	Window time.Duration
}

// DefaultLimits suits the entitlement endpoints. A reconcile fans out to
// three sources per call, so it is limited harder than the read-only inspect.
func DefaultLimits() map[string]Limit {
	return map[string]Limit{
		"entitlement_reconcile": {Max: 30, Window: time.Minute},
		"entitlement_inspect":   {Max: 120, Window: time.Minute},
		"default":               {Max: 60, Window: time.Minute},
	}
}

// Limiter is a Redis-backed sliding-window limiter keyed by bucket and
// caller.
type Limiter struct {
	rdb    *redis.Client
	limits map[string]Limit
}

func New(rdb *redis.Client, limits map[string]Limit) *Limiter {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Limiter{rdb: rdb, limits: limits}
}

func (l *Limiter) limitFor(bucket string) Limit {
	if v, ok := l.limits[bucket]; ok {
		return v
	}
	if v, ok := l.limits["default"]; ok {
		return v
	}
	return Limit{Max: 60, Window: time.Minute}
}

// AllowNamed records one call and reports whether the caller is within the
// bucket's limit. A nil limiter or client allows everything.
func (l *Limiter) AllowNamed(bucket, key string) (bool, error) {
	if l == nil || l.rdb == nil {
		return true, nil
	}
	if bucket == "" || key == "" {
		return false, fmt.Errorf("bucket and key required")
	}

	ctx := context.Background()
	lim := l.limitFor(bucket)
	nowMs := time.Now().UnixMilli()
	windowStart := nowMs - lim.Window.Milliseconds()
	redisKey := fmt.Sprintf("rl:%s:%s", bucket, key)

	pipe := l.rdb.TxPipeline()
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(nowMs), Member: nowMs})
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart))
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, lim.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	count, err := countCmd.Result()
	if err != nil {
		return false, err
	}
	if count > int64(lim.Max) {
		// Roll back this attempt so a denied caller does not extend its own
		// lockout.
		l.rdb.ZRem(ctx, redisKey, nowMs)
		return false, nil
	}
	return true, nil
}
