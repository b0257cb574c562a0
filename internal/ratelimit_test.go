package internal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllowsUnderLimit(t *testing.T) {
	rl := NewRateLimiter(newMemCache(), nil)
	res := rl.Allow(context.Background(), RouteStandard, "1.2.3.4")
	assert.True(t, res.Allowed)
	assert.EqualValues(t, 99, res.Remaining)
}

func TestRateLimiterDeniesOverLimit(t *testing.T) {
	policies := map[RouteClass]RateLimitPolicy{
		RouteStandard: {Class: RouteStandard, Limit: 2, Window: time.Minute},
	}
	rl := NewRateLimiter(newMemCache(), policies)
	ctx := context.Background()

	var last RateLimitResult
	for i := 0; i < 3; i++ {
		last = rl.Allow(ctx, RouteStandard, "1.2.3.4")
	}
	assert.False(t, last.Allowed)
	assert.Zero(t, last.Remaining)
}

func TestRateLimiterHeavyClassFailsClosedOnCacheError(t *testing.T) {
	cache := newMemCache()
	cache.failIncr = true
	rl := NewRateLimiter(cache, nil)

	res := rl.Allow(context.Background(), RouteHeavy, "1.2.3.4")
	assert.False(t, res.Allowed)
}

func TestRateLimiterStandardClassFailsOpenOnCacheError(t *testing.T) {
	cache := newMemCache()
	cache.failIncr = true
	rl := NewRateLimiter(cache, nil)

	res := rl.Allow(context.Background(), RouteStandard, "1.2.3.4")
	assert.True(t, res.Allowed)
}

func TestRateLimiterUnknownClassFallsBackToStandard(t *testing.T) {
	rl := NewRateLimiter(newMemCache(), nil)
	res := rl.Allow(context.Background(), RouteClass("nonexistent"), "1.2.3.4")
	assert.Equal(t, int64(100), res.Limit)
}

func TestRateLimiterIsolatesByClientIP(t *testing.T) {
	policies := map[RouteClass]RateLimitPolicy{
		RouteStandard: {Class: RouteStandard, Limit: 1, Window: time.Minute},
	}
	rl := NewRateLimiter(newMemCache(), policies)
	ctx := context.Background()

	a := rl.Allow(ctx, RouteStandard, "client-a")
	b := rl.Allow(ctx, RouteStandard, "client-b")
	assert.True(t, a.Allowed)
	assert.True(t, b.Allowed)
}
