package internal

import (
	"context"
	"fmt"
	"time"
)

// RateLimitPolicy configures one route class's counting window (§4.6).
type RateLimitPolicy struct {
	Class      RouteClass
	Limit      int64
	Window     time.Duration
	FailClosed bool // heavy classes fail closed on KV error; others fail open
}

// DefaultRateLimitPolicies matches the defaults named in §4.6.
func DefaultRateLimitPolicies() map[RouteClass]RateLimitPolicy {
	return map[RouteClass]RateLimitPolicy{
		RouteStandard: {Class: RouteStandard, Limit: 100, Window: time.Minute, FailClosed: false},
		RouteSearch:   {Class: RouteSearch, Limit: 60, Window: time.Minute, FailClosed: false},
		RouteWrite:    {Class: RouteWrite, Limit: 30, Window: time.Minute, FailClosed: false},
		RouteHeavy:    {Class: RouteHeavy, Limit: 10, Window: time.Minute, FailClosed: true},
	}
}

// RateLimiter is the per-client half of C5: a fixed-window counter keyed
// by (route_class, client_ip, window start), backed by the same shared KV
// store as the quota ledger. Windows are aligned to multiples of Window
// since the Unix epoch and counts do not carry across a window boundary,
// so this is not a sliding window.
type RateLimiter struct {
	cache    Cache
	policies map[RouteClass]RateLimitPolicy
}

func NewRateLimiter(cache Cache, policies map[RouteClass]RateLimitPolicy) *RateLimiter {
	if policies == nil {
		policies = DefaultRateLimitPolicies()
	}
	return &RateLimiter{cache: cache, policies: policies}
}

func rateLimitKey(class RouteClass, clientIP string, windowStart int64) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", class, clientIP, windowStart)
}

// Allow increments the counter for this client/class/window and reports
// the outcome. On KV error, standard classes fail open (request allowed);
// heavy classes fail closed (request denied) per the Open Question
// resolution in DESIGN.md.
func (l *RateLimiter) Allow(ctx context.Context, class RouteClass, clientIP string) RateLimitResult {
	policy, ok := l.policies[class]
	if !ok {
		policy = l.policies[RouteStandard]
	}

	now := time.Now().Unix()
	windowStart := now - now%int64(policy.Window.Seconds())
	reset := windowStart + int64(policy.Window.Seconds())
	key := rateLimitKey(class, clientIP, windowStart)

	used, err := l.cache.Incr(ctx, key, policy.Window)
	if err != nil {
		if policy.FailClosed {
			return RateLimitResult{Limit: policy.Limit, Remaining: 0, ResetEpoch: reset, Allowed: false, RetryAfter: policy.Window}
		}
		return RateLimitResult{Limit: policy.Limit, Remaining: policy.Limit, ResetEpoch: reset, Allowed: true}
	}

	remaining := policy.Limit - used
	if remaining < 0 {
		remaining = 0
	}
	allowed := used <= policy.Limit
	result := RateLimitResult{Limit: policy.Limit, Remaining: remaining, ResetEpoch: reset, Allowed: allowed}
	if !allowed {
		result.RetryAfter = time.Duration(reset-now) * time.Second
	}
	return result
}
