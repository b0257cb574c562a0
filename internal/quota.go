package internal

import (
	"context"
	"fmt"
	"time"
)

// QuotaLedger is the per-provider half of C5: a day-bucketed, non-rolling
// call budget backed by the shared KV store. Keys are (provider, utc_date);
// counters are incremented before each outbound call, matching the
// teacher's NewUpstream token-bucket throttle but promoted from an
// in-process limiter to a cross-process ledger.
type QuotaLedger struct {
	cache Cache
}

func NewQuotaLedger(cache Cache) *QuotaLedger {
	return &QuotaLedger{cache: cache}
}

func quotaKey(provider, dayBucket string) string {
	return fmt.Sprintf("quota:%s:%s", provider, dayBucket)
}

// Reserve increments the provider's counter for today and reports whether
// the call may proceed. It must be called before the outbound request, not
// after, so a burst of concurrent callers cannot all observe room under the
// limit and all proceed (§5's accepted read-modify-write drift still
// bounds this to the size of the concurrent burst).
func (q *QuotaLedger) Reserve(ctx context.Context, provider string, dailyLimit int64) (QuotaCounter, error) {
	bucket := time.Now().UTC().Format("2006-01-02")
	key := quotaKey(provider, bucket)
	used, err := q.cache.Incr(ctx, key, 25*time.Hour) // outlive the UTC day with margin
	qc := QuotaCounter{Provider: provider, DayBucket: bucket, UsedToday: used, DailyLimit: dailyLimit}
	if err != nil {
		// §5: the ledger is advisory for quota; a KV hiccup must not wedge
		// the provider permanently unavailable, so report as not-exhausted
		// and let the call through on a best-effort basis.
		return qc, err
	}
	if qc.Exhausted() {
		return qc, QuotaExhaustedError(provider)
	}
	return qc, nil
}

// Peek reports the current counter without incrementing it, so it has no
// side effects (§4.1). No provider's IsAvailable calls it; the provider
// call path goes through Reserve.
func (q *QuotaLedger) Peek(ctx context.Context, provider string, dailyLimit int64) QuotaCounter {
	bucket := time.Now().UTC().Format("2006-01-02")
	qc := QuotaCounter{Provider: provider, DayBucket: bucket, DailyLimit: dailyLimit}
	raw, err := q.cache.Get(ctx, quotaKey(provider, bucket))
	if err != nil {
		return qc // miss or KV error: assume fresh, i.e. not exhausted
	}
	var used int64
	_, _ = fmt.Sscan(string(raw), &used)
	qc.UsedToday = used
	return qc
}
