package internal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memCache is a minimal in-process Cache used across the quota/rate-limit
// tests in this package; it behaves like a single-node Redis for Get/Incr.
type memCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	counts map[string]int64
	failIncr bool
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, counts: map[string]int64{}}
}

func (m *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (m *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memCache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIncr {
		return 0, errors.New("cache unavailable")
	}
	m.counts[key]++
	n := m.counts[key]
	m.data[key] = []byte(fmtInt(n))
	return n, nil
}

func (m *memCache) Ping(ctx context.Context) error { return nil }
func (m *memCache) Close() error                   { return nil }

func fmtInt(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}

func TestQuotaLedgerReserveUnderLimit(t *testing.T) {
	q := NewQuotaLedger(newMemCache())
	qc, err := q.Reserve(context.Background(), "bookapi", 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, qc.UsedToday)
	assert.False(t, qc.Exhausted())
}

func TestQuotaLedgerReserveExhausted(t *testing.T) {
	q := NewQuotaLedger(newMemCache())
	var last error
	for i := 0; i < 5; i++ {
		_, last = q.Reserve(context.Background(), "bookapi", 3)
	}
	require.Error(t, last)
	var ae *AppError
	require.ErrorAs(t, last, &ae)
	assert.Equal(t, CodeQuotaExhausted, ae.Code)
}

func TestQuotaLedgerPeekDoesNotIncrement(t *testing.T) {
	q := NewQuotaLedger(newMemCache())
	_, err := q.Reserve(context.Background(), "bookapi", 10)
	require.NoError(t, err)

	first := q.Peek(context.Background(), "bookapi", 10)
	second := q.Peek(context.Background(), "bookapi", 10)
	assert.EqualValues(t, 1, first.UsedToday)
	assert.EqualValues(t, 1, second.UsedToday)
}

func TestQuotaLedgerReserveOnCacheErrorDoesNotWedgeProvider(t *testing.T) {
	cache := newMemCache()
	cache.failIncr = true
	q := NewQuotaLedger(cache)

	qc, err := q.Reserve(context.Background(), "bookapi", 10)
	require.Error(t, err)
	assert.False(t, qc.Exhausted())
}
