package internal

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindOrCreateLocksRunsLookupOnce(t *testing.T) {
	locks := NewFindOrCreateLocks()
	var calls int64

	const n = 20
	var wg sync.WaitGroup
	results := make([]int64, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(idx int) {
			defer wg.Done()
			v, err, _ := locks.FindOrCreate("ursula le guin", func() (int64, error) {
				atomic.AddInt64(&calls, 1)
				return 42, nil
			})
			require.NoError(t, err)
			results[idx] = v
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt64(&calls))
	for _, v := range results {
		assert.Equal(t, int64(42), v)
	}
}

func TestFindOrCreateLocksDistinctKeysRunIndependently(t *testing.T) {
	locks := NewFindOrCreateLocks()

	a, err, _ := locks.FindOrCreate("author-a", func() (int64, error) { return 1, nil })
	require.NoError(t, err)
	b, err, _ := locks.FindOrCreate("author-b", func() (int64, error) { return 2, nil })
	require.NoError(t, err)

	assert.Equal(t, int64(1), a)
	assert.Equal(t, int64(2), b)
}

func TestFindOrCreateLocksPropagatesError(t *testing.T) {
	locks := NewFindOrCreateLocks()
	_, err, _ := locks.FindOrCreate("broken", func() (int64, error) {
		return 0, NotFoundError("author")
	})
	require.Error(t, err)
}
