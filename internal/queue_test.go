package internal

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testQueueConfigs() map[QueueKind]QueueConfig {
	return map[QueueKind]QueueConfig{
		QueueEnrichEdition: {Name: QueueEnrichEdition, MaxBatchSize: 10, MaxBatchTimeout: 50 * time.Millisecond, MaxRetries: 2, MaxConcurrency: 2},
	}
}

func TestQueuePipelineAcksOnSuccess(t *testing.T) {
	qp := NewQueuePipeline(testQueueConfigs(), NewQueueMetrics(nil))
	var processed int64
	qp.RegisterConsumer(QueueEnrichEdition, func(ctx context.Context, msg QueueMessage) error {
		atomic.AddInt64(&processed, 1)
		return nil
	})
	qp.Start()
	defer qp.Shutdown(context.Background())

	require.NoError(t, qp.Enqueue(context.Background(), QueueMessage{Kind: QueueEnrichEdition, Key: "9780134685991"}))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&processed) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestQueuePipelineRetriesTransientErrors(t *testing.T) {
	qp := NewQueuePipeline(testQueueConfigs(), NewQueueMetrics(nil))
	var attempts int64
	qp.RegisterConsumer(QueueEnrichEdition, func(ctx context.Context, msg QueueMessage) error {
		n := atomic.AddInt64(&attempts, 1)
		if n < 2 {
			return TransientError("upstream unavailable", "")
		}
		return nil
	})
	qp.Start()
	defer qp.Shutdown(context.Background())

	require.NoError(t, qp.Enqueue(context.Background(), QueueMessage{Kind: QueueEnrichEdition, Key: "isbn-1"}))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&attempts) >= 2
	}, 3*time.Second, 20*time.Millisecond)
}

func TestQueuePipelineDropsValidationErrorsWithoutDLQ(t *testing.T) {
	qp := NewQueuePipeline(testQueueConfigs(), NewQueueMetrics(nil))
	var calls int64
	qp.RegisterConsumer(QueueEnrichEdition, func(ctx context.Context, msg QueueMessage) error {
		atomic.AddInt64(&calls, 1)
		return ValidationError("malformed isbn", msg.Key)
	})
	qp.Start()
	defer qp.Shutdown(context.Background())

	require.NoError(t, qp.Enqueue(context.Background(), QueueMessage{Kind: QueueEnrichEdition, Key: "not-an-isbn"}))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&calls) == 1
	}, time.Second, 10*time.Millisecond)

	select {
	case <-qp.DeadLetters(QueueEnrichEdition):
		t.Fatal("validation failures must not reach the DLQ")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestQueuePipelineRoutesPermanentFailuresToDLQ(t *testing.T) {
	qp := NewQueuePipeline(testQueueConfigs(), NewQueueMetrics(nil))
	qp.RegisterConsumer(QueueEnrichEdition, func(ctx context.Context, msg QueueMessage) error {
		return ConflictError("duplicate edition", msg.Key)
	})
	qp.Start()
	defer qp.Shutdown(context.Background())

	require.NoError(t, qp.Enqueue(context.Background(), QueueMessage{Kind: QueueEnrichEdition, Key: "dup-isbn"}))

	select {
	case msg := <-qp.DeadLetters(QueueEnrichEdition):
		assert.Equal(t, "dup-isbn", msg.Key)
	case <-time.After(time.Second):
		t.Fatal("expected message to reach the DLQ")
	}
}

func TestQueuePipelineEnqueueRejectsUnknownKind(t *testing.T) {
	qp := NewQueuePipeline(testQueueConfigs(), NewQueueMetrics(nil))
	err := qp.Enqueue(context.Background(), QueueMessage{Kind: "unknown_kind", Key: "x"})
	require.Error(t, err)
}

func TestQueuePipelineShutdownDrainsWorkers(t *testing.T) {
	qp := NewQueuePipeline(testQueueConfigs(), NewQueueMetrics(nil))
	qp.RegisterConsumer(QueueEnrichEdition, func(ctx context.Context, msg QueueMessage) error { return nil })
	qp.Start()

	require.NoError(t, qp.Enqueue(context.Background(), QueueMessage{Kind: QueueEnrichEdition, Key: "x"}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, qp.Shutdown(ctx))
}
