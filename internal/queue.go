package internal

import (
	"context"
	"sync"
	"time"
)

// QueueConfig is the per-named-queue tuning named in §4.5.
type QueueConfig struct {
	Name             QueueKind
	MaxBatchSize     int
	MaxBatchTimeout  time.Duration
	MaxRetries       int
	MaxConcurrency   int
}

func defaultQueueConfigs() map[QueueKind]QueueConfig {
	return map[QueueKind]QueueConfig{
		QueueEnrichEdition: {Name: QueueEnrichEdition, MaxBatchSize: 100, MaxBatchTimeout: 5 * time.Second, MaxRetries: 5, MaxConcurrency: 8},
		QueueEnrichWork:    {Name: QueueEnrichWork, MaxBatchSize: 100, MaxBatchTimeout: 5 * time.Second, MaxRetries: 5, MaxConcurrency: 8},
		QueueEnrichAuthor:  {Name: QueueEnrichAuthor, MaxBatchSize: 50, MaxBatchTimeout: 10 * time.Second, MaxRetries: 5, MaxConcurrency: 4},
		QueueProcessCover:  {Name: QueueProcessCover, MaxBatchSize: 200, MaxBatchTimeout: 5 * time.Second, MaxRetries: 3, MaxConcurrency: 8},
		QueueBackfillBatch: {Name: QueueBackfillBatch, MaxBatchSize: 1, MaxBatchTimeout: time.Minute, MaxRetries: 3, MaxConcurrency: 2},
	}
}

// ConsumerFunc processes one message and returns an error classified per
// §7. A nil error is an ack; Retryable(err) decides retry vs. DLQ.
type ConsumerFunc func(ctx context.Context, msg QueueMessage) error

// QueuePipeline is C9: workers for the enrichment/covers/backfill work,
// generalizing the teacher's BookProcessor worker-pool shape
// (anurag-2911-libmngmt/internal/workers/book_processor.go) from a single
// fixed job queue to one queue per QueueKind, each with its own config,
// DLQ, and bounded worker pool. Queues and DLQs are in-process buffered
// channels: messages are not persisted and do not survive a process exit.
type QueuePipeline struct {
	configs   map[QueueKind]QueueConfig
	inbound   map[QueueKind]chan QueueMessage
	dlq       map[QueueKind]chan QueueMessage
	consumers map[QueueKind]ConsumerFunc
	metrics   *QueueMetrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewQueuePipeline(configs map[QueueKind]QueueConfig, metrics *QueueMetrics) *QueuePipeline {
	if configs == nil {
		configs = defaultQueueConfigs()
	}
	ctx, cancel := context.WithCancel(context.Background())
	qp := &QueuePipeline{
		configs:   configs,
		inbound:   map[QueueKind]chan QueueMessage{},
		dlq:       map[QueueKind]chan QueueMessage{},
		consumers: map[QueueKind]ConsumerFunc{},
		metrics:   metrics,
		ctx:       ctx,
		cancel:    cancel,
	}
	for kind, cfg := range configs {
		qp.inbound[kind] = make(chan QueueMessage, cfg.MaxBatchSize*4)
		qp.dlq[kind] = make(chan QueueMessage, cfg.MaxBatchSize*4)
	}
	return qp
}

// RegisterConsumer binds the function that processes messages pulled off
// kind's queue. Call before Start.
func (qp *QueuePipeline) RegisterConsumer(kind QueueKind, fn ConsumerFunc) {
	qp.consumers[kind] = fn
}

// Start launches MaxConcurrency workers per configured queue. Each worker
// reads through a messagebuf-backed coalescing channel so that a burst of
// re-enqueues for the same key collapses into the latest payload (§4.5
// doesn't require ordering within a batch, so coalescing is safe).
func (qp *QueuePipeline) Start() {
	for kind, cfg := range qp.configs {
		coalesced := accumulate(qp.inbound[kind], newMessagebuf())
		for i := 0; i < max(1, cfg.MaxConcurrency); i++ {
			qp.wg.Add(1)
			go qp.worker(kind, cfg, coalesced)
		}
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (qp *QueuePipeline) worker(kind QueueKind, cfg QueueConfig, in <-chan QueueMessage) {
	defer qp.wg.Done()
	for {
		select {
		case msg, ok := <-in:
			if !ok {
				return
			}
			qp.process(kind, cfg, msg)
		case <-qp.ctx.Done():
			return
		}
	}
}

// process runs the consumer and drives the §4.5 per-message state machine:
// queued -> leased -> {acked | retry_scheduled | dlq | expired}.
func (qp *QueuePipeline) process(kind QueueKind, cfg QueueConfig, msg QueueMessage) {
	ctx, cancel := context.WithTimeout(qp.ctx, 30*time.Second)
	defer cancel()

	fn, ok := qp.consumers[kind]
	if !ok {
		return
	}

	err := fn(ctx, msg)
	if err == nil {
		qp.metrics.ackedInc(string(kind))
		return
	}

	if !Retryable(err) {
		// Permanent failure: acknowledge (validation/not-found) or DLQ
		// depending on classification; both remove the message from the
		// primary queue, which is what the invariant in §8 requires.
		if ae, ok := err.(*AppError); ok && (ae.Code == CodeValidation || ae.Code == CodeNotFound) {
			Log(ctx).Warn("message dropped: permanent failure", "kind", kind, "key", msg.Key, "err", err)
			qp.metrics.ackedInc(string(kind))
			return
		}
		qp.toDLQ(kind, msg, err)
		return
	}

	msg.Attempts++
	if msg.Attempts > cfg.MaxRetries {
		// Messages retried beyond max_retries expire; the system does not
		// assume DLQ delivery is guaranteed, but we still attempt it on a
		// best-effort, non-blocking basis.
		qp.metrics.expiredInc(string(kind))
		select {
		case qp.dlq[kind] <- msg:
		default:
		}
		return
	}

	qp.metrics.retriedInc(string(kind))
	go func() {
		// Exponential backoff bounded by a ceiling, mirroring the
		// teacher's rate.Limiter backoff-then-restore pattern.
		backoff := 30 * time.Second
		if msg.Attempts <= 5 {
			backoff = time.Duration(1<<(msg.Attempts-1)) * time.Second // 1s, 2s, 4s, 8s, 16s
		}
		select {
		case <-time.After(backoff):
		case <-qp.ctx.Done():
			return
		}
		qp.Enqueue(qp.ctx, msg) //nolint:errcheck // best-effort re-enqueue
	}()
}

func (qp *QueuePipeline) toDLQ(kind QueueKind, msg QueueMessage, cause error) {
	Log(qp.ctx).Error("message routed to DLQ", "kind", kind, "key", msg.Key, "err", cause)
	qp.metrics.dlqInc(string(kind))
	select {
	case qp.dlq[kind] <- msg:
	default:
		Log(qp.ctx).Warn("DLQ full, message dropped", "kind", kind, "key", msg.Key)
	}
}

// Enqueue places msg on its kind's inbound channel, blocking briefly under
// backpressure but never indefinitely.
func (qp *QueuePipeline) Enqueue(ctx context.Context, msg QueueMessage) error {
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now()
	}
	ch, ok := qp.inbound[msg.Kind]
	if !ok {
		return InternalError("unknown queue kind", string(msg.Kind))
	}
	select {
	case ch <- msg:
		qp.metrics.enqueuedInc(string(msg.Kind))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
		return TransientError("queue full", string(msg.Kind))
	}
}

// DeadLetters exposes a kind's DLQ channel for inspection/draining tools.
func (qp *QueuePipeline) DeadLetters(kind QueueKind) <-chan QueueMessage {
	return qp.dlq[kind]
}

// Shutdown drains in-flight batches up to deadline, then cancels
// outstanding work (§6 "graceful shutdown must drain in-flight batches up
// to a configured deadline, then fail-fast pending tasks with
// cancellation").
func (qp *QueuePipeline) Shutdown(ctx context.Context) error {
	for _, ch := range qp.inbound {
		close(ch)
	}
	done := make(chan struct{})
	go func() {
		qp.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		qp.cancel()
		return ctx.Err()
	}
}
