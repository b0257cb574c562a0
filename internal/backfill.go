package internal

import (
	"context"
	"fmt"
	"time"
)

// BackfillSource supplies the next bucket of candidate ISBNs for a
// backfill run (e.g. a paginated export or a prior provider's catalog
// dump). It is injected rather than hardcoded so the scheduler stays
// provider-agnostic.
type BackfillSource interface {
	// NextBucket returns up to size ISBNs starting after cursor, and the
	// cursor to resume from on the following call. An empty returned
	// cursor signals the source is exhausted.
	NextBucket(ctx context.Context, cursor string, size int) (isbns []string, nextCursor string, err error)
}

// BookAPIBackfillSource adapts the paid provider's catalog pager to
// BackfillSource so the scheduler never depends on a concrete provider
// type, only the interface it needs.
type BookAPIBackfillSource struct {
	provider *BookAPIProvider
}

func NewBookAPIBackfillSource(provider *BookAPIProvider) *BookAPIBackfillSource {
	return &BookAPIBackfillSource{provider: provider}
}

func (s *BookAPIBackfillSource) NextBucket(ctx context.Context, cursor string, size int) ([]string, string, error) {
	return s.provider.FetchCatalogPage(ctx, cursor, size)
}

// AIGenBackfillSource adapts a BOOK_GENERATION provider to BackfillSource,
// treating a curated prompt's completions as a catalog page of candidate
// ISBNs (§4.10's "curated prompt fed to an AI generator" backfill source).
// It ignores cursor: every call asks the generator for a fresh batch and
// never reports exhaustion on its own.
type AIGenBackfillSource struct {
	generation *BookGenerationOrchestrator
	prompt     string
	perBucket  int
}

func NewAIGenBackfillSource(generation *BookGenerationOrchestrator, prompt string, perBucket int) *AIGenBackfillSource {
	if perBucket <= 0 {
		perBucket = 50
	}
	return &AIGenBackfillSource{generation: generation, prompt: prompt, perBucket: perBucket}
}

func (s *AIGenBackfillSource) NextBucket(ctx context.Context, cursor string, size int) ([]string, string, error) {
	n := size
	if n <= 0 || n > s.perBucket {
		n = s.perBucket
	}
	books, err := s.generation.Generate(ctx, s.prompt, n)
	if err != nil {
		return nil, "", err
	}
	isbns := make([]string, 0, len(books))
	for _, b := range books {
		if b.ISBN != "" {
			isbns = append(isbns, b.ISBN)
		}
	}
	return isbns, "ai", nil
}

// FallbackBackfillSource draws buckets from primary until it runs dry, then
// keeps the backfill going with fallback. Used to fall over from the paid
// catalog pager to curated AI-generated candidates once the real catalog is
// exhausted, rather than stopping the run.
type FallbackBackfillSource struct {
	primary     BackfillSource
	fallback    BackfillSource
	primaryDone bool
}

func NewFallbackBackfillSource(primary, fallback BackfillSource) *FallbackBackfillSource {
	return &FallbackBackfillSource{primary: primary, fallback: fallback}
}

// fallbackCursor is handed back with primary's last page so the scheduler,
// which stops on an empty cursor, goes on to draw from fallback.
const fallbackCursor = "fallback"

func (s *FallbackBackfillSource) NextBucket(ctx context.Context, cursor string, size int) ([]string, string, error) {
	if !s.primaryDone && cursor != fallbackCursor {
		isbns, next, err := s.primary.NextBucket(ctx, cursor, size)
		if err != nil {
			return nil, "", err
		}
		if len(isbns) > 0 {
			if next == "" {
				s.primaryDone = true
				next = fallbackCursor
			}
			return isbns, next, nil
		}
		s.primaryDone = true
	}
	return s.fallback.NextBucket(ctx, cursor, size)
}

// BackfillScheduler is C10: plans work bucket by bucket, deduplicates
// against existing rows, enqueues enrich jobs for the rest, and persists a
// checkpoint after every bucket so a restart resumes rather than
// reprocessing (§4.10, §8 scenario 6). The bucket/checkpoint shape is
// grounded on the batch-lookup-then-checkpoint idiom used for syncing
// large external catalogs in bulk.
type BackfillScheduler struct {
	source    BackfillSource
	dedupe    *DedupService
	store     *Store
	queue     *QueuePipeline
	bucketSize int
}

func NewBackfillScheduler(source BackfillSource, dedupe *DedupService, store *Store, queue *QueuePipeline, bucketSize int) *BackfillScheduler {
	if bucketSize <= 0 {
		bucketSize = 500
	}
	return &BackfillScheduler{source: source, dedupe: dedupe, store: store, queue: queue, bucketSize: bucketSize}
}

// Run processes buckets until the source is exhausted or ctx is canceled,
// resuming from bucketID's last checkpoint if one exists.
func (s *BackfillScheduler) Run(ctx context.Context, bucketID string) error {
	cursor := ""
	record := &CheckpointRecord{BucketID: bucketID, StartedAt: time.Now()}
	if cp, err := s.store.LoadCheckpoint(ctx, bucketID); err == nil && cp != nil {
		cursor = cp.Cursor
		record = cp // keep the saved keys and totals so they accumulate across the resume
		Log(ctx).Info("resuming backfill", "bucket_id", bucketID, "processed", len(cp.ProcessedKeys))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		isbns, nextCursor, err := s.source.NextBucket(ctx, cursor, s.bucketSize)
		if err != nil {
			return InternalError("backfill source failed", err.Error())
		}
		if len(isbns) == 0 {
			break
		}

		if err := s.processBucket(ctx, isbns, record); err != nil {
			return err
		}

		// Advance the cursor before persisting so a resume picks up after
		// this bucket rather than reprocessing it.
		record.Cursor = nextCursor
		record.LastUpdated = time.Now()
		if err := s.store.SaveCheckpoint(ctx, *record); err != nil {
			Log(ctx).Warn("checkpoint save failed", "bucket_id", bucketID, "err", err)
		}

		if nextCursor == "" {
			break
		}
		cursor = nextCursor
	}

	return nil
}

// processBucket validates and dedupes a raw ISBN bucket, then enqueues one
// enrich_edition message per surviving ISBN, recording totals on record.
func (s *BackfillScheduler) processBucket(ctx context.Context, raw []string, record *CheckpointRecord) error {
	record.TotalPlanned += len(raw)

	valid := make([]string, 0, len(raw))
	for _, isbn := range raw {
		norm := NormalizeISBN(isbn)
		if !ValidateISBN(norm) {
			record.FailedKeys = append(record.FailedKeys, isbn)
			continue
		}
		valid = append(valid, norm)
	}

	fresh, err := s.dedupe.FilterNewISBNs(ctx, valid)
	if err != nil {
		return InternalError("dedupe failed during backfill", err.Error())
	}
	record.TotalsFound += len(valid) - len(fresh)
	record.TotalsNew += len(fresh)

	for _, isbn := range fresh {
		if err := s.queue.Enqueue(ctx, QueueMessage{
			Kind:    QueueEnrichEdition,
			Key:     isbn,
			Payload: []byte(fmt.Sprintf(`{"isbn":"%s"}`, isbn)),
		}); err != nil {
			// A full queue under backfill is transient pressure, not a
			// fatal condition: the ISBN is marked failed and retried on
			// the next scheduled run.
			record.FailedKeys = append(record.FailedKeys, isbn)
			continue
		}
		record.TotalsQueued++
		record.ProcessedKeys = append(record.ProcessedKeys, isbn)
	}

	return nil
}
