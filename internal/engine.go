package internal

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Engine is C8: given an identifier, runs the relevant orchestrator,
// merges, persists, and emits follow-up jobs. It is grounded on the
// teacher's Controller.getWork/getBook cache-first, background-refresh
// pattern, generalized from "refresh a cached document" to "enrich and
// persist a relational entity".
type Engine struct {
	merge      *MetadataMergeOrchestrator
	variants   *EditionVariantOrchestrator
	dedupe     *DedupService
	locks      *FindOrCreateLocks
	store      *Store
	queue      *QueuePipeline
	webhook    *WebhookNotifier
	metrics    *EngineMetrics

	// NewAuthorBibliographyThreshold gates when a newly-discovered author
	// triggers a follow-up bibliography job (§4.4 step 6).
	NewAuthorBibliographyThreshold int
}

func NewEngine(merge *MetadataMergeOrchestrator, variants *EditionVariantOrchestrator, dedupe *DedupService, locks *FindOrCreateLocks, store *Store, queue *QueuePipeline, webhook *WebhookNotifier, metrics *EngineMetrics) *Engine {
	return &Engine{
		merge: merge, variants: variants, dedupe: dedupe, locks: locks,
		store: store, queue: queue, webhook: webhook, metrics: metrics,
		NewAuthorBibliographyThreshold: 1,
	}
}

// EnrichResult is returned to HTTP handlers and queue consumers alike.
type EnrichResult struct {
	ISBN          string
	Inserted      bool
	Updated       bool
	NoOp          bool
	CoverQueued   bool
	CorrelationID string
}

// EnrichEdition implements §4.4 end to end for a single ISBN. It is safe
// to call twice with the same ISBN: the second call is a no-op apart from
// refreshing updated_at, and enqueues no new cover job (§8 idempotence law).
func (e *Engine) EnrichEdition(ctx context.Context, isbn string) (EnrichResult, error) {
	start := time.Now()
	correlationID := uuid.NewString()
	result := EnrichResult{ISBN: isbn, CorrelationID: correlationID}

	// 1. Validate and normalize.
	normalized := NormalizeISBN(isbn)
	if !ValidateISBN(normalized) {
		return result, ValidationError("invalid ISBN", isbn)
	}

	existing, err := e.store.GetEditionByISBN(ctx, normalized)
	if err != nil {
		return result, InternalError("lookup failed", err.Error())
	}

	// 2. Orchestrate.
	md, err := e.merge.Fetch(ctx, normalized, OrchestratorConfig{})
	if err != nil {
		return result, InternalError("orchestration failed", err.Error())
	}
	if md == nil {
		// All providers failed/empty: successful empty result, no row
		// created (§8 scenario 2).
		result.NoOp = true
		_ = e.store.LogEnrichment(ctx, EnrichmentLogEntry{
			CorrelationID: correlationID, EntityType: "edition", Key: normalized,
			DurationMillis: time.Since(start).Milliseconds(), Outcome: "noop",
		})
		return result, nil
	}

	// 3. Resolve/create the work and its authors under find-or-create locks (§4.9).
	workKey, _, newAuthors, err := e.resolveWorkAndAuthors(ctx, md)
	if err != nil {
		return result, InternalError("work/author resolution failed", err.Error())
	}

	edition := Edition{
		ISBN: normalized, WorkKey: workKey, Title: md.Title, Authors: md.Authors,
		Publisher: md.Publisher, PublishedYear: md.PublishedYear, PublishedMonth: md.PublishedMonth,
		PublishedDay: md.PublishedDay, PageCount: md.PageCount, Language: md.Language,
		CoverURL: md.CoverURL, ExternalID: md.ExternalID, SourceProvider: md.SourceProvider,
		RelatedISBNs: md.RelatedISBNs, Subjects: md.Subjects,
	}

	if existing == nil {
		if err := e.store.UpsertEdition(ctx, edition); err != nil {
			return result, InternalError("insert failed", err.Error())
		}
		result.Inserted = true
	} else {
		if err := e.store.UpsertEdition(ctx, edition); err != nil {
			return result, InternalError("update failed", err.Error())
		}
		result.Updated = existing.Title != md.Title || existing.CoverURL != md.CoverURL
		result.NoOp = !result.Updated
	}

	// 4.5. Discover sibling editions of this work via EDITION_VARIANTS
	// providers and enqueue each newly-seen ISBN for independent
	// enrichment (§4.10). Only triggered on first sight of an edition so a
	// refresh doesn't re-fan-out across the whole work every time.
	if existing == nil && e.variants != nil {
		variants, verr := e.variants.Fetch(ctx, normalized, OrchestratorConfig{})
		if verr != nil {
			Log(ctx).Debug("variant discovery failed", "isbn", normalized, "err", verr)
		}
		for _, v := range variants {
			if v.ISBN == "" || v.ISBN == normalized {
				continue
			}
			_ = e.queue.Enqueue(ctx, QueueMessage{
				Kind: QueueEnrichEdition, Key: v.ISBN,
				Payload: []byte(`{"isbn":"` + v.ISBN + `"}`),
			})
		}
	}

	// 5. Backfill the crosswalk table, conflict-ignore. Editions are keyed
	// by ISBN rather than a surrogate bigint, so the crosswalk row points
	// at the edition's resolved work instead of leaving OurKey unset.
	for provider, providerID := range md.ExternalIDs {
		_ = e.store.InsertCrosswalk(ctx, CrosswalkEntry{
			EntityType: "edition", OurKey: workKey, Provider: provider, ProviderID: providerID, Confidence: 80,
		})
	}

	// 6. Emit follow-up jobs: cover processing only on first sight of a
	// cover URL, author bibliography only for newly introduced authors
	// past the threshold.
	if md.CoverURL != "" && (existing == nil || existing.CoverURL != md.CoverURL) {
		_ = e.queue.Enqueue(ctx, QueueMessage{
			Kind: QueueProcessCover, Key: normalized,
			Payload: coverPayload(normalized, md.CoverURL),
		})
		result.CoverQueued = true
	}
	if len(newAuthors) >= e.NewAuthorBibliographyThreshold {
		for _, name := range newAuthors {
			_ = e.queue.Enqueue(ctx, QueueMessage{
				Kind: QueueEnrichAuthor, Key: name,
				Payload: []byte(`{"author_name":"` + name + `"}`),
			})
		}
	}

	// 7. Fire the outbound webhook; failure must not fail enrichment.
	if e.webhook != nil {
		e.webhook.NotifyAsync(ctx, WebhookPayload{
			EntityType: "edition", Key: normalized,
			SourceProviders: []string{md.SourceProvider}, FieldsAdded: changedFields(existing, md),
		})
	}

	// 8. Record the enrichment log row.
	outcome := "noop"
	switch {
	case result.Inserted:
		outcome = "inserted"
	case result.Updated:
		outcome = "updated"
	}
	e.metrics.outcomeInc("edition", outcome)
	_ = e.store.LogEnrichment(ctx, EnrichmentLogEntry{
		CorrelationID: correlationID, EntityType: "edition", Key: normalized,
		ProviderChain: []string{md.SourceProvider}, DurationMillis: time.Since(start).Milliseconds(),
		Outcome: outcome,
	})

	return result, nil
}

// resolveWorkAndAuthors finds or creates each author's canonical key and
// looks up a work key for the edition, coordinating concurrent callers in
// the same batch via FindOrCreateLocks (§4.9). It never inserts a work row:
// when the title fuzzy-matches a stored edition title and an edition with
// md's ISBN is already stored, that edition's work key is reused; otherwise
// the work key is 0.
func (e *Engine) resolveWorkAndAuthors(ctx context.Context, md *EditionMetadata) (workKey int64, authorKeys []int64, newAuthorNames []string, err error) {
	authorKeys = make([]int64, 0, len(md.Authors))
	for _, name := range md.Authors {
		normalized := NormalizeAuthorName(name)
		wasNew := false
		key, lockErr, _ := e.locks.FindOrCreate("author:"+normalized, func() (int64, error) {
			existing, err := e.store.FindAuthorByNormalizedName(ctx, normalized)
			if err != nil {
				return 0, err
			}
			if existing != nil {
				return existing.Key, nil
			}
			wasNew = true
			return e.store.InsertAuthor(ctx, name)
		})
		if lockErr != nil {
			return 0, nil, nil, lockErr
		}
		authorKeys = append(authorKeys, key)
		if wasNew {
			newAuthorNames = append(newAuthorNames, name)
		}
		_ = e.store.IncrementAuthorWorkCount(ctx, key, 1)
	}

	normalizedTitle := NormalizeTitle(md.Title)
	workKey, lockErr, _ := e.locks.FindOrCreate("work:"+normalizedTitle, func() (int64, error) {
		exists, _, _, ferr := e.dedupe.FuzzyTitleExists(ctx, md.Title)
		if ferr != nil {
			return 0, ferr
		}
		if exists {
			if existing, gerr := e.store.GetEditionByISBN(ctx, md.ISBN); gerr == nil && existing != nil {
				return existing.WorkKey, nil
			}
		}
		return 0, nil // 0 means no work; UpsertEdition stores it as a NULL work_key
	})
	if lockErr != nil {
		return 0, nil, nil, lockErr
	}
	return workKey, authorKeys, newAuthorNames, nil
}

func changedFields(existing *Edition, md *EditionMetadata) []string {
	if existing == nil {
		return []string{"title", "authors", "cover_url", "publisher"}
	}
	var fields []string
	if existing.Title != md.Title {
		fields = append(fields, "title")
	}
	if existing.CoverURL != md.CoverURL {
		fields = append(fields, "cover_url")
	}
	return fields
}

func coverPayload(isbn, url string) []byte {
	return []byte(`{"isbn":"` + isbn + `","provider_url":"` + url + `"}`)
}
