package internal

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// OrchestratorConfig carries the per-call tuning knobs named in §4.3/§5.
type OrchestratorConfig struct {
	PerProviderTimeout time.Duration
	StopOnFirstSuccess bool
}

func defaultMetadataTimeout() time.Duration { return 15 * time.Second }
func defaultAITimeout() time.Duration       { return 60 * time.Second }

// MetadataMergeOrchestrator (C7) fans out a single ISBN to every
// BOOK_METADATA provider, preferring the first successful response by
// priority and using the rest to fill gaps (§4.3).
type MetadataMergeOrchestrator struct {
	registry    *Registry
	quota       *QuotaLedger
	dailyLimits map[string]int64
}

// NewMetadataMergeOrchestrator builds an orchestrator whose quota reservations
// are gated by dailyLimits, keyed by provider name (§4.2's ~15k/day paid
// cap, §4.6's "used_today >= daily_limit" rule). A provider absent from
// dailyLimits (or mapped to 0) has no daily cap, which is the expected shape
// for free providers that aren't billed per call.
func NewMetadataMergeOrchestrator(reg *Registry, quota *QuotaLedger, dailyLimits map[string]int64) *MetadataMergeOrchestrator {
	if dailyLimits == nil {
		dailyLimits = map[string]int64{}
	}
	return &MetadataMergeOrchestrator{registry: reg, quota: quota, dailyLimits: dailyLimits}
}

func (o *MetadataMergeOrchestrator) Fetch(ctx context.Context, isbn string, cfg OrchestratorConfig) (*EditionMetadata, error) {
	providers := availableMetadataProviders(ctx, o.registry)
	if len(providers) == 0 {
		return nil, nil
	}
	if cfg.PerProviderTimeout == 0 {
		cfg.PerProviderTimeout = defaultMetadataTimeout()
	}

	type outcome struct {
		idx    int
		result *EditionMetadata
	}
	results := make([]*EditionMetadata, len(providers))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	out := make(chan outcome, len(providers))

	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Add(1)
		go func(i int, p BookMetadataProvider) {
			defer wg.Done()
			callCtx, cancelCall := context.WithTimeout(ctx, cfg.PerProviderTimeout)
			defer cancelCall()
			name := p.Descriptor().Name
			if _, err := o.quota.Reserve(callCtx, name, o.dailyLimits[name]); err != nil {
				if ae, ok := err.(*AppError); ok && ae.Code == CodeQuotaExhausted {
					Log(ctx).Debug("provider skipped: quota exhausted", "provider", name)
					return
				}
				// A ledger (KV) error is advisory: the call still goes ahead.
				Log(ctx).Debug("quota ledger unavailable", "provider", name, "err", err)
			}
			md, err := p.FetchByISBN(NewCallContext(callCtx), isbn)
			if err != nil {
				// A provider that times out, errors, or returns empty does
				// not abort the others; it is dropped and logged at debug.
				Log(ctx).Debug("provider call failed", "provider", p.Descriptor().Name, "err", err)
				return
			}
			select {
			case out <- outcome{idx: i, result: md}:
			case <-ctx.Done():
			}
		}(i, p)
	}
	go func() { wg.Wait(); close(out) }()

	for o := range out {
		results[o.idx] = o.result
		if cfg.StopOnFirstSuccess && o.result != nil {
			cancel() // cancels outstanding calls; they are not awaited further
			break
		}
	}

	return mergeMetadataByPriority(results), nil
}

// mergeMetadataByPriority implements §4.4 step 3's field-merge policy:
// the earliest (highest-priority) non-nil result is the base; later results
// fill Title, Publisher, CoverURL and Authors only where the base left them
// empty, and array fields (subjects, related ISBNs, external IDs) are
// unioned across all. The other scalar fields (publication date, page
// count, language, external ID) come from the base result only.
func mergeMetadataByPriority(results []*EditionMetadata) *EditionMetadata {
	var merged *EditionMetadata
	for _, r := range results {
		if r == nil {
			continue
		}
		if merged == nil {
			cp := *r
			merged = &cp
			continue
		}
		if merged.Title == "" {
			merged.Title = r.Title
		}
		if merged.Publisher == "" {
			merged.Publisher = r.Publisher
		}
		if merged.CoverURL == "" {
			merged.CoverURL = r.CoverURL
		}
		if len(merged.Authors) == 0 {
			merged.Authors = r.Authors
		}
		merged.Subjects = unionStrings(merged.Subjects, r.Subjects)
		merged.RelatedISBNs = unionStrings(merged.RelatedISBNs, r.RelatedISBNs)
		if merged.ExternalIDs == nil {
			merged.ExternalIDs = map[string]string{}
		}
		for k, v := range r.ExternalIDs {
			if _, exists := merged.ExternalIDs[k]; !exists {
				merged.ExternalIDs[k] = v
			}
		}
	}
	return merged
}

// unionStrings merges two string slices with the spec's array-field merge
// policy: dedupe, drop blanks, preserve first-seen order isn't guaranteed
// (the result is used as an unordered field), built on the generic set
// union helper (set.go) the same way the teacher composes sets for
// denormalization fan-out.
func unionStrings(a, b []string) []string {
	merged := union(newSet(a...), newSet(b...))
	out := make([]string, 0, len(merged))
	for x := range merged {
		if x != "" {
			out = append(out, x)
		}
	}
	return out
}

func availableMetadataProviders(ctx context.Context, reg *Registry) []BookMetadataProvider {
	var out []BookMetadataProvider
	for _, p := range Available(ctx, reg.GetByCapability(CapBookMetadata)) {
		if mp, ok := p.(BookMetadataProvider); ok {
			out = append(out, mp)
		}
	}
	return out
}

// EditionVariantOrchestrator (C7) fans out concurrently to EDITION_VARIANTS
// providers, optionally stopping on first success (the calls still running
// are canceled), and deduplicates by ISBN. Variants without an ISBN are
// dropped; there is no fuzzy-title matching.
type EditionVariantOrchestrator struct {
	registry *Registry
}

func NewEditionVariantOrchestrator(reg *Registry) *EditionVariantOrchestrator {
	return &EditionVariantOrchestrator{registry: reg}
}

func (o *EditionVariantOrchestrator) Fetch(ctx context.Context, workKeyOrISBN string, cfg OrchestratorConfig) ([]EditionVariant, error) {
	if cfg.PerProviderTimeout == 0 {
		cfg.PerProviderTimeout = defaultMetadataTimeout()
	}
	providers := Available(ctx, o.registry.GetByCapability(CapEditionVariants))

	ctx, cancelAll := context.WithCancel(ctx)
	defer cancelAll()
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	var all []EditionVariant

	for _, p := range providers {
		vp, ok := p.(EditionVariantsProvider)
		if !ok {
			continue
		}
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, cfg.PerProviderTimeout)
			defer cancel()
			variants, err := vp.FetchVariants(NewCallContext(callCtx), workKeyOrISBN)
			if err != nil {
				Log(ctx).Debug("variant provider failed", "provider", vp.Descriptor().Name, "err", err)
				return nil // dropped, not fatal to siblings
			}
			mu.Lock()
			all = append(all, variants...)
			if cfg.StopOnFirstSuccess && len(variants) > 0 {
				cancelAll() // outstanding calls see gctx canceled
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return dedupeVariantsByISBN(all), nil
}

func dedupeVariantsByISBN(variants []EditionVariant) []EditionVariant {
	seen := map[string]bool{}
	out := make([]EditionVariant, 0, len(variants))
	for _, v := range variants {
		if v.ISBN == "" || seen[v.ISBN] {
			continue
		}
		seen[v.ISBN] = true
		out = append(out, v)
	}
	return out
}

// AuthorBibliographyOrchestrator (C7) calls AUTHOR_BIBLIOGRAPHY providers
// one at a time in registry priority order, never concurrently; the first
// provider that returns results wins and the rest are not called. It does
// not single out paid providers: whichever providers carry the capability
// are used, in that order.
type AuthorBibliographyOrchestrator struct {
	registry *Registry
}

func NewAuthorBibliographyOrchestrator(reg *Registry) *AuthorBibliographyOrchestrator {
	return &AuthorBibliographyOrchestrator{registry: reg}
}

func (o *AuthorBibliographyOrchestrator) Fetch(ctx context.Context, authorName string, maxPages int) ([]EditionMetadata, error) {
	providers := Available(ctx, o.registry.GetByCapability(CapAuthorBibliography))
	var all []EditionMetadata
	for _, p := range providers {
		bp, ok := p.(AuthorBibliographyProvider)
		if !ok {
			continue
		}
		books, err := bp.FetchBibliography(NewCallContext(ctx), authorName, maxPages)
		if err != nil {
			Log(ctx).Debug("bibliography provider failed", "provider", bp.Descriptor().Name, "err", err)
			continue
		}
		all = append(all, books...)
		if len(all) > 0 {
			break // first provider with results wins; sequential by design
		}
	}
	return all, nil
}

// BookGenerationOrchestrator (C7) fans out concurrently to BOOK_GENERATION
// (AI) providers. Any returned ISBN is untrusted and must be validated
// before downstream use (§4.2).
type BookGenerationOrchestrator struct {
	registry *Registry
}

func NewBookGenerationOrchestrator(reg *Registry) *BookGenerationOrchestrator {
	return &BookGenerationOrchestrator{registry: reg}
}

func (o *BookGenerationOrchestrator) Generate(ctx context.Context, prompt string, count int) ([]GeneratedBook, error) {
	providers := Available(ctx, o.registry.GetByCapability(CapBookGeneration))

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	var all []GeneratedBook

	for _, p := range providers {
		gp, ok := p.(BookGenerationProvider)
		if !ok {
			continue
		}
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, defaultAITimeout())
			defer cancel()
			books, err := gp.GenerateBooks(NewCallContext(callCtx), prompt, count)
			if err != nil {
				Log(ctx).Debug("generation provider failed", "provider", gp.Descriptor().Name, "err", err)
				return nil
			}
			validated := books[:0]
			for _, b := range books {
				if b.ISBN != "" {
					norm := NormalizeISBN(b.ISBN)
					if !ValidateISBN(norm) {
						continue // untrusted ISBN fails checksum: dropped, not surfaced
					}
					b.ISBN = norm
				}
				validated = append(validated, b)
			}
			mu.Lock()
			all = append(all, validated...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return all, nil
}
