package internal

import "context"

// CallContext carries the per-call knobs every provider method accepts:
// cache strategy and rate-limit strategy hints layered on top of the
// ambient context.Context (logger via Log(ctx), env via Config, and
// cancellation via ctx itself).
type CallContext struct {
	context.Context
	CacheEnabled bool
	RateLimited  bool
}

func NewCallContext(ctx context.Context) CallContext {
	return CallContext{Context: ctx, CacheEnabled: true, RateLimited: true}
}

// Provider is the minimal shape every registered provider satisfies,
// mirroring the teacher's getter composition but generalized into the
// capability tagging §3/§4.2 requires.
type Provider interface {
	Descriptor() ProviderDescriptor
	// IsAvailable is cheap and side-effect-free: typically "credentials
	// present, quota not exhausted" (§4.1).
	IsAvailable(ctx context.Context) bool
}

// BookMetadataProvider implements BOOK_METADATA.
type BookMetadataProvider interface {
	Provider
	FetchByISBN(ctx CallContext, isbn string) (*EditionMetadata, error)
	// FetchBatch is batched where the upstream allows, up to the
	// provider-declared BatchCap; callers fall back to FetchByISBN
	// per-ISBN otherwise.
	FetchBatch(ctx CallContext, isbns []string) (map[string]*EditionMetadata, error)
	BatchCap() int
}

// EditionVariantsProvider implements EDITION_VARIANTS.
type EditionVariantsProvider interface {
	Provider
	FetchVariants(ctx CallContext, workKeyOrISBN string) ([]EditionVariant, error)
}

// AuthorBibliographyProvider implements AUTHOR_BIBLIOGRAPHY.
type AuthorBibliographyProvider interface {
	Provider
	FetchBibliography(ctx CallContext, authorName string, maxPages int) ([]EditionMetadata, error)
}

// BookGenerationProvider implements BOOK_GENERATION (AI list generators).
// It is deliberately a separate, optional interface — mirroring the
// Provider/EmbeddingProvider split used for LLM-backed providers — since
// most metadata providers never implement it.
type BookGenerationProvider interface {
	Provider
	GenerateBooks(ctx CallContext, prompt string, count int) ([]GeneratedBook, error)
}

// IdentityCrosswalkProvider implements IDENTITY_CROSSWALK.
type IdentityCrosswalkProvider interface {
	Provider
	ResolveAuthor(ctx CallContext, externalID string) (*CrosswalkResolution, error)
}

// CoverURLProvider implements COVER_URL: a provider that can resolve a
// better/larger cover image URL for an edition it already knows about.
type CoverURLProvider interface {
	Provider
	CoverURL(ctx CallContext, isbn string) (string, error)
}
