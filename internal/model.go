package internal

import "time"

// Capability is a typed ability a provider advertises.
type Capability string

const (
	CapBookMetadata        Capability = "BOOK_METADATA"
	CapEditionVariants     Capability = "EDITION_VARIANTS"
	CapAuthorBibliography  Capability = "AUTHOR_BIBLIOGRAPHY"
	CapBookGeneration      Capability = "BOOK_GENERATION"
	CapIdentityCrosswalk   Capability = "IDENTITY_CROSSWALK"
	CapCoverURL            Capability = "COVER_URL"
)

// ProviderType distinguishes billed providers from free ones for quota
// accounting and orchestrator ordering.
type ProviderType string

const (
	ProviderFree ProviderType = "free"
	ProviderPaid ProviderType = "paid"
)

// ProviderDescriptor is the static, side-effect-free identity of a provider.
type ProviderDescriptor struct {
	Name         string
	Type         ProviderType
	Capabilities []Capability
}

func (d ProviderDescriptor) Has(c Capability) bool {
	for _, got := range d.Capabilities {
		if got == c {
			return true
		}
	}
	return false
}

// EditionMetadata is what a BOOK_METADATA or EDITION_VARIANTS provider
// returns for a single publication.
type EditionMetadata struct {
	ISBN             string
	Title            string
	Authors          []string
	Publisher        string
	PublishedYear    int
	PublishedMonth   int
	PublishedDay     int
	PageCount        int
	Language         string
	CoverURL         string
	ExternalID       string
	SourceProvider   string
	RelatedISBNs     []string
	Subjects         []string
	ExternalIDs      map[string]string // e.g. "asin" -> "B000...", "google_volume" -> "..."
	Confidence       int               // 0-100, provider-reported or inferred
}

// EditionVariant is a single additional edition of a work discovered by an
// EDITION_VARIANTS provider.
type EditionVariant = EditionMetadata

// GeneratedBook is one entry of an AI BOOK_GENERATION response. It is
// untrusted until its ISBN (if any) passes checksum validation.
type GeneratedBook struct {
	Title      string
	Author     string
	ISBN       string
	Confidence int
}

// CrosswalkResolution is the result of IDENTITY_CROSSWALK.resolveAuthor.
type CrosswalkResolution struct {
	OurKey     int64
	Confidence int
}

// Edition is a persisted specific publication of a Work.
type Edition struct {
	ISBN           string
	WorkKey        int64
	Title          string
	Authors        []string
	Publisher      string
	PublishedYear  int
	PublishedMonth int
	PublishedDay   int
	PageCount      int
	Language       string
	CoverURL       string
	ExternalID     string
	SourceProvider string
	RelatedISBNs   []string
	Subjects       []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Work is the abstract book that one or more Editions manifest.
type Work struct {
	Key          int64
	Title        string
	AuthorKeys   []int64
	EditionISBNs []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Author is a persisted contributor.
type Author struct {
	Key            int64
	Name           string
	NormalizedName string
	ExternalRefs   map[string]string // e.g. "wikidata_qid" -> "Q..."
	WorkCount      int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CrosswalkEntry maps an external identifier to one of our canonical
// entities, with a confidence score. (entity_type, provider, provider_id)
// is unique; inserts are conflict-safe.
type CrosswalkEntry struct {
	EntityType string // "author" | "work" | "edition"
	OurKey     int64
	Provider   string
	ProviderID string
	Confidence int
}

// QuotaCounter is the C5 per-provider daily budget row.
type QuotaCounter struct {
	Provider   string
	DayBucket  string // UTC date, YYYY-MM-DD
	UsedToday  int64
	DailyLimit int64
}

func (q QuotaCounter) Exhausted() bool {
	return q.DailyLimit > 0 && q.UsedToday >= q.DailyLimit
}

// RouteClass classifies an inbound request for rate-limiting purposes.
type RouteClass string

const (
	RouteStandard RouteClass = "standard"
	RouteSearch   RouteClass = "search"
	RouteWrite    RouteClass = "write"
	RouteHeavy    RouteClass = "heavy"
)

// RateLimitResult is returned by the per-client limiter.
type RateLimitResult struct {
	Limit      int64
	Remaining  int64
	ResetEpoch int64
	Allowed    bool
	RetryAfter time.Duration
}

// QueueKind names one of the five message kinds; QueuePipeline keeps one
// in-process queue per kind.
type QueueKind string

const (
	QueueEnrichEdition QueueKind = "enrich_edition"
	QueueEnrichWork    QueueKind = "enrich_work"
	QueueEnrichAuthor  QueueKind = "enrich_author"
	QueueProcessCover  QueueKind = "process_cover"
	QueueBackfillBatch QueueKind = "backfill_batch"
)

// QueueMessage is the envelope around a unit of enrichment work.
type QueueMessage struct {
	Kind        QueueKind
	Key         string
	Payload     []byte
	Attempts    int
	EnqueuedAt  time.Time
	CorrelationID string
}

// MessageState is the per-message lifecycle state (§4.5).
type MessageState string

const (
	StateQueued   MessageState = "queued"
	StateLeased   MessageState = "leased"
	StateAcked    MessageState = "acked"
	StateRetrying MessageState = "retry_scheduled"
	StateDLQ      MessageState = "dlq"
	StateExpired  MessageState = "expired"
)

// CheckpointRecord is the resumable backfill bookkeeping row.
type CheckpointRecord struct {
	BucketID      string
	Cursor        string
	ProcessedKeys []string
	FailedKeys    []string
	TotalPlanned  int
	TotalsFound   int
	TotalsNew     int
	TotalsQueued  int
	StartedAt     time.Time
	LastUpdated   time.Time
}

// EnrichmentLogEntry records one enrichment attempt's provenance (§4.4 step 8).
type EnrichmentLogEntry struct {
	CorrelationID   string
	EntityType      string
	Key             string
	ProviderChain   []string
	DurationMillis  int64
	Outcome         string // "inserted" | "updated" | "noop" | "failed"
	CreatedAt       time.Time
}
