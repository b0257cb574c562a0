package internal

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the authoritative persistence layer: editions, works, authors,
// the external-ID crosswalk, the enrichment log, and backfill checkpoints.
// It is grounded on the teacher's internal/persist.go Persister, but where
// the teacher repurposes a single generic `cache` table as its only store,
// this repository gives each entity its own relational table, since the
// spec's invariants (unique crosswalk rows, normalized_name indexes,
// related_isbins containment) need real columns and indexes to hold.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Pool exposes the underlying connection pool for components that need to
// wire it directly, such as the pgxpool Prometheus collector and the
// periodic row-count sampler in metrics.go.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Schema is the set of DDL statements this repository depends on. It is
// applied once at startup (idempotently, via IF NOT EXISTS) rather than
// through a migration framework, matching the teacher's preference for a
// small number of hand-written SQL statements over an ORM.
const Schema = `
CREATE TABLE IF NOT EXISTS works (
	key            BIGSERIAL PRIMARY KEY,
	title          TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS authors (
	key             BIGSERIAL PRIMARY KEY,
	name            TEXT NOT NULL,
	normalized_name TEXT NOT NULL,
	work_count      INT NOT NULL DEFAULT 0,
	external_refs   JSONB NOT NULL DEFAULT '{}',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS authors_normalized_name_idx ON authors (normalized_name);
CREATE INDEX IF NOT EXISTS authors_canonical_idx ON authors (normalized_name, work_count DESC);
CREATE EXTENSION IF NOT EXISTS pg_trgm;
CREATE INDEX IF NOT EXISTS authors_name_trgm_idx ON authors USING gin (name gin_trgm_ops);

CREATE TABLE IF NOT EXISTS works_authors (
	work_key   BIGINT NOT NULL REFERENCES works(key),
	author_key BIGINT NOT NULL REFERENCES authors(key),
	PRIMARY KEY (work_key, author_key)
);

CREATE TABLE IF NOT EXISTS editions (
	isbn            TEXT PRIMARY KEY,
	work_key        BIGINT REFERENCES works(key),
	title           TEXT NOT NULL,
	publisher       TEXT,
	published_year  INT,
	published_month INT,
	published_day   INT,
	page_count      INT,
	language        TEXT,
	cover_url       TEXT,
	external_id     TEXT,
	source_provider TEXT,
	related_isbns   TEXT[] NOT NULL DEFAULT '{}',
	subjects        TEXT[] NOT NULL DEFAULT '{}',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS editions_title_trgm_idx ON editions USING gin (title gin_trgm_ops);

CREATE TABLE IF NOT EXISTS editions_authors (
	isbn       TEXT NOT NULL REFERENCES editions(isbn),
	author_key BIGINT NOT NULL REFERENCES authors(key),
	PRIMARY KEY (isbn, author_key)
);

CREATE TABLE IF NOT EXISTS crosswalk (
	entity_type TEXT NOT NULL,
	our_key     BIGINT NOT NULL,
	provider    TEXT NOT NULL,
	provider_id TEXT NOT NULL,
	confidence  INT NOT NULL DEFAULT 0,
	PRIMARY KEY (entity_type, provider, provider_id)
);

CREATE TABLE IF NOT EXISTS enrichment_log (
	correlation_id  TEXT PRIMARY KEY,
	entity_type     TEXT NOT NULL,
	key             TEXT NOT NULL,
	provider_chain  TEXT[] NOT NULL DEFAULT '{}',
	duration_millis BIGINT NOT NULL,
	outcome         TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS backfill_checkpoints (
	bucket_id      TEXT PRIMARY KEY,
	cursor         TEXT NOT NULL DEFAULT '',
	processed_keys TEXT[] NOT NULL DEFAULT '{}',
	failed_keys    TEXT[] NOT NULL DEFAULT '{}',
	total_planned  INT NOT NULL DEFAULT 0,
	totals_found   INT NOT NULL DEFAULT 0,
	totals_new     INT NOT NULL DEFAULT 0,
	totals_queued  INT NOT NULL DEFAULT 0,
	started_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_updated   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

// GetEditionByISBN returns nil, nil on a miss (NotFound is success, not an
// error, per §7).
func (s *Store) GetEditionByISBN(ctx context.Context, isbn string) (*Edition, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT isbn, work_key, title, publisher, published_year, published_month,
		       published_day, page_count, language, cover_url, external_id,
		       source_provider, related_isbns, subjects, created_at, updated_at
		FROM editions WHERE isbn = $1 OR $1 = ANY(related_isbns)`, isbn)
	var e Edition
	var workKey *int64
	if err := row.Scan(&e.ISBN, &workKey, &e.Title, &e.Publisher, &e.PublishedYear,
		&e.PublishedMonth, &e.PublishedDay, &e.PageCount, &e.Language, &e.CoverURL,
		&e.ExternalID, &e.SourceProvider, &e.RelatedISBNs, &e.Subjects, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, nil //nolint:nilerr // pgx.ErrNoRows folds into "not found" here
	}
	if workKey != nil {
		e.WorkKey = *workKey
	}
	return &e, nil
}

// UpsertEdition writes or updates an edition, never overwriting a non-null
// field with null (§4.4 step 4). isbn is guaranteed a member of
// related_isbns (§8 invariant).
func (s *Store) UpsertEdition(ctx context.Context, e Edition) error {
	related := appendUnique(e.RelatedISBNs, e.ISBN)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO editions (isbn, work_key, title, publisher, published_year,
		       published_month, published_day, page_count, language, cover_url,
		       external_id, source_provider, related_isbns, subjects, updated_at)
		VALUES ($1,NULLIF($2::BIGINT, 0),$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14, now())
		ON CONFLICT (isbn) DO UPDATE SET
			work_key        = COALESCE(EXCLUDED.work_key, editions.work_key),
			title           = COALESCE(NULLIF(EXCLUDED.title, ''), editions.title),
			publisher       = COALESCE(NULLIF(EXCLUDED.publisher, ''), editions.publisher),
			published_year  = COALESCE(NULLIF(EXCLUDED.published_year, 0), editions.published_year),
			published_month = COALESCE(NULLIF(EXCLUDED.published_month, 0), editions.published_month),
			published_day   = COALESCE(NULLIF(EXCLUDED.published_day, 0), editions.published_day),
			page_count      = COALESCE(NULLIF(EXCLUDED.page_count, 0), editions.page_count),
			language        = COALESCE(NULLIF(EXCLUDED.language, ''), editions.language),
			cover_url       = COALESCE(NULLIF(EXCLUDED.cover_url, ''), editions.cover_url),
			external_id     = COALESCE(NULLIF(EXCLUDED.external_id, ''), editions.external_id),
			source_provider = COALESCE(NULLIF(EXCLUDED.source_provider, ''), editions.source_provider),
			related_isbns   = (SELECT array_agg(DISTINCT x) FROM unnest(editions.related_isbns || EXCLUDED.related_isbns) x),
			subjects        = (SELECT array_agg(DISTINCT x) FROM unnest(editions.subjects || EXCLUDED.subjects) x),
			updated_at      = now()
	`, e.ISBN, e.WorkKey, e.Title, e.Publisher, e.PublishedYear, e.PublishedMonth,
		e.PublishedDay, e.PageCount, e.Language, e.CoverURL, e.ExternalID,
		e.SourceProvider, related, e.Subjects)
	return err
}

func appendUnique(xs []string, x string) []string {
	for _, v := range xs {
		if v == x {
			return xs
		}
	}
	return append(xs, x)
}

// FindAuthorByNormalizedName matches by normalized_name and returns the
// canonical choice (greatest work count, ties broken by lowest key), per
// §4.7's authorsExisting contract.
func (s *Store) FindAuthorByNormalizedName(ctx context.Context, normalized string) (*Author, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT key, name, normalized_name, work_count, external_refs, created_at, updated_at
		FROM authors WHERE normalized_name = $1
		ORDER BY work_count DESC, key ASC
		LIMIT 1`, normalized)
	var a Author
	if err := row.Scan(&a.Key, &a.Name, &a.NormalizedName, &a.WorkCount, &a.ExternalRefs, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, nil //nolint:nilerr
	}
	return &a, nil
}

// InsertAuthor creates a new author row with normalized_name kept in sync
// with name, per §3's invariant.
func (s *Store) InsertAuthor(ctx context.Context, name string) (int64, error) {
	normalized := NormalizeAuthorName(name)
	var key int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO authors (name, normalized_name) VALUES ($1, $2)
		RETURNING key`, name, normalized).Scan(&key)
	return key, err
}

func (s *Store) IncrementAuthorWorkCount(ctx context.Context, authorKey int64, delta int) error {
	_, err := s.pool.Exec(ctx, `UPDATE authors SET work_count = work_count + $2, updated_at = now() WHERE key = $1`, authorKey, delta)
	return err
}

// FuzzyTitleExists implements the storage-side half of §4.7's
// fuzzyTitleExists, using Postgres's pg_trgm similarity() as the final
// (non-permissive) predicate.
func (s *Store) FuzzyTitleExists(ctx context.Context, title string, threshold float64) (bool, float64, string, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT title, similarity(title, $1) AS score
		FROM editions
		WHERE similarity(title, $1) >= $2
		ORDER BY score DESC
		LIMIT 1`, title, threshold)
	var match string
	var score float64
	if err := row.Scan(&match, &score); err != nil {
		return false, 0, "", nil //nolint:nilerr
	}
	return true, score, match, nil
}

// ISBNsExisting returns the subset of isbns already persisted, searching
// related_isbns too (§4.7).
func (s *Store) ISBNsExisting(ctx context.Context, isbns []string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT unnest(related_isbns || ARRAY[isbn]) AS known
		FROM editions WHERE isbn = ANY($1) OR related_isbns && $1`, isbns)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	want := make(map[string]bool, len(isbns))
	for _, i := range isbns {
		want[i] = false
	}
	for rows.Next() {
		var known string
		if err := rows.Scan(&known); err != nil {
			return nil, err
		}
		if _, ok := want[known]; ok {
			want[known] = true
		}
	}
	return want, rows.Err()
}

// InsertCrosswalk is conflict-safe: duplicates do not fail the operation
// (§3).
func (s *Store) InsertCrosswalk(ctx context.Context, c CrosswalkEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO crosswalk (entity_type, our_key, provider, provider_id, confidence)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (entity_type, provider, provider_id) DO NOTHING`,
		c.EntityType, c.OurKey, c.Provider, c.ProviderID, c.Confidence)
	return err
}

// FindCrosswalk returns nil, nil when no row matches.
func (s *Store) FindCrosswalk(ctx context.Context, entityType, provider, providerID string) (*CrosswalkEntry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT entity_type, our_key, provider, provider_id, confidence
		FROM crosswalk WHERE entity_type = $1 AND provider = $2 AND provider_id = $3`,
		entityType, provider, providerID)
	var c CrosswalkEntry
	if err := row.Scan(&c.EntityType, &c.OurKey, &c.Provider, &c.ProviderID, &c.Confidence); err != nil {
		return nil, nil //nolint:nilerr
	}
	return &c, nil
}

func (s *Store) LogEnrichment(ctx context.Context, e EnrichmentLogEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO enrichment_log (correlation_id, entity_type, key, provider_chain, duration_millis, outcome)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (correlation_id) DO NOTHING`,
		e.CorrelationID, e.EntityType, e.Key, e.ProviderChain, e.DurationMillis, e.Outcome)
	return err
}

// SaveCheckpoint upserts a backfill checkpoint row (§4.10 step 5).
func (s *Store) SaveCheckpoint(ctx context.Context, c CheckpointRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO backfill_checkpoints (bucket_id, cursor, processed_keys, failed_keys, total_planned,
		       totals_found, totals_new, totals_queued, started_at, last_updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
		ON CONFLICT (bucket_id) DO UPDATE SET
			cursor         = EXCLUDED.cursor,
			processed_keys = EXCLUDED.processed_keys,
			failed_keys    = EXCLUDED.failed_keys,
			total_planned  = EXCLUDED.total_planned,
			totals_found   = EXCLUDED.totals_found,
			totals_new     = EXCLUDED.totals_new,
			totals_queued  = EXCLUDED.totals_queued,
			last_updated   = now()`,
		c.BucketID, c.Cursor, c.ProcessedKeys, c.FailedKeys, c.TotalPlanned, c.TotalsFound,
		c.TotalsNew, c.TotalsQueued, c.StartedAt)
	return err
}

// LoadCheckpoint returns nil, nil when no checkpoint exists yet for bucketID.
func (s *Store) LoadCheckpoint(ctx context.Context, bucketID string) (*CheckpointRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT bucket_id, cursor, processed_keys, failed_keys, total_planned, totals_found,
		       totals_new, totals_queued, started_at, last_updated
		FROM backfill_checkpoints WHERE bucket_id = $1`, bucketID)
	var c CheckpointRecord
	if err := row.Scan(&c.BucketID, &c.Cursor, &c.ProcessedKeys, &c.FailedKeys, &c.TotalPlanned,
		&c.TotalsFound, &c.TotalsNew, &c.TotalsQueued, &c.StartedAt, &c.LastUpdated); err != nil {
		return nil, nil //nolint:nilerr
	}
	return &c, nil
}
