package main

// Wire-format DTOs for the HTTP surface named in §6. These are the shapes
// handler.go marshals and unmarshals; the internal package's Edition/Work/
// Author types are the persisted records, not the wire contract.

type enrichEditionRequest struct {
	ISBN     string            `json:"isbn"`
	Title    string            `json:"title,omitempty"`
	Author   string            `json:"author,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type enrichEditionResponse struct {
	ISBN          string `json:"isbn"`
	Inserted      bool   `json:"inserted"`
	Updated       bool   `json:"updated"`
	NoOp          bool   `json:"noop"`
	CoverQueued   bool   `json:"cover_queued"`
	CorrelationID string `json:"correlation_id"`
}

type queueBookRequest struct {
	ISBN     string `json:"isbn"`
	Title    string `json:"title,omitempty"`
	Author   string `json:"author,omitempty"`
	Priority int    `json:"priority,omitempty"`
	Source   string `json:"source,omitempty"`
}

type enrichQueueBatchRequest struct {
	Books []queueBookRequest `json:"books"`
}

type enrichQueueBatchResponse struct {
	Queued int `json:"queued"`
	Failed int `json:"failed"`
}

type enrichBibliographyRequest struct {
	AuthorName string `json:"author_name"`
	MaxPages   int    `json:"max_pages"`
}

type enrichBibliographyResponse struct {
	BooksFound    int `json:"books_found"`
	NewlyEnriched int `json:"newly_enriched"`
	CoversQueued  int `json:"covers_queued"`
	Cached        int `json:"cached"`
}

type isbnsCheckRequest struct {
	ISBNs []string `json:"isbns"`
}

type isbnsCheckResponse struct {
	Existing []string `json:"existing"`
}

type scheduleBackfillRequest struct {
	BatchSize  int    `json:"batch_size"`
	YearRange  string `json:"year_range,omitempty"`
	DryRun     bool   `json:"dry_run"`
	ForceRetry bool   `json:"force_retry,omitempty"`
}

type scheduleBackfillResponse struct {
	BucketID string `json:"bucket_id"`
	Accepted bool   `json:"accepted"`
}
