package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/jukasdrj/alexandria/internal"
)

// handler is the thin HTTP surface in front of the enrichment core (out of
// scope per §1, carried here only as the core's ambient edge). It defers
// every real decision to the engine, orchestrators, and dedup service.
type handler struct {
	engine       *internal.Engine
	store        *internal.Store
	dedupe       *internal.DedupService
	queue        *internal.QueuePipeline
	bibliography *internal.AuthorBibliographyOrchestrator
	backfill     *internal.BackfillScheduler
	limiter      *internal.RateLimiter

	backfillSecret string
}

func newHandler(
	engine *internal.Engine,
	store *internal.Store,
	dedupe *internal.DedupService,
	queue *internal.QueuePipeline,
	bibliography *internal.AuthorBibliographyOrchestrator,
	backfill *internal.BackfillScheduler,
	limiter *internal.RateLimiter,
	backfillSecret string,
) *handler {
	return &handler{
		engine: engine, store: store, dedupe: dedupe, queue: queue,
		bibliography: bibliography, backfill: backfill, limiter: limiter,
		backfillSecret: backfillSecret,
	}
}

// newMux registers the handler's routes on a chi.Router.
func newMux(h *handler) http.Handler {
	r := chi.NewRouter()

	r.With(h.rateLimited(internal.RouteWrite)).Post("/enrich/edition", h.enrichEdition)
	r.With(h.rateLimited(internal.RouteHeavy)).Post("/enrich/queue/batch", h.enrichQueueBatch)
	r.With(h.rateLimited(internal.RouteHeavy)).Post("/authors/enrich-bibliography", h.enrichBibliography)
	r.With(h.rateLimited(internal.RouteStandard)).Post("/isbns/check", h.isbnsCheck)
	r.With(h.rateLimited(internal.RouteHeavy)).Post("/internal/schedule-backfill", h.scheduleBackfill)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return r
}

// rateLimited wraps a route with C5's per-client sliding-window limiter
// (§4.6). Denied requests get a 429-equivalent AppError with retry_after.
func (h *handler) rateLimited(class internal.RouteClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := h.limiter.Allow(r.Context(), class, clientIP(r))
			if !result.Allowed {
				internal.WriteErrorResponse(w, internal.RateLimitedError(result.RetryAfter), requestID(r))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

func (h *handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	internal.WriteErrorResponse(w, err, requestID(r))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// enrichEdition handles `POST /enrich/edition`: synchronous enrichment of a
// single ISBN (§6).
func (h *handler) enrichEdition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req enrichEditionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErr(w, r, internal.ValidationError("malformed request body", err.Error()))
		return
	}
	if req.ISBN == "" {
		h.writeErr(w, r, internal.ValidationError("isbn is required", ""))
		return
	}

	result, err := h.engine.EnrichEdition(ctx, req.ISBN)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	writeJSON(w, enrichEditionResponse{
		ISBN: result.ISBN, Inserted: result.Inserted, Updated: result.Updated,
		NoOp: result.NoOp, CoverQueued: result.CoverQueued, CorrelationID: result.CorrelationID,
	})
}

// enrichQueueBatch handles `POST /enrich/queue/batch`: validates and
// enqueues a batch of candidate ISBNs for asynchronous enrichment (§6).
func (h *handler) enrichQueueBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req enrichQueueBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErr(w, r, internal.ValidationError("malformed request body", err.Error()))
		return
	}

	resp := enrichQueueBatchResponse{}
	for _, b := range req.Books {
		norm := internal.NormalizeISBN(b.ISBN)
		if !internal.ValidateISBN(norm) {
			resp.Failed++
			continue
		}
		payload, _ := json.Marshal(queueBookRequest{ISBN: norm, Title: b.Title, Author: b.Author, Priority: b.Priority, Source: b.Source})
		err := h.queue.Enqueue(ctx, internal.QueueMessage{Kind: internal.QueueEnrichEdition, Key: norm, Payload: payload})
		if err != nil {
			resp.Failed++
			continue
		}
		resp.Queued++
	}

	writeJSON(w, resp)
}

// enrichBibliography handles `POST /authors/enrich-bibliography` (§6):
// pages a free bibliography provider, then enriches each newly-seen ISBN
// synchronously so the response totals reflect real work done.
func (h *handler) enrichBibliography(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req enrichBibliographyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErr(w, r, internal.ValidationError("malformed request body", err.Error()))
		return
	}
	if req.AuthorName == "" {
		h.writeErr(w, r, internal.ValidationError("author_name is required", ""))
		return
	}
	if req.MaxPages <= 0 {
		req.MaxPages = 3
	}

	books, err := h.bibliography.Fetch(ctx, req.AuthorName, req.MaxPages)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	resp := enrichBibliographyResponse{BooksFound: len(books)}
	for _, b := range books {
		if b.ISBN == "" {
			continue
		}
		norm := internal.NormalizeISBN(b.ISBN)
		if !internal.ValidateISBN(norm) {
			continue
		}
		if existing, gerr := h.store.GetEditionByISBN(ctx, norm); gerr == nil && existing != nil {
			resp.Cached++
			continue
		}
		result, eerr := h.engine.EnrichEdition(ctx, norm)
		if eerr != nil {
			continue
		}
		if result.Inserted || result.Updated {
			resp.NewlyEnriched++
		}
		if result.CoverQueued {
			resp.CoversQueued++
		}
	}

	writeJSON(w, resp)
}

// isbnsCheck handles `POST /isbns/check` (§6): bounded to 1000 ISBNs per
// call, response time independent of total catalog size (§8 scenario 3).
func (h *handler) isbnsCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req isbnsCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErr(w, r, internal.ValidationError("malformed request body", err.Error()))
		return
	}
	if len(req.ISBNs) > 1000 {
		h.writeErr(w, r, internal.ValidationError("at most 1000 isbns per call", ""))
		return
	}

	existing, err := h.dedupe.ISBNsExisting(ctx, req.ISBNs)
	if err != nil {
		h.writeErr(w, r, internal.InternalError("existence check failed", err.Error()))
		return
	}

	out := make([]string, 0, len(existing))
	for isbn, ok := range existing {
		if ok {
			out = append(out, isbn)
		}
	}
	writeJSON(w, isbnsCheckResponse{Existing: out})
}

// scheduleBackfill handles `POST /internal/schedule-backfill` (§6),
// protected by a shared-secret header since it is an operator endpoint, not
// a client-facing one. The scheduler run itself is long-lived, so it is
// launched in the background and this handler only confirms acceptance.
func (h *handler) scheduleBackfill(w http.ResponseWriter, r *http.Request) {
	if h.backfillSecret == "" || r.Header.Get("X-Backfill-Secret") != h.backfillSecret {
		h.writeErr(w, r, internal.AuthError("missing or invalid backfill secret"))
		return
	}

	var req scheduleBackfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErr(w, r, internal.ValidationError("malformed request body", err.Error()))
		return
	}

	bucketID := req.YearRange
	if bucketID == "" {
		bucketID = uuid.NewString()
	}

	if req.DryRun {
		writeJSON(w, scheduleBackfillResponse{BucketID: bucketID, Accepted: true})
		return
	}

	go func() {
		ctx := r.Context()
		internal.Log(ctx).Info("backfill run starting", "bucket_id", bucketID)
		// The run outlives this request, so it must not inherit the
		// request's cancellation once the response is written.
		if err := h.backfill.Run(context.WithoutCancel(ctx), bucketID); err != nil {
			internal.Log(ctx).Error("backfill run failed", "bucket_id", bucketID, "err", err)
		}
	}()

	writeJSON(w, scheduleBackfillResponse{BucketID: bucketID, Accepted: true})
}
