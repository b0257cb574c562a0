package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/alecthomas/kong"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/stampede"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jukasdrj/alexandria/internal"
)

// cli contains our command-line flags.
type cli struct {
	Serve    serveCmd    `cmd:"" help:"Run the enrichment core's HTTP server."`
	Backfill backfillCmd `cmd:"" help:"Run a historical backfill to completion."`
	Bust     bustCmd     `cmd:"" help:"Bust an author's cached crosswalk entry."`
}

type serveCmd struct {
	Port    int  `default:"8788" help:"Port to serve traffic on."`
	Verbose bool `help:"Increase log verbosity."`
}

type backfillCmd struct {
	BucketID   string `arg:"" help:"Bucket/checkpoint identifier to run or resume."`
	BucketSize int    `default:"0" help:"Override the configured backfill bucket size."`
	Verbose    bool   `help:"Increase log verbosity."`
}

type bustCmd struct {
	AuthorExternalID string `arg:"" help:"external ID (provider:provider_id) to evict from the crosswalk cache."`
	Verbose          bool   `help:"Increase log verbosity."`
}

// app bundles every component main.go wires together; each subcommand
// builds one from Config and runs its slice of it.
type app struct {
	cfg       internal.Config
	store     *internal.Store
	cache     internal.Cache
	registry  *internal.Registry
	quota     *internal.QuotaLedger
	limiter   *internal.RateLimiter
	dedupe    *internal.DedupService
	locks     *internal.FindOrCreateLocks
	queue     *internal.QueuePipeline
	webhook   *internal.WebhookNotifier
	engine    *internal.Engine
	metricsReg *prometheus.Registry

	merge        *internal.MetadataMergeOrchestrator
	variants     *internal.EditionVariantOrchestrator
	bibliography *internal.AuthorBibliographyOrchestrator
	generation   *internal.BookGenerationOrchestrator
	backfill     *internal.BackfillScheduler
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	store, err := internal.NewStore(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	registry := internal.NewRegistry()
	metricsReg := internal.NewMetrics()
	providerMetrics := internal.NewProviderMetrics(metricsReg)
	cacheMetrics := internal.NewCacheMetrics(metricsReg)

	redisCache := internal.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	cache, err := internal.NewHotCacheWithMetrics(redisCache, cacheMetrics)
	if err != nil {
		return nil, fmt.Errorf("constructing cache: %w", err)
	}

	bookAPI := internal.NewBookAPIProvider(cfg.BookAPIEndpoint, cfg.BookAPIHost, cfg.BookAPIKey, providerMetrics)
	freeAPI := internal.NewFreeAPIProvider(cfg.FreeAPIBase)
	openLibrary := internal.NewOpenLibraryProvider()
	identity := internal.NewIdentityProvider(store, cache, providerMetrics)
	aigen := internal.NewAIGenProvider(cfg.OpenAIKey, cfg.OpenAIModel, providerMetrics)

	for _, p := range []internal.Provider{bookAPI, freeAPI, openLibrary, identity, aigen} {
		if err := registry.Register(p); err != nil {
			return nil, fmt.Errorf("registering provider: %w", err)
		}
	}
	// Paid provider first so it wins field-merge priority; free providers
	// fill gaps and serve as failover when quota is exhausted (§4.3).
	registry.SetPriority([]string{"bookapi", "openlibrary", "freeapi", "identity", "aigen"})
	registry.Seal()

	quota := internal.NewQuotaLedger(cache)
	limiter := internal.NewRateLimiter(cache, nil)
	dedupe := internal.NewDedupService(store)
	locks := internal.NewFindOrCreateLocks()
	queue := internal.NewQueuePipeline(nil, internal.NewQueueMetrics(metricsReg))

	var webhook *internal.WebhookNotifier
	if cfg.WebhookEndpoint != "" {
		webhook = internal.NewWebhookNotifier(cfg.WebhookEndpoint, cfg.WebhookSecret)
	}

	dailyLimits := map[string]int64{"bookapi": cfg.BookAPIDailyLimit}
	merge := internal.NewMetadataMergeOrchestrator(registry, quota, dailyLimits)
	variants := internal.NewEditionVariantOrchestrator(registry)
	bibliography := internal.NewAuthorBibliographyOrchestrator(registry)
	generation := internal.NewBookGenerationOrchestrator(registry)

	engineMetrics := internal.NewEngineMetrics(metricsReg)
	engine := internal.NewEngine(merge, variants, dedupe, locks, store, queue, webhook, engineMetrics)

	// Once the paid catalog pager runs dry, fall back to a curated AI
	// prompt so a long-running backfill keeps discovering candidates (§4.10).
	aiBackfillSource := internal.NewAIGenBackfillSource(generation,
		"Suggest well-reviewed but under-catalogued books, with valid ISBN-13s, to backfill a book metadata catalog.", 25)
	backfillSource := internal.NewFallbackBackfillSource(internal.NewBookAPIBackfillSource(bookAPI), aiBackfillSource)
	backfill := internal.NewBackfillScheduler(backfillSource, dedupe, store, queue, cfg.QueueBucketSize)

	registerQueueConsumers(queue, engine, bibliography)
	queue.Start()

	internal.NewDBMetrics(store.Pool(), metricsReg)

	return &app{
		cfg: cfg, store: store, cache: cache, registry: registry, quota: quota,
		limiter: limiter, dedupe: dedupe, locks: locks, queue: queue, webhook: webhook,
		engine: engine, metricsReg: metricsReg, merge: merge, variants: variants,
		bibliography: bibliography, generation: generation, backfill: backfill,
	}, nil
}

// registerQueueConsumers binds each queue kind to the component that knows
// how to process it (§4.5): enrich_edition drives the engine directly,
// enrich_author re-enters the bibliography orchestrator, and process_cover
// is acknowledged inline. No consumer is registered for enrich_work or
// backfill_batch; QueuePipeline.process drops messages of a kind that has
// no consumer.
func registerQueueConsumers(queue *internal.QueuePipeline, engine *internal.Engine, bibliography *internal.AuthorBibliographyOrchestrator) {
	queue.RegisterConsumer(internal.QueueEnrichEdition, func(ctx context.Context, msg internal.QueueMessage) error {
		_, err := engine.EnrichEdition(ctx, msg.Key)
		return err
	})
	queue.RegisterConsumer(internal.QueueEnrichAuthor, func(ctx context.Context, msg internal.QueueMessage) error {
		_, err := bibliography.Fetch(ctx, msg.Key, 3)
		return err
	})
	queue.RegisterConsumer(internal.QueueProcessCover, func(ctx context.Context, msg internal.QueueMessage) error {
		// Cover image decode/encode is explicitly out of scope (§1); the
		// consumer only has to exist so the queue's state machine resolves
		// the message rather than stalling it.
		internal.Log(ctx).Debug("cover job acked", "key", msg.Key)
		return nil
	})
}

func (s *serveCmd) Run() error {
	internal.SetVerbose(s.Verbose)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	h := newHandler(a.engine, a.store, a.dedupe, a.queue, a.bibliography, a.backfill, a.limiter, a.cfg.BackfillSecret)
	mux := newMux(h)

	mux = internal.Instrument(a.metricsReg, mux)
	mux = stampede.Handler(1024, 0)(mux)    // Coalesce requests to the same resource.
	mux = middleware.RequestSize(1 << 20)(mux) // Limit request bodies.
	mux = middleware.RedirectSlashes(mux)   // Normalize paths for caching.
	mux = middleware.RequestID(mux)         // Include a request ID header.
	mux = middleware.Recoverer(mux)         // Recover from panics.

	addr := fmt.Sprintf(":%d", s.Port)
	server := &http.Server{
		Handler:  mux,
		Addr:     addr,
		ErrorLog: slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("listening on " + addr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
		slog.Info("shutting down, draining in-flight work")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), internal.ShutdownGracePeriod())
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
		if err := a.queue.Shutdown(shutdownCtx); err != nil {
			slog.Warn("queue shutdown did not drain cleanly", "err", err)
		}
		return nil
	}
}

func (b *backfillCmd) Run() error {
	internal.SetVerbose(b.Verbose)
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	if b.BucketSize > 0 {
		if p, ok := a.registry.ByName("bookapi"); ok {
			bookAPI := p.(*internal.BookAPIProvider)
			a.backfill = internal.NewBackfillScheduler(internal.NewBookAPIBackfillSource(bookAPI), a.dedupe, a.store, a.queue, b.BucketSize)
		}
	}
	return a.backfill.Run(ctx, b.BucketID)
}

func (b *bustCmd) Run() error {
	internal.SetVerbose(b.Verbose)
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	return a.cache.Delete(ctx, "crosswalk:author:"+b.AuthorExternalID)
}

func main() {
	kctx := kong.Parse(&cli{})
	err := kctx.Run()
	if err != nil {
		internal.Log(context.Background()).Error("fatal", "err", err)
		os.Exit(1)
	}
}

func init() {
	// Limit our memory to 90% of what's free. This affects cache sizes.
	_, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(0.9),
		memlimit.WithLogger(slog.Default()),
		memlimit.WithProvider(
			memlimit.ApplyFallback(
				memlimit.FromCgroup,
				memlimit.FromSystem,
			),
		),
	)
	if err != nil {
		panic(err)
	}
}
