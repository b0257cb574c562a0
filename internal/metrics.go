package internal

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
)

// NewMetrics creates a new Prometheus registry with default collectors
// already registered.
func NewMetrics() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{
			Namespace: _metricsNamespace,
		}),
		collectors.NewBuildInfoCollector(),
	)

	return reg
}

var _metricsNamespace = "alexandria"

// _patternRE is used for stripping all `{...}` segments from the pattern
// to build a label.
var _patternRE = regexp.MustCompile(`\{[^/]+\}`)

// EngineMetrics tracks C8 enrichment outcomes by entity type and result.
type EngineMetrics struct {
	totals *prometheus.CounterVec
}

// CacheMetrics tracks HotCache/RedisCache hit/miss rates.
type CacheMetrics struct {
	totals *prometheus.CounterVec
}

// ProviderMetrics tracks per-provider call volume and failures (C4/C7).
type ProviderMetrics struct {
	totals *prometheus.CounterVec
}

// QueueMetrics tracks C9 queue state-machine transitions per queue kind.
type QueueMetrics struct {
	totals *prometheus.CounterVec
}

// DBMetrics periodically samples row counts across the relational schema.
type DBMetrics struct {
	gauge *prometheus.GaugeVec
}

// Instrument wraps an HTTP handler to automatically record timing and status
// codes.
func Instrument(reg *prometheus.Registry, next http.Handler) http.Handler {
	requests := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: _metricsNamespace,
			Subsystem: "http",
			Name:      "requests",
			Help:      "HTTP request latencies by method & path",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 1.5, 2.0, 2.5, 5, 7.5, 10, 30, 60, 120},
		},
		[]string{"method", "path", "status"},
	)

	inflight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: _metricsNamespace,
			Subsystem: "http",
			Name:      "inflight",
			Help:      "Current number of inbound in-flight HTTP requests.",
		},
	)

	normalized := map[string]string{}

	reg.MustRegister(requests, inflight)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		inflight.Inc()
		defer inflight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path, ok := normalized[r.Pattern]
		if !ok {
			path = normalizePattern(r.Pattern)
			normalized[r.Pattern] = path
		}
		if path == "" {
			// Don't record traffic for unrecognized endpoints.
			return
		}

		duration := time.Since(start).Seconds()
		requests.WithLabelValues(r.Method, path, fmt.Sprint(ww.Status())).Observe(duration)
	})
}

func NewEngineMetrics(reg *prometheus.Registry) *EngineMetrics {
	totals := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: _metricsNamespace,
			Subsystem: "engine",
			Name:      "total_enrichments",
			Help:      "Counts of enrichment outcomes by entity type and result.",
		},
		[]string{"entity_type", "outcome"},
	)
	if reg != nil {
		reg.MustRegister(totals)
	}
	return &EngineMetrics{totals: totals}
}

func (em *EngineMetrics) outcomeInc(entityType, outcome string) {
	if em == nil {
		return
	}
	em.totals.WithLabelValues(entityType, outcome).Inc()
}

func NewCacheMetrics(reg *prometheus.Registry) *CacheMetrics {
	totals := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: _metricsNamespace,
			Subsystem: "cache",
			Name:      "total",
			Help:      "Totals for cache system.",
		},
		[]string{"type"},
	)
	if reg != nil {
		reg.MustRegister(totals)
	}
	return &CacheMetrics{totals: totals}
}

func (cm *CacheMetrics) cacheHitInc() {
	if cm == nil {
		return
	}
	cm.totals.WithLabelValues("hits").Inc()
}

func (cm *CacheMetrics) cacheMissInc() {
	if cm == nil {
		return
	}
	cm.totals.WithLabelValues("misses").Inc()
}

func (cm *CacheMetrics) cacheHitGet() int64 {
	m := &dto.Metric{}
	err := cm.totals.WithLabelValues("hits").Write(m)
	if err != nil {
		return 0
	}
	return int64(m.GetCounter().GetValue())
}

func (cm *CacheMetrics) cacheMissGet() int64 {
	m := &dto.Metric{}
	err := cm.totals.WithLabelValues("misses").Write(m)
	if err != nil {
		return 0
	}
	return int64(m.GetCounter().GetValue())
}

func (cm *CacheMetrics) cacheHitRatioGet() float64 {
	hits := cm.cacheHitGet()
	misses := cm.cacheMissGet()
	if hits+misses == 0 {
		return 0.0
	}
	return float64(hits) / float64(hits+misses)
}

func NewProviderMetrics(reg *prometheus.Registry) *ProviderMetrics {
	totals := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: _metricsNamespace,
			Subsystem: "provider",
			Name:      "total_calls",
			Help:      "Counts of provider calls by provider name and outcome.",
		},
		[]string{"provider", "outcome"},
	)
	if reg != nil {
		reg.MustRegister(totals)
	}
	return &ProviderMetrics{totals: totals}
}

func (pm *ProviderMetrics) callInc(provider, outcome string) {
	if pm == nil {
		return
	}
	pm.totals.WithLabelValues(provider, outcome).Inc()
}

func NewQueueMetrics(reg *prometheus.Registry) *QueueMetrics {
	totals := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: _metricsNamespace,
			Subsystem: "queue",
			Name:      "total_transitions",
			Help:      "Counts of queue message state transitions by queue kind and transition.",
		},
		[]string{"kind", "transition"},
	)
	if reg != nil {
		reg.MustRegister(totals)
	}
	return &QueueMetrics{totals: totals}
}

func (qm *QueueMetrics) enqueuedInc(kind string) { qm.transitionInc(kind, "enqueued") }
func (qm *QueueMetrics) ackedInc(kind string)    { qm.transitionInc(kind, "acked") }
func (qm *QueueMetrics) retriedInc(kind string)  { qm.transitionInc(kind, "retried") }
func (qm *QueueMetrics) dlqInc(kind string)      { qm.transitionInc(kind, "dlq") }
func (qm *QueueMetrics) expiredInc(kind string)  { qm.transitionInc(kind, "expired") }

func (qm *QueueMetrics) transitionInc(kind, transition string) {
	if qm == nil {
		return
	}
	qm.totals.WithLabelValues(kind, transition).Inc()
}

func NewDBMetrics(db *pgxpool.Pool, reg *prometheus.Registry) *DBMetrics {
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: _metricsNamespace,
			Subsystem: "db",
			Name:      "total",
			Help:      "Counts of persisted rows by table.",
		},
		[]string{"table"},
	)
	if reg != nil {
		reg.MustRegister(gauge, pgxpoolprometheus.NewCollector(db, nil))
	}
	dbm := &DBMetrics{gauge: gauge}
	// Sampling table counts is a cheap periodic query; no dirty-bit
	// tracking is needed the way the cache-table version required one.
	go func() {
		ctx := context.Background()
		for {
			row := db.QueryRow(ctx, `
			  SELECT
				(SELECT count(*) FROM works)     AS works,
				(SELECT count(*) FROM authors)   AS authors,
				(SELECT count(*) FROM editions)  AS editions,
				(SELECT count(*) FROM crosswalk) AS crosswalk;
			`)
			var works, authors, editions, crosswalk int64
			err := row.Scan(&works, &authors, &editions, &crosswalk)
			if err != nil {
				Log(ctx).Warn("problem collecting db stats", "err", err)
			} else {
				dbm.gauge.WithLabelValues("works").Set(float64(works))
				dbm.gauge.WithLabelValues("authors").Set(float64(authors))
				dbm.gauge.WithLabelValues("editions").Set(float64(editions))
				dbm.gauge.WithLabelValues("crosswalk").Set(float64(crosswalk))
			}
			time.Sleep(5 * time.Minute)
		}
	}()
	return dbm
}

// normalizePattern derives the constant label from the pattern:
//
//	"/authors/{key}" → "/authors"
//	"/editions/bulk"  → "/editions/bulk"
func normalizePattern(pattern string) string {
	p := _patternRE.ReplaceAllString(pattern, "")
	p = strings.TrimSuffix(p, "/")
	p = strings.ReplaceAll(p, "//", "/")
	return p
}
