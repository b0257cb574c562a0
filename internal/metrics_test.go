package internal

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestEngineMetrics(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	em := NewEngineMetrics(reg)

	em.outcomeInc("edition", "inserted")
	em.outcomeInc("edition", "inserted")
	em.outcomeInc("edition", "noop")

	assert.Equal(t, 2.0, testutil.ToFloat64(em.totals.WithLabelValues("edition", "inserted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(em.totals.WithLabelValues("edition", "noop")))
}

func TestCacheMetrics(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	cm := NewCacheMetrics(reg)

	cm.cacheHitInc()
	cm.cacheMissInc()

	assert.Equal(t, 1.0, testutil.ToFloat64(cm.totals.WithLabelValues("hits")))
	assert.Equal(t, 1.0, testutil.ToFloat64(cm.totals.WithLabelValues("misses")))
	assert.Equal(t, 0.5, cm.cacheHitRatioGet())
}

func TestProviderMetrics(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	pm := NewProviderMetrics(reg)

	pm.callInc("bookapi", "success")
	pm.callInc("bookapi", "failure")
	pm.callInc("bookapi", "failure")

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.totals.WithLabelValues("bookapi", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.totals.WithLabelValues("bookapi", "failure")))
}

func TestQueueMetrics(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	qm := NewQueueMetrics(reg)

	qm.enqueuedInc(string(QueueEnrichEdition))
	qm.ackedInc(string(QueueEnrichEdition))
	qm.retriedInc(string(QueueEnrichEdition))
	qm.dlqInc(string(QueueEnrichEdition))
	qm.expiredInc(string(QueueEnrichEdition))

	kind := string(QueueEnrichEdition)
	assert.Equal(t, 1.0, testutil.ToFloat64(qm.totals.WithLabelValues(kind, "enqueued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(qm.totals.WithLabelValues(kind, "acked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(qm.totals.WithLabelValues(kind, "retried")))
	assert.Equal(t, 1.0, testutil.ToFloat64(qm.totals.WithLabelValues(kind, "dlq")))
	assert.Equal(t, 1.0, testutil.ToFloat64(qm.totals.WithLabelValues(kind, "expired")))
}

func TestNormalizePattern(t *testing.T) {
	assert.Equal(t, "/authors", normalizePattern("/authors/{key}"))
	assert.Equal(t, "/editions/bulk", normalizePattern("/editions/bulk/"))
}
