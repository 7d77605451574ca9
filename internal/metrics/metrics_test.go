package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountersAndHandler(t *testing.T) {
	m := New("test")
	m.ItemProcessed("done")
	m.ItemProcessed("done")
	m.ItemProcessed("requeued")
	m.QueueDepth(4, 1)
	m.Search("rag", "ok", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.queueItems.WithLabelValues("done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queueDepth.WithLabelValues("dead")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `embedding_queue_items_total{outcome="requeued",service="test"} 1`))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ItemProcessed("done")
		m.BatchDone(time.Second)
		m.QueueDepth(1, 1)
		m.Search("rag", "ok", time.Second)
		m.Enrichment("narrative", "ai")
		m.HTTPRequest("GET", "/ping", "2xx")
	})
}
