package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusExporter(t *testing.T) {
	exporter := NewPrometheusExporter(DefaultConfig())

	t.Run("RecordSave", func(t *testing.T) {
		exporter.RecordSave(true)
		exporter.RecordSave(true)
		exporter.RecordSave(false)
		assert.Equal(t, 2.0, testutil.ToFloat64(exporter.saves.WithLabelValues(OutcomeOK)))
		assert.Equal(t, 1.0, testutil.ToFloat64(exporter.saves.WithLabelValues(OutcomeError)))
	})

	t.Run("RecordEmbedding", func(t *testing.T) {
		exporter.RecordEmbedding(OutcomeOK, 20*time.Millisecond)
		exporter.RecordEmbedding(OutcomeUnavailable, 10*time.Second)
		assert.Equal(t, 1.0, testutil.ToFloat64(exporter.embeddingRequests.WithLabelValues(OutcomeUnavailable)))
	})

	t.Run("Backfill", func(t *testing.T) {
		exporter.RecordBackfill(OutcomeOK)
		exporter.RecordBackfill(OutcomeDropped)
		exporter.SetBackfillQueueDepth(3)
		assert.Equal(t, 3.0, testutil.ToFloat64(exporter.backfillQueueDepth))
		assert.Equal(t, 1.0, testutil.ToFloat64(exporter.backfillJobs.WithLabelValues(OutcomeDropped)))
	})

	t.Run("RecordSearch", func(t *testing.T) {
		exporter.RecordSearch(SearchKeyword, time.Millisecond, 4, nil)
		exporter.RecordSearch(SearchSemantic, time.Second, 0, errors.New("unavailable"))
		exporter.RecordQueryCache(true)
		exporter.RecordQueryCache(false)
		assert.Equal(t, 1.0, testutil.ToFloat64(exporter.queryCache.WithLabelValues("hit")))
	})
}

func TestPrometheusExporter_Nil(t *testing.T) {
	var exporter *PrometheusExporter
	assert.NotPanics(t, func() {
		exporter.RecordSave(true)
		exporter.RecordEmbedding(OutcomeOK, time.Millisecond)
		exporter.RecordBackfill(OutcomeOK)
		exporter.SetBackfillQueueDepth(1)
		exporter.RecordSearch(SearchKeyword, time.Millisecond, 1, nil)
		exporter.RecordQueryCache(true)
	})
}

func TestPrometheusExporter_ServeHTTP(t *testing.T) {
	exporter := NewPrometheusExporter(Config{})
	exporter.RecordSave(true)

	rec := httptest.NewRecorder()
	exporter.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "leodock_store_saves_total")
}
