package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterSearchMetrics_Idempotent(t *testing.T) {
	require.NotPanics(t, func() {
		RegisterSearchMetrics()
		RegisterSearchMetrics()
	})
}

func TestMiddleware_RecordsRoutePattern(t *testing.T) {
	before := testutil.CollectAndCount(httpRequestsTotal)

	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/v1/jobs/sparse/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/sparse/abc123", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)

	// The route pattern, not the raw path, is the label so IDs never
	// explode the cardinality.
	count := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(
		http.MethodGet, "/v1/jobs/sparse/{id}", "404"))
	assert.GreaterOrEqual(t, count, 1.0)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(httpRequestsTotal), before)
}

func TestStatusWriter_DefaultsToOK(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &statusWriter{ResponseWriter: rec, status: http.StatusOK}

	_, err := w.Write([]byte("ok"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.status)
}

func TestStatusWriter_FirstHeaderWins(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &statusWriter{ResponseWriter: rec, status: http.StatusOK}

	w.WriteHeader(http.StatusBadRequest)
	w.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusBadRequest, w.status)
}