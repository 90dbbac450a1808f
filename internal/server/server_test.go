package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/rankfuse/rankfuse/internal/errors"
	"github.com/rankfuse/rankfuse/internal/ireval"
	"github.com/rankfuse/rankfuse/internal/search"
	"github.com/rankfuse/rankfuse/internal/store"
)

// stubEngine returns canned responses or a configured error.
type stubEngine struct {
	err      error
	lastOpts search.SearchOptions
}

func (s *stubEngine) Search(_ context.Context, query string, opts search.SearchOptions) (*search.SearchResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	if query == "" {
		return nil, ferrors.EmptyQueryError()
	}
	s.lastOpts = opts
	return &search.SearchResponse{
		Results:       []search.FusedHit{{ID: "d1", Score: 0.02}, {ID: "d2", Score: 0.01}},
		Total:         2,
		LatencyMS:     1.5,
		Contributions: search.MethodContributions{Lexical: 2, Dense: 1},
		WeightsUsed:   search.EqualWeights(),
	}, nil
}

func (s *stubEngine) CompareMethods(_ context.Context, query string, _ int) (*search.CompareResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &search.CompareResponse{
		Query: query,
		Variants: []search.MethodComparison{
			{Variant: "lexical", Results: []string{"d1"}},
			{Variant: "three_way_fused", Results: []string{"d1", "d2"}},
		},
	}, nil
}

func (s *stubEngine) Evaluate(context.Context, string, ireval.Judgments) (*ireval.Metrics, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &ireval.Metrics{NDCG: 1.0, Recall: 1.0, Precision: 0.1, MRR: 1.0, K: 20}, nil
}

// stubJobStore serves a single fixed job.
type stubJobStore struct {
	job *store.SparseJob
}

func (s *stubJobStore) GetSparseJob(_ context.Context, id string) (*store.SparseJob, error) {
	if s.job == nil || s.job.ID != id {
		return nil, store.ErrNotFound{Kind: "sparse job", ID: id}
	}
	return s.job, nil
}

func (s *stubJobStore) ListSparseJobs(context.Context, int) ([]*store.SparseJob, error) {
	if s.job == nil {
		return nil, nil
	}
	return []*store.SparseJob{s.job}, nil
}

func newTestServer(engine Engine, jobs JobStore) *httptest.Server {
	return httptest.NewServer(New(engine, jobs, nil).Router())
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHandleSearch(t *testing.T) {
	engine := &stubEngine{}
	ts := newTestServer(engine, &stubJobStore{})
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/search", map[string]any{
		"query":              "hybrid fusion",
		"limit":              10,
		"adaptive_weighting": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[search.SearchResponse](t, resp)
	assert.Equal(t, 2, body.Total)
	assert.Len(t, body.Results, 2)
	assert.Equal(t, 2, body.Contributions.Lexical)
	assert.True(t, engine.lastOpts.AdaptiveWeighting)
	assert.Equal(t, 10, engine.lastOpts.Limit)
}

func TestHandleSearch_EmptyQueryIs400(t *testing.T) {
	ts := newTestServer(&stubEngine{}, &stubJobStore{})
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/search", map[string]any{"query": ""})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody[errorResponse](t, resp)
	assert.Equal(t, ferrors.ErrCodeEmptyQuery, body.Code)
}

func TestHandleSearch_AllRetrieversFailedIs503(t *testing.T) {
	engine := &stubEngine{err: ferrors.New(ferrors.ErrCodeAllRetrieversFailed, "all retrieval methods failed", nil)}
	ts := newTestServer(engine, &stubJobStore{})
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/search", map[string]any{"query": "q"})
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	body := decodeBody[errorResponse](t, resp)
	assert.Equal(t, ferrors.ErrCodeAllRetrieversFailed, body.Code)
}

func TestHandleSearch_MalformedBody(t *testing.T) {
	ts := newTestServer(&stubEngine{}, &stubJobStore{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/search", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleCompare(t *testing.T) {
	ts := newTestServer(&stubEngine{}, &stubJobStore{})
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/compare", map[string]any{"query": "q", "limit": 5})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[search.CompareResponse](t, resp)
	assert.Equal(t, "q", body.Query)
	assert.Len(t, body.Variants, 2)
}

func TestHandleEvaluate(t *testing.T) {
	ts := newTestServer(&stubEngine{}, &stubJobStore{})
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/evaluate", map[string]any{
		"query":     "q",
		"judgments": map[string]int{"d1": 3, "d2": 0},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[ireval.Metrics](t, resp)
	assert.InDelta(t, 1.0, body.NDCG, 1e-9)
}

func TestHandleEvaluate_Validation(t *testing.T) {
	ts := newTestServer(&stubEngine{}, &stubJobStore{})
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/evaluate", map[string]any{"query": "q"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/v1/evaluate", map[string]any{
		"query":     "q",
		"judgments": map[string]int{"d1": 7},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestHandleGetSparseJob(t *testing.T) {
	jobs := &stubJobStore{job: &store.SparseJob{
		ID:        "job-1",
		Status:    store.SparseJobRunning,
		Model:     "hashing-v1",
		Total:     100,
		Processed: 40,
	}}
	ts := newTestServer(&stubEngine{}, jobs)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/jobs/sparse/job-1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[jobResponse](t, resp)
	assert.Equal(t, "running", body.Status)
	assert.Equal(t, 40, body.Processed)

	resp, err = http.Get(ts.URL + "/v1/jobs/sparse/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleStartSparseJob_NotConfigured(t *testing.T) {
	ts := newTestServer(&stubEngine{}, &stubJobStore{})
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/jobs/sparse", map[string]any{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(&stubEngine{}, &stubJobStore{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(&stubEngine{}, &stubJobStore{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
