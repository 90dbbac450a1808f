package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	ferrors "github.com/rankfuse/rankfuse/internal/errors"
	"github.com/rankfuse/rankfuse/internal/ireval"
	"github.com/rankfuse/rankfuse/internal/store"
	"github.com/rankfuse/rankfuse/internal/telemetry"
)

// Default latency budgets. Retrieval is a combined budget for all three
// parallel methods; the query budget is a warn-only p95 target excluding
// reranking.
const (
	DefaultRetrievalTimeout = 150 * time.Millisecond
	DefaultRerankTimeout    = time.Second
	DefaultQueryBudget      = 200 * time.Millisecond
	DefaultMaxResults       = 1000
	DefaultBodyPrefixBytes  = 2048
	EvaluateCutoff          = 20
)

// OrchestratorConfig tunes the query pipeline.
type OrchestratorConfig struct {
	// BaseWeights are the fusion weights when adaptation is off and the
	// caller supplies none. Zero value falls back to equal thirds.
	BaseWeights Weights

	// RRFConstant is the fusion smoothing parameter k (default: 60).
	RRFConstant int

	// RetrieveLimit is the per-method candidate count (default: 100).
	RetrieveLimit int

	// MaxResults caps limit+offset (default: 1000).
	MaxResults int

	// RetrievalTimeout bounds the parallel retrieval fan-out.
	RetrievalTimeout time.Duration

	// RerankTimeout bounds the batched reranker call.
	RerankTimeout time.Duration

	// QueryBudget is a warn-only end-to-end target excluding reranking.
	QueryBudget time.Duration

	// RerankPoolSize bounds how many fused hits reach the reranker.
	RerankPoolSize int

	// BodyPrefixBytes bounds the document text sent per rerank pair.
	BodyPrefixBytes int
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.BaseWeights == (Weights{}) {
		c.BaseWeights = EqualWeights()
	}
	if c.RRFConstant <= 0 {
		c.RRFConstant = DefaultRRFConstant
	}
	if c.RetrieveLimit <= 0 {
		c.RetrieveLimit = DefaultRetrieveLimit
	}
	if c.MaxResults <= 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.RetrievalTimeout <= 0 {
		c.RetrievalTimeout = DefaultRetrievalTimeout
	}
	if c.RerankTimeout <= 0 {
		c.RerankTimeout = DefaultRerankTimeout
	}
	if c.QueryBudget <= 0 {
		c.QueryBudget = DefaultQueryBudget
	}
	if c.RerankPoolSize <= 0 {
		c.RerankPoolSize = DefaultRerankPoolSize
	}
	if c.BodyPrefixBytes <= 0 {
		c.BodyPrefixBytes = DefaultBodyPrefixBytes
	}
	return c
}

// DocumentFetcher is the slice of the document store the reranking path
// needs to build (query, document-text) pairs.
type DocumentFetcher interface {
	GetDocuments(ctx context.Context, ids []string) ([]*store.Document, error)
}

// Orchestrator runs the full query pipeline: validate, analyze, fan out
// to the three retrievers, fuse, optionally rerank, paginate. The
// retriever set is fixed at construction; model handles are shared
// read-only across concurrent queries.
type Orchestrator struct {
	retrievers []Retriever
	fuser      *Fuser
	reranker   Reranker // optional
	docs       DocumentFetcher
	config     OrchestratorConfig
}

// OrchestratorOption configures the orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithReranker sets an optional cross-encoder reranker. When absent,
// EnableReranking requests degrade to the fused order.
func WithReranker(r Reranker) OrchestratorOption {
	return func(o *Orchestrator) {
		o.reranker = r
	}
}

// NewOrchestrator creates the query pipeline over a fixed retriever set.
// The document store is needed only for reranking text lookup and may be
// nil when no reranker is configured.
func NewOrchestrator(
	retrievers []Retriever,
	docs DocumentFetcher,
	config OrchestratorConfig,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		retrievers: retrievers,
		fuser:      NewFuserWithK(config.RRFConstant),
		docs:       docs,
		config:     config.withDefaults(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Search executes one query through the full pipeline.
func (o *Orchestrator) Search(ctx context.Context, query string, opts SearchOptions) (*SearchResponse, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ferrors.EmptyQueryError()
	}

	opts = o.applyDefaults(opts)

	weights, err := o.resolveWeights(query, opts)
	if err != nil {
		return nil, err
	}

	sets := o.retrieveAll(ctx, query, o.config.RetrieveLimit)

	failed := 0
	for _, set := range sets {
		if set.Failed {
			failed++
		}
	}
	if failed == len(sets) {
		telemetry.QueriesTotal.WithLabelValues("failed").Inc()
		return nil, allRetrieversFailed(query, sets)
	}

	fused := o.fuser.Fuse(sets, weights)
	contributions := countContributions(sets)

	reranked := false
	if opts.EnableReranking && o.reranker != nil && len(fused) > 0 {
		if out, ok := o.rerankFused(ctx, query, fused); ok {
			fused = out
			reranked = true
		}
	}

	total := len(fused)
	results := paginate(fused, opts.Offset, opts.Limit)

	elapsed := time.Since(start)
	status := "ok"
	if failed > 0 {
		status = "degraded"
	}
	telemetry.QueriesTotal.WithLabelValues(status).Inc()
	telemetry.QueryDuration.WithLabelValues(boolLabel(reranked)).Observe(elapsed.Seconds())

	if !reranked && elapsed > o.config.QueryBudget {
		slog.Warn("query exceeded latency budget",
			slog.String("query_hash", queryHash(query)),
			slog.Duration("elapsed", elapsed),
			slog.Duration("budget", o.config.QueryBudget))
	}

	return &SearchResponse{
		Results:       results,
		Total:         total,
		LatencyMS:     float64(elapsed.Microseconds()) / 1000.0,
		Contributions: contributions,
		WeightsUsed:   weights,
		Reranked:      reranked,
	}, nil
}

// applyDefaults fills in default values for search options.
func (o *Orchestrator) applyDefaults(opts SearchOptions) SearchOptions {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.Limit+opts.Offset > o.config.MaxResults {
		opts.Limit = o.config.MaxResults - opts.Offset
		if opts.Limit < 0 {
			opts.Limit = 0
		}
	}
	return opts
}

// resolveWeights picks the fusion weights for this query: adaptive from
// the query features, caller-supplied, or the configured base.
func (o *Orchestrator) resolveWeights(query string, opts SearchOptions) (Weights, error) {
	if opts.AdaptiveWeighting {
		return AdaptiveWeights(Analyze(query), o.config.BaseWeights), nil
	}
	if opts.Weights != nil {
		if err := opts.Weights.Validate(); err != nil {
			return Weights{}, err
		}
		return opts.Weights.Normalize(), nil
	}
	if err := o.config.BaseWeights.Validate(); err != nil {
		return Weights{}, err
	}
	return o.config.BaseWeights.Normalize(), nil
}

// retrieveAll fans out to all retrievers in parallel under the combined
// retrieval budget and joins on completion. Stragglers past the budget
// see their context cancelled and come back as failed sets; failures
// never cross the retriever boundary so the group error is always nil.
func (o *Orchestrator) retrieveAll(ctx context.Context, query string, limit int) []MethodResultSet {
	rctx, cancel := context.WithTimeout(ctx, o.config.RetrievalTimeout)
	defer cancel()

	sets := make([]MethodResultSet, len(o.retrievers))

	g, gctx := errgroup.WithContext(rctx)
	for i, r := range o.retrievers {
		g.Go(func() error {
			sets[i] = r.Retrieve(gctx, query, limit)
			return nil
		})
	}
	_ = g.Wait()

	for _, set := range sets {
		telemetry.RetrieverDuration.WithLabelValues(string(set.Method)).Observe(set.Latency.Seconds())
		if set.Failed {
			telemetry.RetrieverFailuresTotal.WithLabelValues(string(set.Method), failureReason(set.Err)).Inc()
			slog.Warn("retrieval method failed, degrading",
				slog.String("method", string(set.Method)),
				slog.String("query_hash", queryHash(query)),
				slog.Duration("latency", set.Latency),
				slog.String("error", set.Err.Error()))
		}
	}

	return sets
}

// rerankFused reorders the top of the fused list with the cross-encoder.
// Any failure keeps the fused order; the caller flags reranked=false.
func (o *Orchestrator) rerankFused(ctx context.Context, query string, fused []FusedHit) ([]FusedHit, bool) {
	start := time.Now()

	rctx, cancel := context.WithTimeout(ctx, o.config.RerankTimeout)
	defer cancel()

	if !o.reranker.Available(rctx) {
		telemetry.RerankerAvailable.Set(0)
		slog.Warn("reranker unavailable, keeping fused order",
			slog.String("query_hash", queryHash(query)))
		return nil, false
	}
	telemetry.RerankerAvailable.Set(1)

	pool := fused
	if len(pool) > o.config.RerankPoolSize {
		pool = pool[:o.config.RerankPoolSize]
	}

	candidates, err := o.loadCandidates(rctx, pool)
	if err != nil {
		slog.Warn("rerank candidate lookup failed, keeping fused order",
			slog.String("query_hash", queryHash(query)),
			slog.String("error", err.Error()))
		return nil, false
	}

	hits, err := o.reranker.Rerank(rctx, query, candidates, len(candidates))
	if err != nil {
		slog.Warn("reranking failed, keeping fused order",
			slog.String("query_hash", queryHash(query)),
			slog.Duration("latency", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, false
	}
	telemetry.RerankDuration.Observe(time.Since(start).Seconds())

	// Reorder the pool prefix by relevance; the tail keeps fused order.
	byID := make(map[string]FusedHit, len(pool))
	for _, fh := range pool {
		byID[fh.ID] = fh
	}

	out := make([]FusedHit, 0, len(fused))
	for _, hit := range hits {
		if fh, ok := byID[hit.ID]; ok {
			out = append(out, fh)
			delete(byID, hit.ID)
		}
	}
	// Pool members the reranker dropped, then everything past the pool.
	for _, fh := range pool {
		if _, ok := byID[fh.ID]; ok {
			out = append(out, fh)
		}
	}
	out = append(out, fused[len(pool):]...)

	return out, true
}

// loadCandidates fetches the text representation for rerank pairs:
// title plus a bounded prefix of the body.
func (o *Orchestrator) loadCandidates(ctx context.Context, pool []FusedHit) ([]Candidate, error) {
	ids := make([]string, len(pool))
	for i, fh := range pool {
		ids[i] = fh.ID
	}

	docs, err := o.docs.GetDocuments(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*store.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	candidates := make([]Candidate, 0, len(pool))
	for _, fh := range pool {
		doc, ok := byID[fh.ID]
		if !ok {
			// Stale index entry; skip rather than rerank an empty pair.
			continue
		}
		body := truncateToRune(doc.Body, o.config.BodyPrefixBytes)
		candidates = append(candidates, Candidate{ID: fh.ID, Text: doc.Title + "\n" + body})
	}
	return candidates, nil
}

// truncateToRune cuts s to at most max bytes, backing off to the
// nearest rune boundary so the reranker never sees a split UTF-8
// sequence.
func truncateToRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// CompareMethods runs the query through every retrieval variant so the
// contribution of each method and of fusion itself can be inspected
// side by side.
func (o *Orchestrator) CompareMethods(ctx context.Context, query string, limit int) (*CompareResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ferrors.EmptyQueryError()
	}
	if limit <= 0 {
		limit = 10
	}

	sets := o.retrieveAll(ctx, query, o.config.RetrieveLimit)

	equal := EqualWeights()
	resp := &CompareResponse{Query: query}

	// Single-method variants reuse the retrieval results directly.
	for _, set := range sets {
		resp.Variants = append(resp.Variants, MethodComparison{
			Variant:   string(set.Method),
			Results:   hitIDs(set.Hits, limit),
			LatencyMS: durationMS(set.Latency),
		})
	}

	twoWay := make([]MethodResultSet, 0, 2)
	for _, set := range sets {
		if set.Method == MethodLexical || set.Method == MethodDense {
			twoWay = append(twoWay, set)
		}
	}

	fuseStart := time.Now()
	twoWayFused := o.fuser.Fuse(twoWay, Weights{Lexical: 0.5, Dense: 0.5})
	resp.Variants = append(resp.Variants, MethodComparison{
		Variant:   "two_way_fused",
		Results:   fusedIDs(twoWayFused, limit),
		LatencyMS: durationMS(time.Since(fuseStart)),
	})

	fuseStart = time.Now()
	threeWayFused := o.fuser.Fuse(sets, equal)
	resp.Variants = append(resp.Variants, MethodComparison{
		Variant:   "three_way_fused",
		Results:   fusedIDs(threeWayFused, limit),
		LatencyMS: durationMS(time.Since(fuseStart)),
	})

	if o.reranker != nil && len(threeWayFused) > 0 {
		rerankStart := time.Now()
		if out, ok := o.rerankFused(ctx, query, threeWayFused); ok {
			resp.Variants = append(resp.Variants, MethodComparison{
				Variant:   "three_way_reranked",
				Results:   fusedIDs(out, limit),
				LatencyMS: durationMS(time.Since(rerankStart)),
			})
		}
	}

	return resp, nil
}

// Evaluate searches and scores the ranking against graded relevance
// judgments at the standard cutoff of 20.
func (o *Orchestrator) Evaluate(ctx context.Context, query string, judgments ireval.Judgments) (*ireval.Metrics, error) {
	resp, err := o.Search(ctx, query, SearchOptions{
		Limit:             EvaluateCutoff,
		AdaptiveWeighting: true,
	})
	if err != nil {
		return nil, err
	}

	ranking := make([]string, len(resp.Results))
	for i, fh := range resp.Results {
		ranking[i] = fh.ID
	}

	metrics := ireval.Evaluate(ranking, judgments, EvaluateCutoff)
	return &metrics, nil
}

// Close releases the reranker model handle.
func (o *Orchestrator) Close() error {
	if o.reranker != nil {
		return o.reranker.Close()
	}
	return nil
}

// allRetrieversFailed joins the per-method causes into the surfaced error.
func allRetrieversFailed(query string, sets []MethodResultSet) error {
	err := ferrors.New(ferrors.ErrCodeAllRetrieversFailed,
		"all retrieval methods failed", nil).
		WithDetail("query_hash", queryHash(query))
	for _, set := range sets {
		if set.Err != nil {
			err = err.WithDetail(string(set.Method), set.Err.Error())
		}
	}
	return err
}

// countContributions counts candidates per method over the successful
// result sets. Failed and skipped methods report zero so callers can
// tell degradation from sparse matches.
func countContributions(sets []MethodResultSet) MethodContributions {
	var c MethodContributions
	for _, set := range sets {
		switch set.Method {
		case MethodLexical:
			c.Lexical = len(set.Hits)
		case MethodDense:
			c.Dense = len(set.Hits)
		case MethodSparse:
			c.Sparse = len(set.Hits)
		}
	}
	return c
}

// failureReason maps a retrieval error to a telemetry label.
func failureReason(err error) string {
	switch ferrors.GetCode(err) {
	case ferrors.ErrCodeRetrieverTimeout:
		return "timeout"
	case ferrors.ErrCodeModelUnavailable:
		return "model"
	default:
		return "backend"
	}
}

// queryHash returns a short stable hash so degraded queries can be
// correlated in logs without logging user text.
func queryHash(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:6])
}

func paginate(fused []FusedHit, offset, limit int) []FusedHit {
	if offset >= len(fused) {
		return []FusedHit{}
	}
	end := offset + limit
	if end > len(fused) {
		end = len(fused)
	}
	return fused[offset:end]
}

func hitIDs(hits []RankedHit, limit int) []string {
	if len(hits) > limit {
		hits = hits[:limit]
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return ids
}

func fusedIDs(fused []FusedHit, limit int) []string {
	if len(fused) > limit {
		fused = fused[:limit]
	}
	ids := make([]string, len(fused))
	for i, fh := range fused {
		ids[i] = fh.ID
	}
	return ids
}

func durationMS(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
