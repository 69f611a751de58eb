// Package retrieval implements the hybrid BM25/vector search path over
// chunks: query sanitization, concurrent BM25 and vector legs, Reciprocal
// Rank Fusion, optional reranking, and the section_path/metadata/cluster
// filter set.
package retrieval

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/veridoc/veridoc-core/store"
)

// queryEmbedCacheSize bounds the per-process cache of query embeddings, so
// a session repeating the same query (pagination, a UI re-render) doesn't
// re-invoke the embedding worker.
const queryEmbedCacheSize = 128

// QueryEmbedder embeds a single query string for search-time kNN.
// embedding.Orchestrator satisfies this.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Config holds retrieval engine defaults, overridable per call via
// SearchOptions.
type Config struct {
	WeightBM25   float64
	WeightVector float64
}

// DefaultConfig weights BM25 and vector legs equally.
func DefaultConfig() Config {
	return Config{WeightBM25: 1.0, WeightVector: 1.0}
}

// SearchOptions configures a single Search call. Zero-valued Weight* and
// MaxResults fall back to the engine's Config / a built-in default.
type SearchOptions struct {
	MaxResults   int
	WeightBM25   float64
	WeightVector float64

	// Mode selects AND (default) or OR joining of sanitized query tokens.
	Mode Mode
	// PreSanitized bypasses sanitizeFTSQuery entirely; Query is used as a
	// literal FTS5 MATCH expression.
	PreSanitized bool

	SectionPath string
	Metadata    Metadata
	ClusterID   string

	Rerank bool
}

// Result is one hydrated chunk returned by Search, with per-method and
// fused scores attached.
type Result struct {
	ChunkID     string
	DocumentID  string
	Text        string
	Heading     *string
	SectionPath *string
	PageNumber  *int

	BM25Score      float64 // raw bm25(), negated so higher is better
	BM25Normalized float64 // per-call min-max normalization of BM25Score, [0,1]
	VectorDistance float64 // L2 distance, lower is better

	Score float64 // fused RRF score; ordering key for the returned slice
}

// SearchTrace records the breakdown of one hybrid search call, for
// diagnostics and for callers building their own relevance tuning.
type SearchTrace struct {
	BM25Results         int                        `json:"bm25_results"`
	VectorResults       int                        `json:"vector_results"`
	FusedResults        int                        `json:"fused_results"`
	BM25Weight          float64                    `json:"bm25_weight"`
	VectorWeight        float64                    `json:"vector_weight"`
	IdentifiersDetected bool                       `json:"identifiers_detected"`
	FTSQuery            string                     `json:"fts_query"`
	MaxRequested        int                        `json:"max_requested"`
	IndexStale          bool                       `json:"index_stale"`
	Reranked            bool                       `json:"reranked"`
	PerResult           map[string]FusedResultInfo `json:"per_result,omitempty"`
	ElapsedMs           int64                      `json:"elapsed_ms"`
}

// Engine performs hybrid retrieval combining BM25 and vector search over
// chunks.
type Engine struct {
	store    *store.Store
	embedder QueryEmbedder
	cfg      Config
	reranker Reranker

	queryCache *lru.Cache[string, []float32]
}

// New creates a retrieval Engine. The store's raw *sql.DB is used directly
// for the BM25 leg and filter resolution (the narrow accessor the data
// model reserves for the provenance and retrieval packages).
func New(s *store.Store, embedder QueryEmbedder, cfg Config) *Engine {
	cache, _ := lru.New[string, []float32](queryEmbedCacheSize) // only errors on non-positive size
	return &Engine{store: s, embedder: embedder, cfg: cfg, reranker: TermOverlapReranker{}, queryCache: cache}
}

// WithReranker overrides the default TermOverlapReranker.
func (e *Engine) WithReranker(r Reranker) *Engine {
	e.reranker = r
	return e
}

// Search runs the BM25 and vector legs concurrently, fuses them with RRF,
// optionally reranks, and returns the result alongside a full trace.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]Result, *SearchTrace, error) {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 20
	}
	weightBM25 := opts.WeightBM25
	if weightBM25 == 0 {
		weightBM25 = e.cfg.WeightBM25
	}
	weightVector := opts.WeightVector
	if weightVector == 0 {
		weightVector = e.cfg.WeightVector
	}

	trace := &SearchTrace{MaxRequested: opts.MaxResults}
	start := time.Now()

	fresh, err := e.checkFTSFreshness(ctx)
	if err != nil {
		slog.Warn("retrieval: fts freshness check failed", "error", err)
	} else if !fresh {
		trace.IndexStale = true
		slog.Warn("retrieval: fts index missing expected triggers, results may be stale")
	}

	if detectIdentifiers(query) {
		weightBM25 *= 2.0
		weightVector *= 0.5
		trace.IdentifiersDetected = true
	}
	trace.BM25Weight, trace.VectorWeight = weightBM25, weightVector

	ftsQuery := query
	if !opts.PreSanitized {
		ftsQuery = sanitizeFTSQuery(query, opts.Mode)
	}
	trace.FTSQuery = ftsQuery

	documentIDs, err := e.resolveFilterDocumentIDs(ctx, opts.Metadata, opts.ClusterID)
	if err != nil {
		return nil, trace, fmt.Errorf("resolving document filters: %w", err)
	}

	var sectionPathLike string
	if opts.SectionPath != "" {
		sectionPathLike = "%" + escapeLike(opts.SectionPath) + "%"
	}

	var bm25Results, vecResults []Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := e.bm25Search(gctx, ftsQuery, documentIDs, sectionPathLike, opts.MaxResults)
		if err != nil {
			slog.Warn("retrieval: bm25 search failed", "error", err)
			return nil
		}
		bm25Results = r
		return nil
	})
	g.Go(func() error {
		r, err := e.vectorSearch(gctx, query, documentIDs, sectionPathLike, opts.MaxResults)
		if err != nil {
			slog.Warn("retrieval: vector search failed", "error", err)
			return nil
		}
		vecResults = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, trace, err
	}

	normalizeBM25(bm25Results)
	trace.BM25Results = len(bm25Results)
	trace.VectorResults = len(vecResults)

	fused, infoMap := fuseRRF(bm25Results, vecResults, weightBM25, weightVector, opts.MaxResults)

	if opts.Rerank && len(fused) > 0 && e.reranker != nil {
		scores, err := e.reranker.Score(ctx, query, fused)
		if err != nil {
			slog.Warn("retrieval: rerank failed, keeping fused order", "error", err)
		} else {
			for i := range fused {
				fused[i].Score = scores[i]
			}
			sortByScoreDesc(fused)
			trace.Reranked = true
		}
	}

	trace.FusedResults = len(fused)
	trace.PerResult = infoMap
	trace.ElapsedMs = time.Since(start).Milliseconds()

	return fused, trace, nil
}

func sortByScoreDesc(results []Result) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

// bm25Search runs the external-content FTS5 query over chunks_fts and
// hydrates each hit from chunks. bm25() returns a more-negative score for a
// better match; it is negated here so higher is better everywhere else in
// this package.
func (e *Engine) bm25Search(ctx context.Context, ftsQuery string, documentIDs []string, sectionPathLike string, limit int) ([]Result, error) {
	if ftsQuery == "" {
		return nil, nil
	}

	query := `
		SELECT c.id, c.document_id, c.text, c.heading, c.section_path, c.page_number, bm25(chunks_fts)
		FROM chunks_fts JOIN chunks c ON c.rowid = chunks_fts.rowid
		WHERE chunks_fts MATCH ?`
	args := []any{ftsQuery}
	if len(documentIDs) > 0 {
		query += " AND c.document_id IN (" + placeholders(len(documentIDs)) + ")"
		for _, id := range documentIDs {
			args = append(args, id)
		}
	}
	if sectionPathLike != "" {
		query += ` AND c.section_path LIKE ? ESCAPE '\'`
		args = append(args, sectionPathLike)
	}
	query += " ORDER BY bm25(chunks_fts) LIMIT ?"
	args = append(args, limit)

	rows, err := e.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("running bm25 query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var heading, sectionPath sql.NullString
		var pageNumber sql.NullInt64
		var rawScore float64
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Text, &heading, &sectionPath, &pageNumber, &rawScore); err != nil {
			return nil, err
		}
		if heading.Valid {
			r.Heading = &heading.String
		}
		if sectionPath.Valid {
			r.SectionPath = &sectionPath.String
		}
		if pageNumber.Valid {
			v := int(pageNumber.Int64)
			r.PageNumber = &v
		}
		r.BM25Score = -rawScore
		results = append(results, r)
	}
	return results, rows.Err()
}

// vectorSearch embeds query (via the cache), resolves any document/section
// filter into a candidate embedding-id set, runs KNN, and hydrates each hit
// back to its owning chunk.
func (e *Engine) vectorSearch(ctx context.Context, query string, documentIDs []string, sectionPathLike string, limit int) ([]Result, error) {
	vec, err := e.cachedEmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	var filterIDs []string
	if len(documentIDs) > 0 || sectionPathLike != "" {
		filterIDs, err = e.store.ListChunkEmbeddingIDs(ctx, documentIDs, sectionPathLike)
		if err != nil {
			return nil, fmt.Errorf("resolving vector filter: %w", err)
		}
		if len(filterIDs) == 0 {
			return nil, nil
		}
	}

	scored, err := e.store.KNN(ctx, vec, limit, filterIDs)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(scored))
	for _, sc := range scored {
		emb, err := e.store.GetEmbedding(ctx, sc.EmbeddingID)
		if err == store.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if emb.ChunkID == nil {
			continue // image/extraction embedding, not a text chunk result
		}
		chunk, err := e.store.GetChunk(ctx, *emb.ChunkID)
		if err == store.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		results = append(results, Result{
			ChunkID:        chunk.ID,
			DocumentID:     chunk.DocumentID,
			Text:           chunk.Text,
			Heading:        chunk.Heading,
			SectionPath:    chunk.SectionPath,
			PageNumber:     chunk.PageNumber,
			VectorDistance: sc.Distance,
		})
	}
	return results, nil
}

func (e *Engine) cachedEmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if v, ok := e.queryCache.Get(query); ok {
		return v, nil
	}
	v, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	e.queryCache.Add(query, v)
	return v, nil
}

// resolveFilterDocumentIDs combines the metadata and cluster filters into a
// single document-id set (AND semantics: cluster intersects any existing
// metadata-derived set). Returns (nil, nil) if neither filter is set —
// meaning "no document filter" rather than "match nothing".
func (e *Engine) resolveFilterDocumentIDs(ctx context.Context, meta Metadata, clusterID string) ([]string, error) {
	var ids []string
	haveFilter := false

	if !meta.empty() {
		metaIDs, err := resolveMetadataDocumentIDs(ctx, e.store.DB(), meta)
		if err != nil {
			return nil, err
		}
		ids = metaIDs
		haveFilter = true
	}

	if clusterID != "" {
		members, err := e.store.ListDocumentsInCluster(ctx, clusterID)
		if err != nil {
			return nil, err
		}
		clusterIDs := make([]string, len(members))
		for i, m := range members {
			clusterIDs[i] = m.DocumentID
		}
		if haveFilter {
			ids = intersectSorted(ids, clusterIDs)
		} else {
			ids = clusterIDs
			haveFilter = true
		}
	}

	if haveFilter && len(ids) == 0 {
		return []string{noMatchSentinel}, nil
	}
	return ids, nil
}

// expectedFTSTriggers are the triggers schema.go installs to keep each FTS5
// index synchronized with its base table. Their absence means the index
// was never built (or a migration regressed). Search reports a missing
// trigger as SearchTrace.IndexStale and a warning; it does not rebuild the
// index.
var expectedFTSTriggers = []string{
	"chunks_ai", "chunks_ad", "chunks_au",
	"embeddings_ai", "embeddings_ad", "embeddings_au",
	"extractions_ai", "extractions_ad", "extractions_au",
}

// checkFTSFreshness reports whether every expected FTS maintenance trigger
// exists in the current schema.
func (e *Engine) checkFTSFreshness(ctx context.Context) (bool, error) {
	rows, err := e.store.DB().QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'trigger'")
	if err != nil {
		return false, err
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return false, err
	}

	for _, t := range expectedFTSTriggers {
		if !present[t] {
			return false, nil
		}
	}
	return true, nil
}
