//go:build cgo

package retrieval

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/veridoc-core/provenance"
	"github.com/veridoc/veridoc-core/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"), 4)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seedDoc creates a DOCUMENT root and returns its id and provenance, for
// chunks to hang off of.
func seedDoc(t *testing.T, s *store.Store, path string) (string, store.Provenance) {
	t.Helper()
	ctx := context.Background()
	docProv, err := provenance.NewRoot(ctx, s, store.KindDocument, store.SourceKindFile,
		"ingest", "v1", "sha256:doc-"+path)
	require.NoError(t, err)
	docID, err := s.InsertDocument(ctx, store.Document{
		ProvenanceID: docProv.ID, FilePath: path, FileName: path, FileHash: docProv.ContentHash,
	})
	require.NoError(t, err)
	return docID, *docProv
}

// seedChunk inserts one chunk (with its own CHUNK provenance) and an
// embedding+vector over its text, returning the chunk id.
func seedChunk(t *testing.T, s *store.Store, docID string, docProv store.Provenance, chunkIndex int, text string, sectionPath string, vec []float32) string {
	t.Helper()
	ctx := context.Background()

	ocrProv, err := provenance.New(ctx, s, docProv, store.KindOCRResult, store.SourceKindOCR,
		"ocr", "v1", "sha256:ocr-"+text)
	require.NoError(t, err)

	chunkProv, err := provenance.New(ctx, s, *ocrProv, store.KindChunk, store.SourceKindChunking,
		"chunker", "v1", "sha256:chunk-"+text)
	require.NoError(t, err)

	ids, err := s.InsertChunks(ctx, []store.Chunk{{
		DocumentID:   docID,
		ProvenanceID: chunkProv.ID,
		Text:         text,
		TextHash:     "sha256:chunk-" + text,
		ChunkIndex:   chunkIndex,
		SectionPath:  &sectionPath,
	}})
	require.NoError(t, err)
	chunkID := ids[0]

	if vec != nil {
		embProv, err := provenance.New(ctx, s, *chunkProv, store.KindEmbedding, store.SourceKindEmbedding,
			"embedder", "v1", "sha256:emb-"+text)
		require.NoError(t, err)

		embID, err := s.InsertEmbedding(ctx, store.Embedding{
			ProvenanceID: embProv.ID,
			ChunkID:      &chunkID,
			OriginalText: text,
			ModelName:    "test-model",
			ContentHash:  "sha256:emb-" + text,
		})
		require.NoError(t, err)
		require.NoError(t, s.StoreVector(ctx, embID, vec))
	}

	return chunkID
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

func TestSanitizeFTSQuery(t *testing.T) {
	assert.Equal(t, "auto AND immune", sanitizeFTSQuery("auto-immune", ModeAND))
	assert.Equal(t, "", sanitizeFTSQuery("NOT", ModeAND))
	assert.Equal(t, "applicable", sanitizeFTSQuery("NOT applicable", ModeAND))
	assert.Equal(t, "widget AND blue", sanitizeFTSQuery("widget blue", ModeAND))
	assert.Equal(t, "widget OR blue", sanitizeFTSQuery("widget blue", ModeOR))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\% safe`, escapeLike("100% safe"))
	assert.Equal(t, `a\_b`, escapeLike("a_b"))
}

func TestSearch_BM25FindsExactTerm(t *testing.T) {
	s := newTestStore(t)
	docID, docProv := seedDoc(t, s, "/a.pdf")
	seedChunk(t, s, docID, docProv, 0, "the widget uses an auto-immune response model", "1", nil)
	seedChunk(t, s, docID, docProv, 1, "completely unrelated text about gardening", "2", nil)

	e := New(s, fakeEmbedder{vec: []float32{0, 0, 0, 0}}, DefaultConfig())
	results, trace, err := e.Search(context.Background(), "auto-immune", SearchOptions{MaxResults: 10})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Text, "auto-immune")
	assert.Equal(t, 1, trace.BM25Results)
}

func TestSearch_NegationNotStripped(t *testing.T) {
	s := newTestStore(t)
	docID, docProv := seedDoc(t, s, "/a.pdf")
	seedChunk(t, s, docID, docProv, 0, "this clause is NOT applicable to residential units", "1", nil)

	e := New(s, fakeEmbedder{vec: []float32{0, 0, 0, 0}}, DefaultConfig())
	results, _, err := e.Search(context.Background(), "NOT applicable", SearchOptions{MaxResults: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Text, "NOT applicable")
}

func TestSearch_VectorLegFindsNearestByDistance(t *testing.T) {
	s := newTestStore(t)
	docID, docProv := seedDoc(t, s, "/a.pdf")
	seedChunk(t, s, docID, docProv, 0, "gardening tips for spring", "1", []float32{1, 0, 0, 0})
	seedChunk(t, s, docID, docProv, 1, "unrelated financial report", "2", []float32{0, 0, 0, 1})

	e := New(s, fakeEmbedder{vec: []float32{0.9, 0.1, 0, 0}}, DefaultConfig())
	results, trace, err := e.Search(context.Background(), "spring planting advice", SearchOptions{MaxResults: 10})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "gardening tips for spring", results[0].Text)
	assert.Equal(t, 2, trace.VectorResults)
}

func TestSearch_SectionPathFilterExcludesOtherSections(t *testing.T) {
	s := newTestStore(t)
	docID, docProv := seedDoc(t, s, "/a.pdf")
	seedChunk(t, s, docID, docProv, 0, "obligations under section three", "3.warranty", []float32{1, 0, 0, 0})
	seedChunk(t, s, docID, docProv, 1, "obligations under section four", "4.liability", []float32{1, 0, 0, 0})

	e := New(s, fakeEmbedder{vec: []float32{1, 0, 0, 0}}, DefaultConfig())
	results, _, err := e.Search(context.Background(), "obligations", SearchOptions{MaxResults: 10, SectionPath: "warranty"})
	require.NoError(t, err)
	for _, r := range results {
		require.NotNil(t, r.SectionPath)
		assert.Contains(t, *r.SectionPath, "warranty")
	}
	assert.NotEmpty(t, results)
}

func TestSearch_MetadataFilterNoMatchReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	docID, docProv := seedDoc(t, s, "/a.pdf")
	seedChunk(t, s, docID, docProv, 0, "some obligations text", "1", []float32{1, 0, 0, 0})

	e := New(s, fakeEmbedder{vec: []float32{1, 0, 0, 0}}, DefaultConfig())
	results, _, err := e.Search(context.Background(), "obligations", SearchOptions{
		MaxResults: 10,
		Metadata:   Metadata{Title: "no such title"},
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_IdentifierBoostsBM25Weight(t *testing.T) {
	s := newTestStore(t)
	docID, docProv := seedDoc(t, s, "/a.pdf")
	seedChunk(t, s, docID, docProv, 0, "part E1375 spec sheet", "1", nil)

	e := New(s, fakeEmbedder{vec: []float32{0, 0, 0, 0}}, DefaultConfig())
	_, trace, err := e.Search(context.Background(), "E1375", SearchOptions{MaxResults: 10})
	require.NoError(t, err)
	assert.True(t, trace.IdentifiersDetected)
	assert.Greater(t, trace.BM25Weight, trace.VectorWeight)
}

func TestSearch_RerankReordersByTermOverlap(t *testing.T) {
	s := newTestStore(t)
	docID, docProv := seedDoc(t, s, "/a.pdf")
	// Both chunks hit the vector leg identically; term overlap should favor
	// the one actually containing every query word.
	seedChunk(t, s, docID, docProv, 0, "turbine maintenance schedule overview", "1", []float32{1, 0, 0, 0})
	seedChunk(t, s, docID, docProv, 1, "turbine", "2", []float32{1, 0, 0, 0})

	e := New(s, fakeEmbedder{vec: []float32{1, 0, 0, 0}}, DefaultConfig())
	results, trace, err := e.Search(context.Background(), "turbine maintenance schedule", SearchOptions{MaxResults: 10, Rerank: true})
	require.NoError(t, err)
	require.True(t, trace.Reranked)
	require.NotEmpty(t, results)
	assert.Equal(t, "turbine maintenance schedule overview", results[0].Text)
}

func TestFuseRRF_CombinesBothLegs(t *testing.T) {
	bm25 := []Result{{ChunkID: "a", BM25Score: 2}, {ChunkID: "b", BM25Score: 1}}
	vec := []Result{{ChunkID: "b", VectorDistance: 0.1}, {ChunkID: "c", VectorDistance: 0.2}}

	fused, info := fuseRRF(bm25, vec, 1.0, 1.0, 10)
	require.Len(t, fused, 3)
	// "b" appears in both legs and should outrank single-leg hits.
	assert.Equal(t, "b", fused[0].ChunkID)
	assert.ElementsMatch(t, []string{"bm25", "vector"}, info["b"].Methods)
}

func TestNormalizeBM25_SingleResultGetsOne(t *testing.T) {
	results := []Result{{ChunkID: "a", BM25Score: 3.7}}
	normalizeBM25(results)
	assert.Equal(t, 1.0, results[0].BM25Normalized)
}
