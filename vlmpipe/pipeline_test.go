//go:build cgo

package vlmpipe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/veridoc-core/chunker"
	"github.com/veridoc/veridoc-core/embedding"
	"github.com/veridoc/veridoc-core/external"
	"github.com/veridoc/veridoc-core/provenance"
	"github.com/veridoc/veridoc-core/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"), 768)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seedImage creates a DOCUMENT->OCR_RESULT->IMAGE provenance chain and the
// backing image row, pointed at a real temp file so the precondition check
// passes.
func seedImage(t *testing.T, s *store.Store, width, height int, blockType string, isHeaderFooter bool, contentHash string) store.Image {
	t.Helper()
	ctx := context.Background()

	docProv, err := provenance.NewRoot(ctx, s, store.KindDocument, store.SourceKindFile,
		"ingest", "v1", "sha256:doc-"+contentHash)
	require.NoError(t, err)

	docID, err := s.InsertDocument(ctx, store.Document{
		ProvenanceID: docProv.ID, FilePath: "/x-" + contentHash + ".pdf", FileName: "x.pdf", FileHash: docProv.ContentHash,
	})
	require.NoError(t, err)

	ocrProv, err := provenance.New(ctx, s, *docProv, store.KindOCRResult, store.SourceKindOCR,
		"ocr", "v1", "sha256:ocr-"+contentHash)
	require.NoError(t, err)

	imgProv, err := provenance.New(ctx, s, *ocrProv, store.KindImage, store.SourceKindImageExtract,
		"image-extract", "v1", contentHash)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "img.png")
	require.NoError(t, os.WriteFile(path, []byte("fake-image-bytes"), 0o644))

	imgID, err := s.InsertImage(ctx, store.Image{
		DocumentID: docID, ProvenanceID: imgProv.ID, PageNumber: 1,
		Width: width, Height: height, Format: "png", ExtractedPath: path,
		ContentHash: contentHash, BlockType: blockType, IsHeaderFooter: isHeaderFooter,
	})
	require.NoError(t, err)

	img, err := s.GetImage(ctx, imgID)
	require.NoError(t, err)
	return *img
}

type fakeVLM struct {
	describe func(ctx context.Context, req external.VLMRequest) (*external.VLMResult, error)
	calls    int
}

func (f *fakeVLM) Describe(ctx context.Context, req external.VLMRequest) (*external.VLMResult, error) {
	f.calls++
	return f.describe(ctx, req)
}

func okVLM() *fakeVLM {
	return &fakeVLM{describe: func(ctx context.Context, req external.VLMRequest) (*external.VLMResult, error) {
		return &external.VLMResult{
			Description: "a photo of a cat",
			Analysis:    external.VLMAnalysis{Confidence: 0.9, ExtractedText: []string{"Exhibit A"}},
			TokensUsed:  10,
			Model:       "vlm-v1",
			DurationMS:  5,
		}, nil
	}}
}

func failingVLM(t *testing.T) *fakeVLM {
	return &fakeVLM{describe: func(ctx context.Context, req external.VLMRequest) (*external.VLMResult, error) {
		return nil, external.NewError(external.ErrorAPIError, "simulated failure", nil)
	}}
}

func unreachableVLM(t *testing.T) *fakeVLM {
	return &fakeVLM{describe: func(ctx context.Context, req external.VLMRequest) (*external.VLMResult, error) {
		t.Fatal("vlm.Describe should not be called")
		return nil, nil
	}}
}

type fakeOptimizer struct {
	assess func(ctx context.Context, path string, minRelevance float64) (RelevanceAssessment, error)
	resize func(ctx context.Context, path string, maxDim int) (string, error)
}

func (f *fakeOptimizer) AssessRelevance(ctx context.Context, path string, minRelevance float64) (RelevanceAssessment, error) {
	return f.assess(ctx, path, minRelevance)
}

func (f *fakeOptimizer) Resize(ctx context.Context, path string, maxDim int) (string, error) {
	return f.resize(ctx, path, maxDim)
}

func passOptimizer() *fakeOptimizer {
	return &fakeOptimizer{
		assess: func(ctx context.Context, path string, minRelevance float64) (RelevanceAssessment, error) {
			return RelevanceAssessment{Skip: false}, nil
		},
		resize: func(ctx context.Context, path string, maxDim int) (string, error) {
			return path, nil
		},
	}
}

func unreachableOptimizer(t *testing.T) *fakeOptimizer {
	return &fakeOptimizer{
		assess: func(ctx context.Context, path string, minRelevance float64) (RelevanceAssessment, error) {
			t.Fatal("optimizer.AssessRelevance should not be called")
			return RelevanceAssessment{}, nil
		},
		resize: func(ctx context.Context, path string, maxDim int) (string, error) {
			t.Fatal("optimizer.Resize should not be called")
			return "", nil
		},
	}
}

// fakeEmbedWorker returns a worker backed by a shell script emitting one
// fixed 768-dim vector, for tests where the vector's value doesn't matter.
func fakeEmbedWorker(t *testing.T) *embedding.Worker {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake worker script requires a POSIX shell")
	}
	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < 768; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("0.04")
	}
	sb.WriteString("]")
	script := "#!/bin/sh\necho '{\"success\":true,\"embeddings\":[" + sb.String() + "],\"count\":1}'\n"
	path := filepath.Join(t.TempDir(), "fake-embed-worker.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return embedding.NewWorker(embedding.WorkerConfig{Command: path})
}

func TestQuickDimensionSkip(t *testing.T) {
	cfg := DefaultConfig()

	skip, reason := quickDimensionSkip(cfg, 10, 10)
	assert.True(t, skip)
	assert.Equal(t, "below configured size floor", reason)

	skip, reason = quickDimensionSkip(cfg, 80, 80)
	assert.True(t, skip)
	assert.Equal(t, "likely icon", reason)

	skip, reason = quickDimensionSkip(cfg, 1200, 100)
	assert.True(t, skip)
	assert.Equal(t, "extreme aspect ratio", reason)

	skip, _ = quickDimensionSkip(cfg, 400, 300)
	assert.False(t, skip)
}

func TestProcessDocument_HeaderFooterSkipped(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	img := seedImage(t, s, 400, 300, chunker.BlockText, true, "hash-hf")

	p := NewPipeline(s, unreachableVLM(t), unreachableOptimizer(t), DefaultConfig())
	result, err := p.ProcessDocument(ctx, img.DocumentID, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, "header or footer block", result.Outcomes[0].Reason)

	got, err := s.GetImage(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, store.VLMStatusSkippedComplete, got.VLMStatus)
}

func TestProcessDocument_LikelyIconSkippedBeforeOptimizerCall(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	img := seedImage(t, s, 40, 40, chunker.BlockText, false, "hash-icon")

	p := NewPipeline(s, unreachableVLM(t), unreachableOptimizer(t), DefaultConfig())
	result, err := p.ProcessDocument(ctx, img.DocumentID, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, "likely icon", result.Outcomes[0].Reason)
}

func TestProcessDocument_FigureBypassesDimensionChecks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	// Would fail the icon-size heuristic if it applied, but Figure blocks
	// always pass straight through to inference.
	img := seedImage(t, s, 40, 40, chunker.BlockFigure, false, "hash-figure")

	vlm := okVLM()
	p := NewPipeline(s, vlm, passOptimizer(), DefaultConfig())
	result, err := p.ProcessDocument(ctx, img.DocumentID, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, vlm.calls)

	got, err := s.GetImage(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, store.VLMStatusComplete, got.VLMStatus)
	require.NotNil(t, got.VLMDescription)
	assert.Equal(t, "a photo of a cat", *got.VLMDescription)
}

func TestProcessDocument_CompleteWithEmbedding(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	img := seedImage(t, s, 400, 300, chunker.BlockFigure, false, "hash-embed")

	p := NewPipeline(s, okVLM(), passOptimizer(), DefaultConfig()).
		WithEmbedding(fakeEmbedWorker(t), "test-model", "v1", "cpu")

	result, err := p.ProcessDocument(ctx, img.DocumentID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	got, err := s.GetImage(ctx, img.ID)
	require.NoError(t, err)
	require.NotNil(t, got.VLMEmbeddingID)

	emb, err := s.GetEmbeddingByImage(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, *got.VLMEmbeddingID, emb.ID)
	assert.Equal(t, store.TaskTypeSearchDocument, emb.TaskType)

	n, err := s.VectorCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestProcessDocument_DedupClonesDescriptionAndEmbeddingWithoutCallingVLM(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	vlm := okVLM()
	p := NewPipeline(s, vlm, passOptimizer(), DefaultConfig()).
		WithEmbedding(fakeEmbedWorker(t), "test-model", "v1", "cpu")

	source := seedImage(t, s, 400, 300, chunker.BlockText, false, "shared-hash")
	result, err := p.ProcessDocument(ctx, source.DocumentID, 0)
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.Equal(t, 1, vlm.calls)

	dupe := seedImage(t, s, 400, 300, chunker.BlockText, false, "shared-hash")
	result2, err := p.ProcessDocument(ctx, dupe.DocumentID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result2.Processed)
	assert.Equal(t, 1, vlm.calls, "a content-hash match must not re-invoke the vlm client")

	got, err := s.GetImage(ctx, dupe.ID)
	require.NoError(t, err)
	require.NotNil(t, got.VLMDescription)
	assert.Equal(t, "a photo of a cat", *got.VLMDescription)
	require.NotNil(t, got.VLMTokensUsed)
	assert.Equal(t, 0, *got.VLMTokensUsed)
	require.NotNil(t, got.VLMEmbeddingID)

	n, err := s.VectorCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "dedup clones a second vector onto the new embedding row")
}

func TestProcessDocument_BatchAbortsAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	cfg := DefaultConfig()
	cfg.MaxConsecutiveFailures = 5
	cfg.BackoffSeed = time.Millisecond
	cfg.BackoffCap = 2 * time.Millisecond

	for i := 0; i < 6; i++ {
		seedImage(t, s, 400, 300, chunker.BlockText, false, fmt.Sprintf("hash-fail-%d", i))
	}

	p := NewPipeline(s, failingVLM(t), passOptimizer(), cfg)
	result, err := p.ProcessDocument(ctx, "", 0)
	require.NoError(t, err)

	assert.True(t, result.Aborted)
	assert.Equal(t, 5, result.Failed)
	assert.Equal(t, 0, result.Processed)
	assert.Len(t, result.Outcomes, 5)

	pending, err := s.ListPendingImages(ctx, "")
	require.NoError(t, err)
	assert.Len(t, pending, 1, "the sixth image was never claimed and stays pending")
}
