//go:build cgo

package provenance

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/veridoc-core/errs"
	"github.com/veridoc/veridoc-core/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.New(dbPath, 4)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewRoot_RejectsNonRootKind(t *testing.T) {
	s := newTestStore(t)
	_, err := NewRoot(context.Background(), s, store.KindChunk, store.SourceKindChunking, "p", "v1", "hash")
	require.Error(t, err)
}

func TestNewRoot_SelfRooted(t *testing.T) {
	s := newTestStore(t)
	root, err := NewRoot(context.Background(), s, store.KindDocument, store.SourceKindFile, "p", "v1", "hash-a")
	require.NoError(t, err)
	assert.Equal(t, root.ID, root.RootDocumentID)
	assert.Equal(t, 0, root.ChainDepth)
	assert.Nil(t, root.ParentID)
	assert.Equal(t, []string{store.KindDocument}, root.ChainPath)
}

func TestNew_BuildsChainFromParent(t *testing.T) {
	s := newTestStore(t)
	root, err := NewRoot(context.Background(), s, store.KindDocument, store.SourceKindFile, "p", "v1", "hash-a")
	require.NoError(t, err)

	ocr, err := New(context.Background(), s, *root, store.KindOCRResult, store.SourceKindOCR, "p", "v1", "hash-b")
	require.NoError(t, err)
	assert.Equal(t, 1, ocr.ChainDepth)
	assert.Equal(t, root.ID, *ocr.ParentID)
	assert.Equal(t, []string{store.KindDocument, store.KindOCRResult}, ocr.ChainPath)

	chunk, err := New(context.Background(), s, *ocr, store.KindChunk, store.SourceKindChunking, "p", "v1", "hash-c")
	require.NoError(t, err)
	assert.Equal(t, 2, chunk.ChainDepth)
	assert.Equal(t, []string{root.ID, ocr.ID}, chunk.ParentIDs)
	assert.Equal(t, root.ID, chunk.RootDocumentID)
}

func TestNew_RejectsWrongDepth(t *testing.T) {
	s := newTestStore(t)
	root, err := NewRoot(context.Background(), s, store.KindDocument, store.SourceKindFile, "p", "v1", "hash-a")
	require.NoError(t, err)

	// CHUNK directly off DOCUMENT skips the required OCR_RESULT depth.
	_, err = New(context.Background(), s, *root, store.KindChunk, store.SourceKindChunking, "p", "v1", "hash-c")
	require.Error(t, err)
	cat, ok := errs.CategoryOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.CategoryValidation, cat)
}

func TestNew_EmbeddingAcceptsBothValidParentKinds(t *testing.T) {
	s := newTestStore(t)
	root, err := NewRoot(context.Background(), s, store.KindDocument, store.SourceKindFile, "p", "v1", "h")
	require.NoError(t, err)
	ocr, err := New(context.Background(), s, *root, store.KindOCRResult, store.SourceKindOCR, "p", "v1", "h")
	require.NoError(t, err)
	chunk, err := New(context.Background(), s, *ocr, store.KindChunk, store.SourceKindChunking, "p", "v1", "h")
	require.NoError(t, err)

	_, err = New(context.Background(), s, *chunk, store.KindEmbedding, store.SourceKindEmbedding, "p", "v1", "h")
	require.NoError(t, err)
}

func TestGetChain_WalksToRootAndDetectsCycle(t *testing.T) {
	s := newTestStore(t)
	root, err := NewRoot(context.Background(), s, store.KindDocument, store.SourceKindFile, "p", "v1", "h")
	require.NoError(t, err)
	ocr, err := New(context.Background(), s, *root, store.KindOCRResult, store.SourceKindOCR, "p", "v1", "h")
	require.NoError(t, err)
	chunk, err := New(context.Background(), s, *ocr, store.KindChunk, store.SourceKindChunking, "p", "v1", "h")
	require.NoError(t, err)

	chain, err := GetChain(context.Background(), s, chunk.ID)
	require.NoError(t, err)
	assert.Equal(t, chunk.ID, chain.Current.ID)
	assert.Equal(t, root.ID, chain.Root.ID)
	require.Len(t, chain.AncestorsRootLast, 2)
	assert.Equal(t, root.ID, chain.AncestorsRootLast[0].ID)
	assert.Equal(t, ocr.ID, chain.AncestorsRootLast[1].ID)
	assert.True(t, chain.IsComplete)
}

func TestChildrenAndByRoot(t *testing.T) {
	s := newTestStore(t)
	root, err := NewRoot(context.Background(), s, store.KindDocument, store.SourceKindFile, "p", "v1", "h")
	require.NoError(t, err)
	ocr, err := New(context.Background(), s, *root, store.KindOCRResult, store.SourceKindOCR, "p", "v1", "h")
	require.NoError(t, err)
	chunk1, err := New(context.Background(), s, *ocr, store.KindChunk, store.SourceKindChunking, "p", "v1", "h1")
	require.NoError(t, err)
	chunk2, err := New(context.Background(), s, *ocr, store.KindChunk, store.SourceKindChunking, "p", "v1", "h2")
	require.NoError(t, err)

	children, err := Children(context.Background(), s, ocr.ID)
	require.NoError(t, err)
	assert.Len(t, children, 2)

	all, err := ByRoot(context.Background(), s, root.ID)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, p := range all {
		ids[p.ID] = true
	}
	assert.True(t, ids[root.ID])
	assert.True(t, ids[ocr.ID])
	assert.True(t, ids[chunk1.ID])
	assert.True(t, ids[chunk2.ID])
}
