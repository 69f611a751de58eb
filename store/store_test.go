//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, 4) // dim=4 for test vectors; production uses 768
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleDocProvenance(t *testing.T, s *Store, hash string) Provenance {
	t.Helper()
	p := Provenance{
		ID:             "prov-doc-" + hash,
		Kind:           KindDocument,
		SourceKind:     SourceKindFile,
		RootDocumentID: "prov-doc-" + hash,
		ChainDepth:     0,
		ChainPath:      []string{KindDocument},
		ContentHash:    "sha256:" + hash,
		Processor:      "ingest",
	}
	require.NoError(t, s.InsertProvenance(context.Background(), p))
	return p
}

func TestNew(t *testing.T) {
	s := newTestStore(t)
	require.Equal(t, 4, s.EmbeddingDim())
	require.NotNil(t, s.DB())
}

func TestNewCreatesParentDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sub", "dir", "test.db")
	s, err := New(dbPath, 4)
	require.NoError(t, err)
	s.Close()
}

func TestDocumentCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	prov := sampleDocProvenance(t, s, "doc1")

	id, err := s.InsertDocument(ctx, Document{
		ProvenanceID: prov.ID,
		FilePath:     "/docs/report.pdf",
		FileName:     "report.pdf",
		FileHash:     "sha256:doc1",
		FileSize:     1024,
		FileType:     "pdf",
	})
	require.NoError(t, err)

	got, err := s.GetDocument(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "report.pdf", got.FileName)
	require.Equal(t, DocumentStatusPending, got.Status)

	byPath, err := s.GetDocumentByPath(ctx, "/docs/report.pdf")
	require.NoError(t, err)
	require.Equal(t, id, byPath.ID)

	byHash, err := s.GetDocumentByHash(ctx, "sha256:doc1")
	require.NoError(t, err)
	require.Equal(t, id, byHash.ID)

	require.NoError(t, s.UpdateDocumentStatus(ctx, id, DocumentStatusComplete, nil))
	got, err = s.GetDocument(ctx, id)
	require.NoError(t, err)
	require.Equal(t, DocumentStatusComplete, got.Status)

	docs, err := s.ListDocuments(ctx, ListDocumentsOptions{})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	require.NoError(t, s.DeleteDocument(ctx, id))
	_, err = s.GetDocument(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDocumentNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetDocument(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func chunkProvenance(t *testing.T, s *Store, parent Provenance, id string) Provenance {
	t.Helper()
	p := Provenance{
		ID:             id,
		Kind:           KindChunk,
		SourceKind:     SourceKindChunking,
		ParentID:       &parent.ID,
		ParentIDs:      append(append([]string{}, parent.ParentIDs...), parent.ID),
		RootDocumentID: parent.RootDocumentID,
		ChainDepth:     2,
		ChainPath:      append(append([]string{}, parent.ChainPath...), KindChunk),
		ContentHash:    "sha256:" + id,
		Processor:      "chunker",
	}
	require.NoError(t, s.InsertProvenance(context.Background(), p))
	return p
}

func TestChunkInsertAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	docProv := sampleDocProvenance(t, s, "doc2")
	docID, err := s.InsertDocument(ctx, Document{ProvenanceID: docProv.ID, FilePath: "/a.pdf", FileName: "a.pdf", FileHash: "sha256:doc2"})
	require.NoError(t, err)

	heading := "Section 1"
	chunks := []Chunk{
		{
			DocumentID: docID, ProvenanceID: chunkProvenance(t, s, docProv, "prov-chunk-0").ID,
			Text: "first chunk", TextHash: "sha256:c0", ChunkIndex: 0,
			CharacterStart: 0, CharacterEnd: 11, Heading: &heading,
			ContentTypes: []string{"Text"}, Strategy: ptrString("block_tree"),
		},
		{
			DocumentID: docID, ProvenanceID: chunkProvenance(t, s, docProv, "prov-chunk-1").ID,
			Text: "second chunk", TextHash: "sha256:c1", ChunkIndex: 1,
			CharacterStart: 11, CharacterEnd: 23,
			ContentTypes: []string{"Text"}, Strategy: ptrString("block_tree"),
		},
	}
	ids, err := s.InsertChunks(ctx, chunks)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	list, err := s.ListChunksByDocument(ctx, docID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "first chunk", list[0].Text)
	require.Equal(t, EmbeddingStatusPending, list[0].EmbeddingStatus)

	pending, err := s.ListPendingEmbeddingChunks(ctx, docID, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	require.NoError(t, s.UpdateChunkEmbeddingStatus(ctx, ids[0], EmbeddingStatusComplete))
	pending, err = s.ListPendingEmbeddingChunks(ctx, docID, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func ptrString(s string) *string { return &s }

func embeddingProvenance(t *testing.T, s *Store, parent Provenance, id string) Provenance {
	t.Helper()
	p := Provenance{
		ID:             id,
		Kind:           KindEmbedding,
		SourceKind:     SourceKindEmbedding,
		ParentID:       &parent.ID,
		ParentIDs:      append(append([]string{}, parent.ParentIDs...), parent.ID),
		RootDocumentID: parent.RootDocumentID,
		ChainDepth:     parent.ChainDepth + 1,
		ChainPath:      append(append([]string{}, parent.ChainPath...), KindEmbedding),
		ContentHash:    "sha256:" + id,
		Processor:      "embedding-worker",
	}
	require.NoError(t, s.InsertProvenance(context.Background(), p))
	return p
}

func TestEmbeddingAndVectorKNN(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	docProv := sampleDocProvenance(t, s, "doc3")
	docID, err := s.InsertDocument(ctx, Document{ProvenanceID: docProv.ID, FilePath: "/b.pdf", FileName: "b.pdf", FileHash: "sha256:doc3"})
	require.NoError(t, err)
	chunkProv := chunkProvenance(t, s, docProv, "prov-chunk-knn")
	ids, err := s.InsertChunks(ctx, []Chunk{{
		DocumentID: docID, ProvenanceID: chunkProv.ID, Text: "t", TextHash: "sha256:t",
		ChunkIndex: 0, CharacterStart: 0, CharacterEnd: 1, ContentTypes: []string{"Text"},
	}})
	require.NoError(t, err)
	chunkID := ids[0]

	embProv := embeddingProvenance(t, s, chunkProv, "prov-emb-0")
	embID, err := s.InsertEmbedding(ctx, Embedding{
		ProvenanceID: embProv.ID, ChunkID: &chunkID, OriginalText: "t",
		ModelName: "test-model", InferenceMode: "local", ContentHash: embProv.ContentHash,
	})
	require.NoError(t, err)

	require.NoError(t, s.StoreVector(ctx, embID, []float32{1, 0, 0, 0}))

	results, err := s.KNN(ctx, []float32{1, 0, 0, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, embID, results[0].EmbeddingID)

	_, err = s.KNN(ctx, []float32{1, 0}, 5, nil)
	require.ErrorIs(t, err, ErrWrongDimension)

	byChunk, err := s.GetEmbeddingByChunk(ctx, chunkID)
	require.NoError(t, err)
	require.Equal(t, embID, byChunk.ID)
}

func TestInsertEmbeddingRejectsAmbiguousParent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	docProv := sampleDocProvenance(t, s, "doc4")
	embProv := embeddingProvenance(t, s, docProv, "prov-emb-bad")
	chunkID, imageID := "chunk-x", "image-x"

	_, err := s.InsertEmbedding(ctx, Embedding{
		ProvenanceID: embProv.ID, ChunkID: &chunkID, ImageID: &imageID, ContentHash: "sha256:x",
	})
	require.ErrorIs(t, err, ErrInvalidEmbeddingParent)

	_, err = s.InsertEmbedding(ctx, Embedding{ProvenanceID: embProv.ID, ContentHash: "sha256:x"})
	require.ErrorIs(t, err, ErrInvalidEmbeddingParent)
}

func TestBatchStoreVectorsRejectsWrongDimension(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	err := s.BatchStoreVectors(ctx, []VectorBatch{{EmbeddingID: "e1", Vector: []float32{1, 2}}})
	require.ErrorIs(t, err, ErrWrongDimension)
}

func TestOCRResultCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	docProv := sampleDocProvenance(t, s, "doc5")
	docID, err := s.InsertDocument(ctx, Document{ProvenanceID: docProv.ID, FilePath: "/c.pdf", FileName: "c.pdf", FileHash: "sha256:doc5"})
	require.NoError(t, err)

	ocrProv := Provenance{
		ID: "prov-ocr-0", Kind: KindOCRResult, SourceKind: SourceKindOCR,
		ParentID: &docProv.ID, ParentIDs: []string{docProv.ID}, RootDocumentID: docProv.RootDocumentID,
		ChainDepth: 1, ChainPath: []string{KindDocument, KindOCRResult}, ContentHash: "sha256:ocr0",
		Processor: "ocr-provider",
	}
	require.NoError(t, s.InsertProvenance(ctx, ocrProv))

	id, err := s.InsertOCRResult(ctx, OCRResult{
		DocumentID: docID, ProvenanceID: ocrProv.ID, ExtractedText: "hello world",
		TextLength: 11, ProviderMode: "balanced", PageCount: 1, BlockTree: `[]`,
	})
	require.NoError(t, err)

	got, err := s.GetOCRResultByDocument(ctx, docID)
	require.NoError(t, err)
	require.Equal(t, id, got.ID)
	require.Equal(t, "hello world", got.ExtractedText)
}

func TestImageCRUDAndVLMStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	docProv := sampleDocProvenance(t, s, "doc6")
	docID, err := s.InsertDocument(ctx, Document{ProvenanceID: docProv.ID, FilePath: "/d.pdf", FileName: "d.pdf", FileHash: "sha256:doc6"})
	require.NoError(t, err)

	imgProv := Provenance{
		ID: "prov-img-0", Kind: KindImage, SourceKind: SourceKindImageExtract,
		ParentID: &docProv.ID, ParentIDs: []string{docProv.ID}, RootDocumentID: docProv.RootDocumentID,
		ChainDepth: 2, ChainPath: []string{KindDocument, KindImage}, ContentHash: "sha256:img0",
		Processor: "ocr-provider",
	}
	require.NoError(t, s.InsertProvenance(ctx, imgProv))

	imgID, err := s.InsertImage(ctx, Image{
		DocumentID: docID, ProvenanceID: imgProv.ID, PageNumber: 1,
		Width: 800, Height: 600, Format: "png", ExtractedPath: "/tmp/img0.png",
		ContentHash: "sha256:img0bytes", BlockType: "Figure",
	})
	require.NoError(t, err)

	img, err := s.GetImage(ctx, imgID)
	require.NoError(t, err)
	require.Equal(t, VLMStatusPending, img.VLMStatus)
}

func TestExtractionCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	docProv := sampleDocProvenance(t, s, "doc7")
	docID, err := s.InsertDocument(ctx, Document{ProvenanceID: docProv.ID, FilePath: "/e.pdf", FileName: "e.pdf", FileHash: "sha256:doc7"})
	require.NoError(t, err)

	exProv := Provenance{
		ID: "prov-ex-0", Kind: KindExtraction, SourceKind: SourceKindExtraction,
		ParentID: &docProv.ID, ParentIDs: []string{docProv.ID}, RootDocumentID: docProv.RootDocumentID,
		ChainDepth: 2, ChainPath: []string{KindDocument, KindExtraction}, ContentHash: "sha256:ex0",
		Processor: "extraction-llm",
	}
	require.NoError(t, s.InsertProvenance(ctx, exProv))

	id, err := s.InsertExtraction(ctx, Extraction{
		DocumentID: docID, ProvenanceID: exProv.ID,
		SchemaJSON: `{"type":"object"}`, ExtractionJSON: `{"invoice_number":"123"}`,
	})
	require.NoError(t, err)

	got, err := s.GetExtraction(ctx, id)
	require.NoError(t, err)
	require.Equal(t, `{"invoice_number":"123"}`, got.ExtractionJSON)

	list, err := s.ListExtractionsByDocument(ctx, docID)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestProvenanceRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := sampleDocProvenance(t, s, "doc8")

	got, err := s.GetProvenance(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, p.Kind, got.Kind)
	require.Equal(t, p.ContentHash, got.ContentHash)
	require.Empty(t, got.ParentIDs)

	n, err := s.CountProvenance(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
