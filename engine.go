// Package veridoc is the top-level entry point: database selection
// (config.go, session.go) and whole-document ingest orchestration
// (engine.go) over the store/chunker/embedding/vlmpipe/provenance/external
// packages.
package veridoc

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/veridoc/veridoc-core/chunker"
	"github.com/veridoc/veridoc-core/embedding"
	"github.com/veridoc/veridoc-core/errs"
	"github.com/veridoc/veridoc-core/external"
	"github.com/veridoc/veridoc-core/hashutil"
	"github.com/veridoc/veridoc-core/provenance"
	"github.com/veridoc/veridoc-core/store"
	"github.com/veridoc/veridoc-core/vlmpipe"
)

// processorOCR/processorChunker/chunkerVersion identify this engine's build
// in every provenance record it creates directly (document, OCR submission
// and chunking); the
// embedding and VLM stages stamp their own processor identities.
const (
	processorOCR     = "ocr-client"
	processorChunker = "block-tree-chunker"
	chunkerVersion   = "1"
)

// Engine orchestrates the ingest pipeline: OCR submission, provenance
// chaining, chunking, and embedding, plus the independently callable image
// description stage. It holds no state of its own beyond its collaborators
// — all durable state lives in the selected store.
type Engine struct {
	cfg Config

	ocr      external.OCRClient
	embedder *embedding.Orchestrator
	images   *vlmpipe.Pipeline
}

// NewEngine builds an Engine around an already-selected store's
// collaborators. embedder and images may be nil if the caller only needs a
// subset of the pipeline (e.g. a caller doing OCR/chunking without local
// embedding).
func NewEngine(cfg Config, ocr external.OCRClient, embedder *embedding.Orchestrator, images *vlmpipe.Pipeline) *Engine {
	return &Engine{cfg: cfg, ocr: ocr, embedder: embedder, images: images}
}

// IngestResult summarizes one IngestDocument call.
type IngestResult struct {
	DocumentID string
	Skipped    bool // true when an existing document already has this content hash
	ChunkCount int
}

// IngestDocument runs a file through the full ingest pipeline: content-hash
// dedup, OCR submission, DOCUMENT/OCR_RESULT provenance, block-tree
// chunking with per-chunk CHUNK provenance, and (when an embedder is
// configured) embedding. The document's status tracks progress and ends at
// complete or failed; a failure at any stage leaves the document record in
// place with the triggering error's message recorded, rather than being
// rolled back, so a caller can inspect what happened.
func (e *Engine) IngestDocument(ctx context.Context, s *store.Store, path string, fileBytes []byte) (*IngestResult, error) {
	fileHash := hashutil.HashText(fileBytes)

	if existing, err := s.GetDocumentByHash(ctx, fileHash); err == nil {
		return &IngestResult{DocumentID: existing.ID, Skipped: true}, nil
	} else if err != store.ErrNotFound {
		return nil, fmt.Errorf("checking for existing document: %w", err)
	}

	fileName := filepath.Base(path)
	fileType := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))

	rootProv, err := provenance.NewRoot(ctx, s, store.KindDocument, store.SourceKindFile,
		processorOCR, "1", fileHash,
		provenance.WithSourcePath(path), provenance.WithFileHash(fileHash))
	if err != nil {
		return nil, fmt.Errorf("document provenance: %w", err)
	}

	docID, err := s.InsertDocument(ctx, store.Document{
		ProvenanceID: rootProv.ID,
		FilePath:     path,
		FileName:     fileName,
		FileHash:     fileHash,
		FileSize:     int64(len(fileBytes)),
		FileType:     fileType,
		Status:       store.DocumentStatusPending,
	})
	if err != nil {
		return nil, fmt.Errorf("inserting document: %w", err)
	}

	result, ingestErr := e.runIngest(ctx, s, docID, rootProv, fileBytes)
	if ingestErr != nil {
		msg := ingestErr.Error()
		_ = s.UpdateDocumentStatus(ctx, docID, store.DocumentStatusFailed, &msg)
		return nil, ingestErr
	}
	if err := s.UpdateDocumentStatus(ctx, docID, store.DocumentStatusComplete, nil); err != nil {
		return nil, fmt.Errorf("marking document complete: %w", err)
	}
	result.DocumentID = docID
	return result, nil
}

// runIngest performs the stages that can fail mid-way once the document
// row already exists, so the caller can uniformly record failure status
// around it.
func (e *Engine) runIngest(ctx context.Context, s *store.Store, docID string, rootProv *store.Provenance, fileBytes []byte) (*IngestResult, error) {
	if err := s.UpdateDocumentStatus(ctx, docID, store.DocumentStatusProcessing, nil); err != nil {
		return nil, fmt.Errorf("marking document processing: %w", err)
	}

	if e.ocr == nil {
		return nil, errs.NewError(errs.CategoryInternal, "no OCR client configured")
	}

	ocrStart := time.Now()
	ocrResult, err := e.ocr.Submit(ctx, external.OCRRequest{FileBytes: fileBytes, Mode: e.cfg.DefaultOCRMode})
	if err != nil {
		return nil, fmt.Errorf("OCR submission: %w", err)
	}
	ocrDuration := time.Since(ocrStart).Milliseconds()

	ocrProv, err := provenance.New(ctx, s, *rootProv,
		store.KindOCRResult, store.SourceKindOCR, processorOCR, "1",
		hashutil.HashText([]byte(ocrResult.ExtractedText)),
		provenance.WithProcessingDuration(ocrDuration),
		provenance.WithQualityScore(ocrResult.QualityScore))
	if err != nil {
		return nil, fmt.Errorf("OCR provenance: %w", err)
	}

	if ocrResult.PageCount > 0 {
		if err := s.UpdateDocumentPageCount(ctx, docID, ocrResult.PageCount); err != nil {
			return nil, fmt.Errorf("recording page count: %w", err)
		}
	}

	chunkResult := chunker.Build(ocrResult.ExtractedText, ocrResult.BlockTree, chunker.Options{})

	chunks := make([]store.Chunk, len(chunkResult.Chunks))
	chunkProvenance := make([]store.Provenance, len(chunkResult.Chunks))
	for i, c := range chunkResult.Chunks {
		cProv, err := provenance.New(ctx, s, *ocrProv,
			store.KindChunk, store.SourceKindChunking, processorChunker, chunkerVersion, c.TextHash)
		if err != nil {
			return nil, fmt.Errorf("chunk %d provenance: %w", i, err)
		}
		chunkProvenance[i] = *cProv

		strategy := c.Strategy
		confidence := c.Confidence
		chunks[i] = store.Chunk{
			DocumentID:            docID,
			ProvenanceID:          cProv.ID,
			Text:                  c.Text,
			TextHash:              c.TextHash,
			ChunkIndex:            c.ChunkIndex,
			CharacterStart:        c.CharacterStart,
			CharacterEnd:          c.CharacterEnd,
			PageNumber:            c.PageNumber,
			PageRange:             c.PageRange,
			OverlapPrevious:       c.OverlapPrevious,
			OverlapNext:           c.OverlapNext,
			EmbeddingStatus:       store.EmbeddingStatusPending,
			Heading:               c.Heading,
			HeadingLevel:          c.HeadingLevel,
			SectionPath:           c.SectionPath,
			ContentTypes:          c.ContentTypes,
			IsAtomic:              c.IsAtomic,
			Strategy:              &strategy,
			Confidence:            &confidence,
			IsRepeatedBoilerplate: c.IsRepeatedBoilerplate,
		}
	}

	chunkIDs, err := s.InsertChunks(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("inserting chunks: %w", err)
	}
	for i, id := range chunkIDs {
		chunks[i].ID = id
	}

	if e.embedder != nil && len(chunks) > 0 {
		doc, err := s.GetDocument(ctx, docID)
		if err != nil {
			return nil, fmt.Errorf("reloading document for embedding: %w", err)
		}
		info := embedding.DocumentInfo{
			DocumentID: docID,
			FilePath:   doc.FilePath,
			FileName:   doc.FileName,
			FileHash:   doc.FileHash,
		}
		if err := e.embedder.EmbedDocumentChunks(ctx, info, chunks, chunkProvenance); err != nil {
			return nil, fmt.Errorf("embedding chunks: %w", err)
		}
	}

	return &IngestResult{ChunkCount: len(chunks)}, nil
}

// ProcessImages runs the VLM description stage over documentID's pending
// images, up to limit per call. Unlike IngestDocument, this is not folded
// into ingest: per the concurrency model, VLM description is an externally
// cooperative stage a caller schedules on its own cadence rather than a
// step that blocks the initial ingest call.
func (e *Engine) ProcessImages(ctx context.Context, documentID string, limit int) (*vlmpipe.BatchResult, error) {
	if e.images == nil {
		return nil, errs.NewError(errs.CategoryInternal, "no image pipeline configured")
	}
	return e.images.ProcessDocument(ctx, documentID, limit)
}
