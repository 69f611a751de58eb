package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// InsertOCRResult inserts an OCR_RESULT row.
func (s *Store) InsertOCRResult(ctx context.Context, r OCRResult) (string, error) {
	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO ocr_results (id, document_id, provenance_id, extracted_text, text_length,
			provider_mode, page_count, quality_score, block_tree, processing_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, r.DocumentID, r.ProvenanceID, r.ExtractedText, r.TextLength,
		r.ProviderMode, r.PageCount, r.QualityScore, r.BlockTree, r.ProcessingMS)
	if err != nil {
		return "", fmt.Errorf("inserting ocr result: %w", err)
	}
	return id, nil
}

const ocrResultColumns = `id, document_id, provenance_id, extracted_text, text_length,
	provider_mode, page_count, quality_score, block_tree, processing_ms, created_at`

func scanOCRResult(row interface{ Scan(...any) error }) (*OCRResult, error) {
	var r OCRResult
	var quality sql.NullFloat64
	var blockTree sql.NullString
	var processingMS sql.NullInt64

	if err := row.Scan(&r.ID, &r.DocumentID, &r.ProvenanceID, &r.ExtractedText, &r.TextLength,
		&r.ProviderMode, &r.PageCount, &quality, &blockTree, &processingMS, &r.CreatedAt); err != nil {
		return nil, err
	}
	if quality.Valid {
		r.QualityScore = &quality.Float64
	}
	r.BlockTree = blockTree.String
	if processingMS.Valid {
		r.ProcessingMS = &processingMS.Int64
	}
	return &r, nil
}

// GetOCRResult retrieves an OCR result by id.
func (s *Store) GetOCRResult(ctx context.Context, id string) (*OCRResult, error) {
	row := s.conn(ctx).QueryRowContext(ctx, "SELECT "+ocrResultColumns+" FROM ocr_results WHERE id = ?", id)
	r, err := scanOCRResult(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return r, err
}

// GetOCRResultByProvenanceID retrieves an OCR result by its provenance_id.
func (s *Store) GetOCRResultByProvenanceID(ctx context.Context, provenanceID string) (*OCRResult, error) {
	row := s.conn(ctx).QueryRowContext(ctx, "SELECT "+ocrResultColumns+" FROM ocr_results WHERE provenance_id = ?", provenanceID)
	r, err := scanOCRResult(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return r, err
}

// GetOCRResultByDocument returns the (single, immutable) OCR result for a
// document, if one has been produced.
func (s *Store) GetOCRResultByDocument(ctx context.Context, documentID string) (*OCRResult, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		"SELECT "+ocrResultColumns+" FROM ocr_results WHERE document_id = ? ORDER BY created_at DESC LIMIT 1", documentID)
	r, err := scanOCRResult(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return r, err
}
