package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertImage inserts a newly extracted image row, status pending.
func (s *Store) InsertImage(ctx context.Context, img Image) (string, error) {
	id := img.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO images (id, document_id, provenance_id, page_number,
			bbox_x, bbox_y, bbox_w, bbox_h, image_index, width, height, format,
			extracted_path, content_hash, block_type, is_header_footer, vlm_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, img.DocumentID, img.ProvenanceID, img.PageNumber,
		img.BBoxX, img.BBoxY, img.BBoxW, img.BBoxH, img.ImageIndex, img.Width, img.Height, img.Format,
		img.ExtractedPath, img.ContentHash, img.BlockType, img.IsHeaderFooter,
		orDefault(img.VLMStatus, VLMStatusPending))
	if err != nil {
		return "", fmt.Errorf("inserting image: %w", err)
	}
	return id, nil
}

const imageColumns = `id, document_id, provenance_id, page_number,
	bbox_x, bbox_y, bbox_w, bbox_h, image_index, width, height, format,
	extracted_path, content_hash, block_type, is_header_footer, vlm_status,
	vlm_description, vlm_structured_data, vlm_embedding_id, vlm_confidence,
	vlm_tokens_used, processing_started_at, created_at`

func scanImage(row interface{ Scan(...any) error }) (*Image, error) {
	var img Image
	var vlmDesc, vlmData, vlmEmbID sql.NullString
	var vlmConfidence sql.NullFloat64
	var vlmTokens sql.NullInt64
	var startedAt sql.NullTime

	if err := row.Scan(&img.ID, &img.DocumentID, &img.ProvenanceID, &img.PageNumber,
		&img.BBoxX, &img.BBoxY, &img.BBoxW, &img.BBoxH, &img.ImageIndex, &img.Width, &img.Height, &img.Format,
		&img.ExtractedPath, &img.ContentHash, &img.BlockType, &img.IsHeaderFooter, &img.VLMStatus,
		&vlmDesc, &vlmData, &vlmEmbID, &vlmConfidence, &vlmTokens, &startedAt, &img.CreatedAt); err != nil {
		return nil, err
	}
	if vlmDesc.Valid {
		img.VLMDescription = &vlmDesc.String
	}
	if vlmData.Valid {
		img.VLMStructuredData = &vlmData.String
	}
	if vlmEmbID.Valid {
		img.VLMEmbeddingID = &vlmEmbID.String
	}
	if vlmConfidence.Valid {
		img.VLMConfidence = &vlmConfidence.Float64
	}
	if vlmTokens.Valid {
		v := int(vlmTokens.Int64)
		img.VLMTokensUsed = &v
	}
	if startedAt.Valid {
		img.ProcessingStartedAt = &startedAt.Time
	}
	return &img, nil
}

// GetImage retrieves an image by id.
func (s *Store) GetImage(ctx context.Context, id string) (*Image, error) {
	row := s.conn(ctx).QueryRowContext(ctx, "SELECT "+imageColumns+" FROM images WHERE id = ?", id)
	img, err := scanImage(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return img, err
}

// ListImagesByDocument returns all images extracted from a document.
func (s *Store) ListImagesByDocument(ctx context.Context, documentID string) ([]Image, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		"SELECT "+imageColumns+" FROM images WHERE document_id = ? ORDER BY page_number, image_index", documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, *img)
	}
	return images, rows.Err()
}

// ListPendingImages returns images awaiting VLM processing for a document
// (or across all documents if documentID is empty).
func (s *Store) ListPendingImages(ctx context.Context, documentID string) ([]Image, error) {
	query := "SELECT " + imageColumns + " FROM images WHERE vlm_status = ?"
	args := []any{VLMStatusPending}
	if documentID != "" {
		query += " AND document_id = ?"
		args = append(args, documentID)
	}
	query += " ORDER BY page_number, image_index"

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, *img)
	}
	return images, rows.Err()
}

// FindImageByContentHash returns the first already-processed (vlm_status =
// complete) image sharing content_hash with a candidate, for the VLM dedup
// step. Returns ErrNotFound if none exists.
func (s *Store) FindImageByContentHash(ctx context.Context, contentHash, excludeID string) (*Image, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		"SELECT "+imageColumns+" FROM images WHERE content_hash = ? AND vlm_status = ? AND id != ? ORDER BY created_at LIMIT 1",
		contentHash, VLMStatusComplete, excludeID)
	img, err := scanImage(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return img, err
}

// ClaimImageProcessing performs a pending->processing compare-and-swap so
// concurrent workers never process the same image twice; the loser of the
// race sees (false, nil) and skips it. Returns (true, nil) if this call
// won the claim.
func (s *Store) ClaimImageProcessing(ctx context.Context, id string) (bool, error) {
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE images SET vlm_status = ?, processing_started_at = ?
		WHERE id = ? AND vlm_status = ?
	`, VLMStatusProcessing, time.Now().UTC(), id, VLMStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ResetStuckImages resets images stuck in "processing" for longer than
// olderThan back to "pending", the pipeline-start recovery step for workers
// that died mid-claim. Idempotent across repeated calls.
func (s *Store) ResetStuckImages(ctx context.Context, documentID string, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	query := "UPDATE images SET vlm_status = ?, processing_started_at = NULL WHERE vlm_status = ? AND processing_started_at < ?"
	args := []any{VLMStatusPending, VLMStatusProcessing, cutoff}
	if documentID != "" {
		query += " AND document_id = ?"
		args = append(args, documentID)
	}
	res, err := s.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdateImageVLMFields persists the result of a VLM inference (or dedup
// copy) onto the image row.
func (s *Store) UpdateImageVLMFields(ctx context.Context, id string, status string, description *string,
	structuredData *string, embeddingID *string, confidence *float64, tokensUsed *int) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE images SET vlm_status = ?, vlm_description = ?, vlm_structured_data = ?,
			vlm_embedding_id = ?, vlm_confidence = ?, vlm_tokens_used = ?
		WHERE id = ?
	`, status, description, structuredData, embeddingID, confidence, tokensUsed, id)
	return err
}

// MarkImageFailed records a terminal failure on an image (precondition
// failure, batch-abort, or exhausted retries).
func (s *Store) MarkImageFailed(ctx context.Context, id string) error {
	_, err := s.conn(ctx).ExecContext(ctx, "UPDATE images SET vlm_status = ? WHERE id = ?", VLMStatusFailed, id)
	return err
}

// MarkImageSkipped records a relevance-filter skip. Status is
// skipped-complete, not failed, so retries leave it alone.
func (s *Store) MarkImageSkipped(ctx context.Context, id string) error {
	_, err := s.conn(ctx).ExecContext(ctx, "UPDATE images SET vlm_status = ? WHERE id = ?", VLMStatusSkippedComplete, id)
	return err
}
