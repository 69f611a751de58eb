package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// InsertEmbedding inserts an embedding row. Exactly one of ChunkID/ImageID/
// ExtractionID must be set; the other two must be nil.
func (s *Store) InsertEmbedding(ctx context.Context, e Embedding) (string, error) {
	if err := validateEmbeddingParent(e); err != nil {
		return "", err
	}
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO embeddings (id, provenance_id, chunk_id, image_id, extraction_id,
			original_text, source_file_path, source_file_name, source_file_hash,
			page_number, character_start, character_end, chunk_index, total_chunks,
			model_name, model_version, task_type, inference_mode, device, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, e.ProvenanceID, e.ChunkID, e.ImageID, e.ExtractionID,
		e.OriginalText, e.SourceFilePath, e.SourceFileName, e.SourceFileHash,
		e.PageNumber, e.CharacterStart, e.CharacterEnd, e.ChunkIndex, e.TotalChunks,
		e.ModelName, e.ModelVersion, orDefault(e.TaskType, TaskTypeSearchDocument),
		orDefault(e.InferenceMode, "local"), e.Device, e.ContentHash)
	if err != nil {
		return "", fmt.Errorf("inserting embedding: %w", err)
	}
	return id, nil
}

func validateEmbeddingParent(e Embedding) error {
	count := 0
	if e.ChunkID != nil {
		count++
	}
	if e.ImageID != nil {
		count++
	}
	if e.ExtractionID != nil {
		count++
	}
	if count != 1 {
		return ErrInvalidEmbeddingParent
	}
	return nil
}

const embeddingColumns = `id, provenance_id, chunk_id, image_id, extraction_id,
	original_text, source_file_path, source_file_name, source_file_hash,
	page_number, character_start, character_end, chunk_index, total_chunks,
	model_name, model_version, task_type, inference_mode, device, content_hash, created_at`

func scanEmbedding(row interface{ Scan(...any) error }) (*Embedding, error) {
	var e Embedding
	var sourcePath, sourceName, sourceHash, modelVersion, device sql.NullString
	var pageNumber, charStart, charEnd, chunkIndex, totalChunks sql.NullInt64

	if err := row.Scan(&e.ID, &e.ProvenanceID, &e.ChunkID, &e.ImageID, &e.ExtractionID,
		&e.OriginalText, &sourcePath, &sourceName, &sourceHash,
		&pageNumber, &charStart, &charEnd, &chunkIndex, &totalChunks,
		&e.ModelName, &modelVersion, &e.TaskType, &e.InferenceMode, &device, &e.ContentHash, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.SourceFilePath, e.SourceFileName, e.SourceFileHash = sourcePath.String, sourceName.String, sourceHash.String
	e.ModelVersion, e.Device = modelVersion.String, device.String
	if pageNumber.Valid {
		v := int(pageNumber.Int64)
		e.PageNumber = &v
	}
	if charStart.Valid {
		v := int(charStart.Int64)
		e.CharacterStart = &v
	}
	if charEnd.Valid {
		v := int(charEnd.Int64)
		e.CharacterEnd = &v
	}
	if chunkIndex.Valid {
		v := int(chunkIndex.Int64)
		e.ChunkIndex = &v
	}
	if totalChunks.Valid {
		v := int(totalChunks.Int64)
		e.TotalChunks = &v
	}
	return &e, nil
}

// GetEmbedding retrieves an embedding by id.
func (s *Store) GetEmbedding(ctx context.Context, id string) (*Embedding, error) {
	row := s.conn(ctx).QueryRowContext(ctx, "SELECT "+embeddingColumns+" FROM embeddings WHERE id = ?", id)
	e, err := scanEmbedding(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return e, err
}

// GetEmbeddingByProvenanceID retrieves an embedding by its provenance_id.
func (s *Store) GetEmbeddingByProvenanceID(ctx context.Context, provenanceID string) (*Embedding, error) {
	row := s.conn(ctx).QueryRowContext(ctx, "SELECT "+embeddingColumns+" FROM embeddings WHERE provenance_id = ?", provenanceID)
	e, err := scanEmbedding(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return e, err
}

// GetEmbeddingByChunk returns the embedding for a given chunk id, if any.
func (s *Store) GetEmbeddingByChunk(ctx context.Context, chunkID string) (*Embedding, error) {
	row := s.conn(ctx).QueryRowContext(ctx, "SELECT "+embeddingColumns+" FROM embeddings WHERE chunk_id = ?", chunkID)
	e, err := scanEmbedding(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return e, err
}

// GetEmbeddingByImage returns the embedding for a given image id, if any.
func (s *Store) GetEmbeddingByImage(ctx context.Context, imageID string) (*Embedding, error) {
	row := s.conn(ctx).QueryRowContext(ctx, "SELECT "+embeddingColumns+" FROM embeddings WHERE image_id = ?", imageID)
	e, err := scanEmbedding(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return e, err
}

// ListChunkEmbeddingIDs returns the ids of chunk-backed embeddings whose
// owning chunk matches the given filters, used by hybrid retrieval to turn
// a document/section_path filter into a KNN candidate set. Either filter
// may be left empty to skip it. sectionPathLike is a caller-escaped LIKE
// pattern (including surrounding %) and is always paired with ESCAPE '\'.
func (s *Store) ListChunkEmbeddingIDs(ctx context.Context, documentIDs []string, sectionPathLike string) ([]string, error) {
	query := `SELECT e.id FROM embeddings e JOIN chunks c ON c.id = e.chunk_id WHERE e.chunk_id IS NOT NULL`
	var args []any
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

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing chunk embedding ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
