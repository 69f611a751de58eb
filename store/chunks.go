package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// InsertChunks inserts a batch of chunks for a document inside a single
// transaction, matching chunk_index order. Returns the
// generated ids in the same order as the input slice.
func (s *Store) InsertChunks(ctx context.Context, chunks []Chunk) ([]string, error) {
	ids := make([]string, len(chunks))
	err := s.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (id, document_id, provenance_id, text, text_hash, chunk_index,
				character_start, character_end, page_number, page_range,
				overlap_previous, overlap_next, embedding_status,
				heading, heading_level, section_path, content_types, is_atomic,
				strategy, confidence, is_repeated_boilerplate)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, c := range chunks {
			id := c.ID
			if id == "" {
				id = uuid.NewString()
			}
			contentTypes, err := json.Marshal(c.ContentTypes)
			if err != nil {
				return fmt.Errorf("marshaling content_types: %w", err)
			}
			if _, err := stmt.ExecContext(ctx, id, c.DocumentID, c.ProvenanceID, c.Text, c.TextHash,
				c.ChunkIndex, c.CharacterStart, c.CharacterEnd, c.PageNumber, c.PageRange,
				c.OverlapPrevious, c.OverlapNext, orDefault(c.EmbeddingStatus, EmbeddingStatusPending),
				c.Heading, c.HeadingLevel, c.SectionPath, string(contentTypes), c.IsAtomic,
				c.Strategy, c.Confidence, c.IsRepeatedBoilerplate); err != nil {
				return fmt.Errorf("inserting chunk %d: %w", i, err)
			}
			ids[i] = id
		}
		return nil
	})
	return ids, err
}

const chunkColumns = `id, document_id, provenance_id, text, text_hash, chunk_index,
	character_start, character_end, page_number, page_range,
	overlap_previous, overlap_next, embedding_status,
	heading, heading_level, section_path, content_types, is_atomic,
	strategy, confidence, is_repeated_boilerplate, created_at`

func scanChunk(row interface{ Scan(...any) error }) (*Chunk, error) {
	var c Chunk
	var pageNumber sql.NullInt64
	var pageRange, heading, sectionPath, strategy sql.NullString
	var headingLevel sql.NullInt64
	var confidence sql.NullFloat64
	var contentTypes string

	if err := row.Scan(&c.ID, &c.DocumentID, &c.ProvenanceID, &c.Text, &c.TextHash, &c.ChunkIndex,
		&c.CharacterStart, &c.CharacterEnd, &pageNumber, &pageRange,
		&c.OverlapPrevious, &c.OverlapNext, &c.EmbeddingStatus,
		&heading, &headingLevel, &sectionPath, &contentTypes, &c.IsAtomic,
		&strategy, &confidence, &c.IsRepeatedBoilerplate, &c.CreatedAt); err != nil {
		return nil, err
	}

	if pageNumber.Valid {
		v := int(pageNumber.Int64)
		c.PageNumber = &v
	}
	if pageRange.Valid {
		c.PageRange = &pageRange.String
	}
	if heading.Valid {
		c.Heading = &heading.String
	}
	if headingLevel.Valid {
		v := int(headingLevel.Int64)
		c.HeadingLevel = &v
	}
	if sectionPath.Valid {
		c.SectionPath = &sectionPath.String
	}
	if strategy.Valid {
		c.Strategy = &strategy.String
	}
	if confidence.Valid {
		c.Confidence = &confidence.Float64
	}
	if err := json.Unmarshal([]byte(contentTypes), &c.ContentTypes); err != nil {
		return nil, fmt.Errorf("%w: content_types on chunk %s: %v", ErrCorruptJSON, c.ID, err)
	}
	return &c, nil
}

// GetChunk retrieves a chunk by id.
func (s *Store) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	row := s.conn(ctx).QueryRowContext(ctx, "SELECT "+chunkColumns+" FROM chunks WHERE id = ?", id)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

// GetChunkByProvenanceID retrieves a chunk by its provenance_id.
func (s *Store) GetChunkByProvenanceID(ctx context.Context, provenanceID string) (*Chunk, error) {
	row := s.conn(ctx).QueryRowContext(ctx, "SELECT "+chunkColumns+" FROM chunks WHERE provenance_id = ?", provenanceID)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

// ListChunksByDocument returns a document's chunks ordered by chunk_index.
func (s *Store) ListChunksByDocument(ctx context.Context, documentID string) ([]Chunk, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		"SELECT "+chunkColumns+" FROM chunks WHERE document_id = ? ORDER BY chunk_index", documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *c)
	}
	return chunks, rows.Err()
}

// ListPendingEmbeddingChunks returns chunks awaiting embedding, ordered by chunk_index,
// limited to limit (0 = unlimited).
func (s *Store) ListPendingEmbeddingChunks(ctx context.Context, documentID string, limit int) ([]Chunk, error) {
	query := "SELECT " + chunkColumns + " FROM chunks WHERE embedding_status = ?"
	args := []any{EmbeddingStatusPending}
	if documentID != "" {
		query += " AND document_id = ?"
		args = append(args, documentID)
	}
	query += " ORDER BY chunk_index"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *c)
	}
	return chunks, rows.Err()
}

// UpdateChunkEmbeddingStatus sets a chunk's embedding_status.
func (s *Store) UpdateChunkEmbeddingStatus(ctx context.Context, id, status string) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		"UPDATE chunks SET embedding_status = ? WHERE id = ?", status, id)
	return err
}
