package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// InsertExtraction inserts a structured-extraction row.
func (s *Store) InsertExtraction(ctx context.Context, e Extraction) (string, error) {
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO extractions (id, document_id, provenance_id, schema_json, extraction_json)
		VALUES (?, ?, ?, ?, ?)
	`, id, e.DocumentID, e.ProvenanceID, e.SchemaJSON, e.ExtractionJSON)
	if err != nil {
		return "", fmt.Errorf("inserting extraction: %w", err)
	}
	return id, nil
}

const extractionColumns = `id, document_id, provenance_id, schema_json, extraction_json, created_at`

func scanExtraction(row interface{ Scan(...any) error }) (*Extraction, error) {
	var e Extraction
	if err := row.Scan(&e.ID, &e.DocumentID, &e.ProvenanceID, &e.SchemaJSON, &e.ExtractionJSON, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// GetExtraction retrieves an extraction by id.
func (s *Store) GetExtraction(ctx context.Context, id string) (*Extraction, error) {
	row := s.conn(ctx).QueryRowContext(ctx, "SELECT "+extractionColumns+" FROM extractions WHERE id = ?", id)
	e, err := scanExtraction(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return e, err
}

// GetExtractionByProvenanceID retrieves an extraction by its provenance_id.
func (s *Store) GetExtractionByProvenanceID(ctx context.Context, provenanceID string) (*Extraction, error) {
	row := s.conn(ctx).QueryRowContext(ctx, "SELECT "+extractionColumns+" FROM extractions WHERE provenance_id = ?", provenanceID)
	e, err := scanExtraction(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return e, err
}

// ListExtractionsByDocument returns all extractions run against a document.
func (s *Store) ListExtractionsByDocument(ctx context.Context, documentID string) ([]Extraction, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		"SELECT "+extractionColumns+" FROM extractions WHERE document_id = ? ORDER BY created_at", documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var extractions []Extraction
	for rows.Next() {
		e, err := scanExtraction(rows)
		if err != nil {
			return nil, err
		}
		extractions = append(extractions, *e)
	}
	return extractions, rows.Err()
}
