package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// InsertComparison inserts a pairwise document-comparison row.
func (s *Store) InsertComparison(ctx context.Context, c Comparison) (string, error) {
	id := c.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO comparisons (id, provenance_id, document_id_1, document_id_2,
			similarity_ratio, text_diff_json, structural_diff_json, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, c.ProvenanceID, c.DocumentID1, c.DocumentID2,
		c.SimilarityRatio, c.TextDiffJSON, c.StructuralDiffJSON, c.Summary)
	if err != nil {
		return "", fmt.Errorf("inserting comparison: %w", err)
	}
	return id, nil
}

const comparisonColumns = `id, provenance_id, document_id_1, document_id_2,
	similarity_ratio, text_diff_json, structural_diff_json, summary, created_at`

func scanComparison(row interface{ Scan(...any) error }) (*Comparison, error) {
	var c Comparison
	var similarity sql.NullFloat64
	var summary sql.NullString
	if err := row.Scan(&c.ID, &c.ProvenanceID, &c.DocumentID1, &c.DocumentID2,
		&similarity, &c.TextDiffJSON, &c.StructuralDiffJSON, &summary, &c.CreatedAt); err != nil {
		return nil, err
	}
	if similarity.Valid {
		c.SimilarityRatio = &similarity.Float64
	}
	c.Summary = summary.String
	return &c, nil
}

// GetComparison retrieves a comparison by id.
func (s *Store) GetComparison(ctx context.Context, id string) (*Comparison, error) {
	row := s.conn(ctx).QueryRowContext(ctx, "SELECT "+comparisonColumns+" FROM comparisons WHERE id = ?", id)
	c, err := scanComparison(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

// GetComparisonByProvenanceID retrieves a comparison by its provenance_id.
func (s *Store) GetComparisonByProvenanceID(ctx context.Context, provenanceID string) (*Comparison, error) {
	row := s.conn(ctx).QueryRowContext(ctx, "SELECT "+comparisonColumns+" FROM comparisons WHERE provenance_id = ?", provenanceID)
	c, err := scanComparison(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

// ListComparisonsForDocument returns every comparison involving documentID,
// on either side of the pair.
func (s *Store) ListComparisonsForDocument(ctx context.Context, documentID string) ([]Comparison, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		"SELECT "+comparisonColumns+" FROM comparisons WHERE document_id_1 = ? OR document_id_2 = ? ORDER BY created_at",
		documentID, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comparisons []Comparison
	for rows.Next() {
		c, err := scanComparison(rows)
		if err != nil {
			return nil, err
		}
		comparisons = append(comparisons, *c)
	}
	return comparisons, rows.Err()
}
