package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// InsertFormFill inserts a form-fill row, status pending.
func (s *Store) InsertFormFill(ctx context.Context, f FormFill) (string, error) {
	id := f.ID
	if id == "" {
		id = uuid.NewString()
	}
	filled, err := json.Marshal(defaultSlice(f.FieldsFilled))
	if err != nil {
		return "", fmt.Errorf("marshaling fields_filled: %w", err)
	}
	notFound, err := json.Marshal(defaultSlice(f.FieldsNotFound))
	if err != nil {
		return "", fmt.Errorf("marshaling fields_not_found: %w", err)
	}
	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO form_fills (id, provenance_id, source_file_path, source_file_hash,
			field_data_json, status, fields_filled, fields_not_found)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, f.ProvenanceID, f.SourceFilePath, f.SourceFileHash, f.FieldDataJSON,
		orDefault(f.Status, DocumentStatusPending), string(filled), string(notFound))
	if err != nil {
		return "", fmt.Errorf("inserting form fill: %w", err)
	}
	return id, nil
}

func defaultSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

const formFillColumns = `id, provenance_id, source_file_path, source_file_hash,
	field_data_json, status, fields_filled, fields_not_found, created_at`

func scanFormFill(row interface{ Scan(...any) error }) (*FormFill, error) {
	var f FormFill
	var filled, notFound string
	if err := row.Scan(&f.ID, &f.ProvenanceID, &f.SourceFilePath, &f.SourceFileHash,
		&f.FieldDataJSON, &f.Status, &filled, &notFound, &f.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(filled), &f.FieldsFilled); err != nil {
		return nil, fmt.Errorf("%w: fields_filled on form_fill %s: %v", ErrCorruptJSON, f.ID, err)
	}
	if err := json.Unmarshal([]byte(notFound), &f.FieldsNotFound); err != nil {
		return nil, fmt.Errorf("%w: fields_not_found on form_fill %s: %v", ErrCorruptJSON, f.ID, err)
	}
	return &f, nil
}

// GetFormFill retrieves a form fill by id.
func (s *Store) GetFormFill(ctx context.Context, id string) (*FormFill, error) {
	row := s.conn(ctx).QueryRowContext(ctx, "SELECT "+formFillColumns+" FROM form_fills WHERE id = ?", id)
	f, err := scanFormFill(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return f, err
}

// GetFormFillByProvenanceID retrieves a form fill by its provenance_id.
func (s *Store) GetFormFillByProvenanceID(ctx context.Context, provenanceID string) (*FormFill, error) {
	row := s.conn(ctx).QueryRowContext(ctx, "SELECT "+formFillColumns+" FROM form_fills WHERE provenance_id = ?", provenanceID)
	f, err := scanFormFill(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return f, err
}

// UpdateFormFillResult persists the outcome of a form-fill operation.
func (s *Store) UpdateFormFillResult(ctx context.Context, id, status string, fieldsFilled, fieldsNotFound []string) error {
	filled, err := json.Marshal(defaultSlice(fieldsFilled))
	if err != nil {
		return fmt.Errorf("marshaling fields_filled: %w", err)
	}
	notFound, err := json.Marshal(defaultSlice(fieldsNotFound))
	if err != nil {
		return fmt.Errorf("marshaling fields_not_found: %w", err)
	}
	_, err = s.conn(ctx).ExecContext(ctx,
		"UPDATE form_fills SET status = ?, fields_filled = ?, fields_not_found = ? WHERE id = ?",
		status, string(filled), string(notFound), id)
	return err
}
