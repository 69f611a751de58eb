package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// InsertProvenance inserts a provenance record as prepared by the
// provenance package's chain-construction entry point. The store layer does
// not itself derive parent_ids/chain_depth/chain_path — it persists what it
// is given and parses it back strictly on read.
func (s *Store) InsertProvenance(ctx context.Context, p Provenance) error {
	parentIDs, err := json.Marshal(defaultSlice(p.ParentIDs))
	if err != nil {
		return fmt.Errorf("marshaling parent_ids: %w", err)
	}
	chainPath, err := json.Marshal(defaultSlice(p.ChainPath))
	if err != nil {
		return fmt.Errorf("marshaling chain_path: %w", err)
	}
	params := p.ProcessingParams
	if params == nil {
		params = map[string]any{}
	}
	processingParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshaling processing_params: %w", err)
	}

	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO provenance (id, kind, source_kind, source_path, parent_id, parent_ids,
			root_document_id, chain_depth, chain_path, content_hash, input_hash, file_hash,
			processor, processor_version, processing_params, processing_duration_ms,
			quality_score, agent_metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Kind, p.SourceKind, p.SourcePath, p.ParentID, string(parentIDs),
		p.RootDocumentID, p.ChainDepth, string(chainPath), p.ContentHash, p.InputHash, p.FileHash,
		p.Processor, p.ProcessorVersion, string(processingParams), p.ProcessingDurationMS,
		p.QualityScore, p.AgentMetadata)
	if err != nil {
		return fmt.Errorf("inserting provenance %s: %w", p.ID, err)
	}
	return nil
}

const provenanceColumns = `id, kind, source_kind, source_path, parent_id, parent_ids,
	root_document_id, chain_depth, chain_path, content_hash, input_hash, file_hash,
	processor, processor_version, processing_params, processing_duration_ms,
	quality_score, agent_metadata, created_at, processed_at`

func scanProvenance(row interface{ Scan(...any) error }) (*Provenance, error) {
	var p Provenance
	var sourcePath, parentID, inputHash, fileHash, agentMetadata sql.NullString
	var parentIDs, chainPath, processingParams string

	if err := row.Scan(&p.ID, &p.Kind, &p.SourceKind, &sourcePath, &parentID, &parentIDs,
		&p.RootDocumentID, &p.ChainDepth, &chainPath, &p.ContentHash, &inputHash, &fileHash,
		&p.Processor, &p.ProcessorVersion, &processingParams, &p.ProcessingDurationMS,
		&p.QualityScore, &agentMetadata, &p.CreatedAt, &p.ProcessedAt); err != nil {
		return nil, err
	}

	if sourcePath.Valid {
		p.SourcePath = &sourcePath.String
	}
	if parentID.Valid {
		p.ParentID = &parentID.String
	}
	if inputHash.Valid {
		p.InputHash = &inputHash.String
	}
	if fileHash.Valid {
		p.FileHash = &fileHash.String
	}
	if agentMetadata.Valid {
		p.AgentMetadata = &agentMetadata.String
	}
	if err := json.Unmarshal([]byte(parentIDs), &p.ParentIDs); err != nil {
		return nil, fmt.Errorf("%w: parent_ids on provenance %s: %v", ErrCorruptJSON, p.ID, err)
	}
	if err := json.Unmarshal([]byte(chainPath), &p.ChainPath); err != nil {
		return nil, fmt.Errorf("%w: chain_path on provenance %s: %v", ErrCorruptJSON, p.ID, err)
	}
	if err := json.Unmarshal([]byte(processingParams), &p.ProcessingParams); err != nil {
		return nil, fmt.Errorf("%w: processing_params on provenance %s: %v", ErrCorruptJSON, p.ID, err)
	}
	return &p, nil
}

// GetProvenance retrieves a provenance record by id.
func (s *Store) GetProvenance(ctx context.Context, id string) (*Provenance, error) {
	row := s.conn(ctx).QueryRowContext(ctx, "SELECT "+provenanceColumns+" FROM provenance WHERE id = ?", id)
	p, err := scanProvenance(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return p, err
}

// ListProvenanceChildren returns direct descendants of id by parent_id,
// ordered by created_at.
func (s *Store) ListProvenanceChildren(ctx context.Context, id string) ([]Provenance, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		"SELECT "+provenanceColumns+" FROM provenance WHERE parent_id = ? ORDER BY created_at", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Provenance
	for rows.Next() {
		p, err := scanProvenance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ListProvenanceByRoot returns every record sharing root_document_id,
// ordered by chain_depth ascending then created_at.
func (s *Store) ListProvenanceByRoot(ctx context.Context, rootDocumentID string) ([]Provenance, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		"SELECT "+provenanceColumns+" FROM provenance WHERE root_document_id = ? ORDER BY chain_depth, created_at",
		rootDocumentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Provenance
	for rows.Next() {
		p, err := scanProvenance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ListProvenanceByKindOrderedByDepth returns every provenance record in the
// database, ordered by chain_depth ascending then created_at — the sweep
// order a database-wide verification sweep requires.
func (s *Store) ListProvenanceByKindOrderedByDepth(ctx context.Context) ([]Provenance, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		"SELECT "+provenanceColumns+" FROM provenance ORDER BY chain_depth, created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Provenance
	for rows.Next() {
		p, err := scanProvenance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// CountProvenance returns the total number of provenance records.
func (s *Store) CountProvenance(ctx context.Context) (int64, error) {
	var n int64
	err := s.conn(ctx).QueryRowContext(ctx, "SELECT COUNT(*) FROM provenance").Scan(&n)
	return n, err
}
