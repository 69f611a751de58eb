package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// InsertDocument inserts a new document row. Returns the generated id.
func (s *Store) InsertDocument(ctx context.Context, d Document) (string, error) {
	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO documents (id, provenance_id, file_path, file_name, file_hash,
			file_size, file_type, status, page_count, error_message, doc_title, doc_author, doc_subject)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, d.ProvenanceID, d.FilePath, d.FileName, d.FileHash, d.FileSize, d.FileType,
		orDefault(d.Status, DocumentStatusPending), d.PageCount, d.ErrorMessage,
		d.DocTitle, d.DocAuthor, d.DocSubject)
	if err != nil {
		return "", fmt.Errorf("inserting document: %w", err)
	}
	return id, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

const documentColumns = `id, provenance_id, file_path, file_name, file_hash, file_size, file_type,
	status, page_count, error_message, doc_title, doc_author, doc_subject, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (*Document, error) {
	var d Document
	var pageCount sql.NullInt64
	var errMsg, title, author, subject sql.NullString
	if err := row.Scan(&d.ID, &d.ProvenanceID, &d.FilePath, &d.FileName, &d.FileHash,
		&d.FileSize, &d.FileType, &d.Status, &pageCount, &errMsg, &title, &author, &subject,
		&d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if pageCount.Valid {
		v := int(pageCount.Int64)
		d.PageCount = &v
	}
	if errMsg.Valid {
		d.ErrorMessage = &errMsg.String
	}
	if title.Valid {
		d.DocTitle = &title.String
	}
	if author.Valid {
		d.DocAuthor = &author.String
	}
	if subject.Valid {
		d.DocSubject = &subject.String
	}
	return &d, nil
}

// GetDocument retrieves a document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.conn(ctx).QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return d, err
}

// GetDocumentByPath retrieves a document by its file_path (alternate key).
func (s *Store) GetDocumentByPath(ctx context.Context, path string) (*Document, error) {
	row := s.conn(ctx).QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE file_path = ?", path)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return d, err
}

// GetDocumentByHash retrieves a document by its file_hash (alternate key).
func (s *Store) GetDocumentByHash(ctx context.Context, hash string) (*Document, error) {
	row := s.conn(ctx).QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE file_hash = ? LIMIT 1", hash)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return d, err
}

// GetDocumentByProvenanceID retrieves a document by its provenance_id (alternate key).
func (s *Store) GetDocumentByProvenanceID(ctx context.Context, provenanceID string) (*Document, error) {
	row := s.conn(ctx).QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE provenance_id = ?", provenanceID)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return d, err
}

// ListDocumentsOptions filters and limits ListDocuments.
type ListDocumentsOptions struct {
	Status string
	Limit  int
}

// ListDocuments returns documents newest-first, optionally filtered by status.
func (s *Store) ListDocuments(ctx context.Context, opts ListDocumentsOptions) ([]Document, error) {
	query := "SELECT " + documentColumns + " FROM documents"
	var args []any
	if opts.Status != "" {
		query += " WHERE status = ?"
		args = append(args, opts.Status)
	}
	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

// UpdateDocumentStatus transitions a document's status. Callers are
// responsible for only issuing monotonic transitions
// (pending -> processing -> complete|failed); this method does not itself
// validate the transition.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id, status string, errMsg *string) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		"UPDATE documents SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		status, errMsg, id)
	return err
}

// UpdateDocumentPageCount records the page count once OCR completes.
func (s *Store) UpdateDocumentPageCount(ctx context.Context, id string, pageCount int) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		"UPDATE documents SET page_count = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		pageCount, id)
	return err
}

// DeleteDocument cascades: embeddings (text and image), chunks,
// extractions, images, OCR results, then the document row — explicitly
// deleting vector index entries keyed by embedding id so the vector index
// stays consistent with the relational rows.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		// Embedding ids belonging to this document's chunks or images, so the
		// vector index entries can be removed by id before the rows disappear.
		rows, err := tx.QueryContext(ctx, `
			SELECT e.id FROM embeddings e
			LEFT JOIN chunks c ON c.id = e.chunk_id
			LEFT JOIN images i ON i.id = e.image_id
			WHERE c.document_id = ? OR i.document_id = ?
		`, id, id)
		if err != nil {
			return err
		}
		var embeddingIDs []string
		for rows.Next() {
			var eid string
			if err := rows.Scan(&eid); err != nil {
				rows.Close()
				return err
			}
			embeddingIDs = append(embeddingIDs, eid)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, eid := range embeddingIDs {
			if _, err := tx.ExecContext(ctx, "DELETE FROM vec_embeddings WHERE embedding_id = ?", eid); err != nil {
				return fmt.Errorf("deleting vector entry %s: %w", eid, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM embeddings WHERE id IN (
				SELECT e.id FROM embeddings e
				LEFT JOIN chunks c ON c.id = e.chunk_id
				LEFT JOIN images i ON i.id = e.image_id
				WHERE c.document_id = ? OR i.document_id = ?
			)`, id, id); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM extractions WHERE document_id = ?", id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM images WHERE document_id = ?", id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM ocr_results WHERE document_id = ?", id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id); err != nil {
			return err
		}
		return nil
	})
}
