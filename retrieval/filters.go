package retrieval

import (
	"context"
	"database/sql"
)

// noMatchSentinel stands in for an empty resolved document-id set so
// downstream SQL built with "document_id IN (...)" yields zero rows
// instead of being mistaken for "no filter applied".
const noMatchSentinel = "__no_match__"

// Metadata filters documents by exact match against their plain metadata
// columns.
type Metadata struct {
	Title   string
	Author  string
	Subject string
}

func (m Metadata) empty() bool {
	return m.Title == "" && m.Author == "" && m.Subject == ""
}

// resolveMetadataDocumentIDs scans the documents table for rows matching
// every non-empty field in m. Returns (nil, nil) if m is empty (no filter),
// or a possibly-empty slice of matching document ids otherwise.
func resolveMetadataDocumentIDs(ctx context.Context, db *sql.DB, m Metadata) ([]string, error) {
	if m.empty() {
		return nil, nil
	}
	query := "SELECT id FROM documents WHERE 1 = 1"
	var args []any
	if m.Title != "" {
		query += " AND doc_title = ?"
		args = append(args, m.Title)
	}
	if m.Author != "" {
		query += " AND doc_author = ?"
		args = append(args, m.Author)
	}
	if m.Subject != "" {
		query += " AND doc_subject = ?"
		args = append(args, m.Subject)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
