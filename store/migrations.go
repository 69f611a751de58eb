package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// MigrationError reports a failed schema migration together with the DDL
// statement that caused it. The database is left at its prior version; the
// caller should treat this as fatal.
type MigrationError struct {
	Version     int
	Description string
	Stmt        string
	Err         error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %d (%s) failed on statement %q: %v", e.Version, e.Description, e.Stmt, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// migration represents a single schema migration. stmts holds the
// statements it is responsible for; the runner executes them in order inside
// the migration's transaction and wraps any failure in a *MigrationError
// naming the offending statement.
type migration struct {
	version     int
	description string
	stmts       []string
}

// columnExists reports whether a column is already present on a table, so
// ALTER TABLE ADD COLUMN can be made idempotent without relying on
// swallowed errors.
func columnExists(tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// addColumnIfMissing issues an idempotent ALTER TABLE ADD COLUMN. def is the
// column definition following the column name (e.g. "TEXT", "INTEGER DEFAULT 0").
func addColumnIfMissing(tx *sql.Tx, table, column, def string) error {
	exists, err := columnExists(tx, table, column)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if exists {
		return nil
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, def)
	if _, err := tx.Exec(stmt); err != nil {
		return &MigrationError{Stmt: stmt, Err: err}
	}
	return nil
}

// migrations is the ordered list of all schema migrations. New migrations
// are appended at the end; existing entries are never modified once
// released. Each entry's stmts are idempotent
// (CREATE... IF NOT EXISTS) except where a column must be added to an
// existing table, which goes through addColumnIfMissing in a dedicated
// apply step instead of a plain string (see the version-31 special case).
var migrations = []migration{
	{1, "provenance table + indexes", []string{
		`CREATE TABLE IF NOT EXISTS provenance (
			id TEXT PRIMARY KEY, kind TEXT NOT NULL, source_kind TEXT NOT NULL,
			source_path TEXT, parent_id TEXT REFERENCES provenance(id),
			parent_ids JSON NOT NULL DEFAULT '[]', root_document_id TEXT NOT NULL,
			chain_depth INTEGER NOT NULL, chain_path JSON NOT NULL DEFAULT '[]',
			content_hash TEXT NOT NULL, input_hash TEXT, file_hash TEXT,
			processor TEXT NOT NULL, processor_version TEXT NOT NULL,
			processing_params JSON NOT NULL DEFAULT '{}', processing_duration_ms INTEGER,
			quality_score REAL, agent_metadata JSON,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			processed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_provenance_parent ON provenance(parent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_provenance_root ON provenance(root_document_id, chain_depth)`,
	}},
	{2, "documents table", []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY, provenance_id TEXT NOT NULL REFERENCES provenance(id),
			file_path TEXT NOT NULL, file_name TEXT NOT NULL, file_hash TEXT NOT NULL,
			file_size INTEGER NOT NULL, file_type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending', page_count INTEGER, error_message TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_file_path ON documents(file_path)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_file_hash ON documents(file_hash)`,
	}},
	{3, "ocr_results table", []string{
		`CREATE TABLE IF NOT EXISTS ocr_results (
			id TEXT PRIMARY KEY, document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			provenance_id TEXT NOT NULL REFERENCES provenance(id),
			extracted_text TEXT NOT NULL, text_length INTEGER NOT NULL,
			provider_mode TEXT NOT NULL, page_count INTEGER NOT NULL, quality_score REAL,
			block_tree JSON, processing_ms INTEGER,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ocr_results_document ON ocr_results(document_id)`,
	}},
	{4, "chunks table", []string{
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY, document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			provenance_id TEXT NOT NULL REFERENCES provenance(id),
			text TEXT NOT NULL, text_hash TEXT NOT NULL, chunk_index INTEGER NOT NULL,
			character_start INTEGER NOT NULL, character_end INTEGER NOT NULL,
			page_number INTEGER, page_range TEXT,
			overlap_previous INTEGER NOT NULL DEFAULT 0, overlap_next INTEGER NOT NULL DEFAULT 0,
			embedding_status TEXT NOT NULL DEFAULT 'pending',
			heading TEXT, heading_level INTEGER, section_path TEXT,
			content_types JSON NOT NULL DEFAULT '[]', is_atomic INTEGER NOT NULL DEFAULT 0,
			strategy TEXT, confidence REAL, is_repeated_boilerplate INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, chunk_index)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_embedding_status ON chunks(embedding_status)`,
	}},
	{5, "chunks_fts external-content index", []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			text, content='chunks', content_rowid='rowid', tokenize='porter unicode61'
		)`,
		`CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
			INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
		END`,
	}},
	{6, "vec_embeddings virtual table (dim 768)", nil}, // special-cased in applyMigration with the store's embedding dimension
	{7, "images table", []string{
		`CREATE TABLE IF NOT EXISTS images (
			id TEXT PRIMARY KEY, document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			provenance_id TEXT NOT NULL REFERENCES provenance(id),
			page_number INTEGER NOT NULL, bbox_x REAL, bbox_y REAL, bbox_w REAL, bbox_h REAL,
			image_index INTEGER NOT NULL, width INTEGER, height INTEGER, format TEXT,
			extracted_path TEXT NOT NULL, content_hash TEXT NOT NULL, block_type TEXT,
			is_header_footer INTEGER NOT NULL DEFAULT 0, vlm_status TEXT NOT NULL DEFAULT 'pending',
			vlm_description TEXT, vlm_structured_data JSON, vlm_embedding_id TEXT,
			vlm_confidence REAL, vlm_tokens_used INTEGER, processing_started_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_images_document ON images(document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_images_vlm_status ON images(vlm_status)`,
		`CREATE INDEX IF NOT EXISTS idx_images_content_hash ON images(content_hash)`,
	}},
	{8, "embeddings table", []string{
		`CREATE TABLE IF NOT EXISTS embeddings (
			id TEXT PRIMARY KEY, provenance_id TEXT NOT NULL REFERENCES provenance(id),
			chunk_id TEXT REFERENCES chunks(id) ON DELETE CASCADE,
			image_id TEXT REFERENCES images(id) ON DELETE CASCADE,
			extraction_id TEXT, original_text TEXT NOT NULL,
			source_file_path TEXT, source_file_name TEXT, source_file_hash TEXT,
			page_number INTEGER, character_start INTEGER, character_end INTEGER,
			chunk_index INTEGER, total_chunks INTEGER,
			model_name TEXT NOT NULL, model_version TEXT,
			task_type TEXT NOT NULL DEFAULT 'search_document',
			inference_mode TEXT NOT NULL DEFAULT 'local', device TEXT,
			content_hash TEXT NOT NULL, created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_embeddings_chunk ON embeddings(chunk_id)`,
		`CREATE INDEX IF NOT EXISTS idx_embeddings_image ON embeddings(image_id)`,
	}},
	{9, "embeddings_fts external-content index (image-keyed rows only)", []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS embeddings_fts USING fts5(
			original_text, content='embeddings', content_rowid='rowid', tokenize='porter unicode61'
		)`,
		`CREATE TRIGGER IF NOT EXISTS embeddings_ai AFTER INSERT ON embeddings
		WHEN new.image_id IS NOT NULL BEGIN
			INSERT INTO embeddings_fts(rowid, original_text) VALUES (new.rowid, new.original_text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS embeddings_ad AFTER DELETE ON embeddings
		WHEN old.image_id IS NOT NULL BEGIN
			INSERT INTO embeddings_fts(embeddings_fts, rowid, original_text) VALUES ('delete', old.rowid, old.original_text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS embeddings_au AFTER UPDATE ON embeddings
		WHEN new.image_id IS NOT NULL OR old.image_id IS NOT NULL BEGIN
			INSERT INTO embeddings_fts(embeddings_fts, rowid, original_text) VALUES ('delete', old.rowid, old.original_text);
			INSERT INTO embeddings_fts(rowid, original_text) VALUES (new.rowid, new.original_text);
		END`,
	}},
	{10, "extractions table", []string{
		`CREATE TABLE IF NOT EXISTS extractions (
			id TEXT PRIMARY KEY, document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			provenance_id TEXT NOT NULL REFERENCES provenance(id),
			schema_json TEXT NOT NULL, extraction_json TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_extractions_document ON extractions(document_id)`,
	}},
	{11, "extractions_fts external-content index", []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS extractions_fts USING fts5(
			extraction_json, content='extractions', content_rowid='rowid', tokenize='porter unicode61'
		)`,
		`CREATE TRIGGER IF NOT EXISTS extractions_ai AFTER INSERT ON extractions BEGIN
			INSERT INTO extractions_fts(rowid, extraction_json) VALUES (new.rowid, new.extraction_json);
		END`,
		`CREATE TRIGGER IF NOT EXISTS extractions_ad AFTER DELETE ON extractions BEGIN
			INSERT INTO extractions_fts(extractions_fts, rowid, extraction_json) VALUES ('delete', old.rowid, old.extraction_json);
		END`,
		`CREATE TRIGGER IF NOT EXISTS extractions_au AFTER UPDATE ON extractions BEGIN
			INSERT INTO extractions_fts(extractions_fts, rowid, extraction_json) VALUES ('delete', old.rowid, old.extraction_json);
			INSERT INTO extractions_fts(rowid, extraction_json) VALUES (new.rowid, new.extraction_json);
		END`,
	}},
	{12, "fts_index_meta seed rows", []string{
		`CREATE TABLE IF NOT EXISTS fts_index_meta (
			name TEXT PRIMARY KEY, base_table TEXT NOT NULL, rebuilt_at DATETIME
		)`,
		`INSERT OR IGNORE INTO fts_index_meta (name, base_table) VALUES ('chunks_fts', 'chunks')`,
		`INSERT OR IGNORE INTO fts_index_meta (name, base_table) VALUES ('embeddings_fts', 'embeddings')`,
		`INSERT OR IGNORE INTO fts_index_meta (name, base_table) VALUES ('extractions_fts', 'extractions')`,
	}},
	{13, "form_fills table", []string{
		`CREATE TABLE IF NOT EXISTS form_fills (
			id TEXT PRIMARY KEY, provenance_id TEXT NOT NULL REFERENCES provenance(id),
			source_file_path TEXT NOT NULL, source_file_hash TEXT NOT NULL,
			field_data_json TEXT NOT NULL, status TEXT NOT NULL DEFAULT 'pending',
			fields_filled JSON NOT NULL DEFAULT '[]', fields_not_found JSON NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}},
	{14, "comparisons table", []string{
		`CREATE TABLE IF NOT EXISTS comparisons (
			id TEXT PRIMARY KEY, provenance_id TEXT NOT NULL REFERENCES provenance(id),
			document_id_1 TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			document_id_2 TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			similarity_ratio REAL, text_diff_json TEXT NOT NULL, structural_diff_json TEXT NOT NULL,
			summary TEXT, created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_comparisons_doc1 ON comparisons(document_id_1)`,
		`CREATE INDEX IF NOT EXISTS idx_comparisons_doc2 ON comparisons(document_id_2)`,
	}},
	{15, "clusterings + document_clusters tables", []string{
		`CREATE TABLE IF NOT EXISTS clusterings (
			id TEXT PRIMARY KEY, provenance_id TEXT NOT NULL REFERENCES provenance(id),
			run_id TEXT NOT NULL, cluster_index INTEGER NOT NULL, centroid_json TEXT NOT NULL,
			top_terms JSON, coherence_score REAL, algorithm TEXT NOT NULL,
			params JSON NOT NULL DEFAULT '{}', silhouette REAL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_clusterings_run ON clusterings(run_id)`,
		`CREATE TABLE IF NOT EXISTS document_clusters (
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			clustering_id TEXT NOT NULL REFERENCES clusterings(id) ON DELETE CASCADE,
			distance_to_centroid REAL, PRIMARY KEY (document_id, clustering_id)
		)`,
	}},
	{16, "saved_searches table", []string{
		`CREATE TABLE IF NOT EXISTS saved_searches (
			id TEXT PRIMARY KEY, name TEXT NOT NULL, query_json TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}},
	{17, "tags table", []string{
		`CREATE TABLE IF NOT EXISTS tags (id TEXT PRIMARY KEY, name TEXT NOT NULL UNIQUE)`,
	}},
	{18, "entity_tags table", []string{
		`CREATE TABLE IF NOT EXISTS entity_tags (
			tag_id TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
			entity_id TEXT NOT NULL, entity_kind TEXT NOT NULL,
			PRIMARY KEY (tag_id, entity_id, entity_kind)
		)`,
	}},
	{19, "users table", []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY, display_name TEXT NOT NULL, email TEXT UNIQUE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}},
	{20, "audit_log table", []string{
		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY, user_id TEXT REFERENCES users(id), action TEXT NOT NULL,
			entity_kind TEXT, entity_id TEXT, details JSON,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_entity ON audit_log(entity_kind, entity_id)`,
	}},
	{21, "annotations table", []string{
		`CREATE TABLE IF NOT EXISTS annotations (
			id TEXT PRIMARY KEY, document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			user_id TEXT REFERENCES users(id), body TEXT NOT NULL, anchor_json JSON,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_annotations_document ON annotations(document_id)`,
	}},
	{22, "document_locks table", []string{
		`CREATE TABLE IF NOT EXISTS document_locks (
			document_id TEXT PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
			locked_by TEXT REFERENCES users(id), locked_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			reason TEXT
		)`,
	}},
	{23, "workflow_states table", []string{
		`CREATE TABLE IF NOT EXISTS workflow_states (
			id TEXT PRIMARY KEY, document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			state TEXT NOT NULL, entered_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_states_document ON workflow_states(document_id)`,
	}},
	{24, "approval_chains table", []string{
		`CREATE TABLE IF NOT EXISTS approval_chains (
			id TEXT PRIMARY KEY, document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			name TEXT NOT NULL, status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_approval_chains_document ON approval_chains(document_id)`,
	}},
	{25, "approval_steps table", []string{
		`CREATE TABLE IF NOT EXISTS approval_steps (
			id TEXT PRIMARY KEY, approval_chain_id TEXT NOT NULL REFERENCES approval_chains(id) ON DELETE CASCADE,
			step_index INTEGER NOT NULL, approver_id TEXT REFERENCES users(id),
			status TEXT NOT NULL DEFAULT 'pending', decided_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_approval_steps_chain ON approval_steps(approval_chain_id, step_index)`,
	}},
	{26, "obligations table", []string{
		`CREATE TABLE IF NOT EXISTS obligations (
			id TEXT PRIMARY KEY, document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			description TEXT NOT NULL, due_at DATETIME, status TEXT NOT NULL DEFAULT 'open',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_obligations_document ON obligations(document_id)`,
	}},
	{27, "playbooks table", []string{
		`CREATE TABLE IF NOT EXISTS playbooks (
			id TEXT PRIMARY KEY, name TEXT NOT NULL, definition_json TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}},
	{28, "webhooks table", []string{
		`CREATE TABLE IF NOT EXISTS webhooks (
			id TEXT PRIMARY KEY, url TEXT NOT NULL, event_filter JSON NOT NULL DEFAULT '[]',
			secret TEXT, created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}},
	{29, "provenance kind + content_hash indexes for the verifier sweep", []string{
		`CREATE INDEX IF NOT EXISTS idx_provenance_kind ON provenance(kind)`,
		`CREATE INDEX IF NOT EXISTS idx_provenance_content_hash ON provenance(content_hash)`,
	}},
	{30, "chunk/document secondary indexes", []string{
		`CREATE INDEX IF NOT EXISTS idx_chunks_provenance ON chunks(provenance_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_section_path ON chunks(section_path)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_provenance ON documents(provenance_id)`,
	}},
	{31, "document metadata columns (plain-column backing for the retrieval metadata filter)", nil}, // special-cased, see Migrate
	{32, "schema_meta singleton recording FTS index count and vector dimension", []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			key TEXT PRIMARY KEY, value TEXT NOT NULL
		)`,
		`INSERT OR REPLACE INTO schema_meta (key, value) VALUES ('fts_index_count', '3')`,
		`INSERT OR REPLACE INTO schema_meta (key, value) VALUES ('vector_dimension', '768')`,
	}},
}

// Migrate runs all pending schema migrations in strict monotonic order, each
// inside its own transaction, bumping schema_version as part of that same
// transaction so there is no observable half-applied state. A failure at any
// step is fatal and leaves the database at its prior version.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	row := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		slog.Info("store: applying migration", "version", m.version, "description", m.description)

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}

		if err := s.applyMigration(tx, m); err != nil {
			tx.Rollback()
			slog.Error("store: migration failed", "version", m.version, "error", err)
			return err
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_version (version, description) VALUES (?, ?)",
			m.version, m.description); err != nil {
			tx.Rollback()
			return &MigrationError{Version: m.version, Description: m.description, Err: err}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", m.version, err)
		}
	}

	return nil
}

func (s *Store) applyMigration(tx *sql.Tx, m migration) error {
	switch m.version {
	case 6:
		stmt := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_embeddings USING vec0(
			embedding_id TEXT PRIMARY KEY, embedding float[%d]
		)`, s.embeddingDim)
		if _, err := tx.Exec(stmt); err != nil {
			return &MigrationError{Version: m.version, Description: m.description, Stmt: stmt, Err: err}
		}
		return nil
	case 31:
		for _, col := range []struct{ name, def string }{
			{"doc_title", "TEXT"},
			{"doc_author", "TEXT"},
			{"doc_subject", "TEXT"},
		} {
			if err := addColumnIfMissing(tx, "documents", col.name, col.def); err != nil {
				if me, ok := err.(*MigrationError); ok {
					me.Version, me.Description = m.version, m.description
					return me
				}
				return &MigrationError{Version: m.version, Description: m.description, Err: err}
			}
		}
		return nil
	}

	for _, stmt := range m.stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return &MigrationError{Version: m.version, Description: m.description, Stmt: stmt, Err: err}
		}
	}
	return nil
}
