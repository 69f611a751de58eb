package store

import "fmt"

// schemaSQL returns the full current-state DDL for a fresh database. embeddingDim
// controls the vec0 virtual table dimension (768 per the provenance data model).
// Existing databases reach the same end state incrementally through migrations.
// store.New runs this DDL before Migrate, so a brand-new file (schema_version
// empty) still steps through every migration afterwards.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- Provenance: the central tamper-evident lineage record. One row per artifact
-- produced anywhere in the pipeline, regardless of kind.
CREATE TABLE IF NOT EXISTS provenance (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    source_kind TEXT NOT NULL,
    source_path TEXT,
    parent_id TEXT REFERENCES provenance(id),
    parent_ids JSON NOT NULL DEFAULT '[]',
    root_document_id TEXT NOT NULL,
    chain_depth INTEGER NOT NULL,
    chain_path JSON NOT NULL DEFAULT '[]',
    content_hash TEXT NOT NULL,
    input_hash TEXT,
    file_hash TEXT,
    processor TEXT NOT NULL,
    processor_version TEXT NOT NULL,
    processing_params JSON NOT NULL DEFAULT '{}',
    processing_duration_ms INTEGER,
    quality_score REAL,
    agent_metadata JSON,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    processed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_provenance_parent ON provenance(parent_id);
CREATE INDEX IF NOT EXISTS idx_provenance_root ON provenance(root_document_id, chain_depth);
CREATE INDEX IF NOT EXISTS idx_provenance_kind ON provenance(kind);
CREATE INDEX IF NOT EXISTS idx_provenance_content_hash ON provenance(content_hash);

-- Documents: the ingest root. Owns OCR_RESULT, CHUNK, IMAGE, EXTRACTION,
-- COMPARISON children by cascade delete.
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    provenance_id TEXT NOT NULL REFERENCES provenance(id),
    file_path TEXT NOT NULL,
    file_name TEXT NOT NULL,
    file_hash TEXT NOT NULL,
    file_size INTEGER NOT NULL,
    file_type TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    page_count INTEGER,
    error_message TEXT,
    doc_title TEXT,
    doc_author TEXT,
    doc_subject TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_file_path ON documents(file_path);
CREATE INDEX IF NOT EXISTS idx_documents_file_hash ON documents(file_hash);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_provenance ON documents(provenance_id);

-- OCR results: one per successful OCR pass over a document.
CREATE TABLE IF NOT EXISTS ocr_results (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    provenance_id TEXT NOT NULL REFERENCES provenance(id),
    extracted_text TEXT NOT NULL,
    text_length INTEGER NOT NULL,
    provider_mode TEXT NOT NULL,
    page_count INTEGER NOT NULL,
    quality_score REAL,
    block_tree JSON,
    processing_ms INTEGER,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_ocr_results_document ON ocr_results(document_id);
CREATE INDEX IF NOT EXISTS idx_ocr_results_provenance ON ocr_results(provenance_id);

-- Chunks: retrieval units produced by the chunk pipeline.
CREATE TABLE IF NOT EXISTS chunks (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    provenance_id TEXT NOT NULL REFERENCES provenance(id),
    text TEXT NOT NULL,
    text_hash TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    character_start INTEGER NOT NULL,
    character_end INTEGER NOT NULL,
    page_number INTEGER,
    page_range TEXT,
    overlap_previous INTEGER NOT NULL DEFAULT 0,
    overlap_next INTEGER NOT NULL DEFAULT 0,
    embedding_status TEXT NOT NULL DEFAULT 'pending',
    heading TEXT,
    heading_level INTEGER,
    section_path TEXT,
    content_types JSON NOT NULL DEFAULT '[]',
    is_atomic INTEGER NOT NULL DEFAULT 0,
    strategy TEXT,
    confidence REAL,
    is_repeated_boilerplate INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, chunk_index);
CREATE INDEX IF NOT EXISTS idx_chunks_provenance ON chunks(provenance_id);
CREATE INDEX IF NOT EXISTS idx_chunks_embedding_status ON chunks(embedding_status);
CREATE INDEX IF NOT EXISTS idx_chunks_section_path ON chunks(section_path);

-- Images: extracted figures/photos, one row per detected image region.
CREATE TABLE IF NOT EXISTS images (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    provenance_id TEXT NOT NULL REFERENCES provenance(id),
    page_number INTEGER NOT NULL,
    bbox_x REAL, bbox_y REAL, bbox_w REAL, bbox_h REAL,
    image_index INTEGER NOT NULL,
    width INTEGER,
    height INTEGER,
    format TEXT,
    extracted_path TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    block_type TEXT,
    is_header_footer INTEGER NOT NULL DEFAULT 0,
    vlm_status TEXT NOT NULL DEFAULT 'pending',
    vlm_description TEXT,
    vlm_structured_data JSON,
    vlm_embedding_id TEXT,
    vlm_confidence REAL,
    vlm_tokens_used INTEGER,
    processing_started_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_images_document ON images(document_id);
CREATE INDEX IF NOT EXISTS idx_images_provenance ON images(provenance_id);
CREATE INDEX IF NOT EXISTS idx_images_vlm_status ON images(vlm_status);
CREATE INDEX IF NOT EXISTS idx_images_content_hash ON images(content_hash);

-- Embeddings: denormalized, self-contained vectors-adjacent rows. Exactly one of
-- chunk_id/image_id/extraction_id is non-null.
CREATE TABLE IF NOT EXISTS embeddings (
    id TEXT PRIMARY KEY,
    provenance_id TEXT NOT NULL REFERENCES provenance(id),
    chunk_id TEXT REFERENCES chunks(id) ON DELETE CASCADE,
    image_id TEXT REFERENCES images(id) ON DELETE CASCADE,
    extraction_id TEXT,
    original_text TEXT NOT NULL,
    source_file_path TEXT,
    source_file_name TEXT,
    source_file_hash TEXT,
    page_number INTEGER,
    character_start INTEGER,
    character_end INTEGER,
    chunk_index INTEGER,
    total_chunks INTEGER,
    model_name TEXT NOT NULL,
    model_version TEXT,
    task_type TEXT NOT NULL DEFAULT 'search_document',
    inference_mode TEXT NOT NULL DEFAULT 'local',
    device TEXT,
    content_hash TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_embeddings_chunk ON embeddings(chunk_id);
CREATE INDEX IF NOT EXISTS idx_embeddings_image ON embeddings(image_id);
CREATE INDEX IF NOT EXISTS idx_embeddings_provenance ON embeddings(provenance_id);

-- Fixed-dimension vector store, keyed by embedding id.
CREATE VIRTUAL TABLE IF NOT EXISTS vec_embeddings USING vec0(
    embedding_id TEXT PRIMARY KEY,
    embedding float[%[1]d]
);

-- Extractions: schema-driven structured pulls over a document's OCR text.
CREATE TABLE IF NOT EXISTS extractions (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    provenance_id TEXT NOT NULL REFERENCES provenance(id),
    schema_json TEXT NOT NULL,
    extraction_json TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_extractions_document ON extractions(document_id);
CREATE INDEX IF NOT EXISTS idx_extractions_provenance ON extractions(provenance_id);

-- Form fills: self-rooted records over an external file (see DESIGN.md open
-- question #3 — intentional, not a modeling mistake).
CREATE TABLE IF NOT EXISTS form_fills (
    id TEXT PRIMARY KEY,
    provenance_id TEXT NOT NULL REFERENCES provenance(id),
    source_file_path TEXT NOT NULL,
    source_file_hash TEXT NOT NULL,
    field_data_json TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    fields_filled JSON NOT NULL DEFAULT '[]',
    fields_not_found JSON NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_form_fills_provenance ON form_fills(provenance_id);

-- Comparisons: pairwise document diffs.
CREATE TABLE IF NOT EXISTS comparisons (
    id TEXT PRIMARY KEY,
    provenance_id TEXT NOT NULL REFERENCES provenance(id),
    document_id_1 TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    document_id_2 TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    similarity_ratio REAL,
    text_diff_json TEXT NOT NULL,
    structural_diff_json TEXT NOT NULL,
    summary TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_comparisons_doc1 ON comparisons(document_id_1);
CREATE INDEX IF NOT EXISTS idx_comparisons_doc2 ON comparisons(document_id_2);

-- Clusterings: one row per cluster produced by a clustering run.
CREATE TABLE IF NOT EXISTS clusterings (
    id TEXT PRIMARY KEY,
    provenance_id TEXT NOT NULL REFERENCES provenance(id),
    run_id TEXT NOT NULL,
    cluster_index INTEGER NOT NULL,
    centroid_json TEXT NOT NULL,
    top_terms JSON,
    coherence_score REAL,
    algorithm TEXT NOT NULL,
    params JSON NOT NULL DEFAULT '{}',
    silhouette REAL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_clusterings_run ON clusterings(run_id);

-- Document membership within a cluster.
CREATE TABLE IF NOT EXISTS document_clusters (
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    clustering_id TEXT NOT NULL REFERENCES clusterings(id) ON DELETE CASCADE,
    distance_to_centroid REAL,
    PRIMARY KEY (document_id, clustering_id)
);

-- Full-text indexes.
CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
    text,
    content='chunks',
    content_rowid='rowid',
    tokenize='porter unicode61'
);
CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
    INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
END;
CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
END;
CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
    INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
END;

CREATE VIRTUAL TABLE IF NOT EXISTS embeddings_fts USING fts5(
    original_text,
    content='embeddings',
    content_rowid='rowid',
    tokenize='porter unicode61'
);
CREATE TRIGGER IF NOT EXISTS embeddings_ai AFTER INSERT ON embeddings
WHEN new.image_id IS NOT NULL BEGIN
    INSERT INTO embeddings_fts(rowid, original_text) VALUES (new.rowid, new.original_text);
END;
CREATE TRIGGER IF NOT EXISTS embeddings_ad AFTER DELETE ON embeddings
WHEN old.image_id IS NOT NULL BEGIN
    INSERT INTO embeddings_fts(embeddings_fts, rowid, original_text) VALUES ('delete', old.rowid, old.original_text);
END;
CREATE TRIGGER IF NOT EXISTS embeddings_au AFTER UPDATE ON embeddings
WHEN new.image_id IS NOT NULL OR old.image_id IS NOT NULL BEGIN
    INSERT INTO embeddings_fts(embeddings_fts, rowid, original_text) VALUES ('delete', old.rowid, old.original_text);
    INSERT INTO embeddings_fts(rowid, original_text) VALUES (new.rowid, new.original_text);
END;

CREATE VIRTUAL TABLE IF NOT EXISTS extractions_fts USING fts5(
    extraction_json,
    content='extractions',
    content_rowid='rowid',
    tokenize='porter unicode61'
);
CREATE TRIGGER IF NOT EXISTS extractions_ai AFTER INSERT ON extractions BEGIN
    INSERT INTO extractions_fts(rowid, extraction_json) VALUES (new.rowid, new.extraction_json);
END;
CREATE TRIGGER IF NOT EXISTS extractions_ad AFTER DELETE ON extractions BEGIN
    INSERT INTO extractions_fts(extractions_fts, rowid, extraction_json) VALUES ('delete', old.rowid, old.extraction_json);
END;
CREATE TRIGGER IF NOT EXISTS extractions_au AFTER UPDATE ON extractions BEGIN
    INSERT INTO extractions_fts(extractions_fts, rowid, extraction_json) VALUES ('delete', old.rowid, old.extraction_json);
    INSERT INTO extractions_fts(rowid, extraction_json) VALUES (new.rowid, new.extraction_json);
END;

-- One row per FTS index, tracking when each was last rebuilt from scratch.
CREATE TABLE IF NOT EXISTS fts_index_meta (
    name TEXT PRIMARY KEY,
    base_table TEXT NOT NULL,
    rebuilt_at DATETIME
);

-- Ancillary entities, outside the provenance graph.
CREATE TABLE IF NOT EXISTS saved_searches (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    query_json TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS tags (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS entity_tags (
    tag_id TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
    entity_id TEXT NOT NULL,
    entity_kind TEXT NOT NULL,
    PRIMARY KEY (tag_id, entity_id, entity_kind)
);

CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    display_name TEXT NOT NULL,
    email TEXT UNIQUE,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS audit_log (
    id TEXT PRIMARY KEY,
    user_id TEXT REFERENCES users(id),
    action TEXT NOT NULL,
    entity_kind TEXT,
    entity_id TEXT,
    details JSON,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_audit_log_entity ON audit_log(entity_kind, entity_id);

CREATE TABLE IF NOT EXISTS annotations (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    user_id TEXT REFERENCES users(id),
    body TEXT NOT NULL,
    anchor_json JSON,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_annotations_document ON annotations(document_id);

CREATE TABLE IF NOT EXISTS document_locks (
    document_id TEXT PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
    locked_by TEXT REFERENCES users(id),
    locked_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    reason TEXT
);

CREATE TABLE IF NOT EXISTS workflow_states (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    state TEXT NOT NULL,
    entered_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_workflow_states_document ON workflow_states(document_id);

CREATE TABLE IF NOT EXISTS approval_chains (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_approval_chains_document ON approval_chains(document_id);

CREATE TABLE IF NOT EXISTS approval_steps (
    id TEXT PRIMARY KEY,
    approval_chain_id TEXT NOT NULL REFERENCES approval_chains(id) ON DELETE CASCADE,
    step_index INTEGER NOT NULL,
    approver_id TEXT REFERENCES users(id),
    status TEXT NOT NULL DEFAULT 'pending',
    decided_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_approval_steps_chain ON approval_steps(approval_chain_id, step_index);

CREATE TABLE IF NOT EXISTS obligations (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    description TEXT NOT NULL,
    due_at DATETIME,
    status TEXT NOT NULL DEFAULT 'open',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_obligations_document ON obligations(document_id);

CREATE TABLE IF NOT EXISTS playbooks (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    definition_json TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS webhooks (
    id TEXT PRIMARY KEY,
    url TEXT NOT NULL,
    event_filter JSON NOT NULL DEFAULT '[]',
    secret TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`, embeddingDim)
}
