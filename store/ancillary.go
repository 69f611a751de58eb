package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Ancillary entity CRUD: saved searches, tags, users, audit log,
// annotations, document locks, workflow/approval state, obligations,
// playbooks, webhooks. These tables sit outside the provenance graph —
// they describe governance and collaboration state layered on top of
// documents, not derivation lineage, so none of them carry a provenance_id.

// InsertSavedSearch persists a named, reusable query.
func (s *Store) InsertSavedSearch(ctx context.Context, name, queryJSON string) (string, error) {
	id := uuid.NewString()
	_, err := s.conn(ctx).ExecContext(ctx,
		"INSERT INTO saved_searches (id, name, query_json) VALUES (?, ?, ?)", id, name, queryJSON)
	if err != nil {
		return "", fmt.Errorf("inserting saved search: %w", err)
	}
	return id, nil
}

// ListSavedSearches returns every saved search, newest first.
func (s *Store) ListSavedSearches(ctx context.Context) ([]SavedSearch, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		"SELECT id, name, query_json, created_at FROM saved_searches ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SavedSearch
	for rows.Next() {
		var ss SavedSearch
		if err := rows.Scan(&ss.ID, &ss.Name, &ss.QueryJSON, &ss.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}

// DeleteSavedSearch removes a saved search by id.
func (s *Store) DeleteSavedSearch(ctx context.Context, id string) error {
	_, err := s.conn(ctx).ExecContext(ctx, "DELETE FROM saved_searches WHERE id = ?", id)
	return err
}

// GetOrCreateTag returns the id of a tag by name, creating it if absent.
func (s *Store) GetOrCreateTag(ctx context.Context, name string) (string, error) {
	row := s.conn(ctx).QueryRowContext(ctx, "SELECT id FROM tags WHERE name = ?", name)
	var id string
	err := row.Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}
	id = uuid.NewString()
	if _, err := s.conn(ctx).ExecContext(ctx, "INSERT INTO tags (id, name) VALUES (?, ?)", id, name); err != nil {
		return "", fmt.Errorf("inserting tag: %w", err)
	}
	return id, nil
}

// TagEntity attaches a tag to an entity (a document, chunk, image, or any
// other kind identified by entityKind).
func (s *Store) TagEntity(ctx context.Context, tagID, entityID, entityKind string) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		"INSERT OR IGNORE INTO entity_tags (tag_id, entity_id, entity_kind) VALUES (?, ?, ?)",
		tagID, entityID, entityKind)
	return err
}

// UntagEntity removes a tag from an entity.
func (s *Store) UntagEntity(ctx context.Context, tagID, entityID, entityKind string) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		"DELETE FROM entity_tags WHERE tag_id = ? AND entity_id = ? AND entity_kind = ?",
		tagID, entityID, entityKind)
	return err
}

// ListTagsForEntity returns the tags attached to an entity.
func (s *Store) ListTagsForEntity(ctx context.Context, entityID, entityKind string) ([]Tag, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT t.id, t.name FROM tags t
		JOIN entity_tags et ON et.tag_id = t.id
		WHERE et.entity_id = ? AND et.entity_kind = ?
		ORDER BY t.name
	`, entityID, entityKind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertUser creates a new user record.
func (s *Store) InsertUser(ctx context.Context, displayName string, email *string) (string, error) {
	id := uuid.NewString()
	_, err := s.conn(ctx).ExecContext(ctx,
		"INSERT INTO users (id, display_name, email) VALUES (?, ?, ?)", id, displayName, email)
	if err != nil {
		return "", fmt.Errorf("inserting user: %w", err)
	}
	return id, nil
}

// GetUser retrieves a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.conn(ctx).QueryRowContext(ctx, "SELECT id, display_name, email, created_at FROM users WHERE id = ?", id)
	var u User
	var email sql.NullString
	if err := row.Scan(&u.ID, &u.DisplayName, &email, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if email.Valid {
		u.Email = &email.String
	}
	return &u, nil
}

// RecordAuditEvent appends an entry to the audit log. details, if non-nil,
// must be valid JSON.
func (s *Store) RecordAuditEvent(ctx context.Context, userID *string, action string, entityKind, entityID, details *string) (string, error) {
	id := uuid.NewString()
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO audit_log (id, user_id, action, entity_kind, entity_id, details)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, userID, action, entityKind, entityID, details)
	if err != nil {
		return "", fmt.Errorf("inserting audit log entry: %w", err)
	}
	return id, nil
}

// ListAuditEventsForEntity returns the audit trail for a single entity,
// most recent first.
func (s *Store) ListAuditEventsForEntity(ctx context.Context, entityKind, entityID string) ([]AuditLogEntry, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, user_id, action, entity_kind, entity_id, details, created_at
		FROM audit_log WHERE entity_kind = ? AND entity_id = ?
		ORDER BY created_at DESC
	`, entityKind, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditLogEntry
	for rows.Next() {
		e, err := scanAuditLogEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanAuditLogEntry(row interface{ Scan(...any) error }) (*AuditLogEntry, error) {
	var e AuditLogEntry
	var userID, entityKind, entityID, details sql.NullString
	if err := row.Scan(&e.ID, &userID, &e.Action, &entityKind, &entityID, &details, &e.CreatedAt); err != nil {
		return nil, err
	}
	if userID.Valid {
		e.UserID = &userID.String
	}
	if entityKind.Valid {
		e.EntityKind = &entityKind.String
	}
	if entityID.Valid {
		e.EntityID = &entityID.String
	}
	if details.Valid {
		e.Details = &details.String
	}
	return &e, nil
}

// InsertAnnotation attaches a note to a document, optionally anchored to a
// location within it (anchorJSON).
func (s *Store) InsertAnnotation(ctx context.Context, documentID string, userID *string, body string, anchorJSON *string) (string, error) {
	id := uuid.NewString()
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO annotations (id, document_id, user_id, body, anchor_json)
		VALUES (?, ?, ?, ?, ?)
	`, id, documentID, userID, body, anchorJSON)
	if err != nil {
		return "", fmt.Errorf("inserting annotation: %w", err)
	}
	return id, nil
}

// ListAnnotationsForDocument returns a document's annotations, oldest first.
func (s *Store) ListAnnotationsForDocument(ctx context.Context, documentID string) ([]Annotation, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, document_id, user_id, body, anchor_json, created_at
		FROM annotations WHERE document_id = ? ORDER BY created_at
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Annotation
	for rows.Next() {
		var a Annotation
		var userID, anchor sql.NullString
		if err := rows.Scan(&a.ID, &a.DocumentID, &userID, &a.Body, &anchor, &a.CreatedAt); err != nil {
			return nil, err
		}
		if userID.Valid {
			a.UserID = &userID.String
		}
		if anchor.Valid {
			a.AnchorJSON = &anchor.String
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AcquireDocumentLock locks a document for exclusive editing. Returns false
// without error if the document is already locked by someone else.
func (s *Store) AcquireDocumentLock(ctx context.Context, documentID string, lockedBy *string, reason *string) (bool, error) {
	res, err := s.conn(ctx).ExecContext(ctx,
		"INSERT OR IGNORE INTO document_locks (document_id, locked_by, reason) VALUES (?, ?, ?)",
		documentID, lockedBy, reason)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseDocumentLock removes a document's lock.
func (s *Store) ReleaseDocumentLock(ctx context.Context, documentID string) error {
	_, err := s.conn(ctx).ExecContext(ctx, "DELETE FROM document_locks WHERE document_id = ?", documentID)
	return err
}

// GetDocumentLock retrieves the current lock on a document, if any.
func (s *Store) GetDocumentLock(ctx context.Context, documentID string) (*DocumentLock, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		"SELECT document_id, locked_by, locked_at, reason FROM document_locks WHERE document_id = ?", documentID)
	var l DocumentLock
	var lockedBy, reason sql.NullString
	if err := row.Scan(&l.DocumentID, &lockedBy, &l.LockedAt, &reason); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if lockedBy.Valid {
		l.LockedBy = &lockedBy.String
	}
	if reason.Valid {
		l.Reason = &reason.String
	}
	return &l, nil
}

// RecordWorkflowState appends a new workflow-state transition for a
// document. History is append-only; the latest row is the current state.
func (s *Store) RecordWorkflowState(ctx context.Context, documentID, state string) (string, error) {
	id := uuid.NewString()
	_, err := s.conn(ctx).ExecContext(ctx,
		"INSERT INTO workflow_states (id, document_id, state) VALUES (?, ?, ?)", id, documentID, state)
	if err != nil {
		return "", fmt.Errorf("inserting workflow state: %w", err)
	}
	return id, nil
}

// CurrentWorkflowState returns a document's most recent workflow state.
func (s *Store) CurrentWorkflowState(ctx context.Context, documentID string) (*WorkflowState, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT id, document_id, state, entered_at FROM workflow_states
		WHERE document_id = ? ORDER BY entered_at DESC LIMIT 1
	`, documentID)
	var w WorkflowState
	if err := row.Scan(&w.ID, &w.DocumentID, &w.State, &w.EnteredAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &w, nil
}

// InsertApprovalChain starts a new approval chain for a document.
func (s *Store) InsertApprovalChain(ctx context.Context, documentID, name string) (string, error) {
	id := uuid.NewString()
	_, err := s.conn(ctx).ExecContext(ctx,
		"INSERT INTO approval_chains (id, document_id, name, status) VALUES (?, ?, ?, ?)",
		id, documentID, name, "pending")
	if err != nil {
		return "", fmt.Errorf("inserting approval chain: %w", err)
	}
	return id, nil
}

// AddApprovalStep appends an ordered step to an approval chain.
func (s *Store) AddApprovalStep(ctx context.Context, chainID string, stepIndex int, approverID *string) (string, error) {
	id := uuid.NewString()
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO approval_steps (id, approval_chain_id, step_index, approver_id, status)
		VALUES (?, ?, ?, ?, ?)
	`, id, chainID, stepIndex, approverID, "pending")
	if err != nil {
		return "", fmt.Errorf("inserting approval step: %w", err)
	}
	return id, nil
}

// DecideApprovalStep records an approve/reject decision on a step and, if
// every step in the chain is now decided, updates the chain's own status:
// "rejected" if any step was rejected, else "approved".
func (s *Store) DecideApprovalStep(ctx context.Context, stepID, decision string) error {
	return s.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var chainID string
		if err := tx.QueryRowContext(ctx, "SELECT approval_chain_id FROM approval_steps WHERE id = ?", stepID).Scan(&chainID); err != nil {
			if err == sql.ErrNoRows {
				return ErrNotFound
			}
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE approval_steps SET status = ?, decided_at = CURRENT_TIMESTAMP WHERE id = ?",
			decision, stepID); err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, "SELECT status FROM approval_steps WHERE approval_chain_id = ?", chainID)
		if err != nil {
			return err
		}
		defer rows.Close()
		allDecided, anyRejected := true, false
		for rows.Next() {
			var status string
			if err := rows.Scan(&status); err != nil {
				return err
			}
			if status == "pending" {
				allDecided = false
			}
			if status == "rejected" {
				anyRejected = true
			}
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if !allDecided {
			return nil
		}
		chainStatus := "approved"
		if anyRejected {
			chainStatus = "rejected"
		}
		_, err = tx.ExecContext(ctx, "UPDATE approval_chains SET status = ? WHERE id = ?", chainStatus, chainID)
		return err
	})
}

// InsertObligation records a tracked follow-up duty against a document.
func (s *Store) InsertObligation(ctx context.Context, o Obligation) (string, error) {
	id := o.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO obligations (id, document_id, description, due_at, status)
		VALUES (?, ?, ?, ?, ?)
	`, id, o.DocumentID, o.Description, o.DueAt, orDefault(o.Status, "open"))
	if err != nil {
		return "", fmt.Errorf("inserting obligation: %w", err)
	}
	return id, nil
}

// ListOpenObligations returns every non-complete obligation for a document.
func (s *Store) ListOpenObligations(ctx context.Context, documentID string) ([]Obligation, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, document_id, description, due_at, status, created_at
		FROM obligations WHERE document_id = ? AND status != 'complete'
		ORDER BY due_at
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Obligation
	for rows.Next() {
		var o Obligation
		var dueAt sql.NullTime
		if err := rows.Scan(&o.ID, &o.DocumentID, &o.Description, &dueAt, &o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		if dueAt.Valid {
			o.DueAt = &dueAt.Time
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// InsertPlaybook saves a named, reusable workflow definition.
func (s *Store) InsertPlaybook(ctx context.Context, name, definitionJSON string) (string, error) {
	id := uuid.NewString()
	_, err := s.conn(ctx).ExecContext(ctx,
		"INSERT INTO playbooks (id, name, definition_json) VALUES (?, ?, ?)", id, name, definitionJSON)
	if err != nil {
		return "", fmt.Errorf("inserting playbook: %w", err)
	}
	return id, nil
}

// GetPlaybook retrieves a playbook by id.
func (s *Store) GetPlaybook(ctx context.Context, id string) (*Playbook, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		"SELECT id, name, definition_json, created_at FROM playbooks WHERE id = ?", id)
	var p Playbook
	if err := row.Scan(&p.ID, &p.Name, &p.DefinitionJSON, &p.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// InsertWebhook registers a webhook subscription.
func (s *Store) InsertWebhook(ctx context.Context, url string, eventFilter []string, secret *string) (string, error) {
	id := uuid.NewString()
	filter, err := json.Marshal(defaultSlice(eventFilter))
	if err != nil {
		return "", fmt.Errorf("marshaling event_filter: %w", err)
	}
	_, err = s.conn(ctx).ExecContext(ctx,
		"INSERT INTO webhooks (id, url, event_filter, secret) VALUES (?, ?, ?, ?)", id, url, string(filter), secret)
	if err != nil {
		return "", fmt.Errorf("inserting webhook: %w", err)
	}
	return id, nil
}

// ListWebhooksForEvent returns webhooks whose event_filter is empty
// (subscribed to everything) or contains the given event name.
func (s *Store) ListWebhooksForEvent(ctx context.Context, event string) ([]Webhook, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, "SELECT id, url, event_filter, secret, created_at FROM webhooks")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Webhook
	for rows.Next() {
		var w Webhook
		var filter string
		var secret sql.NullString
		if err := rows.Scan(&w.ID, &w.URL, &filter, &secret, &w.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(filter), &w.EventFilter); err != nil {
			return nil, fmt.Errorf("%w: event_filter on webhook %s: %v", ErrCorruptJSON, w.ID, err)
		}
		if secret.Valid {
			w.Secret = &secret.String
		}
		if len(w.EventFilter) == 0 || containsString(w.EventFilter, event) {
			out = append(out, w)
		}
	}
	return out, rows.Err()
}

func containsString(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}
