package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// InsertClustering inserts one cluster row produced by a clustering run.
// Clusters share a RunID; callers insert one row per cluster in the run.
func (s *Store) InsertClustering(ctx context.Context, c Clustering) (string, error) {
	id := c.ID
	if id == "" {
		id = uuid.NewString()
	}
	topTerms, err := json.Marshal(defaultSlice(c.TopTerms))
	if err != nil {
		return "", fmt.Errorf("marshaling top_terms: %w", err)
	}
	params := c.Params
	if params == "" {
		params = "{}"
	}
	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO clusterings (id, provenance_id, run_id, cluster_index, centroid_json,
			top_terms, coherence_score, algorithm, params, silhouette)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, c.ProvenanceID, c.RunID, c.ClusterIndex, c.CentroidJSON,
		string(topTerms), c.CoherenceScore, c.Algorithm, params, c.Silhouette)
	if err != nil {
		return "", fmt.Errorf("inserting clustering: %w", err)
	}
	return id, nil
}

const clusteringColumns = `id, provenance_id, run_id, cluster_index, centroid_json,
	top_terms, coherence_score, algorithm, params, silhouette, created_at`

func scanClustering(row interface{ Scan(...any) error }) (*Clustering, error) {
	var c Clustering
	var topTerms sql.NullString
	var coherence, silhouette sql.NullFloat64
	if err := row.Scan(&c.ID, &c.ProvenanceID, &c.RunID, &c.ClusterIndex, &c.CentroidJSON,
		&topTerms, &coherence, &c.Algorithm, &c.Params, &silhouette, &c.CreatedAt); err != nil {
		return nil, err
	}
	if topTerms.Valid && topTerms.String != "" {
		if err := json.Unmarshal([]byte(topTerms.String), &c.TopTerms); err != nil {
			return nil, fmt.Errorf("%w: top_terms on clustering %s: %v", ErrCorruptJSON, c.ID, err)
		}
	}
	if coherence.Valid {
		c.CoherenceScore = &coherence.Float64
	}
	if silhouette.Valid {
		c.Silhouette = &silhouette.Float64
	}
	return &c, nil
}

// GetClustering retrieves a single cluster row by id.
func (s *Store) GetClustering(ctx context.Context, id string) (*Clustering, error) {
	row := s.conn(ctx).QueryRowContext(ctx, "SELECT "+clusteringColumns+" FROM clusterings WHERE id = ?", id)
	c, err := scanClustering(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

// ListClusteringsByRun returns every cluster produced by a run, ordered by
// cluster_index.
func (s *Store) ListClusteringsByRun(ctx context.Context, runID string) ([]Clustering, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		"SELECT "+clusteringColumns+" FROM clusterings WHERE run_id = ? ORDER BY cluster_index", runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clusterings []Clustering
	for rows.Next() {
		c, err := scanClustering(rows)
		if err != nil {
			return nil, err
		}
		clusterings = append(clusterings, *c)
	}
	return clusterings, rows.Err()
}

// AddDocumentToCluster records a document's membership in a cluster, with
// its distance to the cluster centroid.
func (s *Store) AddDocumentToCluster(ctx context.Context, documentID, clusteringID string, distanceToCentroid *float64) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO document_clusters (document_id, clustering_id, distance_to_centroid)
		VALUES (?, ?, ?)
	`, documentID, clusteringID, distanceToCentroid)
	return err
}

// DocumentCluster is a row in document_clusters.
type DocumentCluster struct {
	DocumentID         string
	ClusteringID       string
	DistanceToCentroid *float64
}

// ListDocumentsInCluster returns every document assigned to a cluster,
// ordered by ascending distance to centroid (nearest first).
func (s *Store) ListDocumentsInCluster(ctx context.Context, clusteringID string) ([]DocumentCluster, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT document_id, clustering_id, distance_to_centroid
		FROM document_clusters WHERE clustering_id = ?
		ORDER BY distance_to_centroid ASC
	`, clusteringID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []DocumentCluster
	for rows.Next() {
		var m DocumentCluster
		var dist sql.NullFloat64
		if err := rows.Scan(&m.DocumentID, &m.ClusteringID, &dist); err != nil {
			return nil, err
		}
		if dist.Valid {
			m.DistanceToCentroid = &dist.Float64
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListClustersForDocument returns every cluster a document belongs to,
// across all clustering runs.
func (s *Store) ListClustersForDocument(ctx context.Context, documentID string) ([]DocumentCluster, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT document_id, clustering_id, distance_to_centroid
		FROM document_clusters WHERE document_id = ?
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []DocumentCluster
	for rows.Next() {
		var m DocumentCluster
		var dist sql.NullFloat64
		if err := rows.Scan(&m.DocumentID, &m.ClusteringID, &dist); err != nil {
			return nil, err
		}
		if dist.Valid {
			m.DistanceToCentroid = &dist.Float64
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
