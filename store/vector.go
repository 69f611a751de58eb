package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ScoredEmbedding is one result of a k-nearest-neighbor vector search.
type ScoredEmbedding struct {
	EmbeddingID string
	Distance    float64
}

// StoreVector inserts the vector for an embedding id; it does not overwrite
// a vector already stored under that id. Returns
// ErrWrongDimension if vec does not match the store's configured
// embedding dimension.
func (s *Store) StoreVector(ctx context.Context, embeddingID string, vec []float32) error {
	if len(vec) != s.embeddingDim {
		return fmt.Errorf("%w: got %d, want %d", ErrWrongDimension, len(vec), s.embeddingDim)
	}
	_, err := s.conn(ctx).ExecContext(ctx,
		"INSERT INTO vec_embeddings (embedding_id, embedding) VALUES (?, ?)",
		embeddingID, serializeFloat32(vec))
	if err != nil {
		return fmt.Errorf("storing vector %s: %w", embeddingID, err)
	}
	return nil
}

// VectorBatch is one (embedding id, vector) pair for BatchStoreVectors.
type VectorBatch struct {
	EmbeddingID string
	Vector      []float32
}

// BatchStoreVectors writes a batch of vectors in a single transaction. All
// vectors must match the store's embedding dimension; the whole batch is
// rejected (no partial write) if any does not.
func (s *Store) BatchStoreVectors(ctx context.Context, batch []VectorBatch) error {
	for _, b := range batch {
		if len(b.Vector) != s.embeddingDim {
			return fmt.Errorf("%w: embedding %s has %d dims, want %d", ErrWrongDimension, b.EmbeddingID, len(b.Vector), s.embeddingDim)
		}
	}
	return s.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, "INSERT INTO vec_embeddings (embedding_id, embedding) VALUES (?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, b := range batch {
			if _, err := stmt.ExecContext(ctx, b.EmbeddingID, serializeFloat32(b.Vector)); err != nil {
				return fmt.Errorf("storing vector %s: %w", b.EmbeddingID, err)
			}
		}
		return nil
	})
}

// DeleteVector removes a vector by embedding id. Not an error if absent.
func (s *Store) DeleteVector(ctx context.Context, embeddingID string) error {
	_, err := s.conn(ctx).ExecContext(ctx, "DELETE FROM vec_embeddings WHERE embedding_id = ?", embeddingID)
	return err
}

// GetVector returns the raw vector stored for an embedding id, used by the
// VLM dedup path to clone a previously computed vector onto a new embedding
// row without re-invoking the embedding worker. Returns ErrNotFound if no
// vector is indexed for that id.
func (s *Store) GetVector(ctx context.Context, embeddingID string) ([]float32, error) {
	var raw []byte
	err := s.conn(ctx).QueryRowContext(ctx,
		"SELECT embedding FROM vec_embeddings WHERE embedding_id = ?", embeddingID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading vector %s: %w", embeddingID, err)
	}
	return deserializeFloat32(raw), nil
}

// KNN returns the k nearest embeddings to queryVec by L2 distance, ascending
// (nearest first). If filterIDs is non-empty, results are restricted to
// that set of embedding ids — used to combine vector search with
// metadata/cluster filters without a second round trip.
func (s *Store) KNN(ctx context.Context, queryVec []float32, k int, filterIDs []string) ([]ScoredEmbedding, error) {
	if len(queryVec) != s.embeddingDim {
		return nil, fmt.Errorf("%w: query has %d dims, want %d", ErrWrongDimension, len(queryVec), s.embeddingDim)
	}
	if k <= 0 {
		return nil, nil
	}

	// sqlite-vec applies non-KNN WHERE clauses as a post-filter over the
	// candidate set, so over-fetch when a filter is present to keep the
	// post-filtered result count close to k.
	fetchK := k
	if len(filterIDs) > 0 {
		fetchK = k * 8
		if fetchK < 64 {
			fetchK = 64
		}
	}

	query := "SELECT embedding_id, distance FROM vec_embeddings WHERE embedding MATCH ? AND k = ?"
	args := []any{serializeFloat32(queryVec), fetchK}
	if len(filterIDs) > 0 {
		query += " AND embedding_id IN (" + placeholders(len(filterIDs)) + ")"
		for _, id := range filterIDs {
			args = append(args, id)
		}
	}
	query += " ORDER BY distance"

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("running knn query: %w", err)
	}
	defer rows.Close()

	var out []ScoredEmbedding
	for rows.Next() {
		var r ScoredEmbedding
		if err := rows.Scan(&r.EmbeddingID, &r.Distance); err != nil {
			return nil, err
		}
		out = append(out, r)
		if len(out) == k {
			break
		}
	}
	return out, rows.Err()
}

// VectorCount returns the number of vectors currently indexed.
func (s *Store) VectorCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.conn(ctx).QueryRowContext(ctx, "SELECT COUNT(*) FROM vec_embeddings").Scan(&n)
	return n, err
}
