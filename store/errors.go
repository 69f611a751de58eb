package store

import "errors"

// Errors returned by the store layer. The engine-level package (veridoc)
// wraps these into its category+recovery-hint taxonomy at the boundary;
// the store itself stays in plain Go sentinel-error territory.
var (
	// ErrNotFound is returned by any get-by-id/alternate-key lookup that
	// finds no row.
	ErrNotFound = errors.New("store: record not found")

	// ErrCorruptJSON is returned when an embedded JSON column (parent_ids,
	// chain_path, processing_params, content_types,...) fails to parse at
	// the row-scan boundary. It must never surface as a silent default.
	ErrCorruptJSON = errors.New("store: corrupt JSON column")

	// ErrWrongDimension is returned by the vector index when a stored or
	// queried vector's length does not equal the configured embedding
	// dimension.
	ErrWrongDimension = errors.New("store: vector dimension mismatch")

	// ErrInvalidEmbeddingParent is returned when an embedding references
	// zero or more than one of chunk_id/image_id/extraction_id.
	ErrInvalidEmbeddingParent = errors.New("store: embedding must reference exactly one parent")
)
