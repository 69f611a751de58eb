// Package provenance implements chain construction, traversal, integrity
// verification, and export over the tamper-evident lineage graph. Every
// artifact produced anywhere in the pipeline gets exactly one
// provenance record; this package is the single entry point that fills in
// parent_ids, chain_depth, and chain_path so callers never hand-assemble a
// chain themselves.
package provenance

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/veridoc/veridoc-core/errs"
	"github.com/veridoc/veridoc-core/store"
)

// Chain describes one record's position in the provenance graph, as
// returned by GetChain().
type Chain struct {
	Current           store.Provenance
	AncestorsRootLast []store.Provenance // root first... immediate parent last
	Root              store.Provenance
	Depth             int
	PathKinds         []string
	IsComplete        bool
}

// NewRoot creates a self-rooted provenance record: root_document_id = id,
// parent_id = nil, parent_ids empty. Used for DOCUMENT and FORM_FILL — both
// short-circuit the normal parent-derived path, since a form fill's
// lineage is attributed to the template rather than a derivation chain.
func NewRoot(ctx context.Context, s *store.Store, kind, sourceKind, processor, processorVersion string, contentHash string, opts ...Option) (*store.Provenance, error) {
	if kind != store.KindDocument && kind != store.KindFormFill {
		return nil, errs.NewError(errs.CategoryValidation,
			fmt.Sprintf("NewRoot is only valid for DOCUMENT and FORM_FILL, got %s", kind))
	}
	id := uuid.NewString()
	p := store.Provenance{
		ID:               id,
		Kind:             kind,
		SourceKind:       sourceKind,
		RootDocumentID:   id,
		ChainDepth:       0,
		ChainPath:        []string{kind},
		ContentHash:      contentHash,
		Processor:        processor,
		ProcessorVersion: processorVersion,
	}
	for _, opt := range opts {
		opt(&p)
	}
	if err := s.InsertProvenance(ctx, p); err != nil {
		return nil, fmt.Errorf("provenance.NewRoot: %w", err)
	}
	return &p, nil
}

// Option mutates a provenance record before it is inserted. Used by both
// NewRoot and New to set optional fields without a combinatorial explosion
// of constructor parameters.
type Option func(*store.Provenance)

func WithSourcePath(path string) Option {
	return func(p *store.Provenance) { p.SourcePath = &path }
}

func WithFileHash(hash string) Option {
	return func(p *store.Provenance) { p.FileHash = &hash }
}

func WithInputHash(hash string) Option {
	return func(p *store.Provenance) { p.InputHash = &hash }
}

func WithProcessingParams(params map[string]any) Option {
	return func(p *store.Provenance) { p.ProcessingParams = params }
}

func WithProcessingDuration(ms int64) Option {
	return func(p *store.Provenance) { p.ProcessingDurationMS = &ms }
}

func WithQualityScore(score float64) Option {
	return func(p *store.Provenance) { p.QualityScore = &score }
}

// New creates a non-root provenance record derived from parent. It fills
// parent_id, parent_ids (parent's parent_ids + parent.id), chain_path
// (parent's chain_path + kind), and root_document_id (copied from parent).
// chain_depth is validated against store.ChainDepth and
// store.ExpectedEmbeddingDepth for the EMBEDDING special case; any mismatch
// returns a validation_error.
func New(ctx context.Context, s *store.Store, parent store.Provenance, kind, sourceKind, processor, processorVersion, contentHash string, opts ...Option) (*store.Provenance, error) {
	expectedDepth, ok := expectedDepth(kind, parent.Kind)
	if !ok {
		return nil, errs.NewError(errs.CategoryValidation,
			fmt.Sprintf("no depth rule for kind %s with parent kind %s", kind, parent.Kind))
	}
	gotDepth := parent.ChainDepth + 1
	if gotDepth != expectedDepth {
		return nil, errs.Errorf(errs.CategoryValidation,
			"chain_depth mismatch for %s: parent %s is at depth %d, expected child depth %d, computed %d",
			kind, parent.Kind, parent.ChainDepth, expectedDepth, gotDepth)
	}

	parentIDs := make([]string, len(parent.ParentIDs)+1)
	copy(parentIDs, parent.ParentIDs)
	parentIDs[len(parent.ParentIDs)] = parent.ID

	chainPath := make([]string, len(parent.ChainPath)+1)
	copy(chainPath, parent.ChainPath)
	chainPath[len(parent.ChainPath)] = kind

	id := uuid.NewString()
	parentID := parent.ID
	p := store.Provenance{
		ID:               id,
		Kind:             kind,
		SourceKind:       sourceKind,
		ParentID:         &parentID,
		ParentIDs:        parentIDs,
		RootDocumentID:   parent.RootDocumentID,
		ChainDepth:       gotDepth,
		ChainPath:        chainPath,
		ContentHash:      contentHash,
		Processor:        processor,
		ProcessorVersion: processorVersion,
	}
	for _, opt := range opts {
		opt(&p)
	}
	if err := s.InsertProvenance(ctx, p); err != nil {
		return nil, fmt.Errorf("provenance.New: %w", err)
	}
	return &p, nil
}

// expectedDepth resolves the required child depth for kind given its
// parent's kind, handling EMBEDDING's two valid depths.
func expectedDepth(kind, parentKind string) (int, bool) {
	if kind == store.KindEmbedding {
		return store.ExpectedEmbeddingDepth(parentKind)
	}
	d, ok := store.ChainDepth[kind]
	return d, ok
}

// GetChain walks parent_id from id back to the root, returning the
// assembled Chain. A repeat visit during the walk is a cycle and returns a
// provenance_chain_broken error.
func GetChain(ctx context.Context, s *store.Store, id string) (*Chain, error) {
	current, err := s.GetProvenance(ctx, id)
	if err != nil {
		return nil, notFoundOrWrap(err, id)
	}

	visited := map[string]bool{current.ID: true}
	var ancestorsRootFirst []store.Provenance
	cursor := current
	for cursor.ParentID != nil {
		parent, err := s.GetProvenance(ctx, *cursor.ParentID)
		if err != nil {
			if err == store.ErrNotFound {
				return nil, errs.Errorf(errs.CategoryProvenanceChainBroken,
					"parent %s of %s does not exist", *cursor.ParentID, cursor.ID)
			}
			return nil, err
		}
		if visited[parent.ID] {
			return nil, errs.Errorf(errs.CategoryProvenanceChainBroken,
				"cycle detected: %s revisited while walking chain from %s", parent.ID, id)
		}
		visited[parent.ID] = true
		ancestorsRootFirst = append([]store.Provenance{*parent}, ancestorsRootFirst...)
		cursor = parent
	}

	root := *current
	if len(ancestorsRootFirst) > 0 {
		root = ancestorsRootFirst[0]
	}

	chainLen := len(ancestorsRootFirst) + 1
	isComplete := chainLen == current.ChainDepth+1

	return &Chain{
		Current:           *current,
		AncestorsRootLast: ancestorsRootFirst,
		Root:              root,
		Depth:             current.ChainDepth,
		PathKinds:         current.ChainPath,
		IsComplete:        isComplete,
	}, nil
}

// Children returns direct descendants of id by parent_id.
func Children(ctx context.Context, s *store.Store, id string) ([]store.Provenance, error) {
	return s.ListProvenanceChildren(ctx, id)
}

// ByRoot returns all records sharing rootDocumentID, ordered by chain_depth
// ascending then created_at.
func ByRoot(ctx context.Context, s *store.Store, rootDocumentID string) ([]store.Provenance, error) {
	return s.ListProvenanceByRoot(ctx, rootDocumentID)
}

func notFoundOrWrap(err error, id string) error {
	if err == store.ErrNotFound {
		return errs.Errorf(errs.CategoryProvenanceNotFound, "provenance %s not found", id)
	}
	return err
}
