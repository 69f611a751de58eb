//go:build cgo

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// childProvenance inserts a provenance record one level below parent,
// deriving chain_depth from the parent rather than hardcoding it, so chains
// deeper than two levels order correctly.
func childProvenance(t *testing.T, s *Store, parent Provenance, kind, id string) Provenance {
	t.Helper()
	p := Provenance{
		ID:             id,
		Kind:           kind,
		SourceKind:     SourceKindChunking,
		ParentID:       &parent.ID,
		ParentIDs:      append(append([]string{}, parent.ParentIDs...), parent.ID),
		RootDocumentID: parent.RootDocumentID,
		ChainDepth:     parent.ChainDepth + 1,
		ChainPath:      append(append([]string{}, parent.ChainPath...), kind),
		ContentHash:    "sha256:" + id,
		Processor:      "chunker",
	}
	require.NoError(t, s.InsertProvenance(context.Background(), p))
	return p
}

func TestListProvenanceChildren_ReturnsOnlyDirectChildren(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	root := sampleDocProvenance(t, s, "parent")

	child1 := childProvenance(t, s, root, KindChunk, "prov-child-1")
	child2 := childProvenance(t, s, root, KindChunk, "prov-child-2")
	// A grandchild, one level further down, must not show up as a child of root.
	_ = childProvenance(t, s, child1, KindEmbedding, "prov-grandchild")

	children, err := s.ListProvenanceChildren(ctx, root.ID)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, c := range children {
		ids[c.ID] = true
	}
	assert.Len(t, children, 2)
	assert.True(t, ids[child1.ID])
	assert.True(t, ids[child2.ID])
}

func TestListProvenanceByRoot_ReturnsWholeTree(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	root := sampleDocProvenance(t, s, "root")
	child := childProvenance(t, s, root, KindChunk, "prov-c")
	grandchild := childProvenance(t, s, child, KindEmbedding, "prov-gc")

	all, err := s.ListProvenanceByRoot(ctx, root.RootDocumentID)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, p := range all {
		ids[p.ID] = true
	}
	assert.Len(t, all, 3)
	assert.True(t, ids[root.ID])
	assert.True(t, ids[child.ID])
	assert.True(t, ids[grandchild.ID])
}

func TestListProvenanceByKindOrderedByDepth_OrdersShallowestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	root := sampleDocProvenance(t, s, "ord")
	child := childProvenance(t, s, root, KindChunk, "prov-ord-child")
	grandchild := childProvenance(t, s, child, KindEmbedding, "prov-ord-grandchild")

	all, err := s.ListProvenanceByKindOrderedByDepth(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	depthByID := map[string]int{}
	for _, p := range all {
		depthByID[p.ID] = p.ChainDepth
	}
	assert.Equal(t, 0, depthByID[root.ID])
	assert.Equal(t, 1, depthByID[child.ID])
	assert.Equal(t, 2, depthByID[grandchild.ID])

	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(t, all[i-1].ChainDepth, all[i].ChainDepth)
	}
}

func TestCountProvenance_CountsAllInsertedRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sampleDocProvenance(t, s, "count-a")
	sampleDocProvenance(t, s, "count-b")

	n, err := s.CountProvenance(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
