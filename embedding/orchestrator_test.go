//go:build cgo

package embedding

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/veridoc-core/chunker"
	"github.com/veridoc/veridoc-core/store"
)

func newTestStore(t *testing.T, dim int) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"), dim)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestChunkEmbedInput_SectionPath(t *testing.T) {
	path := "1.2 Terms"
	c := store.Chunk{SectionPath: &path, Text: "the parties agree"}
	assert.Equal(t, "[Section: 1.2 Terms] the parties agree", chunkEmbedInput(c))
}

func TestChunkEmbedInput_HeadingFallback(t *testing.T) {
	heading := "Definitions"
	c := store.Chunk{Heading: &heading, Text: "as used herein"}
	assert.Equal(t, "[Heading: Definitions] as used herein", chunkEmbedInput(c))
}

func TestChunkEmbedInput_TableAndCodeTags(t *testing.T) {
	c := store.Chunk{Text: "1,2,3", ContentTypes: []string{chunker.BlockTable}}
	assert.Equal(t, "[Table] 1,2,3", chunkEmbedInput(c))

	c2 := store.Chunk{Text: "func main() {}", ContentTypes: []string{chunker.BlockCode}}
	assert.Equal(t, "[Code] func main() {}", chunkEmbedInput(c2))
}

func TestChunkEmbedInput_NoPrefix(t *testing.T) {
	c := store.Chunk{Text: "plain text"}
	assert.Equal(t, "plain text", chunkEmbedInput(c))
}

// fakeWorkerEchoingCount writes a shell script that returns one all-equal
// vector per input line read from stdin, so sub-batch counts are verifiable
// without a real model.
func fakeWorkerEchoingCount(t *testing.T) *Worker {
	t.Helper()
	script := `input=$(cat)
count=$(printf '%s' "$input" | grep -o '","' | wc -l)
count=$((count + 1))
vecs=""
i=0
while [ $i -lt $count ]; do
  v="[0.02"
  j=1
  while [ $j -lt 768 ]; do v="$v,0.02"; j=$((j+1)); done
  v="$v]"
  if [ -z "$vecs" ]; then vecs="$v"; else vecs="$vecs,$v"; fi
  i=$((i+1))
done
echo "{\"success\":true,\"embeddings\":[$vecs],\"count\":$count}"
`
	return NewWorker(WorkerConfig{Command: writeFakeWorker(t, script), BatchSize: 32})
}

func TestEmbedAllBatched_SubBatchesOver100(t *testing.T) {
	w := fakeWorkerEchoingCount(t)
	o := NewOrchestrator(w, nil, "m", "v1", "cpu")

	texts := make([]string, 150)
	for i := range texts {
		texts[i] = fmt.Sprintf("text %d", i)
	}

	vecs, err := o.embedAllBatched(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 150)
	for _, v := range vecs {
		assert.Len(t, v, 768)
	}
}

func TestEmbedAllBatched_SingleBatchUnder100(t *testing.T) {
	w := fakeWorkerEchoingCount(t)
	o := NewOrchestrator(w, nil, "m", "v1", "cpu")

	vecs, err := o.embedAllBatched(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
}

func TestEmbedAllBatched_EmptyNeverInvokesWorker(t *testing.T) {
	o := NewOrchestrator(NewWorker(WorkerConfig{Command: "/nonexistent/should-not-run"}), nil, "m", "v1", "cpu")
	vecs, err := o.embedAllBatched(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestEmbedQuery_RejectsEmpty(t *testing.T) {
	o := NewOrchestrator(NewWorker(WorkerConfig{Command: "/nonexistent/should-not-run"}), nil, "m", "v1", "cpu")
	_, err := o.EmbedQuery(context.Background(), "   ")
	require.Error(t, err)
}

// fakeWorkerFixedVector returns one fixed 768-dim vector per input, for
// EmbedDocumentChunks persistence tests where vector values don't matter.
func fakeWorkerFixedVector(t *testing.T) *Worker {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < 768; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("0.03")
	}
	sb.WriteString("]")
	vec := sb.String()
	script := `input=$(cat)
count=$(printf '%s' "$input" | grep -o '","' | wc -l)
count=$((count + 1))
vecs=""
i=0
while [ $i -lt $count ]; do
  if [ -z "$vecs" ]; then vecs="` + vec + `"; else vecs="$vecs,` + vec + `"; fi
  i=$((i+1))
done
echo "{\"success\":true,\"embeddings\":[$vecs],\"count\":$count}"
`
	return NewWorker(WorkerConfig{Command: writeFakeWorker(t, script), BatchSize: 32})
}

func insertDocWithChunks(t *testing.T, s *store.Store, n int) (store.Document, []store.Chunk, []store.Provenance) {
	t.Helper()
	ctx := context.Background()

	docProv := store.Provenance{
		ID: "prov-doc", Kind: store.KindDocument, SourceKind: store.SourceKindFile,
		RootDocumentID: "prov-doc", ChainDepth: 0, ChainPath: []string{store.KindDocument},
		ContentHash: "sha256:doc", Processor: "ingest",
	}
	require.NoError(t, s.InsertProvenance(ctx, docProv))

	docID, err := s.InsertDocument(ctx, store.Document{
		ProvenanceID: docProv.ID, FilePath: "/x.pdf", FileName: "x.pdf", FileHash: "sha256:doc",
	})
	require.NoError(t, err)
	doc, err := s.GetDocument(ctx, docID)
	require.NoError(t, err)

	chunks := make([]store.Chunk, n)
	chunkProvs := make([]store.Provenance, n)
	rows := make([]store.Chunk, n)
	for i := 0; i < n; i++ {
		provID := fmt.Sprintf("prov-chunk-%d", i)
		cp := store.Provenance{
			ID: provID, Kind: store.KindChunk, SourceKind: store.SourceKindChunking,
			ParentID: &docProv.ID, ParentIDs: []string{docProv.ID}, RootDocumentID: docProv.RootDocumentID,
			ChainDepth: 2, ChainPath: []string{store.KindDocument, store.KindChunk},
			ContentHash: fmt.Sprintf("sha256:chunk%d", i), Processor: "chunker",
		}
		require.NoError(t, s.InsertProvenance(ctx, cp))
		chunkProvs[i] = cp
		rows[i] = store.Chunk{
			DocumentID: docID, ProvenanceID: cp.ID, Text: fmt.Sprintf("chunk text %d", i),
			TextHash: fmt.Sprintf("sha256:t%d", i), ChunkIndex: i,
			CharacterStart: i * 10, CharacterEnd: i*10 + 9, ContentTypes: []string{"Text"},
		}
	}
	ids, err := s.InsertChunks(ctx, rows)
	require.NoError(t, err)
	for i := range rows {
		rows[i].ID = ids[i]
		c, err := s.GetChunk(ctx, ids[i])
		require.NoError(t, err)
		chunks[i] = *c
	}
	return *doc, chunks, chunkProvs
}

func TestEmbedDocumentChunks_PersistsEmbeddingsAndVectors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 768)
	doc, chunks, chunkProvs := insertDocWithChunks(t, s, 3)

	o := NewOrchestrator(fakeWorkerFixedVector(t), s, "test-model", "v1", "cpu")
	info := DocumentInfo{DocumentID: doc.ID, FilePath: doc.FilePath, FileName: doc.FileName, FileHash: doc.FileHash}

	require.NoError(t, o.EmbedDocumentChunks(ctx, info, chunks, chunkProvs))

	for _, c := range chunks {
		got, err := s.GetChunk(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, store.EmbeddingStatusComplete, got.EmbeddingStatus)

		emb, err := s.GetEmbeddingByChunk(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "test-model", emb.ModelName)
		assert.Equal(t, store.TaskTypeSearchDocument, emb.TaskType)
		assert.Equal(t, "local", emb.InferenceMode)
	}

	n, err := s.VectorCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestEmbedDocumentChunks_RejectsMismatchedSlices(t *testing.T) {
	o := NewOrchestrator(fakeWorkerFixedVector(t), nil, "m", "v1", "cpu")
	err := o.EmbedDocumentChunks(context.Background(), DocumentInfo{}, []store.Chunk{{}}, nil)
	require.Error(t, err)
}

func TestEmbedDocumentChunks_EmptyChunksNoOp(t *testing.T) {
	o := NewOrchestrator(fakeWorkerFixedVector(t), nil, "m", "v1", "cpu")
	err := o.EmbedDocumentChunks(context.Background(), DocumentInfo{}, nil, nil)
	require.NoError(t, err)
}
