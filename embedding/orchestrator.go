package embedding

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/veridoc/veridoc-core/chunker"
	"github.com/veridoc/veridoc-core/errs"
	"github.com/veridoc/veridoc-core/hashutil"
	"github.com/veridoc/veridoc-core/provenance"
	"github.com/veridoc/veridoc-core/store"
)

const subBatchSize = 100

// flushEvery is how many (embedding id, vector) pairs accumulate before a
// document embedding run flushes them to the vector index in one
// BatchStoreVectors call.
const flushEvery = 50

// DocumentInfo carries the file-identity fields a document embedding run
// denormalizes onto each embedding row.
type DocumentInfo struct {
	DocumentID string
	FilePath   string
	FileName   string
	FileHash   string
}

// Orchestrator drives document- and query-level embedding over a Worker,
// persisting results through store and provenance.
type Orchestrator struct {
	worker *Worker
	store  *store.Store

	modelName    string
	modelVersion string
	device       string
}

// NewOrchestrator builds an Orchestrator around worker and s, stamping every
// embedding row with modelName/modelVersion.
func NewOrchestrator(worker *Worker, s *store.Store, modelName, modelVersion, device string) *Orchestrator {
	return &Orchestrator{worker: worker, store: s, modelName: modelName, modelVersion: modelVersion, device: device}
}

// embedAllBatched splits texts into sub-batches of subBatchSize (the worker
// policy for any call with more than 100 inputs) and runs them concurrently,
// reassembling results in input order. Empty input never invokes the
// worker.
func (o *Orchestrator) embedAllBatched(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) <= subBatchSize {
		return o.worker.EmbedBatch(ctx, texts, o.device, 0)
	}

	numBatches := (len(texts) + subBatchSize - 1) / subBatchSize
	out := make([][][]float32, numBatches)

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for bi := 0; bi < numBatches; bi++ {
		bi := bi
		start := bi * subBatchSize
		end := start + subBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		sub := texts[start:end]
		g.Go(func() error {
			vecs, err := o.worker.EmbedBatch(gctx, sub, o.device, 0)
			if err != nil {
				return err
			}
			mu.Lock()
			out[bi] = vecs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make([][]float32, 0, len(texts))
	for _, batch := range out {
		result = append(result, batch...)
	}
	return result, nil
}

// chunkEmbedInput builds the section-aware prefix for chunk embedding:
// "[Section: <path>] " (falling back to "[Heading: <heading>] " when no
// section path is set), followed by "[Table]"/"[Code]" tags drawn from
// content types, then the chunk's own text.
func chunkEmbedInput(c store.Chunk) string {
	var b strings.Builder
	switch {
	case c.SectionPath != nil && *c.SectionPath != "":
		fmt.Fprintf(&b, "[Section: %s] ", *c.SectionPath)
	case c.Heading != nil && *c.Heading != "":
		fmt.Fprintf(&b, "[Heading: %s] ", *c.Heading)
	}
	for _, ct := range c.ContentTypes {
		switch ct {
		case chunker.BlockTable, chunker.BlockTableGroup:
			b.WriteString("[Table] ")
		case chunker.BlockCode:
			b.WriteString("[Code] ")
		}
	}
	b.WriteString(c.Text)
	return b.String()
}

// EmbedDocumentChunks embeds every chunk in chunks in one batched worker
// call, then inside a single transaction: creates an EMBEDDING provenance
// child of each chunk's provenance, inserts the embedding row, buffers its
// vector, flushing every flushEvery pairs (tail flushed at the end), and
// marks the chunk's embedding_status complete. A mismatch between returned
// vector count and chunk count fails the whole batch before any persistence
// happens.
func (o *Orchestrator) EmbedDocumentChunks(ctx context.Context, doc DocumentInfo, chunks []store.Chunk, chunkProvenance []store.Provenance) error {
	if len(chunks) != len(chunkProvenance) {
		return errs.NewError(errs.CategoryInternal, "chunk and provenance slices must be parallel")
	}
	if len(chunks) == 0 {
		return nil
	}

	inputs := make([]string, len(chunks))
	for i, c := range chunks {
		inputs[i] = c.Text
		if prefixed := chunkEmbedInput(c); prefixed != "" {
			inputs[i] = prefixed
		}
	}

	vectors, err := o.embedAllBatched(ctx, inputs)
	if err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return errs.Errorf(errs.CategoryEmbeddingFailed,
			"worker returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	return o.store.WithTx(ctx, func(ctx context.Context, _ *sql.Tx) error {
		var buffer []store.VectorBatch
		flush := func() error {
			if len(buffer) == 0 {
				return nil
			}
			if err := o.store.BatchStoreVectors(ctx, buffer); err != nil {
				return err
			}
			buffer = buffer[:0]
			return nil
		}

		for i, c := range chunks {
			prov, err := provenance.New(ctx, o.store, chunkProvenance[i],
				store.KindEmbedding, store.SourceKindEmbedding, "embedding-worker", o.modelVersion,
				hashutil.HashText([]byte(inputs[i])))
			if err != nil {
				return fmt.Errorf("embedding provenance for chunk %s: %w", c.ID, err)
			}

			chunkID := c.ID
			totalChunks := len(chunks)
			chunkIndex := c.ChunkIndex
			emb := store.Embedding{
				ProvenanceID:   prov.ID,
				ChunkID:        &chunkID,
				OriginalText:   inputs[i],
				SourceFilePath: doc.FilePath,
				SourceFileName: doc.FileName,
				SourceFileHash: doc.FileHash,
				PageNumber:     c.PageNumber,
				CharacterStart: &c.CharacterStart,
				CharacterEnd:   &c.CharacterEnd,
				ChunkIndex:     &chunkIndex,
				TotalChunks:    &totalChunks,
				ModelName:      o.modelName,
				ModelVersion:   o.modelVersion,
				TaskType:       store.TaskTypeSearchDocument,
				InferenceMode:  "local",
				Device:         o.device,
				ContentHash:    prov.ContentHash,
			}
			embeddingID, err := o.store.InsertEmbedding(ctx, emb)
			if err != nil {
				return fmt.Errorf("inserting embedding for chunk %s: %w", c.ID, err)
			}

			buffer = append(buffer, store.VectorBatch{EmbeddingID: embeddingID, Vector: vectors[i]})
			if len(buffer) >= flushEvery {
				if err := flush(); err != nil {
					return err
				}
			}

			if err := o.store.UpdateChunkEmbeddingStatus(ctx, c.ID, store.EmbeddingStatusComplete); err != nil {
				return fmt.Errorf("marking chunk %s embedded: %w", c.ID, err)
			}
		}

		return flush()
	})
}

// EmbedQuery embeds a single query string for search-time kNN. Whitespace-
// only input is rejected before the worker is invoked.
func (o *Orchestrator) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errs.NewError(errs.CategoryValidation, "query text must not be empty")
	}
	return o.worker.EmbedQuery(ctx, text, o.device)
}
