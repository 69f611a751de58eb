package vlmpipe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/veridoc/veridoc-core/chunker"
	"github.com/veridoc/veridoc-core/embedding"
	"github.com/veridoc/veridoc-core/external"
	"github.com/veridoc/veridoc-core/hashutil"
	"github.com/veridoc/veridoc-core/provenance"
	"github.com/veridoc/veridoc-core/store"
)

// dedupCacheSize caps the in-process content-hash cache used to skip a
// repeat database lookup for images that recur often within a run (a
// letterhead logo stamped on every page, say).
const dedupCacheSize = 256

// Pipeline describes extracted images through a VLMClient, applies the
// relevance filter, and records the resulting provenance chain.
type Pipeline struct {
	store     *store.Store
	vlm       external.VLMClient
	optimizer Optimizer
	cfg       Config

	embedWorker           *embedding.Worker
	embeddingModelName    string
	embeddingModelVersion string
	embeddingDevice       string

	dedupCache *lru.Cache[string, store.Image]
}

// NewPipeline builds a Pipeline. Call WithEmbedding to also produce
// embeddings for VLM descriptions; without it, cfg.Embed is ignored.
func NewPipeline(s *store.Store, vlm external.VLMClient, optimizer Optimizer, cfg Config) *Pipeline {
	cache, _ := lru.New[string, store.Image](dedupCacheSize) // only errors on a non-positive size
	return &Pipeline{store: s, vlm: vlm, optimizer: optimizer, cfg: cfg, dedupCache: cache}
}

// WithEmbedding attaches an embedding worker so described images also get
// an EMBEDDING provenance record over their description text.
func (p *Pipeline) WithEmbedding(w *embedding.Worker, modelName, modelVersion, device string) *Pipeline {
	p.embedWorker = w
	p.embeddingModelName = modelName
	p.embeddingModelVersion = modelVersion
	p.embeddingDevice = device
	return p
}

// ImageOutcome records what happened to one claimed image.
type ImageOutcome struct {
	ImageID string
	Status  string // "complete", "skipped", "failed"
	Reason  string
	Err     error
}

// BatchResult summarizes one ProcessDocument call.
type BatchResult struct {
	Processed int
	Skipped   int
	Failed    int
	Aborted   bool
	Outcomes  []ImageOutcome
}

// ProcessDocument resets images stuck in "processing" longer than
// cfg.StuckThreshold, then claims and processes pending images for
// documentID (all documents if empty) up to limit, sequentially, with
// exponential backoff after each failure. It aborts the remaining batch —
// leaving not-yet-claimed images pending for a later run — after
// cfg.MaxConsecutiveFailures consecutive failures.
func (p *Pipeline) ProcessDocument(ctx context.Context, documentID string, limit int) (*BatchResult, error) {
	if _, err := p.store.ResetStuckImages(ctx, documentID, p.cfg.StuckThreshold); err != nil {
		return nil, fmt.Errorf("resetting stuck images: %w", err)
	}

	images, err := p.store.ListPendingImages(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing pending images: %w", err)
	}
	if limit > 0 && len(images) > limit {
		images = images[:limit]
	}

	result := &BatchResult{}
	delay := p.cfg.BackoffSeed
	consecutiveFailures := 0

	for _, img := range images {
		claimed, err := p.store.ClaimImageProcessing(ctx, img.ID)
		if err != nil {
			return result, fmt.Errorf("claiming image %s: %w", img.ID, err)
		}
		if !claimed {
			continue
		}

		outcome := p.processOne(ctx, img)
		result.Outcomes = append(result.Outcomes, outcome)

		switch outcome.Status {
		case "failed":
			result.Failed++
			consecutiveFailures++
			if consecutiveFailures >= p.cfg.MaxConsecutiveFailures {
				result.Aborted = true
				slog.Error("vlm batch aborted", "document_id", documentID, "consecutive_failures", consecutiveFailures)
				return result, nil
			}
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > p.cfg.BackoffCap {
				delay = p.cfg.BackoffCap
			}
		case "skipped":
			result.Skipped++
			consecutiveFailures = 0
			delay = p.cfg.BackoffSeed
		default:
			result.Processed++
			consecutiveFailures = 0
			delay = p.cfg.BackoffSeed
		}
	}

	return result, nil
}

func (p *Pipeline) fail(ctx context.Context, imageID, reason string) ImageOutcome {
	if err := p.store.MarkImageFailed(ctx, imageID); err != nil {
		return ImageOutcome{ImageID: imageID, Status: "failed", Reason: reason, Err: err}
	}
	return ImageOutcome{ImageID: imageID, Status: "failed", Reason: reason}
}

func (p *Pipeline) skip(ctx context.Context, imageID, reason string) ImageOutcome {
	if err := p.store.MarkImageSkipped(ctx, imageID); err != nil {
		return ImageOutcome{ImageID: imageID, Status: "failed", Reason: reason, Err: err}
	}
	return ImageOutcome{ImageID: imageID, Status: "skipped", Reason: reason}
}

// processOne runs the full per-image policy: precondition, relevance
// filter, resize, inference, and provenance. img.VLMStatus is already
// "processing" when this is called — ClaimImageProcessing won the race.
func (p *Pipeline) processOne(ctx context.Context, img store.Image) ImageOutcome {
	if _, err := os.Stat(img.ExtractedPath); err != nil {
		return p.fail(ctx, img.ID, fmt.Sprintf("extracted image missing on disk: %v", err))
	}

	imgProv, err := p.store.GetProvenance(ctx, img.ProvenanceID)
	if err != nil {
		return p.fail(ctx, img.ID, fmt.Sprintf("loading image provenance: %v", err))
	}

	if p.cfg.OptimizationEnabled {
		if img.IsHeaderFooter {
			return p.skip(ctx, img.ID, "header or footer block")
		}

		if img.BlockType != chunker.BlockFigure && img.BlockType != chunker.BlockFigureGroup {
			deduped, outcome, err := p.tryDedup(ctx, img, *imgProv)
			if err != nil {
				return p.fail(ctx, img.ID, err.Error())
			}
			if deduped {
				return outcome
			}

			if skip, reason := quickDimensionSkip(p.cfg, img.Width, img.Height); skip {
				return p.skip(ctx, img.ID, reason)
			}

			assessment, err := p.optimizer.AssessRelevance(ctx, img.ExtractedPath, p.cfg.MinRelevance)
			if err != nil {
				return p.skip(ctx, img.ID, "optimizer error: "+err.Error())
			}
			if assessment.Skip {
				return p.skip(ctx, img.ID, assessment.Reason)
			}
		}
	}

	inferencePath := img.ExtractedPath
	maxDim := img.Width
	if img.Height > maxDim {
		maxDim = img.Height
	}
	if p.cfg.OptimizationEnabled && maxDim > p.cfg.MaxDimension {
		resized, err := p.optimizer.Resize(ctx, img.ExtractedPath, p.cfg.MaxDimension)
		if err != nil {
			return p.fail(ctx, img.ID, fmt.Sprintf("resize failed: %v", err))
		}
		inferencePath = resized
		defer os.Remove(resized)
	}

	result, err := p.vlm.Describe(ctx, external.VLMRequest{ImagePath: inferencePath, UniversalPrompt: true})
	if err != nil {
		return p.fail(ctx, img.ID, fmt.Sprintf("vlm inference failed: %v", err))
	}

	if result.Analysis.Confidence < p.cfg.MinConfidence {
		slog.Warn("vlm description confidence below floor",
			"image_id", img.ID, "confidence", result.Analysis.Confidence)
	}

	if err := p.persistDescription(ctx, img, *imgProv, result); err != nil {
		return p.fail(ctx, img.ID, err.Error())
	}
	return ImageOutcome{ImageID: img.ID, Status: "complete"}
}

// tryDedup looks for an already-described image sharing img's content hash
// and, if found, clones its VLM fields and (if present) its embedding onto
// img instead of spending a VLM call. Returns deduped=false, nil error if
// no usable source exists — the caller falls through to the normal path.
func (p *Pipeline) tryDedup(ctx context.Context, img store.Image, imgProv store.Provenance) (bool, ImageOutcome, error) {
	source, ok := p.dedupCache.Get(img.ContentHash)
	if !ok {
		found, err := p.store.FindImageByContentHash(ctx, img.ContentHash, img.ID)
		if err == store.ErrNotFound {
			return false, ImageOutcome{}, nil
		}
		if err != nil {
			return false, ImageOutcome{}, fmt.Errorf("dedup lookup: %w", err)
		}
		source = *found
		p.dedupCache.Add(img.ContentHash, source)
	}
	if source.VLMDescription == nil {
		return false, ImageOutcome{}, nil
	}

	descProv, err := provenance.New(ctx, p.store, imgProv, store.KindVLMDescription, store.SourceKindVLMDedup,
		"vlm-dedup", "", hashutil.HashText([]byte(*source.VLMDescription)))
	if err != nil {
		return false, ImageOutcome{}, fmt.Errorf("recording dedup provenance: %w", err)
	}

	var embeddingID *string
	if source.VLMEmbeddingID != nil {
		cloned, err := p.cloneEmbedding(ctx, *source.VLMEmbeddingID, *descProv, img.ID)
		if err != nil {
			return false, ImageOutcome{}, fmt.Errorf("cloning dedup embedding: %w", err)
		}
		embeddingID = &cloned
	}

	zeroTokens := 0
	if err := p.store.UpdateImageVLMFields(ctx, img.ID, store.VLMStatusComplete, source.VLMDescription,
		source.VLMStructuredData, embeddingID, source.VLMConfidence, &zeroTokens); err != nil {
		return false, ImageOutcome{}, err
	}

	return true, ImageOutcome{ImageID: img.ID, Status: "complete", Reason: "deduplicated against " + source.ID}, nil
}

// cloneEmbedding copies a source embedding's vector onto a new embedding
// row parented on descProv, without invoking the embedding worker.
func (p *Pipeline) cloneEmbedding(ctx context.Context, sourceEmbeddingID string, descProv store.Provenance, newImageID string) (string, error) {
	source, err := p.store.GetEmbedding(ctx, sourceEmbeddingID)
	if err != nil {
		return "", fmt.Errorf("loading source embedding: %w", err)
	}
	vec, err := p.store.GetVector(ctx, sourceEmbeddingID)
	if err != nil {
		return "", fmt.Errorf("loading source vector: %w", err)
	}

	embProv, err := provenance.New(ctx, p.store, descProv, store.KindEmbedding, store.SourceKindVLMDedup,
		"vlm-dedup", "", source.ContentHash)
	if err != nil {
		return "", err
	}

	emb := store.Embedding{
		ProvenanceID:   embProv.ID,
		ImageID:        &newImageID,
		OriginalText:   source.OriginalText,
		SourceFilePath: source.SourceFilePath,
		SourceFileName: source.SourceFileName,
		SourceFileHash: source.SourceFileHash,
		ModelName:      source.ModelName,
		ModelVersion:   source.ModelVersion,
		TaskType:       source.TaskType,
		InferenceMode:  source.InferenceMode,
		Device:         source.Device,
		ContentHash:    source.ContentHash,
	}
	id, err := p.store.InsertEmbedding(ctx, emb)
	if err != nil {
		return "", err
	}
	if err := p.store.StoreVector(ctx, id, vec); err != nil {
		return "", err
	}
	return id, nil
}

// persistDescription records a fresh VLM inference result: the
// VLM_DESCRIPTION provenance, an optional EMBEDDING provenance over the
// description text, and the image row's vlm_* fields.
func (p *Pipeline) persistDescription(ctx context.Context, img store.Image, imgProv store.Provenance, result *external.VLMResult) error {
	descProv, err := provenance.New(ctx, p.store, imgProv, store.KindVLMDescription, store.SourceKindVLM,
		"vlm-service", result.Model, hashutil.HashText([]byte(result.Description)),
		provenance.WithProcessingDuration(result.DurationMS), provenance.WithQualityScore(result.Analysis.Confidence))
	if err != nil {
		return fmt.Errorf("recording vlm description provenance: %w", err)
	}

	structuredJSON, err := json.Marshal(result.Analysis)
	if err != nil {
		return fmt.Errorf("encoding vlm analysis: %w", err)
	}
	structured := string(structuredJSON)
	confidence := result.Analysis.Confidence
	tokens := result.TokensUsed

	var embeddingID *string
	if p.cfg.Embed && p.embedWorker != nil {
		id, err := p.embedDescription(ctx, *descProv, img.ID, result)
		if err != nil {
			return fmt.Errorf("embedding vlm description: %w", err)
		}
		embeddingID = &id
	}

	if err := p.store.UpdateImageVLMFields(ctx, img.ID, store.VLMStatusComplete, &result.Description,
		&structured, embeddingID, &confidence, &tokens); err != nil {
		return err
	}

	img.VLMDescription, img.VLMStructuredData, img.VLMEmbeddingID, img.VLMConfidence = &result.Description, &structured, embeddingID, &confidence
	p.dedupCache.Add(img.ContentHash, img)
	return nil
}

// embedDescription embeds the description plus any text the VLM itself
// extracted from within the image, and records an EMBEDDING provenance
// parented on the VLM_DESCRIPTION record (depth 4).
func (p *Pipeline) embedDescription(ctx context.Context, descProv store.Provenance, imageID string, result *external.VLMResult) (string, error) {
	input := result.Description
	if len(result.Analysis.ExtractedText) > 0 {
		input += " " + strings.Join(result.Analysis.ExtractedText, " ")
	}

	vecs, err := p.embedWorker.EmbedBatch(ctx, []string{input}, p.embeddingDevice, 0)
	if err != nil {
		return "", err
	}

	contentHash := hashutil.HashText([]byte(input))
	embProv, err := provenance.New(ctx, p.store, descProv, store.KindEmbedding, store.SourceKindEmbedding,
		"embedding-worker", p.embeddingModelVersion, contentHash)
	if err != nil {
		return "", err
	}

	emb := store.Embedding{
		ProvenanceID:  embProv.ID,
		ImageID:       &imageID,
		OriginalText:  input,
		ModelName:     p.embeddingModelName,
		ModelVersion:  p.embeddingModelVersion,
		TaskType:      store.TaskTypeSearchDocument,
		InferenceMode: "local",
		Device:        p.embeddingDevice,
		ContentHash:   contentHash,
	}
	id, err := p.store.InsertEmbedding(ctx, emb)
	if err != nil {
		return "", err
	}
	if err := p.store.StoreVector(ctx, id, vecs[0]); err != nil {
		return "", err
	}
	return id, nil
}
