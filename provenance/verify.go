package provenance

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/veridoc/veridoc-core/hashutil"
	"github.com/veridoc/veridoc-core/store"
)

// RecordVerification is the result of verifying one provenance record.
type RecordVerification struct {
	ProvenanceID string
	Kind         string
	ExpectedHash string
	ComputedHash string
	Verified     bool
	Err          error
}

// VerifyRecord loads the entity row the provenance points at, derives the
// canonical artifact bytes per kind, re-hashes them, and compares against
// the stored expected hash. Derivation rules are switched per kind.
func VerifyRecord(ctx context.Context, s *store.Store, p store.Provenance) RecordVerification {
	result := RecordVerification{ProvenanceID: p.ID, Kind: p.Kind}

	expected, artifact, err := deriveArtifact(ctx, s, p)
	if err != nil {
		result.Err = err
		return result
	}
	result.ExpectedHash = expected
	result.ComputedHash = hashutil.HashText(artifact)
	result.Verified = result.ComputedHash == expected
	return result
}

// deriveArtifact returns (expected hash field value, canonical artifact
// bytes) for p's kind.
func deriveArtifact(ctx context.Context, s *store.Store, p store.Provenance) (string, []byte, error) {
	switch p.Kind {
	case store.KindDocument:
		doc, err := s.GetDocumentByProvenanceID(ctx, p.ID)
		if err != nil {
			return "", nil, err
		}
		b, err := os.ReadFile(doc.FilePath)
		if err != nil {
			return "", nil, err
		}
		return doc.FileHash, b, nil

	case store.KindOCRResult:
		r, err := s.GetOCRResultByProvenanceID(ctx, p.ID)
		if err != nil {
			return "", nil, err
		}
		return p.ContentHash, []byte(r.ExtractedText), nil

	case store.KindChunk:
		c, err := s.GetChunkByProvenanceID(ctx, p.ID)
		if err != nil {
			return "", nil, err
		}
		return c.TextHash, []byte(c.Text), nil

	case store.KindEmbedding:
		e, err := s.GetEmbeddingByProvenanceID(ctx, p.ID)
		if err != nil {
			return "", nil, err
		}
		return e.ContentHash, []byte(e.OriginalText), nil

	case store.KindImage:
		var imageID string
		if err := s.DB().QueryRowContext(ctx, "SELECT id FROM images WHERE provenance_id = ?", p.ID).Scan(&imageID); err != nil {
			return "", nil, err
		}
		img, err := s.GetImage(ctx, imageID)
		if err != nil {
			return "", nil, err
		}
		b, err := os.ReadFile(img.ExtractedPath)
		if err != nil {
			return "", nil, err
		}
		return img.ContentHash, b, nil

	case store.KindVLMDescription:
		// VLM_DESCRIPTION's canonical artifact is the parent IMAGE's
		// vlm_description, not a row of its own.
		parentID := p.ParentID
		if parentID == nil {
			return "", nil, fmt.Errorf("verify: VLM_DESCRIPTION %s has no parent", p.ID)
		}
		var parentImageID string
		if err := s.DB().QueryRowContext(ctx, "SELECT id FROM images WHERE provenance_id = ?", *parentID).Scan(&parentImageID); err != nil {
			return "", nil, err
		}
		parent, err := s.GetImage(ctx, parentImageID)
		if err != nil {
			return "", nil, err
		}
		if parent.VLMDescription == nil {
			return "", nil, fmt.Errorf("verify: parent image %s has no vlm_description", parent.ID)
		}
		return p.ContentHash, []byte(*parent.VLMDescription), nil

	case store.KindComparison:
		cmp, err := s.GetComparisonByProvenanceID(ctx, p.ID)
		if err != nil {
			return "", nil, err
		}
		b, err := canonicalComparisonArtifact(cmp.TextDiffJSON, cmp.StructuralDiffJSON)
		if err != nil {
			return "", nil, err
		}
		return cmp.ContentHash, b, nil

	case store.KindExtraction:
		ex, err := s.GetExtractionByProvenanceID(ctx, p.ID)
		if err != nil {
			return "", nil, err
		}
		return p.ContentHash, []byte(ex.ExtractionJSON), nil

	case store.KindFormFill:
		f, err := s.GetFormFillByProvenanceID(ctx, p.ID)
		if err != nil {
			return "", nil, err
		}
		b, err := canonicalFormFillArtifact(f.FieldsFilled, f.FieldsNotFound)
		if err != nil {
			return "", nil, err
		}
		return p.ContentHash, b, nil

	case store.KindClustering:
		var clusteringID string
		if err := s.DB().QueryRowContext(ctx, "SELECT id FROM clusterings WHERE provenance_id = ?", p.ID).Scan(&clusteringID); err != nil {
			return "", nil, err
		}
		cl, err := s.GetClustering(ctx, clusteringID)
		if err != nil {
			return "", nil, err
		}
		return p.ContentHash, []byte(cl.CentroidJSON + ":" + cl.RunID), nil

	default:
		return "", nil, fmt.Errorf("verify: unknown kind %q", p.Kind)
	}
}

// canonicalComparisonArtifact serializes {text_diff, structural_diff} into
// the canonical bytes a COMPARISON's content_hash was computed over.
func canonicalComparisonArtifact(textDiffJSON, structuralDiffJSON string) ([]byte, error) {
	var textDiff, structuralDiff any
	if err := json.Unmarshal([]byte(textDiffJSON), &textDiff); err != nil {
		return nil, fmt.Errorf("parsing text_diff_json: %w", err)
	}
	if err := json.Unmarshal([]byte(structuralDiffJSON), &structuralDiff); err != nil {
		return nil, fmt.Errorf("parsing structural_diff_json: %w", err)
	}
	return json.Marshal(map[string]any{
		"text_diff":       textDiff,
		"structural_diff": structuralDiff,
	})
}

// canonicalFormFillArtifact serializes {fields_filled, fields_not_found} into
// the canonical bytes a FORM_FILL's content_hash was computed over.
func canonicalFormFillArtifact(fieldsFilled, fieldsNotFound []string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"fields_filled":    fieldsFilled,
		"fields_not_found": fieldsNotFound,
	})
}

// ChainVerification is the result of verifying a full chain.
type ChainVerification struct {
	HashesVerified int
	HashesFailed   int
	FailedItems    []RecordVerification
}

// VerifyChain verifies every ancestor plus the target record, capping the
// failed-item list at maxFailed.
func VerifyChain(ctx context.Context, s *store.Store, id string, maxFailed int) (*ChainVerification, error) {
	chain, err := GetChain(ctx, s, id)
	if err != nil {
		return nil, err
	}
	records := append(append([]store.Provenance{}, chain.AncestorsRootLast...), chain.Current)

	out := &ChainVerification{}
	for _, r := range records {
		v := VerifyRecord(ctx, s, r)
		if v.Err != nil || !v.Verified {
			out.HashesFailed++
			if len(out.FailedItems) < maxFailed {
				out.FailedItems = append(out.FailedItems, v)
			}
			continue
		}
		out.HashesVerified++
	}
	return out, nil
}

// ChainIntegrityError is one parent/depth inconsistency found while sweeping
// the whole database.
type ChainIntegrityError struct {
	RecordID string
	ParentID string
	Reason   string
}

// DatabaseVerification is the result of sweeping the entire provenance
// table.
type DatabaseVerification struct {
	HashesVerified     int
	HashesFailed       int
	FailedItems        []RecordVerification
	FailedOverflow     int
	ChainErrors        []ChainIntegrityError
	ChainErrorOverflow int
}

// VerifyDatabase sweeps all provenance ordered by chain_depth, capping the
// failed-item list at maxFailed with an overflow counter, and separately
// scans parent/depth consistency, capping chain errors at 10.
func VerifyDatabase(ctx context.Context, s *store.Store, maxFailed int) (*DatabaseVerification, error) {
	records, err := s.ListProvenanceByKindOrderedByDepth(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]store.Provenance, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	out := &DatabaseVerification{}
	for _, r := range records {
		v := VerifyRecord(ctx, s, r)
		if v.Err != nil || !v.Verified {
			out.HashesFailed++
			if len(out.FailedItems) < maxFailed {
				out.FailedItems = append(out.FailedItems, v)
			} else {
				out.FailedOverflow++
			}
			continue
		}
		out.HashesVerified++
	}

	const maxChainErrors = 10
	for _, r := range records {
		if r.ParentID == nil {
			continue
		}
		parent, ok := byID[*r.ParentID]
		if !ok {
			if len(out.ChainErrors) < maxChainErrors {
				out.ChainErrors = append(out.ChainErrors, ChainIntegrityError{
					RecordID: r.ID, ParentID: *r.ParentID, Reason: "parent does not exist",
				})
			} else {
				out.ChainErrorOverflow++
			}
			continue
		}
		if parent.ChainDepth != r.ChainDepth-1 {
			if len(out.ChainErrors) < maxChainErrors {
				out.ChainErrors = append(out.ChainErrors, ChainIntegrityError{
					RecordID: r.ID, ParentID: *r.ParentID,
					Reason: fmt.Sprintf("parent depth %d, expected %d", parent.ChainDepth, r.ChainDepth-1),
				})
			} else {
				out.ChainErrorOverflow++
			}
		}
	}

	return out, nil
}
