package provenance

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/veridoc/veridoc-core/store"
)

// Format is one of the three supported export formats.
type Format string

const (
	FormatInternalJSON Format = "internal_json"
	FormatPROVJSON     Format = "prov_json"
	FormatCSV          Format = "csv"
)

// internalJSONHeader is the envelope wrapping an internal-JSON export:
// the full record array plus a header of format, scope, counts, and timestamp.
type internalJSONHeader struct {
	Format    string `json:"format"`
	Scope     string `json:"scope"`
	Count     int    `json:"count"`
	Timestamp string `json:"timestamp"`
}

type internalJSONExport struct {
	Header  internalJSONHeader `json:"header"`
	Records []store.Provenance `json:"records"`
}

// ExportInternalJSON renders records as the internal JSON format.
func ExportInternalJSON(records []store.Provenance, scope string, now time.Time) ([]byte, error) {
	doc := internalJSONExport{
		Header: internalJSONHeader{
			Format:    string(FormatInternalJSON),
			Scope:     scope,
			Count:     len(records),
			Timestamp: now.UTC().Format(time.RFC3339),
		},
		Records: records,
	}
	return json.MarshalIndent(doc, "", "  ")
}

// provDocument mirrors the minimal W3C PROV-JSON shape
// (https://www.w3.org/Submission/prov-json/) needed for the derivation,
// generation, and attribution relations below.
type provDocument struct {
	Prefix   map[string]string        `json:"prefix"`
	Entity   map[string]map[string]any `json:"entity,omitempty"`
	Activity map[string]map[string]any `json:"activity,omitempty"`
	Agent    map[string]map[string]any `json:"agent,omitempty"`

	WasDerivedFrom map[string]map[string]any `json:"wasDerivedFrom,omitempty"`
	WasGeneratedBy map[string]map[string]any `json:"wasGeneratedBy,omitempty"`
	WasAttributedTo map[string]map[string]any `json:"wasAttributedTo,omitempty"`
}

// ExportPROVJSON renders records as W3C PROV-JSON: each provenance becomes a
// prov:Entity; each non-DOCUMENT also produces a prov:Activity; unique
// processors produce prov:SoftwareAgent; relations wasDerivedFrom,
// wasGeneratedBy, wasAttributedTo link them.
func ExportPROVJSON(records []store.Provenance) ([]byte, error) {
	doc := provDocument{
		Prefix: map[string]string{
			"prov": "http://www.w3.org/ns/prov#",
			"ocr":  "https://veridoc.dev/ns/ocr#",
			"ocrp": "https://veridoc.dev/ns/ocr-process#",
		},
		Entity:          map[string]map[string]any{},
		Activity:        map[string]map[string]any{},
		Agent:           map[string]map[string]any{},
		WasDerivedFrom:  map[string]map[string]any{},
		WasGeneratedBy:  map[string]map[string]any{},
		WasAttributedTo: map[string]map[string]any{},
	}

	agentIDs := map[string]string{} // processor+version -> agent id
	relSeq := 0
	nextRelID := func(prefix string) string {
		relSeq++
		return fmt.Sprintf("ocrp:%s%d", prefix, relSeq)
	}

	for _, r := range records {
		entityID := "ocr:" + r.ID
		doc.Entity[entityID] = map[string]any{
			"prov:type":       "ocr:" + r.Kind,
			"ocr:contentHash": r.ContentHash,
			"ocr:createdAt":   r.CreatedAt.UTC().Format(time.RFC3339),
		}

		if r.Kind != store.KindDocument {
			activityID := "ocr:activity-" + r.ID
			doc.Activity[activityID] = map[string]any{
				"prov:type":      "ocr:" + r.SourceKind,
				"ocr:processor":  r.Processor,
				"ocr:startTime":  r.CreatedAt.UTC().Format(time.RFC3339),
				"ocr:endTime":    r.ProcessedAt.UTC().Format(time.RFC3339),
			}
			doc.WasGeneratedBy[nextRelID("gen")] = map[string]any{
				"prov:entity":   entityID,
				"prov:activity": activityID,
			}
			if r.ParentID != nil {
				doc.WasDerivedFrom[nextRelID("der")] = map[string]any{
					"prov:generatedEntity": entityID,
					"prov:usedEntity":      "ocr:" + *r.ParentID,
				}
			}
		}

		agentKey := r.Processor + "@" + r.ProcessorVersion
		agentID, ok := agentIDs[agentKey]
		if !ok {
			agentID = fmt.Sprintf("ocr:agent-%d", len(agentIDs)+1)
			agentIDs[agentKey] = agentID
			doc.Agent[agentID] = map[string]any{
				"prov:type":        "prov:SoftwareAgent",
				"ocr:name":         r.Processor,
				"ocr:version":      r.ProcessorVersion,
			}
		}
		doc.WasAttributedTo[nextRelID("attr")] = map[string]any{
			"prov:entity": entityID,
			"prov:agent":  agentID,
		}
	}

	return json.MarshalIndent(doc, "", "  ")
}

// csvColumns are the 21 CSV export columns.
var csvColumns = []string{
	"id", "kind", "source_kind", "source_path", "parent_id", "root_document_id",
	"chain_depth", "chain_path", "content_hash", "input_hash", "file_hash",
	"processor", "processor_version", "processing_params", "processing_duration_ms",
	"quality_score", "agent_metadata", "created_at", "processed_at",
	"parent_ids_count", "is_root",
}

// ExportCSV renders records as CSV with the documented 21-column schema.
// Fields are escaped (quoted, with embedded quotes doubled) whenever they
// contain a comma, quote, newline, or carriage return — encoding/csv does
// this automatically for every field.
func ExportCSV(records []store.Provenance) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvColumns); err != nil {
		return nil, err
	}
	for _, r := range records {
		chainPath, err := json.Marshal(r.ChainPath)
		if err != nil {
			return nil, err
		}
		params, err := json.Marshal(r.ProcessingParams)
		if err != nil {
			return nil, err
		}
		row := []string{
			r.ID, r.Kind, r.SourceKind, derefStr(r.SourcePath), derefStr(r.ParentID), r.RootDocumentID,
			strconv.Itoa(r.ChainDepth), string(chainPath), r.ContentHash, derefStr(r.InputHash), derefStr(r.FileHash),
			r.Processor, r.ProcessorVersion, string(params), derefInt64(r.ProcessingDurationMS),
			derefFloat(r.QualityScore), derefStr(r.AgentMetadata),
			r.CreatedAt.UTC().Format(time.RFC3339), r.ProcessedAt.UTC().Format(time.RFC3339),
			strconv.Itoa(len(r.ParentIDs)), strconv.FormatBool(r.ParentID == nil),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt64(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func derefFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// ExportToFile renders records in format and writes them to path, creating
// parent directories if absent and writing atomically (write to a temp file
// in the same directory, then rename) so a crash mid-write never leaves a
// truncated export behind.
func ExportToFile(records []store.Provenance, format Format, scope, path string, now time.Time) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatInternalJSON:
		data, err = ExportInternalJSON(records, scope, now)
	case FormatPROVJSON:
		data, err = ExportPROVJSON(records)
	case FormatCSV:
		data, err = ExportCSV(records)
	default:
		return fmt.Errorf("export: unknown format %q", format)
	}
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("export: creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".export-*.tmp")
	if err != nil {
		return fmt.Errorf("export: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("export: writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("export: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("export: renaming into place at %s: %w", path, err)
	}
	return nil
}
