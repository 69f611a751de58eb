package provenance

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/veridoc-core/store"
)

func sampleRecords() []store.Provenance {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	rootID := "doc-1"
	childID := "ocr-1"
	parentID := rootID
	return []store.Provenance{
		{
			ID: rootID, Kind: store.KindDocument, SourceKind: store.SourceKindFile,
			RootDocumentID: rootID, ChainDepth: 0, ChainPath: []string{store.KindDocument},
			ContentHash: "hash-doc", Processor: "ocr-client", ProcessorVersion: "1",
			CreatedAt: now, ProcessedAt: now,
		},
		{
			ID: childID, Kind: store.KindOCRResult, SourceKind: store.SourceKindOCR,
			ParentID: &parentID, ParentIDs: []string{rootID}, RootDocumentID: rootID,
			ChainDepth: 1, ChainPath: []string{store.KindDocument, store.KindOCRResult},
			ContentHash: "hash-ocr", Processor: "ocr-client", ProcessorVersion: "1",
			CreatedAt: now, ProcessedAt: now,
		},
	}
}

func TestExportInternalJSON_RoundTrips(t *testing.T) {
	records := sampleRecords()
	data, err := ExportInternalJSON(records, "document:doc-1", time.Date(2026, 1, 15, 12, 30, 0, 0, time.UTC))
	require.NoError(t, err)

	var decoded internalJSONExport
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "internal_json", decoded.Header.Format)
	assert.Equal(t, "document:doc-1", decoded.Header.Scope)
	assert.Equal(t, 2, decoded.Header.Count)
	require.Len(t, decoded.Records, 2)
	assert.Equal(t, "doc-1", decoded.Records[0].ID)
}

func TestExportPROVJSON_EmitsEntitiesActivitiesAndRelations(t *testing.T) {
	data, err := ExportPROVJSON(sampleRecords())
	require.NoError(t, err)

	var doc provDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Len(t, doc.Entity, 2)
	// Only the non-DOCUMENT record produces an activity.
	assert.Len(t, doc.Activity, 1)
	assert.Len(t, doc.WasDerivedFrom, 1)
	assert.Len(t, doc.WasGeneratedBy, 1)
	assert.Len(t, doc.WasAttributedTo, 2)
	// Both records share one processor+version, so exactly one agent.
	assert.Len(t, doc.Agent, 1)
}

func TestExportCSV_HeaderAndRowCounts(t *testing.T) {
	data, err := ExportCSV(sampleRecords())
	require.NoError(t, err)

	r := csv.NewReader(strings.NewReader(string(data)))
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3) // header + 2 records
	assert.Equal(t, csvColumns, rows[0])
	assert.Equal(t, "doc-1", rows[1][0])
	assert.Equal(t, "true", rows[1][len(rows[1])-1]) // is_root for the DOCUMENT row
	assert.Equal(t, "false", rows[2][len(rows[2])-1])
}

func TestExportToFile_WritesAtomicallyAndCreatesDirectories(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "exports")
	path := filepath.Join(dir, "out.json")

	err := ExportToFile(sampleRecords(), FormatInternalJSON, "all", path, time.Now())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "internal_json")

	// No leftover temp files beside the final export.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "out.json", entries[0].Name())
}

func TestExportToFile_UnknownFormat(t *testing.T) {
	err := ExportToFile(sampleRecords(), Format("xml"), "all", filepath.Join(t.TempDir(), "out"), time.Now())
	require.Error(t, err)
}
