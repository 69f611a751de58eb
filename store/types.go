package store

import "time"

// Provenance is a row in the central provenance table.
// kind and source_kind are free-form strings matching the Kind*/SourceKind*
// constants below rather than a Go enum, mirroring how every entity status
// column in this package is modeled.
type Provenance struct {
	ID                   string
	Kind                 string
	SourceKind           string
	SourcePath           *string
	ParentID             *string
	ParentIDs            []string
	RootDocumentID       string
	ChainDepth           int
	ChainPath            []string
	ContentHash          string
	InputHash            *string
	FileHash             *string
	Processor            string
	ProcessorVersion     string
	ProcessingParams     map[string]any
	ProcessingDurationMS *int64
	QualityScore         *float64
	AgentMetadata        *string // JSON, opaque to the store
	CreatedAt            time.Time
	ProcessedAt          time.Time
}

// Provenance kinds.
const (
	KindDocument       = "DOCUMENT"
	KindOCRResult      = "OCR_RESULT"
	KindChunk          = "CHUNK"
	KindImage          = "IMAGE"
	KindVLMDescription = "VLM_DESCRIPTION"
	KindEmbedding      = "EMBEDDING"
	KindExtraction     = "EXTRACTION"
	KindFormFill       = "FORM_FILL"
	KindComparison     = "COMPARISON"
	KindClustering     = "CLUSTERING"
)

// Provenance source kinds.
const (
	SourceKindFile           = "FILE"
	SourceKindOCR            = "OCR"
	SourceKindChunking       = "CHUNKING"
	SourceKindImageExtract   = "IMAGE_EXTRACTION"
	SourceKindVLM            = "VLM"
	SourceKindVLMDedup       = "VLM_DEDUP"
	SourceKindEmbedding      = "EMBEDDING"
	SourceKindExtraction     = "EXTRACTION"
	SourceKindFormFill       = "FORM_FILL"
	SourceKindComparison     = "COMPARISON"
	SourceKindClustering     = "CLUSTERING"
)

// ChainDepth is the invariant depth expected for each provenance kind.
// EMBEDDING has two valid depths depending on parent kind (see
// ExpectedEmbeddingDepth), so it is deliberately absent here.
var ChainDepth = map[string]int{
	KindDocument:       0,
	KindOCRResult:      1,
	KindChunk:          2,
	KindImage:          2,
	KindExtraction:     2,
	KindComparison:     2,
	KindClustering:     2,
	KindVLMDescription: 3,
	KindFormFill:       0,
}

// ExpectedEmbeddingDepth returns the required chain_depth for an EMBEDDING
// whose immediate parent has parentKind: 3 when embedding a CHUNK, 4 when
// embedding a VLM_DESCRIPTION.
func ExpectedEmbeddingDepth(parentKind string) (int, bool) {
	switch parentKind {
	case KindChunk, KindExtraction:
		return 3, true
	case KindVLMDescription:
		return 4, true
	default:
		return 0, false
	}
}

// Document is a row in the documents table.
type Document struct {
	ID           string
	ProvenanceID string
	FilePath     string
	FileName     string
	FileHash     string
	FileSize     int64
	FileType     string
	Status       string // pending, processing, complete, failed
	PageCount    *int
	ErrorMessage *string
	DocTitle     *string
	DocAuthor    *string
	DocSubject   *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Document lifecycle states.
const (
	DocumentStatusPending    = "pending"
	DocumentStatusProcessing = "processing"
	DocumentStatusComplete   = "complete"
	DocumentStatusFailed     = "failed"
)

// OCRResult is a row in the ocr_results table.
type OCRResult struct {
	ID            string
	DocumentID    string
	ProvenanceID  string
	ExtractedText string
	TextLength    int
	ProviderMode  string // fast, balanced, accurate
	PageCount     int
	QualityScore  *float64
	BlockTree     string // JSON
	ProcessingMS  *int64
	CreatedAt     time.Time
}

// Chunk is a row in the chunks table.
type Chunk struct {
	ID                    string
	DocumentID            string
	ProvenanceID          string
	Text                  string
	TextHash              string
	ChunkIndex            int
	CharacterStart        int
	CharacterEnd          int
	PageNumber            *int
	PageRange             *string
	OverlapPrevious       int
	OverlapNext           int
	EmbeddingStatus       string // pending, complete, failed
	Heading               *string
	HeadingLevel          *int
	SectionPath           *string
	ContentTypes          []string
	IsAtomic              bool
	Strategy              *string
	Confidence            *float64
	IsRepeatedBoilerplate bool
	CreatedAt             time.Time
}

const (
	EmbeddingStatusPending  = "pending"
	EmbeddingStatusComplete = "complete"
	EmbeddingStatusFailed   = "failed"
)

// Image is a row in the images table.
type Image struct {
	ID                   string
	DocumentID           string
	ProvenanceID         string
	PageNumber           int
	BBoxX, BBoxY         float64
	BBoxW, BBoxH         float64
	ImageIndex           int
	Width, Height        int
	Format               string
	ExtractedPath        string
	ContentHash          string
	BlockType            string
	IsHeaderFooter       bool
	VLMStatus            string // pending, processing, complete, failed, skipped-complete
	VLMDescription       *string
	VLMStructuredData    *string // JSON
	VLMEmbeddingID       *string
	VLMConfidence        *float64
	VLMTokensUsed        *int
	ProcessingStartedAt  *time.Time
	CreatedAt            time.Time
}

const (
	VLMStatusPending         = "pending"
	VLMStatusProcessing      = "processing"
	VLMStatusComplete        = "complete"
	VLMStatusFailed          = "failed"
	VLMStatusSkippedComplete = "skipped-complete"
)

// Embedding is a row in the embeddings table. Exactly one of
// ChunkID/ImageID/ExtractionID is non-nil.
type Embedding struct {
	ID             string
	ProvenanceID   string
	ChunkID        *string
	ImageID        *string
	ExtractionID   *string
	OriginalText   string
	SourceFilePath string
	SourceFileName string
	SourceFileHash string
	PageNumber     *int
	CharacterStart *int
	CharacterEnd   *int
	ChunkIndex     *int
	TotalChunks    *int
	ModelName      string
	ModelVersion   string
	TaskType       string // search_document, search_query
	InferenceMode  string // must be "local"
	Device         string
	ContentHash    string
	CreatedAt      time.Time
}

const (
	TaskTypeSearchDocument = "search_document"
	TaskTypeSearchQuery    = "search_query"
)

// Extraction is a row in the extractions table.
type Extraction struct {
	ID             string
	DocumentID     string
	ProvenanceID   string
	SchemaJSON     string
	ExtractionJSON string
	CreatedAt      time.Time
}

// FormFill is a row in the form_fills table.
type FormFill struct {
	ID             string
	ProvenanceID   string
	SourceFilePath string
	SourceFileHash string
	FieldDataJSON  string
	Status         string // pending, processing, complete, failed
	FieldsFilled   []string
	FieldsNotFound []string
	CreatedAt      time.Time
}

// Comparison is a row in the comparisons table.
type Comparison struct {
	ID                 string
	ProvenanceID       string
	DocumentID1        string
	DocumentID2        string
	SimilarityRatio    *float64
	TextDiffJSON       string
	StructuralDiffJSON string
	Summary            string
	CreatedAt          time.Time
}

// Clustering is a row in the clusterings table.
type Clustering struct {
	ID             string
	ProvenanceID   string
	RunID          string
	ClusterIndex   int
	CentroidJSON   string
	TopTerms       []string
	CoherenceScore *float64
	Algorithm      string
	Params         string // JSON
	Silhouette     *float64
	CreatedAt      time.Time
}

// SavedSearch is a row in the saved_searches table. Outside the provenance
// graph.
type SavedSearch struct {
	ID        string
	Name      string
	QueryJSON string
	CreatedAt time.Time
}

// Tag is a row in the tags table.
type Tag struct {
	ID   string
	Name string
}

// EntityTag is a row in entity_tags, a tag applied to an arbitrary entity.
type EntityTag struct {
	TagID      string
	EntityID   string
	EntityKind string
}

// User is a row in the users table.
type User struct {
	ID          string
	DisplayName string
	Email       *string
	CreatedAt   time.Time
}

// AuditLogEntry is a row in audit_log.
type AuditLogEntry struct {
	ID         string
	UserID     *string
	Action     string
	EntityKind *string
	EntityID   *string
	Details    *string // JSON
	CreatedAt  time.Time
}

// Annotation is a row in the annotations table.
type Annotation struct {
	ID         string
	DocumentID string
	UserID     *string
	Body       string
	AnchorJSON *string
	CreatedAt  time.Time
}

// DocumentLock is a row in document_locks, one per locked document.
type DocumentLock struct {
	DocumentID string
	LockedBy   *string
	LockedAt   time.Time
	Reason     *string
}

// WorkflowState is a row in workflow_states, a history entry of a
// document's position in a review/approval workflow.
type WorkflowState struct {
	ID         string
	DocumentID string
	State      string
	EnteredAt  time.Time
}

// ApprovalChain is a row in approval_chains.
type ApprovalChain struct {
	ID         string
	DocumentID string
	Name       string
	Status     string // pending, approved, rejected
	CreatedAt  time.Time
}

// ApprovalStep is a row in approval_steps.
type ApprovalStep struct {
	ID              string
	ApprovalChainID string
	StepIndex       int
	ApproverID      *string
	Status          string // pending, approved, rejected
	DecidedAt       *time.Time
}

// Obligation is a row in obligations — a tracked follow-up duty tied to a
// document (e.g. a compliance deadline).
type Obligation struct {
	ID          string
	DocumentID  string
	Description string
	DueAt       *time.Time
	Status      string // open, complete, overdue
	CreatedAt   time.Time
}

// Playbook is a row in playbooks — a named, reusable workflow definition.
type Playbook struct {
	ID             string
	Name           string
	DefinitionJSON string
	CreatedAt      time.Time
}

// Webhook is a row in webhooks.
type Webhook struct {
	ID          string
	URL         string
	EventFilter []string
	Secret      *string
	CreatedAt   time.Time
}
