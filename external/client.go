// Package external declares the narrow interfaces the core consumes for
// everything that leaves the process: OCR submission, VLM image
// description, and schema-driven extraction over an LLM. None of these
// interfaces are implemented here — callers inject a concrete adapter (HTTP,
// subprocess, or an in-memory fake for tests) — but the shared retrying
// transport any HTTP-backed adapter needs lives in this package so every
// adapter gets the same backoff and retry behavior.
package external

import (
	"context"

	"github.com/veridoc/veridoc-core/chunker"
)

// OCRMode selects the provider's speed/quality tradeoff.
type OCRMode string

const (
	OCRModeFast     OCRMode = "fast"
	OCRModeBalanced OCRMode = "balanced"
	OCRModeAccurate OCRMode = "accurate"
)

// OCRRequest is one document submission.
type OCRRequest struct {
	FileBytes []byte
	Mode      OCRMode
}

// OCRResult is what a provider returns for a submitted document.
type OCRResult struct {
	RequestID     string
	ExtractedText string
	BlockTree     chunker.BlockTree
	PageCount     int
	QualityScore  float64
	DurationMS    int64
	CostCents     *float64
}

// OCRClient submits a document for OCR. Implementations return an *Error
// (see Errors below) categorized as APIError, RateLimit, or Timeout so the
// core can map failures to its own error taxonomy without inspecting
// provider-specific detail.
type OCRClient interface {
	Submit(ctx context.Context, req OCRRequest) (*OCRResult, error)
}

// VLMAnalysis is the structured side of a VLM description.
type VLMAnalysis struct {
	ImageType      string
	PrimarySubject string
	ExtractedText  []string
	Dates          []string
	Names          []string
	Numbers        []string
	Paragraph1     string
	Paragraph2     string
	Paragraph3     string
	Confidence     float64
}

// VLMRequest describes one image to send to the VLM service.
type VLMRequest struct {
	ImagePath      string
	ContextText    string
	UniversalPrompt bool
}

// VLMResult is what the VLM service returns for one image.
type VLMResult struct {
	Description string
	Analysis    VLMAnalysis
	TokensUsed  int
	Model       string
	DurationMS  int64
}

// VLMClient describes an image through an external vision-language model.
type VLMClient interface {
	Describe(ctx context.Context, req VLMRequest) (*VLMResult, error)
}

// ExtractionRequest asks for a schema-shaped structured pull over text.
type ExtractionRequest struct {
	Text       string
	SchemaJSON string
}

// ExtractionResult is the structured pull's output, already JSON-encoded
// against the caller's schema, plus usage for cost accounting.
type ExtractionResult struct {
	ExtractionJSON string
	Model          string
	PromptTokens   int
	CompletionTokens int
	DurationMS     int64
}

// ExtractionClient runs a schema-driven structured extraction over a
// document's OCR text through an LLM.
type ExtractionClient interface {
	Extract(ctx context.Context, req ExtractionRequest) (*ExtractionResult, error)
}

// ErrorKind distinguishes the handful of ways a consumed external call can
// fail, independent of transport detail.
type ErrorKind string

const (
	ErrorAPIError  ErrorKind = "api_error"
	ErrorRateLimit ErrorKind = "rate_limit"
	ErrorTimeout   ErrorKind = "timeout"
)

// Error is the error shape every OCRClient/VLMClient/ExtractionClient
// implementation should return on failure, so callers can switch on Kind
// without depending on the underlying transport's error types.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// NewError builds an Error wrapping cause.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}
