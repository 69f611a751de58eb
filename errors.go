// Package veridoc is the top-level entry point: session/database selection
// (config.go, session.go) and whole-document ingest orchestration
// (engine.go) over the store/chunker/embedding/vlmpipe/provenance/external
// packages. The structured error taxonomy every operation returns lives in
// the leaf package errs and is re-exported here under its original names,
// since embedding and provenance both construct errs.Error values directly
// and importing this package from them would cycle back through engine.go.
package veridoc

import "github.com/veridoc/veridoc-core/errs"

type Category = errs.Category

const (
	CategoryValidation            = errs.CategoryValidation
	CategoryDatabaseNotSelected   = errs.CategoryDatabaseNotSelected
	CategoryDatabaseNotFound      = errs.CategoryDatabaseNotFound
	CategoryDatabaseAlreadyExists = errs.CategoryDatabaseAlreadyExists
	CategoryDocumentNotFound      = errs.CategoryDocumentNotFound
	CategoryProvenanceNotFound    = errs.CategoryProvenanceNotFound
	CategoryProvenanceChainBroken = errs.CategoryProvenanceChainBroken
	CategoryIntegrityVerifyFailed = errs.CategoryIntegrityVerifyFailed
	CategoryOCRAPIError           = errs.CategoryOCRAPIError
	CategoryOCRRateLimit          = errs.CategoryOCRRateLimit
	CategoryOCRTimeout            = errs.CategoryOCRTimeout
	CategoryGPUNotAvailable       = errs.CategoryGPUNotAvailable
	CategoryGPUOutOfMemory        = errs.CategoryGPUOutOfMemory
	CategoryEmbeddingFailed       = errs.CategoryEmbeddingFailed
	CategoryEmbeddingModelError   = errs.CategoryEmbeddingModelError
	CategoryVLMAPIError           = errs.CategoryVLMAPIError
	CategoryVLMRateLimit          = errs.CategoryVLMRateLimit
	CategoryPathNotFound          = errs.CategoryPathNotFound
	CategoryPathNotDirectory      = errs.CategoryPathNotDirectory
	CategoryPermissionDenied      = errs.CategoryPermissionDenied
	CategoryInternal              = errs.CategoryInternal
)

// Error is the structured error value every operation returns across
// component boundaries.
type Error = errs.Error

// NewError constructs a structured error with the recovery hint looked up
// for category. Use WithCause/WithDetails to attach wrapped errors or
// machine-readable context.
func NewError(category Category, message string) *Error {
	return errs.NewError(category, message)
}

// Errorf constructs a structured error with a formatted message.
func Errorf(category Category, format string, args ...any) *Error {
	return errs.Errorf(category, format, args...)
}

// CategoryOf extracts the category from err if it is (or wraps) a *Error,
// returning (CategoryInternal, false) otherwise.
func CategoryOf(err error) (Category, bool) {
	return errs.CategoryOf(err)
}
