// Package errs holds the structured error taxonomy shared across every
// layer of the pipeline. It is a leaf package (no internal imports) so that
// both the root veridoc package and the packages it orchestrates (embedding,
// provenance, ...) can construct the same error shape without an import
// cycle back through the root package.
package errs

import "fmt"

// Category is a machine-readable error kind. It is a kind,
// not a Go type — every Error carries one regardless of which package raised
// it, so callers can switch on failure mode without type assertions.
type Category string

const (
	CategoryValidation            Category = "validation_error"
	CategoryDatabaseNotSelected   Category = "database_not_selected"
	CategoryDatabaseNotFound      Category = "database_not_found"
	CategoryDatabaseAlreadyExists Category = "database_already_exists"
	CategoryDocumentNotFound      Category = "document_not_found"
	CategoryProvenanceNotFound    Category = "provenance_not_found"
	CategoryProvenanceChainBroken Category = "provenance_chain_broken"
	CategoryIntegrityVerifyFailed Category = "integrity_verification_failed"
	CategoryOCRAPIError           Category = "ocr_api_error"
	CategoryOCRRateLimit          Category = "ocr_rate_limit"
	CategoryOCRTimeout            Category = "ocr_timeout"
	CategoryGPUNotAvailable       Category = "gpu_not_available"
	CategoryGPUOutOfMemory        Category = "gpu_out_of_memory"
	CategoryEmbeddingFailed       Category = "embedding_failed"
	CategoryEmbeddingModelError   Category = "embedding_model_error"
	CategoryVLMAPIError           Category = "vlm_api_error"
	CategoryVLMRateLimit          Category = "vlm_rate_limit"
	CategoryPathNotFound          Category = "path_not_found"
	CategoryPathNotDirectory      Category = "path_not_directory"
	CategoryPermissionDenied      Category = "permission_denied"
	CategoryInternal              Category = "internal_error"
)

// recoveryHints maps each category to the next operation a caller should
// try.
var recoveryHints = map[Category]string{
	CategoryValidation:            "check the argument shape against the operation's documented fields and retry",
	CategoryDatabaseNotSelected:   "list databases then select one",
	CategoryDatabaseNotFound:      "list databases then select an existing one, or create it",
	CategoryDatabaseAlreadyExists: "select the existing database instead of creating it",
	CategoryDocumentNotFound:      "list documents for the selected database and retry with a valid id",
	CategoryProvenanceNotFound:    "confirm the provenance id belongs to the selected database",
	CategoryProvenanceChainBroken: "run the verifier over the affected chain before retrying",
	CategoryIntegrityVerifyFailed: "treat the record's derived artifact as untrusted; re-run the producing step",
	CategoryOCRAPIError:           "retry the OCR submission; if it persists, check OCR_API_KEY",
	CategoryOCRRateLimit:          "back off and retry after the provider's Retry-After window",
	CategoryOCRTimeout:            "retry with a shorter document or a faster provider_mode",
	CategoryGPUNotAvailable:       "set embedding_device to a CPU-capable device or install GPU drivers",
	CategoryGPUOutOfMemory:        "reduce embedding_batch_size and retry",
	CategoryEmbeddingFailed:       "retry the embedding sub-batch; if it persists, inspect the worker's stderr",
	CategoryEmbeddingModelError:   "verify the embedding worker's model files are installed",
	CategoryVLMAPIError:           "retry the VLM request; if it persists, check VLM_API_KEY",
	CategoryVLMRateLimit:          "back off and retry after the provider's Retry-After window",
	CategoryPathNotFound:          "verify the path exists before retrying",
	CategoryPathNotDirectory:      "pass a directory path, not a file path",
	CategoryPermissionDenied:      "check file permissions or run with access to the storage path",
	CategoryInternal:              "retry; if it persists, file a bug with the operation and inputs",
}

// Error is the structured error value every operation returns across
// component boundaries.
type Error struct {
	Category     Category
	Message      string
	RecoveryHint string
	Details      map[string]any
	cause        error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Category)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError constructs a structured error with the recovery hint looked up
// for category. Use WithCause/WithDetails to attach wrapped errors or
// machine-readable context.
func NewError(category Category, message string) *Error {
	return &Error{
		Category:     category,
		Message:      message,
		RecoveryHint: recoveryHints[category],
	}
}

// WithCause attaches an underlying error for %w-style unwrapping.
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}

// WithDetails attaches machine-readable context.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// Errorf constructs a structured error with a formatted message.
func Errorf(category Category, format string, args ...any) *Error {
	return NewError(category, fmt.Sprintf(format, args...))
}

// CategoryOf extracts the category from err if it is (or wraps) a *Error,
// returning (CategoryInternal, false) otherwise.
func CategoryOf(err error) (Category, bool) {
	var ve *Error
	if ok := asError(err, &ve); ok {
		return ve.Category, true
	}
	return CategoryInternal, false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if ve, ok := err.(*Error); ok {
			*target = ve
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
