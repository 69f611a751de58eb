package veridoc

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/veridoc/veridoc-core/external"
	"github.com/veridoc/veridoc-core/vlmpipe"
)

// Config is a process-wide, immutable snapshot of the recognized
// configuration options. Updates are reference replacements (a caller
// builds a new Config and hands it to Session.Configure) rather than field
// mutations, so any operation mid-flight keeps reading the snapshot it
// started with.
type Config struct {
	// DefaultOCRMode is the OCR speed/quality tradeoff used when a caller
	// does not pass one explicitly.
	DefaultOCRMode external.OCRMode

	// MaxConcurrent bounds external pipeline concurrency (OCR submissions,
	// VLM batches, extraction calls). Must be >= 1.
	MaxConcurrent int

	// EmbeddingBatchSize is the default sub-batch size handed to the local
	// embedding worker. Must be >= 1.
	EmbeddingBatchSize int

	// EmbeddingDevice overrides the worker's device auto-detection when
	// non-empty (e.g. "cuda", "mps", "cpu").
	EmbeddingDevice string

	// ImageOptimization tunes the VLM relevance filter and resize policy.
	ImageOptimization vlmpipe.Config

	// DefaultStoragePath is the directory new databases are created under
	// when a caller does not supply an absolute path to Session.Create.
	DefaultStoragePath string

	// OCRAPIKey / VLMAPIKey are resolved once at startup from OCR_API_KEY /
	// VLM_API_KEY; a whitespace-only environment value is treated as unset.
	OCRAPIKey string
	VLMAPIKey string

	// LLMMaxOutputTokens is resolved from LLM_MAX_OUTPUT_TOKENS. Zero means
	// unset (the caller's LLM client applies its own default).
	LLMMaxOutputTokens int
}

// DefaultConfig returns the documented defaults for every recognized
// option, storage path resolved to the OS-specific user data directory.
func DefaultConfig() Config {
	return Config{
		DefaultOCRMode:     external.OCRModeBalanced,
		MaxConcurrent:      3,
		EmbeddingBatchSize: 32,
		ImageOptimization:  vlmpipe.DefaultConfig(),
		DefaultStoragePath: defaultStoragePath(),
	}
}

// defaultStoragePath resolves the OS-specific user data directory
// (os.UserConfigDir, falling back to the working directory), namespaced
// under "veridoc" the way the database files it holds are namespaced.
func defaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "veridoc"
	}
	return filepath.Join(dir, "veridoc")
}

// LoadEnv resolves OCR_API_KEY, VLM_API_KEY, and LLM_MAX_OUTPUT_TOKENS from
// the process environment into cfg, per §6's environment variable rules: a
// whitespace-only key value is equivalent to unset, and a non-integer
// LLM_MAX_OUTPUT_TOKENS fails fast rather than silently falling back to the
// zero value.
func (cfg Config) LoadEnv() (Config, error) {
	cfg.OCRAPIKey = nonBlankEnv("OCR_API_KEY")
	cfg.VLMAPIKey = nonBlankEnv("VLM_API_KEY")

	if raw, ok := os.LookupEnv("LLM_MAX_OUTPUT_TOKENS"); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return cfg, NewError(CategoryValidation,
				fmt.Sprintf("LLM_MAX_OUTPUT_TOKENS must be an integer, got %q", raw)).WithCause(err)
		}
		cfg.LLMMaxOutputTokens = n
	}
	return cfg, nil
}

func nonBlankEnv(name string) string {
	v := os.Getenv(name)
	if strings.TrimSpace(v) == "" {
		return ""
	}
	return v
}

// Validate checks the numeric options' documented lower bounds.
func (cfg Config) Validate() error {
	if cfg.MaxConcurrent < 1 {
		return Errorf(CategoryValidation, "max_concurrent must be >= 1, got %d", cfg.MaxConcurrent)
	}
	if cfg.EmbeddingBatchSize < 1 {
		return Errorf(CategoryValidation, "embedding_batch_size must be >= 1, got %d", cfg.EmbeddingBatchSize)
	}
	switch cfg.DefaultOCRMode {
	case external.OCRModeFast, external.OCRModeBalanced, external.OCRModeAccurate:
	default:
		return Errorf(CategoryValidation, "default_ocr_mode must be fast, balanced, or accurate, got %q", cfg.DefaultOCRMode)
	}
	return nil
}
