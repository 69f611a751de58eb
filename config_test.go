package veridoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/veridoc-core/external"
)

func TestDefaultConfig_MatchesDocumentedDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, external.OCRModeBalanced, cfg.DefaultOCRMode)
	assert.Equal(t, 3, cfg.MaxConcurrent)
	assert.Equal(t, 32, cfg.EmbeddingBatchSize)
	assert.True(t, cfg.ImageOptimization.OptimizationEnabled)
	assert.NotEmpty(t, cfg.DefaultStoragePath)
	require.NoError(t, cfg.Validate())
}

func TestConfig_LoadEnv_WhitespaceOnlyKeyIsUnset(t *testing.T) {
	t.Setenv("OCR_API_KEY", "   ")
	t.Setenv("VLM_API_KEY", "sk-real-key")

	cfg, err := DefaultConfig().LoadEnv()
	require.NoError(t, err)
	assert.Empty(t, cfg.OCRAPIKey)
	assert.Equal(t, "sk-real-key", cfg.VLMAPIKey)
}

func TestConfig_LoadEnv_NonIntegerMaxOutputTokensFailsFast(t *testing.T) {
	t.Setenv("LLM_MAX_OUTPUT_TOKENS", "not-a-number")

	_, err := DefaultConfig().LoadEnv()
	require.Error(t, err)
	cat, ok := CategoryOf(err)
	require.True(t, ok)
	assert.Equal(t, CategoryValidation, cat)
}

func TestConfig_LoadEnv_IntegerMaxOutputTokens(t *testing.T) {
	t.Setenv("LLM_MAX_OUTPUT_TOKENS", "4096")

	cfg, err := DefaultConfig().LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.LLMMaxOutputTokens)
}

func TestConfig_Validate_RejectsOutOfRangeOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrent = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.EmbeddingBatchSize = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.DefaultOCRMode = "slow"
	require.Error(t, cfg.Validate())
}
