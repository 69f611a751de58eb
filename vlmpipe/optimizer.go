// Package vlmpipe drives vision-language description of extracted images:
// the pending/processing/complete state machine, the relevance filter that
// keeps obviously uninteresting images from burning VLM tokens, and the
// sequential batch policy with exponential backoff over a claimed set.
package vlmpipe

import (
	"context"
	"time"
)

// RelevanceAssessment is the optimizer's verdict on whether an image is
// worth describing, beyond the quick dimension/aspect checks the pipeline
// runs itself without any local image decoding.
type RelevanceAssessment struct {
	Skip   bool
	Reason string
}

// Optimizer performs local, non-network image work: the color/diversity
// relevance heuristic and resizing oversized images ahead of inference.
// Implementations decode the image on disk; none of that belongs in this
// package's own logic.
type Optimizer interface {
	// AssessRelevance judges whether imagePath is worth describing. An
	// error is treated the same as Skip=true by the caller.
	AssessRelevance(ctx context.Context, imagePath string, minRelevance float64) (RelevanceAssessment, error)

	// Resize writes a scaled copy of imagePath so max(width, height) <=
	// maxDim and returns its path. The caller removes the returned file
	// once inference over it is done.
	Resize(ctx context.Context, imagePath string, maxDim int) (string, error)
}

// Config tunes the relevance filter and the batch backoff policy.
type Config struct {
	OptimizationEnabled bool
	MaxDimension        int     // resize images whose longest side exceeds this
	SkipBelowSize       int     // images with max(w,h) under this are skipped outright
	MinRelevance        float64 // passed through to the optimizer's relevance call
	SkipLogosIcons      bool    // apply the <100px "likely icon" heuristic

	MinConfidence float64 // below this, a result is kept but logged
	Embed         bool    // also embed the description text once produced

	BackoffSeed            time.Duration
	BackoffCap             time.Duration
	MaxConsecutiveFailures int
	StuckThreshold         time.Duration // processing images older than this are reset to pending before a batch
}

// DefaultConfig mirrors the documented defaults for image_optimization.*.
func DefaultConfig() Config {
	return Config{
		OptimizationEnabled:    true,
		MaxDimension:           1568,
		SkipBelowSize:          32,
		MinRelevance:           0.3,
		SkipLogosIcons:         true,
		MinConfidence:          0.5,
		Embed:                  true,
		BackoffSeed:            100 * time.Millisecond,
		BackoffCap:             32 * time.Second,
		MaxConsecutiveFailures: 5,
		StuckThreshold:         30 * time.Minute,
	}
}

// quickDimensionSkip applies the cheap, decode-free relevance checks: an
// absolute size floor, the icon heuristic, and an extreme aspect ratio
// cutoff. Order matters — the first matching reason wins.
func quickDimensionSkip(cfg Config, width, height int) (bool, string) {
	maxDim, minDim := width, width
	if height > maxDim {
		maxDim = height
	}
	if height < minDim {
		minDim = height
	}

	if cfg.SkipBelowSize > 0 && maxDim < cfg.SkipBelowSize {
		return true, "below configured size floor"
	}
	if cfg.SkipLogosIcons && maxDim < 100 {
		return true, "likely icon"
	}
	if minDim > 0 && float64(maxDim)/float64(minDim) > 6.0 {
		return true, "extreme aspect ratio"
	}
	return false, ""
}
