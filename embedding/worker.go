// Package embedding drives the local embedding subprocess worker: batching,
// timeout/kill escalation, output parsing, and the document/query embedding
// operations that persist results through store and provenance.
package embedding

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/veridoc/veridoc-core/errs"
)

const (
	workerTimeout     = 5 * time.Minute
	terminateGrace    = 5 * time.Second
	stderrCapBytes    = 10 * 1024
	expectedVectorDim = 768
)

// WorkerConfig points at the embedding subprocess and its default
// invocation parameters. BatchSize and Device may be overridden per call by
// process-wide config.
type WorkerConfig struct {
	Command   string
	BatchSize int
	Device    string
}

// Worker invokes the local embedding subprocess for batches of text and for
// single queries.
type Worker struct {
	cfg WorkerConfig
}

// NewWorker builds a Worker from cfg, defaulting BatchSize to 32 if unset.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	return &Worker{cfg: cfg}
}

// workerResult is the JSON object the subprocess emits on its last
// parseable stdout line.
type workerResult struct {
	Success    bool        `json:"success"`
	Embeddings [][]float32 `json:"embeddings"`
	Count      int         `json:"count"`
	ElapsedMS  int64       `json:"elapsed_ms"`
	Device     string      `json:"device"`
	Error      string      `json:"error"`
}

// EmbedBatch runs one subprocess invocation over texts in --stdin mode and
// validates every returned vector is expectedVectorDim-wide. deviceOverride
// and batchSizeOverride let process-wide config win over the worker's
// defaults; pass "" / 0 to use the worker's configured values.
func (w *Worker) EmbedBatch(ctx context.Context, texts []string, deviceOverride string, batchSizeOverride int) ([][]float32, error) {
	args := []string{"--stdin", "--batch-size", fmt.Sprint(resolveBatchSize(w.cfg.BatchSize, batchSizeOverride)), "--json"}
	if d := resolveDevice(w.cfg.Device, deviceOverride); d != "" {
		args = append(args, "--device", d)
	}

	input, err := json.Marshal(texts)
	if err != nil {
		return nil, errs.NewError(errs.CategoryEmbeddingFailed, "marshaling worker input").WithCause(err)
	}

	result, err := w.run(ctx, args, input)
	if err != nil {
		return nil, err
	}
	if len(result.Embeddings) != len(texts) {
		return nil, errs.Errorf(errs.CategoryEmbeddingFailed,
			"worker returned %d vectors for %d inputs", len(result.Embeddings), len(texts))
	}
	for i, vec := range result.Embeddings {
		if len(vec) != expectedVectorDim {
			return nil, errs.Errorf(errs.CategoryEmbeddingFailed,
				"vector %d has dimension %d, want %d", i, len(vec), expectedVectorDim)
		}
	}
	return result.Embeddings, nil
}

// EmbedQuery runs one subprocess invocation in --query mode, returning the
// single resulting vector.
func (w *Worker) EmbedQuery(ctx context.Context, text, device string) ([]float32, error) {
	args := []string{"--query", text, "--json"}
	if d := resolveDevice(w.cfg.Device, device); d != "" {
		args = append(args, "--device", d)
	}

	result, err := w.run(ctx, args, nil)
	if err != nil {
		return nil, err
	}
	if len(result.Embeddings) != 1 {
		return nil, errs.Errorf(errs.CategoryEmbeddingFailed,
			"worker returned %d vectors for a single query", len(result.Embeddings))
	}
	if len(result.Embeddings[0]) != expectedVectorDim {
		return nil, errs.Errorf(errs.CategoryEmbeddingFailed,
			"query vector has dimension %d, want %d", len(result.Embeddings[0]), expectedVectorDim)
	}
	return result.Embeddings[0], nil
}

func resolveBatchSize(configured, override int) int {
	if override > 0 {
		return override
	}
	return configured
}

func resolveDevice(configured, override string) string {
	if override != "" {
		return override
	}
	return configured
}

// run spawns the worker, feeds stdin, waits up to workerTimeout, and on
// expiry sends SIGTERM followed by SIGKILL after terminateGrace if the
// process has not exited. stderr is capped at stderrCapBytes.
func (w *Worker) run(ctx context.Context, args []string, stdin []byte) (*workerResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, workerTimeout)
	defer cancel()

	// exec.Command rather than CommandContext: CommandContext would SIGKILL
	// the process as soon as runCtx expires, pre-empting the SIGTERM grace
	// period handled below.
	cmd := exec.Command(w.cfg.Command, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout bytes.Buffer
	stderr := newCappedBuffer(stderrCapBytes)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, errs.NewError(errs.CategoryEmbeddingFailed, "starting embedding worker").WithCause(err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-runCtx.Done():
		_ = cmd.Process.Signal(syscall.SIGTERM)
		select {
		case waitErr = <-done:
		case <-time.After(terminateGrace):
			_ = cmd.Process.Kill()
			waitErr = <-done
		}
		return nil, errs.Errorf(errs.CategoryEmbeddingFailed,
			"embedding worker timed out after %s: %v", workerTimeout, waitErr)
	}

	if waitErr != nil {
		return nil, classifyWorkerFailure(waitErr, stderr.String())
	}

	return parseWorkerOutput(stdout.String())
}

// classifyWorkerFailure maps a non-zero worker exit onto the taxonomy's
// narrower embedding categories using its stderr text.
func classifyWorkerFailure(cause error, stderrText string) error {
	switch {
	case strings.Contains(stderrText, "gpu_not_available"):
		return errs.NewError(errs.CategoryGPUNotAvailable, "embedding worker: GPU unavailable").WithCause(cause)
	case strings.Contains(stderrText, "model_not_found"):
		return errs.NewError(errs.CategoryEmbeddingModelError, "embedding worker: model not found").WithCause(cause)
	default:
		return errs.NewError(errs.CategoryEmbeddingFailed, "embedding worker exited with an error").
			WithCause(cause).WithDetails(map[string]any{"stderr": stderrText})
	}
}

// parseWorkerOutput scans stdout lines from last to first for the first one
// that parses as a workerResult object, tolerating leading noise a model
// framework may print to stdout before the JSON result.
func parseWorkerOutput(stdout string) (*workerResult, error) {
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || line[0] != '{' {
			continue
		}
		var r workerResult
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			continue
		}
		if !r.Success {
			if r.Error == "gpu_not_available" {
				return nil, errs.NewError(errs.CategoryGPUNotAvailable, "embedding worker reported GPU unavailable")
			}
			if r.Error == "model_not_found" {
				return nil, errs.NewError(errs.CategoryEmbeddingModelError, "embedding worker reported missing model")
			}
			return nil, errs.Errorf(errs.CategoryEmbeddingFailed, "embedding worker reported failure: %s", r.Error)
		}
		return &r, nil
	}
	return nil, errs.NewError(errs.CategoryEmbeddingFailed, "no parseable result line in worker output")
}

// cappedBuffer caps the number of bytes retained from a stream, dropping
// anything beyond the limit rather than growing unbounded on a chatty
// worker.
type cappedBuffer struct {
	limit int
	buf   bytes.Buffer
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	remaining := c.limit - c.buf.Len()
	if remaining > 0 {
		if len(p) > remaining {
			c.buf.Write(p[:remaining])
		} else {
			c.buf.Write(p)
		}
	}
	return len(p), nil
}

func (c *cappedBuffer) String() string { return c.buf.String() }
