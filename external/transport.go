package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultMaxRetries        = 6
	defaultBaseRetryDelay    = 2 * time.Second
	defaultMinRateLimitDelay = 5 * time.Second
	defaultRequestTimeout    = 120 * time.Second
)

// httpTransport is the shared retrying HTTP core for any OCRClient/VLMClient/
// ExtractionClient adapter that talks to a provider over HTTP. It owns
// backoff, Retry-After honoring, and the retryable-status-code set so every
// adapter behaves identically under rate limiting and transient failures.
type httpTransport struct {
	baseURL string
	apiKey  string
	client  *http.Client

	maxRetries        int
	baseRetryDelay    time.Duration
	minRateLimitDelay time.Duration
}

// newHTTPTransport builds a transport pointed at baseURL, authenticating
// with apiKey (sent as a Bearer token) when non-empty.
func newHTTPTransport(baseURL, apiKey string) *httpTransport {
	return &httpTransport{
		baseURL:           baseURL,
		apiKey:            apiKey,
		client:            &http.Client{Timeout: defaultRequestTimeout},
		maxRetries:        defaultMaxRetries,
		baseRetryDelay:    defaultBaseRetryDelay,
		minRateLimitDelay: defaultMinRateLimitDelay,
	}
}

// retryableStatusCode reports whether code warrants a retry rather than an
// immediate failure.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

// postJSON marshals body, POSTs it to t.baseURL+path, and returns the
// response bytes on a 200. Transient failures (network errors, and the
// retryable status codes) are retried with exponential backoff; a 429
// additionally honors the response's Retry-After header when it asks for
// longer than the computed backoff. Non-retryable statuses return
// immediately wrapped as an *Error with Kind=ErrorAPIError.
func (t *httpTransport) postJSON(ctx context.Context, path string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("external: marshaling request: %w", err)
	}

	url := t.baseURL + path

	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			delay := t.baseRetryDelay * time.Duration(1<<(attempt-1))
			slog.Warn("external: retrying request",
				"url", url,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr,
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if t.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+t.apiKey)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request to %s failed: %w", url, err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading response body: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return respBody, nil
		}

		lastErr = fmt.Errorf("external API error %d: %s", resp.StatusCode, string(respBody))

		if !retryableStatusCode(resp.StatusCode) {
			return nil, NewError(ErrorAPIError, lastErr.Error(), lastErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			rateLimitDelay := t.minRateLimitDelay * time.Duration(1<<attempt)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
					headerDelay := time.Duration(seconds) * time.Second
					if headerDelay > rateLimitDelay {
						rateLimitDelay = headerDelay
					}
				}
			}
			slog.Warn("external: rate limited, waiting before retry",
				"url", url,
				"attempt", attempt+1,
				"delay", rateLimitDelay,
			)
			select {
			case <-time.After(rateLimitDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, NewError(ErrorRateLimit, fmt.Sprintf("max retries exceeded: %v", lastErr), lastErr)
}
