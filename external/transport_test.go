package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJSON_SuccessOnFirstTry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tr := newHTTPTransport(srv.URL, "secret")
	body, err := tr.postJSON(context.Background(), "/submit", map[string]string{"a": "b"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestPostJSON_NonRetryableStatusFailsImmediately(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	tr := newHTTPTransport(srv.URL, "")
	tr.baseRetryDelay = time.Millisecond
	_, err := tr.postJSON(context.Background(), "/submit", map[string]string{})
	require.Error(t, err)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, ErrorAPIError, apiErr.Kind)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestPostJSON_RetriesTransientStatusThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tr := newHTTPTransport(srv.URL, "")
	tr.baseRetryDelay = time.Millisecond
	tr.minRateLimitDelay = time.Millisecond
	body, err := tr.postJSON(context.Background(), "/submit", map[string]string{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestPostJSON_ExhaustsRetriesReturnsRateLimitError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tr := newHTTPTransport(srv.URL, "")
	tr.maxRetries = 1
	tr.baseRetryDelay = time.Millisecond
	tr.minRateLimitDelay = time.Millisecond
	_, err := tr.postJSON(context.Background(), "/submit", map[string]string{})
	require.Error(t, err)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, ErrorRateLimit, apiErr.Kind)
}

func TestPostJSON_ContextCancellationStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	tr := newHTTPTransport(srv.URL, "")
	tr.baseRetryDelay = 50 * time.Millisecond
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := tr.postJSON(ctx, "/submit", map[string]string{})
	require.Error(t, err)
}

func TestError_ErrorAndUnwrap(t *testing.T) {
	cause := assert.AnError
	err := NewError(ErrorTimeout, "timed out", cause)
	assert.Equal(t, "timeout: timed out", err.Error())
	assert.ErrorIs(t, err, cause)
}
