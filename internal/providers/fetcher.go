// ABOUTME: Shared HTTP fetcher for third-party data providers
// ABOUTME: Rate limits outbound calls, retries 503s and connection errors, and parses bodies with gjson

package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// ErrInvalidJSON is returned when a provider answers with a body that is not JSON.
var ErrInvalidJSON = errors.New("provider returned invalid JSON")

// maxBodyBytes caps how much of a provider response is read.
const maxBodyBytes = 8 << 20

// HTTPError is a non-2xx provider response.
type HTTPError struct {
	URL    string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.URL, e.Status, truncate(e.Body, 200))
}

// Fetcher performs rate-limited JSON requests.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	retries   int
	backoff   time.Duration
	userAgent string
	logger    *slog.Logger
}

// NewFetcher creates a fetcher. requestsPerSecond <= 0 disables rate limiting.
func NewFetcher(timeout time.Duration, requestsPerSecond float64, logger *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(limit, 1),
		retries:   3,
		backoff:   time.Second,
		userAgent: "agentdesk/1.0",
		logger:    logger.With("component", "providers"),
	}
}

// GetJSON issues a GET with the query params and returns the parsed body.
func (f *Fetcher) GetJSON(ctx context.Context, rawURL string, params url.Values, decorate func(*http.Request)) (gjson.Result, error) {
	if len(params) > 0 {
		rawURL += "?" + params.Encode()
	}
	return f.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		if decorate != nil {
			decorate(req)
		}
		return req, nil
	})
}

// PostJSON issues a POST with payload encoded as JSON and returns the parsed body.
func (f *Fetcher) PostJSON(ctx context.Context, rawURL string, payload any) (gjson.Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("encoding request: %w", err)
	}
	return f.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
}

func (f *Fetcher) do(ctx context.Context, build func() (*http.Request, error)) (gjson.Result, error) {
	var lastErr error
	for attempt := 0; attempt < f.retries; attempt++ {
		if attempt > 0 {
			wait := f.backoff << (attempt - 1)
			f.logger.Warn("retrying provider request", "attempt", attempt+1, "wait", wait, "error", lastErr)
			select {
			case <-ctx.Done():
				return gjson.Result{}, ctx.Err()
			case <-time.After(wait):
			}
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return gjson.Result{}, fmt.Errorf("rate limiter: %w", err)
		}

		req, err := build()
		if err != nil {
			return gjson.Result{}, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", f.userAgent)

		result, retry, err := f.once(req)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			return gjson.Result{}, err
		}
	}
	return gjson.Result{}, fmt.Errorf("giving up after %d attempts: %w", f.retries, lastErr)
}

// once performs a single request and reports whether a failure is worth retrying.
func (f *Fetcher) once(req *http.Request) (gjson.Result, bool, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return gjson.Result{}, true, fmt.Errorf("requesting %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return gjson.Result{}, true, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := &HTTPError{URL: req.URL.Scheme + "://" + req.URL.Host + req.URL.Path, Status: resp.StatusCode, Body: string(body)}
		return gjson.Result{}, resp.StatusCode == http.StatusServiceUnavailable, httpErr
	}

	if !gjson.ValidBytes(body) {
		return gjson.Result{}, false, ErrInvalidJSON
	}

	f.logger.Debug("provider request finished", "host", req.URL.Host, "path", req.URL.Path, "bytes", len(body))
	return gjson.ParseBytes(body), false, nil
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
