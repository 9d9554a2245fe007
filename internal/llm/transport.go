package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ouroboros/internal/logging"
)

// httpTransport posts JSON and retries rate limits, server errors and
// network failures with exponential backoff.
type httpTransport struct {
	client     *http.Client
	maxRetries int
	backoff    time.Duration // first retry delay, doubled per retry
}

func newHTTPTransport(timeout time.Duration, maxRetries int) *httpTransport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &httpTransport{
		client:     &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		backoff:    time.Second,
	}
}

// retryable reports whether a status code is worth another attempt.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// postJSON sends body to url and returns the raw 200 response body.
func (t *httpTransport) postJSON(ctx context.Context, url string, headers map[string]string, body interface{}) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for i := 0; i <= t.maxRetries; i++ {
		if i > 0 {
			delay := t.backoff * time.Duration(1<<uint(i-1))
			logging.LLMDebug("retrying %s in %v (attempt %d): %v", url, delay, i+1, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if retryable(resp.StatusCode) {
			lastErr = fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(data))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(data))
		}
		return data, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
