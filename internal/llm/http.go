package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const maxErrorBody = 4 * 1024

var errNullResponse = errors.New("decode response: null document")

// HTTPClient implements Client against a JSON-over-HTTP answering service
// (POST {message, selected_files?} → {reply, used_rag, retrieved_chunks, sources}).
type HTTPClient struct {
	HTTPClient *http.Client

	mu      sync.RWMutex
	url     string
	timeout time.Duration
}

// NewHTTPClient returns a client for url. A zero timeout means requests are
// bounded only by the caller's context.
func NewHTTPClient(url string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		HTTPClient: &http.Client{},
		url:        url,
		timeout:    timeout,
	}
}

// SetEndpoint swaps the target URL and timeout; in-flight requests are unaffected.
func (c *HTTPClient) SetEndpoint(url string, timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.url = url
	c.timeout = timeout
}

// Endpoint returns the current target URL and timeout.
func (c *HTTPClient) Endpoint() (string, time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.url, c.timeout
}

func (c *HTTPClient) Chat(ctx context.Context, params ChatRequest) (*Answer, error) {
	url, timeout := c.Endpoint()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	bodyBytes, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(errBody)}
	}

	var out *chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out == nil {
		return nil, errNullResponse
	}
	return out.answer(), nil
}
