// Package httpclient sends the registry queries and webhook requests of the watcher.
// Responses are read fully and bounded in size, non-2xx statuses become *HTTPError.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stacklok/registry-watcher/internal/versions"
)

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks github.com/stacklok/registry-watcher/internal/httpclient Client

const (
	// DefaultTimeout bounds a whole request including reading the body
	DefaultTimeout = 10 * time.Second

	// MaxResponseSize is the largest body read from a registry or webhook (10MB)
	MaxResponseSize = 10 * 1024 * 1024
)

// UserAgent identifies the watcher to Docker Hub and webhook receivers
var UserAgent = "registry-watcher/" + versions.Version

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client sends HTTP requests
type Client interface {
	// Get fetches a JSON document
	Get(ctx context.Context, url string) ([]byte, error)

	// Do sends a request with optional headers and body. A non-2xx response is
	// returned together with an *HTTPError.
	Do(ctx context.Context, method, url string, headers map[string]string, body []byte) (*Response, error)
}

// DefaultClient is the net/http implementation of Client
type DefaultClient struct {
	client *http.Client
	now    func() time.Time
}

// NewDefaultClient creates a client whose requests time out after timeout,
// DefaultTimeout when timeout is 0
func NewDefaultClient(timeout time.Duration) Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &DefaultClient{
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

// Get sends a GET accepting JSON and returns the body
func (c *DefaultClient) Get(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.Do(ctx, http.MethodGet, url, map[string]string{"Accept": "application/json"}, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Do sends the request, GET when method is empty
func (c *DefaultClient) Do(
	ctx context.Context, method, url string, headers map[string]string, body []byte,
) (*Response, error) {
	if method == "" {
		method = http.MethodGet
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := readBounded(resp)
	if err != nil {
		return nil, err
	}

	result := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return result, &HTTPError{
			StatusCode: resp.StatusCode,
			URL:        url,
			Status:     http.StatusText(resp.StatusCode),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
		}
	}

	return result, nil
}

// readBounded reads at most MaxResponseSize bytes of the body
func readBounded(resp *http.Response) ([]byte, error) {
	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("response of %d bytes exceeds the %d byte limit", resp.ContentLength, MaxResponseSize)
	}

	// one extra byte tells a body of exactly the limit from a longer one
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(data) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeds the %d byte limit", MaxResponseSize)
	}
	return data, nil
}
