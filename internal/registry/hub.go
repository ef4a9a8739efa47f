package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/stacklok/registry-watcher/internal/httpclient"
)

const (
	// DefaultBaseURL is the Docker Hub API endpoint
	DefaultBaseURL = "https://hub.docker.com"

	// DefaultMaxRetries is how many times a failed request is retried
	DefaultMaxRetries = 3

	// tagPageSize is the largest page size accepted by Docker Hub
	tagPageSize = 100

	// maxConcurrentPages bounds the number of tag pages fetched at once
	maxConcurrentPages = 4

	defaultRetryInterval = 500 * time.Millisecond

	// maxRetryAfter is the longest Retry-After honoured, longer delays fall back to backoff
	maxRetryAfter = 30 * time.Second
)

// tagPage is one page of the tags listing
type tagPage struct {
	Count   int           `json:"count"`
	Next    string        `json:"next"`
	Results []TagMetadata `json:"results"`
}

// HubClient implements Gateway against the Docker Hub v2 API
type HubClient struct {
	client        httpclient.Client
	baseURL       string
	maxRetries    uint
	retryInterval time.Duration

	// limiter paces every request including retries, nil when unlimited
	limiter *rate.Limiter
}

// Option configures a HubClient
type Option func(*HubClient)

// WithHTTPClient sets the HTTP client used for requests
func WithHTTPClient(client httpclient.Client) Option {
	return func(h *HubClient) {
		h.client = client
	}
}

// WithBaseURL sets the API endpoint (without path)
func WithBaseURL(baseURL string) Option {
	return func(h *HubClient) {
		if baseURL != "" {
			h.baseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithMaxRetries sets how many times a transient failure is retried
func WithMaxRetries(retries uint) Option {
	return func(h *HubClient) {
		h.maxRetries = retries
	}
}

// WithRetryInterval sets the initial backoff interval between retries
func WithRetryInterval(interval time.Duration) Option {
	return func(h *HubClient) {
		if interval > 0 {
			h.retryInterval = interval
		}
	}
}

// WithRateLimit caps requests to perSecond with bursts of up to burst requests.
// A perSecond of 0 or less leaves requests unlimited.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(h *HubClient) {
		if perSecond <= 0 {
			h.limiter = nil
			return
		}
		h.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// NewHubClient creates a Docker Hub gateway
func NewHubClient(opts ...Option) *HubClient {
	h := &HubClient{
		baseURL:       DefaultBaseURL,
		maxRetries:    DefaultMaxRetries,
		retryInterval: defaultRetryInterval,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.client == nil {
		h.client = httpclient.NewDefaultClient(0)
	}
	return h
}

// FetchRepository implements Gateway
func (h *HubClient) FetchRepository(ctx context.Context, user, name string) (*RepoMetadata, error) {
	data, err := h.get(ctx, repositoryPath(user, name), nil)
	if err != nil {
		return nil, err
	}

	var repo RepoMetadata
	if err := json.Unmarshal(data, &repo); err != nil {
		return nil, fmt.Errorf("failed to decode repository %s/%s: %w", user, name, err)
	}
	return &repo, nil
}

// FetchTags implements Gateway
func (h *HubClient) FetchTags(ctx context.Context, user, name string) ([]TagMetadata, error) {
	path := repositoryPath(user, name) + "/tags"

	first, err := h.fetchTagPage(ctx, path, 1)
	if err != nil {
		return nil, err
	}

	pageCount := (first.Count + tagPageSize - 1) / tagPageSize
	if pageCount <= 1 {
		return first.Results, nil
	}

	pages := make([][]TagMetadata, pageCount)
	pages[0] = first.Results

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPages)
	for page := 2; page <= pageCount; page++ {
		g.Go(func() error {
			p, err := h.fetchTagPage(gctx, path, page)
			if err != nil {
				return err
			}
			pages[page-1] = p.Results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tags := make([]TagMetadata, 0, first.Count)
	for _, p := range pages {
		tags = append(tags, p...)
	}
	return tags, nil
}

func (h *HubClient) fetchTagPage(ctx context.Context, path string, page int) (*tagPage, error) {
	query := url.Values{}
	query.Set("page_size", fmt.Sprintf("%d", tagPageSize))
	query.Set("page", fmt.Sprintf("%d", page))

	data, err := h.get(ctx, path, query)
	if err != nil {
		return nil, err
	}

	var p tagPage
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode tag page %d of %s: %w", page, path, err)
	}
	return &p, nil
}

// get performs a GET, retrying transient failures
func (h *HubClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := h.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	operation := func() ([]byte, error) {
		if h.limiter != nil {
			if err := h.limiter.Wait(ctx); err != nil {
				return nil, backoff.Permanent(fmt.Errorf("rate limit wait for %s: %w", path, err))
			}
		}

		data, err := h.client.Get(ctx, endpoint)
		if err == nil {
			return data, nil
		}

		switch {
		case httpclient.StatusCode(err) == http.StatusNotFound:
			return nil, backoff.Permanent(fmt.Errorf("%w: %s", ErrNotFound, path))
		case !httpclient.IsTransient(err):
			return nil, backoff.Permanent(err)
		}

		if wait := httpclient.RetryAfter(err); wait > 0 && wait <= maxRetryAfter {
			slog.Debug("Registry asked to retry later", "url", endpoint, "retry_after", wait)
			return nil, backoff.RetryAfter(retryAfterSeconds(wait))
		}
		slog.Debug("Registry request failed, retrying", "url", endpoint, "error", err)
		return nil, err
	}

	expBackOff := backoff.NewExponentialBackOff()
	expBackOff.InitialInterval = h.retryInterval

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackOff),
		backoff.WithMaxTries(h.maxRetries+1),
	)
}

func repositoryPath(user, name string) string {
	return fmt.Sprintf("/v2/repositories/%s/%s", strings.ToLower(user), name)
}

// retryAfterSeconds rounds wait up, a sub-second delay still waits one second
func retryAfterSeconds(wait time.Duration) int {
	return int(math.Ceil(wait.Seconds()))
}
