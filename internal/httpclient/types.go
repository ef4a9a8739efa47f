package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// HTTPError is returned by Do for responses outside the 2xx range
type HTTPError struct {
	StatusCode int
	URL        string
	Status     string

	// RetryAfter is the delay requested by a 429 or 503 response, 0 when absent
	RetryAfter time.Duration
}

// Error returns the error message
func (e *HTTPError) Error() string {
	return fmt.Sprintf("request to %s failed: %d %s", e.URL, e.StatusCode, e.Status)
}

// NewHTTPError creates an *HTTPError for a response of url
func NewHTTPError(statusCode int, url, status string) error {
	return &HTTPError{
		StatusCode: statusCode,
		URL:        url,
		Status:     status,
	}
}

// StatusCode returns the status code carried by err, or 0 if err is not an *HTTPError
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// RetryAfter returns the delay the server asked for, 0 when err carries none
func RetryAfter(err error) time.Duration {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.RetryAfter
	}
	return 0
}

// IsTransient reports whether repeating the request may succeed: rate limiting,
// server errors and transport failures are transient, other statuses and
// context cancellation are not.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch code := StatusCode(err); {
	case code == 0:
		return true
	case code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}

// parseRetryAfter reads a Retry-After header given either in seconds or as an HTTP date
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
