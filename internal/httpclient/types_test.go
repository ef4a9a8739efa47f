package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHTTPError_Error(t *testing.T) {
	t.Parallel()

	err := NewHTTPError(http.StatusNotFound, "https://hub.docker.com/v2/repositories/library/nope", "Not Found")
	assert.EqualError(t, err, "request to https://hub.docker.com/v2/repositories/library/nope failed: 404 Not Found")
}

func TestErrorInspection(t *testing.T) {
	t.Parallel()

	rateLimited := &HTTPError{StatusCode: http.StatusTooManyRequests, URL: "https://hub", RetryAfter: 30 * time.Second}

	tests := []struct {
		name           string
		err            error
		wantStatus     int
		wantTransient  bool
		wantRetryAfter time.Duration
	}{
		{name: "nil", err: nil},
		{name: "not found", err: NewHTTPError(http.StatusNotFound, "https://hub", "Not Found"), wantStatus: 404},
		{name: "unauthorized webhook", err: NewHTTPError(http.StatusUnauthorized, "https://ci", "Unauthorized"), wantStatus: 401},
		{
			name:           "rate limited",
			err:            rateLimited,
			wantStatus:     429,
			wantTransient:  true,
			wantRetryAfter: 30 * time.Second,
		},
		{
			name:           "wrapped rate limit",
			err:            fmt.Errorf("failed to fetch tags of library/nginx: %w", rateLimited),
			wantStatus:     429,
			wantTransient:  true,
			wantRetryAfter: 30 * time.Second,
		},
		{name: "bad gateway", err: NewHTTPError(http.StatusBadGateway, "https://hub", "Bad Gateway"), wantStatus: 502, wantTransient: true},
		{name: "connection refused", err: errors.New("dial tcp 127.0.0.1:443: connection refused"), wantTransient: true},
		{name: "cancelled", err: fmt.Errorf("failed to execute request: %w", context.Canceled)},
		{name: "timed out", err: fmt.Errorf("failed to execute request: %w", context.DeadlineExceeded)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.wantStatus, StatusCode(tt.err))
			assert.Equal(t, tt.wantTransient, IsTransient(tt.err))
			assert.Equal(t, tt.wantRetryAfter, RetryAfter(tt.err))
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "absent", value: "", want: 0},
		{name: "seconds", value: "120", want: 2 * time.Minute},
		{name: "negative seconds", value: "-5", want: 0},
		{name: "http date", value: "Thu, 01 Feb 2024 12:00:45 GMT", want: 45 * time.Second},
		{name: "date in the past", value: "Thu, 01 Feb 2024 11:00:00 GMT", want: 0},
		{name: "garbage", value: "soon", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, parseRetryAfter(tt.value, now))
		})
	}
}
