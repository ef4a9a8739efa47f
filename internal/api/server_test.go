package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/registry-watcher/internal/api"
	"github.com/stacklok/registry-watcher/internal/state"
	"github.com/stacklok/registry-watcher/internal/status"
)

type staticSnapshot state.Snapshot

func (s staticSnapshot) LastSnapshot() state.Snapshot {
	return state.Snapshot(s)
}

var testSnapshot = staticSnapshot{
	"library/nginx": {User: "library", Name: "nginx", LastUpdated: "2024-02-01T00:00:00Z"},
	"acme/app:v2":   {User: "acme", Name: "app", Tag: "v2", LastUpdated: "2024-03-01T10:00:00.123456Z"},
}

func completedTracker() *status.Tracker {
	tracker := status.NewTracker(nil, time.Hour)
	tracker.CycleStarted("c1")
	tracker.CycleCompleted(context.Background(), status.CycleSummary{
		CycleID:       "c1",
		ImagesChecked: 2,
		Updated:       []string{"nginx"},
	})
	return tracker
}

func serve(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	server := api.NewServer(status.NewTracker(nil, time.Hour), staticSnapshot{})
	rr := serve(t, server, "/health")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var response map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
}

func TestReadinessEndpoint(t *testing.T) {
	t.Parallel()

	failed := status.NewTracker(nil, time.Hour)
	failed.CycleFailed(context.Background(), "c1", errors.New("failed to persist snapshot"))

	tests := []struct {
		name           string
		tracker        *status.Tracker
		expectedStatus int
		expectedKey    string
		expectedValue  string
	}{
		{
			name:           "ready after a completed cycle",
			tracker:        completedTracker(),
			expectedStatus: http.StatusOK,
			expectedKey:    "status",
			expectedValue:  "ready",
		},
		{
			name:           "not ready before the first cycle",
			tracker:        status.NewTracker(nil, time.Hour),
			expectedStatus: http.StatusServiceUnavailable,
			expectedKey:    "error",
			expectedValue:  "no polling cycle completed yet",
		},
		{
			name:           "not ready after a failed cycle",
			tracker:        failed,
			expectedStatus: http.StatusServiceUnavailable,
			expectedKey:    "error",
			expectedValue:  "no polling cycle completed yet: failed to persist snapshot",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rr := serve(t, api.NewServer(tt.tracker, staticSnapshot{}), "/readiness")

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			var response map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
			assert.Equal(t, tt.expectedValue, response[tt.expectedKey])
		})
	}
}

func TestVersionEndpoint(t *testing.T) {
	t.Parallel()

	rr := serve(t, api.NewServer(status.NewTracker(nil, time.Hour), staticSnapshot{}), "/version")

	assert.Equal(t, http.StatusOK, rr.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Contains(t, response, "version")
	assert.Contains(t, response, "commit")
	assert.Contains(t, response, "build_date")
	assert.Contains(t, response, "go_version")
	assert.Contains(t, response, "platform")
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	rr := serve(t, api.NewServer(completedTracker(), staticSnapshot{}), "/v1/status")
	require.Equal(t, http.StatusOK, rr.Code)

	var response status.CycleStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, status.CyclePhaseComplete, response.Phase)
	assert.Equal(t, "c1", response.CycleID)
	assert.Equal(t, 2, response.ImagesChecked)
	assert.Equal(t, []string{"nginx"}, response.Updated)
	assert.Equal(t, "1h0m0s", response.CheckInterval)
	assert.NotNil(t, response.LastSuccess)
}

func TestListImagesEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("sorted by key", func(t *testing.T) {
		t.Parallel()

		rr := serve(t, api.NewServer(completedTracker(), testSnapshot), "/v1/images")
		require.Equal(t, http.StatusOK, rr.Code)

		var response api.ListImagesResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
		assert.Equal(t, 2, response.Count)
		assert.Equal(t, []api.ImageResponse{
			{Image: "acme/app:v2", Key: "acme/app:v2", User: "acme", Name: "app", Tag: "v2", LastUpdated: "2024-03-01T10:00:00.123456Z"},
			{Image: "nginx", Key: "library/nginx", User: "library", Name: "nginx", LastUpdated: "2024-02-01T00:00:00Z"},
		}, response.Images)
	})

	t.Run("empty before the first cycle", func(t *testing.T) {
		t.Parallel()

		rr := serve(t, api.NewServer(status.NewTracker(nil, time.Hour), staticSnapshot{}), "/v1/images")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"images":[],"count":0}`, rr.Body.String())
	})
}

func TestGetImageEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		path           string
		expectedStatus int
		expectedImage  string
	}{
		{name: "official image", path: "/v1/images/library/nginx", expectedStatus: http.StatusOK, expectedImage: "nginx"},
		{name: "tagged image", path: "/v1/images/acme/app?tag=v2", expectedStatus: http.StatusOK, expectedImage: "acme/app:v2"},
		{name: "untracked tag", path: "/v1/images/acme/app?tag=v3", expectedStatus: http.StatusNotFound},
		{name: "unknown image", path: "/v1/images/library/redis", expectedStatus: http.StatusNotFound},
		{name: "whitespace in name", path: "/v1/images/library/ngi%20nx", expectedStatus: http.StatusBadRequest},
		{name: "slash in user", path: "/v1/images/acme%2Fteam/app", expectedStatus: http.StatusBadRequest},
		{name: "empty tag", path: "/v1/images/acme/app?tag=", expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rr := serve(t, api.NewServer(completedTracker(), testSnapshot), tt.path)
			require.Equal(t, tt.expectedStatus, rr.Code)

			if tt.expectedStatus != http.StatusOK {
				var response api.ErrorResponse
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
				assert.NotEmpty(t, response.Error)
				return
			}

			var response api.ImageResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
			assert.Equal(t, tt.expectedImage, response.Image)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("not mounted without handler", func(t *testing.T) {
		t.Parallel()

		rr := serve(t, api.NewServer(completedTracker(), testSnapshot), "/metrics")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("served by the configured handler", func(t *testing.T) {
		t.Parallel()

		handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("registry_watcher_tracked_images 2\n"))
		})
		server := api.NewServer(completedTracker(), testSnapshot, api.WithMetricsHandler(handler))

		rr := serve(t, server, "/metrics")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "registry_watcher_tracked_images 2")
	})
}

func TestWithMiddlewares(t *testing.T) {
	t.Parallel()

	var seen []string
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = append(seen, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	server := api.NewServer(completedTracker(), testSnapshot, api.WithMiddlewares(mw, api.LoggingMiddleware))
	rr := serve(t, server, "/health")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"/health"}, seen)
}
