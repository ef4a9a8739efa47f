package common

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	WriteJSON(rr, http.StatusAccepted, map[string]int{"count": 2})

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"count":2}`, rr.Body.String())
}

func TestWriteError(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	WriteError(rr, http.StatusNotFound, "image library/redis not found")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error":"image library/redis not found"}`, rr.Body.String())
}

func TestPathSegment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		param   string
		raw     string
		want    string
		wantErr string
	}{
		{name: "official user", param: "user", raw: "library", want: "library"},
		{name: "name with separators", param: "name", raw: "my-app_v1.2", want: "my-app_v1.2"},
		{name: "encoded colon", param: "name", raw: "app%3Av2", want: "app:v2"},
		// chi decodes %25 once, PathSegment decodes again
		{name: "double encoded percent", param: "name", raw: "app%2525x", want: "app%x"},
		{name: "encoded slash", param: "user", raw: "acme%2Fteam", wantErr: "user cannot contain '/'"},
		{name: "blank", param: "user", raw: "%20", wantErr: "user cannot be empty"},
		{name: "tab only", param: "name", raw: "%09", wantErr: "name cannot be empty"},
		{name: "inner space", param: "name", raw: "ngi%20nx", wantErr: "name cannot contain whitespace"},
		{name: "trailing newline", param: "name", raw: "nginx%0A", wantErr: "name cannot contain whitespace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var (
				got    string
				gotErr error
			)
			router := chi.NewRouter()
			router.Get("/{"+tt.param+"}", func(_ http.ResponseWriter, r *http.Request) {
				got, gotErr = PathSegment(r, tt.param)
			})
			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/"+tt.raw, nil))

			if tt.wantErr != "" {
				require.EqualError(t, gotErr, tt.wantErr)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, gotErr)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPathSegment_InvalidEncoding(t *testing.T) {
	t.Parallel()

	// chi never routes these, so they are placed in the route context directly
	for _, raw := range []string{"nginx%2", "nginx%ZZ", "nginx%"} {
		t.Run(raw, func(t *testing.T) {
			t.Parallel()

			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("name", raw)
			req := httptest.NewRequest(http.MethodGet, "/v1/images", nil)
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

			_, err := PathSegment(req, "name")
			require.EqualError(t, err, "invalid URL encoding in name")
		})
	}
}

func TestOptionalQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		query   string
		want    string
		wantErr string
	}{
		{name: "absent", query: "", want: ""},
		{name: "tag", query: "?tag=v2", want: "v2"},
		{name: "first of many", query: "?tag=v2&tag=v3", want: "v2"},
		{name: "present but empty", query: "?tag=", wantErr: "tag cannot be empty"},
		{name: "space", query: "?tag=v%202", wantErr: "tag cannot contain whitespace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := OptionalQuery(httptest.NewRequest(http.MethodGet, "/v1/images/acme/app"+tt.query, nil), "tag")
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
