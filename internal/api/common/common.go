// Package common holds the request and response helpers of the status API handlers.
package common

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
)

// WriteJSON writes body as the JSON response with status
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// the status line is already sent, an encoding failure can only be logged
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// WriteError writes {"error": message} with status
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// PathSegment returns the decoded value of the chi path parameter param.
// A segment must be non-blank and hold neither whitespace nor a slash, since
// it is one part of a "user/name" snapshot key.
func PathSegment(r *http.Request, param string) (string, error) {
	decoded, err := url.PathUnescape(chi.URLParam(r, param))
	if err != nil {
		return "", fmt.Errorf("invalid URL encoding in %s", param)
	}
	if err := checkValue(param, decoded); err != nil {
		return "", err
	}
	return decoded, nil
}

// OptionalQuery returns the query parameter param, empty when absent.
// A present value follows the rules of PathSegment.
func OptionalQuery(r *http.Request, param string) (string, error) {
	values, ok := r.URL.Query()[param]
	if !ok {
		return "", nil
	}
	if err := checkValue(param, values[0]); err != nil {
		return "", err
	}
	return values[0], nil
}

func checkValue(param, value string) error {
	switch {
	case strings.TrimSpace(value) == "":
		return fmt.Errorf("%s cannot be empty", param)
	case strings.ContainsAny(value, " \t\n\r"):
		return fmt.Errorf("%s cannot contain whitespace", param)
	case strings.Contains(value, "/"):
		return fmt.Errorf("%s cannot contain '/'", param)
	}
	return nil
}
