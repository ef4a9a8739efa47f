// Package helpers provides fakes and fixtures for the watcher integration tests.
package helpers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// FakeHub serves the subset of the Docker Hub v2 API the watcher reads
type FakeHub struct {
	server *httptest.Server

	mu           sync.Mutex
	repositories map[string]string
	tags         map[string]map[string]string
}

// NewFakeHub starts a fake Docker Hub
func NewFakeHub() *FakeHub {
	hub := &FakeHub{
		repositories: make(map[string]string),
		tags:         make(map[string]map[string]string),
	}
	hub.server = httptest.NewServer(http.HandlerFunc(hub.serve))
	return hub
}

// URL returns the base URL of the fake hub
func (h *FakeHub) URL() string {
	return h.server.URL
}

// Close stops the fake hub
func (h *FakeHub) Close() {
	h.server.Close()
}

// SetRepository sets the last_updated timestamp of user/name
func (h *FakeHub) SetRepository(user, name, lastUpdated string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.repositories[user+"/"+name] = lastUpdated
}

// SetTag sets the last_updated timestamp of a tag of user/name
func (h *FakeHub) SetTag(user, name, tag, lastUpdated string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := user + "/" + name
	if h.tags[key] == nil {
		h.tags[key] = make(map[string]string)
	}
	h.tags[key][tag] = lastUpdated
}

func (h *FakeHub) serve(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/v2/repositories/"), "/")
	if len(parts) < 2 {
		http.NotFound(w, r)
		return
	}
	key := parts[0] + "/" + parts[1]

	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case len(parts) == 2:
		lastUpdated, ok := h.repositories[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]string{"user": parts[0], "name": parts[1], "last_updated": lastUpdated})
	case len(parts) == 3 && parts[2] == "tags":
		tags, ok := h.tags[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		results := make([]map[string]string, 0, len(tags))
		for name, lastUpdated := range tags {
			results = append(results, map[string]string{"name": name, "last_updated": lastUpdated})
		}
		writeJSON(w, map[string]any{"count": len(results), "results": results})
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// WebhookRequest is one request received by a WebhookReceiver
type WebhookRequest struct {
	Method string
	Header http.Header
	Body   string
}

// WebhookReceiver records every request it receives
type WebhookReceiver struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []WebhookRequest
}

// NewWebhookReceiver starts a webhook receiver
func NewWebhookReceiver() *WebhookReceiver {
	rec := &WebhookReceiver{}
	rec.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.requests = append(rec.requests, WebhookRequest{Method: r.Method, Header: r.Header.Clone(), Body: string(body)})
		rec.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	return rec
}

// URL returns the endpoint of the receiver
func (rec *WebhookReceiver) URL() string {
	return rec.server.URL + "/hook"
}

// Close stops the receiver
func (rec *WebhookReceiver) Close() {
	rec.server.Close()
}

// Requests returns a copy of the received requests
func (rec *WebhookReceiver) Requests() []WebhookRequest {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]WebhookRequest(nil), rec.requests...)
}

// WriteConfigYAML writes a watcher configuration tracking images, each notifying the receiver
func WriteConfigYAML(path, hubURL, hookURL, stateFile string, checkIntervalMinutes float64, images ...string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "checkInterval: %g\n", checkIntervalMinutes)
	fmt.Fprintf(&b, "stateFile: %s\n", stateFile)
	fmt.Fprintf(&b, "registry:\n  baseURL: %s\n  timeout: 5s\n  maxRetries: 0\n", hubURL)
	b.WriteString("notifyServices:\n")
	for _, image := range images {
		fmt.Fprintf(&b, "  - image: %s\n    actions:\n      - type: webHook\n        instance: receiver\n", image)
	}
	b.WriteString("webHooks:\n  receiver:\n")
	fmt.Fprintf(&b, "    reqUrl: %s\n", hookURL)
	b.WriteString("    httpHeaders:\n      Content-Type: application/json\n")
	b.WriteString("    httpBody:\n      text: \"{{.Message}}\"\n      image: \"{{.Image}}\"\n")

	return writeFile(path, b.String())
}
