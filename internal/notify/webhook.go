package notify

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/stacklok/registry-watcher/internal/detect"
)

// UpdateEvent is the data available to webhook body templates
type UpdateEvent struct {
	// Image is the display identity, e.g. "nginx" or "acme/app:v2"
	Image       string
	Message     string
	User        string
	Name        string
	Tag         string
	LastUpdated string
}

// NewUpdateEvent describes an updated image for notifications
func NewUpdateEvent(result *detect.CheckResult) UpdateEvent {
	identity := result.Image().Identity()
	return UpdateEvent{
		Image:       identity,
		Message:     fmt.Sprintf("Docker image '%s' was updated", identity),
		User:        result.User,
		Name:        result.Name,
		Tag:         result.Tag,
		LastUpdated: result.LastUpdated,
	}
}

// renderBody executes a webhook body template. An empty template yields no body.
func renderBody(name, body string, event UpdateEvent) ([]byte, error) {
	if body == "" {
		return nil, nil
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse body template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, event); err != nil {
		return nil, fmt.Errorf("failed to render body template: %w", err)
	}
	return buf.Bytes(), nil
}
