// Package state persists the last-known registry metadata of every tracked image.
package state

import (
	"fmt"
	"time"

	"github.com/stacklok/registry-watcher/internal/job"
)

// Entry is the persisted state of one tracked image.
type Entry struct {
	User string `json:"user"`
	Name string `json:"name"`
	Tag  string `json:"tag,omitempty"`

	// LastUpdated is the registry timestamp, stored verbatim
	LastUpdated string `json:"lastUpdated"`
}

// Key returns the snapshot key of the entry
func (e Entry) Key() string {
	return e.Image().Key()
}

// Image returns the tracked image the entry belongs to
func (e Entry) Image() job.TrackedImage {
	return job.TrackedImage{User: e.User, Name: e.Name, Tag: e.Tag}
}

// LastUpdatedTime parses LastUpdated as an RFC 3339 timestamp.
func (e Entry) LastUpdatedTime() (time.Time, error) {
	return ParseTimestamp(e.LastUpdated)
}

// Snapshot maps user/name[:tag] keys to entries. It is the whole persisted state.
type Snapshot map[string]Entry

// Get returns the entry stored under key, if any.
func (s Snapshot) Get(key string) (Entry, bool) {
	e, ok := s[key]
	return e, ok
}

// Put stores e under its own key.
func (s Snapshot) Put(e Entry) {
	s[e.Key()] = e
}

// ParseTimestamp parses a registry timestamp. Fractional seconds are optional.
func ParseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", value, err)
	}
	return t, nil
}
