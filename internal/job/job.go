// Package job defines the tracked images and the notification jobs attached to them.
package job

import (
	"fmt"
	"strings"
)

// DefaultNamespace is the registry namespace used when an image reference has no user segment.
const DefaultNamespace = "library"

// TrackedImage identifies a repository (and optionally one of its tags) on the registry.
type TrackedImage struct {
	User string `json:"user"`
	Name string `json:"name"`
	Tag  string `json:"tag,omitempty"`
}

// ParseImage parses an image reference of the form [user/]name[:tag].
func ParseImage(ref string) (TrackedImage, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return TrackedImage{}, fmt.Errorf("image reference is empty")
	}

	img := TrackedImage{User: DefaultNamespace}

	parts := strings.Split(ref, "/")
	switch len(parts) {
	case 1:
		img.Name = parts[0]
	case 2:
		img.User = parts[0]
		img.Name = parts[1]
	default:
		return TrackedImage{}, fmt.Errorf("image reference %q has too many path segments", ref)
	}

	if name, tag, ok := strings.Cut(img.Name, ":"); ok {
		img.Name = name
		img.Tag = tag
		if tag == "" {
			return TrackedImage{}, fmt.Errorf("image reference %q has an empty tag", ref)
		}
	}

	if img.User == "" || img.Name == "" {
		return TrackedImage{}, fmt.Errorf("image reference %q is missing a user or name", ref)
	}

	return img, nil
}

// Key returns the snapshot key user/name[:tag].
func (i TrackedImage) Key() string {
	key := i.User + "/" + i.Name
	if i.Tag != "" {
		key += ":" + i.Tag
	}
	return key
}

// Identity returns the human-readable image name used in notifications.
// Images in the default namespace drop the namespace prefix.
func (i TrackedImage) Identity() string {
	id := i.Name
	if i.User != DefaultNamespace {
		id = i.User + "/" + i.Name
	}
	if i.Tag != "" {
		id += ":" + i.Tag
	}
	return id
}

// String implements fmt.Stringer
func (i TrackedImage) String() string {
	return i.Key()
}

// NotificationJob is one configured tracking entry: an image and the actions
// fired when it is republished.
type NotificationJob struct {
	Image   TrackedImage
	Actions []Action
}
