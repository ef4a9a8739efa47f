// Package detect decides whether a tracked image was republished since the last poll.
package detect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Masterminds/semver/v3"

	"github.com/stacklok/registry-watcher/internal/job"
	"github.com/stacklok/registry-watcher/internal/registry"
	"github.com/stacklok/registry-watcher/internal/state"
)

// CheckResult is the outcome of checking one tracked image during a cycle
type CheckResult struct {
	LastUpdated string
	User        string
	Name        string
	Tag         string

	// Updated is true only when a prior entry existed and the registry
	// reports a strictly later timestamp
	Updated bool

	Job job.NotificationJob
}

// Image returns the tracked image the result belongs to
func (r *CheckResult) Image() job.TrackedImage {
	return job.TrackedImage{User: r.User, Name: r.Name, Tag: r.Tag}
}

// Key returns the snapshot key of the result
func (r *CheckResult) Key() string {
	return r.Image().Key()
}

// Entry converts the result into the snapshot entry persisted for the next cycle
func (r *CheckResult) Entry() state.Entry {
	return state.Entry{
		User:        r.User,
		Name:        r.Name,
		Tag:         r.Tag,
		LastUpdated: r.LastUpdated,
	}
}

// TagNotFoundError is returned when the tracked tag is not listed by the registry
type TagNotFoundError struct {
	Image job.TrackedImage

	// Newest is the highest semantic-version tag the registry does list, if any
	Newest string
}

// Error implements error
func (e *TagNotFoundError) Error() string {
	msg := fmt.Sprintf("tag %q not found for repository %s/%s", e.Image.Tag, e.Image.User, e.Image.Name)
	if e.Newest != "" {
		msg += fmt.Sprintf(" (newest release tag is %q)", e.Newest)
	}
	return msg
}

// IsNotFound reports whether err means the repository or tag does not exist
func IsNotFound(err error) bool {
	var tagErr *TagNotFoundError
	return errors.Is(err, registry.ErrNotFound) || errors.As(err, &tagErr)
}

// Detector checks a single tracked image against its prior snapshot entry
type Detector interface {
	// Check fetches the current metadata of the job's image and compares it with prior,
	// which is nil when the image has never been seen.
	Check(ctx context.Context, nj job.NotificationJob, prior *state.Entry) (*CheckResult, error)
}

type defaultDetector struct {
	gateway registry.Gateway
}

// NewDetector creates a Detector reading metadata through gateway
func NewDetector(gateway registry.Gateway) Detector {
	return &defaultDetector{gateway: gateway}
}

// Check implements Detector
func (d *defaultDetector) Check(ctx context.Context, nj job.NotificationJob, prior *state.Entry) (*CheckResult, error) {
	image := nj.Image

	lastUpdated, err := d.fetchLastUpdated(ctx, image)
	if err != nil {
		return nil, err
	}

	return &CheckResult{
		LastUpdated: lastUpdated,
		User:        image.User,
		Name:        image.Name,
		Tag:         image.Tag,
		Updated:     prior != nil && isNewer(lastUpdated, prior.LastUpdated, image),
		Job:         nj,
	}, nil
}

// fetchLastUpdated returns the registry timestamp of the tag, or of the repository when no tag is tracked
func (d *defaultDetector) fetchLastUpdated(ctx context.Context, image job.TrackedImage) (string, error) {
	if image.Tag == "" {
		repo, err := d.gateway.FetchRepository(ctx, image.User, image.Name)
		if err != nil {
			return "", fmt.Errorf("failed to fetch repository %s: %w", image.Key(), err)
		}
		if repo == nil {
			return "", fmt.Errorf("failed to fetch repository %s: %w", image.Key(), registry.ErrNotFound)
		}
		return repo.LastUpdated, nil
	}

	tags, err := d.gateway.FetchTags(ctx, image.User, image.Name)
	if err != nil {
		return "", fmt.Errorf("failed to fetch tags of %s: %w", image.Key(), err)
	}
	for _, tag := range tags {
		if tag.Name == image.Tag {
			return tag.LastUpdated, nil
		}
	}
	return "", &TagNotFoundError{Image: image, Newest: newestReleaseTag(tags)}
}

// newestReleaseTag returns the highest tag that parses as a semantic version
func newestReleaseTag(tags []registry.TagMetadata) string {
	var (
		newest  string
		highest *semver.Version
	)
	for _, tag := range tags {
		v, err := semver.NewVersion(tag.Name)
		if err != nil {
			continue
		}
		if highest == nil || v.GreaterThan(highest) {
			newest, highest = tag.Name, v
		}
	}
	return newest
}

// isNewer compares parsed instants; unparseable timestamps never count as an update
func isNewer(current, previous string, image job.TrackedImage) bool {
	currentTime, err := state.ParseTimestamp(current)
	if err != nil {
		slog.Warn("Cannot parse registry timestamp", "image", image.Key(), "error", err)
		return false
	}
	previousTime, err := state.ParseTimestamp(previous)
	if err != nil {
		slog.Warn("Cannot parse stored timestamp", "image", image.Key(), "error", err)
		return false
	}
	return currentTime.After(previousTime)
}
