package registry

import (
	"context"
	"errors"
)

//go:generate mockgen -destination=mocks/mock_gateway.go -package=mocks github.com/stacklok/registry-watcher/internal/registry Gateway

// ErrNotFound is returned when the repository does not exist on the registry
var ErrNotFound = errors.New("repository not found")

// RepoMetadata is the repository-level metadata returned by the registry
type RepoMetadata struct {
	User        string `json:"user"`
	Name        string `json:"name"`
	Namespace   string `json:"namespace,omitempty"`
	LastUpdated string `json:"last_updated"`
}

// TagMetadata is the metadata of a single tag
type TagMetadata struct {
	Name        string `json:"name"`
	LastUpdated string `json:"last_updated"`
	Digest      string `json:"digest,omitempty"`
}

// Gateway fetches current metadata for repositories and their tags
type Gateway interface {
	// FetchRepository returns the metadata of user/name, or ErrNotFound
	FetchRepository(ctx context.Context, user, name string) (*RepoMetadata, error)

	// FetchTags returns every tag of user/name, or ErrNotFound
	FetchTags(ctx context.Context, user, name string) ([]TagMetadata, error)
}
