// Package registry provides access to container-registry metadata for tracked images.
//
// The Gateway interface is what the change detector consumes. HubClient implements it
// against the Docker Hub v2 API:
//
//   - FetchRepository reads /v2/repositories/{user}/{name}
//   - FetchTags reads every page of /v2/repositories/{user}/{name}/tags
//
// Tag pages after the first are fetched concurrently once the total count is known.
// Requests that fail with a network error, HTTP 429 or a 5xx status are retried with
// exponential backoff, waiting for the Retry-After delay instead when Docker Hub sends
// a short one. A 404 is reported as ErrNotFound and never retried.
//
//	gw := registry.NewHubClient(
//		registry.WithBaseURL("https://hub.docker.com"),
//		registry.WithMaxRetries(3),
//	)
//	repo, err := gw.FetchRepository(ctx, "library", "nginx")
package registry
