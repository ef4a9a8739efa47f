package api

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/stacklok/registry-watcher/internal/api/common"
	"github.com/stacklok/registry-watcher/internal/job"
	"github.com/stacklok/registry-watcher/internal/state"
	"github.com/stacklok/registry-watcher/internal/versions"
)

// Routes serves the status and snapshot endpoints
type Routes struct {
	status    StatusProvider
	snapshots SnapshotProvider
}

// healthHandler reports that the process is alive
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// readinessHandler reports ready once a cycle has persisted its snapshot
func (rr *Routes) readinessHandler(w http.ResponseWriter, _ *http.Request) {
	if !rr.status.Ready() {
		current := rr.status.Status()
		message := "no polling cycle completed yet"
		if current.Message != "" {
			message += ": " + current.Message
		}
		common.WriteError(w, http.StatusServiceUnavailable, message)
		return
	}

	common.WriteJSON(w, http.StatusOK, ReadinessResponse{Status: "ready"})
}

// versionHandler returns build information
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSON(w, http.StatusOK, versions.GetVersionInfo())
}

// getStatus handles GET /v1/status
func (rr *Routes) getStatus(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSON(w, http.StatusOK, rr.status.Status())
}

// listImages handles GET /v1/images
func (rr *Routes) listImages(w http.ResponseWriter, _ *http.Request) {
	snapshot := rr.snapshots.LastSnapshot()

	images := make([]ImageResponse, 0, len(snapshot))
	for _, entry := range snapshot {
		images = append(images, newImageResponse(entry))
	}
	slices.SortFunc(images, func(a, b ImageResponse) int {
		return strings.Compare(a.Key, b.Key)
	})

	common.WriteJSON(w, http.StatusOK, ListImagesResponse{Images: images, Count: len(images)})
}

// getImage handles GET /v1/images/{user}/{name}?tag=<tag>
func (rr *Routes) getImage(w http.ResponseWriter, r *http.Request) {
	image, err := imageFromRequest(r)
	if err != nil {
		common.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, ok := rr.snapshots.LastSnapshot().Get(image.Key())
	if !ok {
		slog.Debug("Image not in snapshot", "image", image.Key())
		common.WriteError(w, http.StatusNotFound, "image "+image.Key()+" not found")
		return
	}

	common.WriteJSON(w, http.StatusOK, newImageResponse(entry))
}

// imageFromRequest reads the image addressed by the path and the tag query
func imageFromRequest(r *http.Request) (job.TrackedImage, error) {
	var (
		image job.TrackedImage
		err   error
	)
	if image.User, err = common.PathSegment(r, "user"); err != nil {
		return image, err
	}
	if image.Name, err = common.PathSegment(r, "name"); err != nil {
		return image, err
	}
	if image.Tag, err = common.OptionalQuery(r, "tag"); err != nil {
		return image, err
	}
	return image, nil
}

func newImageResponse(entry state.Entry) ImageResponse {
	return ImageResponse{
		Image:       entry.Image().Identity(),
		Key:         entry.Key(),
		User:        entry.User,
		Name:        entry.Name,
		Tag:         entry.Tag,
		LastUpdated: entry.LastUpdated,
	}
}
