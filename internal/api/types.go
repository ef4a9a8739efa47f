package api

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status string `json:"status"`
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// ImageResponse is the last known state of one tracked image
type ImageResponse struct {
	// Image is the display identity, e.g. "nginx" or "acme/app:v2"
	Image       string `json:"image"`
	Key         string `json:"key"`
	User        string `json:"user"`
	Name        string `json:"name"`
	Tag         string `json:"tag,omitempty"`
	LastUpdated string `json:"lastUpdated"`
}

// ListImagesResponse lists the images of the last persisted snapshot
type ListImagesResponse struct {
	Images []ImageResponse `json:"images"`
	Count  int             `json:"count"`
}
