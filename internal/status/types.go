package status

import "time"

// CyclePhase represents the phase of the last polling cycle
type CyclePhase string

const (
	// CyclePhasePending means no cycle has run yet
	CyclePhasePending CyclePhase = "Pending"

	// CyclePhaseRunning means a cycle is in progress
	CyclePhaseRunning CyclePhase = "Running"

	// CyclePhaseComplete means the last cycle persisted its snapshot
	CyclePhaseComplete CyclePhase = "Complete"

	// CyclePhaseFailed means the last cycle could not load or persist the snapshot
	CyclePhaseFailed CyclePhase = "Failed"
)

// CycleStatus represents the state of the polling loop
type CycleStatus struct {
	// Phase represents the phase of the last cycle
	Phase CyclePhase `json:"phase"`

	// Message provides additional information, such as the failure cause
	Message string `json:"message,omitempty"`

	// CycleID identifies the last cycle in the logs
	CycleID string `json:"cycleId,omitempty"`

	// LastAttempt is the start time of the last cycle
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`

	// FailureCount is the number of failed cycles since the last success
	FailureCount int `json:"failureCount,omitempty"`

	// LastSuccess is the completion time of the last successful cycle
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`

	// ImagesChecked is the number of tracked images of the last cycle
	ImagesChecked int `json:"imagesChecked"`

	// ImagesFailed is the number of images whose check failed in the last cycle
	ImagesFailed int `json:"imagesFailed"`

	// Updated lists the identities notified by the last cycle
	Updated []string `json:"updated,omitempty"`

	// CheckInterval is the configured interval (e.g., "1h0m0s")
	CheckInterval string `json:"checkInterval,omitempty"`
}

// CycleSummary is what a finished cycle reports to the tracker
type CycleSummary struct {
	CycleID       string
	ImagesChecked int
	ImagesFailed  int
	Updated       []string
}
