package status

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Tracker keeps the status of the polling loop for the API.
// It is safe for concurrent use.
type Tracker struct {
	mu          sync.RWMutex
	status      CycleStatus
	ready       bool
	persistence Persistence
	now         func() time.Time
}

// NewTracker creates a tracker. persistence may be nil.
// The Cycle* methods are no-ops on a nil *Tracker.
func NewTracker(persistence Persistence, checkInterval time.Duration) *Tracker {
	return &Tracker{
		status: CycleStatus{
			Phase:         CyclePhasePending,
			CheckInterval: checkInterval.String(),
		},
		persistence: persistence,
		now:         time.Now,
	}
}

// Restore loads the status of a previous run so it is visible before the first cycle.
// Readiness is not restored.
func (t *Tracker) Restore(ctx context.Context) error {
	if t.persistence == nil {
		return nil
	}

	loaded, err := t.persistence.Load(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	interval := t.status.CheckInterval
	t.status = *loaded
	t.status.CheckInterval = interval
	return nil
}

// CycleStarted records the start of a cycle
func (t *Tracker) CycleStarted(cycleID string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.status.Phase = CyclePhaseRunning
	t.status.Message = ""
	t.status.CycleID = cycleID
	t.status.LastAttempt = &now
}

// CycleCompleted records a cycle that persisted its snapshot
func (t *Tracker) CycleCompleted(ctx context.Context, summary CycleSummary) {
	if t == nil {
		return
	}
	t.mu.Lock()
	now := t.now()
	t.status.Phase = CyclePhaseComplete
	t.status.Message = ""
	t.status.CycleID = summary.CycleID
	t.status.FailureCount = 0
	t.status.LastSuccess = &now
	t.status.ImagesChecked = summary.ImagesChecked
	t.status.ImagesFailed = summary.ImagesFailed
	t.status.Updated = slices.Clone(summary.Updated)
	t.ready = true
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	t.save(ctx, &snapshot)
}

// CycleFailed records a cycle that could not load or persist the snapshot
func (t *Tracker) CycleFailed(ctx context.Context, cycleID string, err error) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.status.Phase = CyclePhaseFailed
	t.status.Message = err.Error()
	t.status.CycleID = cycleID
	t.status.FailureCount++
	t.status.Updated = nil
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	t.save(ctx, &snapshot)
}

// Status returns a copy of the current status
func (t *Tracker) Status() CycleStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

// Ready reports whether at least one cycle completed since the process started
func (t *Tracker) Ready() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ready
}

func (t *Tracker) snapshotLocked() CycleStatus {
	status := t.status
	status.Updated = slices.Clone(t.status.Updated)
	return status
}

func (t *Tracker) save(ctx context.Context, status *CycleStatus) {
	if t.persistence == nil {
		return
	}
	if err := t.persistence.Save(ctx, status); err != nil {
		slog.Warn("Failed to persist cycle status", "error", err)
	}
}
