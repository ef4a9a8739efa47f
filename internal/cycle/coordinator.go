// Package cycle runs one poll of every tracked image: it loads the snapshot,
// checks all images concurrently, persists the new snapshot and only then
// dispatches the notifications of updated images.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/registry-watcher/internal/detect"
	"github.com/stacklok/registry-watcher/internal/job"
	"github.com/stacklok/registry-watcher/internal/otel"
	"github.com/stacklok/registry-watcher/internal/state"
	"github.com/stacklok/registry-watcher/internal/status"
	"github.com/stacklok/registry-watcher/internal/telemetry"
)

//go:generate mockgen -destination=mocks/mock_dispatcher.go -package=mocks github.com/stacklok/registry-watcher/internal/cycle Dispatcher

// ErrCycleCancelled is returned when the context ends before all images were checked.
// The snapshot is left untouched in that case.
var ErrCycleCancelled = errors.New("cycle cancelled")

// Dispatcher starts the notification actions of an updated image
type Dispatcher interface {
	Dispatch(ctx context.Context, result *detect.CheckResult)
}

// Report summarizes a finished cycle
type Report struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration

	// Checked is the number of tracked images
	Checked   int
	Failed    int
	FirstSeen int
	Unchanged int

	// Updated holds the identities of the images whose actions were dispatched
	Updated []string
}

// Coordinator executes polling cycles over a fixed set of jobs
type Coordinator struct {
	jobs       []job.NotificationJob
	store      state.Store
	detector   detect.Detector
	dispatcher Dispatcher

	tracker *status.Tracker
	metrics *telemetry.CycleMetrics
	tracer  trace.Tracer

	mu   sync.RWMutex
	last state.Snapshot
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithStatusTracker reports cycle progress to tracker
func WithStatusTracker(tracker *status.Tracker) Option {
	return func(c *Coordinator) {
		c.tracker = tracker
	}
}

// WithMetrics records cycle and image outcomes
func WithMetrics(metrics *telemetry.CycleMetrics) Option {
	return func(c *Coordinator) {
		c.metrics = metrics
	}
}

// WithTracerProvider creates cycle spans from provider
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(c *Coordinator) {
		if provider != nil {
			c.tracer = provider.Tracer(telemetry.CycleTracerName)
		}
	}
}

// New creates a Coordinator
func New(
	jobs []job.NotificationJob,
	store state.Store,
	detector detect.Detector,
	dispatcher Dispatcher,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		jobs:       jobs,
		store:      store,
		detector:   detector,
		dispatcher: dispatcher,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// checkOutcome is the result of checking one job
type checkOutcome struct {
	result    *detect.CheckResult
	err       error
	firstSeen bool
}

// RunCycle performs one polling cycle. It returns an error when the snapshot
// could not be loaded or persisted; no notification is dispatched then.
// Per-image failures are logged and only counted in the report.
func (c *Coordinator) RunCycle(ctx context.Context) (*Report, error) {
	report := &Report{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Checked:   len(c.jobs),
	}
	logger := slog.With("cycle_id", report.ID)

	ctx, span := otel.StartSpan(ctx, c.tracer, otel.SpanCycle,
		trace.WithAttributes(
			otel.AttrCycleID.String(report.ID),
			otel.AttrImageCount.Int(len(c.jobs)),
		))
	defer span.End()

	c.tracker.CycleStarted(report.ID)
	c.metrics.RecordTrackedImages(ctx, int64(len(c.jobs)))
	logger.Info("Starting polling cycle", "images", len(c.jobs))

	err := c.runCycle(ctx, logger, report)
	report.Duration = time.Since(report.StartedAt)
	c.metrics.RecordCycle(ctx, report.Duration, err == nil)

	span.SetAttributes(
		otel.AttrUpdatedCount.Int(len(report.Updated)),
		otel.AttrFailedCount.Int(report.Failed),
	)

	if err != nil {
		otel.Fail(span, err)
		c.tracker.CycleFailed(ctx, report.ID, err)
		logger.Error("Polling cycle failed", "error", err, "duration", report.Duration)
		return report, err
	}

	c.tracker.CycleCompleted(ctx, status.CycleSummary{
		CycleID:       report.ID,
		ImagesChecked: report.Checked,
		ImagesFailed:  report.Failed,
		Updated:       report.Updated,
	})
	logger.Info("Polling cycle completed",
		"checked", report.Checked,
		"updated", len(report.Updated),
		"unchanged", report.Unchanged,
		"first_seen", report.FirstSeen,
		"failed", report.Failed,
		"duration", report.Duration)

	return report, nil
}

func (c *Coordinator) runCycle(ctx context.Context, logger *slog.Logger, report *Report) error {
	prior, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	outcomes := c.checkAll(ctx, logger, prior)

	// A cancelled context fails every pending fetch; persisting that would drop all entries
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrCycleCancelled, ctx.Err())
	}

	next := state.Snapshot{}
	var updated []*detect.CheckResult
	for _, outcome := range outcomes {
		switch {
		case outcome.err != nil:
			report.Failed++
			c.metrics.RecordImageCheck(ctx, telemetry.OutcomeFailed)
			continue
		case outcome.firstSeen:
			report.FirstSeen++
			c.metrics.RecordImageCheck(ctx, telemetry.OutcomeFirstSeen)
		case outcome.result.Updated:
			updated = append(updated, outcome.result)
			c.metrics.RecordImageCheck(ctx, telemetry.OutcomeUpdated)
		default:
			report.Unchanged++
			c.metrics.RecordImageCheck(ctx, telemetry.OutcomeUnchanged)
		}
		next.Put(outcome.result.Entry())
	}

	if err := c.store.Store(ctx, next); err != nil {
		if len(updated) > 0 {
			logger.Warn("Withholding notifications, snapshot was not persisted", "updated", len(updated))
		}
		return err
	}

	c.mu.Lock()
	c.last = next
	c.mu.Unlock()

	for _, result := range updated {
		identity := result.Image().Identity()
		logger.Info("Image updated, dispatching notifications",
			"image", identity,
			"last_updated", result.LastUpdated,
			"actions", len(result.Job.Actions))
		c.dispatcher.Dispatch(ctx, result)
		report.Updated = append(report.Updated, identity)
	}

	return nil
}

// LastSnapshot returns a copy of the snapshot persisted by the last successful cycle.
// It is empty until a cycle completed.
func (c *Coordinator) LastSnapshot() state.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return state.Snapshot{}
	}
	return maps.Clone(c.last)
}

// checkAll runs one detector per job and waits for all of them.
// Errors are logged here and never abort sibling checks.
func (c *Coordinator) checkAll(ctx context.Context, logger *slog.Logger, prior state.Snapshot) []checkOutcome {
	outcomes := make([]checkOutcome, len(c.jobs))

	var g errgroup.Group
	for i, nj := range c.jobs {
		g.Go(func() error {
			outcomes[i] = c.checkOne(ctx, logger, nj, prior)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (c *Coordinator) checkOne(
	ctx context.Context,
	logger *slog.Logger,
	nj job.NotificationJob,
	prior state.Snapshot,
) checkOutcome {
	key := nj.Image.Key()
	ctx, span := otel.StartSpan(ctx, c.tracer, otel.SpanCheckImage,
		trace.WithAttributes(otel.AttrImage.String(key)))
	defer span.End()

	var priorEntry *state.Entry
	if entry, ok := prior.Get(key); ok {
		priorEntry = &entry
	}

	result, err := c.detector.Check(ctx, nj, priorEntry)
	if err != nil {
		otel.Outcome(span, telemetry.OutcomeFailed, err)
		if detect.IsNotFound(err) {
			logger.Warn("Tracked image not found on registry", "image", key, "error", err)
		} else {
			logger.Error("Failed to check image", "image", key, "error", err)
		}
		return checkOutcome{err: err}
	}

	outcome := checkOutcome{result: result, firstSeen: priorEntry == nil}
	switch {
	case outcome.firstSeen:
		otel.Outcome(span, telemetry.OutcomeFirstSeen, nil)
		logger.Debug("Image seen for the first time", "image", key, "last_updated", result.LastUpdated)
	case result.Updated:
		otel.Outcome(span, telemetry.OutcomeUpdated, nil)
	default:
		otel.Outcome(span, telemetry.OutcomeUnchanged, nil)
		logger.Debug("Image unchanged", "image", key)
	}
	return outcome
}
