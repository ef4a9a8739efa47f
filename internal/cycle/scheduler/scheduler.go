// Package scheduler runs polling cycles on a fixed interval.
//
// The scheduler performs one cycle immediately when started and then one per
// tick. A cycle that outlasts the interval delays the next one; cycles never
// overlap. Cycle errors are logged and the loop continues.
//
//	s := scheduler.New(coordinator, time.Hour)
//	go func() { _ = s.Start(ctx) }()
//	...
//	_ = s.Stop()
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/stacklok/registry-watcher/internal/cycle"
)

// ErrAlreadyStarted is returned by Start on a scheduler that was started before
var ErrAlreadyStarted = errors.New("polling scheduler already started")

//go:generate mockgen -destination=mocks/mock_runner.go -package=mocks github.com/stacklok/registry-watcher/internal/cycle/scheduler Runner

// Runner executes a single polling cycle
type Runner interface {
	RunCycle(ctx context.Context) (*cycle.Report, error)
}

// Scheduler manages the lifecycle of the polling loop
type Scheduler interface {
	// Start runs the polling loop until ctx is cancelled or Stop is called.
	// A scheduler runs once; later calls return ErrAlreadyStarted.
	Start(ctx context.Context) error

	// Stop cancels the loop and waits for the running cycle to return
	Stop() error
}

type defaultScheduler struct {
	runner   Runner
	interval time.Duration

	mu         sync.Mutex
	started    bool
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// New creates a scheduler running runner every interval
func New(runner Runner, interval time.Duration) Scheduler {
	return &defaultScheduler{
		runner:   runner,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the polling loop
func (s *defaultScheduler) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		cancel()
		return ErrAlreadyStarted
	}
	s.started = true
	s.cancelFunc = cancel
	s.mu.Unlock()

	slog.Info("Starting polling scheduler", "interval", s.interval)
	defer func() {
		cancel()
		close(s.done)
		slog.Info("Polling scheduler shut down")
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Initial cycle
	s.runCycle(loopCtx)

	for {
		select {
		case <-ticker.C:
			s.runCycle(loopCtx)
		case <-loopCtx.Done():
			slog.Info("Polling scheduler stopping")
			return nil
		}
	}
}

// Stop gracefully stops the scheduler
func (s *defaultScheduler) Stop() error {
	s.mu.Lock()
	cancel := s.cancelFunc
	s.mu.Unlock()

	if cancel != nil {
		slog.Info("Stopping polling scheduler")
		cancel()
		<-s.done
	}
	return nil
}

func (s *defaultScheduler) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.runner.RunCycle(ctx); err != nil {
		slog.Error("Polling cycle failed, retrying on next tick", "error", err)
	}
}
