package app

import (
	"github.com/stacklok/registry-watcher/internal/cycle"
	"github.com/stacklok/registry-watcher/internal/cycle/scheduler"
	"github.com/stacklok/registry-watcher/internal/notify"
	"github.com/stacklok/registry-watcher/internal/status"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Scheduler runs the polling loop
	Scheduler scheduler.Scheduler

	// Coordinator executes single polling cycles
	Coordinator *cycle.Coordinator

	// Dispatcher runs the notification actions of updated images
	Dispatcher *notify.Dispatcher

	// Tracker records the outcome of each cycle
	Tracker *status.Tracker
}
