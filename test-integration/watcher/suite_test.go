package integration

import (
	"context"
	"log/slog"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// suiteCtx is cancelled once every spec has run
var suiteCtx context.Context

func TestWatcherIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Registry Watcher Integration Suite")
}

var _ = BeforeSuite(func() {
	// watcher logs go to the spec report, and only show up for failing specs
	slog.SetDefault(slog.New(slog.NewTextHandler(GinkgoWriter, &slog.HandlerOptions{Level: slog.LevelDebug})))

	var cancel context.CancelFunc
	suiteCtx, cancel = context.WithCancel(context.Background())
	DeferCleanup(cancel)
})
