package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/registry-watcher/internal/config"
	"github.com/stacklok/registry-watcher/internal/cycle"
	"github.com/stacklok/registry-watcher/internal/notify"
	"github.com/stacklok/registry-watcher/internal/state"
	"github.com/stacklok/registry-watcher/internal/status"
)

// mockScheduler implements the scheduler.Scheduler interface for testing
type mockScheduler struct {
	mu          sync.Mutex
	startCalled bool
	stopCalled  bool
	startErr    error
	stopErr     error
}

func (m *mockScheduler) Start(ctx context.Context) error {
	m.mu.Lock()
	m.startCalled = true
	err := m.startErr
	m.mu.Unlock()

	if err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (m *mockScheduler) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalled = true
	return m.stopErr
}

func (m *mockScheduler) wasStartCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCalled
}

func (m *mockScheduler) wasStopCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCalled
}

// createTestApp creates a WatcherApp with a fake scheduler
// This directly constructs the WatcherApp without using NewWatcherApp
func createTestApp(t *testing.T, addr string, sched *mockScheduler) *WatcherApp {
	t.Helper()

	cfg := createTestAppConfig()
	ctx := context.Background()
	appCtx, cancel := context.WithCancel(ctx)

	tracker := status.NewTracker(nil, time.Hour)
	dispatcher := notify.NewDispatcher(nil, nil)
	coordinator := cycle.New(nil, state.NewFileStore(afero.NewMemMapFs(), "/cache.json"), nil, dispatcher)
	components := &AppComponents{
		Scheduler:   sched,
		Coordinator: coordinator,
		Dispatcher:  dispatcher,
		Tracker:     tracker,
	}

	appCfg := &watcherAppConfig{
		config:         cfg,
		address:        addr,
		requestTimeout: 10 * time.Second,
		readTimeout:    10 * time.Second,
		writeTimeout:   15 * time.Second,
		idleTimeout:    60 * time.Second,
	}

	server, err := buildHTTPServer(ctx, appCfg, components)
	require.NoError(t, err)

	return &WatcherApp{
		config:     cfg,
		components: components,
		httpServer: server,
		ctx:        appCtx,
		cancelFunc: cancel,
	}
}

// createTestAppConfig creates a minimal valid config for testing
func createTestAppConfig() *config.Config {
	return &config.Config{
		CheckInterval: 1,
		StateFile:     "/data/cache.json",
		NotifyServices: []config.NotifyServiceConfig{
			{
				Image:   "nginx",
				Actions: []config.ActionConfig{{Type: "webHook", Instance: "ci"}},
			},
		},
		WebHooks: map[string]config.WebHookConfig{
			"ci": {ReqURL: "https://ci.example.com/trigger"},
		},
	}
}

func TestWatcherApp_StartStop(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		addr string
	}{
		{name: "ephemeral port", addr: ":0"},
		{name: "localhost", addr: "127.0.0.1:0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sched := &mockScheduler{}
			app := createTestApp(t, tt.addr, sched)

			errChan := make(chan error, 1)
			go func() {
				errChan <- app.Start()
			}()

			require.Eventually(t, sched.wasStartCalled, 5*time.Second, 10*time.Millisecond,
				"polling scheduler should be started")

			require.NoError(t, app.Stop(5*time.Second))
			assert.True(t, sched.wasStopCalled())

			select {
			case startErr := <-errChan:
				require.NoError(t, startErr)
			case <-time.After(5 * time.Second):
				t.Fatal("Start() did not return after Stop()")
			}
		})
	}
}

func TestWatcherApp_StopBeforeStart(t *testing.T) {
	t.Parallel()

	sched := &mockScheduler{}
	app := createTestApp(t, ":0", sched)

	// Shutdown of a server that never listened succeeds
	require.NoError(t, app.Stop(time.Second))
	assert.True(t, sched.wasStopCalled())
	assert.False(t, sched.wasStartCalled())
}

func TestWatcherApp_StopIgnoresSchedulerError(t *testing.T) {
	t.Parallel()

	sched := &mockScheduler{stopErr: errors.New("already stopped")}
	app := createTestApp(t, ":0", sched)

	assert.NoError(t, app.Stop(time.Second))
}

func TestWatcherApp_SchedulerFailureKeepsServing(t *testing.T) {
	t.Parallel()

	sched := &mockScheduler{startErr: errors.New("boom")}
	app := createTestApp(t, "127.0.0.1:0", sched)

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Start()
	}()

	require.Eventually(t, sched.wasStartCalled, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, app.Stop(5*time.Second))
	require.NoError(t, <-errChan)
}

func TestWatcherApp_Accessors(t *testing.T) {
	t.Parallel()

	app := createTestApp(t, ":9999", &mockScheduler{})

	assert.Equal(t, "/data/cache.json", app.Config().StateFile)
	require.NotNil(t, app.HTTPServer())
	assert.Equal(t, ":9999", app.HTTPServer().Addr)
	assert.IsType(t, &http.Server{}, app.HTTPServer())
}
