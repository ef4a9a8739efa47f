package helpers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/onsi/gomega"

	"github.com/stacklok/registry-watcher/internal/api"
	"github.com/stacklok/registry-watcher/internal/app"
	"github.com/stacklok/registry-watcher/internal/config"
)

// WatcherTestHelper manages the watcher lifecycle for testing
type WatcherTestHelper struct {
	ctx        context.Context
	configPath string
	baseURL    string
	address    string
	httpClient *http.Client
	app        *app.WatcherApp
}

// NewWatcherTestHelper creates a helper serving the status API on a free local port
func NewWatcherTestHelper(ctx context.Context, configPath string) (*WatcherTestHelper, error) {
	port, err := freePort()
	if err != nil {
		return nil, err
	}
	return &WatcherTestHelper{
		ctx:        ctx,
		configPath: configPath,
		address:    fmt.Sprintf("127.0.0.1:%d", port),
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", port),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// StartWatcher builds the watcher from the configuration file and starts it
func (s *WatcherTestHelper) StartWatcher() error {
	cfg, err := config.LoadConfig(config.WithConfigPath(s.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	watcher, err := app.NewWatcherApp(s.ctx,
		app.WithConfig(cfg),
		app.WithAddress(s.address),
	)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}
	s.app = watcher

	go func() {
		if err := watcher.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Watcher start failed: %v\n", err)
		}
	}()

	return nil
}

// StopWatcher gracefully stops the watcher
func (s *WatcherTestHelper) StopWatcher() error {
	if s.app != nil {
		return s.app.Stop(5 * time.Second)
	}
	return nil
}

// Get performs a GET against the status API
func (s *WatcherTestHelper) Get(path string) (*http.Response, []byte, error) {
	resp, err := s.httpClient.Get(s.baseURL + path)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	return resp, body, err
}

// WaitForReady waits until the first cycle completed
func (s *WatcherTestHelper) WaitForReady(timeout time.Duration) {
	gomega.Eventually(func() int {
		resp, _, err := s.Get("/readiness")
		if err != nil {
			return 0
		}
		return resp.StatusCode
	}, timeout, 50*time.Millisecond).Should(gomega.Equal(http.StatusOK))
}

// Images returns the images served by /v1/images
func (s *WatcherTestHelper) Images() ([]api.ImageResponse, error) {
	resp, body, err := s.Get("/v1/images")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var list api.ListImagesResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, err
	}
	return list.Images, nil
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
