package integration

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stacklok/registry-watcher/internal/status"
	"github.com/stacklok/registry-watcher/test-integration/watcher/helpers"
)

// 300ms between cycles
const fastInterval = 0.005

var _ = Describe("Polling Integration", Label("polling"), func() {
	var (
		tempDir    string
		stateFile  string
		configFile string
		hub        *helpers.FakeHub
		receiver   *helpers.WebhookReceiver
		watcher    *helpers.WatcherTestHelper
	)

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()
		stateFile = filepath.Join(tempDir, "cache", "cache.json")
		configFile = filepath.Join(tempDir, "config.yaml")

		hub = helpers.NewFakeHub()
		hub.SetRepository("library", "nginx", "2024-01-01T00:00:00Z")
		hub.SetTag("acme", "app", "v2", "2024-01-01T00:00:00.000000Z")
		hub.SetTag("acme", "app", "v1", "2023-06-01T00:00:00Z")

		receiver = helpers.NewWebhookReceiver()
	})

	AfterEach(func() {
		if watcher != nil {
			Expect(watcher.StopWatcher()).To(Succeed())
			watcher = nil
		}
		receiver.Close()
		hub.Close()
	})

	startWatcher := func(images ...string) {
		err := helpers.WriteConfigYAML(configFile, hub.URL(), receiver.URL(), stateFile, fastInterval, images...)
		Expect(err).NotTo(HaveOccurred())

		watcher, err = helpers.NewWatcherTestHelper(suiteCtx, configFile)
		Expect(err).NotTo(HaveOccurred())
		Expect(watcher.StartWatcher()).To(Succeed())
		watcher.WaitForReady(10 * time.Second)
	}

	Context("First start", func() {
		It("should record every image without notifying", func() {
			startWatcher("nginx", "acme/app:v2")

			images, err := watcher.Images()
			Expect(err).NotTo(HaveOccurred())
			Expect(images).To(HaveLen(2))
			Expect(images[0].Key).To(Equal("acme/app:v2"))
			Expect(images[0].LastUpdated).To(Equal("2024-01-01T00:00:00.000000Z"))
			Expect(images[1].Key).To(Equal("library/nginx"))

			data, err := os.ReadFile(stateFile)
			Expect(err).NotTo(HaveOccurred())
			var snapshot map[string]map[string]string
			Expect(json.Unmarshal(data, &snapshot)).To(Succeed())
			Expect(snapshot).To(HaveKey("library/nginx"))
			Expect(snapshot).To(HaveKey("acme/app:v2"))

			Consistently(receiver.Requests, 700*time.Millisecond, 50*time.Millisecond).Should(BeEmpty())
		})
	})

	Context("Image republished", func() {
		It("should call the webhook exactly once", func() {
			startWatcher("nginx", "acme/app:v2")

			hub.SetRepository("library", "nginx", "2024-02-01T00:00:00Z")

			Eventually(receiver.Requests, 5*time.Second, 50*time.Millisecond).Should(HaveLen(1))
			request := receiver.Requests()[0]
			Expect(request.Method).To(Equal(http.MethodPost))
			Expect(request.Header.Get("Content-Type")).To(Equal("application/json"))
			Expect(request.Body).To(MatchJSON(`{"image":"nginx","text":"Docker image 'nginx' was updated"}`))

			// The new timestamp is persisted, so later cycles stay quiet
			Consistently(receiver.Requests, 700*time.Millisecond, 50*time.Millisecond).Should(HaveLen(1))
		})

		It("should notify for a tag pushed while the watcher was down", func() {
			Expect(os.MkdirAll(filepath.Dir(stateFile), 0750)).To(Succeed())
			Expect(os.WriteFile(stateFile, []byte(
				`{"acme/app:v2":{"user":"acme","name":"app","tag":"v2","lastUpdated":"2023-12-01T00:00:00Z"}}`,
			), 0600)).To(Succeed())

			startWatcher("acme/app:v2")

			Eventually(receiver.Requests, 5*time.Second, 50*time.Millisecond).Should(HaveLen(1))
			Expect(receiver.Requests()[0].Body).To(MatchJSON(`{"image":"acme/app:v2","text":"Docker image 'acme/app:v2' was updated"}`))
		})
	})

	Context("Missing images", func() {
		It("should keep polling the remaining images", func() {
			startWatcher("nginx", "library/redis", "acme/app:v3")

			// A later cycle may be running when the status is read
			Eventually(func() (status.CycleStatus, error) {
				var current status.CycleStatus
				_, body, err := watcher.Get("/v1/status")
				if err != nil {
					return current, err
				}
				err = json.Unmarshal(body, &current)
				return current, err
			}, 5*time.Second, 50*time.Millisecond).Should(And(
				HaveField("Phase", status.CyclePhaseComplete),
				HaveField("ImagesChecked", 3),
				HaveField("ImagesFailed", 2),
			))

			images, err := watcher.Images()
			Expect(err).NotTo(HaveOccurred())
			Expect(images).To(HaveLen(1))
			Expect(images[0].Image).To(Equal("nginx"))

			resp, _, err := watcher.Get("/v1/images/acme/app?tag=v3")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})
})
