// Package integration provides integration tests for the registry watcher.
// These tests run the complete watcher against a fake Docker Hub and a webhook
// receiver, covering the polling loop, snapshot persistence and the status API.
package integration
