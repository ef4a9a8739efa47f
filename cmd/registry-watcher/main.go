// Package main is the entry point for the registry watcher.
package main

import (
	"os"

	"github.com/stacklok/registry-watcher/cmd/registry-watcher/app"
)

func main() {
	// stderr leaves stdout to the check report and version --format json
	setupLogging(os.Stderr)

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
