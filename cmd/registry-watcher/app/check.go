package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	watcherapp "github.com/stacklok/registry-watcher/internal/app"
	"github.com/stacklok/registry-watcher/internal/cycle"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a single polling cycle and exit",
	Long: `Run exactly one polling cycle: fetch every configured image, persist the new
snapshot and run the notifications of updated images. The command waits for all
notifications before it exits.`,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	watcher, err := watcherapp.NewWatcherApp(ctx, watcherapp.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to build watcher: %w", err)
	}

	report, err := watcher.RunOnce(ctx)
	if report != nil {
		writeReport(cmd.OutOrStdout(), report)
	}
	return err
}

// writeReport prints a one-line summary of report followed by the updated images
func writeReport(w io.Writer, report *cycle.Report) {
	fmt.Fprintf(w, "cycle %s: %d checked, %d updated, %d unchanged, %d first seen, %d failed\n",
		report.ID, report.Checked, len(report.Updated), report.Unchanged, report.FirstSeen, report.Failed)
	if len(report.Updated) > 0 {
		fmt.Fprintf(w, "updated: %s\n", strings.Join(report.Updated, ", "))
	}
}
