package app

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/stacklok/registry-watcher/internal/job"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and print the tracked images",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		jobs, err := cfg.Jobs()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		return writeJobs(cmd.OutOrStdout(), jobs)
	},
}

// writeJobs renders one table row per configured action
func writeJobs(w io.Writer, jobs []job.NotificationJob) error {
	table := tablewriter.NewWriter(w)
	table.Header("Image", "Action", "Instance", "Target")

	for _, nj := range jobs {
		for _, action := range nj.Actions {
			if err := table.Append(actionRow(nj.Image, action)); err != nil {
				return fmt.Errorf("failed to render %s: %w", nj.Image.Key(), err)
			}
		}
	}

	return table.Render()
}

func actionRow(image job.TrackedImage, action job.Action) []string {
	switch a := action.(type) {
	case job.WebhookAction:
		return []string{image.Key(), string(a.Type()), a.Instance, a.Method + " " + a.URL}
	case job.MailAction:
		return []string{image.Key(), string(a.Type()), a.Instance, a.Recipient}
	case job.UnknownAction:
		return []string{image.Key(), string(a.Type()), a.Instance, "unsupported, logged only"}
	default:
		return []string{image.Key(), string(action.Type()), "", ""}
	}
}
