package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"tiffin-tracker-backend/internal/notification"
	"tiffin-tracker-backend/internal/store"
)

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Run one reminder pass and print the summary as JSON",
	Long: `Run one reminder pass for the current time and print the summary.

Suitable for an external cron entry such as "0 * * * *". Exits non-zero
when the pass could not run.`,
	RunE: runRemind,
}

func runRemind(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	job, err := notification.NewJob(a.cfg, store.NewGormStore(a.db), a.log)
	if err != nil {
		return err
	}

	summary, runErr := job.Run(cmd.Context())

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return err
	}
	return runErr
}
