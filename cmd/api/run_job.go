package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/guestpass-service/internal/worker"
)

var runJobCmd = &cobra.Command{
	Use:       "run-job <name>",
	Short:     "Run one scheduler pass and print its report",
	Long:      "Runs a single pass of a background job outside the schedule. Jobs: " + strings.Join([]string{worker.JobExpiryNotice, worker.JobAutoRenewal}, ", ") + ".",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{worker.JobExpiryNotice, worker.JobAutoRenewal},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfigAndLogger()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		app, err := buildApplication(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		report, err := app.scheduler.RunNow(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		logger.Info("job finished", zap.String("job", args[0]), zap.Int("found", report.Found))
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return err
	},
}
