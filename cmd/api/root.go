package main

import (
	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "guestpass",
	Short:         "Guest parking registration service",
	Long:          `Keeps guest parking registrations live on the property portal: an HTTP API for owners and admins plus the expiry notice and auto re-registration jobs.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, runJobCmd, hashKeyCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
