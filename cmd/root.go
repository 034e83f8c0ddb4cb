package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
	version  = "dev"
	commit   = "none"
	date     = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "pipewright",
	Short: "Pipewright — resumable data-replication pipeline orchestrator",
	Long: `Pipewright deploys and tears down a cloud replication pipeline: a managed
source database, a DMS replication task, and an S3 data lake target.

Deployments are resumable: re-running skips stages that already succeeded
and picks up from the first incomplete one.`,
}

func Execute() {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.pipewright/pipewright.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}
