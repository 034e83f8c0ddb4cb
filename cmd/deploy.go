package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pipewright/pipewright/internal/lock"
	"github.com/pipewright/pipewright/internal/logging"
	"github.com/pipewright/pipewright/internal/pipeline"
	"github.com/pipewright/pipewright/internal/tui"
)

var deployNoUI bool

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the replication pipeline",
	Long: `Provision the source database, seed it, run the DMS full load into S3,
and validate the exported row counts.

Safe to re-run: stages that already succeeded are skipped, validation is
re-checked every time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		setupLogger := logging.Setup
		if !deployNoUI {
			// the progress view owns the terminal; logs go to file only
			setupLogger = logging.SetupFile
		}
		logger, err := setupLogger(logLevel, cfg.Logging.Directory)
		if err != nil {
			return fmt.Errorf("setting up logging: %w", err)
		}

		if err := lock.Acquire(""); err != nil {
			return err
		}
		defer lock.Release("")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, _, err := buildPipeline(ctx, cfg, logger)
		if err != nil {
			return err
		}

		if deployNoUI {
			if err := p.Run(ctx); err != nil {
				return fmt.Errorf("deployment: %w", err)
			}
			fmt.Println("Deployment complete.")
			return nil
		}

		return tui.Run(ctx, "pipewright deploy", func(ctx context.Context, notify pipeline.Notify) error {
			p.Notify = notify
			return p.Run(ctx)
		})
	},
}

func init() {
	deployCmd.Flags().BoolVar(&deployNoUI, "no-ui", false, "plain log output instead of the progress view")
	rootCmd.AddCommand(deployCmd)
}
