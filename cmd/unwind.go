package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pipewright/pipewright/internal/cloud"
	"github.com/pipewright/pipewright/internal/lock"
	"github.com/pipewright/pipewright/internal/logging"
	"github.com/pipewright/pipewright/internal/monitoring"
	"github.com/pipewright/pipewright/internal/sourcedb"
	"github.com/pipewright/pipewright/internal/unwind"
)

const confirmToken = "DESTROY"

var unwindToken string

var unwindCmd = &cobra.Command{
	Use:   "unwind",
	Short: "Tear down every deployed resource",
	Long: `Remove the replication task, endpoints, replication instance, source
database, bucket, roles, and security group, in reverse dependency order.

Resumable: already-removed resources are skipped, and a fully completed
teardown becomes a no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		token := unwindToken
		if token == "" {
			fmt.Println("This will PERMANENTLY DELETE the database, replicated data, and bucket.")
			fmt.Printf("Type %s to proceed: ", confirmToken)
			reader := bufio.NewReader(os.Stdin)
			input, _ := reader.ReadString('\n')
			token = strings.TrimSpace(input)
		}
		if token != confirmToken {
			return fmt.Errorf("teardown not confirmed")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger, err := logging.Setup(logLevel, cfg.Logging.Directory)
		if err != nil {
			return fmt.Errorf("setting up logging: %w", err)
		}

		if err := lock.Acquire(""); err != nil {
			return err
		}
		defer lock.Release("")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sess, cont, err := loadStateFiles(cfg)
		if err != nil {
			return err
		}

		client, err := cloud.New(ctx, cfg.AWS.Profile, cfg.AWS.Region)
		if err != nil {
			return fmt.Errorf("creating cloud client: %w", err)
		}

		c := &unwind.Coordinator{
			Cfg:         cfg,
			Session:     sess,
			Continuity:  cont,
			Database:    client,
			Network:     client,
			Storage:     client,
			Identity:    client,
			Replication: client,
			NewSource: func(params sourcedb.Params) (sourcedb.Client, error) {
				return sourcedb.NewClient(cfg.SourceDB.Engine, params)
			},
			Monitor: monitoring.New(client.AWSConfig(), logger),
			Logger:  logger,
		}

		result, err := c.Run(ctx)
		if result != nil {
			for _, step := range result.Steps {
				switch step.Outcome {
				case "removed":
					fmt.Printf("  [OK] %s\n", step.Name)
				case "already gone":
					fmt.Printf("  [--] %s (already gone)\n", step.Name)
				case "skipped":
					fmt.Printf("  [!!] %s skipped: %v\n", step.Name, step.Err)
				case "failed":
					fmt.Printf("  [XX] %s failed: %v\n", step.Name, step.Err)
				}
			}
		}
		if err != nil {
			return fmt.Errorf("teardown: %w", err)
		}

		fmt.Println("\nTeardown complete. All resources removed.")
		return nil
	},
}

func init() {
	unwindCmd.Flags().StringVar(&unwindToken, "confirm-token", "", "confirmation token for non-interactive use")
	rootCmd.AddCommand(unwindCmd)
}
