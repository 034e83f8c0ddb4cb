package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pipewright/pipewright/internal/pipeline"
	"github.com/pipewright/pipewright/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show deployment progress and recorded resources",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		sess, cont, err := loadStateFiles(cfg)
		if err != nil {
			return err
		}

		fmt.Printf("Project: %s  Deployment: %s  Region: %s\n\n",
			sess.ProjectName, sess.DeploymentID, sess.Region)

		labels := map[pipeline.Stage]string{
			pipeline.StageInfra:     "1. Infrastructure",
			pipeline.StageDBInit:    "2. Database Init",
			pipeline.StageReplicate: "3. Replication",
			pipeline.StageValidate:  "4. Validation",
			pipeline.StageCleanup:   "   Cleanup",
		}

		stages := append(pipeline.Stages(), pipeline.StageCleanup)
		for _, stage := range stages {
			status := cont.StageStatus(stage)
			icon := "  "
			switch status {
			case pipeline.StatusSuccess:
				icon = "OK"
			case pipeline.StatusRunning:
				icon = ">>"
			case pipeline.StatusFailed:
				icon = "XX"
			}
			fmt.Printf("  [%s] %-20s %s\n", icon, labels[stage], status)
		}

		if len(sess.CreatedResources) > 0 {
			fmt.Println()
			fmt.Println("Resources:")
			for _, key := range []string{
				"db_instance_id", "db_endpoint", "security_group_id", "bucket",
				"replication_instance_arn", "source_endpoint_arn",
				"target_endpoint_arn", "task_arn", "dashboard",
			} {
				if v := sess.Resource(key); v != "" {
					fmt.Printf("  %-26s %s\n", key, v)
				}
			}
		}

		marker, err := session.LoadMarker("")
		if err != nil {
			return err
		}
		if marker != nil && marker.Completed {
			fmt.Printf("\nTeardown completed at %s.\n", marker.CompletedAt.Format("2006-01-02 15:04:05"))
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
