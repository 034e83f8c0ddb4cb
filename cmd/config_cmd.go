package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and validate the Pipewright configuration file.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current config (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Println("Current configuration:")
		fmt.Println()
		fmt.Printf("  Project:            %s\n", cfg.Project.Name)
		fmt.Printf("  Region:             %s\n", cfg.AWS.Region)
		if cfg.AWS.Profile != "" {
			fmt.Printf("  Profile:            %s\n", cfg.AWS.Profile)
		}
		fmt.Println()
		fmt.Printf("  Source DB:\n")
		fmt.Printf("    Engine:           %s\n", cfg.SourceDB.Engine)
		fmt.Printf("    Instance:         %s (%s, %d GB)\n", cfg.SourceDB.InstanceID, cfg.SourceDB.InstanceClass, cfg.SourceDB.AllocatedStorage)
		fmt.Printf("    Database:         %s.%s\n", cfg.SourceDB.Database, cfg.SourceDB.Table)
		fmt.Printf("    Username:         %s\n", cfg.SourceDB.Username)
		fmt.Printf("    Password:         %s\n", maskSecret(cfg.SourceDB.Password))
		fmt.Println()
		fmt.Printf("  Replication:\n")
		fmt.Printf("    Instance:         %s (%s)\n", cfg.Replication.InstanceID, cfg.Replication.InstanceClass)
		fmt.Printf("    Endpoints:        %s -> %s\n", cfg.Replication.SourceEndpoint, cfg.Replication.TargetEndpoint)
		fmt.Printf("    Task:             %s\n", cfg.Replication.TaskID)
		fmt.Println()
		fmt.Printf("  Storage:\n")
		if cfg.Storage.Bucket != "" {
			fmt.Printf("    Bucket:           %s\n", cfg.Storage.Bucket)
		} else {
			fmt.Printf("    Bucket:           (derived from account ID)\n")
		}
		fmt.Printf("    Folder:           %s\n", cfg.Storage.Folder)
		if cfg.Monitoring.Email != "" {
			fmt.Printf("\n  Alerts:             %s\n", cfg.Monitoring.Email)
		}

		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadConfig(); err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		fmt.Println("Configuration is valid.")
		return nil
	},
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
