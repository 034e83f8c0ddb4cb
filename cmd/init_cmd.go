package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pipewright/pipewright/internal/config"
)

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file interactively",
	Long:  `Walk through prompts to create a Pipewright configuration file at ~/.pipewright/pipewright.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(os.Stdin)

		fmt.Println("Pipewright Configuration Setup")
		fmt.Println("==============================")
		fmt.Println()

		name := prompt(reader, "Project name", "pipewright")
		region := prompt(reader, "AWS region", "us-east-1")
		profile := prompt(reader, "AWS profile (leave empty for default chain)", "")
		fmt.Println()

		fmt.Println("Source Database")
		fmt.Println("---------------")
		engine := prompt(reader, "Engine (postgres/sqlserver)", "postgres")
		username := prompt(reader, "Master username", "dbadmin")
		password := prompt(reader, "Master password (supports ${ENV:VAR}, ${VAULT:path#key}, ${AWS_SM:name})", "")
		fmt.Println()

		fmt.Println("Monitoring")
		fmt.Println("----------")
		email := prompt(reader, "Alert email (leave empty to skip alerts)", "")
		fmt.Println()

		cfg := &config.Config{
			Version: config.CurrentVersion,
			Project: config.ProjectConfig{Name: name},
			AWS: config.AWSConfig{
				Region:  region,
				Profile: profile,
			},
			SourceDB: config.SourceDBConfig{
				Engine:   engine,
				Username: username,
				Password: password,
			},
			Monitoring: config.MonitoringConfig{Email: email},
		}

		cfgPath := config.ExpandHome(config.DefaultPath)
		if cfgFile != "" {
			cfgPath = cfgFile
		}

		if err := cfg.Save(cfgPath); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}

		fmt.Printf("Config written to %s\n", cfgPath)
		fmt.Println()
		fmt.Println("Next steps:")
		fmt.Println("  pipewright deploy    — Deploy the replication pipeline")
		fmt.Println("  pipewright status    — Show deployment progress")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
}

func prompt(reader *bufio.Reader, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("  %s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("  %s: ", label)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}
