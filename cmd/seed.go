package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pipewright/pipewright/internal/sourcedb"
)

var seedAddRows int

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Initialize and seed the source database",
	Long: `Create the source database and table if missing and load the sample
rows. With --add-rows, append extra test rows to an already-seeded table
so a change-capture run has fresh data to pick up.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		sess, _, err := loadStateFiles(cfg)
		if err != nil {
			return err
		}

		endpoint := sess.Resource("db_endpoint")
		if endpoint == "" {
			return fmt.Errorf("no database endpoint recorded; run `pipewright deploy` first")
		}

		db, err := sourcedb.NewClient(cfg.SourceDB.Engine, sourcedb.Params{
			Host:     endpoint,
			Port:     cfg.SourceDB.Port,
			Username: cfg.SourceDB.Username,
			Password: cfg.SourceDB.Password,
			Database: cfg.SourceDB.Database,
			Table:    cfg.SourceDB.Table,
		})
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		if err := db.Connect(ctx); err != nil {
			return fmt.Errorf("connecting to source database: %w", err)
		}
		defer db.Close()

		if err := db.EnsureDatabase(ctx); err != nil {
			return fmt.Errorf("ensuring database: %w", err)
		}
		if err := db.EnsureTable(ctx); err != nil {
			return fmt.Errorf("ensuring table: %w", err)
		}

		cols, err := db.TableSchema(ctx)
		if err != nil {
			return fmt.Errorf("reading table schema: %w", err)
		}
		fmt.Printf("Table %s.%s:\n", cfg.SourceDB.Database, cfg.SourceDB.Table)
		for _, col := range cols {
			null := "NOT NULL"
			if col.Nullable {
				null = "NULL"
			}
			fmt.Printf("  %-12s %-10s %s\n", col.Name, col.DataType, null)
		}
		fmt.Println()

		if seedAddRows > 0 {
			n, err := db.AddTestRows(ctx, seedAddRows)
			if err != nil {
				return fmt.Errorf("adding test rows: %w", err)
			}
			fmt.Printf("Added %d test rows.\n", n)
		} else {
			count, err := db.RowCount(ctx)
			if err != nil {
				return fmt.Errorf("counting rows: %w", err)
			}
			if count > 0 {
				fmt.Printf("Table already has %d rows; nothing to seed.\n", count)
				return nil
			}
			n, err := db.SeedRows(ctx)
			if err != nil {
				return fmt.Errorf("seeding rows: %w", err)
			}
			fmt.Printf("Seeded %d rows.\n", n)
		}

		count, err := db.RowCount(ctx)
		if err != nil {
			return fmt.Errorf("counting rows: %w", err)
		}
		fmt.Printf("Source table %s.%s now has %d rows.\n", cfg.SourceDB.Database, cfg.SourceDB.Table, count)
		return nil
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedAddRows, "add-rows", 0, "append N extra test rows instead of the initial seed")
	rootCmd.AddCommand(seedCmd)
}
