package deploy

import (
	"context"
	"fmt"
	"strings"
)

// runDBInit creates the pipeline database and table on the source
// instance and seeds the sample dataset. A table that already has rows is
// left alone so a resumed run never duplicates data.
func (p *Pipeline) runDBInit(ctx context.Context) error {
	db, err := p.openSource(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.EnsureDatabase(ctx); err != nil {
		return err
	}
	if err := db.EnsureTable(ctx); err != nil {
		return err
	}

	// verify the table landed with the expected layout
	cols, err := db.TableSchema(ctx)
	if err != nil {
		return fmt.Errorf("reading table schema: %w", err)
	}
	if len(cols) == 0 {
		return fmt.Errorf("table %s has no columns after creation", p.Cfg.SourceDB.Table)
	}
	names := make([]string, 0, len(cols))
	for _, col := range cols {
		names = append(names, col.Name)
	}
	p.Logger.Info("source table verified", "table", p.Cfg.SourceDB.Table, "columns", strings.Join(names, ","))

	count, err := db.RowCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		p.Logger.Info("source table already populated, skipping seed", "rows", count)
		return nil
	}

	inserted, err := db.SeedRows(ctx)
	if err != nil {
		return fmt.Errorf("seeding source table: %w", err)
	}
	p.Logger.Info("source table seeded", "rows", inserted, "table", p.Cfg.SourceDB.Table)
	return nil
}
