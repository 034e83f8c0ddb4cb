package sourcedb

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresClient implements Client for PostgreSQL using pgx.
type PostgresClient struct {
	params    Params
	adminPool *pgxpool.Pool // connected to the postgres maintenance db
	pool      *pgxpool.Pool // connected to the pipeline database
}

// NewPostgresClient creates a new PostgreSQL client.
func NewPostgresClient(params Params) *PostgresClient {
	return &PostgresClient{params: params}
}

func (c *PostgresClient) connString(database string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=prefer",
		c.params.Username, c.params.Password, c.params.Host, c.params.Port, database)
}

// Connect opens the maintenance connection. The pipeline database pool is
// opened lazily after EnsureDatabase, since the database may not exist yet.
func (c *PostgresClient) Connect(ctx context.Context) error {
	pool, err := c.openPool(ctx, "postgres")
	if err != nil {
		return err
	}
	c.adminPool = pool
	return nil
}

func (c *PostgresClient) openPool(ctx context.Context, database string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(c.connString(database))
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	cfg.MaxConns = 2
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging PostgreSQL: %w", err)
	}
	return pool, nil
}

// EnsureDatabase creates the pipeline database if it does not exist and
// opens the working pool against it.
func (c *PostgresClient) EnsureDatabase(ctx context.Context) error {
	if c.adminPool == nil {
		return fmt.Errorf("not connected")
	}

	var exists bool
	err := c.adminPool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", c.params.Database).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking database %s: %w", c.params.Database, err)
	}
	if !exists {
		// CREATE DATABASE cannot be parameterized
		if _, err := c.adminPool.Exec(ctx, "CREATE DATABASE "+quoteIdentPg(c.params.Database)); err != nil {
			return fmt.Errorf("creating database %s: %w", c.params.Database, err)
		}
	}

	if c.pool == nil {
		pool, err := c.openPool(ctx, c.params.Database)
		if err != nil {
			return err
		}
		c.pool = pool
	}
	return nil
}

// EnsureTable creates the source table if it does not exist.
func (c *PostgresClient) EnsureTable(ctx context.Context) error {
	if c.pool == nil {
		return fmt.Errorf("database not ensured")
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		empid INT PRIMARY KEY,
		name VARCHAR(50),
		age INT,
		gender VARCHAR(10),
		location VARCHAR(50),
		date DATE,
		src_dts TIMESTAMP DEFAULT NOW()
	)`, quoteIdentPg(c.params.Table))
	if _, err := c.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating table %s: %w", c.params.Table, err)
	}
	return nil
}

// SeedRows inserts the sample dataset, skipping rows that already exist.
func (c *PostgresClient) SeedRows(ctx context.Context) (int, error) {
	if c.pool == nil {
		return 0, fmt.Errorf("database not ensured")
	}
	sql := fmt.Sprintf(`INSERT INTO %s (empid, name, age, gender, location, date, src_dts)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (empid) DO NOTHING`, quoteIdentPg(c.params.Table))

	inserted := 0
	for _, row := range SampleRows() {
		tag, err := c.pool.Exec(ctx, sql, row.EmpID, row.Name, row.Age, row.Gender, row.Location, row.Date)
		if err != nil {
			return inserted, fmt.Errorf("inserting row %d: %w", row.EmpID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// AddTestRows appends n generated rows after the current maximum id, used
// to exercise replication after the initial load.
func (c *PostgresClient) AddTestRows(ctx context.Context, n int) (int, error) {
	if c.pool == nil {
		return 0, fmt.Errorf("database not ensured")
	}
	var maxID int
	err := c.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT COALESCE(MAX(empid), 0) FROM %s", quoteIdentPg(c.params.Table))).Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("finding max id: %w", err)
	}

	sql := fmt.Sprintf(`INSERT INTO %s (empid, name, age, gender, location, date, src_dts)
		VALUES ($1, $2, $3, $4, $5, CURRENT_DATE, NOW())`, quoteIdentPg(c.params.Table))
	for i := 1; i <= n; i++ {
		id := maxID + i
		_, err := c.pool.Exec(ctx, sql, id, fmt.Sprintf("TestUser%d", id), 20+id%40, "U", "Remote")
		if err != nil {
			return i - 1, fmt.Errorf("inserting test row %d: %w", id, err)
		}
	}
	return n, nil
}

// RowCount returns the number of rows in the source table.
func (c *PostgresClient) RowCount(ctx context.Context) (int64, error) {
	if c.pool == nil {
		return 0, fmt.Errorf("database not ensured")
	}
	var count int64
	err := c.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdentPg(c.params.Table))).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting rows in %s: %w", c.params.Table, err)
	}
	return count, nil
}

// TableSchema returns the source table's columns.
func (c *PostgresClient) TableSchema(ctx context.Context) ([]Column, error) {
	if c.pool == nil {
		return nil, fmt.Errorf("database not ensured")
	}
	rows, err := c.pool.Query(ctx, `SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_name = $1
		ORDER BY ordinal_position`, c.params.Table)
	if err != nil {
		return nil, fmt.Errorf("describing table %s: %w", c.params.Table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var col Column
		var nullable string
		if err := rows.Scan(&col.Name, &col.DataType, &nullable); err != nil {
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		col.Nullable = nullable == "YES"
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// DropDatabase drops the pipeline database, disconnecting any sessions
// still attached to it first.
func (c *PostgresClient) DropDatabase(ctx context.Context) error {
	if c.adminPool == nil {
		return fmt.Errorf("not connected")
	}
	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}

	_, err := c.adminPool.Exec(ctx, `SELECT pg_terminate_backend(pid)
		FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()`, c.params.Database)
	if err != nil {
		return fmt.Errorf("terminating sessions on %s: %w", c.params.Database, err)
	}

	_, err = c.adminPool.Exec(ctx, "DROP DATABASE IF EXISTS "+quoteIdentPg(c.params.Database))
	if err != nil {
		return fmt.Errorf("dropping database %s: %w", c.params.Database, err)
	}
	return nil
}

// Close releases both pools.
func (c *PostgresClient) Close() error {
	if c.pool != nil {
		c.pool.Close()
	}
	if c.adminPool != nil {
		c.adminPool.Close()
	}
	return nil
}

func quoteIdentPg(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
