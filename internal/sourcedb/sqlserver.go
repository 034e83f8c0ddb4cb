package sourcedb

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/microsoft/go-mssqldb" // sqlserver driver
)

// SQLServerClient implements Client for SQL Server via database/sql.
type SQLServerClient struct {
	params Params
	db     *sql.DB // connected to master; database selection is per-statement
}

// NewSQLServerClient creates a new SQL Server client.
func NewSQLServerClient(params Params) *SQLServerClient {
	return &SQLServerClient{params: params}
}

func (c *SQLServerClient) connString() string {
	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(c.params.Username, c.params.Password),
		Host:     fmt.Sprintf("%s:%d", c.params.Host, c.params.Port),
		RawQuery: "database=master&encrypt=true&TrustServerCertificate=true",
	}
	return u.String()
}

// Connect opens the connection against the master database. Statements
// address the pipeline database with three-part names so the database can
// be created and dropped over the same connection.
func (c *SQLServerClient) Connect(ctx context.Context) error {
	db, err := sql.Open("sqlserver", c.connString())
	if err != nil {
		return fmt.Errorf("opening SQL Server connection: %w", err)
	}
	db.SetMaxOpenConns(2)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("pinging SQL Server: %w", err)
	}
	c.db = db
	return nil
}

func (c *SQLServerClient) qualifiedTable() string {
	return fmt.Sprintf("%s.dbo.%s", quoteIdentMS(c.params.Database), quoteIdentMS(c.params.Table))
}

// EnsureDatabase creates the pipeline database if it does not exist.
func (c *SQLServerClient) EnsureDatabase(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("not connected")
	}
	stmt := fmt.Sprintf(`IF NOT EXISTS (SELECT 1 FROM sys.databases WHERE name = N'%s')
		CREATE DATABASE %s`, escapeLiteralMS(c.params.Database), quoteIdentMS(c.params.Database))
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("creating database %s: %w", c.params.Database, err)
	}
	return nil
}

// EnsureTable creates the source table if it does not exist.
func (c *SQLServerClient) EnsureTable(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("not connected")
	}
	stmt := fmt.Sprintf(`IF OBJECT_ID(N'%s.dbo.%s', N'U') IS NULL
		CREATE TABLE %s (
			EMPID INT PRIMARY KEY,
			NAME VARCHAR(50),
			AGE INT,
			GENDER VARCHAR(10),
			LOCATION VARCHAR(50),
			DATE DATE,
			SRC_DTS DATETIME DEFAULT GETDATE()
		)`, escapeLiteralMS(c.params.Database), escapeLiteralMS(c.params.Table), c.qualifiedTable())
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("creating table %s: %w", c.params.Table, err)
	}
	return nil
}

// SeedRows inserts the sample dataset, skipping rows that already exist.
func (c *SQLServerClient) SeedRows(ctx context.Context) (int, error) {
	if c.db == nil {
		return 0, fmt.Errorf("not connected")
	}
	stmt := fmt.Sprintf(`IF NOT EXISTS (SELECT 1 FROM %s WHERE EMPID = @p1)
		INSERT INTO %s (EMPID, NAME, AGE, GENDER, LOCATION, DATE, SRC_DTS)
		VALUES (@p1, @p2, @p3, @p4, @p5, @p6, GETDATE())`, c.qualifiedTable(), c.qualifiedTable())

	inserted := 0
	for _, row := range SampleRows() {
		res, err := c.db.ExecContext(ctx, stmt, row.EmpID, row.Name, row.Age, row.Gender, row.Location, row.Date)
		if err != nil {
			return inserted, fmt.Errorf("inserting row %d: %w", row.EmpID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	return inserted, nil
}

// AddTestRows appends n generated rows after the current maximum id.
func (c *SQLServerClient) AddTestRows(ctx context.Context, n int) (int, error) {
	if c.db == nil {
		return 0, fmt.Errorf("not connected")
	}
	var maxID int
	err := c.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COALESCE(MAX(EMPID), 0) FROM %s", c.qualifiedTable())).Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("finding max id: %w", err)
	}

	stmt := fmt.Sprintf(`INSERT INTO %s (EMPID, NAME, AGE, GENDER, LOCATION, DATE, SRC_DTS)
		VALUES (@p1, @p2, @p3, @p4, @p5, CAST(GETDATE() AS DATE), GETDATE())`, c.qualifiedTable())
	for i := 1; i <= n; i++ {
		id := maxID + i
		_, err := c.db.ExecContext(ctx, stmt, id, fmt.Sprintf("TestUser%d", id), 20+id%40, "U", "Remote")
		if err != nil {
			return i - 1, fmt.Errorf("inserting test row %d: %w", id, err)
		}
	}
	return n, nil
}

// RowCount returns the number of rows in the source table.
func (c *SQLServerClient) RowCount(ctx context.Context) (int64, error) {
	if c.db == nil {
		return 0, fmt.Errorf("not connected")
	}
	var count int64
	err := c.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", c.qualifiedTable())).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting rows in %s: %w", c.params.Table, err)
	}
	return count, nil
}

// TableSchema returns the source table's columns.
func (c *SQLServerClient) TableSchema(ctx context.Context) ([]Column, error) {
	if c.db == nil {
		return nil, fmt.Errorf("not connected")
	}
	query := fmt.Sprintf(`SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE
		FROM %s.INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_NAME = @p1
		ORDER BY ORDINAL_POSITION`, quoteIdentMS(c.params.Database))
	rows, err := c.db.QueryContext(ctx, query, c.params.Table)
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

// DropDatabase drops the pipeline database after forcing it single-user
// to disconnect replication sessions.
func (c *SQLServerClient) DropDatabase(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("not connected")
	}
	stmt := fmt.Sprintf(`IF EXISTS (SELECT 1 FROM sys.databases WHERE name = N'%s')
		BEGIN
			ALTER DATABASE %s SET SINGLE_USER WITH ROLLBACK IMMEDIATE;
			DROP DATABASE %s;
		END`,
		escapeLiteralMS(c.params.Database),
		quoteIdentMS(c.params.Database),
		quoteIdentMS(c.params.Database))
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("dropping database %s: %w", c.params.Database, err)
	}
	return nil
}

// Close releases the connection pool.
func (c *SQLServerClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func quoteIdentMS(s string) string {
	return "[" + strings.ReplaceAll(s, "]", "]]") + "]"
}

func escapeLiteralMS(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
