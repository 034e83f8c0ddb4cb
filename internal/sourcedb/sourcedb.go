// Package sourcedb manages the source database side of the pipeline:
// creating the demo database and table, seeding it with sample rows, and
// answering row counts for validation.
package sourcedb

import (
	"context"
	"fmt"
)

// Params describes a source database connection.
type Params struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
	Table    string
}

// Column is one column of the source table.
type Column struct {
	Name     string
	DataType string
	Nullable bool
}

// Client is the source database collaborator. Implementations exist for
// PostgreSQL and SQL Server, selected by the configured engine.
type Client interface {
	Connect(ctx context.Context) error
	Close() error

	EnsureDatabase(ctx context.Context) error
	EnsureTable(ctx context.Context) error
	SeedRows(ctx context.Context) (int, error)
	AddTestRows(ctx context.Context, n int) (int, error)
	RowCount(ctx context.Context) (int64, error)
	TableSchema(ctx context.Context) ([]Column, error)
	DropDatabase(ctx context.Context) error
}

// NewClient builds a Client for the given engine.
func NewClient(engine string, params Params) (Client, error) {
	switch engine {
	case "postgres":
		return NewPostgresClient(params), nil
	case "sqlserver":
		return NewSQLServerClient(params), nil
	default:
		return nil, fmt.Errorf("unsupported source engine %q", engine)
	}
}

// Row is one record of the sample employee dataset.
type Row struct {
	EmpID    int
	Name     string
	Age      int
	Gender   string
	Location string
	Date     string // YYYY-MM-DD
}

// SampleRows returns the dataset seeded into a fresh source table.
func SampleRows() []Row {
	return []Row{
		{EmpID: 1, Name: "Robert", Age: 25, Gender: "M", Location: "Seattle", Date: "2023-01-15"},
		{EmpID: 2, Name: "Sam", Age: 32, Gender: "M", Location: "Austin", Date: "2023-02-20"},
		{EmpID: 3, Name: "Smith", Age: 41, Gender: "M", Location: "Chicago", Date: "2023-03-05"},
		{EmpID: 4, Name: "Dan", Age: 29, Gender: "M", Location: "Denver", Date: "2023-04-11"},
		{EmpID: 5, Name: "Lily", Age: 27, Gender: "F", Location: "Boston", Date: "2023-05-30"},
	}
}
