package sourcedb

import "context"

// MockClient is a test double for the Client interface.
type MockClient struct {
	ConnectErr error
	Rows       int64
	SeedErr    error
	DropErr    error
	CountErr   error

	// Track calls
	Connected      bool
	Closed         bool
	DatabaseMade   bool
	TableMade      bool
	Seeded         int
	TestRowsAdded  int
	DroppedDB      bool
	SchemaRequests int
}

func (m *MockClient) Connect(_ context.Context) error {
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	m.Connected = true
	return nil
}

func (m *MockClient) Close() error {
	m.Closed = true
	return nil
}

func (m *MockClient) EnsureDatabase(_ context.Context) error {
	m.DatabaseMade = true
	return nil
}

func (m *MockClient) EnsureTable(_ context.Context) error {
	m.TableMade = true
	return nil
}

func (m *MockClient) SeedRows(_ context.Context) (int, error) {
	if m.SeedErr != nil {
		return 0, m.SeedErr
	}
	n := len(SampleRows())
	m.Seeded += n
	m.Rows += int64(n)
	return n, nil
}

func (m *MockClient) AddTestRows(_ context.Context, n int) (int, error) {
	m.TestRowsAdded += n
	m.Rows += int64(n)
	return n, nil
}

func (m *MockClient) RowCount(_ context.Context) (int64, error) {
	if m.CountErr != nil {
		return 0, m.CountErr
	}
	return m.Rows, nil
}

func (m *MockClient) TableSchema(_ context.Context) ([]Column, error) {
	m.SchemaRequests++
	return []Column{
		{Name: "EMPID", DataType: "int"},
		{Name: "NAME", DataType: "varchar", Nullable: true},
		{Name: "AGE", DataType: "int", Nullable: true},
		{Name: "GENDER", DataType: "varchar", Nullable: true},
		{Name: "LOCATION", DataType: "varchar", Nullable: true},
		{Name: "DATE", DataType: "date", Nullable: true},
		{Name: "SRC_DTS", DataType: "datetime", Nullable: true},
	}, nil
}

func (m *MockClient) DropDatabase(_ context.Context) error {
	if m.DropErr != nil {
		return m.DropErr
	}
	m.DroppedDB = true
	m.Rows = 0
	return nil
}
