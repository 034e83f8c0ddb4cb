package validation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/pipewright/pipewright/internal/cloud"
	"github.com/pipewright/pipewright/internal/sourcedb"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCountCSVRows(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want int64
	}{
		{"empty file", "", 0},
		{"single row no newline", "1,Robert,25,M,Seattle,2023-01-15", 1},
		{"rows with trailing newline", "1,Robert,25\n2,Sam,32\n", 2},
		{"blank lines skipped", "1,Robert,25\n\n2,Sam,32\n\n", 2},
		{"no header convention", "1,Robert,25\n2,Sam,32\n3,Smith,41\n", 3},
	}
	for _, c := range cases {
		got, err := CountCSVRows(strings.NewReader(c.in))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", c.name, err)
		}
		if got != c.want {
			t.Errorf("%s: got %d rows, want %d", c.name, got, c.want)
		}
	}
}

func csvRows(n int, offset int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d,User%d,30,U,Remote,2023-06-01\n", offset+i, offset+i)
	}
	return b.String()
}

func newValidator(sourceRows int64, objects map[string][]byte) *Validator {
	mock := cloud.NewMock()
	mock.Buckets["dms-data-ingestion-123"] = objects
	return &Validator{
		DB:      &sourcedb.MockClient{Rows: sourceRows},
		Storage: mock,
		Bucket:  "dms-data-ingestion-123",
		Folder:  "dms-sql-data",
		Logger:  testLogger(),
	}
}

func TestValidatorMatch(t *testing.T) {
	objects := map[string][]byte{
		"dms-sql-data/":                nil, // folder marker must be ignored
		"dms-sql-data/LOAD00000001.csv": []byte(csvRows(600, 1)),
		"dms-sql-data/LOAD00000002.csv": []byte(csvRows(400, 601)),
	}
	v := newValidator(1000, objects)

	report, err := v.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Passed {
		t.Errorf("expected pass, got difference %d", report.Difference)
	}
	if report.SourceRows != 1000 || report.TargetRows != 1000 {
		t.Errorf("expected 1000/1000, got %d/%d", report.SourceRows, report.TargetRows)
	}
	if report.FileCount != 2 {
		t.Errorf("expected 2 files, got %d", report.FileCount)
	}
	if len(report.SampleRows) != maxSampleRows {
		t.Fatalf("expected %d sample rows, got %d", maxSampleRows, len(report.SampleRows))
	}
	for _, row := range report.SampleRows {
		if strings.Count(row, ",") != 5 {
			t.Errorf("sample row should be a raw exported line, got %q", row)
		}
	}
}

func TestValidatorSampleCappedAcrossFiles(t *testing.T) {
	objects := map[string][]byte{
		"dms-sql-data/LOAD00000001.csv": []byte(csvRows(2, 1)),
		"dms-sql-data/LOAD00000002.csv": []byte(csvRows(10, 3)),
	}
	v := newValidator(12, objects)

	report, err := v.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.SampleRows) != maxSampleRows {
		t.Errorf("expected sample capped at %d rows, got %d", maxSampleRows, len(report.SampleRows))
	}
}

func TestValidatorMismatchReportsBothCounts(t *testing.T) {
	objects := map[string][]byte{
		"dms-sql-data/LOAD00000001.csv": []byte(csvRows(998, 1)),
	}
	v := newValidator(1000, objects)

	report, err := v.Run(context.Background())
	if err != nil {
		t.Fatalf("mismatch must be a finding, not an error: %v", err)
	}
	if report.Passed {
		t.Error("expected failure for 1000 vs 998")
	}
	if report.SourceRows != 1000 || report.TargetRows != 998 {
		t.Errorf("expected 1000/998, got %d/%d", report.SourceRows, report.TargetRows)
	}
	if report.Difference != 2 {
		t.Errorf("expected difference 2, got %d", report.Difference)
	}
}

func TestValidatorNoExportedObjects(t *testing.T) {
	v := newValidator(5, map[string][]byte{"dms-sql-data/": nil})

	report, err := v.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Passed {
		t.Error("expected failure with zero exported rows")
	}
	if report.TargetRows != 0 || report.Difference != 5 {
		t.Errorf("expected 0 target rows and difference 5, got %d/%d", report.TargetRows, report.Difference)
	}
}
