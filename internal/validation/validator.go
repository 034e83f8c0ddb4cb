// Package validation compares the source table against the objects the
// replication task exported, by row count.
package validation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pipewright/pipewright/internal/cloud"
	"github.com/pipewright/pipewright/internal/sourcedb"
)

// Report holds the outcome of a validation run. A mismatch is a finding,
// not an error: both counts and their difference are always reported.
// SampleRows carries the first few exported lines so an operator can eyeball
// the data that actually landed.
type Report struct {
	Passed      bool      `json:"passed"`
	SourceRows  int64     `json:"source_rows"`
	TargetRows  int64     `json:"target_rows"`
	Difference  int64     `json:"difference"`
	FileCount   int       `json:"file_count"`
	TotalBytes  int64     `json:"total_bytes"`
	SampleRows  []string  `json:"sample_rows,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// maxSampleRows caps how many exported lines the report carries.
const maxSampleRows = 5

// Validator counts rows on both sides of the pipeline.
type Validator struct {
	DB      sourcedb.Client
	Storage cloud.StorageProvider
	Bucket  string
	Folder  string
	Logger  *slog.Logger
}

// Run counts source table rows and the rows in every exported CSV object
// under the target folder.
func (v *Validator) Run(ctx context.Context) (*Report, error) {
	report := &Report{StartedAt: time.Now()}

	sourceRows, err := v.DB.RowCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting source rows: %w", err)
	}
	report.SourceRows = sourceRows

	prefix := v.Folder
	if prefix != "" && prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	objects, err := v.Storage.ListDataObjects(ctx, v.Bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing exported objects: %w", err)
	}

	for _, obj := range objects {
		body, err := v.Storage.GetObject(ctx, v.Bucket, obj.Key)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", obj.Key, err)
		}
		rows, sample, err := scanCSV(body, maxSampleRows-len(report.SampleRows))
		body.Close()
		if err != nil {
			return nil, fmt.Errorf("counting rows in %s: %w", obj.Key, err)
		}
		report.SampleRows = append(report.SampleRows, sample...)

		report.TargetRows += rows
		report.FileCount++
		report.TotalBytes += obj.Size
		v.Logger.Debug("counted exported object", "key", obj.Key, "rows", rows, "bytes", obj.Size)
	}

	report.Difference = report.SourceRows - report.TargetRows
	report.Passed = report.Difference == 0
	report.CompletedAt = time.Now()

	if report.Passed {
		v.Logger.Info("validation passed",
			"source_rows", report.SourceRows,
			"target_rows", report.TargetRows,
			"files", report.FileCount)
	} else {
		v.Logger.Error("row count mismatch",
			"source_rows", report.SourceRows,
			"target_rows", report.TargetRows,
			"difference", report.Difference)
	}
	return report, nil
}
