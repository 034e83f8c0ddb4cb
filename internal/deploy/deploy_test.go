package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pipewright/pipewright/internal/cloud"
	"github.com/pipewright/pipewright/internal/config"
	"github.com/pipewright/pipewright/internal/monitoring"
	"github.com/pipewright/pipewright/internal/pipeline"
	"github.com/pipewright/pipewright/internal/session"
	"github.com/pipewright/pipewright/internal/sourcedb"
)

type mockMonitor struct {
	SetupCalls int
	Err        error
}

func (m *mockMonitor) Setup(_ context.Context, taskID, email string) (*monitoring.Result, error) {
	m.SetupCalls++
	if m.Err != nil {
		return nil, m.Err
	}
	return &monitoring.Result{
		AlarmNames: []string{
			"DMS-Task-Failure-" + taskID,
			"DMS-High-Replication-Lag-" + taskID,
			"DMS-Low-Throughput-" + taskID,
		},
		DashboardName: "DMS-Migration-" + taskID,
	}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Version: 1,
		Project: config.ProjectConfig{Name: "demo"},
		AWS:     config.AWSConfig{Region: "us-east-1"},
		SourceDB: config.SourceDBConfig{
			Engine:           "postgres",
			InstanceID:       "dms-source-db",
			InstanceClass:    "db.t3.medium",
			AllocatedStorage: 20,
			Username:         "dbadmin",
			Password:         "secret",
			Database:         "SRC_DB",
			Table:            "raw_src",
			Port:             5432,
		},
		Replication: config.ReplicationConfig{
			InstanceID:       "dms-replication-instance",
			InstanceClass:    "dms.t3.medium",
			AllocatedStorage: 50,
			SourceEndpoint:   "postgres-source",
			TargetEndpoint:   "s3-target",
			TaskID:           "postgres-to-s3-migration",
			RoleName:         "dms-s3-access-role",
		},
		Storage: config.StorageConfig{Folder: "dms-sql-data"},
	}
}

func csvRows(n int) []byte {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "%d,User%d,30,U,Remote,2023-06-01\n", i, i)
	}
	return []byte(b.String())
}

func newTestPipeline(t *testing.T, mock *cloud.Mock, db *sourcedb.MockClient) *Pipeline {
	t.Helper()
	dir := t.TempDir()

	sess, err := session.LoadOrCreate(filepath.Join(dir, "working-parameters.json"), "demo", "us-east-1")
	if err != nil {
		t.Fatal(err)
	}
	cont, err := session.LoadContinuity(filepath.Join(dir, "continuity.json"), "demo", "us-east-1")
	if err != nil {
		t.Fatal(err)
	}

	return &Pipeline{
		Cfg:         testConfig(),
		Session:     sess,
		Continuity:  cont,
		Database:    mock,
		Network:     mock,
		Storage:     mock,
		Identity:    mock,
		Replication: mock,
		NewSource: func(params sourcedb.Params) (sourcedb.Client, error) {
			return db, nil
		},
		Monitor:      &mockMonitor{},
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		PollInterval: time.Millisecond,
		DBWait:       time.Second,
		ReplWait:     time.Second,
		ConnWait:     time.Second,
		TaskWait:     time.Second,
	}
}

// seedExport places exported CSV objects matching n source rows so the
// validate stage can pass against the mock.
func seedExport(mock *cloud.Mock, n int) {
	mock.Buckets["dms-data-ingestion-123456789012"] = map[string][]byte{
		"dms-sql-data/":                 nil,
		"dms-sql-data/LOAD00000001.csv": csvRows(n),
	}
}

func TestPipelineHappyPath(t *testing.T) {
	mock := cloud.NewMock()
	db := &sourcedb.MockClient{}
	seedExport(mock, len(sourcedb.SampleRows()))
	p := newTestPipeline(t, mock, db)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, stage := range pipeline.Stages() {
		if got := p.Continuity.StageStatus(stage); got != pipeline.StatusSuccess {
			t.Errorf("stage %s: expected success, got %s", stage, got)
		}
	}

	if got := p.Session.Resource("db_endpoint"); got != "dms-source-db.db.local" {
		t.Errorf("expected recorded db endpoint, got %q", got)
	}
	if p.Session.Resource("task_arn") == "" {
		t.Error("expected recorded task ARN")
	}
	if got := p.Session.Resource("bucket"); got != "dms-data-ingestion-123456789012" {
		t.Errorf("expected derived bucket name, got %q", got)
	}
	if db.Seeded != len(sourcedb.SampleRows()) {
		t.Errorf("expected %d seeded rows, got %d", len(sourcedb.SampleRows()), db.Seeded)
	}
	if !db.DatabaseMade || !db.TableMade {
		t.Error("expected database and table ensured")
	}
	if db.SchemaRequests == 0 {
		t.Error("expected the table layout to be verified after creation")
	}
}

func TestPipelineConnectionTestsPrecedeTask(t *testing.T) {
	mock := cloud.NewMock()
	db := &sourcedb.MockClient{}
	seedExport(mock, len(sourcedb.SampleRows()))
	p := newTestPipeline(t, mock, db)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	taskIdx := -1
	connTests := 0
	for i, call := range mock.Calls {
		if strings.HasPrefix(call, "EnsureReplicationTask:") {
			taskIdx = i
		}
		if strings.HasPrefix(call, "TestConnection:") && taskIdx == -1 {
			connTests++
		}
	}
	if taskIdx == -1 {
		t.Fatal("expected replication task to be created")
	}
	if connTests != 2 {
		t.Errorf("expected both endpoint connection tests before task creation, got %d", connTests)
	}
}

func TestPipelineIdempotentReentry(t *testing.T) {
	mock := cloud.NewMock()
	db := &sourcedb.MockClient{}
	seedExport(mock, len(sourcedb.SampleRows()))
	p := newTestPipeline(t, mock, db)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	// completed stages must not touch the provider again
	if n := mock.CallsTo("EnsureDBInstance:"); n != 1 {
		t.Errorf("expected 1 EnsureDBInstance call across both runs, got %d", n)
	}
	if n := mock.CallsTo("EnsureReplicationTask:"); n != 1 {
		t.Errorf("expected 1 EnsureReplicationTask call across both runs, got %d", n)
	}
	if n := mock.CallsTo("StartReplicationTask:"); n != 1 {
		t.Errorf("expected 1 StartReplicationTask call across both runs, got %d", n)
	}

	// validate always re-runs
	if mon := p.Monitor.(*mockMonitor); mon.SetupCalls != 2 {
		t.Errorf("expected validate stage to run twice, got %d monitor setups", mon.SetupCalls)
	}
}

func TestPipelinePreflightFailureTouchesNothing(t *testing.T) {
	mock := cloud.NewMock()
	mock.Errs["VerifyCredentials"] = errors.New("no credentials")
	p := newTestPipeline(t, mock, &sourcedb.MockClient{})

	if err := p.Run(context.Background()); err == nil {
		t.Fatal("expected preflight error")
	}
	if len(mock.Calls) != 0 {
		t.Errorf("preflight failure must not create resources, got calls %v", mock.Calls)
	}
	for _, stage := range pipeline.Stages() {
		if got := p.Continuity.StageStatus(stage); got != pipeline.StatusPending {
			t.Errorf("stage %s: expected pending after preflight failure, got %s", stage, got)
		}
	}
}

func TestPipelineStageFailureHalts(t *testing.T) {
	mock := cloud.NewMock()
	mock.Errs["EnsureBucket"] = errors.New("access denied")
	p := newTestPipeline(t, mock, &sourcedb.MockClient{})

	if err := p.Run(context.Background()); err == nil {
		t.Fatal("expected infra failure")
	}

	if got := p.Continuity.StageStatus(pipeline.StageInfra); got != pipeline.StatusFailed {
		t.Errorf("infra: expected failed, got %s", got)
	}
	if got := p.Continuity.StageStatus(pipeline.StageDBInit); got != pipeline.StatusPending {
		t.Errorf("db_init: expected pending after halt, got %s", got)
	}
	if n := mock.CallsTo("EnsureReplicationInstance:"); n != 0 {
		t.Errorf("replicate stage must not run after infra failure, got %d calls", n)
	}
}

func TestPipelineBadStopReasonFailsReplicate(t *testing.T) {
	mock := cloud.NewMock()
	mock.StartStopReason = "Stop Reason UNEXPECTED_ERROR"
	db := &sourcedb.MockClient{}
	seedExport(mock, len(sourcedb.SampleRows()))
	p := newTestPipeline(t, mock, db)

	err := p.Run(context.Background())
	if err == nil {
		t.Fatal("expected failure for unexpected stop reason")
	}
	if !strings.Contains(err.Error(), "UNEXPECTED_ERROR") {
		t.Errorf("expected stop reason in error, got %v", err)
	}
	if got := p.Continuity.StageStatus(pipeline.StageReplicate); got != pipeline.StatusFailed {
		t.Errorf("replicate: expected failed, got %s", got)
	}
}

func TestPipelineValidationMismatchFails(t *testing.T) {
	mock := cloud.NewMock()
	db := &sourcedb.MockClient{}
	// two rows short of the seeded five
	mock.Buckets["dms-data-ingestion-123456789012"] = map[string][]byte{
		"dms-sql-data/LOAD00000001.csv": csvRows(3),
	}
	p := newTestPipeline(t, mock, db)

	err := p.Run(context.Background())
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(err.Error(), "source=5") || !strings.Contains(err.Error(), "target=3") {
		t.Errorf("expected both counts in error, got %v", err)
	}
}

func TestIsSuccessfulStop(t *testing.T) {
	cases := []struct {
		reason string
		want   bool
	}{
		{"Stop Reason FULL_LOAD_COMPLETED", true},
		{"FULL_LOAD_COMPLETED", true},
		{"Full load completed", true},
		{"Stop Reason UNEXPECTED_ERROR", false},
		{"Stop Reason FATAL_ERROR", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsSuccessfulStop(c.reason); got != c.want {
			t.Errorf("IsSuccessfulStop(%q) = %v, want %v", c.reason, got, c.want)
		}
	}
}
