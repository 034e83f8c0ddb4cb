package session

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pipewright/pipewright/internal/pipeline"
)

func TestLoadOrCreateNewSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "working-parameters.json")

	s, err := LoadOrCreate(path, "demo", "us-east-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ProjectName != "demo" {
		t.Errorf("expected project demo, got %s", s.ProjectName)
	}
	if len(s.DeploymentID) != 8 {
		t.Errorf("expected 8-char deployment id, got %q", s.DeploymentID)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected session file to be created: %v", err)
	}

	// a second load keeps the same identity
	s2, err := LoadOrCreate(path, "demo", "us-east-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s2.DeploymentID != s.DeploymentID {
		t.Errorf("expected stable deployment id, got %s then %s", s.DeploymentID, s2.DeploymentID)
	}
}

func TestLoadMissingFileIsNotExist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "working-parameters.json")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected an error for a missing session file")
	}
	// Load wraps the read error; LoadOrCreate relies on unwrapping it to
	// tell a fresh machine apart from a real read failure.
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected error to match os.ErrNotExist, got %v", err)
	}
}

func TestSetResourceWriteThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "working-parameters.json")
	s, err := LoadOrCreate(path, "demo", "us-east-1")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.SetResource("db_endpoint", "db.example.internal"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := loaded.Resource("db_endpoint"); got != "db.example.internal" {
		t.Errorf("expected persisted resource, got %q", got)
	}
}

func TestSetResourceRefusesEmptyOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "working-parameters.json")
	s, err := LoadOrCreate(path, "demo", "us-east-1")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.SetResource("task_arn", "arn:aws:dms:us-east-1:123:task/abc"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetResource("task_arn", ""); err != nil {
		t.Fatal(err)
	}

	if got := s.Resource("task_arn"); got != "arn:aws:dms:us-east-1:123:task/abc" {
		t.Errorf("empty value must not erase an existing record, got %q", got)
	}
}

func TestUnknownKeysRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "working-parameters.json")

	content := `{
  "project_name": "demo",
  "deployment_id": "a1b2c3d4",
  "region": "us-east-1",
  "created_resources": {"bucket": "dms-data-ingestion-123"},
  "configuration": {"folder": "dms-sql-data"},
  "operator_note": {"author": "sam", "ticket": "OPS-441"}
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SetResource("role_arn", "arn:aws:iam::123:role/dms-s3-access-role"); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}

	note, ok := raw["operator_note"]
	if !ok {
		t.Fatal("expected unknown key operator_note to survive save")
	}
	var parsed struct {
		Ticket string `json:"ticket"`
	}
	if err := json.Unmarshal(note, &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed.Ticket != "OPS-441" {
		t.Errorf("expected unknown key content preserved verbatim, got %q", parsed.Ticket)
	}
}

func TestContinuityNormalizesStatuses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "continuity.json")

	content := `{
  "project_name": "demo",
  "region": "us-east-1",
  "tasks": {
    "infra": "success",
    "db_init": "failure",
    "replicate": "garbage"
  }
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadContinuity(path, "demo", "us-east-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := c.StageStatus(pipeline.StageInfra); got != pipeline.StatusSuccess {
		t.Errorf("infra: expected success, got %s", got)
	}
	if got := c.StageStatus(pipeline.StageDBInit); got != pipeline.StatusFailed {
		t.Errorf("db_init: expected failed (normalized from failure), got %s", got)
	}
	if got := c.StageStatus(pipeline.StageReplicate); got != pipeline.StatusPending {
		t.Errorf("replicate: expected pending for unknown status, got %s", got)
	}
	if got := c.StageStatus(pipeline.StageValidate); got != pipeline.StatusPending {
		t.Errorf("validate: expected pending for missing entry, got %s", got)
	}
	if got := c.StageStatus(pipeline.StageCleanup); got != pipeline.StatusPending {
		t.Errorf("cleanup entry must always be present, got %s", got)
	}
}

func TestContinuityPersistsStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "continuity.json")

	c, err := LoadContinuity(path, "demo", "us-east-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SetStageStatus(pipeline.StageInfra, pipeline.StatusSuccess); err != nil {
		t.Fatal(err)
	}

	c2, err := LoadContinuity(path, "demo", "us-east-1")
	if err != nil {
		t.Fatal(err)
	}
	if got := c2.StageStatus(pipeline.StageInfra); got != pipeline.StatusSuccess {
		t.Errorf("expected persisted success, got %s", got)
	}
}

func TestMarkerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	markerPath := filepath.Join(dir, "unwind-progress.json")

	s := New("demo", "us-east-1", filepath.Join(dir, "working-parameters.json"))
	s.CreatedResources["bucket"] = "dms-data-ingestion-123"
	raw, err := s.Raw()
	if err != nil {
		t.Fatal(err)
	}

	if err := WriteMarker(markerPath, raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m, err := LoadMarker(markerPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m == nil || !m.Completed {
		t.Fatal("expected completed marker")
	}
	var embedded struct {
		CreatedResources map[string]string `json:"created_resources"`
	}
	if err := json.Unmarshal(m.Session, &embedded); err != nil {
		t.Fatal(err)
	}
	if embedded.CreatedResources["bucket"] != "dms-data-ingestion-123" {
		t.Error("expected verbatim session copy inside marker")
	}
}

func TestLoadMarkerMissing(t *testing.T) {
	m, err := LoadMarker(filepath.Join(t.TempDir(), "unwind-progress.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != nil {
		t.Error("expected nil marker for missing file")
	}
}
