package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipewright.yaml")

	content := `version: 1
project:
  name: ingestion-demo
aws:
  region: us-east-1
source_db:
  engine: postgres
  username: dbadmin
  password: testpass
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Version != 1 {
		t.Errorf("expected version 1, got %d", cfg.Version)
	}
	if cfg.SourceDB.Engine != "postgres" {
		t.Errorf("expected engine postgres, got %s", cfg.SourceDB.Engine)
	}
	if cfg.SourceDB.Port != 5432 {
		t.Errorf("expected default port 5432, got %d", cfg.SourceDB.Port)
	}
	if cfg.SourceDB.Database != "SRC_DB" {
		t.Errorf("expected default database SRC_DB, got %s", cfg.SourceDB.Database)
	}
	if cfg.Replication.TaskID != "postgres-to-s3-migration" {
		t.Errorf("expected default task id, got %s", cfg.Replication.TaskID)
	}
	if cfg.Storage.Folder != "dms-sql-data" {
		t.Errorf("expected default folder dms-sql-data, got %s", cfg.Storage.Folder)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Logging.Level)
	}
}

func TestSQLServerPortDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipewright.yaml")

	content := `version: 1
source_db:
  engine: sqlserver
  username: dbadmin
  password: testpass
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SourceDB.Port != 1433 {
		t.Errorf("expected default port 1433, got %d", cfg.SourceDB.Port)
	}
	if cfg.Replication.SourceEndpoint != "sqlserver-source" {
		t.Errorf("expected default source endpoint sqlserver-source, got %s", cfg.Replication.SourceEndpoint)
	}
}

func TestLoadInvalidVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipewright.yaml")

	content := `version: 99
source_db:
  engine: postgres
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid version")
	}
}

func TestLoadUnsupportedEngine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipewright.yaml")

	content := `version: 1
source_db:
  engine: oracle
  username: dbadmin
  password: testpass
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unsupported engine")
	}
}

func TestResolveEnvSecret(t *testing.T) {
	t.Setenv("TEST_SECRET", "mysecret")
	val, err := ResolveValue("${ENV:TEST_SECRET}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "mysecret" {
		t.Errorf("expected mysecret, got %s", val)
	}
}

func TestResolvePlainValue(t *testing.T) {
	val, err := ResolveValue("plaintext")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "plaintext" {
		t.Errorf("expected plaintext, got %s", val)
	}
}
