package lock

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipewright.lock")

	if err := Acquire(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	held, pid, err := IsHeld(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !held {
		t.Error("expected lock to be held")
	}
	if pid != os.Getpid() {
		t.Errorf("expected lock held by PID %d, got %d", os.Getpid(), pid)
	}

	if err := Release(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	held, _, err = IsHeld(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if held {
		t.Error("expected lock to be released")
	}
}

func TestAcquireRejectsRunningProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipewright.lock")

	if err := Acquire(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer Release(path)

	// Same PID is a running process, so a second acquire must fail.
	if err := Acquire(path); err == nil {
		t.Error("expected error when lock is held by a running process")
	}
}

func TestAcquireReclaimsStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipewright.lock")

	// A PID that is extremely unlikely to be running.
	if err := os.WriteFile(path, []byte("999999"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Acquire(path); err != nil {
		t.Fatalf("expected stale lock to be reclaimed: %v", err)
	}
}

func TestReleaseMissingLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipewright.lock")
	if err := Release(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
