package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

// memStore is an in-memory Store for runner tests.
type memStore struct {
	statuses map[Stage]Status
	saves    []Status
	saveErr  error
}

func newMemStore() *memStore {
	return &memStore{statuses: make(map[Stage]Status)}
}

func (m *memStore) StageStatus(stage Stage) Status {
	if st, ok := m.statuses[stage]; ok {
		return st
	}
	return StatusPending
}

func (m *memStore) SetStageStatus(stage Stage, status Status) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.statuses[stage] = status
	m.saves = append(m.saves, status)
	return nil
}

func testRunner(store Store) *Runner {
	return &Runner{
		Store:  store,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestRunSuccess(t *testing.T) {
	store := newMemStore()
	r := testRunner(store)

	ran := false
	err := r.Run(context.Background(), StageInfra, false, func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Error("expected work to run")
	}
	if got := store.StageStatus(StageInfra); got != StatusSuccess {
		t.Errorf("expected recorded success, got %s", got)
	}
	// running must be persisted before the work, success after
	if len(store.saves) != 2 || store.saves[0] != StatusRunning || store.saves[1] != StatusSuccess {
		t.Errorf("unexpected save sequence: %v", store.saves)
	}
}

func TestRunSkipsCompletedStage(t *testing.T) {
	store := newMemStore()
	store.statuses[StageInfra] = StatusSuccess
	r := testRunner(store)

	var skipped bool
	r.Notify = func(info StageInfo) {
		if info.Status == StatusSkipped {
			skipped = true
		}
	}

	err := r.Run(context.Background(), StageInfra, false, func(ctx context.Context) error {
		t.Fatal("work must not run for a completed stage")
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !skipped {
		t.Error("expected skipped notification")
	}
	// the persisted record stays success, untouched
	if got := store.StageStatus(StageInfra); got != StatusSuccess {
		t.Errorf("expected record to remain success, got %s", got)
	}
	if len(store.saves) != 0 {
		t.Errorf("expected no writes on skip, got %v", store.saves)
	}
}

func TestRunAlwaysRunReexecutes(t *testing.T) {
	store := newMemStore()
	store.statuses[StageValidate] = StatusSuccess
	r := testRunner(store)

	ran := false
	err := r.Run(context.Background(), StageValidate, true, func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Error("expected work to run with alwaysRun")
	}
}

func TestRunFailureRecordsAndReturns(t *testing.T) {
	store := newMemStore()
	r := testRunner(store)

	var failInfo StageInfo
	r.Notify = func(info StageInfo) {
		if info.Status == StatusFailed {
			failInfo = info
		}
	}

	boom := errors.New("endpoint unreachable")
	err := r.Run(context.Background(), StageReplicate, false, func(ctx context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped work error, got %v", err)
	}
	if got := store.StageStatus(StageReplicate); got != StatusFailed {
		t.Errorf("expected recorded failure, got %s", got)
	}
	if failInfo.LastError != "endpoint unreachable" {
		t.Errorf("expected error message in stage info, got %q", failInfo.LastError)
	}
}

func TestParseStatus(t *testing.T) {
	cases := []struct {
		in   string
		want Status
	}{
		{"success", StatusSuccess},
		{"failed", StatusFailed},
		{"failure", StatusFailed},
		{"error", StatusFailed},
		{"completed", StatusSuccess},
		{"waiting", StatusWaiting},
		{"skipped", StatusSkipped},
		{"running", StatusRunning},
		{"", StatusPending},
		{"garbage", StatusPending},
	}
	for _, c := range cases {
		if got := ParseStatus(c.in); got != c.want {
			t.Errorf("ParseStatus(%q) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestStagesOrder(t *testing.T) {
	want := []Stage{StageInfra, StageDBInit, StageReplicate, StageValidate}
	got := Stages()
	if len(got) != len(want) {
		t.Fatalf("expected %d stages, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("stage %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
