package waiter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWaitDone(t *testing.T) {
	calls := 0
	probe := func(ctx context.Context) (Result, error) {
		calls++
		if calls < 3 {
			return Result{State: InProgress}, nil
		}
		return Result{State: Done, Detail: "available"}, nil
	}

	res, err := Wait(context.Background(), testLogger(), Config{
		Name:     "db instance available",
		Probe:    probe,
		Interval: time.Millisecond,
		MaxWait:  time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != Done {
		t.Errorf("expected Done, got %v", res.State)
	}
	if calls != 3 {
		t.Errorf("expected 3 probes, got %d", calls)
	}
}

func TestWaitFailedCarriesDetail(t *testing.T) {
	probe := func(ctx context.Context) (Result, error) {
		return Result{State: Failed, Detail: "UNEXPECTED_ERROR"}, nil
	}

	res, err := Wait(context.Background(), testLogger(), Config{
		Name:     "replication task",
		Probe:    probe,
		Interval: time.Millisecond,
		MaxWait:  time.Second,
	})
	if err == nil {
		t.Fatal("expected error for failed operation")
	}
	if res.Detail != "UNEXPECTED_ERROR" {
		t.Errorf("expected detail carried through, got %q", res.Detail)
	}
}

func TestWaitTimeoutBound(t *testing.T) {
	probe := func(ctx context.Context) (Result, error) {
		return Result{State: InProgress}, nil
	}

	interval := 5 * time.Millisecond
	maxWait := 25 * time.Millisecond
	start := time.Now()
	_, err := Wait(context.Background(), testLogger(), Config{
		Name:     "never finishes",
		Probe:    probe,
		Interval: interval,
		MaxWait:  maxWait,
	})
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	// the wait may overshoot by at most one interval (plus scheduling slack)
	if elapsed > maxWait+interval+50*time.Millisecond {
		t.Errorf("wait overshot budget: elapsed %s, budget %s + %s", elapsed, maxWait, interval)
	}
}

func TestWaitTransientProbeErrorContinues(t *testing.T) {
	calls := 0
	probe := func(ctx context.Context) (Result, error) {
		calls++
		if calls < 3 {
			return Result{}, errors.New("throttled")
		}
		return Result{State: Done}, nil
	}

	_, err := Wait(context.Background(), testLogger(), Config{
		Name:     "flaky describe",
		Probe:    probe,
		Interval: time.Millisecond,
		MaxWait:  time.Second,
	})
	if err != nil {
		t.Fatalf("transient probe errors must not abort the wait: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 probes, got %d", calls)
	}
}

func TestWaitGoneIsDoneForDeletion(t *testing.T) {
	probe := func(ctx context.Context) (Result, error) {
		return Result{State: Gone}, nil
	}

	res, err := Wait(context.Background(), testLogger(), Config{
		Name:       "db instance deleted",
		Probe:      probe,
		Interval:   time.Millisecond,
		MaxWait:    time.Second,
		GoneIsDone: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != Gone {
		t.Errorf("expected Gone result, got %v", res.State)
	}
}

func TestWaitGoneDuringCreationFails(t *testing.T) {
	probe := func(ctx context.Context) (Result, error) {
		return Result{State: Gone}, nil
	}

	_, err := Wait(context.Background(), testLogger(), Config{
		Name:     "db instance available",
		Probe:    probe,
		Interval: time.Millisecond,
		MaxWait:  time.Second,
	})
	if err == nil {
		t.Fatal("expected error when resource vanishes during a creation wait")
	}
}

func TestWaitCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	probe := func(ctx context.Context) (Result, error) {
		cancel()
		return Result{State: InProgress}, nil
	}

	_, err := Wait(ctx, testLogger(), Config{
		Name:     "cancelled wait",
		Probe:    probe,
		Interval: time.Second,
		MaxWait:  time.Minute,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
