package waiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// State is the probed condition of a long-running cloud operation.
type State int

const (
	InProgress State = iota
	Done
	Failed
	Gone // resource not found
)

// Result carries one probe observation.
type Result struct {
	State    State
	Detail   string // failure detail or stop reason; classified by the caller
	Progress string // human-readable progress, logged on change only
}

// Probe checks the operation once. A returned error is treated as
// transient: it is logged and polling continues until the budget runs out.
type Probe func(ctx context.Context) (Result, error)

// ErrTimeout is returned when an operation exceeds its wait budget.
var ErrTimeout = errors.New("wait timed out")

// Config describes one wait.
type Config struct {
	Name     string
	Probe    Probe
	Interval time.Duration
	MaxWait  time.Duration

	// GoneIsDone treats a missing resource as completion, for deletion waits.
	GoneIsDone bool
}

// Wait polls cfg.Probe until the operation finishes, fails, or the total
// elapsed time exceeds cfg.MaxWait. The budget is measured across the whole
// wait, not per probe, so a wait never overshoots by more than one interval.
func Wait(ctx context.Context, logger *slog.Logger, cfg Config) (Result, error) {
	start := time.Now()
	lastProgress := ""

	for {
		select {
		case <-ctx.Done():
			return Result{State: InProgress}, fmt.Errorf("waiting for %s: %w", cfg.Name, ctx.Err())
		default:
		}

		if time.Since(start) > cfg.MaxWait {
			return Result{State: InProgress}, fmt.Errorf("waiting for %s after %s: %w", cfg.Name, cfg.MaxWait, ErrTimeout)
		}

		res, err := cfg.Probe(ctx)
		if err != nil {
			logger.Warn("probe failed, retrying", "operation", cfg.Name, "error", err)
		} else {
			switch res.State {
			case Done:
				logger.Info("operation complete", "operation", cfg.Name, "elapsed", time.Since(start).Round(time.Second))
				return res, nil

			case Failed:
				return res, fmt.Errorf("%s failed: %s", cfg.Name, res.Detail)

			case Gone:
				if cfg.GoneIsDone {
					logger.Info("resource gone", "operation", cfg.Name, "elapsed", time.Since(start).Round(time.Second))
					return res, nil
				}
				return res, fmt.Errorf("%s: resource disappeared while waiting", cfg.Name)

			case InProgress:
				if res.Progress != "" && res.Progress != lastProgress {
					logger.Info("operation in progress", "operation", cfg.Name, "progress", res.Progress)
					lastProgress = res.Progress
				}
			}
		}

		timer := time.NewTimer(cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{State: InProgress}, fmt.Errorf("waiting for %s: %w", cfg.Name, ctx.Err())
		case <-timer.C:
		}
	}
}
