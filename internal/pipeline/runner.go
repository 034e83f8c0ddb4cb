package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Store persists stage statuses between runs.
type Store interface {
	StageStatus(stage Stage) Status
	SetStageStatus(stage Stage, status Status) error
}

// Work executes the body of a stage.
type Work func(ctx context.Context) error

// Notify receives stage transitions for presentation.
type Notify func(info StageInfo)

// Runner executes stages with skip-on-success re-entry. A stage recorded
// as success is skipped without touching any cloud resource; every other
// record causes the stage to run again from the top.
type Runner struct {
	Store  Store
	Logger *slog.Logger
	Notify Notify
}

// Run executes one stage. alwaysRun bypasses the success-skip, which the
// validation stage uses so a re-deploy re-checks the data every time.
func (r *Runner) Run(ctx context.Context, stage Stage, alwaysRun bool, work Work) error {
	info := StageInfo{Stage: stage, Status: r.Store.StageStatus(stage)}

	if info.Status == StatusSuccess && !alwaysRun {
		r.Logger.Info("stage already succeeded, skipping", "stage", stage)
		info.Status = StatusSkipped
		r.notify(info)
		return nil
	}

	info.Status = StatusRunning
	info.StartedAt = time.Now()
	if err := r.Store.SetStageStatus(stage, StatusRunning); err != nil {
		return fmt.Errorf("recording stage %s start: %w", stage, err)
	}
	r.Logger.Info("stage started", "stage", stage)
	r.notify(info)

	if err := work(ctx); err != nil {
		info.Status = StatusFailed
		info.EndedAt = time.Now()
		info.LastError = err.Error()
		if saveErr := r.Store.SetStageStatus(stage, StatusFailed); saveErr != nil {
			r.Logger.Error("recording stage failure", "stage", stage, "error", saveErr)
		}
		r.Logger.Error("stage failed", "stage", stage, "error", err)
		r.notify(info)
		return fmt.Errorf("stage %s: %w", stage, err)
	}

	info.Status = StatusSuccess
	info.EndedAt = time.Now()
	if err := r.Store.SetStageStatus(stage, StatusSuccess); err != nil {
		return fmt.Errorf("recording stage %s success: %w", stage, err)
	}
	r.Logger.Info("stage succeeded", "stage", stage, "elapsed", info.EndedAt.Sub(info.StartedAt).Round(time.Second))
	r.notify(info)
	return nil
}

func (r *Runner) notify(info StageInfo) {
	if r.Notify != nil {
		r.Notify(info)
	}
}
