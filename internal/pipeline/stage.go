package pipeline

import "time"

// Stage identifies one step of the deployment pipeline.
type Stage string

const (
	StageInfra     Stage = "infra"
	StageDBInit    Stage = "db_init"
	StageReplicate Stage = "replicate"
	StageValidate  Stage = "validate"

	// StageCleanup is tracked in the continuity file but executed by the
	// unwind coordinator, never by the deploy runner.
	StageCleanup Stage = "cleanup"
)

// Stages returns the deployment stages in execution order.
func Stages() []Stage {
	return []Stage{StageInfra, StageDBInit, StageReplicate, StageValidate}
}

// Status is the recorded outcome of a stage.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusWaiting Status = "waiting"
)

// ParseStatus normalizes a persisted status string. Legacy spellings are
// folded into the closed set; anything unrecognized becomes pending so a
// re-run re-executes the stage rather than trusting a corrupt record.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusPending, StatusRunning, StatusSuccess, StatusFailed, StatusSkipped, StatusWaiting:
		return Status(s)
	}
	switch s {
	case "failure", "error":
		return StatusFailed
	case "succeeded", "complete", "completed":
		return StatusSuccess
	}
	return StatusPending
}

// IsTerminal reports whether a status will not change without a new run.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusSkipped
}

// StageInfo is the live view of one stage, fed to the status callback.
type StageInfo struct {
	Stage     Stage
	Status    Status
	StartedAt time.Time
	EndedAt   time.Time
	LastError string
}
