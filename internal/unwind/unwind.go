// Package unwind tears down every resource a deployment created, in strict
// reverse dependency order. Teardown is resumable: each step tolerates a
// resource that is already gone, and a completion marker makes a finished
// teardown a no-op on re-entry.
package unwind

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/pipewright/pipewright/internal/cloud"
	"github.com/pipewright/pipewright/internal/config"
	"github.com/pipewright/pipewright/internal/pipeline"
	"github.com/pipewright/pipewright/internal/session"
	"github.com/pipewright/pipewright/internal/sourcedb"
	"github.com/pipewright/pipewright/internal/waiter"
)

// MonitorCleanup removes the observability resources for a task.
type MonitorCleanup interface {
	Cleanup(ctx context.Context, taskID, topicARN string) error
}

// SourceFactory builds a source database client for the drop step.
type SourceFactory func(params sourcedb.Params) (sourcedb.Client, error)

// StepResult records the outcome of one teardown step.
type StepResult struct {
	Name    string
	Outcome string // removed, already gone, skipped, failed
	Err     error
}

// Result summarizes a teardown run.
type Result struct {
	Completed bool
	Steps     []StepResult
	Failed    []string
}

// Coordinator drives the teardown. Every step runs even when an earlier
// one fails; only a fully clean run writes the completion marker.
type Coordinator struct {
	Cfg        *config.Config
	Session    *session.Session
	Continuity *session.Continuity
	MarkerPath string

	Database    cloud.DatabaseProvider
	Network     cloud.NetworkProvider
	Storage     cloud.StorageProvider
	Identity    cloud.IdentityProvider
	Replication cloud.ReplicationProvider
	NewSource   SourceFactory
	Monitor     MonitorCleanup

	Logger *slog.Logger

	// Wait tuning; tests shrink these.
	PollInterval time.Duration
	StopWait     time.Duration
	ReplGoneWait time.Duration
	DBGoneWait   time.Duration
}

func (c *Coordinator) applyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.StopWait == 0 {
		c.StopWait = 5 * time.Minute
	}
	if c.ReplGoneWait == 0 {
		c.ReplGoneWait = 20 * time.Minute
	}
	if c.DBGoneWait == 0 {
		c.DBGoneWait = 30 * time.Minute
	}
}

// Run executes the full teardown. A completed marker short-circuits the
// whole run without touching any provider.
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	c.applyDefaults()

	marker, err := session.LoadMarker(c.MarkerPath)
	if err != nil {
		return nil, err
	}
	if marker != nil && marker.Completed {
		c.Logger.Info("teardown already completed", "completed_at", marker.CompletedAt)
		return &Result{Completed: true}, nil
	}

	if err := c.Continuity.SetStageStatus(pipeline.StageCleanup, pipeline.StatusRunning); err != nil {
		return nil, err
	}

	res := &Result{}
	steps := []struct {
		name string
		run  func(ctx context.Context) error
	}{
		{"monitoring", c.removeMonitoring},
		{"replication task", c.removeTask},
		{"endpoints", c.removeEndpoints},
		{"replication instance", c.removeReplicationInstance},
		{"source database", c.dropSourceDatabase},
		{"db instance", c.removeDBInstance},
		{"bucket", c.removeBucket},
		{"iam roles", c.removeRoles},
		{"security group", c.removeSecurityGroup},
	}

	for _, step := range steps {
		err := step.run(ctx)
		switch {
		case err == nil:
			c.Logger.Info("removed", "step", step.name)
			res.Steps = append(res.Steps, StepResult{Name: step.name, Outcome: "removed"})
		case cloud.IsNotFound(err):
			c.Logger.Info("already gone", "step", step.name)
			res.Steps = append(res.Steps, StepResult{Name: step.name, Outcome: "already gone"})
		case cloud.IsDependencyViolation(err):
			c.Logger.Warn("still in use, skipping", "step", step.name, "error", err)
			res.Steps = append(res.Steps, StepResult{Name: step.name, Outcome: "skipped", Err: err})
		default:
			c.Logger.Error("teardown step failed", "step", step.name, "error", err)
			res.Steps = append(res.Steps, StepResult{Name: step.name, Outcome: "failed", Err: err})
			res.Failed = append(res.Failed, step.name)
		}
	}

	if len(res.Failed) > 0 {
		if err := c.Continuity.SetStageStatus(pipeline.StageCleanup, pipeline.StatusFailed); err != nil {
			return res, err
		}
		return res, fmt.Errorf("teardown incomplete: %d step(s) failed", len(res.Failed))
	}

	if err := c.Continuity.SetStageStatus(pipeline.StageCleanup, pipeline.StatusSuccess); err != nil {
		return res, err
	}

	raw, err := c.Session.Raw()
	if err != nil {
		return res, fmt.Errorf("snapshotting session: %w", err)
	}
	if err := session.WriteMarker(c.MarkerPath, raw); err != nil {
		return res, fmt.Errorf("writing completion marker: %w", err)
	}

	res.Completed = true
	c.Logger.Info("teardown complete", "deployment_id", c.Session.DeploymentID)
	return res, nil
}

func (c *Coordinator) removeMonitoring(ctx context.Context) error {
	if c.Monitor == nil {
		return cloud.NotFoundError("monitoring")
	}
	taskID := c.Session.Config("task")
	if taskID == "" {
		taskID = c.Cfg.Replication.TaskID
	}
	return c.Monitor.Cleanup(ctx, taskID, c.Session.Resource("sns_topic_arn"))
}

// removeTask stops a still-running task before deleting it. DMS refuses to
// delete a task in the running state.
func (c *Coordinator) removeTask(ctx context.Context) error {
	arn := c.Session.Resource("task_arn")
	if arn == "" {
		return cloud.NotFoundError("replication task")
	}

	ts, err := c.Replication.TaskStatus(ctx, arn)
	if err != nil {
		return err
	}

	if ts.Status == "running" || ts.Status == "starting" {
		if err := c.Replication.StopReplicationTask(ctx, arn); err != nil && !cloud.IsNotFound(err) {
			return err
		}
		_, err := waiter.Wait(ctx, c.Logger, waiter.Config{
			Name:       "replication task stop",
			Interval:   c.PollInterval,
			MaxWait:    c.StopWait,
			GoneIsDone: true,
			Probe: func(ctx context.Context) (waiter.Result, error) {
				ts, err := c.Replication.TaskStatus(ctx, arn)
				if err != nil {
					if cloud.IsNotFound(err) {
						return waiter.Result{State: waiter.Gone}, nil
					}
					return waiter.Result{}, err
				}
				if ts.Status == "stopped" || ts.Status == "failed" || ts.Status == "ready" {
					return waiter.Result{State: waiter.Done, Detail: ts.Status}, nil
				}
				return waiter.Result{State: waiter.InProgress, Progress: ts.Status}, nil
			},
		})
		if err != nil {
			return err
		}
	}

	if err := c.Replication.DeleteReplicationTask(ctx, arn); err != nil {
		return err
	}

	_, err = waiter.Wait(ctx, c.Logger, waiter.Config{
		Name:       "replication task removal",
		Interval:   c.PollInterval,
		MaxWait:    c.StopWait,
		GoneIsDone: true,
		Probe: func(ctx context.Context) (waiter.Result, error) {
			ts, err := c.Replication.TaskStatus(ctx, arn)
			if err != nil {
				if cloud.IsNotFound(err) {
					return waiter.Result{State: waiter.Gone}, nil
				}
				return waiter.Result{}, err
			}
			return waiter.Result{State: waiter.InProgress, Progress: ts.Status}, nil
		},
	})
	return err
}

func (c *Coordinator) removeEndpoints(ctx context.Context) error {
	removed := false
	for _, key := range []string{"source_endpoint_arn", "target_endpoint_arn"} {
		arn := c.Session.Resource(key)
		if arn == "" {
			continue
		}
		if err := c.Replication.DeleteEndpoint(ctx, arn); err != nil {
			if cloud.IsNotFound(err) {
				continue
			}
			return err
		}
		removed = true
	}
	if !removed {
		return cloud.NotFoundError("endpoints")
	}
	return nil
}

func (c *Coordinator) removeReplicationInstance(ctx context.Context) error {
	arn := c.Session.Resource("replication_instance_arn")
	if arn == "" {
		return cloud.NotFoundError("replication instance")
	}

	if err := c.Replication.DeleteReplicationInstance(ctx, arn); err != nil {
		return err
	}

	id := c.Session.Config("replication_instance")
	if id == "" {
		id = c.Cfg.Replication.InstanceID
	}
	_, err := waiter.Wait(ctx, c.Logger, waiter.Config{
		Name:       "replication instance removal",
		Interval:   c.PollInterval,
		MaxWait:    c.ReplGoneWait,
		GoneIsDone: true,
		Probe: func(ctx context.Context) (waiter.Result, error) {
			ri, err := c.Replication.DescribeReplicationInstance(ctx, id)
			if err != nil {
				if cloud.IsNotFound(err) {
					return waiter.Result{State: waiter.Gone}, nil
				}
				return waiter.Result{}, err
			}
			return waiter.Result{State: waiter.InProgress, Progress: ri.Status}, nil
		},
	})
	return err
}

// dropSourceDatabase removes the pipeline database from the RDS instance
// before the instance itself goes away, so a failed instance delete never
// leaves stale data behind.
func (c *Coordinator) dropSourceDatabase(ctx context.Context) error {
	endpoint := c.Session.Resource("db_endpoint")
	if endpoint == "" {
		return cloud.NotFoundError("source database")
	}

	// when the instance is already gone there is nothing to connect to,
	// and a blind re-run must not record a failure for it
	id := c.Session.Resource("db_instance_id")
	if id == "" {
		id = c.Cfg.SourceDB.InstanceID
	}
	if _, err := c.Database.DescribeDBInstance(ctx, id); err != nil {
		if cloud.IsNotFound(err) {
			return cloud.NotFoundError("source database")
		}
		return err
	}

	port := c.Cfg.SourceDB.Port
	if v := c.Session.Resource("db_port"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			port = n
		}
	}

	db, err := c.NewSource(sourcedb.Params{
		Host:     endpoint,
		Port:     port,
		Username: c.Cfg.SourceDB.Username,
		Password: c.Cfg.SourceDB.Password,
		Database: c.Cfg.SourceDB.Database,
		Table:    c.Cfg.SourceDB.Table,
	})
	if err != nil {
		return err
	}
	if err := db.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to source database: %w", err)
	}
	defer db.Close()

	return db.DropDatabase(ctx)
}

func (c *Coordinator) removeDBInstance(ctx context.Context) error {
	id := c.Session.Resource("db_instance_id")
	if id == "" {
		return cloud.NotFoundError("db instance")
	}

	if err := c.Database.DeleteDBInstance(ctx, id); err != nil {
		return err
	}

	_, err := waiter.Wait(ctx, c.Logger, waiter.Config{
		Name:       "db instance removal",
		Interval:   c.PollInterval,
		MaxWait:    c.DBGoneWait,
		GoneIsDone: true,
		Probe: func(ctx context.Context) (waiter.Result, error) {
			inst, err := c.Database.DescribeDBInstance(ctx, id)
			if err != nil {
				if cloud.IsNotFound(err) {
					return waiter.Result{State: waiter.Gone}, nil
				}
				return waiter.Result{}, err
			}
			return waiter.Result{State: waiter.InProgress, Progress: inst.Status}, nil
		},
	})
	return err
}

func (c *Coordinator) removeBucket(ctx context.Context) error {
	bucket := c.Session.Resource("bucket")
	if bucket == "" {
		return cloud.NotFoundError("bucket")
	}

	n, err := c.Storage.EmptyBucket(ctx, bucket)
	if err != nil {
		return err
	}
	if n > 0 {
		c.Logger.Info("emptied bucket", "bucket", bucket, "objects", n)
	}
	return c.Storage.DeleteBucket(ctx, bucket)
}

func (c *Coordinator) removeRoles(ctx context.Context) error {
	roleName := c.Session.Config("role")
	if roleName == "" {
		roleName = c.Cfg.Replication.RoleName
	}

	removed := false
	for _, name := range []string{roleName, "dms-vpc-role"} {
		if name == "" {
			continue
		}
		if err := c.Identity.DeleteRole(ctx, name); err != nil {
			if cloud.IsNotFound(err) {
				continue
			}
			return err
		}
		removed = true
	}
	if !removed {
		return cloud.NotFoundError("iam roles")
	}
	return nil
}

func (c *Coordinator) removeSecurityGroup(ctx context.Context) error {
	id := c.Session.Resource("security_group_id")
	if id == "" {
		return cloud.NotFoundError("security group")
	}
	return c.Network.DeleteSecurityGroup(ctx, id)
}
