package deploy

import (
	"context"
	"fmt"
	"strings"

	"github.com/pipewright/pipewright/internal/cloud"
	"github.com/pipewright/pipewright/internal/waiter"
)

// dmsEngines maps the configured engine to the replication endpoint
// engine name.
var dmsEngines = map[string]string{
	"postgres":  "postgres",
	"sqlserver": "sqlserver",
}

// successStopReasons are the stop reasons that mean the full load finished
// cleanly. Any other reason on a stopped task is a failure, even though
// the terminal status string is identical.
var successStopReasons = []string{
	"FULL_LOAD_COMPLETED",
	"Full load completed",
}

// IsSuccessfulStop classifies a replication task stop reason.
func IsSuccessfulStop(reason string) bool {
	for _, s := range successStopReasons {
		if strings.Contains(reason, s) {
			return true
		}
	}
	return false
}

// runReplicate provisions the replication instance, the source and target
// endpoints, proves both connections, then runs the full-load task to
// completion.
func (p *Pipeline) runReplicate(ctx context.Context) error {
	cfg := p.Cfg

	inst, err := p.Replication.EnsureReplicationInstance(ctx, cloud.ReplicationInstanceSpec{
		ID:                 cfg.Replication.InstanceID,
		InstanceClass:      cfg.Replication.InstanceClass,
		AllocatedStorage:   cfg.Replication.AllocatedStorage,
		PubliclyAccessible: true,
	})
	if err != nil {
		return err
	}
	if err := p.Session.SetResource("replication_instance_arn", inst.ARN); err != nil {
		return err
	}

	_, err = waiter.Wait(ctx, p.Logger, waiter.Config{
		Name:     "replication instance available",
		Interval: p.PollInterval,
		MaxWait:  p.ReplWait,
		Probe: func(ctx context.Context) (waiter.Result, error) {
			ri, err := p.Replication.DescribeReplicationInstance(ctx, cfg.Replication.InstanceID)
			if err != nil {
				if cloud.IsNotFound(err) {
					return waiter.Result{State: waiter.Gone}, nil
				}
				return waiter.Result{}, err
			}
			switch ri.Status {
			case "available":
				return waiter.Result{State: waiter.Done}, nil
			case "failed", "incompatible-network":
				return waiter.Result{State: waiter.Failed, Detail: ri.Status}, nil
			}
			return waiter.Result{State: waiter.InProgress, Progress: ri.Status}, nil
		},
	})
	if err != nil {
		return err
	}

	sourceARN, err := p.Replication.EnsureEndpoint(ctx, cloud.EndpointSpec{
		ID:       cfg.Replication.SourceEndpoint,
		Type:     "source",
		Engine:   dmsEngines[cfg.SourceDB.Engine],
		Server:   p.Session.Resource("db_endpoint"),
		Port:     int32(cfg.SourceDB.Port),
		Username: cfg.SourceDB.Username,
		Password: cfg.SourceDB.Password,
		Database: cfg.SourceDB.Database,
	})
	if err != nil {
		return err
	}
	if err := p.Session.SetResource("source_endpoint_arn", sourceARN); err != nil {
		return err
	}

	targetARN, err := p.Replication.EnsureEndpoint(ctx, cloud.EndpointSpec{
		ID:             cfg.Replication.TargetEndpoint,
		Type:           "target",
		Engine:         "s3",
		Bucket:         p.Session.Resource("bucket"),
		Folder:         cfg.Storage.Folder,
		ServiceRoleARN: p.Session.Resource("s3_access_role_arn"),
	})
	if err != nil {
		return err
	}
	if err := p.Session.SetResource("target_endpoint_arn", targetARN); err != nil {
		return err
	}

	// both connections must prove out before the task exists; a task
	// created against an untested endpoint fails in ways that are much
	// harder to diagnose
	for _, ep := range []struct {
		name string
		arn  string
	}{
		{"source endpoint connection", sourceARN},
		{"target endpoint connection", targetARN},
	} {
		if err := p.testConnection(ctx, inst.ARN, ep.arn, ep.name); err != nil {
			return err
		}
	}

	taskARN, err := p.Replication.EnsureReplicationTask(ctx, cloud.TaskSpec{
		ID:                     cfg.Replication.TaskID,
		ReplicationInstanceARN: inst.ARN,
		SourceEndpointARN:      sourceARN,
		TargetEndpointARN:      targetARN,
		MigrationType:          "full-load",
		TableMappings:          tableMappings(cfg.SourceDB.Table),
	})
	if err != nil {
		return err
	}
	if err := p.Session.SetResource("task_arn", taskARN); err != nil {
		return err
	}

	task, err := p.Replication.TaskStatus(ctx, taskARN)
	if err != nil {
		return err
	}
	switch task.Status {
	case "running", "starting":
		p.Logger.Info("replication task already running")
	case "ready", "creating":
		if task.Status == "creating" {
			if err := p.waitTaskReady(ctx, taskARN); err != nil {
				return err
			}
		}
		if err := p.Replication.StartReplicationTask(ctx, taskARN, false); err != nil {
			return err
		}
	default:
		// stopped or failed earlier; reload the target from scratch
		if err := p.Replication.StartReplicationTask(ctx, taskARN, true); err != nil {
			return err
		}
	}

	res, err := waiter.Wait(ctx, p.Logger, waiter.Config{
		Name:     "full load",
		Interval: p.PollInterval,
		MaxWait:  p.TaskWait,
		Probe: func(ctx context.Context) (waiter.Result, error) {
			ts, err := p.Replication.TaskStatus(ctx, taskARN)
			if err != nil {
				if cloud.IsNotFound(err) {
					return waiter.Result{State: waiter.Gone}, nil
				}
				return waiter.Result{}, err
			}
			switch ts.Status {
			case "stopped":
				if IsSuccessfulStop(ts.StopReason) {
					return waiter.Result{State: waiter.Done, Detail: ts.StopReason}, nil
				}
				return waiter.Result{State: waiter.Failed, Detail: ts.StopReason}, nil
			case "failed", "failed-move":
				return waiter.Result{State: waiter.Failed, Detail: ts.StopReason}, nil
			}
			return waiter.Result{
				State: waiter.InProgress,
				Progress: fmt.Sprintf("%d%% (%d loaded, %d loading, %d errored)",
					ts.Progress, ts.TablesLoaded, ts.TablesLoading, ts.TablesErrored),
			}, nil
		},
	})
	if err != nil {
		return err
	}

	p.Logger.Info("full load complete", "stop_reason", res.Detail)
	return nil
}

func (p *Pipeline) testConnection(ctx context.Context, instARN, endpointARN, name string) error {
	if err := p.Replication.TestConnection(ctx, instARN, endpointARN); err != nil {
		return err
	}
	_, err := waiter.Wait(ctx, p.Logger, waiter.Config{
		Name:     name,
		Interval: p.PollInterval,
		MaxWait:  p.ConnWait,
		Probe: func(ctx context.Context) (waiter.Result, error) {
			status, err := p.Replication.ConnectionStatus(ctx, instARN, endpointARN)
			if err != nil {
				return waiter.Result{}, err
			}
			switch status {
			case "successful":
				return waiter.Result{State: waiter.Done}, nil
			case "failed":
				return waiter.Result{State: waiter.Failed, Detail: "connection test failed"}, nil
			}
			return waiter.Result{State: waiter.InProgress, Progress: status}, nil
		},
	})
	return err
}

func (p *Pipeline) waitTaskReady(ctx context.Context, taskARN string) error {
	_, err := waiter.Wait(ctx, p.Logger, waiter.Config{
		Name:     "replication task ready",
		Interval: p.PollInterval,
		MaxWait:  p.ConnWait,
		Probe: func(ctx context.Context) (waiter.Result, error) {
			ts, err := p.Replication.TaskStatus(ctx, taskARN)
			if err != nil {
				return waiter.Result{}, err
			}
			if ts.Status == "ready" || ts.Status == "stopped" {
				return waiter.Result{State: waiter.Done}, nil
			}
			return waiter.Result{State: waiter.InProgress, Progress: ts.Status}, nil
		},
	})
	return err
}

func tableMappings(table string) string {
	return fmt.Sprintf(`{
  "rules": [
    {
      "rule-type": "selection",
      "rule-id": "1",
      "rule-name": "1",
      "object-locator": {
        "schema-name": "%%",
        "table-name": %q
      },
      "rule-action": "include"
    }
  ]
}`, table)
}
