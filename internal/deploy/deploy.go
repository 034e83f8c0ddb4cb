// Package deploy wires the stage runner, state store, and cloud adapters
// into the resumable deployment pipeline: infra, db_init, replicate,
// validate.
package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pipewright/pipewright/internal/cloud"
	"github.com/pipewright/pipewright/internal/config"
	"github.com/pipewright/pipewright/internal/monitoring"
	"github.com/pipewright/pipewright/internal/pipeline"
	"github.com/pipewright/pipewright/internal/session"
	"github.com/pipewright/pipewright/internal/sourcedb"
)

// MonitorSetup installs observability for a replication task.
type MonitorSetup interface {
	Setup(ctx context.Context, taskID, email string) (*monitoring.Result, error)
}

// SourceFactory builds a source database client once the instance
// endpoint is known.
type SourceFactory func(params sourcedb.Params) (sourcedb.Client, error)

// Pipeline executes the deployment stages in order, halting on the first
// failure. Completed stages are skipped on re-entry; validate always
// re-runs.
type Pipeline struct {
	Cfg        *config.Config
	Session    *session.Session
	Continuity *session.Continuity

	Database    cloud.DatabaseProvider
	Network     cloud.NetworkProvider
	Storage     cloud.StorageProvider
	Identity    cloud.IdentityProvider
	Replication cloud.ReplicationProvider
	NewSource   SourceFactory
	Monitor     MonitorSetup

	Logger *slog.Logger
	Notify pipeline.Notify

	// Wait tuning; tests shrink these.
	PollInterval time.Duration
	DBWait       time.Duration
	ReplWait     time.Duration
	ConnWait     time.Duration
	TaskWait     time.Duration

	bucket string
}

func (p *Pipeline) applyDefaults() {
	if p.PollInterval == 0 {
		p.PollInterval = 30 * time.Second
	}
	if p.DBWait == 0 {
		p.DBWait = 20 * time.Minute
	}
	if p.ReplWait == 0 {
		p.ReplWait = 20 * time.Minute
	}
	if p.ConnWait == 0 {
		p.ConnWait = 10 * time.Minute
	}
	if p.TaskWait == 0 {
		p.TaskWait = time.Hour
	}
}

// Run preflights credentials, then executes every stage. A preflight
// failure touches no state and creates no resources.
func (p *Pipeline) Run(ctx context.Context) error {
	p.applyDefaults()

	if err := p.preflight(ctx); err != nil {
		return err
	}

	runner := &pipeline.Runner{
		Store:  p.Continuity,
		Logger: p.Logger,
		Notify: p.Notify,
	}

	stages := []struct {
		stage     pipeline.Stage
		alwaysRun bool
		work      pipeline.Work
	}{
		{pipeline.StageInfra, false, p.runInfra},
		{pipeline.StageDBInit, false, p.runDBInit},
		{pipeline.StageReplicate, false, p.runReplicate},
		{pipeline.StageValidate, true, p.runValidate},
	}

	for _, s := range stages {
		if err := runner.Run(ctx, s.stage, s.alwaysRun, s.work); err != nil {
			return err
		}
	}

	p.Logger.Info("deployment complete", "deployment_id", p.Session.DeploymentID)
	return nil
}

// preflight verifies credentials and pins the derived configuration into
// the session before any stage runs.
func (p *Pipeline) preflight(ctx context.Context) error {
	identity, err := p.Identity.VerifyCredentials(ctx)
	if err != nil {
		return fmt.Errorf("verifying credentials: %w", err)
	}
	p.Logger.Info("credentials verified", "account", identity.Account, "arn", identity.ARN)

	p.bucket = p.Cfg.Storage.Bucket
	if p.bucket == "" {
		p.bucket = "dms-data-ingestion-" + identity.Account
	}

	for key, value := range map[string]string{
		"bucket":               p.bucket,
		"folder":               p.Cfg.Storage.Folder,
		"db_instance_id":       p.Cfg.SourceDB.InstanceID,
		"database":             p.Cfg.SourceDB.Database,
		"table":                p.Cfg.SourceDB.Table,
		"replication_instance": p.Cfg.Replication.InstanceID,
		"source_endpoint":      p.Cfg.Replication.SourceEndpoint,
		"target_endpoint":      p.Cfg.Replication.TargetEndpoint,
		"task":                 p.Cfg.Replication.TaskID,
		"role":                 p.Cfg.Replication.RoleName,
	} {
		if err := p.Session.SetConfig(key, value); err != nil {
			return fmt.Errorf("recording configuration: %w", err)
		}
	}
	return nil
}

// openSource connects a source database client against the endpoint the
// infra stage recorded.
func (p *Pipeline) openSource(ctx context.Context) (sourcedb.Client, error) {
	endpoint := p.Session.Resource("db_endpoint")
	if endpoint == "" {
		return nil, fmt.Errorf("no database endpoint recorded; infra stage incomplete")
	}

	db, err := p.NewSource(sourcedb.Params{
		Host:     endpoint,
		Port:     p.Cfg.SourceDB.Port,
		Username: p.Cfg.SourceDB.Username,
		Password: p.Cfg.SourceDB.Password,
		Database: p.Cfg.SourceDB.Database,
		Table:    p.Cfg.SourceDB.Table,
	})
	if err != nil {
		return nil, err
	}
	if err := db.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connecting to source database: %w", err)
	}
	return db, nil
}
