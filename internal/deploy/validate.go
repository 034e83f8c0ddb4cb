package deploy

import (
	"context"
	"fmt"
	"strings"

	"github.com/pipewright/pipewright/internal/validation"
)

// runValidate compares source and target row counts, then installs the
// task alarms and dashboard. This stage re-runs on every deployment.
func (p *Pipeline) runValidate(ctx context.Context) error {
	report, err := p.Validate(ctx)
	if err != nil {
		return err
	}
	if !report.Passed {
		return fmt.Errorf("row count mismatch: source=%d target=%d (difference %d)",
			report.SourceRows, report.TargetRows, report.Difference)
	}

	if p.Monitor != nil {
		result, err := p.Monitor.Setup(ctx, p.Cfg.Replication.TaskID, p.Cfg.Monitoring.Email)
		if err != nil {
			return fmt.Errorf("setting up monitoring: %w", err)
		}
		if err := p.Session.SetResource("alarm_names", strings.Join(result.AlarmNames, ",")); err != nil {
			return err
		}
		if err := p.Session.SetResource("dashboard", result.DashboardName); err != nil {
			return err
		}
		if result.TopicARN != "" {
			if err := p.Session.SetResource("sns_topic_arn", result.TopicARN); err != nil {
				return err
			}
		}
	}
	return nil
}

// Validate runs the row-count comparison on its own, without touching
// monitoring. The validate subcommand calls this directly.
func (p *Pipeline) Validate(ctx context.Context) (*validation.Report, error) {
	db, err := p.openSource(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	bucket := p.Session.Resource("bucket")
	if bucket == "" {
		bucket = p.bucket
	}
	if bucket == "" {
		return nil, fmt.Errorf("no bucket recorded; infra stage incomplete")
	}

	v := &validation.Validator{
		DB:      db,
		Storage: p.Storage,
		Bucket:  bucket,
		Folder:  p.Cfg.Storage.Folder,
		Logger:  p.Logger,
	}
	return v.Run(ctx)
}
