package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pipewright/pipewright/internal/cloud"
	"github.com/pipewright/pipewright/internal/config"
	"github.com/pipewright/pipewright/internal/deploy"
	"github.com/pipewright/pipewright/internal/monitoring"
	"github.com/pipewright/pipewright/internal/session"
	"github.com/pipewright/pipewright/internal/sourcedb"
)

func loadConfig() (*config.Config, error) {
	cfgPath := cfgFile
	if cfgPath == "" {
		cfgPath = config.ExpandHome(config.DefaultPath)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func loadStateFiles(cfg *config.Config) (*session.Session, *session.Continuity, error) {
	sess, err := session.LoadOrCreate("", cfg.Project.Name, cfg.AWS.Region)
	if err != nil {
		return nil, nil, fmt.Errorf("loading session: %w", err)
	}
	cont, err := session.LoadContinuity("", cfg.Project.Name, cfg.AWS.Region)
	if err != nil {
		return nil, nil, fmt.Errorf("loading continuity: %w", err)
	}
	return sess, cont, nil
}

// buildPipeline assembles the deployment pipeline against the real cloud.
func buildPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*deploy.Pipeline, *cloud.Client, error) {
	sess, cont, err := loadStateFiles(cfg)
	if err != nil {
		return nil, nil, err
	}

	client, err := cloud.New(ctx, cfg.AWS.Profile, cfg.AWS.Region)
	if err != nil {
		return nil, nil, fmt.Errorf("creating cloud client: %w", err)
	}

	p := &deploy.Pipeline{
		Cfg:         cfg,
		Session:     sess,
		Continuity:  cont,
		Database:    client,
		Network:     client,
		Storage:     client,
		Identity:    client,
		Replication: client,
		NewSource: func(params sourcedb.Params) (sourcedb.Client, error) {
			return sourcedb.NewClient(cfg.SourceDB.Engine, params)
		},
		Monitor: monitoring.New(client.AWSConfig(), logger),
		Logger:  logger,
	}
	return p, client, nil
}
