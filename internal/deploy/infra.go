package deploy

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pipewright/pipewright/internal/cloud"
	"github.com/pipewright/pipewright/internal/waiter"
)

// rdsEngines maps the configured engine to the RDS engine name.
var rdsEngines = map[string]string{
	"postgres":  "postgres",
	"sqlserver": "sqlserver-ex",
}

// runInfra provisions the source database instance, its security group,
// the target bucket, and the service roles the replication task needs.
func (p *Pipeline) runInfra(ctx context.Context) error {
	cfg := p.Cfg

	sgName := cfg.SourceDB.InstanceID + "-sg"
	sgID, err := p.Network.EnsureSecurityGroup(ctx, sgName,
		"database access for the replication pipeline", int32(cfg.SourceDB.Port))
	if err != nil {
		return err
	}
	if err := p.Session.SetResource("security_group_id", sgID); err != nil {
		return err
	}
	p.Logger.Info("security group ready", "id", sgID, "port", cfg.SourceDB.Port)

	inst, err := p.Database.EnsureDBInstance(ctx, cloud.DBInstanceSpec{
		ID:                 cfg.SourceDB.InstanceID,
		Engine:             rdsEngines[cfg.SourceDB.Engine],
		InstanceClass:      cfg.SourceDB.InstanceClass,
		AllocatedStorage:   cfg.SourceDB.AllocatedStorage,
		Username:           cfg.SourceDB.Username,
		Password:           cfg.SourceDB.Password,
		Port:               int32(cfg.SourceDB.Port),
		SecurityGroupID:    sgID,
		PubliclyAccessible: true,
	})
	if err != nil {
		return err
	}
	if err := p.Session.SetResource("db_instance_id", inst.ID); err != nil {
		return err
	}

	_, err = waiter.Wait(ctx, p.Logger, waiter.Config{
		Name:     "db instance available",
		Interval: p.PollInterval,
		MaxWait:  p.DBWait,
		Probe: func(ctx context.Context) (waiter.Result, error) {
			db, err := p.Database.DescribeDBInstance(ctx, cfg.SourceDB.InstanceID)
			if err != nil {
				if cloud.IsNotFound(err) {
					return waiter.Result{State: waiter.Gone}, nil
				}
				return waiter.Result{}, err
			}
			switch db.Status {
			case "available":
				return waiter.Result{State: waiter.Done, Detail: db.Endpoint}, nil
			case "failed", "incompatible-parameters", "incompatible-restore":
				return waiter.Result{State: waiter.Failed, Detail: db.Status}, nil
			}
			return waiter.Result{State: waiter.InProgress, Progress: db.Status}, nil
		},
	})
	if err != nil {
		return err
	}

	db, err := p.Database.DescribeDBInstance(ctx, cfg.SourceDB.InstanceID)
	if err != nil {
		return err
	}
	if err := p.Session.SetResource("db_endpoint", db.Endpoint); err != nil {
		return err
	}
	if err := p.Session.SetResource("db_port", strconv.Itoa(int(db.Port))); err != nil {
		return err
	}
	p.Logger.Info("database instance ready", "endpoint", db.Endpoint, "port", db.Port)

	if err := p.Storage.EnsureBucket(ctx, p.bucket); err != nil {
		return err
	}
	if err := p.Storage.EnsureFolder(ctx, p.bucket, cfg.Storage.Folder); err != nil {
		return err
	}
	if err := p.Session.SetResource("bucket", p.bucket); err != nil {
		return err
	}
	p.Logger.Info("target bucket ready", "bucket", p.bucket, "folder", cfg.Storage.Folder)

	s3RoleARN, err := p.Identity.EnsureRole(ctx, cloud.RoleSpec{
		Name:             cfg.Replication.RoleName,
		TrustService:     "dms.amazonaws.com",
		InlinePolicyName: "s3-target-access",
		InlinePolicyDoc:  s3AccessPolicy(p.bucket),
	})
	if err != nil {
		return err
	}
	if err := p.Session.SetResource("s3_access_role_arn", s3RoleARN); err != nil {
		return err
	}

	// the replication service requires this exact role name to manage
	// network interfaces in the VPC
	vpcRoleARN, err := p.Identity.EnsureRole(ctx, cloud.RoleSpec{
		Name:         "dms-vpc-role",
		TrustService: "dms.amazonaws.com",
		ManagedPolicyARNs: []string{
			"arn:aws:iam::aws:policy/service-role/AmazonDMSVPCManagementRole",
		},
	})
	if err != nil {
		return err
	}
	if err := p.Session.SetResource("vpc_role_arn", vpcRoleARN); err != nil {
		return err
	}
	p.Logger.Info("service roles ready", "s3_role", s3RoleARN, "vpc_role", vpcRoleARN)

	return nil
}

func s3AccessPolicy(bucket string) string {
	return fmt.Sprintf(`{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Action": ["s3:PutObject", "s3:DeleteObject", "s3:PutObjectTagging"],
      "Resource": "arn:aws:s3:::%s/*"
    },
    {
      "Effect": "Allow",
      "Action": "s3:ListBucket",
      "Resource": "arn:aws:s3:::%s"
    }
  ]
}`, bucket, bucket)
}
