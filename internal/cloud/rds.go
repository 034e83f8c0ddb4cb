package cloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
)

// EnsureDBInstance creates the source database instance if it does not
// exist. An existing instance is reused as-is; the caller waits for it to
// become available either way.
func (c *Client) EnsureDBInstance(ctx context.Context, spec DBInstanceSpec) (*DBInstance, error) {
	existing, err := c.DescribeDBInstance(ctx, spec.ID)
	if err == nil {
		return existing, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}

	input := &rds.CreateDBInstanceInput{
		DBInstanceIdentifier: aws.String(spec.ID),
		Engine:               aws.String(spec.Engine),
		DBInstanceClass:      aws.String(spec.InstanceClass),
		AllocatedStorage:     aws.Int32(spec.AllocatedStorage),
		MasterUsername:       aws.String(spec.Username),
		MasterUserPassword:   aws.String(spec.Password),
		PubliclyAccessible:   aws.Bool(spec.PubliclyAccessible),
	}
	if spec.Port != 0 {
		input.Port = aws.Int32(spec.Port)
	}
	if spec.SecurityGroupID != "" {
		input.VpcSecurityGroupIds = []string{spec.SecurityGroupID}
	}

	out, err := c.rdsClient.CreateDBInstance(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("creating db instance %s: %w", spec.ID, err)
	}
	return dbInstanceFromSDK(out.DBInstance), nil
}

// DescribeDBInstance returns the current state of a database instance.
func (c *Client) DescribeDBInstance(ctx context.Context, id string) (*DBInstance, error) {
	out, err := c.rdsClient.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: aws.String(id),
	})
	if err != nil {
		return nil, fmt.Errorf("describing db instance %s: %w", id, err)
	}
	if len(out.DBInstances) == 0 {
		return nil, fmt.Errorf("describing db instance %s: empty response", id)
	}
	return dbInstanceFromSDK(&out.DBInstances[0]), nil
}

// DeleteDBInstance deletes a database instance without a final snapshot.
func (c *Client) DeleteDBInstance(ctx context.Context, id string) error {
	_, err := c.rdsClient.DeleteDBInstance(ctx, &rds.DeleteDBInstanceInput{
		DBInstanceIdentifier:   aws.String(id),
		SkipFinalSnapshot:      aws.Bool(true),
		DeleteAutomatedBackups: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("deleting db instance %s: %w", id, err)
	}
	return nil
}

func dbInstanceFromSDK(db *rdstypes.DBInstance) *DBInstance {
	inst := &DBInstance{
		ID:     aws.ToString(db.DBInstanceIdentifier),
		ARN:    aws.ToString(db.DBInstanceArn),
		Status: aws.ToString(db.DBInstanceStatus),
	}
	if db.Endpoint != nil {
		inst.Endpoint = aws.ToString(db.Endpoint.Address)
		inst.Port = aws.ToInt32(db.Endpoint.Port)
	}
	for _, sg := range db.VpcSecurityGroups {
		inst.SecurityGroupIDs = append(inst.SecurityGroupIDs, aws.ToString(sg.VpcSecurityGroupId))
	}
	return inst
}
