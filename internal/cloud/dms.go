package cloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	dms "github.com/aws/aws-sdk-go-v2/service/databasemigrationservice"
	dmstypes "github.com/aws/aws-sdk-go-v2/service/databasemigrationservice/types"
)

// EnsureReplicationInstance creates the replication instance if it does
// not exist. The caller waits for it to become available.
func (c *Client) EnsureReplicationInstance(ctx context.Context, spec ReplicationInstanceSpec) (*ReplicationInstance, error) {
	existing, err := c.DescribeReplicationInstance(ctx, spec.ID)
	if err == nil {
		return existing, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}

	out, err := c.dmsClient.CreateReplicationInstance(ctx, &dms.CreateReplicationInstanceInput{
		ReplicationInstanceIdentifier: aws.String(spec.ID),
		ReplicationInstanceClass:      aws.String(spec.InstanceClass),
		AllocatedStorage:              aws.Int32(spec.AllocatedStorage),
		PubliclyAccessible:            aws.Bool(spec.PubliclyAccessible),
	})
	if err != nil {
		return nil, fmt.Errorf("creating replication instance %s: %w", spec.ID, err)
	}
	return replicationInstanceFromSDK(out.ReplicationInstance), nil
}

// DescribeReplicationInstance returns the current state of a replication
// instance by identifier.
func (c *Client) DescribeReplicationInstance(ctx context.Context, id string) (*ReplicationInstance, error) {
	out, err := c.dmsClient.DescribeReplicationInstances(ctx, &dms.DescribeReplicationInstancesInput{
		Filters: []dmstypes.Filter{
			{Name: aws.String("replication-instance-id"), Values: []string{id}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("describing replication instance %s: %w", id, err)
	}
	if len(out.ReplicationInstances) == 0 {
		return nil, &notFoundError{resource: "replication instance " + id}
	}
	return replicationInstanceFromSDK(&out.ReplicationInstances[0]), nil
}

// DeleteReplicationInstance deletes a replication instance by ARN.
func (c *Client) DeleteReplicationInstance(ctx context.Context, arn string) error {
	_, err := c.dmsClient.DeleteReplicationInstance(ctx, &dms.DeleteReplicationInstanceInput{
		ReplicationInstanceArn: aws.String(arn),
	})
	if err != nil {
		return fmt.Errorf("deleting replication instance: %w", err)
	}
	return nil
}

// EnsureEndpoint creates a replication endpoint if one with the same
// identifier does not exist, returning its ARN.
func (c *Client) EnsureEndpoint(ctx context.Context, spec EndpointSpec) (string, error) {
	existing, err := c.FindEndpoint(ctx, spec.ID)
	if err == nil {
		return existing.ARN, nil
	}
	if !IsNotFound(err) {
		return "", err
	}

	input := &dms.CreateEndpointInput{
		EndpointIdentifier: aws.String(spec.ID),
		EndpointType:       dmstypes.ReplicationEndpointTypeValue(spec.Type),
		EngineName:         aws.String(spec.Engine),
	}

	if spec.Engine == "s3" {
		input.S3Settings = &dmstypes.S3Settings{
			BucketName:           aws.String(spec.Bucket),
			BucketFolder:         aws.String(spec.Folder),
			ServiceAccessRoleArn: aws.String(spec.ServiceRoleARN),
			DataFormat:           dmstypes.DataFormatValueCsv,
			CompressionType:      dmstypes.CompressionTypeValueNone,
			CsvDelimiter:         aws.String(","),
			CsvRowDelimiter:      aws.String("\n"),
			TimestampColumnName:  aws.String("dms_timestamp"),
		}
	} else {
		input.ServerName = aws.String(spec.Server)
		input.Port = aws.Int32(spec.Port)
		input.Username = aws.String(spec.Username)
		input.Password = aws.String(spec.Password)
		input.DatabaseName = aws.String(spec.Database)
	}

	out, err := c.dmsClient.CreateEndpoint(ctx, input)
	if err != nil {
		return "", fmt.Errorf("creating endpoint %s: %w", spec.ID, err)
	}
	return aws.ToString(out.Endpoint.EndpointArn), nil
}

// FindEndpoint looks up an endpoint by identifier.
func (c *Client) FindEndpoint(ctx context.Context, id string) (*Endpoint, error) {
	out, err := c.dmsClient.DescribeEndpoints(ctx, &dms.DescribeEndpointsInput{
		Filters: []dmstypes.Filter{
			{Name: aws.String("endpoint-id"), Values: []string{id}},
		},
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, &notFoundError{resource: "endpoint " + id}
		}
		return nil, fmt.Errorf("describing endpoint %s: %w", id, err)
	}
	if len(out.Endpoints) == 0 {
		return nil, &notFoundError{resource: "endpoint " + id}
	}
	ep := out.Endpoints[0]
	return &Endpoint{
		ID:     aws.ToString(ep.EndpointIdentifier),
		ARN:    aws.ToString(ep.EndpointArn),
		Status: aws.ToString(ep.Status),
	}, nil
}

// DeleteEndpoint deletes an endpoint by ARN.
func (c *Client) DeleteEndpoint(ctx context.Context, arn string) error {
	_, err := c.dmsClient.DeleteEndpoint(ctx, &dms.DeleteEndpointInput{
		EndpointArn: aws.String(arn),
	})
	if err != nil {
		return fmt.Errorf("deleting endpoint: %w", err)
	}
	return nil
}

// TestConnection starts a connection test between a replication instance
// and an endpoint. A test already in flight is not an error.
func (c *Client) TestConnection(ctx context.Context, instanceARN, endpointARN string) error {
	_, err := c.dmsClient.TestConnection(ctx, &dms.TestConnectionInput{
		ReplicationInstanceArn: aws.String(instanceARN),
		EndpointArn:            aws.String(endpointARN),
	})
	if err != nil && !IsAlreadyExists(err) {
		return fmt.Errorf("testing connection: %w", err)
	}
	return nil
}

// ConnectionStatus returns the status of a connection test: testing,
// successful, or failed.
func (c *Client) ConnectionStatus(ctx context.Context, instanceARN, endpointARN string) (string, error) {
	out, err := c.dmsClient.DescribeConnections(ctx, &dms.DescribeConnectionsInput{
		Filters: []dmstypes.Filter{
			{Name: aws.String("endpoint-arn"), Values: []string{endpointARN}},
			{Name: aws.String("replication-instance-arn"), Values: []string{instanceARN}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("describing connection: %w", err)
	}
	if len(out.Connections) == 0 {
		return "", &notFoundError{resource: "connection"}
	}
	return aws.ToString(out.Connections[0].Status), nil
}

// EnsureReplicationTask creates the replication task if it does not exist,
// returning its ARN.
func (c *Client) EnsureReplicationTask(ctx context.Context, spec TaskSpec) (string, error) {
	existing, err := c.FindTask(ctx, spec.ID)
	if err == nil {
		return existing.ARN, nil
	}
	if !IsNotFound(err) {
		return "", err
	}

	out, err := c.dmsClient.CreateReplicationTask(ctx, &dms.CreateReplicationTaskInput{
		ReplicationTaskIdentifier: aws.String(spec.ID),
		ReplicationInstanceArn:    aws.String(spec.ReplicationInstanceARN),
		SourceEndpointArn:         aws.String(spec.SourceEndpointARN),
		TargetEndpointArn:         aws.String(spec.TargetEndpointARN),
		MigrationType:             dmstypes.MigrationTypeValue(spec.MigrationType),
		TableMappings:             aws.String(spec.TableMappings),
	})
	if err != nil {
		return "", fmt.Errorf("creating replication task %s: %w", spec.ID, err)
	}
	return aws.ToString(out.ReplicationTask.ReplicationTaskArn), nil
}

// FindTask looks up a replication task by identifier.
func (c *Client) FindTask(ctx context.Context, id string) (*TaskStatus, error) {
	return c.describeTask(ctx, "replication-task-id", id)
}

// TaskStatus returns the current state of a replication task by ARN.
func (c *Client) TaskStatus(ctx context.Context, arn string) (*TaskStatus, error) {
	return c.describeTask(ctx, "replication-task-arn", arn)
}

func (c *Client) describeTask(ctx context.Context, filterName, value string) (*TaskStatus, error) {
	out, err := c.dmsClient.DescribeReplicationTasks(ctx, &dms.DescribeReplicationTasksInput{
		Filters: []dmstypes.Filter{
			{Name: aws.String(filterName), Values: []string{value}},
		},
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, &notFoundError{resource: "replication task " + value}
		}
		return nil, fmt.Errorf("describing replication task %s: %w", value, err)
	}
	if len(out.ReplicationTasks) == 0 {
		return nil, &notFoundError{resource: "replication task " + value}
	}

	task := out.ReplicationTasks[0]
	ts := &TaskStatus{
		ID:         aws.ToString(task.ReplicationTaskIdentifier),
		ARN:        aws.ToString(task.ReplicationTaskArn),
		Status:     aws.ToString(task.Status),
		StopReason: aws.ToString(task.StopReason),
	}
	if task.ReplicationTaskStats != nil {
		ts.Progress = task.ReplicationTaskStats.FullLoadProgressPercent
		ts.TablesLoaded = task.ReplicationTaskStats.TablesLoaded
		ts.TablesLoading = task.ReplicationTaskStats.TablesLoading
		ts.TablesErrored = task.ReplicationTaskStats.TablesErrored
	}
	return ts, nil
}

// StartReplicationTask starts the task. A fresh task starts the full load;
// restart reloads the target for a task that already ran.
func (c *Client) StartReplicationTask(ctx context.Context, arn string, restart bool) error {
	startType := dmstypes.StartReplicationTaskTypeValueStartReplication
	if restart {
		startType = dmstypes.StartReplicationTaskTypeValueReloadTarget
	}
	_, err := c.dmsClient.StartReplicationTask(ctx, &dms.StartReplicationTaskInput{
		ReplicationTaskArn:       aws.String(arn),
		StartReplicationTaskType: startType,
	})
	if err != nil {
		return fmt.Errorf("starting replication task: %w", err)
	}
	return nil
}

// StopReplicationTask stops the task. The caller waits for it to reach a
// stopped state.
func (c *Client) StopReplicationTask(ctx context.Context, arn string) error {
	_, err := c.dmsClient.StopReplicationTask(ctx, &dms.StopReplicationTaskInput{
		ReplicationTaskArn: aws.String(arn),
	})
	if err != nil {
		return fmt.Errorf("stopping replication task: %w", err)
	}
	return nil
}

// DeleteReplicationTask deletes the task by ARN.
func (c *Client) DeleteReplicationTask(ctx context.Context, arn string) error {
	_, err := c.dmsClient.DeleteReplicationTask(ctx, &dms.DeleteReplicationTaskInput{
		ReplicationTaskArn: aws.String(arn),
	})
	if err != nil {
		return fmt.Errorf("deleting replication task: %w", err)
	}
	return nil
}

func replicationInstanceFromSDK(ri *dmstypes.ReplicationInstance) *ReplicationInstance {
	return &ReplicationInstance{
		ID:     aws.ToString(ri.ReplicationInstanceIdentifier),
		ARN:    aws.ToString(ri.ReplicationInstanceArn),
		Status: aws.ToString(ri.ReplicationInstanceStatus),
	}
}
