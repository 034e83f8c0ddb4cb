// Package cloud adapts the managed services behind the pipeline — the
// source database, the replication service, object storage, and their IAM
// and networking plumbing — into narrow interfaces the orchestration layers
// consume. Client implements all of them against the AWS SDK; tests use
// the Mock in this package.
package cloud

import (
	"context"
	"io"
)

// CallerIdentity describes the authenticated principal.
type CallerIdentity struct {
	Account string
	ARN     string
	UserID  string
}

// DBInstanceSpec describes the managed source database to ensure.
type DBInstanceSpec struct {
	ID                 string
	Engine             string // RDS engine name, e.g. postgres, sqlserver-ex
	InstanceClass      string
	AllocatedStorage   int32
	Username           string
	Password           string
	Port               int32
	SecurityGroupID    string
	PubliclyAccessible bool
}

// DBInstance is the observed state of a managed database instance.
type DBInstance struct {
	ID               string
	ARN              string
	Status           string
	Endpoint         string
	Port             int32
	SecurityGroupIDs []string
}

// DatabaseProvider manages the source database instance.
type DatabaseProvider interface {
	EnsureDBInstance(ctx context.Context, spec DBInstanceSpec) (*DBInstance, error)
	DescribeDBInstance(ctx context.Context, id string) (*DBInstance, error)
	DeleteDBInstance(ctx context.Context, id string) error
}

// NetworkProvider manages the security group for database access.
type NetworkProvider interface {
	EnsureSecurityGroup(ctx context.Context, name, description string, port int32) (string, error)
	DeleteSecurityGroup(ctx context.Context, id string) error
}

// Object is one stored data object.
type Object struct {
	Key  string
	Size int64
}

// StorageProvider manages the object-storage target.
type StorageProvider interface {
	EnsureBucket(ctx context.Context, bucket string) error
	EnsureFolder(ctx context.Context, bucket, folder string) error
	ListDataObjects(ctx context.Context, bucket, prefix string) ([]Object, error)
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	EmptyBucket(ctx context.Context, bucket string) (int, error)
	DeleteBucket(ctx context.Context, bucket string) error
}

// RoleSpec describes a service role to ensure.
type RoleSpec struct {
	Name              string
	TrustService      string // e.g. dms.amazonaws.com
	ManagedPolicyARNs []string
	InlinePolicyName  string
	InlinePolicyDoc   string
}

// IdentityProvider manages IAM roles and verifies credentials.
type IdentityProvider interface {
	VerifyCredentials(ctx context.Context) (*CallerIdentity, error)
	EnsureRole(ctx context.Context, spec RoleSpec) (string, error)
	DeleteRole(ctx context.Context, name string) error
}

// ReplicationInstance is the observed state of a replication instance.
type ReplicationInstance struct {
	ID     string
	ARN    string
	Status string
}

// ReplicationInstanceSpec describes the replication instance to ensure.
type ReplicationInstanceSpec struct {
	ID               string
	InstanceClass    string
	AllocatedStorage int32
	PubliclyAccessible bool
}

// Endpoint is the observed state of a replication endpoint.
type Endpoint struct {
	ID     string
	ARN    string
	Status string
}

// EndpointSpec describes a replication endpoint to ensure. Source
// endpoints use the database fields; target endpoints use the storage
// fields.
type EndpointSpec struct {
	ID     string
	Type   string // source or target
	Engine string // postgres, sqlserver, or s3

	Server   string
	Port     int32
	Username string
	Password string
	Database string

	Bucket         string
	Folder         string
	ServiceRoleARN string
}

// TaskSpec describes a replication task to ensure.
type TaskSpec struct {
	ID                     string
	ReplicationInstanceARN string
	SourceEndpointARN      string
	TargetEndpointARN      string
	MigrationType          string // full-load
	TableMappings          string // selection rules JSON
}

// TaskStatus is the observed state of a replication task. StopReason is
// only meaningful when Status is stopped; the caller classifies it.
type TaskStatus struct {
	ID            string
	ARN           string
	Status        string
	StopReason    string
	Progress      int32
	TablesLoaded  int32
	TablesLoading int32
	TablesErrored int32
}

// ReplicationProvider manages the replication instance, endpoints, and task.
type ReplicationProvider interface {
	EnsureReplicationInstance(ctx context.Context, spec ReplicationInstanceSpec) (*ReplicationInstance, error)
	DescribeReplicationInstance(ctx context.Context, id string) (*ReplicationInstance, error)
	DeleteReplicationInstance(ctx context.Context, arn string) error

	EnsureEndpoint(ctx context.Context, spec EndpointSpec) (string, error)
	FindEndpoint(ctx context.Context, id string) (*Endpoint, error)
	DeleteEndpoint(ctx context.Context, arn string) error

	TestConnection(ctx context.Context, instanceARN, endpointARN string) error
	ConnectionStatus(ctx context.Context, instanceARN, endpointARN string) (string, error)

	EnsureReplicationTask(ctx context.Context, spec TaskSpec) (string, error)
	FindTask(ctx context.Context, id string) (*TaskStatus, error)
	TaskStatus(ctx context.Context, arn string) (*TaskStatus, error)
	StartReplicationTask(ctx context.Context, arn string, restart bool) error
	StopReplicationTask(ctx context.Context, arn string) error
	DeleteReplicationTask(ctx context.Context, arn string) error
}
