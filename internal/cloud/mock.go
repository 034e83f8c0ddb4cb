package cloud

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// Mock is a test double for every provider interface in this package. It
// keeps resources in maps, appends each mutating call to Calls in order,
// and lets tests inject an error per method name through Errs.
type Mock struct {
	Calls []string
	Errs  map[string]error

	Identity *CallerIdentity

	DBInstances    map[string]*DBInstance
	SecurityGroups map[string]string // name -> id
	Buckets        map[string]map[string][]byte
	Roles          map[string]string // name -> arn

	ReplInstances map[string]*ReplicationInstance
	Endpoints     map[string]*Endpoint
	Tasks         map[string]*TaskStatus

	// ConnStatus is returned by ConnectionStatus; defaults to successful.
	ConnStatus string

	// StartStopReason is the stop reason a started task lands on; defaults
	// to a completed full load.
	StartStopReason string
}

// NewMock creates a Mock with empty resource maps and a default identity.
func NewMock() *Mock {
	return &Mock{
		Errs: make(map[string]error),
		Identity: &CallerIdentity{
			Account: "123456789012",
			ARN:     "arn:aws:iam::123456789012:user/test",
			UserID:  "AIDA12345",
		},
		DBInstances:    make(map[string]*DBInstance),
		SecurityGroups: make(map[string]string),
		Buckets:        make(map[string]map[string][]byte),
		Roles:          make(map[string]string),
		ReplInstances:  make(map[string]*ReplicationInstance),
		Endpoints:      make(map[string]*Endpoint),
		Tasks:          make(map[string]*TaskStatus),
	}
}

func (m *Mock) record(call string) { m.Calls = append(m.Calls, call) }

func (m *Mock) err(method string) error { return m.Errs[method] }

// CallsTo returns how many recorded calls start with the given prefix.
func (m *Mock) CallsTo(prefix string) int {
	n := 0
	for _, c := range m.Calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (m *Mock) VerifyCredentials(_ context.Context) (*CallerIdentity, error) {
	if err := m.err("VerifyCredentials"); err != nil {
		return nil, err
	}
	return m.Identity, nil
}

func (m *Mock) EnsureDBInstance(_ context.Context, spec DBInstanceSpec) (*DBInstance, error) {
	m.record("EnsureDBInstance:" + spec.ID)
	if err := m.err("EnsureDBInstance"); err != nil {
		return nil, err
	}
	if inst, ok := m.DBInstances[spec.ID]; ok {
		return inst, nil
	}
	inst := &DBInstance{
		ID:       spec.ID,
		ARN:      "arn:aws:rds:us-east-1:123456789012:db:" + spec.ID,
		Status:   "available",
		Endpoint: spec.ID + ".db.local",
		Port:     spec.Port,
	}
	m.DBInstances[spec.ID] = inst
	return inst, nil
}

func (m *Mock) DescribeDBInstance(_ context.Context, id string) (*DBInstance, error) {
	if err := m.err("DescribeDBInstance"); err != nil {
		return nil, err
	}
	inst, ok := m.DBInstances[id]
	if !ok {
		return nil, NotFoundError("db instance " + id)
	}
	return inst, nil
}

func (m *Mock) DeleteDBInstance(_ context.Context, id string) error {
	m.record("DeleteDBInstance:" + id)
	if err := m.err("DeleteDBInstance"); err != nil {
		return err
	}
	if _, ok := m.DBInstances[id]; !ok {
		return NotFoundError("db instance " + id)
	}
	delete(m.DBInstances, id)
	return nil
}

func (m *Mock) EnsureSecurityGroup(_ context.Context, name, _ string, _ int32) (string, error) {
	m.record("EnsureSecurityGroup:" + name)
	if err := m.err("EnsureSecurityGroup"); err != nil {
		return "", err
	}
	if id, ok := m.SecurityGroups[name]; ok {
		return id, nil
	}
	id := fmt.Sprintf("sg-%08x", len(m.SecurityGroups)+1)
	m.SecurityGroups[name] = id
	return id, nil
}

func (m *Mock) DeleteSecurityGroup(_ context.Context, id string) error {
	m.record("DeleteSecurityGroup:" + id)
	if err := m.err("DeleteSecurityGroup"); err != nil {
		return err
	}
	for name, sgID := range m.SecurityGroups {
		if sgID == id {
			delete(m.SecurityGroups, name)
			return nil
		}
	}
	return NotFoundError("security group " + id)
}

func (m *Mock) EnsureBucket(_ context.Context, bucket string) error {
	m.record("EnsureBucket:" + bucket)
	if err := m.err("EnsureBucket"); err != nil {
		return err
	}
	if _, ok := m.Buckets[bucket]; !ok {
		m.Buckets[bucket] = make(map[string][]byte)
	}
	return nil
}

func (m *Mock) EnsureFolder(_ context.Context, bucket, folder string) error {
	m.record("EnsureFolder:" + bucket + "/" + folder)
	if err := m.err("EnsureFolder"); err != nil {
		return err
	}
	objs, ok := m.Buckets[bucket]
	if !ok {
		return NotFoundError("bucket " + bucket)
	}
	objs[folder+"/"] = nil
	return nil
}

func (m *Mock) ListDataObjects(_ context.Context, bucket, prefix string) ([]Object, error) {
	if err := m.err("ListDataObjects"); err != nil {
		return nil, err
	}
	objs, ok := m.Buckets[bucket]
	if !ok {
		return nil, NotFoundError("bucket " + bucket)
	}
	var out []Object
	for key, data := range objs {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix && len(data) > 0 {
			out = append(out, Object{Key: key, Size: int64(len(data))})
		}
	}
	return out, nil
}

func (m *Mock) GetObject(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := m.err("GetObject"); err != nil {
		return nil, err
	}
	objs, ok := m.Buckets[bucket]
	if !ok {
		return nil, NotFoundError("bucket " + bucket)
	}
	data, ok := objs[key]
	if !ok {
		return nil, NotFoundError("object " + key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Mock) EmptyBucket(_ context.Context, bucket string) (int, error) {
	m.record("EmptyBucket:" + bucket)
	if err := m.err("EmptyBucket"); err != nil {
		return 0, err
	}
	objs, ok := m.Buckets[bucket]
	if !ok {
		return 0, NotFoundError("bucket " + bucket)
	}
	n := len(objs)
	m.Buckets[bucket] = make(map[string][]byte)
	return n, nil
}

func (m *Mock) DeleteBucket(_ context.Context, bucket string) error {
	m.record("DeleteBucket:" + bucket)
	if err := m.err("DeleteBucket"); err != nil {
		return err
	}
	if _, ok := m.Buckets[bucket]; !ok {
		return NotFoundError("bucket " + bucket)
	}
	delete(m.Buckets, bucket)
	return nil
}

func (m *Mock) EnsureRole(_ context.Context, spec RoleSpec) (string, error) {
	m.record("EnsureRole:" + spec.Name)
	if err := m.err("EnsureRole"); err != nil {
		return "", err
	}
	if arn, ok := m.Roles[spec.Name]; ok {
		return arn, nil
	}
	arn := "arn:aws:iam::123456789012:role/" + spec.Name
	m.Roles[spec.Name] = arn
	return arn, nil
}

func (m *Mock) DeleteRole(_ context.Context, name string) error {
	m.record("DeleteRole:" + name)
	if err := m.err("DeleteRole"); err != nil {
		return err
	}
	if _, ok := m.Roles[name]; !ok {
		return NotFoundError("role " + name)
	}
	delete(m.Roles, name)
	return nil
}

func (m *Mock) EnsureReplicationInstance(_ context.Context, spec ReplicationInstanceSpec) (*ReplicationInstance, error) {
	m.record("EnsureReplicationInstance:" + spec.ID)
	if err := m.err("EnsureReplicationInstance"); err != nil {
		return nil, err
	}
	if ri, ok := m.ReplInstances[spec.ID]; ok {
		return ri, nil
	}
	ri := &ReplicationInstance{
		ID:     spec.ID,
		ARN:    "arn:aws:dms:us-east-1:123456789012:rep:" + spec.ID,
		Status: "available",
	}
	m.ReplInstances[spec.ID] = ri
	return ri, nil
}

func (m *Mock) DescribeReplicationInstance(_ context.Context, id string) (*ReplicationInstance, error) {
	if err := m.err("DescribeReplicationInstance"); err != nil {
		return nil, err
	}
	ri, ok := m.ReplInstances[id]
	if !ok {
		return nil, NotFoundError("replication instance " + id)
	}
	return ri, nil
}

func (m *Mock) DeleteReplicationInstance(_ context.Context, arn string) error {
	m.record("DeleteReplicationInstance:" + arn)
	if err := m.err("DeleteReplicationInstance"); err != nil {
		return err
	}
	for id, ri := range m.ReplInstances {
		if ri.ARN == arn {
			delete(m.ReplInstances, id)
			return nil
		}
	}
	return NotFoundError("replication instance")
}

func (m *Mock) EnsureEndpoint(_ context.Context, spec EndpointSpec) (string, error) {
	m.record("EnsureEndpoint:" + spec.ID)
	if err := m.err("EnsureEndpoint"); err != nil {
		return "", err
	}
	if ep, ok := m.Endpoints[spec.ID]; ok {
		return ep.ARN, nil
	}
	ep := &Endpoint{
		ID:     spec.ID,
		ARN:    "arn:aws:dms:us-east-1:123456789012:endpoint:" + spec.ID,
		Status: "active",
	}
	m.Endpoints[spec.ID] = ep
	return ep.ARN, nil
}

func (m *Mock) FindEndpoint(_ context.Context, id string) (*Endpoint, error) {
	if err := m.err("FindEndpoint"); err != nil {
		return nil, err
	}
	ep, ok := m.Endpoints[id]
	if !ok {
		return nil, NotFoundError("endpoint " + id)
	}
	return ep, nil
}

func (m *Mock) DeleteEndpoint(_ context.Context, arn string) error {
	m.record("DeleteEndpoint:" + arn)
	if err := m.err("DeleteEndpoint"); err != nil {
		return err
	}
	for id, ep := range m.Endpoints {
		if ep.ARN == arn {
			delete(m.Endpoints, id)
			return nil
		}
	}
	return NotFoundError("endpoint")
}

func (m *Mock) TestConnection(_ context.Context, _, endpointARN string) error {
	m.record("TestConnection:" + endpointARN)
	return m.err("TestConnection")
}

func (m *Mock) ConnectionStatus(_ context.Context, _, _ string) (string, error) {
	if err := m.err("ConnectionStatus"); err != nil {
		return "", err
	}
	if m.ConnStatus == "" {
		return "successful", nil
	}
	return m.ConnStatus, nil
}

func (m *Mock) EnsureReplicationTask(_ context.Context, spec TaskSpec) (string, error) {
	m.record("EnsureReplicationTask:" + spec.ID)
	if err := m.err("EnsureReplicationTask"); err != nil {
		return "", err
	}
	if task, ok := m.Tasks[spec.ID]; ok {
		return task.ARN, nil
	}
	task := &TaskStatus{
		ID:     spec.ID,
		ARN:    "arn:aws:dms:us-east-1:123456789012:task:" + spec.ID,
		Status: "ready",
	}
	m.Tasks[spec.ID] = task
	return task.ARN, nil
}

func (m *Mock) FindTask(_ context.Context, id string) (*TaskStatus, error) {
	if err := m.err("FindTask"); err != nil {
		return nil, err
	}
	task, ok := m.Tasks[id]
	if !ok {
		return nil, NotFoundError("replication task " + id)
	}
	return task, nil
}

func (m *Mock) TaskStatus(_ context.Context, arn string) (*TaskStatus, error) {
	if err := m.err("TaskStatus"); err != nil {
		return nil, err
	}
	for _, task := range m.Tasks {
		if task.ARN == arn {
			return task, nil
		}
	}
	return nil, NotFoundError("replication task")
}

func (m *Mock) StartReplicationTask(_ context.Context, arn string, restart bool) error {
	m.record(fmt.Sprintf("StartReplicationTask:%s:restart=%v", arn, restart))
	if err := m.err("StartReplicationTask"); err != nil {
		return err
	}
	for _, task := range m.Tasks {
		if task.ARN == arn {
			task.Status = "stopped"
			task.StopReason = m.StartStopReason
			if task.StopReason == "" {
				task.StopReason = "Stop Reason FULL_LOAD_COMPLETED"
			}
			task.Progress = 100
			task.TablesLoaded = 1
			return nil
		}
	}
	return NotFoundError("replication task")
}

func (m *Mock) StopReplicationTask(_ context.Context, arn string) error {
	m.record("StopReplicationTask:" + arn)
	if err := m.err("StopReplicationTask"); err != nil {
		return err
	}
	for _, task := range m.Tasks {
		if task.ARN == arn {
			task.Status = "stopped"
			return nil
		}
	}
	return NotFoundError("replication task")
}

func (m *Mock) DeleteReplicationTask(_ context.Context, arn string) error {
	m.record("DeleteReplicationTask:" + arn)
	if err := m.err("DeleteReplicationTask"); err != nil {
		return err
	}
	for id, task := range m.Tasks {
		if task.ARN == arn {
			delete(m.Tasks, id)
			return nil
		}
	}
	return NotFoundError("replication task")
}
