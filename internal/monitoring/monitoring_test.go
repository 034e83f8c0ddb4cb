package monitoring

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/smithy-go"
)

type mockCW struct {
	alarms          []string
	deletedAlarms   []string
	dashboards      []string
	deletedBoards   []string
	deleteAlarmsErr error
}

func (m *mockCW) PutMetricAlarm(_ context.Context, in *cloudwatch.PutMetricAlarmInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricAlarmOutput, error) {
	m.alarms = append(m.alarms, aws.ToString(in.AlarmName))
	return &cloudwatch.PutMetricAlarmOutput{}, nil
}

func (m *mockCW) DeleteAlarms(_ context.Context, in *cloudwatch.DeleteAlarmsInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.DeleteAlarmsOutput, error) {
	if m.deleteAlarmsErr != nil {
		return nil, m.deleteAlarmsErr
	}
	m.deletedAlarms = append(m.deletedAlarms, in.AlarmNames...)
	return &cloudwatch.DeleteAlarmsOutput{}, nil
}

func (m *mockCW) PutDashboard(_ context.Context, in *cloudwatch.PutDashboardInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutDashboardOutput, error) {
	m.dashboards = append(m.dashboards, aws.ToString(in.DashboardName))
	return &cloudwatch.PutDashboardOutput{}, nil
}

func (m *mockCW) DeleteDashboards(_ context.Context, in *cloudwatch.DeleteDashboardsInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.DeleteDashboardsOutput, error) {
	m.deletedBoards = append(m.deletedBoards, in.DashboardNames...)
	return &cloudwatch.DeleteDashboardsOutput{}, nil
}

type mockSNS struct {
	topics        []string
	subscriptions []string
	deletedTopics []string
}

func (m *mockSNS) CreateTopic(_ context.Context, in *sns.CreateTopicInput, _ ...func(*sns.Options)) (*sns.CreateTopicOutput, error) {
	name := aws.ToString(in.Name)
	m.topics = append(m.topics, name)
	return &sns.CreateTopicOutput{
		TopicArn: aws.String("arn:aws:sns:us-east-1:123456789012:" + name),
	}, nil
}

func (m *mockSNS) Subscribe(_ context.Context, in *sns.SubscribeInput, _ ...func(*sns.Options)) (*sns.SubscribeOutput, error) {
	m.subscriptions = append(m.subscriptions, aws.ToString(in.Endpoint))
	return &sns.SubscribeOutput{}, nil
}

func (m *mockSNS) DeleteTopic(_ context.Context, in *sns.DeleteTopicInput, _ ...func(*sns.Options)) (*sns.DeleteTopicOutput, error) {
	m.deletedTopics = append(m.deletedTopics, aws.ToString(in.TopicArn))
	return &sns.DeleteTopicOutput{}, nil
}

func testMonitor(cw *mockCW, s *mockSNS) *Monitor {
	return NewWithClients(cw, s, "us-east-1", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSetupCreatesAlarmsAndDashboard(t *testing.T) {
	cw := &mockCW{}
	s := &mockSNS{}
	m := testMonitor(cw, s)

	result, err := m.Setup(context.Background(), "sqlserver-to-s3-migration", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cw.alarms) != 3 {
		t.Fatalf("expected 3 alarms, got %d: %v", len(cw.alarms), cw.alarms)
	}
	want := []string{
		"DMS-Task-Failure-sqlserver-to-s3-migration",
		"DMS-High-Replication-Lag-sqlserver-to-s3-migration",
		"DMS-Low-Throughput-sqlserver-to-s3-migration",
	}
	for i, name := range want {
		if cw.alarms[i] != name {
			t.Errorf("alarm %d: got %s, want %s", i, cw.alarms[i], name)
		}
	}
	if len(cw.dashboards) != 1 || cw.dashboards[0] != "DMS-Migration-sqlserver-to-s3-migration" {
		t.Errorf("unexpected dashboards: %v", cw.dashboards)
	}
	if len(s.topics) != 0 {
		t.Errorf("no topic expected without an email, got %v", s.topics)
	}
	if result.TopicARN != "" {
		t.Errorf("expected empty topic ARN, got %s", result.TopicARN)
	}
}

func TestSetupWithEmailCreatesTopic(t *testing.T) {
	cw := &mockCW{}
	s := &mockSNS{}
	m := testMonitor(cw, s)

	result, err := m.Setup(context.Background(), "task1", "ops@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(s.topics) != 1 || s.topics[0] != "dms-alerts-task1" {
		t.Errorf("unexpected topics: %v", s.topics)
	}
	if len(s.subscriptions) != 1 || s.subscriptions[0] != "ops@example.com" {
		t.Errorf("unexpected subscriptions: %v", s.subscriptions)
	}
	if result.TopicARN == "" {
		t.Error("expected topic ARN recorded")
	}
}

func TestCleanupRemovesEverything(t *testing.T) {
	cw := &mockCW{}
	s := &mockSNS{}
	m := testMonitor(cw, s)

	err := m.Cleanup(context.Background(), "task1", "arn:aws:sns:us-east-1:123456789012:dms-alerts-task1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cw.deletedAlarms) != 3 {
		t.Errorf("expected 3 alarms deleted, got %v", cw.deletedAlarms)
	}
	if len(cw.deletedBoards) != 1 {
		t.Errorf("expected dashboard deleted, got %v", cw.deletedBoards)
	}
	if len(s.deletedTopics) != 1 {
		t.Errorf("expected topic deleted, got %v", s.deletedTopics)
	}
}

func TestCleanupToleratesMissingResources(t *testing.T) {
	cw := &mockCW{
		deleteAlarmsErr: &smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: "gone"},
	}
	m := testMonitor(cw, &mockSNS{})

	if err := m.Cleanup(context.Background(), "task1", ""); err != nil {
		t.Fatalf("missing resources must not fail cleanup: %v", err)
	}
}
