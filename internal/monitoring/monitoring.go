// Package monitoring manages the CloudWatch alarms, dashboard, and SNS
// notification topic attached to a replication task.
package monitoring

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/pipewright/pipewright/internal/cloud"
)

// cloudWatchAPI is the slice of the CloudWatch client this package uses.
type cloudWatchAPI interface {
	PutMetricAlarm(ctx context.Context, in *cloudwatch.PutMetricAlarmInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricAlarmOutput, error)
	DeleteAlarms(ctx context.Context, in *cloudwatch.DeleteAlarmsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.DeleteAlarmsOutput, error)
	PutDashboard(ctx context.Context, in *cloudwatch.PutDashboardInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutDashboardOutput, error)
	DeleteDashboards(ctx context.Context, in *cloudwatch.DeleteDashboardsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.DeleteDashboardsOutput, error)
}

// snsAPI is the slice of the SNS client this package uses.
type snsAPI interface {
	CreateTopic(ctx context.Context, in *sns.CreateTopicInput, optFns ...func(*sns.Options)) (*sns.CreateTopicOutput, error)
	Subscribe(ctx context.Context, in *sns.SubscribeInput, optFns ...func(*sns.Options)) (*sns.SubscribeOutput, error)
	DeleteTopic(ctx context.Context, in *sns.DeleteTopicInput, optFns ...func(*sns.Options)) (*sns.DeleteTopicOutput, error)
}

// Monitor creates and removes the observability resources for one task.
type Monitor struct {
	cw     cloudWatchAPI
	sns    snsAPI
	region string
	logger *slog.Logger
}

// New builds a Monitor from a resolved SDK config.
func New(cfg aws.Config, logger *slog.Logger) *Monitor {
	return &Monitor{
		cw:     cloudwatch.NewFromConfig(cfg),
		sns:    sns.NewFromConfig(cfg),
		region: cfg.Region,
		logger: logger,
	}
}

// NewWithClients wires explicit API clients, used by tests.
func NewWithClients(cw cloudWatchAPI, snsClient snsAPI, region string, logger *slog.Logger) *Monitor {
	return &Monitor{cw: cw, sns: snsClient, region: region, logger: logger}
}

// Result records what Setup created so teardown can find it later.
type Result struct {
	AlarmNames    []string
	TopicARN      string
	DashboardName string
}

func alarmNames(taskID string) []string {
	return []string{
		"DMS-Task-Failure-" + taskID,
		"DMS-High-Replication-Lag-" + taskID,
		"DMS-Low-Throughput-" + taskID,
	}
}

func dashboardName(taskID string) string {
	return "DMS-Migration-" + taskID
}

// Setup creates the three task alarms, the dashboard, and, when an email
// is configured, an SNS topic with an email subscription wired as the
// alarm action.
func (m *Monitor) Setup(ctx context.Context, taskID, email string) (*Result, error) {
	result := &Result{DashboardName: dashboardName(taskID)}

	var alarmActions []string
	if email != "" {
		topicOut, err := m.sns.CreateTopic(ctx, &sns.CreateTopicInput{
			Name: aws.String("dms-alerts-" + taskID),
		})
		if err != nil {
			return nil, fmt.Errorf("creating alert topic: %w", err)
		}
		result.TopicARN = aws.ToString(topicOut.TopicArn)
		alarmActions = []string{result.TopicARN}

		_, err = m.sns.Subscribe(ctx, &sns.SubscribeInput{
			TopicArn: topicOut.TopicArn,
			Protocol: aws.String("email"),
			Endpoint: aws.String(email),
		})
		if err != nil {
			return nil, fmt.Errorf("subscribing %s to alerts: %w", email, err)
		}
		m.logger.Info("alert subscription created, confirm via email", "email", email)
	}

	dims := []cwtypes.Dimension{
		{Name: aws.String("ReplicationTaskIdentifier"), Value: aws.String(taskID)},
	}

	alarms := []cloudwatch.PutMetricAlarmInput{
		{
			AlarmName:          aws.String("DMS-Task-Failure-" + taskID),
			AlarmDescription:   aws.String("Full load stopped making progress"),
			Namespace:          aws.String("AWS/DMS"),
			MetricName:         aws.String("FullLoadThroughputRowsTarget"),
			Statistic:          cwtypes.StatisticAverage,
			Period:             aws.Int32(300),
			EvaluationPeriods:  aws.Int32(2),
			Threshold:          aws.Float64(0),
			ComparisonOperator: cwtypes.ComparisonOperatorLessThanOrEqualToThreshold,
			TreatMissingData:   aws.String("notBreaching"),
			Dimensions:         dims,
		},
		{
			AlarmName:          aws.String("DMS-High-Replication-Lag-" + taskID),
			AlarmDescription:   aws.String("Target latency above five minutes"),
			Namespace:          aws.String("AWS/DMS"),
			MetricName:         aws.String("CDCLatencyTarget"),
			Statistic:          cwtypes.StatisticAverage,
			Period:             aws.Int32(300),
			EvaluationPeriods:  aws.Int32(1),
			Threshold:          aws.Float64(300),
			ComparisonOperator: cwtypes.ComparisonOperatorGreaterThanThreshold,
			TreatMissingData:   aws.String("notBreaching"),
			Dimensions:         dims,
		},
		{
			AlarmName:          aws.String("DMS-Low-Throughput-" + taskID),
			AlarmDescription:   aws.String("Rows reaching the target dropped below one per second"),
			Namespace:          aws.String("AWS/DMS"),
			MetricName:         aws.String("CDCThroughputRowsTarget"),
			Statistic:          cwtypes.StatisticAverage,
			Period:             aws.Int32(300),
			EvaluationPeriods:  aws.Int32(1),
			Threshold:          aws.Float64(1),
			ComparisonOperator: cwtypes.ComparisonOperatorLessThanThreshold,
			TreatMissingData:   aws.String("notBreaching"),
			Dimensions:         dims,
		},
	}

	for i := range alarms {
		alarms[i].AlarmActions = alarmActions
		if _, err := m.cw.PutMetricAlarm(ctx, &alarms[i]); err != nil {
			return nil, fmt.Errorf("creating alarm %s: %w", aws.ToString(alarms[i].AlarmName), err)
		}
		result.AlarmNames = append(result.AlarmNames, aws.ToString(alarms[i].AlarmName))
	}

	body := dashboardBody(taskID, m.region)
	_, err := m.cw.PutDashboard(ctx, &cloudwatch.PutDashboardInput{
		DashboardName: aws.String(result.DashboardName),
		DashboardBody: aws.String(body),
	})
	if err != nil {
		return nil, fmt.Errorf("creating dashboard: %w", err)
	}

	m.logger.Info("monitoring configured",
		"alarms", len(result.AlarmNames),
		"dashboard", result.DashboardName)
	return result, nil
}

// Cleanup removes the alarms, dashboard, and topic. Resources that are
// already gone are not failures.
func (m *Monitor) Cleanup(ctx context.Context, taskID, topicARN string) error {
	_, err := m.cw.DeleteAlarms(ctx, &cloudwatch.DeleteAlarmsInput{
		AlarmNames: alarmNames(taskID),
	})
	if err != nil && !cloud.IsNotFound(err) {
		return fmt.Errorf("deleting alarms: %w", err)
	}

	_, err = m.cw.DeleteDashboards(ctx, &cloudwatch.DeleteDashboardsInput{
		DashboardNames: []string{dashboardName(taskID)},
	})
	if err != nil && !cloud.IsNotFound(err) {
		return fmt.Errorf("deleting dashboard: %w", err)
	}

	if topicARN != "" {
		_, err = m.sns.DeleteTopic(ctx, &sns.DeleteTopicInput{
			TopicArn: aws.String(topicARN),
		})
		if err != nil && !cloud.IsNotFound(err) {
			return fmt.Errorf("deleting topic: %w", err)
		}
	}

	m.logger.Info("monitoring removed", "task", taskID)
	return nil
}

func dashboardBody(taskID, region string) string {
	return fmt.Sprintf(`{
  "widgets": [
    {
      "type": "metric",
      "x": 0, "y": 0, "width": 12, "height": 6,
      "properties": {
        "title": "Full load throughput",
        "region": %q,
        "metrics": [["AWS/DMS", "FullLoadThroughputRowsTarget", "ReplicationTaskIdentifier", %q]],
        "period": 300,
        "stat": "Average"
      }
    },
    {
      "type": "metric",
      "x": 12, "y": 0, "width": 12, "height": 6,
      "properties": {
        "title": "Replication latency",
        "region": %q,
        "metrics": [
          ["AWS/DMS", "CDCLatencySource", "ReplicationTaskIdentifier", %q],
          ["AWS/DMS", "CDCLatencyTarget", "ReplicationTaskIdentifier", %q]
        ],
        "period": 300,
        "stat": "Average"
      }
    }
  ]
}`, region, taskID, region, taskID, taskID)
}
