package notify

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"traindeck/internal/types"
)

const (
	metricNamespace   = "TrainDeck/Notifications"
	metricPushAttempt = "PushAttempt"
	metricFanoutRows  = "InboxFanoutRows"
	metricDeadTokens  = "DeadTokens"
	metricFanoutLatMS = "FanoutLatency"
	dimEvent          = "Event"
	dimResult         = "Result"
)

// DeliveryMetrics records fan-out and push outcomes. The no-op implementation
// is used in tests and local runs.
type DeliveryMetrics interface {
	RecordPush(ctx context.Context, event types.LifecycleEvent, success bool)
	RecordFanout(ctx context.Context, event types.LifecycleEvent, inboxRows int, deadTokens int, elapsed time.Duration)
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) RecordPush(context.Context, types.LifecycleEvent, bool) {}
func (NopMetrics) RecordFanout(context.Context, types.LifecycleEvent, int, int, time.Duration) {
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Compile-time assertion that CloudWatchMetrics implements DeliveryMetrics.
var _ DeliveryMetrics = (*CloudWatchMetrics)(nil)

// CloudWatchMetrics emits delivery metrics to CloudWatch. Emission failures
// are logged and swallowed; metrics never fail a fan-out.
type CloudWatchMetrics struct {
	client CloudWatchClient
	logger types.Logger
}

// NewCloudWatchMetrics creates a CloudWatchMetrics publisher.
func NewCloudWatchMetrics(client CloudWatchClient, logger types.Logger) *CloudWatchMetrics {
	return &CloudWatchMetrics{client: client, logger: logger}
}

// RecordPush emits one PushAttempt datum with Event and Result dimensions.
func (m *CloudWatchMetrics) RecordPush(ctx context.Context, event types.LifecycleEvent, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(metricNamespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricPushAttempt),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(dimEvent), Value: aws.String(string(event))},
					{Name: aws.String(dimResult), Value: aws.String(result)},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record push metric",
			"error", err.Error(),
			"event", string(event),
			"result", result,
		)
	}
}

// RecordFanout emits the per-fan-out summary: inbox rows written, dead
// tokens discovered, and end-to-end latency in milliseconds.
func (m *CloudWatchMetrics) RecordFanout(ctx context.Context, event types.LifecycleEvent, inboxRows int, deadTokens int, elapsed time.Duration) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(dimEvent), Value: aws.String(string(event))},
	}
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(metricNamespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricFanoutRows),
				Value:      aws.Float64(float64(inboxRows)),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
			{
				MetricName: aws.String(metricDeadTokens),
				Value:      aws.Float64(float64(deadTokens)),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
			{
				MetricName: aws.String(metricFanoutLatMS),
				Value:      aws.Float64(float64(elapsed.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: dims,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record fan-out metrics",
			"error", err.Error(),
			"event", string(event),
		)
	}
}
