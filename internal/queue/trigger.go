// Package queue provides the SQS-based producer that hands due reminder
// jobs to the reminder worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"traindeck/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// ReminderTrigger serializes ReminderJob envelopes and sends them to the
// reminder queue. The message group ID is the job's identity key: the FIFO
// queue then guarantees the same identity never runs concurrently with
// itself, while distinct jobs flow in parallel.
type ReminderTrigger struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewReminderTrigger creates a new ReminderTrigger for the given queue URL.
func NewReminderTrigger(client SQSSender, queueURL string, logger *slog.Logger) *ReminderTrigger {
	return &ReminderTrigger{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Dispatch publishes one reminder job to the queue. The trace ID is
// generated here and travels with the job for log correlation across the
// dispatcher/worker boundary.
func (t *ReminderTrigger) Dispatch(ctx context.Context, job *types.JobDescriptor) error {
	msg := types.ReminderJob{
		IdentityKey:  job.IdentityKey,
		Event:        job.Event,
		Payload:      job.Payload,
		TraceID:      uuid.New().String(),
		DispatchedAt: time.Now().UTC(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal ReminderJob: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:               aws.String(t.queueURL),
		MessageBody:            aws.String(string(body)),
		MessageGroupId:         aws.String(job.IdentityKey),
		MessageDeduplicationId: aws.String(job.IdentityKey),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"event": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(job.Event)),
			},
		},
	}

	if _, err := t.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send ReminderJob to %s: %w", t.queueURL, err)
	}

	t.logger.InfoContext(ctx, "reminder job dispatched",
		"queue_url", t.queueURL,
		"identity_key", job.IdentityKey,
		"event", string(job.Event),
		"trace_id", msg.TraceID,
	)

	return nil
}
