// Package main is the entrypoint for the Reminder Worker Lambda function.
//
// The worker consumes reminder jobs from the reminder SQS queue and executes
// them: resolve recipients, compose the scenario content, and run the
// delivery fan-out (message record, inbox rows, push, delivery logs).
//
// Lambda SQS integration uses partial batch responses: messages that fail
// processing are returned in batchItemFailures so SQS redelivers only them.
// The queue is FIFO with the job identity key as the message group, so two
// jobs for the same course event never run concurrently.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"traindeck/internal/config"
	"traindeck/internal/db"
	"traindeck/internal/notify"
	"traindeck/internal/notify/push"
	"traindeck/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

var _ types.Logger = (*slogAdapter)(nil)

// Handler holds the dependencies for the reminder worker Lambda handler.
type Handler struct {
	runner *notify.JobRunner
	logger types.Logger
}

// Handle processes an SQS event containing one or more reminder jobs. Each
// record is processed independently; failures are reported per item.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process reminder job",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

func (h *Handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	var job types.ReminderJob
	if err := json.Unmarshal([]byte(record.Body), &job); err != nil {
		// Permanent parse failure, do not retry.
		h.logger.Error("failed to unmarshal reminder job, dropping",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		return nil
	}

	logger := h.logger.With(
		"identity_key", job.IdentityKey,
		"event", string(job.Event),
		"trace_id", job.TraceID,
	)
	logger.Info("processing reminder job")

	if err := h.runner.Run(ctx, &job); err != nil {
		return fmt.Errorf("running job %s: %w", job.IdentityKey, err)
	}

	logger.Info("reminder job complete")
	return nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	typedLogger := &slogAdapter{logger: logger}

	logger.Info("reminder worker initializing (cold start)")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	snsClient := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	cwClient := cloudwatch.NewFromConfig(awsCfg)

	// Repositories.
	messageRepo := db.NewMessageRepository(pool)
	inboxRepo := db.NewInboxRepository(pool)
	logRepo := db.NewDeliveryLogRepository(pool)
	deviceRepo := db.NewDeviceRepository(pool)
	courseRepo := db.NewCourseRepository(pool)
	userRepo := db.NewUserRepository(pool)

	// Delivery pipeline.
	sender := push.NewSender(snsClient, cfg.AWS.PlatformAppARN, cfg.Notify.PushConcurrency, logger)
	metrics := notify.NewCloudWatchMetrics(cwClient, typedLogger)
	fanout := notify.NewFanout(messageRepo, inboxRepo, logRepo, deviceRepo, sender, metrics,
		cfg.Notify.FanoutChunkSize, types.RealClock{}, typedLogger)
	resolver := notify.NewRecipientResolver(deviceRepo, typedLogger)
	composer := notify.NewComposer(courseRepo)
	runner := notify.NewJobRunner(resolver, composer, fanout, courseRepo, userRepo, typedLogger)

	handler := &Handler{runner: runner, logger: typedLogger}

	logger.Info("reminder worker initialized",
		"reminder_queue", cfg.AWS.ReminderQueueURL,
		"push_concurrency", cfg.Notify.PushConcurrency,
	)

	// Local mode: read a JSON SQS event from stdin instead of starting the
	// Lambda runtime.
	if cfg.Environment == "local" {
		runLocal(handler, logger)
		return
	}

	lambda.Start(handler.Handle)
}

// runLocal executes one SQS event read from stdin, for integration testing
// without the Lambda RIE.
func runLocal(handler *Handler, logger *slog.Logger) {
	logger.Info("APP_ENV=local: reading SQS event from stdin")
	payload, err := io.ReadAll(os.Stdin)
	if err != nil || len(payload) == 0 {
		logger.Error("failed to read SQS event from stdin", "error", err)
		os.Exit(1)
	}

	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(payload, &sqsEvent); err != nil {
		logger.Error("failed to parse stdin as SQS event", "error", err)
		os.Exit(1)
	}

	response, err := handler.Handle(context.Background(), sqsEvent)
	if err != nil {
		logger.Error("handler execution failed", "error", err)
		os.Exit(1)
	}

	logger.Info("handler execution completed",
		"records_processed", len(sqsEvent.Records),
		"failures", len(response.BatchItemFailures),
	)
}
