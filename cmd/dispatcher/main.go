// Package main is the entrypoint for the scheduler dispatcher Lambda.
//
// EventBridge invokes it on a fixed cadence with a schedule.TaskPayload
// naming one task:
//
//	dispatch_due          - move due scheduled jobs onto the reminder queue
//	archive_delivery_logs - export aged delivery logs to S3 and purge them
//	cleanup_jobs          - purge dispatched scheduled jobs past retention
//
// An optional reference_time in the payload overrides "now" for manual
// invocations and backfills.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"traindeck/internal/config"
	"traindeck/internal/db"
	"traindeck/internal/queue"
	"traindeck/internal/schedule"
)

// Handler holds the dependencies for the dispatcher Lambda handler.
type Handler struct {
	jobs        *db.JobRepository
	locks       *db.JobLockRepository
	trigger     *queue.ReminderTrigger
	maintenance *schedule.Maintenance
	logger      *slog.Logger
}

// Handle multiplexes one EventBridge invocation to its task.
func (h *Handler) Handle(ctx context.Context, payload schedule.TaskPayload) error {
	now := time.Now().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	h.logger.InfoContext(ctx, "dispatcher task invoked",
		"task", string(payload.Task),
		"reference_time", now.Format(time.RFC3339),
	)

	switch payload.Task {
	case schedule.TaskDispatchDue:
		dispatcher := schedule.NewDispatcher(h.jobs, h.locks, h.trigger, workerID(ctx), h.logger)
		dispatched, err := dispatcher.DispatchDue(ctx, now)
		if err != nil {
			return fmt.Errorf("dispatch_due: %w", err)
		}
		h.logger.InfoContext(ctx, "dispatch_due complete", "dispatched", dispatched)
		return nil

	case schedule.TaskArchiveDeliveryLogs:
		purged, err := h.maintenance.ArchiveDeliveryLogs(ctx, now)
		if err != nil {
			return fmt.Errorf("archive_delivery_logs: %w", err)
		}
		h.logger.InfoContext(ctx, "archive_delivery_logs complete", "purged", purged)
		return nil

	case schedule.TaskCleanupJobs:
		deleted, err := h.maintenance.CleanupJobs(ctx, now)
		if err != nil {
			return fmt.Errorf("cleanup_jobs: %w", err)
		}
		h.logger.InfoContext(ctx, "cleanup_jobs complete", "deleted", deleted)
		return nil

	default:
		return fmt.Errorf("unknown task %q", payload.Task)
	}
}

// workerID identifies this invocation in the job lock table. The Lambda
// request ID is used when available so a stuck lease can be traced back to
// its invocation.
func workerID(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	return uuid.New().String()
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("dispatcher initializing (cold start)")

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

	endpointOverride := func(endpoint string) func(o *s3.Options) {
		return func(o *s3.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
				o.UsePathStyle = true
			}
		}
	}

	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	s3Client := s3.NewFromConfig(awsCfg, endpointOverride(cfg.AWS.EndpointURL))

	jobRepo := db.NewJobRepository(pool)
	lockRepo := db.NewJobLockRepository(pool)
	logRepo := db.NewDeliveryLogRepository(pool)
	trigger := queue.NewReminderTrigger(sqsClient, cfg.AWS.ReminderQueueURL, logger)
	maintenance := schedule.NewMaintenance(logRepo, jobRepo, s3Client,
		cfg.AWS.ArchiveBucket, cfg.Notify.LogRetention, logger)

	handler := &Handler{
		jobs:        jobRepo,
		locks:       lockRepo,
		trigger:     trigger,
		maintenance: maintenance,
		logger:      logger,
	}

	logger.Info("dispatcher initialized",
		"reminder_queue", cfg.AWS.ReminderQueueURL,
		"archive_bucket", cfg.AWS.ArchiveBucket,
	)

	lambda.Start(handler.Handle)
}
