package schedule

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"

	"traindeck/internal/types"
)

// archiveBatchLimit is the page size used when streaming delivery logs into
// an archive export.
const archiveBatchLimit = 500

// MaintenanceLogs is the delivery-log access the maintenance service needs.
// Implemented by db.DeliveryLogRepository.
type MaintenanceLogs interface {
	ListBefore(ctx context.Context, cutoff time.Time, afterID string, limit int) ([]*types.DeliveryLog, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MaintenanceJobs is the scheduled-job cleanup access. Implemented by
// db.JobRepository.
type MaintenanceJobs interface {
	DeleteDispatchedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// S3Uploader abstracts the S3 PutObject operation for testability.
type S3Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Maintenance runs the retention tasks: exporting aged delivery logs to the
// archive bucket as gzip NDJSON and purging dispatched scheduled jobs.
type Maintenance struct {
	logs      MaintenanceLogs
	jobs      MaintenanceJobs
	uploader  S3Uploader
	bucket    string
	retention time.Duration
	logger    *slog.Logger
}

// NewMaintenance creates a Maintenance service. An empty bucket disables
// archival (logs are purged without export), which is only acceptable in
// local environments.
func NewMaintenance(logs MaintenanceLogs, jobs MaintenanceJobs, uploader S3Uploader, bucket string, retention time.Duration, logger *slog.Logger) *Maintenance {
	if logger == nil {
		logger = slog.Default()
	}
	return &Maintenance{
		logs:      logs,
		jobs:      jobs,
		uploader:  uploader,
		bucket:    bucket,
		retention: retention,
		logger:    logger,
	}
}

// ArchiveDeliveryLogs exports delivery logs older than the retention window
// to the archive bucket, then deletes them. Returns the number of rows
// purged. The export happens before the delete; a failure to upload aborts
// the purge so no audit row is ever lost.
func (m *Maintenance) ArchiveDeliveryLogs(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-m.retention)

	if m.bucket != "" {
		exported, err := m.exportLogs(ctx, cutoff, now)
		if err != nil {
			return 0, fmt.Errorf("exporting delivery logs: %w", err)
		}
		if exported == 0 {
			return 0, nil
		}
	}

	deleted, err := m.logs.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging delivery logs: %w", err)
	}

	m.logger.InfoContext(ctx, "delivery log retention complete",
		"cutoff", cutoff.Format(time.RFC3339),
		"deleted", deleted,
	)
	return deleted, nil
}

// CleanupJobs purges dispatched scheduled jobs older than the retention
// window. Undispatched jobs are never touched.
func (m *Maintenance) CleanupJobs(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-m.retention)

	deleted, err := m.jobs.DeleteDispatchedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging dispatched jobs: %w", err)
	}

	m.logger.InfoContext(ctx, "scheduled job cleanup complete",
		"cutoff", cutoff.Format(time.RFC3339),
		"deleted", deleted,
	)
	return deleted, nil
}

// exportLogs streams aged rows into a single gzip NDJSON object and uploads
// it under a timestamped key. Returns the number of rows exported.
func (m *Maintenance) exportLogs(ctx context.Context, cutoff, now time.Time) (int, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)

	count := 0
	afterID := ""
	for {
		page, err := m.logs.ListBefore(ctx, cutoff, afterID, archiveBatchLimit)
		if err != nil {
			return 0, err
		}
		if len(page) == 0 {
			break
		}
		for _, l := range page {
			if err := enc.Encode(l); err != nil {
				return 0, fmt.Errorf("encoding log row: %w", err)
			}
			count++
		}
		afterID = page[len(page)-1].ID
		if len(page) < archiveBatchLimit {
			break
		}
	}

	if count == 0 {
		return 0, nil
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("closing gzip stream: %w", err)
	}

	key := fmt.Sprintf("delivery-logs/%s.ndjson.gz", now.UTC().Format("2006-01-02T15-04-05"))
	_, err := m.uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return 0, fmt.Errorf("uploading archive object %s: %w", key, err)
	}

	m.logger.InfoContext(ctx, "delivery logs archived",
		"bucket", m.bucket,
		"key", key,
		"rows", count,
	)
	return count, nil
}
