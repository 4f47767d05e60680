// Package config defines the global configuration structure for the Traindeck
// notification engine. Configuration is loaded once at process initialization
// (Lambda Cold Start or API boot) and is immutable thereafter. It follows
// 12-Factor App principles by strictly separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup (fail fast).
package config

import "time"

// Config is the top-level configuration struct for the notification engine.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"traindeck-notify"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server   ServerConfig
	Database DatabaseConfig
	AWS      AWSConfig
	Notify   NotifyConfig
}

// ServerConfig holds HTTP server parameters for the inbox API binary.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout  time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"` // Fail fast when pool exhausted
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"ap-southeast-1"`

	// Resource Identifiers
	ReminderQueueURL string `envconfig:"SQS_REMINDERS" validate:"required,url"`
	ArchiveBucket    string `envconfig:"ARCHIVE_BUCKET"` // Cold storage for delivery log exports

	// SNS platform application for mobile push endpoints.
	PlatformAppARN string `envconfig:"SNS_PLATFORM_APP_ARN" validate:"required"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// NotifyConfig holds tuning parameters for scheduling and fan-out.
type NotifyConfig struct {
	// Timezone is the organization-local calendar used to compute reminder
	// trigger dates. Day-boundary arithmetic in UTC would be off by one for
	// most of the user base.
	Timezone string `envconfig:"NOTIFY_TIMEZONE" default:"Asia/Ho_Chi_Minh"`

	// ReminderLeadDays is how many calendar days before a start/end date the
	// reminder fires.
	ReminderLeadDays int `envconfig:"NOTIFY_REMINDER_LEAD_DAYS" default:"2"`

	// CreatedDelay is the short deferral applied to course-created
	// announcements so heavy fan-out never runs inside the CRUD request.
	CreatedDelay time.Duration `envconfig:"NOTIFY_CREATED_DELAY" default:"30s"`

	// FanoutChunkSize bounds a single inbox INSERT statement.
	FanoutChunkSize int `envconfig:"NOTIFY_FANOUT_CHUNK_SIZE" default:"1000"`

	// PushConcurrency bounds parallel per-token publishes inside one job.
	PushConcurrency int `envconfig:"NOTIFY_PUSH_CONCURRENCY" default:"8"`

	// LogRetention is how long delivery logs stay in Postgres before they
	// are exported to the archive bucket and purged.
	LogRetention time.Duration `envconfig:"NOTIFY_LOG_RETENTION" default:"2160h"` // 90 days
}
