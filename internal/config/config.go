// Package config loads process configuration from CRM_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"crmcore/internal/blob"
	"crmcore/internal/core"
)

// Config is the full process configuration.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	Storage core.StorageConfig
	Blob    blob.Config

	JobsEnabled   bool
	HeartbeatLog  string
	RestockLog    string
	ReportLog     string
	ReminderLog   string
	KafkaBrokers  []string
	ReminderTopic string
}

// Defaults applied when a variable is unset.
const (
	DefaultHTTPAddr      = ":8000"
	DefaultHeartbeatLog  = "/tmp/crm_heartbeat_log.txt"
	DefaultRestockLog    = "/tmp/low_stock_updates_log.txt"
	DefaultReportLog     = "/tmp/crm_report_log.txt"
	DefaultReminderLog   = "/tmp/order_reminders_log.txt"
	DefaultReminderTopic = "crm.order-reminders"
)

// Load reads the configuration using os.Getenv.
func Load() (Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom reads the configuration through getenv.
func LoadFrom(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}
	jobs, err := parseBool(get("CRM_JOBS_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("CRM_JOBS_ENABLED: %w", err)
	}
	pathStyle, err := parseBool(get("CRM_BLOB_S3_PATH_STYLE", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("CRM_BLOB_S3_PATH_STYLE: %w", err)
	}
	cfg := Config{
		HTTPAddr:  get("CRM_HTTP_ADDR", DefaultHTTPAddr),
		LogLevel:  get("CRM_LOG_LEVEL", "info"),
		LogFormat: get("CRM_LOG_FORMAT", "json"),
		Storage: core.StorageConfig{
			Driver:      core.StorageDriver(get("CRM_STORAGE_DRIVER", string(core.StorageSQLite))),
			SQLitePath:  getenv("CRM_SQLITE_PATH"),
			PostgresDSN: getenv("CRM_POSTGRES_DSN"),
		},
		Blob: blob.Config{
			Driver: blob.Driver(get("CRM_BLOB_DRIVER", string(blob.DriverFilesystem))),
			FSRoot: getenv("CRM_BLOB_FS_ROOT"),
			S3: blob.S3Config{
				Bucket:          getenv("CRM_BLOB_S3_BUCKET"),
				Region:          getenv("CRM_BLOB_S3_REGION"),
				Endpoint:        getenv("CRM_BLOB_S3_ENDPOINT"),
				AccessKeyID:     getenv("CRM_BLOB_S3_ACCESS_KEY_ID"),
				SecretAccessKey: getenv("CRM_BLOB_S3_SECRET_ACCESS_KEY"),
				PathStyle:       pathStyle,
			},
		},
		JobsEnabled:   jobs,
		HeartbeatLog:  get("CRM_HEARTBEAT_LOG", DefaultHeartbeatLog),
		RestockLog:    get("CRM_RESTOCK_LOG", DefaultRestockLog),
		ReportLog:     get("CRM_REPORT_LOG", DefaultReportLog),
		ReminderLog:   get("CRM_REMINDER_LOG", DefaultReminderLog),
		KafkaBrokers:  splitList(getenv("CRM_KAFKA_BROKERS")),
		ReminderTopic: get("CRM_KAFKA_REMINDER_TOPIC", DefaultReminderTopic),
	}
	if cfg.Blob.Driver == blob.DriverS3 && cfg.Blob.S3.Bucket == "" {
		return Config{}, fmt.Errorf("CRM_BLOB_S3_BUCKET required for s3 blob driver")
	}
	return cfg, nil
}

func parseBool(v string) (bool, error) {
	return strconv.ParseBool(strings.ToLower(v))
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
