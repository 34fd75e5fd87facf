// Package config loads the mill service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"almazara/internal/blob"
	"almazara/internal/core"
)

// Config represents the full application configuration surface.
type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Blob    blob.Options
	Backup  BackupConfig
	Exports ExportsConfig
	MongoDB MongoDBConfig
	Webhook WebhookConfig
	Log     LogConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// StorageConfig selects the snapshot backend.
type StorageConfig struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// BackupConfig holds the snapshot backup schedule. An empty schedule
// disables backups.
type BackupConfig struct {
	CronSchedule string
}

// ExportsConfig tunes the export worker.
type ExportsConfig struct {
	QueueSize int
}

// MongoDBConfig holds the compliance archive settings. An empty URI disables
// archiving.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// WebhookConfig holds the export notification endpoint.
type WebhookConfig struct {
	URL   string
	Token string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Missing .env files are fine when settings come from the environment.
		_ = godotenv.Load()
	}

	queueSize, err := getenvInt("ALMAZARA_EXPORT_QUEUE_SIZE", 64)
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("ALMAZARA_HTTP_PORT", "8080"),
		},
		Storage: StorageConfig{
			Driver:      strings.ToLower(getenvWithDefault("ALMAZARA_STORAGE_DRIVER", string(core.StorageSQLite))),
			SQLitePath:  getenvWithDefault("ALMAZARA_SQLITE_PATH", "almazara.db"),
			PostgresDSN: os.Getenv("ALMAZARA_POSTGRES_DSN"),
		},
		Blob: blob.OptionsFromEnv(),
		Backup: BackupConfig{
			CronSchedule: getenvWithDefault("ALMAZARA_BACKUP_CRON", "0 3 * * *"),
		},
		Exports: ExportsConfig{QueueSize: queueSize},
		MongoDB: MongoDBConfig{
			URI:    os.Getenv("ALMAZARA_MONGODB_URI"),
			DBName: getenvWithDefault("ALMAZARA_MONGODB_DB", "almazara"),
		},
		Webhook: WebhookConfig{
			URL:   os.Getenv("ALMAZARA_EXPORT_WEBHOOK_URL"),
			Token: os.Getenv("ALMAZARA_EXPORT_WEBHOOK_TOKEN"),
		},
		Log: LogConfig{
			Level: getenvWithDefault("ALMAZARA_LOG_LEVEL", "info"),
		},
	}
	if strings.EqualFold(cfg.Backup.CronSchedule, "off") {
		cfg.Backup.CronSchedule = ""
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures that required configuration fields are populated and
// consistent with the selected drivers.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Server.Port == "" {
		return errors.New("ALMAZARA_HTTP_PORT must be provided")
	}

	switch core.StorageDriver(c.Storage.Driver) {
	case core.StorageMemory:
	case core.StorageSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("ALMAZARA_SQLITE_PATH must be provided")
		}
	case core.StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("ALMAZARA_POSTGRES_DSN must be provided")
		}
	default:
		return fmt.Errorf("ALMAZARA_STORAGE_DRIVER %q is not supported", c.Storage.Driver)
	}

	switch c.Blob.Driver {
	case blob.DriverFilesystem, blob.DriverMemory, "":
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			return errors.New("ALMAZARA_BLOB_S3_BUCKET must be provided")
		}
	default:
		return fmt.Errorf("ALMAZARA_BLOB_DRIVER %q is not supported", c.Blob.Driver)
	}

	if c.Backup.CronSchedule != "" {
		if _, err := cron.ParseStandard(c.Backup.CronSchedule); err != nil {
			return fmt.Errorf("ALMAZARA_BACKUP_CRON is invalid: %w", err)
		}
	}
	if c.Exports.QueueSize <= 0 {
		return errors.New("ALMAZARA_EXPORT_QUEUE_SIZE must be positive")
	}
	if c.MongoDB.URI != "" && c.MongoDB.DBName == "" {
		return errors.New("ALMAZARA_MONGODB_DB must be provided")
	}
	if c.Webhook.URL != "" && !strings.HasPrefix(c.Webhook.URL, "http://") && !strings.HasPrefix(c.Webhook.URL, "https://") {
		return errors.New("ALMAZARA_EXPORT_WEBHOOK_URL must be an http(s) URL")
	}
	return nil
}

// StorageOptions returns the snapshot backend selection.
func (c *Config) StorageOptions() core.StorageOptions {
	return core.StorageOptions{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + c.Server.Port
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}
