package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"almazara/internal/blob"
	"almazara/internal/core"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Addr() != ":8080" {
		t.Fatalf("unexpected port %q", cfg.Server.Port)
	}
	opts := cfg.StorageOptions()
	if opts.Driver != core.StorageSQLite || opts.SQLitePath != "almazara.db" {
		t.Fatalf("unexpected storage options %+v", opts)
	}
	if cfg.Backup.CronSchedule != "0 3 * * *" || cfg.Exports.QueueSize != 64 || cfg.MongoDB.URI != "" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "mill.env")
	content := strings.Join([]string{
		"ALMAZARA_HTTP_PORT=9090",
		"ALMAZARA_STORAGE_DRIVER=memory",
		"ALMAZARA_BLOB_DRIVER=memory",
		"ALMAZARA_BACKUP_CRON=off",
		"ALMAZARA_EXPORT_WEBHOOK_URL=https://hooks.example.test/mill",
		"ALMAZARA_LOG_LEVEL=debug",
	}, "\n")
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	for _, key := range []string{"ALMAZARA_HTTP_PORT", "ALMAZARA_STORAGE_DRIVER", "ALMAZARA_BLOB_DRIVER", "ALMAZARA_BACKUP_CRON", "ALMAZARA_EXPORT_WEBHOOK_URL", "ALMAZARA_LOG_LEVEL"} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Storage.Driver != "memory" || cfg.Blob.Driver != blob.DriverMemory {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Backup.CronSchedule != "" || cfg.Log.Level != "debug" || cfg.Webhook.URL == "" {
		t.Fatalf("unexpected optional settings %+v", cfg)
	}
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("expected missing env file to be ignored, got %v", err)
	}
}

func TestValidateRejectsInconsistentSettings(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:  ServerConfig{Port: "8080"},
			Storage: StorageConfig{Driver: "sqlite", SQLitePath: "x.db"},
			Exports: ExportsConfig{QueueSize: 1},
		}
	}
	cases := map[string]func(*Config){
		"port":     func(c *Config) { c.Server.Port = "" },
		"driver":   func(c *Config) { c.Storage.Driver = "oracle" },
		"postgres": func(c *Config) { c.Storage.Driver = "postgres" },
		"bucket":   func(c *Config) { c.Blob.Driver = blob.DriverS3 },
		"blob":     func(c *Config) { c.Blob.Driver = "ftp" },
		"cron":     func(c *Config) { c.Backup.CronSchedule = "every day" },
		"queue":    func(c *Config) { c.Exports.QueueSize = 0 },
		"mongo":    func(c *Config) { c.MongoDB.URI = "mongodb://localhost" },
		"webhook":  func(c *Config) { c.Webhook.URL = "ftp://nope" },
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	var nilCfg *Config
	if err := nilCfg.Validate(); err == nil {
		t.Fatalf("expected nil config error")
	}
}

func TestLoadRejectsBadQueueSize(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ALMAZARA_EXPORT_QUEUE_SIZE", "many")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected queue size error")
	}
}
