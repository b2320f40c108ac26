package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_WritesDefaultFileWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if resolved != path {
		t.Fatalf("resolved path = %q, want %q", resolved, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config to be written: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.StorageDriver != DriverSQLite || !cfg.AutoMarkSeen {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_FileThenEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "addr: \":9000\"\nlog_level: debug\noutbox_size: 4\nauto_mark_seen: false\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("WIRECHAT_LOG_LEVEL", "warn")
	t.Setenv("WIRECHAT_PRESENCE_TTL", "30s")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Fatalf("addr = %q, want file value", cfg.Addr)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("log_level = %q, want env override", cfg.LogLevel)
	}
	if cfg.OutboxSize != 4 || cfg.AutoMarkSeen {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.PresenceTTL != 30*time.Second {
		t.Fatalf("presence_ttl = %v, want 30s", cfg.PresenceTTL)
	}
}

func TestUpdateFrom_OnlyNonZero(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Addr: ":7000", InboxSize: 2})

	if cfg.Addr != ":7000" || cfg.InboxSize != 2 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.LogLevel != "info" || cfg.OutboxSize != 64 || !cfg.AutoMarkSeen {
		t.Fatalf("zero overrides clobbered defaults: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cfg.StorageDriver = DriverMongo
	if err := cfg.Validate(); err == nil {
		t.Fatalf("mongo without uri should fail")
	}
	cfg.MongoURI = "mongodb://localhost:27017"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("mongo with uri: %v", err)
	}

	cfg.StorageDriver = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("unknown driver should fail")
	}
}
