package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("nats url = %q", cfg.NATS.URL)
	}
	if cfg.Persistence.BatchSize != 50 {
		t.Errorf("batch size = %d, want 50", cfg.Persistence.BatchSize)
	}
	if cfg.FlushTimeout() != 10*time.Millisecond {
		t.Errorf("flush timeout = %v, want 10ms", cfg.FlushTimeout())
	}
	if cfg.Watch.YieldCron == "" {
		t.Error("yield cron default missing")
	}
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
nats:
  url: nats://file-host:4222
vault:
  owner: 00000000-0000-0000-0000-000000000001
  yield_buffer: 7
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("VAULT_NATS_URL", "nats://env-host:4222")
	t.Setenv("VAULT_YIELD_BUFFER", "9")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NATS.URL != "nats://env-host:4222" {
		t.Errorf("env override lost: %q", cfg.NATS.URL)
	}
	if cfg.Vault.YieldBuffer != 9 {
		t.Errorf("yield buffer = %d, want 9 (env wins over file)", cfg.Vault.YieldBuffer)
	}
	if cfg.Vault.Owner != "00000000-0000-0000-0000-000000000001" {
		t.Errorf("owner = %q", cfg.Vault.Owner)
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing owner")
	}

	cfg.Vault.Owner = "00000000-0000-0000-0000-000000000001"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.Vault.LiquidationAgent = "not-a-uuid"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for malformed agent address")
	}
	cfg.Vault.LiquidationAgent = ""

	cfg.Vault.FeePercentage = 100_000_000
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for fee percentage without recipient")
	}
	cfg.Vault.FeeRecipient = "00000000-0000-0000-0000-000000000002"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
