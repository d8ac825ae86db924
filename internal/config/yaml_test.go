package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_AIGATE_PORT", "9001")

	path := filepath.Join(t.TempDir(), "aigate.yaml")
	content := `
server:
  port: ${TEST_AIGATE_PORT}
auth:
  api_key_header: X-Custom-Key
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9001 {
		t.Errorf("got port %d, want 9001 (env expansion)", cfg.Server.Port)
	}
	if cfg.Auth.APIKeyHeader != "X-Custom-Key" {
		t.Errorf("got header %q, want X-Custom-Key", cfg.Auth.APIKeyHeader)
	}
	// Unset fields keep their defaults.
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("got host %q, want default", cfg.Server.Host)
	}
	if cfg.RateLimit.RequestsPerMinute != 60 {
		t.Errorf("got rate limit %d, want default 60", cfg.RateLimit.RequestsPerMinute)
	}
	if cfg.Store.Path != "./data/api_keys.db" {
		t.Errorf("got store path %q, want default", cfg.Store.Path)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aigate.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != Default().Server.Port {
		t.Errorf("got port %d, want %d", cfg.Server.Port, Default().Server.Port)
	}
	if cfg.Auth.APIKeyHeader != "X-API-Key" {
		t.Errorf("got header %q, want X-API-Key", cfg.Auth.APIKeyHeader)
	}
}
