package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromMap(t *testing.T) {
	input := map[string]any{
		"cache": map[string]any{
			"dir": "/var/tmp/aot",
			"ttl": "2h",
		},
		"bootstrap": map[string]any{
			"org_lookup_timeout": "750ms",
		},
		"secrets": map[string]any{
			"backend": "AWS",
			"aws":     map[string]any{"region": "eu-west-1"},
		},
	}

	cfg, err := Load(input)
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}
	if cfg.Cache.Dir != "/var/tmp/aot" {
		t.Fatalf("expected cache dir, got %s", cfg.Cache.Dir)
	}
	if cfg.Cache.TTL != 2*time.Hour {
		t.Fatalf("expected ttl 2h, got %s", cfg.Cache.TTL)
	}
	if cfg.Bootstrap.OrgLookupTimeout != 750*time.Millisecond {
		t.Fatalf("expected org timeout 750ms, got %s", cfg.Bootstrap.OrgLookupTimeout)
	}
	if cfg.Secrets.Backend != BackendAWS || cfg.Secrets.AWS.Region != "eu-west-1" {
		t.Fatalf("unexpected secrets config %+v", cfg.Secrets)
	}
	if cfg.Bootstrap.HMACSecretName != "hmac-key" {
		t.Fatalf("expected default secret name, got %s", cfg.Bootstrap.HMACSecretName)
	}
}

func TestLoadFromStruct(t *testing.T) {
	input := Config{
		Runtime: RuntimeConfig{Number: "7", Time: "1700000000"},
		Secrets: SecretsConfig{Backend: BackendSQLite},
	}

	cfg, err := Load(input)
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}
	if cfg.Runtime.Number != "7" {
		t.Fatalf("expected runtime number 7, got %s", cfg.Runtime.Number)
	}
	if cfg.Cache.TTL != 24*time.Hour {
		t.Fatalf("expected default ttl, got %s", cfg.Cache.TTL)
	}
	if cfg.Bootstrap.OrgLookupTimeout != 5*time.Second {
		t.Fatalf("expected default org timeout, got %s", cfg.Bootstrap.OrgLookupTimeout)
	}
	if cfg.Secrets.SQLite.DSN == "" {
		t.Fatalf("expected default sqlite dsn")
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	_, err := Load(map[string]any{"secrets": map[string]any{"backend": "vault"}})
	if err == nil || !strings.Contains(err.Error(), "vault") {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authctl.yaml")
	doc := `
cache:
  ttl: 30m
runtime:
  number: "12"
  os: linux
secrets:
  backend: static
  static:
    hmac-key: h
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if cfg.Cache.TTL != 30*time.Minute {
		t.Fatalf("expected 30m ttl, got %s", cfg.Cache.TTL)
	}
	if cfg.Runtime.Number != "12" || cfg.Runtime.OS != "linux" {
		t.Fatalf("unexpected runtime %+v", cfg.Runtime)
	}
	if cfg.Secrets.Static["hmac-key"] != "h" {
		t.Fatalf("expected static secret")
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected debug level, got %s", cfg.Logging.Level)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
