package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "serve.yaml")
	src := `addr: ":9090"
data_dir: /var/lib/weft
db_path: /var/lib/weft/weft.db
request_timeout: 30s
telemetry:
  service_name: weft
  service_version: 1.0.0
  logging:
    level: debug
    format: json
    output: stdout
  metrics:
    enabled: true
`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("addr %q", cfg.Addr)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("request timeout %v", cfg.RequestTimeout)
	}
	// Unset fields keep their defaults.
	if cfg.MaxDocumentBytes != 10<<20 {
		t.Fatalf("max document bytes %d", cfg.MaxDocumentBytes)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Fatalf("log level %q", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("data_dir: ''\ndb_path: ''\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error for empty required fields")
	}

	if _, err := LoadConfig(filepath.Join(dir, "absent.yaml")); err == nil {
		t.Fatal("expected error for a missing file")
	}
}
