package netloop

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, `
log_level: warning
listen_address: "127.0.0.1:9090"
worker_count: 4
idle_timeout_seconds: 10
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ListenAddress != "127.0.0.1:9090" || cfg.WorkerCount != 4 || cfg.LogLevel != "warning" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadConfigTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, `
log_level = "trace"
listen_address = "0.0.0.0:9091"
worker_count = 2
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ListenAddress != "0.0.0.0:9091" || cfg.WorkerCount != 2 || cfg.LogLevel != "trace" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadConfigMissingListenAddressFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, `worker_count: 1`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error for missing listen_address")
	}
}

func TestLoadConfigUnrecognisedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.ini")
	writeFile(t, path, `listen_address=127.0.0.1:9090`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unrecognised extension")
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", path, err)
	}
}
