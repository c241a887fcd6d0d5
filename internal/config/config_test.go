package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oxventa.json")
	if err := os.WriteFile(path, []byte(`{"server":{}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("server address = %q", cfg.Server.Address)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("storage driver = %q", cfg.Storage.Driver)
	}
	if cfg.Queue.Driver != "memory" || cfg.Queue.Worker != 4 {
		t.Fatalf("queue = %+v", cfg.Queue)
	}
	if cfg.Chains.Path != filepath.Join(dir, "chains.yaml") {
		t.Fatalf("chains path = %q", cfg.Chains.Path)
	}
	if cfg.Executor.ReceiptTimeoutSeconds != 120 {
		t.Fatalf("receipt timeout = %d", cfg.Executor.ReceiptTimeoutSeconds)
	}
}

func TestLoadRelativeChainsPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oxventa.json")
	if err := os.WriteFile(path, []byte(`{"chains":{"path":"net/chains.yaml"}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chains.Path != filepath.Join(dir, "net", "chains.yaml") {
		t.Fatalf("chains path = %q", cfg.Chains.Path)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("missing config file must fail")
	}
}

func TestLoadSecretsFromEnv(t *testing.T) {
	t.Setenv("OXVENTA_KEY_SECRET", "super-secret")
	t.Setenv("OXVENTA_MYSQL_DSN", "user:pass@tcp(127.0.0.1:3306)/oxventa")

	secrets, err := LoadSecrets()
	if err != nil {
		t.Fatalf("LoadSecrets: %v", err)
	}
	if secrets.KeySecret != "super-secret" {
		t.Fatalf("key secret = %q", secrets.KeySecret)
	}
	if secrets.MySQLDSN == "" {
		t.Fatal("mysql dsn not picked up")
	}
}
