package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Storage.Driver != "memory" {
		t.Fatalf("unexpected defaults: %#v", cfg)
	}
	if cfg.Delegation.MinDelegatorScore != 80 {
		t.Fatalf("unexpected delegation default: %v", cfg.Delegation.MinDelegatorScore)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  addr: ":9090"
  read_timeout: 5s
storage:
  driver: postgres
  dsn: postgres://localhost/trust
stream:
  interval: 20s
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.ReadTimeout.Std() != 5*time.Second {
		t.Fatalf("server config not applied: %#v", cfg.Server)
	}
	if cfg.Storage.Driver != "postgres" || cfg.Storage.DSN != "postgres://localhost/trust" {
		t.Fatalf("storage config not applied: %#v", cfg.Storage)
	}
	if cfg.Stream.Interval.Std() != 20*time.Second {
		t.Fatalf("stream config not applied: %#v", cfg.Stream)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("logging config not applied: %#v", cfg.Logging)
	}
	// Untouched sections keep their defaults.
	if cfg.RateLimit.RequestsPerSecond != 50 {
		t.Fatalf("rate limit default lost: %#v", cfg.RateLimit)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TRUST_SERVER_ADDR", ":7000")
	t.Setenv("TRUST_STORAGE_DRIVER", "postgres")
	t.Setenv("TRUST_DATABASE_URL", "postgres://db/trust")
	t.Setenv("TRUST_REDIS_ADDR", "cache:6379")
	t.Setenv("TRUST_MIN_DELEGATOR_SCORE", "70")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":7000" {
		t.Fatalf("addr override not applied: %s", cfg.Server.Addr)
	}
	if cfg.Storage.Driver != "postgres" || cfg.Storage.DSN != "postgres://db/trust" {
		t.Fatalf("storage override not applied: %#v", cfg.Storage)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "cache:6379" {
		t.Fatalf("redis override not applied: %#v", cfg.Redis)
	}
	if cfg.Delegation.MinDelegatorScore != 70 {
		t.Fatalf("delegation override not applied: %v", cfg.Delegation.MinDelegatorScore)
	}
}

func TestLoad_Validation(t *testing.T) {
	t.Setenv("TRUST_STORAGE_DRIVER", "cassandra")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for unknown driver")
	}

	t.Setenv("TRUST_STORAGE_DRIVER", "postgres")
	t.Setenv("TRUST_DATABASE_URL", "")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for postgres without dsn")
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
