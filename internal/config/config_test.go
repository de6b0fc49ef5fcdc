package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.HTTPAddr() != "0.0.0.0:4000" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr())
	}
	if cfg.GRPCAddr() != "0.0.0.0:50051" {
		t.Fatalf("GRPCAddr = %q", cfg.GRPCAddr())
	}
	if cfg.HTTPRequestTimeout != 10*time.Second || cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("unexpected timeouts: %+v", cfg)
	}
	if cfg.RateLimit != 120 || cfg.RateLimitWindow != time.Minute || !cfg.RateLimitFailOpen {
		t.Fatalf("unexpected rate limit settings: %+v", cfg)
	}
	if cfg.OTelEnabled {
		t.Fatalf("tracing must be off by default")
	}
	if cfg.GRPCHealthInterval != 10*time.Second {
		t.Fatalf("GRPCHealthInterval = %v", cfg.GRPCHealthInterval)
	}
	if cfg.DBSlowQuery != 500*time.Millisecond || cfg.DBMigrateOnStart {
		t.Fatalf("unexpected database settings: %+v", cfg)
	}
}

func TestLoadEnvOverridesAndAliases(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DESKBOOK_HTTP_ADDR", "127.0.0.1:8080")
	t.Setenv("GRPC_PORT", "6000")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/app")
	t.Setenv("DESKBOOK_RATELIMIT_WINDOW", "30s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.HTTPAddr() != "127.0.0.1:8080" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr())
	}
	if cfg.GRPCPort != 6000 {
		t.Fatalf("GRPCPort = %d", cfg.GRPCPort)
	}
	if cfg.DatabaseURL != "postgres://u:p@db:5432/app" {
		t.Fatalf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.RateLimitWindow != 30*time.Second {
		t.Fatalf("RateLimitWindow = %v", cfg.RateLimitWindow)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DESKBOOK_SHUTDOWN_TIMEOUT", "soon")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}

func TestLoadInvalidSampleRatio(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OTEL_SAMPLING_RATIO", "2")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for out of range sample ratio")
	}
}
