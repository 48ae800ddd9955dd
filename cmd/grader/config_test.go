package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"grader/internal/grader/compiler"
	"grader/internal/grader/executor"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadAppConfigDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "grader.yaml", "logger:\n  level: debug\n")

	cfg, err := loadAppConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logger.Level != "debug" {
		t.Fatalf("expected level from file, got %q", cfg.Logger.Level)
	}
	if cfg.Compiler.Command != compiler.DefaultCommand || cfg.Compiler.Timeout != compiler.DefaultTimeout {
		t.Fatalf("unexpected compiler defaults %+v", cfg.Compiler)
	}
	if cfg.Execution.Timeout != executor.DefaultTimeout {
		t.Fatalf("unexpected execution timeout %v", cfg.Execution.Timeout)
	}
	if cfg.Paths.TestsDir != "tests" || cfg.Paths.ReportPath != "report.txt" {
		t.Fatalf("unexpected path defaults %+v", cfg.Paths)
	}
	if cfg.Orchestrator.SubmissionConcurrency < 1 {
		t.Fatalf("expected positive submission concurrency, got %d", cfg.Orchestrator.SubmissionConcurrency)
	}
	if cfg.Results.TTL != defaultResultTTL || cfg.Server.Addr != defaultHTTPAddr {
		t.Fatalf("unexpected sink/server defaults %+v %+v", cfg.Results, cfg.Server)
	}
}

func TestLoadAppConfigShippedFile(t *testing.T) {
	cfg, err := loadAppConfig(filepath.Join("..", "..", "configs", "grader.yaml"))
	if err != nil {
		t.Fatalf("load shipped config: %v", err)
	}
	if cfg.Compiler.ShellCallPattern != compiler.DefaultShellCallPattern {
		t.Fatalf("unexpected pattern %q", cfg.Compiler.ShellCallPattern)
	}
	if cfg.Process.WaitDelay != time.Second || cfg.Results.TTL != 168*time.Hour {
		t.Fatalf("unexpected durations %v %v", cfg.Process.WaitDelay, cfg.Results.TTL)
	}
	if cfg.Redis.Addr != "" || len(cfg.Kafka.Brokers) != 0 {
		t.Fatalf("expected external sinks disabled by default")
	}
}

func TestEnvFileOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "grader.yaml", "redis:\n  addr: localhost:6379\n")
	envPath := writeFile(t, dir, ".env", "GRADER_REDIS_ADDR=redis:6380\nGRADER_KAFKA_BROKERS=k1:9092, k2:9092\n")

	for _, key := range []string{"GRADER_REDIS_ADDR", "GRADER_KAFKA_BROKERS"} {
		if old, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, old) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
	}

	if err := loadEnvFile(envPath); err != nil {
		t.Fatalf("load env: %v", err)
	}
	cfg, err := loadAppConfig(cfgPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Redis.Addr != "redis:6380" {
		t.Fatalf("expected env override, got %q", cfg.Redis.Addr)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
}

func TestLoadEnvFileMissingIsIgnored(t *testing.T) {
	if err := loadEnvFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("expected missing env file to be ignored, got %v", err)
	}
	if _, err := loadAppConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
