package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"grader/internal/common/cache"
	"grader/internal/common/db"
	"grader/internal/common/mq"
	"grader/internal/common/storage"
	"grader/internal/grader/archive"
	"grader/internal/grader/compiler"
	"grader/internal/grader/executor"
	"grader/internal/grader/orchestrator"
	"grader/internal/grader/process"
	"grader/pkg/utils/logger"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8090"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultResultTTL       = 7 * 24 * time.Hour
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// PathsConfig names the directories of one grading run.
type PathsConfig struct {
	TestsDir        string `yaml:"testsDir"`
	SubmissionsRoot string `yaml:"submissionsRoot"`
	ReportPath      string `yaml:"reportPath"`
}

// WorkspaceConfig controls cleanup of the submissions root.
type WorkspaceConfig struct {
	CleanBeforeRun bool `yaml:"cleanBeforeRun"`
}

// ResultsConfig holds result sink settings.
type ResultsConfig struct {
	TTL          time.Duration `yaml:"ttl"`
	Topic        string        `yaml:"topic"`
	ReportBucket string        `yaml:"reportBucket"`
	EnsureSchema bool          `yaml:"ensureSchema"`
}

// AppConfig holds grader configuration.
type AppConfig struct {
	Logger       logger.Config       `yaml:"logger"`
	Paths        PathsConfig         `yaml:"paths"`
	Process      process.Config      `yaml:"process"`
	Compiler     compiler.Config     `yaml:"compiler"`
	Execution    executor.Config     `yaml:"execution"`
	Orchestrator orchestrator.Config `yaml:"orchestrator"`
	Archive      archive.Config      `yaml:"archive"`
	Workspace    WorkspaceConfig     `yaml:"workspace"`
	Results      ResultsConfig       `yaml:"results"`
	Redis        cache.RedisConfig   `yaml:"redis"`
	Kafka        mq.KafkaConfig      `yaml:"kafka"`
	Database     db.MySQLConfig      `yaml:"database"`
	MinIO        storage.MinIOConfig `yaml:"minio"`
	Server       ServerConfig        `yaml:"server"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

// loadEnvFile loads KEY=VALUE pairs into the process environment. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg)

	if cfg.Paths.TestsDir == "" {
		cfg.Paths.TestsDir = "tests"
	}
	if cfg.Paths.SubmissionsRoot == "" {
		cfg.Paths.SubmissionsRoot = "submissions"
	}
	if cfg.Paths.ReportPath == "" {
		cfg.Paths.ReportPath = "report.txt"
	}
	if cfg.Compiler.Command == "" {
		cfg.Compiler.Command = compiler.DefaultCommand
	}
	if cfg.Compiler.Timeout == 0 {
		cfg.Compiler.Timeout = compiler.DefaultTimeout
	}
	if cfg.Execution.Timeout == 0 {
		cfg.Execution.Timeout = executor.DefaultTimeout
	}
	if cfg.Orchestrator.SubmissionConcurrency == 0 {
		cfg.Orchestrator.SubmissionConcurrency = orchestrator.DefaultConcurrency()
	}
	if cfg.Archive.Marker == "" {
		cfg.Archive.Marker = cfg.Orchestrator.Marker
	}
	if cfg.Results.TTL == 0 {
		cfg.Results.TTL = defaultResultTTL
	}
	if cfg.Results.ReportBucket == "" {
		cfg.Results.ReportBucket = cfg.MinIO.Bucket
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	return &cfg, nil
}

// applyEnvOverrides lets secrets and endpoints come from the environment instead of the YAML file.
func applyEnvOverrides(cfg *AppConfig) {
	if v, ok := os.LookupEnv("GRADER_LOG_LEVEL"); ok {
		cfg.Logger.Level = v
	}
	if v, ok := os.LookupEnv("GRADER_TESTS_DIR"); ok {
		cfg.Paths.TestsDir = v
	}
	if v, ok := os.LookupEnv("GRADER_SUBMISSIONS_ROOT"); ok {
		cfg.Paths.SubmissionsRoot = v
	}
	if v, ok := os.LookupEnv("GRADER_REDIS_ADDR"); ok {
		cfg.Redis.Addr = v
	}
	if v, ok := os.LookupEnv("GRADER_REDIS_PASSWORD"); ok {
		cfg.Redis.Password = v
	}
	if v, ok := os.LookupEnv("GRADER_KAFKA_BROKERS"); ok {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v, ok := os.LookupEnv("GRADER_DATABASE_DSN"); ok {
		cfg.Database.DSN = v
	}
	if v, ok := os.LookupEnv("GRADER_MINIO_ENDPOINT"); ok {
		cfg.MinIO.Endpoint = v
	}
	if v, ok := os.LookupEnv("GRADER_MINIO_ACCESS_KEY"); ok {
		cfg.MinIO.AccessKey = v
	}
	if v, ok := os.LookupEnv("GRADER_MINIO_SECRET_KEY"); ok {
		cfg.MinIO.SecretKey = v
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
