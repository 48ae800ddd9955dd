package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grader/internal/common/cache"
	"grader/internal/common/db"
	commonmw "grader/internal/common/http/middleware"
	"grader/internal/common/mq"
	"grader/internal/common/storage"
	"grader/internal/grader/archive"
	"grader/internal/grader/catalog"
	"grader/internal/grader/compiler"
	"grader/internal/grader/controller"
	"grader/internal/grader/executor"
	"grader/internal/grader/orchestrator"
	"grader/internal/grader/process"
	"grader/internal/grader/report"
	"grader/internal/grader/repository"
	"grader/internal/grader/score"
	"grader/internal/grader/workspace"
	"grader/pkg/utils/contextkey"
	"grader/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultConfigPath = "configs/grader.yaml"
	defaultEnvFile    = ".env"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	envFile := flag.String("env", defaultEnvFile, "Optional .env file with overrides")
	serve := flag.Bool("serve", false, "Serve results over HTTP after grading")
	flag.Parse()

	if err := loadEnvFile(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return 1
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return 1
	}
	defer func() {
		_ = logger.Sync()
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	runID := uuid.NewString()
	ctx := context.WithValue(sigCtx, contextkey.RunID, runID)

	b := openBackends(ctx, appCfg)
	defer b.close()

	root := appCfg.Paths.SubmissionsRoot
	if appCfg.Workspace.CleanBeforeRun {
		if err := workspace.Clean(ctx, root); err != nil {
			logger.Error(ctx, "clean workspace failed", zap.Error(err))
			return 1
		}
	}

	extractor := archive.NewExtractor(appCfg.Archive)
	if b.objects != nil && appCfg.Archive.Bucket != "" && appCfg.Archive.Dir != "" {
		n, err := archive.NewFetcher(b.objects, appCfg.Archive, extractor).Fetch(ctx, appCfg.Archive.Dir)
		if err != nil {
			logger.Warn(ctx, "fetch archives failed", zap.Error(err))
		}
		logger.Info(ctx, "archives fetched", zap.Int("count", n))
	}
	if appCfg.Archive.Dir != "" {
		if _, err := extractor.ExtractAll(ctx, appCfg.Archive.Dir, root); err != nil {
			logger.Warn(ctx, "extract archives failed", zap.Error(err))
		}
	}

	cat, err := catalog.Load(ctx, appCfg.Paths.TestsDir)
	if err != nil {
		logger.Error(ctx, "load test catalog failed", zap.String("dir", appCfg.Paths.TestsDir), zap.Error(err))
		return 1
	}

	runner := process.NewExecRunner(appCfg.Process)
	comp, err := compiler.New(appCfg.Compiler, runner)
	if err != nil {
		logger.Error(ctx, "init compiler failed", zap.Error(err))
		return 1
	}
	orch := orchestrator.New(appCfg.Orchestrator, comp, executor.New(appCfg.Execution, runner))

	started := time.Now()
	results := report.Sort(orch.GradeAll(ctx, root, cat))
	finished := time.Now()

	if err := report.WriteFile(appCfg.Paths.ReportPath, results); err != nil {
		logger.Error(ctx, "write report failed", zap.String("path", appCfg.Paths.ReportPath), zap.Error(err))
		return 1
	}
	logger.Info(ctx, "report written",
		zap.String("path", appCfg.Paths.ReportPath),
		zap.Int("results", len(results)),
		zap.Float64("total_points", score.Total(results)),
		zap.Duration("elapsed", finished.Sub(started)),
	)

	runRecord := repository.Run{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: finished,
		Results:    results,
	}
	repository.Dispatch(ctx, runRecord, b.sinks...)

	if *serve {
		if err := serveResults(sigCtx, appCfg.Server, b.reader); err != nil {
			logger.Error(ctx, "http server stopped", zap.Error(err))
			return 1
		}
	}
	return 0
}

// backends holds the optional external systems. Each is enabled only when configured.
type backends struct {
	sinks   []repository.Sink
	reader  repository.Reader
	objects storage.ObjectStorage
	closers []func() error
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg *AppConfig) *backends {
	b := &backends{}

	if cfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCacheWithConfig(&cfg.Redis)
		if err != nil {
			logger.Warn(ctx, "init redis failed, results will not be cached", zap.Error(err))
		} else {
			b.closers = append(b.closers, redisCache.Close)
			repo := repository.NewResultRepository(redisCache, cfg.Results.TTL)
			b.sinks = append(b.sinks, repo)
			b.reader = repo
		}
	}
	if b.reader == nil {
		mem := repository.NewMemoryResultStore()
		b.sinks = append(b.sinks, mem)
		b.reader = mem
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := mq.NewKafkaProducer(cfg.Kafka)
		if err != nil {
			logger.Warn(ctx, "init kafka failed, results will not be published", zap.Error(err))
		} else {
			b.closers = append(b.closers, producer.Close)
			b.sinks = append(b.sinks, repository.NewResultPublisher(producer, cfg.Results.Topic))
		}
	}

	if cfg.Database.DSN != "" {
		mysqlDB, err := db.NewMySQLWithConfig(&cfg.Database)
		if err != nil {
			logger.Warn(ctx, "init database failed, results will not be stored", zap.Error(err))
		} else {
			b.closers = append(b.closers, mysqlDB.Close)
			store := repository.NewResultStore(mysqlDB)
			if cfg.Results.EnsureSchema {
				if err := store.EnsureSchema(ctx); err != nil {
					logger.Warn(ctx, "ensure results schema failed", zap.Error(err))
				}
			}
			b.sinks = append(b.sinks, store)
		}
	}

	if cfg.MinIO.Endpoint != "" {
		objStorage, err := storage.NewMinIOStorage(cfg.MinIO)
		if err != nil {
			logger.Warn(ctx, "init minio failed", zap.Error(err))
		} else {
			b.objects = objStorage
			if bucket := cfg.Results.ReportBucket; bucket != "" {
				if err := objStorage.EnsureBucket(ctx, bucket); err != nil {
					logger.Warn(ctx, "ensure report bucket failed", zap.String("bucket", bucket), zap.Error(err))
				} else {
					b.sinks = append(b.sinks, repository.NewReportUploader(objStorage, bucket))
				}
			}
		}
	}
	return b
}

func serveResults(ctx context.Context, cfg ServerConfig, reader repository.Reader) error {
	httpServer := buildHTTPServer(cfg, reader)
	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("init http listener failed: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "grader http server started", zap.String("addr", cfg.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}

func buildHTTPServer(cfg ServerConfig, reader repository.Reader) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.AccessLogMiddleware())

	controller.NewResultController(reader).Register(router.Group("/api/v1/grader"))

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
