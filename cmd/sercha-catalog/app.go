package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-catalog/internal/adapters/driven/memory"
	"github.com/custodia-labs/sercha-catalog/internal/adapters/driven/postgres"
	postgresqueue "github.com/custodia-labs/sercha-catalog/internal/adapters/driven/queue/postgres"
	redisqueue "github.com/custodia-labs/sercha-catalog/internal/adapters/driven/queue/redis"
	redisadapter "github.com/custodia-labs/sercha-catalog/internal/adapters/driven/redis"
	"github.com/custodia-labs/sercha-catalog/internal/adapters/driven/vespa"
	"github.com/custodia-labs/sercha-catalog/internal/adapters/driving/http"
	"github.com/custodia-labs/sercha-catalog/internal/builder"
	"github.com/custodia-labs/sercha-catalog/internal/config"
	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-catalog/internal/core/services"
	"github.com/custodia-labs/sercha-catalog/internal/mapping"
	"github.com/custodia-labs/sercha-catalog/internal/worker"
)

// app holds the wired adapters and services shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db          *postgres.DB
	redisClient *redis.Client
	engine      driven.SearchEngine
	taskQueue   driven.TaskQueue
	lock        driven.DistributedLock

	reindexer *services.Reindexer
	services  http.Services
	scheduler *services.Scheduler
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := cfg.Logger()
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}

	// ===== PostgreSQL =====
	db, err := postgres.Connect(ctx, postgres.DefaultConfig(cfg.DatabaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.db = db
	if err := db.InitSchema(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	logger.Info("postgres connected")

	// ===== Redis (optional) =====
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		a.redisClient = redis.NewClient(opts)
		if err := a.redisClient.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("redis connected")
	}

	// ===== Index backend =====
	switch cfg.IndexBackend {
	case config.BackendMemory:
		a.engine = memory.NewSearchEngine(logger)
		logger.Warn("using in-memory index backend; documents are lost on restart")
	default:
		vcfg := vespa.DefaultConfig(cfg.VespaURL)
		vcfg.Logger = logger
		engine, err := vespa.NewSearchEngine(vcfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := engine.HealthCheck(ctx); err != nil {
			logger.Warn("vespa health check failed, search may not work", "error", err)
		}
		a.engine = engine
	}

	// ===== Queue, lock and quality store =====
	entities := postgres.NewEntityStore(db)
	relationships := postgres.NewRelationshipStore(db)
	var quality driven.QualityStore = postgres.NewQualityStore(db)
	schedules := postgres.NewSchedulerStore(db)

	if a.redisClient != nil {
		queue, err := redisqueue.NewQueue(ctx, a.redisClient, redisqueue.Config{
			Consumer: fmt.Sprintf("worker-%d", os.Getpid()),
			Logger:   logger,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create task queue: %w", err)
		}
		a.taskQueue = queue
		a.lock = redisadapter.NewLock(a.redisClient)
		quality = redisadapter.NewQualityCache(a.redisClient, quality, redisadapter.QualityCacheConfig{
			TTL:    cfg.QualityCacheTTL,
			Logger: logger,
		})
		logger.Info("using redis task queue, lock and quality cache")
	} else {
		a.taskQueue = postgresqueue.NewQueue(db.DB, domain.DefaultQueue)
		a.lock = postgres.NewAdvisoryLock(db)
		logger.Info("using postgres task queue and advisory lock")
	}

	// ===== Core =====
	registry, err := mapping.Default(cfg.ClusterAlias)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load index mappings: %w", err)
	}

	b := builder.New(builder.Config{Relationships: relationships, Logger: logger})
	if err := registry.Validate(b.Types()...); err != nil {
		a.Close()
		return nil, fmt.Errorf("index mappings: %w", err)
	}

	a.reindexer = services.NewReindexer(services.ReindexerConfig{
		Registry:    registry,
		Builder:     b,
		Engine:      a.engine,
		Entities:    entities,
		Lock:        a.lock,
		PageSize:    cfg.ReindexPageSize,
		Rate:        cfg.ReindexRate,
		Concurrency: cfg.ReindexConcurrency,
		Logger:      logger,
	})

	a.services = http.Services{
		Index: services.NewIndexService(services.IndexServiceConfig{
			Registry:  registry,
			Builder:   b,
			Engine:    a.engine,
			TaskQueue: a.taskQueue,
			Logger:    logger,
		}),
		Search: services.NewSearchService(registry, a.engine, logger),
		Lineage: services.NewLineageService(services.LineageServiceConfig{
			Registry: registry,
			Engine:   a.engine,
			Quality:  quality,
			MaxDepth: cfg.LineageMaxDepth,
			Logger:   logger,
		}),
		Admin: services.NewIndexAdminService(registry, a.engine, a.taskQueue, logger),
	}

	if cfg.SchedulerEnabled {
		a.scheduler = services.NewScheduler(services.SchedulerConfig{
			Store:        schedules,
			TaskQueue:    a.taskQueue,
			Lock:         a.lock,
			Logger:       logger,
			LockRequired: cfg.SchedulerLockRequired,
		})
	}

	return a, nil
}

// readyChecks returns the dependencies probed by /ready.
func (a *app) readyChecks() map[string]http.Pinger {
	checks := map[string]http.Pinger{
		"database": a.db,
		"search":   http.PingFunc(a.engine.HealthCheck),
		"queue":    a.taskQueue,
	}
	if a.redisClient != nil {
		checks["redis"] = http.PingFunc(func(ctx context.Context) error {
			return a.redisClient.Ping(ctx).Err()
		})
	}
	return checks
}

// Close releases connections in reverse order of creation.
func (a *app) Close() {
	if a.taskQueue != nil {
		if err := a.taskQueue.Close(); err != nil {
			a.logger.Warn("failed to close task queue", "error", err)
		}
	}
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

// run starts the API, the worker, or both, and blocks until ctx is done.
func run(ctx context.Context, cfg *config.Config, mode string) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	a.logger.Info("sercha-catalog starting", "version", version, "mode", mode)

	switch mode {
	case config.ModeAPI:
		return a.runAPI(ctx)
	case config.ModeWorker:
		return a.runWorker(ctx)
	case config.ModeAll:
		// A failed listener stops the worker too.
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		errCh := make(chan error, 1)
		go func() { errCh <- a.runWorker(ctx) }()
		apiErr := a.runAPI(ctx)
		cancel()
		return errors.Join(apiErr, <-errCh)
	default:
		return fmt.Errorf("unknown mode: %s (use: api, worker, or all)", mode)
	}
}

func (a *app) runAPI(ctx context.Context) error {
	server := http.NewServer(http.Config{
		Host:        "0.0.0.0",
		Port:        a.cfg.Port,
		Version:     version,
		CORSOrigins: a.cfg.CORSOrigins,
		Logger:      a.logger,
	}, a.services, a.readyChecks())

	return server.Start(ctx)
}

// runWorker processes reindex tasks and runs the scheduler until ctx is done.
func (a *app) runWorker(ctx context.Context) error {
	var scheduler driving.Scheduler
	if a.scheduler != nil {
		if err := a.scheduler.EnsureScheduledTasks(ctx, domain.DefaultSchedulerConfig(a.cfg.ReindexCron)); err != nil {
			return fmt.Errorf("register scheduled tasks: %w", err)
		}
		scheduler = a.scheduler
		a.logger.Info("scheduler enabled", "lock_required", a.cfg.SchedulerLockRequired)
	} else {
		a.logger.Info("scheduler disabled via SCHEDULER_ENABLED=false")
	}

	w := worker.NewWorker(worker.WorkerConfig{
		TaskQueue:      a.taskQueue,
		Sweeper:        a.reindexer,
		Scheduler:      scheduler,
		Logger:         a.logger,
		Concurrency:    a.cfg.WorkerConcurrency,
		DequeueTimeout: a.cfg.WorkerDequeueTimeout,
		TaskRetention:  a.cfg.TaskRetention,
	})
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	<-ctx.Done()
	a.logger.Info("stopping worker")
	w.Stop()
	return nil
}
