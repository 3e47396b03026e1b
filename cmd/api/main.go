package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/task-manager/internal/api/http"
	"github.com/spec-kit/task-manager/internal/api/http/handlers"
	"github.com/spec-kit/task-manager/internal/auth"
	"github.com/spec-kit/task-manager/internal/config"
	"github.com/spec-kit/task-manager/internal/events"
	"github.com/spec-kit/task-manager/internal/observability"
	"github.com/spec-kit/task-manager/internal/persistence"
	"github.com/spec-kit/task-manager/internal/repository"
	"github.com/spec-kit/task-manager/internal/service"
	"github.com/spec-kit/task-manager/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	migrate := pflag.Bool("migrate", false, "apply migrations and exit")
	pflag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	pool := pg.PoolHandle()
	if *migrate || (pool != nil && cfg.Postgres.RunMigrations) {
		if err := pg.Migrate(ctx, cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}
	if *migrate {
		return
	}

	var (
		userRepo repository.UserRepository
		taskRepo repository.TaskRepository
	)
	if pool != nil {
		userRepo = repository.NewUserRepository(pool)
		taskRepo = repository.NewTaskRepository(pool)
	} else {
		store := repository.NewMemoryStore()
		userRepo, taskRepo = store.Users(), store.Tasks()
	}

	rdb := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer rdb.Close()

	var stats service.StatsCache = service.NoopStatsCache{}
	if cache, ok := rdb.StatsCache(); ok {
		stats = cache
	}

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret: cfg.Auth.JWTSecret,
		Expiry: cfg.Auth.TokenExpiry(),
	})
	if err != nil {
		logger.Fatal("failed to init token service", zap.Error(err))
	}

	dispatcher := events.NewInMemoryDispatcher()
	authService := service.NewAuthService(cfg.Auth, userRepo, tokens, logger)
	taskService := service.NewTaskService(service.TaskDependencies{
		TaskRepo:   taskRepo,
		StatsCache: stats,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	worker.StartTaskEventWorker(service.NewTaskEventService(dispatcher, stats, logger))

	metrics := observability.NewMetrics()
	app := httptransport.NewServer(cfg.App.Name, logger, metrics, cfg.App.RequestTimeout(), httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, rdb, metrics),
		Auth:           handlers.NewAuthHandler(authService),
		Users:          handlers.NewUsersHandler(authService),
		Tasks:          handlers.NewTasksHandler(taskService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, authService, logger),
		LoginLimiter:   auth.NewLoginLimiter(cfg.Auth.LoginRatePerMinute, cfg.Auth.LoginRateBurst, 0),
	})

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()), zap.String("env", cfg.App.Env))
		if err := app.Listen(cfg.App.Addr()); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
