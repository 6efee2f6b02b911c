package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ovenly/ovenly/cmd/ovenly/cli"
	"github.com/ovenly/ovenly/internal/app"
	"github.com/ovenly/ovenly/internal/observability"
	"github.com/ovenly/ovenly/internal/platform/cache"
	"github.com/ovenly/ovenly/internal/platform/db"
	"github.com/ovenly/ovenly/internal/platform/migrate"
	"github.com/ovenly/ovenly/internal/rbac"
	"github.com/ovenly/ovenly/internal/shared"
	"github.com/ovenly/ovenly/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	if len(args) > 0 && args[0] != "serve" {
		os.Exit(cli.Run(ctx, args, commandEnv(cfg, logger)))
	}

	if err := serve(ctx, stop, cfg, logger); err != nil {
		logger.Error("serve", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	if cfg.RunMigrations {
		if err := migrate.Up(cfg.PGDSN, logger); err != nil {
			return err
		}
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	services := app.NewServices(cfg, app.Infra{
		Pool:      pool,
		Redis:     redisClient,
		Metrics:   metrics,
		Refresher: jobClient,
		Logger:    logger,
	})
	sessionManager := shared.NewSessionManager(redisClient, "ovenly_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		Services:       services,
		RBACMiddleware: rbac.Middleware{Service: services.RBAC, Logger: logger},
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func commandEnv(cfg *app.Config, logger *slog.Logger) cli.Env {
	return cli.Env{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Migrate: func(_ context.Context, direction string) error {
			if direction == "down" {
				return migrate.Down(cfg.PGDSN, logger)
			}
			return migrate.Up(cfg.PGDSN, logger)
		},
		Reconciler: func(ctx context.Context) (*cli.ReconcileCLI, func(), error) {
			pool, err := db.New(ctx, cfg.PGDSN, 2)
			if err != nil {
				return nil, nil, err
			}
			services := app.NewServices(cfg, app.Infra{Pool: pool, Logger: logger})
			return &cli.ReconcileCLI{Inventory: services.Inventory, Accounts: services.Accounts}, pool.Close, nil
		},
		Jobs: func() (*cli.JobsCLI, error) {
			return cli.NewJobsCLI(cfg.RedisAddr)
		},
	}
}
