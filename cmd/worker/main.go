package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/partnerdesk/partnerdesk/internal/amendments"
	"github.com/partnerdesk/partnerdesk/internal/app"
	"github.com/partnerdesk/partnerdesk/internal/authz"
	"github.com/partnerdesk/partnerdesk/internal/partners"
	"github.com/partnerdesk/partnerdesk/internal/platform/cache"
	"github.com/partnerdesk/partnerdesk/internal/platform/db"
	"github.com/partnerdesk/partnerdesk/internal/shared"
	"github.com/partnerdesk/partnerdesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	decisionCache := authz.NewDecisionCache(redisClient, cfg.AuthzCacheTTL)

	authzRepo := authz.NewRepository(pool)
	resolver := authz.NewResolver(authzRepo, decisionCache, logger)

	trail := shared.NewReviewTrail(pool, logger)
	registry := amendments.NewRegistry()
	partners.Register(registry, partners.NewSchema())

	amendmentsRepo := amendments.NewRepository(pool)
	amendmentsService := amendments.NewService(amendmentsRepo, registry, resolver, trail, logger)

	overrideSweep := jobs.NewOverrideSweepJob(authzRepo, decisionCache, logger)
	staleSweep := jobs.NewStaleAmendmentSweepJob(amendmentsService, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:     asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:        logger,
		OverrideSweep: overrideSweep,
		StaleSweep:    staleSweep,
		Cron: []jobs.CronRegistration{
			{Spec: cfg.OverrideSweepCron, Task: jobs.NewOverrideSweepTask()},
			{Spec: cfg.StaleSweepCron, Task: jobs.NewStaleAmendmentSweepTask()},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
