package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/partnerdesk/partnerdesk/internal/amendments"
	"github.com/partnerdesk/partnerdesk/internal/app"
	"github.com/partnerdesk/partnerdesk/internal/authz"
	"github.com/partnerdesk/partnerdesk/internal/partners"
	"github.com/partnerdesk/partnerdesk/internal/platform/cache"
	"github.com/partnerdesk/partnerdesk/internal/platform/db"
	"github.com/partnerdesk/partnerdesk/internal/shared"
	"github.com/partnerdesk/partnerdesk/internal/users"
)

func main() {
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
		logger.Warn("redis unavailable, decisions will not be cached", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	var decisionCache *authz.DecisionCache
	if redisClient != nil {
		decisionCache = authz.NewDecisionCache(redisClient, cfg.AuthzCacheTTL)
	}

	authzRepo := authz.NewRepository(pool)
	resolver := authz.NewResolver(authzRepo, decisionCache, logger)
	authzService := authz.NewService(authzRepo, decisionCache, logger)
	authzHandler := authz.NewHandler(logger, authzService, resolver)
	authzMiddleware := authz.Middleware{Resolver: resolver, Logger: logger}

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo, logger)
	usersHandler := users.NewHandler(logger, usersService)

	trail := shared.NewReviewTrail(pool, logger)

	registry := amendments.NewRegistry()
	partners.Register(registry, partners.NewSchema())

	amendmentsRepo := amendments.NewRepository(pool)
	amendmentsService := amendments.NewService(amendmentsRepo, registry, resolver, trail, logger)
	amendmentsHandler := amendments.NewHandler(logger, amendmentsService, trail)

	partnersService := partners.NewService(amendmentsService, partners.NewSchema(), logger)
	partnersHandler := partners.NewHandler(logger, partnersService)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AuthzHandler:      authzHandler,
		AuthzMiddleware:   authzMiddleware,
		UsersHandler:      usersHandler,
		AmendmentsHandler: amendmentsHandler,
		PartnersHandler:   partnersHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
