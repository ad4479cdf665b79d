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

	"github.com/ledgersur/ledgersur/internal/accounting/accounts"
	"github.com/ledgersur/ledgersur/internal/accounting/journals"
	"github.com/ledgersur/ledgersur/internal/accounting/periods"
	"github.com/ledgersur/ledgersur/internal/accounting/reports"
	"github.com/ledgersur/ledgersur/internal/ap"
	"github.com/ledgersur/ledgersur/internal/app"
	"github.com/ledgersur/ledgersur/internal/ar"
	"github.com/ledgersur/ledgersur/internal/observability"
	"github.com/ledgersur/ledgersur/internal/partners"
	"github.com/ledgersur/ledgersur/internal/platform/cache"
	"github.com/ledgersur/ledgersur/internal/platform/db"
	"github.com/ledgersur/ledgersur/internal/shared"
	"github.com/ledgersur/ledgersur/internal/webhooks"
	"github.com/ledgersur/ledgersur/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	accountsService := accounts.NewService(accounts.NewRepository(dbpool), redisClient)
	accountsHandler := accounts.NewHandler(logger, accountsService)

	periodsService := periods.NewService(periods.NewRepository(dbpool))
	periodsHandler := periods.NewHandler(logger, periodsService)

	journalsService := journals.NewService(journals.NewRepository(dbpool), accountsService, periodsService, auditLogger)
	journalsService.WithPostedCounter(metrics.JournalsPosted)
	journalsHandler := journals.NewHandler(logger, journalsService)

	reportsHandler := reports.NewHandler(logger, reports.NewService(reports.NewRepository(dbpool)))

	dgiClient := ar.NewDGIClient(ar.DGIConfig{
		Endpoint: cfg.DGIEndpoint,
		APIKey:   cfg.DGIAPIKey,
		Timeout:  cfg.DGITimeout,
	}, logger)
	arService := ar.NewService(ar.NewRepository(dbpool), journalsService, dgiClient)
	arHandler := ar.NewHandler(logger, arService)

	apService := ap.NewService(ap.NewRepository(dbpool), journalsService)
	apHandler := ap.NewHandler(logger, apService)

	strategy, err := partners.StrategyFor(cfg.SettlementStrategy,
		partners.NewMarketplaceSplit(cfg.GatewayFeePct, cfg.GatewayPartnerShare, cfg.VATPct))
	if err != nil {
		logger.Error("settlement strategy", slog.Any("error", err))
		os.Exit(1)
	}
	partnersService := partners.NewService(partners.NewRepository(dbpool), journalsService, strategy, logger, metrics)
	partnersHandler := partners.NewHandler(logger, partnersService)

	webhooksService := webhooks.NewService(webhooks.NewRepository(dbpool), redisClient, logger, metrics)
	webhooksHandler := webhooks.NewHandler(logger, webhooksService, cfg.WebhookSecret)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AccountsHandler: accountsHandler,
		JournalsHandler: journalsHandler,
		PeriodsHandler:  periodsHandler,
		ReportsHandler:  reportsHandler,
		ARHandler:       arHandler,
		APHandler:       apHandler,
		PartnersHandler: partnersHandler,
		WebhooksHandler: webhooksHandler,
		JobsHandler:     jobsHandler,
		Metrics:         metrics,
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
