package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/ledgersur/ledgersur/internal/accounting/accounts"
	"github.com/ledgersur/ledgersur/internal/accounting/journals"
	"github.com/ledgersur/ledgersur/internal/accounting/periods"
	"github.com/ledgersur/ledgersur/internal/app"
	jobmetrics "github.com/ledgersur/ledgersur/internal/jobs"
	"github.com/ledgersur/ledgersur/internal/observability"
	"github.com/ledgersur/ledgersur/internal/partners"
	"github.com/ledgersur/ledgersur/internal/platform/cache"
	"github.com/ledgersur/ledgersur/internal/platform/db"
	"github.com/ledgersur/ledgersur/internal/shared"
	"github.com/ledgersur/ledgersur/jobs"
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
		logger.Error("connect postgres", slog.Any("error", err))
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

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)

	accountsService := accounts.NewService(accounts.NewRepository(pool), redisClient)
	periodsService := periods.NewService(periods.NewRepository(pool))
	journalsService := journals.NewService(journals.NewRepository(pool), accountsService, periodsService, auditLogger)
	journalsService.WithPostedCounter(metrics.JournalsPosted)

	strategy, err := partners.StrategyFor(cfg.SettlementStrategy,
		partners.NewMarketplaceSplit(cfg.GatewayFeePct, cfg.GatewayPartnerShare, cfg.VATPct))
	if err != nil {
		logger.Error("settlement strategy", slog.Any("error", err))
		os.Exit(1)
	}
	partnersService := partners.NewService(partners.NewRepository(pool), journalsService, strategy, logger, metrics)

	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	settlementJob := jobs.NewSettlementRunJob(partnersService, pool, logger, jobMetrics)

	settlementTask, err := jobs.NewSettlementRunTask(jobs.SettlementRunPayload{})
	if err != nil {
		logger.Error("build settlement task", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSettlementRun, Handler: settlementJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SettlementCron, Task: settlementTask, Options: []asynq.Option{asynq.Queue(jobs.QueueDefault)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("cron", cfg.SettlementCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
