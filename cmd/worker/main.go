package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/graniteledger/granite/internal/accounting/journals"
	"github.com/graniteledger/granite/internal/accounting/ledger"
	"github.com/graniteledger/granite/internal/accounting/recurring"
	"github.com/graniteledger/granite/internal/accounting/trialbalance"
	"github.com/graniteledger/granite/internal/app"
	"github.com/graniteledger/granite/internal/close"
	"github.com/graniteledger/granite/internal/events"
	"github.com/graniteledger/granite/internal/observability"
	"github.com/graniteledger/granite/internal/platform/cache"
	"github.com/graniteledger/granite/internal/platform/db"
	"github.com/graniteledger/granite/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns, cfg.PGTimeout)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() { _ = asynqClient.Close() }()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()

	metrics := observability.NewMetrics()
	publisher := events.NewAsynqPublisher(asynqClient)

	balanceCache := ledger.NewBalanceCache(redisClient, cfg.BalanceCacheTTL)
	if err := balanceCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Error("subscribe balance cache", slog.Any("error", err))
		os.Exit(1)
	}
	ledgerSvc := ledger.NewService(ledger.NewRepository(pool), balanceCache, publisher, metrics)

	closeRepo := close.NewRepository(pool)
	tbRepo := trialbalance.NewRepository(pool)
	closeSvc := close.NewService(closeRepo, tbRepo, publisher, metrics)
	journalRepo := journals.NewRepository(pool)
	journalSvc := journals.NewService(journalRepo, publisher, closeSvc, metrics)
	journalSvc.WithBalanceInvalidator(ledgerSvc)
	recurringRepo := recurring.NewRepository(pool)
	recurringSvc := recurring.NewService(recurringRepo, journalSvc, publisher, logger)

	generator := jobs.NewRecurringGenerator(recurringSvc, logger)
	scanner := jobs.NewLedgerIntegrityScanner(pool, logger, metrics)
	dispatcher := jobs.NewEventDispatcher(logger)

	generateTask, err := jobs.NewRecurringGenerateTask(jobs.RecurringGeneratePayload{})
	if err != nil {
		logger.Error("build recurring task", slog.Any("error", err))
		os.Exit(1)
	}
	integrityTask, err := jobs.NewLedgerIntegrityTask(jobs.LedgerIntegrityPayload{})
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRecurringGenerate, Handler: generator.Handler()},
			{Type: jobs.TaskLedgerIntegrity, Handler: scanner.Handler()},
			{Type: events.TaskTypeDispatch, Handler: dispatcher.Handler()},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RecurringCron, Task: generateTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.IntegrityCron, Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
