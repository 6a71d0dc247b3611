package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/phucldh3004/crm-auth/internal/app"
	jobmetrics "github.com/phucldh3004/crm-auth/internal/jobs"
	"github.com/phucldh3004/crm-auth/internal/platform/db"
	"github.com/phucldh3004/crm-auth/jobs"
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
	metrics := jobmetrics.NewMetrics(nil)

	workerCfg := jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:      logger,
		Metrics:     metrics,
		Mailer:      jobs.LogMailer{Logger: logger},
		Concurrency: cfg.WorkerConcurrency,
	}

	if cfg.UserStore == app.StorePostgres {
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions())
		if err != nil {
			logger.Error("connect database", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()

		purge := jobs.NewResetPurgeJob(pool, logger, metrics)
		workerCfg.Handlers = append(workerCfg.Handlers, jobs.TaskHandler{Type: jobs.TaskResetTokenPurge, Handler: purge.Handle})
		workerCfg.Cron = append(workerCfg.Cron, jobs.CronRegistration{
			Spec:    "*/30 * * * *",
			Task:    jobs.NewResetTokenPurgeTask(),
			Options: []asynq.Option{asynq.MaxRetry(3)},
		})
	}

	worker, err := jobs.NewWorker(workerCfg)
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("queue", jobs.QueueDefault))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
