package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/proposalhub/proposalhub-backend/internal/batch"
	"github.com/proposalhub/proposalhub-backend/internal/cron"
	"github.com/proposalhub/proposalhub-backend/internal/notifications"
	"github.com/proposalhub/proposalhub-backend/internal/proposals"
	"github.com/proposalhub/proposalhub-backend/pkg/config"
	"github.com/proposalhub/proposalhub-backend/pkg/db"
	"github.com/proposalhub/proposalhub-backend/pkg/logger"
	"github.com/proposalhub/proposalhub-backend/pkg/metrics"
	"github.com/proposalhub/proposalhub-backend/pkg/migrate"
	"github.com/proposalhub/proposalhub-backend/pkg/redis"
)

const lockKeyFormat = "cron-worker:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	notificationsRepo := notifications.NewRepository(dbClient.DB())

	inbox, err := notifications.NewInboxChannel(notificationsRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create inbox channel", err)
		os.Exit(1)
	}

	batchConfig, err := batch.ConfigFromEnv(cfg.Batch)
	if err != nil {
		logg.Error(context.Background(), "invalid batch configuration", err)
		os.Exit(1)
	}

	batcher, err := batch.NewBatcher(batch.Params{
		Config:  batchConfig,
		Channel: inbox,
		Logger:  logg,
		Metrics: metrics.NewBatchEngineMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notification batcher", err)
		os.Exit(1)
	}

	proposalsService, err := proposals.NewService(proposals.NewRepository(dbClient.DB()), batcher, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create proposals service", err)
		os.Exit(1)
	}

	cleanupJob, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		Repository: notificationsRepo,
		Retention:  cfg.Cron.NotificationRetention,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cleanup job", err)
		os.Exit(1)
	}

	reminderJob, err := cron.NewDeadlineReminderJob(cron.DeadlineReminderJobParams{
		Logger:    logg,
		Proposals: proposalsService,
		Window:    cfg.Cron.DeadlineWindow,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reminder job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockKey(cfg.App.Env)), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(cleanupJob, reminderJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	batcherDone := make(chan struct{})
	go func() {
		defer close(batcherDone)
		if err := batcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "notification batcher stopped unexpectedly", err)
		}
	}()

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	<-batcherDone
	if err := batcher.ForceDeliverAll(context.Background()); err != nil {
		logg.Error(context.Background(), "failed to flush pending notifications on shutdown", err)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
