package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/proposalhub/proposalhub-backend/api/routes"
	"github.com/proposalhub/proposalhub-backend/internal/batch"
	"github.com/proposalhub/proposalhub-backend/internal/notifications"
	"github.com/proposalhub/proposalhub-backend/internal/proposals"
	"github.com/proposalhub/proposalhub-backend/pkg/config"
	"github.com/proposalhub/proposalhub-backend/pkg/db"
	"github.com/proposalhub/proposalhub-backend/pkg/logger"
	"github.com/proposalhub/proposalhub-backend/pkg/metrics"
	"github.com/proposalhub/proposalhub-backend/pkg/migrate"
	"github.com/proposalhub/proposalhub-backend/pkg/pubsub"
	"github.com/proposalhub/proposalhub-backend/pkg/redis"
)

const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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
	notificationsService, err := notifications.NewService(notificationsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	inbox, err := notifications.NewInboxChannel(notificationsRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create inbox channel", err)
		os.Exit(1)
	}

	channels := []batch.DeliveryChannel{inbox}
	if cfg.PubSub.Enabled() {
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub client", err)
			}
		}()

		push, err := notifications.NewPushChannel(notifications.NewGCPDigestPublisher(pubsubClient.DigestPublisher()), logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create push channel", err)
			os.Exit(1)
		}
		channels = append(channels, push)
	}

	fanout, err := notifications.NewFanout(channels...)
	if err != nil {
		logg.Error(context.Background(), "failed to create delivery fanout", err)
		os.Exit(1)
	}

	batchConfig, err := batch.ConfigFromEnv(cfg.Batch)
	if err != nil {
		logg.Error(context.Background(), "invalid batch configuration", err)
		os.Exit(1)
	}

	batcher, err := batch.NewBatcher(batch.Params{
		Config:  batchConfig,
		Channel: fanout,
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	batcherDone := make(chan struct{})
	go func() {
		defer close(batcherDone)
		if err := batcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "notification batcher stopped unexpectedly", err)
		}
	}()

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, batcher, proposalsService, notificationsService),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "error shutting down http server", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}

	<-batcherDone

	// Flush whatever the engine still holds so pending digests are not lost.
	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := batcher.ForceDeliverAll(flushCtx); err != nil {
		logg.Error(flushCtx, "failed to flush pending notifications on shutdown", err)
	}

	logg.Info(context.Background(), "api server shutting down gracefully")
}
