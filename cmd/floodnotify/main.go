package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/redis/go-redis/v9"

	"github.com/DevenJnando/flood-notifications-producer/internal/adapter/cosmos"
	"github.com/DevenJnando/flood-notifications-producer/internal/adapter/floodapi"
	"github.com/DevenJnando/flood-notifications-producer/internal/adapter/httpadapter"
	"github.com/DevenJnando/flood-notifications-producer/internal/adapter/mailinglist"
	"github.com/DevenJnando/flood-notifications-producer/internal/cache"
	"github.com/DevenJnando/flood-notifications-producer/internal/config"
	"github.com/DevenJnando/flood-notifications-producer/internal/geometry"
	"github.com/DevenJnando/flood-notifications-producer/internal/matcher"
	"github.com/DevenJnando/flood-notifications-producer/internal/notify"
	"github.com/DevenJnando/flood-notifications-producer/internal/observability"
	"github.com/DevenJnando/flood-notifications-producer/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		logger.Error("azure credential setup failed", "error", err)
		os.Exit(1)
	}

	store, err := cosmos.NewStore(cfg, cred, logger, metrics)
	if err != nil {
		logger.Error("spatial store setup failed", "error", err)
		os.Exit(1)
	}

	// The cache degrades per operation when Redis is unreachable, so a failed
	// ping is a warning, not a startup failure.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Protocol: 3})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("flood state cache unreachable, floods will be fully re-resolved", "error", err)
	}
	cancelPing()
	stateCache := cache.New(rdb, cfg.RedisSeveritySuffix, cfg.RedisPostcodesSuffix, logger, metrics)

	subscribers, err := mailinglist.Open(cfg.MailingListDSN)
	if err != nil {
		logger.Error("mailing list store setup failed", "error", err)
		os.Exit(1)
	}
	defer subscribers.Close()

	dlq := notify.NewDeadLetter(cfg.DeadLetterPath)
	newProducer := func(context.Context) (pipeline.Producer, error) {
		return notify.Dial(cfg.AMQPURL, dlq, logger, metrics)
	}

	subdivider := geometry.Subdivider{
		Threshold:   cfg.SegmentThreshold,
		QueryBudget: cosmos.QueryCharacterLimit - len(cosmos.AreaQueryTemplate()),
	}

	p := pipeline.New(
		floodapi.NewClient(30*time.Second, logger),
		stateCache,
		subdivider,
		matcher.New(store, logger, cfg.MatchConcurrency),
		subscribers,
		newProducer,
		logger,
		metrics,
		cfg.MatchConcurrency,
	)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := rdb.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	logger.Info("shutdown complete")
}
