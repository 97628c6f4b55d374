// Package main runs the background worker: outbound event webhook delivery
// and the expired lead session sweep.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-webinar/funnel/config"
	"github.com/aura-webinar/funnel/internal/notify"
	"github.com/aura-webinar/funnel/internal/sessions"
	"github.com/aura-webinar/funnel/internal/worker"
	"github.com/aura-webinar/funnel/pkg/database"
	"github.com/aura-webinar/funnel/pkg/queue"
	"github.com/aura-webinar/funnel/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jobQueue := queue.NewQueue(rdb.Client, logger)
	dispatcher := notify.NewDispatcher(cfg.Webhook.DeliveryTimeout, notify.DefaultBreakerConfig, logger)
	runner := worker.NewRunner(jobQueue, dispatcher, logger)

	sessionSvc := sessions.NewService(sessions.NewRepository(pool), sessions.NewRedisCache(rdb.Client),
		cfg.Session.TTL, cfg.Session.CacheTTL, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		runner.Run(workerCtx)
	}()
	go func() {
		defer wg.Done()
		worker.RunSweeper(workerCtx, sessionSvc, cfg.Worker.SessionSweepInterval, logger)
	}()
	logger.Info("worker started", zap.Duration("sweep_interval", cfg.Worker.SessionSweepInterval))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	wg.Wait()
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
