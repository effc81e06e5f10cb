package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-lifecycle/internal/audit"
	"github.com/ariefcatur/go-order-lifecycle/internal/auditor"
	"github.com/ariefcatur/go-order-lifecycle/internal/config"
	kafkax "github.com/ariefcatur/go-order-lifecycle/internal/kafka"
	"github.com/ariefcatur/go-order-lifecycle/internal/logging"
	"github.com/ariefcatur/go-order-lifecycle/internal/metrics"
	"github.com/ariefcatur/go-order-lifecycle/internal/postgres"
	"github.com/ariefcatur/go-order-lifecycle/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("service", cfg.ServiceName+"-auditor"))

	metrics.Register()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Open(ctx, postgres.Options{DSN: cfg.PostgresDSN, AppName: cfg.ServiceName + "-auditor", MaxConns: cfg.PostgresMaxConns}, logger)
	if err != nil {
		logger.Fatal("db open", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &auditor.Service{
		Store:       &audit.Repo{DB: db},
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-auditor",
		Logger:      logger,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.AuditorGroup, cfg.AuditTopic, cfg.AuditorWorkers, logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("auditor consumer started",
			zap.String("group", cfg.AuditorGroup),
			zap.String("topic", cfg.AuditTopic),
			zap.Int("workers", cfg.AuditorWorkers),
		)
		if err := cons.Start(ctx, svc.HandleAuditEvent); err != nil {
			logger.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down consumer")
	cancel()
	<-done
}
