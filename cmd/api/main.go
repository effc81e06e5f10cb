package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-lifecycle/internal/audit"
	"github.com/ariefcatur/go-order-lifecycle/internal/config"
	"github.com/ariefcatur/go-order-lifecycle/internal/httpx"
	kafkax "github.com/ariefcatur/go-order-lifecycle/internal/kafka"
	"github.com/ariefcatur/go-order-lifecycle/internal/logging"
	"github.com/ariefcatur/go-order-lifecycle/internal/metrics"
	"github.com/ariefcatur/go-order-lifecycle/internal/postgres"
	"github.com/ariefcatur/go-order-lifecycle/internal/redisx"
	"github.com/ariefcatur/go-order-lifecycle/internal/workflow"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	logger = logger.With(zap.String("service", cfg.ServiceName))

	metrics.Register()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		statuses workflow.StatusStore
		offers   workflow.OfferStore
		sink     audit.Sink
		auditLog httpx.AuditReader
		producer *kafkax.Producer
	)

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("using in-memory store; state is lost on exit")
		mem := workflow.NewMemoryStore()
		memSink := &audit.MemorySink{}
		statuses, offers, sink, auditLog = mem, mem, memSink, memSink
	default:
		db, err := postgres.Open(ctx, postgres.Options{DSN: cfg.PostgresDSN, AppName: cfg.ServiceName, MaxConns: cfg.PostgresMaxConns}, logger)
		if err != nil {
			logger.Fatal("db open", zap.Error(err))
		}
		defer db.Close()

		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()

		cache := redisx.NewStatusCache(&workflow.StatusRepo{DB: db}, rdb, logger)
		statuses = cache
		offers = cache.WrapOffers(&workflow.OfferRepo{DB: db, LockTimeout: cfg.LockTimeout})

		repo := &audit.Repo{DB: db}
		auditLog = repo
		sink = repo
		if cfg.AuditSink == config.AuditSinkKafka {
			producer = kafkax.NewProducer(cfg.KafkaBrokers, cfg.AuditTopic, 1024, logger)
			producer.Start(ctx)
			sink = kafkax.NewAuditPublisher(producer, cfg.ServiceName)
		}
	}

	recorder := audit.NewRecorder(sink, nil)
	orchestrator, err := workflow.NewOrchestrator(statuses, recorder, logger)
	if err != nil {
		logger.Fatal("orchestrator", zap.Error(err))
	}
	coordinator, err := workflow.NewOfferCoordinator(offers, recorder, logger)
	if err != nil {
		logger.Fatal("offer coordinator", zap.Error(err))
	}

	router := httpx.NewRouter(logger)
	h := &httpx.LifecycleHandler{
		Transitions: orchestrator,
		Offers:      coordinator,
		AuditLog:    auditLog,
	}
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver), zap.String("audit_sink", cfg.AuditSink))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	if producer != nil {
		producer.Close()
		producer.WaitClosed()
	}
	cancel()
}
