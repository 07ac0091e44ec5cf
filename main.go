package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Zhima-Mochi/minishop-saga/internal/application/notification"
	appOrder "github.com/Zhima-Mochi/minishop-saga/internal/application/order"
	appPayment "github.com/Zhima-Mochi/minishop-saga/internal/application/payment"
	appProduct "github.com/Zhima-Mochi/minishop-saga/internal/application/product"
	"github.com/Zhima-Mochi/minishop-saga/internal/config"
	"github.com/Zhima-Mochi/minishop-saga/internal/domain/cache"
	domorder "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-saga/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/minishop-saga/internal/domain/payment"
	domproduct "github.com/Zhima-Mochi/minishop-saga/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/gateway"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/kafka"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/mailer"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/memory"
	infraObservability "github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/observability/tracing"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/rediscache"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"
	"github.com/Zhima-Mochi/minishop-saga/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/minishop-saga/internal/presentation/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

type eventBus interface {
	domoutbox.Publisher
	domoutbox.Subscriber
	Start(ctx context.Context)
	Stop(ctx context.Context)
}

type repositories struct {
	orders   domorder.Repository
	products domproduct.Repository
	payments dompayment.Repository
	closer   func() error
}

type caching struct {
	store  cache.Store
	dedup  domoutbox.Deduper
	closer func() error
}

func main() {
	cfg, err := config.Load(getenvDefault("CONFIG_DIR", "configs"), getenvDefault("ENV", "dev"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	baseLogger := logging.MustNewLogger(logging.Options{
		Service: cfg.App.Name,
		Env:     cfg.App.Env,
		Level:   cfg.App.LogLevel,
		File:    getenvDefault("LOG_FILE", cfg.App.LogFile),
	})
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)
	systemLogger := logging.WithTrace(baseLogger, logging.SystemTraceID, logging.SystemTraceID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Env,
		Enabled:     cfg.OTel.Enabled,
		Endpoint:    cfg.OTel.Endpoint,
		Insecure:    cfg.OTel.Insecure,
		SampleRatio: cfg.OTel.SampleRatio,
	})
	if err != nil {
		systemLogger.Fatal("tracing_setup_failed", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	counters, histograms := prometrics.Instruments(prometrics.New("minishop", "", registry))
	tel := infraObservability.New(
		oteltrace.New(cfg.App.Name),
		zaplogger.New(baseLogger),
		counters,
		histograms,
	)

	repos, err := buildRepositories(ctx, cfg)
	if err != nil {
		systemLogger.Fatal("store_setup_failed", zap.Error(err))
	}
	defer closeQuietly(systemLogger, "store", repos.closer)

	caches, err := buildCaching(ctx, cfg)
	if err != nil {
		systemLogger.Fatal("cache_setup_failed", zap.Error(err))
	}
	defer closeQuietly(systemLogger, "cache", caches.closer)

	bus := buildBus(cfg, tel)

	idGenerator := id.NewUUIDGenerator()
	paymentGateway := gateway.NewSimulator(gateway.Config{
		CheckoutBaseURL: cfg.Payment.CheckoutBaseURL,
		SessionTTL:      cfg.Payment.SessionTTL,
	}, tel.Logger())

	orderCaches := appOrder.NewCaches(caches.store, cfg.Cache.TTL)
	placeOrder := appOrder.NewPlaceOrderUseCase(repos.orders, idGenerator, bus, orderCaches, tel)
	orderService := appOrder.NewService(repos.orders, bus, orderCaches, tel)

	productCaches := appProduct.NewCaches(caches.store, cfg.Cache.TTL)
	ledger := appProduct.NewLedger(repos.products, bus, productCaches, cfg.Stock.MaxCASRetries, tel)
	catalog := appProduct.NewCatalog(ledger, idGenerator)
	checkOrder := appProduct.NewCheckOrderUseCase(ledger)

	createPayment := appPayment.NewProcessOrderCreationUseCase(repos.payments, paymentGateway, bus, tel)
	paymentService := appPayment.NewService(repos.payments, paymentGateway, bus, tel)

	appOrder.NewWorker(bus, placeOrder, orderService, tel).Start()
	appProduct.NewWorker(bus, checkOrder, ledger, caches.dedup, tel).Start()
	appPayment.NewWorker(bus, createPayment, paymentService, tel).Start()
	notification.NewWorker(bus, mailer.NewLogMailer(tel.Logger()), tel).Start()

	bus.Start(ctx)

	router := httppresentation.NewRouter(httppresentation.Deps{
		Place:    placeOrder,
		Orders:   orderService,
		Products: catalog,
		Stock:    ledger,
		Payments: paymentService,
		Gatherer: registry,
	}, tel)

	server := &http.Server{
		Addr:         cfg.App.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		systemLogger.Info("http_server_start",
			zap.String("addr", server.Addr),
			zap.String("bus", cfg.Bus.Driver),
			zap.String("store", cfg.Store.Driver),
			zap.String("cache", cfg.Cache.Driver),
		)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			systemLogger.Error("http_server_error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", zap.Error(err))
	} else {
		systemLogger.Info("http_server_stopped")
	}
	bus.Stop(shutdownCtx)
	if err := shutdownTracing(shutdownCtx); err != nil {
		systemLogger.Warn("tracing_shutdown_error", zap.Error(err))
	}
}

func buildRepositories(ctx context.Context, cfg config.Config) (repositories, error) {
	if cfg.Store.Driver != config.DriverPostgres {
		return repositories{
			orders:   memory.NewOrderRepository(),
			products: memory.NewProductRepository(),
			payments: memory.NewPaymentRepository(),
			closer:   func() error { return nil },
		}, nil
	}

	db, err := postgres.Open(ctx, postgres.Config{
		DSN:             cfg.Postgres.DSN,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	})
	if err != nil {
		return repositories{}, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return repositories{}, err
	}
	return repositories{
		orders:   postgres.NewOrderRepository(db),
		products: postgres.NewProductRepository(db),
		payments: postgres.NewPaymentRepository(db),
		closer:   db.Close,
	}, nil
}

func buildCaching(ctx context.Context, cfg config.Config) (caching, error) {
	if cfg.Cache.Driver != config.DriverRedis {
		return caching{
			store:  memory.NewCacheStore(),
			dedup:  memory.NewDeduper(),
			closer: func() error { return nil },
		}, nil
	}

	rdb := rediscache.NewClient(rediscache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return caching{}, fmt.Errorf("redis: ping: %w", err)
	}
	return caching{
		store:  rediscache.NewStore(rdb),
		dedup:  rediscache.NewDeduper(rdb),
		closer: rdb.Close,
	}, nil
}

func buildBus(cfg config.Config, tel observability.Observability) eventBus {
	if cfg.Bus.Driver == config.DriverKafka {
		return kafka.NewBus(kafka.Config{
			Brokers:         cfg.Kafka.Brokers,
			GroupID:         cfg.Kafka.GroupID,
			Workers:         cfg.Kafka.Workers,
			MaxAttempts:     cfg.Kafka.MaxAttempts,
			Redeliveries:    cfg.Kafka.Redeliveries,
			RedeliveryDelay: cfg.Kafka.RedeliveryDelay,
		}, kafka.DefaultCodec(cfg.App.Name), tel)
	}
	return outbox.NewBus(tel, outbox.WithMaxAttempts(cfg.Kafka.MaxAttempts))
}

func shutdownTimeout(cfg config.Config) time.Duration {
	if cfg.HTTP.ShutdownTimeout > 0 {
		return cfg.HTTP.ShutdownTimeout
	}
	return 10 * time.Second
}

func closeQuietly(logger *zap.Logger, what string, closer func() error) {
	if closer == nil {
		return
	}
	if err := closer(); err != nil {
		logger.Warn("close_failed", zap.String("resource", what), zap.Error(err))
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
