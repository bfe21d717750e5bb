package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appOrder "github.com/minicommerce/orderflow/internal/application/order"
	appPayment "github.com/minicommerce/orderflow/internal/application/payment"
	appStock "github.com/minicommerce/orderflow/internal/application/stock"
	"github.com/minicommerce/orderflow/internal/config"
	domainCatalog "github.com/minicommerce/orderflow/internal/domain/catalog"
	domainPayment "github.com/minicommerce/orderflow/internal/domain/payment"
	domainStock "github.com/minicommerce/orderflow/internal/domain/stock"
	"github.com/minicommerce/orderflow/internal/infrastructure/bus"
	"github.com/minicommerce/orderflow/internal/infrastructure/id"
	"github.com/minicommerce/orderflow/internal/infrastructure/memory"
	obsprovider "github.com/minicommerce/orderflow/internal/infrastructure/observability"
	"github.com/minicommerce/orderflow/internal/infrastructure/observability/oteltrace"
	"github.com/minicommerce/orderflow/internal/infrastructure/observability/prometrics"
	"github.com/minicommerce/orderflow/internal/infrastructure/observability/zaplogger"
	"github.com/minicommerce/orderflow/internal/infrastructure/provider"
	"github.com/minicommerce/orderflow/internal/infrastructure/redisstock"
	"github.com/minicommerce/orderflow/internal/infrastructure/retry"
	"github.com/minicommerce/orderflow/internal/observability"
	httppresentation "github.com/minicommerce/orderflow/internal/presentation/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := zaplogger.New(
		observability.F("service", cfg.ServiceName),
		observability.F("env", cfg.Env),
	)
	defer func() {
		if s, ok := logger.(interface{ Sync() error }); ok {
			_ = s.Sync()
		}
	}()

	tel := obsprovider.New(
		oteltrace.New(cfg.ServiceName),
		logger,
		buildCounters(),
		buildHistograms(),
	)

	// Event bus + retrying publisher. Exhausted publishes park in the
	// failed-event store instead of being dropped.
	eventBus := bus.New(logger)
	eventBus.Start(context.Background())
	defer eventBus.Stop(context.Background())

	failedEvents := memory.NewFailedEventStore()
	publisher := retry.NewPublisher(eventBus, failedEvents, cfg.PublishRetryBase, cfg.PublishRetryMax, tel)

	// Stores.
	orderRepo := memory.NewOrderRepository()
	paymentRepo := memory.NewPaymentRepository()
	ledger := memory.NewLedger()
	auditLog := memory.NewAuditLog()
	stockStore := buildStockStore(cfg)
	seedDemoStock(stockStore, cfg)

	catalog := memory.NewCatalog(stockStore, demoProducts()...)
	users := memory.NewUserDirectory(demoUsers())
	idGenerator := id.NewUUIDGenerator()

	// Payment provider.
	var (
		payProvider   domainPayment.Provider
		webhookParser httppresentation.WebhookParser
	)
	switch cfg.Provider {
	case config.ProviderStripe:
		stripeProvider := provider.NewStripe(
			cfg.StripeAPIKey, cfg.StripeWebhookSecret, "usd", cfg.InvoiceTTL,
			cfg.StripeSuccessURL, cfg.StripeCancelURL,
		)
		payProvider = stripeProvider
		webhookParser = stripeProvider
	default:
		payProvider = provider.NewSimulator(cfg.InvoiceTTL)
	}

	// Use cases and workers.
	checkout := appOrder.NewCheckoutUseCase(orderRepo, catalog, idGenerator, publisher, tel)
	orderService := appOrder.NewService(orderRepo)
	orderWorker := appOrder.NewWorker(orderRepo, eventBus, publisher, auditLog, tel)

	invoicer := appPayment.NewInvoicer(payProvider, cfg.InvoiceTTL, tel)
	var invoiceCreator appPayment.InvoiceCreator = appPayment.NewInlineInvoiceCreator(invoicer)
	if cfg.InvoiceMode == config.InvoiceBatch {
		invoiceCreator = appPayment.NewBatchInvoiceCreator()
	}
	createPayment := appPayment.NewCreateUseCase(
		paymentRepo, ledger, users, invoiceCreator, idGenerator, auditLog, tel,
	)
	confirmPayment := appPayment.NewConfirmUseCase(paymentRepo, publisher, auditLog, tel)
	paymentWorker := appPayment.NewWorker(eventBus, createPayment)
	sweeper := appPayment.NewSweeper(paymentRepo, invoicer, confirmPayment, cfg.SweepInterval, tel)

	applyStock := appStock.NewApplyUseCase(stockStore, auditLog, tel)
	stockWorker := appStock.NewWorker(eventBus, applyStock, tel)

	orderWorker.Start()
	paymentWorker.Start()
	stockWorker.Start()
	sweeper.Start()
	defer sweeper.Stop()

	handler := httppresentation.NewHandler(
		checkout, orderService, confirmPayment,
		paymentRepo, stockStore, failedEvents, auditLog,
		webhookParser, tel,
	)

	mux := http.NewServeMux()
	mux.Handle("/", handler.Router())
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http_server_started", observability.F("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_failed", observability.F("error", err.Error()))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_shutdown_failed", observability.F("error", err.Error()))
	}
}

func buildCounters() map[observability.MetricKey]observability.Counter {
	reg := registry()
	return map[observability.MetricKey]observability.Counter{
		observability.MUsecaseRequests: reg.Counter(
			string(observability.MUsecaseRequests),
			"Total number of use case invocations.",
			"use_case", "outcome",
		),
		observability.MHTTPRequests: reg.Counter(
			string(observability.MHTTPRequests),
			"Total number of HTTP requests.",
			"method", "route", "status",
		),
		observability.MExternalRequests: reg.Counter(
			string(observability.MExternalRequests),
			"Total number of calls to external peers.",
			"peer", "endpoint", "outcome",
		),
		observability.MPublishRetries: reg.Counter(
			string(observability.MPublishRetries),
			"Publish attempts beyond the first, per event.",
			"event",
		),
		observability.MPublishExhausted: reg.Counter(
			string(observability.MPublishExhausted),
			"Publishes that exhausted all retries, per event.",
			"event",
		),
	}
}

func buildHistograms() map[observability.MetricKey]observability.Histogram {
	reg := registry()
	return map[observability.MetricKey]observability.Histogram{
		observability.MUsecaseDuration: reg.Histogram(
			string(observability.MUsecaseDuration),
			"Duration of use case execution in seconds.",
			nil,
			"use_case",
		),
		observability.MHTTPRequestDuration: reg.Histogram(
			string(observability.MHTTPRequestDuration),
			"Duration of HTTP request handling in seconds.",
			nil,
			"method", "route", "status",
		),
		observability.MExternalRequestDuration: reg.Histogram(
			string(observability.MExternalRequestDuration),
			"Duration of external peer calls in seconds.",
			nil,
			"peer", "endpoint",
		),
	}
}

var metricsRegistry prometrics.Registry

func registry() prometrics.Registry {
	if metricsRegistry == nil {
		metricsRegistry = prometrics.New("", "orderflow")
	}
	return metricsRegistry
}

func buildStockStore(cfg *config.Config) domainStock.Store {
	if cfg.StockBackend == config.StockRedis {
		client := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		return redisstock.New(client)
	}
	return memory.NewStockStore()
}

// seedDemoStock fills the counters for the demo catalog so the service is
// usable out of the box. Redis keeps existing quantities across restarts.
func seedDemoStock(store domainStock.Store, cfg *config.Config) {
	ctx := context.Background()
	for _, p := range demoProducts() {
		if cfg.StockBackend == config.StockRedis {
			if n, err := store.Available(ctx, p.ID); err == nil && n > 0 {
				continue
			}
		}
		_ = store.Set(ctx, p.ID, 100)
	}
}

func demoProducts() []domainCatalog.Product {
	return []domainCatalog.Product{
		{ID: "p-100", Name: "Mechanical Keyboard", Price: 8900},
		{ID: "p-200", Name: "Trackball Mouse", Price: 4500},
		{ID: "p-300", Name: "USB-C Dock", Price: 12900},
	}
}

func demoUsers() map[string]string {
	return map[string]string{
		"u-alice": "alice@example.com",
		"u-bob":   "bob@example.com",
	}
}
