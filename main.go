package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/config"
	delivery "github.com/egannguyen/go-kafka-ecommerce/storefront/internal/delivery/http"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/entity"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/messaging"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/messaging/kafka"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/messaging/watermill"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/metrics"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/notification"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/payment"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/profile"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/repository/postgres"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/repository/sqlite"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/repository/sqlstore"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/resilience"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/service"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/telemetry"
)

const serviceName = "storefront"

func main() {
	if err := run(); err != nil {
		slog.Error("Storefront stopped", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := telemetry.InitLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracer, err := telemetry.SetupTracer(ctx, serviceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			slog.Error("Failed to flush traces", "err", err)
		}
	}()

	// --- Database ---
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.SeedDemo {
		if err := seedDemo(ctx, store, time.Now()); err != nil {
			return err
		}
	}

	// --- Broker ---
	broker, err := openBroker(cfg, logger)
	if err != nil {
		return err
	}
	defer broker.Close()

	// --- Collaborators ---
	profiles := profile.NewHTTPClient(cfg.ProfileURL, cfg.TenantURL, cfg.ProfileTimeout)
	lookup := profile.NewCachedLookup(profiles, profiles, newProfileCache(cfg), cfg.ProfileCacheTTL)
	gateway := payment.NewHTTPGateway(cfg.PaymentURL, cfg.PaymentTimeout)

	var email notification.EmailSender = notification.LogSender{}
	if cfg.BrevoAPIKey != "" {
		email = notification.NewBrevoSender(cfg.BrevoURL, cfg.BrevoAPIKey, 10*time.Second)
	}
	dispatcher := notification.NewDispatcher(broker, email, resilience.DefaultRetry, time.Minute)

	// --- Metrics ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	orderMetrics := metrics.NewOrderMetrics(registry)
	serverMetrics := metrics.NewServerMetrics(registry)

	// --- Services ---
	ledger := service.NewStockLedger(store.Products())
	vouchers := service.NewVoucherApplier(store.Vouchers(), time.Now)
	orders := service.NewOrderService(service.OrderDeps{
		Orders:   store.Orders(),
		Ledger:   ledger,
		Vouchers: vouchers,
		Payment:  gateway,
		Users:    lookup,
		Tenants:  lookup,
		Events:   dispatcher,
		Metrics:  orderMetrics,
	}, service.OrderConfig{
		PaymentTimeout:      cfg.PaymentTimeout,
		ProfileTimeout:      cfg.ProfileTimeout,
		CancelTemplateID:    cfg.CancelTemplateID,
		StorefrontURL:       cfg.StorefrontURL,
		StorefrontMobileURL: cfg.StorefrontMobileURL,
	})
	reports := service.NewReportService(store.Orders(), time.Now, cfg.ReportTimezone)
	inventory := service.NewInventoryService(store.InventoryForms(), ledger, dispatcher, orderMetrics, time.Now)

	// --- Event log consumer ---
	for _, topic := range []string{
		entity.TopicOrderCreated,
		entity.TopicOrderCancelled,
		entity.TopicOrderStageChanged,
		entity.TopicInventoryAdjusted,
	} {
		go broker.Consume(ctx, topic, serviceName+"-audit", logEvent(topic))
	}

	// --- HTTP API ---
	handler := delivery.NewHandler(orders, reports, vouchers, inventory)
	router := delivery.NewRouter(handler, serverMetrics, metrics.HandlerFor(registry), store.DB().PingContext)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(router, serviceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("HTTP server starting", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down...")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "err", err)
	}
	dispatcher.Wait()
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (*sqlstore.Store, error) {
	switch cfg.DBDriver {
	case "sqlite":
		return sqlite.Open(ctx, cfg.SQLitePath)
	default:
		return postgres.InitDB(ctx, cfg.DatabaseURL)
	}
}

func openBroker(cfg *config.Config, logger *slog.Logger) (messaging.Broker, error) {
	switch cfg.BrokerDriver {
	case "memory":
		return watermill.NewGoChannel(logger), nil
	case "watermill":
		return watermill.NewKafka(cfg.KafkaBrokers, logger)
	default:
		return kafka.NewKafkaBroker(cfg.KafkaBrokers), nil
	}
}

func newProfileCache(cfg *config.Config) profile.Cache {
	if cfg.RedisAddr == "" {
		return profile.NewLRUCache(1024, cfg.ProfileCacheTTL, serviceName)
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return profile.NewRedisCache(client, serviceName)
}

func logEvent(topic string) messaging.Handler {
	return func(ctx context.Context, payload []byte) error {
		slog.InfoContext(ctx, "Event observed", "topic", topic, "payload", string(payload))
		return nil
	}
}
