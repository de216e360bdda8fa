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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/orderflow/internal/config"
	"github.com/nikolayk812/orderflow/internal/db"
	"github.com/nikolayk812/orderflow/internal/httpapi"
	"github.com/nikolayk812/orderflow/internal/kafka"
	"github.com/nikolayk812/orderflow/internal/metrics"
	"github.com/nikolayk812/orderflow/internal/outbox"
	"github.com/nikolayk812/orderflow/internal/payment"
	"github.com/nikolayk812/orderflow/internal/reaper"
	"github.com/nikolayk812/orderflow/internal/repository"
	"github.com/nikolayk812/orderflow/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("orderflow stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})).
		With(slog.String("instance", cfg.InstanceID))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("pgxpool.New: %w", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("db.Migrate: %w", err)
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	if err != nil {
		return fmt.Errorf("kafka.NewProducer: %w", err)
	}
	defer producer.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var sessions payment.CheckoutSessionCreator
	if cfg.StripeSecretKey != "" {
		sessions = payment.NewStripeSessions(cfg.StripeSecretKey)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, card payments disabled")
	}

	orders := repository.NewOrder(pool)

	svc, err := service.NewOrderService(
		repository.NewTransactor(pool),
		orders,
		payment.NewGateway(sessions, logger),
		service.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("service.NewOrderService: %w", err)
	}

	publisher, err := outbox.NewPublisher(repository.NewOutbox(pool), producer, cfg.InstanceID,
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithClaimLease(cfg.OutboxClaimLease),
		outbox.WithPublishTimeout(cfg.OutboxPublishTimeout),
		outbox.WithRetention(cfg.OutboxRetention),
		outbox.WithMetrics(metrics.NewOutboxMetrics(reg)),
		outbox.WithLogger(logger.With(slog.String("component", "outbox"))),
	)
	if err != nil {
		return fmt.Errorf("outbox.NewPublisher: %w", err)
	}

	stale, err := reaper.New(orders, cfg.ReaperThreshold,
		reaper.WithBatchSize(cfg.ReaperBatchSize),
		reaper.WithMetrics(metrics.NewReaperMetrics(reg)),
		reaper.WithLogger(logger.With(slog.String("component", "reaper"))),
	)
	if err != nil {
		return fmt.Errorf("reaper.New: %w", err)
	}

	router := httpapi.NewRouter(httpapi.NewHandler(svc, cfg.PaymentReturnURLBase, logger), httpapi.RouterConfig{
		Metrics:  metrics.NewHTTPMetrics(reg),
		Gatherer: reg,
		Checks: map[string]httpapi.HealthCheck{
			"postgres": pool.Ping,
			"kafka":    producer.Ping,
		},
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server.ListenAndServe: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server.Shutdown: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return publisher.Run(gctx, cfg.OutboxPollInterval)
	})

	g.Go(func() error {
		return stale.Run(gctx, cfg.ReaperInterval)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("orderflow shut down")
	return nil
}
