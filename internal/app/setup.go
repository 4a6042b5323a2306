// Package app contains the application setup for the checkout service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bangazon/checkout/internal/config"
	"github.com/bangazon/checkout/internal/idempotency"
	"github.com/bangazon/checkout/internal/service"
	"github.com/bangazon/checkout/internal/store"
	"github.com/bangazon/checkout/internal/transport/rest"
	"github.com/bangazon/checkout/migrations"
	"github.com/bangazon/checkout/pkg/bootstrap"
	pkgconfig "github.com/bangazon/checkout/pkg/config"
	"github.com/bangazon/checkout/pkg/kafka"
	"github.com/bangazon/checkout/pkg/messaging"
	pkgnats "github.com/bangazon/checkout/pkg/nats"
	"github.com/bangazon/checkout/pkg/server"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

const serviceName = "checkout"

type Dependencies struct {
	CheckoutService service.CheckoutService
	Idempotency     rest.IdempotencyStore
	Metrics         http.Handler
	Logger          *slog.Logger

	closers []func() error
}

// Close releases broker, cache and database connections in reverse order of creation.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	d.closers = nil
	return errors.Join(errs...)
}

func (d *Dependencies) onClose(fn func() error) {
	d.closers = append(d.closers, fn)
}

// SetupDependencies connects the store, the event broker and the idempotency cache selected by cfg.
// On error everything opened so far is closed.
func SetupDependencies(ctx context.Context, cfg *config.Config, metrics http.Handler, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{Metrics: metrics, Logger: logger}
	if err := deps.connect(ctx, cfg); err != nil {
		if closeErr := deps.Close(); closeErr != nil {
			logger.Warn("Failed to release partially created dependencies", slog.Any("error", closeErr))
		}
		return nil, err
	}
	return deps, nil
}

func (d *Dependencies) connect(ctx context.Context, cfg *config.Config) error {
	st, err := setupStore(ctx, d, cfg.Database, d.Logger)
	if err != nil {
		return err
	}
	publisher, err := setupPublisher(ctx, d, cfg.Events, d.Logger)
	if err != nil {
		return err
	}
	if cfg.Redis.Enabled() {
		rdb, err := idempotency.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Timeout)
		if err != nil {
			return err
		}
		d.onClose(rdb.Close)
		d.Idempotency = idempotency.NewRedisStore(rdb, cfg.Redis.TTL, cfg.Redis.LockTTL)
		d.Logger.Info("Idempotency cache enabled", slog.String("addr", cfg.Redis.Addr))
	}

	d.CheckoutService = service.NewService(st, publisher, d.Logger, service.Options{MaxAttempts: cfg.Checkout.MaxAttempts})
	return nil
}

func setupStore(ctx context.Context, deps *Dependencies, cfg pkgconfig.DatabaseConfig, logger *slog.Logger) (store.Store, error) {
	if cfg.Driver == pkgconfig.DriverMemory {
		ms := store.NewMemoryStore()
		if cfg.Seed != "" {
			seed, err := store.LoadSeed(cfg.Seed)
			if err != nil {
				return nil, err
			}
			if err := seed.Apply(ms); err != nil {
				return nil, fmt.Errorf("failed to apply seed: %w", err)
			}
			logger.Info("Memory store seeded", slog.Int("products", len(seed.Products)), slog.Int("payment_types", len(seed.PaymentTypes)))
		}
		logger.Warn("Using the in-memory store, data is lost on restart")
		return ms, nil
	}

	if cfg.Migrate {
		if err := migrations.Up(cfg.URL); err != nil {
			return nil, err
		}
		logger.Info("Database migrations applied")
	}
	dbPool, err := bootstrap.NewDbPool(ctx, cfg, serviceName)
	if err != nil {
		return nil, err
	}
	deps.onClose(func() error {
		dbPool.Close()
		return nil
	})
	logger.Info("Successfully connected to the database!")
	return store.NewPgStore(dbPool), nil
}

func setupPublisher(ctx context.Context, deps *Dependencies, cfg pkgconfig.EventsConfig, logger *slog.Logger) (messaging.Publisher, error) {
	switch cfg.Broker {
	case pkgconfig.BrokerNats:
		nc, err := pkgnats.NewClient(cfg.Nats.Url, cfg.Nats.Timeout, logger)
		if err != nil {
			return nil, err
		}
		deps.onClose(func() error {
			return nc.Drain()
		})
		js, err := pkgnats.NewJetStream(nc)
		if err != nil {
			return nil, err
		}
		if err := pkgnats.EnsureStream(ctx, js, cfg.Nats.Stream, messaging.Subjects); err != nil {
			return nil, err
		}
		logger.Info("Publishing checkout events to NATS", slog.String("stream", cfg.Nats.Stream))
		return pkgnats.NewNatsPublisher(js), nil
	case pkgconfig.BrokerKafka:
		publisher := kafka.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.WriteTimeout)
		deps.onClose(publisher.Close)
		logger.Info("Publishing checkout events to Kafka", slog.Any("brokers", cfg.Kafka.Brokers))
		return publisher, nil
	default:
		return messaging.NewLogPublisher(logger), nil
	}
}

// SetupHttpHandler initializes the router and routes of the checkout service.
// Requests are cancelled after requestTimeout when it is positive.
func SetupHttpHandler(deps *Dependencies, requestTimeout time.Duration) http.Handler {
	mux := server.NewChiRouter(deps.Logger,
		server.WithMetrics(deps.Metrics),
		server.WithRequestTimeout(requestTimeout),
	)
	rest.NewHandler(deps.CheckoutService, deps.Idempotency, deps.Logger).RegisterRoutes(mux)
	return mux
}

// SetupHttpServer creates and configures an HTTP server for the checkout service.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {
	return server.NewHTTPServer(cfg.HTTPServer, serviceName, SetupHttpHandler(deps, cfg.HTTPServer.Timeout.Write))
}

// SetupGrpcServer creates the gRPC server that carries the health service.
func SetupGrpcServer(cfg *config.Config, logger *slog.Logger, healthServer *health.Server) *grpc.Server {
	return server.NewGRPCServer(logger, cfg.GRPC.ReflectionEnabled, server.WithHealth(healthServer))
}
