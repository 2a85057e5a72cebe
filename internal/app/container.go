package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sgandhi15/ecommerce-api/internal/bus"
	"github.com/sgandhi15/ecommerce-api/internal/config"
	"github.com/sgandhi15/ecommerce-api/internal/correlator"
	"github.com/sgandhi15/ecommerce-api/internal/domain"
	"github.com/sgandhi15/ecommerce-api/internal/order"
	"github.com/sgandhi15/ecommerce-api/internal/platform/kafka"
	"github.com/sgandhi15/ecommerce-api/internal/platform/observability"
	"github.com/sgandhi15/ecommerce-api/internal/responders"
	"github.com/sgandhi15/ecommerce-api/internal/stock"
	"github.com/sgandhi15/ecommerce-api/internal/store/memory"
	"github.com/sgandhi15/ecommerce-api/internal/store/postgres"
	"github.com/sgandhi15/ecommerce-api/internal/store/rediscart"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type productStore interface {
	responders.ProductStore
	stock.ProductStore
}

type cartStore interface {
	responders.CartStore
	Save(ctx context.Context, cart *domain.Cart) error
}

// Container holds expensive-to-create singleton resources and dependencies
type Container struct {
	config  *config.Config
	logger  *zap.Logger
	tracer  observability.Tracer
	metrics *observability.Metrics

	bus          *bus.Bus
	correlator   *correlator.Correlator
	users        *memory.UserStore
	products     productStore
	carts        cartStore
	orders       order.Store
	responders   *responders.Responders
	orchestrator *order.Orchestrator
	subs         []*bus.Subscription

	postgres          *postgres.DB
	redisCarts        *rediscart.Store
	messageProducer   kafka.Producer
	opsServer         *http.Server
	otelLogShutdown   func(context.Context) error
	otelTraceShutdown func(context.Context) error
}

// NewContainer loads configuration from CONFIG_PATH and the environment
// and wires every component.
func NewContainer(ctx context.Context) (*Container, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return newContainer(ctx, cfg)
}

func newContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{
		config:  cfg,
		metrics: observability.NewMetrics(config.ServiceName),
	}

	tp := c.setupObservability(ctx)

	c.bus = bus.New(c.logger)
	c.correlator = correlator.New(c.bus, cfg.Messaging.RequestTimeout, c.logger, c.tracer, c.metrics)

	if err := c.setupStores(ctx); err != nil {
		c.Shutdown(ctx)
		return nil, err
	}

	c.responders = responders.New(c.users, c.products, c.carts, c.correlator, c.logger)
	c.responders.Register(c.bus)

	stockService := stock.NewService(c.products, c.logger, c.tracer, c.metrics)
	c.subs = append(c.subs, stock.NewMessageHandler(stockService, c.logger).Register(c.bus))

	if err := c.setupKafka(tp); err != nil {
		c.Shutdown(ctx)
		return nil, err
	}

	c.orchestrator = order.New(c.correlator, c.bus, c.orders, c.logger, c.tracer, c.metrics,
		order.WithRequestTimeout(cfg.Messaging.RequestTimeout))

	c.opsServer = &http.Server{
		Addr:              cfg.Ops.ListenAddr,
		Handler:           c.opsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return c, nil
}

// setupObservability starts with a plain production logger, installs the
// OTLP SDKs when an endpoint is configured and then rebuilds the logger on
// top of the OTel bridge.
func (c *Container) setupObservability(ctx context.Context) trace.TracerProvider {
	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	c.logger = logger

	var tp trace.TracerProvider
	if c.config.OtelEnabled() {
		otelLogShutdown, err := observability.SetupLoggingSDK(ctx, c.config)
		if err != nil {
			c.logger.Error("Failed to setup OpenTelemetry logging", zap.Error(err))
		}
		c.otelLogShutdown = otelLogShutdown

		sdkTP, otelTraceShutdown, err := observability.SetupTracingSDK(ctx, c.config)
		if err != nil {
			c.logger.Error("Failed to setup OpenTelemetry tracing", zap.Error(err))
		}
		c.otelTraceShutdown = otelTraceShutdown
		if sdkTP != nil {
			tp = sdkTP
		}
	}

	c.logger = observability.NewLogger()
	c.logger.Info("Logger initialized", zap.Bool("otel_export", c.config.OtelEnabled()))

	c.tracer = otel.Tracer(config.ServiceName)
	return tp
}

func (c *Container) setupStores(ctx context.Context) error {
	c.users = memory.NewUserStore()

	switch c.config.Store.Driver {
	case config.StorePostgres:
		db, err := postgres.Open(ctx, c.config.Store.PostgresDSN)
		if err != nil {
			return err
		}
		c.postgres = db
		c.products = postgres.NewProductStore(db)
		c.orders = postgres.NewOrderStore(db, c.logger)
	default:
		c.products = memory.NewProductStore()
		c.orders = memory.NewOrderStore()
	}

	switch c.config.Cart.Driver {
	case config.CartRedis:
		store, err := rediscart.NewFromURL(c.config.Cart.RedisURL)
		if err != nil {
			return err
		}
		c.redisCarts = store
		c.carts = store
	default:
		c.carts = memory.NewCartStore()
	}

	c.logger.Info("Stores ready",
		zap.String("order_store", c.config.Store.Driver),
		zap.String("cart_store", c.config.Cart.Driver),
	)

	if c.config.SeedFile == "" {
		return nil
	}

	targets := seedTargets{putUser: c.users.Put, saveCart: c.carts.Save}
	if ps, ok := c.products.(*memory.ProductStore); ok {
		targets.putProduct = ps.Put
	} else {
		c.logger.Info("Skipping product seed, catalog is backed by postgres")
	}
	if err := loadSeed(ctx, c.config.SeedFile, targets); err != nil {
		return err
	}
	c.logger.Info("Seed data loaded", zap.String("seed_file", c.config.SeedFile))
	return nil
}

// setupKafka mirrors order broadcasts to Kafka when a broker is configured.
func (c *Container) setupKafka(tp trace.TracerProvider) error {
	if !c.config.KafkaEnabled() {
		return nil
	}

	producer, err := kafka.NewProducer(c.config.Kafka.Broker, c.config.Kafka.Topic, tp)
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}
	c.messageProducer = producer

	forwarder := kafka.NewForwarder(producer, c.logger, c.metrics)
	c.subs = append(c.subs, forwarder.Register(c.bus))
	c.logger.Info("Forwarding order broadcasts to Kafka",
		zap.String("broker", c.config.Kafka.Broker),
		zap.String("topic", c.config.Kafka.Topic),
	)
	return nil
}

func (c *Container) opsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := c.healthy(r.Context()); err != nil {
			c.logger.Warn("Health check failed", zap.Error(err))
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (c *Container) healthy(ctx context.Context) error {
	var err error
	if c.postgres != nil {
		if pingErr := c.postgres.Ping(ctx); pingErr != nil {
			err = errors.Join(err, fmt.Errorf("postgres: %w", pingErr))
		}
	}
	if c.redisCarts != nil {
		if pingErr := c.redisCarts.Ping(ctx); pingErr != nil {
			err = errors.Join(err, fmt.Errorf("redis: %w", pingErr))
		}
	}
	return err
}

// Shutdown gracefully shuts down all infrastructure components
func (c *Container) Shutdown(ctx context.Context) {
	c.logger.Info("Shutting down infrastructure...")

	if c.opsServer != nil {
		if err := c.opsServer.Shutdown(ctx); err != nil {
			c.logger.Error("Failed to stop ops server", zap.Error(err))
		}
	}

	// Let in-flight order broadcasts reach the stock reactor and Kafka.
	if c.bus != nil {
		if err := c.bus.Close(ctx); err != nil {
			c.logger.Error("Failed to drain bus", zap.Error(err))
		}
	}
	if c.correlator != nil {
		c.correlator.Close()
	}
	if c.responders != nil {
		c.responders.Close()
	}
	for _, sub := range c.subs {
		sub.Unsubscribe()
	}

	if c.messageProducer != nil {
		if err := c.messageProducer.Close(); err != nil {
			c.logger.Error("Failed to close message producer", zap.Error(err))
		}
	}
	if c.redisCarts != nil {
		if err := c.redisCarts.Close(); err != nil {
			c.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}
	if c.postgres != nil {
		if err := c.postgres.Close(); err != nil {
			c.logger.Error("Failed to close postgres", zap.Error(err))
		}
	}

	if c.otelTraceShutdown != nil {
		if err := c.otelTraceShutdown(ctx); err != nil {
			c.logger.Error("Failed to shutdown OTel tracing", zap.Error(err))
		}
	}
	if c.otelLogShutdown != nil {
		if err := c.otelLogShutdown(ctx); err != nil {
			c.logger.Error("Failed to shutdown OTel logging", zap.Error(err))
		}
	}

	c.logger.Info("Infrastructure shutdown complete")

	// Sync errors on stdout are expected on some platforms.
	_ = c.logger.Sync()
}

// Getters for accessing infrastructure components
func (c *Container) Logger() observability.Logger { return c.logger }
func (c *Container) Tracer() observability.Tracer { return c.tracer }
func (c *Container) Metrics() *observability.Metrics { return c.metrics }
func (c *Container) Bus() *bus.Bus { return c.bus }
func (c *Container) Orchestrator() *order.Orchestrator { return c.orchestrator }
func (c *Container) MessageProducer() kafka.Producer { return c.messageProducer }
func (c *Container) OpsServer() *http.Server { return c.opsServer }
