package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	ServiceName    = "storefront"
	ServiceVersion = "0.1.0"
)

const (
	DefaultRequestTimeout  = 10 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultOpsAddr         = ":9090"
	DefaultOrderTopic      = "order.created"
	KafkaBatchTimeout      = 10 * time.Millisecond
	KafkaBatchSize         = 100
)

const (
	LogsPath      = "/otlp/v1/logs"   // Grafana Cloud OTLP path
	TracesPath    = "/otlp/v1/traces" // Grafana Cloud OTLP path
	ExportTimeout = 30 * time.Second
	MaxQueueSize  = 2048
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	CartMemory    = "memory"
	CartRedis     = "redis"
)

type Config struct {
	Messaging MessagingConfig `yaml:"messaging"`
	Ops       OpsConfig       `yaml:"ops"`
	Store     StoreConfig     `yaml:"store"`
	Cart      CartConfig      `yaml:"cart"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Otel      OtelConfig      `yaml:"otel"`

	// SeedFile optionally points at a YAML fixture of users, products and
	// carts loaded at startup.
	SeedFile string `yaml:"seed_file"`
}

type MessagingConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`
}

type OpsConfig struct {
	ListenAddr string `yaml:"listen_addr" validate:"required"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver" validate:"oneof=memory postgres"`
	PostgresDSN string `yaml:"postgres_dsn" validate:"required_if=Driver postgres"`
}

type CartConfig struct {
	Driver   string `yaml:"driver" validate:"oneof=memory redis"`
	RedisURL string `yaml:"redis_url" validate:"required_if=Driver redis"`
}

// KafkaConfig enables mirroring of order broadcasts to Kafka when Broker is set.
type KafkaConfig struct {
	Broker string `yaml:"broker"`
	Topic  string `yaml:"topic" validate:"required_with=Broker"`
}

// OtelConfig enables the OTLP exporters when Endpoint is set.
type OtelConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AuthHeader string `yaml:"auth_header"`
}

func defaults() *Config {
	return &Config{
		Messaging: MessagingConfig{RequestTimeout: DefaultRequestTimeout},
		Ops:       OpsConfig{ListenAddr: DefaultOpsAddr},
		Store:     StoreConfig{Driver: StoreMemory},
		Cart:      CartConfig{Driver: CartMemory},
		Kafka:     KafkaConfig{Topic: DefaultOrderTopic},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path and then environment variables, in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if raw := getEnvOrDefault("REQUEST_TIMEOUT", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid REQUEST_TIMEOUT %q: %w", raw, err)
		}
		cfg.Messaging.RequestTimeout = d
	}
	cfg.Ops.ListenAddr = getEnvOrDefault("OPS_ADDR", cfg.Ops.ListenAddr)
	cfg.Store.Driver = getEnvOrDefault("STORE_DRIVER", cfg.Store.Driver)
	cfg.Store.PostgresDSN = getEnvOrDefault("POSTGRES_DSN", cfg.Store.PostgresDSN)
	cfg.Cart.Driver = getEnvOrDefault("CART_DRIVER", cfg.Cart.Driver)
	cfg.Cart.RedisURL = getEnvOrDefault("REDIS_URL", cfg.Cart.RedisURL)
	cfg.Kafka.Broker = getEnvOrDefault("KAFKA_BROKER", cfg.Kafka.Broker)
	cfg.Kafka.Topic = getEnvOrDefault("KAFKA_TOPIC", cfg.Kafka.Topic)
	cfg.Otel.Endpoint = getEnvOrDefault("OTEL_ENDPOINT", cfg.Otel.Endpoint)
	cfg.Otel.AuthHeader = getEnvOrDefault("OTEL_AUTH_HEADER", cfg.Otel.AuthHeader)
	cfg.SeedFile = getEnvOrDefault("SEED_FILE", cfg.SeedFile)
	return nil
}

// Validate checks the struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// KafkaEnabled reports whether order broadcasts are mirrored to Kafka.
func (c *Config) KafkaEnabled() bool { return c.Kafka.Broker != "" }

// OtelEnabled reports whether traces and logs are exported over OTLP.
func (c *Config) OtelEnabled() bool { return c.Otel.Endpoint != "" }

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
