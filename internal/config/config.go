package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig
	App       AppConfig
	Auth      AuthConfig
	Cache     CacheConfig
	Database  DatabaseConfig
	Ledger    LedgerConfig
	Notify    NotifyConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	CORSOrigins     []string      `envconfig:"SERVER_CORS_ORIGINS" default:"*"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"stockledger-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
}

// AuthConfig holds session token settings.
type AuthConfig struct {
	LoginKey  string        `envconfig:"LOGIN_KEY" default:""` // required by POST /auth/token
	TokenKey  string        `envconfig:"TOKEN_SIGNING_KEY" default:""`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"8h"`
	KeyPrefix string        `envconfig:"TOKEN_KEY_PREFIX" default:"session:"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Type      string        `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis
	ReportTTL time.Duration `envconfig:"CACHE_REPORT_TTL" default:"30s"`
	KeyPrefix string        `envconfig:"CACHE_KEY_PREFIX" default:"stockledger:"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// DatabaseConfig selects and configures the ledger store.
type DatabaseConfig struct {
	Driver string `envconfig:"DB_DRIVER" default:"sqlite"` // sqlite, postgres, or mysql
	Path   string `envconfig:"DB_PATH" default:"./data/ledger.db"`

	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"0"`
	Name     string `envconfig:"DB_NAME" default:"stockledger"`
	User     string `envconfig:"DB_USER" default:""`
	Password string `envconfig:"DB_PASS" default:""`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
}

// LedgerConfig holds reconciliation settings.
type LedgerConfig struct {
	LowStockThreshold int64         `envconfig:"LEDGER_LOW_STOCK_THRESHOLD" default:"10"`
	DriftScanInterval time.Duration `envconfig:"LEDGER_DRIFT_SCAN_INTERVAL" default:"1h"` // 0 disables the scan
}

// NotifyConfig holds notification fan-out settings.
type NotifyConfig struct {
	SubscriberBuffer int    `envconfig:"NOTIFY_SUBSCRIBER_BUFFER" default:"64"`
	RedisChannel     string `envconfig:"NOTIFY_REDIS_CHANNEL" default:""` // empty disables the relay

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS" default:""`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"stockledger.notifications"`

	MongoURI        string `envconfig:"MONGODB_URI" default:""`
	MongoDatabase   string `envconfig:"MONGODB_DATABASE" default:"stockledger"`
	MongoCollection string `envconfig:"MONGODB_COLLECTION" default:"notifications"`
}

// TelemetryConfig holds OpenTelemetry exporter settings.
type TelemetryConfig struct {
	Endpoint   string `envconfig:"OTEL_EXPORTER_ENDPOINT" default:""` // empty disables export
	URLPath    string `envconfig:"OTEL_EXPORTER_URL_PATH" default:"/v1/traces"`
	AuthHeader string `envconfig:"OTEL_EXPORTER_AUTH_HEADER" default:""`
	Insecure   bool   `envconfig:"OTEL_EXPORTER_INSECURE" default:"false"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// DSN returns the data source for the configured driver. For sqlite it is
// the database file path.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		port := d.Port
		if port == 0 {
			port = 5432
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			d.User, d.Password, d.Host, port, d.Name, d.SSLMode)
	case "mysql":
		port := d.Port
		if port == 0 {
			port = 3306
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, port, d.Name)
	default:
		return d.Path
	}
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("invalid DB_DRIVER %q", c.Database.Driver)
	}
	switch c.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid CACHE_TYPE %q", c.Cache.Type)
	}
	if c.App.IsProduction() && c.Auth.TokenKey == "" {
		return fmt.Errorf("TOKEN_SIGNING_KEY is required in production")
	}
	if c.Ledger.LowStockThreshold < 0 {
		return fmt.Errorf("LEDGER_LOW_STOCK_THRESHOLD must not be negative")
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
