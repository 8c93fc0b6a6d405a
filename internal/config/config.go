// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/campusmess/messhall/pkg/logger"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Upload backends.
const (
	UploadsMemory = "memory"
	UploadsGCS    = "gcs"
)

// Config is the full runtime configuration.
type Config struct {
	Server       ServerConfig
	Store        StoreConfig
	Database     DatabaseConfig
	Mongo        MongoConfig
	Redis        RedisConfig
	Auth         AuthConfig
	Logging      logger.LoggingConfig
	Meals        MealsConfig
	Uploads      UploadsConfig
	RateLimit    RateLimitConfig
	Analytics    AnalyticsConfig
	Housekeeping HousekeepingConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST,default=0.0.0.0"`
	Port            int           `env:"SERVER_PORT,default=8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT,default=15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT,default=30s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT,default=60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=15s"`
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS,default=*"` // semicolon separated
	AuditLogPath    string        `env:"AUDIT_LOG_PATH"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StoreConfig selects the persistence driver.
type StoreConfig struct {
	Driver string `env:"STORE_DRIVER,default=memory"`
}

// DatabaseConfig configures the postgres store.
type DatabaseConfig struct {
	DSN            string        `env:"DATABASE_URL"`
	MaxOpenConns   int           `env:"DATABASE_MAX_OPEN_CONNS,default=20"`
	ConnectTimeout time.Duration `env:"DATABASE_CONNECT_TIMEOUT,default=5s"`
	IdleTimeout    time.Duration `env:"DATABASE_IDLE_TIMEOUT,default=45s"`
	AutoMigrate    bool          `env:"DATABASE_AUTO_MIGRATE,default=true"`
}

// MongoConfig configures the mongo store.
type MongoConfig struct {
	URI            string        `env:"MONGO_URI"`
	Database       string        `env:"MONGO_DATABASE,default=messhall"`
	MaxPoolSize    uint64        `env:"MONGO_MAX_POOL_SIZE,default=50"`
	ConnectTimeout time.Duration `env:"MONGO_CONNECT_TIMEOUT,default=5s"`
	IdleTimeout    time.Duration `env:"MONGO_IDLE_TIMEOUT,default=45s"`
}

// RedisConfig configures the analytics cache. An empty address keeps the
// cache in process.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,default=0"`
}

// AuthConfig configures session tokens.
type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"JWT_TTL,default=24h"`
}

// MealsConfig configures feedback windows.
type MealsConfig struct {
	Timezone    string `env:"MEALS_TIMEZONE,default=Asia/Kolkata"`
	WindowsFile string `env:"MEALS_WINDOWS_FILE"`
}

// Location resolves Timezone.
func (m MealsConfig) Location() (*time.Location, error) {
	return time.LoadLocation(m.Timezone)
}

// UploadsConfig configures object storage.
type UploadsConfig struct {
	Backend         string `env:"UPLOADS_BACKEND,default=memory"`
	Bucket          string `env:"UPLOADS_GCS_BUCKET"`
	CredentialsFile string `env:"UPLOADS_GCS_CREDENTIALS_FILE"`
	PublicBaseURL   string `env:"UPLOADS_PUBLIC_BASE_URL"`
	MaxBytes        int64  `env:"UPLOADS_MAX_BYTES,default=5242880"`
}

// RateLimitConfig bounds request rates per client address.
type RateLimitConfig struct {
	Enabled           bool    `env:"RATE_LIMIT_ENABLED,default=true"`
	RequestsPerSecond float64 `env:"RATE_LIMIT_RPS,default=20"`
	Burst             int     `env:"RATE_LIMIT_BURST,default=40"`
	AuthPerMinute     int     `env:"RATE_LIMIT_AUTH_PER_MINUTE,default=10"`
}

// AnalyticsConfig configures report caching.
type AnalyticsConfig struct {
	CacheTTL time.Duration `env:"ANALYTICS_CACHE_TTL,default=1m"`
}

// HousekeepingConfig schedules background maintenance.
type HousekeepingConfig struct {
	Schedule string `env:"HOUSEKEEPING_SCHEDULE,default=@every 5m"`
}

// Load reads envFile when it exists, then decodes the environment. Variables
// already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.Uploads.Backend = strings.ToLower(strings.TrimSpace(c.Uploads.Backend))
	origins := c.Server.AllowedOrigins[:0]
	for _, o := range c.Server.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.Server.AllowedOrigins = origins
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Database.DSN == "" {
			return errors.New("config: DATABASE_URL is required for the postgres driver")
		}
	case DriverMongo:
		if c.Mongo.URI == "" {
			return errors.New("config: MONGO_URI is required for the mongo driver")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.Store.Driver)
	}

	switch c.Uploads.Backend {
	case UploadsMemory:
	case UploadsGCS:
		if c.Uploads.Bucket == "" {
			return errors.New("config: UPLOADS_GCS_BUCKET is required for the gcs backend")
		}
	default:
		return fmt.Errorf("config: unknown UPLOADS_BACKEND %q", c.Uploads.Backend)
	}

	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("config: JWT_SECRET must be at least 16 bytes")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: SERVER_PORT %d out of range", c.Server.Port)
	}
	if _, err := c.Meals.Location(); err != nil {
		return fmt.Errorf("config: MEALS_TIMEZONE: %w", err)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return errors.New("config: RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}
