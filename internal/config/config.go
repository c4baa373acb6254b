package config

import (
	"fmt"
	"time"

	"github.com/Muhadev/celm-backend/internal/auth"
	pkgconfig "github.com/Muhadev/celm-backend/pkg/config"
	"github.com/Muhadev/celm-backend/pkg/database"
	"github.com/Muhadev/celm-backend/pkg/middleware"
)

const (
	defaultJWTSecret    = "change-this-to-a-secure-secret"
	defaultTokenHashKey = "change-this-to-a-secure-hash-key"
	minSecretLength     = 32
)

// Storage backends for accounts and tokens.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Session backends for registration sessions.
const (
	SessionStoreRedis  = "redis"
	SessionStoreMemory = "memory"
)

// Notifier backends.
const (
	NotifierKafka = "kafka"
	NotifierLog   = "log"
)

// Config holds all configuration for the onboarding service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Version     string `env:"SERVICE_VERSION" envDefault:"dev"`

	// HTTP server
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"20s"`

	// Backends
	Store        string `env:"STORE" envDefault:"postgres"`
	SessionStore string `env:"SESSION_STORE" envDefault:"redis"`
	Notifier     string `env:"NOTIFIER" envDefault:"kafka"`

	// PostgreSQL
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"celm"`
	PostgresPass     string `env:"POSTGRES_PASSWORD" envDefault:"celm_secret"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"celm_onboarding"`
	PostgresSSL      string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	PostgresMaxConns int32  `env:"POSTGRES_MAX_CONNS" envDefault:"20"`
	RunMigrations    bool   `env:"RUN_MIGRATIONS" envDefault:"true"`

	SlowQueryThreshold time.Duration `env:"SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Redis
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Tokens
	JWTSecret        string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTIssuer        string        `env:"JWT_ISSUER" envDefault:"celm"`
	JWTAudience      string        `env:"JWT_AUDIENCE" envDefault:"celm-api"`
	JWTAccessExpiry  time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	JWTRefreshExpiry time.Duration `env:"JWT_REFRESH_TOKEN_EXPIRY" envDefault:"168h"`
	TokenHashKey     string        `env:"TOKEN_HASH_KEY" envDefault:"change-this-to-a-secure-hash-key"`
	BcryptCost       int           `env:"BCRYPT_COST" envDefault:"12"`

	// Registration
	SessionTTL       time.Duration `env:"REGISTRATION_SESSION_TTL" envDefault:"2h"`
	PasswordResetTTL time.Duration `env:"PASSWORD_RESET_TTL" envDefault:"15m"`
	JanitorInterval  time.Duration `env:"JANITOR_INTERVAL" envDefault:"10m"`

	// OAuth
	GoogleUserInfoURL string        `env:"GOOGLE_USERINFO_URL" envDefault:"https://openidconnect.googleapis.com/v1/userinfo"`
	OAuthTimeout      time.Duration `env:"OAUTH_TIMEOUT" envDefault:"5s"`

	// Tracing
	TracingEnabled    bool    `env:"TRACING_ENABLED" envDefault:"false"`
	OTLPEndpoint      string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	TracingSampleRate float64 `env:"TRACING_SAMPLE_RATE" envDefault:"0.1"`

	// Rate limiting of credential endpoints, per client IP
	AuthRateLimitRPS   float64 `env:"AUTH_RATE_LIMIT_RPS" envDefault:"2"`
	AuthRateLimitBurst int     `env:"AUTH_RATE_LIMIT_BURST" envDefault:"10"`
	// Peers (CIDR or address) allowed to set X-Forwarded-For. Empty keys on
	// the socket address only.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load onboarding config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	switch c.Store {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}
	switch c.SessionStore {
	case SessionStoreRedis, SessionStoreMemory:
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", SessionStoreRedis, SessionStoreMemory, c.SessionStore)
	}
	switch c.Notifier {
	case NotifierKafka, NotifierLog:
	default:
		return fmt.Errorf("NOTIFIER must be %q or %q, got %q", NotifierKafka, NotifierLog, c.Notifier)
	}

	if c.JWTAccessExpiry <= 0 || c.JWTRefreshExpiry <= c.JWTAccessExpiry {
		return fmt.Errorf("refresh token expiry (%s) must exceed access token expiry (%s)", c.JWTRefreshExpiry, c.JWTAccessExpiry)
	}
	if c.SessionTTL <= 0 || c.PasswordResetTTL <= 0 {
		return fmt.Errorf("REGISTRATION_SESSION_TTL and PASSWORD_RESET_TTL must be positive")
	}
	if _, err := middleware.ParseTrustedProxies(c.TrustedProxies); err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	if pkgconfig.IsDevelopment(c.Environment) {
		return nil
	}

	// Outside development, secrets must be explicit and strong, and
	// in-process backends are refused.
	if err := checkSecret("JWT_SECRET", c.JWTSecret, defaultJWTSecret, c.Environment); err != nil {
		return err
	}
	if err := checkSecret("TOKEN_HASH_KEY", c.TokenHashKey, defaultTokenHashKey, c.Environment); err != nil {
		return err
	}
	if c.Store == StoreMemory || c.SessionStore == SessionStoreMemory {
		return fmt.Errorf("memory backends are not allowed in %q mode", c.Environment)
	}
	if c.Notifier == NotifierLog {
		return fmt.Errorf("the log notifier prints secrets and is not allowed in %q mode", c.Environment)
	}
	return nil
}

func checkSecret(name, value, placeholder, environment string) error {
	if value == placeholder {
		return fmt.Errorf("%s must be explicitly set via environment variable in %q mode", name, environment)
	}
	if len(value) < minSecretLength {
		return fmt.Errorf("%s must be at least %d characters long, got %d", name, minSecretLength, len(value))
	}
	return nil
}

// Postgres returns the connection settings for the account store.
func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:     c.PostgresHost,
		Port:     c.PostgresPort,
		User:     c.PostgresUser,
		Password: c.PostgresPass,
		DBName:   c.PostgresDB,
		SSLMode:  c.PostgresSSL,
		MaxConns: c.PostgresMaxConns,
	}
}

// Redis returns the connection settings for the session store.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// RateLimit returns the throttle applied to credential endpoints.
// TRUSTED_PROXIES is checked by Load.
func (c *Config) RateLimit() middleware.RateLimitConfig {
	proxies, _ := middleware.ParseTrustedProxies(c.TrustedProxies)
	return middleware.RateLimitConfig{
		RPS:            c.AuthRateLimitRPS,
		Burst:          c.AuthRateLimitBurst,
		TrustedProxies: proxies,
	}
}

// JWT returns the token signing settings.
func (c *Config) JWT() auth.JWTConfig {
	return auth.JWTConfig{
		Secret:     c.JWTSecret,
		Issuer:     c.JWTIssuer,
		Audience:   c.JWTAudience,
		AccessTTL:  c.JWTAccessExpiry,
		RefreshTTL: c.JWTRefreshExpiry,
	}
}
