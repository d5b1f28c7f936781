// Package config loads runtime configuration from the environment. A .env file
// in the working directory is read first when present; real environment
// variables take precedence over it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
	// ShutdownTimeout bounds graceful shutdown of the server and workers.
	ShutdownTimeout time.Duration

	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Auth      AuthConfig
	Outbox    OutboxConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// DatabaseConfig selects Postgres. An empty URL selects in-memory stores.
type DatabaseConfig struct {
	URL string
}

// RedisConfig configures the role cache. An empty URL disables caching.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RoleCacheTTL time.Duration
}

// KafkaConfig configures the audit stream. No brokers means the outbox is
// drained to the log.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
	ClientID   string
}

type AuthConfig struct {
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	TokenTTL      time.Duration
}

type OutboxConfig struct {
	Interval  time.Duration
	BatchSize int
}

// RateLimitConfig bounds requests per client IP to the credential endpoints.
type RateLimitConfig struct {
	AuthRequests int
	AuthWindow   time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// Bootstrap holds the admin seed credentials used by cmd/admin_seed.
type Bootstrap struct {
	AdminEmail    string
	AdminPassword string
	AdminName     string
}

const devSigningKey = "dev-secret-key-change-in-production"

// LoadEnv reads .env into the process environment if the file exists.
func LoadEnv() {
	_ = godotenv.Load()
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	LoadEnv()

	cfg := Server{
		Addr:            getEnv("HEALTHTRACK_ADDR", ":8080"),
		ShutdownTimeout: 10 * time.Second,
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:    splitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "healthtrack.audit.compliance"),
			ClientID:   getEnv("KAFKA_CLIENT_ID", "healthtrack"),
		},
		Auth: AuthConfig{
			JWTSigningKey: getEnv("JWT_SIGNING_KEY", devSigningKey),
			JWTIssuer:     getEnv("JWT_ISSUER", "healthtrack"),
			JWTAudience:   getEnv("JWT_AUDIENCE", "healthtrack-api"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	var err error
	if cfg.Auth.TokenTTL, err = getDuration("TOKEN_TTL", time.Hour); err != nil {
		return Server{}, err
	}
	if cfg.Redis.RoleCacheTTL, err = getDuration("ROLE_CACHE_TTL", 5*time.Minute); err != nil {
		return Server{}, err
	}
	if cfg.Outbox.Interval, err = getDuration("OUTBOX_INTERVAL", time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Outbox.BatchSize, err = getInt("OUTBOX_BATCH_SIZE", 100); err != nil {
		return Server{}, err
	}
	if cfg.RateLimit.AuthRequests, err = getInt("RATE_LIMIT_AUTH_REQUESTS", 20); err != nil {
		return Server{}, err
	}
	if cfg.RateLimit.AuthWindow, err = getDuration("RATE_LIMIT_AUTH_WINDOW", time.Minute); err != nil {
		return Server{}, err
	}
	if cfg.RateLimit.AuthRequests <= 0 {
		return Server{}, fmt.Errorf("RATE_LIMIT_AUTH_REQUESTS must be positive")
	}
	if cfg.Outbox.BatchSize <= 0 {
		return Server{}, fmt.Errorf("OUTBOX_BATCH_SIZE must be positive")
	}
	if cfg.Auth.TokenTTL <= 0 {
		return Server{}, fmt.Errorf("TOKEN_TTL must be positive")
	}
	return cfg, nil
}

// UsesDevSigningKey reports whether the built-in development key is active.
func (s Server) UsesDevSigningKey() bool {
	return s.Auth.JWTSigningKey == devSigningKey
}

// BootstrapFromEnv reads the admin seed settings.
func BootstrapFromEnv() (Bootstrap, error) {
	LoadEnv()
	b := Bootstrap{
		AdminEmail:    os.Getenv("BOOTSTRAP_ADMIN_EMAIL"),
		AdminPassword: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
		AdminName:     getEnv("BOOTSTRAP_ADMIN_NAME", "System Administrator"),
	}
	if b.AdminEmail == "" || b.AdminPassword == "" {
		return Bootstrap{}, fmt.Errorf("BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD are required")
	}
	return b, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
