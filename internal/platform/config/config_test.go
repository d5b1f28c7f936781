package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"HEALTHTRACK_ADDR", "DATABASE_URL", "REDIS_URL", "KAFKA_BROKERS", "TOKEN_TTL", "OUTBOX_BATCH_SIZE", "JWT_SIGNING_KEY", "RATE_LIMIT_AUTH_REQUESTS", "RATE_LIMIT_AUTH_WINDOW"} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Empty(t, cfg.Database.URL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 20, cfg.RateLimit.AuthRequests)
	assert.Equal(t, time.Minute, cfg.RateLimit.AuthWindow)
	assert.True(t, cfg.UsesDevSigningKey())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("HEALTHTRACK_ADDR", ":9090")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,,")
	t.Setenv("TOKEN_TTL", "15m")
	t.Setenv("ROLE_CACHE_TTL", "30s")
	t.Setenv("OUTBOX_BATCH_SIZE", "25")
	t.Setenv("JWT_SIGNING_KEY", "production-key")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 15*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, 30*time.Second, cfg.Redis.RoleCacheTTL)
	assert.Equal(t, 25, cfg.Outbox.BatchSize)
	assert.False(t, cfg.UsesDevSigningKey())
}

func TestFromEnv_InvalidValues(t *testing.T) {
	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("TOKEN_TTL", "soon")
		_, err := FromEnv()
		assert.Error(t, err)
	})
	t.Run("non-positive auth rate limit", func(t *testing.T) {
		t.Setenv("RATE_LIMIT_AUTH_REQUESTS", "0")
		_, err := FromEnv()
		assert.Error(t, err)
	})
	t.Run("non-positive batch", func(t *testing.T) {
		t.Setenv("OUTBOX_BATCH_SIZE", "0")
		_, err := FromEnv()
		assert.Error(t, err)
	})
}

func TestBootstrapFromEnv(t *testing.T) {
	t.Setenv("BOOTSTRAP_ADMIN_EMAIL", "")
	t.Setenv("BOOTSTRAP_ADMIN_PASSWORD", "")
	_, err := BootstrapFromEnv()
	assert.Error(t, err)

	t.Setenv("BOOTSTRAP_ADMIN_EMAIL", "root@example.com")
	t.Setenv("BOOTSTRAP_ADMIN_PASSWORD", "s3cret-passphrase")
	b, err := BootstrapFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "root@example.com", b.AdminEmail)
}
