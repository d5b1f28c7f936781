// Package rolecache is a Redis cache-aside in front of the role store for
// read-only role lookups. Role assignments never change, so entries expire
// only to bound memory. Authorization decisions must not read through it.
package rolecache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	id "healthtrack/pkg/domain"
)

const keyPrefix = "healthtrack:role:"

type RoleSource interface {
	RoleOf(ctx context.Context, principalID id.PrincipalID) (id.Role, error)
}

type Cache struct {
	source RoleSource
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

// New wraps source. A nil client disables caching.
func New(source RoleSource, client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{source: source, client: client, ttl: ttl, logger: logger}
}

// RoleOf serves from Redis and falls back to the source on a miss or a cache
// error. Lookup failures of the source are never cached.
func (c *Cache) RoleOf(ctx context.Context, principalID id.PrincipalID) (id.Role, error) {
	if c.client == nil {
		return c.source.RoleOf(ctx, principalID)
	}

	key := keyPrefix + principalID.String()
	raw, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if role, perr := id.ParseRole(raw); perr == nil {
			return role, nil
		}
		c.logger.WarnContext(ctx, "discarding invalid cached role", "principal_id", principalID)
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "role cache read failed", "error", err)
	}

	role, err := c.source.RoleOf(ctx, principalID)
	if err != nil {
		return "", err
	}
	if err := c.client.Set(ctx, key, string(role), c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "role cache write failed", "error", err)
	}
	return role, nil
}
