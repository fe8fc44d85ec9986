// Package identitycache caches resolved sign-in identities in Redis so hot
// request paths can skip the session lookup. The cache is best effort: a
// Redis failure degrades to the database, never to a request failure.
package identitycache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jrazmi/taskdeck/sdk/environment"
	"github.com/jrazmi/taskdeck/sdk/logger"
)

const keyPrefix = "identity:"

// Identity is the cached result of authenticating a session.
type Identity struct {
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Options is the exportable cache configuration.
type Options struct {
	Addr     string        `env:"REDIS_ADDR" default:"localhost:6379"`
	Password string        `env:"REDIS_PASSWORD" default:""`
	DB       int           `env:"REDIS_DB" default:"0"`
	TTL      time.Duration `env:"IDENTITY_CACHE_TTL" default:"5m"`
}

type Cache struct {
	log    *logger.Logger
	client *redis.Client
	ttl    time.Duration
}

// NewFromEnv builds a cache from environment variables.
func NewFromEnv(prefix string, log *logger.Logger) (*Cache, error) {
	var cfg Options
	if err := environment.ParseEnvTags(prefix, &cfg); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return New(log, client, cfg.TTL), nil
}

func New(log *logger.Logger, client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		log:    log,
		client: client,
		ttl:    ttl,
	}
}

// Get returns the cached identity for a session, reporting a miss on any
// Redis or decode failure.
func (c *Cache) Get(ctx context.Context, sessionID string) (Identity, bool) {
	data, err := c.client.Get(ctx, keyPrefix+sessionID).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.WarnContext(ctx, "identity cache get failed", "error", err)
		}
		return Identity{}, false
	}

	var identity Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		c.log.WarnContext(ctx, "identity cache decode failed", "error", err)
		return Identity{}, false
	}

	return identity, true
}

// Set stores an identity. The entry expires at the cache TTL or the session
// expiry, whichever comes first.
func (c *Cache) Set(ctx context.Context, identity Identity) {
	data, err := json.Marshal(identity)
	if err != nil {
		c.log.WarnContext(ctx, "identity cache encode failed", "error", err)
		return
	}

	ttl := c.ttl
	if remaining := time.Until(identity.ExpiresAt); remaining > 0 && remaining < ttl {
		ttl = remaining
	}

	if err := c.client.Set(ctx, keyPrefix+identity.SessionID, data, ttl).Err(); err != nil {
		c.log.WarnContext(ctx, "identity cache set failed", "error", err)
	}
}

// Delete drops the cached identity, used on sign-out and revocation.
func (c *Cache) Delete(ctx context.Context, sessionID string) {
	if err := c.client.Del(ctx, keyPrefix+sessionID).Err(); err != nil {
		c.log.WarnContext(ctx, "identity cache delete failed", "error", err)
	}
}

// Close releases the underlying Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
