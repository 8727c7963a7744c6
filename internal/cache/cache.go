// Package cache provides an optional Redis-backed key/value cache.
//
// Graceful fallback: if Redis is unavailable, operations return zero values
// instead of failing the command that uses them.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

// Key prefixes.
const (
	KeySession = "nao:session:"
	KeyCache   = "nao:cache:"
)

// Cache is the subset of key/value operations nao needs.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration) bool
	Del(ctx context.Context, key string) bool
	Available() bool
}

// Config holds Redis connection settings.
type Config struct {
	URL      string // redis://host:port
	Password string
	DB       int
}

// ErrNotConfigured is returned by Connect when no URL is set.
var ErrNotConfigured = errors.New("redis url not configured")

// Redis is a Cache backed by a go-redis client.
type Redis struct {
	client *redis.Client
	logger *log.Logger
}

// Connect dials Redis and verifies the connection with PING.
func Connect(ctx context.Context, cfg Config, logger *log.Logger) (*Redis, error) {
	if cfg.URL == "" {
		return nil, ErrNotConfigured
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	opts.MaxRetries = 1

	c := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	logger.Debug("redis connected", "addr", opts.Addr, "db", opts.DB)
	return &Redis{client: c, logger: logger}, nil
}

// Close closes the connection.
func (r *Redis) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

// Available reports whether the client is usable.
func (r *Redis) Available() bool { return r != nil && r.client != nil }

// Get reads a string value.
func (r *Redis) Get(ctx context.Context, key string) (string, bool) {
	if !r.Available() {
		return "", false
	}
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("redis get failed", "key", key, "err", err)
		}
		return "", false
	}
	return val, true
}

// Set writes a string value with TTL. Returns false on failure.
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) bool {
	if !r.Available() {
		return false
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.logger.Warn("redis set failed", "key", key, "err", err)
		return false
	}
	return true
}

// Del deletes a key. Returns false on failure.
func (r *Redis) Del(ctx context.Context, key string) bool {
	if !r.Available() {
		return false
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logger.Warn("redis del failed", "key", key, "err", err)
		return false
	}
	return true
}

// Nop is a Cache that stores nothing.
type Nop struct{}

func (Nop) Get(context.Context, string) (string, bool)              { return "", false }
func (Nop) Set(context.Context, string, string, time.Duration) bool { return false }
func (Nop) Del(context.Context, string) bool                        { return false }
func (Nop) Available() bool                                         { return false }

// GetJSON reads a JSON value into out. Returns false if not found or invalid.
func GetJSON(ctx context.Context, c Cache, key string, out any) bool {
	raw, ok := c.Get(ctx, key)
	if !ok || raw == "" {
		return false
	}
	return json.Unmarshal([]byte(raw), out) == nil
}

// SetJSON writes a JSON-serialized value with TTL.
func SetJSON(ctx context.Context, c Cache, key string, value any, ttl time.Duration) bool {
	data, err := json.Marshal(value)
	if err != nil {
		return false
	}
	return c.Set(ctx, key, string(data), ttl)
}

// SessionKey returns the cache key for a chat session.
func SessionKey(id string) string { return KeySession + id }
