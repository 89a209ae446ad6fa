// Package redis provides the optional Redis-backed view cache and seed lock.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tile-leaderboard/internal/config"
	"github.com/tile-leaderboard/internal/domain"
)

const (
	leaderboardViewKey = "tiles:view:leaderboard"
	seedLockKey        = "tiles:lock:seed"
)

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

// ViewCache stores rendered leaderboard views as JSON with a TTL
type ViewCache struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

// NewViewCache creates a view cache on an existing client
func NewViewCache(client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *ViewCache {
	return &ViewCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// GetLeaderboard returns the cached view; ok is false on a miss
func (c *ViewCache) GetLeaderboard(ctx context.Context) (*domain.LeaderboardView, bool, error) {
	data, err := c.client.Get(ctx, leaderboardViewKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("getting cached leaderboard: %w", err)
	}

	var view domain.LeaderboardView
	if err := json.Unmarshal(data, &view); err != nil {
		// A corrupt entry is treated as a miss and overwritten later.
		c.logger.Warn("discarding unreadable cached leaderboard", "error", err)
		return nil, false, nil
	}
	return &view, true, nil
}

// SetLeaderboard stores the view until the TTL elapses
func (c *ViewCache) SetLeaderboard(ctx context.Context, view *domain.LeaderboardView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("marshaling leaderboard: %w", err)
	}
	if err := c.client.Set(ctx, leaderboardViewKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("caching leaderboard: %w", err)
	}
	return nil
}

// Invalidate drops every cached view
func (c *ViewCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, leaderboardViewKey).Err(); err != nil {
		return fmt.Errorf("invalidating leaderboard cache: %w", err)
	}
	return nil
}
