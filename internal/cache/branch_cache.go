// Package cache keeps branch directory lookups out of the ledger critical
// section with a Redis read-through cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chequebook/internal/core"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultBranchTTL = 10 * time.Minute

// BranchSource is the authoritative branch lookup, normally the store.
type BranchSource interface {
	GetBranch(ctx context.Context, id int64) (*core.Branch, error)
}

// BranchCache serves branches from Redis and falls back to the source on a
// miss or on any Redis failure. A nil client disables caching.
type BranchCache struct {
	client *redis.Client
	source BranchSource
	ttl    time.Duration
	logger *zap.Logger
}

type Option func(*BranchCache)

func WithTTL(ttl time.Duration) Option {
	return func(c *BranchCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *BranchCache) {
		if logger != nil {
			c.logger = logger.Named("branch_cache")
		}
	}
}

func NewBranchCache(client *redis.Client, source BranchSource, opts ...Option) *BranchCache {
	c := &BranchCache{
		client: client,
		source: source,
		ttl:    defaultBranchTTL,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewRedisClient connects to addr and pings it.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func branchKey(id int64) string {
	return fmt.Sprintf("chequebook:branch:%d", id)
}

// GetBranch returns the branch, caching the source's answer. Not-found results
// are not cached.
func (c *BranchCache) GetBranch(ctx context.Context, id int64) (*core.Branch, error) {
	if c.client != nil {
		if b, ok := c.get(ctx, id); ok {
			return b, nil
		}
	}

	b, err := c.source.GetBranch(ctx, id)
	if err != nil {
		return nil, err
	}

	if c.client != nil {
		c.set(ctx, b)
	}
	return b, nil
}

// invalidate drops a cached branch after it was changed by an administrator.
func (c *BranchCache) invalidate(ctx context.Context, id int64) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, branchKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate branch %d: %w", id, err)
	}
	return nil
}

func (c *BranchCache) get(ctx context.Context, id int64) (*core.Branch, bool) {
	data, err := c.client.Get(ctx, branchKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.logger.Debug("Cache miss for branch", zap.Int64("branch_id", id))
		return nil, false
	}
	if err != nil {
		c.logger.Warn("Branch cache read failed, using store", zap.Int64("branch_id", id), zap.Error(err))
		return nil, false
	}

	var b core.Branch
	if err := json.Unmarshal(data, &b); err != nil {
		c.logger.Warn("Corrupt branch cache entry", zap.Int64("branch_id", id), zap.Error(err))
		_ = c.client.Del(ctx, branchKey(id))
		return nil, false
	}
	return &b, true
}

func (c *BranchCache) set(ctx context.Context, b *core.Branch) {
	data, err := json.Marshal(b)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, branchKey(b.ID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Branch cache write failed", zap.Int64("branch_id", b.ID), zap.Error(err))
	}
}
