// Package rediscache keeps the per-user advice cache in Redis so several API
// instances share one view of it.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"lg/nutrition-advice-api/internal/advice"
	"lg/nutrition-advice-api/internal/platform/logger"
)

const keyPrefix = "advice:cache:"

type Cache struct {
	rdb *goredis.Client
	ttl time.Duration
	log *logger.Logger
}

var _ advice.CacheStore = (*Cache)(nil)

// New connects to addr and pings it. A zero ttl keeps entries until they are
// invalidated.
func New(addr string, ttl time.Duration, log *logger.Logger) (*Cache, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	if log == nil {
		log = logger.Nop()
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Cache{rdb: rdb, ttl: ttl, log: log.With("service", "RedisAdviceCache")}, nil
}

func (c *Cache) Close() error { return c.rdb.Close() }

func key(userID int) string { return keyPrefix + strconv.Itoa(userID) }

func (c *Cache) Get(ctx context.Context, userID int) (*advice.CacheEntry, error) {
	raw, err := c.rdb.Get(ctx, key(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e advice.CacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode cached result: %w", err)
	}
	return &e, nil
}

func (c *Cache) Put(ctx context.Context, e advice.CacheEntry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, key(e.UserID), raw, c.ttl).Err(); err != nil {
		return err
	}
	c.log.Debug("advice cache stored", "user_id", e.UserID, "bytes", len(raw))
	return nil
}

func (c *Cache) Delete(ctx context.Context, userID int) error {
	return c.rdb.Del(ctx, key(userID)).Err()
}
