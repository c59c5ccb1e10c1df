package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"passport/internal/config"
	"passport/internal/storage"
)

// tag sets are prefixed so they never collide with cached values
const tagPrefix = "tag:"

// NewClient creates new instance of redis client
func NewClient(conf config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(conf.Host, strconv.Itoa(conf.Port)),
		Password: conf.Password,
		DB:       conf.DB,
	})
}

// CacheWrapper using redis provides fast access to important and reusing data.
// Cached values can be grouped by tags and invalidated together.
type CacheWrapper struct {
	rdb     *redis.Client
	ttl     time.Duration
	enabled bool
}

// NewCacheWrapper wraps rdb; a disabled wrapper misses every Get and ignores every Set
func NewCacheWrapper(rdb *redis.Client, ttl time.Duration, enabled bool) *CacheWrapper {
	return &CacheWrapper{rdb: rdb, ttl: ttl, enabled: enabled}
}

// Get decodes cached value at key into dst
func (c *CacheWrapper) Get(ctx context.Context, key string, dst any) error {
	if !c.enabled {
		return storage.InfoCacheDisabled
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return storage.ErrKeyNotFound
		}
		return err
	}
	return json.Unmarshal(data, dst)
}

// SetResult lets tags be chained onto a Set
type SetResult struct {
	c   *CacheWrapper
	ctx context.Context
	key string
	err error
}

// Set caches value under key and registers it in every tag
func (c *CacheWrapper) Set(ctx context.Context, key string, value any, tags ...string) *SetResult {
	res := &SetResult{c: c, ctx: ctx, key: key}
	if !c.enabled {
		res.err = storage.InfoCacheDisabled
		return res
	}
	data, err := json.Marshal(value)
	if err != nil {
		res.err = fmt.Errorf("failed to marshal cache value: %w", err)
		return res
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		res.err = err
		return res
	}
	for _, tag := range tags {
		res.AddTag(tag)
	}
	return res
}

// AddTag registers the key in tag
func (r *SetResult) AddTag(tag string) *SetResult {
	if r.err != nil {
		return r
	}
	tagKey := tagPrefix + tag
	pipe := r.c.rdb.TxPipeline()
	pipe.SAdd(r.ctx, tagKey, r.key)
	pipe.Expire(r.ctx, tagKey, r.c.ttl)
	_, r.err = pipe.Exec(r.ctx)
	return r
}

func (r *SetResult) Err() error {
	return r.err
}

// Invalidate removes cached keys
func (c *CacheWrapper) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// InvalidateByTag removes every key registered in tag
func (c *CacheWrapper) InvalidateByTag(ctx context.Context, tag string) error {
	tagKey := tagPrefix + tag
	keys, err := c.rdb.SMembers(ctx, tagKey).Result()
	if err != nil {
		return err
	}
	return c.rdb.Del(ctx, append(keys, tagKey)...).Err()
}

// Ping reports whether redis is reachable
func (c *CacheWrapper) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
