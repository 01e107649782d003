package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/leafsii/leafsii-farm/internal/metrics"
	"github.com/leafsii/leafsii-farm/pkg/kv"
	memkv "github.com/leafsii/leafsii-farm/pkg/kv/memory"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache holds derived, rebuildable data (pool snapshots) and carries the
// event fan-out. When Redis is unreachable it degrades to an in-process
// store and hub, which is fine for data the snapshot job rewrites anyway.
type Cache struct {
	client    *redis.Client
	kvStore   kv.Store
	pubsubHub *PubSubHub
	logger    *zap.SugaredLogger
	metrics   *metrics.Metrics
}

func NewCache(redisURL string, logger *zap.SugaredLogger, metrics *metrics.Metrics) (*Cache, error) {
	if redisURL == "" {
		logger.Infow("No Redis URL configured, cache runs in-memory")
		return NewMemoryCache(logger, metrics), nil
	}

	if !strings.Contains(redisURL, "://") {
		redisURL = "redis://" + redisURL
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		logger.Warnw("Redis unreachable, falling back to in-memory cache", "url", opt.Addr, "error", err)
		return NewMemoryCache(logger, metrics), nil
	}

	logger.Infow("Cache connected to Redis", "addr", opt.Addr)
	return &Cache{
		client:  client,
		logger:  logger,
		metrics: metrics,
	}, nil
}

func NewMemoryCache(logger *zap.SugaredLogger, metrics *metrics.Metrics) *Cache {
	return &Cache{
		kvStore:   memkv.New(time.Minute),
		pubsubHub: NewPubSubHub(),
		logger:    logger,
		metrics:   metrics,
	}
}

func (c *Cache) IsInMemoryMode() bool {
	return c.client == nil
}

func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	var data []byte
	var err error

	if c.client != nil {
		data, err = c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			err = ErrCacheMiss
		}
	} else {
		data, err = c.kvStore.Get(ctx, key)
		if errors.Is(err, kv.ErrNotFound) {
			err = ErrCacheMiss
		}
	}

	if errors.Is(err, ErrCacheMiss) {
		c.metrics.RecordCacheMiss(ctx, key)
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}

	c.metrics.RecordCacheHit(ctx, key)
	return json.Unmarshal(data, dest)
}

func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c.client != nil {
		return c.client.Set(ctx, key, data, ttl).Err()
	}
	return c.kvStore.Set(ctx, key, data, ttl)
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if c.client != nil {
		return c.client.Del(ctx, keys...).Err()
	}
	_, err := c.kvStore.Del(ctx, keys...)
	return err
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	var n int64
	var err error
	if c.client != nil {
		n, err = c.client.Exists(ctx, key).Result()
	} else {
		n, err = c.kvStore.Exists(ctx, key)
	}
	return n > 0, err
}

// Publish sends message as JSON, or as-is when it is already a string.
func (c *Cache) Publish(ctx context.Context, channel string, message interface{}) error {
	var payload string
	switch m := message.(type) {
	case string:
		payload = m
	case []byte:
		payload = string(m)
	default:
		data, err := json.Marshal(message)
		if err != nil {
			return err
		}
		payload = string(data)
	}

	if c.client != nil {
		return c.client.Publish(ctx, channel, payload).Err()
	}
	c.pubsubHub.Publish(channel, payload)
	return nil
}

// Subscribe listens on channels until ctx ends or the subscription is closed.
func (c *Cache) Subscribe(ctx context.Context, channels ...string) Subscription {
	if c.client != nil {
		return newRedisSubscription(ctx, c.client.Subscribe(ctx, channels...))
	}
	return c.pubsubHub.Subscribe(ctx, channels...)
}

func (c *Cache) Ping(ctx context.Context) error {
	if c.client != nil {
		return c.client.Ping(ctx).Err()
	}
	return c.kvStore.Ping(ctx)
}

func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return c.kvStore.Close()
}
