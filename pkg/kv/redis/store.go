package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leafsii/leafsii-farm/pkg/kv"
)

// Store is a Redis-backed implementation of the kv.Store interface
type Store struct {
	client *redis.Client
}

// IsConnectionError checks if an error means Redis could not be reached
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	// Don't treat redis.Nil as a connection error (it means "key not found")
	if errors.Is(err, redis.Nil) {
		return false
	}

	// Context cancellation by caller is not a backend failure
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		switch sysErr {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED, syscall.ETIMEDOUT:
			return true
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, connErr := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"network is unreachable",
		"connection closed",
	} {
		if strings.Contains(errStr, connErr) {
			return true
		}
	}
	return false
}

func (s *Store) wrapConnectionError(err error) error {
	if err == nil {
		return nil
	}
	if IsConnectionError(err) {
		return fmt.Errorf("%w: %v", kv.ErrBackendUnavailable, err)
	}
	return err
}

// New creates a new Redis-backed store
func New(redisURL string) (*Store, error) {
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
		return nil, fmt.Errorf("%w: %v", kv.ErrBackendUnavailable, err)
	}

	return &Store{client: client}, nil
}

// Client exposes the underlying client for pub/sub users.
func (s *Store) Client() *redis.Client {
	return s.client
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl ...time.Duration) error {
	var expiration time.Duration
	if len(ttl) > 0 {
		expiration = ttl[0]
	}
	return s.wrapConnectionError(s.client.Set(ctx, key, value, expiration).Err())
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, kv.ErrNotFound
		}
		return nil, s.wrapConnectionError(err)
	}
	return result, nil
}

func (s *Store) Del(ctx context.Context, keys ...string) (int64, error) {
	n, err := s.client.Del(ctx, keys...).Result()
	return n, s.wrapConnectionError(err)
}

func (s *Store) Exists(ctx context.Context, keys ...string) (int64, error) {
	n, err := s.client.Exists(ctx, keys...).Result()
	return n, s.wrapConnectionError(err)
}

func (s *Store) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	v, err := s.client.IncrBy(ctx, key, n).Result()
	return v, s.wrapConnectionError(err)
}

func (s *Store) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	if len(keys) == 0 {
		return [][]byte{}, nil
	}
	result, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, s.wrapConnectionError(err)
	}

	values := make([][]byte, len(result))
	for i, value := range result {
		if str, ok := value.(string); ok {
			values[i] = []byte(str)
		}
		// nil values remain nil (representing missing keys)
	}
	return values, nil
}

// MSet writes every key atomically. With a TTL the keys are written in a
// MULTI/EXEC transaction since MSET has no expiry argument.
func (s *Store) MSet(ctx context.Context, kv map[string][]byte, ttl ...time.Duration) error {
	if len(kv) == 0 {
		return nil
	}

	if len(ttl) > 0 && ttl[0] > 0 {
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for key, value := range kv {
				pipe.Set(ctx, key, value, ttl[0])
			}
			return nil
		})
		return s.wrapConnectionError(err)
	}

	values := make([]interface{}, 0, len(kv)*2)
	for key, value := range kv {
		values = append(values, key, value)
	}
	return s.wrapConnectionError(s.client.MSet(ctx, values...).Err())
}

// Ping checks if Redis is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.wrapConnectionError(s.client.Ping(ctx).Err())
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}
