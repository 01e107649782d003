package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is not found
var ErrNotFound = errors.New("not found")

// ErrBackendUnavailable is returned when the backend storage is unavailable
var ErrBackendUnavailable = errors.New("backend unavailable")

// Store defines the key-value operations farm persistence relies on.
// MSet must apply all keys or none.
type Store interface {
	// String operations
	Set(ctx context.Context, key string, value []byte, ttl ...time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)

	// Key operations
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, keys ...string) (int64, error)

	// Counter operations
	IncrBy(ctx context.Context, key string, n int64) (int64, error)

	// Multi operations. MGet returns nil for missing keys.
	MGet(ctx context.Context, keys ...string) ([][]byte, error)
	MSet(ctx context.Context, kv map[string][]byte, ttl ...time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Cleanup
	Close() error
}
