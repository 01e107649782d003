package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/leafsii/leafsii-farm/pkg/kv"
)

// Store is an in-memory implementation of the kv.Store interface
type Store struct {
	mu          sync.RWMutex
	values      map[string][]byte
	expirations map[string]time.Time

	janitorInterval time.Duration
	janitorStop     chan struct{}
	janitorDone     chan struct{}
}

// New creates a new in-memory store with optional janitor for TTL cleanup
func New(janitorInterval time.Duration) *Store {
	s := &Store{
		values:          make(map[string][]byte),
		expirations:     make(map[string]time.Time),
		janitorInterval: janitorInterval,
		janitorStop:     make(chan struct{}),
		janitorDone:     make(chan struct{}),
	}

	if janitorInterval > 0 {
		go s.janitor()
	} else {
		close(s.janitorDone)
	}

	return s
}

// janitor runs background expiration cleanup
func (s *Store) janitor() {
	defer close(s.janitorDone)
	ticker := time.NewTicker(s.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.janitorStop:
			return
		}
	}
}

// evictExpired removes all expired keys
func (s *Store) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, expiry := range s.expirations {
		if now.After(expiry) {
			delete(s.values, key)
			delete(s.expirations, key)
		}
	}
}

// lookup returns a live value (must hold read lock). Expired keys read as
// missing and are left for the janitor.
func (s *Store) lookup(key string) ([]byte, bool) {
	if expiry, exists := s.expirations[key]; exists && time.Now().After(expiry) {
		return nil, false
	}
	value, exists := s.values[key]
	return value, exists
}

// put stores a copy of value (must hold write lock)
func (s *Store) put(key string, value []byte, ttl time.Duration) {
	s.values[key] = append([]byte(nil), value...)
	if ttl > 0 {
		s.expirations[key] = time.Now().Add(ttl)
	} else {
		delete(s.expirations, key)
	}
}

func firstTTL(ttl []time.Duration) time.Duration {
	if len(ttl) > 0 && ttl[0] > 0 {
		return ttl[0]
	}
	return 0
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl ...time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.put(key, value, firstTTL(ttl))
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.lookup(key)
	if !exists {
		return nil, kv.ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (s *Store) Del(ctx context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for _, key := range keys {
		if _, exists := s.lookup(key); exists {
			deleted++
		}
		delete(s.values, key)
		delete(s.expirations, key)
	}
	return deleted, nil
}

func (s *Store) Exists(ctx context.Context, keys ...string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exists int64
	for _, key := range keys {
		if _, found := s.lookup(key); found {
			exists++
		}
	}
	return exists, nil
}

func (s *Store) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if value, exists := s.lookup(key); exists {
		parsed, err := strconv.ParseInt(string(value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value at %s is not an integer", key)
		}
		current = parsed
	}

	current += n
	s.values[key] = []byte(strconv.FormatInt(current, 10))
	return current, nil
}

// Multi operations

func (s *Store) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([][]byte, len(keys))
	for i, key := range keys {
		if value, exists := s.lookup(key); exists {
			result[i] = append([]byte(nil), value...)
		}
	}
	return result, nil
}

func (s *Store) MSet(ctx context.Context, kv map[string][]byte, ttl ...time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiration := firstTTL(ttl)
	for key, value := range kv {
		s.put(key, value, expiration)
	}
	return nil
}

// Ping always returns nil for the in-memory store (always available)
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close stops the background janitor and cleans up resources
func (s *Store) Close() error {
	if s.janitorInterval > 0 {
		select {
		case <-s.janitorStop:
		default:
			close(s.janitorStop)
		}
		<-s.janitorDone
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.values = make(map[string][]byte)
	s.expirations = make(map[string]time.Time)
	return nil
}
