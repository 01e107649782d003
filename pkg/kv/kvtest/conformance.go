// Package kvtest provides conformance tests for kv.Store implementations
package kvtest

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/leafsii/leafsii-farm/pkg/kv"
)

// StoreFactory creates a fresh Store instance for testing
type StoreFactory func(t *testing.T) kv.Store

// RunConformanceTests runs all conformance tests against a Store implementation
func RunConformanceTests(t *testing.T, factory StoreFactory) {
	tests := []struct {
		name string
		test func(t *testing.T, store kv.Store)
	}{
		{"SetGet", testSetGet},
		{"GetNonExistent", testGetNonExistent},
		{"Overwrite", testOverwrite},
		{"Del", testDel},
		{"Exists", testExists},
		{"SetWithTTL", testSetWithTTL},
		{"IncrBy", testIncrBy},
		{"MSetGet", testMSetGet},
		{"MSetWithTTL", testMSetWithTTL},
		{"HealthCheck", testHealthCheck},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			tt.test(t, store)
		})
	}
}

func testSetGet(t *testing.T, store kv.Store) {
	ctx := context.Background()
	key := "test:string"
	value := []byte("hello world")

	if err := store.Set(ctx, key, value); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	result, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if !reflect.DeepEqual(result, value) {
		t.Fatalf("Expected %v, got %v", value, result)
	}
}

func testGetNonExistent(t *testing.T, store kv.Store) {
	ctx := context.Background()

	_, err := store.Get(ctx, "test:nonexistent")
	if !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func testOverwrite(t *testing.T, store kv.Store) {
	ctx := context.Background()
	key := "test:overwrite"

	if err := store.Set(ctx, key, []byte("first")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Set(ctx, key, []byte("second")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	result, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(result) != "second" {
		t.Fatalf("Expected second, got %q", result)
	}
}

func testDel(t *testing.T, store kv.Store) {
	ctx := context.Background()

	store.Set(ctx, "test:del1", []byte("a"))
	store.Set(ctx, "test:del2", []byte("b"))

	deleted, err := store.Del(ctx, "test:del1", "test:del2", "test:del3")
	if err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("Expected 2 deleted, got %d", deleted)
	}

	if _, err := store.Get(ctx, "test:del1"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound after Del, got %v", err)
	}
}

func testExists(t *testing.T, store kv.Store) {
	ctx := context.Background()

	store.Set(ctx, "test:exists", []byte("a"))

	n, err := store.Exists(ctx, "test:exists", "test:missing")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 existing key, got %d", n)
	}
}

func testSetWithTTL(t *testing.T, store kv.Store) {
	ctx := context.Background()
	key := "test:ttl"

	if err := store.Set(ctx, key, []byte("short"), 50*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := store.Get(ctx, key); err != nil {
		t.Fatalf("Expected key before expiry: %v", err)
	}

	time.Sleep(120 * time.Millisecond)

	if _, err := store.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Expected key to expire, got %v", err)
	}
}

func testIncrBy(t *testing.T, store kv.Store) {
	ctx := context.Background()
	key := "test:counter"

	v, err := store.IncrBy(ctx, key, 5)
	if err != nil {
		t.Fatalf("IncrBy failed: %v", err)
	}
	if v != 5 {
		t.Fatalf("Expected 5, got %d", v)
	}

	v, err = store.IncrBy(ctx, key, -2)
	if err != nil {
		t.Fatalf("IncrBy failed: %v", err)
	}
	if v != 3 {
		t.Fatalf("Expected 3, got %d", v)
	}

	store.Set(ctx, "test:notint", []byte("abc"))
	if _, err := store.IncrBy(ctx, "test:notint", 1); err == nil {
		t.Fatalf("Expected error incrementing a non-integer")
	}
}

func testMSetGet(t *testing.T, store kv.Store) {
	ctx := context.Background()

	kvPairs := map[string][]byte{
		"test:multi1": []byte("value1"),
		"test:multi2": []byte("value2"),
		"test:multi3": []byte("value3"),
	}

	if err := store.MSet(ctx, kvPairs); err != nil {
		t.Fatalf("MSet failed: %v", err)
	}

	values, err := store.MGet(ctx, "test:multi1", "test:multi2", "test:nonexistent")
	if err != nil {
		t.Fatalf("MGet failed: %v", err)
	}

	if len(values) != 3 {
		t.Fatalf("Expected 3 values, got %d", len(values))
	}
	if !reflect.DeepEqual(values[0], []byte("value1")) {
		t.Fatalf("Expected value1, got %v", values[0])
	}
	if !reflect.DeepEqual(values[1], []byte("value2")) {
		t.Fatalf("Expected value2, got %v", values[1])
	}
	if values[2] != nil {
		t.Fatalf("Expected nil for non-existent key, got %v", values[2])
	}
}

func testMSetWithTTL(t *testing.T, store kv.Store) {
	ctx := context.Background()

	err := store.MSet(ctx, map[string][]byte{"test:mttl": []byte("v")}, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("MSet failed: %v", err)
	}

	time.Sleep(120 * time.Millisecond)

	values, err := store.MGet(ctx, "test:mttl")
	if err != nil {
		t.Fatalf("MGet failed: %v", err)
	}
	if values[0] != nil {
		t.Fatalf("Expected expired key to read as nil, got %v", values[0])
	}
}

func testHealthCheck(t *testing.T, store kv.Store) {
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed for healthy store: %v", err)
	}
}
