package memory

import (
	"context"
	"testing"
	"time"

	"github.com/leafsii/leafsii-farm/pkg/kv"
	"github.com/leafsii/leafsii-farm/pkg/kv/kvtest"
)

func TestMemoryStore(t *testing.T) {
	factory := func(t *testing.T) kv.Store {
		return New(0) // Disable janitor for deterministic tests
	}

	kvtest.RunConformanceTests(t, factory)
}

func TestMemoryStoreWithJanitor(t *testing.T) {
	store := New(10 * time.Millisecond)
	defer store.Close()

	ctx := context.Background()
	key := "test:janitor"

	if err := store.Set(ctx, key, []byte("test"), 20*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	store.mu.RLock()
	_, present := store.values[key]
	store.mu.RUnlock()
	if present {
		t.Fatalf("Expected key to be evicted by janitor")
	}
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	store := New(0)
	ctx := context.Background()

	value := []byte("abc")
	store.Set(ctx, "test:copy", value)
	value[0] = 'x'

	got, err := store.Get(ctx, "test:copy")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "abc" {
		t.Fatalf("Expected stored value to be isolated from caller, got %q", got)
	}
}

func TestMemoryStoreCloseTwice(t *testing.T) {
	store := New(10 * time.Millisecond)
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
