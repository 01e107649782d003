package redis

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/leafsii/leafsii-farm/pkg/kv"
	"github.com/leafsii/leafsii-farm/pkg/kv/kvtest"
)

var testKeys = []string{
	"test:string", "test:overwrite", "test:del1", "test:del2", "test:del3",
	"test:exists", "test:ttl", "test:counter", "test:notint",
	"test:multi1", "test:multi2", "test:multi3", "test:mttl",
}

func TestRedisStore(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set, skipping Redis tests")
	}

	factory := func(t *testing.T) kv.Store {
		store, err := New(redisURL)
		if err != nil {
			t.Fatalf("Failed to create Redis store: %v", err)
		}

		store.Del(context.Background(), testKeys...)

		return store
	}

	kvtest.RunConformanceTests(t, factory)
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"refused", errors.New("dial tcp 127.0.0.1:6379: connect: connection refused"), true},
		{"other", errors.New("WRONGTYPE Operation against a key"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConnectionError(tt.err); got != tt.want {
				t.Fatalf("IsConnectionError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
