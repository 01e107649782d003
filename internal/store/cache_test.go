package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryCache(t *testing.T) {
	cache, err := NewCache("", zap.NewNop().Sugar(), nil)
	require.NoError(t, err)
	defer cache.Close()
	require.True(t, cache.IsInMemoryMode())

	ctx := context.Background()
	snapshot := map[string]string{"pool": "1", "apr": "12.5"}
	require.NoError(t, cache.Set(ctx, KeyPoolSnapshot, snapshot, time.Minute))

	var got map[string]string
	require.NoError(t, cache.Get(ctx, KeyPoolSnapshot, &got))
	assert.Equal(t, snapshot, got)

	ok, err := cache.Exists(ctx, KeyPoolSnapshot)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, cache.Delete(ctx, KeyPoolSnapshot))
	assert.ErrorIs(t, cache.Get(ctx, KeyPoolSnapshot, &got), ErrCacheMiss)
}

func TestUnreachableRedisFallsBackToMemory(t *testing.T) {
	cache, err := NewCache("127.0.0.1:1", zap.NewNop().Sugar(), nil)
	require.NoError(t, err)
	defer cache.Close()
	assert.True(t, cache.IsInMemoryMode())
}

func TestInMemoryPubSub(t *testing.T) {
	cache := NewMemoryCache(zap.NewNop().Sugar(), nil)
	defer cache.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel := EventChannel("USER_STAKED")
	sub := cache.Subscribe(ctx, channel)
	defer sub.Close()

	require.NoError(t, cache.Publish(ctx, channel, map[string]string{"wallet": "0xb0b"}))
	require.NoError(t, cache.Publish(ctx, "farm:events:OTHER", "ignored"))

	select {
	case msg := <-sub.Channel():
		require.NotNil(t, msg)
		assert.Equal(t, channel, msg.Channel)
		var payload map[string]string
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &payload))
		assert.Equal(t, "0xb0b", payload["wallet"])
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for pubsub message")
	}

	select {
	case msg := <-sub.Channel():
		t.Fatalf("unexpected message on %s", msg.Channel)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	hub := NewPubSubHub()
	ctx, cancel := context.WithCancel(context.Background())
	sub := hub.Subscribe(ctx, "c")
	cancel()

	select {
	case _, ok := <-sub.Channel():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
	assert.Equal(t, 0, hub.Publish("c", "x"))
	assert.NoError(t, sub.Close())
}
