package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leafsii/leafsii-farm/internal/farm"
	"github.com/leafsii/leafsii-farm/internal/service"
	"github.com/leafsii/leafsii-farm/internal/store"
)

type MockStatsSource struct {
	mock.Mock
}

func (m *MockStatsSource) AllPoolStats(ctx context.Context) ([]*service.PoolStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*service.PoolStats), args.Error(1)
}

func sampleStats() []*service.PoolStats {
	pool := farm.NewPool(1, "STK", "pool:1", 100, 1, 1_700_000_000)
	pool.RawStaked = uint256.NewInt(500)
	pool.WeightedStaked = uint256.NewInt(500)
	return []*service.PoolStats{{
		Pool:                 pool,
		At:                   1_700_000_010,
		ProjectedAccumulator: uint256.NewInt(42),
		EmissionPerSecond:    decimal.NewFromInt(10),
		APR:                  decimal.RequireFromString("0.5"),
		ShareOfEmission:      decimal.NewFromInt(1),
	}}
}

func TestPublishOnceCachesAndPublishes(t *testing.T) {
	logger := zap.NewNop().Sugar()
	cache := store.NewMemoryCache(logger, nil)
	source := &MockStatsSource{}
	source.On("AllPoolStats", mock.Anything).Return(sampleStats(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := cache.Subscribe(ctx, store.ChannelPoolSnapshot)

	p := NewSnapshotPublisher(source, cache, logger, SnapshotPublisherConfig{Interval: time.Second})
	require.NoError(t, p.PublishOnce(ctx))

	var cached []PoolSnapshot
	require.NoError(t, cache.Get(ctx, store.KeyPoolSnapshot, &cached))
	require.Len(t, cached, 1)
	assert.Equal(t, "STK", cached[0].Asset)
	assert.Equal(t, "500", cached[0].RawStaked)
	assert.Equal(t, "42", cached[0].ProjectedAccumulator)
	assert.Equal(t, "0.5", cached[0].APR)

	select {
	case msg := <-sub.Channel():
		var published []PoolSnapshot
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &published))
		assert.Equal(t, cached, published)
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot was not published")
	}
	source.AssertExpectations(t)
}

func TestPublishOnceSkipsUninitializedFarm(t *testing.T) {
	logger := zap.NewNop().Sugar()
	cache := store.NewMemoryCache(logger, nil)
	source := &MockStatsSource{}
	source.On("AllPoolStats", mock.Anything).Return(nil, farm.ErrNotInitialized)

	p := NewSnapshotPublisher(source, cache, logger, SnapshotPublisherConfig{Interval: time.Second})
	require.NoError(t, p.PublishOnce(context.Background()))

	var cached []PoolSnapshot
	assert.ErrorIs(t, cache.Get(context.Background(), store.KeyPoolSnapshot, &cached), store.ErrCacheMiss)
}

func TestPublishOnceReportsSourceErrors(t *testing.T) {
	logger := zap.NewNop().Sugar()
	source := &MockStatsSource{}
	source.On("AllPoolStats", mock.Anything).Return(nil, errors.New("kv down"))

	p := NewSnapshotPublisher(source, store.NewMemoryCache(logger, nil), logger, SnapshotPublisherConfig{Interval: time.Second})
	assert.Error(t, p.PublishOnce(context.Background()))
}

func TestStartStopsWithContext(t *testing.T) {
	logger := zap.NewNop().Sugar()
	source := &MockStatsSource{}
	source.On("AllPoolStats", mock.Anything).Return(sampleStats(), nil)

	p := NewSnapshotPublisher(source, store.NewMemoryCache(logger, nil), logger, SnapshotPublisherConfig{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Start(ctx), context.DeadlineExceeded)
	assert.GreaterOrEqual(t, len(source.Calls), 2)
}
