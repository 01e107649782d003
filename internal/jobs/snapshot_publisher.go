package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/leafsii/leafsii-farm/internal/farm"
	"github.com/leafsii/leafsii-farm/internal/service"
	"github.com/leafsii/leafsii-farm/internal/store"
)

// PoolStatsSource is the read path the publisher samples.
type PoolStatsSource interface {
	AllPoolStats(ctx context.Context) ([]*service.PoolStats, error)
}

// PoolSnapshot is the cached and published form of one pool's stats.
type PoolSnapshot struct {
	PoolID               uint64 `json:"pool_id"`
	Asset                string `json:"asset"`
	Weight               uint64 `json:"weight"`
	AmountMultiplier     uint64 `json:"amount_multiplier"`
	RawStaked            string `json:"raw_staked"`
	WeightedStaked       string `json:"weighted_staked"`
	UserCount            uint64 `json:"user_count"`
	ProjectedAccumulator string `json:"projected_acc_reward_per_unit"`
	EmissionPerSecond    string `json:"emission_per_second"`
	APR                  string `json:"apr"`
	ShareOfEmission      string `json:"share_of_emission"`
	AsOf                 int64  `json:"asOf"`
}

type SnapshotPublisherConfig struct {
	Interval time.Duration
	// TTL of the cached snapshot; defaults to three intervals.
	TTL time.Duration
}

// SnapshotPublisher periodically caches the active pools' stats and
// publishes them for live subscribers.
type SnapshotPublisher struct {
	source PoolStatsSource
	cache  *store.Cache
	logger *zap.SugaredLogger
	config SnapshotPublisherConfig
}

func NewSnapshotPublisher(source PoolStatsSource, cache *store.Cache, logger *zap.SugaredLogger, config SnapshotPublisherConfig) *SnapshotPublisher {
	if config.TTL <= 0 {
		config.TTL = 3 * config.Interval
	}
	return &SnapshotPublisher{
		source: source,
		cache:  cache,
		logger: logger,
		config: config,
	}
}

// Start publishes immediately and then on every tick until ctx ends.
func (p *SnapshotPublisher) Start(ctx context.Context) error {
	p.logger.Infow("Starting pool snapshot publisher", "interval", p.config.Interval)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		if err := p.PublishOnce(ctx); err != nil {
			p.logger.Warnw("Pool snapshot failed", "error", err)
		}

		select {
		case <-ctx.Done():
			p.logger.Infow("Pool snapshot publisher stopping due to context cancellation")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PublishOnce takes one snapshot. An uninitialized farm publishes nothing.
func (p *SnapshotPublisher) PublishOnce(ctx context.Context) error {
	stats, err := p.source.AllPoolStats(ctx)
	if errors.Is(err, farm.ErrNotInitialized) {
		p.logger.Debugw("Farm not initialized, skipping pool snapshot")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load pool stats: %w", err)
	}

	snapshot := make([]PoolSnapshot, len(stats))
	for i, s := range stats {
		snapshot[i] = toSnapshot(s)
	}

	if err := p.cache.Set(ctx, store.KeyPoolSnapshot, snapshot, p.config.TTL); err != nil {
		return fmt.Errorf("cache pool snapshot: %w", err)
	}
	if err := p.cache.Publish(ctx, store.ChannelPoolSnapshot, snapshot); err != nil {
		return fmt.Errorf("publish pool snapshot: %w", err)
	}

	p.logger.Debugw("Published pool snapshot", "pools", len(snapshot))
	return nil
}

func toSnapshot(s *service.PoolStats) PoolSnapshot {
	return PoolSnapshot{
		PoolID:               uint64(s.Pool.ID),
		Asset:                s.Pool.Asset,
		Weight:               s.Pool.Weight,
		AmountMultiplier:     s.Pool.AmountMultiplier,
		RawStaked:            s.Pool.RawStaked.Dec(),
		WeightedStaked:       s.Pool.WeightedStaked.Dec(),
		UserCount:            s.Pool.UserCount,
		ProjectedAccumulator: s.ProjectedAccumulator.Dec(),
		EmissionPerSecond:    s.EmissionPerSecond.String(),
		APR:                  s.APR.String(),
		ShareOfEmission:      s.ShareOfEmission.String(),
		AsOf:                 s.At,
	}
}
