package service

import (
	"context"
	"errors"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/leafsii/leafsii-farm/internal/calc"
	"github.com/leafsii/leafsii-farm/internal/farm"
	"github.com/leafsii/leafsii-farm/internal/ledger"
	"github.com/leafsii/leafsii-farm/internal/store"
)

// Reads take the shared lock so they never observe half of a commit sequence
// issued by this process.

func (s *Service) State(ctx context.Context) (*farm.GlobalState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadState(ctx, s.state)
}

func (s *Service) Tiers(ctx context.Context) (*farm.LockTierTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadTiers(ctx, s.state)
}

// Pools lists every pool, closed ones included.
func (s *Service) Pools(ctx context.Context) ([]*farm.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, err := loadState(ctx, s.state)
	if err != nil {
		return nil, err
	}
	return s.state.LoadPools(ctx, state.NextPoolID)
}

func (s *Service) Pool(ctx context.Context, id farm.PoolID) (*farm.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadPool(ctx, s.state, id)
}

// PositionView is a position with the reward it could harvest right now.
type PositionView struct {
	*farm.Position
	Pending *uint256.Int
	At      int64
}

// Position previews the wallet's position without settling anything.
func (s *Service) Position(ctx context.Context, id farm.PoolID, wallet farm.Address) (*PositionView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preview(ctx, id, wallet, s.clock.Now())
}

func (s *Service) preview(ctx context.Context, id farm.PoolID, wallet farm.Address, now int64) (*PositionView, error) {
	state, err := loadState(ctx, s.state)
	if err != nil {
		return nil, err
	}
	pool, err := loadPool(ctx, s.state, id)
	if err != nil {
		return nil, err
	}
	pos, err := loadPosition(ctx, s.state, id, wallet)
	if err != nil {
		return nil, err
	}
	pending, err := pos.PendingAt(pool, state, now)
	if err != nil {
		return nil, err
	}
	return &PositionView{Position: pos, Pending: pending, At: now}, nil
}

// WalletPositions previews every position the wallet holds.
func (s *Service) WalletPositions(ctx context.Context, wallet farm.Address) ([]*PositionView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.state.WalletPools(ctx, wallet)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	views := make([]*PositionView, 0, len(ids))
	for _, id := range ids {
		v, err := s.preview(ctx, id, wallet, now)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *Service) Metadata(ctx context.Context, wallet farm.Address) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, err := s.state.Metadata(ctx, wallet)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	return meta, err
}

// Balance returns the wallet's balance of asset; an unopened vault reads as zero.
func (s *Service) Balance(ctx context.Context, wallet farm.Address, asset string) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bal, err := s.ledger.Balance(ctx, ledger.WalletVault(wallet, asset))
	if errors.Is(err, ledger.ErrUnknownVault) {
		return calc.Zero(), nil
	}
	return bal, err
}

func (s *Service) RewardVaultBalance(ctx context.Context) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.Balance(ctx, ledger.RewardVault)
}

// PoolStats describes a pool as of At, with the accumulator projected to
// that time.
type PoolStats struct {
	Pool                 *farm.Pool
	At                   int64
	ProjectedAccumulator *uint256.Int
	EmissionPerSecond    decimal.Decimal
	APR                  decimal.Decimal
	ShareOfEmission      decimal.Decimal
}

func (s *Service) PoolStats(ctx context.Context, id farm.PoolID) (*PoolStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, err := loadState(ctx, s.state)
	if err != nil {
		return nil, err
	}
	pool, err := loadPool(ctx, s.state, id)
	if err != nil {
		return nil, err
	}
	return poolStats(state, pool, s.clock.Now())
}

// AllPoolStats returns stats for every active pool. Concurrent callers share
// one computation; the result must be treated as read-only.
func (s *Service) AllPoolStats(ctx context.Context) ([]*PoolStats, error) {
	// the computation is shared, so one caller's cancellation must not fail
	// the others
	v, err, _ := s.sf.Do("all_pool_stats", func() (interface{}, error) {
		return s.allPoolStats(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	return v.([]*PoolStats), nil
}

func (s *Service) allPoolStats(ctx context.Context) ([]*PoolStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, err := loadState(ctx, s.state)
	if err != nil {
		return nil, err
	}
	active, err := activeSet(ctx, s.state, state)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	out := make([]*PoolStats, 0, len(active))
	for _, p := range active {
		st, err := poolStats(state, p, now)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func poolStats(state *farm.GlobalState, pool *farm.Pool, now int64) (*PoolStats, error) {
	acc, err := pool.PreviewAccumulator(state, now)
	if err != nil {
		return nil, err
	}
	stats := &PoolStats{
		Pool:                 pool,
		At:                   now,
		ProjectedAccumulator: acc,
		EmissionPerSecond:    decimal.Zero,
		APR:                  decimal.Zero,
		ShareOfEmission:      decimal.Zero,
	}
	if pool.Closed || state.TotalWeight == 0 {
		return stats, nil
	}
	stats.EmissionPerSecond = calc.PoolEmissionPerSecond(state.EmissionRate, pool.Weight, state.TotalWeight)
	stats.ShareOfEmission = calc.DecimalFromUint64(pool.Weight).Div(calc.DecimalFromUint64(state.TotalWeight))
	stats.APR = calc.CalculateAPR(stats.EmissionPerSecond, calc.ToDecimal(pool.RawStaked, 0))
	return stats, nil
}
