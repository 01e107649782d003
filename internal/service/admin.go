package service

import (
	"context"
	"errors"

	"github.com/leafsii/leafsii-farm/internal/farm"
	"github.com/leafsii/leafsii-farm/internal/ledger"
	"github.com/leafsii/leafsii-farm/internal/store"
)

// Initialize creates the farm singleton with caller as authority and opens
// the reward vault.
func (s *Service) Initialize(ctx context.Context, caller farm.Address, emissionRate uint64) (*farm.GlobalState, error) {
	var state *farm.GlobalState
	err := s.run(ctx, "create_global_state", func(o *op) error {
		if _, err := s.state.LoadState(ctx); err == nil {
			return ErrAlreadyInitialized
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := o.tx.Open(ledger.RewardVault); err != nil {
			return err
		}
		state = o.engine.CreateGlobalState(caller, emissionRate, ledger.RewardVault, o.now)
		o.batch.PutState(state)
		return nil
	})
	return state, err
}

func (s *Service) CreateLockTiers(ctx context.Context, caller farm.Address, tiers []farm.LockTier) (*farm.LockTierTable, error) {
	var table *farm.LockTierTable
	err := s.run(ctx, "create_lock_tier_table", func(o *op) error {
		state, err := loadState(ctx, s.state)
		if err != nil {
			return err
		}
		if _, err := s.state.LoadTiers(ctx); err == nil {
			return ErrAlreadyInitialized
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		table, err = o.engine.CreateLockTierTable(caller, state, tiers, o.now)
		if err != nil {
			return err
		}
		o.batch.PutTiers(table)
		return nil
	})
	return table, err
}

// SetLockTiers replaces the whole tier table.
func (s *Service) SetLockTiers(ctx context.Context, caller farm.Address, tiers []farm.LockTier) (*farm.LockTierTable, error) {
	var table *farm.LockTierTable
	err := s.run(ctx, "set_lock_tier_table", func(o *op) error {
		var err error
		if table, err = loadTiers(ctx, s.state); err != nil {
			return err
		}
		if err := o.engine.SetLockTierTable(caller, table, tiers, o.now); err != nil {
			return err
		}
		o.batch.PutTiers(table)
		return nil
	})
	return table, err
}

// CreatePool adds a pool for asset with its own custody vault.
func (s *Service) CreatePool(ctx context.Context, caller farm.Address, asset string, weight, multiplier uint64) (*farm.Pool, error) {
	var pool *farm.Pool
	err := s.run(ctx, "create_pool", func(o *op) error {
		state, err := loadState(ctx, s.state)
		if err != nil {
			return err
		}
		active, err := activeSet(ctx, s.state, state)
		if err != nil {
			return err
		}

		vault := ledger.PoolVault(state.NextPoolID)
		if err := o.tx.Open(vault); err != nil {
			return err
		}
		pool, err = o.engine.CreatePool(caller, state, active, asset, vault, weight, multiplier, o.now)
		if err != nil {
			return err
		}
		o.batch.PutState(state).PutPools(active).PutPool(pool)
		return nil
	})
	return pool, err
}

func (s *Service) ClosePool(ctx context.Context, caller farm.Address, id farm.PoolID) (*farm.Pool, error) {
	return s.adminPoolOp(ctx, "close_pool", id, func(o *op, state *farm.GlobalState, active []*farm.Pool, pool *farm.Pool) error {
		return o.engine.ClosePool(caller, state, active, pool, o.now)
	})
}

func (s *Service) ChangePoolWeight(ctx context.Context, caller farm.Address, id farm.PoolID, weight uint64) (*farm.Pool, error) {
	return s.adminPoolOp(ctx, "change_pool_weight", id, func(o *op, state *farm.GlobalState, active []*farm.Pool, pool *farm.Pool) error {
		return o.engine.ChangePoolWeight(caller, state, active, pool, weight, o.now)
	})
}

// adminPoolOp runs an operation on one pool that settles the whole active set.
func (s *Service) adminPoolOp(ctx context.Context, name string, id farm.PoolID, fn func(*op, *farm.GlobalState, []*farm.Pool, *farm.Pool) error) (*farm.Pool, error) {
	var pool *farm.Pool
	err := s.run(ctx, name, func(o *op) error {
		state, err := loadState(ctx, s.state)
		if err != nil {
			return err
		}
		active, err := activeSet(ctx, s.state, state)
		if err != nil {
			return err
		}
		if pool = member(active, id); pool == nil {
			// Closed or unknown: load it so the engine reports which.
			if pool, err = loadPool(ctx, s.state, id); err != nil {
				return err
			}
		}
		if err := fn(o, state, active, pool); err != nil {
			return err
		}
		o.batch.PutState(state).PutPools(active).PutPool(pool)
		return nil
	})
	return pool, err
}

func (s *Service) ChangePoolAmountMultiplier(ctx context.Context, caller farm.Address, id farm.PoolID, multiplier uint64) (*farm.Pool, error) {
	var pool *farm.Pool
	err := s.run(ctx, "change_pool_amount_multiplier", func(o *op) error {
		state, err := loadState(ctx, s.state)
		if err != nil {
			return err
		}
		if pool, err = loadPool(ctx, s.state, id); err != nil {
			return err
		}
		if err := o.engine.ChangePoolAmountMultiplier(caller, state, pool, multiplier, o.now); err != nil {
			return err
		}
		o.batch.PutPool(pool)
		return nil
	})
	return pool, err
}

func (s *Service) ChangeEmissionRate(ctx context.Context, caller farm.Address, rate uint64) (*farm.GlobalState, error) {
	var state *farm.GlobalState
	err := s.run(ctx, "change_emission_rate", func(o *op) error {
		var err error
		if state, err = loadState(ctx, s.state); err != nil {
			return err
		}
		active, err := activeSet(ctx, s.state, state)
		if err != nil {
			return err
		}
		if err := o.engine.ChangeEmissionRate(caller, state, active, rate, o.now); err != nil {
			return err
		}
		o.batch.PutState(state).PutPools(active)
		return nil
	})
	return state, err
}
