package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/leafsii/leafsii-farm/internal/farm"
	"github.com/leafsii/leafsii-farm/internal/ledger"
	"github.com/leafsii/leafsii-farm/internal/store"
)

// account opens the wallet vaults an operation on pool moves value through.
func account(tx *ledger.Tx, wallet farm.Address, pool *farm.Pool) (farm.Account, error) {
	acct := farm.Account{
		Wallet:      wallet,
		StakeVault:  ledger.WalletVault(wallet, pool.Asset),
		RewardVault: ledger.WalletVault(wallet, ledger.RewardAsset),
	}
	if err := tx.Open(acct.StakeVault); err != nil {
		return acct, err
	}
	if err := tx.Open(acct.RewardVault); err != nil {
		return acct, err
	}
	return acct, nil
}

// ensurePosition loads the wallet's position in pool or creates it, recording
// the pool in the wallet's index.
func (s *Service) ensurePosition(o *op, wallet farm.Address, pool *farm.Pool) (*farm.Position, error) {
	existing, err := s.state.LoadPosition(o.ctx, pool.ID, wallet)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	pos, created, err := o.engine.CreateUserPosition(wallet, pool, existing, o.now)
	if err != nil {
		return nil, err
	}
	if created {
		ids, err := s.state.WalletPools(o.ctx, wallet)
		if err != nil {
			return nil, err
		}
		o.batch.PutWalletPools(wallet, append(ids, pool.ID)).PutPool(pool).PutPosition(pos)
	}
	return pos, nil
}

// CreatePosition opens an empty position. Calling it again returns the
// existing position unchanged.
func (s *Service) CreatePosition(ctx context.Context, wallet farm.Address, id farm.PoolID) (*farm.Position, error) {
	var pos *farm.Position
	err := s.run(ctx, "create_user_position", func(o *op) error {
		pool, err := loadPool(ctx, s.state, id)
		if err != nil {
			return err
		}
		pos, err = s.ensurePosition(o, wallet, pool)
		return err
	})
	return pos, err
}

// Stake deposits amount into pool under the given lock tier, creating the
// position on first use.
func (s *Service) Stake(ctx context.Context, wallet farm.Address, id farm.PoolID, amount *uint256.Int, tier int) (*farm.Position, error) {
	var pos *farm.Position
	err := s.run(ctx, "stake", func(o *op) error {
		state, err := loadState(ctx, s.state)
		if err != nil {
			return err
		}
		tiers, err := loadTiers(ctx, s.state)
		if err != nil {
			return err
		}
		pool, err := loadPool(ctx, s.state, id)
		if err != nil {
			return err
		}
		if pos, err = s.ensurePosition(o, wallet, pool); err != nil {
			return err
		}
		acct, err := account(o.tx, wallet, pool)
		if err != nil {
			return err
		}
		if err := o.engine.Stake(acct, state, tiers, pool, pos, amount, tier, o.now); err != nil {
			return err
		}
		o.batch.PutPool(pool).PutPosition(pos)
		return nil
	})
	return pos, err
}

// Unstake withdraws amount and pays every pending reward. It returns the
// reward paid.
func (s *Service) Unstake(ctx context.Context, wallet farm.Address, id farm.PoolID, amount *uint256.Int) (*farm.Position, *uint256.Int, error) {
	var (
		pos    *farm.Position
		reward *uint256.Int
	)
	err := s.run(ctx, "unstake", func(o *op) error {
		state, pool, p, acct, err := s.loadWalletOp(o, wallet, id)
		if err != nil {
			return err
		}
		pos = p
		if reward, err = o.engine.Unstake(acct, state, pool, pos, amount, o.now); err != nil {
			return err
		}
		o.batch.PutPool(pool).PutPosition(pos)
		return nil
	})
	return pos, reward, err
}

// Harvest pays every pending reward and returns it.
func (s *Service) Harvest(ctx context.Context, wallet farm.Address, id farm.PoolID) (*farm.Position, *uint256.Int, error) {
	var (
		pos    *farm.Position
		reward *uint256.Int
	)
	err := s.run(ctx, "harvest", func(o *op) error {
		state, pool, p, acct, err := s.loadWalletOp(o, wallet, id)
		if err != nil {
			return err
		}
		pos = p
		if reward, err = o.engine.Harvest(acct, state, pool, pos, o.now); err != nil {
			return err
		}
		o.batch.PutPool(pool).PutPosition(pos)
		return nil
	})
	return pos, reward, err
}

func (s *Service) loadWalletOp(o *op, wallet farm.Address, id farm.PoolID) (*farm.GlobalState, *farm.Pool, *farm.Position, farm.Account, error) {
	state, err := loadState(o.ctx, s.state)
	if err != nil {
		return nil, nil, nil, farm.Account{}, err
	}
	pool, err := loadPool(o.ctx, s.state, id)
	if err != nil {
		return nil, nil, nil, farm.Account{}, err
	}
	pos, err := loadPosition(o.ctx, s.state, id, wallet)
	if err != nil {
		return nil, nil, nil, farm.Account{}, err
	}
	acct, err := account(o.tx, wallet, pool)
	if err != nil {
		return nil, nil, nil, farm.Account{}, err
	}
	return state, pool, pos, acct, nil
}

// FundRewards moves amount of the reward asset from funder's wallet into the
// reward vault.
func (s *Service) FundRewards(ctx context.Context, funder farm.Address, amount *uint256.Int) error {
	return s.run(ctx, "fund_rewards", func(o *op) error {
		state, err := loadState(ctx, s.state)
		if err != nil {
			return err
		}
		return o.engine.FundRewards(funder, state, ledger.WalletVault(funder, ledger.RewardAsset), amount, o.now)
	})
}

func (s *Service) SetMetadata(ctx context.Context, caller, wallet farm.Address, value string) error {
	return s.run(ctx, "set_metadata", func(o *op) error {
		if err := o.engine.SetMetadata(caller, wallet, value, o.now); err != nil {
			return err
		}
		o.batch.PutMetadata(wallet, value)
		return nil
	})
}

// Faucet mints amount of asset into wallet. Development only.
func (s *Service) Faucet(ctx context.Context, wallet farm.Address, asset string, amount *uint256.Int) (*uint256.Int, error) {
	if !s.faucet {
		return nil, ErrFaucetDisabled
	}
	if amount == nil || amount.IsZero() {
		return nil, fmt.Errorf("faucet: %w: amount must be positive", farm.ErrInvalidAmount)
	}
	var balance *uint256.Int
	err := s.run(ctx, "faucet", func(o *op) error {
		vault := ledger.WalletVault(wallet, asset)
		if err := o.tx.Open(vault); err != nil {
			return err
		}
		if err := o.tx.Mint(vault, amount); err != nil {
			return fmt.Errorf("%w: %v", farm.ErrArithmeticOverflow, err)
		}
		var err error
		balance, err = o.tx.Balance(vault)
		return err
	})
	return balance, err
}
