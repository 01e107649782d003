// Package farm implements time-weighted reward accrual across weighted staking
// pools.
//
// Every operation settles the pools it touches, settles the caller's position,
// applies its effect and rebases the position. Operations work on copies of
// the records they are given and write back only after every check and the
// ledger transfer succeeded, so a failed call leaves records and balances as
// they were. The package is sequential; callers serialize operations.
package farm

import (
	"fmt"
	"math"

	"github.com/holiman/uint256"

	"github.com/leafsii/leafsii-farm/internal/calc"
)

// Engine applies farm operations, moving value through ledger.
type Engine struct {
	ledger Ledger
	events []Event
}

func NewEngine(ledger Ledger) *Engine {
	return &Engine{ledger: ledger}
}

// Events returns the events of committed operations since the last call.
func (e *Engine) Events() []Event {
	evs := e.events
	e.events = nil
	return evs
}

func (e *Engine) emit(evs ...Event) {
	e.events = append(e.events, evs...)
}

func (e *Engine) move(ts transfers) error {
	if len(ts) == 0 {
		return nil
	}
	return e.ledger.Move(ts...)
}

func checkOwner(acct Account, pool *Pool, pos *Position) error {
	if pos.Pool != pool.ID {
		return fmt.Errorf("%w: position pool %d, pool %d", ErrPositionMismatch, pos.Pool, pool.ID)
	}
	if pos.Owner != acct.Wallet {
		return fmt.Errorf("%w: position belongs to %s", ErrUnauthorized, pos.Owner)
	}
	return nil
}

// CreateUserPosition returns the wallet's position in pool, creating it when
// existing is nil. Repeated calls return the existing record unchanged.
func (e *Engine) CreateUserPosition(wallet Address, pool *Pool, existing *Position, now int64) (*Position, bool, error) {
	if existing != nil {
		if existing.Pool != pool.ID || existing.Owner != wallet {
			return nil, false, fmt.Errorf("%w: position %d/%s", ErrPositionMismatch, existing.Pool, existing.Owner)
		}
		return existing, false, nil
	}
	if pool.Closed {
		return nil, false, fmt.Errorf("create position in pool %d: %w", pool.ID, ErrPoolClosed)
	}

	count, err := calc.AddUint64(pool.UserCount, 1)
	if err != nil {
		return nil, false, overflow("user count", err)
	}
	pool.UserCount = count

	pos := NewPosition(pool.ID, wallet, now)
	e.emit(newEvent(EventUserCreated, now, pool.ID, wallet))
	return pos, true, nil
}

// Stake deposits amount from the account's stake vault and re-derives the
// whole position's weight from the selected tier.
func (e *Engine) Stake(acct Account, state *GlobalState, tiers *LockTierTable, pool *Pool, pos *Position, amount *uint256.Int, tierIndex int, now int64) error {
	if err := checkOwner(acct, pool, pos); err != nil {
		return err
	}
	tier, err := tiers.Tier(tierIndex)
	if err != nil {
		return err
	}
	if !pos.RawStaked.IsZero() && tier.DurationSeconds < pos.LockDuration {
		return fmt.Errorf("stake: %w: %ds is shorter than the current %ds lock",
			ErrInvalidLockDuration, tier.DurationSeconds, pos.LockDuration)
	}
	if pool.Closed {
		return fmt.Errorf("stake in pool %d: %w", pool.ID, ErrPoolClosed)
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("stake: %w: amount must be positive", ErrInvalidAmount)
	}
	if tier.DurationSeconds > math.MaxInt64-now {
		return fmt.Errorf("stake: %w: lock expiry", ErrArithmeticOverflow)
	}

	p, u := pool.Clone(), pos.Clone()
	if err := p.Settle(state, now); err != nil {
		return err
	}
	if err := u.settle(p); err != nil {
		return err
	}

	if u.RawStaked, err = calc.Add(u.RawStaked, amount); err != nil {
		return overflow("stake", err)
	}
	if p.RawStaked, err = calc.Add(p.RawStaked, amount); err != nil {
		return overflow("stake", err)
	}
	u.BonusBasisPoints = tier.BonusBasisPoints
	if err := u.reweigh(p); err != nil {
		return err
	}
	u.LockTierIndex = tierIndex
	u.LockDuration = tier.DurationSeconds
	u.LockExpiry = now + tier.DurationSeconds
	u.LastStakeTime = now
	if err := u.rebase(p); err != nil {
		return err
	}

	var ts transfers
	ts.add(acct.StakeVault, pool.Vault, amount)
	if err := e.move(ts); err != nil {
		return fmt.Errorf("stake: %w", err)
	}

	*pool, *pos = *p, *u
	e.emit(newEvent(EventUserStaked, now, pool.ID, acct.Wallet).
		withAmount(amount).
		with("tier", uint64(tierIndex)).
		with("lock_expiry", uint64(pos.LockExpiry)))
	return nil
}

// Unstake withdraws amount of principal and pays out every pending reward. It
// returns the reward paid.
func (e *Engine) Unstake(acct Account, state *GlobalState, pool *Pool, pos *Position, amount *uint256.Int, now int64) (*uint256.Int, error) {
	if err := checkOwner(acct, pool, pos); err != nil {
		return nil, err
	}
	if amount == nil || amount.IsZero() {
		return nil, fmt.Errorf("unstake: %w: amount must be positive", ErrInvalidAmount)
	}
	if amount.Gt(pos.RawStaked) {
		return nil, fmt.Errorf("unstake %s of %s: %w", amount.Dec(), pos.RawStaked.Dec(), ErrOverStakedAmount)
	}

	p, u := pool.Clone(), pos.Clone()
	if err := p.Settle(state, now); err != nil {
		return nil, err
	}
	if err := u.settle(p); err != nil {
		return nil, err
	}
	reward := u.PendingReward
	u.PendingReward = calc.Zero()

	var err error
	if u.RawStaked, err = calc.Sub(u.RawStaked, amount); err != nil {
		return nil, overflow("unstake", err)
	}
	if p.RawStaked, err = calc.Sub(p.RawStaked, amount); err != nil {
		return nil, overflow("unstake", err)
	}
	if u.RawStaked.IsZero() {
		u.LockTierIndex = 0
		u.BonusBasisPoints = 0
		u.LockDuration = 0
		u.LockExpiry = 0
	}
	if err := u.reweigh(p); err != nil {
		return nil, err
	}
	if err := u.rebase(p); err != nil {
		return nil, err
	}

	var ts transfers
	ts.add(pool.Vault, acct.StakeVault, amount)
	ts.add(state.RewardVault, acct.RewardVault, reward)
	if err := e.move(ts); err != nil {
		return nil, fmt.Errorf("unstake: %w", err)
	}

	*pool, *pos = *p, *u
	e.emit(newEvent(EventUserUnstaked, now, pool.ID, acct.Wallet).withAmount(amount))
	if !reward.IsZero() {
		e.emit(newEvent(EventUserHarvested, now, pool.ID, acct.Wallet).withAmount(reward))
	}
	return reward, nil
}

// Harvest pays out every pending reward without touching the stake.
func (e *Engine) Harvest(acct Account, state *GlobalState, pool *Pool, pos *Position, now int64) (*uint256.Int, error) {
	if err := checkOwner(acct, pool, pos); err != nil {
		return nil, err
	}

	p, u := pool.Clone(), pos.Clone()
	if err := p.Settle(state, now); err != nil {
		return nil, err
	}
	if err := u.settle(p); err != nil {
		return nil, err
	}
	reward := u.PendingReward
	u.PendingReward = calc.Zero()

	var ts transfers
	ts.add(state.RewardVault, acct.RewardVault, reward)
	if err := e.move(ts); err != nil {
		return nil, fmt.Errorf("harvest: %w", err)
	}

	*pool, *pos = *p, *u
	e.emit(newEvent(EventUserHarvested, now, pool.ID, acct.Wallet).withAmount(reward))
	return reward, nil
}

// FundRewards tops up the reward vault. Anyone may fund; accounting is not
// affected.
func (e *Engine) FundRewards(funder Address, state *GlobalState, from VaultID, amount *uint256.Int, now int64) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("fund rewards: %w: amount must be positive", ErrInvalidAmount)
	}

	var ts transfers
	ts.add(from, state.RewardVault, amount)
	if err := e.move(ts); err != nil {
		return fmt.Errorf("fund rewards: %w", err)
	}

	e.emit(newEvent(EventRewardsFunded, now, 0, funder).withAmount(amount))
	return nil
}
