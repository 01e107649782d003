package farm

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/leafsii/leafsii-farm/internal/calc"
)

// NewPosition returns a zero-balance position for owner in pool.
func NewPosition(pool PoolID, owner Address, now int64) *Position {
	return &Position{
		Pool:            pool,
		Owner:           owner,
		RawStaked:       calc.Zero(),
		EffectiveWeight: calc.Zero(),
		RewardDebt:      calc.Zero(),
		PendingReward:   calc.Zero(),
		CreatedAt:       now,
	}
}

// accrued returns the reward earned against acc since the last rebase.
func (pos *Position) accrued(acc *uint256.Int) (*uint256.Int, error) {
	total, err := calc.AccruedFor(pos.EffectiveWeight, acc)
	if err != nil {
		return nil, err
	}
	return calc.Sub(total, pos.RewardDebt)
}

// settle crystallizes newly accrued reward into PendingReward and rebases the
// debt. The pool must already be settled.
func (pos *Position) settle(pool *Pool) error {
	earned, err := pos.accrued(pool.AccRewardPerUnit)
	if err != nil {
		return overflow("settle position", err)
	}
	pending, err := calc.Add(pos.PendingReward, earned)
	if err != nil {
		return overflow("settle position", err)
	}
	pos.PendingReward = pending
	return pos.rebase(pool)
}

// rebase sets RewardDebt to the position's full entitlement under the pool's
// current accumulator.
func (pos *Position) rebase(pool *Pool) error {
	debt, err := calc.AccruedFor(pos.EffectiveWeight, pool.AccRewardPerUnit)
	if err != nil {
		return overflow("rebase position", err)
	}
	pos.RewardDebt = debt
	return nil
}

// reweigh recomputes the effective weight from the raw stake, the pool
// multiplier and the captured bonus, and carries the delta into the pool.
func (pos *Position) reweigh(pool *Pool) error {
	weight, err := calc.EffectiveWeight(pos.RawStaked, pool.AmountMultiplier, pos.BonusBasisPoints)
	if err != nil {
		return overflow("effective weight", err)
	}
	if err := pool.adjustWeighted(pos.EffectiveWeight, weight); err != nil {
		return err
	}
	pos.EffectiveWeight = weight
	return nil
}

// PendingAt returns the reward the position could harvest at now, without
// modifying the pool or the position.
func (pos *Position) PendingAt(pool *Pool, state *GlobalState, now int64) (*uint256.Int, error) {
	if pos.Pool != pool.ID {
		return nil, fmt.Errorf("%w: position pool %d, pool %d", ErrPositionMismatch, pos.Pool, pool.ID)
	}
	acc, err := pool.PreviewAccumulator(state, now)
	if err != nil {
		return nil, err
	}
	earned, err := pos.accrued(acc)
	if err != nil {
		return nil, overflow("preview reward", err)
	}
	total, err := calc.Add(pos.PendingReward, earned)
	if err != nil {
		return nil, overflow("preview reward", err)
	}
	return total, nil
}
