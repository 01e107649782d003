package farm

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/leafsii/leafsii-farm/internal/calc"
)

// NewPool returns an empty pool settled at now.
func NewPool(id PoolID, asset string, vault VaultID, weight, multiplier uint64, now int64) *Pool {
	return &Pool{
		ID:               id,
		Asset:            asset,
		Vault:            vault,
		Weight:           weight,
		AmountMultiplier: multiplier,
		RawStaked:        calc.Zero(),
		WeightedStaked:   calc.Zero(),
		AccRewardPerUnit: calc.Zero(),
		LastSettleTime:   now,
		CreatedAt:        now,
	}
}

// Settle advances the pool accumulator to now. A clock that moved backwards is
// treated as zero elapsed time and never rewinds LastSettleTime.
func (p *Pool) Settle(state *GlobalState, now int64) error {
	if now <= p.LastSettleTime {
		return nil
	}
	elapsed := uint64(now - p.LastSettleTime)

	if !p.Closed && state.TotalWeight > 0 {
		delta, err := calc.RewardPerUnit(state.EmissionRate, elapsed, p.Weight, state.TotalWeight, p.WeightedStaked)
		if err != nil {
			return overflow(fmt.Sprintf("settle pool %d", p.ID), err)
		}
		acc, err := calc.Add(p.AccRewardPerUnit, delta)
		if err != nil {
			return overflow(fmt.Sprintf("settle pool %d", p.ID), err)
		}
		p.AccRewardPerUnit = acc
	}

	p.LastSettleTime = now
	return nil
}

// PreviewAccumulator returns the accumulator value Settle would produce at now
// without modifying the pool.
func (p *Pool) PreviewAccumulator(state *GlobalState, now int64) (*uint256.Int, error) {
	c := p.Clone()
	if err := c.Settle(state, now); err != nil {
		return nil, err
	}
	return c.AccRewardPerUnit, nil
}

// adjustWeighted replaces oldWeight with newWeight in the pool's weighted stake.
func (p *Pool) adjustWeighted(oldWeight, newWeight *uint256.Int) error {
	reduced, err := calc.Sub(p.WeightedStaked, oldWeight)
	if err != nil {
		return overflow(fmt.Sprintf("pool %d weighted stake", p.ID), err)
	}
	total, err := calc.Add(reduced, newWeight)
	if err != nil {
		return overflow(fmt.Sprintf("pool %d weighted stake", p.ID), err)
	}
	p.WeightedStaked = total
	return nil
}

// IsEmpty reports whether no stake remains in the pool.
func (p *Pool) IsEmpty() bool {
	return p.RawStaked.IsZero() && p.WeightedStaked.IsZero()
}
