package store

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/leafsii/leafsii-farm/internal/calc"
	"github.com/leafsii/leafsii-farm/internal/farm"
)

// Stored records spell every 256-bit quantity as a decimal string.

type stateRecord struct {
	Authority    string `json:"authority"`
	TotalWeight  uint64 `json:"total_weight"`
	EmissionRate uint64 `json:"emission_rate"`
	RewardVault  string `json:"reward_vault"`
	StartTime    int64  `json:"start_time"`
	ActivePools  uint64 `json:"active_pools"`
	NextPoolID   uint64 `json:"next_pool_id"`
}

func toStateRecord(s *farm.GlobalState) stateRecord {
	return stateRecord{
		Authority:    string(s.Authority),
		TotalWeight:  s.TotalWeight,
		EmissionRate: s.EmissionRate,
		RewardVault:  string(s.RewardVault),
		StartTime:    s.StartTime,
		ActivePools:  s.ActivePools,
		NextPoolID:   uint64(s.NextPoolID),
	}
}

func (r stateRecord) state() *farm.GlobalState {
	return &farm.GlobalState{
		Authority:    farm.Address(r.Authority),
		TotalWeight:  r.TotalWeight,
		EmissionRate: r.EmissionRate,
		RewardVault:  farm.VaultID(r.RewardVault),
		StartTime:    r.StartTime,
		ActivePools:  r.ActivePools,
		NextPoolID:   farm.PoolID(r.NextPoolID),
	}
}

type tierRecord struct {
	DurationSeconds  int64  `json:"duration_seconds"`
	BonusBasisPoints uint64 `json:"bonus_bps"`
}

type tierTableRecord struct {
	Authority string       `json:"authority"`
	Tiers     []tierRecord `json:"tiers"`
}

func toTierTableRecord(t *farm.LockTierTable) tierTableRecord {
	r := tierTableRecord{Authority: string(t.Authority), Tiers: make([]tierRecord, len(t.Tiers))}
	for i, tier := range t.Tiers {
		r.Tiers[i] = tierRecord{DurationSeconds: tier.DurationSeconds, BonusBasisPoints: tier.BonusBasisPoints}
	}
	return r
}

func (r tierTableRecord) table() *farm.LockTierTable {
	t := &farm.LockTierTable{Authority: farm.Address(r.Authority), Tiers: make([]farm.LockTier, len(r.Tiers))}
	for i, tier := range r.Tiers {
		t.Tiers[i] = farm.LockTier{DurationSeconds: tier.DurationSeconds, BonusBasisPoints: tier.BonusBasisPoints}
	}
	return t
}

type poolRecord struct {
	ID               uint64 `json:"id"`
	Asset            string `json:"asset"`
	Vault            string `json:"vault"`
	Weight           uint64 `json:"weight"`
	AmountMultiplier uint64 `json:"amount_multiplier"`
	RawStaked        string `json:"raw_staked"`
	WeightedStaked   string `json:"weighted_staked"`
	AccRewardPerUnit string `json:"acc_reward_per_unit"`
	LastSettleTime   int64  `json:"last_settle_time"`
	UserCount        uint64 `json:"user_count"`
	Closed           bool   `json:"closed"`
	CreatedAt        int64  `json:"created_at"`
}

func toPoolRecord(p *farm.Pool) poolRecord {
	return poolRecord{
		ID:               uint64(p.ID),
		Asset:            p.Asset,
		Vault:            string(p.Vault),
		Weight:           p.Weight,
		AmountMultiplier: p.AmountMultiplier,
		RawStaked:        p.RawStaked.Dec(),
		WeightedStaked:   p.WeightedStaked.Dec(),
		AccRewardPerUnit: p.AccRewardPerUnit.Dec(),
		LastSettleTime:   p.LastSettleTime,
		UserCount:        p.UserCount,
		Closed:           p.Closed,
		CreatedAt:        p.CreatedAt,
	}
}

func (r poolRecord) pool() (*farm.Pool, error) {
	amounts, err := parseAmounts(r.RawStaked, r.WeightedStaked, r.AccRewardPerUnit)
	if err != nil {
		return nil, fmt.Errorf("pool %d: %w", r.ID, err)
	}
	return &farm.Pool{
		ID:               farm.PoolID(r.ID),
		Asset:            r.Asset,
		Vault:            farm.VaultID(r.Vault),
		Weight:           r.Weight,
		AmountMultiplier: r.AmountMultiplier,
		RawStaked:        amounts[0],
		WeightedStaked:   amounts[1],
		AccRewardPerUnit: amounts[2],
		LastSettleTime:   r.LastSettleTime,
		UserCount:        r.UserCount,
		Closed:           r.Closed,
		CreatedAt:        r.CreatedAt,
	}, nil
}

type positionRecord struct {
	Pool             uint64 `json:"pool"`
	Owner            string `json:"owner"`
	RawStaked        string `json:"raw_staked"`
	EffectiveWeight  string `json:"effective_weight"`
	LockTierIndex    int    `json:"lock_tier_index"`
	BonusBasisPoints uint64 `json:"bonus_bps"`
	LockDuration     int64  `json:"lock_duration"`
	LockExpiry       int64  `json:"lock_expiry"`
	RewardDebt       string `json:"reward_debt"`
	PendingReward    string `json:"pending_reward"`
	LastStakeTime    int64  `json:"last_stake_time"`
	CreatedAt        int64  `json:"created_at"`
}

func toPositionRecord(p *farm.Position) positionRecord {
	return positionRecord{
		Pool:             uint64(p.Pool),
		Owner:            string(p.Owner),
		RawStaked:        p.RawStaked.Dec(),
		EffectiveWeight:  p.EffectiveWeight.Dec(),
		LockTierIndex:    p.LockTierIndex,
		BonusBasisPoints: p.BonusBasisPoints,
		LockDuration:     p.LockDuration,
		LockExpiry:       p.LockExpiry,
		RewardDebt:       p.RewardDebt.Dec(),
		PendingReward:    p.PendingReward.Dec(),
		LastStakeTime:    p.LastStakeTime,
		CreatedAt:        p.CreatedAt,
	}
}

func (r positionRecord) position() (*farm.Position, error) {
	amounts, err := parseAmounts(r.RawStaked, r.EffectiveWeight, r.RewardDebt, r.PendingReward)
	if err != nil {
		return nil, fmt.Errorf("position %d/%s: %w", r.Pool, r.Owner, err)
	}
	return &farm.Position{
		Pool:             farm.PoolID(r.Pool),
		Owner:            farm.Address(r.Owner),
		RawStaked:        amounts[0],
		EffectiveWeight:  amounts[1],
		LockTierIndex:    r.LockTierIndex,
		BonusBasisPoints: r.BonusBasisPoints,
		LockDuration:     r.LockDuration,
		LockExpiry:       r.LockExpiry,
		RewardDebt:       amounts[2],
		PendingReward:    amounts[3],
		LastStakeTime:    r.LastStakeTime,
		CreatedAt:        r.CreatedAt,
	}, nil
}

func parseAmounts(values ...string) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(values))
	for i, v := range values {
		x, err := calc.ParseAmount(v)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}
