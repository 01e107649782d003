package farm

import (
	"strconv"

	"github.com/holiman/uint256"

	"github.com/leafsii/leafsii-farm/internal/calc"
)

// Address identifies a wallet or the admin principal.
type Address string

// VaultID names a token vault held by the Ledger.
type VaultID string

// PoolID is assigned sequentially from GlobalState.NextPoolID.
type PoolID uint64

func (id PoolID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// GlobalState is the farm-wide singleton.
type GlobalState struct {
	Authority    Address
	TotalWeight  uint64
	EmissionRate uint64
	RewardVault  VaultID
	StartTime    int64

	// ActivePools counts non-closed pools. Together with TotalWeight it lets
	// administrative operations prove they were handed every active pool.
	ActivePools uint64
	NextPoolID  PoolID
}

func (s *GlobalState) Clone() *GlobalState {
	c := *s
	return &c
}

// LockTier is one (duration, bonus) pair selectable at stake time.
type LockTier struct {
	DurationSeconds  int64
	BonusBasisPoints uint64
}

type LockTierTable struct {
	Authority Address
	Tiers     []LockTier
}

func (t *LockTierTable) Clone() *LockTierTable {
	c := &LockTierTable{Authority: t.Authority, Tiers: make([]LockTier, len(t.Tiers))}
	copy(c.Tiers, t.Tiers)
	return c
}

// Pool is a per-asset weighted accumulator.
type Pool struct {
	ID               PoolID
	Asset            string
	Vault            VaultID
	Weight           uint64
	AmountMultiplier uint64

	RawStaked      *uint256.Int
	WeightedStaked *uint256.Int
	// AccRewardPerUnit is scaled by calc.Precision and never decreases.
	AccRewardPerUnit *uint256.Int
	LastSettleTime   int64

	UserCount uint64
	Closed    bool
	CreatedAt int64
}

func (p *Pool) Clone() *Pool {
	c := *p
	c.RawStaked = calc.Clone(p.RawStaked)
	c.WeightedStaked = calc.Clone(p.WeightedStaked)
	c.AccRewardPerUnit = calc.Clone(p.AccRewardPerUnit)
	return &c
}

// Position is the stake record of one wallet in one pool. Positions are never
// deleted; a full exit leaves a zero-balance record behind.
type Position struct {
	Pool  PoolID
	Owner Address

	RawStaked       *uint256.Int
	EffectiveWeight *uint256.Int
	LockTierIndex   int
	// BonusBasisPoints and LockDuration are captured from the tier table at
	// stake time so that a later table replacement does not change existing
	// positions.
	BonusBasisPoints uint64
	LockDuration     int64
	LockExpiry       int64

	RewardDebt    *uint256.Int
	PendingReward *uint256.Int

	LastStakeTime int64
	CreatedAt     int64
}

func (p *Position) Clone() *Position {
	c := *p
	c.RawStaked = calc.Clone(p.RawStaked)
	c.EffectiveWeight = calc.Clone(p.EffectiveWeight)
	c.RewardDebt = calc.Clone(p.RewardDebt)
	c.PendingReward = calc.Clone(p.PendingReward)
	return &c
}

// Account carries the vaults a wallet operation moves value through.
type Account struct {
	Wallet Address
	// StakeVault holds the wallet's balance of the pool asset.
	StakeVault VaultID
	// RewardVault receives harvested rewards.
	RewardVault VaultID
}
