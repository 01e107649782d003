package api

import (
	"github.com/holiman/uint256"

	"github.com/leafsii/leafsii-farm/internal/calc"
	"github.com/leafsii/leafsii-farm/internal/farm"
	"github.com/leafsii/leafsii-farm/internal/service"
)

// Amounts are base-unit decimal strings. Fields ending in _display are scaled
// by the reward token decimals for presentation only.

type StateDTO struct {
	Authority          string `json:"authority"`
	TotalWeight        uint64 `json:"total_weight"`
	EmissionRate       uint64 `json:"emission_rate"`
	RewardVault        string `json:"reward_vault"`
	RewardVaultBalance string `json:"reward_vault_balance"`
	StartTime          int64  `json:"start_time"`
	ActivePools        uint64 `json:"active_pools"`
	NextPoolID         uint64 `json:"next_pool_id"`
}

type LockTierDTO struct {
	DurationSeconds  int64  `json:"duration_seconds"`
	BonusBasisPoints uint64 `json:"bonus_bps"`
}

type LockTiersDTO struct {
	Authority string        `json:"authority"`
	Tiers     []LockTierDTO `json:"tiers"`
}

type PoolDTO struct {
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

type PoolStatsDTO struct {
	Pool                 PoolDTO `json:"pool"`
	ProjectedAccumulator string  `json:"projected_acc_reward_per_unit"`
	RewardPerUnit        string  `json:"reward_per_unit"`
	EmissionPerSecond    string  `json:"emission_per_second"`
	APR                  string  `json:"apr"`
	ShareOfEmission      string  `json:"share_of_emission"`
	AsOf                 int64   `json:"asOf"`
}

type PositionDTO struct {
	PoolID           uint64 `json:"pool_id"`
	Owner            string `json:"owner"`
	RawStaked        string `json:"raw_staked"`
	EffectiveWeight  string `json:"effective_weight"`
	LockTier         int    `json:"lock_tier"`
	BonusBasisPoints uint64 `json:"bonus_bps"`
	LockDuration     int64  `json:"lock_duration"`
	LockExpiry       int64  `json:"lock_expiry"`
	RewardDebt       string `json:"reward_debt"`
	PendingReward    string `json:"pending_reward"`
	Claimable        string `json:"claimable,omitempty"`
	ClaimableDisplay string `json:"claimable_display,omitempty"`
	LastStakeTime    int64  `json:"last_stake_time"`
	CreatedAt        int64  `json:"created_at"`
	AsOf             int64  `json:"asOf,omitempty"`
}

type PositionRewardDTO struct {
	Position      PositionDTO `json:"position"`
	Reward        string      `json:"reward"`
	RewardDisplay string      `json:"reward_display"`
}

type MetadataDTO struct {
	Wallet string `json:"wallet"`
	Value  string `json:"value"`
}

type BalanceDTO struct {
	Wallet  string `json:"wallet"`
	Asset   string `json:"asset"`
	Balance string `json:"balance"`
}

type EventsPageDTO struct {
	Events     interface{} `json:"events"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Request bodies

type InitializeRequest struct {
	EmissionRate uint64 `json:"emission_rate"`
}

type LockTiersRequest struct {
	Tiers []LockTierDTO `json:"tiers"`
}

type CreatePoolRequest struct {
	Asset            string `json:"asset"`
	Weight           uint64 `json:"weight"`
	AmountMultiplier uint64 `json:"amount_multiplier"`
}

type PoolWeightRequest struct {
	Weight uint64 `json:"weight"`
}

type PoolMultiplierRequest struct {
	AmountMultiplier uint64 `json:"amount_multiplier"`
}

type EmissionRateRequest struct {
	EmissionRate uint64 `json:"emission_rate"`
}

type AmountRequest struct {
	Amount string `json:"amount"`
}

type StakeRequest struct {
	Amount   string `json:"amount"`
	LockTier int    `json:"lock_tier"`
}

type MetadataRequest struct {
	Value string `json:"value"`
}

type FaucetRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

func toStateDTO(s *farm.GlobalState, rewards *uint256.Int) StateDTO {
	return StateDTO{
		Authority:          string(s.Authority),
		TotalWeight:        s.TotalWeight,
		EmissionRate:       s.EmissionRate,
		RewardVault:        string(s.RewardVault),
		RewardVaultBalance: amountString(rewards),
		StartTime:          s.StartTime,
		ActivePools:        s.ActivePools,
		NextPoolID:         uint64(s.NextPoolID),
	}
}

func toLockTiersDTO(t *farm.LockTierTable) LockTiersDTO {
	out := LockTiersDTO{Authority: string(t.Authority), Tiers: make([]LockTierDTO, len(t.Tiers))}
	for i, tier := range t.Tiers {
		out.Tiers[i] = LockTierDTO{DurationSeconds: tier.DurationSeconds, BonusBasisPoints: tier.BonusBasisPoints}
	}
	return out
}

func fromLockTierDTOs(in []LockTierDTO) []farm.LockTier {
	out := make([]farm.LockTier, len(in))
	for i, t := range in {
		out[i] = farm.LockTier{DurationSeconds: t.DurationSeconds, BonusBasisPoints: t.BonusBasisPoints}
	}
	return out
}

func toPoolDTO(p *farm.Pool) PoolDTO {
	return PoolDTO{
		ID:               uint64(p.ID),
		Asset:            p.Asset,
		Vault:            string(p.Vault),
		Weight:           p.Weight,
		AmountMultiplier: p.AmountMultiplier,
		RawStaked:        amountString(p.RawStaked),
		WeightedStaked:   amountString(p.WeightedStaked),
		AccRewardPerUnit: amountString(p.AccRewardPerUnit),
		LastSettleTime:   p.LastSettleTime,
		UserCount:        p.UserCount,
		Closed:           p.Closed,
		CreatedAt:        p.CreatedAt,
	}
}

func toPoolStatsDTO(s *service.PoolStats) PoolStatsDTO {
	return PoolStatsDTO{
		Pool:                 toPoolDTO(s.Pool),
		ProjectedAccumulator: amountString(s.ProjectedAccumulator),
		RewardPerUnit:        calc.AccumulatorToDecimal(s.ProjectedAccumulator).String(),
		EmissionPerSecond:    s.EmissionPerSecond.String(),
		APR:                  s.APR.String(),
		ShareOfEmission:      s.ShareOfEmission.String(),
		AsOf:                 s.At,
	}
}

func toPositionDTO(p *farm.Position) PositionDTO {
	return PositionDTO{
		PoolID:           uint64(p.Pool),
		Owner:            string(p.Owner),
		RawStaked:        amountString(p.RawStaked),
		EffectiveWeight:  amountString(p.EffectiveWeight),
		LockTier:         p.LockTierIndex,
		BonusBasisPoints: p.BonusBasisPoints,
		LockDuration:     p.LockDuration,
		LockExpiry:       p.LockExpiry,
		RewardDebt:       amountString(p.RewardDebt),
		PendingReward:    amountString(p.PendingReward),
		LastStakeTime:    p.LastStakeTime,
		CreatedAt:        p.CreatedAt,
	}
}

func toPositionViewDTO(v *service.PositionView, decimals int32) PositionDTO {
	dto := toPositionDTO(v.Position)
	dto.Claimable = amountString(v.Pending)
	dto.ClaimableDisplay = calc.ToDecimal(v.Pending, decimals).String()
	dto.AsOf = v.At
	return dto
}

func toPositionRewardDTO(p *farm.Position, reward *uint256.Int, decimals int32) PositionRewardDTO {
	return PositionRewardDTO{
		Position:      toPositionDTO(p),
		Reward:        amountString(reward),
		RewardDisplay: calc.ToDecimal(reward, decimals).String(),
	}
}

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
