package farm

import (
	"fmt"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminRequiresAuthority(t *testing.T) {
	f := newFixture(t, 10)
	pool := f.addPool(10, 1)
	const intruder Address = "0xbad"

	_, err := f.engine.CreatePool(intruder, f.state, f.active(), "STK", "pool:x", 1, 1, f.now)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, f.engine.ChangePoolWeight(intruder, f.state, f.active(), pool, 1, f.now), ErrUnauthorized)
	assert.ErrorIs(t, f.engine.ChangePoolAmountMultiplier(intruder, f.state, pool, 2, f.now), ErrUnauthorized)
	assert.ErrorIs(t, f.engine.ChangeEmissionRate(intruder, f.state, f.active(), 1, f.now), ErrUnauthorized)
	assert.ErrorIs(t, f.engine.ClosePool(intruder, f.state, f.active(), pool, f.now), ErrUnauthorized)
	assert.ErrorIs(t, f.engine.SetLockTierTable(intruder, f.tiers, testTiers(), f.now), ErrUnauthorized)
	_, err = f.engine.CreateLockTierTable(intruder, f.state, testTiers(), f.now)
	assert.ErrorIs(t, err, ErrUnauthorized)

	assert.Equal(t, uint64(10), f.state.TotalWeight)
	assert.Equal(t, uint64(10), f.state.EmissionRate)
}

func TestIncompletePoolSet(t *testing.T) {
	f := newFixture(t, 10)
	a := f.addPool(10, 1)
	b := f.addPool(20, 1)
	closed := f.addPool(0, 1)
	require.NoError(t, f.engine.ClosePool(admin, f.state, f.active(), closed, f.now))

	forged := b.Clone()
	forged.Weight = 30

	tests := []struct {
		name string
		set  []*Pool
	}{
		{"missing pool", []*Pool{a}},
		{"duplicate", []*Pool{a, a}},
		{"closed pool", []*Pool{a, closed}},
		{"weight mismatch", []*Pool{a, forged}},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.engine.ChangeEmissionRate(admin, f.state, tt.set, 99, f.now)
			assert.ErrorIs(t, err, ErrIncompletePoolSet)
			assert.Equal(t, uint64(10), f.state.EmissionRate)

			_, err = f.engine.CreatePool(admin, f.state, tt.set, "STK", "pool:x", 1, 1, f.now)
			assert.ErrorIs(t, err, ErrIncompletePoolSet)
		})
	}

	assert.NoError(t, ValidatePoolSet(f.state, []*Pool{b, a}))
}

func TestChangeEmissionRateSettlesAtOldRate(t *testing.T) {
	f := newFixture(t, 10)
	a := f.addPool(1, 1)
	b := f.addPool(3, 1)
	ua, aPos := f.user("a", a, 100)
	ub, bPos := f.user("b", b, 100)
	f.stake(ua, a, aPos, 100, 0)
	f.stake(ub, b, bPos, 100, 0)

	f.advance(20)
	require.NoError(t, f.engine.ChangeEmissionRate(admin, f.state, f.active(), 30, f.now))
	assert.Equal(t, f.now, a.LastSettleTime)
	assert.Equal(t, f.now, b.LastSettleTime)

	f.advance(20)
	// 20s at 10/s then 20s at 30/s, split 1:3
	assert.Equal(t, uint64(50+150), f.harvest(ua, a, aPos))
	assert.Equal(t, uint64(150+450), f.harvest(ub, b, bPos))
}

func TestCreatePoolDilutesExistingPools(t *testing.T) {
	f := newFixture(t, 10)
	a := f.addPool(100, 1)
	ua, aPos := f.user("a", a, 100)
	f.stake(ua, a, aPos, 100, 0)

	f.advance(10)
	b := f.addPool(300, 1)
	assert.Equal(t, PoolID(2), b.ID)
	assert.Equal(t, uint64(400), f.state.TotalWeight)
	assert.Equal(t, uint64(2), f.state.ActivePools)
	assert.Equal(t, f.now, a.LastSettleTime)

	f.advance(10)
	assert.Equal(t, uint64(100+25), f.harvest(ua, a, aPos))
}

func TestClosePool(t *testing.T) {
	f := newFixture(t, 10)
	a := f.addPool(100, 1)
	b := f.addPool(300, 1)
	ua, aPos := f.user("a", a, 100)
	f.stake(ua, a, aPos, 100, 0)

	err := f.engine.ClosePool(admin, f.state, f.active(), a, f.now)
	assert.ErrorIs(t, err, ErrPoolNotEmpty)
	assert.False(t, a.Closed)

	require.NoError(t, f.engine.ClosePool(admin, f.state, f.active(), b, f.now))
	assert.True(t, b.Closed)
	assert.Equal(t, uint64(100), f.state.TotalWeight)
	assert.Equal(t, uint64(1), f.state.ActivePools)
	assert.NoError(t, ValidatePoolSet(f.state, f.active()))

	assert.ErrorIs(t, f.engine.ClosePool(admin, f.state, f.active(), b, f.now), ErrPoolClosed)
	assert.ErrorIs(t, f.engine.ChangePoolWeight(admin, f.state, f.active(), b, 5, f.now), ErrPoolClosed)
	assert.ErrorIs(t, f.engine.ChangePoolAmountMultiplier(admin, f.state, b, 5, f.now), ErrPoolClosed)

	_, _, err = f.engine.CreateUserPosition("late", b, nil, f.now)
	assert.ErrorIs(t, err, ErrPoolClosed)

	// a closed pool never accrues and cannot take stake
	late := &Position{Pool: b.ID, Owner: "late", RawStaked: uint256.NewInt(0), EffectiveWeight: uint256.NewInt(0),
		RewardDebt: uint256.NewInt(0), PendingReward: uint256.NewInt(0)}
	acct := Account{Wallet: "late", StakeVault: "wallet:late:STK", RewardVault: "wallet:late:RWD"}
	f.ledger.mint(acct.StakeVault, 10)
	err = f.engine.Stake(acct, f.state, f.tiers, b, late, uint256.NewInt(10), 0, f.now)
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestSetLockTierTableKeepsCapturedBonus(t *testing.T) {
	f := newFixture(t, 10)
	pool := f.addPool(1, 1)
	acct, pos := f.user("alice", pool, 200)
	f.stake(acct, pool, pos, 100, 1)
	require.Equal(t, uint64(5_000), pos.BonusBasisPoints)

	flat := []LockTier{{0, 0}, {100, 0}}
	require.NoError(t, f.engine.SetLockTierTable(admin, f.tiers, flat, f.now))
	assert.Equal(t, flat, f.tiers.Tiers)
	assert.Equal(t, uint64(150), pos.EffectiveWeight.Uint64())

	// partial unstake keeps the captured bonus
	_, err := f.engine.Unstake(acct, f.state, pool, pos, uint256.NewInt(50), f.now)
	require.NoError(t, err)
	assert.Equal(t, uint64(75), pos.EffectiveWeight.Uint64())

	// a new stake captures the new table's bonus
	f.stake(acct, pool, pos, 50, 1)
	assert.Equal(t, uint64(0), pos.BonusBasisPoints)
	assert.Equal(t, uint64(100), pos.EffectiveWeight.Uint64())

	err = f.engine.Stake(acct, f.state, f.tiers, pool, pos, uint256.NewInt(1), 2, f.now)
	assert.ErrorIs(t, err, ErrInvalidLockDuration)
}

func TestValidateLockTiers(t *testing.T) {
	tests := []struct {
		name  string
		tiers []LockTier
		ok    bool
	}{
		{"default", DefaultLockTiers(), true},
		{"single", []LockTier{{0, 0}}, true},
		{"equal steps", []LockTier{{0, 0}, {0, 0}}, true},
		{"empty", nil, false},
		{"duration decreases", []LockTier{{10, 0}, {5, 100}}, false},
		{"bonus decreases", []LockTier{{0, 100}, {10, 50}}, false},
		{"negative duration", []LockTier{{-1, 0}}, false},
		{"too many", make([]LockTier, MaxLockTiers+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLockTiers(tt.tiers)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTierSequence)
			}
		})
	}
}

func TestSettleIsIdempotent(t *testing.T) {
	f := newFixture(t, 10)
	pool := f.addPool(1, 1)
	acct, pos := f.user("alice", pool, 100)
	f.stake(acct, pool, pos, 100, 0)

	require.NoError(t, pool.Settle(f.state, f.now+10))
	once := pool.Clone()
	require.NoError(t, pool.Settle(f.state, f.now+10))
	assert.Equal(t, once, pool)

	// a clock that went backwards neither accrues nor rewinds
	require.NoError(t, pool.Settle(f.state, f.now+5))
	assert.Equal(t, once, pool)

	require.NoError(t, pool.Settle(f.state, f.now+20))
	assert.Equal(t, f.now+20, pool.LastSettleTime)
	assert.True(t, pool.AccRewardPerUnit.Gt(once.AccRewardPerUnit))
}

func TestSumInvariantsHoldAcrossOperations(t *testing.T) {
	f := newFixture(t, 17)
	pools := []*Pool{f.addPool(3, 1), f.addPool(5, 2), f.addPool(11, 7)}

	type holder struct {
		acct Account
		pos  *Position
		pool *Pool
	}
	var holders []holder
	for i := 0; i < 9; i++ {
		pool := pools[i%len(pools)]
		acct, pos := f.user(fmt.Sprintf("user%d", i), pool, 10_000)
		holders = append(holders, holder{acct, pos, pool})
	}

	check := func(step string) {
		t.Helper()
		for _, p := range pools {
			raw, weighted := uint256.NewInt(0), uint256.NewInt(0)
			for _, h := range holders {
				if h.pool == p {
					raw.Add(raw, h.pos.RawStaked)
					weighted.Add(weighted, h.pos.EffectiveWeight)
				}
			}
			assert.Equal(t, raw.Dec(), p.RawStaked.Dec(), "%s: pool %d raw", step, p.ID)
			assert.Equal(t, weighted.Dec(), p.WeightedStaked.Dec(), "%s: pool %d weighted", step, p.ID)
		}
		assert.NoError(t, ValidatePoolSet(f.state, f.active()), step)
	}

	var paid uint64
	for round := 0; round < 6; round++ {
		for i, h := range holders {
			f.advance(int64(1 + (i*round)%7))
			switch (i + round) % 4 {
			case 0, 1:
				f.stake(h.acct, h.pool, h.pos, uint64(50+i*13+round), min((i+round)/2, len(f.tiers.Tiers)-1))
			case 2:
				half := new(uint256.Int).Rsh(h.pos.RawStaked, 1)
				if half.IsZero() {
					continue
				}
				reward, err := f.engine.Unstake(h.acct, f.state, h.pool, h.pos, half, f.now)
				require.NoError(t, err)
				paid += reward.Uint64()
			case 3:
				paid += f.harvest(h.acct, h.pool, h.pos)
			}
			check(fmt.Sprintf("round %d holder %d", round, i))
		}
		require.NoError(t, f.engine.ChangePoolWeight(admin, f.state, f.active(), pools[round%len(pools)], uint64(round+1), f.now))
		check(fmt.Sprintf("reweigh round %d", round))
	}

	for _, h := range holders {
		paid += f.harvest(h.acct, h.pool, h.pos)
	}
	emitted := uint64(f.now-startTime) * f.state.EmissionRate
	assert.LessOrEqual(t, paid, emitted, "payouts never exceed emission")
	assert.Equal(t, uint64(1_000_000_000_000)-paid, f.ledger.balance(rewardVault))
}
