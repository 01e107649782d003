package farm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

const (
	admin       Address = "0xa11ce"
	rewardVault VaultID = "rewards"
	startTime   int64   = 1_700_000_000
)

var errInsufficient = errors.New("insufficient balance")

// memLedger is an in-process Ledger used by engine tests.
type memLedger struct {
	balances map[VaultID]*uint256.Int
	moves    int
}

func newMemLedger() *memLedger {
	return &memLedger{balances: make(map[VaultID]*uint256.Int)}
}

func (l *memLedger) mint(v VaultID, amount uint64) {
	b := l.balances[v]
	if b == nil {
		b = new(uint256.Int)
	}
	l.balances[v] = new(uint256.Int).Add(b, uint256.NewInt(amount))
}

func (l *memLedger) Balance(v VaultID) (*uint256.Int, error) {
	if b, ok := l.balances[v]; ok {
		return new(uint256.Int).Set(b), nil
	}
	return new(uint256.Int), nil
}

func (l *memLedger) Move(ts ...Transfer) error {
	staged := make(map[VaultID]*uint256.Int)
	get := func(v VaultID) *uint256.Int {
		if b, ok := staged[v]; ok {
			return b
		}
		b, _ := l.Balance(v)
		staged[v] = b
		return b
	}
	for _, tr := range ts {
		from := get(tr.From)
		if from.Lt(tr.Amount) {
			return fmt.Errorf("%w: %s has %s, needs %s", errInsufficient, tr.From, from.Dec(), tr.Amount.Dec())
		}
		from.Sub(from, tr.Amount)
		to := get(tr.To)
		to.Add(to, tr.Amount)
	}
	for v, b := range staged {
		l.balances[v] = b
	}
	l.moves++
	return nil
}

func (l *memLedger) balance(v VaultID) uint64 {
	b, _ := l.Balance(v)
	return b.Uint64()
}

func testTiers() []LockTier {
	return []LockTier{
		{DurationSeconds: 0, BonusBasisPoints: 0},
		{DurationSeconds: 100, BonusBasisPoints: 5_000},
		{DurationSeconds: 200, BonusBasisPoints: 10_000},
		{DurationSeconds: 300, BonusBasisPoints: 10_000},
	}
}

type fixture struct {
	t      *testing.T
	ledger *memLedger
	engine *Engine
	state  *GlobalState
	tiers  *LockTierTable
	pools  []*Pool
	now    int64
}

func newFixture(t *testing.T, rate uint64) *fixture {
	t.Helper()
	f := &fixture{t: t, ledger: newMemLedger(), now: startTime}
	f.engine = NewEngine(f.ledger)
	f.ledger.mint(rewardVault, 1_000_000_000_000)
	f.state = f.engine.CreateGlobalState(admin, rate, rewardVault, f.now)

	tiers, err := f.engine.CreateLockTierTable(admin, f.state, testTiers(), f.now)
	require.NoError(t, err)
	f.tiers = tiers
	return f
}

func (f *fixture) active() []*Pool {
	var out []*Pool
	for _, p := range f.pools {
		if !p.Closed {
			out = append(out, p)
		}
	}
	return out
}

func (f *fixture) addPool(weight, multiplier uint64) *Pool {
	f.t.Helper()
	vault := VaultID(fmt.Sprintf("pool:%d", f.state.NextPoolID))
	p, err := f.engine.CreatePool(admin, f.state, f.active(), "STK", vault, weight, multiplier, f.now)
	require.NoError(f.t, err)
	f.pools = append(f.pools, p)
	return p
}

func (f *fixture) user(name string, pool *Pool, funds uint64) (Account, *Position) {
	f.t.Helper()
	acct := Account{
		Wallet:      Address(name),
		StakeVault:  VaultID("wallet:" + name + ":STK"),
		RewardVault: VaultID("wallet:" + name + ":RWD"),
	}
	f.ledger.mint(acct.StakeVault, funds)
	pos, created, err := f.engine.CreateUserPosition(acct.Wallet, pool, nil, f.now)
	require.NoError(f.t, err)
	require.True(f.t, created)
	return acct, pos
}

func (f *fixture) stake(acct Account, pool *Pool, pos *Position, amount uint64, tier int) {
	f.t.Helper()
	require.NoError(f.t, f.engine.Stake(acct, f.state, f.tiers, pool, pos, uint256.NewInt(amount), tier, f.now))
}

func (f *fixture) harvest(acct Account, pool *Pool, pos *Position) uint64 {
	f.t.Helper()
	paid, err := f.engine.Harvest(acct, f.state, pool, pos, f.now)
	require.NoError(f.t, err)
	return paid.Uint64()
}

func (f *fixture) advance(seconds int64) {
	f.now += seconds
}

func (f *fixture) snapshot() map[VaultID]uint64 {
	out := make(map[VaultID]uint64, len(f.ledger.balances))
	for v, b := range f.ledger.balances {
		out[v] = b.Uint64()
	}
	return out
}
