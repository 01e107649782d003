package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/leafsii/leafsii-farm/internal/farm"
	"github.com/leafsii/leafsii-farm/internal/ledger"
	"github.com/leafsii/leafsii-farm/internal/store"
	"github.com/leafsii/leafsii-farm/pkg/kv"
	"github.com/leafsii/leafsii-farm/pkg/kv/memory"
)

const (
	admin farm.Address = "0xa11ce"
	alice farm.Address = "0xb0b"
	carol farm.Address = "0xca201"
)

type fakeClock struct {
	mu  sync.Mutex
	now int64
}

func (c *fakeClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(seconds int64) {
	c.mu.Lock()
	c.now += seconds
	c.mu.Unlock()
}

type recordingSink struct {
	mu     sync.Mutex
	events []store.EventRecord
}

func (r *recordingSink) AppendEvents(_ context.Context, events []store.EventRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *recordingSink) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *recordingSink) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

type mockSink struct {
	mock.Mock
}

func (m *mockSink) AppendEvents(ctx context.Context, events []store.EventRecord) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

// ctxStore fails reads once the caller's context is done.
type ctxStore struct {
	kv.Store
}

func (c ctxStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Store.Get(ctx, key)
}

func (c ctxStore) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Store.MGet(ctx, keys...)
}

type harness struct {
	svc   *Service
	clock *fakeClock
	sink  *recordingSink
	ctx   context.Context
}

// newHarness sets up a farm emitting 10 reward units per second with the
// default tiers, one pool of weight 100 and a funded reward vault.
func newHarness(t *testing.T) *harness {
	t.Helper()
	kvStore := memory.New(0)
	t.Cleanup(func() { kvStore.Close() })
	return newHarnessOn(t, kvStore)
}

func newHarnessOn(t *testing.T, kvStore kv.Store) *harness {
	t.Helper()
	h := &harness{
		clock: &fakeClock{now: 1_700_000_000},
		sink:  &recordingSink{},
		ctx:   context.Background(),
	}
	h.svc = New(kvStore, Options{Clock: h.clock, Sinks: []EventSink{h.sink}, Faucet: true})

	_, err := h.svc.Initialize(h.ctx, admin, 10)
	require.NoError(t, err)
	_, err = h.svc.CreateLockTiers(h.ctx, admin, farm.DefaultLockTiers())
	require.NoError(t, err)
	_, err = h.svc.CreatePool(h.ctx, admin, "STK", 100, 1)
	require.NoError(t, err)

	h.mint(t, admin, ledger.RewardAsset, 1_000_000)
	require.NoError(t, h.svc.FundRewards(h.ctx, admin, uint256.NewInt(1_000_000)))
	h.sink.reset()
	return h
}

func (h *harness) mint(t *testing.T, wallet farm.Address, asset string, amount uint64) {
	t.Helper()
	_, err := h.svc.Faucet(h.ctx, wallet, asset, uint256.NewInt(amount))
	require.NoError(t, err)
}

func (h *harness) balance(t *testing.T, wallet farm.Address, asset string) uint64 {
	t.Helper()
	bal, err := h.svc.Balance(h.ctx, wallet, asset)
	require.NoError(t, err)
	return bal.Uint64()
}

func TestStakeHarvestRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.mint(t, alice, "STK", 500)

	pos, err := h.svc.Stake(h.ctx, alice, 1, uint256.NewInt(100), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), pos.RawStaked.Uint64())
	assert.Equal(t, uint64(400), h.balance(t, alice, "STK"))

	h.clock.advance(10)

	view, err := h.svc.Position(h.ctx, 1, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), view.Pending.Uint64())

	_, reward, err := h.svc.Harvest(h.ctx, alice, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), reward.Uint64())
	assert.Equal(t, uint64(100), h.balance(t, alice, ledger.RewardAsset))

	vault, err := h.svc.RewardVaultBalance(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(999_900), vault.Uint64())

	assert.Equal(t, []string{"USER_CREATED", "USER_STAKED", "USER_HARVESTED"}, h.sink.types())
}

func TestFailedOperationCommitsNothing(t *testing.T) {
	h := newHarness(t)
	h.mint(t, alice, "STK", 100)
	_, err := h.svc.Stake(h.ctx, alice, 1, uint256.NewInt(100), 0)
	require.NoError(t, err)
	h.clock.advance(10)
	h.sink.reset()

	before, err := h.svc.Pool(h.ctx, 1)
	require.NoError(t, err)

	_, _, err = h.svc.Unstake(h.ctx, alice, 1, uint256.NewInt(101))
	assert.ErrorIs(t, err, farm.ErrOverStakedAmount)

	after, err := h.svc.Pool(h.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, uint64(0), h.balance(t, alice, "STK"))
	assert.Empty(t, h.sink.types())
}

func TestStakeWithoutFundsDoesNotCreatePosition(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Stake(h.ctx, carol, 1, uint256.NewInt(10), 0)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	_, err = h.svc.Position(h.ctx, 1, carol)
	assert.ErrorIs(t, err, ErrPositionNotFound)

	pool, err := h.svc.Pool(h.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), pool.UserCount)
}

func TestUnstakePaysPrincipalAndReward(t *testing.T) {
	h := newHarness(t)
	h.mint(t, alice, "STK", 100)
	_, err := h.svc.Stake(h.ctx, alice, 1, uint256.NewInt(100), 1)
	require.NoError(t, err)
	h.clock.advance(10)

	// Weight 110 under the 10% tier; the accumulator rounds down to 99.
	pos, reward, err := h.svc.Unstake(h.ctx, alice, 1, uint256.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, uint64(99), reward.Uint64())
	assert.True(t, pos.RawStaked.IsZero())
	assert.Equal(t, int64(0), pos.LockExpiry)
	assert.Equal(t, uint64(100), h.balance(t, alice, "STK"))
	assert.Equal(t, uint64(99), h.balance(t, alice, ledger.RewardAsset))
}

func TestTwoPoolsSplitEmission(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.CreatePool(h.ctx, admin, "LP", 300, 1)
	require.NoError(t, err)

	h.mint(t, alice, "STK", 50)
	h.mint(t, carol, "LP", 50)
	_, err = h.svc.Stake(h.ctx, alice, 1, uint256.NewInt(50), 0)
	require.NoError(t, err)
	_, err = h.svc.Stake(h.ctx, carol, 2, uint256.NewInt(50), 0)
	require.NoError(t, err)

	h.clock.advance(100)

	a, err := h.svc.Position(h.ctx, 1, alice)
	require.NoError(t, err)
	c, err := h.svc.Position(h.ctx, 2, carol)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), a.Pending.Uint64())
	assert.Equal(t, uint64(750), c.Pending.Uint64())

	stats, err := h.svc.AllPoolStats(h.ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "2.5", stats[0].EmissionPerSecond.String())
	assert.Equal(t, "0.75", stats[1].ShareOfEmission.String())
}

func TestAdminOperations(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.ChangeEmissionRate(h.ctx, alice, 20)
	assert.ErrorIs(t, err, farm.ErrUnauthorized)

	state, err := h.svc.ChangeEmissionRate(h.ctx, admin, 20)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), state.EmissionRate)

	pool, err := h.svc.ChangePoolWeight(h.ctx, admin, 1, 40)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), pool.Weight)

	state, err = h.svc.State(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), state.TotalWeight)

	pool, err = h.svc.ChangePoolAmountMultiplier(h.ctx, admin, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), pool.AmountMultiplier)

	_, err = h.svc.ClosePool(h.ctx, admin, 9)
	assert.ErrorIs(t, err, ErrPoolNotFound)

	pool, err = h.svc.ClosePool(h.ctx, admin, 1)
	require.NoError(t, err)
	assert.True(t, pool.Closed)

	_, err = h.svc.ClosePool(h.ctx, admin, 1)
	assert.ErrorIs(t, err, farm.ErrPoolClosed)

	state, err = h.svc.State(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), state.TotalWeight)
	assert.Equal(t, uint64(0), state.ActivePools)

	assert.Equal(t, []string{
		"RATE_CHANGED", "POOL_WEIGHT_CHANGED", "POOL_AMOUNT_MULTIPLIER_CHANGED", "POOL_CLOSED",
	}, h.sink.types())
}

func TestClosePoolWithStakeFails(t *testing.T) {
	h := newHarness(t)
	h.mint(t, alice, "STK", 10)
	_, err := h.svc.Stake(h.ctx, alice, 1, uint256.NewInt(10), 0)
	require.NoError(t, err)

	_, err = h.svc.ClosePool(h.ctx, admin, 1)
	assert.ErrorIs(t, err, farm.ErrPoolNotEmpty)
}

func TestInitializeTwice(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Initialize(h.ctx, admin, 5)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
	_, err = h.svc.CreateLockTiers(h.ctx, admin, farm.DefaultLockTiers())
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestUninitializedFarm(t *testing.T) {
	kvStore := memory.New(0)
	defer kvStore.Close()
	svc := New(kvStore, Options{})

	_, err := svc.State(context.Background())
	assert.ErrorIs(t, err, farm.ErrNotInitialized)
	_, err = svc.CreatePool(context.Background(), admin, "STK", 1, 1)
	assert.ErrorIs(t, err, farm.ErrNotInitialized)
	_, err = svc.Faucet(context.Background(), alice, "STK", uint256.NewInt(1))
	assert.ErrorIs(t, err, ErrFaucetDisabled)
}

func TestCreatePositionIsIdempotent(t *testing.T) {
	h := newHarness(t)

	first, err := h.svc.CreatePosition(h.ctx, alice, 1)
	require.NoError(t, err)
	h.clock.advance(5)
	second, err := h.svc.CreatePosition(h.ctx, alice, 1)
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	pool, err := h.svc.Pool(h.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), pool.UserCount)

	views, err := h.svc.WalletPositions(h.ctx, alice)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, farm.PoolID(1), views[0].Pool)

	assert.Equal(t, []string{"USER_CREATED"}, h.sink.types())
}

func TestMetadata(t *testing.T) {
	h := newHarness(t)

	meta, err := h.svc.Metadata(h.ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, meta)

	value := "0x00000000000000000000000000000000000000aa"
	require.NoError(t, h.svc.SetMetadata(h.ctx, alice, alice, value))
	meta, err = h.svc.Metadata(h.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, value, meta)

	err = h.svc.SetMetadata(h.ctx, carol, alice, "0x1")
	assert.ErrorIs(t, err, farm.ErrUnauthorized)
}

func TestSinkFailureDoesNotFailOperation(t *testing.T) {
	h := newHarness(t)
	failing := &mockSink{}
	failing.On("AppendEvents", mock.Anything, mock.Anything).Return(errors.New("journal down"))
	h.svc.AddSink(failing)

	_, err := h.svc.CreatePosition(h.ctx, alice, 1)
	require.NoError(t, err)
	failing.AssertNumberOfCalls(t, "AppendEvents", 1)
	assert.Equal(t, []string{"USER_CREATED"}, h.sink.types())
}

func TestConcurrentStakesAreSerialized(t *testing.T) {
	h := newHarness(t)
	wallets := []farm.Address{"0x1", "0x2", "0x3", "0x4", "0x5", "0x6", "0x7", "0x8"}
	for _, w := range wallets {
		h.mint(t, w, "STK", 10)
	}

	var wg sync.WaitGroup
	for _, w := range wallets {
		wg.Add(1)
		go func(w farm.Address) {
			defer wg.Done()
			_, err := h.svc.Stake(h.ctx, w, 1, uint256.NewInt(10), 0)
			assert.NoError(t, err)
		}(w)
	}
	wg.Wait()

	pool, err := h.svc.Pool(h.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(80), pool.RawStaked.Uint64())
	assert.Equal(t, uint64(len(wallets)), pool.UserCount)
}

func TestAllPoolStatsConcurrentCallers(t *testing.T) {
	h := newHarness(t)
	h.mint(t, alice, "STK", 100)
	_, err := h.svc.Stake(h.ctx, alice, 0, uint256.NewInt(100), 0)
	require.NoError(t, err)
	h.clock.advance(10)

	var wg sync.WaitGroup
	results := make([][]*PoolStats, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.svc.AllPoolStats(h.ctx)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		require.Len(t, results[i], 1)
		assert.Equal(t, h.clock.Now(), results[i][0].At)
		assert.Equal(t, uint64(100), results[i][0].Pool.RawStaked.Uint64())
	}
}

func TestAllPoolStatsIgnoresCallerCancellation(t *testing.T) {
	kvStore := memory.New(0)
	t.Cleanup(func() { kvStore.Close() })
	h := newHarnessOn(t, ctxStore{Store: kvStore})

	cancelled, cancel := context.WithCancel(h.ctx)
	cancel()
	stats, err := h.svc.AllPoolStats(cancelled)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, h.clock.Now(), stats[0].At)
}
