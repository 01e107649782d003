package farm

import (
	"fmt"

	"github.com/leafsii/leafsii-farm/internal/calc"
)

func requireAuthority(authority, caller Address) error {
	if caller != authority {
		return fmt.Errorf("%w: %s is not the farm authority", ErrUnauthorized, caller)
	}
	return nil
}

// CreateGlobalState returns the farm singleton with caller as its authority.
func (e *Engine) CreateGlobalState(caller Address, emissionRate uint64, rewardVault VaultID, now int64) *GlobalState {
	state := &GlobalState{
		Authority:    caller,
		EmissionRate: emissionRate,
		RewardVault:  rewardVault,
		StartTime:    now,
		NextPoolID:   1,
	}
	e.emit(newEvent(EventStateCreated, now, 0, caller).with("rate", emissionRate))
	return state
}

// CreateLockTierTable returns the tier table singleton.
func (e *Engine) CreateLockTierTable(caller Address, state *GlobalState, tiers []LockTier, now int64) (*LockTierTable, error) {
	if err := requireAuthority(state.Authority, caller); err != nil {
		return nil, err
	}
	if err := ValidateLockTiers(tiers); err != nil {
		return nil, err
	}

	table := &LockTierTable{Authority: caller, Tiers: append([]LockTier(nil), tiers...)}
	e.emit(newEvent(EventLockTiersChanged, now, 0, caller).with("tiers", uint64(len(tiers))))
	return table, nil
}

// SetLockTierTable replaces the whole table. Existing positions keep the bonus
// they captured when they staked.
func (e *Engine) SetLockTierTable(caller Address, table *LockTierTable, tiers []LockTier, now int64) error {
	if err := requireAuthority(table.Authority, caller); err != nil {
		return err
	}
	if err := ValidateLockTiers(tiers); err != nil {
		return err
	}

	table.Tiers = append([]LockTier(nil), tiers...)
	e.emit(newEvent(EventLockTiersChanged, now, 0, caller).with("tiers", uint64(len(tiers))))
	return nil
}

// ValidatePoolSet checks that pools is exactly the set of active pools: no
// duplicates, nothing closed, and count and weight matching the global totals.
func ValidatePoolSet(state *GlobalState, pools []*Pool) error {
	if uint64(len(pools)) != state.ActivePools {
		return fmt.Errorf("%w: got %d pools, %d active", ErrIncompletePoolSet, len(pools), state.ActivePools)
	}

	seen := make(map[PoolID]struct{}, len(pools))
	var weight uint64
	for _, p := range pools {
		if p.Closed {
			return fmt.Errorf("%w: pool %d is closed", ErrIncompletePoolSet, p.ID)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: pool %d listed twice", ErrIncompletePoolSet, p.ID)
		}
		seen[p.ID] = struct{}{}

		var err error
		if weight, err = calc.AddUint64(weight, p.Weight); err != nil {
			return overflow("pool set weight", err)
		}
	}

	if weight != state.TotalWeight {
		return fmt.Errorf("%w: weights sum to %d, total weight is %d", ErrIncompletePoolSet, weight, state.TotalWeight)
	}
	return nil
}

// settleAll validates the active set and returns settled copies of it.
func settleAll(state *GlobalState, pools []*Pool, now int64) ([]*Pool, error) {
	if err := ValidatePoolSet(state, pools); err != nil {
		return nil, err
	}
	settled := make([]*Pool, len(pools))
	for i, p := range pools {
		c := p.Clone()
		if err := c.Settle(state, now); err != nil {
			return nil, err
		}
		settled[i] = c
	}
	return settled, nil
}

func commitPools(dst, src []*Pool) {
	for i := range dst {
		*dst[i] = *src[i]
	}
}

func indexOf(pools []*Pool, id PoolID) int {
	for i, p := range pools {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// CreatePool settles every active pool and adds a new one with the given
// weight. active must hold every non-closed pool.
func (e *Engine) CreatePool(caller Address, state *GlobalState, active []*Pool, asset string, vault VaultID, weight, multiplier uint64, now int64) (*Pool, error) {
	if err := requireAuthority(state.Authority, caller); err != nil {
		return nil, err
	}
	if multiplier == 0 {
		return nil, fmt.Errorf("create pool: %w: amount multiplier must be positive", ErrInvalidAmount)
	}

	settled, err := settleAll(state, active, now)
	if err != nil {
		return nil, err
	}

	s := state.Clone()
	if s.TotalWeight, err = calc.AddUint64(s.TotalWeight, weight); err != nil {
		return nil, overflow("create pool", err)
	}
	if s.ActivePools, err = calc.AddUint64(s.ActivePools, 1); err != nil {
		return nil, overflow("create pool", err)
	}
	id := s.NextPoolID
	next, err := calc.AddUint64(uint64(id), 1)
	if err != nil {
		return nil, overflow("create pool", err)
	}
	s.NextPoolID = PoolID(next)

	pool := NewPool(id, asset, vault, weight, multiplier, now)

	commitPools(active, settled)
	*state = *s
	e.emit(newEvent(EventPoolCreated, now, id, caller).
		with("weight", weight).
		with("amount_multiplier", multiplier))
	return pool, nil
}

// ClosePool settles every active pool and retires an empty pool. Its weight
// leaves the total.
func (e *Engine) ClosePool(caller Address, state *GlobalState, active []*Pool, pool *Pool, now int64) error {
	if err := requireAuthority(state.Authority, caller); err != nil {
		return err
	}
	if pool.Closed {
		return fmt.Errorf("close pool %d: %w", pool.ID, ErrPoolClosed)
	}
	if !pool.IsEmpty() {
		return fmt.Errorf("close pool %d: %w", pool.ID, ErrPoolNotEmpty)
	}
	idx := indexOf(active, pool.ID)
	if idx < 0 {
		return fmt.Errorf("%w: pool %d missing", ErrIncompletePoolSet, pool.ID)
	}

	settled, err := settleAll(state, active, now)
	if err != nil {
		return err
	}

	s := state.Clone()
	target := settled[idx]
	if s.TotalWeight, err = calc.SubUint64(s.TotalWeight, target.Weight); err != nil {
		return overflow("close pool", err)
	}
	if s.ActivePools, err = calc.SubUint64(s.ActivePools, 1); err != nil {
		return overflow("close pool", err)
	}
	target.Closed = true

	commitPools(active, settled)
	*pool = *target
	*state = *s
	e.emit(newEvent(EventPoolClosed, now, pool.ID, caller))
	return nil
}

// ChangePoolWeight settles every active pool and then moves pool to
// newWeight, adjusting the total by the difference.
func (e *Engine) ChangePoolWeight(caller Address, state *GlobalState, active []*Pool, pool *Pool, newWeight uint64, now int64) error {
	if err := requireAuthority(state.Authority, caller); err != nil {
		return err
	}
	if pool.Closed {
		return fmt.Errorf("change weight of pool %d: %w", pool.ID, ErrPoolClosed)
	}
	idx := indexOf(active, pool.ID)
	if idx < 0 {
		return fmt.Errorf("%w: pool %d missing", ErrIncompletePoolSet, pool.ID)
	}

	settled, err := settleAll(state, active, now)
	if err != nil {
		return err
	}

	s := state.Clone()
	target := settled[idx]
	if s.TotalWeight, err = calc.SubUint64(s.TotalWeight, target.Weight); err != nil {
		return overflow("change pool weight", err)
	}
	if s.TotalWeight, err = calc.AddUint64(s.TotalWeight, newWeight); err != nil {
		return overflow("change pool weight", err)
	}
	target.Weight = newWeight

	commitPools(active, settled)
	*pool = *target
	*state = *s
	e.emit(newEvent(EventPoolWeightChanged, now, pool.ID, caller).with("weight", newWeight))
	return nil
}

// ChangePoolAmountMultiplier sets the multiplier applied to future stake and
// unstake calls. Pool shares of the emission are unchanged, so only pool itself
// is settled.
func (e *Engine) ChangePoolAmountMultiplier(caller Address, state *GlobalState, pool *Pool, multiplier uint64, now int64) error {
	if err := requireAuthority(state.Authority, caller); err != nil {
		return err
	}
	if pool.Closed {
		return fmt.Errorf("change multiplier of pool %d: %w", pool.ID, ErrPoolClosed)
	}
	if multiplier == 0 {
		return fmt.Errorf("change multiplier: %w: amount multiplier must be positive", ErrInvalidAmount)
	}

	p := pool.Clone()
	if err := p.Settle(state, now); err != nil {
		return err
	}
	p.AmountMultiplier = multiplier

	*pool = *p
	e.emit(newEvent(EventPoolMultiplierSet, now, pool.ID, caller).with("amount_multiplier", multiplier))
	return nil
}

// ChangeEmissionRate settles every active pool at the old rate before
// switching to rate.
func (e *Engine) ChangeEmissionRate(caller Address, state *GlobalState, active []*Pool, rate uint64, now int64) error {
	if err := requireAuthority(state.Authority, caller); err != nil {
		return err
	}

	settled, err := settleAll(state, active, now)
	if err != nil {
		return err
	}

	commitPools(active, settled)
	state.EmissionRate = rate
	e.emit(newEvent(EventRateChanged, now, 0, caller).with("rate", rate))
	return nil
}
