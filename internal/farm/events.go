package farm

import (
	"strconv"

	"github.com/holiman/uint256"
)

type EventType string

const (
	EventStateCreated      EventType = "STATE_CREATED"
	EventRateChanged       EventType = "RATE_CHANGED"
	EventLockTiersChanged  EventType = "LOCK_TIERS_CHANGED"
	EventPoolCreated       EventType = "POOL_CREATED"
	EventPoolClosed        EventType = "POOL_CLOSED"
	EventPoolWeightChanged EventType = "POOL_WEIGHT_CHANGED"
	EventPoolMultiplierSet EventType = "POOL_AMOUNT_MULTIPLIER_CHANGED"
	EventRewardsFunded     EventType = "REWARDS_FUNDED"
	EventUserCreated       EventType = "USER_CREATED"
	EventUserStaked        EventType = "USER_STAKED"
	EventUserUnstaked      EventType = "USER_UNSTAKED"
	EventUserHarvested     EventType = "USER_HARVESTED"
	EventMetadataChanged   EventType = "METADATA_CHANGED"
)

// Event records one committed state change. Pool is zero for farm-wide events.
type Event struct {
	Type   EventType
	Time   int64
	Pool   PoolID
	Wallet Address
	Amount *uint256.Int
	Attrs  map[string]string
}

func newEvent(typ EventType, now int64, pool PoolID, wallet Address) Event {
	return Event{Type: typ, Time: now, Pool: pool, Wallet: wallet}
}

func (e Event) with(key string, value uint64) Event {
	if e.Attrs == nil {
		e.Attrs = make(map[string]string)
	}
	e.Attrs[key] = strconv.FormatUint(value, 10)
	return e
}

func (e Event) withAmount(amount *uint256.Int) Event {
	e.Amount = new(uint256.Int).Set(amount)
	return e
}
