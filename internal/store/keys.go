package store

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"

	"github.com/leafsii/leafsii-farm/internal/farm"
)

const (
	keyState  = "farm:state"
	keyTiers  = "farm:tiers"
	keyPool   = "farm:pool:"
	keyPos    = "farm:position:"
	keyWallet = "farm:wallet:"
	keyMeta   = "farm:meta:"

	// KeyPoolSnapshot caches the latest pool stats published by the snapshot job.
	KeyPoolSnapshot = "farm:pools:snapshot"

	// ChannelPoolSnapshot carries the same payload as KeyPoolSnapshot.
	ChannelPoolSnapshot = "farm:pools:snapshot"
	// ChannelEventsPrefix is followed by the event type, e.g. farm:events:USER_STAKED.
	ChannelEventsPrefix = "farm:events:"
)

// EventChannel is the pub/sub channel for one event type.
func EventChannel(t farm.EventType) string {
	return ChannelEventsPrefix + string(t)
}

// EventChannels lists every event channel, for subscribers that want them all.
func EventChannels() []string {
	types := []farm.EventType{
		farm.EventStateCreated, farm.EventRateChanged, farm.EventLockTiersChanged,
		farm.EventPoolCreated, farm.EventPoolClosed, farm.EventPoolWeightChanged,
		farm.EventPoolMultiplierSet, farm.EventRewardsFunded, farm.EventUserCreated,
		farm.EventUserStaked, farm.EventUserUnstaked, farm.EventUserHarvested,
		farm.EventMetadataChanged,
	}
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = EventChannel(t)
	}
	return out
}

func poolKey(id farm.PoolID) string {
	return keyPool + id.String()
}

// PositionKey derives the record key of (pool, wallet) the way derived
// addresses are seeded: a blake2b-256 digest of the pool id and the owner.
func PositionKey(pool farm.PoolID, wallet farm.Address) string {
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], uint64(pool))
	h, _ := blake2b.New256(nil)
	h.Write(seed[:])
	h.Write([]byte(wallet))
	return keyPos + hex.EncodeToString(h.Sum(nil))
}

func walletPoolsKey(wallet farm.Address) string {
	return keyWallet + string(wallet) + ":pools"
}

func metadataKey(wallet farm.Address) string {
	return keyMeta + string(wallet)
}
