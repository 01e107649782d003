package ws

import (
	"encoding/json"
	"strings"

	"github.com/leafsii/leafsii-farm/internal/farm"
	"github.com/leafsii/leafsii-farm/internal/store"
)

// Client-facing topics:
//
//	pools         pool stats snapshots
//	events        every farm event
//	events:<TYPE> one event type, e.g. events:USER_STAKED
const (
	TopicPools  = "pools"
	TopicEvents = "events"
)

// AllChannels is every pub/sub channel a stream can relay.
func AllChannels() []string {
	return append(store.EventChannels(), store.ChannelPoolSnapshot)
}

// channelsFor maps client topics onto pub/sub channels, dropping unknown ones.
func channelsFor(topics []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(channels ...string) {
		for _, c := range channels {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}

	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		switch {
		case topic == TopicPools:
			add(store.ChannelPoolSnapshot)
		case topic == TopicEvents:
			add(store.EventChannels()...)
		case strings.HasPrefix(topic, TopicEvents+":"):
			channel := store.EventChannel(farm.EventType(strings.TrimPrefix(topic, TopicEvents+":")))
			for _, known := range store.EventChannels() {
				if known == channel {
					add(channel)
				}
			}
		}
	}
	return out
}

func channelToEventType(channel string) string {
	switch {
	case channel == store.ChannelPoolSnapshot:
		return "pools_update"
	case strings.HasPrefix(channel, store.ChannelEventsPrefix):
		return strings.ToLower(strings.TrimPrefix(channel, store.ChannelEventsPrefix)) + "_event"
	default:
		return "update"
	}
}

// matchesWallet reports whether a payload should reach a client following
// wallet. Only wallet events are filtered; pool and farm-wide updates pass.
func matchesWallet(channel, payload string, wallet farm.Address) bool {
	if wallet == "" || !strings.HasPrefix(channel, store.ChannelEventsPrefix) {
		return true
	}
	var ev store.EventRecord
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return false
	}
	if !isWalletEvent(farm.EventType(ev.Type)) {
		return true
	}
	return ev.Wallet == string(wallet)
}

func isWalletEvent(t farm.EventType) bool {
	switch t {
	case farm.EventUserCreated, farm.EventUserStaked, farm.EventUserUnstaked,
		farm.EventUserHarvested, farm.EventMetadataChanged:
		return true
	}
	return false
}

func originAllowed(origin string, allowed []string) bool {
	for _, o := range allowed {
		if o == origin || o == "*" {
			return true
		}
	}
	return false
}
