package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/leafsii/leafsii-farm/internal/farm"
)

// EventRecord is the wire and journal form of a farm event.
type EventRecord struct {
	ID     uuid.UUID         `json:"id"`
	Type   string            `json:"type"`
	Time   int64             `json:"time"`
	Pool   uint64            `json:"pool_id,omitempty"`
	Wallet string            `json:"wallet,omitempty"`
	Amount string            `json:"amount,omitempty"`
	Attrs  map[string]string `json:"attrs,omitempty"`
}

func NewEventRecord(e farm.Event) EventRecord {
	r := EventRecord{
		ID:     uuid.New(),
		Type:   string(e.Type),
		Time:   e.Time,
		Pool:   uint64(e.Pool),
		Wallet: string(e.Wallet),
		Attrs:  e.Attrs,
	}
	if e.Amount != nil {
		r.Amount = e.Amount.Dec()
	}
	return r
}

// EventPublisher fans committed events out on their per-type channel.
type EventPublisher struct {
	cache *Cache
}

func NewEventPublisher(cache *Cache) *EventPublisher {
	return &EventPublisher{cache: cache}
}

func (p *EventPublisher) AppendEvents(ctx context.Context, events []EventRecord) error {
	for _, ev := range events {
		if err := p.cache.Publish(ctx, ChannelEventsPrefix+ev.Type, ev); err != nil {
			return fmt.Errorf("publish %s: %w", ev.Type, err)
		}
	}
	return nil
}
