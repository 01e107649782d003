package store

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Message is a payload received on a pub/sub channel.
type Message struct {
	Channel string
	Payload string
}

// Subscription delivers messages until Close is called or its context ends.
type Subscription interface {
	Channel() <-chan *Message
	Close() error
}

type memorySubscription struct {
	channels []string
	ch       chan *Message
	hub      *PubSubHub
	once     sync.Once
}

func (s *memorySubscription) Channel() <-chan *Message {
	return s.ch
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
		close(s.ch)
	})
	return nil
}

// deliver drops the message when the subscriber is not keeping up.
// Called with the hub lock held so it never races Close.
func (s *memorySubscription) deliver(channel, payload string) {
	select {
	case s.ch <- &Message{Channel: channel, Payload: payload}:
	default:
	}
}

// PubSubHub fans messages out to in-process subscribers.
type PubSubHub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*memorySubscription]struct{}
}

func NewPubSubHub() *PubSubHub {
	return &PubSubHub{
		subscribers: make(map[string]map[*memorySubscription]struct{}),
	}
}

func (h *PubSubHub) Subscribe(ctx context.Context, channels ...string) Subscription {
	sub := &memorySubscription{
		channels: channels,
		ch:       make(chan *Message, 100),
		hub:      h,
	}

	h.mu.Lock()
	for _, channel := range channels {
		if h.subscribers[channel] == nil {
			h.subscribers[channel] = make(map[*memorySubscription]struct{})
		}
		h.subscribers[channel][sub] = struct{}{}
	}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		sub.Close()
	}()

	return sub
}

func (h *PubSubHub) unsubscribe(sub *memorySubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, channel := range sub.channels {
		delete(h.subscribers[channel], sub)
		if len(h.subscribers[channel]) == 0 {
			delete(h.subscribers, channel)
		}
	}
}

func (h *PubSubHub) Publish(channel, payload string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subscribers[channel] {
		sub.deliver(channel, payload)
	}
	return len(h.subscribers[channel])
}

// redisSubscription adapts a Redis subscription to Subscription.
type redisSubscription struct {
	pubsub *redis.PubSub
	ch     chan *Message
}

func newRedisSubscription(ctx context.Context, pubsub *redis.PubSub) *redisSubscription {
	sub := &redisSubscription{
		pubsub: pubsub,
		ch:     make(chan *Message, 100),
	}
	go func() {
		defer close(sub.ch)
		for msg := range pubsub.Channel() {
			select {
			case sub.ch <- &Message{Channel: msg.Channel, Payload: msg.Payload}:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		<-ctx.Done()
		pubsub.Close()
	}()
	return sub
}

func (s *redisSubscription) Channel() <-chan *Message {
	return s.ch
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}
