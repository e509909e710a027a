package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"SyncFM/logger"
	"SyncFM/model"

	"github.com/redis/go-redis/v9"
)

const redisChannelPrefix = "syncfm:bus:"

// RedisBus carries the broadcast channels over Redis pub/sub so tabs in
// separate processes (or machines) share one session. Sender exclusion is
// done by device id since Redis delivers to every subscriber including the
// publisher.
type RedisBus struct {
	client   *redis.Client
	deviceID string

	mu       sync.RWMutex
	handlers map[string][]*subscription
	pubsubs  map[string]*redis.PubSub
	closed   bool
}

// NewRedisBus wraps an established Redis client as a Bus for the given tab.
func NewRedisBus(client *redis.Client, deviceID string) *RedisBus {
	return &RedisBus{
		client:   client,
		deviceID: deviceID,
		handlers: make(map[string][]*subscription),
		pubsubs:  make(map[string]*redis.PubSub),
	}
}

// Publish sends msg on a channel. The message carries the sender's device
// id so the local subscriber loop can skip it.
func (b *RedisBus) Publish(ctx context.Context, channel string, msg model.Message) error {
	if msg.SenderID == "" {
		msg.SenderID = b.deviceID
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal bus message: %w", err)
	}
	if err := b.client.Publish(ctx, redisChannelPrefix+channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe registers a handler and, on the first handler for a channel,
// opens the underlying Redis subscription.
func (b *RedisBus) Subscribe(channel string, handler Handler) (func(), error) {
	sub := &subscription{handler: handler}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("redis bus is closed")
	}
	b.handlers[channel] = append(b.handlers[channel], sub)
	_, listening := b.pubsubs[channel]
	if !listening {
		ps := b.client.Subscribe(context.Background(), redisChannelPrefix+channel)
		b.pubsubs[channel] = ps
		go b.receive(channel, ps)
	}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.handlers[channel]
		for i, s := range subs {
			if s == sub {
				b.handlers[channel] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
	return cancel, nil
}

// Close tears down all Redis subscriptions. The client itself is owned by
// the caller.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for channel, ps := range b.pubsubs {
		if err := ps.Close(); err != nil {
			logger.Warn("failed to close redis subscription",
				logger.ErrorField(err),
				logger.String("channel", channel))
		}
	}
	b.pubsubs = make(map[string]*redis.PubSub)
	return nil
}

func (b *RedisBus) receive(channel string, ps *redis.PubSub) {
	for m := range ps.Channel() {
		var msg model.Message
		if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
			logger.Warn("invalid bus message",
				logger.ErrorField(err),
				logger.String("channel", channel))
			continue
		}

		// Never deliver to the sender.
		if msg.SenderID == b.deviceID {
			continue
		}

		b.mu.RLock()
		subs := append([]*subscription(nil), b.handlers[channel]...)
		b.mu.RUnlock()
		for _, s := range subs {
			s.handler(msg)
		}
	}
}
