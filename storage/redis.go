package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"SyncFM/logger"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix    = "syncfm:kv:"
	redisChangePrefix = "syncfm:kvchange:"
)

// casScript atomically swaps a key if its current value matches. ARGV[1] is
// the expected value ("" meaning absent), ARGV[2] the new value.
var casScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if (current == false and ARGV[1] == '') or current == ARGV[1] then
  redis.call('SET', KEYS[1], ARGV[2])
  return 1
end
return 0
`)

// Redis is the production Store: values live in Redis and change fan-out
// rides Redis pub/sub, so tabs in distinct processes observe each other's
// writes. It implements Atomic.
type Redis struct {
	client *redis.Client

	mu      sync.RWMutex
	subs    map[string][]*memorySub
	pubsub  *redis.PubSub
	started bool
	closed  bool
}

// NewRedis wraps an established Redis client as a shared store.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{
		client: client,
		subs:   make(map[string][]*memorySub),
	}
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, redisKeyPrefix+key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return v, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, redisKeyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	r.notifyRemote(ctx, key, value)
	return nil
}

func (r *Redis) Clear(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to clear %s: %w", key, err)
	}
	r.notifyRemote(ctx, key, "")
	return nil
}

func (r *Redis) Subscribe(key string, handler func(string)) (func(), error) {
	sub := &memorySub{handler: handler}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("redis store is closed")
	}
	r.subs[key] = append(r.subs[key], sub)
	if !r.started {
		// One pattern subscription covers every key.
		r.pubsub = r.client.PSubscribe(context.Background(), redisChangePrefix+"*")
		r.started = true
		go r.receive(r.pubsub)
	}
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		subs := r.subs[key]
		for i, s := range subs {
			if s == sub {
				r.subs[key] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
	return cancel, nil
}

// CompareAndSwap performs an atomic conditional swap through a Lua script.
func (r *Redis) CompareAndSwap(ctx context.Context, key, old, new string) (bool, error) {
	res, err := casScript.Run(ctx, r.client, []string{redisKeyPrefix + key}, old, new).Int()
	if err != nil {
		return false, fmt.Errorf("failed to cas %s: %w", key, err)
	}
	if res == 1 {
		r.notifyRemote(ctx, key, new)
		return true, nil
	}
	return false, nil
}

// Close tears down the change subscription. The client is owned by the caller.
func (r *Redis) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.pubsub != nil {
		return r.pubsub.Close()
	}
	return nil
}

func (r *Redis) notifyRemote(ctx context.Context, key, value string) {
	if err := r.client.Publish(ctx, redisChangePrefix+key, value).Err(); err != nil {
		logger.Warn("failed to publish store change",
			logger.ErrorField(err),
			logger.String("key", key))
	}
}

func (r *Redis) receive(ps *redis.PubSub) {
	for m := range ps.Channel() {
		key := strings.TrimPrefix(m.Channel, redisChangePrefix)

		r.mu.RLock()
		subs := append([]*memorySub(nil), r.subs[key]...)
		r.mu.RUnlock()
		for _, s := range subs {
			s.handler(m.Payload)
		}
	}
}
