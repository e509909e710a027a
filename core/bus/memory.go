package bus

import (
	"context"
	"sync"

	"SyncFM/logger"
	"SyncFM/model"
)

// envelope pairs a message with the channel it was published on.
type envelope struct {
	channel string
	msg     model.Message
}

// Broker is an in-process bus shared by several tabs running in one
// process. Each tab obtains its own Endpoint; publishing through an
// endpoint delivers to every other endpoint of the same broker.
type Broker struct {
	mu        sync.RWMutex
	endpoints map[*Endpoint]struct{}
	closed    bool
}

// NewBroker creates an empty in-process broker.
func NewBroker() *Broker {
	return &Broker{endpoints: make(map[*Endpoint]struct{})}
}

// Endpoint attaches a new tab to the broker.
func (b *Broker) Endpoint() *Endpoint {
	ep := &Endpoint{
		broker:   b,
		handlers: make(map[string][]*subscription),
		send:     make(chan envelope, 64),
		done:     make(chan struct{}),
	}
	go ep.pump()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.endpoints[ep] = struct{}{}
	return ep
}

// Close detaches every endpoint.
func (b *Broker) Close() {
	b.mu.Lock()
	eps := make([]*Endpoint, 0, len(b.endpoints))
	for ep := range b.endpoints {
		eps = append(eps, ep)
	}
	b.closed = true
	b.mu.Unlock()

	for _, ep := range eps {
		ep.Close()
	}
}

func (b *Broker) dispatch(from *Endpoint, env envelope) {
	b.mu.RLock()
	targets := make([]*Endpoint, 0, len(b.endpoints))
	for ep := range b.endpoints {
		if ep != from {
			targets = append(targets, ep)
		}
	}
	b.mu.RUnlock()

	for _, ep := range targets {
		select {
		case ep.send <- env:
		default:
			// Receiver buffer full: drop, matching the best-effort contract.
			logger.Warn("memory bus dropped message",
				logger.String("channel", env.channel),
				logger.String("type", string(env.msg.Type)))
		}
	}
}

func (b *Broker) remove(ep *Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.endpoints, ep)
}

type subscription struct {
	handler Handler
}

// Endpoint is one tab's view of a Broker. It implements Bus.
type Endpoint struct {
	broker *Broker

	mu       sync.RWMutex
	handlers map[string][]*subscription

	send chan envelope
	done chan struct{}
	once sync.Once
}

// Publish fans msg out to all other endpoints of the broker.
func (e *Endpoint) Publish(_ context.Context, channel string, msg model.Message) error {
	select {
	case <-e.done:
		return nil
	default:
	}
	e.broker.dispatch(e, envelope{channel: channel, msg: msg})
	return nil
}

// Subscribe registers a handler for a channel.
func (e *Endpoint) Subscribe(channel string, handler Handler) (func(), error) {
	sub := &subscription{handler: handler}

	e.mu.Lock()
	e.handlers[channel] = append(e.handlers[channel], sub)
	e.mu.Unlock()

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		subs := e.handlers[channel]
		for i, s := range subs {
			if s == sub {
				e.handlers[channel] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
	return cancel, nil
}

// Close detaches the endpoint from its broker and stops delivery.
func (e *Endpoint) Close() error {
	e.once.Do(func() {
		e.broker.remove(e)
		close(e.done)
	})
	return nil
}

// pump delivers queued envelopes to this endpoint's handlers in order,
// preserving per-sender FIFO.
func (e *Endpoint) pump() {
	for {
		select {
		case env := <-e.send:
			e.mu.RLock()
			subs := append([]*subscription(nil), e.handlers[env.channel]...)
			e.mu.RUnlock()
			for _, s := range subs {
				s.handler(env.msg)
			}
		case <-e.done:
			return
		}
	}
}
