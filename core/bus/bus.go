// Package bus provides the cross-tab broadcast channel. Every transport
// shares the same contract: a published message reaches every other tab on
// the same bus, never the sender; delivery is FIFO per sender with no
// ordering guarantee across senders and no delivery guarantee at all.
package bus

import (
	"context"
	"errors"

	"SyncFM/model"
)

// Logical channels.
const (
	ChannelPlayer = "player"
	ChannelAuth   = "auth"
)

// ErrBusUnavailable reports that no broadcast primitive could be reached.
// Callers degrade to a Noop bus rather than failing the tab.
var ErrBusUnavailable = errors.New("bus: broadcast primitive unavailable")

// Handler receives messages delivered on a subscribed channel.
type Handler func(msg model.Message)

// Bus is the broadcast primitive shared by all tabs of one browser profile.
type Bus interface {
	// Publish sends msg to every other subscriber of channel. It returns
	// immediately; delivery is asynchronous and best-effort.
	Publish(ctx context.Context, channel string, msg model.Message) error

	// Subscribe registers a handler for a channel and returns a cancel
	// function that removes it. Handlers for one subscriber run serially in
	// delivery order.
	Subscribe(channel string, handler Handler) (func(), error)

	Close() error
}

// Noop is the degraded bus for hosts without a broadcast primitive: publish
// is discarded and subscriptions never fire. The tab keeps working as a
// single isolated instance; this is not an error state.
type Noop struct{}

func (Noop) Publish(context.Context, string, model.Message) error { return nil }

func (Noop) Subscribe(string, Handler) (func(), error) { return func() {}, nil }

func (Noop) Close() error { return nil }
