package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"SyncFM/logger"
	"SyncFM/model"

	"github.com/gorilla/websocket"
)

// Frame is the wire format between a tab and the relay hub: the logical
// channel plus the envelope.
type Frame struct {
	Channel string        `json:"channel"`
	Message model.Message `json:"message"`
}

// WSBus connects a tab to the relay hub over a websocket. The hub fans
// every frame out to all other connections, so sender exclusion happens on
// the hub side.
type WSBus struct {
	conn     *websocket.Conn
	deviceID string

	mu       sync.RWMutex
	handlers map[string][]*subscription

	send chan []byte
	done chan struct{}
	once sync.Once
}

// DialHub connects to the relay hub at url (e.g. ws://localhost:8520/ws).
func DialHub(ctx context.Context, url, deviceID string) (*WSBus, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to dial relay hub: %v", ErrBusUnavailable, err)
	}

	b := &WSBus{
		conn:     conn,
		deviceID: deviceID,
		handlers: make(map[string][]*subscription),
		send:     make(chan []byte, 64),
		done:     make(chan struct{}),
	}
	go b.readPump()
	go b.writePump()
	return b, nil
}

// Publish queues a frame for the hub. Returns immediately; a full send
// buffer drops the frame, matching the best-effort contract.
func (b *WSBus) Publish(_ context.Context, channel string, msg model.Message) error {
	if msg.SenderID == "" {
		msg.SenderID = b.deviceID
	}
	data, err := json.Marshal(Frame{Channel: channel, Message: msg})
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	select {
	case b.send <- data:
	case <-b.done:
	default:
		logger.Warn("ws bus send buffer full, dropping frame",
			logger.String("channel", channel),
			logger.String("type", string(msg.Type)))
	}
	return nil
}

// Subscribe registers a handler for a channel.
func (b *WSBus) Subscribe(channel string, handler Handler) (func(), error) {
	sub := &subscription{handler: handler}

	b.mu.Lock()
	b.handlers[channel] = append(b.handlers[channel], sub)
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

// Close shuts the connection down.
func (b *WSBus) Close() error {
	b.once.Do(func() { close(b.done) })
	return b.conn.Close()
}

func (b *WSBus) readPump() {
	defer b.Close()

	b.conn.SetReadLimit(64 * 1024)
	b.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	b.conn.SetPongHandler(func(string) error {
		b.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("ws bus read error", logger.ErrorField(err))
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			logger.Warn("invalid frame from hub", logger.ErrorField(err))
			continue
		}

		// The hub already excludes the sender; this guards against a hub
		// that echoes anyway.
		if frame.Message.SenderID == b.deviceID {
			continue
		}

		b.mu.RLock()
		subs := append([]*subscription(nil), b.handlers[frame.Channel]...)
		b.mu.RUnlock()
		for _, s := range subs {
			s.handler(frame.Message)
		}
	}
}

func (b *WSBus) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		b.conn.Close()
	}()

	for {
		select {
		case data := <-b.send:
			b.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := b.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			b.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := b.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-b.done:
			b.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
