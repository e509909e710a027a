package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"SyncFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMessage(t *testing.T, msgType model.MessageType, sender string) model.Message {
	t.Helper()
	msg, err := model.NewMessage(msgType, sender, nil)
	require.NoError(t, err)
	return msg
}

type recorder struct {
	mu   sync.Mutex
	msgs []model.Message
}

func (r *recorder) handle(msg model.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *recorder) types() []model.MessageType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.MessageType, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Type
	}
	return out
}

func TestMemoryBusNeverDeliversToSender(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()

	a := broker.Endpoint()
	b := broker.Endpoint()

	var recA, recB recorder
	_, err := a.Subscribe(ChannelPlayer, recA.handle)
	require.NoError(t, err)
	_, err = b.Subscribe(ChannelPlayer, recB.handle)
	require.NoError(t, err)

	require.NoError(t, a.Publish(context.Background(), ChannelPlayer, mustMessage(t, model.MsgPlayerControl, "tab-a")))

	require.Eventually(t, func() bool { return recB.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, recA.count())
}

func TestMemoryBusChannelsAreIsolated(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()

	a := broker.Endpoint()
	b := broker.Endpoint()

	var player, auth recorder
	b.Subscribe(ChannelPlayer, player.handle)
	b.Subscribe(ChannelAuth, auth.handle)

	a.Publish(context.Background(), ChannelAuth, mustMessage(t, model.MsgRequestToken, "tab-a"))

	require.Eventually(t, func() bool { return auth.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, player.count())
}

func TestMemoryBusPerSenderFIFO(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()

	a := broker.Endpoint()
	b := broker.Endpoint()

	var rec recorder
	b.Subscribe(ChannelPlayer, rec.handle)

	order := []model.MessageType{
		model.MsgPlayerStateUpdate,
		model.MsgPlayerControl,
		model.MsgFocusResponse,
	}
	for _, msgType := range order {
		a.Publish(context.Background(), ChannelPlayer, mustMessage(t, msgType, "tab-a"))
	}

	require.Eventually(t, func() bool { return rec.count() == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, order, rec.types())
}

func TestMemoryBusCancelStopsDelivery(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()

	a := broker.Endpoint()
	b := broker.Endpoint()

	var rec recorder
	cancel, err := b.Subscribe(ChannelPlayer, rec.handle)
	require.NoError(t, err)

	a.Publish(context.Background(), ChannelPlayer, mustMessage(t, model.MsgPlayerControl, "tab-a"))
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	a.Publish(context.Background(), ChannelPlayer, mustMessage(t, model.MsgPlayerControl, "tab-a"))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestClosedEndpointReceivesNothing(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()

	a := broker.Endpoint()
	b := broker.Endpoint()

	var rec recorder
	b.Subscribe(ChannelPlayer, rec.handle)
	require.NoError(t, b.Close())

	a.Publish(context.Background(), ChannelPlayer, mustMessage(t, model.MsgPlayerControl, "tab-a"))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, rec.count())
}

func TestNoopBusIsInert(t *testing.T) {
	var n Noop

	fired := false
	cancel, err := n.Subscribe(ChannelAuth, func(model.Message) { fired = true })
	require.NoError(t, err)

	require.NoError(t, n.Publish(context.Background(), ChannelAuth, mustMessage(t, model.MsgRequestToken, "tab-a")))
	cancel()

	assert.False(t, fired)
	assert.NoError(t, n.Close())
}
