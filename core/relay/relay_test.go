package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"SyncFM/core/audio"
	"SyncFM/core/bus"
	"SyncFM/core/session"
	"SyncFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOwnership struct {
	owner      bool
	foreground bool
}

func (f fakeOwnership) IsOwner() bool    { return f.owner }
func (f fakeOwnership) Foreground() bool { return f.foreground }

// fakeEngine records transport calls in order.
type fakeEngine struct {
	calls  []string
	loaded []string
}

func (f *fakeEngine) Load(track model.TrackRef) error {
	f.calls = append(f.calls, "load")
	f.loaded = append(f.loaded, track.ID)
	return nil
}
func (f *fakeEngine) Play() error            { f.calls = append(f.calls, "play"); return nil }
func (f *fakeEngine) Pause() error           { f.calls = append(f.calls, "pause"); return nil }
func (f *fakeEngine) Seek(int64) error       { f.calls = append(f.calls, "seek"); return nil }
func (f *fakeEngine) Ticks() <-chan audio.Tick { return nil }
func (f *fakeEngine) Close() error           { return nil }

func playingSession(ids ...string) *session.Store {
	s := session.New()
	for _, id := range ids {
		s.AddToQueue(model.TrackRef{ID: id, Title: "title-" + id, DurationMs: 180000})
	}
	if len(ids) > 0 {
		s.PlayTrack(model.TrackRef{ID: ids[0], Title: "title-" + ids[0], DurationMs: 180000}, false)
	}
	return s
}

func TestOwnerAppliesLocally(t *testing.T) {
	broker := bus.NewBroker()
	defer broker.Close()

	var mu sync.Mutex
	published := 0
	observer := broker.Endpoint()
	observer.Subscribe(bus.ChannelPlayer, func(model.Message) {
		mu.Lock()
		published++
		mu.Unlock()
	})

	sess := playingSession("1", "2")
	r := New(broker.Endpoint(), sess, fakeOwnership{owner: true, foreground: true}, nil, "tab-a")

	r.TogglePlay(context.Background())

	assert.False(t, sess.Snapshot().IsPlaying)
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, published, "owner must not broadcast its own intents")
}

func TestBackgroundOwnerStillAppliesLocally(t *testing.T) {
	sess := playingSession("1", "2")
	r := New(bus.Noop{}, sess, fakeOwnership{owner: true, foreground: false}, nil, "tab-a")

	r.Next(context.Background())

	assert.Equal(t, "2", sess.Snapshot().CurrentTrackID)
}

func TestNonOwnerBroadcastsIntent(t *testing.T) {
	broker := bus.NewBroker()
	defer broker.Close()

	received := make(chan model.Message, 1)
	observer := broker.Endpoint()
	observer.Subscribe(bus.ChannelPlayer, func(msg model.Message) { received <- msg })

	sess := playingSession("1", "2")
	r := New(broker.Endpoint(), sess, fakeOwnership{owner: false}, nil, "tab-a")

	r.Seek(context.Background(), 42000)

	select {
	case msg := <-received:
		assert.Equal(t, model.MsgPlayerControl, msg.Type)
		assert.Equal(t, "tab-a", msg.SenderID)
		var control model.PlayerControl
		require.NoError(t, msg.DecodeData(&control))
		assert.Equal(t, model.ActionSeek, control.Action)
		require.NotNil(t, control.Position)
		assert.Equal(t, int64(42000), *control.Position)
	case <-time.After(time.Second):
		t.Fatal("control never published")
	}

	// The mirror's local session is untouched; the heartbeat carries the
	// result back instead.
	assert.Zero(t, sess.Snapshot().PositionMs)
}

func TestApplyNextDrivesEngine(t *testing.T) {
	engine := &fakeEngine{}
	sess := playingSession("1", "2", "3")
	r := New(bus.Noop{}, sess, fakeOwnership{owner: true}, engine, "tab-a")

	r.Apply(model.PlayerControl{Action: model.ActionNext})

	assert.Equal(t, "2", sess.Snapshot().CurrentTrackID)
	assert.Equal(t, []string{"load", "play"}, engine.calls)
	assert.Equal(t, []string{"2"}, engine.loaded)
}

func TestApplyToggleSyncsEngineTransport(t *testing.T) {
	engine := &fakeEngine{}
	sess := playingSession("1")
	r := New(bus.Noop{}, sess, fakeOwnership{owner: true}, engine, "tab-a")

	r.Apply(model.PlayerControl{Action: model.ActionTogglePlay})
	require.False(t, sess.Snapshot().IsPlaying)
	assert.Equal(t, []string{"pause"}, engine.calls)

	r.Apply(model.PlayerControl{Action: model.ActionTogglePlay})
	assert.Equal(t, []string{"pause", "play"}, engine.calls)
}

func TestApplySeekClampsAndSeeksEngine(t *testing.T) {
	engine := &fakeEngine{}
	sess := playingSession("1")
	r := New(bus.Noop{}, sess, fakeOwnership{owner: true}, engine, "tab-a")

	pos := int64(30000)
	r.Apply(model.PlayerControl{Action: model.ActionSeek, Position: &pos})

	assert.Equal(t, int64(30000), sess.Snapshot().PositionMs)
	assert.Equal(t, []string{"seek"}, engine.calls)
}

func TestApplySeekWithoutPositionIsIgnored(t *testing.T) {
	engine := &fakeEngine{}
	sess := playingSession("1")
	r := New(bus.Noop{}, sess, fakeOwnership{owner: true}, engine, "tab-a")

	r.Apply(model.PlayerControl{Action: model.ActionSeek})

	assert.Empty(t, engine.calls)
	assert.Zero(t, sess.Snapshot().PositionMs)
}

func TestApplyNextAtQueueEndPausesEngine(t *testing.T) {
	engine := &fakeEngine{}
	sess := playingSession("1")
	r := New(bus.Noop{}, sess, fakeOwnership{owner: true}, engine, "tab-a")

	// Single-entry queue with repeat off: next stops playback.
	r.Apply(model.PlayerControl{Action: model.ActionNext})

	assert.False(t, sess.Snapshot().IsPlaying)
	assert.Equal(t, []string{"pause"}, engine.calls)
}
