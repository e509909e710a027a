// Package relay routes user-issued transport intents: a confirmed owner
// mutates the local session directly, any other tab broadcasts the intent
// as PLAYER_CONTROL and lets the owner's next heartbeat carry the result
// back.
package relay

import (
	"context"

	"SyncFM/core/audio"
	"SyncFM/core/bus"
	"SyncFM/core/session"
	"SyncFM/logger"
	"SyncFM/model"
)

// Ownership is the arbiter surface the relay consults before mutating
// locally.
type Ownership interface {
	IsOwner() bool
	Foreground() bool
}

// Relay dispatches transport intents for one tab.
type Relay struct {
	bus       bus.Bus
	session   *session.Store
	ownership Ownership
	engine    audio.Engine // nil on mirror-only tabs
	deviceID  string
}

// New builds a relay. engine may be nil.
func New(b bus.Bus, sess *session.Store, ownership Ownership, engine audio.Engine, deviceID string) *Relay {
	return &Relay{
		bus:       b,
		session:   sess,
		ownership: ownership,
		engine:    engine,
		deviceID:  deviceID,
	}
}

// TogglePlay flips play/pause.
func (r *Relay) TogglePlay(ctx context.Context) {
	r.dispatch(ctx, model.PlayerControl{Action: model.ActionTogglePlay})
}

// Next advances to the next queue entry.
func (r *Relay) Next(ctx context.Context) {
	r.dispatch(ctx, model.PlayerControl{Action: model.ActionNext})
}

// Previous steps back to the previous queue entry.
func (r *Relay) Previous(ctx context.Context) {
	r.dispatch(ctx, model.PlayerControl{Action: model.ActionPrevious})
}

// Seek jumps to a position in milliseconds.
func (r *Relay) Seek(ctx context.Context, positionMs int64) {
	r.dispatch(ctx, model.PlayerControl{Action: model.ActionSeek, Position: &positionMs})
}

// Apply executes a control against the local session. The arbiter also
// routes received PLAYER_CONTROL messages here while this tab is owner.
func (r *Relay) Apply(control model.PlayerControl) {
	switch control.Action {
	case model.ActionTogglePlay:
		r.session.TogglePlay()
		r.syncEngineTransport()

	case model.ActionNext:
		if track := r.session.PlayNext(); track != nil {
			r.loadAndPlay(*track)
		} else {
			r.syncEngineTransport()
		}

	case model.ActionPrevious:
		if track := r.session.PlayPrevious(); track != nil {
			r.loadAndPlay(*track)
		}

	case model.ActionSeek:
		if control.Position == nil {
			return
		}
		r.session.Seek(*control.Position)
		if r.engine != nil {
			if err := r.engine.Seek(*control.Position); err != nil {
				logger.Warn("engine seek failed", logger.ErrorField(err))
			}
		}

	default:
		logger.Warn("unknown control action", logger.String("action", control.Action))
	}
}

// dispatch applies locally when this tab is the confirmed foreground owner
// and broadcasts otherwise. An owner that is not foreground still applies
// locally: the bus never delivers to the sender, so broadcasting would
// strand the intent.
func (r *Relay) dispatch(ctx context.Context, control model.PlayerControl) {
	if r.ownership.IsOwner() {
		r.Apply(control)
		return
	}

	msg, err := model.NewMessage(model.MsgPlayerControl, r.deviceID, control)
	if err != nil {
		logger.Warn("failed to build control message", logger.ErrorField(err))
		return
	}
	if err := r.bus.Publish(ctx, bus.ChannelPlayer, msg); err != nil {
		logger.Warn("failed to publish control",
			logger.ErrorField(err),
			logger.String("action", control.Action))
	}
}

func (r *Relay) loadAndPlay(track model.TrackRef) {
	if r.engine == nil {
		return
	}
	if err := r.engine.Load(track); err != nil {
		logger.Warn("engine load failed",
			logger.ErrorField(err),
			logger.String("track", track.ID))
		return
	}
	if err := r.engine.Play(); err != nil {
		logger.Warn("engine play failed", logger.ErrorField(err))
	}
}

// syncEngineTransport aligns the engine with the session's isPlaying flag.
func (r *Relay) syncEngineTransport() {
	if r.engine == nil {
		return
	}
	var err error
	if r.session.Snapshot().IsPlaying {
		err = r.engine.Play()
	} else {
		err = r.engine.Pause()
	}
	if err != nil {
		logger.Warn("engine transport sync failed", logger.ErrorField(err))
	}
}
