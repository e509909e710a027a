// Package tab assembles one tab's session context: device identity, bus,
// shared store, session state, ownership arbiter, token propagator and
// command relay are constructed together at bootstrap and torn down
// together at unload. Nothing here is ambient; collaborators receive the
// context explicitly.
package tab

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"SyncFM/core/arbiter"
	"SyncFM/core/audio"
	"SyncFM/core/auth"
	"SyncFM/core/bus"
	"SyncFM/core/catalog"
	"SyncFM/core/relay"
	"SyncFM/core/session"
	"SyncFM/logger"
	"SyncFM/model"
	"SyncFM/storage"

	"github.com/google/uuid"
)

// Options configures a tab. Zero-value fields get safe defaults: a Noop bus
// (single isolated tab) and an in-memory store.
type Options struct {
	Bus      bus.Bus
	Store    storage.Store
	Resolver *catalog.Resolver
	// Refresher performs silent credential refreshes; usually the catalog
	// client.
	Refresher auth.Refresher
	// Engine is the audio output collaborator. Mirror-only tabs leave it nil.
	Engine audio.Engine
	// Arbiter overrides the protocol timings; zero means defaults.
	Arbiter arbiter.Config
	// OnForcedLogout is invoked when the cross-account guard fires; the UI
	// layer uses it to force re-authentication.
	OnForcedLogout func()
}

// Tab is one participant in the cross-tab session.
type Tab struct {
	Device model.DeviceIdentity

	Session  *session.Store
	Relay    *relay.Relay
	Auth     *auth.Propagator
	Arbiter  *arbiter.Arbiter
	resolver *catalog.Resolver
	engine   audio.Engine
	bus      bus.Bus

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// New wires a tab from its collaborators. Call Start to join the protocol.
func New(opts Options) *Tab {
	if opts.Bus == nil {
		opts.Bus = bus.Noop{}
	}
	if opts.Store == nil {
		opts.Store = storage.NewMemory()
	}

	deviceID := uuid.NewString()
	sess := session.New()

	t := &Tab{
		Device:   model.DeviceIdentity{DeviceID: deviceID},
		Session:  sess,
		resolver: opts.Resolver,
		engine:   opts.Engine,
		bus:      opts.Bus,
		stop:     make(chan struct{}),
	}

	t.Arbiter = arbiter.New(opts.Bus, opts.Store, sess, deviceID, opts.Arbiter)
	t.Relay = relay.New(opts.Bus, sess, t.Arbiter, opts.Engine, deviceID)
	t.Arbiter.SetControlHandler(t.Relay.Apply)
	t.Arbiter.SetOwnershipHandler(t.onOwnershipChange)

	onForcedLogout := opts.OnForcedLogout
	t.Auth = auth.NewPropagator(opts.Bus, opts.Store, deviceID, opts.Refresher, func() {
		sess.Reset()
		if t.engine != nil {
			t.engine.Pause()
		}
		if onForcedLogout != nil {
			onForcedLogout()
		}
	})

	return t
}

// Start joins the bus, begins the ownership protocol and bootstraps the
// credential from sibling tabs when none is held locally.
func (t *Tab) Start(ctx context.Context) error {
	if err := t.Auth.Start(ctx); err != nil {
		return fmt.Errorf("failed to start token propagator: %w", err)
	}
	if err := t.Arbiter.Start(ctx); err != nil {
		t.Auth.Close()
		return fmt.Errorf("failed to start arbiter: %w", err)
	}

	if t.engine != nil {
		t.wg.Add(1)
		go t.pumpTicks()
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := t.Auth.Bootstrap(ctx); err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				logger.Info("no sibling credential, login required",
					logger.String("device", t.Device.DeviceID))
				return
			}
			logger.Warn("credential bootstrap aborted", logger.ErrorField(err))
		}
	}()

	logger.Info("tab started", logger.String("device", t.Device.DeviceID))
	return nil
}

// Close tears the tab down: all timers and subscriptions are cancelled so
// nothing leaks past unload. The bus and store are owned by the caller.
func (t *Tab) Close() {
	t.once.Do(func() {
		close(t.stop)
		t.Arbiter.Close()
		t.Auth.Close()
		if t.engine != nil {
			t.engine.Close()
		}
		t.wg.Wait()
		logger.Info("tab closed", logger.String("device", t.Device.DeviceID))
	})
}

// Snapshot returns the current session, owner copy or mirror.
func (t *Tab) Snapshot() model.Session {
	return t.Session.Snapshot()
}

// Status returns the playback state machine state.
func (t *Tab) Status() model.PlaybackStatus {
	return t.Session.Status()
}

// PlayTrackByID resolves a track and starts playback of it. Play intents
// are rejected while unauthenticated.
func (t *Tab) PlayTrackByID(ctx context.Context, id string, replaceQueue bool) error {
	if _, err := t.Auth.Credential(ctx); err != nil {
		return err
	}

	track := model.PlaceholderTrack(id)
	if t.resolver != nil {
		resolved, err := t.resolver.Resolve(ctx, id)
		if err != nil {
			logger.Warn("playing with placeholder metadata",
				logger.String("track", id))
		}
		track = resolved
	}

	t.Session.PlayTrack(track, replaceQueue)
	if t.engine != nil && t.Arbiter.IsOwner() {
		if err := t.engine.Load(track); err != nil {
			return fmt.Errorf("failed to load track: %w", err)
		}
		if err := t.engine.Play(); err != nil {
			return fmt.Errorf("failed to start playback: %w", err)
		}
	}
	return nil
}

// Transport intents, routed through the relay.

func (t *Tab) TogglePlay(ctx context.Context) { t.Relay.TogglePlay(ctx) }
func (t *Tab) Next(ctx context.Context)       { t.Relay.Next(ctx) }
func (t *Tab) Previous(ctx context.Context)   { t.Relay.Previous(ctx) }
func (t *Tab) Seek(ctx context.Context, positionMs int64) {
	t.Relay.Seek(ctx, positionMs)
}

// Queue operations.

// AddToQueue resolves id and appends it to the queue; a failed resolution
// queues placeholder metadata rather than dropping the entry.
func (t *Tab) AddToQueue(ctx context.Context, id string) {
	track := model.PlaceholderTrack(id)
	if t.resolver != nil {
		if resolved, err := t.resolver.Resolve(ctx, id); err == nil {
			track = resolved
		}
	}
	t.Session.AddToQueue(track)
}

func (t *Tab) RemoveFromQueue(id string)     { t.Session.RemoveFromQueue(id) }
func (t *Tab) MoveInQueue(from, to int)      { t.Session.MoveInQueue(from, to) }
func (t *Tab) SetShuffle(on bool)            { t.Session.SetShuffle(on) }
func (t *Tab) SetRepeatMode(m model.RepeatMode) { t.Session.SetRepeatMode(m) }

// UI context signals.

// SetForeground records whether the tab is focused.
func (t *Tab) SetForeground(fg bool) { t.Arbiter.SetForeground(fg) }

// SetLoginSurface marks the tab as showing the login surface, suspending
// its ownership candidacy.
func (t *Tab) SetLoginSurface(on bool) { t.Arbiter.SetLoginSurface(on) }

// Login installs a freshly issued credential and shares it with siblings.
func (t *Tab) Login(ctx context.Context, cred model.Credential, userID string) error {
	return t.Auth.SetCredential(ctx, cred, userID)
}

// Logout clears the credential and resets the session.
func (t *Tab) Logout(ctx context.Context) {
	t.Auth.Logout(ctx)
}

// pumpTicks feeds engine position reports into the session and handles
// track advance at end of playback. Only the owner's engine is live.
func (t *Tab) pumpTicks() {
	defer t.wg.Done()
	for {
		select {
		case tick, ok := <-t.engine.Ticks():
			if !ok {
				return
			}
			if !t.Arbiter.IsOwner() {
				continue
			}
			t.Session.ReportTick(tick.PositionMs, tick.DurationMs)
			if tick.Ended {
				t.advanceAfterEnd()
			}
		case <-t.stop:
			return
		}
	}
}

func (t *Tab) advanceAfterEnd() {
	if t.Session.Snapshot().Repeat == model.RepeatOne {
		if err := t.engine.Seek(0); err == nil {
			t.engine.Play()
		}
		t.Session.Seek(0)
		return
	}
	t.Relay.Apply(model.PlayerControl{Action: model.ActionNext})
}

// onOwnershipChange aligns the engine with the protocol: a tab gaining
// ownership resumes the mirrored session locally, a tab losing it goes
// silent so only one tab produces audio.
func (t *Tab) onOwnershipChange(owner bool) {
	if t.engine == nil {
		return
	}
	if !owner {
		t.engine.Pause()
		return
	}

	snap := t.Session.Snapshot()
	if snap.CurrentTrackID == "" {
		return
	}
	track := model.TrackRef{
		ID:         snap.CurrentTrackID,
		Title:      snap.Title,
		Artist:     snap.Artist,
		Cover:      snap.CoverURL,
		DurationMs: snap.DurationMs,
	}
	if err := t.engine.Load(track); err != nil {
		logger.Warn("failed to resume after takeover", logger.ErrorField(err))
		return
	}
	t.engine.Seek(snap.PositionMs)
	if snap.IsPlaying {
		t.engine.Play()
	}
}
