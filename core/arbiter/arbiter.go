// Package arbiter decides, per tab, whether this tab acts as the audio
// owner. The owner broadcasts a full-session heartbeat every second; every
// other tab mirrors the heartbeats and runs a liveness watchdog that
// re-evaluates candidacy when the owner goes silent. Ownership itself is
// claimed through an explicit single-writer election: a monotonically
// increasing generation token in the shared store when the store supports
// compare-and-swap, a randomized-delay first-broadcast-wins convention
// otherwise.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"SyncFM/core/bus"
	"SyncFM/core/session"
	"SyncFM/logger"
	"SyncFM/model"
	"SyncFM/storage"
)

// State is the arbiter's position in the ownership protocol.
type State int

const (
	StateUnowned State = iota
	StateCandidate
	StateOwner
	StateMirror
	StateMirrorStale
)

func (s State) String() string {
	switch s {
	case StateUnowned:
		return "unowned"
	case StateCandidate:
		return "candidate"
	case StateOwner:
		return "owner"
	case StateMirror:
		return "mirror"
	case StateMirrorStale:
		return "mirror_stale"
	default:
		return "unknown"
	}
}

// Config holds the protocol timings. The defaults are part of the wire
// contract between tabs; tests shrink them.
type Config struct {
	HeartbeatInterval time.Duration
	WatchdogInterval  time.Duration
	StaleAfter        time.Duration
	ClaimJitterMax    time.Duration
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 1000 * time.Millisecond,
		WatchdogInterval:  1000 * time.Millisecond,
		StaleAfter:        3000 * time.Millisecond,
		ClaimJitterMax:    250 * time.Millisecond,
	}
}

// Arbiter runs the ownership protocol for one tab.
type Arbiter struct {
	cfg      Config
	bus      bus.Bus
	store    storage.Store
	session  *session.Store
	deviceID string

	applyControl  func(model.PlayerControl)
	onOwnerChange func(owner bool)

	mu              sync.Mutex
	state           State
	generation      uint64
	lastSeenGen     uint64
	foreground      bool
	loginSurface    bool
	lastHeartbeatAt time.Time
	claimDeadline   time.Time

	rng *rand.Rand
	now func() time.Time

	stop    chan struct{}
	wg      sync.WaitGroup
	cancels []func()
	started bool
}

// New builds an arbiter. store may be nil, which forces the broadcast
// election fallback.
func New(b bus.Bus, store storage.Store, sess *session.Store, deviceID string, cfg Config) *Arbiter {
	if cfg.HeartbeatInterval <= 0 {
		cfg = DefaultConfig()
	}
	return &Arbiter{
		cfg:      cfg,
		bus:      b,
		store:    store,
		session:  sess,
		deviceID: deviceID,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

// SetControlHandler installs the function PLAYER_CONTROL messages are
// applied through while this tab is owner.
func (a *Arbiter) SetControlHandler(fn func(model.PlayerControl)) {
	a.applyControl = fn
}

// SetOwnershipHandler installs a callback fired on every ownership change.
func (a *Arbiter) SetOwnershipHandler(fn func(owner bool)) {
	a.onOwnerChange = fn
}

// Start subscribes to the player channel and starts the heartbeat and
// watchdog timers.
func (a *Arbiter) Start(ctx context.Context) error {
	cancel, err := a.bus.Subscribe(bus.ChannelPlayer, a.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to player channel: %w", err)
	}
	a.cancels = append(a.cancels, cancel)
	a.started = true

	a.wg.Add(2)
	go a.heartbeatLoop(ctx)
	go a.watchdogLoop()
	return nil
}

// Close cancels the timers and subscriptions and releases ownership.
func (a *Arbiter) Close() {
	if !a.started {
		return
	}
	close(a.stop)
	a.wg.Wait()
	for _, cancel := range a.cancels {
		cancel()
	}
	a.cancels = nil

	a.mu.Lock()
	wasOwner := a.state == StateOwner
	gen := a.generation
	a.state = StateUnowned
	a.mu.Unlock()

	if wasOwner {
		a.releaseOwnerKey(gen)
		a.notifyOwnership(false)
	}
}

// State returns the current protocol state.
func (a *Arbiter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// IsOwner reports whether this tab currently owns playback.
func (a *Arbiter) IsOwner() bool {
	return a.State() == StateOwner
}

// Generation returns the current ownership generation.
func (a *Arbiter) Generation() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.generation
}

// Foreground reports whether the tab is focused.
func (a *Arbiter) Foreground() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.foreground
}

// SetForeground records focus changes. The owner acknowledges a regained
// focus with FOCUS_RESPONSE so mirrors know commands are handled locally
// again.
func (a *Arbiter) SetForeground(fg bool) {
	a.mu.Lock()
	regained := fg && !a.foreground && a.state == StateOwner
	a.foreground = fg
	a.mu.Unlock()

	if regained {
		a.publish(model.MsgFocusResponse, model.FocusResponse{DeviceID: a.deviceID}, a.Generation())
	}
}

// SetLoginSurface marks whether the tab currently shows the login surface;
// a tab on the login surface is never a candidate.
func (a *Arbiter) SetLoginSurface(on bool) {
	a.mu.Lock()
	a.loginSurface = on
	a.mu.Unlock()
}

// heartbeatLoop drives candidacy evaluation and owner heartbeats.
func (a *Arbiter) heartbeatLoop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.evaluate(ctx)
		case <-a.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// watchdogLoop detects a silent owner. A mirror holding a current track
// that misses heartbeats beyond the staleness threshold leaves the mirror
// state and re-evaluates candidacy on the next heartbeat tick.
func (a *Arbiter) watchdogLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkLiveness()
		case <-a.stop:
			return
		}
	}
}

func (a *Arbiter) checkLiveness() {
	snap := a.session.Snapshot()

	a.mu.Lock()
	stale := a.state == StateMirror &&
		snap.CurrentTrackID != "" &&
		!a.lastHeartbeatAt.IsZero() &&
		a.now().Sub(a.lastHeartbeatAt) > a.cfg.StaleAfter
	if stale {
		a.state = StateMirrorStale
	}
	a.mu.Unlock()

	if stale {
		// Owner timeout is a recoverable handoff, not an error.
		logger.Warn("owner heartbeat stale, re-evaluating candidacy",
			logger.String("device", a.deviceID),
			logger.Duration("staleAfter", a.cfg.StaleAfter))
	}
}

// evaluate runs one heartbeat tick: compute local candidacy, claim or renew
// ownership, emit the heartbeat.
func (a *Arbiter) evaluate(ctx context.Context) {
	snap := a.session.Snapshot()

	a.mu.Lock()
	candidate := !a.loginSurface && snap.CurrentTrackID != ""

	if !candidate {
		if a.state == StateOwner {
			gen := a.generation
			a.state = StateUnowned
			a.mu.Unlock()
			a.releaseOwnerKey(gen)
			a.notifyOwnership(false)
			logger.Info("ownership released, no longer a candidate",
				logger.String("device", a.deviceID))
			return
		}
		if a.state == StateCandidate {
			a.state = StateUnowned
		}
		a.mu.Unlock()
		return
	}

	if a.state == StateOwner {
		gen := a.generation
		a.mu.Unlock()
		a.publishHeartbeat(snap, gen)
		return
	}

	// A live owner elsewhere keeps us mirroring.
	if a.state == StateMirror && !a.lastHeartbeatAt.IsZero() &&
		a.now().Sub(a.lastHeartbeatAt) <= a.cfg.StaleAfter {
		a.mu.Unlock()
		return
	}

	a.claimLocked(ctx, snap)
}

// claimLocked attempts to take ownership. Called with the lock held;
// releases it.
func (a *Arbiter) claimLocked(ctx context.Context, snap model.Session) {
	if atomic, ok := a.store.(storage.Atomic); ok && a.store != nil {
		a.mu.Unlock()
		a.claimCAS(ctx, atomic, snap)
		return
	}

	// Fallback convention: wait a random jitter before the first claiming
	// broadcast; whoever broadcasts first (highest generation, then lowest
	// device id) wins.
	now := a.now()
	if a.state != StateCandidate {
		a.state = StateCandidate
		jitter := time.Duration(a.rng.Int63n(int64(a.cfg.ClaimJitterMax) + 1))
		a.claimDeadline = now.Add(jitter)
		a.mu.Unlock()
		return
	}
	if now.Before(a.claimDeadline) {
		a.mu.Unlock()
		return
	}

	a.generation = a.lastSeenGen + 1
	a.state = StateOwner
	gen := a.generation
	a.mu.Unlock()

	a.session.SetOwner(a.deviceID, a.now())
	a.notifyOwnership(true)
	logger.Info("ownership claimed by broadcast convention",
		logger.String("device", a.deviceID),
		logger.Uint64("generation", gen))
	a.publishHeartbeat(snap, gen)
}

// claimCAS claims the owner key with a compare-and-swap on the shared
// store. Exactly one tab can move the generation forward.
func (a *Arbiter) claimCAS(ctx context.Context, atomic storage.Atomic, snap model.Session) {
	current, err := a.store.Get(ctx, storage.KeyOwner)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Warn("failed to read owner key", logger.ErrorField(err))
		return
	}
	// Stealing from a live owner is prevented above: the watchdog cleared
	// us to claim only once heartbeats stopped. A leftover claim of our own
	// device is simply swapped over.
	curGen, _ := parseOwnerValue(current)

	next := formatOwnerValue(curGen+1, a.deviceID)
	ok, err := atomic.CompareAndSwap(ctx, storage.KeyOwner, current, next)
	if err != nil {
		logger.Warn("owner claim failed", logger.ErrorField(err))
		return
	}
	if !ok {
		a.mu.Lock()
		if a.state != StateOwner {
			a.state = StateMirror
		}
		a.mu.Unlock()
		return
	}

	a.mu.Lock()
	a.generation = curGen + 1
	a.lastSeenGen = curGen + 1
	a.state = StateOwner
	gen := a.generation
	a.mu.Unlock()

	a.session.SetOwner(a.deviceID, a.now())
	a.notifyOwnership(true)
	logger.Info("ownership claimed",
		logger.String("device", a.deviceID),
		logger.Uint64("generation", gen))
	a.publishHeartbeat(snap, gen)
}

// handleMessage processes player-channel traffic.
func (a *Arbiter) handleMessage(msg model.Message) {
	if msg.SenderID == a.deviceID {
		return
	}

	switch msg.Type {
	case model.MsgPlayerStateUpdate:
		a.handleHeartbeat(msg)

	case model.MsgPlayerControl:
		if !a.IsOwner() || a.applyControl == nil {
			return
		}
		var control model.PlayerControl
		if err := msg.DecodeData(&control); err != nil {
			logger.Warn("invalid player control", logger.ErrorField(err))
			return
		}
		logger.Debug("applying relayed control",
			logger.String("action", control.Action),
			logger.String("from", msg.SenderID))
		a.applyControl(control)

	case model.MsgFocusResponse:
		a.session.SetOwner(msg.SenderID, a.now())
	}
}

func (a *Arbiter) handleHeartbeat(msg model.Message) {
	var update model.PlayerStateUpdate
	if err := msg.DecodeData(&update); err != nil {
		logger.Warn("invalid heartbeat", logger.ErrorField(err))
		return
	}

	now := a.now()

	a.mu.Lock()
	a.lastHeartbeatAt = now
	if msg.Generation > a.lastSeenGen {
		a.lastSeenGen = msg.Generation
	}

	demoted := false
	if a.state == StateOwner {
		// Split-brain: the higher generation wins; equal generations go to
		// the lexically smaller device id.
		if msg.Generation > a.generation ||
			(msg.Generation == a.generation && msg.SenderID < a.deviceID) {
			a.state = StateMirror
			demoted = true
		} else {
			a.mu.Unlock()
			return
		}
	} else {
		a.state = StateMirror
	}
	a.mu.Unlock()

	if demoted {
		logger.Warn("split-brain resolved, yielding ownership",
			logger.String("device", a.deviceID),
			logger.String("winner", msg.SenderID),
			logger.Uint64("winnerGeneration", msg.Generation))
		a.notifyOwnership(false)
	}

	a.session.MergeRemote(update, msg.SenderID, now)
}

func (a *Arbiter) publishHeartbeat(snap model.Session, generation uint64) {
	a.session.SetOwner(a.deviceID, a.now())
	a.publish(model.MsgPlayerStateUpdate, model.SnapshotFromSession(snap), generation)
}

func (a *Arbiter) publish(t model.MessageType, payload interface{}, generation uint64) {
	msg, err := model.NewMessage(t, a.deviceID, payload)
	if err != nil {
		logger.Warn("failed to build player message", logger.ErrorField(err))
		return
	}
	msg.Generation = generation
	if err := a.bus.Publish(context.Background(), bus.ChannelPlayer, msg); err != nil {
		logger.Warn("failed to publish player message",
			logger.ErrorField(err),
			logger.String("type", string(t)))
	}
}

// releaseOwnerKey clears the claim if it is still ours.
func (a *Arbiter) releaseOwnerKey(generation uint64) {
	if a.store == nil {
		return
	}
	if atomic, ok := a.store.(storage.Atomic); ok {
		ctx := context.Background()
		current, err := a.store.Get(ctx, storage.KeyOwner)
		if err != nil {
			return
		}
		_, device := parseOwnerValue(current)
		if device != a.deviceID {
			return
		}
		if _, err := atomic.CompareAndSwap(ctx, storage.KeyOwner, current, formatOwnerValue(generation, "")); err != nil {
			logger.Warn("failed to release owner key", logger.ErrorField(err))
		}
	}
}

func (a *Arbiter) notifyOwnership(owner bool) {
	if a.onOwnerChange != nil {
		a.onOwnerChange(owner)
	}
}

// Owner key value format: "<generation>:<deviceId>".

func formatOwnerValue(generation uint64, deviceID string) string {
	return fmt.Sprintf("%d:%s", generation, deviceID)
}

func parseOwnerValue(v string) (uint64, string) {
	if v == "" {
		return 0, ""
	}
	parts := strings.SplitN(v, ":", 2)
	var gen uint64
	fmt.Sscanf(parts[0], "%d", &gen)
	if len(parts) == 2 {
		return gen, parts[1]
	}
	return gen, ""
}
