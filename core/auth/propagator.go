// Package auth shares the authentication credential across tabs over the
// auth channel and guards against a different account becoming active in a
// sibling tab.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SyncFM/core/bus"
	"SyncFM/core/retry"
	"SyncFM/logger"
	"SyncFM/model"
	"SyncFM/storage"
)

// Refresher performs the one silent refresh attempted for an expired
// credential. The catalog client implements it.
type Refresher interface {
	RefreshCredential(ctx context.Context, refreshToken string) (model.Credential, error)
}

// Propagator bootstraps and shares the credential. One per tab.
type Propagator struct {
	bus       bus.Bus
	store     storage.Store
	deviceID  string
	refresher Refresher
	policy    retry.Policy
	now       func() time.Time

	// onForcedLogout signals the UI layer to force re-authentication; the
	// tab context also resets the session store from it.
	onForcedLogout func()

	mu         sync.Mutex
	cred       model.Credential
	lastUserID string

	cancels []func()
}

// NewPropagator builds a propagator for one tab. refresher and
// onForcedLogout may be nil.
func NewPropagator(b bus.Bus, store storage.Store, deviceID string, refresher Refresher, onForcedLogout func()) *Propagator {
	return &Propagator{
		bus:            b,
		store:          store,
		deviceID:       deviceID,
		refresher:      refresher,
		policy:         retry.TokenBootstrap,
		now:            time.Now,
		onForcedLogout: onForcedLogout,
	}
}

// Start loads any persisted credential and wires the auth channel and the
// shared userId key. It does not block; call Bootstrap for the request loop.
func (p *Propagator) Start(ctx context.Context) error {
	if access, err := p.store.Get(ctx, storage.KeyAccessToken); err == nil {
		refresh, _ := p.store.Get(ctx, storage.KeyRefreshToken)
		p.mu.Lock()
		p.cred = model.Credential{AccessToken: access, RefreshToken: refresh}
		p.mu.Unlock()
	}
	if userID, err := p.store.Get(ctx, storage.KeyUserID); err == nil {
		p.mu.Lock()
		p.lastUserID = userID
		p.mu.Unlock()
	}

	cancelBus, err := p.bus.Subscribe(bus.ChannelAuth, p.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to auth channel: %w", err)
	}
	p.cancels = append(p.cancels, cancelBus)

	cancelStore, err := p.store.Subscribe(storage.KeyUserID, p.observeUserID)
	if err != nil {
		cancelBus()
		return fmt.Errorf("failed to subscribe to userId key: %w", err)
	}
	p.cancels = append(p.cancels, cancelStore)
	return nil
}

// Close removes all subscriptions.
func (p *Propagator) Close() {
	for _, cancel := range p.cancels {
		cancel()
	}
	p.cancels = nil
}

// Bootstrap requests the credential from sibling tabs until one answers or
// the retry schedule is exhausted. Returns ErrUnauthenticated when no sibling
// responded with a usable credential.
func (p *Propagator) Bootstrap(ctx context.Context) error {
	if p.hasValidCredential() {
		return nil
	}

	err := retry.Do(ctx, p.policy, func(attempt int) error {
		if p.hasValidCredential() {
			return nil
		}
		msg, err := model.NewMessage(model.MsgRequestToken, p.deviceID, model.RequestToken{RequesterID: p.deviceID})
		if err != nil {
			return err
		}
		if err := p.bus.Publish(ctx, bus.ChannelAuth, msg); err != nil {
			logger.Warn("token request publish failed",
				logger.ErrorField(err),
				logger.Int("attempt", attempt))
		}
		return ErrUnauthenticated
	})
	if err != nil && !p.hasValidCredential() {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return ErrUnauthenticated
	}
	return nil
}

// Credential returns the current credential, re-validating expiry on every
// call. An expired credential gets exactly one silent refresh; on failure
// the credential is cleared and ErrUnauthenticated returned.
func (p *Propagator) Credential(ctx context.Context) (model.Credential, error) {
	p.mu.Lock()
	cred := p.cred
	p.mu.Unlock()

	if cred.Empty() {
		return model.Credential{}, ErrUnauthenticated
	}
	if !Expired(cred.AccessToken, p.now()) {
		return cred, nil
	}

	if p.refresher == nil || cred.RefreshToken == "" {
		p.clearCredential(ctx)
		return model.Credential{}, ErrUnauthenticated
	}

	refreshed, err := p.refresher.RefreshCredential(ctx, cred.RefreshToken)
	if err != nil || refreshed.Empty() {
		logger.Warn("silent credential refresh failed", logger.ErrorField(err))
		p.clearCredential(ctx)
		return model.Credential{}, ErrUnauthenticated
	}

	p.adopt(ctx, refreshed, true)
	logger.Info("credential refreshed silently")
	return refreshed, nil
}

// SetCredential installs a credential after a local login and proactively
// publishes TOKEN_UPDATED so already-open siblings adopt it without asking.
func (p *Propagator) SetCredential(ctx context.Context, cred model.Credential, userID string) error {
	p.mu.Lock()
	p.cred = cred
	p.lastUserID = userID
	p.mu.Unlock()

	if err := p.persist(ctx, cred); err != nil {
		return err
	}
	if userID != "" {
		if err := p.store.Set(ctx, storage.KeyUserID, userID); err != nil {
			return fmt.Errorf("failed to persist user id: %w", err)
		}
	}

	p.publish(ctx, model.MsgTokenUpdated, model.TokenUpdated{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
	})
	if userID != "" {
		p.publish(ctx, model.MsgUserChanged, model.UserChanged{UserID: userID})
	}
	return nil
}

// Logout clears the credential everywhere and resets the session via the
// forced-logout signal.
func (p *Propagator) Logout(ctx context.Context) {
	p.clearCredential(ctx)
	p.store.Clear(ctx, storage.KeyAccessToken)
	p.store.Clear(ctx, storage.KeyRefreshToken)
	if p.onForcedLogout != nil {
		p.onForcedLogout()
	}
}

func (p *Propagator) handleMessage(msg model.Message) {
	ctx := context.Background()

	switch msg.Type {
	case model.MsgRequestToken:
		var req model.RequestToken
		if err := msg.DecodeData(&req); err != nil {
			logger.Warn("invalid token request", logger.ErrorField(err))
			return
		}
		if req.RequesterID == p.deviceID {
			return
		}
		cred, err := p.Credential(ctx)
		if err != nil {
			return // nothing valid to share
		}
		p.publish(ctx, model.MsgTokenResponse, model.TokenResponse{
			AccessToken:  cred.AccessToken,
			RefreshToken: cred.RefreshToken,
		})

	case model.MsgTokenResponse, model.MsgTokenUpdated:
		var resp model.TokenResponse
		if err := msg.DecodeData(&resp); err != nil {
			logger.Warn("invalid token payload", logger.ErrorField(err))
			return
		}
		if resp.AccessToken == "" {
			return
		}
		p.adopt(ctx, model.Credential{
			AccessToken:  resp.AccessToken,
			RefreshToken: resp.RefreshToken,
		}, false)
		logger.Debug("credential adopted from sibling tab",
			logger.String("from", msg.SenderID))

	case model.MsgUserChanged:
		var changed model.UserChanged
		if err := msg.DecodeData(&changed); err != nil {
			return
		}
		p.observeUserID(changed.UserID)
	}
}

// observeUserID is the cross-account guard: a shared user id diverging from
// the one this tab last observed clears the credential and forces re-auth.
func (p *Propagator) observeUserID(userID string) {
	if userID == "" {
		return
	}

	p.mu.Lock()
	last := p.lastUserID
	p.lastUserID = userID
	diverged := last != "" && last != userID
	if diverged {
		p.cred = model.Credential{}
	}
	p.mu.Unlock()

	if diverged {
		logger.Warn("active account changed in sibling tab, forcing logout",
			logger.String("was", last),
			logger.String("now", userID))
		if p.onForcedLogout != nil {
			p.onForcedLogout()
		}
	}
}

// adopt installs a credential received or refreshed. persistStore controls
// whether it is written back to the shared store (responses from siblings
// already live there).
func (p *Propagator) adopt(ctx context.Context, cred model.Credential, persistStore bool) {
	p.mu.Lock()
	p.cred = cred
	p.mu.Unlock()

	if persistStore {
		if err := p.persist(ctx, cred); err != nil {
			logger.Warn("failed to persist credential", logger.ErrorField(err))
		}
	}
}

func (p *Propagator) persist(ctx context.Context, cred model.Credential) error {
	if err := p.store.Set(ctx, storage.KeyAccessToken, cred.AccessToken); err != nil {
		return fmt.Errorf("failed to persist access token: %w", err)
	}
	if cred.RefreshToken != "" {
		if err := p.store.Set(ctx, storage.KeyRefreshToken, cred.RefreshToken); err != nil {
			return fmt.Errorf("failed to persist refresh token: %w", err)
		}
	}
	return nil
}

func (p *Propagator) clearCredential(ctx context.Context) {
	p.mu.Lock()
	p.cred = model.Credential{}
	p.mu.Unlock()
}

func (p *Propagator) hasValidCredential() bool {
	p.mu.Lock()
	cred := p.cred
	p.mu.Unlock()
	return !cred.Empty() && !Expired(cred.AccessToken, p.now())
}

func (p *Propagator) publish(ctx context.Context, t model.MessageType, payload interface{}) {
	msg, err := model.NewMessage(t, p.deviceID, payload)
	if err != nil {
		logger.Warn("failed to build auth message", logger.ErrorField(err))
		return
	}
	if err := p.bus.Publish(ctx, bus.ChannelAuth, msg); err != nil {
		logger.Warn("failed to publish auth message",
			logger.ErrorField(err),
			logger.String("type", string(t)))
	}
}
