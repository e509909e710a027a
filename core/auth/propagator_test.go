package auth

import (
	"context"
	"testing"
	"time"

	"SyncFM/core/bus"
	"SyncFM/core/retry"
	"SyncFM/model"
	"SyncFM/storage"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signedToken mints an unsigned-verification-friendly HS256 token with the
// given expiry. A zero expiry omits the claim entirely.
func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{}
	if !exp.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(exp)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func shortPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 10,
		Delays:      []time.Duration{10 * time.Millisecond},
	}
}

func TestExpired(t *testing.T) {
	now := time.Now()

	assert.True(t, Expired("not-a-jwt", now), "malformed token counts as expired")
	assert.True(t, Expired(signedToken(t, now.Add(-time.Minute)), now))
	assert.False(t, Expired(signedToken(t, now.Add(time.Hour)), now))
	assert.False(t, Expired(signedToken(t, time.Time{}), now), "token without the claim never expires")
}

func TestExpiryOf(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	got, err := ExpiryOf(signedToken(t, exp))
	require.NoError(t, err)
	assert.True(t, got.Equal(exp))

	_, err = ExpiryOf("garbage")
	assert.Error(t, err)
}

func TestBootstrapAdoptsCredentialFromSibling(t *testing.T) {
	broker := bus.NewBroker()
	defer broker.Close()
	access := signedToken(t, time.Now().Add(time.Hour))

	holder := NewPropagator(broker.Endpoint(), storage.NewMemory(), "tab-holder", nil, nil)
	require.NoError(t, holder.SetCredential(context.Background(), model.Credential{
		AccessToken:  access,
		RefreshToken: "refresh-1",
	}, "user-1"))
	require.NoError(t, holder.Start(context.Background()))
	defer holder.Close()

	joiner := NewPropagator(broker.Endpoint(), storage.NewMemory(), "tab-joiner", nil, nil)
	joiner.policy = shortPolicy()
	require.NoError(t, joiner.Start(context.Background()))
	defer joiner.Close()

	require.NoError(t, joiner.Bootstrap(context.Background()))

	cred, err := joiner.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, access, cred.AccessToken)
	assert.Equal(t, "refresh-1", cred.RefreshToken)
}

func TestBootstrapWithoutSiblingsFails(t *testing.T) {
	p := NewPropagator(bus.Noop{}, storage.NewMemory(), "tab-alone", nil, nil)
	p.policy = shortPolicy()
	require.NoError(t, p.Start(context.Background()))
	defer p.Close()

	assert.ErrorIs(t, p.Bootstrap(context.Background()), ErrUnauthenticated)

	_, err := p.Credential(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSetCredentialPropagatesProactively(t *testing.T) {
	broker := bus.NewBroker()
	defer broker.Close()
	access := signedToken(t, time.Now().Add(time.Hour))

	idle := NewPropagator(broker.Endpoint(), storage.NewMemory(), "tab-idle", nil, nil)
	require.NoError(t, idle.Start(context.Background()))
	defer idle.Close()

	login := NewPropagator(broker.Endpoint(), storage.NewMemory(), "tab-login", nil, nil)
	require.NoError(t, login.Start(context.Background()))
	defer login.Close()

	require.NoError(t, login.SetCredential(context.Background(), model.Credential{AccessToken: access}, "user-1"))

	// The idle tab adopts the published TOKEN_UPDATED without ever asking.
	require.Eventually(t, func() bool {
		cred, err := idle.Credential(context.Background())
		return err == nil && cred.AccessToken == access
	}, time.Second, 10*time.Millisecond)
}

func TestUserChangeForcesLogout(t *testing.T) {
	store := storage.NewMemory()
	forced := make(chan struct{}, 1)

	p := NewPropagator(bus.Noop{}, store, "tab-a", nil, func() {
		forced <- struct{}{}
	})
	access := signedToken(t, time.Now().Add(time.Hour))
	require.NoError(t, p.SetCredential(context.Background(), model.Credential{AccessToken: access}, "user-1"))
	require.NoError(t, p.Start(context.Background()))
	defer p.Close()

	// Another tab writing a different account to the shared key clears the
	// credential here and forces re-authentication.
	require.NoError(t, store.Set(context.Background(), storage.KeyUserID, "user-2"))

	select {
	case <-forced:
	case <-time.After(time.Second):
		t.Fatal("forced logout never fired")
	}
	_, err := p.Credential(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSameUserDoesNotForceLogout(t *testing.T) {
	store := storage.NewMemory()
	forced := false

	p := NewPropagator(bus.Noop{}, store, "tab-a", nil, func() { forced = true })
	access := signedToken(t, time.Now().Add(time.Hour))
	require.NoError(t, p.SetCredential(context.Background(), model.Credential{AccessToken: access}, "user-1"))
	require.NoError(t, p.Start(context.Background()))
	defer p.Close()

	require.NoError(t, store.Set(context.Background(), storage.KeyUserID, "user-1"))

	assert.False(t, forced)
	_, err := p.Credential(context.Background())
	assert.NoError(t, err)
}

type stubRefresher struct {
	cred  model.Credential
	err   error
	calls int
}

func (s *stubRefresher) RefreshCredential(context.Context, string) (model.Credential, error) {
	s.calls++
	return s.cred, s.err
}

func TestExpiredCredentialGetsOneSilentRefresh(t *testing.T) {
	fresh := signedToken(t, time.Now().Add(time.Hour))
	refresher := &stubRefresher{cred: model.Credential{AccessToken: fresh, RefreshToken: "refresh-2"}}

	p := NewPropagator(bus.Noop{}, storage.NewMemory(), "tab-a", refresher, nil)
	require.NoError(t, p.SetCredential(context.Background(), model.Credential{
		AccessToken:  signedToken(t, time.Now().Add(-time.Minute)),
		RefreshToken: "refresh-1",
	}, ""))

	cred, err := p.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fresh, cred.AccessToken)
	assert.Equal(t, 1, refresher.calls)

	// The refreshed credential satisfies later calls without refreshing again.
	_, err = p.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, refresher.calls)
}

func TestFailedRefreshClearsCredential(t *testing.T) {
	refresher := &stubRefresher{err: ErrUnauthenticated}

	p := NewPropagator(bus.Noop{}, storage.NewMemory(), "tab-a", refresher, nil)
	require.NoError(t, p.SetCredential(context.Background(), model.Credential{
		AccessToken:  signedToken(t, time.Now().Add(-time.Minute)),
		RefreshToken: "refresh-1",
	}, ""))

	_, err := p.Credential(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)

	// Cleared for good: the next call fails without another refresh attempt.
	_, err = p.Credential(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, 1, refresher.calls)
}

func TestStartLoadsPersistedCredential(t *testing.T) {
	store := storage.NewMemory()
	access := signedToken(t, time.Now().Add(time.Hour))
	require.NoError(t, store.Set(context.Background(), storage.KeyAccessToken, access))
	require.NoError(t, store.Set(context.Background(), storage.KeyRefreshToken, "refresh-1"))

	p := NewPropagator(bus.Noop{}, store, "tab-a", nil, nil)
	require.NoError(t, p.Start(context.Background()))
	defer p.Close()

	cred, err := p.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, access, cred.AccessToken)
	assert.Equal(t, "refresh-1", cred.RefreshToken)
}
