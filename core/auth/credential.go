package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned when no valid credential exists after
// bootstrap and retries, or when an expired credential fails its silent
// refresh. Identity errors are terminal for the session: they force a
// logout rather than continuing silently.
var ErrUnauthenticated = errors.New("auth: not authenticated")

// ExpiryOf decodes the access token's registered expiry claim. The token is
// parsed without signature verification: the tab is not the issuer and only
// needs the claim, the backend still verifies on every request. A token
// without an expiry claim returns the zero time.
func ExpiryOf(accessToken string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to decode access token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

// Expired reports whether the access token is past its expiry claim at now.
// A malformed token counts as expired; a token without the claim does not
// expire.
func Expired(accessToken string, now time.Time) bool {
	exp, err := ExpiryOf(accessToken)
	if err != nil {
		return true
	}
	if exp.IsZero() {
		return false
	}
	return !now.Before(exp)
}
