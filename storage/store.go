// Package storage provides the persisted key-value collaborator shared by
// all tabs of one browser profile: the current user id, the credential and
// the ownership generation live here. Semantics are last-writer-wins with
// no transactional guarantee, so readers re-validate instead of trusting
// cached freshness.
package storage

import (
	"context"
	"errors"
)

// Well-known keys.
const (
	KeyUserID       = "userId"
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyOwner        = "player:owner"
)

// ErrNotFound is returned by Get for an absent key.
var ErrNotFound = errors.New("storage: key not found")

// Store is the shared key-value surface: get/set/clear plus change
// subscription. Clear notifies subscribers with an empty value.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Clear(ctx context.Context, key string) error

	// Subscribe registers a handler invoked with the new value whenever key
	// changes. The returned cancel function removes the handler.
	Subscribe(key string, handler func(value string)) (func(), error)

	Close() error
}

// Atomic is implemented by stores that can compare-and-swap a key. An old
// value of "" means set-if-absent. The ownership election uses this when
// available and falls back to a broadcast convention otherwise.
type Atomic interface {
	CompareAndSwap(ctx context.Context, key, old, new string) (bool, error)
}
