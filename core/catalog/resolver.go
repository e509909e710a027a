package catalog

import (
	"context"

	"SyncFM/cache"
	"SyncFM/logger"
	"SyncFM/model"
)

// Fetcher is the lookup surface the resolver needs from the client.
type Fetcher interface {
	FetchTrackByID(ctx context.Context, id string) (*model.TrackRef, error)
}

// TrackStore is the metadata cache consulted before the catalog. Satisfied
// by cache.TrackCache.
type TrackStore interface {
	Get(ctx context.Context, id string) (*model.TrackRef, error)
	Set(ctx context.Context, track model.TrackRef) error
}

var _ TrackStore = (*cache.TrackCache)(nil)

// Resolver resolves track ids to metadata, cache first. A failed lookup
// yields placeholder metadata rather than dropping the entry; the
// placeholder is never cached, so the next access retries.
type Resolver struct {
	fetcher Fetcher
	cache   TrackStore
}

// NewResolver builds a resolver. cache may be nil.
func NewResolver(fetcher Fetcher, cache TrackStore) *Resolver {
	return &Resolver{fetcher: fetcher, cache: cache}
}

// Resolve returns metadata for id. The returned TrackRef is always usable;
// the error reports whether resolution actually succeeded.
func (r *Resolver) Resolve(ctx context.Context, id string) (model.TrackRef, error) {
	if r.cache != nil {
		if cached, err := r.cache.Get(ctx, id); err == nil && cached != nil {
			return *cached, nil
		} else if err != nil {
			logger.Debug("track cache lookup failed", logger.ErrorField(err), logger.String("track", id))
		}
	}

	track, err := r.fetcher.FetchTrackByID(ctx, id)
	if err != nil {
		logger.Warn("track resolution failed, keeping placeholder",
			logger.ErrorField(err),
			logger.String("track", id))
		return model.PlaceholderTrack(id), err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, *track); err != nil {
			logger.Debug("failed to cache track", logger.ErrorField(err), logger.String("track", id))
		}
	}
	return *track, nil
}
