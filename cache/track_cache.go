package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SyncFM/model"

	"github.com/redis/go-redis/v9"
)

// trackCacheTTL bounds staleness of cached metadata; the catalog stays the
// source of truth.
const trackCacheTTL = 24 * time.Hour

// TrackCache caches resolved track metadata in Redis so queue rendering and
// re-resolution do not hit the catalog on every access.
type TrackCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTrackCache creates a track metadata cache over an established client.
func NewTrackCache(client *redis.Client) *TrackCache {
	return &TrackCache{client: client, ttl: trackCacheTTL}
}

// trackKey builds the Redis key for a track id.
func trackKey(id string) string {
	return fmt.Sprintf("syncfm:track:%s", id)
}

// Get returns the cached TrackRef for id, or (nil, nil) on a miss.
// Placeholder entries are never cached, so a hit is always real metadata.
func (c *TrackCache) Get(ctx context.Context, id string) (*model.TrackRef, error) {
	data, err := c.client.Get(ctx, trackKey(id)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached track %s: %w", id, err)
	}

	var track model.TrackRef
	if err := json.Unmarshal([]byte(data), &track); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached track %s: %w", id, err)
	}
	return &track, nil
}

// Set stores a resolved TrackRef. Placeholders are skipped so failed
// lookups are retried on next access.
func (c *TrackCache) Set(ctx context.Context, track model.TrackRef) error {
	if track.Placeholder {
		return nil
	}
	data, err := json.Marshal(track)
	if err != nil {
		return fmt.Errorf("failed to marshal track %s: %w", track.ID, err)
	}
	if err := c.client.Set(ctx, trackKey(track.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache track %s: %w", track.ID, err)
	}
	return nil
}

// Invalidate drops a cached entry.
func (c *TrackCache) Invalidate(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, trackKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate track %s: %w", id, err)
	}
	return nil
}
