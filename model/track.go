package model

// TrackRef is a cached reference to a track in the catalog. The catalog
// backend remains the source of truth; a TrackRef only carries enough
// metadata to render queue entries and heartbeats.
type TrackRef struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album,omitempty"`
	Cover      string `json:"cover,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`

	// Placeholder marks an entry whose catalog lookup failed. It stays in
	// the queue and is retried on next access.
	Placeholder bool `json:"placeholder,omitempty"`
}

// PlaceholderTrack builds the stand-in metadata for a track id whose
// catalog resolution failed.
func PlaceholderTrack(id string) TrackRef {
	return TrackRef{
		ID:          id,
		Title:       "Unknown Track",
		Artist:      "Unknown Artist",
		Placeholder: true,
	}
}
