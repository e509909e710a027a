package session

import (
	"time"

	"SyncFM/model"
)

// MergeRemote applies a received heartbeat using the non-regressive rule: a
// field replaces the mirrored value only if the incoming value is present
// and valid; absent or invalid fields keep the previous mirrored value. An
// equally stale duplicate may be re-applied, but an older invalid value can
// never regress a newer one.
func (s *Store) MergeRemote(update model.PlayerStateUpdate, ownerDeviceID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if update.SongID != "" {
		s.sess.CurrentTrackID = update.SongID
	}
	if update.SongTitle != "" {
		s.sess.Title = update.SongTitle
	}
	if update.SongArtist != "" {
		s.sess.Artist = update.SongArtist
	}
	if update.SongCover != "" {
		s.sess.CoverURL = update.SongCover
	}
	if update.Duration > 0 {
		s.sess.DurationMs = int64(update.Duration * 1000)
	}
	if update.CurrentTime >= 0 {
		s.sess.PositionMs = clampPosition(int64(update.CurrentTime*1000), s.sess.DurationMs)
	}
	s.sess.IsPlaying = update.IsPlaying

	if update.Queue != nil {
		tracks := make([]model.TrackRef, 0, len(update.Queue))
		for _, item := range update.Queue {
			tracks = append(tracks, item.TrackRef())
		}
		s.queue.SetQueue(tracks)
	}

	if ownerDeviceID != "" {
		s.sess.OwnerDeviceID = ownerDeviceID
		s.sess.OwnerLastSeenAt = at
	}

	// Mirrors track the owner's transport state but never drive the engine.
	if s.sess.CurrentTrackID != "" {
		if s.sess.IsPlaying {
			s.status = model.StatusPlaying
		} else {
			s.status = model.StatusPaused
		}
	}
}
