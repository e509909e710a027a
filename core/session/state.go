// Package session holds the authoritative in-tab playback model: current
// track, transport state, position and the ordered queue. All mutation is
// local; cross-tab replication happens above it in the arbiter.
package session

import (
	"math/rand"
	"sync"
	"time"

	"SyncFM/model"
)

// Store is the session state store. The owner tab mutates it through the
// operations below; mirror tabs only feed it replicated snapshots via
// MergeRemote.
type Store struct {
	mu     sync.RWMutex
	status model.PlaybackStatus
	sess   model.Session
	queue  *Queue
	rng    *rand.Rand
}

// New creates an idle session store.
func New() *Store {
	return &Store{
		status: model.StatusIdle,
		sess:   model.Session{Repeat: model.RepeatOff},
		queue:  NewQueue(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Snapshot returns a copy of the session including the queue.
func (s *Store) Snapshot() model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess := s.sess
	sess.Queue = s.queue.Tracks()
	return sess
}

// Status returns the playback state machine state.
func (s *Store) Status() model.PlaybackStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// PlayTrack starts playback of a track. The queue is replaced with the
// singleton [track] when replaceQueue is set, when the track is not already
// queued, or when the queue holds at most one entry; otherwise the existing
// queue is kept and playback simply moves to that track.
func (s *Store) PlayTrack(track model.TrackRef, replaceQueue bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if replaceQueue || s.queue.IndexOf(track.ID) < 0 || s.queue.Len() <= 1 {
		s.queue.SetQueue([]model.TrackRef{track})
	}
	s.setCurrentLocked(track)
}

// TogglePlay flips isPlaying.
func (s *Store) TogglePlay() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sess.IsPlaying = !s.sess.IsPlaying
	if s.sess.CurrentTrackID == "" {
		return
	}
	if s.status == model.StatusPlaying || s.status == model.StatusPaused {
		if s.sess.IsPlaying {
			s.status = model.StatusPlaying
		} else {
			s.status = model.StatusPaused
		}
	}
}

// Seek clamps ms into [0, durationMs] and updates the position.
func (s *Store) Seek(ms int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess.PositionMs = clampPosition(ms, s.sess.DurationMs)
}

// SetShuffle updates the shuffle flag.
func (s *Store) SetShuffle(shuffle bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess.Shuffle = shuffle
}

// SetRepeatMode updates the repeat mode. Invalid modes are ignored.
func (s *Store) SetRepeatMode(mode model.RepeatMode) {
	if !mode.Valid() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess.Repeat = mode
}

// PlayNext advances the queue and returns the selected track, or nil when
// playback stopped or nothing changed.
func (s *Store) PlayNext() *model.TrackRef {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue.Len() == 0 {
		s.stopLocked()
		return nil
	}

	if s.sess.Shuffle {
		return s.playNextShuffledLocked()
	}

	idx := s.queue.IndexOf(s.sess.CurrentTrackID)
	switch {
	case idx < 0:
		// Current track no longer in the queue: restart at the head. This
		// applies regardless of repeat mode.
		return s.selectLocked(0)
	case idx == s.queue.Len()-1:
		if s.sess.Repeat == model.RepeatAll {
			return s.selectLocked(0)
		}
		s.stopLocked()
		return nil
	default:
		return s.selectLocked(idx + 1)
	}
}

// PlayPrevious steps back through the queue sequentially. Shuffle has no
// previous-track branch.
func (s *Store) PlayPrevious() *model.TrackRef {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue.Len() == 0 {
		return nil
	}

	idx := s.queue.IndexOf(s.sess.CurrentTrackID)
	if idx <= 0 {
		if s.sess.Repeat == model.RepeatAll {
			return s.selectLocked(s.queue.Len() - 1)
		}
		return nil
	}
	return s.selectLocked(idx - 1)
}

// ReportTick feeds position/duration reported by the audio engine back into
// the session.
func (s *Store) ReportTick(positionMs, durationMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if durationMs > 0 {
		s.sess.DurationMs = durationMs
		if s.status == model.StatusLoading {
			if s.sess.IsPlaying {
				s.status = model.StatusPlaying
			} else {
				s.status = model.StatusPaused
			}
		}
	}
	if positionMs >= 0 {
		s.sess.PositionMs = clampPosition(positionMs, s.sess.DurationMs)
	}
}

// Reset returns the session to idle, dropping the queue and current track.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = model.StatusIdle
	s.sess = model.Session{Repeat: model.RepeatOff}
	s.queue = NewQueue()
}

// SetOwner records which device currently broadcasts as owner.
func (s *Store) SetOwner(deviceID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess.OwnerDeviceID = deviceID
	s.sess.OwnerLastSeenAt = at
}

// Queue operations, exposed through the session lock.

// AddToQueue appends a track, moving an existing entry with the same id to
// the end.
func (s *Store) AddToQueue(track model.TrackRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.Add(track)
}

// RemoveFromQueue drops a track by id.
func (s *Store) RemoveFromQueue(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.Remove(id)
}

// MoveInQueue relocates a queue entry.
func (s *Store) MoveInQueue(from, to int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.Move(from, to)
}

// SetQueue replaces the queue.
func (s *Store) SetQueue(tracks []model.TrackRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.SetQueue(tracks)
}

// QueueTracks returns a copy of the queue.
func (s *Store) QueueTracks() []model.TrackRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queue.Tracks()
}

// playNextShuffledLocked picks uniformly among queue entries excluding the
// current one.
func (s *Store) playNextShuffledLocked() *model.TrackRef {
	candidates := make([]int, 0, s.queue.Len())
	for i := 0; i < s.queue.Len(); i++ {
		if s.queue.At(i).ID != s.sess.CurrentTrackID {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		if s.sess.Repeat == model.RepeatAll {
			return s.selectLocked(0)
		}
		s.stopLocked()
		return nil
	}
	return s.selectLocked(candidates[s.rng.Intn(len(candidates))])
}

// selectLocked makes the track at idx current and resumes playback.
func (s *Store) selectLocked(idx int) *model.TrackRef {
	track := s.queue.At(idx)
	s.setCurrentLocked(track)
	return &track
}

func (s *Store) setCurrentLocked(track model.TrackRef) {
	s.sess.CurrentTrackID = track.ID
	s.sess.Title = track.Title
	s.sess.Artist = track.Artist
	s.sess.CoverURL = track.Cover
	s.sess.PositionMs = 0
	s.sess.DurationMs = track.DurationMs
	s.sess.IsPlaying = true
	if track.DurationMs > 0 {
		s.status = model.StatusPlaying
	} else {
		s.status = model.StatusLoading
	}
}

func (s *Store) stopLocked() {
	s.sess.IsPlaying = false
	if s.status == model.StatusPlaying {
		s.status = model.StatusPaused
	}
}

func clampPosition(ms, durationMs int64) int64 {
	if ms < 0 {
		return 0
	}
	if durationMs > 0 && ms > durationMs {
		return durationMs
	}
	return ms
}
