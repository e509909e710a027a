package session

import "SyncFM/model"

// Queue is the ordered, id-keyed list of queued tracks. It is not safe for
// concurrent use on its own; Store wraps it under the session lock.
type Queue struct {
	tracks []model.TrackRef
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Len returns the number of queued tracks.
func (q *Queue) Len() int {
	return len(q.tracks)
}

// Tracks returns a copy of the queue in order.
func (q *Queue) Tracks() []model.TrackRef {
	out := make([]model.TrackRef, len(q.tracks))
	copy(out, q.tracks)
	return out
}

// IndexOf returns the position of id, or -1.
func (q *Queue) IndexOf(id string) int {
	for i, t := range q.tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// At returns the track at index i.
func (q *Queue) At(i int) model.TrackRef {
	return q.tracks[i]
}

// Add appends a track. If the id is already queued the existing entry moves
// to the end instead of duplicating.
func (q *Queue) Add(track model.TrackRef) {
	if i := q.IndexOf(track.ID); i >= 0 {
		q.tracks = append(q.tracks[:i], q.tracks[i+1:]...)
	}
	q.tracks = append(q.tracks, track)
}

// Remove drops the entry with the given id, if present.
func (q *Queue) Remove(id string) {
	if i := q.IndexOf(id); i >= 0 {
		q.tracks = append(q.tracks[:i], q.tracks[i+1:]...)
	}
}

// Move relocates the entry at from to position to. Both indices are clamped
// into [0, len-1]; a no-op when they resolve equal or the queue is empty.
func (q *Queue) Move(from, to int) {
	n := len(q.tracks)
	if n == 0 {
		return
	}
	from = clamp(from, 0, n-1)
	to = clamp(to, 0, n-1)
	if from == to {
		return
	}

	track := q.tracks[from]
	q.tracks = append(q.tracks[:from], q.tracks[from+1:]...)
	rest := append([]model.TrackRef{track}, q.tracks[to:]...)
	q.tracks = append(q.tracks[:to:to], rest...)
}

// SetQueue replaces the whole queue, used both for local "new queue"
// actions and for adopting an owner's replicated queue.
func (q *Queue) SetQueue(tracks []model.TrackRef) {
	q.tracks = make([]model.TrackRef, len(tracks))
	copy(q.tracks, tracks)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
