// Package audio defines the audio engine collaborator. Actual decoding and
// output live outside this repository; the owner tab drives an Engine and
// the engine reports position/duration ticks back in.
package audio

import "SyncFM/model"

// Tick is a position report from the engine. DurationMs is 0 until the
// engine has determined the track length.
type Tick struct {
	PositionMs int64
	DurationMs int64
	// Ended is set once when playback reaches the end of the track.
	Ended bool
}

// Engine is the playback collaborator owned by exactly one tab at a time.
type Engine interface {
	// Load prepares a track for playback and resets the position.
	Load(track model.TrackRef) error
	Play() error
	Pause() error
	// Seek moves to the given position in milliseconds.
	Seek(positionMs int64) error
	// Ticks delivers position reports until Close.
	Ticks() <-chan Tick
	Close() error
}
