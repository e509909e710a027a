package model

import "time"

// PlaybackStatus is the enum for the playback state machine.
type PlaybackStatus int

const (
	StatusIdle PlaybackStatus = iota
	StatusLoading
	StatusPlaying
	StatusPaused
)

func (s PlaybackStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// RepeatMode controls track advance at the end of the queue.
type RepeatMode string

const (
	RepeatOff RepeatMode = "off"
	RepeatOne RepeatMode = "one"
	RepeatAll RepeatMode = "all"
)

// Valid reports whether m is one of the three repeat modes.
func (m RepeatMode) Valid() bool {
	return m == RepeatOff || m == RepeatOne || m == RepeatAll
}

// Session is the in-tab model of the playback session. The owner tab holds
// the authoritative copy; mirrors reconstruct theirs from received
// heartbeats. It is never persisted and is re-derived on every tab load.
type Session struct {
	CurrentTrackID string     `json:"currentTrackId"`
	Title          string     `json:"title"`
	Artist         string     `json:"artist"`
	CoverURL       string     `json:"coverUrl"`
	PositionMs     int64      `json:"positionMs"`
	DurationMs     int64      `json:"durationMs"`
	IsPlaying      bool       `json:"isPlaying"`
	Queue          []TrackRef `json:"queue"`
	Shuffle        bool       `json:"shuffle"`
	Repeat         RepeatMode `json:"repeatMode"`

	OwnerDeviceID   string    `json:"ownerDeviceId,omitempty"`
	OwnerLastSeenAt time.Time `json:"ownerLastSeenAt,omitempty"`
}

// DeviceIdentity identifies one tab for its lifetime. It is generated at
// tab load, never persisted, and discarded on unload.
type DeviceIdentity struct {
	DeviceID string `json:"deviceId"`
}

// Credential is the access/refresh token pair proving an authenticated
// session. It is shared through the persisted key-value store and the auth
// channel.
type Credential struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Empty reports whether the credential carries no access token.
func (c Credential) Empty() bool {
	return c.AccessToken == ""
}
