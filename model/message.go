package model

import (
	"encoding/json"
	"time"
)

// MessageType names a cross-tab message.
type MessageType string

const (
	// player channel
	MsgPlayerStateUpdate MessageType = "PLAYER_STATE_UPDATE" // owner heartbeat
	MsgPlayerControl     MessageType = "PLAYER_CONTROL"      // transport intent relayed to the owner
	MsgFocusResponse     MessageType = "FOCUS_RESPONSE"      // owner regained foreground focus

	// auth channel
	MsgRequestToken  MessageType = "REQUEST_TOKEN"
	MsgTokenResponse MessageType = "TOKEN_RESPONSE"
	MsgTokenUpdated  MessageType = "TOKEN_UPDATED"
	MsgUserChanged   MessageType = "USER_CHANGED"
)

// Message is the envelope every bus frame travels in.
type Message struct {
	Type MessageType `json:"type"`
	// SenderID is the device id of the publishing tab.
	SenderID string `json:"senderId,omitempty"`
	// Generation is the sender's ownership generation, set on player-channel
	// messages published while acting as (or claiming to be) owner.
	Generation uint64          `json:"generation,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  int64           `json:"timestamp"`
}

// NewMessage builds an envelope around a payload.
func NewMessage(t MessageType, senderID string, payload interface{}) (Message, error) {
	msg := Message{
		Type:      t,
		SenderID:  senderID,
		Timestamp: time.Now().UnixMilli(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Message{}, err
		}
		msg.Data = data
	}
	return msg, nil
}

// DecodeData unmarshals the payload into v.
func (m Message) DecodeData(v interface{}) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// QueueItem is the queue entry shape carried in heartbeats.
type QueueItem struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Cover  string `json:"cover,omitempty"`
}

// TrackRef converts a replicated queue item back into a local track reference.
func (q QueueItem) TrackRef() TrackRef {
	return TrackRef{
		ID:     q.ID,
		Title:  q.Title,
		Artist: q.Artist,
		Cover:  q.Cover,
	}
}

// PlayerStateUpdate is the owner's full-state heartbeat. Times are in
// seconds on the wire; the session model keeps milliseconds.
type PlayerStateUpdate struct {
	SongID      string      `json:"songId"`
	CurrentTime float64     `json:"currentTime"`
	Duration    float64     `json:"duration"`
	IsPlaying   bool        `json:"isPlaying"`
	SongTitle   string      `json:"songTitle"`
	SongArtist  string      `json:"songArtist"`
	SongCover   string      `json:"songCover"`
	Queue       []QueueItem `json:"queue"`
}

// Control actions accepted by PLAYER_CONTROL.
const (
	ActionTogglePlay = "togglePlay"
	ActionNext       = "next"
	ActionPrevious   = "previous"
	ActionSeek       = "seek"
)

// PlayerControl is a transport intent addressed to whichever tab currently
// owns playback. Position is in milliseconds and only set for seek.
type PlayerControl struct {
	Action   string `json:"action"`
	Position *int64 `json:"position,omitempty"`
}

// FocusResponse acknowledges that the owner has regained foreground focus.
type FocusResponse struct {
	DeviceID string `json:"deviceId,omitempty"`
}

// RequestToken asks siblings for the shared credential.
type RequestToken struct {
	RequesterID string `json:"requesterId"`
}

// TokenResponse answers a RequestToken from a tab holding a valid credential.
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// TokenUpdated is published proactively after a local login.
type TokenUpdated struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// UserChanged announces that a different account became active in some tab.
type UserChanged struct {
	UserID string `json:"userId"`
}

// SnapshotFromSession converts the local session into heartbeat form.
func SnapshotFromSession(s Session) PlayerStateUpdate {
	queue := make([]QueueItem, 0, len(s.Queue))
	for _, t := range s.Queue {
		queue = append(queue, QueueItem{
			ID:     t.ID,
			Title:  t.Title,
			Artist: t.Artist,
			Cover:  t.Cover,
		})
	}
	return PlayerStateUpdate{
		SongID:      s.CurrentTrackID,
		CurrentTime: float64(s.PositionMs) / 1000,
		Duration:    float64(s.DurationMs) / 1000,
		IsPlaying:   s.IsPlaying,
		SongTitle:   s.Title,
		SongArtist:  s.Artist,
		SongCover:   s.CoverURL,
		Queue:       queue,
	}
}
