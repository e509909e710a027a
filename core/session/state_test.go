package session

import (
	"testing"

	"SyncFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoreWithQueue(ids ...string) *Store {
	s := New()
	tracks := make([]model.TrackRef, len(ids))
	for i, id := range ids {
		tracks[i] = track(id, "title-"+id)
	}
	s.SetQueue(tracks)
	return s
}

func TestPlayTrackReplacesQueueWhenTrackNotQueued(t *testing.T) {
	s := newStoreWithQueue("a", "b", "c")

	s.PlayTrack(track("x", "X"), false)

	snap := s.Snapshot()
	require.Len(t, snap.Queue, 1)
	assert.Equal(t, "x", snap.Queue[0].ID)
	assert.Equal(t, "x", snap.CurrentTrackID)
	assert.True(t, snap.IsPlaying)
}

func TestPlayTrackKeepsQueueWhenTrackQueued(t *testing.T) {
	s := newStoreWithQueue("a", "b", "c")

	s.PlayTrack(track("b", "title-b"), false)

	snap := s.Snapshot()
	assert.Len(t, snap.Queue, 3)
	assert.Equal(t, "b", snap.CurrentTrackID)
}

func TestPlayTrackReplacesSingletonQueue(t *testing.T) {
	s := newStoreWithQueue("a")

	// Queue of one entry is replaced even when the track is in it.
	s.PlayTrack(track("a", "title-a"), false)

	snap := s.Snapshot()
	assert.Len(t, snap.Queue, 1)
}

func TestPlayTrackExplicitReplace(t *testing.T) {
	s := newStoreWithQueue("a", "b", "c")

	s.PlayTrack(track("b", "title-b"), true)

	snap := s.Snapshot()
	require.Len(t, snap.Queue, 1)
	assert.Equal(t, "b", snap.Queue[0].ID)
}

func TestTogglePlayFlips(t *testing.T) {
	s := New()
	s.PlayTrack(track("a", "A"), false)

	require.True(t, s.Snapshot().IsPlaying)
	s.TogglePlay()
	assert.False(t, s.Snapshot().IsPlaying)
	s.TogglePlay()
	assert.True(t, s.Snapshot().IsPlaying)
}

func TestSeekClampsIntoDuration(t *testing.T) {
	s := New()
	s.PlayTrack(track("a", "A"), false)
	s.ReportTick(0, 200_000)

	s.Seek(-50)
	assert.EqualValues(t, 0, s.Snapshot().PositionMs)

	s.Seek(250_000)
	assert.EqualValues(t, 200_000, s.Snapshot().PositionMs)

	s.Seek(125_000)
	assert.EqualValues(t, 125_000, s.Snapshot().PositionMs)
}

func TestPositionNeverExceedsDuration(t *testing.T) {
	s := New()
	s.PlayTrack(track("a", "A"), false)
	s.ReportTick(0, 10_000)

	s.ReportTick(99_999, 0)
	snap := s.Snapshot()
	assert.GreaterOrEqual(t, snap.PositionMs, int64(0))
	assert.LessOrEqual(t, snap.PositionMs, snap.DurationMs)
}

func TestSetRepeatModeRejectsInvalid(t *testing.T) {
	s := New()
	s.SetRepeatMode(model.RepeatAll)
	assert.Equal(t, model.RepeatAll, s.Snapshot().Repeat)

	s.SetRepeatMode(model.RepeatMode("bogus"))
	assert.Equal(t, model.RepeatAll, s.Snapshot().Repeat)
}

func TestPlayNextWrapsWithRepeatAll(t *testing.T) {
	s := newStoreWithQueue("a", "b", "c")
	s.PlayTrack(track("c", "title-c"), false)
	s.SetRepeatMode(model.RepeatAll)

	next := s.PlayNext()

	require.NotNil(t, next)
	assert.Equal(t, "a", next.ID)
	assert.Equal(t, "a", s.Snapshot().CurrentTrackID)
	assert.True(t, s.Snapshot().IsPlaying)
}

func TestPlayNextStopsAtEndWithRepeatOff(t *testing.T) {
	s := newStoreWithQueue("a", "b", "c")
	s.PlayTrack(track("c", "title-c"), false)
	s.SetRepeatMode(model.RepeatOff)

	next := s.PlayNext()

	assert.Nil(t, next)
	snap := s.Snapshot()
	assert.False(t, snap.IsPlaying)
	assert.Equal(t, "c", snap.CurrentTrackID)
}

func TestPlayNextAdvancesSequentially(t *testing.T) {
	s := newStoreWithQueue("a", "b", "c")
	s.PlayTrack(track("a", "title-a"), false)

	next := s.PlayNext()
	require.NotNil(t, next)
	assert.Equal(t, "b", next.ID)
}

// The current track missing from the queue falls back to index 0 regardless
// of repeat mode. Documented behavior; do not "fix" without confirming
// intent.
func TestPlayNextMissingCurrentFallsBackToHead(t *testing.T) {
	s := newStoreWithQueue("a", "b", "c")
	s.PlayTrack(track("b", "title-b"), false)
	s.RemoveFromQueue("b")
	s.SetRepeatMode(model.RepeatOff)

	next := s.PlayNext()

	require.NotNil(t, next)
	assert.Equal(t, "a", next.ID)
	assert.True(t, s.Snapshot().IsPlaying)
}

func TestPlayNextEmptyQueueStops(t *testing.T) {
	s := New()
	s.PlayTrack(track("a", "A"), false)
	s.SetQueue(nil)

	next := s.PlayNext()

	assert.Nil(t, next)
	assert.False(t, s.Snapshot().IsPlaying)
}

func TestPlayNextShuffleExcludesCurrent(t *testing.T) {
	s := newStoreWithQueue("a", "b", "c")
	s.PlayTrack(track("b", "title-b"), false)
	s.SetShuffle(true)

	for i := 0; i < 20; i++ {
		prev := s.Snapshot().CurrentTrackID
		next := s.PlayNext()
		require.NotNil(t, next)
		assert.NotEqual(t, prev, next.ID)
	}
}

func TestPlayNextShuffleSingleEntryRepeatAllWraps(t *testing.T) {
	s := newStoreWithQueue("a")
	s.PlayTrack(track("a", "title-a"), false)
	s.SetShuffle(true)
	s.SetRepeatMode(model.RepeatAll)

	next := s.PlayNext()
	require.NotNil(t, next)
	assert.Equal(t, "a", next.ID)
}

func TestPlayNextShuffleSingleEntryRepeatOffStops(t *testing.T) {
	s := newStoreWithQueue("a")
	s.PlayTrack(track("a", "title-a"), false)
	s.SetShuffle(true)
	s.SetRepeatMode(model.RepeatOff)

	assert.Nil(t, s.PlayNext())
	assert.False(t, s.Snapshot().IsPlaying)
}

func TestPlayPreviousStepsBack(t *testing.T) {
	s := newStoreWithQueue("a", "b", "c")
	s.PlayTrack(track("b", "title-b"), false)

	prev := s.PlayPrevious()
	require.NotNil(t, prev)
	assert.Equal(t, "a", prev.ID)
}

func TestPlayPreviousAtHeadWrapsOnlyWithRepeatAll(t *testing.T) {
	s := newStoreWithQueue("a", "b", "c")
	s.PlayTrack(track("a", "title-a"), false)

	assert.Nil(t, s.PlayPrevious())
	assert.Equal(t, "a", s.Snapshot().CurrentTrackID)

	s.SetRepeatMode(model.RepeatAll)
	prev := s.PlayPrevious()
	require.NotNil(t, prev)
	assert.Equal(t, "c", prev.ID)
}

func TestPlayPreviousIgnoresShuffle(t *testing.T) {
	s := newStoreWithQueue("a", "b", "c")
	s.PlayTrack(track("c", "title-c"), false)
	s.SetShuffle(true)

	// Previous is sequential even under shuffle.
	prev := s.PlayPrevious()
	require.NotNil(t, prev)
	assert.Equal(t, "b", prev.ID)
}

func TestResetReturnsToIdle(t *testing.T) {
	s := newStoreWithQueue("a", "b")
	s.PlayTrack(track("a", "title-a"), false)

	s.Reset()

	snap := s.Snapshot()
	assert.Equal(t, model.StatusIdle, s.Status())
	assert.Empty(t, snap.CurrentTrackID)
	assert.Empty(t, snap.Queue)
	assert.False(t, snap.IsPlaying)
}

func TestStatusMachineLoadingToPlaying(t *testing.T) {
	s := New()
	s.PlayTrack(track("a", "A"), false) // no duration yet
	assert.Equal(t, model.StatusLoading, s.Status())

	s.ReportTick(0, 180_000)
	assert.Equal(t, model.StatusPlaying, s.Status())

	s.TogglePlay()
	assert.Equal(t, model.StatusPaused, s.Status())
}
