package audio

import (
	"sync"
	"time"

	"SyncFM/model"
)

// defaultDurationMs stands in for tracks whose metadata carries no length;
// a real engine reports the decoded duration instead.
const defaultDurationMs = 3 * 60 * 1000

// ClockEngine is a silent engine that advances a play head on wall-clock
// time. The CLI and tests use it in place of a real decoder.
type ClockEngine struct {
	mu         sync.Mutex
	playing    bool
	positionMs int64
	durationMs int64
	loaded     bool

	ticks  chan Tick
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

// NewClockEngine starts a clock engine reporting every interval.
func NewClockEngine(interval time.Duration) *ClockEngine {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	e := &ClockEngine{
		ticks:  make(chan Tick, 16),
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}
	go e.run(interval)
	return e
}

func (e *ClockEngine) Load(track model.TrackRef) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loaded = true
	e.positionMs = 0
	if track.DurationMs > 0 {
		e.durationMs = track.DurationMs
	} else {
		e.durationMs = defaultDurationMs
	}
	return nil
}

func (e *ClockEngine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = e.loaded
	return nil
}

func (e *ClockEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = false
	return nil
}

func (e *ClockEngine) Seek(positionMs int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if positionMs < 0 {
		positionMs = 0
	}
	if positionMs > e.durationMs {
		positionMs = e.durationMs
	}
	e.positionMs = positionMs
	return nil
}

func (e *ClockEngine) Ticks() <-chan Tick {
	return e.ticks
}

func (e *ClockEngine) Close() error {
	e.once.Do(func() {
		e.ticker.Stop()
		close(e.done)
	})
	return nil
}

func (e *ClockEngine) run(interval time.Duration) {
	for {
		select {
		case <-e.ticker.C:
			e.mu.Lock()
			if !e.loaded {
				e.mu.Unlock()
				continue
			}
			ended := false
			if e.playing {
				e.positionMs += interval.Milliseconds()
				if e.positionMs >= e.durationMs {
					e.positionMs = e.durationMs
					e.playing = false
					ended = true
				}
			}
			tick := Tick{PositionMs: e.positionMs, DurationMs: e.durationMs, Ended: ended}
			e.mu.Unlock()

			select {
			case e.ticks <- tick:
			default:
			}
		case <-e.done:
			return
		}
	}
}
