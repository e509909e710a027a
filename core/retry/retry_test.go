package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoStopsOnFirstSuccess(t *testing.T) {
	p := Policy{MaxAttempts: 5, Delays: []time.Duration{time.Millisecond}}

	calls := 0
	err := Do(context.Background(), p, func(attempt int) error {
		calls++
		if attempt == 1 {
			return nil
		}
		return errors.New("not yet")
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	p := Policy{MaxAttempts: 3, Delays: []time.Duration{time.Millisecond}}

	errLast := errors.New("attempt 2 failed")
	calls := 0
	err := Do(context.Background(), p, func(attempt int) error {
		calls++
		if attempt == 2 {
			return errLast
		}
		return errors.New("transient")
	})

	assert.Equal(t, 3, calls)
	assert.Equal(t, errLast, err)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	p := Policy{MaxAttempts: 5, Delays: []time.Duration{time.Hour}}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, p, func(int) error {
			calls++
			return errors.New("keep going")
		})
	}()

	// Let the first attempt run, then cancel mid-sleep.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestDoCancelledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 3}, func(int) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestDelayRepeatsLastEntry(t *testing.T) {
	p := Policy{
		MaxAttempts: 5,
		Delays:      []time.Duration{100 * time.Millisecond, 300 * time.Millisecond},
	}

	assert.Equal(t, 100*time.Millisecond, p.Delay(0))
	assert.Equal(t, 300*time.Millisecond, p.Delay(1))
	assert.Equal(t, 300*time.Millisecond, p.Delay(4))
}

func TestDelayEmptySchedule(t *testing.T) {
	assert.Zero(t, Policy{MaxAttempts: 2}.Delay(0))
}

func TestTokenBootstrapSchedule(t *testing.T) {
	assert.Equal(t, 5, TokenBootstrap.MaxAttempts)
	require.Len(t, TokenBootstrap.Delays, 5)

	var total time.Duration
	for i := 0; i+1 < len(TokenBootstrap.Delays); i++ {
		assert.Less(t, TokenBootstrap.Delays[i], TokenBootstrap.Delays[i+1])
	}
	// Sleeps happen between attempts, so the last delay never runs.
	for _, d := range TokenBootstrap.Delays[:len(TokenBootstrap.Delays)-1] {
		total += d
	}
	assert.LessOrEqual(t, total, 5*time.Second)
}
