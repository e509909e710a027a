// Package retry is the single bounded-retry primitive shared by the token
// bootstrap, the initial auth check and catalog fetches. It never blocks
// beyond its schedule and always honors context cancellation.
package retry

import (
	"context"
	"time"
)

// Policy bounds a retry sequence: at most MaxAttempts calls, sleeping
// Delays[i] after failed attempt i. When attempts outnumber delays the last
// delay repeats.
type Policy struct {
	MaxAttempts int
	Delays      []time.Duration
}

// TokenBootstrap is the schedule for requesting the credential from sibling
// tabs: five attempts on an increasing 200ms–2.5s ladder.
var TokenBootstrap = Policy{
	MaxAttempts: 5,
	Delays: []time.Duration{
		200 * time.Millisecond,
		700 * time.Millisecond,
		1200 * time.Millisecond,
		1800 * time.Millisecond,
		2500 * time.Millisecond,
	},
}

// CatalogFetch is the schedule for transient catalog lookups.
var CatalogFetch = Policy{
	MaxAttempts: 3,
	Delays: []time.Duration{
		300 * time.Millisecond,
		800 * time.Millisecond,
		1500 * time.Millisecond,
	},
}

// Delay returns the sleep after the given zero-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if len(p.Delays) == 0 {
		return 0
	}
	if attempt >= len(p.Delays) {
		return p.Delays[len(p.Delays)-1]
	}
	return p.Delays[attempt]
}

// Do calls fn until it returns nil, up to p.MaxAttempts times, sleeping the
// scheduled delay between attempts. It returns the last error, or the
// context error if the context ends first.
func Do(ctx context.Context, p Policy, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}

		if attempt == p.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}
