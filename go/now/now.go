// Package now provides a context-injectable clock, so code that reasons
// about wall-clock time (build directory age, lock staleness) can be
// tested without sleeping or depending on the real time of day.
package now

import (
	"context"
	"time"
)

type contextKey struct{}

// Now returns the current time, or the time injected into ctx via
// WithTime, if any.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(contextKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime returns a context that makes Now(ctx) return t, for tests that
// need deterministic timestamps.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// TimeTicker is the subset of time.Ticker that code under test depends on,
// so a test can substitute a channel it controls.
type TimeTicker interface {
	Chan() <-chan time.Time
	Stop()
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) Chan() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()                  { r.t.Stop() }

// NewTimeTickerFunc constructs a TimeTicker. Overridden in tests.
type NewTimeTickerFunc func(d time.Duration) TimeTicker

// NewTicker is the default NewTimeTickerFunc, backed by time.NewTicker.
func NewTicker(d time.Duration) TimeTicker {
	return &realTicker{t: time.NewTicker(d)}
}
