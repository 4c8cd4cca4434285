// Package mocks provides a fake now.TimeTicker for tests that need to drive
// a ticker-based loop deterministically instead of waiting on a real one.
package mocks

import (
	"time"

	"mobileci/go/now"
)

type fakeTicker struct {
	ch <-chan time.Time
}

func (f *fakeTicker) Chan() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()                  {}

// NewTimeTickerFunc returns a now.NewTimeTickerFunc whose TimeTicker.Chan()
// is backed by ch, so a test can push ticks on demand.
func NewTimeTickerFunc(ch <-chan time.Time) now.NewTimeTickerFunc {
	return func(time.Duration) now.TimeTicker {
		return &fakeTicker{ch: ch}
	}
}
