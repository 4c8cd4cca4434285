// Package cleanup lets long-running components register a repeating task
// plus a shutdown hook, and arranges for the shutdown hooks to fire exactly
// once: either on SIGINT/SIGTERM via Enable, or on demand via Cleanup (used
// by tests and by short-lived commands like a manual /cleanup trigger).
package cleanup

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"mobileci/go/now"
)

var (
	mtx       sync.Mutex
	repeaters []*repeater
	enabled   bool

	// newTicker is swapped out by tests (see go/now/mocks) so tick loops
	// can be driven deterministically.
	newTicker now.NewTimeTickerFunc = now.NewTicker
)

type repeater struct {
	ticker  now.TimeTicker
	stop    chan struct{}
	cleanup func()
	once    sync.Once
}

// Repeat calls tickFn every interval, in its own goroutine, until Cleanup is
// called, at which point tickFn stops firing and cleanupFn runs exactly
// once.
func Repeat(interval time.Duration, tickFn func(), cleanupFn func()) {
	done := make(chan struct{})
	r := &repeater{
		ticker: newTicker(interval),
		stop:   make(chan struct{}),
		// Wait for the tick loop to exit first, so cleanupFn never runs
		// while a tickFn call is still in progress.
		cleanup: func() {
			<-done
			cleanupFn()
		},
	}
	mtx.Lock()
	repeaters = append(repeaters, r)
	mtx.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-r.ticker.Chan():
				tickFn()
			case <-r.stop:
				r.ticker.Stop()
				return
			}
		}
	}()
}

func (r *repeater) shutdown() {
	r.once.Do(func() {
		close(r.stop)
		r.cleanup()
	})
}

// Cleanup triggers every registered repeater's cleanup function, exactly
// once each, and stops their tick loops. Safe to call more than once.
func Cleanup() {
	mtx.Lock()
	rs := make([]*repeater, len(repeaters))
	copy(rs, repeaters)
	mtx.Unlock()

	for _, r := range rs {
		r.shutdown()
	}
}

// Enable installs a signal handler that calls Cleanup and exits the process
// on SIGINT or SIGTERM. Safe to call more than once; only the first call
// installs the handler.
func Enable() {
	mtx.Lock()
	if enabled {
		mtx.Unlock()
		return
	}
	enabled = true
	mtx.Unlock()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		Cleanup()
		os.Exit(0)
	}()
}

// reset clears all registered repeaters without running their cleanup
// functions. Exported only to package-internal tests, which need a clean
// slate between test cases sharing this package-level state.
func reset() {
	mtx.Lock()
	defer mtx.Unlock()
	repeaters = nil
}
