package cleanup

import (
	"testing"
	"time"

	assert "github.com/stretchr/testify/require"

	"mobileci/go/now/mocks"
	"mobileci/go/testutils"
)

func TestRepeatDeterministic(t *testing.T) {
	testutils.SmallTest(t)

	reset()
	ticks := make(chan time.Time)
	oldNewTicker := newTicker
	newTicker = mocks.NewTimeTickerFunc(ticks)
	defer func() { newTicker = oldNewTicker }()

	count := 0
	fired := make(chan struct{})
	cleanedUp := false
	Repeat(time.Hour, func() {
		count++
		fired <- struct{}{}
	}, func() {
		cleanedUp = true
	})

	for i := 0; i < 3; i++ {
		ticks <- time.Now()
		<-fired
	}
	Cleanup()
	assert.Equal(t, 3, count)
	assert.True(t, cleanedUp)
}

func TestCleanup(t *testing.T) {
	testutils.MediumTest(t)

	interval := 200 * time.Millisecond

	// Verify that both the tick and cleanup functions get called as
	// expected.
	count := 0
	cleanup := false
	Repeat(interval, func() {
		count++
		assert.False(t, cleanup)
	}, func() {
		assert.False(t, cleanup)
		cleanup = true
	})
	time.Sleep(10 * interval)
	Cleanup()
	assert.True(t, count >= 4)
	assert.True(t, cleanup)

	// Multiple registered funcs.
	reset()

	n := 5
	counts := make([]int, 0, n)
	cleanups := make([]bool, 0, n)
	for i := 0; i < n; i++ {
		counts = append(counts, 0)
		cleanups = append(cleanups, false)
	}
	for i := 0; i < n; i++ {
		idx := i
		Repeat(interval, func() {
			counts[idx]++
			assert.False(t, cleanups[idx])
		}, func() {
			assert.False(t, cleanups[idx])
			cleanups[idx] = true
		})
	}
	time.Sleep(10 * interval)
	Cleanup()
	for i := 0; i < n; i++ {
		assert.True(t, counts[i] >= 4)
		assert.True(t, cleanups[i])
	}
}
