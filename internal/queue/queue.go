// Package queue serializes jobs that share a queue key using an on-disk
// advisory lock, so that concurrent jobs touching the same branch working
// tree never race, while jobs on distinct keys run fully in parallel.
package queue

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"mobileci/go/sklog"
)

const (
	// lockTimeout bounds how long a task waits to acquire its queue key's
	// lock before the job is failed with a queue-timeout error.
	lockTimeout  = time.Hour
	pollInterval = 250 * time.Millisecond
)

var normalizeRE = regexp.MustCompile(`[/.\-]`)

// Key canonicalizes (flavor, branch, toolchainVersion) into the queue key
// used to serialize jobs: lowercase, '/'/'.'/'-' -> '_', missing branch ->
// "unknown", missing toolchainVersion -> "default".
func Key(flavor, branch, toolchainVersion string) string {
	if branch == "" {
		branch = "unknown"
	}
	if toolchainVersion == "" {
		toolchainVersion = "default"
	}
	parts := []string{flavor, branch, toolchainVersion}
	for i, p := range parts {
		parts[i] = normalizeRE.ReplaceAllString(strings.ToLower(p), "_")
	}
	return strings.Join(parts, "_")
}

// ErrTimeout is returned when a task could not acquire its queue key's lock
// within lockTimeout.
type ErrTimeout struct {
	QueueKey string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("timed out waiting for queue key %q", e.QueueKey)
}

// Manager hands out exclusive execution slots keyed by queue key, backed by
// one lock file per key at the path lockFile returns.
type Manager struct {
	lockFile func(queueKey string) string
}

// NewManager constructs a Manager whose lock files live under the path
// returned by lockFile for a given queue key.
func NewManager(lockFile func(queueKey string) string) *Manager {
	return &Manager{lockFile: lockFile}
}

// Execute blocks until the lock for queueKey is acquired (or lockTimeout
// elapses), runs task while holding it, and always releases the lock
// afterward - on normal return, on error, and on panic (which is
// re-raised after the lock is released).
func (m *Manager) Execute(ctx context.Context, queueKey, jobID string, task func() error) error {
	path := m.lockFile(queueKey)
	fl := flock.New(path)

	// attemptID disambiguates overlapping acquisition attempts for the
	// same queue key in the logs - jobID alone doesn't tell apart two
	// Execute calls made with the same job ID.
	attemptID := uuid.NewString()
	sklog.Infof("job %s (attempt %s) waiting on queue key %q", jobID, attemptID, queueKey)

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(lockCtx, pollInterval)
	if err != nil {
		return &ErrTimeout{QueueKey: queueKey}
	}
	if !locked {
		return &ErrTimeout{QueueKey: queueKey}
	}
	sklog.Infof("job %s (attempt %s) acquired queue key %q", jobID, attemptID, queueKey)

	defer func() {
		if err := fl.Unlock(); err != nil {
			sklog.Errorf("releasing lock for queue key %q: %s", queueKey, err)
		}
		sklog.Infof("job %s (attempt %s) released queue key %q", jobID, attemptID, queueKey)
	}()

	return task()
}
