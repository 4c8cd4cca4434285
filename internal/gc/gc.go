// Package gc implements the cleanup scheduler: a daily sweep that removes
// aged job directories and orphaned queue lock files, plus a synchronous
// "run now" entry point for the /cleanup HTTP handler.
package gc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"mobileci/go/now"
	"mobileci/go/sklog"
)

const (
	orphanedLockAge = 24 * time.Hour
	dailySchedule   = "0 3 * * *"
)

// Scheduler owns the on-disk directories subject to garbage collection and
// an accessor for which jobs are still running, so it never deletes a
// workspace a job is actively using.
type Scheduler struct {
	buildsDir     string
	queueLocksDir string
	cleanupDays   func() int
	isRunning     func(jobID string) bool

	cron *cron.Cron
}

// New constructs a Scheduler. isRunning is consulted before deleting any
// build directory, keyed by directory name (== job ID); cleanupDays is
// re-read on every sweep so CACHE_CLEANUP_DAYS can change between runs
// without a restart.
func New(buildsDir, queueLocksDir string, cleanupDays func() int, isRunning func(jobID string) bool) *Scheduler {
	return &Scheduler{
		buildsDir:     buildsDir,
		queueLocksDir: queueLocksDir,
		cleanupDays:   cleanupDays,
		isRunning:     isRunning,
		cron:          cron.New(cron.WithLocation(time.Local)),
	}
}

// Start schedules the daily 03:00 local-time sweep and returns immediately.
// The chosen zone is the host's local time, per the orchestrator's
// single-host deployment model - there's no multi-region requirement that
// would call for UTC or a configurable zone.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(dailySchedule, func() {
		s.RunNow()
	})
	if err != nil {
		return fmt.Errorf("scheduling cleanup: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduled sweep. In-flight sweeps are allowed to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunNow executes one sweep synchronously: aged build directories, then
// orphaned lock files. Used by both the scheduled trigger and the manual
// /cleanup HTTP handler. Age cutoffs are computed against now.Now(ctx) (the
// real clock unless a test has injected one via now.WithTime), not
// time.Now() directly, so staleness math is deterministic under test.
func (s *Scheduler) RunNow() Result {
	return s.RunNowCtx(context.Background())
}

// RunNowCtx is RunNow with an explicit context, for tests that inject a
// fixed clock via now.WithTime.
func (s *Scheduler) RunNowCtx(ctx context.Context) Result {
	res := Result{}
	res.BuildsDeleted, res.BytesFreed = s.cleanupOldBuilds(ctx)
	res.LocksDeleted = s.cleanupOrphanedLocks(ctx)
	sklog.Infof("cleanup: removed %d build dirs (%d bytes), %d orphaned locks", res.BuildsDeleted, res.BytesFreed, res.LocksDeleted)
	return res
}

// Result reports what one sweep did, for the /cleanup HTTP response.
type Result struct {
	BuildsDeleted int
	BytesFreed    int64
	LocksDeleted  int
}

func (s *Scheduler) cleanupOldBuilds(ctx context.Context) (int, int64) {
	cutoff := now.Now(ctx).Add(-time.Duration(s.cleanupDays()) * 24 * time.Hour)

	entries, err := os.ReadDir(s.buildsDir)
	if err != nil {
		sklog.Errorf("reading builds dir: %s", err)
		return 0, 0
	}

	deleted := 0
	var freed int64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if s.isRunning != nil && s.isRunning(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			sklog.Errorf("stat %s: %s", e.Name(), err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		dir := filepath.Join(s.buildsDir, e.Name())
		size := dirSize(dir)
		if err := os.RemoveAll(dir); err != nil {
			sklog.Errorf("removing %s: %s", dir, err)
			continue
		}
		deleted++
		freed += size
		sklog.Infof("deleted aged build dir %s (%d bytes)", e.Name(), size)
	}
	return deleted, freed
}

func (s *Scheduler) cleanupOrphanedLocks(ctx context.Context) int {
	entries, err := os.ReadDir(s.queueLocksDir)
	if err != nil {
		sklog.Errorf("reading queue locks dir: %s", err)
		return 0
	}

	cutoff := now.Now(ctx).Add(-orphanedLockAge)
	deleted := 0
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".lock" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.queueLocksDir, e.Name())
		if err := os.Remove(path); err != nil {
			sklog.Errorf("removing orphaned lock %s: %s", path, err)
			continue
		}
		deleted++
	}
	return deleted
}

// dirSize sums file sizes under dir, for reporting only - it is not used
// to decide whether to delete.
func dirSize(dir string) int64 {
	var total int64
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total
}
