package gc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mobileci/go/now"
	"mobileci/go/testutils"
)

func newTestDirs(t *testing.T) (builds, locks string) {
	root := t.TempDir()
	builds = filepath.Join(root, "builds")
	locks = filepath.Join(root, "queue_locks")
	require.NoError(t, os.MkdirAll(builds, 0o755))
	require.NoError(t, os.MkdirAll(locks, 0o755))
	return builds, locks
}

func touchWithAge(t *testing.T, path string, age time.Duration) {
	old := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, old, old))
}

func TestRunNow_RemovesAgedBuildDirs(t *testing.T) {
	testutils.SmallTest(t)

	builds, locks := newTestDirs(t)
	aged := filepath.Join(builds, "dev-android-20200101-000000")
	require.NoError(t, os.MkdirAll(aged, 0o755))
	touchWithAge(t, aged, 10*24*time.Hour)

	fresh := filepath.Join(builds, "dev-android-20990101-000000")
	require.NoError(t, os.MkdirAll(fresh, 0o755))

	s := New(builds, locks, func() int { return 7 }, func(string) bool { return false })
	res := s.RunNow()

	require.Equal(t, 1, res.BuildsDeleted)
	require.NoDirExists(t, aged)
	require.DirExists(t, fresh)
}

func TestRunNow_SkipsRunningJobs(t *testing.T) {
	testutils.SmallTest(t)

	builds, locks := newTestDirs(t)
	aged := filepath.Join(builds, "dev-android-20200101-000000")
	require.NoError(t, os.MkdirAll(aged, 0o755))
	touchWithAge(t, aged, 10*24*time.Hour)

	s := New(builds, locks, func() int { return 7 }, func(id string) bool { return id == "dev-android-20200101-000000" })
	res := s.RunNow()

	require.Equal(t, 0, res.BuildsDeleted)
	require.DirExists(t, aged)
}

func TestRunNow_RemovesOrphanedLocks(t *testing.T) {
	testutils.SmallTest(t)

	builds, locks := newTestDirs(t)
	orphaned := filepath.Join(locks, "dev_develop_default.lock")
	require.NoError(t, os.WriteFile(orphaned, []byte{}, 0o644))
	touchWithAge(t, orphaned, 25*time.Hour)

	fresh := filepath.Join(locks, "prod_main_default.lock")
	require.NoError(t, os.WriteFile(fresh, []byte{}, 0o644))

	s := New(builds, locks, func() int { return 7 }, func(string) bool { return false })
	res := s.RunNow()

	require.Equal(t, 1, res.LocksDeleted)
	require.NoFileExists(t, orphaned)
	require.FileExists(t, fresh)
}

func TestRunNowCtx_UsesInjectedClock(t *testing.T) {
	testutils.SmallTest(t)

	builds, locks := newTestDirs(t)
	dir := filepath.Join(builds, "dev-android-20200101-000000")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	touchWithAge(t, dir, 10*24*time.Hour)

	s := New(builds, locks, func() int { return 7 }, func(string) bool { return false })

	// Pin the clock to the build's own mtime: from that vantage point the
	// directory is brand new, not ten days stale, so it must survive.
	frozen := now.WithTime(context.Background(), time.Now().Add(-10*24*time.Hour))
	res := s.RunNowCtx(frozen)
	require.Equal(t, 0, res.BuildsDeleted)
	require.DirExists(t, dir)
}

func TestRunNow_DoesNotTouchSharedCaches(t *testing.T) {
	testutils.SmallTest(t)

	root := t.TempDir()
	builds := filepath.Join(root, "builds")
	locks := filepath.Join(root, "queue_locks")
	shared := filepath.Join(root, "shared", "pub", "3.29.3")
	require.NoError(t, os.MkdirAll(builds, 0o755))
	require.NoError(t, os.MkdirAll(locks, 0o755))
	require.NoError(t, os.MkdirAll(shared, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(shared, "package"), []byte("x"), 0o644))

	jobDir := filepath.Join(builds, "dev-android-20200101-000000")
	require.NoError(t, os.MkdirAll(jobDir, 0o755))
	require.NoError(t, os.Symlink(shared, filepath.Join(jobDir, "pub_cache")))
	touchWithAge(t, jobDir, 10*24*time.Hour)

	s := New(builds, locks, func() int { return 7 }, func(string) bool { return false })
	res := s.RunNow()

	require.Equal(t, 1, res.BuildsDeleted)
	require.FileExists(t, filepath.Join(shared, "package"))
}
