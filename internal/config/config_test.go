package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mobileci/go/testutils"
)

func TestBranchName_ExplicitWins(t *testing.T) {
	testutils.SmallTest(t)

	require.Equal(t, "feature/x", BranchName("dev", "feature/x"))
}

func TestBranchName_FallsBackToFlavorEnvVar(t *testing.T) {
	testutils.SmallTest(t)

	t.Setenv("DEV_BRANCH_NAME", "release/2.0")
	require.Equal(t, "release/2.0", BranchName("dev", ""))
}

func TestBranchName_DefaultsToDevelop(t *testing.T) {
	testutils.SmallTest(t)

	t.Setenv("PROD_BRANCH_NAME", "")
	require.Equal(t, "develop", BranchName("prod", ""))
}

func TestFastlaneLane_DefaultsToBeta(t *testing.T) {
	testutils.SmallTest(t)

	t.Setenv("DEV_FASTLANE_LANE", "")
	require.Equal(t, "beta", FastlaneLane("dev"))
}

func TestFastlaneLane_FromEnv(t *testing.T) {
	testutils.SmallTest(t)

	t.Setenv("PROD_FASTLANE_LANE", "release")
	require.Equal(t, "release", FastlaneLane("prod"))
}

func TestCacheCleanupDays_Default(t *testing.T) {
	testutils.SmallTest(t)

	t.Setenv("CACHE_CLEANUP_DAYS", "")
	require.Equal(t, 7, CacheCleanupDays())
}

func TestCacheCleanupDays_FromEnv(t *testing.T) {
	testutils.SmallTest(t)

	t.Setenv("CACHE_CLEANUP_DAYS", "14")
	require.Equal(t, 14, CacheCleanupDays())
}

func TestMaxParallelBuilds_Default(t *testing.T) {
	testutils.SmallTest(t)

	t.Setenv("MAX_PARALLEL_BUILDS", "")
	require.Equal(t, 3, MaxParallelBuilds())
}

func TestWorkspaceRoot_FromEnv(t *testing.T) {
	testutils.SmallTest(t)

	t.Setenv("WORKSPACE_ROOT", "relative-dir")
	root, err := WorkspaceRoot()
	require.NoError(t, err)
	require.True(t, len(root) > 0 && root[0] == '/')
}
