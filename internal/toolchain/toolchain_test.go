package toolchain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"mobileci/go/testutils"
)

func writeMapping(t *testing.T, contents string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "fvm_flavors.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestResolve_FromMapping(t *testing.T) {
	testutils.SmallTest(t)

	path := writeMapping(t, `{
		"stable": {"flutter_version": "3.29.3", "gradle_version": "8.7", "cocoapods_version": "1.15.2", "fastlane_version": "2.222.0"}
	}`)
	r := NewResolver(path)
	versions := r.Resolve("stable", Overrides{})
	require.Equal(t, "3.29.3", versions.Flutter)
	require.Equal(t, "8.7", versions.Gradle)
	require.Equal(t, "1.15.2", versions.Cocoapods)
	require.Equal(t, "2.222.0", versions.Fastlane)
}

func TestResolve_OverridesWinOverMapping(t *testing.T) {
	testutils.SmallTest(t)

	path := writeMapping(t, `{"stable": {"flutter_version": "3.29.3", "gradle_version": "8.7"}}`)
	r := NewResolver(path)
	versions := r.Resolve("stable", Overrides{Flutter: "3.30.0"})
	require.Equal(t, "3.30.0", versions.Flutter)
	require.Equal(t, "8.7", versions.Gradle)
}

func TestResolve_UnknownFlavorFallsBackToOverridesOnly(t *testing.T) {
	testutils.SmallTest(t)

	path := writeMapping(t, `{"stable": {"flutter_version": "3.29.3"}}`)
	r := NewResolver(path)
	versions := r.Resolve("nonexistent", Overrides{Gradle: "8.9"})
	require.Equal(t, "", versions.Flutter)
	require.Equal(t, "8.9", versions.Gradle)
}

func TestResolve_MissingFileIsNotFatal(t *testing.T) {
	testutils.SmallTest(t)

	r := NewResolver(filepath.Join(t.TempDir(), "does-not-exist.json"))
	versions := r.Resolve("stable", Overrides{Flutter: "3.30.0"})
	require.Equal(t, "3.30.0", versions.Flutter)
}

func TestResolve_NoFVMFlavorUsesOverridesOnly(t *testing.T) {
	testutils.SmallTest(t)

	r := NewResolver(filepath.Join(t.TempDir(), "unused.json"))
	versions := r.Resolve("", Overrides{Cocoapods: "1.16.0"})
	require.Equal(t, "1.16.0", versions.Cocoapods)
	require.Equal(t, "", versions.Flutter)
}
