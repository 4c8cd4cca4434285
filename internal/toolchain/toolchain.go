// Package toolchain resolves the four tool versions (flutter, gradle,
// cocoapods, fastlane) for a build from an fvm_flavor mapping file, with
// explicit per-tool overrides taking precedence. Kept separate from
// internal/build so the pure mapping lookup is unit-testable without
// standing up a job.
package toolchain

import (
	"encoding/json"
	"os"

	"mobileci/go/sklog"
	"mobileci/internal/workspace"
)

// Entry is one named bundle of tool versions in fvm_flavors.json.
type Entry struct {
	Flutter   string `json:"flutter_version"`
	Gradle    string `json:"gradle_version"`
	Cocoapods string `json:"cocoapods_version"`
	Fastlane  string `json:"fastlane_version"`
}

// Overrides carries explicit per-tool versions supplied directly via the
// HTTP surface, which take precedence over the fvm_flavor mapping.
type Overrides struct {
	Flutter   string
	Gradle    string
	Cocoapods string
	Fastlane  string
}

// Resolver loads the fvm_flavors.json mapping file. The file is re-read on
// every lookup; nothing is cached between calls.
type Resolver struct {
	path string
}

// NewResolver returns a Resolver that reads its mapping from path.
func NewResolver(path string) *Resolver {
	return &Resolver{path: path}
}

// Resolve computes the effective Versions for a build: start from the
// fvmFlavor entry (if the mapping file exists and the key is present),
// then apply any non-empty override field. A missing file or unknown key
// is not fatal - it logs a warning and resolution proceeds using only the
// overrides.
func (r *Resolver) Resolve(fvmFlavor string, overrides Overrides) workspace.Versions {
	var entry Entry
	if fvmFlavor != "" {
		e, err := r.lookup(fvmFlavor)
		if err != nil {
			sklog.Warningf("fvm_flavor %q: %s", fvmFlavor, err)
		} else {
			entry = e
		}
	}

	versions := workspace.Versions{
		Flutter:   entry.Flutter,
		Gradle:    entry.Gradle,
		Cocoapods: entry.Cocoapods,
		Fastlane:  entry.Fastlane,
	}
	if overrides.Flutter != "" {
		versions.Flutter = overrides.Flutter
	}
	if overrides.Gradle != "" {
		versions.Gradle = overrides.Gradle
	}
	if overrides.Cocoapods != "" {
		versions.Cocoapods = overrides.Cocoapods
	}
	if overrides.Fastlane != "" {
		versions.Fastlane = overrides.Fastlane
	}
	return versions
}

func (r *Resolver) lookup(fvmFlavor string) (Entry, error) {
	b, err := os.ReadFile(r.path)
	if err != nil {
		return Entry{}, err
	}
	var mapping map[string]Entry
	if err := json.Unmarshal(b, &mapping); err != nil {
		return Entry{}, err
	}
	entry, ok := mapping[fvmFlavor]
	if !ok {
		return Entry{}, errUnknownFlavor(fvmFlavor)
	}
	return entry, nil
}

type errUnknownFlavor string

func (e errUnknownFlavor) Error() string {
	return "unknown fvm_flavor: " + string(e)
}
