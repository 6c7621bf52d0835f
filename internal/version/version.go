package version

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is the current released version.
// This value can be overridden at build time using ldflags:
//
//	go build -ldflags "-X github.com/hrygo/leodock/internal/version.Version=v0.3.0"
var Version = "0.3.0"

// DevVersion is the version reported in dev and demo mode.
var DevVersion = Version + "-dev"

// GitCommit is the git commit hash at build time.
// Set via ldflags: -X github.com/hrygo/leodock/internal/version.GitCommit=$(git rev-parse HEAD)
var GitCommit = "unknown"

// SchemaVersion is the version of the persisted layout written by this binary.
// Bump it whenever a migration changes the conversations or sessions relations.
const SchemaVersion = "0.3.0"

func GetCurrentVersion(mode string) string {
	if mode == "dev" || mode == "demo" {
		return DevVersion
	}
	return Version
}

// IsVersionGreaterOrEqualThan returns true if version is greater than or equal to target.
func IsVersionGreaterOrEqualThan(version, target string) bool {
	return semver.Compare(canonical(version), canonical(target)) > -1
}

// IsVersionGreaterThan returns true if version is greater than target.
func IsVersionGreaterThan(version, target string) bool {
	return semver.Compare(canonical(version), canonical(target)) > 0
}

// IsValid reports whether version parses as major.minor.patch.
func IsValid(version string) bool {
	return semver.IsValid(canonical(version))
}

func canonical(version string) string {
	if strings.HasPrefix(version, "v") {
		return version
	}
	return "v" + version
}

// String returns the version string with the short commit hash, if known.
func String() string {
	v := Version
	if GitCommit != "" && GitCommit != "unknown" {
		shortCommit := GitCommit
		if len(shortCommit) > 8 {
			shortCommit = shortCommit[:8]
		}
		v = fmt.Sprintf("%s-%s", v, shortCommit)
	}
	return v
}
