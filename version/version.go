package version

import (
	"fmt"

	"github.com/coreos/go-semver/semver"
)

var (
	// Version is the library version, bumped on every visible protocol
	// or API change.
	Version = "0.1.0"

	// APIVersion is the major.minor of Version, derived at init.
	APIVersion = "unknown"
)

func init() {
	ver, err := semver.NewVersion(Version)
	if err == nil {
		APIVersion = fmt.Sprintf("%d.%d", ver.Major, ver.Minor)
	}
}
