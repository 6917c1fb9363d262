// Package version reports the profiler build.
package version

import (
	"fmt"
	"strconv"
)

// Set at link time with -ldflags "-X github.com/danpilch/callprof/pkg/version.Major=..."
// when releasing.
var (
	Major = "1"
	Minor = "2"
	Patch = "0"
)

// BuildNumber packs the version into a comparable integer:
// (major << 8) + (minor << 4) + patch.
func BuildNumber() uint32 {
	return Pack(atoi(Major), atoi(Minor), atoi(Patch))
}

// Pack combines version parts the way BuildNumber does.
func Pack(major, minor, patch uint32) uint32 {
	return (major << 8) + (minor << 4) + patch
}

// String returns the dotted version.
func String() string {
	return fmt.Sprintf("%s.%s.%s", Major, Minor, Patch)
}

func atoi(s string) uint32 {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}
