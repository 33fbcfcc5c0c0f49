// Package version holds the build identity of the prune binary. The values
// are set at link time:
//
//	go build -ldflags "-X github.com/Sumatoshi-tech/prune/pkg/version.Version=v1.0.0"
package version

import "fmt"

var (
	// Version is the release tag of the binary.
	Version = "dev"
	// Commit is the Git hash the binary was built from.
	Commit = "<unknown>"
	// Date is the build timestamp.
	Date = "<unknown>"
)

// String formats the build identity for humans.
func String() string {
	return fmt.Sprintf("prune %s (commit: %s, built: %s)", Version, Commit, Date)
}
