package version

import "fmt"

// Set at build time:
//
//	-X 'github.com/compozy/ordertx/pkg/version.Version=v1.0.0'
//	-X 'github.com/compozy/ordertx/pkg/version.CommitHash=abc123'
//	-X 'github.com/compozy/ordertx/pkg/version.BuildDate=2024-01-01T00:00:00Z'
var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildDate  = "unknown"
)

// String renders the build information for --version output.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, CommitHash, BuildDate)
}
