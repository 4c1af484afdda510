// Package version provides version information for the basic-dap binary.
package version

import "fmt"

const (
	// Version is the current version of basic-dap
	Version = "0.1.0"

	// Name is the binary name used in banners and logs
	Name = "basic-dap"
)

// String returns the full version string used by the -version flag and
// startup logging.
func String() string {
	return fmt.Sprintf("%s v%s", Name, Version)
}
