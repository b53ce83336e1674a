// Package buildinfo holds build-time metadata kept apart from user configuration.
package buildinfo

import "fmt"

// UnknownValue is reported for metadata the build did not set.
const UnknownValue = "unknown"

// Set with -ldflags "-X github.com/tphakala/birdnet-pipeline/internal/buildinfo.version=..."
var (
	version   string
	buildDate string
)

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string
}

// Current returns the metadata linked into this binary.
func Current() *Context {
	return &Context{Version: version, BuildDate: buildDate}
}

// GetVersion returns the build version or UnknownValue.
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate returns the build date or UnknownValue.
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// String renders the version line printed by --version.
func (c *Context) String() string {
	return fmt.Sprintf("%s (built %s)", c.GetVersion(), c.GetBuildDate())
}
