// Package buildinfo stores build-time metadata shared across packages.
package buildinfo

// Set via ldflags during build.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// IsDev reports whether this is an unversioned development build.
func IsDev() bool {
	return Version == "dev"
}
