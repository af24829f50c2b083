// Package buildinfo carries version metadata injected at link time.
package buildinfo

// Set via -ldflags, for example:
//
//	-X 'github.com/m3rciful/topup/core/buildinfo.Version=v0.3.0'
//	-X 'github.com/m3rciful/topup/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/topup/core/buildinfo.Date=2026-10-18T12:00:00Z'
var (
	// Version reports the semantic version or tag of the build.
	Version = "dev"
	// Commit reports the source control commit used for the build.
	Commit = "local"
	// Date reports the build timestamp in RFC3339 format.
	Date = ""
)

// String formats the build metadata for logs and the version endpoint.
func String() string {
	s := Version + " (" + Commit
	if Date != "" {
		s += ", " + Date
	}
	return s + ")"
}
