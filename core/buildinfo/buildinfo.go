// Package buildinfo carries release metadata stamped by the linker:
//
//	go build -ldflags "-X github.com/m3rciful/ocipanel/core/buildinfo.Version=v0.3.0 \
//	  -X github.com/m3rciful/ocipanel/core/buildinfo.Commit=$(git rev-parse --short HEAD)" ./cmd/ocipanel
package buildinfo

var (
	Version = "dev"
	Commit  = "local"
	// Date is RFC3339; empty for local builds.
	Date = ""
)

// String renders the metadata for the startup log line.
func String() string {
	s := Version + " (" + Commit
	if Date != "" {
		s += ", " + Date
	}
	return s + ")"
}
