// Package buildinfo holds values stamped into release binaries at link time:
//
//	go build -ldflags "-X github.com/getnao/nao-cli/internal/buildinfo.Mode=prod \
//	    -X github.com/getnao/nao-cli/internal/buildinfo.Version=v0.4.2"
//
// Binaries built from a plain checkout carry none of them.
package buildinfo

import (
	"runtime/debug"
	"strings"
)

// ModulePath is the module path used by `go install` upgrades.
const ModulePath = "github.com/getnao/nao-cli"

var (
	// Mode is the build mode recorded by the release build ("prod" or "dev").
	Mode = ""
	// Version is the released version, "dev" when unstamped.
	Version = "dev"
	// Commit is the git commit the binary was built from.
	Commit = "unknown"
	// Date is the build timestamp.
	Date = "unknown"
)

// LookupMode returns the stamped build mode. ok is false when the binary was
// not produced by a release build.
func LookupMode() (string, bool) {
	m := strings.TrimSpace(Mode)
	if m == "" {
		return "", false
	}
	return m, true
}

// ResolvedVersion returns the stamped version, falling back to the module
// version recorded by `go install module@version`.
func ResolvedVersion() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		v := info.Main.Version
		if v != "" && v != "(devel)" {
			return v
		}
	}
	return "dev"
}
