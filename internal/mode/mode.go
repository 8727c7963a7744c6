// Package mode resolves whether the running binary is a development copy or a
// packaged release. The result is computed once per process and is read-only
// afterwards.
package mode

import (
	"os"
	"sync"

	"github.com/getnao/nao-cli/internal/buildinfo"
)

// Mode is the build mode of the running binary.
type Mode string

const (
	Dev  Mode = "dev"
	Prod Mode = "prod"
)

// EnvVar selects the mode for binaries without a stamped build mode.
const EnvVar = "MODE"

// String implements fmt.Stringer.
func (m Mode) String() string { return string(m) }

// Parse maps a raw value to a Mode. Only the exact strings "dev" and "prod"
// are accepted.
func Parse(s string) (Mode, bool) {
	switch Mode(s) {
	case Dev:
		return Dev, true
	case Prod:
		return Prod, true
	}
	return "", false
}

// Lookup is one source in the resolution chain. ok reports whether the
// source had an answer.
type Lookup func() (m Mode, ok bool)

// Resolve tries each lookup in order and returns the first answer, or Dev
// when none of them has one.
func Resolve(lookups ...Lookup) Mode {
	for _, lookup := range lookups {
		if lookup == nil {
			continue
		}
		if m, ok := lookup(); ok {
			return m
		}
	}
	return Dev
}

// FromBuild reads the mode stamped by the release build.
func FromBuild(stamped func() (string, bool)) Lookup {
	return func() (Mode, bool) {
		raw, ok := stamped()
		if !ok {
			return "", false
		}
		return Parse(raw)
	}
}

// FromEnv reads the MODE variable. Only "prod" is an answer; anything else
// falls through to the default.
func FromEnv(getenv func(string) string) Lookup {
	return func() (Mode, bool) {
		if getenv(EnvVar) == string(Prod) {
			return Prod, true
		}
		return "", false
	}
}

// Default is the production resolution chain: stamped build mode, then the
// MODE environment variable.
func Default() Mode {
	return Resolve(FromBuild(buildinfo.LookupMode), FromEnv(os.Getenv))
}

var (
	once    sync.Once
	current Mode
)

// Current returns the process-wide mode, resolving it on first use.
func Current() Mode {
	once.Do(func() { current = Default() })
	return current
}

// IsDev reports whether the process runs in development mode.
func IsDev() bool { return Current() == Dev }

// IsProd reports whether the process runs a packaged release.
func IsProd() bool { return Current() == Prod }
