// SPDX-License-Identifier: MIT
//
// Package build carries release metadata stamped into the binary with linker
// flags, for example:
//
//	go build -ldflags "-X github.com/keeperofkey/awesome-potato/pkg/build.buildVersion=0.3.0"
//
// Unstamped development builds report "dev" values rather than failing.
package build

import "fmt"

// Info describes the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Populated by -ldflags at link time.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
)

const (
	defaultName        = "awesome-potato"
	defaultDescription = "Real-time audio features (volume, spectrum, beats, bands) for AwesomeWM effects"
	devValue           = "dev"
)

// Get returns build information, substituting development defaults for any
// flag that was not stamped.
func Get() Info {
	return Info{
		Name:        orDefault(buildName, defaultName),
		Description: defaultDescription,
		Time:        orDefault(buildTime, devValue),
		Commit:      orDefault(buildCommit, devValue),
		Version:     orDefault(buildVersion, devValue),
	}
}

// Stamped reports whether every ldflag was provided, which release builds
// are expected to do.
func Stamped() error {
	switch {
	case buildName == "":
		return fmt.Errorf("BuildName is required")
	case buildTime == "":
		return fmt.Errorf("BuildTime is required")
	case buildCommit == "":
		return fmt.Errorf("BuildCommit is required")
	case buildVersion == "":
		return fmt.Errorf("BuildVersion is required")
	}
	return nil
}

// String renders the version line printed by --version.
func (i Info) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", i.Version, i.Commit, i.Time)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
