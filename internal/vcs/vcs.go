package vcs

import (
	"fmt"
	"runtime/debug"
)

// Version returns the module version, or the VCS revision suffixed with
// "-dirty" for builds from a modified working tree.
func Version() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}

	if bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}

	var revision string
	var modified bool

	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}

	if revision == "" {
		return bi.Main.Version
	}

	if modified {
		return fmt.Sprintf("%s-dirty", revision)
	}

	return revision
}
