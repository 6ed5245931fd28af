package version

import (
	"fmt"
	"runtime"
)

// Build metadata, injected with -ldflags at release time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info is the structured form of the build metadata.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
}

// Get returns the current build metadata.
func Get() Info {
	return Info{Version: Version, Commit: Commit, BuildDate: BuildDate, GoVersion: runtime.Version()}
}

// String renders the build metadata on one line.
func String() string {
	return fmt.Sprintf("tradewatch %s (commit %s, built %s, %s)", Version, Commit, BuildDate, runtime.Version())
}
