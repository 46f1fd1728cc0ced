// Package version reports build metadata. Release builds stamp Version, Commit
// and Date through -ldflags; other builds fall back to the module build info.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

var readBuildInfo = debug.ReadBuildInfo

// Info is the resolved build metadata.
type Info struct {
	Version  string
	Commit   string
	Date     string
	Modified bool
	Go       string
}

// Current merges linker stamps with vcs settings recorded by the go tool.
func Current() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date, Go: runtime.Version()}

	bi, ok := readBuildInfo()
	if !ok {
		return info.withDefaults()
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info.withDefaults()
}

func (i Info) withDefaults() Info {
	if i.Commit == "" {
		i.Commit = "none"
	}
	if len(i.Commit) > 12 {
		i.Commit = i.Commit[:12]
	}
	if i.Date == "" {
		i.Date = "unknown"
	}
	return i
}

func (i Info) String() string {
	commit := i.Commit
	if i.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("fala %s (commit=%s, date=%s, go=%s)", i.Version, commit, i.Date, i.Go)
}

// String is the one-line `fala version` output.
func String() string {
	return Current().String()
}

// UserAgent identifies fala on outbound HTTP requests.
func UserAgent() string {
	return "fala/" + Current().Version
}
