package buildconfig

import (
	"runtime/debug"
	"sync"
)

// Set with -ldflags "-X github.com/Harshitk-cp/bayesd/internal/buildconfig.version=...".
var (
	version = "dev"
	commit  = "unknown"
)

// Info identifies the running build in server_status, /stats and `reasonctl version`.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Dirty   bool   `json:"dirty,omitempty"`
}

var (
	once sync.Once
	info Info
)

// Current returns the build info. When the binary was built without ldflags the
// commit falls back to the VCS stamp the Go toolchain embeds.
func Current() Info {
	once.Do(func() {
		info = Info{Version: version, Commit: commit}
		bi, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "unknown" {
					info.Commit = shortRevision(s.Value)
				}
			case "vcs.modified":
				info.Dirty = s.Value == "true"
			}
		}
	})
	return info
}

func Version() string { return Current().Version }

func Commit() string { return Current().Commit }

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
