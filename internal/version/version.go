// Package version reports build metadata. Values are injected with ldflags:
//
//	go build -ldflags "-X github.com/lukas-andre/decollage-cl-sub000/internal/version.Version=1.0.0 ..."
//
// When Commit is not injected it is read from the module's VCS build info.
package version

import (
	"runtime"
	"runtime/debug"
)

var (
	Version = "0.0.0-dev"
	Commit  = ""
	Date    = "unknown"
	Dirty   = "false"
)

// Info is the build metadata of the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Dirty     bool   `json:"dirty"`
	GoVersion string `json:"go_version"`
}

// Get returns the build metadata.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		Dirty:     Dirty == "true",
		GoVersion: runtime.Version(),
	}
	if info.Commit == "" {
		info.Commit, info.Dirty = vcsRevision(info.Dirty)
	}
	return info
}

func vcsRevision(dirty bool) (string, bool) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown", dirty
	}
	rev := "unknown"
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
			if len(rev) > 12 {
				rev = rev[:12]
			}
		case "vcs.modified":
			dirty = dirty || s.Value == "true"
		}
	}
	return rev, dirty
}

// Short is the version with a -dirty suffix for modified trees. It is
// served in the X-API-Version header.
func (i Info) Short() string {
	if i.Dirty {
		return i.Version + "-dirty"
	}
	return i.Version
}

// UserAgent returns the User-Agent sent to image providers.
func UserAgent() string {
	return "decollage-api/" + Get().Short()
}
