package version

import (
	"runtime/debug"
	"strings"
	"time"
)

const (
	defaultModule = "pkt.systems/notesync"
	unknown       = "v0.0.0-unknown"
)

// buildVersion is set via -ldflags "-X pkt.systems/notesync/internal/version.buildVersion=...".
var buildVersion = ""

// Current returns the linked version, the module version or a pseudo
// version derived from VCS stamps, in that order.
func Current() string {
	if v := strings.TrimSpace(buildVersion); v != "" {
		return v
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return unknown
	}
	if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
		return v
	}
	if v := pseudoVersion(info); v != "" {
		return v
	}
	return unknown
}

// Module returns the main module path.
func Module() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			return path
		}
	}
	return defaultModule
}

// UserAgent identifies notesync in outgoing HTTP requests.
func UserAgent() string {
	return "notesync/" + Current()
}

// pseudoVersion builds v0.0.0-<utc time>-<rev12>[+dirty] from vcs settings.
func pseudoVersion(info *debug.BuildInfo) string {
	if info == nil {
		return ""
	}
	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}
	rev, stamp := settings["vcs.revision"], settings["vcs.time"]
	if rev == "" || stamp == "" {
		return ""
	}
	at, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return ""
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	v := "v0.0.0-" + at.UTC().Format("20060102150405") + "-" + rev
	if settings["vcs.modified"] == "true" {
		v += "+dirty"
	}
	return v
}
