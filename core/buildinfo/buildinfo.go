// Package buildinfo carries release metadata stamped in with -ldflags:
//
//	-X 'github.com/m3rciful/weatherbot/core/buildinfo.Version=v2.1.0'
//	-X 'github.com/m3rciful/weatherbot/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/weatherbot/core/buildinfo.Date=2025-08-30T12:00:00Z'
package buildinfo

import "strings"

var (
	Name    = "weatherbot"
	Version = "2.0"
	Commit  = "local"
	Date    = ""
)

// Summary renders "name version (commit, date)", omitting empty parts.
func Summary() string {
	var b strings.Builder
	b.WriteString(Name)
	if Version != "" {
		b.WriteString(" ")
		b.WriteString(Version)
	}
	var extra []string
	if Commit != "" {
		extra = append(extra, Commit)
	}
	if Date != "" {
		extra = append(extra, Date)
	}
	if len(extra) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(extra, ", "))
		b.WriteString(")")
	}
	return b.String()
}
