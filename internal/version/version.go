// Package version reports the uast build and the tree-sitter grammars
// compiled into it.
//
// Release builds set the variables at link time:
//
//	go build -ldflags "
//	  -X github.com/jmylchreest/uast/internal/version.Version=1.4.0
//	  -X github.com/jmylchreest/uast/internal/version.Commit=$(git rev-parse HEAD)
//	  -X github.com/jmylchreest/uast/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)
//	"
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/jmylchreest/uast/pkg/grammar"
)

// ApplicationName is the canonical name of this application.
const ApplicationName = "uast"

var (
	// Version is "0.0.0" for local builds, "x.y.z" for releases and
	// "x.y.z-dev.N+sha" between them.
	Version = "0.0.0"
	Commit  = ""
	Date    = ""
)

// vcs falls back to the module build info when ldflags left Commit unset.
var vcs = sync.OnceValues(func() (commit, date string) {
	if Commit != "" {
		return Commit, Date
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", Date
	}
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			commit = s.Value
		case "vcs.time":
			date = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if dirty && commit != "" {
		commit += "-dirty"
	}
	if Date != "" {
		date = Date
	}
	return commit, date
})

// Grammar is one compiled-in grammar and the version its allow-lists target.
type Grammar struct {
	Language string `json:"language"`
	Version  string `json:"grammar_version"`
}

// Info is the full build description.
type Info struct {
	Version   string    `json:"version"`
	Commit    string    `json:"commit,omitempty"`
	Date      string    `json:"date,omitempty"`
	GoVersion string    `json:"go_version"`
	Platform  string    `json:"platform"`
	Grammars  []Grammar `json:"grammars"`
}

// Get collects the build description.
func Get() Info {
	commit, date := vcs()
	info := Info{
		Version:   Version,
		Commit:    commit,
		Date:      date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Grammars:  make([]Grammar, 0, len(grammar.Languages)),
	}
	packs := grammar.DefaultPackRegistry()
	for _, l := range grammar.Languages {
		g := Grammar{Language: l.String()}
		if p := packs.Get(l); p != nil {
			g.Version = p.GrammarVersion
		}
		info.Grammars = append(info.Grammars, g)
	}
	return info
}

// Short is the version plus an abbreviated commit, e.g. "1.4.0 (3f2a9c1d)".
func Short() string {
	commit, _ := vcs()
	if len(commit) >= 8 {
		return fmt.Sprintf("%s (%s)", Version, commit[:8])
	}
	return Version
}

// String is the one-line description printed by "uast version".
func String() string {
	info := Get()
	var b strings.Builder
	fmt.Fprintf(&b, "%s version %s", ApplicationName, Short())
	if IsSnapshot() {
		b.WriteString(" [snapshot]")
	}
	if info.Date != "" {
		fmt.Fprintf(&b, " built %s", info.Date)
	}
	fmt.Fprintf(&b, " (%s, %s)", info.GoVersion, info.Platform)

	grammars := make([]string, 0, len(info.Grammars))
	for _, g := range info.Grammars {
		grammars = append(grammars, g.Language+"@"+g.Version)
	}
	fmt.Fprintf(&b, "\ngrammars: %s", strings.Join(grammars, " "))
	return b.String()
}

// JSON returns Get as indented JSON.
func JSON() string {
	data, err := json.MarshalIndent(Get(), "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}

// IsSnapshot reports whether this is a local or between-release build.
func IsSnapshot() bool {
	return Version == "0.0.0" || Version == "dev" || strings.Contains(Version, "-dev.")
}
