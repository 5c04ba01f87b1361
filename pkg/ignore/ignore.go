// Package ignore decides which project paths the indexer and watcher skip.
//
// Rules come from three layers, in increasing priority: BuiltinDefaults, the
// ignore.patterns config key, and a .uastignore file at the project root. The
// syntax is .gitignore's:
//
//	# comment
//	*.min.js         match files by glob at any depth
//	vendor/          match directories by name (trailing slash)
//	**/fixtures/     match at any depth
//	!keep.min.js     negate an earlier pattern
//	/rootonly        anchored to project root (leading slash)
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileName is the per-project ignore file.
const FileName = ".uastignore"

// Matcher tests whether a path should be ignored.
type Matcher struct {
	rules []rule
}

type rule struct {
	pattern  string
	negation bool
	dirOnly  bool
}

// BuiltinDefaults are patterns applied even when no .uastignore file exists.
var BuiltinDefaults = []string{
	// Version control
	".git/",
	".svn/",
	".hg/",

	// Our own index
	".uast/",

	// Node / JavaScript / TypeScript
	"node_modules/",
	"dist/",
	".next/",
	".nuxt/",
	"coverage/",
	".cache/",
	"*.min.js",
	"*.d.ts",

	// Python
	"__pycache__/",
	".venv/",
	"venv/",
	".tox/",
	".mypy_cache/",
	".pytest_cache/",
	"*.egg-info/",
	"site-packages/",

	// Go
	"vendor/",
	"*.pb.go",
	"*_generated.go",
	"*.gen.go",

	// Rust
	"target/",

	// Java / Gradle
	"build/",
	".gradle/",
	"out/",

	// IDE / editor
	".idea/",
	".vscode/",
}

// New creates a Matcher from built-in defaults, then extra (typically the
// ignore.patterns config key), then <projectRoot>/.uastignore if present.
func New(projectRoot string, extra ...string) (*Matcher, error) {
	m := NewFromDefaults()
	m.Add(extra...)

	if err := m.loadFile(filepath.Join(projectRoot, FileName)); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return m, nil
}

// NewFromDefaults creates a Matcher using only built-in defaults.
func NewFromDefaults() *Matcher {
	m := &Matcher{}
	m.Add(BuiltinDefaults...)
	return m
}

// NewEmpty creates a Matcher that ignores nothing.
func NewEmpty() *Matcher {
	return &Matcher{}
}

// Add appends patterns after the existing rules. Later rules win, so added
// negations can re-include paths a default excluded. Blank lines and
// comments are skipped.
func (m *Matcher) Add(patterns ...string) {
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		m.rules = append(m.rules, parsePattern(p))
	}
}

// ShouldIgnore reports whether path (relative to the project root, either
// separator) should be ignored. isDir must be true when path is a directory.
func (m *Matcher) ShouldIgnore(path string, isDir bool) bool {
	path = filepath.ToSlash(path)
	path = strings.TrimSuffix(path, "/")

	if path == "" || path == "." {
		return false
	}

	// Last matching rule wins.
	ignored := false
	matched := false
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		if r.match(path) {
			ignored = !r.negation
			matched = true
		}
	}

	if ignored {
		return true
	}
	// An explicit negation beats an ignored parent directory.
	if matched {
		return false
	}

	// Watcher events arrive as file paths, so a file under an ignored
	// directory has to be caught here.
	if !isDir {
		parts := strings.Split(path, "/")
		for i := 1; i < len(parts); i++ {
			if m.ShouldIgnore(strings.Join(parts[:i], "/"), true) {
				return true
			}
		}
	}

	return false
}

// ShouldIgnoreDir is a convenience for ShouldIgnore(path, true).
func (m *Matcher) ShouldIgnoreDir(path string) bool {
	return m.ShouldIgnore(path, true)
}

// ShouldIgnoreFile is a convenience for ShouldIgnore(path, false).
func (m *Matcher) ShouldIgnoreFile(path string) bool {
	return m.ShouldIgnore(path, false)
}

// WalkFunc returns a skip check for filepath.Walk / WalkDir callbacks,
// converting absolute paths to project-relative ones.
//
//	shouldSkip := matcher.WalkFunc(projectRoot)
//	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
//	    if skip, skipDir := shouldSkip(path, d.IsDir()); skip {
//	        if skipDir { return filepath.SkipDir }
//	        return nil
//	    }
//	    ...
//	})
func (m *Matcher) WalkFunc(projectRoot string) func(path string, isDir bool) (skip bool, skipDir bool) {
	return func(path string, isDir bool) (bool, bool) {
		rel, err := filepath.Rel(projectRoot, path)
		if err != nil {
			rel = path
		}
		if m.ShouldIgnore(rel, isDir) {
			return true, isDir
		}
		return false, false
	}
}

func (m *Matcher) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m.Add(scanner.Text())
	}
	return scanner.Err()
}

// parsePattern converts a gitignore-style line into a rule whose pattern is
// a doublestar glob over the whole relative path.
func parsePattern(pattern string) rule {
	r := rule{}

	if strings.HasPrefix(pattern, "!") {
		r.negation = true
		pattern = pattern[1:]
	}

	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}

	// A leading slash, or any interior slash, anchors the pattern to the
	// root. Everything else matches at any depth.
	switch {
	case strings.HasPrefix(pattern, "/"):
		pattern = strings.TrimPrefix(pattern, "/")
	case strings.Contains(pattern, "/"):
	default:
		pattern = "**/" + pattern
	}

	r.pattern = pattern
	return r
}

func (r *rule) match(path string) bool {
	if prefix, ok := strings.CutSuffix(r.pattern, "/**"); ok && path == prefix {
		return true
	}
	ok, err := doublestar.Match(r.pattern, path)
	return err == nil && ok
}
