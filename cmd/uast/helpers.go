package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jmylchreest/uast/pkg/ast"
	"github.com/jmylchreest/uast/pkg/grammar"
	"github.com/jmylchreest/uast/pkg/index"
)

// fatal prints an error message and exits with code 1.
func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// truncate shortens a string to n bytes with ellipsis, on a rune boundary.
func truncate(s string, n int) string {
	return ast.Snippet(s, n)
}

// parseFlag extracts a flag value from args (e.g., "--key=value").
func parseFlag(args []string, prefix string) string {
	for _, arg := range args {
		if strings.HasPrefix(arg, prefix) {
			return strings.TrimPrefix(arg, prefix)
		}
	}
	return ""
}

// hasFlag checks if a flag is present in args.
func hasFlag(args []string, flag string) bool {
	for _, arg := range args {
		if arg == flag {
			return true
		}
	}
	return false
}

// positional returns the arguments that are not flags.
func positional(args []string) []string {
	var out []string
	for _, arg := range args {
		if !strings.HasPrefix(arg, "--") {
			out = append(out, arg)
		}
	}
	return out
}

// parseIntFlag parses a numeric flag, returning def when it is absent.
func parseIntFlag(args []string, prefix string, def int) (int, error) {
	v := parseFlag(args, prefix)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %w", prefix, v, err)
	}
	return n, nil
}

// loadSource reads path and picks its language, honouring an explicit
// language name over the file extension.
func loadSource(path, langName string, maxBytes int64) (string, grammar.Language, error) {
	if langName == "" {
		return index.ReadSource(path, maxBytes)
	}
	lang, ok := grammar.ParseLanguage(langName)
	if !ok {
		return "", 0, fmt.Errorf("unknown language: %s", langName)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, err
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return "", 0, fmt.Errorf("%s (%d bytes): %w", path, len(data), index.ErrTooLarge)
	}
	return string(data), lang, nil
}

// newParser builds a parser, applying any pack overrides from config.
func newParser(e *env) (*ast.Parser, error) {
	if len(e.cfg.Packs.Dirs) == 0 {
		return ast.NewParser()
	}
	packs, err := grammar.NewPackRegistry()
	if err != nil {
		return nil, err
	}
	for _, dir := range e.cfg.Packs.Dirs {
		if err := packs.LoadFromDir(dir); err != nil {
			return nil, fmt.Errorf("load pack override: %w", err)
		}
	}
	return ast.NewParserWithRegistry(nil, packs)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
