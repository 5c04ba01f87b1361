// Package main provides the CLI for uast.
package main

import (
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"

	"github.com/jmylchreest/uast/internal/version"
	"github.com/jmylchreest/uast/pkg/ast"
	"github.com/jmylchreest/uast/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	root := findProjectRoot()
	cfg, err := config.Load(root)
	if err != nil {
		fatal("failed to load config: %v", err)
	}
	if cfg.Debug || os.Getenv("UAST_DEBUG") == "1" {
		ast.SetDebugOutput(os.Stderr)
	}

	if err := runCommand(cmd, &env{root: root, cfg: cfg}, args); err != nil {
		fatal("%v", err)
	}
}

// env is what every command gets: the project root and resolved config.
type env struct {
	root string
	cfg  *config.Config
}

func runCommand(cmd string, e *env, args []string) error {
	switch cmd {
	case "parse":
		return cmdParse(e, args)
	case "extract":
		return cmdExtract(e, args)
	case "locate":
		return cmdLocate(e, args)
	case "langs", "languages":
		return cmdLangs(e, args)
	case "index":
		return cmdIndex(e, args)
	case "search":
		return cmdSearch(e, args)
	case "stats":
		return cmdStats(e, args)
	case "clear":
		return cmdClear(e)
	case "watch":
		return cmdWatch(e, args)
	case "mcp":
		return cmdMCP(e, args)
	case "help", "-h", "--help":
		printUsage()
		return nil
	case "version", "-v", "--version":
		return cmdVersion(args)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func cmdVersion(args []string) error {
	if hasFlag(args, "--json") {
		fmt.Println(version.JSON())
		return nil
	}
	fmt.Println(version.String())
	return nil
}

func printUsage() {
	fmt.Printf(`uast %s - Unified syntax trees and symbol extraction over tree-sitter

Usage:
  uast <command> [arguments]

Commands:
  parse      Print the unified AST of a file as JSON
  extract    Extract functions, variables and structs from a file
  locate     Find the deepest node at a byte offset
  langs      List supported languages
  index      Index symbols under the project (incremental by default)
  search     Search indexed symbols by name or signature
  stats      Show index statistics
  clear      Clear the symbol index
  watch      Keep the index current as files change
  mcp        Start MCP server on stdio
  version    Show version information

Options:
  parse <file>:
    --lang=LANG    Override language detection

  extract <file>:
    --kind=KIND    functions, variables, structs or all (default all)
    --lang=LANG    Override language detection
    --skipped      Also list nodes that could not be named
    --json         Output as JSON

  locate <file> <offset>:
    --lang=LANG    Override language detection
    --path         Print every node from the root down
    --named        Skip punctuation and keyword tokens
    --json         Output as JSON

  langs:
    --scan         Count the project's source files per language
    --json         Output as JSON

  index [paths...]:
    --force        Re-index even if a file hasn't changed

  search <query>:
    --kind=KIND    Filter by kind (function, variable, struct)
    --lang=LANG    Filter by language
    --file=PATH    Filter by file path substring
    --limit=N      Max results (default %d)
    --json         Output as JSON

  watch [paths...]:
    --no-initial   Skip the index pass before watching

  mcp:
    --watch        Keep the index current while serving

Environment:
  UAST_DEBUG=1                 Log parser activity to stderr
  UAST_INDEX__DIR              Index directory (default: .uast)
  UAST_INDEX__WORKERS          Parse workers (default: number of CPUs)
  UAST_INDEX__MAX_FILE_BYTES   Skip files larger than this
  UAST_WATCH__DEBOUNCE         Watcher debounce delay (default: %s)
  UAST_IGNORE__PATTERNS        Comma-separated extra ignore patterns

Examples:
  uast extract src/lib.rs --kind=functions
  uast locate main.go 120 --path
  uast index
  uast search "parse" --lang=python
`, version.Short(), config.DefaultSearchLimit, config.DefaultDebounce)
}

// findProjectRoot returns the enclosing git worktree root, falling back to
// the working directory.
func findProjectRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}

	repo, err := git.PlainOpenWithOptions(cwd, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return cwd
	}
	wt, err := repo.Worktree()
	if err != nil {
		return cwd
	}
	return wt.Filesystem.Root()
}
