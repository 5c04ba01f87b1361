package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/olekukonko/tablewriter"

	"github.com/jmylchreest/uast/pkg/ast"
	"github.com/jmylchreest/uast/pkg/grammar"
	"github.com/jmylchreest/uast/pkg/ignore"
	"github.com/jmylchreest/uast/pkg/index"
)

// openIndex opens the project's symbol store and an indexer over it.
func openIndex(e *env) (*index.Store, *index.Indexer, error) {
	if err := os.MkdirAll(e.cfg.Index.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	store, err := index.NewStore(e.cfg.StorePath(), e.cfg.SearchPath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open index: %w", err)
	}
	matcher, err := ignore.New(e.root, e.cfg.Ignore.Patterns...)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to load ignore rules: %w", err)
	}
	ix := index.NewIndexer(store, index.Options{
		Root:         e.root,
		Workers:      e.cfg.Index.Workers,
		MaxFileBytes: e.cfg.Index.MaxFileBytes,
		Ignore:       matcher,
		NewParser:    func() (*ast.Parser, error) { return newParser(e) },
	})
	return store, ix, nil
}

func cmdIndex(e *env, args []string) error {
	store, ix, err := openIndex(e)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := ix.IndexPaths(ctx, positional(args), hasFlag(args, "--force"))
	if err != nil {
		return fmt.Errorf("failed to index: %w", err)
	}

	fmt.Printf("Indexed %d files (%d unchanged), %d symbols\n", result.Files, result.Unchanged, result.Symbols)
	if result.Skipped > 0 {
		fmt.Printf("Skipped %d unnamed declarations\n", result.Skipped)
	}
	if result.Errors > 0 {
		fmt.Printf("Failed to index %d files (see log)\n", result.Errors)
	}
	return nil
}

func cmdSearch(e *env, args []string) error {
	terms := positional(args)
	if len(terms) < 1 {
		return fmt.Errorf("usage: uast search <query> [--kind=KIND] [--lang=LANG] [--file=PATH] [--limit=N] [--json]")
	}
	limit, err := parseIntFlag(args, "--limit=", e.cfg.Search.Limit)
	if err != nil {
		return err
	}
	lang := parseFlag(args, "--lang=")
	if lang != "" {
		l, ok := grammar.ParseLanguage(lang)
		if !ok {
			return fmt.Errorf("unknown language: %s", lang)
		}
		lang = l.String()
	}

	store, _, err := openIndex(e)
	if err != nil {
		return err
	}
	defer store.Close()

	results, err := store.SearchSymbols(terms[0], index.SearchOptions{
		Kind:     parseFlag(args, "--kind="),
		Language: lang,
		FilePath: parseFlag(args, "--file="),
		Limit:    limit,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if hasFlag(args, "--json") {
		return writeJSON(os.Stdout, results)
	}
	return writeResults(os.Stdout, results)
}

func writeResults(w io.Writer, results []*index.SearchResult) error {
	if len(results) == 0 {
		fmt.Fprintln(w, "No matching symbols.")
		return nil
	}
	table := tablewriter.NewWriter(w)
	table.Header("Name", "Kind", "Location", "Signature")
	for _, r := range results {
		sym := r.Symbol
		if err := table.Append([]string{
			sym.Name,
			sym.Kind,
			sym.FilePath + ":" + strconv.Itoa(sym.StartLine),
			truncate(sym.Signature, 60),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func cmdStats(e *env, args []string) error {
	store, _, err := openIndex(e)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats()
	if err != nil {
		return err
	}
	if hasFlag(args, "--json") {
		return writeJSON(os.Stdout, stats)
	}
	fmt.Printf("Files:   %d\n", stats.Files)
	fmt.Printf("Symbols: %d\n", stats.Symbols)
	fmt.Printf("Index:   %s\n", e.cfg.Index.Dir)
	return nil
}

func cmdClear(e *env) error {
	store, _, err := openIndex(e)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Clear(); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}
	fmt.Println("Index cleared.")
	return nil
}

func cmdWatch(e *env, args []string) error {
	store, ix, err := openIndex(e)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths := positional(args)
	if len(paths) == 0 {
		paths = e.cfg.Watch.Paths
	}

	if !hasFlag(args, "--no-initial") {
		result, err := ix.IndexPaths(ctx, paths, false)
		if err != nil {
			return fmt.Errorf("initial index failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Indexed %d files, %d symbols\n", result.Files, result.Symbols)
	}

	w, err := ix.Watch(index.WatcherConfig{
		Paths:         paths,
		DebounceDelay: e.cfg.Watch.Debounce,
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Start(); err != nil {
		w.Stop()
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Watching %s (debounce %s), Ctrl-C to stop\n", e.root, e.cfg.Watch.Debounce)

	<-ctx.Done()
	return w.Stop()
}
