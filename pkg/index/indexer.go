package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/uast/pkg/ast"
	"github.com/jmylchreest/uast/pkg/grammar"
	"github.com/jmylchreest/uast/pkg/ignore"
)

// ErrTooLarge is returned for files above the configured size limit.
var ErrTooLarge = errors.New("file too large")

const signatureWidth = 120

// Options configures an Indexer.
type Options struct {
	Root         string          // project root; stored paths are relative to it
	Workers      int             // parallel parse workers (min 1)
	MaxFileBytes int64           // files above this are skipped (0 = no limit)
	Ignore       *ignore.Matcher // nil ignores nothing

	// NewParser builds the parser each worker owns (nil = ast.NewParser).
	NewParser func() (*ast.Parser, error)
}

// Indexer walks a project, extracts records from every supported file and
// writes them to a Store. Each worker owns its own ast.Parser, since a parser
// serialises its parses.
type Indexer struct {
	store *Store
	opts  Options

	newParser func() (*ast.Parser, error)
}

// Result summarises one IndexPaths run.
type Result struct {
	Files     int `json:"files"`     // files parsed and stored
	Unchanged int `json:"unchanged"` // skipped because the mod time matched
	Symbols   int `json:"symbols"`
	Skipped   int `json:"skipped"` // allow-listed nodes without a name
	Errors    int `json:"errors"`
}

// NewIndexer creates an Indexer writing to store.
func NewIndexer(store *Store, opts Options) *Indexer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Ignore == nil {
		opts.Ignore = ignore.NewEmpty()
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	newParser := opts.NewParser
	if newParser == nil {
		newParser = ast.NewParser
	}
	return &Indexer{store: store, opts: opts, newParser: newParser}
}

// ReadSource reads path and resolves its language from the extension. It
// fails with an error matching ast.ErrUnsupported for unknown extensions and
// ErrTooLarge when the file exceeds maxBytes (0 = no limit).
func ReadSource(path string, maxBytes int64) (string, grammar.Language, error) {
	lang, ok := grammar.FromPath(path)
	if !ok {
		return "", 0, fmt.Errorf("%s: %w", path, ast.ErrUnsupported)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", 0, err
	}
	if info.IsDir() {
		return "", 0, fmt.Errorf("%s is a directory", path)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return "", 0, fmt.Errorf("%s (%d bytes): %w", path, info.Size(), ErrTooLarge)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, err
	}
	return string(data), lang, nil
}

// IndexPaths indexes every supported file under paths (files or
// directories; empty = the project root). Unchanged files are skipped unless
// force is set. Per-file failures are logged and counted, not returned.
func (ix *Indexer) IndexPaths(ctx context.Context, paths []string, force bool) (*Result, error) {
	if len(paths) == 0 {
		paths = []string{ix.opts.Root}
	}

	files, err := ix.collect(paths)
	if err != nil {
		return nil, err
	}

	var (
		result                      Result
		indexed, unchanged, symbols atomic.Int64
		skipped, failed             atomic.Int64
	)

	jobs := make(chan string)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for _, f := range files {
			if err := gctx.Err(); err != nil {
				return err
			}
			select {
			case jobs <- f:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	workers := min(ix.opts.Workers, max(len(files), 1))
	for range workers {
		g.Go(func() error {
			parser, err := ix.newParser()
			if err != nil {
				return err
			}
			defer parser.Close()

			for path := range jobs {
				if !force && ix.unchanged(path) {
					unchanged.Add(1)
					continue
				}
				n, skip, err := ix.indexFile(parser, path)
				if err != nil {
					failed.Add(1)
					log.Printf("[uast:index] %s: %v", ix.rel(path), err)
					continue
				}
				indexed.Add(1)
				symbols.Add(int64(n))
				skipped.Add(int64(skip))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Files = int(indexed.Load())
	result.Unchanged = int(unchanged.Load())
	result.Symbols = int(symbols.Load())
	result.Skipped = int(skipped.Load())
	result.Errors = int(failed.Load())
	return &result, nil
}

// IndexFile parses one file with parser and replaces its records in the
// store. It returns the number of symbols stored.
func (ix *Indexer) IndexFile(parser *ast.Parser, path string) (int, error) {
	n, _, err := ix.indexFile(parser, path)
	return n, err
}

// RemoveFile drops a file's records from the store.
func (ix *Indexer) RemoveFile(path string) error {
	return ix.store.ClearFile(ix.rel(path))
}

func (ix *Indexer) indexFile(parser *ast.Parser, path string) (int, int, error) {
	source, lang, err := ReadSource(path, ix.opts.MaxFileBytes)
	if err != nil {
		return 0, 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0, err
	}

	tree, err := parser.Parse(source, lang)
	if err != nil {
		return 0, 0, err
	}
	report, err := parser.Extract(tree)
	if err != nil {
		return 0, 0, err
	}

	rel := ix.rel(path)
	if err := ix.store.ClearFile(rel); err != nil {
		return 0, 0, fmt.Errorf("clear old records: %w", err)
	}

	syms := Symbols(rel, source, report)
	fileInfo := &FileInfo{
		Path:      rel,
		Language:  lang.String(),
		ModTime:   info.ModTime(),
		SymbolIDs: make([]string, 0, len(syms)),
		Skipped:   len(report.Skipped),
	}
	for _, sym := range syms {
		if err := ix.store.AddSymbol(sym); err != nil {
			return 0, 0, err
		}
		fileInfo.SymbolIDs = append(fileInfo.SymbolIDs, sym.ID)
	}
	if err := ix.store.SetFileInfo(fileInfo); err != nil {
		return 0, 0, err
	}
	return len(syms), len(report.Skipped), nil
}

// Symbols converts an extraction report into index symbols, functions
// first, then variables, then structs.
func Symbols(file, source string, r *ast.Report) []*Symbol {
	lang := r.Language.String()
	out := make([]*Symbol, 0, len(r.Functions)+len(r.Variables)+len(r.Structs))
	for _, fn := range r.Functions {
		out = append(out, &Symbol{
			Name:      fn.Name,
			Kind:      string(ast.CategoryFunction),
			Signature: signature(source, fn.StartByte, fn.EndByte),
			FilePath:  file,
			StartByte: fn.StartByte,
			EndByte:   fn.EndByte,
			StartLine: int(fn.StartLine) + 1,
			EndLine:   int(fn.EndLine) + 1,
			Async:     fn.IsAsync,
			Language:  lang,
		})
	}
	for _, v := range r.Variables {
		out = append(out, &Symbol{
			Name:      v.Name,
			Kind:      string(ast.CategoryVariable),
			Signature: signature(source, v.StartByte, v.EndByte),
			FilePath:  file,
			StartByte: v.StartByte,
			EndByte:   v.EndByte,
			StartLine: lineAt(source, v.StartByte),
			EndLine:   lineAt(source, v.EndByte),
			Mutable:   v.IsMutable,
			Language:  lang,
		})
	}
	for _, st := range r.Structs {
		out = append(out, &Symbol{
			Name:      st.Name,
			Kind:      string(ast.CategoryStruct),
			Signature: signature(source, st.StartByte, st.EndByte),
			FilePath:  file,
			StartByte: st.StartByte,
			EndByte:   st.EndByte,
			StartLine: lineAt(source, st.StartByte),
			EndLine:   lineAt(source, st.EndByte),
			Language:  lang,
		})
	}
	return out
}

// signature is the first line of the declaration, collapsed and truncated.
func signature(source string, start, end uint) string {
	if start > end || end > uint(len(source)) {
		return ""
	}
	text := source[start:end]
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return ast.Snippet(text, signatureWidth)
}

// lineAt returns the 1-indexed line containing byte offset.
func lineAt(source string, offset uint) int {
	if offset > uint(len(source)) {
		offset = uint(len(source))
	}
	return strings.Count(source[:offset], "\n") + 1
}

func (ix *Indexer) unchanged(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	stored, err := ix.store.GetFileInfo(ix.rel(path))
	if err != nil {
		return false
	}
	return stored.ModTime.Equal(info.ModTime())
}

// collect expands paths into the supported, non-ignored files beneath them.
func (ix *Indexer) collect(paths []string) ([]string, error) {
	shouldSkip := ix.opts.Ignore.WalkFunc(ix.opts.Root)
	seen := make(map[string]bool)
	var files []string

	add := func(path string) {
		if _, ok := grammar.FromPath(path); !ok || seen[path] {
			return
		}
		seen[path] = true
		files = append(files, path)
	}

	for _, root := range paths {
		root = ix.abs(root)
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if skip, _ := shouldSkip(root, false); !skip {
				add(root)
			}
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if skip, skipDir := shouldSkip(path, d.IsDir()); skip {
				if skipDir {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.IsDir() {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func (ix *Indexer) abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(ix.opts.Root, path)
}

// rel returns path relative to the project root, slash-separated.
func (ix *Indexer) rel(path string) string {
	path = ix.abs(path)
	rel, err := filepath.Rel(ix.opts.Root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
