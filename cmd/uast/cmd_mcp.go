package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jmylchreest/uast/internal/version"
	"github.com/jmylchreest/uast/pkg/ast"
	"github.com/jmylchreest/uast/pkg/grammar"
	"github.com/jmylchreest/uast/pkg/index"
)

// mcpLog logs to stderr (stdout is reserved for MCP JSON-RPC protocol)
var mcpLog = log.New(os.Stderr, "[uast-mcp] ", log.Ltime)

// MCPServer exposes parsing, extraction and symbol search as MCP tools.
type MCPServer struct {
	env    *env
	parser *ast.Parser
	server *mcp.Server

	// store and indexer are nil when the index could not be opened
	// (e.g. another process holds the lock); search tools then report it.
	store   *index.Store
	indexer *index.Indexer
	indexMu sync.Mutex

	toolCounts sync.Map // map[string]*atomic.Int64
}

func cmdMCP(e *env, args []string) error {
	if hasFlag(args, "--help") || hasFlag(args, "-h") {
		fmt.Println(`uast mcp - Start MCP server on stdio

Usage:
  uast mcp [--watch]

Options:
  --watch    Keep the symbol index current while the server runs`)
		return nil
	}

	parser, err := newParser(e)
	if err != nil {
		return err
	}
	defer parser.Close()

	s := &MCPServer{env: e, parser: parser}

	store, ix, err := openIndex(e)
	if err != nil {
		mcpLog.Printf("WARNING: %v (search tools disabled)", err)
	} else {
		s.store, s.indexer = store, ix
		defer store.Close()

		if hasFlag(args, "--watch") {
			w, err := ix.Watch(index.WatcherConfig{Paths: e.cfg.Watch.Paths, DebounceDelay: e.cfg.Watch.Debounce})
			if err == nil {
				err = w.Start()
			}
			if err != nil {
				mcpLog.Printf("WARNING: watcher failed to start: %v", err)
			} else {
				mcpLog.Printf("watching %s (debounce %s)", e.root, e.cfg.Watch.Debounce)
				defer w.Stop()
			}
		}
	}

	defer func() {
		for name, n := range s.getToolCounts() {
			mcpLog.Printf("tool %s: %d calls", name, n)
		}
	}()
	mcpLog.Printf("MCP server ready (project %s), listening on stdio", e.root)
	return s.Run()
}

// Run registers every tool and serves over stdio until the client leaves.
func (s *MCPServer) Run() error {
	srv := mcp.NewServer(
		&mcp.Implementation{
			Name:    "uast",
			Version: version.Short(),
		},
		nil,
	)
	s.server = srv
	srv.AddReceivingMiddleware(s.toolCountMiddleware())

	s.registerASTTools()
	s.registerIndexTools()

	return srv.Run(context.Background(), &mcp.StdioTransport{})
}

// incrementToolCount atomically increments the execution count for a tool.
func (s *MCPServer) incrementToolCount(name string) {
	v, _ := s.toolCounts.LoadOrStore(name, &atomic.Int64{})
	v.(*atomic.Int64).Add(1)
}

// getToolCounts returns a snapshot of tool execution counts.
func (s *MCPServer) getToolCounts() map[string]int64 {
	counts := make(map[string]int64)
	s.toolCounts.Range(func(key, value any) bool {
		counts[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})
	return counts
}

// toolCountMiddleware returns MCP middleware that counts tool invocations.
func (s *MCPServer) toolCountMiddleware() mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			if method == "tools/call" {
				if params, ok := req.GetParams().(*mcp.CallToolParamsRaw); ok {
					s.incrementToolCount(params.Name)
				}
			}
			return next(ctx, method, req)
		}
	}
}

// ============================================================================
// Tool input types
// ============================================================================

// sourceInput is where a tool's code comes from: a file or inline source.
type sourceInput struct {
	File, Source, Lang string
}

type ParseInput struct {
	File     string `json:"file,omitempty" jsonschema:"Path of the file to parse, relative to the project root"`
	Source   string `json:"source,omitempty" jsonschema:"Inline source code (used instead of file; requires lang)"`
	Lang     string `json:"lang,omitempty" jsonschema:"Language: rust, typescript, python, go, javascript, java. Detected from the file extension when omitted"`
	MaxDepth int    `json:"max_depth,omitempty" jsonschema:"Cut the tree below this depth (0 = whole tree)"`
}

type ExtractInput struct {
	File   string `json:"file,omitempty" jsonschema:"Path of the file to parse, relative to the project root"`
	Source string `json:"source,omitempty" jsonschema:"Inline source code (used instead of file; requires lang)"`
	Lang   string `json:"lang,omitempty" jsonschema:"Language: rust, typescript, python, go, javascript, java. Detected from the file extension when omitted"`
	Kind   string `json:"kind,omitempty" jsonschema:"functions, variables, structs or all (default all)"`
}

type LocateInput struct {
	File   string `json:"file,omitempty" jsonschema:"Path of the file to parse, relative to the project root"`
	Source string `json:"source,omitempty" jsonschema:"Inline source code (used instead of file; requires lang)"`
	Lang   string `json:"lang,omitempty" jsonschema:"Language: rust, typescript, python, go, javascript, java. Detected from the file extension when omitted"`
	Offset int    `json:"offset" jsonschema:"Byte offset into the source"`
	Named  bool   `json:"named,omitempty" jsonschema:"Skip punctuation and keyword tokens"`
}

type SearchInput struct {
	Query    string `json:"query" jsonschema:"Symbol name or prefix to search for"`
	Kind     string `json:"kind,omitempty" jsonschema:"Filter by kind: function, variable, struct"`
	Language string `json:"lang,omitempty" jsonschema:"Filter by language"`
	FilePath string `json:"file,omitempty" jsonschema:"Filter by file path (substring match)"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Maximum results (default 20)"`
}

type IndexInput struct {
	Paths []string `json:"paths,omitempty" jsonschema:"Files or directories to index (default: whole project)"`
	Force bool     `json:"force,omitempty" jsonschema:"Re-index files even if unchanged"`
}

// ============================================================================
// Tool registration and handlers
// ============================================================================

func (s *MCPServer) registerASTTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "ast_parse",
		Description: `Parse a file (or inline source) into a unified syntax tree.

Every node carries its grammar kind, field name, byte range, line/column
positions and source text. Use max_depth to keep large files manageable.`,
	}, s.handleParse)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "ast_extract",
		Description: `Extract functions, variables and structs from a file.

Functions include parameters, return type, body, visibility and async.
Declarations whose name could not be resolved are listed under "skipped".`,
	}, s.handleExtract)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "ast_locate",
		Description: `Find the node at a byte offset.

Returns the chain of nodes from the root down to the deepest node containing
the offset (the end of a node counts as inside it).`,
	}, s.handleLocate)
}

func (s *MCPServer) registerIndexTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "ast_search",
		Description: `Search indexed symbols by name (prefix and substring).

**Note:** Run 'uast index' (or the ast_index tool) first.`,
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ast_index",
		Description: `Index symbols under the project. Unchanged files are skipped unless force is set.`,
	}, s.handleIndex)
}

// load resolves a tool's source input into parsed form.
func (s *MCPServer) load(in sourceInput) (*ast.AST, error) {
	var (
		source string
		lang   grammar.Language
		err    error
	)
	switch {
	case in.Source != "":
		l, ok := grammar.ParseLanguage(in.Lang)
		if !ok {
			return nil, fmt.Errorf("inline source needs a known lang, got %q", in.Lang)
		}
		source, lang = in.Source, l
	case in.File != "":
		path := in.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.env.root, path)
		}
		source, lang, err = loadSource(path, in.Lang, s.env.cfg.Index.MaxFileBytes)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("either file or source is required")
	}
	return s.parser.Parse(source, lang)
}

func (s *MCPServer) handleParse(_ context.Context, _ *mcp.CallToolRequest, input ParseInput) (*mcp.CallToolResult, any, error) {
	mcpLog.Printf("tool: ast_parse file=%s lang=%s depth=%d", input.File, input.Lang, input.MaxDepth)

	tree, err := s.load(sourceInput{input.File, input.Source, input.Lang})
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	if input.MaxDepth > 0 {
		tree = &ast.AST{Language: tree.Language, Root: prune(tree.Root, input.MaxDepth), Source: tree.Source}
	}
	return jsonResult(tree), nil, nil
}

func (s *MCPServer) handleExtract(_ context.Context, _ *mcp.CallToolRequest, input ExtractInput) (*mcp.CallToolResult, any, error) {
	mcpLog.Printf("tool: ast_extract file=%s kind=%s", input.File, input.Kind)

	if err := checkKind(input.Kind); err != nil {
		return errorResult(err.Error()), nil, nil
	}
	tree, err := s.load(sourceInput{input.File, input.Source, input.Lang})
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	report, err := s.parser.Extract(tree)
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	if report, err = filterReport(report, input.Kind); err != nil {
		return errorResult(err.Error()), nil, nil
	}
	mcpLog.Printf("  found: %d functions, %d variables, %d structs, %d skipped",
		len(report.Functions), len(report.Variables), len(report.Structs), len(report.Skipped))
	return jsonResult(report), nil, nil
}

func (s *MCPServer) handleLocate(_ context.Context, _ *mcp.CallToolRequest, input LocateInput) (*mcp.CallToolResult, any, error) {
	mcpLog.Printf("tool: ast_locate file=%s offset=%d", input.File, input.Offset)

	if input.Offset < 0 {
		return errorResult("offset must not be negative"), nil, nil
	}
	tree, err := s.load(sourceInput{input.File, input.Source, input.Lang})
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	path := ast.PathTo(tree.Root, uint(input.Offset))
	if len(path) == 0 {
		return errorResult(fmt.Sprintf("offset %d is outside the source (0-%d)", input.Offset, len(tree.Source))), nil, nil
	}
	if input.Named {
		for len(path) > 1 && !path[len(path)-1].IsNamed {
			path = path[:len(path)-1]
		}
	}
	out := make([]nodeSummary, 0, len(path))
	for _, n := range path {
		out = append(out, summarise(n))
	}
	return jsonResult(out), nil, nil
}

func (s *MCPServer) handleSearch(_ context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, any, error) {
	mcpLog.Printf("tool: ast_search query=%q kind=%s lang=%s", input.Query, input.Kind, input.Language)

	if s.store == nil {
		return errorResult("symbol index not available"), nil, nil
	}
	limit := input.Limit
	if limit <= 0 {
		limit = s.env.cfg.Search.Limit
	}
	lang := input.Language
	if l, ok := grammar.ParseLanguage(lang); ok {
		lang = l.String()
	}

	results, err := s.store.SearchSymbols(input.Query, index.SearchOptions{
		Kind:     input.Kind,
		Language: lang,
		FilePath: input.FilePath,
		Limit:    limit,
	})
	if err != nil {
		mcpLog.Printf("  error: %v", err)
		return errorResult(fmt.Sprintf("search failed: %v", err)), nil, nil
	}
	mcpLog.Printf("  found: %d symbols", len(results))
	return textResult(formatSearchResults(results)), nil, nil
}

func (s *MCPServer) handleIndex(ctx context.Context, _ *mcp.CallToolRequest, input IndexInput) (*mcp.CallToolResult, any, error) {
	mcpLog.Printf("tool: ast_index paths=%v force=%v", input.Paths, input.Force)

	if s.indexer == nil {
		return errorResult("symbol index not available"), nil, nil
	}
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	result, err := s.indexer.IndexPaths(ctx, input.Paths, input.Force)
	if err != nil {
		return errorResult(fmt.Sprintf("index failed: %v", err)), nil, nil
	}
	return jsonResult(result), nil, nil
}

// prune copies n down to depth levels; deeper children are dropped.
func prune(n *ast.Node, depth int) *ast.Node {
	if n == nil {
		return nil
	}
	cp := *n
	if depth <= 1 {
		cp.Children = nil
		return &cp
	}
	cp.Children = make([]*ast.Node, 0, len(n.Children))
	for _, c := range n.Children {
		cp.Children = append(cp.Children, prune(c, depth-1))
	}
	return &cp
}

// ============================================================================
// Result formatting
// ============================================================================

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "Error: " + message},
		},
		IsError: true,
	}
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encode result: %v", err))
	}
	return textResult(string(data))
}

func formatSearchResults(results []*index.SearchResult) string {
	if len(results) == 0 {
		return "No matching symbols found."
	}
	out := fmt.Sprintf("Found %d symbols:\n\n", len(results))
	for _, r := range results {
		sym := r.Symbol
		out += fmt.Sprintf("- **%s** (%s, %s) `%s:%d`\n", sym.Name, sym.Kind, sym.Language, sym.FilePath, sym.StartLine)
		if sym.Signature != "" {
			out += fmt.Sprintf("  `%s`\n", truncate(sym.Signature, 100))
		}
	}
	return out
}
