package ast

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/google/go-cmp/cmp"
	"github.com/jmylchreest/uast/pkg/grammar"
)

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	p, err := NewParser()
	if err != nil {
		t.Fatalf("NewParser: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func mustParse(t *testing.T, p *Parser, source string, lang grammar.Language) *AST {
	t.Helper()
	tree, err := p.Parse(source, lang)
	if err != nil {
		t.Fatalf("Parse(%s): %v", lang, err)
	}
	return tree
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func TestRustFunction(t *testing.T) {
	p := newTestParser(t)
	tree := mustParse(t, p, "fn add(a: i32, b: i32) -> i32 { a + b }", grammar.Rust)

	fns, err := p.ExtractFunctions(tree)
	if err != nil {
		t.Fatalf("ExtractFunctions: %v", err)
	}
	if len(fns) != 1 {
		t.Fatalf("expected 1 function, got %d", len(fns))
	}
	fn := fns[0]
	if fn.Name != "add" {
		t.Errorf("name = %q, want add", fn.Name)
	}
	var names []string
	for _, param := range fn.Parameters {
		names = append(names, param.Name)
	}
	if diff := cmp.Diff([]string{"a", "b"}, names); diff != "" {
		t.Errorf("parameter names mismatch (-want +got):\n%s", diff)
	}
	if fn.Parameters[0].ParamType == nil || *fn.Parameters[0].ParamType != "i32" {
		t.Errorf("first parameter type = %v, want i32", fn.Parameters[0].ParamType)
	}
	if fn.ReturnType == nil || *fn.ReturnType != "i32" {
		t.Errorf("return type = %v, want i32", fn.ReturnType)
	}
	if fn.Body != "{ a + b }" {
		t.Errorf("body = %q", fn.Body)
	}
	if fn.StartByte != 0 || fn.EndByte != uint(len(tree.Source)) {
		t.Errorf("range = [%d,%d)", fn.StartByte, fn.EndByte)
	}
	if fn.IsAsync {
		t.Error("expected non-async function")
	}
	if fn.Visibility != nil {
		t.Errorf("visibility = %q, want nil", *fn.Visibility)
	}
}

func TestPythonFunction(t *testing.T) {
	p := newTestParser(t)
	tree := mustParse(t, p, "def multiply(a, b):\n    return a * b\n", grammar.Python)

	fns, err := p.ExtractFunctions(tree)
	if err != nil {
		t.Fatalf("ExtractFunctions: %v", err)
	}
	if len(fns) != 1 {
		t.Fatalf("expected 1 function, got %d", len(fns))
	}
	if fns[0].Name != "multiply" {
		t.Errorf("name = %q, want multiply", fns[0].Name)
	}
	if len(fns[0].Parameters) != 2 {
		t.Errorf("expected 2 parameters, got %d", len(fns[0].Parameters))
	}
	if fns[0].StartLine != 0 || fns[0].EndLine != 1 {
		t.Errorf("lines = %d-%d, want 0-1", fns[0].StartLine, fns[0].EndLine)
	}
}

func TestGoFunction(t *testing.T) {
	p := newTestParser(t)
	tree := mustParse(t, p, "func divide(a int, b int) int {\n return a/b\n}", grammar.Go)

	if tree.Language != grammar.Go {
		t.Errorf("language = %s, want go", tree.Language)
	}
	fns, err := p.ExtractFunctions(tree)
	if err != nil {
		t.Fatalf("ExtractFunctions: %v", err)
	}
	if len(fns) != 1 || fns[0].Name != "divide" {
		t.Fatalf("expected one function named divide, got %+v", fns)
	}
	if len(fns[0].Parameters) != 2 {
		t.Errorf("expected 2 parameters, got %d", len(fns[0].Parameters))
	}
	if fns[0].ReturnType == nil || *fns[0].ReturnType != "int" {
		t.Errorf("return type = %v, want int", fns[0].ReturnType)
	}
}

func TestLocateAtEndOfSource(t *testing.T) {
	p := newTestParser(t)
	sources := map[grammar.Language]string{
		grammar.Rust:       "fn main() {}\n",
		grammar.TypeScript: "let x = 1;\n\n",
		grammar.Python:     "x = 1",
		grammar.Go:         "package main\n",
		grammar.JavaScript: "function f() {}",
		grammar.Java:       "class A {}\n",
	}
	for lang, src := range sources {
		tree := mustParse(t, p, src, lang)
		if n := p.FindNodeAt(tree, uint(len(src))); n == nil {
			t.Errorf("%s: FindNodeAt(len(source)) returned nil", lang)
		}
	}
}

// ---------------------------------------------------------------------------
// Tree properties
// ---------------------------------------------------------------------------

func TestRootCoversWholeSource(t *testing.T) {
	p := newTestParser(t)
	src := "\n\n  fn f() {}\n\n"
	tree := mustParse(t, p, src, grammar.Rust)

	if tree.Root.StartByte != 0 || tree.Root.EndByte != uint(len(src)) {
		t.Errorf("root range = [%d,%d), want [0,%d)", tree.Root.StartByte, tree.Root.EndByte, len(src))
	}
	if tree.Root.Text != src {
		t.Errorf("root text = %q", tree.Root.Text)
	}
	if tree.Root.StartPosition != (Position{}) {
		t.Errorf("root start position = %+v", tree.Root.StartPosition)
	}
}

func TestChildrenContainedInParent(t *testing.T) {
	p := newTestParser(t)
	tests := []struct {
		lang grammar.Language
		src  string
	}{
		{grammar.Rust, "// größe\nstruct Point { x: i32, y: i32 }\n\nfn origin() -> Point { Point { x: 0, y: 0 } }\n"},
		{grammar.TypeScript, "/* 日本語 */\nconst label = \"naïve\";\nfunction greet(n: string): string { return `héllo ${n}`; }\n"},
		{grammar.Python, "# café\ndef toast(who='wörld'):\n    return '🍞 ' + who\n"},
		{grammar.Go, "package main\n\n// ünïcode\nfunc main() { s := \"€\"; _ = s }\n"},
	}
	for _, tt := range tests {
		t.Run(tt.lang.String(), func(t *testing.T) {
			tree := mustParse(t, p, tt.src, tt.lang)
			tree.Root.Walk(func(n *Node) bool {
				for i, c := range n.Children {
					if c.StartByte < n.StartByte || c.EndByte > n.EndByte {
						t.Errorf("%s [%d,%d) escapes parent %s [%d,%d)",
							c.Kind, c.StartByte, c.EndByte, n.Kind, n.StartByte, n.EndByte)
					}
					if i > 0 && n.Children[i-1].EndByte > c.StartByte {
						prev := n.Children[i-1]
						t.Errorf("%s [%d,%d) overlaps previous sibling %s [%d,%d)",
							c.Kind, c.StartByte, c.EndByte, prev.Kind, prev.StartByte, prev.EndByte)
					}
					if c.Text != tt.src[c.StartByte:c.EndByte] {
						t.Errorf("%s text = %q, want source slice", c.Kind, c.Text)
					}
				}
				return true
			})
			for off := uint(0); off <= uint(len(tt.src)); off++ {
				if FindNodeAt(tree.Root, off) == nil {
					t.Fatalf("no node at offset %d", off)
				}
			}
		})
	}
}

func TestNodeTextMatchesSource(t *testing.T) {
	p := newTestParser(t)
	src := "class Greeter:\n    def hello(self, name='world'):\n        return 'hi ' + name\n"
	tree := mustParse(t, p, src, grammar.Python)

	count := 0
	tree.Root.Walk(func(n *Node) bool {
		count++
		if want := src[n.StartByte:n.EndByte]; n.Text != want {
			t.Errorf("%s text = %q, want %q", n.Kind, n.Text, want)
		}
		if got := p.NodeText(tree, n); got != n.Text {
			t.Errorf("NodeText(%s) = %q, want %q", n.Kind, got, n.Text)
		}
		return true
	})
	if count != tree.Root.Count() {
		t.Errorf("Walk visited %d nodes, Count = %d", count, tree.Root.Count())
	}
}

func TestParseIsDeterministic(t *testing.T) {
	p := newTestParser(t)
	src := "interface Shape { area(): number }\nclass Square { constructor(private s: number) {} }\n"

	first := mustParse(t, p, src, grammar.TypeScript)
	second := mustParse(t, p, src, grammar.TypeScript)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("two parses differ (-first +second):\n%s", diff)
	}

	r1, err := p.Extract(first)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	r2, err := p.Extract(second)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if diff := cmp.Diff(r1, r2); diff != "" {
		t.Errorf("two extractions differ (-first +second):\n%s", diff)
	}
}

func TestParseWithSyntaxErrors(t *testing.T) {
	p := newTestParser(t)
	tree := mustParse(t, p, "def (:\n", grammar.Python)

	broken := false
	tree.Root.Walk(func(n *Node) bool {
		if n.IsError || n.IsMissing {
			broken = true
		}
		return !broken
	})
	if !broken {
		t.Error("expected an error or missing node in the tree")
	}
}

func TestParseEmptySource(t *testing.T) {
	p := newTestParser(t)
	for _, lang := range grammar.Languages {
		tree := mustParse(t, p, "", lang)
		if tree.Root == nil {
			t.Fatalf("%s: nil root", lang)
		}
		if tree.Root.StartByte != 0 || tree.Root.EndByte != 0 {
			t.Errorf("%s: root range = [%d,%d)", lang, tree.Root.StartByte, tree.Root.EndByte)
		}
		if n := FindNodeAt(tree.Root, 0); n != tree.Root {
			t.Errorf("%s: FindNodeAt(0) on empty source should be the root", lang)
		}
		r, err := p.Extract(tree)
		if err != nil {
			t.Fatalf("%s: Extract: %v", lang, err)
		}
		if len(r.Functions)+len(r.Variables)+len(r.Structs)+len(r.Skipped) != 0 {
			t.Errorf("%s: expected an empty report, got %+v", lang, r)
		}
	}
}

// ---------------------------------------------------------------------------
// Dispatch and errors
// ---------------------------------------------------------------------------

func TestEveryLanguageDispatches(t *testing.T) {
	p := newTestParser(t)
	for _, lang := range grammar.Languages {
		if _, err := p.adapter(lang); err != nil {
			t.Errorf("adapter(%s): %v", lang, err)
		}
		if _, err := p.extractor(lang); err != nil {
			t.Errorf("extractor(%s): %v", lang, err)
		}
	}
}

func TestUnsupportedLanguage(t *testing.T) {
	p := newTestParser(t)

	_, err := p.Parse("x", grammar.Language(99))
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	var unsupported *UnsupportedLanguageError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected *UnsupportedLanguageError, got %T", err)
	}
	if unsupported.Language != grammar.Language(99) {
		t.Errorf("language = %d", unsupported.Language)
	}

	_, err = p.ExtractFunctions(&AST{Language: grammar.Language(0)})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("ExtractFunctions: expected ErrUnsupported, got %v", err)
	}
}

func TestAdapterInitFailure(t *testing.T) {
	builtins := grammar.NewBuiltinRegistry()
	builtins.Register(grammar.Python, func() unsafe.Pointer { return nil })

	_, err := NewParserWithRegistry(builtins, nil)
	var initErr *AdapterInitError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected *AdapterInitError, got %v", err)
	}
	if initErr.Language != grammar.Python {
		t.Errorf("language = %s, want python", initErr.Language)
	}
	var notFound *grammar.ErrGrammarNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("expected wrapped *grammar.ErrGrammarNotFound, got %v", initErr.Err)
	}
	if got := err.Error(); got != "failed to set Python language for tree-sitter: grammar \"python\" not found" {
		t.Errorf("message = %q", got)
	}
}

func TestParseAfterClose(t *testing.T) {
	p, err := NewParser()
	if err != nil {
		t.Fatalf("NewParser: %v", err)
	}
	p.Close()

	_, err = p.Parse("fn f() {}", grammar.Rust)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if got := err.Error(); got != "failed to parse Rust code" {
		t.Errorf("message = %q", got)
	}
}

func TestNodeTextOutOfRange(t *testing.T) {
	p := newTestParser(t)
	tree := mustParse(t, p, "x = 1", grammar.Python)

	if got := p.NodeText(tree, &Node{StartByte: 2, EndByte: 100}); got != "" {
		t.Errorf("out-of-range NodeText = %q", got)
	}
	if got := p.NodeText(tree, &Node{StartByte: 3, EndByte: 1}); got != "" {
		t.Errorf("inverted NodeText = %q", got)
	}
	if got := p.NodeText(nil, tree.Root); got != "" {
		t.Errorf("nil AST NodeText = %q", got)
	}
}

func TestParseFile(t *testing.T) {
	p := newTestParser(t)
	dir := t.TempDir()

	path := filepath.Join(dir, "Shapes.JAVA")
	if err := os.WriteFile(path, []byte("class Shape { int area() { return 0; } }\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tree, err := p.ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if tree.Language != grammar.Java {
		t.Errorf("language = %s, want java", tree.Language)
	}
	structs, err := p.ExtractStructs(tree)
	if err != nil {
		t.Fatal(err)
	}
	if len(structs) != 1 || structs[0].Name != "Shape" {
		t.Errorf("structs = %+v", structs)
	}

	if _, err := p.ParseFile(filepath.Join(dir, "notes.txt")); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
	if _, err := p.ParseFile(filepath.Join(dir, "missing.go")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected a not-exist error, got %v", err)
	}
}
