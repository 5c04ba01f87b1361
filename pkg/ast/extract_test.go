package ast

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jmylchreest/uast/pkg/grammar"
)

func TestRustVariables(t *testing.T) {
	p := newTestParser(t)
	src := "fn main() {\n    let mut count = 0;\n    let limit: u32 = 10;\n}\n"
	tree := mustParse(t, p, src, grammar.Rust)

	vars, err := p.ExtractVariables(tree)
	if err != nil {
		t.Fatalf("ExtractVariables: %v", err)
	}
	if len(vars) != 2 {
		t.Fatalf("expected 2 variables, got %d: %+v", len(vars), vars)
	}

	if vars[0].Name != "count" || !vars[0].IsMutable {
		t.Errorf("first = %+v, want mutable count", vars[0])
	}
	if vars[0].Value == nil || *vars[0].Value != "0" {
		t.Errorf("count value = %v, want 0", vars[0].Value)
	}
	if vars[0].VarType != nil {
		t.Errorf("count type = %q, want nil", *vars[0].VarType)
	}

	if vars[1].Name != "limit" || vars[1].IsMutable {
		t.Errorf("second = %+v, want immutable limit", vars[1])
	}
	if vars[1].VarType == nil || *vars[1].VarType != "u32" {
		t.Errorf("limit type = %v, want u32", vars[1].VarType)
	}
	if got := src[vars[1].StartByte:vars[1].EndByte]; got != "let limit: u32 = 10;" {
		t.Errorf("limit range text = %q", got)
	}
}

func TestPythonVariablesAreMutable(t *testing.T) {
	p := newTestParser(t)
	tree := mustParse(t, p, "x = 1\ny = x + 2\n", grammar.Python)

	vars, err := p.ExtractVariables(tree)
	if err != nil {
		t.Fatalf("ExtractVariables: %v", err)
	}
	var names []string
	for _, v := range vars {
		names = append(names, v.Name)
		if !v.IsMutable {
			t.Errorf("%s: expected mutable", v.Name)
		}
	}
	if diff := cmp.Diff([]string{"x", "y"}, names); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	if vars[1].Value == nil || *vars[1].Value != "x + 2" {
		t.Errorf("y value = %v, want x + 2", vars[1].Value)
	}
}

func TestStructs(t *testing.T) {
	tests := []struct {
		name string
		lang grammar.Language
		src  string
		want []string
	}{
		{"rust", grammar.Rust, "pub struct Point { x: i32 }\nstruct Unit;\n", []string{"Point", "Unit"}},
		{"python", grammar.Python, "class Foo:\n    pass\n\nclass Bar(Foo):\n    pass\n", []string{"Foo", "Bar"}},
		{"typescript", grammar.TypeScript, "interface Shape {}\nclass Circle {}\n", []string{"Shape", "Circle"}},
		{"java", grammar.Java, "class A {}\ninterface B {}\nenum C { X }\n", []string{"A", "B", "C"}},
		{"javascript", grammar.JavaScript, "class Widget {}\n", []string{"Widget"}},
	}

	p := newTestParser(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := mustParse(t, p, tt.src, tt.lang)
			structs, err := p.ExtractStructs(tree)
			if err != nil {
				t.Fatalf("ExtractStructs: %v", err)
			}
			var names []string
			for _, s := range structs {
				names = append(names, s.Name)
				if s.Fields == nil || s.Methods == nil {
					t.Errorf("%s: Fields and Methods should be empty, not nil", s.Name)
				}
			}
			if diff := cmp.Diff(tt.want, names); diff != "" {
				t.Errorf("struct names mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRustFunctionModifiers(t *testing.T) {
	p := newTestParser(t)
	tree := mustParse(t, p, "pub async fn fetch(url: &str) {}\n", grammar.Rust)

	fns, err := p.ExtractFunctions(tree)
	if err != nil {
		t.Fatalf("ExtractFunctions: %v", err)
	}
	if len(fns) != 1 {
		t.Fatalf("expected 1 function, got %d", len(fns))
	}
	if !fns[0].IsAsync {
		t.Error("expected async function")
	}
	if fns[0].Visibility == nil || *fns[0].Visibility != "pub" {
		t.Errorf("visibility = %v, want pub", fns[0].Visibility)
	}
	if fns[0].ReturnType != nil {
		t.Errorf("return type = %q, want nil", *fns[0].ReturnType)
	}
}

func TestFunctionsInWalkOrder(t *testing.T) {
	p := newTestParser(t)
	src := "def outer():\n    def inner():\n        pass\n    return inner\n\ndef last():\n    pass\n"
	tree := mustParse(t, p, src, grammar.Python)

	fns, err := p.ExtractFunctions(tree)
	if err != nil {
		t.Fatalf("ExtractFunctions: %v", err)
	}
	var names []string
	for _, fn := range fns {
		names = append(names, fn.Name)
	}
	if diff := cmp.Diff([]string{"outer", "inner", "last"}, names); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestParameterDetails(t *testing.T) {
	p := newTestParser(t)

	t.Run("python defaults", func(t *testing.T) {
		tree := mustParse(t, p, "def greet(name, greeting='hi'):\n    pass\n", grammar.Python)
		fns, err := p.ExtractFunctions(tree)
		if err != nil {
			t.Fatalf("ExtractFunctions: %v", err)
		}
		params := fns[0].Parameters
		if len(params) != 2 {
			t.Fatalf("expected 2 parameters, got %+v", params)
		}
		if params[1].Name != "greeting" {
			t.Errorf("second parameter = %q, want greeting", params[1].Name)
		}
		if params[1].DefaultValue == nil || *params[1].DefaultValue != "'hi'" {
			t.Errorf("default = %v, want 'hi'", params[1].DefaultValue)
		}
	})

	t.Run("rust self receiver is left out", func(t *testing.T) {
		tree := mustParse(t, p, "impl S { fn get(&self, key: u8) -> u8 { key } }\n", grammar.Rust)
		fns, err := p.ExtractFunctions(tree)
		if err != nil {
			t.Fatalf("ExtractFunctions: %v", err)
		}
		if len(fns) != 1 {
			t.Fatalf("expected 1 function, got %d", len(fns))
		}
		if len(fns[0].Parameters) != 1 || fns[0].Parameters[0].Name != "key" {
			t.Errorf("parameters = %+v, want [key]", fns[0].Parameters)
		}
	})

	t.Run("java formal parameters", func(t *testing.T) {
		tree := mustParse(t, p, "class A { int add(int x, int y) { return x + y; } }\n", grammar.Java)
		fns, err := p.ExtractFunctions(tree)
		if err != nil {
			t.Fatalf("ExtractFunctions: %v", err)
		}
		if len(fns) != 1 || fns[0].Name != "add" {
			t.Fatalf("expected one function named add, got %+v", fns)
		}
		var names []string
		for _, param := range fns[0].Parameters {
			names = append(names, param.Name)
		}
		if diff := cmp.Diff([]string{"x", "y"}, names); diff != "" {
			t.Errorf("parameter names mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestSkippedNodes(t *testing.T) {
	p := newTestParser(t)

	t.Run("go method", func(t *testing.T) {
		src := "package main\n\nfunc (s *S) Get() int { return 0 }\n\nfunc top() {}\n"
		tree := mustParse(t, p, src, grammar.Go)
		r, err := p.Extract(tree)
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		if len(r.Functions) != 1 || r.Functions[0].Name != "top" {
			t.Errorf("functions = %+v, want only top", r.Functions)
		}
		var methods []SkippedNode
		for _, s := range r.Skipped {
			if s.Kind == "method_declaration" {
				methods = append(methods, s)
			}
		}
		if len(methods) != 1 {
			t.Fatalf("expected 1 skipped method_declaration, got %+v", r.Skipped)
		}
		m := methods[0]
		if m.Category != CategoryFunction || m.Reason != reasonNoName || m.StartLine != 2 {
			t.Errorf("skipped = %+v", m)
		}
		if got := src[m.StartByte:m.EndByte]; got != "func (s *S) Get() int { return 0 }" {
			t.Errorf("skipped range text = %q", got)
		}
	})

	t.Run("typescript anonymous arrow", func(t *testing.T) {
		tree := mustParse(t, p, "const f = () => 1;\n", grammar.TypeScript)
		r, err := p.Extract(tree)
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		if len(r.Functions) != 0 || len(r.Variables) != 0 {
			t.Errorf("expected no records, got %+v / %+v", r.Functions, r.Variables)
		}
		var kinds []string
		for _, s := range r.Skipped {
			kinds = append(kinds, s.Kind)
		}
		if diff := cmp.Diff([]string{"arrow_function", "lexical_declaration"}, kinds); diff != "" {
			t.Errorf("skipped kinds mismatch (-want +got):\n%s", diff)
		}
		if r.Skipped[0].Category != CategoryFunction || r.Skipped[1].Category != CategoryVariable {
			t.Errorf("categories = %s, %s", r.Skipped[0].Category, r.Skipped[1].Category)
		}
	})

	t.Run("typescript arrow named by its identifier body", func(t *testing.T) {
		src := "const g = (a) => a;\n"
		tree := mustParse(t, p, src, grammar.TypeScript)
		r, err := p.Extract(tree)
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		if len(r.Functions) != 1 || r.Functions[0].Name != "a" {
			t.Fatalf("functions = %+v, want one named a", r.Functions)
		}
		if got := src[r.Functions[0].StartByte:r.Functions[0].EndByte]; got != "(a) => a" {
			t.Errorf("function range text = %q", got)
		}
		for _, s := range r.Skipped {
			if s.Kind == "arrow_function" {
				t.Errorf("arrow function should not be skipped: %+v", s)
			}
		}
	})

	t.Run("extract-only calls drop diagnostics", func(t *testing.T) {
		tree := mustParse(t, p, "const f = () => 1;\n", grammar.TypeScript)
		fns, err := p.ExtractFunctions(tree)
		if err != nil {
			t.Fatalf("ExtractFunctions: %v", err)
		}
		if fns == nil || len(fns) != 0 {
			t.Errorf("expected an empty, non-nil slice, got %#v", fns)
		}
	})
}

func TestReportCarriesLanguage(t *testing.T) {
	p := newTestParser(t)
	tree := mustParse(t, p, "function hello(a, b) { return a + b; }\nclass Box {}\n", grammar.JavaScript)

	r, err := p.Extract(tree)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if r.Language != grammar.JavaScript {
		t.Errorf("language = %s", r.Language)
	}
	if len(r.Functions) != 1 || r.Functions[0].Name != "hello" {
		t.Errorf("functions = %+v", r.Functions)
	}
	if len(r.Functions[0].Parameters) != 2 {
		t.Errorf("parameters = %+v", r.Functions[0].Parameters)
	}
	if len(r.Structs) != 1 || r.Structs[0].Name != "Box" {
		t.Errorf("structs = %+v", r.Structs)
	}
}

func TestExtractorWithoutPack(t *testing.T) {
	e := NewExtractor(nil)
	tree := &AST{Language: grammar.Rust, Root: &Node{Kind: "source_file", Children: []*Node{{Kind: "function_item"}}}}
	fns, skipped := e.Functions(tree)
	if len(fns) != 0 || len(skipped) != 0 {
		t.Errorf("expected nothing without allow-lists, got %+v / %+v", fns, skipped)
	}
}

func TestCustomRules(t *testing.T) {
	e := &Extractor{rules: grammar.Extraction{
		Functions: grammar.Rule{NodeKinds: []string{"fn"}, NameKinds: []string{"name"}},
	}}
	tree := &AST{Root: &Node{Kind: "root", Children: []*Node{
		{Kind: "fn", Children: []*Node{{Kind: "name", Text: "first"}}},
		{Kind: "fn", StartByte: 10, EndByte: 12},
		{Kind: "other", Children: []*Node{
			{Kind: "fn", Children: []*Node{{Kind: "keyword"}, {Kind: "name", Text: "nested"}}},
		}},
	}}}

	fns, skipped := e.Functions(tree)
	var names []string
	for _, fn := range fns {
		names = append(names, fn.Name)
	}
	if diff := cmp.Diff([]string{"first", "nested"}, names); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	want := []SkippedNode{{Category: CategoryFunction, Kind: "fn", StartByte: 10, EndByte: 12, Reason: reasonNoName}}
	if diff := cmp.Diff(want, skipped); diff != "" {
		t.Errorf("skipped mismatch (-want +got):\n%s", diff)
	}
}
