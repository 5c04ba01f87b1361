package ast

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/jmylchreest/uast/pkg/grammar"
)

var debugLog = log.New(io.Discard, "[uast:ast] ", log.Ltime)

// SetDebugOutput routes parse debug lines to w (io.Discard disables them).
func SetDebugOutput(w io.Writer) {
	debugLog.SetOutput(w)
}

// Parser is the facade over one Adapter per supported language. Every
// adapter is built up front, so a Parser that was constructed can parse
// every language. It is safe for concurrent use; each adapter serialises its
// own parses, so callers wanting parallelism should hold one Parser per
// worker.
type Parser struct {
	rust       *Adapter
	typescript *Adapter
	python     *Adapter
	golang     *Adapter
	javascript *Adapter
	java       *Adapter

	packs *grammar.PackRegistry
}

// NewParser builds a Parser over the compiled-in grammars and the embedded
// allow-lists.
func NewParser() (*Parser, error) {
	return NewParserWithRegistry(grammar.NewBuiltinRegistry(), grammar.DefaultPackRegistry())
}

// NewParserWithRegistry builds a Parser from explicit registries. Any grammar
// that cannot be bound fails the whole construction with *AdapterInitError.
func NewParserWithRegistry(builtins *grammar.BuiltinRegistry, packs *grammar.PackRegistry) (*Parser, error) {
	if builtins == nil {
		builtins = grammar.NewBuiltinRegistry()
	}
	if packs == nil {
		packs = grammar.DefaultPackRegistry()
	}

	p := &Parser{packs: packs}
	slots := []struct {
		lang grammar.Language
		dst  **Adapter
	}{
		{grammar.Rust, &p.rust},
		{grammar.TypeScript, &p.typescript},
		{grammar.Python, &p.python},
		{grammar.Go, &p.golang},
		{grammar.JavaScript, &p.javascript},
		{grammar.Java, &p.java},
	}
	for _, s := range slots {
		a, err := NewAdapter(s.lang, builtins)
		if err != nil {
			p.Close()
			return nil, err
		}
		*s.dst = a
	}
	return p, nil
}

// Close releases every adapter.
func (p *Parser) Close() {
	for _, a := range []*Adapter{p.rust, p.typescript, p.python, p.golang, p.javascript, p.java} {
		if a != nil {
			a.Close()
		}
	}
}

// adapter dispatches on the closed language set.
func (p *Parser) adapter(lang grammar.Language) (*Adapter, error) {
	switch lang {
	case grammar.Rust:
		return p.rust, nil
	case grammar.TypeScript:
		return p.typescript, nil
	case grammar.Python:
		return p.python, nil
	case grammar.Go:
		return p.golang, nil
	case grammar.JavaScript:
		return p.javascript, nil
	case grammar.Java:
		return p.java, nil
	default:
		return nil, &UnsupportedLanguageError{Language: lang}
	}
}

// extractor dispatches on the closed language set to that language's
// allow-lists.
func (p *Parser) extractor(lang grammar.Language) (*Extractor, error) {
	switch lang {
	case grammar.Rust, grammar.TypeScript, grammar.Python, grammar.Go, grammar.JavaScript, grammar.Java:
		pack := p.packs.Get(lang)
		if pack == nil {
			return nil, &UnsupportedLanguageError{Language: lang}
		}
		return NewExtractor(pack), nil
	default:
		return nil, &UnsupportedLanguageError{Language: lang}
	}
}

// Parse parses source as lang into a fresh AST. Source with syntax errors
// still yields an AST (with error nodes); *ParseError means tree-sitter
// produced no tree at all. Failures are never retried.
func (p *Parser) Parse(source string, lang grammar.Language) (*AST, error) {
	a, err := p.adapter(lang)
	if err != nil {
		return nil, err
	}

	debugLog.Printf("parsing %s code (%d bytes)", lang.DisplayName(), len(source))

	tree, err := a.Parse([]byte(source))
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := Convert(tree.RootNode(), source)
	if root == nil {
		return nil, &ParseError{Language: lang}
	}
	coverSource(root, source)

	return &AST{Language: lang, Root: root, Source: source}, nil
}

// ParseFile reads path and parses it in the language its extension names.
// Unknown extensions fail with an error matching ErrUnsupported.
func (p *Parser) ParseFile(path string) (*AST, error) {
	lang, ok := grammar.FromPath(path)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupported)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return p.Parse(string(data), lang)
}

// ExtractFunctions returns the function records of tree in walk order.
func (p *Parser) ExtractFunctions(tree *AST) ([]FunctionDefinition, error) {
	e, err := p.extractorFor(tree)
	if err != nil {
		return nil, err
	}
	fns, _ := e.Functions(tree)
	return fns, nil
}

// ExtractVariables returns the variable records of tree in walk order.
func (p *Parser) ExtractVariables(tree *AST) ([]VariableDeclaration, error) {
	e, err := p.extractorFor(tree)
	if err != nil {
		return nil, err
	}
	vars, _ := e.Variables(tree)
	return vars, nil
}

// ExtractStructs returns the struct records of tree in walk order.
func (p *Parser) ExtractStructs(tree *AST) ([]StructDefinition, error) {
	e, err := p.extractorFor(tree)
	if err != nil {
		return nil, err
	}
	structs, _ := e.Structs(tree)
	return structs, nil
}

// Extract runs all three extractions and also reports the allow-listed
// nodes that were skipped for lack of a name.
func (p *Parser) Extract(tree *AST) (*Report, error) {
	e, err := p.extractorFor(tree)
	if err != nil {
		return nil, err
	}
	r := e.Report(tree)
	if len(r.Skipped) > 0 {
		debugLog.Printf("%s: %d allow-listed nodes skipped", tree.Language.DisplayName(), len(r.Skipped))
	}
	return r, nil
}

func (p *Parser) extractorFor(tree *AST) (*Extractor, error) {
	if tree == nil {
		return nil, errors.New("nil AST")
	}
	return p.extractor(tree.Language)
}

// FindNodeAt returns the deepest node of tree containing offset; see the
// package-level FindNodeAt for the boundary rule.
func (p *Parser) FindNodeAt(tree *AST, offset uint) *Node {
	if tree == nil {
		return nil
	}
	return FindNodeAt(tree.Root, offset)
}

// NodeText slices the AST's own source over node's byte range. It reads
// tree.Source rather than node.Text so that it also serves node references
// held into a larger tree. Out-of-range nodes yield "".
func (p *Parser) NodeText(tree *AST, node *Node) string {
	if tree == nil || node == nil {
		return ""
	}
	if node.StartByte > node.EndByte || node.EndByte > uint(len(tree.Source)) {
		return ""
	}
	return tree.Source[node.StartByte:node.EndByte]
}
