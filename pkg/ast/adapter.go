package ast

import (
	"sync"

	"github.com/jmylchreest/uast/pkg/grammar"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// Adapter wraps one tree-sitter parser bound to one grammar. The native
// parser handle is stateful, so Parse calls on one Adapter are serialised.
type Adapter struct {
	mu     sync.Mutex
	lang   grammar.Language
	parser *tree_sitter.Parser
}

// NewAdapter binds a new parser to the grammar registered for lang.
func NewAdapter(lang grammar.Language, builtins *grammar.BuiltinRegistry) (*Adapter, error) {
	language, err := builtins.Load(lang)
	if err != nil {
		return nil, &AdapterInitError{Language: lang, Err: err}
	}

	parser := tree_sitter.NewParser()
	if err := parser.SetLanguage(language); err != nil {
		parser.Close()
		return nil, &AdapterInitError{Language: lang, Err: err}
	}

	return &Adapter{lang: lang, parser: parser}, nil
}

// Language returns the language this adapter was bound to.
func (a *Adapter) Language() grammar.Language {
	return a.lang
}

// Parse runs a full parse of source. The caller owns the returned tree and
// must Close it. A nil tree from tree-sitter is reported as *ParseError.
func (a *Adapter) Parse(source []byte) (*tree_sitter.Tree, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.parser == nil {
		return nil, &ParseError{Language: a.lang}
	}
	tree := a.parser.Parse(source, nil)
	if tree == nil {
		return nil, &ParseError{Language: a.lang}
	}
	return tree, nil
}

// Close releases the native parser. The adapter must not be used afterwards.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.parser != nil {
		a.parser.Close()
		a.parser = nil
	}
}
