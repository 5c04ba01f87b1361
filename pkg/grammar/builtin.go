// Package grammar binds the supported languages to their compiled-in
// tree-sitter grammars and to the per-language pack metadata (extensions and
// extraction allow-lists).
package grammar

import (
	"fmt"
	"sync"
	"unsafe"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// BuiltinProvider is a function that returns an unsafe.Pointer to a TSLanguage.
// This is the signature exposed by tree-sitter grammar Go bindings.
type BuiltinProvider func() unsafe.Pointer

// ErrGrammarNotFound is returned when no grammar is bound to a language.
type ErrGrammarNotFound struct {
	Language Language
}

func (e *ErrGrammarNotFound) Error() string {
	return fmt.Sprintf("grammar %q not found", e.Language.String())
}

// BuiltinRegistry manages the grammars compiled into the binary.
type BuiltinRegistry struct {
	mu       sync.RWMutex
	grammars map[Language]BuiltinProvider
	loaded   map[Language]*tree_sitter.Language
}

// NewBuiltinRegistry creates a new registry with all compiled-in grammars.
func NewBuiltinRegistry() *BuiltinRegistry {
	r := &BuiltinRegistry{
		grammars: make(map[Language]BuiltinProvider),
		loaded:   make(map[Language]*tree_sitter.Language),
	}
	registerBuiltins(r)
	return r
}

// Register binds a grammar provider to a language, replacing any earlier
// binding and its cached Language.
func (r *BuiltinRegistry) Register(lang Language, provider BuiltinProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grammars[lang] = provider
	delete(r.loaded, lang)
}

// Load returns the tree-sitter Language for a built-in grammar.
func (r *BuiltinRegistry) Load(lang Language) (*tree_sitter.Language, error) {
	r.mu.RLock()
	if l, ok := r.loaded[lang]; ok {
		r.mu.RUnlock()
		return l, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := r.loaded[lang]; ok {
		return l, nil
	}

	provider, ok := r.grammars[lang]
	if !ok || provider == nil {
		return nil, &ErrGrammarNotFound{Language: lang}
	}

	ptr := provider()
	if ptr == nil {
		return nil, &ErrGrammarNotFound{Language: lang}
	}
	l := tree_sitter.NewLanguage(ptr)
	if l == nil {
		return nil, &ErrGrammarNotFound{Language: lang}
	}
	r.loaded[lang] = l
	return l, nil
}

// Has returns true if a grammar is bound to the language.
func (r *BuiltinRegistry) Has(lang Language) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.grammars[lang]
	return ok
}

// registerBuiltins wires up one grammar per Language variant.
func registerBuiltins(r *BuiltinRegistry) {
	r.Register(Rust, tree_sitter_rust.Language)
	// TypeScript uses LanguageTypescript() not Language(), so wrap it.
	// .tsx files go through the same grammar.
	r.Register(TypeScript, func() unsafe.Pointer {
		return tree_sitter_typescript.LanguageTypescript()
	})
	r.Register(Python, tree_sitter_python.Language)
	r.Register(Go, tree_sitter_go.Language)
	r.Register(JavaScript, tree_sitter_javascript.Language)
	r.Register(Java, tree_sitter_java.Language)
}
