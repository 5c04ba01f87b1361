package ast

import (
	"errors"
	"fmt"

	"github.com/jmylchreest/uast/pkg/grammar"
)

// ErrUnsupported is matched (via errors.Is) by every error that means "no
// language handles this input". Unsupported files are an expected case, so
// callers usually skip rather than report them.
var ErrUnsupported = errors.New("unsupported language")

// UnsupportedLanguageError is returned when a Language value outside the
// closed set reaches the facade.
type UnsupportedLanguageError struct {
	Language grammar.Language
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("unsupported language %s", e.Language)
}

func (e *UnsupportedLanguageError) Is(target error) bool {
	return target == ErrUnsupported
}

// AdapterInitError is returned when a grammar cannot be bound to a parser.
// It is fatal for the Parser being constructed.
type AdapterInitError struct {
	Language grammar.Language
	Err      error
}

func (e *AdapterInitError) Error() string {
	return fmt.Sprintf("failed to set %s language for tree-sitter: %v", e.Language.DisplayName(), e.Err)
}

func (e *AdapterInitError) Unwrap() error {
	return e.Err
}

// ParseError is returned when the grammar produced no tree at all. Source
// with syntax errors still parses: the tree then contains error nodes.
type ParseError struct {
	Language grammar.Language
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s code", e.Language.DisplayName())
}
