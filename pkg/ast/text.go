package ast

import (
	"strings"
	"unicode/utf8"
)

// sliceText returns source[start:end] when the range is in bounds and the
// slice is valid UTF-8, and "" otherwise. It never panics.
func sliceText(source string, start, end uint) string {
	if start > end || end > uint(len(source)) {
		return ""
	}
	s := source[start:end]
	if !utf8.ValidString(s) {
		return ""
	}
	return s
}

// endPosition returns the (line, column) just past the last byte of source,
// counting columns in bytes the way tree-sitter does.
func endPosition(source string) Position {
	line := uint(strings.Count(source, "\n"))
	col := uint(len(source))
	if i := strings.LastIndexByte(source, '\n'); i >= 0 {
		col = uint(len(source) - i - 1)
	}
	return Position{Line: line, Column: col}
}

// optionalText returns a pointer to n's text, or nil if n is nil.
func optionalText(n *Node) *string {
	if n == nil {
		return nil
	}
	s := n.Text
	return &s
}

// Snippet returns s collapsed to one line and cut to at most n bytes,
// without splitting a UTF-8 sequence.
func Snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if n < 4 || len(s) <= n {
		return s
	}
	cut := n - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
