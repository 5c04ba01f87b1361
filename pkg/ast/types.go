// Package ast converts concrete tree-sitter trees into one unified node model
// and extracts structural records (functions, variables, structs) from it.
package ast

import "github.com/jmylchreest/uast/pkg/grammar"

// Position is a 0-based (line, column) pair. Columns count bytes.
type Position struct {
	Line   uint `json:"line"`
	Column uint `json:"column"`
}

// Node is one node of the unified AST. Byte ranges are half-open and count
// UTF-8 bytes of the source, not characters.
type Node struct {
	Kind          string   `json:"kind"`            // grammar node kind, e.g. "function_item"
	Field         string   `json:"field,omitempty"` // field name under the parent, e.g. "body"
	StartByte     uint     `json:"start_byte"`
	EndByte       uint     `json:"end_byte"`
	StartPosition Position `json:"start_position"`
	EndPosition   Position `json:"end_position"`
	IsNamed       bool     `json:"named"`
	IsError       bool     `json:"error,omitempty"`
	IsMissing     bool     `json:"missing,omitempty"`
	Children      []*Node  `json:"children,omitempty"`
	Text          string   `json:"text"` // Source[StartByte:EndByte], or "" if not valid UTF-8
}

// AST is the result of one Parse call. It is never mutated after Parse
// returns and is safe to share between goroutines.
type AST struct {
	Language grammar.Language `json:"language"`
	Root     *Node            `json:"root"`
	Source   string           `json:"source"`
}

// FunctionDefinition is a function or method found by extraction.
type FunctionDefinition struct {
	Name       string      `json:"name"`
	Parameters []Parameter `json:"parameters"`
	ReturnType *string     `json:"return_type"`
	Body       string      `json:"body"`
	StartByte  uint        `json:"start_byte"`
	EndByte    uint        `json:"end_byte"`
	StartLine  uint        `json:"start_line"`
	EndLine    uint        `json:"end_line"`
	Visibility *string     `json:"visibility"`
	IsAsync    bool        `json:"is_async"`
}

// Parameter is one entry of a function's parameter list.
type Parameter struct {
	Name         string  `json:"name"`
	ParamType    *string `json:"param_type"`
	DefaultValue *string `json:"default_value"`
}

// VariableDeclaration is a variable binding found by extraction.
type VariableDeclaration struct {
	Name      string  `json:"name"`
	VarType   *string `json:"var_type"`
	Value     *string `json:"value"`
	IsMutable bool    `json:"is_mutable"`
	StartByte uint    `json:"start_byte"`
	EndByte   uint    `json:"end_byte"`
}

// StructDefinition is a struct, class, interface or type declaration.
// Fields and Methods are not populated by this package.
type StructDefinition struct {
	Name      string               `json:"name"`
	Fields    []FieldDefinition    `json:"fields"`
	Methods   []FunctionDefinition `json:"methods"`
	StartByte uint                 `json:"start_byte"`
	EndByte   uint                 `json:"end_byte"`
}

// FieldDefinition is a member of a StructDefinition.
type FieldDefinition struct {
	Name       string  `json:"name"`
	FieldType  string  `json:"field_type"`
	Visibility *string `json:"visibility"`
}

// Category names the record family an allow-list feeds.
type Category string

const (
	CategoryFunction Category = "function"
	CategoryVariable Category = "variable"
	CategoryStruct   Category = "struct"
)

// SkippedNode reports an allow-listed node that produced no record because
// its name could not be resolved. An anonymous arrow function and a grammar
// shape the allow-list does not expect look the same here.
type SkippedNode struct {
	Category  Category `json:"category"`
	Kind      string   `json:"kind"`
	StartByte uint     `json:"start_byte"`
	EndByte   uint     `json:"end_byte"`
	StartLine uint     `json:"start_line"`
	Reason    string   `json:"reason"`
}

// Report bundles every record extracted from one AST.
type Report struct {
	Language  grammar.Language      `json:"language"`
	Functions []FunctionDefinition  `json:"functions"`
	Variables []VariableDeclaration `json:"variables"`
	Structs   []StructDefinition    `json:"structs"`
	Skipped   []SkippedNode         `json:"skipped"`
}
