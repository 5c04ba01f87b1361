package ast

import (
	"github.com/jmylchreest/uast/pkg/grammar"
)

const reasonNoName = "no name child"

// Extractor applies one language's allow-lists to an AST. All three
// operations share the same walk: pre-order, parent before children,
// children in source order. That order is the order of the returned records.
type Extractor struct {
	rules grammar.Extraction
}

// NewExtractor returns an Extractor for the given pack's allow-lists.
func NewExtractor(pack *grammar.Pack) *Extractor {
	if pack == nil {
		return &Extractor{}
	}
	return &Extractor{rules: pack.Extraction}
}

// Functions returns every allow-listed function node that has a name.
func (e *Extractor) Functions(tree *AST) ([]FunctionDefinition, []SkippedNode) {
	return collect(tree, e.rules.Functions, CategoryFunction, e.function)
}

// Variables returns every allow-listed variable declaration that has a name.
func (e *Extractor) Variables(tree *AST) ([]VariableDeclaration, []SkippedNode) {
	return collect(tree, e.rules.Variables, CategoryVariable, e.variable)
}

// Structs returns every allow-listed type declaration that has a name.
func (e *Extractor) Structs(tree *AST) ([]StructDefinition, []SkippedNode) {
	return collect(tree, e.rules.Structs, CategoryStruct, e.structDef)
}

// Report runs all three extractions. Skipped nodes are listed in walk
// order, functions first, then variables, then structs.
func (e *Extractor) Report(tree *AST) *Report {
	r := &Report{Language: tree.Language}
	var skipped []SkippedNode
	r.Functions, skipped = e.Functions(tree)
	r.Skipped = append(r.Skipped, skipped...)
	r.Variables, skipped = e.Variables(tree)
	r.Skipped = append(r.Skipped, skipped...)
	r.Structs, skipped = e.Structs(tree)
	r.Skipped = append(r.Skipped, skipped...)
	if r.Skipped == nil {
		r.Skipped = []SkippedNode{}
	}
	return r
}

func collect[T any](tree *AST, rule grammar.Rule, cat Category, build func(*Node, grammar.Rule) (T, bool)) ([]T, []SkippedNode) {
	records := make([]T, 0)
	var skipped []SkippedNode
	if tree == nil || tree.Root == nil {
		return records, skipped
	}

	tree.Root.Walk(func(n *Node) bool {
		if !rule.Matches(n.Kind) {
			return true
		}
		rec, ok := build(n, rule)
		if !ok {
			skipped = append(skipped, SkippedNode{
				Category:  cat,
				Kind:      n.Kind,
				StartByte: n.StartByte,
				EndByte:   n.EndByte,
				StartLine: n.StartPosition.Line,
				Reason:    reasonNoName,
			})
			return true
		}
		records = append(records, rec)
		return true
	})

	return records, skipped
}

// nameOf returns the text of the first direct child whose kind the rule
// accepts as a name.
func nameOf(n *Node, rule grammar.Rule) (string, bool) {
	for _, c := range n.Children {
		if rule.IsName(c.Kind) {
			return c.Text, true
		}
	}
	return "", false
}

func (e *Extractor) function(n *Node, rule grammar.Rule) (FunctionDefinition, bool) {
	name, ok := nameOf(n, rule)
	if !ok {
		return FunctionDefinition{}, false
	}
	return FunctionDefinition{
		Name:       name,
		Parameters: parameters(n),
		ReturnType: returnType(n),
		Body:       body(n),
		StartByte:  n.StartByte,
		EndByte:    n.EndByte,
		StartLine:  n.StartPosition.Line,
		EndLine:    n.EndPosition.Line,
		Visibility: optionalText(n.childOfKind("visibility_modifier", "accessibility_modifier")),
		IsAsync:    isAsync(n),
	}, true
}

// parameters collects the entries of every parameter list child except a Go
// result list. A child of kind identifier names itself;
// any other child is named by its first identifier descendant, and children
// without one (punctuation, self receivers) are left out.
func parameters(n *Node) []Parameter {
	params := make([]Parameter, 0)
	for _, list := range n.Children {
		switch list.Kind {
		case "parameters", "parameter_list", "formal_parameters":
		default:
			continue
		}
		if list.Field == "result" {
			continue
		}
		for _, p := range list.Children {
			name := p
			if p.Kind != "identifier" {
				name = p.firstDescendant("identifier")
			}
			if name == nil {
				continue
			}
			params = append(params, Parameter{
				Name:         name.Text,
				ParamType:    optionalText(p.childOfField("type")),
				DefaultValue: optionalText(p.childOfField("value")),
			})
		}
	}
	return params
}

func returnType(n *Node) *string {
	if c := n.childOfKind("return_type", "type_annotation"); c != nil {
		return optionalText(c)
	}
	return optionalText(n.childOfField("return_type", "result"))
}

func body(n *Node) string {
	if c := n.childOfKind("block", "body"); c != nil {
		return c.Text
	}
	if c := n.childOfField("body"); c != nil {
		return c.Text
	}
	return ""
}

func isAsync(n *Node) bool {
	if n.childOfKind("async") != nil {
		return true
	}
	if mods := n.childOfKind("function_modifiers"); mods != nil {
		return mods.childOfKind("async") != nil
	}
	return false
}

func (e *Extractor) variable(n *Node, rule grammar.Rule) (VariableDeclaration, bool) {
	name, ok := nameOf(n, rule)
	if !ok {
		return VariableDeclaration{}, false
	}
	return VariableDeclaration{
		Name:      name,
		VarType:   optionalText(n.childOfField("type")),
		Value:     optionalText(n.childOfField("value", "right")),
		IsMutable: e.isMutable(n),
		StartByte: n.StartByte,
		EndByte:   n.EndByte,
	}, true
}

func (e *Extractor) isMutable(n *Node) bool {
	if e.rules.DefaultMutable {
		return true
	}
	if len(e.rules.MutableKinds) > 0 && n.childOfKind(e.rules.MutableKinds...) != nil {
		return true
	}
	if len(e.rules.MutableKeywords) > 0 && n.childOfKind(e.rules.MutableKeywords...) != nil {
		return true
	}
	return false
}

func (e *Extractor) structDef(n *Node, rule grammar.Rule) (StructDefinition, bool) {
	name, ok := nameOf(n, rule)
	if !ok {
		return StructDefinition{}, false
	}
	return StructDefinition{
		Name:      name,
		Fields:    []FieldDefinition{},
		Methods:   []FunctionDefinition{},
		StartByte: n.StartByte,
		EndByte:   n.EndByte,
	}, true
}
