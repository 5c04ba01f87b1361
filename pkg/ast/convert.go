package ast

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// Convert copies a concrete tree-sitter subtree into the unified model.
// Children keep their source order and none are dropped; each node's Text is
// the UTF-8-safe slice of source over its byte range. The walk uses an
// explicit stack, so tree depth is bounded by memory rather than stack size.
func Convert(root *tree_sitter.Node, source string) *Node {
	if root == nil {
		return nil
	}

	type frame struct {
		src *tree_sitter.Node
		dst *Node
	}

	out := newNode(root, "", source)
	stack := []frame{{src: root, dst: out}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		count := f.src.ChildCount()
		if count == 0 {
			continue
		}
		f.dst.Children = make([]*Node, 0, count)
		for i := uint(0); i < count; i++ {
			child := f.src.Child(i)
			if child == nil {
				continue
			}
			converted := newNode(child, f.src.FieldNameForChild(uint32(i)), source)
			f.dst.Children = append(f.dst.Children, converted)
			stack = append(stack, frame{src: child, dst: converted})
		}
	}

	return out
}

func newNode(n *tree_sitter.Node, field, source string) *Node {
	start := n.StartByte()
	end := n.EndByte()
	sp := n.StartPosition()
	ep := n.EndPosition()
	return &Node{
		Kind:          n.Kind(),
		Field:         field,
		StartByte:     start,
		EndByte:       end,
		StartPosition: Position{Line: sp.Row, Column: sp.Column},
		EndPosition:   Position{Line: ep.Row, Column: ep.Column},
		IsNamed:       n.IsNamed(),
		IsError:       n.IsError(),
		IsMissing:     n.IsMissing(),
		Text:          sliceText(source, start, end),
	}
}

// coverSource widens root to span the whole of source. tree-sitter reports
// the root starting after leading whitespace; the unified root always covers
// [0, len(source)) so every offset in the file resolves to some node.
func coverSource(root *Node, source string) {
	if root == nil {
		return
	}
	root.StartByte = 0
	root.StartPosition = Position{}
	if root.EndByte < uint(len(source)) {
		root.EndByte = uint(len(source))
		root.EndPosition = endPosition(source)
	}
	root.Text = sliceText(source, root.StartByte, root.EndByte)
}
