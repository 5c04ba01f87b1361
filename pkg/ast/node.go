package ast

// Contains reports whether offset lies in [StartByte, EndByte]. The upper
// bound is inclusive, so an offset at a node's end boundary matches.
func (n *Node) Contains(offset uint) bool {
	return n.StartByte <= offset && offset <= n.EndByte
}

// Walk visits n and its descendants in pre-order, children in source order.
// Returning false from fn skips that node's children. An explicit stack is
// used so pathologically deep trees cannot exhaust the goroutine stack.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil {
		return
	}
	stack := []*Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(cur) {
			continue
		}
		for i := len(cur.Children) - 1; i >= 0; i-- {
			stack = append(stack, cur.Children[i])
		}
	}
}

// Count returns the number of nodes in the subtree rooted at n.
func (n *Node) Count() int {
	count := 0
	n.Walk(func(*Node) bool {
		count++
		return true
	})
	return count
}

// childOfKind returns the first direct child whose kind is one of kinds.
func (n *Node) childOfKind(kinds ...string) *Node {
	for _, c := range n.Children {
		for _, k := range kinds {
			if c.Kind == k {
				return c
			}
		}
	}
	return nil
}

// childOfField returns the first direct child attached under one of fields.
func (n *Node) childOfField(fields ...string) *Node {
	for _, c := range n.Children {
		if c.Field == "" {
			continue
		}
		for _, f := range fields {
			if c.Field == f {
				return c
			}
		}
	}
	return nil
}

// firstDescendant returns the first strict descendant of kind in pre-order.
func (n *Node) firstDescendant(kind string) *Node {
	var found *Node
	for _, c := range n.Children {
		c.Walk(func(d *Node) bool {
			if found != nil {
				return false
			}
			if d.Kind == kind {
				found = d
				return false
			}
			return true
		})
		if found != nil {
			return found
		}
	}
	return nil
}
