package ast

// FindNodeAt returns the deepest node of the tree whose range contains
// offset, with an inclusive upper bound (start <= offset <= end). At each
// level it descends into the first child that matches, so when offset sits
// exactly on the boundary between two siblings the earlier sibling wins.
// It returns nil only if the root itself does not contain offset.
func FindNodeAt(root *Node, offset uint) *Node {
	path := PathTo(root, offset)
	if len(path) == 0 {
		return nil
	}
	return path[len(path)-1]
}

// PathTo returns the chain of nodes from root down to the node FindNodeAt
// would return, or nil if root does not contain offset.
func PathTo(root *Node, offset uint) []*Node {
	if root == nil || !root.Contains(offset) {
		return nil
	}
	path := []*Node{root}
	cur := root
	for {
		var next *Node
		for _, c := range cur.Children {
			if c.Contains(offset) {
				next = c
				break
			}
		}
		if next == nil {
			return path
		}
		path = append(path, next)
		cur = next
	}
}

// NamedNodeAt is FindNodeAt restricted to named nodes: it returns the deepest
// named node on the path, skipping punctuation and keyword tokens.
func NamedNodeAt(root *Node, offset uint) *Node {
	path := PathTo(root, offset)
	for i := len(path) - 1; i >= 0; i-- {
		if path[i].IsNamed {
			return path[i]
		}
	}
	if len(path) > 0 {
		return path[0]
	}
	return nil
}
