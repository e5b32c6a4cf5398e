package manifest

// FindByPath resolves a path in the tree (recursive).
func FindByPath(nodes []*Node, p string) *Node {
	for _, n := range nodes {
		if n.Path == p {
			return n
		}
		if len(n.Children) > 0 {
			if found := FindByPath(n.Children, p); found != nil {
				return found
			}
		}
	}
	return nil
}

// CountNodes counts all nodes in a forest.
func CountNodes(nodes []*Node) int {
	count := 0
	for _, n := range nodes {
		count += 1 + CountNodes(n.Children)
	}
	return count
}

// Walk visits every node depth-first with its depth (0 for top level).
// Returning false from fn skips the node's children.
func Walk(nodes []*Node, fn func(n *Node, depth int) bool) {
	walk(nodes, 0, fn)
}

func walk(nodes []*Node, depth int, fn func(*Node, int) bool) {
	for _, n := range nodes {
		if !fn(n, depth) {
			continue
		}
		if len(n.Children) > 0 {
			walk(n.Children, depth+1, fn)
		}
	}
}

// Files flattens the tree into its file nodes, depth-first.
func Files(nodes []*Node) []*Node {
	var files []*Node
	Walk(nodes, func(n *Node, _ int) bool {
		if n.IsFile() {
			files = append(files, n)
		}
		return true
	})
	return files
}
