package xmltree

import "strings"

// localName drops any namespace prefix from a node or segment name. Matching
// on local names keeps path lookups stable across documents that bind the
// same namespace URI to different prefixes.
func localName(name string) string {
	if i := strings.LastIndex(name, ":"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// FindAll evaluates a path expression relative to n and returns every match
// in depth-first document order. A leading ".//" makes the first segment
// match at any depth; every later segment matches direct children only.
func FindAll(n *Node, path string) []*Node {
	if n == nil || path == "" {
		return nil
	}

	recursive := false
	if rest, ok := strings.CutPrefix(path, ".//"); ok {
		recursive = true
		path = rest
	}

	segments := strings.Split(path, "/")
	for i := range segments {
		segments[i] = localName(segments[i])
	}

	var current []*Node
	if recursive {
		current = descendantsNamed(n, segments[0])
	} else {
		current = childrenNamed(n, segments[0])
	}
	for _, seg := range segments[1:] {
		var next []*Node
		for _, c := range current {
			next = append(next, childrenNamed(c, seg)...)
		}
		current = next
	}
	return current
}

// FindFirst returns the first match of path under n, or nil.
func FindFirst(n *Node, path string) *Node {
	if matches := FindAll(n, path); len(matches) > 0 {
		return matches[0]
	}
	return nil
}

// FindByID searches the whole subtree rooted at root for the first element
// whose "ID" attribute (or, failing that, "id") equals id. CDA narrative
// blocks use these anchors for originalText references.
func FindByID(root *Node, id string) *Node {
	if root == nil || id == "" {
		return nil
	}
	if root.Attr("ID") == id || root.Attr("id") == id {
		return root
	}
	for _, c := range root.Children {
		if m := FindByID(c, id); m != nil {
			return m
		}
	}
	return nil
}

func childrenNamed(n *Node, name string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if localName(c.Name) == name {
			out = append(out, c)
		}
	}
	return out
}

func descendantsNamed(n *Node, name string) []*Node {
	var out []*Node
	var walk func(*Node)
	walk = func(m *Node) {
		for _, c := range m.Children {
			if localName(c.Name) == name {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}
