// Package xmltree builds an in-memory element tree from a CDA XML stream and
// answers a small path language over it. It is deliberately not a general
// XPath engine; it supports exactly the lookup shapes the section ingestors
// use: direct-child paths, a recursive-descent first segment, and a
// document-wide find-by-id.
package xmltree

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrParseFailed wraps every reader or XML syntax error returned by Build.
var ErrParseFailed = errors.New("xml parse failed")

// Attr is a single element attribute, kept in document order.
type Attr struct {
	Name  string
	Value string
}

// Node is one element of the parsed document. A node owns its children; the
// parent pointer is only used while the tree is being built.
type Node struct {
	Name     string
	Attrs    []Attr
	Children []*Node
	Text     string

	parent *Node
}

// Attr returns the value of the named attribute, or "" when absent.
func (n *Node) Attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// DeepText concatenates the character data of the node and all of its
// descendants and trims surrounding whitespace.
func (n *Node) DeepText() string {
	var b strings.Builder
	var walk func(*Node)
	walk = func(m *Node) {
		b.WriteString(m.Text)
		for _, c := range m.Children {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

// TextLines returns the non-empty, individually trimmed text lines of the
// node's subtree, joined by newlines. Narrative blocks in CDA documents carry
// heavy indentation that this strips away.
func (n *Node) TextLines() string {
	var lines []string
	var walk func(*Node)
	walk = func(m *Node) {
		for _, line := range strings.Split(m.Text, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
		for _, c := range m.Children {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(lines, "\n")
}

// nsStack tracks the xmlns bindings in scope, innermost last. Bindings map
// namespace URI back to the declared prefix so element names can be stored in
// the prefix:local form the path language expects.
type nsStack struct {
	frames []map[string]string
}

func (s *nsStack) push(attrs []xml.Attr) {
	var frame map[string]string
	for _, a := range attrs {
		var prefix string
		switch {
		case a.Name.Space == "xmlns":
			prefix = a.Name.Local
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			prefix = ""
		default:
			continue
		}
		if frame == nil {
			frame = make(map[string]string)
		}
		frame[a.Value] = prefix
	}
	s.frames = append(s.frames, frame)
}

func (s *nsStack) pop() {
	if len(s.frames) > 0 {
		s.frames = s.frames[:len(s.frames)-1]
	}
}

// prefixFor resolves a namespace URI to the innermost declared prefix.
func (s *nsStack) prefixFor(uri string) (string, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i] == nil {
			continue
		}
		if p, ok := s.frames[i][uri]; ok {
			return p, true
		}
	}
	return "", false
}

func (s *nsStack) qualify(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	if prefix, ok := s.prefixFor(name.Space); ok && prefix != "" {
		return prefix + ":" + name.Local
	}
	return name.Local
}

// Build consumes the whole XML stream and returns the root of the element
// tree. Any reader or syntax error, including truncated input, yields an
// ErrParseFailed-wrapped error and no tree.
func Build(r io.Reader) (*Node, error) {
	dec := xml.NewDecoder(r)

	var root, cur *Node
	var ns nsStack
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			ns.push(t.Attr)
			node := &Node{Name: ns.qualify(t.Name), parent: cur}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
					continue
				}
				node.Attrs = append(node.Attrs, Attr{Name: ns.qualify(a.Name), Value: a.Value})
			}
			if cur == nil {
				if root != nil {
					return nil, fmt.Errorf("%w: multiple root elements", ErrParseFailed)
				}
				root = node
			} else {
				cur.Children = append(cur.Children, node)
			}
			cur = node
		case xml.CharData:
			if cur != nil {
				cur.Text += string(t)
			}
		case xml.EndElement:
			if cur != nil {
				cur = cur.parent
			}
			ns.pop()
		}
	}

	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrParseFailed)
	}
	return root, nil
}
