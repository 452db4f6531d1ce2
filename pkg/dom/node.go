package dom

import (
	"sort"
	"strings"
)

// Node is a compressed DOM element or text run.
//
// Text runs have no Tag. The fragment node that groups several top-level
// results has neither Tag nor Text. Every field is omitted from JSON when
// empty, so the zero Node encodes as {}.
type Node struct {
	Tag      string            `json:"tag,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Text     string            `json:"text,omitempty"`
	Children []*Node           `json:"children,omitempty"`
}

// Empty is the result reported when extraction matched or produced nothing.
var Empty = Node{}

// IsEmpty reports whether n carries no content.
func (n *Node) IsEmpty() bool {
	return n == nil || (n.Tag == "" && n.Text == "" && len(n.Attrs) == 0 && len(n.Children) == 0)
}

// String renders n as compact markup, mainly for logs and prompts.
func (n *Node) String() string {
	var b strings.Builder
	n.render(&b)
	return b.String()
}

func (n *Node) render(b *strings.Builder) {
	if n == nil {
		return
	}
	if n.Tag == "" {
		b.WriteString(n.Text)
		for _, c := range n.Children {
			c.render(b)
		}
		return
	}

	b.WriteString("<")
	b.WriteString(n.Tag)
	keys := make([]string, 0, len(n.Attrs))
	for k := range n.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(strings.ReplaceAll(n.Attrs[k], `"`, "&quot;"))
		b.WriteString(`"`)
	}
	b.WriteString(">")

	if isVoidElement(n.Tag) {
		return
	}
	b.WriteString(n.Text)
	for _, c := range n.Children {
		c.render(b)
	}
	b.WriteString("</")
	b.WriteString(n.Tag)
	b.WriteString(">")
}
