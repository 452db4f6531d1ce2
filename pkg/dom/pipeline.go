// Package dom turns raw HTML fragments into compact node trees that are cheap
// to hand to a language model.
//
// Extraction runs in two stages. Parse sanitizes the fragment down to the
// elements and attributes that are useful for targeting and reading a page,
// then parses it. Compress walks the parsed tree, collapses whitespace and
// unwraps generic containers:
//
//	p := dom.NewPipeline()
//	root, err := p.Parse(`<div><p class="lead">  Hello   world </p></div>`)
//	node := p.Compress(root) // {"tag":"p","attrs":{"class":"lead"},"text":"Hello world"}
package dom

import (
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultMaxTextLength bounds a single text run.
const DefaultMaxTextLength = 2000

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMaxTextLength bounds individual text runs to n runes. Zero or a
// negative value disables truncation.
func WithMaxTextLength(n int) Option {
	return func(p *Pipeline) {
		p.MaxTextLength = n
	}
}

// WithPolicy replaces the sanitizing policy.
func WithPolicy(policy *bluemonday.Policy) Option {
	return func(p *Pipeline) {
		if policy != nil {
			p.policy = policy
		}
	}
}

// Pipeline parses and compresses HTML fragments. It is safe for concurrent
// use once constructed.
type Pipeline struct {
	// MaxTextLength truncates text runs longer than this many runes,
	// appending "...". Zero disables truncation.
	MaxTextLength int

	policy *bluemonday.Policy
}

// NewPipeline creates a pipeline with the default sanitizing policy.
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		MaxTextLength: DefaultMaxTextLength,
		policy:        DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Extract parses and compresses fragment in one step.
func (p *Pipeline) Extract(fragment string) (*Node, error) {
	root, err := p.Parse(fragment)
	if err != nil {
		return nil, err
	}
	return p.Compress(root), nil
}

// Parse sanitizes fragment and parses it in template context, which keeps
// table parts such as tr, td and tbody that body context would drop. The
// parsed nodes are the children of the returned synthetic root.
func (p *Pipeline) Parse(fragment string) (*html.Node, error) {
	clean := p.policy.Sanitize(fragment)

	context := &html.Node{Type: html.ElementNode, Data: "template", DataAtom: atom.Template}
	nodes, err := html.ParseFragment(strings.NewReader(clean), context)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	root := &html.Node{Type: html.DocumentNode}
	for _, n := range nodes {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		root.AppendChild(n)
	}
	return root, nil
}

// Compress reduces the tree under root to its meaningful content. It returns
// the single remaining top-level node, a tagless fragment node when several
// remain, or nil when nothing does.
func (p *Pipeline) Compress(root *html.Node) *Node {
	if root == nil {
		return nil
	}

	var nodes []*Node
	if root.Type == html.DocumentNode {
		nodes = p.compressChildren(root)
	} else {
		nodes = p.compressNode(root)
	}

	switch len(nodes) {
	case 0:
		return nil
	case 1:
		return nodes[0]
	default:
		return &Node{Children: nodes}
	}
}

func (p *Pipeline) compressChildren(n *html.Node) []*Node {
	var out []*Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, p.compressNode(c)...)
	}
	return out
}

func (p *Pipeline) compressNode(n *html.Node) []*Node {
	switch n.Type {
	case html.TextNode:
		text := p.truncate(collapseWhitespace(n.Data))
		if text == "" {
			return nil
		}
		return []*Node{{Text: text}}

	case html.ElementNode:
		if el := p.compressElement(n); el != nil {
			return []*Node{el}
		}
		return nil

	case html.DocumentNode:
		return p.compressChildren(n)

	default:
		// Comments and doctypes carry nothing
		return nil
	}
}

func (p *Pipeline) compressElement(n *html.Node) *Node {
	tag := strings.ToLower(n.Data)
	if isSkippedElement(tag) {
		return nil
	}

	node := &Node{Tag: tag}
	for _, attr := range n.Attr {
		if node.Attrs == nil {
			node.Attrs = make(map[string]string, len(n.Attr))
		}
		node.Attrs[attr.Key] = attr.Val
	}

	children := p.compressChildren(n)
	children = mergeText(children)

	if len(node.Attrs) == 0 && isWrapperElement(tag) && len(children) == 1 && children[0].Tag != "" {
		return children[0]
	}

	if len(children) == 1 && isTextRun(children[0]) {
		node.Text = children[0].Text
	} else {
		node.Children = children
	}

	if len(node.Attrs) == 0 && node.Text == "" && len(node.Children) == 0 && !isVoidElement(tag) {
		return nil
	}
	return node
}

// mergeText joins adjacent text runs left behind by removed elements.
func mergeText(nodes []*Node) []*Node {
	if len(nodes) < 2 {
		return nodes
	}
	out := nodes[:0:0]
	for _, n := range nodes {
		if last := len(out) - 1; last >= 0 && isTextRun(n) && isTextRun(out[last]) {
			out[last] = &Node{Text: out[last].Text + " " + n.Text}
			continue
		}
		out = append(out, n)
	}
	return out
}

func (p *Pipeline) truncate(text string) string {
	if p.MaxTextLength <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= p.MaxTextLength {
		return text
	}
	return string(runes[:p.MaxTextLength]) + "..."
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isTextRun(n *Node) bool {
	return n.Tag == "" && n.Text != "" && len(n.Children) == 0
}
