package dom

import "github.com/microcosm-cc/bluemonday"

// noiseElements are removed together with their content.
var noiseElements = []string{
	"script", "style", "noscript", "iframe", "embed", "object", "svg", "template",
	"canvas", "head", "link", "meta",
}

// keptElements survive sanitizing. Anything else is unwrapped: the tag is
// dropped and its content kept.
var keptElements = []string{
	// structure
	"html", "body", "header", "footer", "main", "nav", "section", "article", "aside",
	"div", "span", "h1", "h2", "h3", "h4", "h5", "h6", "p", "br", "hr",
	"blockquote", "pre", "code", "details", "summary", "figure", "figcaption",
	"dialog", "address",

	// text
	"a", "strong", "em", "b", "i", "u", "small", "mark", "abbr", "time", "sub", "sup",

	// lists
	"ul", "ol", "li", "dl", "dt", "dd", "menu",

	// tables
	"table", "caption", "thead", "tbody", "tfoot", "tr", "th", "td",

	// forms
	"form", "fieldset", "legend", "label", "input", "textarea", "select", "option",
	"optgroup", "button", "output",

	// media
	"img", "picture", "source", "video", "audio",
}

// DefaultPolicy returns the sanitizing policy used by NewPipeline. It keeps
// the attributes that help locate and describe elements.
func DefaultPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.SkipElementsContent(noiseElements...)
	p.AllowElements(keptElements...)

	p.AllowAttrs("id", "class", "role", "aria-label", "aria-describedby", "title", "name").Globally()
	p.AllowDataAttributes()

	p.RequireParseableURLs(true)
	p.AllowRelativeURLs(true)
	p.AllowURLSchemes("http", "https", "mailto", "tel")

	p.AllowAttrs("href", "target").OnElements("a")
	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowAttrs("type", "name", "value", "placeholder").OnElements("input", "textarea", "select", "option")
	p.AllowAttrs("type", "name").OnElements("button")
	p.AllowAttrs("action", "method").OnElements("form")
	p.AllowAttrs("for").OnElements("label")
	p.AllowAttrs("summary").OnElements("table")

	// Keep these even when every attribute was stripped
	p.AllowNoAttrs().OnElements("a", "form", "label", "main", "menu", "dialog", "input", "img", "legend", "output", "picture")

	return p
}

func isSkippedElement(tag string) bool {
	for _, e := range noiseElements {
		if e == tag {
			return true
		}
	}
	return false
}

// isWrapperElement returns true for generic containers that carry no meaning
// of their own.
func isWrapperElement(tag string) bool {
	return tag == "div" || tag == "span"
}

// isVoidElement returns true for self-closing elements
func isVoidElement(tag string) bool {
	switch tag {
	case "area", "base", "br", "col", "embed", "hr", "img", "input",
		"link", "meta", "source", "track", "wbr":
		return true
	}
	return false
}
