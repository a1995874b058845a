// Package htmltree is an in-memory dom.Document over a parsed HTML tree.
// It backs static previews and serves as the stand-in host in tests.
package htmltree

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/radicalgizmos-matt/li-rad-libs/dom"
)

// Document is a parsed HTML document.
type Document struct {
	root *html.Node
}

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmltree: parse: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseString parses s as an HTML document.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Root returns the document node.
func (d *Document) Root() *html.Node { return d.root }

// QueryAll returns elements matching selector in document order.
func (d *Document) QueryAll(_ context.Context, selector string) ([]dom.Element, error) {
	sel, err := Compile(selector)
	if err != nil {
		return nil, err
	}
	var out []dom.Element
	for n := range walk(d.root) {
		if sel.Match(n) {
			out = append(out, &Element{node: n})
		}
	}
	return out, nil
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// String renders the document, or "" on error.
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

// Element is a selected node.
type Element struct {
	node *html.Node
}

// Node exposes the underlying html node.
func (e *Element) Node() *html.Node { return e.node }

// TextNodes yields text leaves under the element. Contents of script,
// style and template elements are not page text and are skipped.
func (e *Element) TextNodes(_ context.Context) iter.Seq2[dom.TextNode, error] {
	return func(yield func(dom.TextNode, error) bool) {
		var visit func(n *html.Node) bool
		visit = func(n *html.Node) bool {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				switch {
				case c.Type == html.TextNode:
					if !yield(&TextNode{node: c}, nil) {
						return false
					}
				case c.Type == html.ElementNode && opaque(c):
				default:
					if !visit(c) {
						return false
					}
				}
			}
			return true
		}
		visit(e.node)
	}
}

// TextContent concatenates every text leaf under the element.
func (e *Element) TextContent() string {
	var b strings.Builder
	for n := range e.TextNodes(context.Background()) {
		b.WriteString(n.Text())
	}
	return b.String()
}

// TextNode wraps an html text node.
type TextNode struct {
	node *html.Node
}

func (t *TextNode) Text() string { return t.node.Data }

func (t *TextNode) SetText(_ context.Context, text string) error {
	t.node.Data = text
	return nil
}

func opaque(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Template, atom.Noscript:
		return true
	}
	return false
}

// walk yields element nodes in depth-first document order.
func walk(root *html.Node) iter.Seq[*html.Node] {
	return func(yield func(*html.Node) bool) {
		var visit func(n *html.Node) bool
		visit = func(n *html.Node) bool {
			if n.Type == html.ElementNode && !yield(n) {
				return false
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if !visit(c) {
					return false
				}
			}
			return true
		}
		visit(root)
	}
}
