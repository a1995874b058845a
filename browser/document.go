package browser

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/radicalgizmos-matt/li-rad-libs/dom"
)

// Document exposes a live page as a dom.Document. Node handles come from
// DOM.getDocument and are only valid until the next call, so every pass
// works on one Snapshot.
type Document struct {
	page *rod.Page
}

// NewDocument wraps page.
func NewDocument(page *rod.Page) *Document {
	return &Document{page: page}
}

// Snapshot fetches the whole light DOM once.
func (d *Document) Snapshot(ctx context.Context) (dom.Document, error) {
	depth := -1
	res, err := proto.DOMGetDocument{Depth: &depth}.Call(d.page.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("browser: DOM.getDocument: %w", err)
	}
	return newSnapshot(d.page, res.Root), nil
}

// QueryAll snapshots the page and queries it. Handles from two QueryAll
// calls must not be mixed; use Snapshot to run several queries.
func (d *Document) QueryAll(ctx context.Context, selector string) ([]dom.Element, error) {
	snap, err := d.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.QueryAll(ctx, selector)
}

type snapshot struct {
	page  *rod.Page
	root  *proto.DOMNode
	nodes map[proto.DOMNodeID]*proto.DOMNode
}

func newSnapshot(page *rod.Page, root *proto.DOMNode) *snapshot {
	return &snapshot{page: page, root: root, nodes: indexNodes(root)}
}

func (s *snapshot) QueryAll(ctx context.Context, selector string) ([]dom.Element, error) {
	res, err := proto.DOMQuerySelectorAll{NodeID: s.root.NodeID, Selector: selector}.Call(s.page.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("browser: DOM.querySelectorAll %q: %w", selector, err)
	}
	els := make([]dom.Element, 0, len(res.NodeIDs))
	for _, id := range res.NodeIDs {
		// Nodes inserted after the snapshot are picked up by the pass
		// their mutation triggers.
		n, ok := s.nodes[id]
		if !ok {
			continue
		}
		els = append(els, &element{page: s.page, node: n})
	}
	return els, nil
}

type element struct {
	page *rod.Page
	node *proto.DOMNode
}

func (e *element) TextNodes(ctx context.Context) iter.Seq2[dom.TextNode, error] {
	return func(yield func(dom.TextNode, error) bool) {
		for n := range textLeaves(e.node) {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(&textNode{page: e.page, node: n}, nil) {
				return
			}
		}
	}
}

type textNode struct {
	page *rod.Page
	node *proto.DOMNode
}

func (t *textNode) Text() string { return t.node.NodeValue }

func (t *textNode) SetText(ctx context.Context, text string) error {
	err := proto.DOMSetNodeValue{NodeID: t.node.NodeID, Value: text}.Call(t.page.Context(ctx))
	if err != nil {
		return fmt.Errorf("browser: DOM.setNodeValue: %w", err)
	}
	t.node.NodeValue = text
	return nil
}

const nodeText = 3

func indexNodes(root *proto.DOMNode) map[proto.DOMNodeID]*proto.DOMNode {
	idx := make(map[proto.DOMNodeID]*proto.DOMNode)
	var visit func(*proto.DOMNode)
	visit = func(n *proto.DOMNode) {
		if n == nil {
			return
		}
		idx[n.NodeID] = n
		for _, c := range n.Children {
			visit(c)
		}
	}
	visit(root)
	return idx
}

// textLeaves yields the text nodes under n in document order, skipping the
// contents of elements that never render text.
func textLeaves(n *proto.DOMNode) iter.Seq[*proto.DOMNode] {
	return func(yield func(*proto.DOMNode) bool) {
		var visit func(*proto.DOMNode) bool
		visit = func(n *proto.DOMNode) bool {
			for _, c := range n.Children {
				if c.NodeType == nodeText {
					if !yield(c) {
						return false
					}
					continue
				}
				if opaque(c.NodeName) {
					continue
				}
				if !visit(c) {
					return false
				}
			}
			return true
		}
		if n != nil {
			visit(n)
		}
	}
}

func opaque(name string) bool {
	switch strings.ToLower(name) {
	case "script", "style", "template", "noscript":
		return true
	}
	return false
}
