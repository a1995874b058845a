// Package dom is the narrow view of a host document that the feed
// processor needs: select regions, walk their text leaves, rewrite a leaf.
// Implementations exist for parsed HTML (dom/htmltree) and for a live
// browser page (browser.Document).
package dom

import (
	"context"
	"iter"
)

// TextNode is a handle to one text leaf owned by the host document.
type TextNode interface {
	Text() string
	SetText(ctx context.Context, text string) error
}

// Element is a selected region of the document.
type Element interface {
	// TextNodes yields every text leaf under the element in depth-first
	// document order. The sequence is lazy and meant to be consumed once.
	TextNodes(ctx context.Context) iter.Seq2[TextNode, error]
}

// Document selects regions by CSS selector.
type Document interface {
	QueryAll(ctx context.Context, selector string) ([]Element, error)
}

// Snapshotter is implemented by documents whose node handles are only
// valid against one captured state. A processing pass calls Snapshot once
// and runs all of its queries against the result.
type Snapshotter interface {
	Snapshot(ctx context.Context) (Document, error)
}

// Collect drains a text node sequence into a slice, stopping at the first
// error.
func Collect(ctx context.Context, e Element) ([]TextNode, error) {
	var out []TextNode
	for n, err := range e.TextNodes(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, n)
	}
	return out, nil
}
