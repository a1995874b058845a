// Package preview runs the feed processor over a saved HTML page, for
// trying rules without a browser.
package preview

import (
	"context"
	"fmt"
	"io"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/radicalgizmos-matt/li-rad-libs/dom/htmltree"
	"github.com/radicalgizmos-matt/li-rad-libs/feed"
	"github.com/radicalgizmos-matt/li-rad-libs/substitute"
)

// Options tunes Rewrite.
type Options struct {
	// Selectors identify the feed regions. Default: feed.DefaultSelectors.
	Selectors []string
	Engine    *substitute.Engine
	// Markdown also renders the rewritten page as Markdown.
	Markdown bool
	// Domain resolves relative links in the Markdown output.
	Domain string
}

// Result is a rewritten page.
type Result struct {
	HTML     string
	Markdown string
	Stats    feed.Stats
}

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// Rewrite parses the HTML in r, applies rules to its feed regions and
// returns the rewritten page.
func Rewrite(ctx context.Context, r io.Reader, rules substitute.RuleSet, opts Options) (*Result, error) {
	doc, err := htmltree.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("preview: %w", err)
	}
	proc := feed.New(feed.Config{Selectors: opts.Selectors, Engine: opts.Engine})
	st, err := proc.Process(ctx, doc, rules)
	if err != nil {
		return nil, fmt.Errorf("preview: %w", err)
	}

	res := &Result{HTML: doc.String(), Stats: st}
	if opts.Markdown {
		var convOpts []converter.ConvertOptionFunc
		if opts.Domain != "" {
			convOpts = append(convOpts, converter.WithDomain(opts.Domain))
		}
		md, err := mdConverter.ConvertString(res.HTML, convOpts...)
		if err != nil {
			return nil, fmt.Errorf("preview: markdown: %w", err)
		}
		res.Markdown = md
	}
	return res, nil
}
