// Package feed applies the active rule set to the text of a document's
// feed regions, rewriting only the leaves whose text actually changes.
package feed

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"

	"github.com/radicalgizmos-matt/li-rad-libs/dom"
	"github.com/radicalgizmos-matt/li-rad-libs/substitute"
)

// DefaultSelectors locate the LinkedIn feed regions: post author
// descriptions, post bodies, comment author subtitles and comment bodies.
var DefaultSelectors = []string{
	"span.update-components-actor__description > span:first-of-type",
	"div.feed-shared-update-v2__description > div > span.tvm-parent-container > span",
	"div.comments-comment-meta__description-subtitle",
	"span.comments-comment-item__main-content > div > span",
}

// Config configures a Processor.
type Config struct {
	// Selectors identify the feed regions. Default: DefaultSelectors.
	Selectors []string
	// Engine applies rules. Default: substitute.NewEngine(nil).
	Engine *substitute.Engine
	Logger *slog.Logger
}

// Stats summarises one processing pass.
type Stats struct {
	Roots   int `json:"roots"`
	Nodes   int `json:"nodes"`
	Changed int `json:"changed"`
	// Inputs and Outputs hold FNV-64a hashes of the before and after text
	// of each rewritten leaf, in document order. Lineage feeds on them.
	Inputs  []uint64 `json:"-"`
	Outputs []uint64 `json:"-"`
}

// Processor rewrites feed text. It keeps no state between passes.
type Processor struct {
	selectors []string
	engine    *substitute.Engine
	logger    *slog.Logger
}

// New creates a Processor.
func New(cfg Config) *Processor {
	if len(cfg.Selectors) == 0 {
		cfg.Selectors = DefaultSelectors
	}
	if cfg.Engine == nil {
		cfg.Engine = substitute.NewEngine(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Processor{selectors: cfg.Selectors, engine: cfg.Engine, logger: cfg.Logger}
}

// Engine returns the engine rules are applied with.
func (p *Processor) Engine() *substitute.Engine { return p.engine }

// Selectors returns the configured region selectors.
func (p *Processor) Selectors() []string { return p.selectors }

// Process selects the feed regions afresh (the feed keeps growing) and
// rewrites them.
func (p *Processor) Process(ctx context.Context, doc dom.Document, rules substitute.RuleSet) (Stats, error) {
	if len(rules) == 0 {
		return Stats{}, nil
	}
	if s, ok := doc.(dom.Snapshotter); ok {
		snap, err := s.Snapshot(ctx)
		if err != nil {
			return Stats{}, fmt.Errorf("feed: snapshot: %w", err)
		}
		doc = snap
	}
	var roots []dom.Element
	for _, sel := range p.selectors {
		els, err := doc.QueryAll(ctx, sel)
		if err != nil {
			return Stats{}, fmt.Errorf("feed: query %q: %w", sel, err)
		}
		roots = append(roots, els...)
	}
	return p.ProcessRoots(ctx, roots, rules)
}

// ProcessRoots rewrites the text leaves of each root. A leaf is written
// only when the engine's output differs from its current text.
func (p *Processor) ProcessRoots(ctx context.Context, roots []dom.Element, rules substitute.RuleSet) (Stats, error) {
	var st Stats
	if len(rules) == 0 {
		return st, nil
	}

	for _, root := range roots {
		if root == nil {
			continue
		}
		st.Roots++
		for node, err := range root.TextNodes(ctx) {
			if err != nil {
				return st, fmt.Errorf("feed: walk text: %w", err)
			}
			st.Nodes++

			before := node.Text()
			after := p.engine.Apply(before, rules)
			if after == before {
				continue
			}
			if err := node.SetText(ctx, after); err != nil {
				return st, fmt.Errorf("feed: write text: %w", err)
			}
			st.Changed++
			st.Inputs = append(st.Inputs, hashText(before))
			st.Outputs = append(st.Outputs, hashText(after))
		}
		if err := ctx.Err(); err != nil {
			return st, err
		}
	}
	if st.Changed > 0 {
		p.logger.Debug("feed: pass rewrote text",
			"roots", st.Roots, "nodes", st.Nodes, "changed", st.Changed)
	}
	return st, nil
}

func hashText(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
