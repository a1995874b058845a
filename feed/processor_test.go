package feed

import (
	"context"
	"errors"
	"iter"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/radicalgizmos-matt/li-rad-libs/dom"
	"github.com/radicalgizmos-matt/li-rad-libs/dom/htmltree"
	"github.com/radicalgizmos-matt/li-rad-libs/substitute"
)

type memNode struct {
	text   string
	writes int
	err    error
}

func (n *memNode) Text() string { return n.text }

func (n *memNode) SetText(_ context.Context, s string) error {
	if n.err != nil {
		return n.err
	}
	n.writes++
	n.text = s
	return nil
}

type memElement struct{ nodes []*memNode }

func (e *memElement) TextNodes(context.Context) iter.Seq2[dom.TextNode, error] {
	return func(yield func(dom.TextNode, error) bool) {
		for _, n := range e.nodes {
			if !yield(n, nil) {
				return
			}
		}
	}
}

var catToDog = substitute.RuleSet{{
	Probability:  substitute.Prob(100),
	Target:       "cat",
	WholeWord:    true,
	Replacements: []string{"dog"},
}}

func TestProcessRoots_WritesOnlyChanged(t *testing.T) {
	a := &memNode{text: "my cat"}
	b := &memNode{text: "no match"}
	c := &memNode{text: "caterpillar"}
	el := &memElement{nodes: []*memNode{a, b, c}}

	p := New(Config{})
	st, err := p.ProcessRoots(context.Background(), []dom.Element{el}, catToDog)
	if err != nil {
		t.Fatal(err)
	}
	if st.Roots != 1 || st.Nodes != 3 || st.Changed != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if a.text != "my dog" || a.writes != 1 {
		t.Errorf("a = %q (%d writes)", a.text, a.writes)
	}
	if b.writes != 0 || c.writes != 0 {
		t.Errorf("unchanged nodes were written: b=%d c=%d", b.writes, c.writes)
	}
}

func TestProcessRoots_EmptyRulesSkipsWalk(t *testing.T) {
	a := &memNode{text: "cat"}
	st, err := New(Config{}).ProcessRoots(context.Background(), []dom.Element{&memElement{nodes: []*memNode{a}}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if st.Nodes != 0 || a.writes != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestProcessRoots_WriteError(t *testing.T) {
	errWrite := errors.New("detached")
	a := &memNode{text: "cat", err: errWrite}
	_, err := New(Config{}).ProcessRoots(context.Background(), []dom.Element{&memElement{nodes: []*memNode{a}}}, catToDog)
	if !errors.Is(err, errWrite) {
		t.Fatalf("err = %v", err)
	}
}

func TestLineage_GrowingRuleDeepens(t *testing.T) {
	p := New(Config{})
	grow := substitute.RuleSet{{Probability: substitute.Prob(100), Target: "cat", Replacements: []string{"bobcat"}}}
	node := &memNode{text: "a cat"}
	el := &memElement{nodes: []*memNode{node, {text: "plain"}}}
	lin := NewLineage(0)

	for want := 1; want <= 3; want++ {
		st, err := p.ProcessRoots(context.Background(), []dom.Element{el}, grow)
		if err != nil {
			t.Fatal(err)
		}
		if d := lin.Observe(st); d != want {
			t.Fatalf("pass %d depth = %d", want, d)
		}
	}
	if node.text != "a bobbobbobcat" {
		t.Fatalf("text = %q", node.text)
	}
}

func TestLineage_ConvergingRulesStayShallow(t *testing.T) {
	p := New(Config{Engine: substitute.NewEngine(rand.New(rand.NewPCG(7, 11)))})
	rules := substitute.RuleSet{
		{Probability: substitute.Prob(30), Target: "cat", Replacements: []string{"dog"}},
		{Probability: substitute.Prob(30), Target: "bird", Replacements: []string{"fish"}},
	}
	lin := NewLineage(0)
	el := &memElement{}

	deepest := 0
	for range 40 {
		for range 10 {
			el.nodes = append(el.nodes, &memNode{text: "cat bird"})
		}
		st, err := p.ProcessRoots(context.Background(), []dom.Element{el}, rules)
		if err != nil {
			t.Fatal(err)
		}
		deepest = max(deepest, lin.Observe(st))
	}
	if deepest > rules.Usable() {
		t.Fatalf("depth = %d, want at most %d", deepest, rules.Usable())
	}
	for _, n := range el.nodes[:10] {
		if n.text != "dog fish" {
			t.Fatalf("early leaf never converged: %q", n.text)
		}
	}
}

func TestLineage_BoundedMemory(t *testing.T) {
	lin := NewLineage(2)
	lin.Observe(Stats{Inputs: []uint64{1, 2}, Outputs: []uint64{10, 20}})
	if d := lin.Observe(Stats{Inputs: []uint64{10}, Outputs: []uint64{30}}); d != 2 {
		t.Fatalf("depth = %d, want 2", d)
	}
	if lin.Depth(20) != 0 || lin.Depth(30) != 2 {
		t.Fatal("overflow should keep only the latest outputs")
	}
	lin.Reset()
	if lin.Depth(30) != 0 {
		t.Fatal("Reset kept entries")
	}
}

const page = `<html><body>
<span class="update-components-actor__description"><span>Cat wrangler</span><span>cat</span></span>
<div class="feed-shared-update-v2__description"><div><span class="tvm-parent-container"><span>I have a cat and a caterpillar</span></span></div></div>
<div class="comments-comment-meta__description-subtitle">cat lover</div>
<span class="comments-comment-item__main-content"><div><span>great cat!</span></div></span>
<p class="sidebar">cat outside the feed</p>
</body></html>`

func TestProcess_DefaultSelectors(t *testing.T) {
	doc, err := htmltree.ParseString(page)
	if err != nil {
		t.Fatal(err)
	}

	st, err := New(Config{}).Process(context.Background(), doc, catToDog)
	if err != nil {
		t.Fatal(err)
	}
	if st.Roots != 4 {
		t.Fatalf("roots = %d, want 4", st.Roots)
	}

	out := doc.String()
	for _, want := range []string{
		"<span>Cat wrangler</span><span>cat</span>", // case-sensitive and second span not selected
		"I have a dog and a caterpillar",
		"dog lover",
		"great dog!",
		"cat outside the feed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestProcess_SecondPassIsIdempotent(t *testing.T) {
	doc, _ := htmltree.ParseString(page)
	p := New(Config{})
	if _, err := p.Process(context.Background(), doc, catToDog); err != nil {
		t.Fatal(err)
	}
	st, err := p.Process(context.Background(), doc, catToDog)
	if err != nil {
		t.Fatal(err)
	}
	if st.Changed != 0 {
		t.Fatalf("second pass changed %d nodes", st.Changed)
	}
}

func TestProcess_BadSelector(t *testing.T) {
	doc, _ := htmltree.ParseString(page)
	p := New(Config{Selectors: []string{"div:hover"}})
	if _, err := p.Process(context.Background(), doc, catToDog); err == nil {
		t.Fatal("expected selector error")
	}
}

// snapDoc counts snapshots and only answers queries through one.
type snapDoc struct {
	inner *htmltree.Document
	snaps int
	err   error
}

func (d *snapDoc) QueryAll(context.Context, string) ([]dom.Element, error) {
	return nil, errors.New("query without snapshot")
}

func (d *snapDoc) Snapshot(context.Context) (dom.Document, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.snaps++
	return d.inner, nil
}

func TestProcess_SnapshotOncePerPass(t *testing.T) {
	inner, err := htmltree.ParseString(page)
	if err != nil {
		t.Fatal(err)
	}
	doc := &snapDoc{inner: inner}

	st, err := New(Config{}).Process(context.Background(), doc, catToDog)
	if err != nil {
		t.Fatal(err)
	}
	if doc.snaps != 1 {
		t.Fatalf("snapshots = %d, want 1", doc.snaps)
	}
	if st.Changed != 3 {
		t.Fatalf("changed = %d, want 3", st.Changed)
	}

	doc.err = errors.New("target closed")
	if _, err := New(Config{}).Process(context.Background(), doc, catToDog); !errors.Is(err, doc.err) {
		t.Fatalf("err = %v", err)
	}
}
