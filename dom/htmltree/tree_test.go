package htmltree

import (
	"context"
	"strings"
	"testing"

	"github.com/radicalgizmos-matt/li-rad-libs/dom"
)

const feedHTML = `<!doctype html><html><body>
<div class="feed">
  <span class="update-components-actor__description"><span>Chief Cat Officer</span><span>2h</span></span>
  <div class="feed-shared-update-v2__description"><div><span class="tvm-parent-container"><span>My cat <b>loves</b> catnip</span></span></div></div>
  <div class="comments-comment-meta__description-subtitle">Cat herder</div>
  <span class="comments-comment-item__main-content"><div><span>nice cat</span></div></span>
  <script>var cat = 1;</script>
</div>
</body></html>`

func mustParse(t *testing.T, s string) *Document {
	t.Helper()
	d, err := ParseString(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func texts(t *testing.T, els []dom.Element) []string {
	t.Helper()
	var out []string
	for _, e := range els {
		out = append(out, e.(*Element).TextContent())
	}
	return out
}

func TestQueryAll_FeedSelectors(t *testing.T) {
	d := mustParse(t, feedHTML)
	ctx := context.Background()

	tests := []struct {
		sel  string
		want []string
	}{
		{"span.update-components-actor__description > span:first-of-type", []string{"Chief Cat Officer"}},
		{"div.feed-shared-update-v2__description > div > span.tvm-parent-container > span", []string{"My cat loves catnip"}},
		{"div.comments-comment-meta__description-subtitle", []string{"Cat herder"}},
		{"span.comments-comment-item__main-content > div > span", []string{"nice cat"}},
		{".feed span.tvm-parent-container", []string{"My cat loves catnip"}},
		{"b, .comments-comment-meta__description-subtitle", []string{"loves", "Cat herder"}},
	}
	for _, tt := range tests {
		els, err := d.QueryAll(ctx, tt.sel)
		if err != nil {
			t.Fatalf("QueryAll(%q): %v", tt.sel, err)
		}
		got := texts(t, els)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("QueryAll(%q) = %q, want %q", tt.sel, got, tt.want)
		}
	}
}

func TestQueryAll_ChildVersusDescendant(t *testing.T) {
	d := mustParse(t, `<div id="a"><p><span>deep</span></p><span>shallow</span></div>`)
	ctx := context.Background()

	els, _ := d.QueryAll(ctx, "#a > span")
	if got := texts(t, els); len(got) != 1 || got[0] != "shallow" {
		t.Errorf("child: %q", got)
	}
	els, _ = d.QueryAll(ctx, "#a span")
	if got := texts(t, els); len(got) != 2 {
		t.Errorf("descendant: %q", got)
	}
}

func TestQueryAll_PseudoAndAttr(t *testing.T) {
	d := mustParse(t, `<ul><li data-k="1">a</li><li>b</li><li data-k="2">c</li></ul>`)
	ctx := context.Background()

	cases := map[string]string{
		"li:first-child":  "a",
		"li:last-child":   "c",
		"li:last-of-type": "c",
		"li[data-k=2]":    "c",
		`li[data-k="1"]`:  "a",
	}
	for sel, want := range cases {
		els, err := d.QueryAll(ctx, sel)
		if err != nil {
			t.Fatalf("%s: %v", sel, err)
		}
		got := texts(t, els)
		if len(got) != 1 || got[0] != want {
			t.Errorf("%s = %q, want %q", sel, got, want)
		}
	}

	els, _ := d.QueryAll(ctx, "li[data-k]")
	if len(els) != 2 {
		t.Errorf("li[data-k]: got %d", len(els))
	}
}

func TestCompile_Errors(t *testing.T) {
	for _, sel := range []string{"", "a >", "> a", "a > > b", "a:hover", "a[", "a.", "div,"} {
		if _, err := Compile(sel); err == nil {
			t.Errorf("Compile(%q): expected error", sel)
		}
	}
}

func TestTextNodes_OrderAndSkipScript(t *testing.T) {
	d := mustParse(t, feedHTML)
	els, err := d.QueryAll(context.Background(), "div.feed")
	if err != nil || len(els) != 1 {
		t.Fatalf("QueryAll: %v, %d", err, len(els))
	}

	nodes, err := dom.Collect(context.Background(), els[0])
	if err != nil {
		t.Fatal(err)
	}
	var joined []string
	for _, n := range nodes {
		if s := strings.TrimSpace(n.Text()); s != "" {
			joined = append(joined, s)
		}
	}
	want := []string{"Chief Cat Officer", "2h", "My cat", "loves", "catnip", "Cat herder", "nice cat"}
	if strings.Join(joined, "|") != strings.Join(want, "|") {
		t.Fatalf("text leaves = %q, want %q", joined, want)
	}
}

func TestTextNodes_EarlyStop(t *testing.T) {
	d := mustParse(t, `<p>a<b>b</b>c</p>`)
	els, _ := d.QueryAll(context.Background(), "p")
	n := 0
	for range els[0].TextNodes(context.Background()) {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("n = %d", n)
	}
}

func TestSetTextRenders(t *testing.T) {
	d := mustParse(t, `<p>hello <i>cat</i></p>`)
	els, _ := d.QueryAll(context.Background(), "i")
	nodes, _ := dom.Collect(context.Background(), els[0])
	if err := nodes[0].SetText(context.Background(), "dog & co"); err != nil {
		t.Fatal(err)
	}
	if out := d.String(); !strings.Contains(out, "<i>dog &amp; co</i>") {
		t.Fatalf("render = %s", out)
	}
}
