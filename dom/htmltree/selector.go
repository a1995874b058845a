package htmltree

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/net/html"
)

// Supported selector subset:
//   - type and universal: "span", "*"
//   - .class (repeatable), #id, [attr], [attr=val]
//   - :first-of-type, :last-of-type, :first-child, :last-child
//   - descendant (space) and child (">") combinators
//   - groups separated by ","

type combinator byte

const (
	descendant combinator = ' '
	child      combinator = '>'
)

type compound struct {
	tag     string
	id      string
	classes []string
	attrs   []attrMatch
	pseudos []string
	// comb links this compound to the one on its left.
	comb combinator
}

type attrMatch struct {
	key, val string
	hasVal   bool
}

// Selector is a compiled selector group.
type Selector struct {
	src    string
	chains [][]compound
}

func (s *Selector) String() string { return s.src }

// Compile parses a selector group.
func Compile(src string) (*Selector, error) {
	sel := &Selector{src: src}
	for _, part := range strings.Split(src, ",") {
		chain, err := parseChain(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("htmltree: selector %q: %w", src, err)
		}
		sel.chains = append(sel.chains, chain)
	}
	return sel, nil
}

// MustCompile is Compile that panics on error.
func MustCompile(src string) *Selector {
	s, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return s
}

func parseChain(s string) ([]compound, error) {
	if s == "" {
		return nil, fmt.Errorf("empty selector")
	}
	// Normalise "a>b" and "a > b" into separate tokens.
	s = strings.ReplaceAll(s, ">", " > ")
	tokens := strings.Fields(s)

	var chain []compound
	comb := descendant
	for _, tok := range tokens {
		if tok == ">" {
			if len(chain) == 0 || comb == child {
				return nil, fmt.Errorf("misplaced '>'")
			}
			comb = child
			continue
		}
		c, err := parseCompound(tok)
		if err != nil {
			return nil, err
		}
		c.comb = comb
		chain = append(chain, c)
		comb = descendant
	}
	if comb == child {
		return nil, fmt.Errorf("dangling '>'")
	}
	return chain, nil
}

func parseCompound(tok string) (compound, error) {
	var c compound
	i := 0
	// Leading type selector.
	for i < len(tok) && !strings.ContainsRune(".#[:", rune(tok[i])) {
		i++
	}
	c.tag = strings.ToLower(tok[:i])
	if c.tag == "*" {
		c.tag = ""
	}

	for i < len(tok) {
		switch tok[i] {
		case '.', '#', ':':
			kind := tok[i]
			j := i + 1
			for j < len(tok) && !strings.ContainsRune(".#[:", rune(tok[j])) {
				j++
			}
			name := tok[i+1 : j]
			if name == "" {
				return c, fmt.Errorf("empty name after %q", kind)
			}
			switch kind {
			case '.':
				c.classes = append(c.classes, name)
			case '#':
				c.id = name
			case ':':
				switch name {
				case "first-of-type", "last-of-type", "first-child", "last-child":
					c.pseudos = append(c.pseudos, name)
				default:
					return c, fmt.Errorf("unsupported pseudo-class :%s", name)
				}
			}
			i = j
		case '[':
			end := strings.IndexByte(tok[i:], ']')
			if end < 0 {
				return c, fmt.Errorf("unterminated attribute selector")
			}
			body := tok[i+1 : i+end]
			var am attrMatch
			if eq := strings.IndexByte(body, '='); eq >= 0 {
				am.key = body[:eq]
				am.val = strings.Trim(body[eq+1:], `"'`)
				am.hasVal = true
			} else {
				am.key = body
			}
			if am.key == "" {
				return c, fmt.Errorf("empty attribute name")
			}
			c.attrs = append(c.attrs, am)
			i += end + 1
		default:
			return c, fmt.Errorf("unexpected %q", tok[i])
		}
	}
	return c, nil
}

// Match reports whether n matches any chain of the group.
func (s *Selector) Match(n *html.Node) bool {
	for _, chain := range s.chains {
		if matchChain(n, chain, len(chain)-1) {
			return true
		}
	}
	return false
}

// matchChain checks chain[:i+1] right to left, with n matching chain[i].
func matchChain(n *html.Node, chain []compound, i int) bool {
	if !matchCompound(n, chain[i]) {
		return false
	}
	if i == 0 {
		return true
	}
	switch chain[i].comb {
	case child:
		p := parentElement(n)
		return p != nil && matchChain(p, chain, i-1)
	default:
		for p := parentElement(n); p != nil; p = parentElement(p) {
			if matchChain(p, chain, i-1) {
				return true
			}
		}
		return false
	}
}

func matchCompound(n *html.Node, c compound) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if c.tag != "" && n.Data != c.tag {
		return false
	}
	if c.id != "" && attr(n, "id") != c.id {
		return false
	}
	if len(c.classes) > 0 {
		have := strings.Fields(attr(n, "class"))
		for _, want := range c.classes {
			if !slices.Contains(have, want) {
				return false
			}
		}
	}
	for _, am := range c.attrs {
		v, ok := lookupAttr(n, am.key)
		if !ok || (am.hasVal && v != am.val) {
			return false
		}
	}
	for _, p := range c.pseudos {
		if !matchPseudo(n, p) {
			return false
		}
	}
	return true
}

func matchPseudo(n *html.Node, pseudo string) bool {
	switch pseudo {
	case "first-child":
		return prevElement(n, "") == nil
	case "last-child":
		return nextElement(n, "") == nil
	case "first-of-type":
		return prevElement(n, n.Data) == nil
	case "last-of-type":
		return nextElement(n, n.Data) == nil
	}
	return false
}

func prevElement(n *html.Node, tag string) *html.Node {
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode && (tag == "" || s.Data == tag) {
			return s
		}
	}
	return nil
}

func nextElement(n *html.Node, tag string) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode && (tag == "" || s.Data == tag) {
			return s
		}
	}
	return nil
}

func parentElement(n *html.Node) *html.Node {
	p := n.Parent
	if p != nil && p.Type == html.ElementNode {
		return p
	}
	return nil
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
