package substitute

import (
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// Source is the random capability the engine draws from. *rand.Rand from
// math/rand/v2 satisfies it.
type Source interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
	// IntN returns a value in [0, n).
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }
func (globalSource) IntN(n int) int   { return rand.IntN(n) }

// DefaultSource returns a Source backed by the package-level generator of
// math/rand/v2, which is safe for concurrent use.
func DefaultSource() Source { return globalSource{} }

type matcherKey struct {
	target          string
	caseInsensitive bool
	wholeWord       bool
}

// Engine applies rule sets to text. The only state it keeps is a cache of
// compiled matchers, so one Engine can serve any number of goroutines.
type Engine struct {
	src Source

	mu       sync.RWMutex
	matchers map[matcherKey]*regexp.Regexp
}

// NewEngine creates an Engine. A nil src means DefaultSource.
func NewEngine(src Source) *Engine {
	if src == nil {
		src = DefaultSource()
	}
	return &Engine{src: src, matchers: make(map[matcherKey]*regexp.Regexp)}
}

var defaultEngine = NewEngine(nil)

// Apply runs rules over text with the default engine.
func Apply(text string, rules RuleSet) string {
	return defaultEngine.Apply(text, rules)
}

// Apply returns text with every eligible rule applied in order.
func (e *Engine) Apply(text string, rules RuleSet) string {
	out, _ := e.ApplyCount(text, rules)
	return out
}

// ApplyCount is Apply that also reports how many rules replaced something.
//
// Each rule gets one probability draw and at most one replacement draw per
// call: every occurrence it matches receives the same replacement.
func (e *Engine) ApplyCount(text string, rules RuleSet) (string, int) {
	applied := 0
	for _, r := range rules {
		if r.Inert() {
			continue
		}
		if e.src.Float64()*100 > r.EffectiveProbability() {
			continue
		}

		re := e.matcher(r)
		if !re.MatchString(text) {
			continue
		}

		replacement := r.Replacements[e.src.IntN(len(r.Replacements))]
		text = re.ReplaceAllLiteralString(text, replacement)
		applied++
	}
	return text, applied
}

// Pattern returns the regular expression source the engine builds for r.
//
// Case-insensitive targets spell out each letter's case variants instead of
// using (?i): two runes match only when they uppercase to the same rune,
// and a non-ASCII rune never matches an ASCII one. So "s" does not match
// U+017F and "k" does not match the Kelvin sign.
func Pattern(r Rule) string {
	var p string
	if r.CaseInsensitive {
		p = foldLiteral(r.Target)
	} else {
		p = regexp.QuoteMeta(r.Target)
	}
	if r.WholeWord {
		p = `\b` + p + `\b`
	}
	return p
}

func foldLiteral(s string) string {
	var b strings.Builder
	for _, c := range s {
		variants := []rune{c}
		for f := unicode.SimpleFold(c); f != c; f = unicode.SimpleFold(f) {
			if canonicalCase(f) == canonicalCase(c) {
				variants = append(variants, f)
			}
		}
		if len(variants) == 1 {
			b.WriteString(regexp.QuoteMeta(string(c)))
			continue
		}
		b.WriteByte('[')
		for _, v := range variants {
			b.WriteString(regexp.QuoteMeta(string(v)))
		}
		b.WriteByte(']')
	}
	return b.String()
}

func canonicalCase(c rune) rune {
	u := unicode.ToUpper(c)
	if c >= utf8.RuneSelf && u < utf8.RuneSelf {
		return c
	}
	return u
}

// Retain drops every cached matcher that no rule in rules uses.
func (e *Engine) Retain(rules RuleSet) {
	keep := make(map[matcherKey]struct{}, len(rules))
	for _, r := range rules {
		keep[keyOf(r)] = struct{}{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for k := range e.matchers {
		if _, ok := keep[k]; !ok {
			delete(e.matchers, k)
		}
	}
}

// Cached reports how many matchers are compiled.
func (e *Engine) Cached() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.matchers)
}

func keyOf(r Rule) matcherKey {
	return matcherKey{target: r.Target, caseInsensitive: r.CaseInsensitive, wholeWord: r.WholeWord}
}

func (e *Engine) matcher(r Rule) *regexp.Regexp {
	key := keyOf(r)

	e.mu.RLock()
	re, ok := e.matchers[key]
	e.mu.RUnlock()
	if ok {
		return re
	}

	// QuoteMeta output always compiles.
	re = regexp.MustCompile(Pattern(r))

	e.mu.Lock()
	e.matchers[key] = re
	e.mu.Unlock()
	return re
}
