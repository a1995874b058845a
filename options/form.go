package options

import (
	"strconv"
	"strings"

	"github.com/radicalgizmos-matt/li-rad-libs/substitute"
)

// Form is one rule as edited on the options page, before parsing.
type Form struct {
	Probability     string
	Target          string
	CaseInsensitive bool
	WholeWord       bool
	Replacements    string // one per line
}

// FormFromRule renders r for editing.
func FormFromRule(r substitute.Rule) Form {
	return Form{
		Probability:     strconv.FormatFloat(r.EffectiveProbability(), 'f', -1, 64),
		Target:          r.Target,
		CaseInsensitive: r.CaseInsensitive,
		WholeWord:       r.WholeWord,
		Replacements:    strings.Join(r.Replacements, "\n"),
	}
}

// Rule parses the form. The target is kept as typed.
func (f Form) Rule() substitute.Rule {
	return substitute.Rule{
		Probability:     substitute.Prob(ParseProbability(f.Probability)),
		Target:          f.Target,
		CaseInsensitive: f.CaseInsensitive,
		WholeWord:       f.WholeWord,
		Replacements:    SplitReplacements(f.Replacements),
	}
}

// Collapsed reports whether the page shows the rule folded: rules that
// already have a target start folded, blank ones open.
func (f Form) Collapsed() bool {
	return strings.TrimSpace(f.Target) != ""
}

// ParseProbability keeps only the digits of s and clamps the result to
// 1..100. No digits at all means 100.
func ParseProbability(s string) float64 {
	var b strings.Builder
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		return substitute.DefaultProbability
	}
	n, err := strconv.Atoi(b.String())
	if err != nil || n > 100 {
		// Atoi only fails here on overflow.
		return 100
	}
	if n < 1 {
		return 1
	}
	return float64(n)
}

// SplitReplacements splits text into lines, trims them and drops empties.
func SplitReplacements(text string) []string {
	out := []string{}
	for line := range strings.SplitSeq(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Blank is the rule appended by "Add".
func Blank() substitute.Rule {
	return substitute.Rule{Probability: substitute.Prob(100), Replacements: []string{}}
}
