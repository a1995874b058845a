package options

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/radicalgizmos-matt/li-rad-libs/substitute"
)

// ErrInvalid matches every *ValidationError.
var ErrInvalid = errors.New("options: invalid substitutions")

// Field problem codes.
const (
	TargetMissing       = "target_missing"
	ReplacementsMissing = "replacements_missing"
	NoRules             = "no_rules"
	TooManyRules        = "too_many_rules"
)

// MaxRules bounds the size of a saved collection.
const MaxRules = 500

// Problem is one validation failure. Index is -1 for the collection as a
// whole.
type Problem struct {
	Index   int    `json:"index"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError lists everything wrong with a rule collection.
type ValidationError struct {
	Problems []Problem `json:"problems"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		if p.Index >= 0 {
			msgs[i] = fmt.Sprintf("substitution %d: %s", p.Index+1, p.Message)
		} else {
			msgs[i] = p.Message
		}
	}
	return "options: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }

// For returns the problems of the rule at index i.
func (e *ValidationError) For(i int) []Problem {
	var out []Problem
	for _, p := range e.Problems {
		if p.Index == i {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks a collection before it is saved: every rule needs a
// non-blank target and at least one non-blank replacement, and the
// collection holds between one and MaxRules rules.
func Validate(rules substitute.RuleSet) error {
	var problems []Problem
	for i, r := range rules {
		if strings.TrimSpace(r.Target) == "" {
			problems = append(problems, Problem{Index: i, Field: "target", Code: TargetMissing,
				Message: "Target text is required."})
		}
		if len(cleanReplacements(r.Replacements)) == 0 {
			problems = append(problems, Problem{Index: i, Field: "replacements", Code: ReplacementsMissing,
				Message: "At least one replacement is required."})
		}
	}
	if len(rules) == 0 {
		problems = append(problems, Problem{Index: -1, Code: NoRules,
			Message: "At least one substitution must have a target and at least one replacement."})
	}
	if len(rules) > MaxRules {
		problems = append(problems, Problem{Index: -1, Code: TooManyRules,
			Message: fmt.Sprintf("At most %d substitutions can be saved.", MaxRules)})
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Normalize returns the collection as it is persisted: replacements
// trimmed without blanks, probability clamped to 1..100.
func Normalize(rules substitute.RuleSet) substitute.RuleSet {
	out := make(substitute.RuleSet, len(rules))
	for i, r := range rules {
		p := r.EffectiveProbability()
		p = math.Max(1, math.Min(100, math.Round(p)))
		r.Probability = substitute.Prob(p)
		r.Replacements = cleanReplacements(r.Replacements)
		out[i] = r
	}
	return out
}

func cleanReplacements(rs []string) []string {
	out := []string{}
	for _, s := range rs {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
