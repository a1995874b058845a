// Package substitute implements the text substitution engine: an ordered
// set of user-authored rules, each matching a literal target and replacing
// it with one of several alternatives, gated by a per-rule probability.
package substitute

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrNotRuleSet is returned by DecodeRuleSet when the payload is not a
// JSON array.
var ErrNotRuleSet = errors.New("substitute: payload is not a rule list")

// DefaultProbability is used when a rule carries no usable probability.
const DefaultProbability = 100

// Rule is a single configured substitution.
type Rule struct {
	Probability     *float64 `json:"probability,omitempty"`
	Target          string   `json:"target"`
	CaseInsensitive bool     `json:"caseInsensitive"`
	WholeWord       bool     `json:"wholeWord"`
	Replacements    []string `json:"replacements"`
}

// RuleSet is applied in order; later rules see text already rewritten by
// earlier ones.
type RuleSet []Rule

// EffectiveProbability returns the probability the engine uses: the stored
// value when it is a finite number, DefaultProbability otherwise.
func (r Rule) EffectiveProbability() float64 {
	if r.Probability == nil {
		return DefaultProbability
	}
	p := *r.Probability
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return DefaultProbability
	}
	return p
}

// Inert reports whether the engine skips this rule unconditionally.
func (r Rule) Inert() bool {
	return r.Target == "" || len(r.Replacements) == 0
}

// Prob is a helper for building rules in code and tests.
func Prob(p float64) *float64 { return &p }

// UnmarshalJSON decodes a rule leniently. Persisted data may come from an
// older options page or be hand-edited, so fields with the wrong type are
// dropped instead of failing the whole rule set.
func (r *Rule) UnmarshalJSON(data []byte) error {
	*r = Rule{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// Not an object: leave the rule inert.
		return nil
	}

	if v, ok := raw["probability"]; ok {
		var p float64
		if err := json.Unmarshal(v, &p); err == nil {
			r.Probability = &p
		}
	}
	if v, ok := raw["target"]; ok {
		r.Target = scalarString(v)
	}
	if v, ok := raw["caseInsensitive"]; ok {
		r.CaseInsensitive = truthy(v)
	}
	if v, ok := raw["wholeWord"]; ok {
		r.WholeWord = truthy(v)
	}
	if v, ok := raw["replacements"]; ok {
		var items []json.RawMessage
		if err := json.Unmarshal(v, &items); err == nil {
			for _, it := range items {
				if s := scalarString(it); s != "" || isEmptyString(it) {
					r.Replacements = append(r.Replacements, s)
				}
			}
		}
	}
	return nil
}

// DecodeRuleSet decodes a persisted rule collection. Empty input and JSON
// null decode to an empty set. Malformed entries become inert rules; only a
// payload that is not an array is an error.
func DecodeRuleSet(data []byte) (RuleSet, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return RuleSet{}, nil
	}
	var rules RuleSet
	if err := json.Unmarshal(data, &rules); err != nil {
		return RuleSet{}, fmt.Errorf("%w: %w", ErrNotRuleSet, err)
	}
	if rules == nil {
		rules = RuleSet{}
	}
	return rules, nil
}

// Encode serialises the rule set for persistence.
func (rs RuleSet) Encode() ([]byte, error) {
	if rs == nil {
		rs = RuleSet{}
	}
	return json.Marshal(rs)
}

// Usable returns the number of rules that are not inert.
func (rs RuleSet) Usable() int {
	n := 0
	for _, r := range rs {
		if !r.Inert() {
			n++
		}
	}
	return n
}

// scalarString renders strings, numbers and booleans as text. Null, arrays
// and objects yield "".
func scalarString(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return ""
	}
	switch v[0] {
	case '"':
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s
		}
	case 't', 'f':
		if b, err := strconv.ParseBool(string(v)); err == nil {
			return strconv.FormatBool(b)
		}
	case 'n', '[', '{':
		return ""
	default:
		var n json.Number
		if err := json.Unmarshal(v, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

func isEmptyString(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte(`""`))
}

func truthy(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	switch {
	case bytes.Equal(v, []byte("true")):
		return true
	case bytes.Equal(v, []byte("false")), bytes.Equal(v, []byte("null")):
		return false
	case len(v) > 0 && v[0] == '"':
		return !isEmptyString(v)
	case len(v) > 0 && (v[0] == '[' || v[0] == '{'):
		return true
	default:
		f, err := strconv.ParseFloat(string(v), 64)
		return err == nil && f != 0 && !math.IsNaN(f)
	}
}
