package substitute

import (
	"errors"
	"math"
	"testing"
)

func TestDecodeRuleSet_EmptyInputs(t *testing.T) {
	for _, in := range []string{"", "  ", "null", "[]"} {
		rs, err := DecodeRuleSet([]byte(in))
		if err != nil {
			t.Fatalf("DecodeRuleSet(%q): %v", in, err)
		}
		if rs == nil || len(rs) != 0 {
			t.Fatalf("DecodeRuleSet(%q) = %v, want empty set", in, rs)
		}
	}
}

func TestDecodeRuleSet_NotAnArray(t *testing.T) {
	_, err := DecodeRuleSet([]byte(`{"target":"x"}`))
	if !errors.Is(err, ErrNotRuleSet) {
		t.Fatalf("err = %v, want ErrNotRuleSet", err)
	}
}

func TestDecodeRuleSet_Lenient(t *testing.T) {
	data := []byte(`[
		{"probability": 40, "target": "cat", "caseInsensitive": true, "wholeWord": false, "replacements": ["dog", null, 7, true]},
		null,
		"garbage",
		{"probability": "often", "target": "emu", "replacements": "owl"},
		{"target": 12, "replacements": ["x"], "wholeWord": 1}
	]`)

	rs, err := DecodeRuleSet(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(rs) != 5 {
		t.Fatalf("got %d rules, want 5", len(rs))
	}

	r0 := rs[0]
	if r0.EffectiveProbability() != 40 || r0.Target != "cat" || !r0.CaseInsensitive || r0.WholeWord {
		t.Errorf("rule 0: %+v", r0)
	}
	want := []string{"dog", "7", "true"}
	if len(r0.Replacements) != len(want) {
		t.Fatalf("rule 0 replacements: %v", r0.Replacements)
	}
	for i := range want {
		if r0.Replacements[i] != want[i] {
			t.Errorf("replacement[%d] = %q, want %q", i, r0.Replacements[i], want[i])
		}
	}

	if !rs[1].Inert() || !rs[2].Inert() {
		t.Error("null and non-object entries must be inert")
	}

	r3 := rs[3]
	if r3.Probability != nil || r3.EffectiveProbability() != 100 {
		t.Errorf("rule 3 probability: %v", r3.Probability)
	}
	if !r3.Inert() {
		t.Error("rule 3 has no replacement array and must be inert")
	}

	r4 := rs[4]
	if r4.Target != "12" || !r4.WholeWord || r4.Inert() {
		t.Errorf("rule 4: %+v", r4)
	}
}

func TestEffectiveProbability(t *testing.T) {
	tests := []struct {
		p    *float64
		want float64
	}{
		{nil, 100},
		{Prob(25), 25},
		{Prob(math.NaN()), 100},
		{Prob(math.Inf(1)), 100},
		{Prob(math.Inf(-1)), 100},
		{Prob(0), 0},
	}
	for _, tt := range tests {
		if got := (Rule{Probability: tt.p}).EffectiveProbability(); got != tt.want {
			t.Errorf("EffectiveProbability(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestRuleSetEncodeDecode(t *testing.T) {
	rs := RuleSet{{Probability: Prob(55), Target: "cat", WholeWord: true, Replacements: []string{"dog", "emu"}}}
	data, err := rs.Encode()
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeRuleSet(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Target != "cat" || got[0].EffectiveProbability() != 55 || !got[0].WholeWord || len(got[0].Replacements) != 2 {
		t.Fatalf("decoded %+v", got)
	}
}

func TestRuleSetUsable(t *testing.T) {
	rs := RuleSet{{Target: "a", Replacements: []string{"b"}}, {Target: "c"}, {}}
	if n := rs.Usable(); n != 1 {
		t.Fatalf("Usable() = %d, want 1", n)
	}
}

func TestRuleSetEncode_Nil(t *testing.T) {
	data, err := RuleSet(nil).Encode()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]" {
		t.Fatalf("got %s", data)
	}
}
