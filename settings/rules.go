package settings

import (
	"context"
	"fmt"

	"github.com/radicalgizmos-matt/li-rad-libs/substitute"
)

// RulesKey is the key holding the substitution rule collection.
const RulesKey = "li_rad_libs_subs"

// LoadRules reads the rule collection. An absent key is an empty set.
func LoadRules(ctx context.Context, s *Store) (substitute.RuleSet, error) {
	data, ok, err := s.Get(ctx, AreaLocal, RulesKey)
	if err != nil {
		return substitute.RuleSet{}, err
	}
	if !ok {
		return substitute.RuleSet{}, nil
	}
	return substitute.DecodeRuleSet(data)
}

// SaveRules replaces the rule collection.
func SaveRules(ctx context.Context, s *Store, rules substitute.RuleSet) error {
	data, err := rules.Encode()
	if err != nil {
		return fmt.Errorf("settings: encode rules: %w", err)
	}
	return s.Set(ctx, AreaLocal, RulesKey, data)
}

// IsRulesChange reports whether c concerns the rule collection.
func IsRulesChange(c Change) bool {
	return c.Area == AreaLocal && c.Key == RulesKey
}
