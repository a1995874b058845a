// Package options is the editing surface for the substitution rules: form
// parsing and validation, a service over the settings store, an HTML and
// JSON HTTP interface and MCP tools.
package options

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/radicalgizmos-matt/li-rad-libs/observability"
	"github.com/radicalgizmos-matt/li-rad-libs/settings"
	"github.com/radicalgizmos-matt/li-rad-libs/substitute"
)

// ErrIndex is returned by Delete for an index outside the draft.
var ErrIndex = errors.New("options: no substitution at that index")

// Service edits the persisted rule collection. Drafts live with the
// caller; only Save writes to the store.
type Service struct {
	store  *settings.Store
	engine *substitute.Engine
	logger *slog.Logger
	audit  *observability.AuditLog
}

// NewService creates a Service over store. A nil engine uses the default
// random source.
func NewService(store *settings.Store, engine *substitute.Engine, logger *slog.Logger) *Service {
	if engine == nil {
		engine = substitute.NewEngine(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, engine: engine, logger: logger}
}

// SetAudit records saves and previews in a. Call before Handler or
// RegisterMCP.
func (s *Service) SetAudit(a *observability.AuditLog) { s.audit = a }

// History returns the most recent saves, newest first. It is empty when no
// audit log is set.
func (s *Service) History(ctx context.Context, limit int) ([]observability.AuditEntry, error) {
	if s.audit == nil {
		return []observability.AuditEntry{}, nil
	}
	return s.audit.Recent(ctx, "save", limit)
}

// List returns the saved collection.
func (s *Service) List(ctx context.Context) (substitute.RuleSet, error) {
	rules, err := settings.LoadRules(ctx, s.store)
	if err != nil {
		return nil, fmt.Errorf("options: list: %w", err)
	}
	return rules, nil
}

// Add returns draft with a blank rule appended.
func (s *Service) Add(draft substitute.RuleSet) substitute.RuleSet {
	return append(draft[:len(draft):len(draft)], Blank())
}

// Delete returns draft without the rule at index i.
func (s *Service) Delete(draft substitute.RuleSet, i int) (substitute.RuleSet, error) {
	if i < 0 || i >= len(draft) {
		return draft, fmt.Errorf("%w: %d", ErrIndex, i)
	}
	out := make(substitute.RuleSet, 0, len(draft)-1)
	out = append(out, draft[:i]...)
	return append(out, draft[i+1:]...), nil
}

// Save validates rules and replaces the stored collection. A
// *ValidationError leaves the store untouched.
func (s *Service) Save(ctx context.Context, rules substitute.RuleSet) (substitute.RuleSet, error) {
	if err := Validate(rules); err != nil {
		return nil, err
	}
	rules = Normalize(rules)
	if err := settings.SaveRules(ctx, s.store, rules); err != nil {
		return nil, fmt.Errorf("options: save: %w", err)
	}
	s.logger.Info("options: substitutions saved", "count", len(rules))
	return rules, nil
}

// PreviewResult is the outcome of Preview.
type PreviewResult struct {
	Text    string `json:"text"`
	Applied int    `json:"applied"`
}

// Preview rewrites text with rules, or with the saved collection when rules
// is nil.
func (s *Service) Preview(ctx context.Context, text string, rules substitute.RuleSet) (PreviewResult, error) {
	if rules == nil {
		var err error
		if rules, err = s.List(ctx); err != nil {
			return PreviewResult{}, err
		}
	}
	out, n := s.engine.ApplyCount(text, rules)
	return PreviewResult{Text: out, Applied: n}, nil
}
