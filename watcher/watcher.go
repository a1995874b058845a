// Package watcher keeps a live document rewritten: it re-runs the feed
// processor whenever the rule set changes or the document mutates.
//
// Passes run on a single goroutine and never overlap. Triggers that arrive
// while a pass is running collapse into one pending pass.
package watcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/radicalgizmos-matt/li-rad-libs/dom"
	"github.com/radicalgizmos-matt/li-rad-libs/feed"
	"github.com/radicalgizmos-matt/li-rad-libs/idgen"
	"github.com/radicalgizmos-matt/li-rad-libs/settings"
	"github.com/radicalgizmos-matt/li-rad-libs/substitute"
)

// Reason records what triggered a pass. Several reasons may be pending at
// once.
type Reason uint8

const (
	ReasonRules Reason = 1 << iota
	ReasonMutation
)

func (r Reason) String() string {
	switch r {
	case ReasonRules:
		return "rules"
	case ReasonMutation:
		return "mutation"
	case ReasonRules | ReasonMutation:
		return "rules+mutation"
	}
	return "none"
}

// Pass describes one completed processing pass.
type Pass struct {
	ID       string
	Reason   Reason
	Stats    feed.Stats
	// Chained is how many earlier passes' rewrites the deepest text this
	// pass rewrote had already been through.
	Chained  int
	Duration time.Duration
	Err      error
}

// Config configures a Watcher.
type Config struct {
	Processor *feed.Processor
	Document  dom.Document

	// MaxChained bounds how many times in a row one text may be rewritten
	// from a previous pass's output. Rule sets whose rewrites feed each
	// other are allowed one step per usable rule when that is higher. Past
	// the bound, mutations are ignored until the next rule change.
	// Default: 8.
	MaxChained int

	// Debounce delays a pass after its first trigger so bursts of mutations
	// share one pass. Zero runs passes as soon as they are triggered.
	Debounce time.Duration

	// OnPass, when set, is called after every pass from the Run goroutine.
	OnPass func(Pass)

	Logger *slog.Logger
	IDGen  idgen.Generator
}

// Stats counts watcher activity.
type Stats struct {
	Passes     int64 `json:"passes"`
	Triggers   int64 `json:"triggers"`
	Collapsed  int64 `json:"collapsed"`
	Suppressed int64 `json:"suppressed"`
	Errors     int64 `json:"errors"`
}

// Watcher owns the active rule set and schedules processing passes.
type Watcher struct {
	cfg   Config
	rules atomic.Pointer[substitute.RuleSet]

	mu      sync.Mutex
	pending Reason
	wake    chan struct{}

	passes     atomic.Int64
	triggers   atomic.Int64
	collapsed  atomic.Int64
	suppressed atomic.Int64
	errs       atomic.Int64
}

// New creates a Watcher with an empty rule set. Call Run to start it.
func New(cfg Config) *Watcher {
	if cfg.Processor == nil {
		cfg.Processor = feed.New(feed.Config{Logger: cfg.Logger})
	}
	if cfg.MaxChained <= 0 {
		cfg.MaxChained = 8
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.IDGen == nil {
		cfg.IDGen = idgen.Prefixed("pass_", idgen.Default)
	}
	w := &Watcher{cfg: cfg, wake: make(chan struct{}, 1)}
	empty := substitute.RuleSet{}
	w.rules.Store(&empty)
	return w
}

// Rules returns the active rule set. The returned slice must not be
// modified.
func (w *Watcher) Rules() substitute.RuleSet {
	return *w.rules.Load()
}

// SetRules replaces the active rule set without scheduling a pass.
func (w *Watcher) SetRules(rules substitute.RuleSet) {
	if rules == nil {
		rules = substitute.RuleSet{}
	}
	w.rules.Store(&rules)
}

// RulesChanged replaces the active rule set and schedules a pass.
func (w *Watcher) RulesChanged(rules substitute.RuleSet) {
	w.SetRules(rules)
	w.trigger(ReasonRules)
}

// Mutated schedules a pass after the document changed.
func (w *Watcher) Mutated() {
	w.trigger(ReasonMutation)
}

func (w *Watcher) trigger(r Reason) {
	w.triggers.Add(1)
	w.mu.Lock()
	if w.pending != 0 {
		w.collapsed.Add(1)
	}
	w.pending |= r
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Watcher) take() Reason {
	w.mu.Lock()
	defer w.mu.Unlock()
	r := w.pending
	w.pending = 0
	return r
}

// Stats returns a snapshot of the counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Passes:     w.passes.Load(),
		Triggers:   w.triggers.Load(),
		Collapsed:  w.collapsed.Load(),
		Suppressed: w.suppressed.Load(),
		Errors:     w.errs.Load(),
	}
}

// Run executes passes until ctx is cancelled. Only one Run may be active
// per Watcher.
func (w *Watcher) Run(ctx context.Context) error {
	if w.cfg.Document == nil {
		return errors.New("watcher: no document")
	}

	var (
		lineage = feed.NewLineage(0)
		limit   = w.cfg.MaxChained
		halted  bool
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.wake:
		}

		if w.cfg.Debounce > 0 {
			t := time.NewTimer(w.cfg.Debounce)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}

		reason := w.take()
		if reason == 0 {
			continue
		}
		if reason&ReasonRules != 0 {
			rules := w.Rules()
			w.cfg.Processor.Engine().Retain(rules)
			lineage.Reset()
			halted = false
			limit = max(w.cfg.MaxChained, rules.Usable())
		} else if halted {
			w.suppressed.Add(1)
			continue
		}

		p := w.pass(ctx, reason)
		if p.Err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.errs.Add(1)
			w.cfg.Logger.Warn("watcher: pass failed", "pass", p.ID, "reason", reason, "error", p.Err)
		}

		p.Chained = max(lineage.Observe(p.Stats)-1, 0)
		if p.Chained >= limit {
			halted = true
			w.cfg.Logger.Warn("watcher: rules keep rewriting their own output, ignoring mutations until rules change",
				"pass", p.ID, "chained", p.Chained)
		}
		if w.cfg.OnPass != nil {
			w.cfg.OnPass(p)
		}
	}
}

func (w *Watcher) pass(ctx context.Context, reason Reason) Pass {
	start := time.Now()
	p := Pass{ID: w.cfg.IDGen(), Reason: reason}
	p.Stats, p.Err = w.cfg.Processor.Process(ctx, w.cfg.Document, w.Rules())
	p.Duration = time.Since(start)
	w.passes.Add(1)
	w.cfg.Logger.Debug("watcher: pass",
		"pass", p.ID, "reason", reason, "changed", p.Stats.Changed, "duration", p.Duration)
	return p
}

// loadRules reads the persisted rule set; tests replace it to interleave
// writes with the initial load.
var loadRules = settings.LoadRules

// Watch loads the persisted rule set from store into w, then forwards
// every later change to it. A payload that is not a rule list is logged
// and treated as an empty set. A change delivered while the initial load
// is in flight wins over the loaded value. The returned function
// unsubscribes.
func (w *Watcher) Watch(ctx context.Context, store *settings.Store) (func(), error) {
	var (
		mu        sync.Mutex
		delivered bool
	)
	cancel := store.Subscribe(func(c settings.Change) {
		if !settings.IsRulesChange(c) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		delivered = true
		w.RulesChanged(w.decode(c.NewValue))
	})

	rules, err := loadRules(ctx, store)
	if err != nil {
		if !errors.Is(err, substitute.ErrNotRuleSet) {
			cancel()
			return nil, err
		}
		w.cfg.Logger.Warn("watcher: stored rules unreadable, using none", "error", err)
		rules = substitute.RuleSet{}
	}

	mu.Lock()
	defer mu.Unlock()
	if !delivered {
		w.RulesChanged(rules)
	}
	return cancel, nil
}

func (w *Watcher) decode(data []byte) substitute.RuleSet {
	rules, err := substitute.DecodeRuleSet(data)
	if err != nil {
		w.cfg.Logger.Warn("watcher: stored rules unreadable, using none", "error", err)
		return substitute.RuleSet{}
	}
	return rules
}
