// Package livepage keeps feed pages in a managed browser rewritten: one tab,
// one mutation observer and one watcher per page, all following the rule
// set in the settings store and surviving browser recycles.
package livepage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/radicalgizmos-matt/li-rad-libs/browser"
	"github.com/radicalgizmos-matt/li-rad-libs/feed"
	"github.com/radicalgizmos-matt/li-rad-libs/settings"
	"github.com/radicalgizmos-matt/li-rad-libs/substitute"
	"github.com/radicalgizmos-matt/li-rad-libs/watcher"
)

// Page is one page to keep rewritten.
type Page struct {
	ID        string
	URL       string
	Selectors []string
}

// Config configures a Host.
type Config struct {
	Manager *browser.Manager
	Store   *settings.Store
	Pages   []Page

	// Stealth opens tabs with automation detection patched out.
	Stealth bool

	MaxChained int
	Debounce   time.Duration
	Engine     *substitute.Engine

	// OnPass, when set, sees every pass of every page.
	OnPass func(pageID string, p watcher.Pass)
	Logger *slog.Logger
}

// Host runs the pages.
type Host struct {
	cfg   Config
	mu    sync.Mutex
	runs  map[string]*pageRun
	ctx   context.Context
	pages map[string]Page
}

type pageRun struct {
	page    Page
	tab     *browser.Tab
	watcher *watcher.Watcher
	unwatch func()
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a Host. Call Start to launch the browser.
func New(cfg Config) *Host {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Engine == nil {
		cfg.Engine = substitute.NewEngine(nil)
	}
	return &Host{
		cfg:   cfg,
		runs:  make(map[string]*pageRun),
		pages: make(map[string]Page),
		ctx:   context.Background(),
	}
}

// Start launches the browser and opens every configured page. A page that
// fails to open is logged and skipped.
func (h *Host) Start(ctx context.Context) error {
	if h.cfg.Manager == nil || h.cfg.Store == nil {
		return errors.New("livepage: manager and store are required")
	}
	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()

	if _, err := h.cfg.Manager.Start(ctx); err != nil {
		return fmt.Errorf("livepage: start browser: %w", err)
	}
	h.cfg.Manager.SetRecycleCallback(&browser.RecycleCallback{
		BeforeRecycle: h.stopAll,
		AfterRecycle:  func(*rod.Browser) { go h.reopenAll() },
	})

	for _, p := range h.cfg.Pages {
		if err := h.Open(ctx, p); err != nil {
			h.cfg.Logger.Error("livepage: open page failed", "url", p.URL, "error", err)
		}
	}
	return nil
}

// Open starts rewriting one page. Opening an ID that is already running
// replaces it.
func (h *Host) Open(ctx context.Context, p Page) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.runs[p.ID]; ok {
		old.stop()
		delete(h.runs, p.ID)
	}
	run, err := h.openLocked(ctx, p)
	if err != nil {
		return err
	}
	h.runs[p.ID] = run
	h.pages[p.ID] = p
	return nil
}

func (h *Host) openLocked(ctx context.Context, p Page) (*pageRun, error) {
	log := h.cfg.Logger.With("page", p.ID)

	tab, err := browser.NewTab(ctx, h.cfg.Manager, browser.TabOptions{URL: p.URL, PageID: p.ID, Stealth: h.cfg.Stealth})
	if err != nil {
		return nil, fmt.Errorf("livepage: open %s: %w", p.URL, err)
	}

	w := watcher.New(watcher.Config{
		Processor:  feed.New(feed.Config{Selectors: p.Selectors, Engine: h.cfg.Engine, Logger: log}),
		Document:   tab.Document(),
		MaxChained: h.cfg.MaxChained,
		Debounce:   h.cfg.Debounce,
		Logger:     log,
		OnPass: func(ps watcher.Pass) {
			if ps.Stats.Changed > 0 {
				log.Info("livepage: rewrote feed text", "pass", ps.ID, "reason", ps.Reason, "changed", ps.Stats.Changed)
			}
			if h.cfg.OnPass != nil {
				h.cfg.OnPass(p.ID, ps)
			}
		},
	})

	runCtx, cancel := context.WithCancel(ctx)
	run := &pageRun{page: p, tab: tab, watcher: w, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(run.done)
		if err := w.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("livepage: watcher stopped", "error", err)
		}
	}()

	if err := browser.ObserveMutations(runCtx, tab.Page, w.Mutated, log); err != nil {
		run.stop()
		return nil, fmt.Errorf("livepage: observe %s: %w", p.URL, err)
	}
	unwatch, err := w.Watch(runCtx, h.cfg.Store)
	if err != nil {
		run.stop()
		return nil, fmt.Errorf("livepage: load rules: %w", err)
	}
	run.unwatch = unwatch

	log.Info("livepage: rewriting page", "url", p.URL)
	return run, nil
}

func (r *pageRun) stop() {
	if r.unwatch != nil {
		r.unwatch()
	}
	r.cancel()
	<-r.done
	r.tab.Close()
}

// Pages returns the IDs of the running pages, sorted.
func (h *Host) Pages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Sorted(maps.Keys(h.runs))
}

// Stats returns the watcher counters per page ID.
func (h *Host) Stats() map[string]watcher.Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]watcher.Stats, len(h.runs))
	for id, r := range h.runs {
		out[id] = r.watcher.Stats()
	}
	return out
}

// Close stops every page and the browser.
func (h *Host) Close() error {
	h.stopAll()
	if h.cfg.Manager == nil {
		return nil
	}
	return h.cfg.Manager.Close()
}

func (h *Host) stopAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, r := range h.runs {
		r.stop()
		delete(h.runs, id)
	}
}

func (h *Host) reopenAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.pages {
		run, err := h.openLocked(h.ctx, p)
		if err != nil {
			h.cfg.Logger.Error("livepage: reopen after recycle failed", "url", p.URL, "error", err)
			continue
		}
		h.runs[p.ID] = run
	}
}
