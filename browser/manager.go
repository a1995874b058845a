// Package browser hosts the feed rewriter on live pages: it manages the
// Chrome lifecycle through Rod, opens stealth tabs, exposes a page as a
// dom.Document over the DevTools protocol and reports page mutations.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// ErrClosed is returned once the manager has been closed.
var ErrClosed = errors.New("browser: manager is closed")

// Config describes the Chrome the manager runs or attaches to.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of a running Chrome. Empty
	// launches a local Chrome.
	RemoteURL string

	// Headless runs the local Chrome without a window.
	Headless bool

	// Bin overrides the Chrome binary. Empty lets the launcher find or
	// download one.
	Bin string

	// UserDataDir keeps the profile (and the feed's login cookies) across
	// runs.
	UserDataDir string

	// MemoryLimit in bytes of JS heap before Chrome is recycled. Default: 1GB.
	MemoryLimit int64

	// RecycleInterval bounds how long one Chrome process lives. Default: 4h.
	RecycleInterval time.Duration

	// ResourceBlocking names the resource types tabs refuse to load, e.g.
	// "image" or "font".
	ResourceBlocking []string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// RecycleCallback is called around a Chrome restart so page hosts can stop
// their watchers and reopen their tabs.
type RecycleCallback struct {
	BeforeRecycle func()
	AfterRecycle  func(b *rod.Browser)
}

// Manager owns one Chrome process, or one connection to a remote Chrome.
type Manager struct {
	cfg Config

	recycleMu sync.Mutex

	mu          sync.RWMutex
	browser     *rod.Browser
	lnch        *launcher.Launcher
	launchedAt  time.Time
	closed      bool
	cb          *RecycleCallback
	stopMonitor context.CancelFunc
}

// NewManager creates a Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// SetRecycleCallback replaces the recycle callbacks.
func (m *Manager) SetRecycleCallback(cb *RecycleCallback) {
	m.mu.Lock()
	m.cb = cb
	m.mu.Unlock()
}

// Start launches Chrome, or connects to the remote one, and starts the
// recycle monitor. Calling Start on a running manager returns the current
// browser.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if m.browser != nil {
		return m.browser, nil
	}
	if err := m.connectLocked(); err != nil {
		return nil, err
	}

	monCtx, cancel := context.WithCancel(ctx)
	m.stopMonitor = cancel
	go m.monitor(monCtx)
	return m.browser, nil
}

// Browser returns the current browser, nil before Start and after Close.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// OpenTab opens url in a new tab and leaves it to the user.
func (m *Manager) OpenTab(ctx context.Context, url string) error {
	b := m.Browser()
	if b == nil {
		return errors.New("browser: not started")
	}
	if _, err := b.Context(ctx).Page(proto.TargetCreateTarget{URL: url}); err != nil {
		return fmt.Errorf("browser: open tab %s: %w", url, err)
	}
	return nil
}

// Recycle replaces the Chrome process, calling the recycle callbacks
// around the restart. The callbacks run without the manager lock held.
func (m *Manager) Recycle(ctx context.Context) error {
	m.recycleMu.Lock()
	defer m.recycleMu.Unlock()

	m.mu.RLock()
	closed, cb, launchedAt := m.closed, m.cb, m.launchedAt
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	m.cfg.Logger.Info("browser: recycling", "uptime", time.Since(launchedAt).Round(time.Second))
	if cb != nil && cb.BeforeRecycle != nil {
		cb.BeforeRecycle()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.disconnectLocked()
	err := m.connectLocked()
	b := m.browser
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("browser: recycle: %w", err)
	}

	if cb != nil && cb.AfterRecycle != nil {
		cb.AfterRecycle(b)
	}
	return nil
}

// Close stops the monitor and shuts Chrome down. A remote browser is only
// disconnected. Close is idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.stopMonitor != nil {
		m.stopMonitor()
	}
	m.disconnectLocked()
	return nil
}

func (m *Manager) connectLocked() error {
	controlURL := m.cfg.RemoteURL
	if controlURL == "" {
		l := launcher.New().
			Headless(m.cfg.Headless).
			Set("disable-blink-features", "AutomationControlled").
			Set("mute-audio")
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}
		if m.cfg.UserDataDir != "" {
			l = l.UserDataDir(m.cfg.UserDataDir)
		}
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("browser: launch chrome: %w", err)
		}
		controlURL, m.lnch = u, l
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		if m.lnch != nil {
			m.lnch.Cleanup()
			m.lnch = nil
		}
		return fmt.Errorf("browser: connect %s: %w", controlURL, err)
	}
	m.browser, m.launchedAt = b, time.Now()
	m.cfg.Logger.Info("browser: connected", "remote", m.cfg.RemoteURL != "", "headless", m.cfg.Headless)
	return nil
}

func (m *Manager) disconnectLocked() {
	if m.browser != nil {
		if m.cfg.RemoteURL == "" {
			m.browser.Close()
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
}

// monitor recycles Chrome when it outlives RecycleInterval or its pages'
// JS heaps together exceed MemoryLimit.
func (m *Manager) monitor(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.RLock()
		b, launchedAt := m.browser, m.launchedAt
		m.mu.RUnlock()
		if b == nil {
			continue
		}

		reason := ""
		if age := time.Since(launchedAt); age > m.cfg.RecycleInterval {
			reason = "age"
		} else if used, err := heapUsage(b); err != nil {
			m.cfg.Logger.Debug("browser: heap check failed", "error", err)
		} else if used > m.cfg.MemoryLimit {
			reason = "memory"
			m.cfg.Logger.Info("browser: heap over limit", "used", used, "limit", m.cfg.MemoryLimit)
		}
		if reason == "" {
			continue
		}
		if err := m.Recycle(ctx); err != nil && !errors.Is(err, ErrClosed) {
			m.cfg.Logger.Error("browser: recycle failed", "reason", reason, "error", err)
		}
	}
}

// heapUsage sums the used JS heap of every open page.
func heapUsage(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil {
		return 0, err
	}
	var total float64
	for _, p := range pages {
		res, err := proto.RuntimeGetHeapUsage{}.Call(p)
		if err != nil {
			continue
		}
		total += res.UsedSize
	}
	return int64(total), nil
}
