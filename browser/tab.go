package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab is a page opened for rewriting.
type Tab struct {
	Page   *rod.Page
	URL    string
	PageID string
}

// TabOptions configures NewTab.
type TabOptions struct {
	URL    string
	PageID string
	// Stealth patches the page against automation detection before it
	// loads.
	Stealth bool
	// NavigateTimeout bounds navigation and load. Default: 30s.
	NavigateTimeout time.Duration
}

// NewTab creates a tab on the manager's browser, applies stealth and
// resource blocking, navigates and waits for the load event.
func NewTab(ctx context.Context, mgr *Manager, opts TabOptions) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, errors.New("browser: no active browser")
	}
	if opts.NavigateTimeout <= 0 {
		opts.NavigateTimeout = 30 * time.Second
	}

	var (
		page *rod.Page
		err  error
	)
	if opts.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(mgr.cfg.ResourceBlocking) > 0 {
		blockResources(page, mgr.cfg.ResourceBlocking)
	}

	navCtx, cancel := context.WithTimeout(ctx, opts.NavigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(opts.URL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", opts.URL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", opts.URL, "error", err)
	}

	return &Tab{Page: page, URL: opts.URL, PageID: opts.PageID}, nil
}

// Document returns the tab's page as a dom.Document.
func (t *Tab) Document() *Document {
	return NewDocument(t.Page)
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page == nil {
		return nil
	}
	return t.Page.Close()
}
