// Command radlibs keeps LinkedIn feed pages rewritten by the saved
// substitution rules and serves the page that edits them.
//
// Usage:
//
//	radlibs -url https://www.linkedin.com/feed/   # rewrite one page
//	radlibs -config radlibs.yaml                  # pages, browser and options from YAML
//	radlibs -serve                                # options page and JSON API only
//	radlibs -mcp                                  # MCP tools over stdio
//	radlibs -preview saved.html [-markdown]       # rewrite a saved page to stdout
//	radlibs -open                                 # open the options page in the browser
//	radlibs -hash-password secret                 # bcrypt hash for options.password_hash
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/radicalgizmos-matt/li-rad-libs/action"
	"github.com/radicalgizmos-matt/li-rad-libs/browser"
	"github.com/radicalgizmos-matt/li-rad-libs/config"
	"github.com/radicalgizmos-matt/li-rad-libs/livepage"
	"github.com/radicalgizmos-matt/li-rad-libs/observability"
	"github.com/radicalgizmos-matt/li-rad-libs/options"
	"github.com/radicalgizmos-matt/li-rad-libs/preview"
	"github.com/radicalgizmos-matt/li-rad-libs/settings"
)

var version = "dev"

type flags struct {
	config, db, url  string
	serve, mcp, open bool
	preview          string
	markdown         bool
	hashPassword     string
	headless         bool
}

func main() {
	var f flags
	flag.StringVar(&f.config, "config", "", "path to radlibs.yaml")
	flag.StringVar(&f.db, "db", "", "settings database (overrides store.path)")
	flag.StringVar(&f.url, "url", "", "rewrite a single page")
	flag.BoolVar(&f.serve, "serve", false, "serve the options page")
	flag.BoolVar(&f.mcp, "mcp", false, "serve MCP tools over stdio")
	flag.StringVar(&f.preview, "preview", "", "rewrite a saved HTML file and print it")
	flag.BoolVar(&f.markdown, "markdown", false, "with -preview, print Markdown")
	flag.BoolVar(&f.open, "open", false, "open the options page in the browser")
	flag.StringVar(&f.hashPassword, "hash-password", "", "print the bcrypt hash of a password and exit")
	flag.BoolVar(&f.headless, "headless", false, "run Chrome without a window")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	// stdout carries MCP and preview output.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, f); err != nil {
		logger.Error("radlibs: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, f flags) error {
	if f.hashPassword != "" {
		h, err := options.HashPassword(f.hashPassword)
		if err != nil {
			return err
		}
		fmt.Println(h)
		return nil
	}

	cfg := config.Default()
	if f.config != "" {
		var err error
		if cfg, err = config.LoadFile(f.config); err != nil {
			return err
		}
	}
	if f.db != "" {
		cfg.Store.Path = f.db
	}
	if f.headless {
		cfg.Browser.Headless = true
	}
	if f.url != "" {
		cfg.Pages = append(cfg.Pages, config.PageConfig{ID: "url", URL: f.url})
	}

	live := len(cfg.Pages) > 0
	if !live && !f.serve && !f.mcp && !f.open && f.preview == "" {
		fmt.Fprintln(os.Stderr, "usage: radlibs -url <url> | -config <file> | -serve | -mcp | -preview <file> | -open")
		os.Exit(2)
	}

	store, err := settings.Open(cfg.Store.Path, settings.Options{
		Interval: cfg.Store.PollInterval,
		Debounce: cfg.Store.Debounce,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	if f.preview != "" {
		return runPreview(ctx, store, cfg, f.preview, f.markdown)
	}

	go store.Run(ctx)

	if err := observability.Init(ctx, store.DB()); err != nil {
		return fmt.Errorf("observability schema: %w", err)
	}
	audit := observability.NewAuditLog(store.DB(), 256, observability.WithAuditLogger(logger))
	defer audit.Close()
	passes := observability.NewPassLog(store.DB(), 64, 5*time.Second, logger)
	defer passes.Close()

	svc := options.NewService(store, nil, logger)
	svc.SetAudit(audit)

	if f.mcp {
		srv := mcp.NewServer(&mcp.Implementation{Name: "radlibs", Version: version}, nil)
		svc.RegisterMCP(srv)
		logger.Info("radlibs: MCP on stdio")
		return srv.Run(ctx, &mcp.StdioTransport{})
	}

	errc := make(chan error, 1)
	if f.serve || f.open {
		go func() { errc <- serve(ctx, logger, svc, cfg.Options) }()
	}

	var mgr *browser.Manager
	if live || f.open {
		mgr = browser.NewManager(browser.Config{
			RemoteURL:        cfg.Browser.Remote,
			Headless:         cfg.Browser.Headless,
			Bin:              cfg.Browser.Bin,
			UserDataDir:      cfg.Browser.UserDataDir,
			MemoryLimit:      cfg.Browser.MemoryLimit,
			RecycleInterval:  cfg.Browser.RecycleInterval,
			ResourceBlocking: cfg.Browser.ResourceBlocking,
			Logger:           logger,
		})
		defer mgr.Close()
	}

	if live {
		pages := make([]livepage.Page, len(cfg.Pages))
		for i, p := range cfg.Pages {
			pages[i] = livepage.Page{ID: p.ID, URL: p.URL, Selectors: p.Selectors}
		}
		host := livepage.New(livepage.Config{
			Manager:    mgr,
			Store:      store,
			Pages:      pages,
			Stealth:    cfg.Browser.Stealth,
			MaxChained: cfg.Watcher.MaxChained,
			Debounce:   cfg.Watcher.Debounce,
			OnPass:     passes.Record,
			Logger:     logger,
		})
		if err := host.Start(ctx); err != nil {
			return err
		}
		defer host.Close()
	} else if f.open {
		if _, err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("start browser: %w", err)
		}
	}

	if f.open {
		if err := action.OnClicked(ctx, mgr, cfg.Action.OptionsURL); err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		return err
	}
}

func serve(ctx context.Context, logger *slog.Logger, svc *options.Service, oc config.OptionsConfig) error {
	srv := &http.Server{
		Addr:              oc.Listen,
		Handler:           svc.Handler(options.HTTPOptions{User: oc.User, PasswordHash: oc.PasswordHash}),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("radlibs: shutdown", "error", err)
		}
	}()

	logger.Info("radlibs: options page", "addr", oc.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("options server: %w", err)
	}
	return nil
}

func runPreview(ctx context.Context, store *settings.Store, cfg *config.Config, path string, markdown bool) error {
	rules, err := settings.LoadRules(ctx, store)
	if err != nil {
		return err
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	defer file.Close()

	var selectors []string
	if len(cfg.Pages) > 0 {
		selectors = cfg.Pages[0].Selectors
	}
	res, err := preview.Rewrite(ctx, file, rules, preview.Options{Selectors: selectors, Markdown: markdown})
	if err != nil {
		return err
	}
	out := res.HTML
	if markdown {
		out = res.Markdown
	}
	_, err = fmt.Fprintln(os.Stdout, out)
	return err
}
