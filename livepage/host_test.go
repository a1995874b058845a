package livepage

import (
	"context"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/radicalgizmos-matt/li-rad-libs/browser"
	"github.com/radicalgizmos-matt/li-rad-libs/dbopen"
	"github.com/radicalgizmos-matt/li-rad-libs/settings"
)

func TestStart_RequiresManagerAndStore(t *testing.T) {
	if err := New(Config{}).Start(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpen_WithoutBrowser(t *testing.T) {
	ctx := context.Background()
	store, err := settings.New(ctx, dbopen.OpenMemory(t), settings.Options{})
	if err != nil {
		t.Fatal(err)
	}
	h := New(Config{Manager: browser.NewManager(browser.Config{}), Store: store})

	if err := h.Open(ctx, Page{ID: "feed", URL: "https://www.linkedin.com/feed/"}); err == nil {
		t.Fatal("expected error before the browser starts")
	}
	if ids := h.Pages(); len(ids) != 0 {
		t.Fatalf("pages = %v", ids)
	}
	if st := h.Stats(); len(st) != 0 {
		t.Fatalf("stats = %v", st)
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
}
