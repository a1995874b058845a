// Package action handles a click on the toolbar button: it brings up the
// options page.
package action

import (
	"context"
	"errors"
	"fmt"
)

// TabOpener opens a URL in a new tab.
type TabOpener interface {
	OpenTab(ctx context.Context, url string) error
}

// OptionsOpener is implemented by hosts with a dedicated way to show the
// options page.
type OptionsOpener interface {
	OpenOptionsPage(ctx context.Context) error
}

// OnClicked opens the options page through host. Hosts implementing
// OptionsOpener are asked directly; others get a new tab on fallbackURL.
func OnClicked(ctx context.Context, host TabOpener, fallbackURL string) error {
	if o, ok := host.(OptionsOpener); ok {
		if err := o.OpenOptionsPage(ctx); err != nil {
			return fmt.Errorf("action: open options page: %w", err)
		}
		return nil
	}
	if fallbackURL == "" {
		return errors.New("action: no options page URL")
	}
	if err := host.OpenTab(ctx, fallbackURL); err != nil {
		return fmt.Errorf("action: %w", err)
	}
	return nil
}
