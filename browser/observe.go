package browser

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// bindingName is the runtime binding the injected observer calls.
const bindingName = "__radlibs_mutated"

//go:embed observer.js
var observerJS string

// ObserveMutations calls fn whenever nodes are added to or removed from the
// page body, and after every load of a new document. The observer watches
// childList changes only, so text rewritten in place does not report
// back. It returns once the observer is installed; notifications stop when
// ctx is cancelled.
func ObserveMutations(ctx context.Context, page *rod.Page, fn func(), logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		return fmt.Errorf("browser: add binding: %w", err)
	}
	if err := (proto.PageEnable{}).Call(page); err != nil {
		return fmt.Errorf("browser: enable page domain: %w", err)
	}

	// Future documents get the observer before their own scripts run.
	if _, err := page.EvalOnNewDocument("(" + observerJS + ")()"); err != nil {
		return fmt.Errorf("browser: register observer: %w", err)
	}

	wait := page.Context(ctx).EachEvent(
		func(e *proto.RuntimeBindingCalled) {
			if e.Name == bindingName {
				fn()
			}
		},
		func(e *proto.PageLoadEventFired) {
			logger.Debug("browser: page loaded")
			fn()
		},
	)
	go wait()

	if _, err := page.Context(ctx).Eval(observerJS); err != nil {
		return fmt.Errorf("browser: inject observer: %w", err)
	}
	return nil
}
