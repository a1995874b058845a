package settings

import (
	"cmp"
	"context"
	"slices"
	"time"
)

// Run polls the revision counter until ctx is cancelled. When another
// connection or process bumps it, and the debounce window passes without a
// further bump, the table is diffed and subscribers are notified. A failed
// refresh is retried on the next poll.
func (s *Store) Run(ctx context.Context) {
	log := s.opts.Logger

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time
	pending := int64(-1)

	log.Info("settings: watching", "interval", s.opts.Interval, "debounce", s.opts.Debounce)

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			log.Info("settings: watch stopped")
			return

		case <-ticker.C:
			s.checks.Add(1)
			cur, err := s.revision(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				s.errs.Add(1)
				log.Warn("settings: revision check failed", "error", err)
				continue
			}
			if cur == s.rev.Load() || cur == pending {
				continue
			}
			pending = cur

			if s.opts.Debounce <= 0 {
				s.fire(ctx, pending)
				pending = -1
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(s.opts.Debounce)
			debounceCh = debounceTimer.C
			log.Debug("settings: change detected, debouncing", "pending_revision", cur)

		case <-debounceCh:
			debounceCh = nil
			if pending >= 0 {
				s.fire(ctx, pending)
				pending = -1
			}
		}
	}
}

func (s *Store) fire(ctx context.Context, rev int64) {
	log := s.opts.Logger
	start := time.Now()
	if err := s.Refresh(ctx); err != nil {
		log.Error("settings: refresh failed", "error", err, "revision", rev)
		return
	}
	log.Debug("settings: refreshed", "revision", s.rev.Load(), "duration", time.Since(start))
}

func sortChanges(cs []Change) {
	slices.SortFunc(cs, func(a, b Change) int {
		if c := cmp.Compare(a.Area, b.Area); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
}
