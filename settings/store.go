// Package settings is the persisted key-value store holding the rule
// collection. Values are JSON documents addressed by (area, key). Writers
// bump a revision counter; readers subscribe to per-key change events that
// carry the old and new value, whether the write happened in this process
// or in another one sharing the database file.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/radicalgizmos-matt/li-rad-libs/dbopen"
)

// AreaLocal is the only storage area the content side reads.
const AreaLocal = "local"

// Schema for the settings tables.
const Schema = `
CREATE TABLE IF NOT EXISTS settings (
	area       TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (area, key)
);
CREATE TABLE IF NOT EXISTS settings_meta (
	id  INTEGER PRIMARY KEY CHECK (id = 1),
	rev INTEGER NOT NULL
);
INSERT OR IGNORE INTO settings_meta (id, rev) VALUES (1, 0);
`

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("settings: store closed")

// Change describes one key whose value differs from the last observed
// state. OldValue is nil when the key was created, NewValue is nil when it
// was removed.
type Change struct {
	Area     string
	Key      string
	OldValue []byte
	NewValue []byte
}

// Options tunes change polling.
type Options struct {
	// Interval is the revision polling frequency. Default: 500ms.
	Interval time.Duration
	// Debounce is the quiet period after a revision change before events
	// are dispatched. 0 dispatches on the next poll. Default: 0.
	Debounce time.Duration
	Logger   *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = 500 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

type entryKey struct{ area, key string }

// Store is a SQLite-backed settings store. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	opts   Options
	closed atomic.Bool

	// refreshMu serialises snapshot diffs so events reach subscribers in
	// revision order.
	refreshMu sync.Mutex
	snapshot  map[entryKey]string
	rev       atomic.Int64

	subsMu  sync.Mutex
	subs    map[int]func(Change)
	nextSub int

	checks  atomic.Int64
	changes atomic.Int64
	errs    atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Revision        int64 `json:"revision"`
	Checks          int64 `json:"checks"`
	ChangesNotified int64 `json:"changes_notified"`
	Errors          int64 `json:"errors"`
}

// Open opens (or creates) the settings database at path.
func Open(path string, opts Options) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("settings: open: %w", err)
	}
	s, err := New(context.Background(), db, opts)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened database. The schema is applied if missing
// and the current contents become the baseline for change detection.
func New(ctx context.Context, db *sql.DB, opts Options) (*Store, error) {
	opts.defaults()
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return nil, fmt.Errorf("settings: apply schema: %w", err)
	}
	s := &Store{
		db:       db,
		opts:     opts,
		snapshot: make(map[entryKey]string),
		subs:     make(map[int]func(Change)),
	}
	snap, rev, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.snapshot = snap
	s.rev.Store(rev)
	return s, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// Get returns the raw value for (area, key). ok is false when absent.
func (s *Store) Get(ctx context.Context, area, key string) (value []byte, ok bool, err error) {
	var v string
	err = s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE area = ? AND key = ?`, area, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("settings: get %s/%s: %w", area, key, err)
	}
	return []byte(v), true, nil
}

// Set writes value for (area, key) and notifies subscribers before
// returning.
func (s *Store) Set(ctx context.Context, area, key string, value []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settings (area, key, value, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (area, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			area, key, string(value), time.Now().UnixMilli()); err != nil {
			return err
		}
		return bumpRevision(ctx, tx)
	})
	if err != nil {
		return fmt.Errorf("settings: set %s/%s: %w", area, key, err)
	}
	return s.Refresh(ctx)
}

// Remove deletes (area, key). Removing an absent key is a no-op.
func (s *Store) Remove(ctx context.Context, area, key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM settings WHERE area = ? AND key = ?`, area, key)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		return bumpRevision(ctx, tx)
	})
	if err != nil {
		return fmt.Errorf("settings: remove %s/%s: %w", area, key, err)
	}
	return s.Refresh(ctx)
}

// Subscribe registers fn for every change. The returned function removes
// the subscription. fn runs on the goroutine that detected the change and
// must not write to the store.
func (s *Store) Subscribe(fn func(Change)) (cancel func()) {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

// Revision returns the last revision whose changes were dispatched.
func (s *Store) Revision() int64 { return s.rev.Load() }

// Stats returns the current counters.
func (s *Store) Stats() Stats {
	return Stats{
		Revision:        s.rev.Load(),
		Checks:          s.checks.Load(),
		ChangesNotified: s.changes.Load(),
		Errors:          s.errs.Load(),
	}
}

// Refresh reloads the table, diffs it against the last snapshot and
// dispatches one Change per modified key.
func (s *Store) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	snap, rev, err := s.load(ctx)
	if err != nil {
		s.errs.Add(1)
		return err
	}
	changes := diff(s.snapshot, snap)
	s.snapshot = snap
	s.rev.Store(rev)

	if len(changes) == 0 {
		return nil
	}

	s.subsMu.Lock()
	subs := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subsMu.Unlock()

	for _, c := range changes {
		s.changes.Add(1)
		for _, fn := range subs {
			fn(c)
		}
	}
	return nil
}

func (s *Store) load(ctx context.Context) (map[entryKey]string, int64, error) {
	var rev int64
	if err := s.db.QueryRowContext(ctx, `SELECT rev FROM settings_meta WHERE id = 1`).Scan(&rev); err != nil {
		return nil, 0, fmt.Errorf("settings: read revision: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT area, key, value FROM settings ORDER BY area, key`)
	if err != nil {
		return nil, 0, fmt.Errorf("settings: load: %w", err)
	}
	defer rows.Close()

	snap := make(map[entryKey]string)
	for rows.Next() {
		var k entryKey
		var v string
		if err := rows.Scan(&k.area, &k.key, &v); err != nil {
			return nil, 0, fmt.Errorf("settings: scan: %w", err)
		}
		snap[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("settings: load: %w", err)
	}
	return snap, rev, nil
}

func (s *Store) revision(ctx context.Context) (int64, error) {
	var rev int64
	err := s.db.QueryRowContext(ctx, `SELECT rev FROM settings_meta WHERE id = 1`).Scan(&rev)
	return rev, err
}

func bumpRevision(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `UPDATE settings_meta SET rev = rev + 1 WHERE id = 1`)
	return err
}

// diff returns changes in deterministic (area, key) order.
func diff(old, cur map[entryKey]string) []Change {
	var out []Change
	for k, nv := range cur {
		ov, had := old[k]
		if had && ov == nv {
			continue
		}
		c := Change{Area: k.area, Key: k.key, NewValue: []byte(nv)}
		if had {
			c.OldValue = []byte(ov)
		}
		out = append(out, c)
	}
	for k, ov := range old {
		if _, ok := cur[k]; !ok {
			out = append(out, Change{Area: k.area, Key: k.key, OldValue: []byte(ov)})
		}
	}
	sortChanges(out)
	return out
}
