// Package dbopen opens SQLite databases for the settings store and the
// observability tables. Pragmas travel in the DSN so that every pooled
// connection gets them, not only the first one.
//
//	db, err := dbopen.Open("radlibs.db", dbopen.WithMkdirAll(), dbopen.WithSchema(schema))
//
// Tests use a private in-memory database:
//
//	db := dbopen.OpenMemory(t, dbopen.WithSchema(schema))
package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

const memory = ":memory:"

type options struct {
	busyTimeoutMs int
	mkdirAll      bool
	schemas       []string
}

// Option tunes Open.
type Option func(*options)

// WithBusyTimeout sets how long a connection waits on a locked database
// before failing with SQLITE_BUSY. Default: 5000ms.
func WithBusyTimeout(ms int) Option { return func(o *options) { o.busyTimeoutMs = ms } }

// WithMkdirAll creates the database's parent directory.
func WithMkdirAll() Option { return func(o *options) { o.mkdirAll = true } }

// WithSchema adds DDL applied, in order, inside one transaction.
func WithSchema(ddl ...string) Option {
	return func(o *options) { o.schemas = append(o.schemas, ddl...) }
}

// DSN builds the modernc.org/sqlite data source name for path: busy
// timeout, NORMAL sync, foreign keys, WAL for files and immediate write
// transactions.
func DSN(path string, busyTimeoutMs int) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMs))
	q.Add("_pragma", "synchronous(normal)")
	q.Add("_pragma", "foreign_keys(on)")
	if path != memory {
		q.Add("_pragma", "journal_mode(wal)")
	}
	q.Set("_txlock", "immediate")
	return path + "?" + q.Encode()
}

// Open opens the database at path and applies the schema.
func Open(path string, opts ...Option) (*sql.DB, error) {
	o := options{busyTimeoutMs: 5000}
	for _, fn := range opts {
		fn(&o)
	}

	if o.mkdirAll && path != memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", DSN(path, o.busyTimeoutMs))
	if err != nil {
		return nil, fmt.Errorf("dbopen: open %s: %w", path, err)
	}
	if path == memory {
		// Each connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: open %s: %w", path, err)
	}

	if len(o.schemas) > 0 {
		err := RunTx(context.Background(), db, func(tx *sql.Tx) error {
			for _, ddl := range o.schemas {
				if _, err := tx.Exec(ddl); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: apply schema: %w", err)
		}
	}
	return db, nil
}

// OpenMemory opens an in-memory database closed at the end of the test.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(memory, opts...)
	if err != nil {
		t.Fatalf("dbopen: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
