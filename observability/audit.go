// Package observability keeps SQLite records of what happened: an audit
// trail of rule edits and a log of processing passes. Writes are buffered
// and flushed in batches off the caller's goroutine.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/radicalgizmos-matt/li-rad-libs/idgen"
	"github.com/radicalgizmos-matt/li-rad-libs/kit"
)

// AuditEntry is one recorded operation.
type AuditEntry struct {
	EntryID      string    `json:"entry_id"`
	Timestamp    time.Time `json:"timestamp"`
	Operation    string    `json:"operation"`
	UserID       string    `json:"user_id,omitempty"`
	Transport    string    `json:"transport"`
	RequestID    string    `json:"request_id,omitempty"`
	Parameters   string    `json:"parameters"` // JSON
	ErrorMessage string    `json:"error,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	Status       string    `json:"status"` // "success" or "error"
}

// AuditLog persists audit entries asynchronously.
type AuditLog struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
	ch     chan *AuditEntry
	stop   chan struct{}
	done   chan struct{}
}

// AuditOption configures an AuditLog.
type AuditOption func(*AuditLog)

// WithAuditIDGenerator sets the entry ID generator.
func WithAuditIDGenerator(gen idgen.Generator) AuditOption {
	return func(a *AuditLog) { a.newID = gen }
}

// WithAuditLogger sets the logger used for flush failures.
func WithAuditLogger(l *slog.Logger) AuditOption {
	return func(a *AuditLog) { a.logger = l }
}

// NewAuditLog starts the flush goroutine. The schema must already be
// applied (see Init).
func NewAuditLog(db *sql.DB, bufferSize int, opts ...AuditOption) *AuditLog {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	a := &AuditLog{
		db:     db,
		newID:  idgen.Prefixed("audit_", idgen.Default),
		logger: slog.Default(),
		ch:     make(chan *AuditEntry, bufferSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	go a.flushLoop()
	return a
}

// Log inserts entry synchronously.
func (a *AuditLog) Log(ctx context.Context, entry *AuditEntry) error {
	a.fillDefaults(entry)
	return insertAudit(ctx, a.db, entry)
}

// LogAsync queues entry. A full buffer falls back to a synchronous insert.
func (a *AuditLog) LogAsync(entry *AuditEntry) {
	a.fillDefaults(entry)
	select {
	case a.ch <- entry:
	default:
		a.logger.Warn("observability: audit buffer full, writing inline", "operation", entry.Operation)
		if err := insertAudit(context.Background(), a.db, entry); err != nil {
			a.logger.Error("observability: audit insert", "error", err)
		}
	}
}

// Recent returns the newest entries first. An empty operation matches all.
func (a *AuditLog) Recent(ctx context.Context, operation string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT entry_id, timestamp, operation, user_id, transport, request_id,
		parameters, error_message, duration_ms, status FROM audit_log`
	var args []any
	if operation != "" {
		q += ` WHERE operation = ?`
		args = append(args, operation)
	}
	q += ` ORDER BY timestamp DESC, entry_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("observability: query audit log: %w", err)
	}
	defer rows.Close()

	out := []AuditEntry{}
	for rows.Next() {
		var (
			e                     AuditEntry
			ts                    int64
			userID, reqID, errMsg sql.NullString
			duration              sql.NullInt64
		)
		if err := rows.Scan(&e.EntryID, &ts, &e.Operation, &userID, &e.Transport, &reqID,
			&e.Parameters, &errMsg, &duration, &e.Status); err != nil {
			return nil, fmt.Errorf("observability: scan audit entry: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts)
		e.UserID, e.RequestID, e.ErrorMessage = userID.String, reqID.String, errMsg.String
		e.DurationMs = duration.Int64
		out = append(out, e)
	}
	return out, rows.Err()
}

// Cleanup deletes entries older than retention.
func (a *AuditLog) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := time.Now().Add(-retention).UnixMilli()
	res, err := a.db.ExecContext(ctx, `DELETE FROM audit_log WHERE timestamp < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("observability: cleanup audit log: %w", err)
	}
	return res.RowsAffected()
}

// Close drains the buffer and stops the flush goroutine.
func (a *AuditLog) Close() error {
	close(a.stop)
	<-a.done
	return nil
}

// Middleware records every call of the wrapped endpoint with the user,
// transport and request ID found in the context. The request is stored as
// JSON parameters.
func (a *AuditLog) Middleware(operation string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			entry := &AuditEntry{
				Timestamp:  start,
				Operation:  operation,
				UserID:     kit.GetUserID(ctx),
				Transport:  kit.GetTransport(ctx),
				RequestID:  kit.GetRequestID(ctx),
				DurationMs: time.Since(start).Milliseconds(),
			}
			if req != nil {
				if b, e := json.Marshal(req); e == nil {
					entry.Parameters = string(b)
				}
			}
			if err != nil {
				entry.ErrorMessage = err.Error()
			}
			a.LogAsync(entry)
			return resp, err
		}
	}
}

func (a *AuditLog) fillDefaults(e *AuditEntry) {
	if e.EntryID == "" {
		e.EntryID = a.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Transport == "" {
		e.Transport = "http"
	}
	if e.Parameters == "" {
		e.Parameters = "{}"
	}
	if e.Status == "" {
		if e.ErrorMessage != "" {
			e.Status = "error"
		} else {
			e.Status = "success"
		}
	}
}

func (a *AuditLog) flushLoop() {
	defer close(a.done)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	batch := make([]*AuditEntry, 0, 32)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		err := insertBatch(a.db, batch, insertAuditStmt, func(e *AuditEntry) []any { return auditArgs(e) })
		if err != nil {
			a.logger.Error("observability: audit flush", "error", err, "entries", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-a.stop:
			for {
				select {
				case e := <-a.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		case e := <-a.ch:
			batch = append(batch, e)
			if len(batch) >= 32 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

const insertAuditStmt = `INSERT INTO audit_log
	(entry_id, timestamp, operation, user_id, transport, request_id,
	 parameters, error_message, duration_ms, status)
	VALUES (?,?,?,?,?,?,?,?,?,?)`

func auditArgs(e *AuditEntry) []any {
	return []any{e.EntryID, e.Timestamp.UnixMilli(), e.Operation, e.UserID, e.Transport, e.RequestID,
		e.Parameters, e.ErrorMessage, e.DurationMs, e.Status}
}

func insertAudit(ctx context.Context, db *sql.DB, e *AuditEntry) error {
	_, err := db.ExecContext(ctx, insertAuditStmt, auditArgs(e)...)
	return err
}

// insertBatch writes rows in one transaction. A failing row is skipped.
func insertBatch[T any](db *sql.DB, rows []T, stmt string, args func(T) []any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	prep, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer prep.Close()

	var failed int
	for _, r := range rows {
		if _, err := prep.ExecContext(ctx, args(r)...); err != nil {
			failed++
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d rows failed", failed, len(rows))
	}
	return nil
}
