package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/radicalgizmos-matt/li-rad-libs/watcher"
)

// PassRecord is one stored processing pass.
type PassRecord struct {
	PassID     string    `json:"pass_id"`
	PageID     string    `json:"page_id"`
	Timestamp  time.Time `json:"timestamp"`
	Reason     string    `json:"reason"`
	Roots      int       `json:"roots"`
	Nodes      int       `json:"nodes"`
	Changed    int       `json:"changed"`
	Chained    int       `json:"chained"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// PassLog buffers pass records and flushes them to SQLite in batches.
type PassLog struct {
	db            *sql.DB
	bufferSize    int
	flushInterval time.Duration
	logger        *slog.Logger

	mu     sync.Mutex
	buffer []PassRecord

	stop chan struct{}
	done chan struct{}
}

// NewPassLog starts the flush goroutine. Zero values default to 64
// records and 5s.
func NewPassLog(db *sql.DB, bufferSize int, flushInterval time.Duration, logger *slog.Logger) *PassLog {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	pl := &PassLog{
		db:            db,
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		logger:        logger,
		buffer:        make([]PassRecord, 0, bufferSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go pl.flushLoop()
	return pl
}

// Record queues pass p of page pageID. Passes that touched nothing and did
// not fail are not kept.
func (pl *PassLog) Record(pageID string, p watcher.Pass) {
	if p.Stats.Changed == 0 && p.Err == nil {
		return
	}
	rec := PassRecord{
		PassID:     p.ID,
		PageID:     pageID,
		Timestamp:  time.Now(),
		Reason:     p.Reason.String(),
		Roots:      p.Stats.Roots,
		Nodes:      p.Stats.Nodes,
		Changed:    p.Stats.Changed,
		Chained:    p.Chained,
		DurationMs: p.Duration.Milliseconds(),
	}
	if p.Err != nil {
		rec.Error = p.Err.Error()
	}

	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.buffer = append(pl.buffer, rec)
	if len(pl.buffer) >= pl.bufferSize {
		pl.flushLocked()
	}
}

// Recent returns the newest passes first. An empty pageID matches every
// page.
func (pl *PassLog) Recent(ctx context.Context, pageID string, limit int) ([]PassRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT pass_id, page_id, timestamp, reason, roots, nodes, changed, chained, duration_ms, error
		FROM pass_log`
	var args []any
	if pageID != "" {
		q += ` WHERE page_id = ?`
		args = append(args, pageID)
	}
	q += ` ORDER BY timestamp DESC, pass_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := pl.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("observability: query pass log: %w", err)
	}
	defer rows.Close()

	out := []PassRecord{}
	for rows.Next() {
		var (
			r      PassRecord
			ts     int64
			errMsg sql.NullString
		)
		if err := rows.Scan(&r.PassID, &r.PageID, &ts, &r.Reason, &r.Roots, &r.Nodes,
			&r.Changed, &r.Chained, &r.DurationMs, &errMsg); err != nil {
			return nil, fmt.Errorf("observability: scan pass: %w", err)
		}
		r.Timestamp = time.UnixMilli(ts)
		r.Error = errMsg.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Cleanup deletes passes older than retention.
func (pl *PassLog) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := time.Now().Add(-retention).UnixMilli()
	res, err := pl.db.ExecContext(ctx, `DELETE FROM pass_log WHERE timestamp < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("observability: cleanup pass log: %w", err)
	}
	return res.RowsAffected()
}

// Close flushes what is buffered and stops the flush goroutine.
func (pl *PassLog) Close() error {
	close(pl.stop)
	<-pl.done
	return nil
}

func (pl *PassLog) flushLoop() {
	defer close(pl.done)
	ticker := time.NewTicker(pl.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pl.stop:
			pl.mu.Lock()
			pl.flushLocked()
			pl.mu.Unlock()
			return
		case <-ticker.C:
			pl.mu.Lock()
			pl.flushLocked()
			pl.mu.Unlock()
		}
	}
}

func (pl *PassLog) flushLocked() {
	if len(pl.buffer) == 0 {
		return
	}
	err := insertBatch(pl.db, pl.buffer, `INSERT OR IGNORE INTO pass_log
		(pass_id, page_id, timestamp, reason, roots, nodes, changed, chained, duration_ms, error)
		VALUES (?,?,?,?,?,?,?,?,?,?)`, func(r PassRecord) []any {
		return []any{r.PassID, r.PageID, r.Timestamp.UnixMilli(), r.Reason, r.Roots, r.Nodes,
			r.Changed, r.Chained, r.DurationMs, r.Error}
	})
	if err != nil {
		pl.logger.Error("observability: pass flush", "error", err, "records", len(pl.buffer))
	}
	pl.buffer = pl.buffer[:0]
}
