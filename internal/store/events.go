package store

import (
	"context"
	"time"

	"github.com/veridata/surveyguard/internal/apperr"
	"github.com/veridata/surveyguard/internal/event"
)

// AppendEvents appends a batch of validated events in a single transaction.
// The event-count cap is enforced on the final count: a batch that would
// cross the cap is rejected whole. An empty batch is a no-op.
func (db *DB) AppendEvents(ctx context.Context, sessionID string, events []event.Event, capLimit int) (accepted, total int, err error) {
	if len(events) == 0 {
		n, err := db.eventCount(ctx, sessionID)
		return 0, n, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.ReadSession(ctx, sessionID); err != nil {
		return 0, 0, err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, apperr.Wrap(apperr.KindInternal, "begin append", err)
	}
	defer tx.Rollback()

	var current int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE session_id = ?`, sessionID).Scan(&current); err != nil {
		return 0, 0, apperr.Wrap(apperr.KindInternal, "count events", err)
	}
	if current+len(events) > capLimit {
		return 0, current, apperr.Newf(apperr.KindCapExceeded,
			"appending %d events would exceed the cap of %d (current %d)", len(events), capLimit, current)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (id, session_id, event_type, timestamp, element_id, element_type, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, 0, apperr.Wrap(apperr.KindInternal, "prepare append", err)
	}
	defer stmt.Close()

	for i := range events {
		e := &events[i]
		id := e.ID
		if id == "" {
			id = db.idgen.NewID()
		}
		payload := "{}"
		if len(e.Payload) > 0 {
			payload = string(e.Payload)
		}
		if _, err := stmt.ExecContext(ctx, id, sessionID, string(e.Type), e.Timestamp.UTC().UnixMilli(),
			nullable(e.ElementID), nullable(e.ElementType), payload); err != nil {
			return 0, 0, apperr.Wrap(apperr.KindInternal, "insert event", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`,
		db.clock.Now().UnixMilli(), sessionID); err != nil {
		return 0, 0, apperr.Wrap(apperr.KindInternal, "touch session", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, apperr.Wrap(apperr.KindInternal, "commit append", err)
	}
	return len(events), current + len(events), nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// EventFilter narrows a ReadEvents call.
type EventFilter struct {
	Types []string
	From  *time.Time
	To    *time.Time
}

// ReadEvents returns a session's events ordered by timestamp ascending.
// Ties are broken by insertion order so the ordering is stable.
func (db *DB) ReadEvents(ctx context.Context, sessionID string, f EventFilter) ([]EventRow, error) {
	where := "session_id = ?"
	args := []interface{}{sessionID}

	if len(f.Types) > 0 {
		where += " AND event_type IN ("
		for i, t := range f.Types {
			if i > 0 {
				where += ","
			}
			where += "?"
			args = append(args, t)
		}
		where += ")"
	}
	if f.From != nil {
		where += " AND timestamp >= ?"
		args = append(args, f.From.UnixMilli())
	}
	if f.To != nil {
		where += " AND timestamp <= ?"
		args = append(args, f.To.UnixMilli())
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, session_id, event_type, timestamp, COALESCE(element_id, ''), COALESCE(element_type, ''), payload
		FROM events
		WHERE `+where+`
		ORDER BY timestamp ASC, rowid ASC
	`, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "read events", err)
	}
	defer rows.Close()

	out := make([]EventRow, 0)
	for rows.Next() {
		var r EventRow
		var ms int64
		var payload string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.EventType, &ms, &r.ElementID, &r.ElementType, &payload); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan event", err)
		}
		r.Timestamp = time.UnixMilli(ms).UTC()
		r.Payload = []byte(payload)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) eventCount(ctx context.Context, sessionID string) (int, error) {
	if _, err := db.ReadSession(ctx, sessionID); err != nil {
		return 0, err
	}
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "count events", err)
	}
	return n, nil
}
