package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/veridata/surveyguard/internal/apperr"
)

// CreateSession validates identifiers, assigns a UUID, and persists the row.
func (db *DB) CreateSession(ctx context.Context, surveyID, platformID, respondentID, userAgent, ip, fingerprint string) (*Session, error) {
	if surveyID == "" || platformID == "" || respondentID == "" {
		return nil, apperr.New(apperr.KindValidationFailed, "survey_id, platform_id, and respondent_id are required")
	}

	now := db.clock.Now()
	s := &Session{
		ID:           db.idgen.NewID(),
		SurveyID:     surveyID,
		PlatformID:   platformID,
		RespondentID: respondentID,
		Status:       StatusActive,
		UserAgent:    userAgent,
		IPAddress:    ip,
		Fingerprint:  fingerprint,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sessions (id, survey_id, platform_id, respondent_id, status, user_agent, ip_address, fingerprint, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.SurveyID, s.PlatformID, s.RespondentID, s.Status, s.UserAgent, s.IPAddress, s.Fingerprint,
		s.CreatedAt.UnixMilli(), s.UpdatedAt.UnixMilli())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "insert session", err)
	}
	return s, nil
}

// ReadSession fetches one session by ID.
func (db *DB) ReadSession(ctx context.Context, sessionID string) (*Session, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, survey_id, platform_id, respondent_id, status, user_agent, ip_address, fingerprint, created_at, updated_at
		FROM sessions WHERE id = ?
	`, sessionID)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*Session, error) {
	var s Session
	var createdMs, updatedMs int64
	err := row.Scan(&s.ID, &s.SurveyID, &s.PlatformID, &s.RespondentID, &s.Status,
		&s.UserAgent, &s.IPAddress, &s.Fingerprint, &createdMs, &updatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindSessionNotFound, "session not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "scan session", err)
	}
	s.CreatedAt = time.UnixMilli(createdMs).UTC()
	s.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return &s, nil
}

// UpdateSessionStatus moves the status forward. Backward transitions are
// rejected as validation failures.
func (db *DB) UpdateSessionStatus(ctx context.Context, sessionID, status string) error {
	rank, ok := statusRank[status]
	if !ok {
		return apperr.Newf(apperr.KindValidationFailed, "unknown status %q", status)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	cur, err := db.ReadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if rank < statusRank[cur.Status] {
		return apperr.Newf(apperr.KindValidationFailed, "status cannot move from %q back to %q", cur.Status, status)
	}

	_, err = db.conn.ExecContext(ctx, `UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
		status, db.clock.Now().UnixMilli(), sessionID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "update session status", err)
	}
	return nil
}

// ListByHierarchy lists sessions scoped to the given hierarchy slice,
// newest first, with date filtering and pagination.
func (db *DB) ListByHierarchy(ctx context.Context, f HierarchyFilter) ([]*Session, error) {
	if f.SurveyID == "" {
		return nil, apperr.New(apperr.KindValidationFailed, "survey_id is required")
	}

	where := "survey_id = ?"
	args := []interface{}{f.SurveyID}
	if f.PlatformID != "" {
		where += " AND platform_id = ?"
		args = append(args, f.PlatformID)
	}
	if f.RespondentID != "" {
		where += " AND respondent_id = ?"
		args = append(args, f.RespondentID)
	}
	if f.DateFrom != nil {
		where += " AND created_at >= ?"
		args = append(args, f.DateFrom.UnixMilli())
	}
	if f.DateTo != nil {
		where += " AND created_at <= ?"
		args = append(args, f.DateTo.UnixMilli())
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, f.Offset)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, survey_id, platform_id, respondent_id, status, user_agent, ip_address, fingerprint, created_at, updated_at
		FROM sessions
		WHERE `+where+`
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list sessions", err)
	}
	defer rows.Close()

	sessions := make([]*Session, 0)
	for rows.Next() {
		var s Session
		var createdMs, updatedMs int64
		if err := rows.Scan(&s.ID, &s.SurveyID, &s.PlatformID, &s.RespondentID, &s.Status,
			&s.UserAgent, &s.IPAddress, &s.Fingerprint, &createdMs, &updatedMs); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan session", err)
		}
		s.CreatedAt = time.UnixMilli(createdMs).UTC()
		s.UpdatedAt = time.UnixMilli(updatedMs).UTC()
		sessions = append(sessions, &s)
	}
	return sessions, rows.Err()
}

// DeleteSessionCascade removes a session and everything it owns. Cascade is
// the only deletion; there is no partial removal.
func (db *DB) DeleteSessionCascade(ctx context.Context, sessionID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "delete session", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.New(apperr.KindSessionNotFound, "session not found")
	}
	return nil
}

// CleanupOldSessions deletes sessions (cascading) older than retentionDays.
func (db *DB) CleanupOldSessions(ctx context.Context, retentionDays int) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	cutoff := db.clock.Now().AddDate(0, 0, -retentionDays).UnixMilli()
	res, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "retention cleanup", err)
	}
	return res.RowsAffected()
}
