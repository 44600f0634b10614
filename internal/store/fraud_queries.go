package store

import (
	"context"
	"time"

	"github.com/veridata/surveyguard/internal/apperr"
)

// Cross-session lookups consumed by the fraud analyzer. All of them are
// read-only and index-backed; the analyzer holds no references to other
// sessions.

// IPReuse is the session count sharing an IP address, total and last 24 h.
type IPReuse struct {
	Total int
	Today int
}

// CountSessionsByIP counts sessions sharing ip, including the session itself.
func (db *DB) CountSessionsByIP(ctx context.Context, ip string, now time.Time) (IPReuse, error) {
	var r IPReuse
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE ip_address = ?`, ip).Scan(&r.Total)
	if err != nil {
		return r, apperr.Wrap(apperr.KindFraudComponentUnavailable, "ip reuse lookup", err)
	}
	dayAgo := now.Add(-24 * time.Hour).UnixMilli()
	err = db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE ip_address = ? AND created_at >= ?`, ip, dayAgo).Scan(&r.Today)
	if err != nil {
		return r, apperr.Wrap(apperr.KindFraudComponentUnavailable, "ip reuse lookup", err)
	}
	return r, nil
}

// CountRespondentsByFingerprint counts distinct respondents sharing a device
// fingerprint.
func (db *DB) CountRespondentsByFingerprint(ctx context.Context, fingerprint string) (int, error) {
	if fingerprint == "" {
		return 0, nil
	}
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT respondent_id) FROM sessions WHERE fingerprint = ?`, fingerprint).Scan(&n)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindFraudComponentUnavailable, "fingerprint reuse lookup", err)
	}
	return n, nil
}

// PeerResponseTexts returns the concatenated response text of every other
// session in the same survey, keyed by session ID, for duplicate detection.
func (db *DB) PeerResponseTexts(ctx context.Context, surveyID, excludeSessionID string) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT session_id, GROUP_CONCAT(response_text, ' ')
		FROM survey_responses
		WHERE survey_id = ? AND session_id != ?
		GROUP BY session_id
	`, surveyID, excludeSessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindFraudComponentUnavailable, "peer response lookup", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan peer response", err)
		}
		out[id] = text
	}
	return out, rows.Err()
}

// ResponsesInLastHour counts responses attributable to the same respondent,
// IP, or fingerprint in the hour before now. The maximum of the three drives
// the velocity sub-score.
func (db *DB) ResponsesInLastHour(ctx context.Context, s *Session, now time.Time) (int, error) {
	hourAgo := now.Add(-time.Hour).UnixMilli()
	var n int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM survey_responses r
		JOIN sessions se ON se.id = r.session_id
		WHERE r.created_at >= ?
			AND (se.respondent_id = ? OR se.ip_address = ? OR (se.fingerprint != '' AND se.fingerprint = ?))
	`, hourAgo, s.RespondentID, s.IPAddress, s.Fingerprint).Scan(&n)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindFraudComponentUnavailable, "velocity lookup", err)
	}
	return n, nil
}

// RecentIPsForRespondent returns (ip, created_at) pairs for the respondent's
// sessions over the past 24 h, oldest first, for the impossible-travel check.
type IPObservation struct {
	IP        string
	CreatedAt time.Time
}

func (db *DB) RecentIPsForRespondent(ctx context.Context, respondentID string, now time.Time) ([]IPObservation, error) {
	dayAgo := now.Add(-24 * time.Hour).UnixMilli()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT ip_address, created_at
		FROM sessions
		WHERE respondent_id = ? AND created_at >= ?
		ORDER BY created_at ASC
	`, respondentID, dayAgo)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindFraudComponentUnavailable, "travel lookup", err)
	}
	defer rows.Close()

	out := make([]IPObservation, 0)
	for rows.Next() {
		var o IPObservation
		var ms int64
		if err := rows.Scan(&o.IP, &ms); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan ip observation", err)
		}
		o.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, o)
	}
	return out, rows.Err()
}
