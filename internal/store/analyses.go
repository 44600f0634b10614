package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/veridata/surveyguard/internal/apperr"
)

// GridAnalysisRow is a persisted grid-question analysis.
type GridAnalysisRow struct {
	SessionID        string    `json:"session_id"`
	SurveyID         string    `json:"survey_id"`
	PlatformID       string    `json:"platform_id"`
	RespondentID     string    `json:"respondent_id"`
	QuestionID       string    `json:"question_id"`
	CreatedAt        time.Time `json:"created_at"`
	StraightLined    bool      `json:"straight_lined"`
	Confidence       float64   `json:"straight_line_confidence"`
	Pattern          string    `json:"pattern,omitempty"`
	VarianceScore    float64   `json:"variance_score"`
	SatisficingScore float64   `json:"satisficing_score"`
	RowCount         int       `json:"row_count"`
}

// ReadGridAnalyses returns the persisted grid analyses of a session.
func (db *DB) ReadGridAnalyses(ctx context.Context, sessionID string) ([]GridAnalysisRow, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT session_id, survey_id, platform_id, respondent_id, question_id, created_at,
			straight_lined, straight_line_confidence, pattern, variance_score, satisficing_score, row_count
		FROM grid_analyses
		WHERE session_id = ?
		ORDER BY question_id
	`, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "read grid analyses", err)
	}
	defer rows.Close()

	out := make([]GridAnalysisRow, 0)
	for rows.Next() {
		var r GridAnalysisRow
		var createdMs int64
		var straight int
		if err := rows.Scan(&r.SessionID, &r.SurveyID, &r.PlatformID, &r.RespondentID, &r.QuestionID,
			&createdMs, &straight, &r.Confidence, &r.Pattern, &r.VarianceScore, &r.SatisficingScore, &r.RowCount); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan grid analysis", err)
		}
		r.CreatedAt = time.UnixMilli(createdMs).UTC()
		r.StraightLined = straight != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReadTimingAnalyses returns the persisted timing classifications of a
// session.
func (db *DB) ReadTimingAnalyses(ctx context.Context, sessionID string) ([]TimingAnalysisRow, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT session_id, question_id, response_time_ms, is_speeder, is_flatliner, anomaly_z
		FROM timing_analyses
		WHERE session_id = ?
		ORDER BY question_id
	`, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "read timing analyses", err)
	}
	defer rows.Close()

	out := make([]TimingAnalysisRow, 0)
	for rows.Next() {
		var r TimingAnalysisRow
		var speeder, flatliner int
		var z sql.NullFloat64
		if err := rows.Scan(&r.SessionID, &r.QuestionID, &r.ResponseTimeMs, &speeder, &flatliner, &z); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan timing analysis", err)
		}
		r.IsSpeeder = speeder != 0
		r.IsFlatliner = flatliner != 0
		r.AnomalyZ = floatPtr(z)
		out = append(out, r)
	}
	return out, rows.Err()
}
