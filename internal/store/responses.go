package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/veridata/surveyguard/internal/apperr"
)

var questionTypes = map[string]bool{
	"open_ended": true,
	"grid":       true,
	"single":     true,
	"multi":      true,
	"other":      true,
}

// CreateQuestion stores captured question text for a session.
func (db *DB) CreateQuestion(ctx context.Context, sessionID, questionText, questionType, elementID string) (*SurveyQuestion, error) {
	if questionText == "" {
		return nil, apperr.New(apperr.KindValidationFailed, "question_text is required")
	}
	if questionType == "" {
		questionType = "other"
	}
	if !questionTypes[questionType] {
		return nil, apperr.Newf(apperr.KindValidationFailed, "unknown question_type %q", questionType)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.ReadSession(ctx, sessionID); err != nil {
		return nil, err
	}

	q := &SurveyQuestion{
		ID:           db.idgen.NewID(),
		SessionID:    sessionID,
		QuestionText: questionText,
		QuestionType: questionType,
		ElementID:    elementID,
		CreatedAt:    db.clock.Now(),
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO survey_questions (id, session_id, question_text, question_type, element_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, q.ID, q.SessionID, q.QuestionText, q.QuestionType, nullable(q.ElementID), q.CreatedAt.UnixMilli())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "insert question", err)
	}
	return q, nil
}

// CreateResponse stores one answer, denormalizing the session hierarchy.
func (db *DB) CreateResponse(ctx context.Context, sessionID, questionID, responseText string, responseTimeMs int64) (*SurveyResponse, error) {
	if responseTimeMs < 0 {
		return nil, apperr.New(apperr.KindValidationFailed, "response_time_ms must be >= 0")
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	s, err := db.ReadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	r := &SurveyResponse{
		ID:             db.idgen.NewID(),
		SessionID:      sessionID,
		QuestionID:     questionID,
		ResponseText:   responseText,
		ResponseTimeMs: responseTimeMs,
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO survey_responses (id, session_id, question_id, response_text, response_time_ms,
			survey_id, platform_id, respondent_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.SessionID, r.QuestionID, r.ResponseText, r.ResponseTimeMs,
		s.SurveyID, s.PlatformID, s.RespondentID, db.clock.Now().UnixMilli())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "insert response", err)
	}
	return r, nil
}

// ReadResponses returns a session's responses in insertion order.
func (db *DB) ReadResponses(ctx context.Context, sessionID string) ([]SurveyResponse, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, session_id, question_id, response_text, response_time_ms, quality_score, is_flagged, flag_reasons
		FROM survey_responses
		WHERE session_id = ?
		ORDER BY rowid ASC
	`, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "read responses", err)
	}
	defer rows.Close()

	out := make([]SurveyResponse, 0)
	for rows.Next() {
		var r SurveyResponse
		var quality sql.NullFloat64
		var flagged int
		var reasons string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.QuestionID, &r.ResponseText, &r.ResponseTimeMs,
			&quality, &flagged, &reasons); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan response", err)
		}
		if quality.Valid {
			v := quality.Float64
			r.QualityScore = &v
		}
		r.IsFlagged = flagged != 0
		json.Unmarshal([]byte(reasons), &r.FlagReasons)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReadQuestion fetches captured question text by ID.
func (db *DB) ReadQuestion(ctx context.Context, questionID string) (*SurveyQuestion, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, session_id, question_text, question_type, COALESCE(element_id, ''), created_at
		FROM survey_questions WHERE id = ?
	`, questionID)
	var q SurveyQuestion
	var ms int64
	err := row.Scan(&q.ID, &q.SessionID, &q.QuestionText, &q.QuestionType, &q.ElementID, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindHierarchyNotFound, "question not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "scan question", err)
	}
	q.CreatedAt = time.UnixMilli(ms).UTC()
	return &q, nil
}

// UpdateResponseQuality writes the classifier's verdict back onto a response.
func (db *DB) UpdateResponseQuality(ctx context.Context, responseID string, quality *float64, flagged bool, reasons []string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if reasons == nil {
		reasons = []string{}
	}
	encoded, _ := json.Marshal(reasons)

	var q interface{}
	if quality != nil {
		q = *quality
	}
	res, err := db.conn.ExecContext(ctx, `
		UPDATE survey_responses SET quality_score = ?, is_flagged = ?, flag_reasons = ? WHERE id = ?
	`, q, flagged, string(encoded), responseID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "update response quality", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindHierarchyNotFound, "response not found")
	}
	return nil
}

// WriteGridRows replaces the grid rows for one question of a session.
func (db *DB) WriteGridRows(ctx context.Context, rowsIn []GridResponseRow) error {
	if len(rowsIn) == 0 {
		return nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.ReadSession(ctx, rowsIn[0].SessionID); err != nil {
		return err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "begin grid write", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO grid_responses (session_id, question_id, row_id, value, response_time_ms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id, question_id, row_id) DO UPDATE SET value = excluded.value, response_time_ms = excluded.response_time_ms
	`)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "prepare grid write", err)
	}
	defer stmt.Close()

	for _, r := range rowsIn {
		if r.RowID == "" {
			return apperr.New(apperr.KindValidationFailed, "grid row missing row_id")
		}
		if _, err := stmt.ExecContext(ctx, r.SessionID, r.QuestionID, r.RowID, r.Value, r.ResponseTimeMs); err != nil {
			return apperr.Wrap(apperr.KindInternal, "insert grid row", err)
		}
	}
	return tx.Commit()
}

// ReadGridRows returns a session's grid rows grouped by question, in row order.
func (db *DB) ReadGridRows(ctx context.Context, sessionID string) (map[string][]GridResponseRow, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT session_id, question_id, row_id, value, response_time_ms
		FROM grid_responses
		WHERE session_id = ?
		ORDER BY question_id, rowid ASC
	`, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "read grid rows", err)
	}
	defer rows.Close()

	out := make(map[string][]GridResponseRow)
	for rows.Next() {
		var r GridResponseRow
		if err := rows.Scan(&r.SessionID, &r.QuestionID, &r.RowID, &r.Value, &r.ResponseTimeMs); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan grid row", err)
		}
		out[r.QuestionID] = append(out[r.QuestionID], r)
	}
	return out, rows.Err()
}

// WriteTimingAnalysis upserts a per-response timing classification.
func (db *DB) WriteTimingAnalysis(ctx context.Context, s *Session, t TimingAnalysisRow) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var z interface{}
	if t.AnomalyZ != nil {
		z = *t.AnomalyZ
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO timing_analyses (session_id, question_id, response_time_ms, is_speeder, is_flatliner, anomaly_z,
			survey_id, platform_id, respondent_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, question_id) DO UPDATE SET
			response_time_ms = excluded.response_time_ms,
			is_speeder = excluded.is_speeder,
			is_flatliner = excluded.is_flatliner,
			anomaly_z = excluded.anomaly_z
	`, t.SessionID, t.QuestionID, t.ResponseTimeMs, t.IsSpeeder, t.IsFlatliner, z,
		s.SurveyID, s.PlatformID, s.RespondentID, db.clock.Now().UnixMilli())
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "write timing analysis", err)
	}
	return nil
}

// PriorResponseTimes returns response times (ms) recorded for the same
// question text across other sessions of the same survey, used for z-score
// anomaly detection. Matching is by question element/text identity carried
// in question_id by the capture layer.
func (db *DB) PriorResponseTimes(ctx context.Context, surveyID, questionID, excludeSessionID string) ([]float64, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT response_time_ms
		FROM survey_responses
		WHERE survey_id = ? AND question_id = ? AND session_id != ?
		ORDER BY created_at ASC
	`, surveyID, questionID, excludeSessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindFraudComponentUnavailable, "prior response times", err)
	}
	defer rows.Close()

	out := make([]float64, 0)
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan response time", err)
		}
		out = append(out, float64(ms))
	}
	return out, rows.Err()
}

// WriteGridAnalysis persists the outcome of one grid-question analysis.
func (db *DB) WriteGridAnalysis(ctx context.Context, s *Session, questionID string, straightLined bool,
	confidence float64, pattern string, varianceScore, satisficingScore float64, rowCount int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO grid_analyses (session_id, survey_id, platform_id, respondent_id, question_id, created_at,
			straight_lined, straight_line_confidence, pattern, variance_score, satisficing_score, row_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, question_id) DO UPDATE SET
			straight_lined = excluded.straight_lined,
			straight_line_confidence = excluded.straight_line_confidence,
			pattern = excluded.pattern,
			variance_score = excluded.variance_score,
			satisficing_score = excluded.satisficing_score,
			row_count = excluded.row_count
	`, s.ID, s.SurveyID, s.PlatformID, s.RespondentID, questionID, db.clock.Now().UnixMilli(),
		straightLined, confidence, pattern, varianceScore, satisficingScore, rowCount)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "write grid analysis", err)
	}
	return nil
}
