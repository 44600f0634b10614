package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/veridata/surveyguard/internal/apperr"
)

// WriteDetectionResult upserts keyed by (session_id, created_at) so a
// duplicate write of the same analysis is idempotent.
func (db *DB) WriteDetectionResult(ctx context.Context, r *DetectionResult) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	scores, _ := json.Marshal(r.MethodScores)
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO detection_results (session_id, survey_id, platform_id, respondent_id, created_at,
			is_bot, confidence_score, risk_level, method_scores, processing_time_ms, event_count,
			composite_score, text_quality_score, fraud_score, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, created_at) DO UPDATE SET
			is_bot = excluded.is_bot,
			confidence_score = excluded.confidence_score,
			risk_level = excluded.risk_level,
			method_scores = excluded.method_scores,
			processing_time_ms = excluded.processing_time_ms,
			event_count = excluded.event_count,
			composite_score = excluded.composite_score,
			text_quality_score = excluded.text_quality_score,
			fraud_score = excluded.fraud_score,
			summary = excluded.summary
	`, r.SessionID, r.SurveyID, r.PlatformID, r.RespondentID, r.CreatedAt.UnixMilli(),
		r.IsBot, r.ConfidenceScore, r.RiskLevel, string(scores), r.ProcessingTimeMs, r.EventCount,
		nullFloat(r.CompositeScore), nullFloat(r.TextQualityScore), nullFloat(r.FraudScore), r.Summary)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "write detection result", err)
	}
	return nil
}

// LatestDetectionResult returns the most recent result for a session.
func (db *DB) LatestDetectionResult(ctx context.Context, sessionID string) (*DetectionResult, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT session_id, survey_id, platform_id, respondent_id, created_at, is_bot, confidence_score,
			risk_level, method_scores, processing_time_ms, event_count, composite_score, text_quality_score,
			fraud_score, summary
		FROM detection_results
		WHERE session_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, sessionID)

	var r DetectionResult
	var createdMs int64
	var isBot int
	var scores string
	var composite, textQuality, fraudScore sql.NullFloat64
	err := row.Scan(&r.SessionID, &r.SurveyID, &r.PlatformID, &r.RespondentID, &createdMs, &isBot,
		&r.ConfidenceScore, &r.RiskLevel, &scores, &r.ProcessingTimeMs, &r.EventCount,
		&composite, &textQuality, &fraudScore, &r.Summary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindHierarchyNotFound, "no detection result for session")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "scan detection result", err)
	}
	r.CreatedAt = time.UnixMilli(createdMs).UTC()
	r.IsBot = isBot != 0
	json.Unmarshal([]byte(scores), &r.MethodScores)
	r.CompositeScore = floatPtr(composite)
	r.TextQualityScore = floatPtr(textQuality)
	r.FraudScore = floatPtr(fraudScore)
	return &r, nil
}

// WriteFraudIndicator upserts keyed by (session_id, created_at).
func (db *DB) WriteFraudIndicator(ctx context.Context, fi *FraudIndicator) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	reasons, _ := json.Marshal(fi.FlagReasons)
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO fraud_indicators (session_id, survey_id, platform_id, respondent_id, created_at,
			overall_fraud_score, is_duplicate, ip_score, device_score, duplicate_score, geo_score,
			velocity_score, flag_reasons)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, created_at) DO UPDATE SET
			overall_fraud_score = excluded.overall_fraud_score,
			is_duplicate = excluded.is_duplicate,
			ip_score = excluded.ip_score,
			device_score = excluded.device_score,
			duplicate_score = excluded.duplicate_score,
			geo_score = excluded.geo_score,
			velocity_score = excluded.velocity_score,
			flag_reasons = excluded.flag_reasons
	`, fi.SessionID, fi.SurveyID, fi.PlatformID, fi.RespondentID, fi.CreatedAt.UnixMilli(),
		fi.OverallFraudScore, fi.IsDuplicate, fi.IPScore, fi.DeviceScore, fi.DuplicateScore,
		fi.GeoScore, fi.VelocityScore, string(reasons))
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "write fraud indicator", err)
	}
	return nil
}

// LatestFraudIndicator returns the most recent fraud record for a session.
func (db *DB) LatestFraudIndicator(ctx context.Context, sessionID string) (*FraudIndicator, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT session_id, survey_id, platform_id, respondent_id, created_at, overall_fraud_score,
			is_duplicate, ip_score, device_score, duplicate_score, geo_score, velocity_score, flag_reasons
		FROM fraud_indicators
		WHERE session_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, sessionID)

	var fi FraudIndicator
	var createdMs int64
	var dup int
	var reasons string
	err := row.Scan(&fi.SessionID, &fi.SurveyID, &fi.PlatformID, &fi.RespondentID, &createdMs,
		&fi.OverallFraudScore, &dup, &fi.IPScore, &fi.DeviceScore, &fi.DuplicateScore, &fi.GeoScore,
		&fi.VelocityScore, &reasons)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindHierarchyNotFound, "no fraud indicator for session")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "scan fraud indicator", err)
	}
	fi.CreatedAt = time.UnixMilli(createdMs).UTC()
	fi.IsDuplicate = dup != 0
	json.Unmarshal([]byte(reasons), &fi.FlagReasons)
	return &fi, nil
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
