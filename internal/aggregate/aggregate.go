// Package aggregate rolls session-level facts up to Respondent, Platform,
// and Survey summaries. Every query runs against the denormalized hierarchy
// columns of the derived tables; none of them reads sessions one at a time.
package aggregate

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/veridata/surveyguard/internal/apperr"
	"github.com/veridata/surveyguard/internal/config"
	"github.com/veridata/surveyguard/internal/store"
)

// Scope narrows a rollup to a slice of the hierarchy, optionally bounded by
// a date range. Empty fields widen the slice.
type Scope struct {
	SurveyID     string
	PlatformID   string
	RespondentID string
	SessionID    string
	DateFrom     *time.Time
	DateTo       *time.Time
}

// where renders the scope for a table whose session column is named
// sessionCol ("id" on sessions, "session_id" elsewhere).
func (s Scope) where(sessionCol string) (string, []interface{}) {
	clause := "1=1"
	args := make([]interface{}, 0, 6)

	if s.SurveyID != "" {
		clause += " AND survey_id = ?"
		args = append(args, s.SurveyID)
	}
	if s.PlatformID != "" {
		clause += " AND platform_id = ?"
		args = append(args, s.PlatformID)
	}
	if s.RespondentID != "" {
		clause += " AND respondent_id = ?"
		args = append(args, s.RespondentID)
	}
	if s.SessionID != "" {
		clause += " AND " + sessionCol + " = ?"
		args = append(args, s.SessionID)
	}
	if s.DateFrom != nil {
		clause += " AND created_at >= ?"
		args = append(args, s.DateFrom.UnixMilli())
	}
	if s.DateTo != nil {
		clause += " AND created_at <= ?"
		args = append(args, s.DateTo.UnixMilli())
	}
	return clause, args
}

// DateRange echoes the requested bounds back in the summary.
type DateRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// BotDetection is the detection slice of a summary.
type BotDetection struct {
	TotalDetections int     `json:"total_detections"`
	BotCount        int     `json:"bot_count"`
	HumanCount      int     `json:"human_count"`
	BotRate         float64 `json:"bot_rate"`
	AvgConfidence   float64 `json:"avg_confidence"`
}

// EventStats is the event volume slice of a summary.
type EventStats struct {
	Total         int     `json:"total"`
	AvgPerSession float64 `json:"avg_per_session"`
}

// TextQualityStats is the text slice of a summary.
type TextQualityStats struct {
	TotalResponses    int     `json:"total_responses"`
	AvgQualityScore   float64 `json:"avg_quality_score"`
	FlaggedCount      int     `json:"flagged_count"`
	FlaggedPercentage float64 `json:"flagged_percentage"`
}

// Summary is the rolled-up view at any hierarchy level.
type Summary struct {
	TotalSessions        int              `json:"total_sessions"`
	TotalRespondents     int              `json:"total_respondents"`
	TotalPlatforms       int              `json:"total_platforms"`
	PlatformDistribution map[string]int   `json:"platform_distribution"`
	BotDetection         BotDetection     `json:"bot_detection"`
	RiskDistribution     map[string]int   `json:"risk_distribution"`
	Events               EventStats       `json:"events"`
	TextQuality          TextQualityStats `json:"text_quality"`
	DateRange            DateRange        `json:"date_range"`
}

// FraudSummary is the fraud rollup at any hierarchy level.
type FraudSummary struct {
	TotalIndicators     int                `json:"total_indicators"`
	DuplicateCount      int                `json:"duplicate_count"`
	DuplicatePercentage float64            `json:"duplicate_percentage"`
	AvgFraudScore       float64            `json:"avg_fraud_score"`
	ComponentAverages   map[string]float64 `json:"component_averages"`
	DateRange           DateRange          `json:"date_range"`
}

// GridSummary is the grid rollup at any hierarchy level.
type GridSummary struct {
	TotalAnalyses           int            `json:"total_analyses"`
	StraightLinedCount      int            `json:"straight_lined_count"`
	StraightLinedPercentage float64        `json:"straight_lined_percentage"`
	PatternCounts           map[string]int `json:"pattern_counts"`
	AvgVarianceScore        float64        `json:"avg_variance_score"`
	AvgSatisficingScore     float64        `json:"avg_satisficing_score"`
	DateRange               DateRange      `json:"date_range"`
}

// TimingSummary is the timing rollup at any hierarchy level.
type TimingSummary struct {
	TotalAnalyses       int       `json:"total_analyses"`
	SpeederCount        int       `json:"speeder_count"`
	SpeederPercentage   float64   `json:"speeder_percentage"`
	FlatlinerCount      int       `json:"flatliner_count"`
	FlatlinerPercentage float64   `json:"flatliner_percentage"`
	AnomalyCount        int       `json:"anomaly_count"`
	AvgResponseTimeMs   float64   `json:"avg_response_time_ms"`
	DateRange           DateRange `json:"date_range"`
}

// TextSummary is the text-analysis rollup at any hierarchy level.
type TextSummary struct {
	TotalResponses    int            `json:"total_responses"`
	AnalyzedCount     int            `json:"analyzed_count"`
	AvgQualityScore   float64        `json:"avg_quality_score"`
	FlaggedCount      int            `json:"flagged_count"`
	FlaggedPercentage float64        `json:"flagged_percentage"`
	FlagReasonCounts  map[string]int `json:"flag_reason_counts"`
	DateRange         DateRange      `json:"date_range"`
}

// Service computes rollups straight from SQL.
type Service struct {
	db  *store.DB
	cfg *config.Store
}

// New builds the service. The |z| anomaly cutoff comes from the live config
// snapshot so runtime overrides reach the timing rollup.
func New(db *store.DB, cfg *config.Store) *Service {
	return &Service{db: db, cfg: cfg}
}

// Summarize computes the main rollup for the scope. Empty slices return
// zeroed aggregates.
func (s *Service) Summarize(ctx context.Context, scope Scope) (*Summary, error) {
	out := &Summary{
		PlatformDistribution: make(map[string]int),
		RiskDistribution:     make(map[string]int),
		DateRange:            DateRange{From: scope.DateFrom, To: scope.DateTo},
	}
	conn := s.db.Conn()

	where, args := scope.where("id")
	err := conn.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT respondent_id), COUNT(DISTINCT platform_id)
		FROM sessions WHERE `+where, args...).
		Scan(&out.TotalSessions, &out.TotalRespondents, &out.TotalPlatforms)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "session rollup", err)
	}

	rows, err := conn.QueryContext(ctx, `
		SELECT platform_id, COUNT(*) FROM sessions WHERE `+where+` GROUP BY platform_id`, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "platform distribution", err)
	}
	if err := scanCounts(rows, out.PlatformDistribution); err != nil {
		return nil, err
	}

	dWhere, dArgs := scope.where("session_id")
	var avgConfidence sql.NullFloat64
	err = conn.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(is_bot), 0), AVG(confidence_score)
		FROM detection_results WHERE `+dWhere, dArgs...).
		Scan(&out.BotDetection.TotalDetections, &out.BotDetection.BotCount, &avgConfidence)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "detection rollup", err)
	}
	out.BotDetection.HumanCount = out.BotDetection.TotalDetections - out.BotDetection.BotCount
	out.BotDetection.AvgConfidence = round3(avgConfidence.Float64)
	out.BotDetection.BotRate = percentage(out.BotDetection.BotCount, out.BotDetection.TotalDetections)

	rows, err = conn.QueryContext(ctx, `
		SELECT risk_level, COUNT(*) FROM detection_results WHERE `+dWhere+` GROUP BY risk_level`, dArgs...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "risk distribution", err)
	}
	if err := scanCounts(rows, out.RiskDistribution); err != nil {
		return nil, err
	}

	// Event volume comes from the recorded analyses, keeping the rollup on
	// hierarchy-indexed tables.
	var totalEvents sql.NullInt64
	err = conn.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(event_count), 0) FROM detection_results WHERE `+dWhere, dArgs...).
		Scan(&totalEvents)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "event rollup", err)
	}
	out.Events.Total = int(totalEvents.Int64)
	if out.TotalSessions > 0 {
		out.Events.AvgPerSession = round1(float64(out.Events.Total) / float64(out.TotalSessions))
	}

	var avgQuality sql.NullFloat64
	err = conn.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(quality_score), COALESCE(SUM(is_flagged), 0)
		FROM survey_responses WHERE `+dWhere, dArgs...).
		Scan(&out.TextQuality.TotalResponses, &avgQuality, &out.TextQuality.FlaggedCount)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "text rollup", err)
	}
	out.TextQuality.AvgQualityScore = round1(avgQuality.Float64)
	out.TextQuality.FlaggedPercentage = percentage(out.TextQuality.FlaggedCount, out.TextQuality.TotalResponses)

	return out, nil
}

// SummarizeFraud computes the fraud rollup for the scope.
func (s *Service) SummarizeFraud(ctx context.Context, scope Scope) (*FraudSummary, error) {
	out := &FraudSummary{
		ComponentAverages: make(map[string]float64),
		DateRange:         DateRange{From: scope.DateFrom, To: scope.DateTo},
	}
	where, args := scope.where("session_id")

	var avgOverall, avgIP, avgDevice, avgDup, avgGeo, avgVel sql.NullFloat64
	err := s.db.Conn().QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(is_duplicate), 0), AVG(overall_fraud_score),
			AVG(ip_score), AVG(device_score), AVG(duplicate_score), AVG(geo_score), AVG(velocity_score)
		FROM fraud_indicators WHERE `+where, args...).
		Scan(&out.TotalIndicators, &out.DuplicateCount, &avgOverall,
			&avgIP, &avgDevice, &avgDup, &avgGeo, &avgVel)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "fraud rollup", err)
	}

	out.DuplicatePercentage = percentage(out.DuplicateCount, out.TotalIndicators)
	out.AvgFraudScore = round3(avgOverall.Float64)
	if out.TotalIndicators > 0 {
		out.ComponentAverages["ip"] = round3(avgIP.Float64)
		out.ComponentAverages["device"] = round3(avgDevice.Float64)
		out.ComponentAverages["duplicate"] = round3(avgDup.Float64)
		out.ComponentAverages["geo"] = round3(avgGeo.Float64)
		out.ComponentAverages["velocity"] = round3(avgVel.Float64)
	}
	return out, nil
}

// SummarizeGrid computes the grid rollup for the scope.
func (s *Service) SummarizeGrid(ctx context.Context, scope Scope) (*GridSummary, error) {
	out := &GridSummary{
		PatternCounts: make(map[string]int),
		DateRange:     DateRange{From: scope.DateFrom, To: scope.DateTo},
	}
	where, args := scope.where("session_id")
	conn := s.db.Conn()

	var avgVariance, avgSatisficing sql.NullFloat64
	err := conn.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(straight_lined), 0), AVG(variance_score), AVG(satisficing_score)
		FROM grid_analyses WHERE `+where, args...).
		Scan(&out.TotalAnalyses, &out.StraightLinedCount, &avgVariance, &avgSatisficing)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "grid rollup", err)
	}
	out.StraightLinedPercentage = percentage(out.StraightLinedCount, out.TotalAnalyses)
	out.AvgVarianceScore = round3(avgVariance.Float64)
	out.AvgSatisficingScore = round3(avgSatisficing.Float64)

	rows, err := conn.QueryContext(ctx, `
		SELECT pattern, COUNT(*) FROM grid_analyses
		WHERE `+where+` AND pattern != '' GROUP BY pattern`, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "pattern distribution", err)
	}
	return out, scanCounts(rows, out.PatternCounts)
}

// SummarizeTiming computes the timing rollup for the scope.
func (s *Service) SummarizeTiming(ctx context.Context, scope Scope) (*TimingSummary, error) {
	out := &TimingSummary{DateRange: DateRange{From: scope.DateFrom, To: scope.DateTo}}
	where, args := scope.where("session_id")

	var avgTime sql.NullFloat64
	err := s.db.Conn().QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(is_speeder), 0), COALESCE(SUM(is_flatliner), 0),
			COALESCE(SUM(CASE WHEN anomaly_z IS NOT NULL AND ABS(anomaly_z) > ? THEN 1 ELSE 0 END), 0),
			AVG(response_time_ms)
		FROM timing_analyses WHERE `+where, append([]interface{}{s.cfg.Current().AnomalyZ}, args...)...).
		Scan(&out.TotalAnalyses, &out.SpeederCount, &out.FlatlinerCount, &out.AnomalyCount, &avgTime)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "timing rollup", err)
	}

	out.SpeederPercentage = percentage(out.SpeederCount, out.TotalAnalyses)
	out.FlatlinerPercentage = percentage(out.FlatlinerCount, out.TotalAnalyses)
	out.AvgResponseTimeMs = round1(avgTime.Float64)
	return out, nil
}

// SummarizeText computes the text-analysis rollup for the scope.
func (s *Service) SummarizeText(ctx context.Context, scope Scope) (*TextSummary, error) {
	out := &TextSummary{
		FlagReasonCounts: make(map[string]int),
		DateRange:        DateRange{From: scope.DateFrom, To: scope.DateTo},
	}
	where, args := scope.where("session_id")

	var avgQuality sql.NullFloat64
	err := s.db.Conn().QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(quality_score IS NOT NULL), 0), AVG(quality_score),
			COALESCE(SUM(is_flagged), 0),
			COALESCE(SUM(flag_reasons LIKE '%"gibberish"%'), 0),
			COALESCE(SUM(flag_reasons LIKE '%"copy_paste"%'), 0),
			COALESCE(SUM(flag_reasons LIKE '%"irrelevant"%'), 0),
			COALESCE(SUM(flag_reasons LIKE '%"generic"%'), 0),
			COALESCE(SUM(flag_reasons LIKE '%"low_quality"%'), 0)
		FROM survey_responses WHERE `+where, args...).
		Scan(&out.TotalResponses, &out.AnalyzedCount, &avgQuality, &out.FlaggedCount,
			count(out.FlagReasonCounts, "gibberish"),
			count(out.FlagReasonCounts, "copy_paste"),
			count(out.FlagReasonCounts, "irrelevant"),
			count(out.FlagReasonCounts, "generic"),
			count(out.FlagReasonCounts, "low_quality"))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "text analysis rollup", err)
	}

	out.AvgQualityScore = round1(avgQuality.Float64)
	out.FlaggedPercentage = percentage(out.FlaggedCount, out.TotalResponses)
	return out, nil
}

// count returns a scan target that lands in m[key].
func count(m map[string]int, key string) *mapCount {
	return &mapCount{m: m, key: key}
}

type mapCount struct {
	m   map[string]int
	key string
}

func (c *mapCount) Scan(src interface{}) error {
	switch v := src.(type) {
	case int64:
		c.m[c.key] = int(v)
	case nil:
		c.m[c.key] = 0
	}
	return nil
}

func scanCounts(rows *sql.Rows, into map[string]int) error {
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return apperr.Wrap(apperr.KindInternal, "scan distribution", err)
		}
		into[key] = n
	}
	return rows.Err()
}

// percentage returns 100*part/total rounded to 1 decimal; 0 when total is 0.
func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(100 * float64(part) / float64(total))
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
