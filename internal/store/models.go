package store

import (
	"encoding/json"
	"time"
)

// Session statuses. Status only moves forward.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusExpired   = "expired"
)

var statusRank = map[string]int{
	StatusActive:    0,
	StatusCompleted: 1,
	StatusExpired:   2,
}

// Session identifies one respondent's attempt on one platform for one survey.
type Session struct {
	ID           string    `json:"id"`
	SurveyID     string    `json:"survey_id"`
	PlatformID   string    `json:"platform_id"`
	RespondentID string    `json:"respondent_id"`
	Status       string    `json:"status"`
	UserAgent    string    `json:"user_agent"`
	IPAddress    string    `json:"ip_address"`
	Fingerprint  string    `json:"fingerprint"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// EventRow is a persisted behavioral event. Payload stays raw; it was
// validated at the ingest boundary.
type EventRow struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	EventType   string          `json:"event_type"`
	Timestamp   time.Time       `json:"timestamp"`
	ElementID   string          `json:"element_id,omitempty"`
	ElementType string          `json:"element_type,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// SurveyQuestion is captured question text.
type SurveyQuestion struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	QuestionText string    `json:"question_text"`
	QuestionType string    `json:"question_type"` // open_ended, grid, single, multi, other
	ElementID    string    `json:"element_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// SurveyResponse is one answer. Quality fields are filled by the text
// quality analyzer after classification.
type SurveyResponse struct {
	ID             string   `json:"id"`
	SessionID      string   `json:"session_id"`
	QuestionID     string   `json:"question_id"`
	ResponseText   string   `json:"response_text"`
	ResponseTimeMs int64    `json:"response_time_ms"`
	QualityScore   *float64 `json:"quality_score,omitempty"` // 0..100
	IsFlagged      bool     `json:"is_flagged"`
	FlagReasons    []string `json:"flag_reasons,omitempty"`
}

// GridResponseRow is one row of a grid question.
type GridResponseRow struct {
	SessionID      string `json:"session_id"`
	QuestionID     string `json:"question_id"`
	RowID          string `json:"row_id"`
	Value          string `json:"value"`
	ResponseTimeMs int64  `json:"response_time_ms"`
}

// TimingAnalysisRow is a per-response timing classification.
type TimingAnalysisRow struct {
	SessionID      string   `json:"session_id"`
	QuestionID     string   `json:"question_id"`
	ResponseTimeMs int64    `json:"response_time_ms"`
	IsSpeeder      bool     `json:"is_speeder"`
	IsFlatliner    bool     `json:"is_flatliner"`
	AnomalyZ       *float64 `json:"anomaly_z,omitempty"`
}

// DetectionResult is a per-analysis outcome. Hierarchical columns are
// denormalized for index-only aggregation.
type DetectionResult struct {
	SessionID        string             `json:"session_id"`
	SurveyID         string             `json:"survey_id"`
	PlatformID       string             `json:"platform_id"`
	RespondentID     string             `json:"respondent_id"`
	CreatedAt        time.Time          `json:"created_at"`
	IsBot            bool               `json:"is_bot"`
	ConfidenceScore  float64            `json:"confidence_score"` // 0..1
	RiskLevel        string             `json:"risk_level"`       // low, medium, high, critical
	MethodScores     map[string]float64 `json:"method_scores"`
	ProcessingTimeMs int64              `json:"processing_time_ms"`
	EventCount       int                `json:"event_count"`
	CompositeScore   *float64           `json:"composite_score,omitempty"`
	TextQualityScore *float64           `json:"text_quality_score,omitempty"`
	FraudScore       *float64           `json:"fraud_score,omitempty"`
	Summary          string             `json:"summary"`
}

// FraudIndicator is a per-session fraud record with denormalized hierarchy.
type FraudIndicator struct {
	SessionID         string            `json:"session_id"`
	SurveyID          string            `json:"survey_id"`
	PlatformID        string            `json:"platform_id"`
	RespondentID      string            `json:"respondent_id"`
	CreatedAt         time.Time         `json:"created_at"`
	OverallFraudScore float64           `json:"overall_fraud_score"`
	IsDuplicate       bool              `json:"is_duplicate"`
	IPScore           float64           `json:"ip_score"`
	DeviceScore       float64           `json:"device_score"`
	DuplicateScore    float64           `json:"duplicate_score"`
	GeoScore          float64           `json:"geo_score"`
	VelocityScore     float64           `json:"velocity_score"`
	FlagReasons       map[string]string `json:"flag_reasons"`
}

// HierarchyFilter scopes a session listing to a slice of the
// Survey → Platform → Respondent hierarchy with optional date range.
type HierarchyFilter struct {
	SurveyID     string
	PlatformID   string
	RespondentID string
	DateFrom     *time.Time
	DateTo       *time.Time
	Limit        int
	Offset       int
}
