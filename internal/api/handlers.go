package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/veridata/surveyguard/internal/aggregate"
	"github.com/veridata/surveyguard/internal/apperr"
	"github.com/veridata/surveyguard/internal/config"
	"github.com/veridata/surveyguard/internal/event"
	"github.com/veridata/surveyguard/internal/fraud"
	"github.com/veridata/surveyguard/internal/metrics"
	"github.com/veridata/surveyguard/internal/scoring"
	"github.com/veridata/surveyguard/internal/settings"
	"github.com/veridata/surveyguard/internal/store"
)

// Version is stamped at build time.
var Version = "dev"

// Handlers carries the wired services behind the HTTP surface.
type Handlers struct {
	cfg           *config.Store
	db            *store.DB
	scorer        *scoring.Service
	agg           *aggregate.Service
	settings      *settings.Service
	fingerprinter *fraud.Fingerprinter
	metrics       *metrics.Metrics
	log           *zap.Logger
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetVersion returns the running version.
func (h *Handlers) GetVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": Version})
}

type createSessionRequest struct {
	SurveyID     string               `json:"survey_id"`
	PlatformID   string               `json:"platform_id"`
	RespondentID string               `json:"respondent_id"`
	Device       *event.DevicePayload `json:"device,omitempty"`
}

// CreateSession registers a new session and derives its device fingerprint
// from the user agent and the optional device payload.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, err)
		return
	}

	userAgent := r.UserAgent()
	fingerprint := h.fingerprinter.Derive(userAgent, req.Device)
	session, err := h.db.CreateSession(r.Context(), req.SurveyID, req.PlatformID, req.RespondentID,
		userAgent, clientIP(r), fingerprint)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// GetSession returns a session record.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.db.ReadSession(r.Context(), chi.URLParam(r, "session_id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateSessionStatus moves a session forward through its lifecycle.
func (h *Handlers) UpdateSessionStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if err := h.db.UpdateSessionStatus(r.Context(), chi.URLParam(r, "session_id"), req.Status); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

// DeleteSession removes a session and everything it owns.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.db.DeleteSessionCascade(r.Context(), chi.URLParam(r, "session_id")); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ingestRequest struct {
	Events []event.Event `json:"events"`
}

type ingestResponse struct {
	Accepted   int `json:"accepted"`
	EventCount int `json:"event_count"`
}

// IngestEvents appends a batch of behavioral events. The whole batch is
// rejected when it would push the session past the event cap.
func (h *Handlers) IngestEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	var req ingestRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	for i := range req.Events {
		req.Events[i].SessionID = sessionID
		if err := req.Events[i].Validate(); err != nil {
			writeAppError(w, err)
			return
		}
	}

	accepted, total, err := h.db.AppendEvents(r.Context(), sessionID, req.Events, h.cfg.Current().EventCountCap)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindCapExceeded {
			h.metrics.RecordCapRejection()
		}
		writeAppError(w, err)
		return
	}
	h.metrics.RecordIngest(accepted)
	writeJSON(w, http.StatusAccepted, ingestResponse{Accepted: accepted, EventCount: total})
}

// ListEvents returns a session's events in timestamp order.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	from, to, ok := dateRange(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed date_from or date_to")
		return
	}
	events, err := h.db.ReadEvents(r.Context(), chi.URLParam(r, "session_id"), store.EventFilter{From: from, To: to})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events, "count": len(events)})
}

type createQuestionRequest struct {
	QuestionText string `json:"question_text"`
	QuestionType string `json:"question_type"`
	ElementID    string `json:"element_id,omitempty"`
}

// CreateQuestion captures a question shown to the respondent.
func (h *Handlers) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req createQuestionRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	q, err := h.db.CreateQuestion(r.Context(), chi.URLParam(r, "session_id"),
		req.QuestionText, req.QuestionType, req.ElementID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

type createResponseRequest struct {
	QuestionID     string `json:"question_id"`
	ResponseText   string `json:"response_text"`
	ResponseTimeMs int64  `json:"response_time_ms"`
}

// CreateResponse records one answer.
func (h *Handlers) CreateResponse(w http.ResponseWriter, r *http.Request) {
	var req createResponseRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	resp, err := h.db.CreateResponse(r.Context(), chi.URLParam(r, "session_id"),
		req.QuestionID, req.ResponseText, req.ResponseTimeMs)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

type gridRowsRequest struct {
	QuestionID string `json:"question_id"`
	Rows       []struct {
		RowID          string `json:"row_id"`
		Value          string `json:"value"`
		ResponseTimeMs int64  `json:"response_time_ms"`
	} `json:"rows"`
}

// CreateGridRows records the rows of one grid question.
func (h *Handlers) CreateGridRows(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	var req gridRowsRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if req.QuestionID == "" || len(req.Rows) == 0 {
		writeError(w, http.StatusBadRequest, "question_id and rows are required")
		return
	}

	rows := make([]store.GridResponseRow, len(req.Rows))
	for i, row := range req.Rows {
		if row.RowID == "" {
			writeError(w, http.StatusBadRequest, "row_id is required on every row")
			return
		}
		rows[i] = store.GridResponseRow{
			SessionID:      sessionID,
			QuestionID:     req.QuestionID,
			RowID:          row.RowID,
			Value:          row.Value,
			ResponseTimeMs: row.ResponseTimeMs,
		}
	}
	if err := h.db.WriteGridRows(r.Context(), rows); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"rows": len(rows)})
}

// AnalyzeSession runs the full scoring pipeline for a session. Concurrent
// requests for the same session share one run.
func (h *Handlers) AnalyzeSession(w http.ResponseWriter, r *http.Request) {
	result, err := h.scorer.AnalyzeSession(r.Context(), chi.URLParam(r, "session_id"))
	if err != nil {
		if r.Context().Err() != nil {
			// Client went away; nothing was persisted.
			return
		}
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetDetection returns the most recent detection result of a session.
func (h *Handlers) GetDetection(w http.ResponseWriter, r *http.Request) {
	result, err := h.db.LatestDetectionResult(r.Context(), chi.URLParam(r, "session_id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetFraudIndicator returns the most recent fraud record of a session.
func (h *Handlers) GetFraudIndicator(w http.ResponseWriter, r *http.Request) {
	fi, err := h.db.LatestFraudIndicator(r.Context(), chi.URLParam(r, "session_id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fi)
}

// GetGridAnalyses returns the grid analyses of a session.
func (h *Handlers) GetGridAnalyses(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.ReadGridAnalyses(r.Context(), chi.URLParam(r, "session_id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"analyses": rows, "count": len(rows)})
}

// GetTimingAnalyses returns the timing classifications of a session.
func (h *Handlers) GetTimingAnalyses(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.ReadTimingAnalyses(r.Context(), chi.URLParam(r, "session_id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"analyses": rows, "count": len(rows)})
}

// GetTextAnalyses returns the responses of a session with their quality
// verdicts.
func (h *Handlers) GetTextAnalyses(w http.ResponseWriter, r *http.Request) {
	responses, err := h.db.ReadResponses(r.Context(), chi.URLParam(r, "session_id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"responses": responses, "count": len(responses)})
}
