package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/veridata/surveyguard/internal/aggregate"
	"github.com/veridata/surveyguard/internal/store"
)

// scopeFromPath builds the rollup scope from hierarchy path parameters plus
// the optional date range. ok is false when the date range is malformed.
func scopeFromPath(r *http.Request) (aggregate.Scope, bool) {
	from, to, ok := dateRange(r)
	if !ok {
		return aggregate.Scope{}, false
	}
	return aggregate.Scope{
		SurveyID:     chi.URLParam(r, "survey_id"),
		PlatformID:   chi.URLParam(r, "platform_id"),
		RespondentID: chi.URLParam(r, "respondent_id"),
		DateFrom:     from,
		DateTo:       to,
	}, true
}

// scopeFromQuery builds the scope of the parallel analysis trees, which take
// their hierarchy filters as query parameters.
func scopeFromQuery(r *http.Request) (aggregate.Scope, bool) {
	from, to, ok := dateRange(r)
	if !ok {
		return aggregate.Scope{}, false
	}
	q := r.URL.Query()
	return aggregate.Scope{
		SurveyID:     q.Get("survey_id"),
		PlatformID:   q.Get("platform_id"),
		RespondentID: q.Get("respondent_id"),
		DateFrom:     from,
		DateTo:       to,
	}, true
}

// requireHierarchy 404s when a path-scoped node has no sessions at all.
// Date filters are ignored for existence so an empty window still resolves.
func (h *Handlers) requireHierarchy(w http.ResponseWriter, r *http.Request, scope aggregate.Scope) bool {
	if scope.SurveyID == "" {
		return true
	}
	exists, err := h.agg.Exists(r.Context(), aggregate.Scope{
		SurveyID:     scope.SurveyID,
		PlatformID:   scope.PlatformID,
		RespondentID: scope.RespondentID,
	})
	if err != nil {
		writeAppError(w, err)
		return false
	}
	if !exists {
		writeError(w, http.StatusNotFound, "unknown hierarchy node")
		return false
	}
	return true
}

// ListSurveys lists known surveys.
func (h *Handlers) ListSurveys(w http.ResponseWriter, r *http.Request) {
	limit, offset := limitOffset(r)
	surveys, err := h.agg.ListSurveys(r.Context(), limit, offset)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"surveys": surveys, "count": len(surveys)})
}

// GetSurvey returns the overview of one survey.
func (h *Handlers) GetSurvey(w http.ResponseWriter, r *http.Request) {
	h.overview(w, r, aggregate.Scope{SurveyID: chi.URLParam(r, "survey_id")})
}

// ListPlatforms lists the platforms of a survey.
func (h *Handlers) ListPlatforms(w http.ResponseWriter, r *http.Request) {
	scope, _ := scopeFromPath(r)
	if !h.requireHierarchy(w, r, scope) {
		return
	}
	limit, offset := limitOffset(r)
	platforms, err := h.agg.ListPlatforms(r.Context(), scope.SurveyID, limit, offset)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"platforms": platforms, "count": len(platforms)})
}

// GetPlatform returns the overview of one platform within a survey.
func (h *Handlers) GetPlatform(w http.ResponseWriter, r *http.Request) {
	h.overview(w, r, aggregate.Scope{
		SurveyID:   chi.URLParam(r, "survey_id"),
		PlatformID: chi.URLParam(r, "platform_id"),
	})
}

// ListRespondents lists the respondents of a platform.
func (h *Handlers) ListRespondents(w http.ResponseWriter, r *http.Request) {
	scope, _ := scopeFromPath(r)
	if !h.requireHierarchy(w, r, scope) {
		return
	}
	limit, offset := limitOffset(r)
	respondents, err := h.agg.ListRespondents(r.Context(), scope.SurveyID, scope.PlatformID, limit, offset)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"respondents": respondents, "count": len(respondents)})
}

// GetRespondent returns the overview of one respondent.
func (h *Handlers) GetRespondent(w http.ResponseWriter, r *http.Request) {
	h.overview(w, r, aggregate.Scope{
		SurveyID:     chi.URLParam(r, "survey_id"),
		PlatformID:   chi.URLParam(r, "platform_id"),
		RespondentID: chi.URLParam(r, "respondent_id"),
	})
}

// ListSessions lists the sessions of a respondent.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromPath(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed date_from or date_to")
		return
	}
	if !h.requireHierarchy(w, r, scope) {
		return
	}
	limit, offset := limitOffset(r)
	sessions, err := h.db.ListByHierarchy(r.Context(), store.HierarchyFilter{
		SurveyID:     scope.SurveyID,
		PlatformID:   scope.PlatformID,
		RespondentID: scope.RespondentID,
		DateFrom:     scope.DateFrom,
		DateTo:       scope.DateTo,
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions, "count": len(sessions)})
}

// GetSummary serves the main rollup at whichever hierarchy level the route
// mounted it.
func (h *Handlers) GetSummary(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromPath(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed date_from or date_to")
		return
	}
	if !h.requireHierarchy(w, r, scope) {
		return
	}
	summary, err := h.agg.Summarize(r.Context(), scope)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetFraudSummary serves the fraud rollup of the query-scoped slice.
func (h *Handlers) GetFraudSummary(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromQuery(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed date_from or date_to")
		return
	}
	summary, err := h.agg.SummarizeFraud(r.Context(), scope)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetGridSummary serves the grid rollup of the query-scoped slice.
func (h *Handlers) GetGridSummary(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromQuery(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed date_from or date_to")
		return
	}
	summary, err := h.agg.SummarizeGrid(r.Context(), scope)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetTimingSummary serves the timing rollup of the query-scoped slice.
func (h *Handlers) GetTimingSummary(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromQuery(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed date_from or date_to")
		return
	}
	summary, err := h.agg.SummarizeTiming(r.Context(), scope)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetTextSummary serves the text-analysis rollup of the query-scoped slice.
func (h *Handlers) GetTextSummary(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromQuery(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed date_from or date_to")
		return
	}
	summary, err := h.agg.SummarizeText(r.Context(), scope)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// overview 404s unknown nodes, otherwise returns the session-count overview
// of the node.
func (h *Handlers) overview(w http.ResponseWriter, r *http.Request, scope aggregate.Scope) {
	if !h.requireHierarchy(w, r, scope) {
		return
	}
	summary, err := h.agg.Summarize(r.Context(), scope)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"survey_id":         scope.SurveyID,
		"platform_id":       scope.PlatformID,
		"respondent_id":     scope.RespondentID,
		"total_sessions":    summary.TotalSessions,
		"total_respondents": summary.TotalRespondents,
		"total_platforms":   summary.TotalPlatforms,
	})
}
