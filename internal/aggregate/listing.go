package aggregate

import (
	"context"
	"time"

	"github.com/veridata/surveyguard/internal/apperr"
)

// Overview is one row of a hierarchy listing.
type Overview struct {
	ID            string    `json:"id"`
	TotalSessions int       `json:"total_sessions"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
}

// ListSurveys lists the surveys known to the store, most recent first.
func (s *Service) ListSurveys(ctx context.Context, limit, offset int) ([]Overview, error) {
	return s.listLevel(ctx, "survey_id", Scope{}, limit, offset)
}

// ListPlatforms lists the platforms of a survey.
func (s *Service) ListPlatforms(ctx context.Context, surveyID string, limit, offset int) ([]Overview, error) {
	return s.listLevel(ctx, "platform_id", Scope{SurveyID: surveyID}, limit, offset)
}

// ListRespondents lists the respondents of a platform within a survey.
func (s *Service) ListRespondents(ctx context.Context, surveyID, platformID string, limit, offset int) ([]Overview, error) {
	return s.listLevel(ctx, "respondent_id", Scope{SurveyID: surveyID, PlatformID: platformID}, limit, offset)
}

func (s *Service) listLevel(ctx context.Context, column string, scope Scope, limit, offset int) ([]Overview, error) {
	where, args := scope.where("id")
	args = append(args, limit, offset)

	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT `+column+`, COUNT(*), MIN(created_at), MAX(created_at)
		FROM sessions
		WHERE `+where+`
		GROUP BY `+column+`
		ORDER BY MAX(created_at) DESC
		LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "hierarchy listing", err)
	}
	defer rows.Close()

	out := make([]Overview, 0)
	for rows.Next() {
		var o Overview
		var firstMs, lastMs int64
		if err := rows.Scan(&o.ID, &o.TotalSessions, &firstMs, &lastMs); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan hierarchy listing", err)
		}
		o.FirstSeen = time.UnixMilli(firstMs).UTC()
		o.LastSeen = time.UnixMilli(lastMs).UTC()
		out = append(out, o)
	}
	return out, rows.Err()
}

// Exists reports whether the scope matches at least one session, so handlers
// can distinguish an empty rollup from a missing hierarchy node.
func (s *Service) Exists(ctx context.Context, scope Scope) (bool, error) {
	where, args := scope.where("id")
	var n int
	err := s.db.Conn().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sessions WHERE `+where+` LIMIT 1`, args...).Scan(&n)
	if err != nil {
		return false, apperr.Wrap(apperr.KindInternal, "hierarchy existence", err)
	}
	return n > 0, nil
}
