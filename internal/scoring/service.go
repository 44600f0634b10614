package scoring

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/veridata/surveyguard/internal/behavioral"
	"github.com/veridata/surveyguard/internal/clock"
	"github.com/veridata/surveyguard/internal/config"
	"github.com/veridata/surveyguard/internal/event"
	"github.com/veridata/surveyguard/internal/fraud"
	"github.com/veridata/surveyguard/internal/grid"
	"github.com/veridata/surveyguard/internal/metrics"
	"github.com/veridata/surveyguard/internal/store"
	"github.com/veridata/surveyguard/internal/textquality"
	"github.com/veridata/surveyguard/internal/timing"
)

// Service runs the full analysis of a session: behavioral scoring, text
// quality, fraud, grid, and timing, blended into one DetectionResult.
// Concurrent requests for the same session share a single run.
type Service struct {
	cfg     *config.Store
	db      *store.DB
	text    *textquality.Analyzer
	fraud   *fraud.Analyzer
	clock   clock.Clock
	metrics *metrics.Metrics
	log     *zap.Logger
	flight  singleflight.Group
}

// NewService wires the orchestrator. The behavioral, grid, and timing
// analyzers are built per run from the live config snapshot, so threshold
// overrides take effect on the next analysis.
func NewService(cfg *config.Store, db *store.DB, text *textquality.Analyzer,
	fraudAnalyzer *fraud.Analyzer, clk clock.Clock, m *metrics.Metrics, log *zap.Logger) *Service {
	return &Service{
		cfg:     cfg,
		db:      db,
		text:    text,
		fraud:   fraudAnalyzer,
		clock:   clk,
		metrics: m,
		log:     log,
	}
}

// AnalyzeSession scores one session end to end and persists the outcome.
// Concurrent calls for the same session coalesce into one run whose result
// they all receive. Nothing is persisted when ctx is canceled before the
// write phase.
func (s *Service) AnalyzeSession(ctx context.Context, sessionID string) (*store.DetectionResult, error) {
	v, err, _ := s.flight.Do(sessionID, func() (interface{}, error) {
		return s.analyze(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*store.DetectionResult), nil
}

func (s *Service) analyze(ctx context.Context, sessionID string) (*store.DetectionResult, error) {
	start := s.clock.Now()
	cfg := s.cfg.Current()

	session, err := s.db.ReadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.ReadEvents(ctx, sessionID, store.EventFilter{})
	if err != nil {
		return nil, err
	}
	events := toEvents(rows)

	behavioralResult := behavioral.New(cfg).Analyze(events)

	responses, err := s.db.ReadResponses(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	questionText, err := s.questionTexts(ctx, responses)
	if err != nil {
		return nil, err
	}

	// Text classification and fraud lookups are independent; run them
	// side by side.
	var textResult textquality.SessionResult
	var indicator *store.FraudIndicator
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var terr error
		textResult, terr = s.text.AnalyzeSession(gctx, responses, questionText)
		return terr
	})
	g.Go(func() error {
		indicator = s.fraud.Analyze(gctx, session, joinResponseText(responses), start)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	gridAnalyses, timingRows := s.structural(ctx, cfg, session, responses)

	fraudOutcome := Unavailable()
	if fraudUsable(indicator) {
		fraudOutcome = Value(indicator.OverallFraudScore)
	}
	composite := Compose(cfg, behavioralResult.Confidence, textResult.Risk, fraudOutcome)

	result := &store.DetectionResult{
		SessionID:       session.ID,
		SurveyID:        session.SurveyID,
		PlatformID:      session.PlatformID,
		RespondentID:    session.RespondentID,
		CreatedAt:       start,
		IsBot:           composite.IsBot,
		ConfidenceScore: composite.Score,
		RiskLevel:       composite.RiskLevel,
		MethodScores:    behavioralResult.MethodScores,
		EventCount:      len(events),
		Summary:         composite.Summary,
	}
	cs := composite.Score
	result.CompositeScore = &cs
	if textResult.Risk.Available() {
		tr := textResult.Risk.Score()
		result.TextQualityScore = &tr
	}
	if fraudOutcome.Available() {
		fs := indicator.OverallFraudScore
		result.FraudScore = &fs
	}
	result.ProcessingTimeMs = s.clock.Now().Sub(start).Milliseconds()

	// Cancellation before the write phase leaves the store untouched.
	if err := ctx.Err(); err != nil {
		s.metrics.RecordAnalysis("error", s.clock.Now().Sub(start))
		return nil, err
	}
	if err := s.persist(ctx, session, result, indicator, textResult, gridAnalyses, timingRows); err != nil {
		s.metrics.RecordAnalysis("error", s.clock.Now().Sub(start))
		return nil, err
	}

	verdict := "human"
	if result.IsBot {
		verdict = "bot"
	}
	s.metrics.RecordAnalysis(verdict, s.clock.Now().Sub(start))
	s.log.Info("session analyzed",
		zap.String("session_id", session.ID),
		zap.String("survey_id", session.SurveyID),
		zap.Bool("is_bot", result.IsBot),
		zap.String("risk_level", result.RiskLevel),
		zap.Float64("confidence", result.ConfidenceScore),
		zap.Int64("processing_time_ms", result.ProcessingTimeMs))
	return result, nil
}

// structural runs the grid and timing analyzers. Both are advisory; their
// failures are logged, not escalated.
func (s *Service) structural(ctx context.Context, cfg *config.Config, session *store.Session, responses []store.SurveyResponse) ([]grid.Analysis, []store.TimingAnalysisRow) {
	gridAnalyzer := grid.New(cfg)
	timingAnalyzer := timing.New(cfg)

	var analyses []grid.Analysis
	gridRows, err := s.db.ReadGridRows(ctx, session.ID)
	if err != nil {
		s.log.Warn("grid rows unavailable", zap.String("session_id", session.ID), zap.Error(err))
	} else {
		for questionID, rows := range gridRows {
			if a, ok := gridAnalyzer.Analyze(questionID, rows); ok {
				analyses = append(analyses, a)
			}
		}
	}

	var timingRows []store.TimingAnalysisRow
	for _, r := range responses {
		priors, err := s.db.PriorResponseTimes(ctx, session.SurveyID, r.QuestionID, session.ID)
		if err != nil {
			s.log.Warn("prior response times unavailable",
				zap.String("session_id", session.ID),
				zap.String("question_id", r.QuestionID),
				zap.Error(err))
			priors = nil
		}
		timingRows = append(timingRows, timingAnalyzer.Classify(session.ID, r.QuestionID, r.ResponseTimeMs, priors))
	}
	return analyses, timingRows
}

func (s *Service) persist(ctx context.Context, session *store.Session, result *store.DetectionResult,
	indicator *store.FraudIndicator, textResult textquality.SessionResult,
	gridAnalyses []grid.Analysis, timingRows []store.TimingAnalysisRow) error {

	for _, rr := range textResult.Responses {
		if !rr.Classified {
			continue
		}
		if err := s.db.UpdateResponseQuality(ctx, rr.ResponseID, rr.Quality, rr.Flagged, rr.Reasons); err != nil {
			return err
		}
	}
	for _, a := range gridAnalyses {
		if err := s.db.WriteGridAnalysis(ctx, session, a.QuestionID, a.StraightLined,
			a.Confidence, a.Pattern, a.VarianceScore, a.SatisficingScore, a.RowCount); err != nil {
			return err
		}
	}
	for _, t := range timingRows {
		if err := s.db.WriteTimingAnalysis(ctx, session, t); err != nil {
			return err
		}
	}
	if err := s.db.WriteFraudIndicator(ctx, indicator); err != nil {
		return err
	}
	return s.db.WriteDetectionResult(ctx, result)
}

// questionTexts loads the prompt of every distinct question referenced by
// the responses.
func (s *Service) questionTexts(ctx context.Context, responses []store.SurveyResponse) (map[string]string, error) {
	out := make(map[string]string)
	for _, r := range responses {
		if _, ok := out[r.QuestionID]; ok {
			continue
		}
		q, err := s.db.ReadQuestion(ctx, r.QuestionID)
		if err != nil {
			return nil, err
		}
		out[r.QuestionID] = q.QuestionText
	}
	return out, nil
}

// fraudUsable reports whether at least one fraud component produced a real
// observation. A session with every lookup failed has no fraud signal at
// all, and the composite falls back accordingly.
func fraudUsable(fi *store.FraudIndicator) bool {
	if fi == nil {
		return false
	}
	failed := 0
	for _, v := range fi.FlagReasons {
		if v == "unavailable" {
			failed++
		}
	}
	return failed < 5
}

func joinResponseText(responses []store.SurveyResponse) string {
	parts := make([]string, 0, len(responses))
	for _, r := range responses {
		if r.ResponseText != "" {
			parts = append(parts, r.ResponseText)
		}
	}
	return strings.Join(parts, " ")
}

func toEvents(rows []store.EventRow) []event.Event {
	out := make([]event.Event, len(rows))
	for i, r := range rows {
		out[i] = event.Event{
			ID:          r.ID,
			SessionID:   r.SessionID,
			Type:        event.Type(r.EventType),
			Timestamp:   r.Timestamp,
			ElementID:   r.ElementID,
			ElementType: r.ElementType,
			Payload:     r.Payload,
		}
	}
	return out
}
