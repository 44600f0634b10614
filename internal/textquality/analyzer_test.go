package textquality

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veridata/surveyguard/internal/apperr"
	"github.com/veridata/surveyguard/internal/config"
	"github.com/veridata/surveyguard/internal/store"
)

func classification(gibberish, copyPaste, offTopic, generic, quality float64) *Classification {
	c := &Classification{}
	c.Gibberish.Probability = gibberish
	c.CopyPaste.Probability = copyPaste
	c.Relevance.OffTopicProbability = offTopic
	c.Generic.Probability = generic
	c.Quality.Score = quality
	return c
}

func newTestAnalyzer(t *testing.T, classifier TextClassifier, mutate func(*config.Config)) *Analyzer {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	return NewAnalyzer(config.NewStore(cfg), classifier, zap.NewNop())
}

func response(id, questionID, text string) store.SurveyResponse {
	return store.SurveyResponse{ID: id, SessionID: "s1", QuestionID: questionID, ResponseText: text}
}

func TestEvaluateGibberishSuppressesGenericAndLowQuality(t *testing.T) {
	r := evaluate("r1", classification(0.95, 0.80, 0.90, 0.90, 10))

	assert.True(t, r.Flagged)
	assert.Equal(t, []string{FlagGibberish, FlagCopyPaste}, r.Reasons)
	assert.Equal(t, 10.0, *r.Quality)
	assert.InDelta(t, (0.95+0.80+0.90+0.90)/4, r.Confidence, 1e-9)
}

func TestEvaluateIrrelevantSuppressesGenericOnly(t *testing.T) {
	r := evaluate("r1", classification(0.20, 0.10, 0.75, 0.90, 20))

	assert.Equal(t, []string{FlagIrrelevant, FlagLowQuality}, r.Reasons)
}

func TestEvaluateGenericAndLowQuality(t *testing.T) {
	r := evaluate("r1", classification(0.10, 0.10, 0.10, 0.80, 25))
	assert.Equal(t, []string{FlagGeneric, FlagLowQuality}, r.Reasons)

	r = evaluate("r1", classification(0.10, 0.10, 0.10, 0.80, 50))
	assert.Equal(t, []string{FlagGeneric}, r.Reasons)
}

func TestEvaluateCleanResponse(t *testing.T) {
	r := evaluate("r1", classification(0.05, 0.05, 0.10, 0.20, 85))

	assert.False(t, r.Flagged)
	assert.Empty(t, r.Reasons)
	assert.True(t, r.Classified)
}

func TestAnalyzeSessionSkipsShortResponses(t *testing.T) {
	stub := &StubClassifier{}
	a := newTestAnalyzer(t, stub, nil)

	res, err := a.AnalyzeSession(context.Background(), []store.SurveyResponse{
		response("r1", "q1", "short"),
	}, nil)
	require.NoError(t, err)

	assert.False(t, res.Risk.Available())
	assert.Equal(t, 0, stub.Calls())
}

func TestAnalyzeSessionRiskFromQuality(t *testing.T) {
	stub := &StubClassifier{Fallback: classification(0, 0, 0, 0, 80)}
	a := newTestAnalyzer(t, stub, nil)

	res, err := a.AnalyzeSession(context.Background(), []store.SurveyResponse{
		response("r1", "q1", "a perfectly thoughtful answer"),
		response("r2", "q2", "another considered opinion here"),
	}, map[string]string{"q1": "Why?", "q2": "How?"})
	require.NoError(t, err)

	require.True(t, res.Risk.Available())
	assert.InDelta(t, 0.20, res.Risk.Score(), 1e-9)
	assert.Len(t, res.Responses, 2)
}

func TestAnalyzeSessionCoalescesIdenticalText(t *testing.T) {
	stub := &StubClassifier{Fallback: classification(0, 0, 0, 0, 75)}
	a := newTestAnalyzer(t, stub, nil)

	responses := make([]store.SurveyResponse, 6)
	for i := range responses {
		responses[i] = response("r", "q1", "The Same Response Text repeated")
	}
	_, err := a.AnalyzeSession(context.Background(), responses, map[string]string{"q1": "Why?"})
	require.NoError(t, err)

	// Identical (question, response) pairs share one classifier call via the
	// cache and in-flight coalescing.
	assert.Equal(t, 1, stub.Calls())
}

func TestAnalyzeSessionCacheSurvivesAcrossSessions(t *testing.T) {
	stub := &StubClassifier{Fallback: classification(0, 0, 0, 0, 75)}
	a := newTestAnalyzer(t, stub, nil)

	in := []store.SurveyResponse{response("r1", "q1", "an answer worth caching today")}
	q := map[string]string{"q1": "Why?"}

	_, err := a.AnalyzeSession(context.Background(), in, q)
	require.NoError(t, err)
	_, err = a.AnalyzeSession(context.Background(), in, q)
	require.NoError(t, err)

	assert.Equal(t, 1, stub.Calls())
}

func TestAnalyzeSessionClassifierOutage(t *testing.T) {
	stub := &StubClassifier{Err: apperr.New(apperr.KindClassifierUnavailable, "down")}
	a := newTestAnalyzer(t, stub, nil)

	responses := []store.SurveyResponse{
		response("r1", "q1", "first answer of decent length"),
		response("r2", "q1", "second answer of decent length"),
	}
	res, err := a.AnalyzeSession(context.Background(), responses, map[string]string{"q1": "Why?"})
	require.NoError(t, err)

	assert.False(t, res.Risk.Available())
	for _, r := range res.Responses {
		assert.False(t, r.Classified)
		assert.Nil(t, r.Quality)
	}
}

func TestAnalyzeSessionQueueFullIsBusy(t *testing.T) {
	stub := &StubClassifier{Fallback: classification(0, 0, 0, 0, 75)}
	a := newTestAnalyzer(t, stub, func(cfg *config.Config) {
		cfg.TextWorkerQueueSize = 0
	})

	_, err := a.AnalyzeSession(context.Background(), []store.SurveyResponse{
		response("r1", "q1", "a response that cannot be queued"),
	}, map[string]string{"q1": "Why?"})

	require.Error(t, err)
	assert.Equal(t, apperr.KindBusy, apperr.KindOf(err))
}

func TestAnalyzeSessionAveragesQualityAcrossResponses(t *testing.T) {
	stub := &StubClassifier{
		ByText: map[string]*Classification{
			"the good answer stays classified": classification(0, 0, 0, 0, 60),
		},
		Fallback: classification(0, 0, 0, 0, 90),
	}
	a := newTestAnalyzer(t, stub, nil)

	res, err := a.AnalyzeSession(context.Background(), []store.SurveyResponse{
		response("r1", "q1", "the good answer stays classified"),
		response("r2", "q1", "a different answer entirely here"),
	}, map[string]string{"q1": "Why?"})
	require.NoError(t, err)

	require.True(t, res.Risk.Available())
	// mean quality (60+90)/2 = 75 -> risk 0.25
	assert.InDelta(t, 0.25, res.Risk.Score(), 1e-9)
}

func TestDisabledClassifier(t *testing.T) {
	_, err := Disabled{}.Classify(context.Background(), Request{})
	assert.Equal(t, apperr.KindClassifierUnavailable, apperr.KindOf(err))
}

func TestStubClassifierErrPassthrough(t *testing.T) {
	sentinel := errors.New("boom")
	stub := &StubClassifier{Err: sentinel}

	_, err := stub.Classify(context.Background(), Request{})
	assert.ErrorIs(t, err, sentinel)
}
