package textquality

import (
	"context"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/veridata/surveyguard/internal/apperr"
	"github.com/veridata/surveyguard/internal/config"
	"github.com/veridata/surveyguard/internal/outcome"
	"github.com/veridata/surveyguard/internal/store"
)

// Flag reasons attached to individual responses, in priority order.
const (
	FlagGibberish  = "gibberish"
	FlagIrrelevant = "irrelevant"
	FlagCopyPaste  = "copy_paste"
	FlagGeneric    = "generic"
	FlagLowQuality = "low_quality"
)

// ResponseResult is the per-response verdict.
type ResponseResult struct {
	ResponseID string
	Quality    *float64
	Flagged    bool
	Reasons    []string
	Confidence float64
	Classified bool
}

// SessionResult rolls the per-response verdicts into a session text risk.
type SessionResult struct {
	Risk      outcome.Outcome
	Responses []ResponseResult
}

// Analyzer classifies the open-text responses of a session and derives the
// session text risk. Classifier calls are cached by content hash, coalesced
// so concurrent sessions with identical text share one call, and throttled
// by a bounded queue so an overloaded classifier surfaces as busy instead of
// as piled-up goroutines.
type Analyzer struct {
	cfg        *config.Store
	classifier TextClassifier
	cache      *Cache
	flight     singleflight.Group
	queue      chan struct{}
	log        *zap.Logger
}

// NewAnalyzer wires the analyzer from configuration. Cache and queue sizing
// are fixed at startup; the length threshold tracks runtime overrides.
func NewAnalyzer(cfg *config.Store, classifier TextClassifier, log *zap.Logger) *Analyzer {
	boot := cfg.Current()
	return &Analyzer{
		cfg:        cfg,
		classifier: classifier,
		cache:      NewCache(boot.TextCacheCapacity, boot.CacheTTL()),
		queue:      make(chan struct{}, boot.TextWorkerQueueSize),
		log:        log,
	}
}

// AnalyzeSession classifies every response long enough to carry signal and
// computes the session text risk as 1 - mean(quality)/100 over the classified
// responses. The risk is unavailable when nothing qualifies or every
// classification fails. questionText maps question id to its prompt.
func (a *Analyzer) AnalyzeSession(ctx context.Context, responses []store.SurveyResponse, questionText map[string]string) (SessionResult, error) {
	cfg := a.cfg.Current()

	eligible := make([]store.SurveyResponse, 0, len(responses))
	for _, r := range responses {
		if utf8.RuneCountInString(r.ResponseText) >= cfg.MinResponseLengthChars {
			eligible = append(eligible, r)
		}
	}
	if len(eligible) == 0 {
		return SessionResult{Risk: outcome.Unavailable()}, nil
	}

	results := make([]ResponseResult, len(eligible))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.TextWorkerCount)
	for i, r := range eligible {
		i, r := i, r
		g.Go(func() error {
			cls, err := a.classify(gctx, questionText[r.QuestionID], r.ResponseText, cfg.MinResponseLengthChars)
			if err != nil {
				if apperr.KindOf(err) == apperr.KindBusy {
					return err
				}
				a.log.Warn("response classification failed",
					zap.String("response_id", r.ID),
					zap.Error(err))
				results[i] = ResponseResult{ResponseID: r.ID}
				return nil
			}
			results[i] = evaluate(r.ID, cls)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SessionResult{}, err
	}

	var sum float64
	classified := 0
	for _, r := range results {
		if r.Classified {
			sum += *r.Quality
			classified++
		}
	}
	if classified == 0 {
		return SessionResult{Risk: outcome.Unavailable(), Responses: results}, nil
	}
	risk := clamp01(1 - (sum/float64(classified))/100)
	return SessionResult{Risk: outcome.Value(risk), Responses: results}, nil
}

// classify consults the cache, then coalesces identical in-flight lookups
// before paying for a classifier call. A full queue means the classifier is
// saturated and the caller should back off.
func (a *Analyzer) classify(ctx context.Context, question, response string, minLen int) (*Classification, error) {
	key := cacheKey(question, response)
	if cls, ok := a.cache.Get(key); ok {
		return cls, nil
	}

	v, err, _ := a.flight.Do(key, func() (interface{}, error) {
		if cls, ok := a.cache.Get(key); ok {
			return cls, nil
		}
		select {
		case a.queue <- struct{}{}:
			defer func() { <-a.queue }()
		default:
			return nil, apperr.New(apperr.KindBusy, "text classification queue is full")
		}

		cls, err := a.classifier.Classify(ctx, Request{
			QuestionText: question,
			ResponseText: response,
			MinLength:    minLen,
		})
		if err != nil {
			return nil, err
		}
		a.cache.Set(key, cls)
		return cls, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Classification), nil
}

// evaluate applies the flag rules in priority order: gibberish suppresses the
// generic and low-quality checks, relevance suppresses generic.
func evaluate(responseID string, cls *Classification) ResponseResult {
	var reasons []string
	skipGeneric := false
	skipLowQuality := false

	if cls.Gibberish.Probability > 0.70 {
		reasons = append(reasons, FlagGibberish)
		skipGeneric = true
		skipLowQuality = true
	} else if cls.Relevance.OffTopicProbability >= 0.70 {
		reasons = append(reasons, FlagIrrelevant)
		skipGeneric = true
	}
	if cls.CopyPaste.Probability >= 0.70 {
		reasons = append(reasons, FlagCopyPaste)
	}
	if !skipGeneric && cls.Generic.Probability > 0.70 {
		reasons = append(reasons, FlagGeneric)
	}
	if !skipLowQuality && cls.Quality.Score < 30 {
		reasons = append(reasons, FlagLowQuality)
	}
	quality := cls.Quality.Score
	confidence := (cls.Gibberish.Probability + cls.CopyPaste.Probability +
		cls.Relevance.OffTopicProbability + cls.Generic.Probability) / 4

	return ResponseResult{
		ResponseID: responseID,
		Quality:    &quality,
		Flagged:    len(reasons) > 0,
		Reasons:    reasons,
		Confidence: confidence,
		Classified: true,
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
