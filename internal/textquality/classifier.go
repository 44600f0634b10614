// Package textquality derives per-response quality flags and a session-level
// text risk from an external LLM classifier behind a stable JSON contract.
package textquality

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/veridata/surveyguard/internal/apperr"
)

// Request is the classifier input contract.
type Request struct {
	QuestionText string `json:"question_text"`
	ResponseText string `json:"response_text"`
	MinLength    int    `json:"min_length"`
}

// Classification is the strict response JSON of the classifier.
type Classification struct {
	Gibberish struct {
		Probability float64 `json:"probability"`
		Evidence    string  `json:"evidence"`
	} `json:"gibberish"`
	CopyPaste struct {
		Probability float64 `json:"probability"`
		Evidence    string  `json:"evidence"`
	} `json:"copy_paste"`
	Relevance struct {
		OffTopicProbability float64 `json:"off_topic_probability"`
		Evidence            string  `json:"evidence"`
	} `json:"relevance"`
	Generic struct {
		Probability float64 `json:"probability"`
		Evidence    string  `json:"evidence"`
	} `json:"generic"`
	Quality struct {
		Score     float64 `json:"score"`
		Rationale string  `json:"rationale"`
	} `json:"quality"`
}

// TextClassifier is the capability the analyzer depends on. The default
// implementation calls the LLM service; tests use a deterministic stub.
type TextClassifier interface {
	Classify(ctx context.Context, req Request) (*Classification, error)
}

// HTTPClassifier calls the LLM classifier endpoint with a per-call deadline,
// bounded retries with jittered exponential backoff, and a circuit breaker.
// 4xx responses are permanent failures and are never retried.
type HTTPClassifier struct {
	url     string
	timeout time.Duration
	retries int
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPClassifier builds the production classifier client.
func NewHTTPClassifier(url string, timeout time.Duration, retries int) *HTTPClassifier {
	return &HTTPClassifier{
		url:     url,
		timeout: timeout,
		retries: retries,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "text-classifier",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// Classify performs the call, retrying transport errors and 5xx up to the
// configured limit.
func (c *HTTPClassifier) Classify(ctx context.Context, req Request) (*Classification, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "encode classifier request", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, apperr.Wrap(apperr.KindClassifierUnavailable, "classifier call canceled", ctx.Err())
			case <-time.After(backoff(attempt)):
			}
		}

		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.once(ctx, body)
		})
		if err == nil {
			return result.(*Classification), nil
		}
		if apperr.KindOf(err) == apperr.KindValidationFailed {
			// 4xx: the request itself is rejected; retrying cannot help.
			return nil, apperr.Wrap(apperr.KindClassifierUnavailable, "classifier rejected request", err)
		}
		lastErr = err
	}
	return nil, apperr.Wrap(apperr.KindClassifierUnavailable, "classifier failed after retries", lastErr)
}

func (c *HTTPClassifier) once(ctx context.Context, body []byte) (*Classification, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apperr.Newf(apperr.KindValidationFailed, "classifier returned %d: %s", resp.StatusCode, string(b))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier returned %d", resp.StatusCode)
	}

	var out Classification
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode classifier response: %w", err)
	}
	return &out, nil
}

func backoff(attempt int) time.Duration {
	base := 500 * time.Millisecond << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(base) / 2))
	return base + jitter
}

// Disabled is the classifier used when no endpoint is configured; every
// call reports unavailable and text scoring degrades per the composite
// fallback rules.
type Disabled struct{}

func (Disabled) Classify(context.Context, Request) (*Classification, error) {
	return nil, apperr.New(apperr.KindClassifierUnavailable, "text classifier not configured")
}

// StubClassifier returns canned classifications keyed by response text, and
// a fallback for everything else. Deterministic; used by tests.
type StubClassifier struct {
	ByText   map[string]*Classification
	Fallback *Classification
	Err      error

	mu    sync.Mutex
	calls int
}

// Calls reports how many times Classify ran.
func (s *StubClassifier) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *StubClassifier) Classify(_ context.Context, req Request) (*Classification, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if c, ok := s.ByText[req.ResponseText]; ok {
		return c, nil
	}
	if s.Fallback != nil {
		return s.Fallback, nil
	}
	c := &Classification{}
	c.Quality.Score = 75
	return c, nil
}
