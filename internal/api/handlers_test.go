package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veridata/surveyguard/internal/aggregate"
	"github.com/veridata/surveyguard/internal/clock"
	"github.com/veridata/surveyguard/internal/config"
	"github.com/veridata/surveyguard/internal/event"
	"github.com/veridata/surveyguard/internal/fraud"
	"github.com/veridata/surveyguard/internal/metrics"
	"github.com/veridata/surveyguard/internal/scoring"
	"github.com/veridata/surveyguard/internal/settings"
	"github.com/veridata/surveyguard/internal/store"
	"github.com/veridata/surveyguard/internal/textquality"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	srv *httptest.Server
	cfg *config.Store
	db  *store.DB
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	base := config.Default()
	if mutate != nil {
		mutate(base)
	}
	cfg := config.NewStore(base)
	fixed := clock.NewFixed(baseTime)
	db, err := store.NewMemory(store.WithClock(fixed))
	require.NoError(t, err)

	log := zap.NewNop()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	textAnalyzer := textquality.NewAnalyzer(cfg, textquality.Disabled{}, log)
	fraudAnalyzer := fraud.New(cfg, db, fraud.StaticResolver{}, log)
	scorer := scoring.NewService(cfg, db, textAnalyzer, fraudAnalyzer, fixed, m, log)

	srv := httptest.NewServer(NewRouter(Deps{
		Cfg:           cfg,
		DB:            db,
		Scorer:        scorer,
		Aggregator:    aggregate.New(db, cfg),
		Settings:      settings.New(db.Conn()),
		Fingerprinter: fraud.NewFingerprinter("test-secret"),
		Metrics:       m,
		Log:           log,
	}))
	t.Cleanup(func() {
		srv.Close()
		db.Close()
	})
	return &testEnv{srv: srv, cfg: cfg, db: db}
}

// do sends a JSON request and decodes the JSON reply into a generic map.
func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) Chrome/120.0")

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp.StatusCode, decoded
}

func (e *testEnv) createSession(t *testing.T, surveyID, platformID, respondentID string) string {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/sessions", map[string]string{
		"survey_id":     surveyID,
		"platform_id":   platformID,
		"respondent_id": respondentID,
	})
	require.Equal(t, http.StatusCreated, status)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func keystrokeBatch(n int, step time.Duration) map[string]interface{} {
	events := make([]event.Event, n)
	for i := range events {
		events[i] = event.Event{Type: event.TypeKeystroke, Timestamp: baseTime.Add(time.Duration(i) * step)}
	}
	return map[string]interface{}{"events": events}
}

func TestHealthAndVersion(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	status, body = env.do(t, http.MethodGet, "/api/version", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["version"])
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	id := env.createSession(t, "svy-life", "panel-a", "r1")

	status, body := env.do(t, http.MethodGet, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "active", body["status"])
	assert.Equal(t, "svy-life", body["survey_id"])
	assert.NotEmpty(t, body["fingerprint"])

	status, _ = env.do(t, http.MethodPut, "/sessions/"+id+"/status", map[string]string{"status": "completed"})
	assert.Equal(t, http.StatusOK, status)

	// Lifecycle only moves forward.
	status, body = env.do(t, http.MethodPut, "/sessions/"+id+"/status", map[string]string{"status": "active"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["detail"], "status")

	status, _ = env.do(t, http.MethodDelete, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = env.do(t, http.MethodGet, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCreateSessionStoresClientIPWithoutPort(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createSession(t, "svy-ip", "panel-a", "r1")

	s, err := env.db.ReadSession(context.Background(), id)
	require.NoError(t, err)
	// The ephemeral client port must not leak into the stored address, or
	// the IP reuse and geo lookups would never match anything.
	assert.Equal(t, "127.0.0.1", s.IPAddress)
}

func TestCreateSessionValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodPost, "/sessions", map[string]string{
		"platform_id":   "panel-a",
		"respondent_id": "r1",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["detail"], "survey_id")
}

func TestMalformedBodyRejected(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := env.srv.Client().Post(env.srv.URL+"/sessions", "application/json",
		strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRejectsUnknownBodyFields(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodPost, "/sessions", map[string]interface{}{
		"survey_id":     "svy-strict",
		"platform_id":   "panel-a",
		"respondent_id": "r1",
		"color":         "blue",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["detail"], "malformed request body")
}

func TestIngestAndListEvents(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createSession(t, "svy-ingest", "panel-a", "r1")

	status, body := env.do(t, http.MethodPost, "/sessions/"+id+"/events", keystrokeBatch(3, 150*time.Millisecond))
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, 3.0, body["accepted"])
	assert.Equal(t, 3.0, body["event_count"])

	status, body = env.do(t, http.MethodGet, "/sessions/"+id+"/events", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 3.0, body["count"])
}

func TestIngestRejectsInvalidEvent(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createSession(t, "svy-badev", "panel-a", "r1")

	status, body := env.do(t, http.MethodPost, "/sessions/"+id+"/events", map[string]interface{}{
		"events": []map[string]interface{}{
			{"event_type": "telepathy", "timestamp": baseTime},
		},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["detail"], "event_type")
}

func TestIngestUnknownSession(t *testing.T) {
	env := newTestEnv(t, nil)

	status, _ := env.do(t, http.MethodPost, "/sessions/no-such/events", keystrokeBatch(1, time.Millisecond))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestIngestCapRejectsWholeBatch(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.EventCountCap = 5 })
	id := env.createSession(t, "svy-cap", "panel-a", "r1")

	status, _ := env.do(t, http.MethodPost, "/sessions/"+id+"/events", keystrokeBatch(3, 100*time.Millisecond))
	require.Equal(t, http.StatusAccepted, status)

	status, body := env.do(t, http.MethodPost, "/sessions/"+id+"/events", keystrokeBatch(3, 100*time.Millisecond))
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, body["detail"], "cap")

	status, body = env.do(t, http.MethodGet, "/sessions/"+id+"/events", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 3.0, body["count"])
}

func TestGridRowsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createSession(t, "svy-gridrows", "panel-a", "r1")

	status, body := env.do(t, http.MethodPost, "/sessions/"+id+"/grid-responses", map[string]interface{}{
		"question_id": "qg",
		"rows": []map[string]interface{}{
			{"row_id": "a", "value": "4", "response_time_ms": 900},
			{"row_id": "b", "value": "4", "response_time_ms": 700},
		},
	})
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, 2.0, body["rows"])

	status, _ = env.do(t, http.MethodPost, "/sessions/"+id+"/grid-responses", map[string]interface{}{
		"rows": []map[string]interface{}{{"row_id": "a", "value": "4"}},
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAnalyzeSessionEndToEnd(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createSession(t, "svy-analyze", "panel-a", "r1")

	status, _ := env.do(t, http.MethodPost, "/sessions/"+id+"/events", keystrokeBatch(10, 137*time.Millisecond))
	require.Equal(t, http.StatusAccepted, status)

	status, q := env.do(t, http.MethodPost, "/sessions/"+id+"/questions", map[string]string{
		"question_text": "What did you think of the checkout flow?",
		"question_type": "open_ended",
	})
	require.Equal(t, http.StatusCreated, status)
	questionID, _ := q["id"].(string)
	require.NotEmpty(t, questionID)

	status, _ = env.do(t, http.MethodPost, "/sessions/"+id+"/responses", map[string]interface{}{
		"question_id":      questionID,
		"response_text":    "It took a few tries to find the coupon field but checkout itself was fine.",
		"response_time_ms": 18000,
	})
	require.Equal(t, http.StatusCreated, status)

	status, body := env.do(t, http.MethodPost, "/sessions/"+id+"/grid-responses", map[string]interface{}{
		"question_id": "qg",
		"rows": []map[string]interface{}{
			{"row_id": "a", "value": "4"}, {"row_id": "b", "value": "4"},
			{"row_id": "c", "value": "4"}, {"row_id": "d", "value": "4"},
		},
	})
	require.Equal(t, http.StatusCreated, status)

	status, body = env.do(t, http.MethodPost, "/sessions/"+id+"/analyze", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["is_bot"])
	assert.Equal(t, "low", body["risk_level"])
	assert.Equal(t, 10.0, body["event_count"])
	assert.NotEmpty(t, body["summary"])

	status, body = env.do(t, http.MethodGet, "/sessions/"+id+"/detection", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["is_bot"])

	status, body = env.do(t, http.MethodGet, "/sessions/"+id+"/fraud", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, id, body["session_id"])

	status, body = env.do(t, http.MethodGet, "/grid-analysis/sessions/"+id, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1.0, body["count"])

	status, body = env.do(t, http.MethodGet, "/timing-analysis/sessions/"+id, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1.0, body["count"])
}

func TestDetectionBeforeAnalysis(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createSession(t, "svy-nodet", "panel-a", "r1")

	status, _ := env.do(t, http.MethodGet, "/sessions/"+id+"/detection", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSummaryEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createSession(t, "svy-sum", "panel-a", "r1")
	env.createSession(t, "svy-sum", "panel-a", "r2")
	env.createSession(t, "svy-sum", "panel-b", "r3")

	status, body := env.do(t, http.MethodGet, "/surveys/svy-sum/summary", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 3.0, body["total_sessions"])
	assert.Equal(t, 2.0, body["total_platforms"])

	status, body = env.do(t, http.MethodGet, "/surveys/svy-sum/platforms/panel-a/summary", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2.0, body["total_sessions"])

	status, _ = env.do(t, http.MethodGet, "/surveys/svy-absent/summary", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = env.do(t, http.MethodGet, "/surveys/", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1.0, body["count"])

	status, body = env.do(t, http.MethodGet, "/surveys/svy-sum/platforms/", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2.0, body["count"])

	status, _ = env.do(t, http.MethodGet, "/surveys/svy-sum/summary?date_from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAnalysisSummariesByQuery(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createSession(t, "svy-qsum", "panel-a", "r1")

	for _, path := range []string{
		"/fraud/summary?survey_id=svy-qsum",
		"/grid-analysis/summary?survey_id=svy-qsum",
		"/timing-analysis/summary?survey_id=svy-qsum",
		"/text-analysis/summary?survey_id=svy-qsum",
	} {
		status, body := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, status, path)
		assert.NotNil(t, body, path)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodPut, "/api/settings", map[string]string{
		"composite_bot_threshold": "0.85",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1.0, body["updated"])

	// The update publishes a fresh snapshot; the startup config is untouched.
	assert.Equal(t, 0.85, env.cfg.Current().CompositeBotThreshold)
	assert.Equal(t, 0.70, env.cfg.Base().CompositeBotThreshold)

	status, body = env.do(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "0.85", body["composite_bot_threshold"])
}

func TestSettingsRejectsUnknownKey(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodPut, "/api/settings", map[string]string{
		"composite_bot_threshold": "0.85",
		"warp_factor":             "9",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["detail"], "warp_factor")

	// Whole batch rejected; nothing applied.
	assert.Equal(t, 0.70, env.cfg.Current().CompositeBotThreshold)
}

func TestSettingsUpdateSafeUnderConcurrentReads(t *testing.T) {
	env := newTestEnv(t, nil)

	// Readers hammer the live snapshot while an update swaps it; under the
	// race detector this fails if any config field is written in place.
	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					_ = env.cfg.Current().CompositeBotThreshold
				}
			}
		}()
	}

	status, _ := env.do(t, http.MethodPut, "/api/settings", map[string]string{
		"composite_bot_threshold": "0.85",
	})
	close(done)
	wg.Wait()

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0.85, env.cfg.Current().CompositeBotThreshold)
}

func TestIngestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.IngestRatePerMin = 3 })

	var last int
	for i := 0; i < 4; i++ {
		last, _ = env.do(t, http.MethodPost, "/sessions", map[string]string{
			"survey_id":     "svy-rate",
			"platform_id":   "panel-a",
			"respondent_id": fmt.Sprintf("r%d", i),
		})
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
