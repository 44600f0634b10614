package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateFraudWeightsMustSumToOne(t *testing.T) {
	cfg := Default()
	cfg.FraudWeights.IP = 0.50

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fraud_weights")
}

func TestValidateBehavioralWeightsMustSumToOne(t *testing.T) {
	cfg := Default()
	cfg.BehavioralWeightsByName["keystroke"] = 0.50

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "behavioral_weights")
}

func TestValidateEventCapMustBePositive(t *testing.T) {
	cfg := Default()
	cfg.EventCountCap = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRiskBandOrdering(t *testing.T) {
	cfg := Default()
	cfg.RiskBands = []RiskBand{
		{CompositeGE: 0.40, Level: "medium"},
		{CompositeGE: 0.80, Level: "critical"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "risk_bands")
}

func TestValidateVelocityBandOrdering(t *testing.T) {
	cfg := Default()
	cfg.VelocityBands = []VelocityBand{
		{PerHour: 5, Score: 0.60},
		{PerHour: 20, Score: 1.00},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "velocity_bands")
}

func TestValidateSimilarityMetric(t *testing.T) {
	cfg := Default()
	cfg.SimilarityMetric = "levenshtein"
	assert.Error(t, cfg.Validate())
}

func TestLoadAppliesFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"listen_addr": ":9999",
		"log_level": "debug",
		"retention_days": 14
	}`), 0o644))

	t.Setenv("SURVEYGUARD_LOG_LEVEL", "warn")
	t.Setenv("SURVEYGUARD_EVENT_CAP", "500")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 14, cfg.RetentionDays)
	// Env beats the file.
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 500, cfg.EventCountCap)
	// Untouched keys keep their defaults.
	assert.Equal(t, 0.70, cfg.CompositeBotThreshold)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Setenv("SURVEYGUARD_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8470", cfg.ListenAddr)
	assert.Equal(t, 10*time.Second, cfg.ClassifierTimeout())
}

func TestLoadParsesClassifierDurationsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"text_classifier_timeout_ms": 2500,
		"text_cache_ttl_s": 600
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	// File values are ms and s, same units as the env overrides.
	assert.Equal(t, 2500*time.Millisecond, cfg.ClassifierTimeout())
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL())
}

func TestClassifierTimeoutEnvOverride(t *testing.T) {
	t.Setenv("SURVEYGUARD_CLASSIFIER_TIMEOUT_MS", "750")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.ClassifierTimeout())
}

func TestValidateClassifierDurationsMustBePositive(t *testing.T) {
	cfg := Default()
	cfg.TextClassifierTimeoutMs = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.TextCacheTTLSeconds = -1
	assert.Error(t, cfg.Validate())
}

func TestStoreSwapPublishesSnapshot(t *testing.T) {
	base := Default()
	s := NewStore(base)

	snap := s.Base()
	snap.CompositeBotThreshold = 0.85
	s.Swap(snap)

	assert.Equal(t, 0.85, s.Current().CompositeBotThreshold)
	// The base stays untouched, so a later rebuild reverts cleanly.
	assert.Equal(t, 0.70, base.CompositeBotThreshold)
	assert.Equal(t, 0.70, s.Base().CompositeBotThreshold)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"event_count_cap": -1}`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvIntIgnoresGarbage(t *testing.T) {
	t.Setenv("SURVEYGUARD_EVENT_CAP", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().EventCountCap, cfg.EventCountCap)
}
