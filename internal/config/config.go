// Package config holds every tunable of the scoring engine. Values come from
// defaults, then an optional JSON config file, then environment variables
// (which take precedence). A .env file is honored when present.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Resolution is a screen resolution commonly reported by headless browsers.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// VelocityBand maps a responses-per-hour threshold to a velocity sub-score.
type VelocityBand struct {
	PerHour float64 `json:"per_hour"`
	Score   float64 `json:"score"`
}

// RiskBand maps a composite floor to a risk level label.
type RiskBand struct {
	CompositeGE float64 `json:"composite_ge"`
	Level       string  `json:"level"`
}

// FraudWeights are the component weights of the overall fraud score.
type FraudWeights struct {
	IP        float64 `json:"ip"`
	Device    float64 `json:"device"`
	Duplicate float64 `json:"duplicate"`
	Geo       float64 `json:"geo"`
	Velocity  float64 `json:"velocity"`
}

// CompositeWeights blend behavioral, text, and fraud scores.
type CompositeWeights struct {
	Behavioral float64 `json:"behavioral"`
	Text       float64 `json:"text"`
	Fraud      float64 `json:"fraud"`
}

// Config is the full engine configuration.
type Config struct {
	ListenAddr     string   `json:"listen_addr"`
	DataDir        string   `json:"data_dir"`
	GeoIPPath      string   `json:"geoip_path"`
	AllowedOrigins []string `json:"allowed_origins"`

	// Logging
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"` // json or console

	// Keys fingerprint derivation to this installation.
	FingerprintSecret string `json:"fingerprint_secret"`

	// Ingest
	EventCountCap    int `json:"event_count_cap"`
	IngestRatePerMin int `json:"ingest_rate_per_min"`
	RetentionDays    int `json:"retention_days"` // 0 disables cleanup

	// Behavioral analyzers
	MinKeystrokeEvents      int                `json:"min_event_count_for_analysis"`
	MinMouseEvents          int                `json:"min_mouse_event_count"`
	KeystrokeRegularMs      float64            `json:"keystroke_regular_ms"`
	KeystrokeFastMs         float64            `json:"keystroke_fast_ms"`
	KeystrokeSlowMs         float64            `json:"keystroke_slow_ms"`
	KeystrokeRoundShare     float64            `json:"keystroke_round_share"`
	MouseMaxSpeedPxS        float64            `json:"mouse_max_speed_px_s"`
	MousePerfectPrecision   float64            `json:"mouse_perfect_precision"`
	MouseDistanceStddevPx   float64            `json:"mouse_distance_stddev_px"`
	SessionMinDurationS     float64            `json:"session_min_duration_s"`
	SessionMaxRateEvS       float64            `json:"session_max_rate_ev_s"`
	SessionIntervalStddevS  float64            `json:"session_interval_stddev_s"`
	BotResolutions          []Resolution       `json:"bot_resolutions"`
	BehavioralBotThreshold  float64            `json:"behavioral_bot_threshold"`
	BehavioralWeightsByName map[string]float64 `json:"behavioral_weights"`

	// Text quality. The timeout and TTL are plain integers (ms and s) so the
	// JSON file and the env path agree on units.
	MinResponseLengthChars  int    `json:"min_response_length_chars"`
	TextClassifierURL       string `json:"text_classifier_url"`
	TextClassifierTimeoutMs int    `json:"text_classifier_timeout_ms"`
	TextClassifierRetries   int    `json:"text_classifier_retries"`
	TextCacheCapacity       int    `json:"text_cache_capacity"`
	TextCacheTTLSeconds     int    `json:"text_cache_ttl_s"`
	TextWorkerQueueSize     int    `json:"text_worker_queue_size"`
	TextWorkerCount         int    `json:"text_worker_count"`

	// Fraud
	FraudWeights       FraudWeights   `json:"fraud_weights"`
	DuplicateThreshold float64        `json:"duplicate_threshold"`
	SimilarityMetric   string         `json:"similarity_metric"`
	VelocityBands      []VelocityBand `json:"velocity_bands"`

	// Composite
	CompositeWeights      CompositeWeights `json:"composite_weights"`
	CompositeBotThreshold float64          `json:"composite_bot_threshold"`
	RiskBands             []RiskBand       `json:"risk_bands"`

	// Grid
	GridStraightlineShare float64 `json:"grid_straightline_share"`
	GridMinRows           int     `json:"grid_min_rows"`
	GridPatternMinRows    int     `json:"grid_pattern_min_rows"`

	// Per-response timing
	SpeederMs             float64 `json:"speeder_ms"`
	FlatlinerMs           float64 `json:"flatliner_ms"`
	AnomalyZ              float64 `json:"anomaly_z"`
	AdaptiveTimingEnabled bool    `json:"adaptive_timing_enabled"`
	AdaptiveTimingK       float64 `json:"adaptive_timing_k"`
}

// Default returns the documented defaults for every option.
func Default() *Config {
	return &Config{
		ListenAddr:     ":8470",
		DataDir:        "./data",
		GeoIPPath:      "./data/GeoLite2-City.mmdb",
		AllowedOrigins: []string{"*"},

		LogLevel:  "info",
		LogFormat: "json",

		FingerprintSecret: "change-me",

		EventCountCap:    10000,
		IngestRatePerMin: 600,
		RetentionDays:    0,

		MinKeystrokeEvents:     5,
		MinMouseEvents:         3,
		KeystrokeRegularMs:     10,
		KeystrokeFastMs:        50,
		KeystrokeSlowMs:        2000,
		KeystrokeRoundShare:    0.80,
		MouseMaxSpeedPxS:       1000,
		MousePerfectPrecision:  0.99,
		MouseDistanceStddevPx:  5,
		SessionMinDurationS:    10,
		SessionMaxRateEvS:      50,
		SessionIntervalStddevS: 0.1,
		BotResolutions: []Resolution{
			{1920, 1080}, {1366, 768}, {1440, 900},
		},
		BehavioralBotThreshold: 0.70,
		BehavioralWeightsByName: map[string]float64{
			"keystroke": 0.30,
			"mouse":     0.25,
			"timing":    0.20,
			"device":    0.15,
			"network":   0.10,
		},

		MinResponseLengthChars:  10,
		TextClassifierTimeoutMs: 10000,
		TextClassifierRetries:   3,
		TextCacheCapacity:       4096,
		TextCacheTTLSeconds:     3600,
		TextWorkerQueueSize:     256,
		TextWorkerCount:         8,

		FraudWeights: FraudWeights{
			IP: 0.25, Device: 0.25, Duplicate: 0.20, Geo: 0.15, Velocity: 0.15,
		},
		DuplicateThreshold: 0.70,
		SimilarityMetric:   "trigram-jaccard",
		VelocityBands: []VelocityBand{
			{PerHour: 20, Score: 1.00},
			{PerHour: 10, Score: 0.80},
			{PerHour: 5, Score: 0.60},
			{PerHour: 3, Score: 0.40},
		},

		CompositeWeights:      CompositeWeights{Behavioral: 0.40, Text: 0.30, Fraud: 0.30},
		CompositeBotThreshold: 0.70,
		RiskBands: []RiskBand{
			{CompositeGE: 0.80, Level: "critical"},
			{CompositeGE: 0.60, Level: "high"},
			{CompositeGE: 0.40, Level: "medium"},
			{CompositeGE: 0.00, Level: "low"},
		},

		GridStraightlineShare: 0.80,
		GridMinRows:           2,
		GridPatternMinRows:    3,

		SpeederMs:             2000,
		FlatlinerMs:           300000,
		AnomalyZ:              2.5,
		AdaptiveTimingEnabled: false,
		AdaptiveTimingK:       1.0,
	}
}

// ClassifierTimeout is the per-call classifier deadline.
func (c *Config) ClassifierTimeout() time.Duration {
	return time.Duration(c.TextClassifierTimeoutMs) * time.Millisecond
}

// CacheTTL is how long a cached classification stays valid.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.TextCacheTTLSeconds) * time.Second
}

// Load builds the config from defaults, an optional JSON file, and env vars.
func Load(path string) (*Config, error) {
	// .env is optional; ignore absence.
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv("SURVEYGUARD_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromEnv(cfg *Config) {
	if v := os.Getenv("SURVEYGUARD_LISTEN"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("SURVEYGUARD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SURVEYGUARD_GEOIP_PATH"); v != "" {
		cfg.GeoIPPath = v
	}
	if v := os.Getenv("SURVEYGUARD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SURVEYGUARD_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("SURVEYGUARD_CLASSIFIER_URL"); v != "" {
		cfg.TextClassifierURL = v
	}
	if v := os.Getenv("SURVEYGUARD_SECRET"); v != "" {
		cfg.FingerprintSecret = v
	}
	if v, ok := envInt("SURVEYGUARD_EVENT_CAP"); ok {
		cfg.EventCountCap = v
	}
	if v, ok := envInt("SURVEYGUARD_RETENTION_DAYS"); ok {
		cfg.RetentionDays = v
	}
	if v, ok := envInt("SURVEYGUARD_CLASSIFIER_TIMEOUT_MS"); ok {
		cfg.TextClassifierTimeoutMs = v
	}
	if v, ok := envInt("SURVEYGUARD_CLASSIFIER_RETRIES"); ok {
		cfg.TextClassifierRetries = v
	}
}

func envInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate rejects configurations that would silently skew scoring.
func (c *Config) Validate() error {
	fw := c.FraudWeights
	sum := fw.IP + fw.Device + fw.Duplicate + fw.Geo + fw.Velocity
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("fraud_weights must sum to 1, got %.4f", sum)
	}
	var bsum float64
	for _, w := range c.BehavioralWeightsByName {
		bsum += w
	}
	if math.Abs(bsum-1.0) > 1e-9 {
		return fmt.Errorf("behavioral_weights must sum to 1, got %.4f", bsum)
	}
	if c.EventCountCap <= 0 {
		return fmt.Errorf("event_count_cap must be positive")
	}
	if c.TextClassifierTimeoutMs <= 0 {
		return fmt.Errorf("text_classifier_timeout_ms must be positive")
	}
	if c.TextCacheTTLSeconds <= 0 {
		return fmt.Errorf("text_cache_ttl_s must be positive")
	}
	for i := 1; i < len(c.RiskBands); i++ {
		if c.RiskBands[i].CompositeGE >= c.RiskBands[i-1].CompositeGE {
			return fmt.Errorf("risk_bands must be ordered by descending composite_ge")
		}
	}
	for i := 1; i < len(c.VelocityBands); i++ {
		if c.VelocityBands[i].PerHour >= c.VelocityBands[i-1].PerHour {
			return fmt.Errorf("velocity_bands must be ordered by descending per_hour")
		}
	}
	if c.SimilarityMetric != "trigram-jaccard" {
		return fmt.Errorf("unsupported similarity_metric %q", c.SimilarityMetric)
	}
	return nil
}
