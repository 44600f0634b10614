// Package timing classifies per-response answer times: speeders, flatliners,
// and statistical anomalies against prior answers to the same question.
package timing

import (
	"math"

	"github.com/veridata/surveyguard/internal/config"
	"github.com/veridata/surveyguard/internal/store"
)

// Clamp ranges for adaptive thresholds.
const (
	speederFloorMs   = 500
	speederCeilMs    = 2000
	flatlinerFloorMs = 300000
	flatlinerCeilMs  = 600000
)

// Analyzer classifies response times. Pure; priors are passed in.
type Analyzer struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Classify evaluates one response time against the static thresholds, or
// against question-adaptive thresholds when enabled and at least 3 prior
// observations exist. priors are response times (ms) for the same question
// from other sessions of the survey.
func (a *Analyzer) Classify(sessionID, questionID string, responseTimeMs int64, priors []float64) store.TimingAnalysisRow {
	speederMs := a.cfg.SpeederMs
	flatlinerMs := a.cfg.FlatlinerMs

	var anomalyZ *float64
	if len(priors) >= 3 {
		mean, sd := meanStddev(priors)
		if sd > 0 {
			z := (float64(responseTimeMs) - mean) / sd
			anomalyZ = &z
		}
		if a.cfg.AdaptiveTimingEnabled {
			k := a.cfg.AdaptiveTimingK
			speederMs = clampF(mean-k*sd, speederFloorMs, speederCeilMs)
			flatlinerMs = clampF(mean+k*sd, flatlinerFloorMs, flatlinerCeilMs)
		}
	}

	return store.TimingAnalysisRow{
		SessionID:      sessionID,
		QuestionID:     questionID,
		ResponseTimeMs: responseTimeMs,
		IsSpeeder:      float64(responseTimeMs) < speederMs,
		IsFlatliner:    float64(responseTimeMs) > flatlinerMs,
		AnomalyZ:       anomalyZ,
	}
}

// IsAnomaly reports whether z crosses the configured cutoff.
func (a *Analyzer) IsAnomaly(z *float64) bool {
	return z != nil && math.Abs(*z) > a.cfg.AnomalyZ
}

func meanStddev(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}

func clampF(f, lo, hi float64) float64 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}
