// Package behavioral holds the five pure analyzers over a session's event
// sequence: keystroke, mouse, timing, device, network. Each produces a risk
// score in [0,1] and returns the neutral 0.5 when it has too little data to
// say anything.
package behavioral

import (
	"math"

	"github.com/veridata/surveyguard/internal/config"
	"github.com/veridata/surveyguard/internal/event"
)

// Neutral is the score an analyzer returns with insufficient data.
const Neutral = 0.5

// Method names used as keys in DetectionResult.method_scores.
const (
	MethodKeystroke = "keystroke"
	MethodMouse     = "mouse"
	MethodTiming    = "timing"
	MethodDevice    = "device"
	MethodNetwork   = "network"
)

// Analyzer evaluates a session's events against configured thresholds. It
// holds no mutable state and is safe for concurrent use.
type Analyzer struct {
	cfg *config.Config
}

// New creates an analyzer bound to cfg.
func New(cfg *config.Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Result is the behavioral verdict for one session.
type Result struct {
	MethodScores map[string]float64 `json:"method_scores"`
	Confidence   float64            `json:"confidence"`
	IsBot        bool               `json:"is_bot"`
}

// Analyze runs all five analyzers and blends them with the configured
// weights. The session is classified bot when the weighted confidence is
// strictly above the behavioral threshold.
func (a *Analyzer) Analyze(events []event.Event) Result {
	scores := map[string]float64{
		MethodKeystroke: a.Keystroke(events),
		MethodMouse:     a.Mouse(events),
		MethodTiming:    a.Timing(events),
		MethodDevice:    a.Device(events),
		MethodNetwork:   a.Network(events),
	}

	var confidence float64
	for name, w := range a.cfg.BehavioralWeightsByName {
		confidence += w * scores[name]
	}
	confidence = clamp01(confidence)

	return Result{
		MethodScores: scores,
		Confidence:   confidence,
		IsBot:        confidence > a.cfg.BehavioralBotThreshold,
	}
}

func filterEvents(events []event.Event, types ...event.Type) []event.Event {
	out := make([]event.Event, 0, len(events))
	for _, e := range events {
		for _, t := range types {
			if e.Type == t {
				out = append(out, e)
				break
			}
		}
	}
	return out
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

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// deltasMs returns positive inter-event gaps in milliseconds. Non-positive
// gaps (clock skew, duplicated timestamps) are dropped.
func deltasMs(events []event.Event) []float64 {
	out := make([]float64, 0, len(events))
	for i := 1; i < len(events); i++ {
		d := events[i].Timestamp.Sub(events[i-1].Timestamp).Milliseconds()
		if d > 0 {
			out = append(out, float64(d))
		}
	}
	return out
}
