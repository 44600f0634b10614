// Package scoring blends the behavioral, text, and fraud verdicts into the
// authoritative composite decision and runs the end-to-end analysis of a
// session.
package scoring

import (
	"fmt"

	"github.com/veridata/surveyguard/internal/config"
)

// Risk levels, coarsest first.
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// Composite is the blended decision for one session.
type Composite struct {
	Score     float64 // the driving score (composite or behavioral)
	IsBot     bool
	RiskLevel string
	// UsedText and UsedFraud record which weight-rebalancing case applied.
	UsedText  bool
	UsedFraud bool
	Summary   string
}

// Compose blends behavioral confidence with text risk and fraud score,
// rebalancing weights when either is unavailable:
//
//	full:            0.40 b + 0.30 t + 0.30 f
//	text missing:    0.50 b + 0.50 f
//	fraud missing:   0.60 b + 0.40 t
//	both missing:    b
//
// Bot iff composite >= the composite threshold. The behavioral-only rule
// (strictly >) never applies here; behavioral.Result carries it.
func Compose(cfg *config.Config, behavioral float64, text, fraud Outcome) Composite {
	w := cfg.CompositeWeights

	var score float64
	usedText := text.Available()
	usedFraud := fraud.Available()
	switch {
	case usedText && usedFraud:
		score = w.Behavioral*behavioral + w.Text*text.Score() + w.Fraud*fraud.Score()
	case !usedText && usedFraud:
		score = 0.50*behavioral + 0.50*fraud.Score()
	case usedText && !usedFraud:
		score = 0.60*behavioral + 0.40*text.Score()
	default:
		score = behavioral
	}
	score = clamp01(score)

	isBot := score >= cfg.CompositeBotThreshold
	level := riskLevel(cfg, score)
	if !isBot {
		// Confidence in the human label is 1 - score; below 0.50 the label
		// is not trusted and the risk floor rises to high.
		if 1-score < 0.50 && level != RiskCritical {
			level = RiskHigh
		}
	}

	return Composite{
		Score:     score,
		IsBot:     isBot,
		RiskLevel: level,
		UsedText:  usedText,
		UsedFraud: usedFraud,
		Summary:   summarize(score, isBot, usedText, usedFraud),
	}
}

// riskLevel maps the driving score onto the configured ordered bands.
func riskLevel(cfg *config.Config, score float64) string {
	for _, b := range cfg.RiskBands {
		if score >= b.CompositeGE {
			return b.Level
		}
	}
	return RiskLow
}

func summarize(score float64, isBot, usedText, usedFraud bool) string {
	verdict := "human"
	if isBot {
		verdict = "bot"
	}
	inputs := "behavioral"
	if usedText {
		inputs += "+text"
	}
	if usedFraud {
		inputs += "+fraud"
	}
	return fmt.Sprintf("classified %s at %.3f (%s)", verdict, score, inputs)
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
