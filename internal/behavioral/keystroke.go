package behavioral

import (
	"math"

	"github.com/veridata/surveyguard/internal/event"
)

// Keystroke scores typing rhythm. Four checks, each worth a quarter:
// machine-regular intervals, impossibly fast typing, abnormally slow typing,
// and intervals snapped to round multiples of 10 ms.
func (a *Analyzer) Keystroke(events []event.Event) float64 {
	keys := filterEvents(events, event.TypeKeystroke)
	if len(keys) < a.cfg.MinKeystrokeEvents {
		return Neutral
	}

	deltas := deltasMs(keys)
	if len(deltas) < 4 {
		return Neutral
	}

	m := mean(deltas)
	sd := stddev(deltas)

	checks := 0
	if sd < a.cfg.KeystrokeRegularMs {
		checks++
	}
	if m < a.cfg.KeystrokeFastMs {
		checks++
	}
	if m > a.cfg.KeystrokeSlowMs {
		checks++
	}

	round := 0
	for _, d := range deltas {
		if math.Mod(d, 10) == 0 {
			round++
		}
	}
	if float64(round)/float64(len(deltas)) > a.cfg.KeystrokeRoundShare {
		checks++
	}

	return math.Min(float64(checks)/4.0, 1.0)
}
