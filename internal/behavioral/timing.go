package behavioral

import (
	"github.com/veridata/surveyguard/internal/event"
)

// Timing scores the session-wide event cadence: implausibly short sessions,
// event rates no human produces, and metronome-regular intervals.
func (a *Analyzer) Timing(events []event.Event) float64 {
	if len(events) < a.cfg.MinKeystrokeEvents {
		return Neutral
	}

	durationS := events[len(events)-1].Timestamp.Sub(events[0].Timestamp).Seconds()
	checks := 0

	if durationS < a.cfg.SessionMinDurationS {
		checks++
	}
	if durationS > 0 && float64(len(events))/durationS > a.cfg.SessionMaxRateEvS {
		checks++
	}

	deltas := deltasMs(events)
	intervalsS := make([]float64, len(deltas))
	for i, d := range deltas {
		intervalsS[i] = d / 1000.0
	}
	if len(intervalsS) >= 2 && stddev(intervalsS) < a.cfg.SessionIntervalStddevS {
		checks++
	}

	return float64(checks) / 3.0
}

// Network is a placeholder until request metadata reaches this layer; it
// contributes its weight as a constant neutral.
func (a *Analyzer) Network(_ []event.Event) float64 {
	return Neutral
}
