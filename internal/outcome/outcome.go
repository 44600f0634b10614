package outcome

// Outcome is an analyzer output that distinguishes a real score from the
// two degraded states, so the composite scorer branches on the variant
// instead of on sentinel floats.
type Outcome struct {
	score       float64
	neutral     bool
	unavailable bool
}

// Value wraps a computed score.
func Value(score float64) Outcome {
	return Outcome{score: score}
}

// Neutral marks insufficient data; contributes 0.5 where used.
func Neutral() Outcome {
	return Outcome{score: 0.5, neutral: true}
}

// Unavailable marks a failed or skipped analyzer; its weight is
// redistributed rather than contributed.
func Unavailable() Outcome {
	return Outcome{unavailable: true}
}

// Score returns the wrapped value; only meaningful when Available.
func (o Outcome) Score() float64 { return o.score }

// Available reports whether the outcome carries a usable score.
func (o Outcome) Available() bool { return !o.unavailable }

// IsNeutral reports the insufficient-data state.
func (o Outcome) IsNeutral() bool { return o.neutral }
