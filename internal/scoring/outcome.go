package scoring

import "github.com/veridata/surveyguard/internal/outcome"

// Outcome lives in the leaf package internal/outcome so that analyzer
// packages (e.g. textquality) can produce it without importing scoring.
// These aliases preserve the scoring-package API.
type Outcome = outcome.Outcome

// Value wraps a computed score.
var Value = outcome.Value

// Neutral marks insufficient data; contributes 0.5 where used.
var Neutral = outcome.Neutral

// Unavailable marks a failed or skipped analyzer; its weight is
// redistributed rather than contributed.
var Unavailable = outcome.Unavailable
