// Package grid runs structural checks over grid-question answers:
// straight-lining, shape patterns, variance, and satisficing.
package grid

import (
	"math"
	"sort"
	"strconv"

	"github.com/veridata/surveyguard/internal/config"
	"github.com/veridata/surveyguard/internal/store"
)

// Pattern labels, tested in this order; the first match wins.
const (
	PatternNone            = ""
	PatternDiagonal        = "diagonal"
	PatternReverseDiagonal = "reverse_diagonal"
	PatternZigzag          = "zigzag"
)

// Analysis is the outcome for one grid question.
type Analysis struct {
	QuestionID       string
	RowCount         int
	StraightLined    bool
	Confidence       float64
	Pattern          string
	VarianceScore    float64
	SatisficingScore float64
}

// Analyzer evaluates grid questions. Pure; thresholds come from config.
type Analyzer struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze evaluates one question's rows. Returns ok=false below the minimum
// row count.
func (a *Analyzer) Analyze(questionID string, rows []store.GridResponseRow) (Analysis, bool) {
	if len(rows) < a.cfg.GridMinRows {
		return Analysis{}, false
	}

	values := make([]string, len(rows))
	for i, r := range rows {
		values[i] = r.Value
	}

	straightLined, confidence := a.straightLine(values)
	variance := varianceScore(values)

	out := Analysis{
		QuestionID:       questionID,
		RowCount:         len(rows),
		StraightLined:    straightLined,
		Confidence:       confidence,
		VarianceScore:    variance,
		SatisficingScore: a.satisficing(rows, variance),
	}
	if len(rows) >= a.cfg.GridPatternMinRows {
		out.Pattern = detectPattern(values)
	}
	return out, true
}

// straightLine flags when the modal value covers at least the configured
// share of rows. Confidence grows with the share and with row count, capped
// at 0.95.
func (a *Analyzer) straightLine(values []string) (bool, float64) {
	counts := make(map[string]int)
	for _, v := range values {
		counts[v]++
	}
	modal := 0
	for _, c := range counts {
		if c > modal {
			modal = c
		}
	}

	share := float64(modal) / float64(len(values))
	if share < a.cfg.GridStraightlineShare {
		return false, 0
	}
	confidence := share * (1 - 1/float64(len(values)+1))
	return true, math.Min(confidence, 0.95)
}

// detectPattern maps values to ranks and tests the shape templates.
func detectPattern(values []string) string {
	ranks, ok := toRanks(values)
	if !ok {
		return PatternNone
	}
	switch {
	case isMonotonic(ranks, 1):
		return PatternDiagonal
	case isMonotonic(ranks, -1):
		return PatternReverseDiagonal
	case isZigzag(ranks):
		return PatternZigzag
	}
	return PatternNone
}

// toRanks converts values to comparable integers: numerically when every
// value parses, otherwise by rank of first appearance. Returns ok=false when
// all values are identical, which no shape template covers.
func toRanks(values []string) ([]float64, bool) {
	ranks := make([]float64, len(values))
	numeric := true
	for i, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			numeric = false
			break
		}
		ranks[i] = f
	}
	if !numeric {
		seen := make(map[string]float64)
		for i, v := range values {
			if _, ok := seen[v]; !ok {
				seen[v] = float64(len(seen))
			}
			ranks[i] = seen[v]
		}
	}

	distinct := make(map[float64]bool)
	for _, r := range ranks {
		distinct[r] = true
	}
	return ranks, len(distinct) > 1
}

func isMonotonic(ranks []float64, direction float64) bool {
	for i := 1; i < len(ranks); i++ {
		if (ranks[i]-ranks[i-1])*direction <= 0 {
			return false
		}
	}
	return true
}

// isZigzag requires strictly alternating direction at every step.
func isZigzag(ranks []float64) bool {
	if len(ranks) < 3 {
		return false
	}
	prev := ranks[1] - ranks[0]
	if prev == 0 {
		return false
	}
	for i := 2; i < len(ranks); i++ {
		d := ranks[i] - ranks[i-1]
		if d == 0 || d*prev > 0 {
			return false
		}
		prev = d
	}
	return true
}

// varianceScore is the normalized stddev of numeric values, or the
// normalized category entropy when values are not numeric.
func varianceScore(values []string) float64 {
	nums := make([]float64, 0, len(values))
	numeric := true
	for _, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			numeric = false
			break
		}
		nums = append(nums, f)
	}

	if numeric {
		lo, hi := nums[0], nums[0]
		for _, f := range nums {
			lo = math.Min(lo, f)
			hi = math.Max(hi, f)
		}
		if hi == lo {
			return 0
		}
		// Half the range bounds the stddev of values inside [lo, hi].
		return clamp01(stddev(nums) / ((hi - lo) / 2))
	}

	counts := make(map[string]int)
	for _, v := range values {
		counts[v]++
	}
	if len(counts) <= 1 {
		return 0
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	n := float64(len(values))
	var entropy float64
	for _, k := range keys {
		p := float64(counts[k]) / n
		entropy -= p * math.Log2(p)
	}
	return clamp01(entropy / math.Log2(float64(len(counts))))
}

// satisficing blends low variance with fast per-row timing when any row
// carries a time; without timing it is driven by variance alone.
func (a *Analyzer) satisficing(rows []store.GridResponseRow, variance float64) float64 {
	lowVariance := 1 - variance

	var timed, fast int
	for _, r := range rows {
		if r.ResponseTimeMs > 0 {
			timed++
			if float64(r.ResponseTimeMs) < a.cfg.SpeederMs {
				fast++
			}
		}
	}
	if timed == 0 {
		return clamp01(lowVariance)
	}
	fastShare := float64(fast) / float64(timed)
	return clamp01(0.60*lowVariance + 0.40*fastShare)
}

func stddev(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return math.Sqrt(sq / float64(len(xs)))
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
