package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridata/surveyguard/internal/config"
	"github.com/veridata/surveyguard/internal/store"
)

func rows(values ...string) []store.GridResponseRow {
	out := make([]store.GridResponseRow, len(values))
	for i, v := range values {
		out[i] = store.GridResponseRow{QuestionID: "q1", RowID: string(rune('a' + i)), Value: v}
	}
	return out
}

func TestAnalyzeBelowMinimumRows(t *testing.T) {
	a := New(config.Default())

	_, ok := a.Analyze("q1", rows("3"))
	assert.False(t, ok)
}

func TestStraightLiningNineOfTen(t *testing.T) {
	a := New(config.Default())

	res, ok := a.Analyze("q1", rows("4", "4", "4", "4", "4", "4", "4", "4", "4", "2"))
	require.True(t, ok)

	assert.True(t, res.StraightLined)
	// share 0.9, row factor 1 - 1/11
	assert.InDelta(t, 0.9*(1-1.0/11.0), res.Confidence, 1e-9)
	assert.Equal(t, 10, res.RowCount)
	assert.Equal(t, PatternNone, res.Pattern)
	assert.Less(t, res.VarianceScore, 0.7)
}

func TestStraightLiningBelowShare(t *testing.T) {
	a := New(config.Default())

	res, ok := a.Analyze("q1", rows("4", "4", "4", "2", "1"))
	require.True(t, ok)
	assert.False(t, res.StraightLined)
	assert.Equal(t, 0.0, res.Confidence)
}

func TestStraightLiningConfidenceCap(t *testing.T) {
	a := New(config.Default())

	values := make([]string, 100)
	for i := range values {
		values[i] = "5"
	}
	res, ok := a.Analyze("q1", rows(values...))
	require.True(t, ok)
	assert.True(t, res.StraightLined)
	assert.Equal(t, 0.95, res.Confidence)
}

func TestPatternDiagonal(t *testing.T) {
	a := New(config.Default())

	res, ok := a.Analyze("q1", rows("1", "2", "3", "4", "5"))
	require.True(t, ok)
	assert.Equal(t, PatternDiagonal, res.Pattern)
	assert.False(t, res.StraightLined)
}

func TestPatternReverseDiagonal(t *testing.T) {
	a := New(config.Default())

	res, ok := a.Analyze("q1", rows("5", "4", "3", "2", "1"))
	require.True(t, ok)
	assert.Equal(t, PatternReverseDiagonal, res.Pattern)
}

func TestPatternZigzag(t *testing.T) {
	a := New(config.Default())

	res, ok := a.Analyze("q1", rows("1", "5", "1", "5", "1"))
	require.True(t, ok)
	assert.Equal(t, PatternZigzag, res.Pattern)
}

func TestPatternNoneForOrganicAnswers(t *testing.T) {
	a := New(config.Default())

	res, ok := a.Analyze("q1", rows("3", "4", "2", "2", "1"))
	require.True(t, ok)
	assert.Equal(t, PatternNone, res.Pattern)
}

func TestPatternSkippedBelowPatternMinRows(t *testing.T) {
	a := New(config.Default())

	// Two rows meet grid_min_rows but not grid_pattern_min_rows.
	res, ok := a.Analyze("q1", rows("1", "2"))
	require.True(t, ok)
	assert.Equal(t, PatternNone, res.Pattern)
}

func TestPatternCategoricalValuesByFirstAppearance(t *testing.T) {
	a := New(config.Default())

	// agree < neutral < disagree by order of first appearance.
	res, ok := a.Analyze("q1", rows("agree", "neutral", "disagree"))
	require.True(t, ok)
	assert.Equal(t, PatternDiagonal, res.Pattern)
}

func TestVarianceScoreNumericSpread(t *testing.T) {
	a := New(config.Default())

	flat, ok := a.Analyze("q1", rows("3", "3", "3"))
	require.True(t, ok)
	assert.Equal(t, 0.0, flat.VarianceScore)

	spread, ok := a.Analyze("q1", rows("1", "5", "1", "5"))
	require.True(t, ok)
	assert.Greater(t, spread.VarianceScore, 0.9)
}

func TestVarianceScoreCategoricalEntropy(t *testing.T) {
	a := New(config.Default())

	uniform, ok := a.Analyze("q1", rows("yes", "no", "maybe"))
	require.True(t, ok)
	assert.InDelta(t, 1.0, uniform.VarianceScore, 1e-9)

	skewed, ok := a.Analyze("q1", rows("yes", "yes", "yes", "no"))
	require.True(t, ok)
	assert.Less(t, skewed.VarianceScore, 1.0)
	assert.Greater(t, skewed.VarianceScore, 0.0)
}

func TestSatisficingWithoutTiming(t *testing.T) {
	a := New(config.Default())

	res, ok := a.Analyze("q1", rows("4", "4", "4", "4"))
	require.True(t, ok)
	// Variance 0, no row times: driven by low variance alone.
	assert.Equal(t, 1.0, res.SatisficingScore)
}

func TestSatisficingBlendsFastRows(t *testing.T) {
	a := New(config.Default())

	in := rows("4", "4", "4", "4")
	for i := range in {
		in[i].ResponseTimeMs = 800 // under speeder_ms
	}
	res, ok := a.Analyze("q1", in)
	require.True(t, ok)
	// 0.60*(1-0) + 0.40*1.0
	assert.InDelta(t, 1.0, res.SatisficingScore, 1e-9)

	for i := range in {
		in[i].ResponseTimeMs = 30000
	}
	res, ok = a.Analyze("q1", in)
	require.True(t, ok)
	assert.InDelta(t, 0.60, res.SatisficingScore, 1e-9)
}
