package timing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridata/surveyguard/internal/config"
)

func TestClassifyStaticThresholds(t *testing.T) {
	a := New(config.Default())

	speeder := a.Classify("s1", "q1", 1500, nil)
	assert.True(t, speeder.IsSpeeder)
	assert.False(t, speeder.IsFlatliner)
	assert.Nil(t, speeder.AnomalyZ)

	flatliner := a.Classify("s1", "q1", 400000, nil)
	assert.False(t, flatliner.IsSpeeder)
	assert.True(t, flatliner.IsFlatliner)

	normal := a.Classify("s1", "q1", 15000, nil)
	assert.False(t, normal.IsSpeeder)
	assert.False(t, normal.IsFlatliner)
}

func TestClassifyThresholdBoundaries(t *testing.T) {
	a := New(config.Default())

	// Speeder is strictly below, flatliner strictly above.
	assert.False(t, a.Classify("s1", "q1", 2000, nil).IsSpeeder)
	assert.True(t, a.Classify("s1", "q1", 1999, nil).IsSpeeder)
	assert.False(t, a.Classify("s1", "q1", 300000, nil).IsFlatliner)
	assert.True(t, a.Classify("s1", "q1", 300001, nil).IsFlatliner)
}

func TestClassifyAnomalyZ(t *testing.T) {
	a := New(config.Default())

	// Fewer than 3 priors: no z.
	row := a.Classify("s1", "q1", 5000, []float64{4000, 6000})
	assert.Nil(t, row.AnomalyZ)

	// Mean 5000, the response sits on the mean.
	row = a.Classify("s1", "q1", 5000, []float64{4000, 5000, 6000})
	require.NotNil(t, row.AnomalyZ)
	assert.InDelta(t, 0.0, *row.AnomalyZ, 1e-9)

	// Zero spread: z is undefined and stays nil.
	row = a.Classify("s1", "q1", 9000, []float64{5000, 5000, 5000})
	assert.Nil(t, row.AnomalyZ)
}

func TestIsAnomaly(t *testing.T) {
	a := New(config.Default())

	z := 3.0
	assert.True(t, a.IsAnomaly(&z))
	z = -3.0
	assert.True(t, a.IsAnomaly(&z))
	z = 2.5
	assert.False(t, a.IsAnomaly(&z))
	assert.False(t, a.IsAnomaly(nil))
}

func TestAdaptiveThresholdsClamped(t *testing.T) {
	cfg := config.Default()
	cfg.AdaptiveTimingEnabled = true
	cfg.AdaptiveTimingK = 1.0
	a := New(cfg)

	// Tight priors around 5 s: mean-k*sd is ~4.9 s, clamped down to the
	// 2 s speeder ceiling; mean+k*sd is ~5.1 s, raised to the 300 s floor.
	priors := []float64{4900, 5000, 5100}
	row := a.Classify("s1", "q1", 1999, priors)
	assert.True(t, row.IsSpeeder)

	row = a.Classify("s1", "q1", 2001, priors)
	assert.False(t, row.IsSpeeder)

	row = a.Classify("s1", "q1", 299000, priors)
	assert.False(t, row.IsFlatliner)
	row = a.Classify("s1", "q1", 300001, priors)
	assert.True(t, row.IsFlatliner)
}

func TestAdaptiveThresholdsWithinClampRange(t *testing.T) {
	cfg := config.Default()
	cfg.AdaptiveTimingEnabled = true
	cfg.AdaptiveTimingK = 1.0
	a := New(cfg)

	// Mean 2000 with sd ~816: speeder cutoff ~1184 ms sits inside the
	// [500, 2000] clamp range.
	priors := []float64{1000, 2000, 3000}
	row := a.Classify("s1", "q1", 1100, priors)
	assert.True(t, row.IsSpeeder)

	row = a.Classify("s1", "q1", 1300, priors)
	assert.False(t, row.IsSpeeder)
}

func TestAdaptiveDisabledKeepsStaticThresholds(t *testing.T) {
	a := New(config.Default())

	priors := []float64{100000, 110000, 120000}
	row := a.Classify("s1", "q1", 1500, priors)
	assert.True(t, row.IsSpeeder)
	require.NotNil(t, row.AnomalyZ)
}
