package anomaly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"penny/internal/core"
)

func amounts(major ...int64) []core.Money {
	out := make([]core.Money, len(major))
	for i, v := range major {
		out[i] = core.Money{Cents: v * 100}
	}
	return out
}

func money(major int64) core.Money {
	return core.Money{Cents: major * 100}
}

func newDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(DefaultConfig())
	require.NoError(t, err)
	return d
}

func TestEvaluate_NoHistoryUsesCeiling(t *testing.T) {
	d := newDetector(t)

	dec := d.Evaluate(money(99_999), History{})
	assert.False(t, dec.Anomalous)
	assert.Equal(t, MethodNoHistory, dec.Method)

	assert.False(t, d.IsAnomaly(money(100_000), History{}), "ceiling itself is not above the ceiling")
	assert.True(t, d.IsAnomaly(core.Money{Cents: 10_000_001}, History{}))
}

func TestEvaluate_BootstrapMedianOfAll(t *testing.T) {
	d := newDetector(t)
	h := History{
		Category: amounts(2500),
		All:      amounts(350, 2500, 180, 999, 450),
	}

	dec := d.Evaluate(money(75_000), h)
	assert.True(t, dec.Anomalous)
	assert.Equal(t, MethodBootstrap, dec.Method)
	assert.InDelta(t, 4500.0, dec.Threshold, 1e-9)

	assert.False(t, d.IsAnomaly(money(4500), h))
	assert.True(t, d.IsAnomaly(core.Money{Cents: 450_001}, h))
}

func TestEvaluate_BootstrapEvenMedian(t *testing.T) {
	d := newDetector(t)
	h := History{All: amounts(100, 300)}

	dec := d.Evaluate(money(2001), h)
	assert.True(t, dec.Anomalous)
	assert.InDelta(t, 2000.0, dec.Threshold, 1e-9)
}

func TestEvaluate_SingleBootstrapOutlierDoesNotPoisonBaseline(t *testing.T) {
	d := newDetector(t)
	// One huge prior expense does not move the median much.
	h := History{All: amounts(100, 120, 90, 80_000, 110)}

	assert.True(t, d.IsAnomaly(money(5000), h))
	assert.False(t, d.IsAnomaly(money(500), h))
}

func TestEvaluate_StatisticalRule(t *testing.T) {
	d := newDetector(t)
	// mean 200, sample stddev 100, threshold 200 + 2.5*100 = 450
	h := History{
		Category: amounts(100, 200, 300),
		All:      amounts(100, 200, 300),
	}

	dec := d.Evaluate(money(450), h)
	assert.Equal(t, MethodStatistical, dec.Method)
	assert.False(t, dec.Anomalous)
	assert.InDelta(t, 450.0, dec.Threshold, 1e-9)

	assert.True(t, d.IsAnomaly(core.Money{Cents: 45_001}, h))
	assert.False(t, d.IsAnomaly(money(1), h), "low amounts are never anomalous")
}

func TestEvaluate_ConstantHistory(t *testing.T) {
	d := newDetector(t)
	h := History{
		Category: amounts(999, 999, 999),
		All:      amounts(999, 999, 999, 50),
	}

	dec := d.Evaluate(money(999), h)
	assert.Equal(t, MethodConstant, dec.Method)
	assert.False(t, dec.Anomalous)

	assert.True(t, d.IsAnomaly(money(1000), h))
	assert.True(t, d.IsAnomaly(money(998), h))
}

func TestEvaluate_UsesOnlyCategoryHistoryOnceWarm(t *testing.T) {
	d := newDetector(t)
	h := History{
		Category: amounts(50_000, 52_000, 51_000),
		All:      amounts(50_000, 52_000, 51_000, 10, 20, 30, 40),
	}
	assert.False(t, d.IsAnomaly(money(52_500), h))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := Config{MinSamples: 1, Sensitivity: 0, BootstrapMultiplier: 1}
	err := bad.Validate()
	require.Error(t, err)
	for _, part := range []string{"min samples", "sensitivity", "bootstrap multiplier", "bootstrap ceiling"} {
		assert.Contains(t, err.Error(), part)
	}

	_, err = NewDetector(bad)
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	assert.Equal(t, 0.0, mean(nil))
	assert.Equal(t, 0.0, median(nil))
	assert.Equal(t, 0.0, sampleStdDev([]float64{5}, 5))
	assert.Equal(t, 3.0, median([]float64{5, 1, 3}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 3, 2}))

	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	mu := mean(xs)
	assert.Equal(t, 5.0, mu)
	assert.InDelta(t, 2.138089935, sampleStdDev(xs, mu), 1e-6)

	in := []float64{3, 1, 2}
	median(in)
	assert.Equal(t, []float64{3, 1, 2}, in, "median must not reorder its input")
}
