package pulsestate

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsestate/Filters"
)

func TestBinRates_UnitSpacedOnsets(t *testing.T) {
	onsets := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	rs, err := BinRates(onsets, 1, 2)
	require.NoError(t, err)
	require.Equal(t, 11, rs.Len())

	assert.InDelta(t, 5.0, rs.Centers[5], 1e-12)
	// [4, 6) 内有 4 和 5 两个 onset
	assert.InDelta(t, 1.0, rs.Rates[5], 1e-12)
	// 边缘只有一半的窗口有数据
	assert.InDelta(t, 0.5, rs.Rates[0], 1e-12)
	assert.InDelta(t, 1.0, rs.Rates[10], 1e-12)
}

func TestBinRates_DropsPartialLastStep(t *testing.T) {
	rs, err := BinRates([]float64{0, 2.5}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2}, rs.Centers)

	single, err := BinRates([]float64{7}, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{7}, single.Centers)
	assert.Equal(t, []float64{0.25}, single.Rates)
}

func TestBinRates_NonNegativeAndBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	onsets := make([]float64, 500)
	tt := 0.0
	for i := range onsets {
		tt += 0.3 + rng.Float64()
		onsets[i] = tt
	}

	const deltaT, window = 0.5, 4.0
	rs, err := BinRates(onsets, deltaT, window)
	require.NoError(t, err)

	var total float64
	for _, r := range rs.Rates {
		assert.GreaterOrEqual(t, r, 0.0)
		total += r * window
	}
	// 每个 onset 最多被 ceil(W/deltaT) 个窗口计入
	assert.LessOrEqual(t, total, float64(len(onsets))*math.Ceil(window/deltaT))
	assert.Greater(t, total, 0.0)
}

func TestBinRates_Errors(t *testing.T) {
	_, err := BinRates(nil, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = BinRates([]float64{0, 1}, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = BinRates([]float64{0, 1}, 1, -2)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = BinRates([]float64{0, 1, 1}, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = BinRates([]float64{0, math.NaN()}, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRatesFromBeats_UsesValidOnly(t *testing.T) {
	beats := []Filters.Beat{
		{Onset: 0, Valid: true},
		{Onset: 0.5, Valid: false},
		{Onset: 1, Valid: true},
		{Onset: 2, Valid: true},
	}
	rs, err := RatesFromBeats(beats, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2}, rs.Centers)
	// [0, 2) 内只有 0 和 1，无效的 0.5 不计入
	assert.InDelta(t, 1.0, rs.Rates[1], 1e-12)

	_, err = RatesFromBeats([]Filters.Beat{{Onset: 1}}, 1, 2)
	assert.ErrorIs(t, err, ErrNoBeats)
}
