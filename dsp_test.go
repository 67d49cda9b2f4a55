package pulsestate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(freq, fs, seconds float64) []float64 {
	n := int(fs * seconds)
	x := make([]float64, n)
	for i := range x {
		x[i] = math.Sin(2 * math.Pi * freq * float64(i) / fs)
	}
	return x
}

func maxAbs(x []float64) float64 {
	m := 0.0
	for _, v := range x {
		m = math.Max(m, math.Abs(v))
	}
	return m
}

func TestSpectrumAnalyzer_DominantRate(t *testing.T) {
	x := sine(1.2, 100, 60)
	for i := range x {
		x[i] += 3 // 直流偏置不影响结果
	}
	sa := NewSpectrumAnalyzer(100, 4096)
	freq, pow, err := sa.DominantRate(x, 0.3, 5)
	require.NoError(t, err)
	assert.InDelta(t, 1.2, freq, 0.03)
	assert.Greater(t, pow, 0.0)
}

func TestSpectrumAnalyzer_Errors(t *testing.T) {
	sa := NewSpectrumAnalyzer(100, 4096)
	_, _, err := sa.DominantRate(make([]float64, 10), 0.3, 5)
	assert.ErrorIs(t, err, ErrInvalidInput)

	// 64 点的分辨率是 1.5625Hz，[0.3, 1] 之间没有频点
	_, _, err = sa.DominantRate(sine(0.5, 100, 0.64), 0.3, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = NewSpectrumAnalyzer(0, 4096).DominantRate(make([]float64, 100), 0.3, 5)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestButterworth_ConstantUnchanged(t *testing.T) {
	f, err := NewButterworthLowpass(4, 100, 5)
	require.NoError(t, err)
	x := make([]float64, 500)
	for i := range x {
		x[i] = 3
	}
	y := f.FiltFilt(x)
	for i := range y {
		assert.InDelta(t, 3.0, y[i], 1e-9)
	}
	// 输入不被修改
	assert.Equal(t, 3.0, x[0])
}

func TestButterworth_StopAndPassBand(t *testing.T) {
	f, err := NewButterworthLowpass(4, 200, 2)
	require.NoError(t, err)

	high := f.FiltFilt(sine(20, 200, 20))
	assert.Less(t, maxAbs(high[1000:3000]), 0.01)

	low := f.FiltFilt(sine(0.5, 200, 20))
	peak := maxAbs(low[1000:3000])
	assert.Greater(t, peak, 0.95)
	assert.Less(t, peak, 1.05)
}

func TestButterworth_Errors(t *testing.T) {
	_, err := NewButterworthLowpass(3, 100, 5)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewButterworthLowpass(0, 100, 5)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewButterworthLowpass(2, 100, 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLowpassSeries(t *testing.T) {
	s := NewUniformSeries(sine(0.5, 200, 20), 200, 10)
	out, err := LowpassSeries(s, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, s.T, out.T)
	assert.Len(t, out.D, s.Len())

	_, err = LowpassSeries(SampleSeries{}, 2, 5)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
