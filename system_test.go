package pulsestate

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsestate/Filters"
	"pulsestate/HMM"
)

// mockTracer 记录调用次数
type mockTracer struct {
	beats, rates int
	states       map[int]int
}

func (m *mockTracer) RecordBeat(Filters.Beat) { m.beats++ }

func (m *mockTracer) RecordRate(_, _ float64, state int) {
	m.rates++
	if m.states == nil {
		m.states = map[int]int{}
	}
	m.states[state]++
}

func (m *mockTracer) Close() error { return nil }

// restActiveSignal 静息 240s / 活动 120s / 静息 240s
func restActiveSignal(t *testing.T) SyntheticSignal {
	t.Helper()
	gen := NewPulseGenerator(50, 42)
	return gen.Generate([]RateSegment{
		{Duration: 240, Rate: 1, State: 1},
		{Duration: 120, Rate: 2, State: 2},
		{Duration: 240, Rate: 1, State: 1},
	})
}

func agreement(res *Result, sig SyntheticSignal) float64 {
	same := 0
	for i, c := range res.Rates.Centers {
		if res.Path[i] == sig.StateAt(c) {
			same++
		}
	}
	return float64(same) / float64(len(res.Path))
}

func TestPipeline_GaussianRestActive(t *testing.T) {
	sig := restActiveSignal(t)
	tracer := &mockTracer{}
	// 只用 K-Means 起点，路径结构的断言不依赖其它随机起点
	cfg := DefaultConfig()
	cfg.HMM.Restarts = 1

	p, err := NewPipeline(cfg, WithTracer(tracer), WithRunID("run-1"))
	require.NoError(t, err)
	assert.Equal(t, "run-1", p.RunID())

	res, err := p.Run(sig.Series)
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)

	assert.InDelta(t, 720, len(res.Beats), 3)
	assert.InDelta(t, 720, res.ValidBeats, 3)
	assert.InDelta(t, 1.0, res.MedianRate, 0.02)
	assert.InDelta(t, 1.0, res.SpectralRate, 0.05)

	require.Equal(t, res.Rates.Len(), len(res.Path))
	assert.Greater(t, agreement(res, sig), 0.9)

	// 状态 1 是低脉率
	means := res.Model.Means()
	require.Len(t, means, 2)
	assert.InDelta(t, 1.0, means[0], 0.1)
	assert.InDelta(t, 2.0, means[1], 0.1)

	require.Len(t, res.Dwell, 2)
	assert.Equal(t, 2, res.Dwell[0].Runs)
	assert.Equal(t, 1, res.Dwell[1].Runs)
	assert.InDelta(t, 120, res.Dwell[1].MeanDwell(), 10)

	assert.Equal(t, len(res.Beats), tracer.beats)
	assert.Equal(t, len(res.Path), tracer.rates)
	assert.Equal(t, len(res.Path), tracer.states[1]+tracer.states[2])
}

func TestPipeline_DiscreteRestActive(t *testing.T) {
	sig := restActiveSignal(t)
	cfg := DefaultConfig()
	cfg.HMM.Emission = string(HMM.KindDiscrete)
	cfg.Spectrum.Enabled = false

	p, err := NewPipeline(cfg)
	require.NoError(t, err)
	res, err := p.Run(sig.Series)
	require.NoError(t, err)

	assert.Equal(t, HMM.KindDiscrete, res.Model.Kind)
	assert.Greater(t, agreement(res, sig), 0.95)
	require.Len(t, res.Dwell, 2)
	assert.Equal(t, 1, res.Dwell[1].Runs)
	assert.True(t, math.IsNaN(res.SpectralRate))
}

func TestPipeline_FilterAndAutoThreshold(t *testing.T) {
	gen := NewPulseGenerator(50, 3)
	gen.Amplitude = 40
	gen.Noise = 2
	sig := gen.Generate([]RateSegment{{Duration: 60, Rate: 1.5, State: 1}})
	for i := range sig.Series.D {
		sig.Series.D[i] += 500 // 原始 ADC 读数带直流
	}

	cfg := DefaultConfig()
	cfg.Detector.AutoThreshold = true
	cfg.Filter.CutoffHz = 5
	cfg.HMM.States = 1

	p, err := NewPipeline(cfg)
	require.NoError(t, err)
	res, err := p.Run(sig.Series)
	require.NoError(t, err)

	// 阈值落在 500 附近的动态范围内
	assert.Greater(t, res.Detector.ThresholdLow, 470.0)
	assert.Less(t, res.Detector.ThresholdLow, 500.0)
	assert.Greater(t, res.Detector.ThresholdHigh, 500.0)
	assert.Less(t, res.Detector.ThresholdHigh, 530.0)
	assert.InDelta(t, 90, res.ValidBeats, 2)
	assert.InDelta(t, 1.5, res.MedianRate, 0.05)
	for _, s := range res.Path {
		assert.Equal(t, 1, s)
	}
}

func TestPipeline_FlatSignalHasNoBeats(t *testing.T) {
	p, err := NewPipeline(DefaultConfig())
	require.NoError(t, err)

	_, err = p.Run(NewUniformSeries(make([]float64, 1000), 50, 0))
	assert.ErrorIs(t, err, ErrNoBeats)

	_, err = p.Run(SampleSeries{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNewPipeline_RejectsConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HMM.States = 0
	_, err := NewPipeline(cfg)
	assert.Error(t, err)

	p, err := NewPipeline(nil)
	require.NoError(t, err)
	assert.NotEmpty(t, p.RunID())
}

func TestPipeline_MetricsAndSummary(t *testing.T) {
	sig := restActiveSignal(t)
	p, err := NewPipeline(DefaultConfig())
	require.NoError(t, err)
	res, err := p.Run(sig.Series)
	require.NoError(t, err)

	families, err := p.Metrics().Registry().Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				values[mf.GetName()] = c.GetValue()
			}
		}
	}
	assert.Equal(t, float64(len(res.Beats)), values["pulsestate_beats_detected_total"])
	assert.Equal(t, float64(res.Rates.Len()), values["pulsestate_rate_bins_total"])

	path := filepath.Join(t.TempDir(), "pulse.prom")
	require.NoError(t, p.Metrics().WriteTextfile(path))
	text, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(text), "pulsestate_state_occupancy_ratio")
	assert.Contains(t, string(text), `stage="fit"`)

	var buf bytes.Buffer
	require.NoError(t, res.WriteSummary(&buf))
	out := buf.String()
	assert.Contains(t, out, res.RunID)
	assert.Contains(t, out, "gaussian HMM, 2 states")
	assert.Equal(t, 6, strings.Count(out, "\n"))
}

func TestCsvFileDebugger(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "trace")
	d, err := NewCsvFileDebugger(prefix)
	require.NoError(t, err)

	d.RecordBeat(Filters.Beat{Onset: 1, Offset: 1.4, Period: math.NaN(), Valid: true})
	d.RecordRate(5, 1.2, 2)
	require.NoError(t, d.Close())

	beats, err := os.ReadFile(prefix + "_beats.csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(beats)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "1.000000,1.400000,"))
	assert.True(t, strings.HasSuffix(lines[1], ",1"))

	rates, err := os.ReadFile(prefix + "_rates.csv")
	require.NoError(t, err)
	assert.Equal(t, "Center,Rate,State\n5.000000,1.200000,2\n", string(rates))
}
