package pulsestate

import (
	"math"
	"math/rand"
)

// RateSegment 一段恒定脉率
type RateSegment struct {
	Duration float64 // 秒
	Rate     float64 // 次/秒
	State    int     // 这一段的真实状态标签
}

// PulseGenerator 合成准周期脉搏波：d(t) = A*cos(2π·φ(t)) + 噪声，
// φ 按当前段的脉率累加，所以每个整数相位对应一次搏动
type PulseGenerator struct {
	SampleRate float64
	Amplitude  float64
	Noise      float64 // 高斯噪声标准差
	Jitter     float64 // 脉率的逐样本随机抖动比例
	Rand       *rand.Rand
}

// SyntheticSignal 合成结果和真值
type SyntheticSignal struct {
	Series   SampleSeries
	Segments []RateSegment
	Peaks    []float64 // 真实的波峰时刻
}

// NewPulseGenerator 默认参数
func NewPulseGenerator(sampleRate float64, seed int64) *PulseGenerator {
	return &PulseGenerator{
		SampleRate: sampleRate,
		Amplitude:  1.0,
		Noise:      0.05,
		Rand:       rand.New(rand.NewSource(seed)),
	}
}

// Generate 按段生成信号
func (g *PulseGenerator) Generate(segments []RateSegment) SyntheticSignal {
	var total float64
	for _, seg := range segments {
		total += seg.Duration
	}
	n := int(total * g.SampleRate)
	out := SyntheticSignal{
		Series:   SampleSeries{T: make([]float64, n), D: make([]float64, n)},
		Segments: append([]RateSegment(nil), segments...),
	}

	// 从波谷开始，第一个峰在半个周期后
	phase := 0.5
	dt := 1 / g.SampleRate
	for i := 0; i < n; i++ {
		t := float64(i) * dt
		rate := g.rateAt(segments, t)
		if g.Jitter > 0 {
			rate *= 1 + g.Jitter*g.Rand.NormFloat64()
		}
		out.Series.T[i] = t
		out.Series.D[i] = g.Amplitude*math.Cos(2*math.Pi*phase) + g.Noise*g.Rand.NormFloat64()

		next := phase + rate*dt
		if math.Floor(next) > math.Floor(phase) {
			out.Peaks = append(out.Peaks, t+dt*(math.Floor(next)-phase)/(next-phase))
		}
		phase = next
	}
	return out
}

func (g *PulseGenerator) rateAt(segments []RateSegment, t float64) float64 {
	var end float64
	for _, seg := range segments {
		end += seg.Duration
		if t < end {
			return seg.Rate
		}
	}
	return segments[len(segments)-1].Rate
}

// StateAt t 时刻的真实状态
func (s SyntheticSignal) StateAt(t float64) int {
	var end float64
	for _, seg := range s.Segments {
		end += seg.Duration
		if t < end {
			return seg.State
		}
	}
	return s.Segments[len(s.Segments)-1].State
}
