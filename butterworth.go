package pulsestate

import (
	"fmt"
	"math"
)

// BiquadFilter 二阶 IIR 节 (转置直接 II 型)
type BiquadFilter struct {
	a0, a1, a2, b1, b2 float64
	z1, z2             float64
}

// Process 处理单个采样点
func (f *BiquadFilter) Process(in float64) float64 {
	out := in*f.a0 + f.z1
	f.z1 = in*f.a1 - out*f.b1 + f.z2
	f.z2 = in*f.a2 - out*f.b2
	return out
}

// prime 把延迟线设为输入恒为 v 时的稳态，避免首个样本处的阶跃瞬态
// 低通的直流增益为 1，稳态输出也是 v
func (f *BiquadFilter) prime(v float64) {
	f.z2 = v*f.a2 - v*f.b2
	f.z1 = v*f.a1 - v*f.b1 + f.z2
}

// ButterworthFilter 由多个 Biquad 级联组成
type ButterworthFilter struct {
	sections []*BiquadFilter
}

// NewButterworthLowpass 创建 order 阶 (偶数) 巴特沃斯低通
func NewButterworthLowpass(order int, sampleRate, cutoffFreq float64) (*ButterworthFilter, error) {
	if order < 2 || order%2 != 0 {
		return nil, fmt.Errorf("%w: butterworth order %d must be even", ErrInvalidConfig, order)
	}
	if sampleRate <= 0 || cutoffFreq <= 0 {
		return nil, fmt.Errorf("%w: sample rate %v cutoff %v", ErrInvalidConfig, sampleRate, cutoffFreq)
	}

	// 截止频率靠近 Nyquist 时 tan 发散
	if cutoffFreq >= sampleRate*0.499 {
		cutoffFreq = sampleRate * 0.499
	}

	// 双线性变换，先预畸变
	w := 2.0 * sampleRate * math.Tan(math.Pi*cutoffFreq/sampleRate)
	k2 := 4.0 * sampleRate * sampleRate

	sections := make([]*BiquadFilter, order/2)
	for i := range sections {
		// 低 Q 的节放前面
		poleIdx := (order/2 - 1) - i
		theta := math.Pi * (2.0*float64(poleIdx) + 1.0) / (2.0 * float64(order))

		pRe := -w * math.Sin(theta)
		pIm := w * math.Cos(theta)
		mag2 := pRe*pRe + pIm*pIm

		alpha := k2 - 4.0*sampleRate*pRe + mag2
		sections[i] = &BiquadFilter{
			a0: w * w / alpha,
			a1: 2.0 * w * w / alpha,
			a2: w * w / alpha,
			b1: (-2.0*k2 + 2.0*mag2) / alpha,
			b2: (k2 + 4.0*sampleRate*pRe + mag2) / alpha,
		}
	}
	return &ButterworthFilter{sections: sections}, nil
}

// Process 处理单个采样点
func (f *ButterworthFilter) Process(in float64) float64 {
	out := in
	for _, s := range f.sections {
		out = s.Process(out)
	}
	return out
}

func (f *ButterworthFilter) prime(v float64) {
	for _, s := range f.sections {
		s.prime(v)
	}
}

func (f *ButterworthFilter) pass(x []float64) {
	if len(x) == 0 {
		return
	}
	f.prime(x[0])
	for i, v := range x {
		x[i] = f.Process(v)
	}
}

// FiltFilt 前向 + 反向各滤一次，零相位，返回新切片
// 检测器依赖阈值穿越的时刻，所以不能引入群延迟
func (f *ButterworthFilter) FiltFilt(x []float64) []float64 {
	out := append([]float64(nil), x...)
	f.pass(out)
	reverse(out)
	f.pass(out)
	reverse(out)
	return out
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}

// LowpassSeries 对序列做零相位低通，采样率由时间轴估计
func LowpassSeries(s SampleSeries, order int, cutoffHz float64) (SampleSeries, error) {
	if err := s.Validate(); err != nil {
		return SampleSeries{}, err
	}
	if s.Len() < 2 {
		return s, nil
	}
	f, err := NewButterworthLowpass(order, s.SampleRate(), cutoffHz)
	if err != nil {
		return SampleSeries{}, err
	}
	return SampleSeries{
		T: append([]float64(nil), s.T...),
		D: f.FiltFilt(s.D),
	}, nil
}
