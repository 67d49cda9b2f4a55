package pulsestate

import (
	"fmt"

	"github.com/mjibson/go-dsp/spectral"
	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SpectrumAnalyzer 用 Welch 平均功率谱估计脉搏主频，
// 作为逐拍检测结果的交叉校验
type SpectrumAnalyzer struct {
	SampleRate float64
	NFFT       int
}

// NewSpectrumAnalyzer 创建频谱分析器
func NewSpectrumAnalyzer(sampleRate float64, nfft int) *SpectrumAnalyzer {
	return &SpectrumAnalyzer{
		SampleRate: sampleRate,
		NFFT:       nfft,
	}
}

// segmentLength 不超过信号长度的最大 2 的幂，且不超过 NFFT
func (sa *SpectrumAnalyzer) segmentLength(n int) int {
	seg := 1
	for seg*2 <= n && seg*2 <= sa.NFFT {
		seg *= 2
	}
	return seg
}

// DominantRate 在 [minRate, maxRate] (Hz) 内寻找功率最大的频率
// 返回主频 (次/秒) 和对应的功率谱密度
func (sa *SpectrumAnalyzer) DominantRate(samples []float64, minRate, maxRate float64) (float64, float64, error) {
	if sa.SampleRate <= 0 {
		return 0, 0, fmt.Errorf("%w: sample rate %v", ErrInvalidInput, sa.SampleRate)
	}
	if len(samples) < 16 {
		return 0, 0, fmt.Errorf("%w: %d samples too short for a spectrum", ErrInvalidInput, len(samples))
	}

	// 去直流，否则 0Hz 附近的能量会压过脉搏分量
	x := append([]float64(nil), samples...)
	floats.AddConst(-stat.Mean(x, nil), x)

	seg := sa.segmentLength(len(x))
	pxx, freqs := spectral.Pwelch(x, sa.SampleRate, &spectral.PwelchOptions{
		NFFT:     seg,
		Noverlap: seg / 2,
		Window:   window.Hann,
	})

	maxIndex := -1
	maxPow := 0.0
	for i, f := range freqs {
		if f < minRate || f > maxRate {
			continue
		}
		if maxIndex < 0 || pxx[i] > maxPow {
			maxPow, maxIndex = pxx[i], i
		}
	}
	if maxIndex < 0 {
		return 0, 0, fmt.Errorf("%w: band [%v, %v] Hz below frequency resolution", ErrInvalidInput, minRate, maxRate)
	}

	// 抛物线插值：p = 0.5 * (alpha - gamma) / (alpha - 2*beta + gamma)
	binWidth := sa.SampleRate / float64(seg)
	freq := freqs[maxIndex]
	if maxIndex > 0 && maxIndex < len(pxx)-1 {
		alpha, beta, gamma := pxx[maxIndex-1], pxx[maxIndex], pxx[maxIndex+1]
		if denom := alpha - 2*beta + gamma; denom != 0 {
			freq += 0.5 * (alpha - gamma) / denom * binWidth
		}
	}
	return freq, maxPow, nil
}
