package pulsestate

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidConfig = errors.New("invalid config")
	ErrNoBeats       = errors.New("no valid beats")
)

// SampleSeries 一段 (时间, 信号) 序列，T 严格递增，单位秒
type SampleSeries struct {
	T []float64
	D []float64
}

// NewUniformSeries 按固定采样率给样本生成时间轴，t[i] = start + i/sampleRate
func NewUniformSeries(samples []float64, sampleRate, start float64) SampleSeries {
	s := SampleSeries{
		T: make([]float64, len(samples)),
		D: make([]float64, len(samples)),
	}
	copy(s.D, samples)
	for i := range s.T {
		s.T[i] = start + float64(i)/sampleRate
	}
	return s
}

func (s SampleSeries) Len() int { return len(s.T) }

// Duration 首尾样本的时间差
func (s SampleSeries) Duration() float64 {
	if len(s.T) < 2 {
		return 0
	}
	return s.T[len(s.T)-1] - s.T[0]
}

// SampleRate 由平均采样间隔估计
func (s SampleSeries) SampleRate() float64 {
	if len(s.T) < 2 {
		return 0
	}
	return float64(len(s.T)-1) / s.Duration()
}

// Validate 长度一致、非空、时间严格递增、数值有限
func (s SampleSeries) Validate() error {
	if len(s.T) != len(s.D) {
		return fmt.Errorf("%w: %d timestamps vs %d samples", ErrInvalidInput, len(s.T), len(s.D))
	}
	if len(s.T) == 0 {
		return fmt.Errorf("%w: empty series", ErrInvalidInput)
	}
	for i := range s.T {
		if math.IsNaN(s.T[i]) || math.IsInf(s.T[i], 0) || math.IsNaN(s.D[i]) || math.IsInf(s.D[i], 0) {
			return fmt.Errorf("%w: non-finite sample at %d", ErrInvalidInput, i)
		}
		if i > 0 && s.T[i] <= s.T[i-1] {
			return fmt.Errorf("%w: time not increasing at %d", ErrInvalidInput, i)
		}
	}
	return nil
}
