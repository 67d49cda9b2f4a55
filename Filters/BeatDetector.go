package Filters

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrInvalidSeries = errors.New("invalid sample series")
	ErrInvalidConfig = errors.New("invalid detector config")
)

// DetectorConfig 节拍检测参数
type DetectorConfig struct {
	ThresholdHigh    float64 // 上阈值
	ThresholdLow     float64 // 下阈值，必须小于上阈值
	Refractory       float64 // 不应期 (秒)
	AmplitudeHighMin float64 // 有效节拍: 超出中线的最小峰值
	AmplitudeLowMin  float64 // 有效节拍: 低于中线的最小谷值
	AmplitudeMin     float64 // 有效节拍: 峰谷差下限
	DurationMin      float64 // 有效节拍: 最短持续时间 (秒)
}

// DefaultDetectorConfig 默认参数
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		ThresholdHigh: 0.75,
		ThresholdLow:  -0.75,
		Refractory:    0.2,
	}
}

// Validate 检查参数组合
func (c DetectorConfig) Validate() error {
	if math.IsNaN(c.ThresholdHigh) || math.IsNaN(c.ThresholdLow) {
		return fmt.Errorf("%w: thresholds must be numbers", ErrInvalidConfig)
	}
	if c.ThresholdLow >= c.ThresholdHigh {
		return fmt.Errorf("%w: threshold_low %.4g >= threshold_high %.4g", ErrInvalidConfig, c.ThresholdLow, c.ThresholdHigh)
	}
	if c.Refractory < 0 || math.IsNaN(c.Refractory) {
		return fmt.Errorf("%w: refractory %.4g must be >= 0", ErrInvalidConfig, c.Refractory)
	}
	return nil
}

// Midline 两条阈值的中线
func (c DetectorConfig) Midline() float64 {
	return (c.ThresholdHigh + c.ThresholdLow) / 2
}

// Beat 一次检测到的搏动
// 派生量 (Period, InstantFreq, DutyCycle) 无定义时为 NaN
type Beat struct {
	Onset         float64
	Offset        float64
	HighCrossing  float64 // 原始 above-high 穿越时刻，不应期就是跟它比
	UpDuration    float64
	DutyCycle     float64
	Period        float64
	InstantFreq   float64
	Amplitude     float64
	AmplitudeHigh float64
	AmplitudeLow  float64
	Valid         bool
}

// ValidateSeries 检查 (t, d) 输入契约
func ValidateSeries(t, d []float64) error {
	if len(t) != len(d) {
		return fmt.Errorf("%w: len(t)=%d len(d)=%d", ErrInvalidSeries, len(t), len(d))
	}
	if len(t) == 0 {
		return fmt.Errorf("%w: empty series", ErrInvalidSeries)
	}
	for i := range t {
		if math.IsNaN(t[i]) || math.IsInf(t[i], 0) {
			return fmt.Errorf("%w: non-finite timestamp at %d", ErrInvalidSeries, i)
		}
		if math.IsNaN(d[i]) || math.IsInf(d[i], 0) {
			return fmt.Errorf("%w: non-finite sample at %d", ErrInvalidSeries, i)
		}
		if i > 0 && t[i] <= t[i-1] {
			return fmt.Errorf("%w: timestamps not strictly increasing at %d (%.6f <= %.6f)", ErrInvalidSeries, i, t[i], t[i-1])
		}
	}
	return nil
}

// Detect 扫描整个序列，按 onset 递增顺序返回节拍
func Detect(t, d []float64, cfg DetectorConfig) ([]Beat, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateSeries(t, d); err != nil {
		return nil, err
	}

	// 1. 状态机给出 onset/offset
	sm := NewBeatStateMachine(cfg.Refractory)
	var beats []Beat
	emit := func(ev Event) {
		beats = append(beats, Beat{
			Onset:        ev.Onset,
			Offset:       ev.Offset,
			HighCrossing: ev.HighCrossing,
			UpDuration:   ev.Offset - ev.Onset,
		})
	}
	for i := range t {
		ev := sm.Step(t[i], Classify(d[i], cfg.ThresholdLow, cfg.ThresholdHigh))
		if ev.Kind == EventOffset {
			emit(ev)
		}
	}
	if ev := sm.Finish(t[len(t)-1]); ev.Kind == EventOffset {
		emit(ev)
	}

	// 2. 幅度、有效性
	mid := cfg.Midline()
	prevOffset := t[0]
	for i := range beats {
		b := &beats[i]
		b.Amplitude, b.AmplitudeHigh, b.AmplitudeLow = beatAmplitudes(t, d, prevOffset, b.Onset, b.Offset, mid)
		b.Valid = b.AmplitudeHigh >= cfg.AmplitudeHighMin &&
			b.AmplitudeLow >= cfg.AmplitudeLowMin &&
			b.Amplitude >= cfg.AmplitudeMin &&
			b.UpDuration >= cfg.DurationMin
		prevOffset = b.Offset
	}

	// 3. 周期链：只跟最近的有效节拍比
	chainPeriods(beats)
	return beats, nil
}

func chainPeriods(beats []Beat) {
	lastValid := -1
	for i := range beats {
		b := &beats[i]
		b.Period = math.NaN()
		b.InstantFreq = math.NaN()
		b.DutyCycle = math.NaN()

		if lastValid >= 0 {
			b.Period = b.Onset - beats[lastValid].Onset
			b.InstantFreq = 1 / b.Period
		}
		if i > 0 {
			b.DutyCycle = (b.Offset - b.Onset) / (b.Offset - beats[i-1].Offset)
		}
		if b.Valid {
			lastValid = i
		}
	}
}

// beatAmplitudes 计算峰谷差以及相对中线的高/低幅度
func beatAmplitudes(t, d []float64, prevOffset, onset, offset, mid float64) (amp, ampHigh, ampLow float64) {
	i0, i1 := timeWindow(t, onset, offset)
	p0, p1 := timeWindow(t, prevOffset, onset)

	peak := math.Inf(-1)
	ampHigh = math.Inf(-1)
	lowest, hasLow := 0.0, false
	for k := i0; k < i1; k++ {
		v := d[k]
		if v > peak {
			peak = v
		}
		if v >= mid && v-mid > ampHigh {
			ampHigh = v - mid
		}
		if v <= mid && (!hasLow || v < lowest) {
			lowest, hasLow = v, true
		}
	}
	ampLow = math.Inf(1)
	if hasLow {
		ampLow = mid - lowest
	}

	trough := math.Inf(1)
	for k := p0; k < p1; k++ {
		if d[k] < trough {
			trough = d[k]
		}
	}
	return peak - trough, ampHigh, ampLow
}

// timeWindow 返回 lo <= t[k] <= hi 的下标区间 [i, j)
func timeWindow(t []float64, lo, hi float64) (int, int) {
	i := sort.SearchFloat64s(t, lo)
	j := sort.Search(len(t), func(k int) bool { return t[k] > hi })
	if j < i {
		j = i
	}
	return i, j
}

// Onsets 取出有效节拍的 onset
func Onsets(beats []Beat) []float64 {
	out := make([]float64, 0, len(beats))
	for _, b := range beats {
		if b.Valid {
			out = append(out, b.Onset)
		}
	}
	return out
}
