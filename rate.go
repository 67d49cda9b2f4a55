package pulsestate

import (
	"fmt"
	"math"

	"pulsestate/Filters"
)

// RateSeries 等间隔的瞬时速率 (次/秒)
type RateSeries struct {
	Centers []float64
	Rates   []float64
}

func (r RateSeries) Len() int { return len(r.Centers) }

// BinRates 滑动窗口计数
// 中心点从 onsets[0] 开始每隔 deltaT 一个，直到 onsets[last] (末尾不足一步的部分丢弃)，
// rate(c) = [c-W/2, c+W/2) 内的 onset 个数 / W
func BinRates(onsets []float64, deltaT, window float64) (RateSeries, error) {
	if len(onsets) == 0 {
		return RateSeries{}, fmt.Errorf("%w: no onsets", ErrInvalidInput)
	}
	if !(deltaT > 0) || math.IsInf(deltaT, 0) {
		return RateSeries{}, fmt.Errorf("%w: deltaT %v must be > 0", ErrInvalidInput, deltaT)
	}
	if !(window > 0) || math.IsInf(window, 0) {
		return RateSeries{}, fmt.Errorf("%w: window %v must be > 0", ErrInvalidInput, window)
	}
	for i, v := range onsets {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return RateSeries{}, fmt.Errorf("%w: non-finite onset at %d", ErrInvalidInput, i)
		}
		if i > 0 && v <= onsets[i-1] {
			return RateSeries{}, fmt.Errorf("%w: onsets not increasing at %d", ErrInvalidInput, i)
		}
	}

	first, last := onsets[0], onsets[len(onsets)-1]
	// 1e-9 容忍浮点误差，保证 (last-first) 恰好是 deltaT 整数倍时包含末端
	n := int(math.Floor((last-first)/deltaT+1e-9)) + 1

	out := RateSeries{
		Centers: make([]float64, n),
		Rates:   make([]float64, n),
	}
	half := window / 2
	lo, hi := 0, 0
	for k := 0; k < n; k++ {
		c := first + float64(k)*deltaT
		for lo < len(onsets) && onsets[lo] < c-half {
			lo++
		}
		if hi < lo {
			hi = lo
		}
		for hi < len(onsets) && onsets[hi] < c+half {
			hi++
		}
		out.Centers[k] = c
		out.Rates[k] = float64(hi-lo) / window
	}
	return out, nil
}

// RatesFromBeats 只用有效心搏的 onset 计算速率
func RatesFromBeats(beats []Filters.Beat, deltaT, window float64) (RateSeries, error) {
	onsets := Filters.Onsets(beats)
	if len(onsets) == 0 {
		return RateSeries{}, ErrNoBeats
	}
	return BinRates(onsets, deltaT, window)
}
