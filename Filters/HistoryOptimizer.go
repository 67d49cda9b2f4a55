package Filters

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// 经验分位点：10% 代表底部基线，95% 代表峰值 (排除极端的干扰脉冲)
const (
	floorQuantile = 0.10
	peakQuantile  = 0.95
)

// ThresholdSuggestion 根据整段信号给出的阈值建议
type ThresholdSuggestion struct {
	High  float64
	Low   float64
	Floor float64 // 底部基线
	Peak  float64 // 信号峰值
}

// SuggestThresholds 根据幅度分布计算迟滞阈值
// hysteresis: 上下阈值离中线的距离占动态范围的比例 (0 ~ 0.5)，例如 0.25
func SuggestThresholds(d []float64, hysteresis float64) (ThresholdSuggestion, error) {
	if len(d) == 0 {
		return ThresholdSuggestion{}, fmt.Errorf("%w: empty series", ErrInvalidSeries)
	}
	if hysteresis <= 0 || hysteresis >= 0.5 {
		return ThresholdSuggestion{}, fmt.Errorf("%w: hysteresis %.3g must be in (0, 0.5)", ErrInvalidConfig, hysteresis)
	}

	// 必须复制一份数据进行排序，不能打乱原始信号
	data := make([]float64, len(d))
	copy(data, d)
	sort.Float64s(data)
	if math.IsNaN(data[len(data)-1]) || math.IsNaN(data[0]) || math.IsInf(data[0], 0) || math.IsInf(data[len(data)-1], 0) {
		return ThresholdSuggestion{}, fmt.Errorf("%w: non-finite samples", ErrInvalidSeries)
	}

	floor := stat.Quantile(floorQuantile, stat.LinInterp, data, nil)
	peak := stat.Quantile(peakQuantile, stat.LinInterp, data, nil)
	dynRange := peak - floor
	if dynRange <= 0 {
		// 平坦信号：给一组永远无法触发的阈值
		return ThresholdSuggestion{High: peak + 1, Low: peak + 0.5, Floor: floor, Peak: peak}, nil
	}

	center := floor + dynRange*0.5
	return ThresholdSuggestion{
		High:  center + dynRange*hysteresis,
		Low:   center - dynRange*hysteresis,
		Floor: floor,
		Peak:  peak,
	}, nil
}

// Apply 把建议写回检测参数
func (s ThresholdSuggestion) Apply(cfg DetectorConfig) DetectorConfig {
	cfg.ThresholdHigh = s.High
	cfg.ThresholdLow = s.Low
	return cfg
}
