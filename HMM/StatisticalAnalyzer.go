package HMM

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// StateStats 一个状态上分到的速率样本的统计特征
type StateStats struct {
	Mean   float64 // 平均速率，没有样本时为 NaN
	StdDev float64 // 标准差，没有样本时为 NaN
	Count  int     // 样本数量
}

// CalculateStateStats 按 path (0 起始原始状态) 把 x 分组，计算每个状态的均值和标准差
func CalculateStateStats(x []float64, path []int, n int) []StateStats {
	groups := make([][]float64, n)
	for t, s := range path {
		groups[s] = append(groups[s], x[t])
	}

	out := make([]StateStats, n)
	for s, g := range groups {
		out[s] = calculateStats(g)
	}
	return out
}

func calculateStats(data []float64) StateStats {
	switch len(data) {
	case 0:
		return StateStats{Mean: math.NaN(), StdDev: math.NaN()}
	case 1:
		return StateStats{Mean: data[0], StdDev: 0, Count: 1}
	}
	mean, std := stat.MeanStdDev(data, nil)
	return StateStats{Mean: mean, StdDev: std, Count: len(data)}
}

func statMeans(stats []StateStats) []float64 {
	means := make([]float64, len(stats))
	for s, st := range stats {
		means[s] = st.Mean
	}
	return means
}
