package HMM

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const kmeansMaxIter = 100

// KMeans 一维 K-Means 聚类
// 初始中心取 (i+0.5)/k 分位点，迭代到分配不再变化
// 返回各簇中心与每个样本所属簇
func KMeans(data []float64, k int) ([]float64, []int) {
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	centers := make([]float64, k)
	for i := range centers {
		centers[i] = stat.Quantile((float64(i)+0.5)/float64(k), stat.LinInterp, sorted, nil)
	}
	// 大量重复值时分位点会重合，改为在 [min, max] 上等分
	if k > 1 && !strictlyIncreasing(centers) {
		floats.Span(centers, sorted[0], sorted[len(sorted)-1])
	}

	assign := make([]int, len(data))
	for i := range assign {
		assign[i] = -1
	}

	for iter := 0; iter < kmeansMaxIter; iter++ {
		changed := false
		for i, v := range data {
			best, arg := math.Inf(1), 0
			for c, center := range centers {
				if dist := math.Abs(v - center); dist < best {
					best, arg = dist, c
				}
			}
			if assign[i] != arg {
				assign[i] = arg
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([]float64, k)
		counts := make([]float64, k)
		for i, v := range data {
			sums[assign[i]] += v
			counts[assign[i]]++
		}
		for c := range centers {
			// 空簇保持原中心
			if counts[c] > 0 {
				centers[c] = sums[c] / counts[c]
			}
		}
	}
	return centers, assign
}

// clusterVariances 每个簇的样本方差，少于两个样本时取 floor
func clusterVariances(data []float64, assign []int, k int, floor float64) []float64 {
	members := make([][]float64, k)
	for i, v := range data {
		members[assign[i]] = append(members[assign[i]], v)
	}
	vars := make([]float64, k)
	for c := range vars {
		vars[c] = floor
		if len(members[c]) > 1 {
			_, v := stat.MeanVariance(members[c], nil)
			vars[c] = math.Max(v, floor)
		}
	}
	return vars
}

func strictlyIncreasing(x []float64) bool {
	for i := 1; i < len(x); i++ {
		if x[i] <= x[i-1] {
			return false
		}
	}
	return true
}
