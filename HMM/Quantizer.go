package HMM

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Quantize 把连续值映射到 1..symbols 的离散符号
// edges 是 symbols-1 个分位切点，解码新数据时必须沿用同一组 edges
func Quantize(values []float64, symbols int) ([]int, []float64, error) {
	edges, err := QuantileEdges(values, symbols)
	if err != nil {
		return nil, nil, err
	}
	syms, err := ApplyEdges(values, edges)
	if err != nil {
		return nil, nil, err
	}
	return syms, edges, nil
}

// QuantileEdges 计算分位切点；切点塌缩 (常数数据) 时退回到 [min, max] 线性等分
func QuantileEdges(values []float64, symbols int) ([]float64, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no values to quantize", ErrInvalidInput)
	}
	if symbols < 1 {
		return nil, fmt.Errorf("%w: symbol count %d must be >= 1", ErrInvalidInput, symbols)
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	if math.IsNaN(sorted[0]) || math.IsNaN(sorted[len(sorted)-1]) {
		return nil, fmt.Errorf("%w: NaN in values", ErrInvalidInput)
	}

	need := symbols - 1
	edges := make([]float64, 0, need)
	for k := 1; k <= need; k++ {
		q := stat.Quantile(float64(k)/float64(symbols), stat.LinInterp, sorted, nil)
		if len(edges) > 0 && q == edges[len(edges)-1] {
			continue
		}
		edges = append(edges, q)
	}
	if len(edges) == need {
		return edges, nil
	}

	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		lo--
		hi++
	}
	span := make([]float64, symbols+1)
	floats.Span(span, lo, hi)
	return span[1:symbols], nil
}

// ApplyEdges 按 [-Inf, edges..., +Inf] 分桶，符号从 1 开始
// edges[k-1] <= v < edges[k] 落在第 k+1 个桶
func ApplyEdges(values, edges []float64) ([]int, error) {
	syms := make([]int, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("%w: NaN at %d", ErrInvalidInput, i)
		}
		syms[i] = symbolOf(v, edges)
	}
	return syms, nil
}

func symbolOf(v float64, edges []float64) int {
	return sort.Search(len(edges), func(k int) bool { return edges[k] > v }) + 1
}
