package HMM

import (
	"fmt"
	"math"
	"sort"
)

// StateRemap 原始 EM 状态 -> 规范标签 (1..N，按平均速率升序)
// remap[raw] = canonical label
type StateRemap []int

// Canonicalize 按均值升序给状态排名；NaN (没有分到样本的状态) 排在最后，
// 相同均值保持原始顺序
func Canonicalize(means []float64) StateRemap {
	order := make([]int, len(means))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ma, mb := means[order[a]], means[order[b]]
		if math.IsNaN(mb) {
			return !math.IsNaN(ma)
		}
		return ma < mb
	})

	remap := make(StateRemap, len(means))
	for rank, raw := range order {
		remap[raw] = rank + 1
	}
	return remap
}

// Identity 不重排
func Identity(n int) StateRemap {
	r := make(StateRemap, n)
	for i := range r {
		r[i] = i + 1
	}
	return r
}

// Label 单个原始状态的规范标签
func (r StateRemap) Label(raw int) int {
	return r[raw]
}

// Apply 把 0 起始的原始路径映射成 1..N 的规范路径
func (r StateRemap) Apply(path []int) []int {
	out := make([]int, len(path))
	for t, raw := range path {
		out[t] = r.Label(raw)
	}
	return out
}

// Order 逆映射：order[k] 是规范标签 k+1 对应的原始状态
func (r StateRemap) Order() []int {
	order := make([]int, len(r))
	for raw, label := range r {
		order[label-1] = raw
	}
	return order
}

// Validate 检查是否是 1..N 的一个排列
func (r StateRemap) Validate() error {
	seen := make([]bool, len(r))
	for raw, label := range r {
		if label < 1 || label > len(r) || seen[label-1] {
			return fmt.Errorf("%w: remap[%d]=%d is not a permutation of 1..%d", ErrInvalidModel, raw, label, len(r))
		}
		seen[label-1] = true
	}
	return nil
}
