package pulsestate

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// DwellHistogram 一个状态的驻留时长分布
type DwellHistogram struct {
	State     int       // 规范标签 1..N
	Centers   []float64 // 每个 bin 的中心 (秒)
	Counts    []int
	Durations []float64 // 该状态每段连续驻留的时长，含超出 edges 范围的
	Runs      int
}

// DefaultDwellEdges 0.1s 到 3600s 对数等分 100 个 bin
func DefaultDwellEdges() []float64 {
	return DwellEdges(0.1, 3600, 100)
}

// DwellEdges 在 [lo, hi] 上对数等分 bins 个区间，返回 bins+1 个边界
func DwellEdges(lo, hi float64, bins int) []float64 {
	edges := make([]float64, bins+1)
	floats.LogSpan(edges, lo, hi)
	return edges
}

// DwellHistograms 对路径做游程编码，每段时长 = 段长 * binSpacing，
// 按 edges 统计每个状态的直方图。edges[k] <= d < edges[k+1] 落入第 k 个 bin，
// 最后一个 bin 包含右端点。没有出现过的状态也返回一个全零直方图
func DwellHistograms(path []int, states int, binSpacing float64, edges []float64) ([]DwellHistogram, error) {
	if states < 1 {
		return nil, fmt.Errorf("%w: state count %d must be >= 1", ErrInvalidInput, states)
	}
	if !(binSpacing > 0) {
		return nil, fmt.Errorf("%w: bin spacing %v must be > 0", ErrInvalidInput, binSpacing)
	}
	if len(edges) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 histogram edges", ErrInvalidInput)
	}
	for i := 1; i < len(edges); i++ {
		if edges[i] <= edges[i-1] {
			return nil, fmt.Errorf("%w: histogram edges not increasing at %d", ErrInvalidInput, i)
		}
	}
	for i, s := range path {
		if s < 1 || s > states {
			return nil, fmt.Errorf("%w: label %d at %d outside 1..%d", ErrInvalidInput, s, i, states)
		}
	}

	bins := len(edges) - 1
	centers := make([]float64, bins)
	for k := range centers {
		centers[k] = (edges[k] + edges[k+1]) / 2
	}

	hists := make([]DwellHistogram, states)
	for s := range hists {
		hists[s] = DwellHistogram{
			State:   s + 1,
			Centers: append([]float64(nil), centers...),
			Counts:  make([]int, bins),
		}
	}

	for _, run := range runLengths(path) {
		h := &hists[run.state-1]
		d := float64(run.length) * binSpacing
		h.Durations = append(h.Durations, d)
		h.Runs++
		if k := binOf(d, edges); k >= 0 {
			h.Counts[k]++
		}
	}
	return hists, nil
}

type run struct {
	state  int
	length int
}

func runLengths(path []int) []run {
	var runs []run
	for i := 0; i < len(path); {
		j := i + 1
		for j < len(path) && path[j] == path[i] {
			j++
		}
		runs = append(runs, run{state: path[i], length: j - i})
		i = j
	}
	return runs
}

// binOf 超出范围返回 -1
func binOf(d float64, edges []float64) int {
	last := len(edges) - 1
	if d < edges[0] || d > edges[last] {
		return -1
	}
	if d == edges[last] {
		return last - 1
	}
	return sort.Search(last, func(k int) bool { return edges[k+1] > d })
}

// MeanDwell 状态的平均驻留时长 (秒)，没有驻留时为 0
func (h DwellHistogram) MeanDwell() float64 {
	if len(h.Durations) == 0 {
		return 0
	}
	return floats.Sum(h.Durations) / float64(len(h.Durations))
}
