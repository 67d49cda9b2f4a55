package HMM

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// EmissionModel 发射概率模型
// 离散和高斯两种实现共用同一套前向后向 / Viterbi
type EmissionModel interface {
	// NumStates 隐状态个数
	NumStates() int
	// LogLikelihood 返回 log P(x | state)，x 是原始速率值
	LogLikelihood(x float64, state int) float64
	// Fit M-step：gamma[t][s] 是时刻 t 处于状态 s 的后验概率
	Fit(x []float64, gamma [][]float64)
	// Permute 按 order 重排状态 (新状态 k = 旧状态 order[k])，返回副本
	Permute(order []int) EmissionModel
}

// DiscreteEmission 量化后的离散观测模型
type DiscreteEmission struct {
	Edges []float64   // 训练时的量化切点
	Prob  [][]float64 // N x M，行随机
}

// NewDiscreteEmission 用给定的 edges 和概率矩阵构造
func NewDiscreteEmission(edges []float64, prob [][]float64) *DiscreteEmission {
	return &DiscreteEmission{Edges: edges, Prob: prob}
}

func (e *DiscreteEmission) NumStates() int { return len(e.Prob) }

// Symbols 字母表大小 M
func (e *DiscreteEmission) Symbols() int { return len(e.Edges) + 1 }

func (e *DiscreteEmission) LogLikelihood(x float64, state int) float64 {
	return math.Log(e.Prob[state][symbolOf(x, e.Edges)-1])
}

func (e *DiscreteEmission) Fit(x []float64, gamma [][]float64) {
	n, m := e.NumStates(), e.Symbols()
	counts := newMatrix(n, m)
	occupancy := make([]float64, n)
	for t, v := range x {
		sym := symbolOf(v, e.Edges) - 1
		for s := 0; s < n; s++ {
			counts[s][sym] += gamma[t][s]
			occupancy[s] += gamma[t][s]
		}
	}
	for s := 0; s < n; s++ {
		// 没有占用的状态保留上一轮的发射分布
		if occupancy[s] <= 0 {
			continue
		}
		for k := 0; k < m; k++ {
			e.Prob[s][k] = counts[s][k] / occupancy[s]
		}
	}
}

func (e *DiscreteEmission) Permute(order []int) EmissionModel {
	prob := make([][]float64, len(order))
	for k, raw := range order {
		prob[k] = append([]float64(nil), e.Prob[raw]...)
	}
	return &DiscreteEmission{Edges: append([]float64(nil), e.Edges...), Prob: prob}
}

// GaussianEmission 每个状态一个高斯分量
type GaussianEmission struct {
	Mean          []float64
	Variance      []float64
	VarianceFloor float64
}

// NewGaussianEmission 构造，方差会被抬到 floor 以上
func NewGaussianEmission(mean, variance []float64, floor float64) *GaussianEmission {
	g := &GaussianEmission{
		Mean:          append([]float64(nil), mean...),
		Variance:      append([]float64(nil), variance...),
		VarianceFloor: floor,
	}
	for s := range g.Variance {
		g.Variance[s] = math.Max(g.Variance[s], floor)
	}
	return g
}

func (g *GaussianEmission) NumStates() int { return len(g.Mean) }

func (g *GaussianEmission) LogLikelihood(x float64, state int) float64 {
	n := distuv.Normal{Mu: g.Mean[state], Sigma: math.Sqrt(g.Variance[state])}
	return n.LogProb(x)
}

func (g *GaussianEmission) Fit(x []float64, gamma [][]float64) {
	for s := range g.Mean {
		var w, sum float64
		for t, v := range x {
			w += gamma[t][s]
			sum += gamma[t][s] * v
		}
		if w <= 0 {
			continue
		}
		mean := sum / w
		var ss float64
		for t, v := range x {
			d := v - mean
			ss += gamma[t][s] * d * d
		}
		g.Mean[s] = mean
		g.Variance[s] = math.Max(ss/w, g.VarianceFloor)
	}
}

func (g *GaussianEmission) Permute(order []int) EmissionModel {
	out := &GaussianEmission{
		Mean:          make([]float64, len(order)),
		Variance:      make([]float64, len(order)),
		VarianceFloor: g.VarianceFloor,
	}
	for k, raw := range order {
		out.Mean[k] = g.Mean[raw]
		out.Variance[k] = g.Variance[raw]
	}
	return out
}

// emissionTable 预先计算 logB[t][s]
func emissionTable(x []float64, em EmissionModel) [][]float64 {
	n := em.NumStates()
	logB := newMatrix(len(x), n)
	for t, v := range x {
		for s := 0; s < n; s++ {
			logB[t][s] = em.LogLikelihood(v, s)
		}
	}
	return logB
}
