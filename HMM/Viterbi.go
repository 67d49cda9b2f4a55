package HMM

import (
	"math"
)

// Viterbi 在对数域求最可能的状态路径
// 返回 0 起始的原始状态序号和该路径的对数概率
func Viterbi(prior []float64, trans [][]float64, logB [][]float64) ([]int, float64) {
	T, n := len(logB), len(prior)
	if T == 0 {
		return nil, math.Inf(-1)
	}

	logPrior := make([]float64, n)
	for s := range prior {
		logPrior[s] = math.Log(prior[s])
	}
	logTrans := newMatrix(n, n)
	for i := range trans {
		for j := range trans[i] {
			logTrans[i][j] = math.Log(trans[i][j])
		}
	}

	// backtrack[t][s]: t 时刻处于 s 时，t-1 时刻最可能的状态
	backtrack := make([][]int, T)
	delta := make([]float64, n)
	next := make([]float64, n)
	for s := 0; s < n; s++ {
		delta[s] = logPrior[s] + logB[0][s]
	}

	for t := 1; t < T; t++ {
		backtrack[t] = make([]int, n)
		for j := 0; j < n; j++ {
			best, arg := math.Inf(-1), 0
			for i := 0; i < n; i++ {
				if v := delta[i] + logTrans[i][j]; v > best {
					best, arg = v, i
				}
			}
			next[j] = best + logB[t][j]
			backtrack[t][j] = arg
		}
		delta, next = next, delta
	}

	last, score := 0, math.Inf(-1)
	for s := 0; s < n; s++ {
		if delta[s] > score {
			last, score = s, delta[s]
		}
	}

	// 反向生成路径
	path := make([]int, T)
	path[T-1] = last
	for t := T - 1; t > 0; t-- {
		path[t-1] = backtrack[t][path[t]]
	}
	return path, score
}
