package HMM

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// posterior 一次前向后向的结果
type posterior struct {
	gamma  [][]float64 // T x N，状态后验
	xiSum  [][]float64 // N x N，转移期望次数 (对 t 求和)
	logLik float64
}

// forwardBackward 带缩放的前向后向
// 每个时刻先把 logB 减去最大值再取指数，再按 c_t 归一化，避免下溢
func forwardBackward(prior []float64, trans [][]float64, logB [][]float64) (*posterior, error) {
	T, n := len(logB), len(prior)
	if T == 0 {
		return nil, fmt.Errorf("%w: empty observation sequence", ErrInvalidInput)
	}

	b := newMatrix(T, n)
	var logLik float64
	for t := 0; t < T; t++ {
		mx := floats.Max(logB[t])
		if math.IsInf(mx, -1) || math.IsNaN(mx) {
			return nil, fmt.Errorf("%w: observation %d impossible under every state", ErrDegenerateModel, t)
		}
		for s := 0; s < n; s++ {
			b[t][s] = math.Exp(logB[t][s] - mx)
		}
		logLik += mx
	}

	alpha := newMatrix(T, n)
	scale := make([]float64, T)
	for s := 0; s < n; s++ {
		alpha[0][s] = prior[s] * b[0][s]
	}
	for t := 0; t < T; t++ {
		if t > 0 {
			for j := 0; j < n; j++ {
				var acc float64
				for i := 0; i < n; i++ {
					acc += alpha[t-1][i] * trans[i][j]
				}
				alpha[t][j] = acc * b[t][j]
			}
		}
		scale[t] = floats.Sum(alpha[t])
		if scale[t] <= 0 || math.IsNaN(scale[t]) {
			return nil, fmt.Errorf("%w: forward probabilities vanished at %d", ErrDegenerateModel, t)
		}
		floats.Scale(1/scale[t], alpha[t])
		logLik += math.Log(scale[t])
	}

	beta := newMatrix(T, n)
	for s := 0; s < n; s++ {
		beta[T-1][s] = 1
	}
	for t := T - 2; t >= 0; t-- {
		for i := 0; i < n; i++ {
			var acc float64
			for j := 0; j < n; j++ {
				acc += trans[i][j] * b[t+1][j] * beta[t+1][j]
			}
			beta[t][i] = acc / scale[t+1]
		}
	}

	post := &posterior{
		gamma:  newMatrix(T, n),
		xiSum:  newMatrix(n, n),
		logLik: logLik,
	}
	for t := 0; t < T; t++ {
		floats.MulTo(post.gamma[t], alpha[t], beta[t])
		if z := floats.Sum(post.gamma[t]); z > 0 {
			floats.Scale(1/z, post.gamma[t])
		}
		if t == T-1 {
			continue
		}
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				post.xiSum[i][j] += alpha[t][i] * trans[i][j] * b[t+1][j] * beta[t+1][j] / scale[t+1]
			}
		}
	}
	return post, nil
}

// emResult Baum-Welch 结束时的参数
type emResult struct {
	prior      []float64
	trans      [][]float64
	logLik     float64
	iterations int
	converged  bool
}

// baumWelch 通用 EM：prior/trans 在这里更新，发射模型由 em.Fit 更新 (原地)
func baumWelch(x []float64, prior []float64, trans [][]float64, em EmissionModel, maxIter int, tol float64, log logrus.FieldLogger) (*emResult, error) {
	n := len(prior)
	res := &emResult{prior: prior, trans: trans, logLik: math.Inf(-1)}

	for iter := 1; iter <= maxIter; iter++ {
		post, err := forwardBackward(res.prior, res.trans, emissionTable(x, em))
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", iter, err)
		}

		prevLL := res.logLik
		res.logLik = post.logLik
		res.iterations = iter

		// M-step
		copy(res.prior, post.gamma[0])
		for i := 0; i < n; i++ {
			rowSum := floats.Sum(post.xiSum[i])
			// 从未离开过的状态保留原来的转移行
			if rowSum <= 0 {
				continue
			}
			for j := 0; j < n; j++ {
				res.trans[i][j] = post.xiSum[i][j] / rowSum
			}
		}
		em.Fit(x, post.gamma)

		log.WithFields(logrus.Fields{
			"iteration": iter,
			"loglik":    post.logLik,
		}).Debug("EM iteration")

		if !math.IsInf(prevLL, -1) && math.Abs(post.logLik-prevLL) <= tol*(1+math.Abs(prevLL)) {
			res.converged = true
			break
		}
	}
	return res, nil
}
