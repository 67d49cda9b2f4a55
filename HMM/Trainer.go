package HMM

import (
	"fmt"
	"io"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// Options 训练参数
type Options struct {
	MaxIterations int     // EM 最大迭代次数
	Tolerance     float64 // 对数似然相对变化小于此值视为收敛
	Symbols       int     // 离散模型的字母表大小
	VarianceFloor float64 // 高斯模型的方差下限
	Seed          int64   // Rand 为 nil 时用它建随机源
	Restarts      int     // EM 起点个数，保留对数似然最大的一次
	Rand          *rand.Rand
	Logger        logrus.FieldLogger
}

// DefaultOptions 默认训练参数
func DefaultOptions() Options {
	return Options{
		MaxIterations: 500,
		Tolerance:     1e-6,
		Symbols:       16,
		VarianceFloor: 1e-6,
		Seed:          1,
		Restarts:      10,
	}
}

func (o Options) normalized() Options {
	def := DefaultOptions()
	if o.MaxIterations <= 0 {
		o.MaxIterations = def.MaxIterations
	}
	if o.Tolerance <= 0 {
		o.Tolerance = def.Tolerance
	}
	if o.Symbols <= 0 {
		o.Symbols = def.Symbols
	}
	if o.VarianceFloor <= 0 {
		o.VarianceFloor = def.VarianceFloor
	}
	if o.Restarts <= 0 {
		o.Restarts = 1
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(o.Seed))
	}
	if o.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.Logger = l
	}
	return o
}

// Fit 按 kind 选择发射模型训练
func Fit(kind Kind, rates []float64, states int, opts Options) (*Model, error) {
	switch kind {
	case KindDiscrete:
		return FitDiscrete(rates, states, opts)
	case KindGaussian:
		return FitGaussian(rates, states, opts)
	}
	return nil, fmt.Errorf("%w: unknown emission model %q", ErrInvalidInput, kind)
}

// FitDiscrete 量化 + Baum-Welch
// 第一个起点的发射分布来自 K-Means 分簇后的符号直方图，其余起点随机
func FitDiscrete(rates []float64, states int, opts Options) (*Model, error) {
	if err := checkTrainingInput(rates, states); err != nil {
		return nil, err
	}
	opts = opts.normalized()

	syms, edges, err := Quantize(rates, opts.Symbols)
	if err != nil {
		return nil, err
	}
	symbols := len(edges) + 1
	_, assign := KMeans(rates, states)

	return fitBest(KindDiscrete, rates, states, opts, func(restart int) EmissionModel {
		if restart == 0 {
			return NewDiscreteEmission(edges, symbolHistograms(syms, assign, states, symbols))
		}
		return NewDiscreteEmission(edges, randomStochastic(opts.Rand, states, symbols))
	})
}

// FitGaussian 每状态单高斯
// 第一个起点用 K-Means 的均值和方差，其余起点在簇中心附近按簇内标准差随机扰动
func FitGaussian(rates []float64, states int, opts Options) (*Model, error) {
	if err := checkTrainingInput(rates, states); err != nil {
		return nil, err
	}
	if len(rates) <= states {
		return nil, fmt.Errorf("%w: %d observations for %d states", ErrInsufficientSamples, len(rates), states)
	}
	opts = opts.normalized()

	centers, assign := KMeans(rates, states)
	variances := clusterVariances(rates, assign, states, opts.VarianceFloor)

	return fitBest(KindGaussian, rates, states, opts, func(restart int) EmissionModel {
		means := append([]float64(nil), centers...)
		if restart > 0 {
			for s := range means {
				means[s] += opts.Rand.NormFloat64() * math.Sqrt(variances[s])
			}
		}
		return NewGaussianEmission(means, variances, opts.VarianceFloor)
	})
}

// fitBest 从 opts.Restarts 个起点各跑一次 EM，保留对数似然最大的模型
// 单个起点退化时跳过，全部失败才返回错误
func fitBest(kind Kind, rates []float64, states int, opts Options, initial func(restart int) EmissionModel) (*Model, error) {
	log := opts.Logger.WithFields(logrus.Fields{"emission": kind, "states": states})

	var best *Model
	var lastErr error
	for r := 0; r < opts.Restarts; r++ {
		emission := initial(r)
		prior := randomStochastic(opts.Rand, 1, states)[0]
		trans := randomStochastic(opts.Rand, states, states)

		m, err := train(kind, rates, prior, trans, emission, opts, log.WithField("restart", r))
		if err != nil {
			lastErr = err
			log.WithError(err).WithField("restart", r).Debug("EM start failed")
			continue
		}
		if best == nil || m.LogLikelihood > best.LogLikelihood {
			best = m
		}
	}
	if best == nil {
		return nil, lastErr
	}

	log.WithFields(logrus.Fields{
		"restarts":   opts.Restarts,
		"iterations": best.Iterations,
		"converged":  best.Converged,
		"loglik":     best.LogLikelihood,
	}).Info("HMM trained")
	if !best.Converged {
		log.Warn("EM stopped at max iterations before converging")
	}
	return best, nil
}

// symbolHistograms 每个簇内符号出现的频率，加一平滑避免零概率
func symbolHistograms(syms, assign []int, states, symbols int) [][]float64 {
	prob := newMatrix(states, symbols)
	for i, sym := range syms {
		prob[assign[i]][sym-1]++
	}
	for s := range prob {
		total := 0.0
		for k := range prob[s] {
			prob[s][k]++
			total += prob[s][k]
		}
		for k := range prob[s] {
			prob[s][k] /= total
		}
	}
	return prob
}

func train(kind Kind, rates, prior []float64, trans [][]float64, emission EmissionModel, opts Options, log logrus.FieldLogger) (*Model, error) {
	res, err := baumWelch(rates, prior, trans, emission, opts.MaxIterations, opts.Tolerance, log)
	if err != nil {
		return nil, fmt.Errorf("%s EM: %w", kind, err)
	}

	// 用原始参数对训练数据做 Viterbi，得到每个状态的经验统计
	path, _ := Viterbi(res.prior, res.trans, emissionTable(rates, emission))
	rawStats := CalculateStateStats(rates, path, len(prior))

	var remap StateRemap
	if g, ok := emission.(*GaussianEmission); ok {
		remap = Canonicalize(g.Mean)
	} else {
		remap = Canonicalize(statMeans(rawStats))
	}

	stats := make([]StateStats, len(rawStats))
	for raw, st := range rawStats {
		stats[remap.Label(raw)-1] = st
	}

	log.WithFields(logrus.Fields{
		"iterations": res.iterations,
		"loglik":     res.logLik,
	}).Debug("EM start finished")

	return &Model{
		Kind:          kind,
		States:        len(prior),
		Prior:         res.prior,
		Transition:    res.trans,
		Emission:      emission,
		Remap:         remap,
		Stats:         stats,
		LogLikelihood: res.logLik,
		Iterations:    res.iterations,
		Converged:     res.converged,
		Observations:  len(rates),
	}, nil
}

func checkTrainingInput(rates []float64, states int) error {
	if states < 1 {
		return fmt.Errorf("%w: state count %d must be >= 1", ErrInvalidInput, states)
	}
	if len(rates) == 0 {
		return fmt.Errorf("%w: no rates to train on", ErrInvalidInput)
	}
	for i, v := range rates {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite rate at %d", ErrInvalidInput, i)
		}
	}
	return nil
}
