package HMM

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidModel        = errors.New("invalid model")
	ErrDegenerateModel     = errors.New("degenerate model")
	ErrInsufficientSamples = errors.New("insufficient samples")
)

// Kind 发射模型类型
type Kind string

const (
	KindDiscrete Kind = "discrete"
	KindGaussian Kind = "gaussian"
)

// ParseKind 解析命令行/配置里的模型类型
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindDiscrete, KindGaussian:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: unknown emission model %q", ErrInvalidInput, s)
}

// Model 训练好的 HMM
// Prior/Transition/Emission 保持 EM 给出的原始状态顺序，解码直接用它们；
// Remap 把原始状态映射到按平均速率升序的规范标签。训练完成后不再修改
type Model struct {
	Kind          Kind
	States        int
	Prior         []float64
	Transition    [][]float64
	Emission      EmissionModel
	Remap         StateRemap
	Stats         []StateStats // 规范顺序：Stats[label-1]
	LogLikelihood float64
	Iterations    int
	Converged     bool
	Observations  int
}

// CanonicalParams 按规范标签重排后的参数，用于展示
type CanonicalParams struct {
	Prior      []float64
	Transition [][]float64
	Emission   EmissionModel
}

// Canonical 返回按规范顺序重排的参数副本
func (m *Model) Canonical() CanonicalParams {
	order := m.Remap.Order()
	n := len(order)
	out := CanonicalParams{
		Prior:      make([]float64, n),
		Transition: newMatrix(n, n),
		Emission:   m.Emission.Permute(order),
	}
	for k, raw := range order {
		out.Prior[k] = m.Prior[raw]
		for l, rawTo := range order {
			out.Transition[k][l] = m.Transition[raw][rawTo]
		}
	}
	return out
}

// Means 规范顺序的状态平均速率
// 离散模型用 Viterbi 分组的经验均值，高斯模型用各分量的均值
func (m *Model) Means() []float64 {
	if g, ok := m.Emission.(*GaussianEmission); ok {
		return g.Permute(m.Remap.Order()).(*GaussianEmission).Mean
	}
	return statMeans(m.Stats)
}

// FreeParameters 自由参数个数
func (m *Model) FreeParameters() int {
	n := m.States
	df := (n - 1) + n*(n-1)
	switch e := m.Emission.(type) {
	case *DiscreteEmission:
		df += n * (e.Symbols() - 1)
	case *GaussianEmission:
		df += 2 * n
	}
	return df
}

// AIC 赤池信息量
func (m *Model) AIC() float64 {
	return 2*float64(m.FreeParameters()) - 2*m.LogLikelihood
}

// BIC 贝叶斯信息量
func (m *Model) BIC() float64 {
	return float64(m.FreeParameters())*math.Log(float64(m.Observations)) - 2*m.LogLikelihood
}

// Validate 检查维度和重排
func (m *Model) Validate() error {
	if m == nil || m.Emission == nil {
		return fmt.Errorf("%w: missing emission model", ErrInvalidModel)
	}
	n := m.States
	if n < 1 || len(m.Prior) != n || len(m.Transition) != n || m.Emission.NumStates() != n || len(m.Remap) != n {
		return fmt.Errorf("%w: inconsistent state count %d", ErrInvalidModel, n)
	}
	for i, row := range m.Transition {
		if len(row) != n {
			return fmt.Errorf("%w: transition row %d has %d columns", ErrInvalidModel, i, len(row))
		}
	}
	return m.Remap.Validate()
}

func newMatrix(r, c int) [][]float64 {
	m := make([][]float64, r)
	buf := make([]float64, r*c)
	for i := range m {
		m[i] = buf[i*c : (i+1)*c : (i+1)*c]
	}
	return m
}

// randomStochastic 随机的行随机矩阵
func randomStochastic(rng *rand.Rand, r, c int) [][]float64 {
	m := newMatrix(r, c)
	for i := range m {
		var sum float64
		for j := range m[i] {
			m[i][j] = rng.Float64() + 1e-3
			sum += m[i][j]
		}
		for j := range m[i] {
			m[i][j] /= sum
		}
	}
	return m
}
