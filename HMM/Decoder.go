package HMM

import (
	"fmt"
	"math"
)

// Decode 用固定的模型做 Viterbi 推断，返回 1..N 的规范状态路径
// 离散模型用训练时的量化切点，不会重新拟合任何参数
func Decode(rates []float64, m *Model) ([]int, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("%w: no rates to decode", ErrInvalidInput)
	}
	for i, v := range rates {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite rate at %d", ErrInvalidInput, i)
		}
	}

	path, _ := Viterbi(m.Prior, m.Transition, emissionTable(rates, m.Emission))
	return m.Remap.Apply(path), nil
}
