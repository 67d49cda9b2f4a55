package pulsestate

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pulsestate/Filters"
	"pulsestate/HMM"
)

// Metrics 一次批处理的运行指标，注册在独立的 registry 上
// 批处理结束后由命令行写成 textfile 供 node_exporter 收集
type Metrics struct {
	registry *prometheus.Registry

	BeatsDetected  prometheus.Counter
	BeatsInvalid   prometheus.Counter
	RateBins       prometheus.Counter
	EMIterations   *prometheus.HistogramVec
	StageDuration  *prometheus.HistogramVec
	LogLikelihood  *prometheus.GaugeVec
	StateOccupancy *prometheus.GaugeVec
}

// NewMetrics 创建并注册所有指标
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		BeatsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulsestate_beats_detected_total",
			Help: "Total number of beats emitted by the detector",
		}),
		BeatsInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulsestate_beats_invalid_total",
			Help: "Beats that failed the amplitude or duration gates",
		}),
		RateBins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulsestate_rate_bins_total",
			Help: "Number of rate samples produced",
		}),
		EMIterations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pulsestate_em_iterations",
			Help:    "Baum-Welch iterations until convergence",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"emission"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pulsestate_stage_duration_seconds",
			Help:    "Wall time spent in each pipeline stage",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		LogLikelihood: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pulsestate_model_log_likelihood",
			Help: "Log-likelihood of the last fitted model",
		}, []string{"emission"}),
		StateOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pulsestate_state_occupancy_ratio",
			Help: "Fraction of rate bins decoded into each state",
		}, []string{"state"}),
	}
	m.registry.MustRegister(
		m.BeatsDetected,
		m.BeatsInvalid,
		m.RateBins,
		m.EMIterations,
		m.StageDuration,
		m.LogLikelihood,
		m.StateOccupancy,
	)
	return m
}

// Registry 供测试和导出使用
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveBeats 统计检测结果
func (m *Metrics) ObserveBeats(beats []Filters.Beat) {
	m.BeatsDetected.Add(float64(len(beats)))
	invalid := 0
	for _, b := range beats {
		if !b.Valid {
			invalid++
		}
	}
	m.BeatsInvalid.Add(float64(invalid))
}

// ObserveModel 记录训练结果
func (m *Metrics) ObserveModel(model *HMM.Model) {
	kind := string(model.Kind)
	m.EMIterations.WithLabelValues(kind).Observe(float64(model.Iterations))
	m.LogLikelihood.WithLabelValues(kind).Set(model.LogLikelihood)
}

// ObservePath 记录每个状态占用的比例
func (m *Metrics) ObservePath(path []int, states int) {
	if len(path) == 0 {
		return
	}
	counts := make([]int, states+1)
	for _, s := range path {
		counts[s]++
	}
	for s := 1; s <= states; s++ {
		m.StateOccupancy.WithLabelValues(stateLabel(s)).Set(float64(counts[s]) / float64(len(path)))
	}
}

// Stage 返回一个计时结束函数
//
//	done := metrics.Stage("detect")
//	defer done()
func (m *Metrics) Stage(stage string) func() {
	start := time.Now()
	return func() {
		m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

// WriteTextfile 以 Prometheus 文本格式写出全部指标
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func stateLabel(s int) string {
	return strconv.Itoa(s)
}
