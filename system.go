package pulsestate

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"pulsestate/Filters"
	"pulsestate/HMM"
)

// Pipeline 管理一次批处理：检测 -> 速率 -> 训练 -> 解码 -> 驻留统计
type Pipeline struct {
	cfg     *Config
	log     logrus.FieldLogger
	metrics *Metrics
	tracer  Tracer
	runID   string
}

// Option 流水线可选项
type Option func(*Pipeline)

func WithLogger(log logrus.FieldLogger) Option {
	return func(p *Pipeline) { p.log = log }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithTracer 输出逐拍和逐点的调试数据
func WithTracer(t Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

func WithRunID(id string) Option {
	return func(p *Pipeline) { p.runID = id }
}

// NewPipeline 创建流水线，配置不合法时返回错误
func NewPipeline(cfg *Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:     cfg,
		log:     discardLogger(),
		metrics: NewMetrics(),
		tracer:  NoOpDebugger{},
		runID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.WithField("run_id", p.runID)
	return p, nil
}

// RunID 本次运行的标识，出现在每条日志里
func (p *Pipeline) RunID() string { return p.runID }

// Metrics 本次运行的指标
func (p *Pipeline) Metrics() *Metrics { return p.metrics }

// Result 一次运行的全部输出
type Result struct {
	RunID        string
	Detector     Filters.DetectorConfig // 实际使用的检测参数 (自动阈值后)
	Beats        []Filters.Beat
	ValidBeats   int
	Rates        RateSeries
	Model        *HMM.Model
	Path         []int // 规范标签 1..N，与 Rates 一一对应
	Dwell        []DwellHistogram
	MedianRate   float64 // 有效节拍瞬时频率的中位数 (次/秒)，NaN 表示不足两个有效节拍
	SpectralRate float64 // Welch 谱估计的主频，NaN 表示未计算
}

// Run 对一段完整的信号执行流水线
func (p *Pipeline) Run(series SampleSeries) (*Result, error) {
	if err := series.Validate(); err != nil {
		return nil, err
	}
	res := &Result{RunID: p.runID, MedianRate: math.NaN(), SpectralRate: math.NaN()}
	log := p.log.WithField("samples", series.Len())

	if p.cfg.Filter.CutoffHz > 0 {
		done := p.metrics.Stage("filter")
		filtered, err := LowpassSeries(series, p.cfg.Filter.Order, p.cfg.Filter.CutoffHz)
		done()
		if err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		series = filtered
	}

	det := p.cfg.DetectorConfig()
	if p.cfg.Detector.AutoThreshold {
		sug, err := Filters.SuggestThresholds(series.D, p.cfg.Detector.Hysteresis)
		if err != nil {
			return nil, fmt.Errorf("threshold: %w", err)
		}
		det = sug.Apply(det)
		log.WithFields(logrus.Fields{"high": det.ThresholdHigh, "low": det.ThresholdLow}).Info("auto thresholds")
	}
	res.Detector = det

	done := p.metrics.Stage("detect")
	beats, err := Filters.Detect(series.T, series.D, det)
	done()
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	res.Beats = beats
	p.metrics.ObserveBeats(beats)
	for _, b := range beats {
		p.tracer.RecordBeat(b)
		if b.Valid {
			res.ValidBeats++
		}
	}
	res.MedianRate = medianInstantFreq(beats)
	log.WithFields(logrus.Fields{"beats": len(beats), "valid": res.ValidBeats}).Info("beats detected")

	done = p.metrics.Stage("rate")
	rates, err := RatesFromBeats(beats, p.cfg.Rate.DeltaT, p.cfg.Rate.Window)
	done()
	if err != nil {
		return nil, fmt.Errorf("rate: %w", err)
	}
	res.Rates = rates
	p.metrics.RateBins.Add(float64(rates.Len()))

	kind, err := HMM.ParseKind(p.cfg.HMM.Emission)
	if err != nil {
		return nil, err
	}
	done = p.metrics.Stage("fit")
	model, err := HMM.Fit(kind, rates.Rates, p.cfg.HMM.States, p.cfg.HMMOptions(log))
	done()
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	res.Model = model
	p.metrics.ObserveModel(model)

	done = p.metrics.Stage("decode")
	path, err := HMM.Decode(rates.Rates, model)
	done()
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	res.Path = path
	p.metrics.ObservePath(path, model.States)
	for i := range path {
		p.tracer.RecordRate(rates.Centers[i], rates.Rates[i], path[i])
	}

	dwell, err := DwellHistograms(path, model.States, p.cfg.Rate.DeltaT, p.cfg.DwellEdges())
	if err != nil {
		return nil, fmt.Errorf("dwell: %w", err)
	}
	res.Dwell = dwell

	if p.cfg.Spectrum.Enabled {
		sa := NewSpectrumAnalyzer(series.SampleRate(), p.cfg.Spectrum.NFFT)
		freq, _, err := sa.DominantRate(series.D, p.cfg.Spectrum.MinRate, p.cfg.Spectrum.MaxRate)
		switch {
		case errors.Is(err, ErrInvalidInput):
			// 信号太短或频带低于分辨率，只是少了一个参考值
			log.WithError(err).Warn("spectral rate unavailable")
		case err != nil:
			return nil, fmt.Errorf("spectrum: %w", err)
		default:
			res.SpectralRate = freq
		}
	}

	log.WithFields(logrus.Fields{
		"rate_bins":  rates.Len(),
		"emission":   model.Kind,
		"loglik":     model.LogLikelihood,
		"iterations": model.Iterations,
	}).Info("pipeline finished")
	return res, nil
}

func medianInstantFreq(beats []Filters.Beat) float64 {
	var freqs []float64
	for _, b := range beats {
		if b.Valid && !math.IsNaN(b.InstantFreq) && !math.IsInf(b.InstantFreq, 0) {
			freqs = append(freqs, b.InstantFreq)
		}
	}
	if len(freqs) == 0 {
		return math.NaN()
	}
	sort.Float64s(freqs)
	return stat.Quantile(0.5, stat.Empirical, freqs, nil)
}

// WriteSummary 打印每个状态的统计表
func (r *Result) WriteSummary(w io.Writer) error {
	fmt.Fprintf(w, "run %s: %d beats (%d valid), %d rate bins\n", r.RunID, len(r.Beats), r.ValidBeats, r.Rates.Len())
	fmt.Fprintf(w, "median beat rate %.3f/s, spectral rate %.3f/s\n", r.MedianRate, r.SpectralRate)
	if r.Model != nil {
		fmt.Fprintf(w, "%s HMM, %d states, loglik %.2f, AIC %.2f, %d iterations (converged=%v)\n",
			r.Model.Kind, r.Model.States, r.Model.LogLikelihood, r.Model.AIC(), r.Model.Iterations, r.Model.Converged)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "State\tMean rate\tStd\tBins\tRuns\tMean dwell (s)\t")
	for _, h := range r.Dwell {
		var st HMM.StateStats
		if r.Model != nil && h.State-1 < len(r.Model.Stats) {
			st = r.Model.Stats[h.State-1]
		}
		fmt.Fprintf(tw, "%d\t%.3f\t%.3f\t%d\t%d\t%.1f\t\n", h.State, st.Mean, st.StdDev, st.Count, h.Runs, h.MeanDwell())
	}
	return tw.Flush()
}
