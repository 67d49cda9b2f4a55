package pulsestate

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"pulsestate/Filters"
	"pulsestate/HMM"
)

// EnvPrefix 环境变量前缀，例如 PULSE_HMM_STATES=3
const EnvPrefix = "PULSE_"

// Config 集中管理整条流水线的可调参数
type Config struct {
	// --- 节拍检测 ---
	Detector struct {
		ThresholdHigh    float64 // 上阈值
		ThresholdLow     float64 // 下阈值
		Refractory       float64 // 不应期 (秒)，和上一个有效节拍的上穿时刻比较
		AmplitudeHighMin float64
		AmplitudeLowMin  float64
		AmplitudeMin     float64
		DurationMin      float64 // 最短上升持续时间 (秒)
		AutoThreshold    bool    // 按幅度分位点自动设定阈值
		Hysteresis       float64 // 自动阈值时上下阈值离中线的比例 (0 ~ 0.5)
	}

	// --- 预滤波 ---
	// CutoffHz 为 0 时不滤波
	Filter struct {
		CutoffHz float64 // 低通截止频率
		Order    int     // 巴特沃斯阶数，必须是偶数
	}

	// --- 速率估计 ---
	Rate struct {
		DeltaT float64 // 速率序列的步长 (秒)
		Window float64 // 计数窗口宽度 (秒)
	}

	// --- HMM ---
	HMM struct {
		States        int
		Emission      string // "discrete" 或 "gaussian"
		MaxIterations int
		Tolerance     float64
		Symbols       int // 离散模型的字母表大小
		VarianceFloor float64
		Seed          int64
		Restarts      int // EM 起点个数，取对数似然最大的一次
	}

	// --- 驻留时间直方图 ---
	Dwell struct {
		MinSeconds float64
		MaxSeconds float64
		Bins       int
	}

	// --- 频谱交叉校验 ---
	Spectrum struct {
		Enabled bool
		NFFT    int     // Welch 分段长度，会被截到不超过信号长度的 2 的幂
		MinRate float64 // 搜索范围下限 (Hz)
		MaxRate float64 // 搜索范围上限 (Hz)
	}

	// --- 采集 ---
	Acquisition struct {
		SampleRate  float64       // 串口只给数值时使用的采样率
		SerialPort  string        // 串口设备
		BaudRate    int           // 波特率
		AudioDevice string        // 音频设备名关键字
		AudioRate   int           // 声卡采样率
		Duration    time.Duration // 实时采集时长
	}

	Log struct {
		Level  string
		Format string // "text" 或 "json"
	}
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	cfg := &Config{}

	det := Filters.DefaultDetectorConfig()
	cfg.Detector.ThresholdHigh = det.ThresholdHigh
	cfg.Detector.ThresholdLow = det.ThresholdLow
	cfg.Detector.Refractory = det.Refractory
	cfg.Detector.Hysteresis = 0.25

	cfg.Filter.Order = 4

	cfg.Rate.DeltaT = 1.0
	cfg.Rate.Window = 10.0

	opts := HMM.DefaultOptions()
	cfg.HMM.States = 2
	cfg.HMM.Emission = string(HMM.KindGaussian)
	cfg.HMM.MaxIterations = opts.MaxIterations
	cfg.HMM.Tolerance = opts.Tolerance
	cfg.HMM.Symbols = opts.Symbols
	cfg.HMM.VarianceFloor = opts.VarianceFloor
	cfg.HMM.Seed = opts.Seed
	cfg.HMM.Restarts = opts.Restarts

	cfg.Dwell.MinSeconds = 0.1
	cfg.Dwell.MaxSeconds = 3600
	cfg.Dwell.Bins = 100

	cfg.Spectrum.Enabled = true
	cfg.Spectrum.NFFT = 4096
	cfg.Spectrum.MinRate = 0.3 // 18 bpm
	cfg.Spectrum.MaxRate = 5.0 // 300 bpm

	cfg.Acquisition.SampleRate = 100
	cfg.Acquisition.SerialPort = "/dev/ttyUSB0"
	cfg.Acquisition.BaudRate = 115200
	cfg.Acquisition.AudioRate = 8000
	cfg.Acquisition.Duration = time.Minute

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	return cfg
}

// DetectorConfig 转成 Filters 的检测参数
func (c *Config) DetectorConfig() Filters.DetectorConfig {
	return Filters.DetectorConfig{
		ThresholdHigh:    c.Detector.ThresholdHigh,
		ThresholdLow:     c.Detector.ThresholdLow,
		Refractory:       c.Detector.Refractory,
		AmplitudeHighMin: c.Detector.AmplitudeHighMin,
		AmplitudeLowMin:  c.Detector.AmplitudeLowMin,
		AmplitudeMin:     c.Detector.AmplitudeMin,
		DurationMin:      c.Detector.DurationMin,
	}
}

// HMMOptions 转成训练参数
func (c *Config) HMMOptions(log logrus.FieldLogger) HMM.Options {
	return HMM.Options{
		MaxIterations: c.HMM.MaxIterations,
		Tolerance:     c.HMM.Tolerance,
		Symbols:       c.HMM.Symbols,
		VarianceFloor: c.HMM.VarianceFloor,
		Seed:          c.HMM.Seed,
		Restarts:      c.HMM.Restarts,
		Logger:        log,
	}
}

// DwellEdges 驻留时间直方图的 bin 边界
func (c *Config) DwellEdges() []float64 {
	return DwellEdges(c.Dwell.MinSeconds, c.Dwell.MaxSeconds, c.Dwell.Bins)
}

// Validate 检查字段之间的约束
func (c *Config) Validate() error {
	if err := c.DetectorConfig().Validate(); err != nil {
		return err
	}
	if c.Detector.AutoThreshold && (c.Detector.Hysteresis <= 0 || c.Detector.Hysteresis >= 0.5) {
		return fmt.Errorf("%w: hysteresis %v must be in (0, 0.5)", ErrInvalidConfig, c.Detector.Hysteresis)
	}
	if c.Filter.CutoffHz < 0 {
		return fmt.Errorf("%w: filter cutoff %v must be >= 0", ErrInvalidConfig, c.Filter.CutoffHz)
	}
	if c.Filter.CutoffHz > 0 && (c.Filter.Order < 2 || c.Filter.Order%2 != 0) {
		return fmt.Errorf("%w: filter order %d must be even and >= 2", ErrInvalidConfig, c.Filter.Order)
	}
	if c.Rate.DeltaT <= 0 || c.Rate.Window <= 0 {
		return fmt.Errorf("%w: rate step %v and window %v must be > 0", ErrInvalidConfig, c.Rate.DeltaT, c.Rate.Window)
	}
	if c.HMM.States < 1 {
		return fmt.Errorf("%w: state count %d must be >= 1", ErrInvalidConfig, c.HMM.States)
	}
	if c.HMM.Restarts < 1 {
		return fmt.Errorf("%w: restarts %d must be >= 1", ErrInvalidConfig, c.HMM.Restarts)
	}
	if _, err := HMM.ParseKind(c.HMM.Emission); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Dwell.MinSeconds <= 0 || c.Dwell.MaxSeconds <= c.Dwell.MinSeconds || c.Dwell.Bins < 1 {
		return fmt.Errorf("%w: dwell range [%v, %v] with %d bins", ErrInvalidConfig, c.Dwell.MinSeconds, c.Dwell.MaxSeconds, c.Dwell.Bins)
	}
	if c.Spectrum.Enabled && (c.Spectrum.NFFT < 16 || c.Spectrum.MinRate <= 0 || c.Spectrum.MaxRate <= c.Spectrum.MinRate) {
		return fmt.Errorf("%w: spectrum nfft %d band [%v, %v]", ErrInvalidConfig, c.Spectrum.NFFT, c.Spectrum.MinRate, c.Spectrum.MaxRate)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// LoadConfig 默认配置 + .env 文件 + 环境变量
// 进程环境变量优先于 .env 文件里的值；envFile 为空时只读环境变量
func LoadConfig(envFile string) (*Config, error) {
	fileVals := map[string]string{}
	if envFile != "" {
		vals, err := godotenv.Read(envFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
		fileVals = vals
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileVals[key]
		return v, ok
	}

	cfg := DefaultConfig()
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envBinder 逐个字段解析，遇到第一个错误后停止
type envBinder struct {
	lookup func(string) (string, bool)
	err    error
}

func (b *envBinder) get(name string) (string, bool) {
	if b.err != nil {
		return "", false
	}
	v, ok := b.lookup(EnvPrefix + name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (b *envBinder) fail(name, v string, err error) {
	b.err = fmt.Errorf("%w: %s%s=%q: %v", ErrInvalidConfig, EnvPrefix, name, v, err)
}

func (b *envBinder) floatVar(name string, dst *float64) {
	if v, ok := b.get(name); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			b.fail(name, v, err)
			return
		}
		*dst = f
	}
}

func (b *envBinder) intVar(name string, dst *int) {
	if v, ok := b.get(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			b.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func (b *envBinder) int64Var(name string, dst *int64) {
	if v, ok := b.get(name); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			b.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func (b *envBinder) boolVar(name string, dst *bool) {
	if v, ok := b.get(name); ok {
		f, err := strconv.ParseBool(v)
		if err != nil {
			b.fail(name, v, err)
			return
		}
		*dst = f
	}
}

func (b *envBinder) durationVar(name string, dst *time.Duration) {
	if v, ok := b.get(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			b.fail(name, v, err)
			return
		}
		*dst = d
	}
}

func (b *envBinder) stringVar(name string, dst *string) {
	if v, ok := b.get(name); ok {
		*dst = v
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	b := &envBinder{lookup: lookup}

	b.floatVar("THRESHOLD_HIGH", &c.Detector.ThresholdHigh)
	b.floatVar("THRESHOLD_LOW", &c.Detector.ThresholdLow)
	b.floatVar("REFRACTORY", &c.Detector.Refractory)
	b.floatVar("AMPLITUDE_HIGH_MIN", &c.Detector.AmplitudeHighMin)
	b.floatVar("AMPLITUDE_LOW_MIN", &c.Detector.AmplitudeLowMin)
	b.floatVar("AMPLITUDE_MIN", &c.Detector.AmplitudeMin)
	b.floatVar("DURATION_MIN", &c.Detector.DurationMin)
	b.boolVar("AUTO_THRESHOLD", &c.Detector.AutoThreshold)
	b.floatVar("HYSTERESIS", &c.Detector.Hysteresis)

	b.floatVar("FILTER_CUTOFF_HZ", &c.Filter.CutoffHz)
	b.intVar("FILTER_ORDER", &c.Filter.Order)

	b.floatVar("RATE_DELTA_T", &c.Rate.DeltaT)
	b.floatVar("RATE_WINDOW", &c.Rate.Window)

	b.intVar("HMM_STATES", &c.HMM.States)
	b.stringVar("HMM_EMISSION", &c.HMM.Emission)
	b.intVar("HMM_MAX_ITERATIONS", &c.HMM.MaxIterations)
	b.floatVar("HMM_TOLERANCE", &c.HMM.Tolerance)
	b.intVar("HMM_SYMBOLS", &c.HMM.Symbols)
	b.floatVar("HMM_VARIANCE_FLOOR", &c.HMM.VarianceFloor)
	b.int64Var("HMM_SEED", &c.HMM.Seed)
	b.intVar("HMM_RESTARTS", &c.HMM.Restarts)

	b.floatVar("DWELL_MIN_SECONDS", &c.Dwell.MinSeconds)
	b.floatVar("DWELL_MAX_SECONDS", &c.Dwell.MaxSeconds)
	b.intVar("DWELL_BINS", &c.Dwell.Bins)

	b.boolVar("SPECTRUM_ENABLED", &c.Spectrum.Enabled)
	b.intVar("SPECTRUM_NFFT", &c.Spectrum.NFFT)
	b.floatVar("SPECTRUM_MIN_RATE", &c.Spectrum.MinRate)
	b.floatVar("SPECTRUM_MAX_RATE", &c.Spectrum.MaxRate)

	b.floatVar("SAMPLE_RATE", &c.Acquisition.SampleRate)
	b.stringVar("SERIAL_PORT", &c.Acquisition.SerialPort)
	b.intVar("BAUD_RATE", &c.Acquisition.BaudRate)
	b.stringVar("AUDIO_DEVICE", &c.Acquisition.AudioDevice)
	b.intVar("AUDIO_RATE", &c.Acquisition.AudioRate)
	b.durationVar("CAPTURE_DURATION", &c.Acquisition.Duration)

	b.stringVar("LOG_LEVEL", &c.Log.Level)
	b.stringVar("LOG_FORMAT", &c.Log.Format)

	return b.err
}
