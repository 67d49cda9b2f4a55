package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"pulsestate"
	"pulsestate/Filters"
	"pulsestate/HMM"
)

// ============================================================================
// 1. 信道模拟 (Channel Simulator)
// ============================================================================

type ChannelEffects struct {
	SNRdB       float64 // 信噪比
	WanderRate  float64 // 基线漂移频率 (Hz)，例如呼吸 0.25Hz
	WanderDepth float64 // 基线漂移幅度，相对于脉搏幅度
}

// ApplyEffects 在干净信号上叠加基线漂移和高斯白噪声
func ApplyEffects(s pulsestate.SampleSeries, fx ChannelEffects, rng *rand.Rand) pulsestate.SampleSeries {
	out := pulsestate.SampleSeries{
		T: append([]float64(nil), s.T...),
		D: append([]float64(nil), s.D...),
	}

	// 信号平均功率 P_signal
	var energy float64
	for _, v := range s.D {
		energy += v * v
	}
	pSignal := energy / float64(len(s.D))

	// P_noise = P_signal / 10^(SNR/10)
	noiseScale := math.Sqrt(pSignal / math.Pow(10, fx.SNRdB/10.0))

	for i, t := range out.T {
		if fx.WanderDepth > 0 {
			out.D[i] += fx.WanderDepth * math.Sin(2*math.Pi*fx.WanderRate*t)
		}
		out.D[i] += rng.NormFloat64() * noiseScale
	}
	return out
}

// ============================================================================
// 2. 评分 (Scoring)
// ============================================================================

// BeatRecall 真实波峰在 tolerance 秒内能找到检测 onset 的比例，
// 以及没有对应真实波峰的多余 onset 个数
func BeatRecall(peaks, onsets []float64, tolerance float64) (float64, int) {
	if len(peaks) == 0 {
		return 0, len(onsets)
	}
	matched, j := 0, 0
	for _, p := range peaks {
		for j < len(onsets) && onsets[j] < p-tolerance {
			j++
		}
		if j < len(onsets) && math.Abs(onsets[j]-p) <= tolerance {
			matched++
			j++
		}
	}
	return float64(matched) / float64(len(peaks)), len(onsets) - matched
}

// StateAgreement 解码路径与真实状态一致的比例
func StateAgreement(path []int, centers []float64, sig pulsestate.SyntheticSignal) float64 {
	if len(path) == 0 {
		return 0
	}
	same := 0
	for i, c := range centers {
		if path[i] == sig.StateAt(c) {
			same++
		}
	}
	return float64(same) / float64(len(path))
}

// ============================================================================
// 3. 基准测试套件 (Benchmark Harness)
// ============================================================================

type TestCase struct {
	Name     string
	Segments []pulsestate.RateSegment
	SNR      float64
	Wander   float64
	Jitter   float64
}

// restActive 静息-活动-静息 三段，两个状态
func restActive(rest, active, seconds float64) []pulsestate.RateSegment {
	return []pulsestate.RateSegment{
		{Duration: seconds, Rate: rest, State: 1},
		{Duration: seconds, Rate: active, State: 2},
		{Duration: seconds, Rate: rest, State: 1},
	}
}

func RunBenchmark(sampleRate float64, seed int64, wavDir string) {
	testCases := []TestCase{
		{Name: "Level 1 (Easy)", Segments: restActive(1.0, 2.0, 300), SNR: 25},
		{Name: "Level 2 (Medium)", Segments: restActive(1.0, 1.6, 300), SNR: 12, Jitter: 0.02},
		{Name: "Level 2 (Medium)", Segments: restActive(1.0, 1.6, 300), SNR: 12, Wander: 0.3},
		{Name: "Level 3 (Hard)", Segments: restActive(1.1, 1.4, 300), SNR: 6, Wander: 0.5, Jitter: 0.05},
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LEVEL\tSNR(dB)\tWANDER\tJITTER\tEMISSION\tRECALL(%)\tEXTRA\tAGREE(%)\tTIME(ms)\tSTATUS")
	fmt.Fprintln(w, "-----\t-------\t------\t------\t--------\t---------\t-----\t--------\t--------\t------")

	for i, tc := range testCases {
		// 1. 生成信号
		gen := pulsestate.NewPulseGenerator(sampleRate, seed+int64(i))
		gen.Noise = 0
		gen.Jitter = tc.Jitter
		clean := gen.Generate(tc.Segments)

		// 2. 叠加信道效应
		rng := rand.New(rand.NewSource(seed + int64(i)))
		noisy := ApplyEffects(clean.Series, ChannelEffects{SNRdB: tc.SNR, WanderRate: 0.25, WanderDepth: tc.Wander}, rng)

		if wavDir != "" {
			name := filepath.Join(wavDir, fmt.Sprintf("case%d.wav", i+1))
			if err := pulsestate.WriteWavSeries(name, noisy, int(sampleRate)); err != nil {
				fmt.Fprintf(os.Stderr, "write %s: %v\n", name, err)
			}
		}

		for _, kind := range []HMM.Kind{HMM.KindGaussian, HMM.KindDiscrete} {
			cfg := pulsestate.DefaultConfig()
			cfg.HMM.Emission = string(kind)
			cfg.HMM.Seed = seed
			cfg.Detector.AutoThreshold = true
			cfg.Filter.CutoffHz = 5
			cfg.Spectrum.Enabled = false

			// 3. 运行流水线
			start := time.Now()
			pipeline, err := pulsestate.NewPipeline(cfg)
			if err != nil {
				fmt.Fprintf(w, "%s\t%.0f\t%.1f\t%.0f%%\t%s\t-\t-\t-\t-\tERROR %v\n", tc.Name, tc.SNR, tc.Wander, tc.Jitter*100, kind, err)
				continue
			}
			res, err := pipeline.Run(noisy)
			elapsed := time.Since(start)
			if err != nil {
				fmt.Fprintf(w, "%s\t%.0f\t%.1f\t%.0f%%\t%s\t-\t-\t-\t%d\tERROR %v\n", tc.Name, tc.SNR, tc.Wander, tc.Jitter*100, kind, elapsed.Milliseconds(), err)
				continue
			}

			// 4. 评分：onset 在波峰前约四分之一周期，容差取最慢脉率的半个周期
			recall, extra := BeatRecall(clean.Peaks, Filters.Onsets(res.Beats), 0.5/slowest(tc.Segments))
			agree := StateAgreement(res.Path, res.Rates.Centers, clean)

			status := "PASS"
			if recall < 0.95 || agree < 0.9 {
				status = "FAIL"
			}
			fmt.Fprintf(w, "%s\t%.0f\t%.1f\t%.0f%%\t%s\t%.1f\t%d\t%.1f\t%d\t%s\n",
				tc.Name, tc.SNR, tc.Wander, tc.Jitter*100, kind, recall*100, extra, agree*100, elapsed.Milliseconds(), status)
		}
	}
	w.Flush()
}

func slowest(segments []pulsestate.RateSegment) float64 {
	r := math.Inf(1)
	for _, s := range segments {
		r = math.Min(r, s.Rate)
	}
	return r
}

// ============================================================================
// Main Entry
// ============================================================================

func main() {
	sampleRate := flag.Float64("rate", 50, "Synthetic sample rate (Hz)")
	seed := flag.Int64("seed", 1, "Random seed")
	wavDir := flag.String("wav", "", "Directory to dump the noisy test signals as WAV")
	flag.Parse()

	fmt.Println("Starting Pulse State Benchmark Suite...")
	fmt.Println(strings.Repeat("=", 40))

	RunBenchmark(*sampleRate, *seed, *wavDir)

	fmt.Println("\nBenchmark Complete.")
}
